package domain

import "errors"

// ErrAgentNotFound is returned by agent repositories when an id does not
// resolve for the requesting user.
var ErrAgentNotFound = errors.New("agent not found")

// Friendliness controls the warmth of an agent's tone.
type Friendliness string

const (
	FriendlinessWarm    Friendliness = "warm"
	FriendlinessNeutral Friendliness = "neutral"
	FriendlinessFormal  Friendliness = "formal"
)

// ResponseLength controls how long an agent's replies are.
type ResponseLength string

const (
	LengthShort  ResponseLength = "short"
	LengthMedium ResponseLength = "medium"
	LengthLong   ResponseLength = "long"
)

// Personality is the dominant trait an agent brings to the conversation.
type Personality string

const (
	PersonalityAnalytical Personality = "analytical"
	PersonalityCreative   Personality = "creative"
	PersonalityEmpathetic Personality = "empathetic"
	PersonalityDirect     Personality = "direct"
	PersonalityCurious    Personality = "curious"
)

// Humor sets how much levity an agent uses.
type Humor string

const (
	HumorNone      Humor = "none"
	HumorLight     Humor = "light"
	HumorPlayful   Humor = "playful"
	HumorSarcastic Humor = "sarcastic"
)

// ExpertiseLevel sets the depth an agent speaks at.
type ExpertiseLevel string

const (
	ExpertiseBeginner     ExpertiseLevel = "beginner"
	ExpertiseIntermediate ExpertiseLevel = "intermediate"
	ExpertiseExpert       ExpertiseLevel = "expert"
)

// PromptStyle groups the enum fields that shape an agent's system prompt.
type PromptStyle struct {
	Friendliness Friendliness   `json:"friendliness,omitempty" yaml:"friendliness,omitempty"`
	Length       ResponseLength `json:"length,omitempty" yaml:"length,omitempty"`
	Personality  Personality    `json:"personality,omitempty" yaml:"personality,omitempty"`
	Humor        Humor          `json:"humor,omitempty" yaml:"humor,omitempty"`
	Expertise    ExpertiseLevel `json:"expertise,omitempty" yaml:"expertise,omitempty"`
}

// ModelConfig selects the provider and model an agent talks through.
type ModelConfig struct {
	Provider string `json:"provider" yaml:"provider"`
	Name     string `json:"name" yaml:"name"`
	APIKey   string `json:"-" yaml:"apiKey,omitempty"`
	BaseURL  string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
}

// IsZero reports whether no provider or model was configured.
func (m ModelConfig) IsZero() bool {
	return m.Provider == "" && m.Name == ""
}

// AgentDescriptor is a configured conversation participant.
type AgentDescriptor struct {
	ID              string      `json:"id" yaml:"id"`
	Name            string      `json:"name" yaml:"name"`
	OwnerID         string      `json:"ownerId,omitempty" yaml:"owner,omitempty"`
	Role            string      `json:"role,omitempty" yaml:"role,omitempty"`
	Characteristics string      `json:"characteristics,omitempty" yaml:"characteristics,omitempty"`
	Instructions    string      `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Expertise       string      `json:"expertise,omitempty" yaml:"expertise,omitempty"`
	Style           PromptStyle `json:"style" yaml:"style,omitempty"`
	Model           ModelConfig `json:"model" yaml:"model"`
}

// DisplayName returns the agent name, falling back to its id.
func (a AgentDescriptor) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

// VisibleTo reports whether the agent may be used by the given user.
// Agents without an owner are shared.
func (a AgentDescriptor) VisibleTo(userID string) bool {
	return a.OwnerID == "" || a.OwnerID == userID
}
