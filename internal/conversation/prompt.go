package conversation

import (
	"fmt"
	"strings"

	"github.com/soyeahso/huddle/internal/domain"
)

var friendlinessDirectives = map[domain.Friendliness]string{
	domain.FriendlinessWarm:    "Be warm and encouraging toward the others.",
	domain.FriendlinessNeutral: "Keep a neutral, even tone.",
	domain.FriendlinessFormal:  "Stay polite and formal.",
}

var lengthDirectives = map[domain.ResponseLength]string{
	domain.LengthShort:  "Keep replies to one or two sentences.",
	domain.LengthMedium: "Keep replies to a short paragraph.",
	domain.LengthLong:   "Give thorough replies when the topic calls for it.",
}

var personalityDirectives = map[domain.Personality]string{
	domain.PersonalityAnalytical: "Reason step by step and weigh evidence.",
	domain.PersonalityCreative:   "Offer imaginative angles and unexpected ideas.",
	domain.PersonalityEmpathetic: "Acknowledge how others feel before making your point.",
	domain.PersonalityDirect:     "Get to the point without hedging.",
	domain.PersonalityCurious:    "Ask follow-up questions that move the discussion forward.",
}

var humorDirectives = map[domain.Humor]string{
	domain.HumorNone:      "Do not use humor.",
	domain.HumorLight:     "A light touch of humor is welcome.",
	domain.HumorPlayful:   "Be playful and witty.",
	domain.HumorSarcastic: "Dry sarcasm is fine, but never be hurtful.",
}

var expertiseDirectives = map[domain.ExpertiseLevel]string{
	domain.ExpertiseBeginner:     "Explain things simply and avoid jargon.",
	domain.ExpertiseIntermediate: "Assume some background knowledge.",
	domain.ExpertiseExpert:       "Speak as an expert to experts; technical depth is welcome.",
}

// StyleDirectives returns one directive per set style field, in a fixed order.
func StyleDirectives(s domain.PromptStyle) []string {
	var out []string
	add := func(d string, ok bool) {
		if ok {
			out = append(out, d)
		}
	}
	d, ok := friendlinessDirectives[s.Friendliness]
	add(d, ok)
	d, ok = lengthDirectives[s.Length]
	add(d, ok)
	d, ok = personalityDirectives[s.Personality]
	add(d, ok)
	d, ok = humorDirectives[s.Humor]
	add(d, ok)
	d, ok = expertiseDirectives[s.Expertise]
	add(d, ok)
	return out
}

// BuildSystemPrompt assembles an agent's system prompt from its descriptor.
func BuildSystemPrompt(a domain.AgentDescriptor) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s", a.DisplayName())
	if a.Role != "" {
		fmt.Fprintf(&b, ", %s", a.Role)
	}
	b.WriteString(".\n")

	if a.Characteristics != "" {
		fmt.Fprintf(&b, "\nCharacteristics: %s\n", a.Characteristics)
	}
	if a.Expertise != "" {
		fmt.Fprintf(&b, "Expertise: %s\n", a.Expertise)
	}
	if a.Instructions != "" {
		fmt.Fprintf(&b, "\n%s\n", strings.TrimSpace(a.Instructions))
	}

	if directives := StyleDirectives(a.Style); len(directives) > 0 {
		b.WriteString("\nStyle:\n")
		for _, d := range directives {
			fmt.Fprintf(&b, "- %s\n", d)
		}
	}

	return b.String()
}

// buildTurnPrompt renders the window and the reply instructions for one agent turn.
func buildTurnPrompt(a domain.AgentDescriptor, window []domain.Message) string {
	var b strings.Builder

	b.WriteString("You are taking part in a group chat with a user and other participants.\n\n")
	b.WriteString("Conversation so far:\n")
	b.WriteString(RenderWindow(window))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Write %s's next message.\n", a.DisplayName())
	b.WriteString("- Talk like a natural participant in the group, not a service bot or assistant.\n")
	b.WriteString("- Build on what the previous speaker said instead of repeating it.\n")
	b.WriteString("- Do not prefix your message with your name.\n\n")

	b.WriteString("Reply in exactly this format:\n")
	fmt.Fprintf(&b, "%s <ISO 639-1 code of the language you reply in>\n", LanguageMarker)
	fmt.Fprintf(&b, "%s <your message>\n", ResponseMarker)

	return b.String()
}
