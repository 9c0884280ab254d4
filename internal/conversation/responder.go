package conversation

import (
	"context"
	"strings"

	"github.com/soyeahso/huddle/internal/domain"
	"github.com/soyeahso/huddle/internal/llm"
	"github.com/soyeahso/huddle/internal/logging"
)

// ApologyMessage is the visible reply when an agent's model call fails.
const ApologyMessage = "Sorry, I'm having trouble responding right now. Let's keep going and I'll try again in a moment."

// Responder generates one agent's reply.
type Responder struct {
	provider ModelProvider
	log      *logging.Logger
}

// NewResponder creates a Responder.
func NewResponder(provider ModelProvider, log *logging.Logger) *Responder {
	return &Responder{provider: provider, log: log.Sub("responder")}
}

// Generate returns the agent's raw reply for the window. It never fails:
// provider errors become ApologyMessage, and credit exhaustion becomes
// CreditExhaustedMessage so the loop can recognize it.
func (r *Responder) Generate(ctx context.Context, agent domain.AgentDescriptor, window []domain.Message, userID string) string {
	system := BuildSystemPrompt(agent)
	msgs := []llm.Message{{Role: llm.RoleUser, Content: buildTurnPrompt(agent, window)}}

	text, err := r.provider.Complete(ctx, msgs, system, agent.Model, llm.CallOptions{UserID: userID})
	if err != nil {
		if llm.IsCreditExhausted(err) {
			r.log.Info().Str("agentId", agent.ID).Str("userId", userID).Msg("credits exhausted")
			return CreditExhaustedMessage
		}
		r.log.Warn().Err(err).Str("agentId", agent.ID).Msg("agent reply failed")
		return ApologyMessage
	}
	if strings.TrimSpace(text) == "" {
		r.log.Warn().Str("agentId", agent.ID).Msg("agent returned an empty reply")
		return ApologyMessage
	}
	return text
}
