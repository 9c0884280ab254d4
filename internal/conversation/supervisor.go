package conversation

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/soyeahso/huddle/internal/domain"
	"github.com/soyeahso/huddle/internal/llm"
	"github.com/soyeahso/huddle/internal/logging"
)

// minEndLog is the transcript length below which the supervisor never
// considers ending.
const minEndLog = 3

// Supervisor is the hidden coordinator. It picks the next speaker and
// decides whether to end. Its calls are flagged as coordinator calls, are
// never billed, and never reach the transcript. It holds no per-conversation
// state; every failure is logged and treated as "no decision".
type Supervisor struct {
	provider ModelProvider
	agents   AgentRepository
	fallback domain.ModelConfig
	window   int
	log      *logging.Logger
}

// NewSupervisor creates a Supervisor. fallback is the model used when none
// of the conversation's agents resolve; window is how many trailing entries
// the prompts show.
func NewSupervisor(provider ModelProvider, agents AgentRepository, fallback domain.ModelConfig, window int, log *logging.Logger) *Supervisor {
	if window <= 0 {
		window = 5
	}
	return &Supervisor{
		provider: provider,
		agents:   agents,
		fallback: fallback,
		window:   window,
		log:      log.Sub("supervisor"),
	}
}

// SelectNext asks the coordinator model who should speak next. It returns
// one of agentIDs, or "" when the reply names nobody.
func (s *Supervisor) SelectNext(ctx context.Context, log []domain.Message, agentIDs []string, userID string) string {
	return s.selectNext(ctx, log, agentIDs, s.resolve(ctx, agentIDs, userID), userID)
}

// selectNext is SelectNext over already resolved candidates.
func (s *Supervisor) selectNext(ctx context.Context, log []domain.Message, agentIDs []string, candidates map[string]domain.AgentDescriptor, userID string) (next string) {
	defer recoverDecision(s.log, "select", &next, "")

	prompt := buildSelectPrompt(agentIDs, candidates, lastN(log, s.window))

	reply, err := s.provider.Complete(ctx,
		[]llm.Message{{Role: llm.RoleUser, Content: prompt}},
		"You are the hidden moderator of a group chat. You never take part in it.",
		s.modelFor(agentIDs, candidates),
		llm.CallOptions{Coordinator: true, UserID: userID})
	if err != nil {
		s.log.Warn().Err(err).Msg("speaker selection failed")
		return ""
	}

	next = parseSelection(reply, agentIDs)
	if next == "" {
		s.log.Debug().Str("reply", reply).Msg("no agent in selection reply")
	}
	return next
}

// ShouldEnd reports whether the conversation should stop. It is always true
// once maxTurnsReached and always false for logs shorter than three entries.
func (s *Supervisor) ShouldEnd(ctx context.Context, log []domain.Message, maxTurnsReached bool, agentIDs []string, userID string) bool {
	if maxTurnsReached || len(log) < minEndLog {
		return maxTurnsReached
	}
	return s.shouldEnd(ctx, log, false, agentIDs, s.resolve(ctx, agentIDs, userID), userID)
}

// shouldEnd is ShouldEnd over already resolved candidates.
func (s *Supervisor) shouldEnd(ctx context.Context, log []domain.Message, maxTurnsReached bool, agentIDs []string, candidates map[string]domain.AgentDescriptor, userID string) (end bool) {
	if maxTurnsReached {
		return true
	}
	if len(log) < minEndLog {
		return false
	}
	defer recoverDecision(s.log, "should_end", &end, false)

	reply, err := s.provider.Complete(ctx,
		[]llm.Message{{Role: llm.RoleUser, Content: buildEndPrompt(lastN(log, s.window))}},
		"You are the hidden moderator of a group chat. Answer only yes or no.",
		s.modelFor(agentIDs, candidates),
		llm.CallOptions{Coordinator: true, UserID: userID})
	if err != nil {
		s.log.Warn().Err(err).Msg("end decision failed")
		return false
	}
	return strings.Contains(strings.ToLower(strings.TrimSpace(reply)), "yes")
}

// recoverDecision turns a panic in a coordinator call into the given no-decision value.
func recoverDecision[T any](log *logging.Logger, op string, out *T, zero T) {
	if r := recover(); r != nil {
		log.Error().Str("op", op).Interface("panic", r).Msg("coordinator call panicked")
		*out = zero
	}
}

// resolve looks up every agent id, skipping those that fail.
func (s *Supervisor) resolve(ctx context.Context, agentIDs []string, userID string) map[string]domain.AgentDescriptor {
	out := make(map[string]domain.AgentDescriptor, len(agentIDs))
	for _, id := range agentIDs {
		a, err := s.agents.Get(ctx, id, userID)
		if err != nil {
			s.log.Debug().Err(err).Str("agentId", id).Msg("agent lookup failed")
			continue
		}
		out[id] = a
	}
	return out
}

// modelFor returns the first resolvable agent's model config in agentIDs
// order, or the fallback.
func (s *Supervisor) modelFor(agentIDs []string, resolved map[string]domain.AgentDescriptor) domain.ModelConfig {
	for _, id := range agentIDs {
		if a, ok := resolved[id]; ok && !a.Model.IsZero() {
			return a.Model
		}
	}
	return s.fallback
}

func buildSelectPrompt(agentIDs []string, resolved map[string]domain.AgentDescriptor, recent []domain.Message) string {
	var b strings.Builder

	b.WriteString("Choose which participant should speak next in this group chat.\n\n")
	b.WriteString("Participants:\n")
	for i, id := range agentIDs {
		a, ok := resolved[id]
		if !ok {
			fmt.Fprintf(&b, "agent_%d: id=%s\n", i+1, id)
			continue
		}
		fmt.Fprintf(&b, "agent_%d: id=%s, name=%s", i+1, id, a.DisplayName())
		if a.Expertise != "" {
			fmt.Fprintf(&b, ", expertise=%s", a.Expertise)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nRecent messages:\n")
	b.WriteString(RenderWindow(recent))
	b.WriteString("\n\n")

	b.WriteString("Pick exactly one participant who can meaningfully continue from the last speaker, ")
	b.WriteString("adding something new instead of repeating them.\n")
	b.WriteString("Reply with the chosen participant's id and nothing else.\n")
	return b.String()
}

func buildEndPrompt(recent []domain.Message) string {
	var b strings.Builder
	b.WriteString("Recent messages of a group chat:\n")
	b.WriteString(RenderWindow(recent))
	b.WriteString("\n\n")
	b.WriteString("Has the conversation reached a natural end, or has the user asked to stop? ")
	b.WriteString("Answer with a single word: yes or no.\n")
	return b.String()
}

var (
	ordinalAgentPattern = regexp.MustCompile(`(?i)\bagent[_\s-]?(\d+)\b`)
	bareNumberPattern   = regexp.MustCompile(`\b(\d+)\b`)
)

// parseSelection maps a coordinator reply to an agent id. It tries a
// case-insensitive literal id match, longest ids first so that "agent10"
// wins over "agent1", then a 1-based ordinal written as agent_N or N.
func parseSelection(reply string, agentIDs []string) string {
	lower := strings.ToLower(reply)

	byLength := make([]string, len(agentIDs))
	copy(byLength, agentIDs)
	sort.SliceStable(byLength, func(i, j int) bool { return len(byLength[i]) > len(byLength[j]) })
	for _, id := range byLength {
		if id != "" && strings.Contains(lower, strings.ToLower(id)) {
			return id
		}
	}

	for _, re := range []*regexp.Regexp{ordinalAgentPattern, bareNumberPattern} {
		m := re.FindStringSubmatch(reply)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err == nil && n >= 1 && n <= len(agentIDs) {
			return agentIDs[n-1]
		}
	}
	return ""
}
