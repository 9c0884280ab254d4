package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/soyeahso/huddle/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fallbackModel = domain.ModelConfig{Provider: "ollama", Name: "tiny"}

func newTestSupervisor(p ModelProvider) *Supervisor {
	return NewSupervisor(p, testAgents(), fallbackModel, 5, silentLog())
}

func logOf(n int) []domain.Message {
	out := make([]domain.Message, n)
	for i := range out {
		out[i] = domain.Message{Role: domain.RoleAssistant, Speaker: "Ada", Content: "msg"}
	}
	return out
}

func TestParseSelection(t *testing.T) {
	ids := []string{"a1", "a10", "skeptic"}
	tests := []struct {
		reply string
		want  string
	}{
		{"a1", "a1"},
		{"  A10 ", "a10"},
		{"I pick skeptic because they disagree", "skeptic"},
		{"Skeptic.", "skeptic"},
		{"agent_2", "a10"},
		{"Agent 3", "skeptic"},
		{"3", "skeptic"},
		{"1.", "a1"},
		{"agent_7", ""},
		{"0", ""},
		{"nobody", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			assert.Equal(t, tt.want, parseSelection(tt.reply, ids))
		})
	}
}

func TestSelectNext(t *testing.T) {
	p := &fakeProvider{reply: func(modelCall) (string, error) { return "a2", nil }}
	s := newTestSupervisor(p)

	log := logOf(8)
	got := s.SelectNext(context.Background(), log, []string{"a1", "a2"}, "u1")
	assert.Equal(t, "a2", got)

	calls := p.all()
	require.Len(t, calls, 1)
	c := calls[0]
	assert.True(t, c.Opts.Coordinator)
	assert.Equal(t, "u1", c.Opts.UserID)
	assert.Equal(t, agentAda.Model, c.Model, "first resolvable agent's model")
	assert.Contains(t, c.prompt(), "agent_1: id=a1, name=Ada, expertise=history")
	assert.Contains(t, c.prompt(), "agent_2: id=a2, name=Bo, expertise=physics")
	assert.Equal(t, 5, countLines(c.prompt(), "Ada: msg"), "only the last five entries")
}

func countLines(s, line string) int {
	n := 0
	for _, l := range strings.Split(s, "\n") {
		if l == line {
			n++
		}
	}
	return n
}

func TestSelectNextModelFallback(t *testing.T) {
	p := &fakeProvider{reply: func(modelCall) (string, error) { return "ghost-2", nil }}
	s := newTestSupervisor(p)

	// a3 is not visible to u1 and ghost ids never resolve
	got := s.SelectNext(context.Background(), logOf(1), []string{"ghost-1", "ghost-2", "a3"}, "u1")
	assert.Equal(t, "ghost-2", got)
	require.Len(t, p.all(), 1)
	assert.Equal(t, fallbackModel, p.all()[0].Model)
}

func TestSelectNextSwallowsFailures(t *testing.T) {
	p := &fakeProvider{reply: func(modelCall) (string, error) { return "", errors.New("boom") }}
	assert.Equal(t, "", newTestSupervisor(p).SelectNext(context.Background(), logOf(3), []string{"a1", "a2"}, "u1"))

	panicky := &fakeProvider{reply: func(modelCall) (string, error) { panic("provider bug") }}
	assert.Equal(t, "", newTestSupervisor(panicky).SelectNext(context.Background(), logOf(3), []string{"a1", "a2"}, "u1"))
}

func TestShouldEnd(t *testing.T) {
	tests := []struct {
		name       string
		logLen     int
		maxReached bool
		reply      string
		err        error
		want       bool
		wantCalls  int
	}{
		{"max turns reached", 1, true, "no", nil, true, 0},
		{"short log", 2, false, "yes", nil, false, 0},
		{"yes", 3, false, "Yes.", nil, true, 1},
		{"yes with spaces", 4, false, "  YES  ", nil, true, 1},
		{"no", 3, false, "no", nil, false, 1},
		{"error", 3, false, "", errors.New("down"), false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeProvider{reply: func(modelCall) (string, error) { return tt.reply, tt.err }}
			got := newTestSupervisor(p).ShouldEnd(context.Background(), logOf(tt.logLen), tt.maxReached, []string{"a1", "a2"}, "u1")
			assert.Equal(t, tt.want, got)
			assert.Len(t, p.all(), tt.wantCalls)
			for _, c := range p.all() {
				assert.True(t, c.Opts.Coordinator)
			}
		})
	}
}

func TestShouldEndRecoversPanic(t *testing.T) {
	p := &fakeProvider{reply: func(modelCall) (string, error) { panic("nil map") }}
	assert.False(t, newTestSupervisor(p).ShouldEnd(context.Background(), logOf(5), false, []string{"a1", "a2"}, "u1"))
}
