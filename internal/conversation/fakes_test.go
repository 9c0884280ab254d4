package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/soyeahso/huddle/internal/domain"
	"github.com/soyeahso/huddle/internal/llm"
	"github.com/soyeahso/huddle/internal/logging"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

// modelCall is one recorded ModelProvider.Complete call.
type modelCall struct {
	Messages []llm.Message
	System   string
	Model    domain.ModelConfig
	Opts     llm.CallOptions
}

func (c modelCall) prompt() string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[len(c.Messages)-1].Content
}

func (c modelCall) isSelect() bool {
	return c.Opts.Coordinator && strings.Contains(c.prompt(), "Choose which participant")
}

func (c modelCall) isEnd() bool {
	return c.Opts.Coordinator && strings.Contains(c.prompt(), "natural end")
}

// fakeProvider answers every call through reply and records the calls.
type fakeProvider struct {
	mu    sync.Mutex
	calls []modelCall
	reply func(c modelCall) (string, error)
}

func (p *fakeProvider) Complete(_ context.Context, msgs []llm.Message, system string, model domain.ModelConfig, opts llm.CallOptions) (string, error) {
	c := modelCall{Messages: msgs, System: system, Model: model, Opts: opts}
	p.mu.Lock()
	p.calls = append(p.calls, c)
	p.mu.Unlock()
	if p.reply == nil {
		return "", errors.New("no reply scripted")
	}
	return p.reply(c)
}

func (p *fakeProvider) filter(keep func(modelCall) bool) []modelCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []modelCall
	for _, c := range p.calls {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

func (p *fakeProvider) all() []modelCall {
	return p.filter(func(modelCall) bool { return true })
}

func (p *fakeProvider) responderCalls() []modelCall {
	return p.filter(func(c modelCall) bool { return !c.Opts.Coordinator })
}

func (p *fakeProvider) selectCalls() []modelCall {
	return p.filter(modelCall.isSelect)
}

func (p *fakeProvider) endCalls() []modelCall {
	return p.filter(modelCall.isEnd)
}

// scripted builds a provider: selection replies come from pick, end
// decisions from end, and agent replies from respond.
func scripted(pick func(n int) string, end string, respond func(c modelCall) (string, error)) *fakeProvider {
	var mu sync.Mutex
	selects := 0
	return &fakeProvider{reply: func(c modelCall) (string, error) {
		switch {
		case c.isSelect():
			mu.Lock()
			n := selects
			selects++
			mu.Unlock()
			return pick(n), nil
		case c.isEnd():
			return end, nil
		default:
			return respond(c)
		}
	}}
}

func replyWith(body string) func(modelCall) (string, error) {
	return func(modelCall) (string, error) {
		return "LANGUAGE: en\nRESPONSE: " + body, nil
	}
}

// failingStore wraps a memory store and fails Append after n successes.
type failingStore struct {
	*MemoryTranscriptStore
	okAppends int
	appended  int
}

func (f *failingStore) Append(ctx context.Context, id string, msg domain.Message, lang string) error {
	if f.appended >= f.okAppends {
		return errors.New("disk full")
	}
	f.appended++
	return f.MemoryTranscriptStore.Append(ctx, id, msg, lang)
}

var (
	agentAda = domain.AgentDescriptor{
		ID: "a1", Name: "Ada", Expertise: "history",
		Model: domain.ModelConfig{Provider: "anthropic", Name: "claude-ada"},
	}
	agentBo = domain.AgentDescriptor{
		ID: "a2", Name: "Bo", Expertise: "physics",
		Model: domain.ModelConfig{Provider: "ollama", Name: "llama-bo"},
	}
	agentCy = domain.AgentDescriptor{ID: "a3", Name: "Cy", OwnerID: "someone-else"}
)

func testAgents() StaticAgents {
	return NewStaticAgents(agentAda, agentBo, agentCy)
}

var (
	errCredits  = fmt.Errorf("anthropic: %w", llm.ErrCreditExhausted)
	errProvider = &llm.ProviderError{Provider: "anthropic", Code: 500, Message: "internal"}
)

// countingAgents counts repository lookups.
type countingAgents struct {
	StaticAgents
	gets atomic.Int64
}

func (c *countingAgents) Get(ctx context.Context, agentID, userID string) (domain.AgentDescriptor, error) {
	c.gets.Add(1)
	return c.StaticAgents.Get(ctx, agentID, userID)
}
