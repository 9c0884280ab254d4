package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/soyeahso/huddle/internal/config"
	"github.com/soyeahso/huddle/internal/conversation"
	"github.com/soyeahso/huddle/internal/domain"
	"github.com/soyeahso/huddle/internal/llm"
	"github.com/soyeahso/huddle/internal/logging"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token-123"

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

// scriptedModel answers coordinator prompts with "no" and agent prompts
// with a fixed reply. Agent calls block while gate is non-nil and open.
type scriptedModel struct {
	mu      sync.Mutex
	gate    chan struct{}
	started chan struct{}
}

func (m *scriptedModel) Complete(_ context.Context, _ []llm.Message, _ string, _ domain.ModelConfig, opts llm.CallOptions) (string, error) {
	if opts.Coordinator {
		return "no", nil
	}
	m.mu.Lock()
	gate, started := m.gate, m.started
	m.mu.Unlock()
	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}
	return "LANGUAGE: en\nRESPONSE: Nice point", nil
}

type fixture struct {
	srv         *Server
	ts          *httptest.Server
	model       *scriptedModel
	transcripts *conversation.MemoryTranscriptStore
	orch        *conversation.Orchestrator
}

func newFixture(t *testing.T, gw config.GatewayConfig) *fixture {
	t.Helper()
	agents := conversation.NewStaticAgents(
		domain.AgentDescriptor{ID: "a1", Name: "Ada"},
		domain.AgentDescriptor{ID: "a2", Name: "Bo"},
	)
	model := &scriptedModel{}
	transcripts := conversation.NewMemoryTranscriptStore()
	opts := conversation.DefaultOptions()
	opts.StreamDelay = 0
	orch := conversation.NewOrchestrator(agents, transcripts, model, opts, nil, silentLog())

	srv := New(gw, orch, silentLog(), WithTranscripts(transcripts))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &fixture{srv: srv, ts: ts, model: model, transcripts: transcripts, orch: orch}
}

func authedFixture(t *testing.T) *fixture {
	return newFixture(t, config.GatewayConfig{Bind: "loopback", Auth: config.GatewayAuth{Token: testToken}})
}

func (f *fixture) request(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("X-User-ID", "u1")
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}
