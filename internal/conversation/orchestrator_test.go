package conversation

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/huddle/internal/domain"
	"github.com/soyeahso/huddle/internal/hooks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOrchestrator(p ModelProvider, store TranscriptStore, hk *hooks.Manager) *Orchestrator {
	opts := DefaultOptions()
	opts.StreamDelay = 0
	opts.CallTimeout = 0
	opts.CoordinatorModel = fallbackModel
	return NewOrchestrator(testAgents(), store, p, opts, hk, silentLog())
}

func never(int) string { return "" }

func collect(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestRunRejectsFewerThanTwoAgents(t *testing.T) {
	for _, ids := range [][]string{nil, {"a1"}, {"a1", "a1"}, {"a1", " "}} {
		p := scripted(never, "no", replyWith("hi"))
		store := NewMemoryTranscriptStore()
		o := newTestOrchestrator(p, store, nil)

		res := o.Start(context.Background(), Request{ConversationID: "c1", AgentIDs: ids, InitialMessage: "Hi", UserID: "u1"})

		require.Len(t, res.Messages, 1, "ids %v", ids)
		assert.Equal(t, domain.SpeakerSystem, res.Messages[0].Speaker)
		assert.Equal(t, EndInvalid, res.Reason)
		assert.Empty(t, p.all(), "no model calls")
		assert.Nil(t, store.Conversation("c1"), "no transcript writes")
	}
}

func TestRunRejectsUnresolvedAgent(t *testing.T) {
	for _, ids := range [][]string{{"a1", "ghost"}, {"a1", "a3"}} {
		p := scripted(never, "no", replyWith("hi"))
		store := NewMemoryTranscriptStore()
		o := newTestOrchestrator(p, store, nil)

		msgs := o.Run(context.Background(), Request{ConversationID: "c1", AgentIDs: ids, InitialMessage: "Hi", UserID: "u1"})

		require.Len(t, msgs, 1)
		assert.Equal(t, domain.SpeakerSystem, msgs[0].Speaker)
		assert.Contains(t, msgs[0].Message, ids[1])
		assert.Empty(t, p.all())
		assert.Nil(t, store.Conversation("c1"))
	}
}

func TestRunSingleTurnScenario(t *testing.T) {
	// the supervisor never wants to stop, yet maxTurns=1 ends after one commit
	p := scripted(func(int) string { return "a2" }, "no", replyWith("Hello!"))
	store := NewMemoryTranscriptStore()
	o := newTestOrchestrator(p, store, nil)

	res := o.Start(context.Background(), Request{
		ConversationID: "c1", AgentIDs: []string{"a1", "a2"}, InitialMessage: "Hi", MaxTurns: 1, UserID: "u1",
	})

	assert.Equal(t, EndMaxTurns, res.Reason)
	assert.Equal(t, 1, res.Turns)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, "Hi", res.Messages[0].Message)
	assert.Equal(t, "Bo", res.Messages[1].Speaker)
	assert.Equal(t, "Hello!", res.Messages[1].Message)

	conv := store.Conversation("c1")
	require.NotNil(t, conv)
	assert.Equal(t, "u1", conv.OwnerID)
	require.Len(t, conv.Messages, 2)
	assert.Len(t, p.responderCalls(), 1)
	assert.Empty(t, p.endCalls(), "max turns needs no coordinator call")
}

func TestRunNeverExceedsMaxTurns(t *testing.T) {
	for _, n := range []int{1, 2, 5, 7} {
		p := scripted(never, "no", replyWith("more"))
		o := newTestOrchestrator(p, NewMemoryTranscriptStore(), nil)

		res := o.Start(context.Background(), Request{
			ConversationID: "c", AgentIDs: []string{"a1", "a2"}, InitialMessage: "go", MaxTurns: n, UserID: "u1",
		})
		assert.Equal(t, n, res.Turns)
		assert.Len(t, p.responderCalls(), n, "maxTurns=%d", n)
		assert.Equal(t, EndMaxTurns, res.Reason)
	}
}

func TestRunRoundRobinFallback(t *testing.T) {
	p := scripted(func(int) string { return "I cannot decide" }, "no", replyWith("ok"))
	o := newTestOrchestrator(p, NewMemoryTranscriptStore(), nil)

	res := o.Start(context.Background(), Request{
		ConversationID: "c", AgentIDs: []string{"a1", "a2"}, InitialMessage: "go", MaxTurns: 4, UserID: "u1",
	})

	var speakers []string
	for _, m := range res.Messages[1:] {
		speakers = append(speakers, m.AgentID)
	}
	assert.Equal(t, []string{"a1", "a2", "a1", "a2"}, speakers)
}

func TestRunFollowsSupervisorSelection(t *testing.T) {
	picks := []string{"a2", "agent_2", "1"}
	p := scripted(func(n int) string { return picks[n] }, "no", replyWith("ok"))
	o := newTestOrchestrator(p, NewMemoryTranscriptStore(), nil)

	res := o.Start(context.Background(), Request{
		ConversationID: "c", AgentIDs: []string{"a1", "a2"}, InitialMessage: "go", MaxTurns: 3, UserID: "u1",
	})

	var speakers []string
	for _, m := range res.Messages[1:] {
		speakers = append(speakers, m.AgentID)
	}
	assert.Equal(t, []string{"a2", "a2", "a1"}, speakers)
}

func TestRunCommitsParsedLanguageAndBody(t *testing.T) {
	p := scripted(never, "no", func(modelCall) (string, error) { return "LANGUAGE: es\nRESPONSE: Hola", nil })
	store := NewMemoryTranscriptStore()
	o := newTestOrchestrator(p, store, nil)

	o.Run(context.Background(), Request{ConversationID: "c", AgentIDs: []string{"a1", "a2"}, InitialMessage: "Hi", MaxTurns: 1, UserID: "u1"})

	conv := store.Conversation("c")
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "Hola", conv.Messages[1].Content)
	assert.Equal(t, "es", conv.Messages[1].Language)
	assert.Equal(t, domain.RoleAssistant, conv.Messages[1].Role)
}

func TestRunKeepsRawReplyWithoutMarkers(t *testing.T) {
	raw := "No markers here, just talk."
	p := scripted(never, "no", func(modelCall) (string, error) { return raw, nil })
	store := NewMemoryTranscriptStore()
	o := newTestOrchestrator(p, store, nil)

	o.Run(context.Background(), Request{ConversationID: "c", AgentIDs: []string{"a1", "a2"}, InitialMessage: "Hi", MaxTurns: 1, UserID: "u1"})

	msg := store.Conversation("c").Messages[1]
	assert.Equal(t, raw, msg.Content)
	assert.Equal(t, "en", msg.Language)
}

func TestRunFreshSessionHonorsSupervisor(t *testing.T) {
	p := scripted(never, "yes", replyWith("done"))
	o := newTestOrchestrator(p, NewMemoryTranscriptStore(), nil)

	res := o.Start(context.Background(), Request{
		ConversationID: "c", AgentIDs: []string{"a1", "a2"}, InitialMessage: "Hi", MaxTurns: 10, UserID: "u1",
	})

	// after turn 1 the log has two entries, too short to ask; after turn 2 the supervisor ends it
	assert.Equal(t, EndSupervisor, res.Reason)
	assert.Equal(t, 2, res.Turns)
	assert.Len(t, p.endCalls(), 1)
}

func TestRunFreshSessionIgnoresMentionsOfEnding(t *testing.T) {
	for _, opening := range []string{
		"My weekend conversation with Sam went badly, thoughts?",
		"Which /endpoint should our API expose?",
		"Should the backend stop polling?",
	} {
		t.Run(opening, func(t *testing.T) {
			p := scripted(never, "no", replyWith("go on"))
			o := newTestOrchestrator(p, NewMemoryTranscriptStore(), nil)

			res := o.Start(context.Background(), Request{
				ConversationID: "c", AgentIDs: []string{"a1", "a2"}, InitialMessage: opening, MaxTurns: 4, UserID: "u1",
			})

			assert.Equal(t, EndMaxTurns, res.Reason)
			assert.Equal(t, 4, res.Turns)
			// asked after turns 2 and 3; turn 4 hits the limit first
			assert.Len(t, p.endCalls(), 2)
		})
	}
}

func TestRunFreshSessionEndsOnStopCommand(t *testing.T) {
	p := scripted(never, "no", replyWith("ok"))
	o := newTestOrchestrator(p, NewMemoryTranscriptStore(), nil)

	res := o.Start(context.Background(), Request{
		ConversationID: "c", AgentIDs: []string{"a1", "a2"}, InitialMessage: "Thanks all. /stop", MaxTurns: 5, UserID: "u1",
	})

	assert.Equal(t, EndStopSignal, res.Reason)
	assert.Equal(t, 1, res.Turns)
}

func TestRunResolvesAgentsOnce(t *testing.T) {
	agents := &countingAgents{StaticAgents: testAgents()}
	p := scripted(never, "no", replyWith("more"))
	opts := DefaultOptions()
	opts.StreamDelay = 0
	opts.CallTimeout = 0
	opts.CoordinatorModel = fallbackModel
	o := NewOrchestrator(agents, NewMemoryTranscriptStore(), p, opts, nil, silentLog())

	res := o.Start(context.Background(), Request{
		ConversationID: "c", AgentIDs: []string{"a1", "a2"}, InitialMessage: "Hi", MaxTurns: 5, UserID: "u1",
	})

	require.Equal(t, EndMaxTurns, res.Reason)
	assert.NotEmpty(t, p.selectCalls())
	assert.NotEmpty(t, p.endCalls())
	assert.Equal(t, int64(2), agents.gets.Load())
}

func TestRunContinuationScenario(t *testing.T) {
	store := NewMemoryTranscriptStore()
	ts := time.Now().Add(-time.Hour)
	store.Seed("c", "u1",
		domain.Message{Role: domain.RoleUser, Content: "First question", Speaker: "User", Timestamp: ts},
		domain.Message{Role: domain.RoleAssistant, Content: "Answer one", Speaker: "Ada", AgentID: "a1", Timestamp: ts},
		domain.Message{Role: domain.RoleUser, Content: "Second question", Speaker: "User", Timestamp: ts},
		domain.Message{Role: domain.RoleAssistant, Content: "Answer two", Speaker: "Bo", AgentID: "a2", Timestamp: ts},
	)

	// the supervisor wants to end every time, but a resumed conversation
	// only stops at max turns or on an explicit command
	p := scripted(never, "yes", replyWith("more"))
	o := newTestOrchestrator(p, store, nil)

	events := collect(o.Stream(context.Background(), Request{
		ConversationID: "c", AgentIDs: []string{"a1", "a2"}, InitialMessage: "Third question", MaxTurns: 3, UserID: "u1",
	}))
	res := o.Start(context.Background(), Request{ConversationID: "c", AgentIDs: []string{"a1", "a2"}, MaxTurns: 1, UserID: "u1"})

	// stream: only new entries are emitted
	var streamed []string
	for _, ev := range events {
		if ev.Type == EventMessage {
			streamed = append(streamed, ev.Message.Message)
		}
	}
	assert.Equal(t, []string{"Third question", "more", "more", "more"}, streamed)
	last := events[len(events)-1]
	require.Equal(t, EventDone, last.Type)
	assert.Equal(t, EndMaxTurns, last.Done.Reason)
	assert.Equal(t, 3, last.Done.Turns)

	// second resume without a new message: visible log starts with all eight persisted entries
	require.Len(t, res.Messages, 9)
	assert.Equal(t, "First question", res.Messages[0].Message)
	assert.Equal(t, "Third question", res.Messages[4].Message)

	conv := store.Conversation("c")
	require.Len(t, conv.Messages, 9, "no persisted entry is duplicated")
	assert.Equal(t, "Third question", conv.Messages[4].Content)
	assert.Equal(t, domain.RoleUser, conv.Messages[4].Role)
}

func TestRunContinuationVisibleLogLength(t *testing.T) {
	store := NewMemoryTranscriptStore()
	store.Seed("c", "u1",
		domain.Message{Role: domain.RoleUser, Content: "q1", Speaker: "User"},
		domain.Message{Role: domain.RoleAssistant, Content: "a1", Speaker: "Ada", AgentID: "a1"},
		domain.Message{Role: domain.RoleUser, Content: "q2", Speaker: "User"},
		domain.Message{Role: domain.RoleAssistant, Content: "a2", Speaker: "Bo", AgentID: "a2"},
	)
	p := scripted(never, "no", replyWith("next"))
	o := newTestOrchestrator(p, store, nil)

	res := o.Start(context.Background(), Request{
		ConversationID: "c", AgentIDs: []string{"a1", "a2"}, InitialMessage: "q3", MaxTurns: 2, UserID: "u1",
	})

	require.Len(t, res.Messages, 4+1+2)
	assert.Equal(t, []string{"q1", "a1", "q2", "a2", "q3"}, messagesOf(res.Messages[:5]))
	assert.Equal(t, domain.SpeakerUser, res.Messages[4].Speaker)

	// the responder saw the whole resumed history
	first := p.responderCalls()[0].prompt()
	assert.Contains(t, first, "User: q1\nAda: a1\nUser: q2\nBo: a2\nUser: q3")
}

func messagesOf(msgs []domain.ConversationMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Message
	}
	return out
}

func TestRunContinuationEndsOnStopSignal(t *testing.T) {
	store := NewMemoryTranscriptStore()
	store.Seed("c", "u1",
		domain.Message{Role: domain.RoleUser, Content: "hello", Speaker: "User"},
		domain.Message{Role: domain.RoleAssistant, Content: "hi", Speaker: "Ada", AgentID: "a1"},
	)
	p := scripted(never, "no", replyWith("bye"))
	o := newTestOrchestrator(p, store, nil)

	res := o.Start(context.Background(), Request{
		ConversationID: "c", AgentIDs: []string{"a1", "a2"}, InitialMessage: "/stop", MaxTurns: 5, UserID: "u1",
	})
	assert.Equal(t, EndStopSignal, res.Reason)
	assert.Equal(t, 1, res.Turns)
}

func TestRunStopsOnCreditExhaustion(t *testing.T) {
	p := scripted(never, "no", func(c modelCall) (string, error) {
		return "", errCredits
	})
	store := NewMemoryTranscriptStore()
	o := newTestOrchestrator(p, store, nil)

	res := o.Start(context.Background(), Request{
		ConversationID: "c", AgentIDs: []string{"a1", "a2"}, InitialMessage: "Hi", MaxTurns: 5, UserID: "u1",
	})

	assert.Equal(t, EndCreditExhausted, res.Reason)
	assert.Equal(t, 1, res.Turns)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, CreditExhaustedMessage, res.Messages[1].Message)
	assert.Len(t, p.selectCalls(), 1, "no SELECT after the exhausted commit")
	assert.Empty(t, p.endCalls(), "no CHECK_END after the exhausted commit")
	assert.Len(t, store.Conversation("c").Messages, 2)
}

func TestRunStopsOnMarkerInReplyBody(t *testing.T) {
	p := scripted(never, "no", replyWith("Sorry, insufficient credits on my side"))
	o := newTestOrchestrator(p, NewMemoryTranscriptStore(), nil)

	res := o.Start(context.Background(), Request{
		ConversationID: "c", AgentIDs: []string{"a1", "a2"}, InitialMessage: "Hi", MaxTurns: 5, UserID: "u1",
	})
	assert.Equal(t, EndCreditExhausted, res.Reason)
	assert.Len(t, p.responderCalls(), 1)
}

func TestRunProviderErrorContinues(t *testing.T) {
	calls := 0
	p := scripted(never, "no", func(modelCall) (string, error) {
		calls++
		if calls == 1 {
			return "", errProvider
		}
		return "LANGUAGE: en\nRESPONSE: back again", nil
	})
	o := newTestOrchestrator(p, NewMemoryTranscriptStore(), nil)

	res := o.Start(context.Background(), Request{
		ConversationID: "c", AgentIDs: []string{"a1", "a2"}, InitialMessage: "Hi", MaxTurns: 2, UserID: "u1",
	})
	require.Len(t, res.Messages, 3)
	assert.Equal(t, ApologyMessage, res.Messages[1].Message)
	assert.Equal(t, "back again", res.Messages[2].Message)
	assert.Equal(t, EndMaxTurns, res.Reason)
}

func TestRunCoordinatorFailureFallsBack(t *testing.T) {
	p := &fakeProvider{reply: func(c modelCall) (string, error) {
		if c.Opts.Coordinator {
			return "", errProvider
		}
		return "LANGUAGE: en\nRESPONSE: fine", nil
	}}
	o := newTestOrchestrator(p, NewMemoryTranscriptStore(), nil)

	res := o.Start(context.Background(), Request{
		ConversationID: "c", AgentIDs: []string{"a1", "a2"}, InitialMessage: "Hi", MaxTurns: 3, UserID: "u1",
	})
	assert.Equal(t, EndMaxTurns, res.Reason)
	for _, m := range res.Messages {
		assert.NotEqual(t, domain.SpeakerSystem, m.Speaker, "coordinator failures are never shown")
	}
	assert.Equal(t, []string{"a1", "a2", "a1"}, []string{res.Messages[1].AgentID, res.Messages[2].AgentID, res.Messages[3].AgentID})
}

func TestRunAttachments(t *testing.T) {
	p := scripted(never, "no", replyWith("read it"))
	store := NewMemoryTranscriptStore()
	o := newTestOrchestrator(p, store, nil)

	res := o.Start(context.Background(), Request{
		ConversationID: "c",
		AgentIDs:       []string{"a1", "a2"},
		InitialMessage: "Summarize this",
		MaxTurns:       1,
		UserID:         "u1",
		Attachments:    []domain.Attachment{{Filename: "plan.md", Content: "step one"}},
	})

	assert.Equal(t, "Summarize this", res.Messages[0].Message, "display keeps the raw text")
	stored := store.Conversation("c").Messages[0].Content
	assert.True(t, strings.HasPrefix(stored, FileContextStart))
	assert.Contains(t, stored, "step one")
	assert.True(t, strings.HasSuffix(stored, "Summarize this"))
	assert.Contains(t, p.responderCalls()[0].prompt(), "step one", "model sees the file context")

	// on resume the block is stripped again for display only
	resumed := o.Start(context.Background(), Request{ConversationID: "c", AgentIDs: []string{"a1", "a2"}, MaxTurns: 1, UserID: "u1"})
	assert.Equal(t, "Summarize this", resumed.Messages[0].Message)
	assert.Equal(t, stored, store.Conversation("c").Messages[0].Content)
}

func TestRunRequiresOpeningMessageForNewConversation(t *testing.T) {
	p := scripted(never, "no", replyWith("x"))
	store := NewMemoryTranscriptStore()
	o := newTestOrchestrator(p, store, nil)

	res := o.Start(context.Background(), Request{ConversationID: "c", AgentIDs: []string{"a1", "a2"}, InitialMessage: "  ", UserID: "u1"})
	require.Len(t, res.Messages, 1)
	assert.Equal(t, EndInvalid, res.Reason)
	assert.Empty(t, p.all())
	assert.Nil(t, store.Conversation("c"))
}

func TestRunRejectsForeignConversation(t *testing.T) {
	store := NewMemoryTranscriptStore()
	store.Seed("c", "owner", domain.Message{Role: domain.RoleUser, Content: "private", Speaker: "User"})
	p := scripted(never, "no", replyWith("x"))
	o := newTestOrchestrator(p, store, nil)

	res := o.Start(context.Background(), Request{ConversationID: "c", AgentIDs: []string{"a1", "a2"}, InitialMessage: "hi", UserID: "intruder"})
	require.Len(t, res.Messages, 1)
	assert.Equal(t, EndInvalid, res.Reason)
	assert.NotContains(t, res.Messages[0].Message, "private")
	assert.Len(t, store.Conversation("c").Messages, 1)
}

func TestRunGeneratesConversationID(t *testing.T) {
	p := scripted(never, "no", replyWith("x"))
	store := NewMemoryTranscriptStore()
	o := newTestOrchestrator(p, store, nil)

	res := o.Start(context.Background(), Request{AgentIDs: []string{"a1", "a2"}, InitialMessage: "hi", MaxTurns: 1, UserID: "u1"})
	require.NotEmpty(t, res.ConversationID)
	assert.NotNil(t, store.Conversation(res.ConversationID))
}

func TestRunAppendFailure(t *testing.T) {
	store := &failingStore{MemoryTranscriptStore: NewMemoryTranscriptStore(), okAppends: 1}
	p := scripted(never, "no", replyWith("lost"))
	o := newTestOrchestrator(p, store, nil)

	res := o.Start(context.Background(), Request{ConversationID: "c", AgentIDs: []string{"a1", "a2"}, InitialMessage: "hi", MaxTurns: 3, UserID: "u1"})
	assert.Equal(t, EndFailed, res.Reason)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, domain.SpeakerSystem, res.Messages[1].Speaker)
	assert.Len(t, p.responderCalls(), 1)
}

func TestStreamEventOrder(t *testing.T) {
	p := scripted(func(n int) string { return []string{"a1", "a2"}[n%2] }, "no", replyWith("hey"))
	o := newTestOrchestrator(p, NewMemoryTranscriptStore(), nil)

	events := collect(o.Stream(context.Background(), Request{
		ConversationID: "c", AgentIDs: []string{"a1", "a2"}, InitialMessage: "Hi", MaxTurns: 2, UserID: "u1",
	}))

	var types []EventType
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []EventType{EventMessage, EventTyping, EventMessage, EventTyping, EventMessage, EventDone}, types)
	assert.Equal(t, "Ada", events[1].Message.Speaker)
	assert.Equal(t, domain.MessageTypeTyping, events[1].Message.MessageType)
	assert.Equal(t, "a2", events[4].Message.AgentID)
}

func TestStreamValidationError(t *testing.T) {
	p := scripted(never, "no", replyWith("x"))
	o := newTestOrchestrator(p, NewMemoryTranscriptStore(), nil)

	events := collect(o.Stream(context.Background(), Request{ConversationID: "c", AgentIDs: []string{"a1"}, InitialMessage: "hi", UserID: "u1"}))
	require.Len(t, events, 2)
	assert.Equal(t, EventError, events[0].Type)
	assert.NotEmpty(t, events[0].Error)
	assert.Equal(t, EventDone, events[1].Type)
	assert.Equal(t, EndInvalid, events[1].Done.Reason)
}

func TestStreamDelayOnlyBetweenTurns(t *testing.T) {
	p := scripted(never, "no", replyWith("x"))
	opts := DefaultOptions()
	opts.StreamDelay = 20 * time.Millisecond
	o := NewOrchestrator(testAgents(), NewMemoryTranscriptStore(), p, opts, nil, silentLog())

	start := time.Now()
	collect(o.Stream(context.Background(), Request{ConversationID: "s", AgentIDs: []string{"a1", "a2"}, InitialMessage: "hi", MaxTurns: 3, UserID: "u1"}))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	start = time.Now()
	o.Run(context.Background(), Request{ConversationID: "b", AgentIDs: []string{"a1", "a2"}, InitialMessage: "hi", MaxTurns: 3, UserID: "u1"})
	assert.Less(t, time.Since(start), 40*time.Millisecond, "batch mode is not paced")
}

func TestStopAndBusy(t *testing.T) {
	release := make(chan struct{})
	generating := make(chan struct{}, 1)
	p := scripted(never, "no", func(modelCall) (string, error) {
		select {
		case generating <- struct{}{}:
		default:
		}
		<-release
		return "LANGUAGE: en\nRESPONSE: slow", nil
	})
	store := NewMemoryTranscriptStore()
	o := newTestOrchestrator(p, store, nil)
	req := Request{ConversationID: "c", AgentIDs: []string{"a1", "a2"}, InitialMessage: "Hi", MaxTurns: 5, UserID: "u1"}

	done := make(chan Result, 1)
	go func() { done <- o.Start(context.Background(), req) }()
	<-generating

	assert.Equal(t, []string{"c"}, o.Active())

	busy := o.Start(context.Background(), req)
	assert.Equal(t, EndBusy, busy.Reason)
	require.Len(t, busy.Messages, 1)

	assert.True(t, o.Stop("c"))
	assert.False(t, o.Stop("unknown"))
	close(release)

	res := <-done
	assert.Equal(t, EndCancelled, res.Reason)
	assert.Equal(t, 1, res.Turns, "the in-flight turn is still committed")
	assert.Len(t, store.Conversation("c").Messages, 2)
	assert.Empty(t, o.Active())
}

func TestConcurrentConversationsDoNotBlockEachOther(t *testing.T) {
	slowRelease := make(chan struct{})
	p := scripted(never, "no", func(c modelCall) (string, error) {
		if strings.Contains(c.prompt(), "slow topic") {
			<-slowRelease
		}
		return "LANGUAGE: en\nRESPONSE: ok", nil
	})
	o := newTestOrchestrator(p, NewMemoryTranscriptStore(), nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.Run(context.Background(), Request{ConversationID: "slow", AgentIDs: []string{"a1", "a2"}, InitialMessage: "slow topic", MaxTurns: 1, UserID: "u1"})
	}()

	fast := o.Start(context.Background(), Request{ConversationID: "fast", AgentIDs: []string{"a1", "a2"}, InitialMessage: "quick", MaxTurns: 2, UserID: "u1"})
	assert.Equal(t, 2, fast.Turns)

	close(slowRelease)
	wg.Wait()
}

func TestRunEmitsHooks(t *testing.T) {
	hk := hooks.NewManager(silentLog())
	var mu sync.Mutex
	var events []string
	var lastEnd map[string]any
	for _, name := range []string{hooks.EventConversationStart, hooks.EventTurnCommitted, hooks.EventConversationEnd} {
		hk.On(name, "test", func(_ context.Context, p hooks.Payload) error {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, p.Event)
			if p.Event == hooks.EventConversationEnd {
				lastEnd = p.Data
			}
			return nil
		})
	}

	p := scripted(never, "no", replyWith("x"))
	o := newTestOrchestrator(p, NewMemoryTranscriptStore(), hk)
	o.Run(context.Background(), Request{ConversationID: "c", AgentIDs: []string{"a1", "a2"}, InitialMessage: "hi", MaxTurns: 2, UserID: "u1"})

	assert.Equal(t, []string{
		hooks.EventConversationStart,
		hooks.EventTurnCommitted, // opening message
		hooks.EventTurnCommitted,
		hooks.EventTurnCommitted,
		hooks.EventConversationEnd,
	}, events)
	assert.Equal(t, string(EndMaxTurns), lastEnd["reason"])

	// rejected requests never start, so they never end either
	events = nil
	o.Run(context.Background(), Request{ConversationID: "d", AgentIDs: []string{"a1"}, InitialMessage: "hi", UserID: "u1"})
	assert.Empty(t, events)
}
