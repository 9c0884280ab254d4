package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/huddle/internal/domain"
	"github.com/soyeahso/huddle/internal/hooks"
	"github.com/soyeahso/huddle/internal/logging"
)

// ErrConversationBusy is reported when a conversation id already has a
// running loop in this process.
var ErrConversationBusy = errors.New("conversation is already running")

// Options tune the turn loop. Zero fields take DefaultOptions values.
type Options struct {
	MaxTurns         int
	HistoryWindow    int // entries shown to SELECT and GENERATE
	SupervisorWindow int // entries shown in coordinator prompts
	EndSignalWindow  int // entries scanned for explicit end commands
	StreamDelay      time.Duration
	CallTimeout      time.Duration
	CoordinatorModel domain.ModelConfig
}

// DefaultOptions returns the standard loop settings.
func DefaultOptions() Options {
	return Options{
		MaxTurns:         10,
		HistoryWindow:    30,
		SupervisorWindow: 5,
		EndSignalWindow:  3,
		StreamDelay:      time.Second,
		CallTimeout:      2 * time.Minute,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxTurns <= 0 {
		o.MaxTurns = def.MaxTurns
	}
	if o.HistoryWindow <= 0 {
		o.HistoryWindow = def.HistoryWindow
	}
	if o.SupervisorWindow <= 0 {
		o.SupervisorWindow = def.SupervisorWindow
	}
	if o.EndSignalWindow <= 0 {
		o.EndSignalWindow = def.EndSignalWindow
	}
	return o
}

// Request starts or resumes a conversation. An empty ConversationID starts
// a new conversation under a generated id; MaxTurns <= 0 uses the default.
type Request struct {
	ConversationID string              `json:"conversationId"`
	AgentIDs       []string            `json:"agentIds"`
	InitialMessage string              `json:"initialMessage"`
	MaxTurns       int                 `json:"maxTurns,omitempty"`
	UserID         string              `json:"userId"`
	Attachments    []domain.Attachment `json:"attachments,omitempty"`
}

// Result is the outcome of a batch run.
type Result struct {
	ConversationID string                       `json:"conversationId"`
	Messages       []domain.ConversationMessage `json:"messages"`
	Reason         EndReason                    `json:"reason"`
	Turns          int                          `json:"turns"`
}

// Orchestrator owns the turn loop. Each call to Start or Stream runs one
// conversation sequentially; different conversations run independently.
type Orchestrator struct {
	agents      AgentRepository
	transcripts TranscriptStore
	supervisor  *Supervisor
	responder   *Responder
	hooks       *hooks.Manager
	opts        Options
	log         *logging.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewOrchestrator wires an Orchestrator. hk may be nil.
func NewOrchestrator(agents AgentRepository, transcripts TranscriptStore, provider ModelProvider, opts Options, hk *hooks.Manager, log *logging.Logger) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		agents:      agents,
		transcripts: transcripts,
		supervisor:  NewSupervisor(provider, agents, opts.CoordinatorModel, opts.SupervisorWindow, log),
		responder:   NewResponder(provider, log),
		hooks:       hk,
		opts:        opts,
		log:         log.Sub("conversation"),
		active:      make(map[string]context.CancelFunc),
	}
}

// session is the per-call loop state.
type session struct {
	req          Request
	maxTurns     int
	agentIDs     []string
	agents       map[string]domain.AgentDescriptor
	history      []domain.Message             // model facing, as persisted
	visible      []domain.ConversationMessage // display facing
	continuation bool
	streaming    bool
	started      bool
	emit         func(Event)
	log          *logging.Logger
}

// reject replaces the visible log with a single system entry.
func (s *session) reject(text string) {
	m := domain.SystemMessage(text)
	s.visible = []domain.ConversationMessage{m}
	s.emit(errorEvent(m))
}

// fail appends a system entry after a mid-run infrastructure failure.
func (s *session) fail(text string) {
	m := domain.SystemMessage(text)
	s.visible = append(s.visible, m)
	s.emit(errorEvent(m))
}

// Run executes a conversation in batch mode and returns the visible log:
// the display form of every persisted entry followed by the new ones.
// Validation failures return exactly one system entry.
func (o *Orchestrator) Run(ctx context.Context, req Request) []domain.ConversationMessage {
	return o.Start(ctx, req).Messages
}

// Start is Run with the end reason and turn count attached.
func (o *Orchestrator) Start(ctx context.Context, req Request) Result {
	return o.run(ctx, req, false, func(Event) {})
}

// Stream executes a conversation and delivers new entries as events. The
// channel is finite and closes after the done event. If ctx is cancelled
// while nobody is reading, pending events are dropped.
func (o *Orchestrator) Stream(ctx context.Context, req Request) <-chan Event {
	ch := make(chan Event)
	go func() {
		defer close(ch)
		o.run(ctx, req, true, func(ev Event) {
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		})
	}()
	return ch
}

// Stop cancels a running conversation at its next turn boundary. In-flight
// model calls finish first. It reports whether the id was running.
func (o *Orchestrator) Stop(conversationID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	cancel, ok := o.active[conversationID]
	if ok {
		cancel()
	}
	return ok
}

// Active returns the ids of running conversations, sorted.
func (o *Orchestrator) Active() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.active))
	for id := range o.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// acquire registers a running loop for id. The returned release must be called.
func (o *Orchestrator) acquire(ctx context.Context, id string) (context.Context, func(), bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.active[id]; busy {
		return nil, nil, false
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.active[id] = cancel
	return runCtx, func() {
		o.mu.Lock()
		delete(o.active, id)
		o.mu.Unlock()
		cancel()
	}, true
}

func (o *Orchestrator) run(ctx context.Context, req Request, streaming bool, emit func(Event)) Result {
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}
	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = o.opts.MaxTurns
	}

	s := &session{
		req:       req,
		maxTurns:  maxTurns,
		streaming: streaming,
		emit:      emit,
		log:       o.log.With("conversationId", req.ConversationID),
	}

	reason, turns := o.execute(ctx, s)

	s.emit(doneEvent(req.ConversationID, reason, turns))
	s.log.Info().Str("reason", string(reason)).Int("turns", turns).Msg("conversation ended")
	if s.started {
		o.emitHook(ctx, hooks.EventConversationEnd, map[string]any{
			"conversationId": req.ConversationID,
			"userId":         req.UserID,
			"reason":         string(reason),
			"turns":          turns,
		})
	}

	return Result{ConversationID: req.ConversationID, Messages: s.visible, Reason: reason, Turns: turns}
}

func (o *Orchestrator) execute(ctx context.Context, s *session) (EndReason, int) {
	if text, ok := o.validate(ctx, s); !ok {
		s.log.Info().Str("reason", text).Msg("conversation rejected")
		s.reject(text)
		return EndInvalid, 0
	}

	runCtx, release, ok := o.acquire(ctx, s.req.ConversationID)
	if !ok {
		s.log.Warn().Err(ErrConversationBusy).Msg("conversation rejected")
		s.reject("This conversation is already running. Stop it or wait for it to finish before starting it again.")
		return EndBusy, 0
	}
	defer release()

	persisted, err := o.transcripts.GetExisting(runCtx, s.req.ConversationID, s.req.UserID)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load transcript")
		s.fail("The conversation could not be loaded. Please try again later.")
		return EndFailed, 0
	}

	s.continuation = len(persisted) > 0
	s.history = append([]domain.Message(nil), persisted...)
	for _, m := range persisted {
		s.visible = append(s.visible, toDisplay(m))
	}

	opening := strings.TrimSpace(s.req.InitialMessage)
	if !s.continuation {
		if opening == "" {
			s.reject("An opening message is required to start a new conversation.")
			return EndInvalid, 0
		}
		if err := o.transcripts.CreateIfAbsent(runCtx, s.req.ConversationID, s.req.UserID); err != nil {
			if errors.Is(err, domain.ErrConversationOwned) {
				s.reject("This conversation id is already in use.")
				return EndInvalid, 0
			}
			s.log.Error().Err(err).Msg("failed to create transcript")
			s.fail("The conversation could not be created. Please try again later.")
			return EndFailed, 0
		}
	}

	s.started = true
	o.emitHook(runCtx, hooks.EventConversationStart, map[string]any{
		"conversationId": s.req.ConversationID,
		"userId":         s.req.UserID,
		"agentIds":       s.agentIDs,
		"continuation":   s.continuation,
	})
	s.log.Info().
		Bool("continuation", s.continuation).
		Int("persisted", len(persisted)).
		Int("maxTurns", s.maxTurns).
		Strs("agentIds", s.agentIDs).
		Msg("conversation started")

	if opening != "" {
		m := domain.Message{
			Role:      domain.RoleUser,
			Content:   BuildFileContext(s.req.Attachments, opening),
			Timestamp: time.Now(),
			Speaker:   domain.SpeakerUser,
		}
		if err := o.commit(runCtx, s, m, 0); err != nil {
			s.log.Error().Err(err).Msg("failed to store opening message")
			s.fail("Your message could not be saved. Please try again later.")
			return EndFailed, 0
		}
	}

	return o.loop(runCtx, s)
}

// validate resolves every distinct agent id. It returns the user-facing
// reason and false when the request cannot start.
func (o *Orchestrator) validate(ctx context.Context, s *session) (string, bool) {
	seen := make(map[string]bool, len(s.req.AgentIDs))
	for _, id := range s.req.AgentIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		s.agentIDs = append(s.agentIDs, id)
	}
	if len(s.agentIDs) < 2 {
		return "At least two different agents are needed to start a group conversation.", false
	}

	s.agents = make(map[string]domain.AgentDescriptor, len(s.agentIDs))
	for _, id := range s.agentIDs {
		a, err := o.agents.Get(ctx, id, s.req.UserID)
		if err != nil {
			if !errors.Is(err, domain.ErrAgentNotFound) {
				s.log.Error().Err(err).Str("agentId", id).Msg("agent lookup failed")
			}
			return fmt.Sprintf("Agent %q could not be found.", id), false
		}
		s.agents[id] = a
	}
	return "", true
}

// loop runs SELECT, GENERATE, COMMIT and CHECK_END until an end condition.
func (o *Orchestrator) loop(ctx context.Context, s *session) (EndReason, int) {
	turn := 0
	for {
		if turn >= s.maxTurns {
			return EndMaxTurns, turn
		}
		if ctx.Err() != nil {
			return EndCancelled, turn
		}
		if s.streaming && turn > 0 && !sleepContext(ctx, o.opts.StreamDelay) {
			return EndCancelled, turn
		}

		window := lastN(s.history, o.opts.HistoryWindow)

		// SELECT
		callCtx, cancel := o.callContext(ctx)
		nextID := o.supervisor.selectNext(callCtx, window, s.agentIDs, s.agents, s.req.UserID)
		cancel()
		agent, ok := s.agents[nextID]
		if !ok {
			nextID = s.agentIDs[turn%len(s.agentIDs)]
			agent = s.agents[nextID]
			s.log.Debug().Int("turn", turn).Str("agentId", nextID).Msg("round-robin fallback")
		}

		// GENERATE
		s.emit(typingEvent(agent))
		callCtx, cancel = o.callContext(ctx)
		raw := o.responder.Generate(callCtx, agent, window, s.req.UserID)
		cancel()
		language, body := ParseReply(raw)

		// COMMIT
		m := domain.Message{
			Role:      domain.RoleAssistant,
			Content:   body,
			Timestamp: time.Now(),
			Speaker:   agent.DisplayName(),
			AgentID:   agent.ID,
			Language:  language,
		}
		if err := o.commit(ctx, s, m, turn+1); err != nil {
			s.log.Error().Err(err).Int("turn", turn).Msg("failed to store reply")
			s.fail("The conversation could not be saved and has been stopped.")
			return EndFailed, turn
		}
		s.log.Debug().Int("turn", turn).Str("agentId", agent.ID).Str("language", language).Msg("turn committed")

		if isCreditExhausted(body) {
			return EndCreditExhausted, turn + 1
		}

		// CHECK_END
		turn++
		reached := turn >= s.maxTurns
		callCtx, cancel = o.callContext(ctx)
		end := o.supervisor.shouldEnd(callCtx, s.history, reached, s.agentIDs, s.agents, s.req.UserID)
		cancel()
		signal := HasEndSignal(lastN(s.history, o.opts.EndSignalWindow))

		if s.continuation {
			// A resumed conversation only ends on the supervisor's word
			// once it has used its turns or the user asked explicitly.
			end = end && (reached || signal)
		}
		switch {
		case reached:
			return EndMaxTurns, turn
		case signal:
			return EndStopSignal, turn
		case end:
			return EndSupervisor, turn
		}
	}
}

// commit stores an entry and publishes it. Persistence is not cancelled by
// Stop so a generated reply is never lost.
func (o *Orchestrator) commit(ctx context.Context, s *session, m domain.Message, turn int) error {
	if err := o.transcripts.Append(context.WithoutCancel(ctx), s.req.ConversationID, m, m.Language); err != nil {
		return err
	}
	s.history = append(s.history, m)
	dm := toDisplay(m)
	s.visible = append(s.visible, dm)
	s.emit(messageEvent(dm))

	o.emitHook(ctx, hooks.EventTurnCommitted, map[string]any{
		"conversationId": s.req.ConversationID,
		"turn":           turn,
		"role":           string(m.Role),
		"speaker":        dm.Speaker,
		"agentId":        m.AgentID,
		"message":        dm.Message,
		"language":       m.Language,
	})
	return nil
}

// callContext detaches model calls from cancellation so Stop never
// interrupts a generation; CallTimeout still bounds them.
func (o *Orchestrator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if o.opts.CallTimeout > 0 {
		return context.WithTimeout(base, o.opts.CallTimeout)
	}
	return context.WithCancel(base)
}

func (o *Orchestrator) emitHook(ctx context.Context, event string, data map[string]any) {
	if o.hooks == nil {
		return
	}
	o.hooks.Emit(context.WithoutCancel(ctx), event, data)
}

// sleepContext waits for d and reports false if ctx ended first.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
