package llm

import (
	"context"
	"errors"
	"time"

	"github.com/soyeahso/huddle/internal/domain"
	"github.com/soyeahso/huddle/internal/logging"
)

// CallOptions qualify a single completion call.
type CallOptions struct {
	// Coordinator marks hidden supervisor calls. They are never billed
	// against the user's budget.
	Coordinator bool
	UserID      string
}

// UsageRecord is one completed model call.
type UsageRecord struct {
	UserID       string
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	Coordinator  bool
	At           time.Time
}

// Ledger gates and records model usage per user.
type Ledger interface {
	// Check returns ErrCreditExhausted when the user may not spend more.
	Check(ctx context.Context, userID string) error
	Record(ctx context.Context, rec UsageRecord) error
}

// Provider is the single entry point the conversation engine uses to talk
// to models. It resolves clients through the registry, enforces the ledger
// for billable calls, and retries once on transient failures.
type Provider struct {
	registry *Registry
	ledger   Ledger
	retryGap time.Duration
	log      *logging.Logger
}

// NewProvider creates a Provider. ledger may be nil for unmetered use.
func NewProvider(registry *Registry, ledger Ledger, log *logging.Logger) *Provider {
	return &Provider{
		registry: registry,
		ledger:   ledger,
		retryGap: 500 * time.Millisecond,
		log:      log.Sub("llm.provider"),
	}
}

// Complete runs one completion and returns its text.
func (p *Provider) Complete(ctx context.Context, messages []Message, system string, mc domain.ModelConfig, opts CallOptions) (string, error) {
	client, err := p.registry.Resolve(mc)
	if err != nil {
		return "", err
	}

	billable := !opts.Coordinator && p.ledger != nil
	if billable {
		if err := p.ledger.Check(ctx, opts.UserID); err != nil {
			return "", err
		}
	}

	req := CompletionRequest{
		Model:     mc.Name,
		System:    system,
		Messages:  messages,
		MaxTokens: p.registry.MaxTokens(mc),
	}

	resp, err := client.Complete(ctx, req)
	if err != nil && isRetryable(err) {
		p.log.Warn().
			Str("provider", client.Name()).
			Str("model", mc.Name).
			Err(err).
			Msg("retryable error, retrying once")
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(p.retryGap):
		}
		resp, err = client.Complete(ctx, req)
	}
	if err != nil {
		return "", err
	}

	if p.ledger != nil {
		rec := UsageRecord{
			UserID:       opts.UserID,
			Provider:     client.Name(),
			Model:        mc.Name,
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			Coordinator:  opts.Coordinator,
			At:           time.Now(),
		}
		if err := p.ledger.Record(ctx, rec); err != nil {
			p.log.Error().Err(err).Str("userId", opts.UserID).Msg("failed to record usage")
		}
	}

	p.log.Debug().
		Str("provider", client.Name()).
		Str("model", resp.Model).
		Bool("coordinator", opts.Coordinator).
		Int("tokens", resp.Usage.Total()).
		Dur("duration", resp.Duration).
		Msg("completion finished")

	return resp.Content, nil
}

// IsCreditExhausted reports whether err stems from an exhausted budget.
func IsCreditExhausted(err error) bool {
	return errors.Is(err, ErrCreditExhausted)
}
