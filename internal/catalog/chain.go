package catalog

import (
	"context"
	"errors"

	"github.com/soyeahso/huddle/internal/domain"
)

// Repository resolves agents for a user.
type Repository interface {
	Get(ctx context.Context, agentID, userID string) (domain.AgentDescriptor, error)
}

// Chain tries each repository in order and returns the first match. Lookup
// errors other than domain.ErrAgentNotFound stop the search.
type Chain []Repository

// NewChain builds a Chain, skipping nil repositories.
func NewChain(repos ...Repository) Chain {
	var c Chain
	for _, r := range repos {
		if r != nil {
			c = append(c, r)
		}
	}
	return c
}

func (c Chain) Get(ctx context.Context, agentID, userID string) (domain.AgentDescriptor, error) {
	for _, r := range c {
		a, err := r.Get(ctx, agentID, userID)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, domain.ErrAgentNotFound) {
			return domain.AgentDescriptor{}, err
		}
	}
	return domain.AgentDescriptor{}, domain.ErrAgentNotFound
}
