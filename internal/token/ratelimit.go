package token

import (
	"context"
	"fmt"
	"time"
)

// RateStatus is a snapshot of the core rate budget for a credential.
type RateStatus struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// CheckRateLimit reads the current core budget for the token. The call itself
// does not count against the budget.
func (b *Broker) CheckRateLimit(ctx context.Context, token string) (*RateStatus, error) {
	client, err := b.Client(ctx, token)
	if err != nil {
		return nil, err
	}
	limits, _, err := client.RateLimit.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching rate limit: %w", err)
	}
	core := limits.GetCore()
	if core == nil {
		return nil, fmt.Errorf("rate limit response missing core budget")
	}
	return &RateStatus{
		Limit:     core.Limit,
		Remaining: core.Remaining,
		Reset:     core.Reset.Time,
	}, nil
}
