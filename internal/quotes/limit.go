package quotes

import (
	"context"
	"time"

	"go.uber.org/ratelimit"
)

// limitedProvider spaces calls to an upstream with a fixed request budget.
type limitedProvider struct {
	Provider
	limiter ratelimit.Limiter
}

// WithRateLimit caps p at perMinute calls. Non-positive perMinute returns p unchanged.
func WithRateLimit(p Provider, perMinute int) Provider {
	if perMinute <= 0 {
		return p
	}
	return &limitedProvider{
		Provider: p,
		limiter:  ratelimit.New(perMinute, ratelimit.Per(time.Minute), ratelimit.WithoutSlack),
	}
}

// Quote waits for a slot or ctx, whichever comes first. A slot abandoned on
// cancellation is still spent once it comes due.
func (p *limitedProvider) Quote(ctx context.Context, symbol string) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}

	ready := make(chan struct{})
	go func() {
		p.limiter.Take()
		close(ready)
	}()

	select {
	case <-ready:
	case <-ctx.Done():
		return Quote{}, ctx.Err()
	}
	return p.Provider.Quote(ctx, symbol)
}
