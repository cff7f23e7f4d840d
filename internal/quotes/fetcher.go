package quotes

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"golang.org/x/sync/errgroup"
)

// Result holds the quotes resolved by a fetch. Symbols no provider could price
// are listed in Unavailable.
type Result struct {
	Quotes      map[string]Quote
	Unavailable []string
}

// Prices returns the engine quote map.
func (r Result) Prices() ledger.Quotes {
	prices := make(ledger.Quotes, len(r.Quotes))
	for sym, q := range r.Quotes {
		prices[sym] = q.Price
	}
	return prices
}

func (r *Result) sortUnavailable() {
	sort.Strings(r.Unavailable)
}

// FetcherConfig tunes retries and fan-out.
type FetcherConfig struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxElapsedTime  time.Duration
	Concurrency     int
}

// Fetcher tries each provider in order for every symbol, retrying transient
// failures with exponential backoff before falling back to the next provider.
type Fetcher struct {
	providers []Provider
	cfg       FetcherConfig
	log       logrus.FieldLogger
}

// NewFetcher creates a Fetcher over providers in priority order
func NewFetcher(cfg FetcherConfig, log logrus.FieldLogger, providers ...Provider) *Fetcher {
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxElapsedTime <= 0 {
		cfg.MaxElapsedTime = 10 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Fetcher{
		providers: providers,
		cfg:       cfg,
		log:       log.WithField("component", "quotes"),
	}
}

// Fetch implements Source. It never fails as a whole; a symbol that no provider
// can price ends up in Result.Unavailable.
func (f *Fetcher) Fetch(ctx context.Context, symbols []string) Result {
	res := Result{Quotes: make(map[string]Quote)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(f.cfg.Concurrency)
	for _, sym := range dedupe(symbols) {
		sym := sym
		g.Go(func() error {
			q, ok := f.resolve(ctx, sym)
			mu.Lock()
			defer mu.Unlock()
			if ok {
				res.Quotes[sym] = q
			} else {
				res.Unavailable = append(res.Unavailable, sym)
			}
			return nil
		})
	}
	_ = g.Wait()

	res.sortUnavailable()
	return res
}

func (f *Fetcher) resolve(ctx context.Context, symbol string) (Quote, bool) {
	for i, p := range f.providers {
		q, err := f.try(ctx, p, symbol)
		if err == nil {
			return q, true
		}

		entry := f.log.WithFields(logrus.Fields{"provider": p.Name(), "symbol": symbol}).WithError(err)
		if i < len(f.providers)-1 {
			entry.Warn("quote provider failed, falling back")
		} else {
			entry.Warn("all quote providers failed")
		}
		if ctx.Err() != nil {
			break
		}
	}
	return Quote{}, false
}

func (f *Fetcher) try(ctx context.Context, p Provider, symbol string) (Quote, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.cfg.InitialInterval
	policy.MaxInterval = f.cfg.InitialInterval * 10

	op := func() (Quote, error) {
		q, err := p.Quote(ctx, symbol)
		if errors.Is(err, ErrQuoteUnavailable) {
			return Quote{}, backoff.Permanent(err)
		}
		return q, err
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(f.cfg.MaxTries),
		backoff.WithMaxElapsedTime(f.cfg.MaxElapsedTime),
	)
}

// dedupe trims, drops empty entries and removes duplicates, keeping first-seen order
func dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Warm fetches symbols from the providers. It lets a bare Fetcher stand in for
// RedisCache when no cache is configured.
func (f *Fetcher) Warm(ctx context.Context, symbols []string) Result {
	return f.Fetch(ctx, symbols)
}
