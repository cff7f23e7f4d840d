// Package refresh periodically re-prices every tracked symbol.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/trogers1052/portfolio-ledger/internal/models"
	"github.com/trogers1052/portfolio-ledger/internal/quotes"
)

// ErrAlreadyStarted is returned by Start on a running scheduler
var ErrAlreadyStarted = errors.New("scheduler already started")

// SymbolLister lists symbols with an open holding
type SymbolLister interface {
	ListTrackedSymbols(ctx context.Context) ([]string, error)
}

// QuoteWarmer fetches fresh quotes and stores them in the quote cache
type QuoteWarmer interface {
	Warm(ctx context.Context, symbols []string) quotes.Result
}

// HistoryWriter records daily price snapshots
type HistoryWriter interface {
	UpsertPriceSnapshot(ctx context.Context, p *models.PriceSnapshot) error
	DeletePriceHistoryOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// Config controls the refresh cadence. Zero Retention keeps history forever.
type Config struct {
	Interval  time.Duration
	Retention time.Duration
}

// Scheduler runs one refresh loop at a time
type Scheduler struct {
	symbols SymbolLister
	quotes  QuoteWarmer
	history HistoryWriter
	cfg     Config
	log     logrus.FieldLogger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a stopped scheduler. Interval defaults to 30s.
func NewScheduler(symbols SymbolLister, q QuoteWarmer, history HistoryWriter, cfg Config, log logrus.FieldLogger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Scheduler{
		symbols: symbols,
		quotes:  q,
		history: history,
		cfg:     cfg,
		log:     log.WithField("component", "refresh"),
	}
}

// Start runs an immediate refresh followed by one every Interval until ctx is
// cancelled or Stop is called. A scheduler whose loop has exited can be
// started again.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		select {
		case <-s.done:
		default:
			return ErrAlreadyStarted
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)

	s.log.WithField("interval", s.cfg.Interval.String()).Info("price refresh started")
	return nil
}

// Stop cancels the loop and waits for it to exit. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed once a started loop exits
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.WithError(err).Error("price refresh failed")
		}
		select {
		case <-ctx.Done():
			s.log.Info("price refresh stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single refresh pass
func (s *Scheduler) RunOnce(ctx context.Context) error {
	symbols, err := s.symbols.ListTrackedSymbols(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tracked symbols: %w", err)
	}

	if len(symbols) > 0 {
		res := s.quotes.Warm(ctx, symbols)
		recorded := 0
		for _, q := range res.Quotes {
			snap := &models.PriceSnapshot{
				Symbol:    q.Symbol,
				Date:      q.FetchedAt,
				Price:     q.Price,
				PrevClose: q.PrevClose,
				Source:    q.Source,
			}
			if snap.Date.IsZero() {
				snap.Date = time.Now()
			}
			if err := s.history.UpsertPriceSnapshot(ctx, snap); err != nil {
				s.log.WithError(err).WithField("symbol", q.Symbol).Warn("failed to record price")
				continue
			}
			recorded++
		}
		s.log.WithFields(logrus.Fields{
			"symbols":     len(symbols),
			"recorded":    recorded,
			"unavailable": len(res.Unavailable),
		}).Debug("prices refreshed")
	}

	if s.cfg.Retention > 0 {
		removed, err := s.history.DeletePriceHistoryOlderThan(ctx, time.Now().Add(-s.cfg.Retention))
		if err != nil {
			return fmt.Errorf("failed to prune price history: %w", err)
		}
		if removed > 0 {
			s.log.WithField("removed", removed).Info("pruned price history")
		}
	}
	return nil
}
