// Package portfolio implements the owner-facing holdings operations on top of
// the ledger engine, the database and the quote sources.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/trogers1052/portfolio-ledger/internal/database"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/models"
	"github.com/trogers1052/portfolio-ledger/internal/quotes"
	"github.com/trogers1052/portfolio-ledger/internal/store"
)

// ErrHoldingExists is returned when adding a holding the owner already has
var ErrHoldingExists = errors.New("holding already exists")

const (
	defaultTransactionLimit = 50
	maxTransactionLimit     = 500
	defaultHistoryDays      = 30
	maxHistoryDays          = 3650
)

// Repository is the persistence the service needs
type Repository interface {
	ApplyBuy(ctx context.Context, ownerID string, trade models.Trade, apply database.BuyFunc) (*models.Holding, *models.Transaction, error)
	ListTransactions(ctx context.Context, ownerID, symbol string, limit int) ([]*models.Transaction, error)
	TransactionExists(ctx context.Context, orderID, source string) (bool, error)
	GetPriceHistory(ctx context.Context, symbol string, since time.Time) ([]*models.PriceSnapshot, error)
}

// HoldingsReader serves holdings, possibly from a fallback copy
type HoldingsReader interface {
	Holdings(ctx context.Context, ownerID string) (store.Snapshot, error)
	Invalidate(ctx context.Context, ownerID string) error
}

// Publisher announces holding changes
type Publisher interface {
	PublishHoldingUpdated(ctx context.Context, h *models.Holding, t *models.Transaction) error
}

// Config holds market conventions
type Config struct {
	SymbolSuffix string
}

// BuyRequest is one purchase. OrderID and Source identify broker trades for
// idempotency; manual entries leave OrderID empty.
type BuyRequest struct {
	Symbol     string
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	OrderID    string
	Source     string
	ExecutedAt time.Time
}

// Valuation is a priced, sorted view of a portfolio
type Valuation struct {
	Rows        []ledger.PricedHolding
	Totals      ledger.Totals
	Stale       bool
	Unavailable []string
}

// QuoteLine is the outcome of one requested symbol
type QuoteLine struct {
	Symbol    string
	Quote     quotes.Quote
	Available bool
}

// Service coordinates portfolio reads and writes
type Service struct {
	repo     Repository
	holdings HoldingsReader
	quotes   quotes.Source
	events   Publisher
	cfg      Config
	log      logrus.FieldLogger
}

// New creates a Service. events may be nil.
func New(repo Repository, holdings HoldingsReader, q quotes.Source, events Publisher, cfg Config, log logrus.FieldLogger) *Service {
	return &Service{
		repo:     repo,
		holdings: holdings,
		quotes:   q,
		events:   events,
		cfg:      cfg,
		log:      log.WithField("component", "portfolio"),
	}
}

// NormalizeSymbol applies the configured market suffix
func (s *Service) NormalizeSymbol(raw string) string {
	return models.NormalizeSymbol(raw, s.cfg.SymbolSuffix)
}

// Buy records a purchase and folds it into the owner's holding
func (s *Service) Buy(ctx context.Context, ownerID string, req BuyRequest) (*models.Holding, *models.Transaction, error) {
	symbol, err := s.validate(ownerID, req.Symbol)
	if err != nil {
		return nil, nil, err
	}
	return s.apply(ctx, ownerID, symbol, req, func(existing *ledger.Holding) (ledger.Holding, error) {
		return ledger.ApplyBuy(existing, symbol, req.Quantity, req.Price)
	})
}

// AddHolding creates a holding from an initial purchase. It fails with
// ErrHoldingExists when the owner already holds the symbol.
func (s *Service) AddHolding(ctx context.Context, ownerID, symbol string, shares, avgPrice decimal.Decimal) (*models.Holding, error) {
	sym, err := s.validate(ownerID, symbol)
	if err != nil {
		return nil, err
	}
	req := BuyRequest{Symbol: sym, Quantity: shares, Price: avgPrice, Source: models.SourceManual}
	h, _, err := s.apply(ctx, ownerID, sym, req, func(existing *ledger.Holding) (ledger.Holding, error) {
		if existing != nil {
			return ledger.Holding{}, fmt.Errorf("%w: %s", ErrHoldingExists, sym)
		}
		return ledger.ApplyBuy(nil, sym, shares, avgPrice)
	})
	return h, err
}

// HasTrade reports whether a broker trade was already applied
func (s *Service) HasTrade(ctx context.Context, orderID, source string) (bool, error) {
	return s.repo.TransactionExists(ctx, orderID, source)
}

func (s *Service) validate(ownerID, rawSymbol string) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("%w: owner is required", ledger.ErrInvalidInput)
	}
	symbol := s.NormalizeSymbol(rawSymbol)
	if symbol == "" {
		return "", fmt.Errorf("%w: symbol is required", ledger.ErrInvalidInput)
	}
	return symbol, nil
}

func (s *Service) apply(ctx context.Context, ownerID, symbol string, req BuyRequest, fn database.BuyFunc) (*models.Holding, *models.Transaction, error) {
	trade := models.Trade{
		Symbol:     symbol,
		Quantity:   req.Quantity,
		Price:      req.Price,
		OrderID:    req.OrderID,
		Source:     req.Source,
		ExecutedAt: req.ExecutedAt,
	}
	h, t, err := s.repo.ApplyBuy(ctx, ownerID, trade, fn)
	if err != nil {
		return nil, nil, err
	}

	entry := s.log.WithFields(logrus.Fields{"owner_id": ownerID, "symbol": symbol})
	if err := s.holdings.Invalidate(ctx, ownerID); err != nil {
		entry.WithError(err).Warn("failed to invalidate cached holdings")
	}
	if s.events != nil {
		if err := s.events.PublishHoldingUpdated(ctx, h, t); err != nil {
			entry.WithError(err).Warn("failed to publish holding update")
		}
	}
	entry.WithFields(logrus.Fields{
		"shares":        h.Shares.String(),
		"avg_buy_price": h.AvgBuyPrice.String(),
	}).Info("holding updated")
	return h, t, nil
}

// Holdings lists the owner's holdings. The bool reports a stale fallback read.
func (s *Service) Holdings(ctx context.Context, ownerID string) ([]*models.Holding, bool, error) {
	snap, err := s.holdings.Holdings(ctx, ownerID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load holdings: %w", err)
	}
	return snap.Holdings, snap.Stale, nil
}

// Transactions lists the owner's trade log, newest first
func (s *Service) Transactions(ctx context.Context, ownerID, symbol string, limit int) ([]*models.Transaction, error) {
	if limit <= 0 {
		limit = defaultTransactionLimit
	}
	if limit > maxTransactionLimit {
		limit = maxTransactionLimit
	}
	if symbol != "" {
		symbol = s.NormalizeSymbol(symbol)
	}
	return s.repo.ListTransactions(ctx, ownerID, symbol, limit)
}

// Valuation prices the owner's holdings against live quotes. Holdings without a
// quote stay in the rows with unknown value and are listed in Unavailable.
func (s *Service) Valuation(ctx context.Context, ownerID string, key ledger.SortKey, dir ledger.SortDir) (*Valuation, error) {
	snap, err := s.holdings.Holdings(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings: %w", err)
	}

	symbols := make([]string, 0, len(snap.Holdings))
	for _, h := range snap.Holdings {
		symbols = append(symbols, h.Symbol)
	}
	res := s.quotes.Fetch(ctx, symbols)

	rows, err := ledger.Project(models.LedgerHoldings(snap.Holdings), res.Prices())
	if err != nil {
		return nil, fmt.Errorf("failed to value holdings: %w", err)
	}
	ledger.Sort(rows, key, dir)

	unavailable := res.Unavailable
	if unavailable == nil {
		unavailable = []string{}
	}
	return &Valuation{
		Rows:        rows,
		Totals:      ledger.Aggregate(rows),
		Stale:       snap.Stale,
		Unavailable: unavailable,
	}, nil
}

// Quotes resolves live quotes, keeping the requested order
func (s *Service) Quotes(ctx context.Context, symbols []string) ([]QuoteLine, error) {
	normalized := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, raw := range symbols {
		sym := s.NormalizeSymbol(raw)
		if sym == "" {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		normalized = append(normalized, sym)
	}
	if len(normalized) == 0 {
		return nil, fmt.Errorf("%w: at least one symbol is required", ledger.ErrInvalidInput)
	}

	res := s.quotes.Fetch(ctx, normalized)
	lines := make([]QuoteLine, 0, len(normalized))
	for _, sym := range normalized {
		q, ok := res.Quotes[sym]
		lines = append(lines, QuoteLine{Symbol: sym, Quote: q, Available: ok})
	}
	return lines, nil
}

// PriceHistory returns recorded daily prices for the last days days
func (s *Service) PriceHistory(ctx context.Context, rawSymbol string, days int) ([]*models.PriceSnapshot, error) {
	symbol := s.NormalizeSymbol(rawSymbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ledger.ErrInvalidInput)
	}
	if days <= 0 {
		days = defaultHistoryDays
	}
	if days > maxHistoryDays {
		days = maxHistoryDays
	}
	since := time.Now().AddDate(0, 0, -days)
	return s.repo.GetPriceHistory(ctx, symbol, since)
}
