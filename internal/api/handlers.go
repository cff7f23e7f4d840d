package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/trogers1052/portfolio-ledger/internal/database"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/models"
	"github.com/trogers1052/portfolio-ledger/internal/portfolio"
)

// Portfolio is the service surface the handlers call
type Portfolio interface {
	Buy(ctx context.Context, ownerID string, req portfolio.BuyRequest) (*models.Holding, *models.Transaction, error)
	AddHolding(ctx context.Context, ownerID, symbol string, shares, avgPrice decimal.Decimal) (*models.Holding, error)
	Holdings(ctx context.Context, ownerID string) ([]*models.Holding, bool, error)
	Transactions(ctx context.Context, ownerID, symbol string, limit int) ([]*models.Transaction, error)
	Valuation(ctx context.Context, ownerID string, key ledger.SortKey, dir ledger.SortDir) (*portfolio.Valuation, error)
	Quotes(ctx context.Context, symbols []string) ([]portfolio.QuoteLine, error)
	PriceHistory(ctx context.Context, symbol string, days int) ([]*models.PriceSnapshot, error)
}

// Pinger reports backing store health
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	svc      Portfolio
	db       Pinger
	currency string
	log      logrus.FieldLogger
}

// NewHandler creates a new Handler. db may be nil.
func NewHandler(svc Portfolio, db Pinger, currency string, log logrus.FieldLogger) *Handler {
	return &Handler{
		svc:      svc,
		db:       db,
		currency: currency,
		log:      log.WithField("component", "api"),
	}
}

type holdingsResponse struct {
	Holdings []*models.Holding `json:"holdings"`
	Stale    bool              `json:"stale"`
}

// GetHoldings handles GET /holdings
func (h *Handler) GetHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, stale, err := h.svc.Holdings(r.Context(), OwnerID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, holdingsResponse{Holdings: holdings, Stale: stale})
}

// AddHolding handles POST /holdings
func (h *Handler) AddHolding(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol        string          `json:"symbol"`
		Shares        decimal.Decimal `json:"shares"`
		PurchasePrice decimal.Decimal `json:"purchase_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Symbol) == "" {
		respondMessage(w, http.StatusBadRequest, "symbol is required")
		return
	}

	holding, err := h.svc.AddHolding(r.Context(), OwnerID(r.Context()), req.Symbol, req.Shares, req.PurchasePrice)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, holding)
}

type buyResponse struct {
	Holding     *models.Holding     `json:"holding"`
	Transaction *models.Transaction `json:"transaction"`
}

// Buy handles POST /transactions/buy
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol     string          `json:"symbol"`
		Quantity   decimal.Decimal `json:"quantity"`
		Price      decimal.Decimal `json:"price"`
		ExecutedAt *time.Time      `json:"executed_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Symbol) == "" {
		respondMessage(w, http.StatusBadRequest, "symbol is required")
		return
	}

	buy := portfolio.BuyRequest{
		Symbol:   req.Symbol,
		Quantity: req.Quantity,
		Price:    req.Price,
		Source:   models.SourceManual,
	}
	if req.ExecutedAt != nil {
		buy.ExecutedAt = *req.ExecutedAt
	}

	holding, tx, err := h.svc.Buy(r.Context(), OwnerID(r.Context()), buy)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, buyResponse{Holding: holding, Transaction: tx})
}

// GetTransactions handles GET /transactions
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		respondMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	txs, err := h.svc.Transactions(r.Context(), OwnerID(r.Context()), r.URL.Query().Get("symbol"), limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"transactions": txs})
}

// GetPortfolio handles GET /portfolio
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	key, err := ledger.ParseSortKey(r.URL.Query().Get("sort"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	dir, err := ledger.ParseSortDir(r.URL.Query().Get("dir"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	v, err := h.svc.Valuation(r.Context(), OwnerID(r.Context()), key, dir)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newValuationResponse(v, key, dir, h.currency))
}

type priceLine struct {
	Symbol        string               `json:"symbol"`
	Price         *decimal.Decimal     `json:"price,omitempty"`
	PrevClose     *decimal.NullDecimal `json:"prev_close,omitempty"`
	ChangePercent *decimal.NullDecimal `json:"change_percent,omitempty"`
	Source        string               `json:"source,omitempty"`
	FetchedAt     *time.Time           `json:"fetched_at,omitempty"`
	Error         bool                 `json:"error,omitempty"`
}

// GetPrices handles GET /prices?symbols=A,B
func (h *Handler) GetPrices(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("symbols")
	if strings.TrimSpace(raw) == "" {
		respondMessage(w, http.StatusBadRequest, "symbols is required")
		return
	}

	lines, err := h.svc.Quotes(r.Context(), strings.Split(raw, ","))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	out := make([]priceLine, 0, len(lines))
	for _, l := range lines {
		if !l.Available {
			out = append(out, priceLine{Symbol: l.Symbol, Error: true})
			continue
		}
		q := l.Quote
		change := q.ChangePercent()
		if change.Valid {
			change.Decimal = change.Decimal.Round(2)
		}
		out = append(out, priceLine{
			Symbol:        l.Symbol,
			Price:         &q.Price,
			PrevClose:     &q.PrevClose,
			ChangePercent: &change,
			Source:        q.Source,
			FetchedAt:     &q.FetchedAt,
		})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"prices": out})
}

// GetPriceHistory handles GET /prices/{symbol}/history
func (h *Handler) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days")
	if err != nil {
		respondMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	symbol := mux.Vars(r)["symbol"]
	history, err := h.svc.PriceHistory(r.Context(), symbol, days)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"symbol": symbol, "history": history})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			h.log.WithError(err).Warn("health check failed")
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return n, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidTrade), errors.Is(err, ledger.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrHoldingNotFound):
		return http.StatusNotFound
	case errors.Is(err, portfolio.ErrHoldingExists), errors.Is(err, database.ErrDuplicateTrade):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.WithError(err).WithFields(logrus.Fields{
			"path":       r.URL.Path,
			"request_id": RequestID(r.Context()),
		}).Error("request failed")
		respondMessage(w, status, "internal server error")
		return
	}
	respondMessage(w, status, err.Error())
}

func respondMessage(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
