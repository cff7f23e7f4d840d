package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/portfolio-ledger/internal/database"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/models"
	"github.com/trogers1052/portfolio-ledger/internal/portfolio"
	"github.com/trogers1052/portfolio-ledger/internal/quotes"
)

// stubPortfolio records calls and returns canned results
type stubPortfolio struct {
	owner string
	err   error

	buy       portfolio.BuyRequest
	valuation *portfolio.Valuation
	lines     []portfolio.QuoteLine
	sortKey   ledger.SortKey
	sortDir   ledger.SortDir
	symbol    string
	limit     int
	days      int
}

func (s *stubPortfolio) Buy(_ context.Context, ownerID string, req portfolio.BuyRequest) (*models.Holding, *models.Transaction, error) {
	s.owner, s.buy = ownerID, req
	if s.err != nil {
		return nil, nil, s.err
	}
	h := &models.Holding{ID: 1, OwnerID: ownerID, Symbol: "TCS.NS", Shares: req.Quantity, AvgBuyPrice: req.Price}
	return h, &models.Transaction{ID: 1, Symbol: "TCS.NS", TradeType: models.TradeTypeBuy}, nil
}

func (s *stubPortfolio) AddHolding(_ context.Context, ownerID, symbol string, shares, avg decimal.Decimal) (*models.Holding, error) {
	s.owner, s.symbol = ownerID, symbol
	if s.err != nil {
		return nil, s.err
	}
	return &models.Holding{ID: 1, OwnerID: ownerID, Symbol: symbol, Shares: shares, AvgBuyPrice: avg}, nil
}

func (s *stubPortfolio) Holdings(_ context.Context, ownerID string) ([]*models.Holding, bool, error) {
	s.owner = ownerID
	if s.err != nil {
		return nil, false, s.err
	}
	return []*models.Holding{{ID: 1, OwnerID: ownerID, Symbol: "TCS.NS"}}, true, nil
}

func (s *stubPortfolio) Transactions(_ context.Context, ownerID, symbol string, limit int) ([]*models.Transaction, error) {
	s.owner, s.symbol, s.limit = ownerID, symbol, limit
	return []*models.Transaction{}, s.err
}

func (s *stubPortfolio) Valuation(_ context.Context, ownerID string, key ledger.SortKey, dir ledger.SortDir) (*portfolio.Valuation, error) {
	s.owner, s.sortKey, s.sortDir = ownerID, key, dir
	return s.valuation, s.err
}

func (s *stubPortfolio) Quotes(_ context.Context, symbols []string) ([]portfolio.QuoteLine, error) {
	return s.lines, s.err
}

func (s *stubPortfolio) PriceHistory(_ context.Context, symbol string, days int) ([]*models.PriceSnapshot, error) {
	s.symbol, s.days = symbol, days
	return []*models.PriceSnapshot{}, s.err
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func newTestRouter(t *testing.T, svc *stubPortfolio, db Pinger) http.Handler {
	t.Helper()
	log, _ := test.NewNullLogger()
	return SetupRoutes(NewHandler(svc, db, "INR", log), NewAuthenticator(""), log)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(OwnerIDHeader, "owner-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestHealthCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t, &stubPortfolio{}, stubPinger{}).ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	rec = httptest.NewRecorder()
	newTestRouter(t, &stubPortfolio{}, stubPinger{err: errors.New("down")}).ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMissingOwnerIsUnauthorized(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t, &stubPortfolio{}, nil).ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/holdings", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetHoldings(t *testing.T) {
	svc := &stubPortfolio{}
	rec := do(t, newTestRouter(t, svc, nil), "GET", "/api/v1/holdings", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "owner-1", svc.owner)
	body := decode(t, rec)
	assert.Equal(t, true, body["stale"])
	assert.Len(t, body["holdings"], 1)
}

func TestAddHolding(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		svc := &stubPortfolio{}
		rec := do(t, newTestRouter(t, svc, nil), "POST", "/api/v1/holdings", `{"symbol":"tcs","shares":10,"purchase_price":"3400.50"}`)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "tcs", svc.symbol)
	})

	t.Run("existing holding conflicts", func(t *testing.T) {
		svc := &stubPortfolio{err: portfolio.ErrHoldingExists}
		rec := do(t, newTestRouter(t, svc, nil), "POST", "/api/v1/holdings", `{"symbol":"tcs","shares":10,"purchase_price":1}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("missing symbol", func(t *testing.T) {
		rec := do(t, newTestRouter(t, &stubPortfolio{}, nil), "POST", "/api/v1/holdings", `{"shares":10}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := do(t, newTestRouter(t, &stubPortfolio{}, nil), "POST", "/api/v1/holdings", `{`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestBuy(t *testing.T) {
	t.Run("applies a manual buy", func(t *testing.T) {
		svc := &stubPortfolio{}
		rec := do(t, newTestRouter(t, svc, nil), "POST", "/api/v1/transactions/buy", `{"symbol":"TCS","quantity":5,"price":100.25}`)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, models.SourceManual, svc.buy.Source)
		assert.True(t, d("5").Equal(svc.buy.Quantity))
		assert.True(t, d("100.25").Equal(svc.buy.Price))
		body := decode(t, rec)
		assert.Contains(t, body, "holding")
		assert.Contains(t, body, "transaction")
	})

	errCases := map[string]struct {
		err  error
		want int
	}{
		"invalid trade":   {ledger.ErrInvalidTrade, http.StatusBadRequest},
		"duplicate trade": {database.ErrDuplicateTrade, http.StatusConflict},
		"not found":       {database.ErrHoldingNotFound, http.StatusNotFound},
		"internal":        {errors.New("db down"), http.StatusInternalServerError},
	}
	for name, tc := range errCases {
		t.Run(name, func(t *testing.T) {
			svc := &stubPortfolio{err: tc.err}
			rec := do(t, newTestRouter(t, svc, nil), "POST", "/api/v1/transactions/buy", `{"symbol":"TCS","quantity":0,"price":1}`)
			assert.Equal(t, tc.want, rec.Code)
		})
	}

	t.Run("internal errors are not leaked", func(t *testing.T) {
		svc := &stubPortfolio{err: errors.New("pq: password authentication failed")}
		rec := do(t, newTestRouter(t, svc, nil), "POST", "/api/v1/transactions/buy", `{"symbol":"TCS","quantity":1,"price":1}`)
		assert.NotContains(t, rec.Body.String(), "password")
	})
}

func TestGetTransactions(t *testing.T) {
	svc := &stubPortfolio{}
	h := newTestRouter(t, svc, nil)

	rec := do(t, h, "GET", "/api/v1/transactions?symbol=TCS&limit=20", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "TCS", svc.symbol)
	assert.Equal(t, 20, svc.limit)

	rec = do(t, h, "GET", "/api/v1/transactions?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPortfolio(t *testing.T) {
	rows, err := ledger.Project([]ledger.Holding{
		{Symbol: "TCS.NS", Shares: d("10"), AvgBuyPrice: d("100")},
		{Symbol: "GONE.NS", Shares: d("1"), AvgBuyPrice: d("50")},
	}, ledger.Quotes{"TCS.NS": d("120")})
	require.NoError(t, err)

	svc := &stubPortfolio{valuation: &portfolio.Valuation{
		Rows:        rows,
		Totals:      ledger.Aggregate(rows),
		Unavailable: []string{"GONE.NS"},
	}}
	h := newTestRouter(t, svc, nil)

	t.Run("defaults to gainPct desc", func(t *testing.T) {
		rec := do(t, h, "GET", "/api/v1/portfolio", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, ledger.SortByGainPct, svc.sortKey)
		assert.Equal(t, ledger.Desc, svc.sortDir)

		body := decode(t, rec)
		holdings := body["holdings"].([]interface{})
		require.Len(t, holdings, 2)

		priced := holdings[0].(map[string]interface{})
		assert.Equal(t, "TCS.NS", priced["symbol"])
		assert.Equal(t, "20", priced["gain_pct"])
		display := priced["display"].(map[string]interface{})
		assert.Equal(t, "20.00%", display["gain_pct"])
		assert.NotEqual(t, unknownDisplay, display["current_value"])

		unpriced := holdings[1].(map[string]interface{})
		assert.Nil(t, unpriced["current_price"])
		assert.Nil(t, unpriced["gain_pct"])
		assert.Equal(t, unknownDisplay, unpriced["display"].(map[string]interface{})["current_value"])

		totals := body["totals"].(map[string]interface{})
		assert.Equal(t, true, totals["partial"])
		assert.Equal(t, float64(1), totals["unpriced_count"])
		assert.Equal(t, []interface{}{"GONE.NS"}, body["unavailable"])
	})

	t.Run("explicit sort", func(t *testing.T) {
		rec := do(t, h, "GET", "/api/v1/portfolio?sort=symbol&dir=ASC", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, ledger.SortBySymbol, svc.sortKey)
		assert.Equal(t, ledger.Asc, svc.sortDir)
	})

	t.Run("unknown sort key", func(t *testing.T) {
		rec := do(t, h, "GET", "/api/v1/portfolio?sort=volume", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetPrices(t *testing.T) {
	svc := &stubPortfolio{lines: []portfolio.QuoteLine{
		{Symbol: "TCS.NS", Available: true, Quote: quotes.Quote{
			Symbol: "TCS.NS", Price: d("110"), PrevClose: decimal.NewNullDecimal(d("100")), Source: "yahoo", FetchedAt: time.Now(),
		}},
		{Symbol: "NOPE.NS"},
	}}
	h := newTestRouter(t, svc, nil)

	rec := do(t, h, "GET", "/api/v1/prices?symbols=TCS,NOPE", "")
	require.Equal(t, http.StatusOK, rec.Code)
	prices := decode(t, rec)["prices"].([]interface{})
	require.Len(t, prices, 2)

	first := prices[0].(map[string]interface{})
	assert.Equal(t, "110", first["price"])
	assert.Equal(t, "10", first["change_percent"])
	assert.NotContains(t, first, "error")

	second := prices[1].(map[string]interface{})
	assert.Equal(t, true, second["error"])
	assert.NotContains(t, second, "price")

	rec = do(t, h, "GET", "/api/v1/prices", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPriceHistory(t *testing.T) {
	svc := &stubPortfolio{}
	h := newTestRouter(t, svc, nil)

	rec := do(t, h, "GET", "/api/v1/prices/TCS.NS/history?days=7", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "TCS.NS", svc.symbol)
	assert.Equal(t, 7, svc.days)

	rec = do(t, h, "GET", "/api/v1/prices/TCS.NS/history?days=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "1234.50", formatMoney(d("1234.5"), "NOPE"))
	assert.NotEmpty(t, formatMoney(d("1234.5"), "INR"))
	assert.Equal(t, unknownDisplay, formatNullMoney(decimal.NullDecimal{}, "INR"))
	assert.Equal(t, "-3.33%", formatPercent(d("-3.333")))
}
