package database

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

func TestHoldingsRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)
	ctx := context.Background()

	buy := func(t *testing.T, owner, symbol string, qty, price int64) *models.Holding {
		t.Helper()
		trade := models.Trade{
			Symbol:   symbol,
			Quantity: decimal.NewFromInt(qty),
			Price:    decimal.NewFromInt(price),
		}
		h, _, err := testDB.ApplyBuy(ctx, owner, trade, buyOf(trade))
		require.NoError(t, err)
		return h
	}

	t.Run("ApplyBuy creates then merges a holding", func(t *testing.T) {
		testDB.TruncateAll(t)

		first := buy(t, "owner-1", "TCS.NS", 10, 100)
		assert.NotZero(t, first.ID)

		second := buy(t, "owner-1", "TCS.NS", 5, 130)
		assert.Equal(t, first.ID, second.ID)

		stored, err := testDB.GetHolding(ctx, "owner-1", "TCS.NS")
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(15).Equal(stored.Shares))
		assert.True(t, decimal.NewFromInt(110).Equal(stored.AvgBuyPrice))
	})

	t.Run("returned holding matches the stored row", func(t *testing.T) {
		testDB.TruncateAll(t)

		trade := models.Trade{
			Symbol:   "FRAC",
			Quantity: decimal.RequireFromString("0.12345678"),
			Price:    decimal.RequireFromString("10.1234"),
		}
		h, tx, err := testDB.ApplyBuy(ctx, "owner-1", trade, buyOf(trade))
		require.NoError(t, err)

		again := models.Trade{Symbol: "FRAC", Quantity: decimal.RequireFromString("0.3"), Price: decimal.RequireFromString("11")}
		merged, _, err := testDB.ApplyBuy(ctx, "owner-1", again, buyOf(again))
		require.NoError(t, err)

		stored, err := testDB.GetHolding(ctx, "owner-1", "FRAC")
		require.NoError(t, err)
		assert.True(t, trade.Quantity.Equal(h.Shares))
		assert.True(t, trade.Quantity.Mul(trade.Price).Equal(tx.TotalCost))
		assert.True(t, stored.Shares.Equal(merged.Shares))
		assert.True(t, stored.AvgBuyPrice.Equal(merged.AvgBuyPrice))
	})

	t.Run("holdings are scoped per owner", func(t *testing.T) {
		testDB.TruncateAll(t)

		buy(t, "owner-1", "TCS.NS", 10, 100)
		buy(t, "owner-2", "TCS.NS", 1, 500)
		buy(t, "owner-1", "INFY.NS", 8, 1450)

		holdings, err := testDB.ListHoldings(ctx, "owner-1")
		require.NoError(t, err)
		require.Len(t, holdings, 2)
		assert.Equal(t, "TCS.NS", holdings[0].Symbol)
		assert.Equal(t, "INFY.NS", holdings[1].Symbol)

		other, err := testDB.GetHolding(ctx, "owner-2", "TCS.NS")
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(500).Equal(other.AvgBuyPrice))
	})

	t.Run("GetHolding returns ErrHoldingNotFound", func(t *testing.T) {
		testDB.TruncateAll(t)

		_, err := testDB.GetHolding(ctx, "owner-1", "MISSING")
		assert.ErrorIs(t, err, ErrHoldingNotFound)
	})

	t.Run("ListHoldings returns empty slice for new owner", func(t *testing.T) {
		testDB.TruncateAll(t)

		holdings, err := testDB.ListHoldings(ctx, "nobody")
		require.NoError(t, err)
		assert.NotNil(t, holdings)
		assert.Empty(t, holdings)
	})

	t.Run("ListTrackedSymbols is distinct across owners", func(t *testing.T) {
		testDB.TruncateAll(t)

		buy(t, "owner-1", "TCS.NS", 1, 100)
		buy(t, "owner-2", "TCS.NS", 1, 100)
		buy(t, "owner-2", "INFY.NS", 1, 100)

		symbols, err := testDB.ListTrackedSymbols(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"INFY.NS", "TCS.NS"}, symbols)
	})

	t.Run("concurrent buys on one holding do not lose updates", func(t *testing.T) {
		testDB.TruncateAll(t)

		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				trade := models.Trade{Symbol: "RACE", Quantity: decimal.NewFromInt(1), Price: decimal.NewFromInt(100)}
				_, _, err := testDB.ApplyBuy(ctx, "owner-1", trade, buyOf(trade))
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		stored, err := testDB.GetHolding(ctx, "owner-1", "RACE")
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(workers).Equal(stored.Shares))

		txs, err := testDB.ListTransactions(ctx, "owner-1", "RACE", 100)
		require.NoError(t, err)
		assert.Len(t, txs, workers)
	})
}
