package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/trogers1052/portfolio-ledger/internal/ledger"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// BuyFunc computes the next state of a holding from its locked current state.
// existing is nil when the owner holds no position in the symbol yet.
type BuyFunc func(existing *ledger.Holding) (ledger.Holding, error)

const holdingColumns = `id, owner_id, symbol, shares, avg_buy_price, created_at, updated_at`

// ApplyBuy applies a buy to the (owner, symbol) holding inside one transaction
// and returns the holding as stored.
// The holding row is locked for the duration so concurrent buys on the same
// holding serialize, and the trade is appended to the transaction log before
// commit. A trade whose order id was already recorded returns ErrDuplicateTrade.
func (db *DB) ApplyBuy(ctx context.Context, ownerID string, trade models.Trade, apply BuyFunc) (*models.Holding, *models.Transaction, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if trade.OrderID != "" {
		exists, err := transactionExists(ctx, tx, trade.OrderID, trade.Source)
		if err != nil {
			return nil, nil, err
		}
		if exists {
			return nil, nil, fmt.Errorf("%w: order %s from %s", ErrDuplicateTrade, trade.OrderID, trade.Source)
		}
	}

	h, err := lockHolding(ctx, tx, ownerID, trade.Symbol)
	if err != nil {
		return nil, nil, err
	}

	if h == nil {
		next, err := apply(nil)
		if err != nil {
			return nil, nil, err
		}
		h = &models.Holding{OwnerID: ownerID}
		h.Apply(next)

		inserted, err := insertHolding(ctx, tx, h)
		if err != nil {
			return nil, nil, err
		}
		if !inserted {
			// A concurrent first buy won the insert; merge into its row instead.
			if h, err = lockHolding(ctx, tx, ownerID, trade.Symbol); err != nil {
				return nil, nil, err
			}
			if h == nil {
				return nil, nil, fmt.Errorf("failed to lock holding %s after insert conflict", trade.Symbol)
			}
			if err := mergeHolding(ctx, tx, h, apply); err != nil {
				return nil, nil, err
			}
		}
	} else if err := mergeHolding(ctx, tx, h, apply); err != nil {
		return nil, nil, err
	}

	t := &models.Transaction{
		OwnerID:    ownerID,
		HoldingID:  h.ID,
		Symbol:     h.Symbol,
		TradeType:  models.TradeTypeBuy,
		Quantity:   trade.Quantity,
		Price:      trade.Price,
		TotalCost:  trade.Quantity.Mul(trade.Price),
		OrderID:    trade.OrderID,
		Source:     trade.Source,
		ExecutedAt: trade.ExecutedAt,
	}
	if err := insertTransaction(ctx, tx, t); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return h, t, nil
}

func mergeHolding(ctx context.Context, tx *sql.Tx, h *models.Holding, apply BuyFunc) error {
	current := h.Ledger()
	next, err := apply(&current)
	if err != nil {
		return err
	}
	h.Apply(next)
	return updateHolding(ctx, tx, h)
}

func lockHolding(ctx context.Context, tx *sql.Tx, ownerID, symbol string) (*models.Holding, error) {
	query := `SELECT ` + holdingColumns + `
		FROM holdings
		WHERE owner_id = $1 AND symbol = $2
		FOR UPDATE`

	h, err := scanHolding(tx.QueryRowContext(ctx, query, ownerID, symbol))
	if errors.Is(err, ErrHoldingNotFound) {
		return nil, nil
	}
	return h, err
}

// insertHolding reports false when another transaction already created the row
func insertHolding(ctx context.Context, tx *sql.Tx, h *models.Holding) (bool, error) {
	query := `
		INSERT INTO holdings (owner_id, symbol, shares, avg_buy_price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner_id, symbol) DO NOTHING
		RETURNING id, shares, avg_buy_price
	`
	now := time.Now()
	err := tx.QueryRowContext(ctx, query,
		h.OwnerID, h.Symbol, h.Shares, h.AvgBuyPrice, now, now,
	).Scan(&h.ID, &h.Shares, &h.AvgBuyPrice)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create holding: %w", err)
	}
	h.CreatedAt = now
	h.UpdatedAt = now
	return true, nil
}

// updateHolding writes h and reloads the stored shares and average into it
func updateHolding(ctx context.Context, tx *sql.Tx, h *models.Holding) error {
	query := `
		UPDATE holdings SET shares = $2, avg_buy_price = $3, updated_at = $4
		WHERE id = $1
		RETURNING shares, avg_buy_price
	`
	now := time.Now()
	err := tx.QueryRowContext(ctx, query, h.ID, h.Shares, h.AvgBuyPrice, now).Scan(&h.Shares, &h.AvgBuyPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", ErrHoldingNotFound, h.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update holding: %w", err)
	}
	h.UpdatedAt = now
	return nil
}

// GetHolding retrieves the holding of an owner in a symbol
func (db *DB) GetHolding(ctx context.Context, ownerID, symbol string) (*models.Holding, error) {
	query := `SELECT ` + holdingColumns + `
		FROM holdings
		WHERE owner_id = $1 AND symbol = $2`

	h, err := scanHolding(db.conn.QueryRowContext(ctx, query, ownerID, symbol))
	if errors.Is(err, ErrHoldingNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrHoldingNotFound, symbol)
	}
	return h, err
}

// ListHoldings retrieves all holdings of an owner in creation order
func (db *DB) ListHoldings(ctx context.Context, ownerID string) ([]*models.Holding, error) {
	query := `SELECT ` + holdingColumns + `
		FROM holdings
		WHERE owner_id = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := db.conn.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	holdings := []*models.Holding{}
	for rows.Next() {
		var h models.Holding
		if err := rows.Scan(
			&h.ID, &h.OwnerID, &h.Symbol, &h.Shares, &h.AvgBuyPrice, &h.CreatedAt, &h.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate holdings: %w", err)
	}
	return holdings, nil
}

// ListTrackedSymbols returns every symbol held with a positive quantity by any owner
func (db *DB) ListTrackedSymbols(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT symbol FROM holdings WHERE shares > 0 ORDER BY symbol`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

func scanHolding(row *sql.Row) (*models.Holding, error) {
	var h models.Holding
	err := row.Scan(&h.ID, &h.OwnerID, &h.Symbol, &h.Shares, &h.AvgBuyPrice, &h.CreatedAt, &h.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrHoldingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get holding: %w", err)
	}
	return &h, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
