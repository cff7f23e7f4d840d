package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/trogers1052/portfolio-ledger/internal/models"
)

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func insertTransaction(ctx context.Context, tx *sql.Tx, t *models.Transaction) error {
	query := `
		INSERT INTO transactions (
			owner_id, holding_id, symbol, trade_type, quantity, price, total_cost,
			order_id, source, executed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, quantity, price, total_cost
	`
	now := time.Now()
	if t.ExecutedAt.IsZero() {
		t.ExecutedAt = now
	}
	if t.Source == "" {
		t.Source = models.SourceManual
	}

	var orderID sql.NullString
	if t.OrderID != "" {
		orderID = sql.NullString{String: t.OrderID, Valid: true}
	}

	err := tx.QueryRowContext(ctx, query,
		t.OwnerID, t.HoldingID, t.Symbol, t.TradeType, t.Quantity, t.Price, t.TotalCost,
		orderID, t.Source, t.ExecutedAt, now,
	).Scan(&t.ID, &t.Quantity, &t.Price, &t.TotalCost)

	if isUniqueViolation(err) {
		return fmt.Errorf("%w: order %s from %s", ErrDuplicateTrade, t.OrderID, t.Source)
	}
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	t.CreatedAt = now
	return nil
}

func transactionExists(ctx context.Context, q queryRower, orderID, source string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM transactions WHERE order_id = $1 AND source = $2)`
	var exists bool
	if err := q.QueryRowContext(ctx, query, orderID, source).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check transaction existence: %w", err)
	}
	return exists, nil
}

// TransactionExists checks if a trade with the given order id and source was already recorded
func (db *DB) TransactionExists(ctx context.Context, orderID, source string) (bool, error) {
	return transactionExists(ctx, db.conn, orderID, source)
}

// ListTransactions retrieves the trade log of an owner, newest first.
// An empty symbol returns trades for all symbols.
func (db *DB) ListTransactions(ctx context.Context, ownerID, symbol string, limit int) ([]*models.Transaction, error) {
	query := `
		SELECT id, owner_id, holding_id, symbol, trade_type, quantity, price, total_cost,
		       order_id, source, executed_at, created_at
		FROM transactions
		WHERE owner_id = $1 AND ($2::text = '' OR symbol = $2::text)
		ORDER BY executed_at DESC, id DESC
		LIMIT $3
	`
	rows, err := db.conn.QueryContext(ctx, query, ownerID, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	transactions := []*models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		var orderID sql.NullString
		if err := rows.Scan(
			&t.ID, &t.OwnerID, &t.HoldingID, &t.Symbol, &t.TradeType, &t.Quantity, &t.Price, &t.TotalCost,
			&orderID, &t.Source, &t.ExecutedAt, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		if orderID.Valid {
			t.OrderID = orderID.String
		}
		transactions = append(transactions, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return transactions, nil
}
