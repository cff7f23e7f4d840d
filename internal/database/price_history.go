package database

import (
	"context"
	"fmt"
	"time"

	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// UpsertPriceSnapshot records the latest observed price of a symbol for a day
func (db *DB) UpsertPriceSnapshot(ctx context.Context, p *models.PriceSnapshot) error {
	query := `
		INSERT INTO price_history (symbol, date, price, prev_close, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (symbol, date) DO UPDATE SET
			price = EXCLUDED.price,
			prev_close = EXCLUDED.prev_close,
			source = EXCLUDED.source
		RETURNING id
	`
	now := time.Now()
	p.Date = truncateDay(p.Date)

	err := db.conn.QueryRowContext(ctx, query,
		p.Symbol, p.Date, p.Price, p.PrevClose, p.Source, now,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert price snapshot: %w", err)
	}
	p.CreatedAt = now
	return nil
}

// GetPriceHistory retrieves daily snapshots of a symbol since the given day, oldest first
func (db *DB) GetPriceHistory(ctx context.Context, symbol string, since time.Time) ([]*models.PriceSnapshot, error) {
	query := `
		SELECT id, symbol, date, price, prev_close, source, created_at
		FROM price_history
		WHERE symbol = $1 AND date >= $2
		ORDER BY date ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, symbol, truncateDay(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	history := []*models.PriceSnapshot{}
	for rows.Next() {
		var p models.PriceSnapshot
		if err := rows.Scan(&p.ID, &p.Symbol, &p.Date, &p.Price, &p.PrevClose, &p.Source, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price snapshot: %w", err)
		}
		history = append(history, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate price history: %w", err)
	}
	return history, nil
}

// DeletePriceHistoryOlderThan removes snapshots before the given day
func (db *DB) DeletePriceHistoryOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM price_history WHERE date < $1`, truncateDay(before))
	if err != nil {
		return 0, fmt.Errorf("failed to delete price history: %w", err)
	}
	return result.RowsAffected()
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
