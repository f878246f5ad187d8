package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoRate is returned when no observation exists before the requested time.
var ErrNoRate = errors.New("no rate recorded")

// Rate is one observed exchange rate for a trading pair.
type Rate struct {
	Pair       string
	Rate       float64
	ObservedAt time.Time
}

// RateStore persists exchange rate observations so rate variation over time
// survives restarts.
type RateStore struct {
	conn *sql.DB
}

func NewRateStore(conn *sql.DB) *RateStore {
	return &RateStore{conn: conn}
}

// Insert records one observation.
func (s *RateStore) Insert(ctx context.Context, pair string, rate float64, observedAt time.Time) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO crypto_rates (pair, rate, observed_at) VALUES ($1, $2, $3)`,
		pair, rate, observedAt)
	if err != nil {
		return fmt.Errorf("insert rate: %w", err)
	}
	return nil
}

// LatestBefore returns the most recent observation at or before cutoff, or
// ErrNoRate when history does not go back that far.
func (s *RateStore) LatestBefore(ctx context.Context, pair string, cutoff time.Time) (*Rate, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT pair, rate, observed_at FROM crypto_rates
		 WHERE pair = $1 AND observed_at <= $2
		 ORDER BY observed_at DESC LIMIT 1`,
		pair, cutoff)
	var r Rate
	if err := row.Scan(&r.Pair, &r.Rate, &r.ObservedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRate
		}
		return nil, fmt.Errorf("query rate: %w", err)
	}
	return &r, nil
}
