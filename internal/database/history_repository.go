package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kvasirlabs/syntharb/internal/models"
)

// DatabasePool is the subset of pgxpool.Pool used by the repositories.
// It allows mock pool implementations in tests.
type DatabasePool interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// HistoryRepository returns bounded windows of historical paired price
// observations for a market pair. It is the concrete history collaborator
// that seeds the covariance engine.
type HistoryRepository struct {
	pool DatabasePool
}

// NewHistoryRepository creates a history repository over the given pool.
func NewHistoryRepository(pool DatabasePool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

// PairedSamples returns up to limit of the most recent paired observations
// for (gameID, primaryMarket, hedgeMarket), oldest first.
func (r *HistoryRepository) PairedSamples(ctx context.Context, gameID, primaryMarket, hedgeMarket string, limit int) ([]models.PairedObservation, error) {
	query := `
		SELECT primary_price, hedge_price, tick_timestamp, recorded_at
		FROM (
			SELECT primary_price, hedge_price, tick_timestamp, recorded_at
			FROM paired_price_history
			WHERE game_id = $1 AND primary_market = $2 AND hedge_market = $3
			ORDER BY tick_timestamp DESC
			LIMIT $4
		) recent
		ORDER BY tick_timestamp ASC
	`

	rows, err := r.pool.Query(ctx, query, gameID, primaryMarket, hedgeMarket, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query paired price history: %w", err)
	}
	defer rows.Close()

	var samples []models.PairedObservation
	for rows.Next() {
		var sample models.PairedObservation
		if err := rows.Scan(&sample.PrimaryPrice, &sample.HedgePrice, &sample.Timestamp, &sample.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan paired observation: %w", err)
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating paired price history: %w", err)
	}

	return samples, nil
}
