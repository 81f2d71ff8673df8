package database

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kvasirlabs/syntharb/internal/models"
)

// StoredOpportunity is one persisted opportunity row.
type StoredOpportunity struct {
	ID                string    `json:"id" db:"id"`
	GameID            string    `json:"game_id" db:"game_id"`
	PrimaryMarket     string    `json:"primary_market" db:"primary_market"`
	HedgeMarket       string    `json:"hedge_market" db:"hedge_market"`
	ZScore            float64   `json:"z_score" db:"z_score"`
	ExpectedValue     float64   `json:"expected_value" db:"expected_value"`
	HedgeRatio        float64   `json:"hedge_ratio" db:"hedge_ratio"`
	RequiredHedgeSize float64   `json:"required_hedge_size" db:"required_hedge_size"`
	PositionSize      float64   `json:"position_size" db:"position_size"`
	TailRisk          float64   `json:"tail_risk" db:"tail_risk"`
	Confidence        float64   `json:"confidence" db:"confidence"`
	Correlation       float64   `json:"correlation" db:"correlation"`
	DetectedAt        time.Time `json:"detected_at" db:"detected_at"`
}

// OpportunityRepository stores accepted opportunities for audit and
// offline analysis.
type OpportunityRepository struct {
	pool DatabasePool
}

// NewOpportunityRepository creates an opportunity repository over the
// given pool.
func NewOpportunityRepository(pool DatabasePool) *OpportunityRepository {
	return &OpportunityRepository{pool: pool}
}

// Record inserts one accepted opportunity. Conflicting ids update the
// existing row so retried executions stay idempotent.
func (r *OpportunityRepository) Record(ctx context.Context, opp *models.SyntheticArbOpportunity, positionSize decimal.Decimal) error {
	query := `
		INSERT INTO synthetic_arb_opportunities (
			id, game_id, primary_market, hedge_market, z_score, expected_value,
			hedge_ratio, required_hedge_size, position_size, tail_risk,
			confidence, correlation, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			position_size = EXCLUDED.position_size,
			detected_at = EXCLUDED.detected_at
	`

	_, err := r.pool.Exec(ctx, query,
		opp.ID, opp.PrimaryTick.GameID, opp.PrimaryTick.MarketID, opp.HedgeTick.MarketID,
		opp.Mispricing, opp.ExpectedValue.InexactFloat64(),
		opp.HedgeRatio, opp.RequiredHedgeSize.InexactFloat64(), positionSize.InexactFloat64(),
		opp.TailRisk, opp.Confidence, opp.Correlation, opp.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// RecentOpportunities returns the most recent stored opportunities, newest
// first, for the observability API.
func (r *OpportunityRepository) RecentOpportunities(ctx context.Context, limit int) ([]StoredOpportunity, error) {
	query := `
		SELECT id, game_id, primary_market, hedge_market, z_score, expected_value,
			hedge_ratio, required_hedge_size, position_size, tail_risk,
			confidence, correlation, detected_at
		FROM synthetic_arb_opportunities
		ORDER BY detected_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query opportunities: %w", err)
	}
	defer rows.Close()

	var opportunities []StoredOpportunity
	for rows.Next() {
		var opp StoredOpportunity
		if err := rows.Scan(
			&opp.ID, &opp.GameID, &opp.PrimaryMarket, &opp.HedgeMarket,
			&opp.ZScore, &opp.ExpectedValue, &opp.HedgeRatio, &opp.RequiredHedgeSize,
			&opp.PositionSize, &opp.TailRisk, &opp.Confidence, &opp.Correlation,
			&opp.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan opportunity row: %w", err)
		}
		opportunities = append(opportunities, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating opportunity rows: %w", err)
	}

	return opportunities, nil
}
