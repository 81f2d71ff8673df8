package services

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/kvasirlabs/syntharb/internal/models"
)

// Executor places (or simulates) the primary and hedge orders for an
// accepted opportunity. Implementations are external collaborators; the
// processor treats calls as fire-and-forget with local error containment.
type Executor interface {
	Execute(ctx context.Context, opp *models.SyntheticArbOpportunity, positionSize decimal.Decimal) error
}

// SimulatedExecutor logs would-be orders and always succeeds. It is the
// default execution collaborator when real execution is disabled.
type SimulatedExecutor struct {
	logger *logrus.Logger
}

// NewSimulatedExecutor creates a logging-only executor.
func NewSimulatedExecutor(logger *logrus.Logger) *SimulatedExecutor {
	return &SimulatedExecutor{logger: logger}
}

// Execute logs the simulated order placement.
func (e *SimulatedExecutor) Execute(_ context.Context, opp *models.SyntheticArbOpportunity, positionSize decimal.Decimal) error {
	e.logger.WithFields(logrus.Fields{
		"opportunity_id": opp.ID,
		"game_id":        opp.PrimaryTick.GameID,
		"primary_market": opp.PrimaryTick.MarketID,
		"hedge_market":   opp.HedgeTick.MarketID,
		"z_score":        opp.Mispricing,
		"position_size":  positionSize.String(),
		"hedge_size":     opp.RequiredHedgeSize.String(),
	}).Info("Simulated synthetic arb execution")
	return nil
}

// GameContextProvider supplies optional in-game state for a game. A nil
// return means no context is available and defaults apply.
type GameContextProvider interface {
	GameContext(gameID string) *models.GameContext
}

// OpportunityRecorder persists accepted opportunities for audit. Recording
// failures never interrupt the pipeline.
type OpportunityRecorder interface {
	Record(ctx context.Context, opp *models.SyntheticArbOpportunity, positionSize decimal.Decimal) error
}

// Notifier pushes opportunity alerts to an external channel. Notification
// failures never interrupt the pipeline.
type Notifier interface {
	NotifyOpportunity(ctx context.Context, opp *models.SyntheticArbOpportunity, positionSize decimal.Decimal) error
}
