package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SyntheticArbOpportunity is an immutable point-in-time detection result.
// Statistical quantities stay float64; money amounts are decimals.
type SyntheticArbOpportunity struct {
	ID                string          `json:"id"`
	PrimaryTick       MarketTick      `json:"primary_tick"`
	HedgeTick         MarketTick      `json:"hedge_tick"`
	Mispricing        float64         `json:"mispricing"` // z-score of the residual
	ExpectedValue     decimal.Decimal `json:"expected_value"`
	HedgeRatio        float64         `json:"hedge_ratio"`
	RequiredHedgeSize decimal.Decimal `json:"required_hedge_size"`
	TailRisk          float64         `json:"tail_risk"` // 0-100 scale
	Confidence        float64         `json:"confidence"`
	Correlation       float64         `json:"correlation"`
	DetectedAt        time.Time       `json:"detected_at"`
}

// Join strategies accepted by ProcessingConfig.JoinStrategy.
const (
	JoinLockstep = "lockstep"
	JoinBuffered = "buffered"
)

// ProcessingConfig holds the operator-tunable thresholds of a processor
// instance. Everything else (z-score threshold, edge floor, exposure tiers)
// is a constructor default on the component that owns it.
type ProcessingConfig struct {
	MaxLatencyDeltaMs int64           `mapstructure:"max_latency_delta_ms"`
	MinConfidence     float64         `mapstructure:"min_confidence"`
	MinCorrelation    float64         `mapstructure:"min_correlation"`
	MaxPositionSize   decimal.Decimal `mapstructure:"max_position_size"`
	EnableExecution   bool            `mapstructure:"enable_execution"`
	JoinStrategy      string          `mapstructure:"join_strategy"`
	ExecutionTimeout  time.Duration   `mapstructure:"execution_timeout"`
}

// ProcessingStats tracks the lifetime counters of one processor instance.
// Only the processor mutates it; consumers receive copies.
type ProcessingStats struct {
	PairsProcessed        int64           `json:"pairs_processed"`
	OpportunitiesDetected int64           `json:"opportunities_detected"`
	OpportunitiesExecuted int64           `json:"opportunities_executed"`
	TotalPnL              decimal.Decimal `json:"total_pnl"`
	AvgProcessingLatency  time.Duration   `json:"avg_processing_latency"`
	RelationshipUpdates   int64           `json:"relationship_updates"`
	ProcessingErrors      int64           `json:"processing_errors"`
	StartedAt             time.Time       `json:"started_at"`
	FinishedAt            time.Time       `json:"finished_at"`
}
