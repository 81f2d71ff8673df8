package models

import (
	"time"
)

// PairKey builds the lookup key for a directed market pair of a game. The
// detector and the covariance engine must agree on this format.
func PairKey(gameID, primaryMarket, hedgeMarket string) string {
	return gameID + "|" + primaryMarket + "|" + hedgeMarket
}

// SyntheticRelationship is the statistically estimated link between two
// markets of the same game. Instances are snapshots produced by the
// covariance engine and are read-only to consumers.
type SyntheticRelationship struct {
	GameID         string    `json:"game_id"`
	PrimaryMarket  string    `json:"primary_market"`
	HedgeMarket    string    `json:"hedge_market"`
	Correlation    float64   `json:"correlation"`      // clamped to [-1, 1]
	Confidence     float64   `json:"confidence"`       // [0, 1]
	HedgeRatio     float64   `json:"hedge_ratio"`      // hedge price units per primary unit
	ResidualStdDev float64   `json:"residual_std_dev"` // always > 0
	Covariance     float64   `json:"covariance"`
	SampleSize     int       `json:"sample_size"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Key returns the pair key this relationship is registered under.
func (r SyntheticRelationship) Key() string {
	return PairKey(r.GameID, r.PrimaryMarket, r.HedgeMarket)
}

// PairedObservation is one historical aligned observation of a market pair,
// returned by the history collaborator that seeds the covariance engine.
type PairedObservation struct {
	PrimaryPrice float64   `json:"primary_price" db:"primary_price"`
	HedgePrice   float64   `json:"hedge_price" db:"hedge_price"`
	Timestamp    int64     `json:"timestamp" db:"timestamp"`
	RecordedAt   time.Time `json:"recorded_at" db:"recorded_at"`
}
