package services

import (
	"math"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/kvasirlabs/syntharb/internal/models"
)

// Rejection reasons reported by RiskManager.Validate.
const (
	RejectLowCorrelation = "correlation below minimum tier"
	RejectExposureCap    = "total exposure exceeds tier cap"
	RejectHighTailRisk   = "tail risk above limit"
)

// ExposureTier caps total exposure for opportunities whose |correlation|
// meets the tier's floor.
type ExposureTier struct {
	MinCorrelation float64
	MaxExposure    float64
}

// RiskManagerConfig holds exposure tiers and sizing parameters. Tiers must
// be ordered by descending MinCorrelation.
type RiskManagerConfig struct {
	Tiers         []ExposureTier
	BaseStake     float64
	MaxTailRisk   float64
	KellyFraction float64 // fraction of full Kelly to deploy
	KellyCap      float64 // hard cap on the bankroll fraction
	MaxBankroll   float64
}

// DefaultRiskManagerConfig returns the standard correlation-tiered limits
// and half-Kelly sizing parameters.
func DefaultRiskManagerConfig() RiskManagerConfig {
	return RiskManagerConfig{
		Tiers: []ExposureTier{
			{MinCorrelation: 0.9, MaxExposure: 50000},
			{MinCorrelation: 0.8, MaxExposure: 25000},
			{MinCorrelation: 0.7, MaxExposure: 10000},
		},
		BaseStake:     1000,
		MaxTailRisk:   5.0,
		KellyFraction: 0.5,
		KellyCap:      0.25,
		MaxBankroll:   100000,
	}
}

// RiskManager validates detected opportunities against exposure and
// tail-risk limits and sizes positions with a covariance-adjusted
// half-Kelly rule.
type RiskManager struct {
	cfg    RiskManagerConfig
	logger *logrus.Logger
}

// NewRiskManager creates a risk manager. Zero-valued config fields fall
// back to defaults.
func NewRiskManager(cfg RiskManagerConfig, logger *logrus.Logger) *RiskManager {
	defaults := DefaultRiskManagerConfig()
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = defaults.Tiers
	}
	if cfg.BaseStake <= 0 {
		cfg.BaseStake = defaults.BaseStake
	}
	if cfg.MaxTailRisk <= 0 {
		cfg.MaxTailRisk = defaults.MaxTailRisk
	}
	if cfg.KellyFraction <= 0 {
		cfg.KellyFraction = defaults.KellyFraction
	}
	if cfg.KellyCap <= 0 {
		cfg.KellyCap = defaults.KellyCap
	}
	if cfg.MaxBankroll <= 0 {
		cfg.MaxBankroll = defaults.MaxBankroll
	}
	return &RiskManager{cfg: cfg, logger: logger}
}

// Validate checks an opportunity against the correlation-tiered exposure
// caps and the tail-risk ceiling. The returned reasons list every failed
// limit for observability; validation rejections are not pipeline errors.
func (rm *RiskManager) Validate(opp *models.SyntheticArbOpportunity) (bool, []string) {
	var reasons []string

	tier, ok := rm.tierFor(math.Abs(opp.Correlation))
	if !ok {
		reasons = append(reasons, RejectLowCorrelation)
	} else {
		exposure := opp.RequiredHedgeSize.InexactFloat64() + rm.cfg.BaseStake
		if exposure > tier.MaxExposure {
			reasons = append(reasons, RejectExposureCap)
		}
	}

	if opp.TailRisk > rm.cfg.MaxTailRisk {
		reasons = append(reasons, RejectHighTailRisk)
	}

	return len(reasons) == 0, reasons
}

// tierFor returns the first tier, scanning descending, whose floor the
// absolute correlation meets.
func (rm *RiskManager) tierFor(absCorrelation float64) (ExposureTier, bool) {
	for _, tier := range rm.cfg.Tiers {
		if absCorrelation >= tier.MinCorrelation {
			return tier, true
		}
	}
	return ExposureTier{}, false
}

// PositionSize computes a bounded stake from a covariance-adjusted
// half-Kelly rule. The result is never negative and never exceeds KellyCap
// of maxBankroll. Pass maxBankroll <= 0 to use the configured bankroll.
func (rm *RiskManager) PositionSize(opp *models.SyntheticArbOpportunity, maxBankroll float64) decimal.Decimal {
	if maxBankroll <= 0 {
		maxBankroll = rm.cfg.MaxBankroll
	}

	edge := opp.ExpectedValue.InexactFloat64() / rm.cfg.BaseStake
	tail := opp.TailRisk / 100
	variance := tail * tail
	correlationPenalty := opp.Correlation * opp.Correlation
	tailRiskPenalty := 1 - tail

	var conservativeKelly float64
	if variance <= 0 {
		// Degenerate zero-variance estimate: fall straight to the cap.
		conservativeKelly = rm.cfg.KellyCap
	} else {
		rawKelly := (edge / variance) * correlationPenalty * tailRiskPenalty
		conservativeKelly = math.Min(rawKelly*rm.cfg.KellyFraction, rm.cfg.KellyCap)
	}

	size := math.Max(0, conservativeKelly*maxBankroll)
	return decimal.NewFromFloat(size)
}
