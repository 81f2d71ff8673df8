package services

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/kvasirlabs/syntharb/internal/models"
)

// DetectorConfig holds the detection thresholds and pricing-model
// parameters. Zero values fall back to the defaults.
type DetectorConfig struct {
	ZScoreThreshold     float64 // minimum |z| to consider, strict-less-than rejection
	MinEdgePercent      float64 // minimum |residual| / theoretical
	MaxTailRisk         float64 // 0-100 scale ceiling
	MinConfidence       float64
	MinCorrelation      float64
	BaseStake           float64 // per-unit stake for EV and hedge sizing
	DefaultTimeWeight   float64 // time weight without game context
	GameDurationSeconds float64 // total game length for elapsed-fraction weighting
	PaceBaseline        float64
	ReversionFactor     float64 // theoretical-price pull per unit pace deviation
}

// DefaultDetectorConfig returns the standard thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		ZScoreThreshold:     2.5,
		MinEdgePercent:      0.005,
		MaxTailRisk:         5.0,
		MinConfidence:       0.7,
		MinCorrelation:      0.7,
		BaseStake:           1000,
		DefaultTimeWeight:   0.28,
		GameDurationSeconds: 2880,
		PaceBaseline:        100,
		ReversionFactor:     0.05,
	}
}

// DetectorStats summarizes the detector's current relationship view.
type DetectorStats struct {
	Relationships     int     `json:"relationships"`
	AvgConfidence     float64 `json:"avg_confidence"`
	AvgAbsCorrelation float64 `json:"avg_abs_correlation"`
}

// Detector decides whether a paired tick plus the known relationship for
// its market pair constitutes a tradeable mispricing. It never mutates the
// relationships it reads.
type Detector struct {
	cfg    DetectorConfig
	logger *logrus.Logger

	mu            sync.RWMutex
	relationships map[string]models.SyntheticRelationship
}

// NewDetector creates a detector with the given thresholds. Zero-valued
// config fields are replaced by defaults.
func NewDetector(cfg DetectorConfig, logger *logrus.Logger) *Detector {
	defaults := DefaultDetectorConfig()
	if cfg.ZScoreThreshold <= 0 {
		cfg.ZScoreThreshold = defaults.ZScoreThreshold
	}
	if cfg.MinEdgePercent <= 0 {
		cfg.MinEdgePercent = defaults.MinEdgePercent
	}
	if cfg.MaxTailRisk <= 0 {
		cfg.MaxTailRisk = defaults.MaxTailRisk
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = defaults.MinConfidence
	}
	if cfg.MinCorrelation <= 0 {
		cfg.MinCorrelation = defaults.MinCorrelation
	}
	if cfg.BaseStake <= 0 {
		cfg.BaseStake = defaults.BaseStake
	}
	if cfg.DefaultTimeWeight <= 0 {
		cfg.DefaultTimeWeight = defaults.DefaultTimeWeight
	}
	if cfg.GameDurationSeconds <= 0 {
		cfg.GameDurationSeconds = defaults.GameDurationSeconds
	}
	if cfg.PaceBaseline <= 0 {
		cfg.PaceBaseline = defaults.PaceBaseline
	}
	if cfg.ReversionFactor <= 0 {
		cfg.ReversionFactor = defaults.ReversionFactor
	}
	return &Detector{
		cfg:           cfg,
		logger:        logger,
		relationships: make(map[string]models.SyntheticRelationship),
	}
}

// UpdateRelationships replaces the detector's entire working relationship
// set with a fresh snapshot from the covariance engine.
func (d *Detector) UpdateRelationships(relationships map[string]models.SyntheticRelationship) {
	d.mu.Lock()
	d.relationships = relationships
	d.mu.Unlock()
}

// Detect evaluates one paired tick. It returns nil when any gate fails;
// a non-nil result is a fully populated opportunity. Missing or weak
// relationships are expected steady-state outcomes, not errors.
func (d *Detector) Detect(primary, hedge models.MarketTick, gameCtx *models.GameContext) *models.SyntheticArbOpportunity {
	d.mu.RLock()
	rel, ok := d.relationships[models.PairKey(primary.GameID, primary.MarketID, hedge.MarketID)]
	d.mu.RUnlock()
	if !ok {
		return nil
	}
	if rel.Confidence < d.cfg.MinConfidence {
		return nil
	}
	if math.Abs(rel.Correlation) < d.cfg.MinCorrelation {
		return nil
	}

	hedgePrice := hedge.Prices.Home.InexactFloat64()
	primaryPrice := primary.Prices.Home.InexactFloat64()

	theoretical := hedgePrice * rel.HedgeRatio * d.timeWeight(gameCtx)
	if gameCtx != nil {
		// Mean reversion: pace running hot pulls the theoretical price back
		// toward the baseline-pace expectation.
		paceDeviation := (gameCtx.Pace - d.cfg.PaceBaseline) / d.cfg.PaceBaseline
		theoretical -= theoretical * paceDeviation * d.cfg.ReversionFactor
	}
	if theoretical == 0 || rel.ResidualStdDev <= 0 {
		return nil
	}

	residual := primaryPrice - theoretical
	zScore := residual / rel.ResidualStdDev
	if math.Abs(zScore) < d.cfg.ZScoreThreshold {
		return nil
	}

	edge := math.Abs(residual) / math.Abs(theoretical)
	if edge < d.cfg.MinEdgePercent {
		return nil
	}

	hedgeRatio := d.adjustHedgeRatio(rel.HedgeRatio, gameCtx)

	tailRisk := d.tailRisk(rel, zScore, hedgeRatio)
	if tailRisk > d.cfg.MaxTailRisk {
		return nil
	}

	expectedValue := math.Abs(residual) * d.cfg.BaseStake * math.Abs(rel.Correlation)

	return &models.SyntheticArbOpportunity{
		ID:                uuid.New().String(),
		PrimaryTick:       primary,
		HedgeTick:         hedge,
		Mispricing:        zScore,
		ExpectedValue:     decimal.NewFromFloat(expectedValue),
		HedgeRatio:        hedgeRatio,
		RequiredHedgeSize: decimal.NewFromFloat(d.cfg.BaseStake * math.Abs(hedgeRatio)),
		TailRisk:          tailRisk,
		Confidence:        rel.Confidence,
		Correlation:       rel.Correlation,
		DetectedAt:        time.Now(),
	}
}

// timeWeight is the elapsed fraction of the game, or the configured default
// when no context is available. The default models a typical first-period
// weight.
func (d *Detector) timeWeight(gameCtx *models.GameContext) float64 {
	if gameCtx == nil {
		return d.cfg.DefaultTimeWeight
	}
	elapsed := 1 - gameCtx.TimeRemaining/d.cfg.GameDurationSeconds
	elapsed = clamp(elapsed, 0, 1)
	if elapsed == 0 {
		return d.cfg.DefaultTimeWeight
	}
	return elapsed
}

// adjustHedgeRatio refines the estimated ratio with in-game state.
func (d *Detector) adjustHedgeRatio(ratio float64, gameCtx *models.GameContext) float64 {
	if gameCtx == nil {
		return ratio
	}
	if gameCtx.Pace > 102 {
		ratio *= 1.08
	} else if gameCtx.Pace < 98 {
		ratio *= 0.92
	}
	if math.Abs(gameCtx.RunDifferential) > 12 {
		// Blowouts mean-revert; shade the hedge down.
		ratio *= 0.92
	}
	if gameCtx.KeyPlayerFouls >= 2 && gameCtx.Period == 1 {
		ratio *= 0.85
	}
	return ratio
}

// tailRisk blends decorrelation, a volatility proxy, and excess z-score
// beyond 3 sigma into a bounded 0-100 estimate.
func (d *Detector) tailRisk(rel models.SyntheticRelationship, zScore, hedgeRatio float64) float64 {
	decorrelation := 1 - math.Abs(rel.Correlation)

	volatility := 0.0
	if hedgeRatio != 0 {
		volatility = rel.ResidualStdDev / math.Abs(hedgeRatio)
	}

	excessZ := math.Max(0, math.Abs(zScore)-3)

	return clamp((decorrelation+volatility+excessZ)/3, 0, 100)
}

// Statistics reports the detector's aggregate relationship view.
func (d *Detector) Statistics() DetectorStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := DetectorStats{Relationships: len(d.relationships)}
	if len(d.relationships) == 0 {
		return stats
	}
	var confSum, corrSum float64
	for _, rel := range d.relationships {
		confSum += rel.Confidence
		corrSum += math.Abs(rel.Correlation)
	}
	stats.AvgConfidence = confSum / float64(len(d.relationships))
	stats.AvgAbsCorrelation = corrSum / float64(len(d.relationships))
	return stats
}
