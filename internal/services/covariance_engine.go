package services

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kvasirlabs/syntharb/internal/models"
)

// residualStdDevFloor is the minimum residual standard deviation ever
// reported. Downstream z-score math divides by this value.
const residualStdDevFloor = 1e-6

// HistoryProvider supplies a bounded window of historical paired
// observations for a market pair, used to seed brand-new pairs.
type HistoryProvider interface {
	PairedSamples(ctx context.Context, gameID, primaryMarket, hedgeMarket string, limit int) ([]models.PairedObservation, error)
}

// CovarianceEngineConfig holds tunables for the rolling relationship
// estimator.
type CovarianceEngineConfig struct {
	WindowSize  int // rolling samples kept per price series
	MinSamples  int // aligned samples required before a pair is reported
	SeedSamples int // historical samples requested for a brand-new pair
}

// DefaultCovarianceEngineConfig returns the estimator defaults.
func DefaultCovarianceEngineConfig() CovarianceEngineConfig {
	return CovarianceEngineConfig{
		WindowSize:  120,
		MinSamples:  30,
		SeedSamples: 60,
	}
}

// CovarianceStats summarizes the estimator state for observability.
type CovarianceStats struct {
	SeriesTracked  int     `json:"series_tracked"`
	PairsTracked   int     `json:"pairs_tracked"`
	HighConfidence int     `json:"high_confidence"`
	AvgConfidence  float64 `json:"avg_confidence"`
	PriceUpdates   int64   `json:"price_updates"`
	SeededPairs    int     `json:"seeded_pairs"`
	ConfidenceBar  float64 `json:"confidence_bar"`
}

type priceSeries struct {
	prices     []float64
	timestamps []int64
}

func (s *priceSeries) append(price float64, ts int64, window int) {
	s.prices = append(s.prices, price)
	s.timestamps = append(s.timestamps, ts)
	if len(s.prices) > window {
		s.prices = s.prices[len(s.prices)-window:]
		s.timestamps = s.timestamps[len(s.timestamps)-window:]
	}
}

func (s *priceSeries) prepend(prices []float64, window int) {
	s.prices = append(append([]float64{}, prices...), s.prices...)
	ts := make([]int64, len(prices))
	s.timestamps = append(ts, s.timestamps...)
	if len(s.prices) > window {
		s.prices = s.prices[len(s.prices)-window:]
		s.timestamps = s.timestamps[len(s.timestamps)-window:]
	}
}

// CovarianceEngine maintains rolling price windows per game/market series
// and estimates pairwise relationships between markets of the same game.
type CovarianceEngine struct {
	cfg     CovarianceEngineConfig
	history HistoryProvider // optional
	logger  *logrus.Logger

	mu            sync.Mutex
	series        map[string]*priceSeries // seriesKey -> rolling window
	gameMarkets   map[string][]string     // gameID -> market ids, insertion order
	seeded        map[string]bool         // unordered pair key -> seeding attempted
	corrTrack     map[string][]float64    // pair key -> recent correlation estimates
	updates       int64
	seededPairs   int
	confidenceBar float64
}

// NewCovarianceEngine creates a relationship estimator. history may be nil,
// in which case new pairs build up purely from live ticks.
func NewCovarianceEngine(cfg CovarianceEngineConfig, history HistoryProvider, logger *logrus.Logger) *CovarianceEngine {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultCovarianceEngineConfig().WindowSize
	}
	if cfg.MinSamples < 2 {
		cfg.MinSamples = DefaultCovarianceEngineConfig().MinSamples
	}
	if cfg.SeedSamples <= 0 {
		cfg.SeedSamples = DefaultCovarianceEngineConfig().SeedSamples
	}
	return &CovarianceEngine{
		cfg:           cfg,
		history:       history,
		logger:        logger,
		series:        make(map[string]*priceSeries),
		gameMarkets:   make(map[string][]string),
		seeded:        make(map[string]bool),
		corrTrack:     make(map[string][]float64),
		confidenceBar: 0.7,
	}
}

// UpdatePrice records one observation for a named price series. The series
// key is "gameID:marketID" as produced by models.MarketTick.SeriesKey.
func (e *CovarianceEngine) UpdatePrice(ctx context.Context, seriesKey string, price float64, timestamp int64) {
	gameID, marketID, ok := splitSeriesKey(seriesKey)
	if !ok {
		e.logger.WithField("series_key", seriesKey).Warn("Ignoring malformed series key")
		return
	}

	e.mu.Lock()
	s, exists := e.series[seriesKey]
	if !exists {
		s = &priceSeries{}
		e.series[seriesKey] = s
		e.gameMarkets[gameID] = append(e.gameMarkets[gameID], marketID)
	}
	s.append(price, timestamp, e.cfg.WindowSize)
	e.updates++

	var toSeed [][2]string
	if !exists && e.history != nil {
		for _, other := range e.gameMarkets[gameID] {
			if other == marketID {
				continue
			}
			key := unorderedPairKey(gameID, marketID, other)
			if !e.seeded[key] {
				e.seeded[key] = true
				toSeed = append(toSeed, [2]string{marketID, other})
			}
		}
	}
	e.mu.Unlock()

	for _, pair := range toSeed {
		e.seedPair(ctx, gameID, pair[0], pair[1])
	}
}

// seedPair backfills both series of a freshly observed pair from the
// history collaborator. Failures are logged and the pair builds up live.
func (e *CovarianceEngine) seedPair(ctx context.Context, gameID, primaryMarket, hedgeMarket string) {
	samples, err := e.history.PairedSamples(ctx, gameID, primaryMarket, hedgeMarket, e.cfg.SeedSamples)
	if err != nil {
		e.logger.WithError(err).WithFields(logrus.Fields{
			"game_id":        gameID,
			"primary_market": primaryMarket,
			"hedge_market":   hedgeMarket,
		}).Warn("Failed to seed market pair from history")
		return
	}
	if len(samples) == 0 {
		return
	}

	primaryPrices := make([]float64, len(samples))
	hedgePrices := make([]float64, len(samples))
	for i, sample := range samples {
		primaryPrices[i] = sample.PrimaryPrice
		hedgePrices[i] = sample.HedgePrice
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.series[gameID+":"+primaryMarket]; ok {
		s.prepend(primaryPrices, e.cfg.WindowSize)
	}
	if s, ok := e.series[gameID+":"+hedgeMarket]; ok {
		s.prepend(hedgePrices, e.cfg.WindowSize)
	}
	e.seededPairs++

	e.logger.WithFields(logrus.Fields{
		"game_id":        gameID,
		"primary_market": primaryMarket,
		"hedge_market":   hedgeMarket,
		"samples":        len(samples),
	}).Debug("Seeded market pair from history")
}

// HighConfidenceRelationships returns a snapshot of every currently
// estimated relationship with confidence >= minConfidence. Pairs without
// enough aligned history are absent entirely, never reported low.
func (e *CovarianceEngine) HighConfidenceRelationships(minConfidence float64) map[string]models.SyntheticRelationship {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]models.SyntheticRelationship)
	for _, rel := range e.estimateAllLocked() {
		if rel.Confidence >= minConfidence {
			out[rel.Key()] = rel
		}
	}
	return out
}

// Statistics reports aggregate estimator counts.
func (e *CovarianceEngine) Statistics() CovarianceStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	rels := e.estimateAllLocked()
	stats := CovarianceStats{
		SeriesTracked: len(e.series),
		PairsTracked:  len(rels),
		PriceUpdates:  e.updates,
		SeededPairs:   e.seededPairs,
		ConfidenceBar: e.confidenceBar,
	}
	var confSum float64
	for _, rel := range rels {
		confSum += rel.Confidence
		if rel.Confidence >= e.confidenceBar {
			stats.HighConfidence++
		}
	}
	if len(rels) > 0 {
		stats.AvgConfidence = confSum / float64(len(rels))
	}
	return stats
}

// estimateAllLocked recomputes every estimable ordered pair. Caller holds mu.
func (e *CovarianceEngine) estimateAllLocked() []models.SyntheticRelationship {
	var rels []models.SyntheticRelationship
	now := time.Now()

	games := make([]string, 0, len(e.gameMarkets))
	for gameID := range e.gameMarkets {
		games = append(games, gameID)
	}
	sort.Strings(games)

	for _, gameID := range games {
		markets := e.gameMarkets[gameID]
		for _, primary := range markets {
			for _, hedge := range markets {
				if primary == hedge {
					continue
				}
				rel, ok := e.estimatePairLocked(gameID, primary, hedge, now)
				if ok {
					rels = append(rels, rel)
				}
			}
		}
	}
	return rels
}

// estimatePairLocked regresses the primary series on the hedge series over
// their aligned tails. Caller holds mu.
func (e *CovarianceEngine) estimatePairLocked(gameID, primaryMarket, hedgeMarket string, now time.Time) (models.SyntheticRelationship, bool) {
	ps, ok := e.series[gameID+":"+primaryMarket]
	if !ok {
		return models.SyntheticRelationship{}, false
	}
	hs, ok := e.series[gameID+":"+hedgeMarket]
	if !ok {
		return models.SyntheticRelationship{}, false
	}

	n := len(ps.prices)
	if len(hs.prices) < n {
		n = len(hs.prices)
	}
	if n < e.cfg.MinSamples {
		return models.SyntheticRelationship{}, false
	}

	primary := ps.prices[len(ps.prices)-n:]
	hedge := hs.prices[len(hs.prices)-n:]

	meanP := mean(primary)
	meanH := mean(hedge)

	var cov, varP, varH float64
	for i := 0; i < n; i++ {
		dp := primary[i] - meanP
		dh := hedge[i] - meanH
		cov += dp * dh
		varP += dp * dp
		varH += dh * dh
	}
	cov /= float64(n - 1)
	varP /= float64(n - 1)
	varH /= float64(n - 1)

	if varH == 0 || varP == 0 {
		// Flat series carry no relationship information.
		return models.SyntheticRelationship{}, false
	}

	correlation := cov / math.Sqrt(varP*varH)
	correlation = clamp(correlation, -1, 1)

	hedgeRatio := cov / varH
	intercept := meanP - hedgeRatio*meanH

	var residSum float64
	for i := 0; i < n; i++ {
		r := primary[i] - (intercept + hedgeRatio*hedge[i])
		residSum += r * r
	}
	residualStdDev := math.Sqrt(residSum / float64(n-1))
	if residualStdDev < residualStdDevFloor {
		residualStdDev = residualStdDevFloor
	}

	pairKey := models.PairKey(gameID, primaryMarket, hedgeMarket)
	confidence := e.confidenceLocked(pairKey, correlation, n)

	return models.SyntheticRelationship{
		GameID:         gameID,
		PrimaryMarket:  primaryMarket,
		HedgeMarket:    hedgeMarket,
		Correlation:    correlation,
		Confidence:     confidence,
		HedgeRatio:     hedgeRatio,
		ResidualStdDev: residualStdDev,
		Covariance:     cov,
		SampleSize:     n,
		UpdatedAt:      now,
	}, true
}

// confidenceLocked blends a sample-size weight with a stability weight
// derived from how much the correlation estimate has drifted across recent
// recomputations. Caller holds mu.
func (e *CovarianceEngine) confidenceLocked(pairKey string, correlation float64, sampleSize int) float64 {
	track := append(e.corrTrack[pairKey], correlation)
	if len(track) > 8 {
		track = track[len(track)-8:]
	}
	e.corrTrack[pairKey] = track

	sampleWeight := float64(sampleSize) / float64(2*e.cfg.MinSamples)
	if sampleWeight > 1 {
		sampleWeight = 1
	}

	stability := 1.0
	if len(track) >= 2 {
		stability = 1 - clamp(5*stdDev(track), 0, 1)
	}

	return clamp(sampleWeight*stability, 0, 1)
}

func splitSeriesKey(key string) (gameID, marketID string, ok bool) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func unorderedPairKey(gameID, a, b string) string {
	if a > b {
		a, b = b, a
	}
	return gameID + "|" + a + "|" + b
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
