package services

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvasirlabs/syntharb/internal/models"
)

func newTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// stubHistory records seed requests and returns canned samples.
type stubHistory struct {
	samples []models.PairedObservation
	err     error

	calls [][4]string
}

func (s *stubHistory) PairedSamples(_ context.Context, gameID, primaryMarket, hedgeMarket string, limit int) ([]models.PairedObservation, error) {
	s.calls = append(s.calls, [4]string{gameID, primaryMarket, hedgeMarket})
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.samples) {
		return s.samples[:limit], nil
	}
	return s.samples, nil
}

func feedPair(engine *CovarianceEngine, gameID, marketA, marketB string, pricesA, pricesB []float64) {
	ctx := context.Background()
	n := len(pricesA)
	if len(pricesB) < n {
		n = len(pricesB)
	}
	for i := 0; i < n; i++ {
		ts := int64(i * 1000)
		engine.UpdatePrice(ctx, gameID+":"+marketA, pricesA[i], ts)
		engine.UpdatePrice(ctx, gameID+":"+marketB, pricesB[i], ts)
	}
}

func linearSeries(n int, slope, intercept float64) (primary, hedge []float64) {
	primary = make([]float64, n)
	hedge = make([]float64, n)
	for i := 0; i < n; i++ {
		hedge[i] = float64(i + 1)
		primary[i] = slope*hedge[i] + intercept
	}
	return primary, hedge
}

func TestCovarianceEngine_LinearRelationship(t *testing.T) {
	engine := NewCovarianceEngine(CovarianceEngineConfig{WindowSize: 32, MinSamples: 5}, nil, newTestLogger())

	primary, hedge := linearSeries(10, 2, 1)
	feedPair(engine, "game-1", "first-quarter", "full-game", primary, hedge)

	rels := engine.HighConfidenceRelationships(0)
	rel, ok := rels[models.PairKey("game-1", "first-quarter", "full-game")]
	require.True(t, ok, "expected relationship for the fed pair")

	assert.InDelta(t, 1.0, rel.Correlation, 1e-9)
	assert.InDelta(t, 2.0, rel.HedgeRatio, 1e-9)
	assert.Equal(t, residualStdDevFloor, rel.ResidualStdDev)
	assert.Equal(t, 10, rel.SampleSize)
	assert.InDelta(t, 1.0, rel.Confidence, 1e-9)
	assert.False(t, rel.UpdatedAt.IsZero())

	// The reverse direction is estimated too, with the inverse ratio.
	reverse, ok := rels[models.PairKey("game-1", "full-game", "first-quarter")]
	require.True(t, ok)
	assert.InDelta(t, 0.5, reverse.HedgeRatio, 1e-9)
}

func TestCovarianceEngine_AntiCorrelatedPair(t *testing.T) {
	engine := NewCovarianceEngine(CovarianceEngineConfig{WindowSize: 32, MinSamples: 5}, nil, newTestLogger())

	primary, hedge := linearSeries(10, -1.5, 20)
	feedPair(engine, "game-1", "first-quarter", "full-game", primary, hedge)

	rel, ok := engine.HighConfidenceRelationships(0)[models.PairKey("game-1", "first-quarter", "full-game")]
	require.True(t, ok)
	assert.InDelta(t, -1.0, rel.Correlation, 1e-9)
	assert.InDelta(t, -1.5, rel.HedgeRatio, 1e-9)
}

func TestCovarianceEngine_MinSamplesGate(t *testing.T) {
	engine := NewCovarianceEngine(CovarianceEngineConfig{WindowSize: 32, MinSamples: 10}, nil, newTestLogger())

	primary, hedge := linearSeries(9, 2, 0)
	feedPair(engine, "game-1", "first-quarter", "full-game", primary, hedge)

	assert.Empty(t, engine.HighConfidenceRelationships(0))
	assert.Equal(t, 0, engine.Statistics().PairsTracked)

	// One more aligned observation crosses the threshold.
	engine.UpdatePrice(context.Background(), "game-1:first-quarter", 20, 9000)
	engine.UpdatePrice(context.Background(), "game-1:full-game", 10, 9000)
	assert.Len(t, engine.HighConfidenceRelationships(0), 2)
}

func TestCovarianceEngine_FlatSeriesCarriesNoRelationship(t *testing.T) {
	engine := NewCovarianceEngine(CovarianceEngineConfig{WindowSize: 32, MinSamples: 5}, nil, newTestLogger())

	primary := make([]float64, 10)
	hedge := make([]float64, 10)
	for i := range primary {
		primary[i] = float64(i)
		hedge[i] = 7.5
	}
	feedPair(engine, "game-1", "first-quarter", "full-game", primary, hedge)

	assert.Empty(t, engine.HighConfidenceRelationships(0))
}

func TestCovarianceEngine_IgnoresMalformedSeriesKeys(t *testing.T) {
	engine := NewCovarianceEngine(CovarianceEngineConfig{}, nil, newTestLogger())
	ctx := context.Background()

	engine.UpdatePrice(ctx, "no-separator", 10, 0)
	engine.UpdatePrice(ctx, ":missing-game", 10, 0)
	engine.UpdatePrice(ctx, "missing-market:", 10, 0)

	assert.Equal(t, 0, engine.Statistics().SeriesTracked)
}

func TestCovarianceEngine_WindowTrimsOldestSamples(t *testing.T) {
	engine := NewCovarianceEngine(CovarianceEngineConfig{WindowSize: 20, MinSamples: 5}, nil, newTestLogger())

	primary, hedge := linearSeries(50, 2, 0)
	feedPair(engine, "game-1", "first-quarter", "full-game", primary, hedge)

	rel, ok := engine.HighConfidenceRelationships(0)[models.PairKey("game-1", "first-quarter", "full-game")]
	require.True(t, ok)
	assert.Equal(t, 20, rel.SampleSize)
}

func TestCovarianceEngine_SeedsNewPairsFromHistory(t *testing.T) {
	// Seeding treats the newly observed market as the primary side, so the
	// sample orientation here is full-game (primary) against first-quarter
	// (hedge), with first-quarter priced at twice full-game throughout.
	samples := make([]models.PairedObservation, 12)
	for i := range samples {
		v := float64(i + 1)
		samples[i] = models.PairedObservation{PrimaryPrice: v, HedgePrice: 2 * v, Timestamp: int64(i)}
	}
	history := &stubHistory{samples: samples}

	engine := NewCovarianceEngine(CovarianceEngineConfig{WindowSize: 64, MinSamples: 5, SeedSamples: 12}, history, newTestLogger())
	ctx := context.Background()

	// Live ticks alone are far below MinSamples; seeding supplies the rest.
	engine.UpdatePrice(ctx, "game-1:first-quarter", 40, 20000)
	engine.UpdatePrice(ctx, "game-1:full-game", 20, 20000)

	require.Len(t, history.calls, 1)
	assert.Equal(t, [4]string{"game-1", "full-game", "first-quarter", ""}, history.calls[0])
	assert.Equal(t, 1, engine.Statistics().SeededPairs)

	rel, ok := engine.HighConfidenceRelationships(0)[models.PairKey("game-1", "first-quarter", "full-game")]
	require.True(t, ok)
	assert.Equal(t, 13, rel.SampleSize)
	assert.InDelta(t, 2.0, rel.HedgeRatio, 1e-9)
}

func TestCovarianceEngine_SeedFailureFallsBackToLive(t *testing.T) {
	history := &stubHistory{err: errors.New("database unavailable")}
	engine := NewCovarianceEngine(CovarianceEngineConfig{WindowSize: 32, MinSamples: 5}, history, newTestLogger())

	primary, hedge := linearSeries(10, 3, 0)
	feedPair(engine, "game-1", "first-quarter", "full-game", primary, hedge)

	// Seeding is attempted once, fails, and the pair still builds up live.
	require.Len(t, history.calls, 1)
	assert.Equal(t, 0, engine.Statistics().SeededPairs)

	rel, ok := engine.HighConfidenceRelationships(0)[models.PairKey("game-1", "first-quarter", "full-game")]
	require.True(t, ok)
	assert.InDelta(t, 3.0, rel.HedgeRatio, 1e-9)
}

func TestCovarianceEngine_ConfidenceFiltering(t *testing.T) {
	engine := NewCovarianceEngine(CovarianceEngineConfig{WindowSize: 32, MinSamples: 5}, nil, newTestLogger())

	// Half of 2*MinSamples aligned observations gives confidence 0.5 on a
	// perfectly stable pair.
	primary, hedge := linearSeries(5, 2, 0)
	feedPair(engine, "game-1", "first-quarter", "full-game", primary, hedge)

	assert.Len(t, engine.HighConfidenceRelationships(0.5), 2)
	assert.Empty(t, engine.HighConfidenceRelationships(0.51))
}

func TestCovarianceEngine_Statistics(t *testing.T) {
	engine := NewCovarianceEngine(CovarianceEngineConfig{WindowSize: 32, MinSamples: 5}, nil, newTestLogger())

	primary, hedge := linearSeries(10, 2, 1)
	feedPair(engine, "game-1", "first-quarter", "full-game", primary, hedge)

	stats := engine.Statistics()
	assert.Equal(t, 2, stats.SeriesTracked)
	assert.Equal(t, 2, stats.PairsTracked)
	assert.Equal(t, int64(20), stats.PriceUpdates)
	assert.Equal(t, 2, stats.HighConfidence)
	assert.InDelta(t, 1.0, stats.AvgConfidence, 1e-9)
}

func TestStdDevAndMean(t *testing.T) {
	assert.Equal(t, 0.0, mean(nil))
	assert.InDelta(t, 2.0, mean([]float64{1, 2, 3}), 1e-12)
	assert.Equal(t, 0.0, stdDev([]float64{5}))
	assert.InDelta(t, 1.0, stdDev([]float64{1, 2, 3}), 1e-12)
}

func TestSplitSeriesKey(t *testing.T) {
	gameID, marketID, ok := splitSeriesKey("game-1:full-game")
	require.True(t, ok)
	assert.Equal(t, "game-1", gameID)
	assert.Equal(t, "full-game", marketID)

	// Market ids may themselves contain separators.
	gameID, marketID, ok = splitSeriesKey("game-1:spread:home")
	require.True(t, ok)
	assert.Equal(t, "game-1", gameID)
	assert.Equal(t, "spread:home", marketID)

	_, _, ok = splitSeriesKey("nothing")
	assert.False(t, ok)
}

func TestUnorderedPairKey(t *testing.T) {
	assert.Equal(t, unorderedPairKey("g", "a", "b"), unorderedPairKey("g", "b", "a"))
}

func TestCovarianceEngine_RelationshipSnapshotIsFresh(t *testing.T) {
	engine := NewCovarianceEngine(CovarianceEngineConfig{WindowSize: 32, MinSamples: 5}, nil, newTestLogger())

	primary, hedge := linearSeries(10, 2, 0)
	feedPair(engine, "game-1", "first-quarter", "full-game", primary, hedge)

	before := time.Now()
	rel := engine.HighConfidenceRelationships(0)[models.PairKey("game-1", "first-quarter", "full-game")]
	assert.False(t, rel.UpdatedAt.Before(before.Add(-time.Second)))
}
