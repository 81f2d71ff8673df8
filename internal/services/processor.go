package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/kvasirlabs/syntharb/internal/models"
)

// Processor drives the detection pipeline for one pair of tick streams:
// temporal join, covariance engine feeding, detection, risk validation,
// sizing, and execution. One processor owns its relationship view and
// stats; shard per game for parallelism instead of sharing instances.
type Processor struct {
	cfg      models.ProcessingConfig
	engine   *CovarianceEngine
	detector *Detector
	risk     *RiskManager
	executor Executor
	contexts GameContextProvider // optional
	recorder OpportunityRecorder // optional
	notifier Notifier            // optional
	logger   *logrus.Logger

	mu           sync.Mutex
	stats        models.ProcessingStats
	totalLatency time.Duration
}

// ProcessorDeps bundles the collaborators wired into a processor.
type ProcessorDeps struct {
	Engine   *CovarianceEngine
	Detector *Detector
	Risk     *RiskManager
	Executor Executor
	Contexts GameContextProvider
	Recorder OpportunityRecorder
	Notifier Notifier
	Logger   *logrus.Logger
}

// NewProcessor creates a processor. Engine, Detector, Risk, Executor and
// Logger are required; Contexts, Recorder and Notifier may be nil.
func NewProcessor(cfg models.ProcessingConfig, deps ProcessorDeps) (*Processor, error) {
	if deps.Engine == nil || deps.Detector == nil || deps.Risk == nil {
		return nil, errors.New("processor requires engine, detector and risk manager")
	}
	if deps.Executor == nil {
		return nil, errors.New("processor requires an executor")
	}
	if deps.Logger == nil {
		return nil, errors.New("processor requires a logger")
	}
	if cfg.MaxLatencyDeltaMs <= 0 {
		return nil, fmt.Errorf("max latency delta must be positive, got %d", cfg.MaxLatencyDeltaMs)
	}
	if cfg.JoinStrategy == "" {
		cfg.JoinStrategy = models.JoinLockstep
	}
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = 5 * time.Second
	}
	return &Processor{
		cfg:      cfg,
		engine:   deps.Engine,
		detector: deps.Detector,
		risk:     deps.Risk,
		executor: deps.Executor,
		contexts: deps.Contexts,
		recorder: deps.Recorder,
		notifier: deps.Notifier,
		logger:   deps.Logger,
	}, nil
}

// ProcessCrossMarketStream consumes both streams to completion. Per-pair
// failures are counted and skipped; a stream-level failure is returned to
// the caller after final statistics are flushed and logged.
func (p *Processor) ProcessCrossMarketStream(ctx context.Context, primary, hedge TickStream) (models.ProcessingStats, error) {
	join, err := NewTickJoiner(p.cfg.JoinStrategy, primary, hedge, p.cfg.MaxLatencyDeltaMs)
	if err != nil {
		return p.Stats(), err
	}

	p.withStats(func(s *models.ProcessingStats) {
		s.StartedAt = time.Now()
	})
	defer p.finalize()

	for {
		if err := ctx.Err(); err != nil {
			return p.Stats(), err
		}

		pair, err := join.Next(ctx)
		if errors.Is(err, io.EOF) {
			return p.Stats(), nil
		}
		if err != nil {
			return p.Stats(), fmt.Errorf("cross-market stream failed: %w", err)
		}

		start := time.Now()
		if err := p.processPair(ctx, pair); err != nil {
			p.withStats(func(s *models.ProcessingStats) {
				s.ProcessingErrors++
			})
			p.logger.WithError(err).WithFields(logrus.Fields{
				"game_id":        pair.Primary.GameID,
				"primary_market": pair.Primary.MarketID,
				"hedge_market":   pair.Hedge.MarketID,
			}).Error("Pair processing failed, continuing with next pair")
		}
		elapsed := time.Since(start)
		p.withStats(func(s *models.ProcessingStats) {
			s.PairsProcessed++
			p.totalLatency += elapsed
			s.AvgProcessingLatency = p.totalLatency / time.Duration(s.PairsProcessed)
		})
	}
}

// processPair runs one joined tick pair through the full pipeline.
func (p *Processor) processPair(ctx context.Context, pair TickPair) error {
	p.engine.UpdatePrice(ctx, pair.Primary.SeriesKey(), pair.Primary.Prices.Home.InexactFloat64(), pair.Primary.Timestamp)
	p.engine.UpdatePrice(ctx, pair.Hedge.SeriesKey(), pair.Hedge.Prices.Home.InexactFloat64(), pair.Hedge.Timestamp)

	relationships := p.engine.HighConfidenceRelationships(p.cfg.MinConfidence)
	p.detector.UpdateRelationships(relationships)
	p.withStats(func(s *models.ProcessingStats) {
		s.RelationshipUpdates += 2
	})

	var gameCtx *models.GameContext
	if p.contexts != nil {
		gameCtx = p.contexts.GameContext(pair.Primary.GameID)
	}

	opp := p.detector.Detect(pair.Primary, pair.Hedge, gameCtx)
	if opp == nil {
		return nil
	}

	p.withStats(func(s *models.ProcessingStats) {
		s.OpportunitiesDetected++
	})

	valid, reasons := p.risk.Validate(opp)
	if !valid {
		p.logger.WithFields(logrus.Fields{
			"opportunity_id": opp.ID,
			"correlation":    opp.Correlation,
			"tail_risk":      opp.TailRisk,
			"reasons":        reasons,
		}).Debug("Opportunity rejected by risk limits")
		return nil
	}

	positionSize := p.risk.PositionSize(opp, 0)
	if p.cfg.MaxPositionSize.IsPositive() && positionSize.GreaterThan(p.cfg.MaxPositionSize) {
		positionSize = p.cfg.MaxPositionSize
	}

	p.ExecuteSyntheticArb(ctx, opp, positionSize)
	return nil
}

// ExecuteSyntheticArb delegates to the execution collaborator (or logs the
// simulated action) under a timeout. Execution failures are counted and
// logged, never re-raised; the processor keeps consuming the stream.
func (p *Processor) ExecuteSyntheticArb(ctx context.Context, opp *models.SyntheticArbOpportunity, positionSize decimal.Decimal) {
	if p.cfg.EnableExecution {
		execCtx, cancel := context.WithTimeout(ctx, p.cfg.ExecutionTimeout)
		err := p.executor.Execute(execCtx, opp, positionSize)
		cancel()
		if err != nil {
			p.withStats(func(s *models.ProcessingStats) {
				s.ProcessingErrors++
			})
			p.logger.WithError(err).WithField("opportunity_id", opp.ID).Error("Synthetic arb execution failed")
			return
		}
	} else {
		p.logger.WithFields(logrus.Fields{
			"opportunity_id": opp.ID,
			"game_id":        opp.PrimaryTick.GameID,
			"z_score":        opp.Mispricing,
			"expected_value": opp.ExpectedValue.String(),
			"position_size":  positionSize.String(),
		}).Info("Execution disabled, logging synthetic arb opportunity")
	}

	pnl := opp.ExpectedValue.Mul(positionSize.Div(decimal.NewFromInt(1000)))
	p.withStats(func(s *models.ProcessingStats) {
		s.OpportunitiesExecuted++
		s.TotalPnL = s.TotalPnL.Add(pnl)
	})

	if p.recorder != nil {
		if err := p.recorder.Record(ctx, opp, positionSize); err != nil {
			p.logger.WithError(err).WithField("opportunity_id", opp.ID).Warn("Failed to record opportunity")
		}
	}
	if p.notifier != nil {
		if err := p.notifier.NotifyOpportunity(ctx, opp, positionSize); err != nil {
			p.logger.WithError(err).WithField("opportunity_id", opp.ID).Warn("Failed to send opportunity alert")
		}
	}
}

// Stats returns a copy of the current processing statistics.
func (p *Processor) Stats() models.ProcessingStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// withStats runs fn with exclusive access to the stats record.
func (p *Processor) withStats(fn func(*models.ProcessingStats)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.stats)
}

// finalize stamps the end time and logs the final statistics. It runs on
// every exit path of ProcessCrossMarketStream, including stream failures.
func (p *Processor) finalize() {
	p.withStats(func(s *models.ProcessingStats) {
		s.FinishedAt = time.Now()
	})
	stats := p.Stats()
	p.logger.WithFields(logrus.Fields{
		"pairs_processed":        stats.PairsProcessed,
		"opportunities_detected": stats.OpportunitiesDetected,
		"opportunities_executed": stats.OpportunitiesExecuted,
		"total_pnl":              stats.TotalPnL.String(),
		"avg_latency":            stats.AvgProcessingLatency.String(),
		"relationship_updates":   stats.RelationshipUpdates,
		"processing_errors":      stats.ProcessingErrors,
	}).Info("Cross-market stream processing finished")
}
