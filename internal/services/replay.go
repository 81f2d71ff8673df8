package services

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kvasirlabs/syntharb/internal/models"
)

// ReplayStream replays a fixed tick slice as a TickStream, optionally
// pacing ticks with a fixed delay. It lets the pipeline run end to end
// from stored observations when no live transport is attached.
type ReplayStream struct {
	ticks []models.MarketTick
	delay time.Duration
	pos   int
}

// NewReplayStream builds a replay stream over ticks. delay of zero replays
// as fast as the consumer pulls.
func NewReplayStream(ticks []models.MarketTick, delay time.Duration) *ReplayStream {
	return &ReplayStream{ticks: ticks, delay: delay}
}

// Next returns the next recorded tick, or io.EOF once exhausted.
func (s *ReplayStream) Next(ctx context.Context) (models.MarketTick, error) {
	if s.pos >= len(s.ticks) {
		return models.MarketTick{}, io.EOF
	}
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return models.MarketTick{}, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	tick := s.ticks[s.pos]
	s.pos++
	return tick, nil
}

// BuildReplayStreams converts stored paired observations into a primary
// and a hedge replay stream for the given game and market pair.
func BuildReplayStreams(gameID, primaryMarket, hedgeMarket, sport string, samples []models.PairedObservation, delay time.Duration) (*ReplayStream, *ReplayStream) {
	primary := make([]models.MarketTick, len(samples))
	hedge := make([]models.MarketTick, len(samples))
	for i, sample := range samples {
		primary[i] = models.MarketTick{
			GameID:    gameID,
			Timestamp: sample.Timestamp,
			Source:    "replay",
			MarketID:  primaryMarket,
			Sport:     sport,
			Prices:    models.PriceRecord{Home: decimal.NewFromFloat(sample.PrimaryPrice)},
		}
		hedge[i] = models.MarketTick{
			GameID:    gameID,
			Timestamp: sample.Timestamp,
			Source:    "replay",
			MarketID:  hedgeMarket,
			Sport:     sport,
			Prices:    models.PriceRecord{Home: decimal.NewFromFloat(sample.HedgePrice)},
		}
	}
	return NewReplayStream(primary, delay), NewReplayStream(hedge, delay)
}
