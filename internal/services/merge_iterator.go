package services

import (
	"context"
	"fmt"
	"io"

	"github.com/kvasirlabs/syntharb/internal/models"
)

// TickStream is one in-order sequence of market ticks. Next blocks until a
// tick is available, the stream completes (io.EOF), or ctx is done. Streams
// are not restartable.
type TickStream interface {
	Next(ctx context.Context) (models.MarketTick, error)
}

// TickPair is one temporally joined observation from both streams.
type TickPair struct {
	Primary models.MarketTick
	Hedge   models.MarketTick
}

// TickJoiner produces joined pairs until either input completes (io.EOF)
// or an input fails.
type TickJoiner interface {
	Next(ctx context.Context) (TickPair, error)
}

// NewTickJoiner selects a join strategy by name.
func NewTickJoiner(strategy string, primary, hedge TickStream, toleranceMs int64) (TickJoiner, error) {
	switch strategy {
	case models.JoinLockstep, "":
		return NewLockstepJoin(primary, hedge, toleranceMs), nil
	case models.JoinBuffered:
		return NewBufferedJoin(primary, hedge, toleranceMs), nil
	default:
		return nil, fmt.Errorf("unknown join strategy %q", strategy)
	}
}

// LockstepJoin advances both streams together on every step and yields a
// pair only when both ticks fall within the tolerance window. Under unequal
// arrival rates this can skip valid pairs: it never re-reads the slower
// side. Kept as the baseline strategy; BufferedJoin is the skew-tolerant
// alternative.
type LockstepJoin struct {
	primary     TickStream
	hedge       TickStream
	toleranceMs int64
}

// NewLockstepJoin builds the baseline lockstep join.
func NewLockstepJoin(primary, hedge TickStream, toleranceMs int64) *LockstepJoin {
	return &LockstepJoin{primary: primary, hedge: hedge, toleranceMs: toleranceMs}
}

// Next returns the next in-tolerance pair, io.EOF when either input
// completes, or the first stream error encountered.
func (j *LockstepJoin) Next(ctx context.Context) (TickPair, error) {
	for {
		if err := ctx.Err(); err != nil {
			return TickPair{}, err
		}

		p, err := j.primary.Next(ctx)
		if err != nil {
			return TickPair{}, wrapStreamErr("primary", err)
		}
		h, err := j.hedge.Next(ctx)
		if err != nil {
			return TickPair{}, wrapStreamErr("hedge", err)
		}

		if absInt64(p.Timestamp-h.Timestamp) <= j.toleranceMs {
			return TickPair{Primary: p, Hedge: h}, nil
		}
		// Out of tolerance: both ticks are dropped and both streams advance.
	}
}

// BufferedJoin holds one pending tick per side and advances only the
// lagging stream when the pending ticks are out of tolerance.
type BufferedJoin struct {
	primary     TickStream
	hedge       TickStream
	toleranceMs int64

	pendingPrimary *models.MarketTick
	pendingHedge   *models.MarketTick
}

// NewBufferedJoin builds the skew-tolerant join.
func NewBufferedJoin(primary, hedge TickStream, toleranceMs int64) *BufferedJoin {
	return &BufferedJoin{primary: primary, hedge: hedge, toleranceMs: toleranceMs}
}

// Next returns the next in-tolerance pair, io.EOF when either input
// completes, or the first stream error encountered.
func (j *BufferedJoin) Next(ctx context.Context) (TickPair, error) {
	for {
		if err := ctx.Err(); err != nil {
			return TickPair{}, err
		}

		if j.pendingPrimary == nil {
			p, err := j.primary.Next(ctx)
			if err != nil {
				return TickPair{}, wrapStreamErr("primary", err)
			}
			j.pendingPrimary = &p
		}
		if j.pendingHedge == nil {
			h, err := j.hedge.Next(ctx)
			if err != nil {
				return TickPair{}, wrapStreamErr("hedge", err)
			}
			j.pendingHedge = &h
		}

		p, h := *j.pendingPrimary, *j.pendingHedge
		if absInt64(p.Timestamp-h.Timestamp) <= j.toleranceMs {
			j.pendingPrimary = nil
			j.pendingHedge = nil
			return TickPair{Primary: p, Hedge: h}, nil
		}

		// Drop only the older tick so the lagging side catches up.
		if p.Timestamp < h.Timestamp {
			j.pendingPrimary = nil
		} else {
			j.pendingHedge = nil
		}
	}
}

// ChannelStream adapts a tick channel to a TickStream. Channel closure is
// reported as io.EOF.
type ChannelStream struct {
	ch <-chan models.MarketTick
}

// NewChannelStream wraps ch as a TickStream.
func NewChannelStream(ch <-chan models.MarketTick) *ChannelStream {
	return &ChannelStream{ch: ch}
}

// Next returns the next tick from the channel.
func (s *ChannelStream) Next(ctx context.Context) (models.MarketTick, error) {
	select {
	case <-ctx.Done():
		return models.MarketTick{}, ctx.Err()
	case tick, ok := <-s.ch:
		if !ok {
			return models.MarketTick{}, io.EOF
		}
		return tick, nil
	}
}

func wrapStreamErr(side string, err error) error {
	if err == io.EOF {
		return io.EOF
	}
	return fmt.Errorf("%s stream: %w", side, err)
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
