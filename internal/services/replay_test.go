package services

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvasirlabs/syntharb/internal/models"
)

func TestBuildReplayStreams(t *testing.T) {
	samples := []models.PairedObservation{
		{PrimaryPrice: 10.5, HedgePrice: 21.0, Timestamp: 1000},
		{PrimaryPrice: 11.0, HedgePrice: 22.0, Timestamp: 2000},
	}

	primary, hedge := BuildReplayStreams("game-1", "first-quarter", "full-game", "basketball", samples, 0)
	ctx := context.Background()

	p, err := primary.Next(ctx)
	require.NoError(t, err)
	h, err := hedge.Next(ctx)
	require.NoError(t, err)

	assert.Equal(t, "game-1:first-quarter", p.SeriesKey())
	assert.Equal(t, "game-1:full-game", h.SeriesKey())
	assert.Equal(t, p.Timestamp, h.Timestamp)
	assert.Equal(t, "replay", p.Source)
	assert.Equal(t, "10.5", p.Prices.Home.String())
	assert.Equal(t, "21", h.Prices.Home.String())

	_, err = primary.Next(ctx)
	require.NoError(t, err)
	_, err = primary.Next(ctx)
	assert.Equal(t, io.EOF, err)
}

func TestReplayStream_DelayHonorsContext(t *testing.T) {
	stream := NewReplayStream([]models.MarketTick{makeTick("game-1", "full-game", 0, 1)}, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := stream.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
