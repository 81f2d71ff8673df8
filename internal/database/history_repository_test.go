package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockPoolAdapter wraps pgxmock.PgxPoolIface to implement DatabasePool interface
type MockPoolAdapter struct {
	mock pgxmock.PgxPoolIface
}

func NewMockPoolAdapter(mock pgxmock.PgxPoolIface) DatabasePool {
	return &MockPoolAdapter{mock: mock}
}

func (m *MockPoolAdapter) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return m.mock.QueryRow(ctx, sql, args...)
}

func (m *MockPoolAdapter) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	result, err := m.mock.Exec(ctx, sql, args...)
	if err == nil {
		rows := result.RowsAffected()
		return pgconn.NewCommandTag(fmt.Sprintf("INSERT %d", rows)), nil
	}
	return pgconn.CommandTag{}, err
}

func (m *MockPoolAdapter) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return m.mock.Query(ctx, sql, args...)
}

func TestHistoryRepository_PairedSamples(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	recordedAt := time.Now()
	rows := pgxmock.NewRows([]string{"primary_price", "hedge_price", "tick_timestamp", "recorded_at"}).
		AddRow(10.5, 21.0, int64(1000), recordedAt).
		AddRow(11.0, 22.0, int64(2000), recordedAt).
		AddRow(11.5, 23.0, int64(3000), recordedAt)

	mock.ExpectQuery("SELECT primary_price, hedge_price, tick_timestamp, recorded_at").
		WithArgs("game-1", "first-quarter", "full-game", 60).
		WillReturnRows(rows)

	repo := NewHistoryRepository(NewMockPoolAdapter(mock))
	samples, err := repo.PairedSamples(context.Background(), "game-1", "first-quarter", "full-game", 60)
	require.NoError(t, err)

	require.Len(t, samples, 3)
	// Samples come back oldest first so the covariance window stays ordered.
	assert.Equal(t, int64(1000), samples[0].Timestamp)
	assert.Equal(t, int64(3000), samples[2].Timestamp)
	assert.Equal(t, 10.5, samples[0].PrimaryPrice)
	assert.Equal(t, 21.0, samples[0].HedgePrice)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryRepository_PairedSamples_NoRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT primary_price, hedge_price, tick_timestamp, recorded_at").
		WithArgs("game-1", "first-quarter", "full-game", 60).
		WillReturnRows(pgxmock.NewRows([]string{"primary_price", "hedge_price", "tick_timestamp", "recorded_at"}))

	repo := NewHistoryRepository(NewMockPoolAdapter(mock))
	samples, err := repo.PairedSamples(context.Background(), "game-1", "first-quarter", "full-game", 60)
	require.NoError(t, err)
	assert.Empty(t, samples)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryRepository_PairedSamples_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT primary_price, hedge_price, tick_timestamp, recorded_at").
		WithArgs("game-1", "first-quarter", "full-game", 60).
		WillReturnError(errors.New("connection reset"))

	repo := NewHistoryRepository(NewMockPoolAdapter(mock))
	_, err = repo.PairedSamples(context.Background(), "game-1", "first-quarter", "full-game", 60)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query paired price history")

	assert.NoError(t, mock.ExpectationsWereMet())
}
