package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketTick represents a single price observation for one market of one game.
// Ticks are produced by the transport layer and are immutable once created.
type MarketTick struct {
	GameID    string          `json:"game_id"`
	Timestamp int64           `json:"timestamp"` // epoch milliseconds
	Source    string          `json:"source"`
	MarketID  string          `json:"market_id"` // e.g. "first-quarter", "full-game"
	Sport     string          `json:"sport"`
	Prices    PriceRecord     `json:"prices"`
	Volume    decimal.Decimal `json:"volume"`
}

// PriceRecord holds the quoted prices for a tick. Home is always populated;
// Away may be zero for one-sided feeds.
type PriceRecord struct {
	Home decimal.Decimal `json:"home"`
	Away decimal.Decimal `json:"away"`
}

// SeriesKey returns the price-series identifier used by the covariance
// engine, keyed by game and market.
func (t MarketTick) SeriesKey() string {
	return t.GameID + ":" + t.MarketID
}

// Time converts the tick's epoch-millisecond timestamp to time.Time.
func (t MarketTick) Time() time.Time {
	return time.UnixMilli(t.Timestamp)
}

// GameContext carries in-game state used to refine theoretical prices and
// hedge ratios. All fields are required numerics; absent context is modeled
// as a nil *GameContext, never as partially filled records.
type GameContext struct {
	Period          int     `json:"period"`
	TimeRemaining   float64 `json:"time_remaining"` // seconds left in the game
	Pace            float64 `json:"pace"`
	RunDifferential float64 `json:"run_differential"`
	KeyPlayerFouls  int     `json:"key_player_fouls"`
	HomeScore       int     `json:"home_score"`
	AwayScore       int     `json:"away_score"`
}
