package notify

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/kvasirlabs/syntharb/internal/models"
)

// TelegramNotifier pushes opportunity alerts to a Telegram chat. Alerts
// are rate limited; excess alerts are dropped, not queued, so a burst of
// detections cannot stall the pipeline.
type TelegramNotifier struct {
	bot     *bot.Bot
	chatID  int64
	limiter *rate.Limiter
	logger  *logrus.Logger
}

// NewTelegramNotifier creates a notifier. alertsPerMinute bounds outgoing
// message rate with a burst of one.
func NewTelegramNotifier(token string, chatID int64, alertsPerMinute float64, logger *logrus.Logger) (*TelegramNotifier, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	if alertsPerMinute <= 0 {
		alertsPerMinute = 6
	}
	return &TelegramNotifier{
		bot:     b,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Limit(alertsPerMinute/60), 1),
		logger:  logger,
	}, nil
}

// NotifyOpportunity sends one alert for an accepted opportunity. Alerts
// over the rate limit are dropped silently at debug level.
func (n *TelegramNotifier) NotifyOpportunity(ctx context.Context, opp *models.SyntheticArbOpportunity, positionSize decimal.Decimal) error {
	if !n.limiter.Allow() {
		n.logger.WithField("opportunity_id", opp.ID).Debug("Dropping opportunity alert, rate limit reached")
		return nil
	}

	text := fmt.Sprintf(
		"Synthetic arb: %s\n%s vs %s\nz-score: %.2f\nEV: %s\nposition: %s\ntail risk: %.2f",
		opp.PrimaryTick.GameID,
		opp.PrimaryTick.MarketID, opp.HedgeTick.MarketID,
		opp.Mispricing,
		opp.ExpectedValue.StringFixed(2),
		positionSize.StringFixed(2),
		opp.TailRisk,
	)

	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: n.chatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram alert: %w", err)
	}
	return nil
}
