package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/pricewatch/price-monitor/internal/metrics"
	"github.com/pricewatch/price-monitor/pkg/model"
)

// Notifier delivers a batch of classified alerts to one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, alerts []model.Alert) error
}

// Dispatch routes alerts through every configured channel. Channel failures
// are isolated: one broken webhook does not stop the console output.
// Returns the names of the channels that were notified successfully.
func Dispatch(ctx context.Context, logger *zap.Logger, notifiers []Notifier, alerts []model.Alert) []string {
	if len(alerts) == 0 {
		return nil
	}

	var notified []string
	for _, n := range notifiers {
		if err := n.Notify(ctx, alerts); err != nil {
			logger.Error("notify.channel_failed",
				zap.String("channel", n.Name()),
				zap.Error(err))
			metrics.IncError("notify", n.Name())
			continue
		}
		notified = append(notified, n.Name())
	}

	logger.Info("notify.dispatched",
		zap.Int("alerts", len(alerts)),
		zap.Strings("channels", notified))
	return notified
}

// Console always-on channel: writes alert lines to the service log, which
// is what scheduled CI runs surface.
type Console struct {
	logger *zap.Logger
}

func NewConsole(logger *zap.Logger) *Console {
	return &Console{logger: logger}
}

func (c *Console) Name() string { return "console" }

func (c *Console) Notify(_ context.Context, alerts []model.Alert) error {
	c.logger.Info("notify.alerts_detected", zap.Int("count", len(alerts)))
	for _, a := range alerts {
		c.logger.Info(a.Message,
			zap.String("alert_type", string(a.AlertType)),
			zap.String("retailer", a.Retailer))
	}
	return nil
}
