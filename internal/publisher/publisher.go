package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/pricewatch/price-monitor/internal/metrics"
	"github.com/pricewatch/price-monitor/pkg/model"
)

// Publisher wraps a NATS connection and provides helpers for publishing
// alert events downstream (BI tooling, notification fan-out, etc.).
type Publisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
	service string
	logger  *zap.Logger
}

// alertEvent is the wire envelope for one published alert.
type alertEvent struct {
	EventType     string      `json:"event_type"`
	CorrelationID string      `json:"correlation_id"`
	RunID         string      `json:"run_id"`
	Alert         model.Alert `json:"alert"`
	Timestamp     time.Time   `json:"timestamp"`
}

// New creates a new Publisher with JetStream enabled if available.
func New(nc *nats.Conn, subject, service string, logger *zap.Logger) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		nc:      nc,
		js:      js,
		subject: subject,
		service: service,
		logger:  logger,
	}, nil
}

// PublishAlert serializes and publishes one alert event. Failures are
// reported to the caller; the caller decides whether they fail the run
// (they do not — alert delivery is best-effort).
func (p *Publisher) PublishAlert(ctx context.Context, runID string, alert model.Alert) error {
	event := alertEvent{
		EventType:     "price." + string(alert.AlertType),
		CorrelationID: uuid.NewString(),
		RunID:         runID,
		Alert:         alert,
		Timestamp:     time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	msg := &nats.Msg{
		Subject: p.subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{event.EventType},
			"correlation_id": []string{event.CorrelationID},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
		},
	}

	if _, err := p.js.PublishMsg(msg); err != nil {
		p.logger.Warn("publisher.publish_failed",
			zap.String("subject", p.subject),
			zap.String("alert_type", string(alert.AlertType)),
			zap.Error(err))
		metrics.IncError("publisher", "publish_failed")
		return err
	}

	p.logger.Debug("publisher.alert_published",
		zap.String("subject", p.subject),
		zap.String("product", alert.ProductName),
		zap.String("retailer", alert.Retailer))
	return nil
}

// PublishAll publishes a batch of alerts, continuing past individual
// failures. Returns the number delivered.
func (p *Publisher) PublishAll(ctx context.Context, runID string, alerts []model.Alert) int {
	sent := 0
	for _, a := range alerts {
		if err := p.PublishAlert(ctx, runID, a); err == nil {
			sent++
		}
	}
	return sent
}
