package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pricewatch/price-monitor/pkg/model"
)

func sampleAlerts(n int) []model.Alert {
	alerts := make([]model.Alert, 0, n)
	for i := 0; i < n; i++ {
		alerts = append(alerts, model.Alert{
			ProductName: fmt.Sprintf("Product %d", i),
			Retailer:    "acme",
			AlertType:   model.AlertPriceDrop,
			OldPrice:    100,
			NewPrice:    90,
			PctChange:   -10,
			Message:     fmt.Sprintf("Product %d (acme): Price dropped 10.0%%: $100.00 -> $90.00", i),
		})
	}
	return alerts
}

func captureWebhook(t *testing.T, format string, alerts []model.Alert) map[string]any {
	t.Helper()

	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
	}))
	t.Cleanup(srv.Close)

	wh := NewWebhook(zap.NewNop(), srv.URL, format)
	require.NoError(t, wh.Notify(context.Background(), alerts))
	return captured
}

func TestWebhookSlackPayload(t *testing.T) {
	payload := captureWebhook(t, "slack", sampleAlerts(2))

	blocks, ok := payload["blocks"].([]any)
	require.True(t, ok, "slack payload must have blocks")
	// header + divider + one section per alert
	require.Len(t, blocks, 4)

	header := blocks[0].(map[string]any)
	assert.Equal(t, "header", header["type"])
	assert.Contains(t, header["text"].(map[string]any)["text"], "2 Price Change Alert(s)")

	section := blocks[2].(map[string]any)
	assert.Equal(t, "section", section["type"])
	assert.Contains(t, section["text"].(map[string]any)["text"], "Price dropped 10.0%")
}

func TestWebhookSlackTruncatesLongDigests(t *testing.T) {
	payload := captureWebhook(t, "slack", sampleAlerts(14))

	blocks := payload["blocks"].([]any)
	// header + divider + 10 sections + truncation notice
	require.Len(t, blocks, 13)

	last := blocks[len(blocks)-1].(map[string]any)
	assert.Contains(t, last["text"].(map[string]any)["text"], "4 more alerts")
}

func TestWebhookDiscordPayload(t *testing.T) {
	payload := captureWebhook(t, "discord", sampleAlerts(3))

	embeds, ok := payload["embeds"].([]any)
	require.True(t, ok, "discord payload must have embeds")
	require.Len(t, embeds, 1)

	embed := embeds[0].(map[string]any)
	assert.Contains(t, embed["title"], "3 Price Change Alert(s)")
	assert.Contains(t, embed["description"], "Product 0 (acme)")
	assert.Contains(t, embed["description"], "Product 2 (acme)")
}

func TestWebhookGenericJSONPayload(t *testing.T) {
	payload := captureWebhook(t, "json", sampleAlerts(1))

	alerts, ok := payload["alerts"].([]any)
	require.True(t, ok)
	require.Len(t, alerts, 1)
	first := alerts[0].(map[string]any)
	assert.Equal(t, "Product 0", first["product_name"])
	assert.Equal(t, string(model.AlertPriceDrop), first["alert_type"])
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	wh := NewWebhook(zap.NewNop(), srv.URL, "slack")
	err := wh.Notify(context.Background(), sampleAlerts(1))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook returned 400")
}

type failingNotifier struct{}

func (failingNotifier) Name() string                                { return "broken" }
func (failingNotifier) Notify(context.Context, []model.Alert) error { return fmt.Errorf("boom") }

func TestDispatchIsolatesChannelFailures(t *testing.T) {
	notifiers := []Notifier{
		failingNotifier{},
		NewConsole(zap.NewNop()),
	}

	notified := Dispatch(context.Background(), zap.NewNop(), notifiers, sampleAlerts(1))

	assert.Equal(t, []string{"console"}, notified)
}

func TestDispatchNoAlerts(t *testing.T) {
	notified := Dispatch(context.Background(), zap.NewNop(), []Notifier{NewConsole(zap.NewNop())}, nil)
	assert.Nil(t, notified)
}
