package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nexusx/nexus/internal/domain"
)

// busEvent is the envelope of every message published on the signal bus.
type busEvent struct {
	Event     string    `json:"event"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// publish sends an event on the bus. Failures are logged, never returned:
// the bus is a best-effort fan-out.
func publish(ctx context.Context, bus domain.SignalBus, logger *slog.Logger, channel, event string, data any) {
	if bus == nil {
		return
	}
	payload, err := json.Marshal(busEvent{Event: event, Data: data, Timestamp: time.Now().UTC()})
	if err != nil {
		logger.WarnContext(ctx, "marshal bus event failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := bus.Publish(ctx, channel, payload); err != nil {
		logger.WarnContext(ctx, "publish bus event failed",
			slog.String("channel", channel),
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
