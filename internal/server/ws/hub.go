// Package ws pushes exchange events from the signal bus to browser clients
// over WebSocket.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nexusx/nexus/internal/domain"
)

// Channels are the bus channels the hub relays. New clients receive all of
// them until they unsubscribe.
var Channels = []string{
	domain.ChannelPrices,
	domain.ChannelTrades,
	domain.ChannelListings,
}

func knownChannel(name string) bool {
	for _, ch := range Channels {
		if ch == name {
			return true
		}
	}
	return false
}

// Config captures runtime metadata sent to clients on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
	// AllowedOrigins restricts the Origin of upgrade requests. Empty or "*"
	// accepts any origin.
	AllowedOrigins []string
}

type relayed struct {
	channel string
	data    []byte
}

// Hub relays signal bus messages to connected WebSocket clients. All client
// bookkeeping happens on the Run goroutine.
type Hub struct {
	bus      domain.SignalBus
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mode      string
	startedAt time.Time

	clients map[*client]struct{}
	relay   chan relayed
	join    chan *client
	leave   chan *client
	done    chan struct{}
}

// NewHub creates a hub that bridges bus to connected WebSocket clients.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	h := &Hub{
		bus:       bus,
		logger:    logger.With(slog.String("component", "ws_hub")),
		mode:      mode,
		startedAt: startedAt,
		clients:   make(map[*client]struct{}),
		relay:     make(chan relayed, 256),
		join:      make(chan *client),
		leave:     make(chan *client),
		done:      make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// Run subscribes to every relayed channel and serves clients until ctx is
// cancelled, then closes all connections.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for _, ch := range Channels {
		go h.forward(ctx, ch)
	}

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return nil

		case c := <-h.join:
			h.clients[c] = struct{}{}
			h.logger.Info("ws: client connected", slog.Int("clients", len(h.clients)))

		case c := <-h.leave:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.logger.Info("ws: client disconnected", slog.Int("clients", len(h.clients)))
			}

		case msg := <-h.relay:
			for c := range h.clients {
				if !c.subscribed(msg.channel) {
					continue
				}
				if !c.enqueue(msg.data) {
					// Buffer full: disconnect.
					h.drop(c)
					h.logger.Warn("ws: disconnected slow client", slog.String("channel", msg.channel))
				}
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	c.close()
}

// forward copies one bus channel into the relay loop.
func (h *Hub) forward(ctx context.Context, channel string) {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.ErrorContext(ctx, "ws: subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				return
			}
			select {
			case h.relay <- relayed{channel: channel, data: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades the request and attaches the connection to the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(h, conn)
	c.enqueue(h.statusFrame())

	select {
	case h.join <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writeLoop()
	go c.readLoop()
}

// statusFrame lets clients mark the connection healthy before the first
// tick arrives.
func (h *Hub) statusFrame() []byte {
	uptime := int64(time.Since(h.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}
	return frame("exchange_status", map[string]any{
		"mode":          h.mode,
		"uptimeSeconds": uptime,
		"channels":      Channels,
	})
}
