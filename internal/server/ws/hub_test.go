package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nexusx/nexus/internal/cache/memory"
	"github.com/nexusx/nexus/internal/domain"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func startHub(t *testing.T) (*memory.SignalBus, *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bus := memory.NewSignalBus()
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "serve"})
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return bus, conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	typ, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if typ != websocket.TextMessage {
		t.Fatalf("frame type = %d, want text", typ)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return env
}

// publishUntil republishes until stop is closed; the hub subscribes to
// the bus asynchronously.
func publishUntil(bus *memory.SignalBus, channel, payload string, stop <-chan struct{}) {
	tk := time.NewTicker(20 * time.Millisecond)
	defer tk.Stop()
	for {
		_ = bus.Publish(context.Background(), channel, []byte(payload))
		select {
		case <-stop:
			return
		case <-tk.C:
		}
	}
}

func TestHubSendsStatusThenRelaysBus(t *testing.T) {
	bus, conn := startHub(t)

	if env := readEnvelope(t, conn); env.Event != "exchange_status" {
		t.Fatalf("first event = %q, want exchange_status", env.Event)
	}

	stop := make(chan struct{})
	defer close(stop)
	go publishUntil(bus, domain.ChannelPrices, `{"event":"tick","data":[]}`, stop)

	if env := readEnvelope(t, conn); env.Event != "tick" {
		t.Errorf("relayed event = %q, want tick", env.Event)
	}
}

func TestHubUnsubscribe(t *testing.T) {
	bus, conn := startHub(t)
	readEnvelope(t, conn)

	if err := conn.WriteJSON(subscribeMsg{Action: "unsubscribe", Channels: []string{domain.ChannelPrices, "bogus"}}); err != nil {
		t.Fatal(err)
	}
	ack := readEnvelope(t, conn)
	if ack.Event != "subscriptions" {
		t.Fatalf("ack event = %q", ack.Event)
	}
	var active struct {
		Channels []string `json:"channels"`
	}
	if err := json.Unmarshal(ack.Data, &active); err != nil {
		t.Fatal(err)
	}
	if strings.Join(active.Channels, ",") != "listings,trades" {
		t.Fatalf("active channels = %v", active.Channels)
	}

	stop := make(chan struct{})
	defer close(stop)
	go publishUntil(bus, domain.ChannelPrices, `{"event":"tick"}`, stop)
	go publishUntil(bus, domain.ChannelTrades, `{"event":"trade_executed"}`, stop)

	for i := 0; i < 5; i++ {
		if env := readEnvelope(t, conn); env.Event != "trade_executed" {
			t.Fatalf("received %q after unsubscribing from prices", env.Event)
		}
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:5173"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if !check(req) {
		t.Error("request without Origin rejected")
	}
	req.Header.Set("Origin", "http://localhost:5173")
	if !check(req) {
		t.Error("allowed origin rejected")
	}
	req.Header.Set("Origin", "http://evil.example")
	if check(req) {
		t.Error("foreign origin accepted")
	}
	if !originChecker(nil)(req) {
		t.Error("empty allow list should accept any origin")
	}
}
