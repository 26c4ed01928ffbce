package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/cyclebot/internal/domain"
	"github.com/alanyoungcy/cyclebot/internal/executor"
	"github.com/alanyoungcy/cyclebot/internal/server/handler"
	"github.com/alanyoungcy/cyclebot/internal/server/ws"
)

type fixedStatus struct{ s executor.Status }

func (f fixedStatus) Status() executor.Status { return f.s }

type pingerFunc func(context.Context) error

func (p pingerFunc) Ping(ctx context.Context) error { return p(ctx) }

type fakeStream struct {
	msgs []domain.StreamMessage
	err  error
}

func (f fakeStream) StreamRead(_ context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	if stream != executor.CyclesStream {
		return nil, errors.New("wrong stream")
	}
	return f.msgs, f.err
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string, int, time.Duration) (bool, error) { return false, nil }
func (denyAll) Wait(context.Context, string) error { return nil }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testHandlers(redisErr error, stream fakeStream) Handlers {
	status := fixedStatus{executor.Status{Threshold: decimal.RequireFromString("1.5"), Passes: 3}}
	return Handlers{
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"redis": pingerFunc(func(context.Context) error { return redisErr }),
		}, quiet()),
		Status: handler.NewStatusHandler("paper", []string{"gdax", "kraken"}, status),
		Cycles: handler.NewCycleHandler(stream, quiet()),
	}
}

func do(t *testing.T, h http.Handler, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := Routes(Config{APIKey: "secret"}, testHandlers(nil, fakeStream{}), nil, nil, quiet())
	rec := do(t, h, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id")
	}

	h = Routes(Config{}, testHandlers(errors.New("connection refused"), fakeStream{}), nil, nil, quiet())
	rec = do(t, h, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "degraded") {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body)
	}
}

func TestStatusRequiresKey(t *testing.T) {
	h := Routes(Config{APIKey: "secret"}, testHandlers(nil, fakeStream{}), nil, nil, quiet())

	if rec := do(t, h, http.MethodGet, "/api/status", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no key: code=%d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/status", map[string]string{"X-API-Key": "wrong"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: code=%d", rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/api/status", map[string]string{"Authorization": "Bearer secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}
	var body struct {
		Mode      string          `json:"mode"`
		Exchanges []string        `json:"exchanges"`
		Engine    executor.Status `json:"engine"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Mode != "paper" || len(body.Exchanges) != 2 || body.Engine.Passes != 3 ||
		!body.Engine.Threshold.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("body=%+v", body)
	}
}

func TestCycles(t *testing.T) {
	ev, _ := json.Marshal(domain.CycleEvent{Kind: domain.EventCycleCompleted, CycleID: "c1"})
	stream := fakeStream{msgs: []domain.StreamMessage{
		{ID: "1-0", Payload: ev},
		{ID: "2-0", Payload: []byte("not json")},
	}}
	h := Routes(Config{}, testHandlers(nil, stream), nil, nil, quiet())

	rec := do(t, h, http.MethodGet, "/api/cycles?limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d", rec.Code)
	}
	var body struct {
		Cycles []struct {
			StreamID string            `json:"stream_id"`
			Event    domain.CycleEvent `json:"event"`
		} `json:"cycles"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Cycles) != 1 || body.Cycles[0].StreamID != "1-0" || body.Cycles[0].Event.CycleID != "c1" {
		t.Fatalf("body=%+v", body)
	}

	h = Routes(Config{}, testHandlers(nil, fakeStream{err: errors.New("down")}), nil, nil, quiet())
	if rec := do(t, h, http.MethodGet, "/api/cycles", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code=%d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := Routes(Config{APIKey: "secret", CORSOrigins: []string{"https://ops.example"}}, testHandlers(nil, fakeStream{}), nil, nil, quiet())

	rec := do(t, h, http.MethodOptions, "/api/status", map[string]string{"Origin": "https://ops.example"})
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://ops.example" {
		t.Fatalf("code=%d headers=%v", rec.Code, rec.Header())
	}
	rec = do(t, h, http.MethodOptions, "/api/status", map[string]string{"Origin": "https://evil.example"})
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unexpected origin allowed")
	}
}

func TestRateLimit(t *testing.T) {
	h := Routes(Config{RateLimit: 10}, testHandlers(nil, fakeStream{}), nil, denyAll{}, quiet())
	if rec := do(t, h, http.MethodGet, "/api/status", nil); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("code=%d", rec.Code)
	}
}

func TestWebSocketStreamsEvents(t *testing.T) {
	hub := ws.NewHub(nil, ws.Config{Status: func() any { return map[string]int{"passes": 7} }}, quiet())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(Routes(Config{}, testHandlers(nil, fakeStream{}), hub, nil, quiet()))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello struct {
		Type    string         `json:"type"`
		Payload map[string]int `json:"payload"`
	}
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatal(err)
	}
	if hello.Type != ws.TypeHello || hello.Payload["passes"] != 7 {
		t.Fatalf("hello=%+v", hello)
	}

	hub.Report(ctx, domain.CycleEvent{Kind: domain.EventCycleFound, CycleID: "abc"})

	var msg struct {
		Type    string            `json:"type"`
		Payload domain.CycleEvent `json:"payload"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != ws.TypeCycleEvent || msg.Payload.CycleID != "abc" || msg.Payload.Kind != domain.EventCycleFound {
		t.Fatalf("msg=%+v", msg)
	}
}

func TestWebSocketAfterHubStopped(t *testing.T) {
	hub := ws.NewHub(nil, ws.Config{}, quiet())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	_, _, err = conn.ReadMessage()
	var ne net.Error
	if err == nil || (errors.As(err, &ne) && ne.Timeout()) {
		t.Fatalf("connection left open after the hub stopped: err=%v", err)
	}
}
