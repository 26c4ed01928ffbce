package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordingSender struct {
	name string
	err  error
	got  []Message
}

func (r *recordingSender) Send(_ context.Context, m Message) error {
	r.got = append(r.got, m)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifierFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{s}, []string{"cycle_failed", " cycle_completed "}, quiet())
	ctx := context.Background()

	for _, ev := range []string{"cycle_found", "cycle_completed", "phase_started", "cycle_failed"} {
		if err := n.Notify(ctx, ev, "t", "m"); err != nil {
			t.Fatal(err)
		}
	}
	if len(s.got) != 2 || s.got[0].Event != "cycle_completed" || s.got[1].Event != "cycle_failed" {
		t.Fatalf("got=%+v", s.got)
	}
}

func TestNotifierEmptyFilterAllowsAll(t *testing.T) {
	n := NewNotifier(nil, nil, quiet())
	if !n.Allows("anything") || n.Enabled() {
		t.Fatal("empty notifier should allow everything and be disabled")
	}
}

func TestNotifierKeepsGoingAfterSenderFailure(t *testing.T) {
	boom := errors.New("boom")
	bad := &recordingSender{name: "bad", err: boom}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, quiet())

	err := n.Notify(context.Background(), "cycle_failed", "t", "m")
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if len(good.got) != 1 {
		t.Fatal("second sender not reached")
	}
}

func TestTelegramSender(t *testing.T) {
	var path string
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&payload)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42", WithBaseURL(srv.URL))
	err := s.Send(context.Background(), Message{Event: "cycle_failed", Title: "Cycle abc FAILED", Body: "LTC held on kraken: not_found"})
	if err != nil {
		t.Fatal(err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Fatalf("path=%s", path)
	}
	text, _ := payload["text"].(string)
	if payload["chat_id"] != "42" || !strings.Contains(text, "⚠️ Cycle abc FAILED") || !strings.Contains(text, `not\_found`) {
		t.Fatalf("payload=%v", payload)
	}
}

func TestDiscordSender(t *testing.T) {
	var payload struct {
		Embeds []discordEmbed `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	if err := s.Send(context.Background(), Message{Event: "cycle_completed", Title: "done", Body: "pnl 0.05"}); err != nil {
		t.Fatal(err)
	}
	if len(payload.Embeds) != 1 || payload.Embeds[0].Color != discordGreen || payload.Embeds[0].Footer.Text != "cycle_completed" {
		t.Fatalf("payload=%+v", payload)
	}
}

func TestSenderReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad webhook", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), Message{Title: "x"})
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("err=%v", err)
	}
}
