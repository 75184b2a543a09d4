package notify

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"evsehub/internal/models"
)

type recordedRequest struct {
	path        string
	contentType string
	body        string
}

func newTestTelegram(t *testing.T, status int) (*Telegram, func() []recordedRequest) {
	t.Helper()

	var mu sync.Mutex
	var requests []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, recordedRequest{
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			body:        string(body),
		})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	tg := NewTelegram("bot-token", "chat-42", zap.NewNop())
	tg.baseURL = srv.URL

	return tg, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		out := make([]recordedRequest, len(requests))
		copy(out, requests)
		return out
	}
}

func TestTestMessage(t *testing.T) {
	tg, recorded := newTestTelegram(t, http.StatusOK)

	if err := tg.Test(); err != nil {
		t.Fatalf("test message: %v", err)
	}

	reqs := recorded()
	if len(reqs) != 1 {
		t.Fatalf("expected one request, got %d", len(reqs))
	}
	if reqs[0].path != "/botbot-token/sendMessage" {
		t.Fatalf("unexpected path %q", reqs[0].path)
	}
	if !strings.Contains(reqs[0].body, "chat_id=chat-42") {
		t.Fatalf("expected chat id in form body, got %q", reqs[0].body)
	}
	if !strings.Contains(reqs[0].body, "parse_mode=HTML") {
		t.Fatalf("expected HTML parse mode, got %q", reqs[0].body)
	}
}

func TestTestMessageAPIFailure(t *testing.T) {
	tg, _ := newTestTelegram(t, http.StatusForbidden)
	if err := tg.Test(); err == nil {
		t.Fatal("expected error on non-200 api response")
	}
}

func TestSessionEventsAreAsync(t *testing.T) {
	tg, recorded := newTestTelegram(t, http.StatusOK)

	tg.SessionStarted(models.Session{User: "Alice"})
	tg.SessionCompleted(models.Session{User: "Alice", EnergyKWh: 12.5, CostEstimate: 6.40, BatteryPercentGained: 19})
	tg.ChargerError("CP fault")

	waitFor(t, func() bool { return len(recorded()) == 3 })

	var sawStart, sawComplete, sawError bool
	for _, req := range recorded() {
		switch {
		case strings.Contains(req.body, "Charging+Started") || strings.Contains(req.body, "Charging Started"):
			sawStart = true
		case strings.Contains(req.body, "Charging+Complete") || strings.Contains(req.body, "Charging Complete"):
			sawComplete = true
		case strings.Contains(req.body, "CP+fault") || strings.Contains(req.body, "CP fault"):
			sawError = true
		}
	}
	if !sawStart || !sawComplete || !sawError {
		t.Fatalf("missing events: start=%v complete=%v error=%v", sawStart, sawComplete, sawError)
	}
}

func TestDisabledNotifierSendsNothing(t *testing.T) {
	tg := NewTelegram("", "", zap.NewNop())
	if tg.Enabled() {
		t.Fatal("expected notifier disabled without credentials")
	}
	if err := tg.Test(); err == nil {
		t.Fatal("expected Test to fail when disabled")
	}

	// Async paths must be silent no-ops.
	tg.SessionStarted(models.Session{User: "Alice"})
	tg.ChargerError("boom")
}

func TestSendDocument(t *testing.T) {
	tg, recorded := newTestTelegram(t, http.StatusOK)

	err := tg.SendDocument("sessions.json", []byte(`[{"id":"1"}]`), "Daily backup")
	if err != nil {
		t.Fatalf("send document: %v", err)
	}

	reqs := recorded()
	if len(reqs) != 1 {
		t.Fatalf("expected one request, got %d", len(reqs))
	}
	if reqs[0].path != "/botbot-token/sendDocument" {
		t.Fatalf("unexpected path %q", reqs[0].path)
	}
	if !strings.HasPrefix(reqs[0].contentType, "multipart/form-data") {
		t.Fatalf("expected multipart upload, got %q", reqs[0].contentType)
	}
	for _, want := range []string{"sessions.json", `[{"id":"1"}]`, "Daily backup", "disable_notification"} {
		if !strings.Contains(reqs[0].body, want) {
			t.Fatalf("upload body missing %q", want)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
