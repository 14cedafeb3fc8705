package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"skillroutine/internal/config"
	"skillroutine/internal/engine"
	"skillroutine/internal/events"
	"skillroutine/internal/progress"
)

type capturedHook struct {
	mu       sync.Mutex
	headers  []http.Header
	bodies   []webhookEvent
	failNext bool
}

func (c *capturedHook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext {
		c.failNext = false
		http.Error(w, "try later", http.StatusServiceUnavailable)
		return
	}
	data, _ := io.ReadAll(r.Body)
	var evt webhookEvent
	_ = json.Unmarshal(data, &evt)
	c.headers = append(c.headers, r.Header.Clone())
	c.bodies = append(c.bodies, evt)
	w.WriteHeader(http.StatusNoContent)
}

func TestWebhookDispatcherDeliversMatchingEvents(t *testing.T) {
	ctx := context.Background()
	hook := &capturedHook{}
	target := httptest.NewServer(hook)
	defer target.Close()

	e := newTestEngine(t)
	e.Config.Webhooks = []config.WebhookConfig{{
		URL:    target.URL,
		Events: []string{events.ActivityLogged},
		Secret: "s3cret",
	}}
	d := newWebhookDispatcher(e, nil)
	if d == nil {
		t.Fatalf("expected dispatcher")
	}

	u, err := e.Register(ctx, engine.RegisterOptions{Email: "neo@example.com", Username: "neo", Password: "secret"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	// Events before the first poll are skipped.
	d.dispatchAll(ctx)

	if _, err := e.LogActivity(ctx, u.ID, progress.ActivityInput{Activity: "study", Minutes: 10}); err != nil {
		t.Fatalf("log: %v", err)
	}
	hook.mu.Lock()
	hook.failNext = true
	hook.mu.Unlock()
	d.dispatchAll(ctx)
	hook.mu.Lock()
	failed := len(hook.bodies)
	hook.mu.Unlock()
	if failed != 0 {
		t.Fatalf("failed delivery should not be recorded")
	}
	d.dispatchAll(ctx)

	hook.mu.Lock()
	defer hook.mu.Unlock()
	if len(hook.bodies) != 1 {
		t.Fatalf("expected one delivery after retry, got %d", len(hook.bodies))
	}
	got := hook.bodies[0]
	if got.Type != events.ActivityLogged || got.UserID != u.ID {
		t.Fatalf("unexpected delivery %+v", got)
	}
	h := hook.headers[0]
	if h.Get("X-SkillRoutine-Event") != events.ActivityLogged || h.Get("X-SkillRoutine-Secret") != "s3cret" || h.Get("X-SkillRoutine-Delivery") == "" {
		t.Fatalf("unexpected headers %v", h)
	}
}

func TestWebhookDispatcherDisabled(t *testing.T) {
	e := newTestEngine(t)
	if newWebhookDispatcher(e, nil) != nil {
		t.Fatalf("no webhooks configured, expected no dispatcher")
	}
	off := false
	e.Config.Webhooks = []config.WebhookConfig{{URL: "http://127.0.0.1:1", Enabled: &off}}
	d := newWebhookDispatcher(e, nil)
	d.dispatchAll(context.Background())
	if len(d.cursors) != 0 {
		t.Fatalf("disabled hook should not be polled")
	}
}

func TestEventFilter(t *testing.T) {
	if !newEventFilter(nil).match("anything") {
		t.Fatalf("empty filter matches all")
	}
	if !newEventFilter([]string{" ", ""}).match("x") {
		t.Fatalf("blank entries mean all")
	}
	f := newEventFilter([]string{events.LevelUp})
	if !f.match(events.LevelUp) || f.match(events.ActivityLogged) {
		t.Fatalf("unexpected filter result")
	}
}
