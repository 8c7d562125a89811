package httpx

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alexishuch/availability-poll/internal/repository/memory"
	"github.com/alexishuch/availability-poll/internal/service/feed"
	"github.com/alexishuch/availability-poll/internal/service/participant"
	"github.com/alexishuch/availability-poll/internal/service/poll"
	"github.com/alexishuch/availability-poll/internal/service/slot"
	"github.com/alexishuch/availability-poll/internal/ws"
)

type rateLimiterStub struct {
	mu      sync.Mutex
	calls   []rateCall
	allowFn func(key string, limit int, window time.Duration) rateDecision
}

type rateCall struct {
	key   string
	limit int
}

func (s *rateLimiterStub) Allow(key string, limit int, window time.Duration) rateDecision {
	s.mu.Lock()
	s.calls = append(s.calls, rateCall{key: key, limit: limit})
	s.mu.Unlock()
	if s.allowFn != nil {
		return s.allowFn(key, limit, window)
	}
	return rateDecision{allowed: true, remaining: limit - 1}
}

func (s *rateLimiterStub) Close() {}

func newTestRouter(t *testing.T, opts Options) *Router {
	t.Helper()
	repo := memory.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := ws.NewHub()
	t.Cleanup(hub.Close)

	var pollOpts []poll.Option
	if opts.Metrics != nil {
		pollOpts = append(pollOpts, poll.WithComputeObserver(opts.Metrics.ObserveCompute))
	}
	pollSvc := poll.New(repo, repo, repo, log, pollOpts...)
	feedSvc := feed.New(pollSvc, hub, log)
	if opts.Limiter == nil {
		opts.Limiter = &rateLimiterStub{}
	}
	if opts.Heartbeat == 0 {
		opts.Heartbeat = 20 * time.Millisecond
	}
	router := NewRouter(log, Services{
		Polls:        pollSvc,
		Participants: participant.New(repo, repo, feedSvc, log),
		Slots:        slot.New(repo, repo, repo, feedSvc, log),
		Feed:         feedSvc,
	}, opts)
	t.Cleanup(router.Close)
	return router
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

// slotTime returns an hour of a day safely after any poll created now.
func slotTime(h int) time.Time {
	day := time.Now().UTC().AddDate(0, 0, 2).Truncate(24 * time.Hour)
	return day.Add(time.Duration(h) * time.Hour)
}

type fixture struct {
	pollID string
	john   string
	jane   string
}

func seedPoll(t *testing.T, h http.Handler) fixture {
	t.Helper()
	rr := doJSON(t, h, http.MethodPost, "/polls", map[string]any{"name": "Team sync"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create poll: %d %s", rr.Code, rr.Body.String())
	}
	f := fixture{pollID: decode[pollResponse](t, rr).ID}
	for _, name := range []string{"John", "Jane"} {
		rr := doJSON(t, h, http.MethodPost, "/participants", map[string]any{"poll_id": f.pollID, "name": name})
		if rr.Code != http.StatusCreated {
			t.Fatalf("create participant: %d %s", rr.Code, rr.Body.String())
		}
		id := decode[participantResponse](t, rr).ID
		if name == "John" {
			f.john = id
		} else {
			f.jane = id
		}
	}
	return f
}

func addSlot(t *testing.T, h http.Handler, participantID string, start, end time.Time) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, h, http.MethodPost, "/slots", map[string]any{
		"participant_id": participantID,
		"start":          start.Format(time.RFC3339),
		"end":            end.Format(time.RFC3339),
	})
}

func TestPollLifecycle(t *testing.T) {
	router := newTestRouter(t, Options{})
	f := seedPoll(t, router)

	for _, s := range []struct {
		who        string
		start, end int
	}{{f.john, 9, 12}, {f.jane, 11, 13}, {f.john, 14, 16}, {f.jane, 15, 18}} {
		if rr := addSlot(t, router, s.who, slotTime(s.start), slotTime(s.end)); rr.Code != http.StatusCreated {
			t.Fatalf("add slot: %d %s", rr.Code, rr.Body.String())
		}
	}

	rr := doJSON(t, router, http.MethodGet, "/polls/"+f.pollID+"/common-slots", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("common slots: %d %s", rr.Code, rr.Body.String())
	}
	var slots []struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
		Count int       `json:"count"`
		Names []string  `json:"names"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &slots); err != nil {
		t.Fatalf("decode slots: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("expected 2 common slots, got %s", rr.Body.String())
	}
	if !slots[0].Start.Equal(slotTime(11)) || !slots[0].End.Equal(slotTime(12)) || slots[0].Count != 2 {
		t.Fatalf("unexpected first slot: %+v", slots[0])
	}
	if strings.Join(slots[1].Names, ",") != "Jane,John" {
		t.Fatalf("unexpected names: %v", slots[1].Names)
	}

	rr = doJSON(t, router, http.MethodGet, "/polls/"+f.pollID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("poll detail: %d %s", rr.Code, rr.Body.String())
	}
	detail := decode[map[string]any](t, rr)
	if detail["id"] != f.pollID || detail["start_date"] != nil {
		t.Fatalf("unexpected detail: %v", detail)
	}
	if participants, _ := detail["participants"].([]any); len(participants) != 2 {
		t.Fatalf("expected 2 participants, got %v", detail["participants"])
	}

	rr = doJSON(t, router, http.MethodGet, "/participants/"+f.john, nil)
	if got := decode[participantDetailResponse](t, rr); len(got.Slots) != 2 {
		t.Fatalf("expected John to have 2 slots, got %+v", got)
	}

	if rr := doJSON(t, router, http.MethodDelete, "/polls/"+f.pollID, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete poll: %d", rr.Code)
	}
	if rr := doJSON(t, router, http.MethodGet, "/participants/"+f.john, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("participant should be gone, got %d", rr.Code)
	}
}

func TestCommonSlotsEmptyRendersArray(t *testing.T) {
	router := newTestRouter(t, Options{})
	f := seedPoll(t, router)

	rr := doJSON(t, router, http.MethodGet, "/polls/"+f.pollID+"/common-slots?order=participants", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Fatalf("expected empty array, got %s", body)
	}
	rr = doJSON(t, router, http.MethodGet, "/polls/"+f.pollID+"/common-slots?order=size", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown order, got %d", rr.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	router := newTestRouter(t, Options{})
	f := seedPoll(t, router)
	if rr := addSlot(t, router, f.john, slotTime(9), slotTime(10)); rr.Code != http.StatusCreated {
		t.Fatalf("add slot: %d %s", rr.Code, rr.Body.String())
	}

	cases := []struct {
		name    string
		method  string
		path    string
		body    any
		status  int
		message string
	}{
		{"missing name", http.MethodPost, "/polls", map[string]any{"name": ""}, http.StatusBadRequest, "name is required"},
		{"bad date", http.MethodPost, "/polls", map[string]any{"name": "x", "start_date": "03/10/2025"}, http.StatusBadRequest, "start_date must match 2006-01-02"},
		{"past start", http.MethodPost, "/polls", map[string]any{"name": "x", "start_date": "2000-01-01"}, http.StatusBadRequest, "poll start date cannot be in the past"},
		{"unknown field", http.MethodPost, "/polls", map[string]any{"title": "x"}, http.StatusBadRequest, "invalid JSON body"},
		{"unknown poll", http.MethodGet, "/polls/3f1c1d2e-0000-4000-8000-000000000000", nil, http.StatusNotFound, "poll not found"},
		{"duplicate name", http.MethodPost, "/participants", map[string]any{"poll_id": f.pollID, "name": "JOHN"}, http.StatusConflict, ""},
		{"bad participant id", http.MethodPost, "/participants", map[string]any{"poll_id": "nope", "name": "Joe"}, http.StatusBadRequest, "poll_id must be a UUID"},
		{"overlapping slot", http.MethodPost, "/slots", map[string]any{
			"participant_id": f.john,
			"start":          slotTime(9).Add(30 * time.Minute).Format(time.RFC3339),
			"end":            slotTime(11).Format(time.RFC3339),
		}, http.StatusConflict, "participant already has an overlapping or identical slot"},
		{"empty slot", http.MethodPost, "/slots", map[string]any{
			"participant_id": f.jane,
			"start":          slotTime(9).Format(time.RFC3339),
			"end":            slotTime(9).Format(time.RFC3339),
		}, http.StatusBadRequest, "slot end must be after slot start"},
		{"unknown slot", http.MethodDelete, "/slots/3f1c1d2e-0000-4000-8000-000000000000", nil, http.StatusNotFound, "slot not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSON(t, router, tc.method, tc.path, tc.body)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			if tc.message == "" {
				return
			}
			if got := decode[map[string]string](t, rr)["error"]; got != tc.message {
				t.Fatalf("expected error %q, got %q", tc.message, got)
			}
		})
	}
}

func TestRateLimitRejects(t *testing.T) {
	reset := time.Unix(1_950_000_000, 0)
	limiter := &rateLimiterStub{allowFn: func(key string, limit int, window time.Duration) rateDecision {
		return rateDecision{allowed: false, remaining: 0, resetAt: reset}
	}}
	router := newTestRouter(t, Options{Limiter: limiter, WritePerMinute: 7})

	req := httptest.NewRequest(http.MethodPost, "/polls", strings.NewReader(`{"name":"x"}`))
	req.RemoteAddr = "203.0.113.9:5555"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("X-RateLimit-Limit"); got != "7" {
		t.Fatalf("unexpected limit header %q", got)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("unexpected remaining header %q", got)
	}
	if got := rr.Header().Get("X-RateLimit-Reset"); got != "1950000000" {
		t.Fatalf("unexpected reset header %q", got)
	}

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if len(limiter.calls) != 1 || limiter.calls[0].key != "write:ip:203.0.113.9" {
		t.Fatalf("unexpected limiter calls: %+v", limiter.calls)
	}
}

func TestMemoryRateLimiter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := newMemoryRateLimiter(func() time.Time { return now })

	for i := range 3 {
		d := rl.Allow("ip:1", 3, time.Minute)
		if !d.allowed {
			t.Fatalf("request %d unexpectedly limited", i)
		}
		if d.remaining != 2-i {
			t.Fatalf("request %d: expected %d remaining, got %d", i, 2-i, d.remaining)
		}
	}
	if d := rl.Allow("ip:1", 3, time.Minute); d.allowed {
		t.Fatal("fourth request should be limited")
	}
	if d := rl.Allow("ip:2", 3, time.Minute); !d.allowed {
		t.Fatal("other keys must not share the bucket")
	}

	now = now.Add(21 * time.Second)
	if d := rl.Allow("ip:1", 3, time.Minute); !d.allowed {
		t.Fatal("a token should have been refilled after 21s")
	}

	now = now.Add(time.Hour)
	rl.cleanup(now)
	if len(rl.entries) != 0 {
		t.Fatalf("expected idle buckets swept, got %d", len(rl.entries))
	}
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, Options{DBHealth: func(context.Context) error { return errors.New("connection refused") }})
	rr := doJSON(t, router, http.MethodGet, "/healthz", nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if status := decode[map[string]any](t, rr)["status"]; status != "degraded" {
		t.Fatalf("unexpected status %v", status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	router := newTestRouter(t, Options{Metrics: NewMetrics(reg, reg)})
	f := seedPoll(t, router)
	doJSON(t, router, http.MethodGet, "/polls/"+f.pollID+"/common-slots", nil)

	rr := doJSON(t, router, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`poll_api_http_requests_total{method="POST",route="POST /polls",status="201"} 1`,
		"poll_engine_common_slots_duration_seconds_count 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func waitForSubscribers(t *testing.T, router *Router, pollID string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for router.feed.Hub().Subscribers(pollID) != n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d subscribers", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPollEventsStream(t *testing.T) {
	router := newTestRouter(t, Options{})
	server := httptest.NewServer(router)
	defer server.Close()
	f := seedPoll(t, router)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/polls/"+f.pollID+"/events", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	frames := make(chan feed.Payload, 4)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var p feed.Payload
				if json.Unmarshal([]byte(data), &p) == nil {
					frames <- p
				}
			}
		}
	}()

	next := func() feed.Payload {
		select {
		case p := <-frames:
			return p
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for event")
		}
		return feed.Payload{}
	}

	if p := next(); p.Event != feed.EventSnapshot || len(p.CommonSlots) != 0 {
		t.Fatalf("unexpected snapshot: %+v", p)
	}
	waitForSubscribers(t, router, f.pollID, 1)

	addSlot(t, router, f.john, slotTime(9), slotTime(11))
	if p := next(); p.Reason != "slot_added" || len(p.CommonSlots) != 0 {
		t.Fatalf("unexpected first update: %+v", p)
	}
	addSlot(t, router, f.jane, slotTime(10), slotTime(12))
	p := next()
	if p.Event != feed.EventUpdate || len(p.CommonSlots) != 1 || p.CommonSlots[0].Count != 2 {
		t.Fatalf("unexpected second update: %+v", p)
	}
}

func TestPollEventsUnknownPoll(t *testing.T) {
	router := newTestRouter(t, Options{})
	rr := doJSON(t, router, http.MethodGet, "/polls/3f1c1d2e-0000-4000-8000-000000000000/events", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestPollWebsocket(t *testing.T) {
	router := newTestRouter(t, Options{})
	server := httptest.NewServer(router)
	defer server.Close()
	f := seedPoll(t, router)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/polls/" + f.pollID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var snapshot feed.Payload
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snapshot.Event != feed.EventSnapshot || snapshot.PollID != f.pollID {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
	waitForSubscribers(t, router, f.pollID, 1)

	if rr := doJSON(t, router, http.MethodDelete, "/participants/"+f.jane, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete participant: %d", rr.Code)
	}
	var update feed.Payload
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if update.Reason != "participant_removed" {
		t.Fatalf("unexpected update: %+v", update)
	}

	conn.Close()
	waitForSubscribers(t, router, f.pollID, 0)
}
