package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alexishuch/availability-poll/internal/service/feed"
	"github.com/alexishuch/availability-poll/internal/service/participant"
	"github.com/alexishuch/availability-poll/internal/service/poll"
	"github.com/alexishuch/availability-poll/internal/service/slot"
)

const (
	rateWindow          = time.Minute
	defaultReadLimit    = 240
	defaultWriteLimit   = 60
	defaultHeartbeat    = 25 * time.Second
	healthCheckTimeout  = 2 * time.Second
	streamSnapshotLimit = 5 * time.Second
)

// Services bundles the application services exposed over HTTP.
type Services struct {
	Polls        poll.Service
	Participants participant.Service
	Slots        slot.Service
	Feed         feed.Service
}

// Options tunes the router. Zero values select defaults; a negative limit
// disables rate limiting for that class.
type Options struct {
	Limiter        RateLimiter
	Metrics        *Metrics
	DBHealth       func(context.Context) error
	ReadPerMinute  int
	WritePerMinute int
	Heartbeat      time.Duration
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux          *http.ServeMux
	logger       *slog.Logger
	polls        poll.Service
	participants participant.Service
	slots        slot.Service
	feed         feed.Service
	upgrader     websocket.Upgrader
	limiter      RateLimiter
	metrics      *Metrics
	dbHealth     func(context.Context) error
	readLimit    int
	writeLimit   int
	heartbeat    time.Duration
}

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, services Services, opts Options) *Router {
	r := &Router{
		mux:          http.NewServeMux(),
		logger:       logger,
		polls:        services.Polls,
		participants: services.Participants,
		slots:        services.Slots,
		feed:         services.Feed,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:    opts.Limiter,
		metrics:    opts.Metrics,
		dbHealth:   opts.DBHealth,
		readLimit:  orDefault(opts.ReadPerMinute, defaultReadLimit),
		writeLimit: orDefault(opts.WritePerMinute, defaultWriteLimit),
		heartbeat:  opts.Heartbeat,
	}
	if r.heartbeat <= 0 {
		r.heartbeat = defaultHeartbeat
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.register()
	return r
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) read(next http.HandlerFunc) http.HandlerFunc {
	return r.audit(r.withRateLimit("read", r.readLimit, next))
}

func (r *Router) write(next http.HandlerFunc) http.HandlerFunc {
	return r.audit(r.withRateLimit("write", r.writeLimit, next))
}

func (r *Router) register() {
	r.mux.HandleFunc("GET /healthz", r.audit(r.handleHealthz))
	if r.metrics != nil {
		r.mux.Handle("GET /metrics", r.metrics.Handler())
	}

	r.mux.HandleFunc("POST /polls", r.write(r.handleCreatePoll))
	r.mux.HandleFunc("GET /polls", r.read(r.handleListPolls))
	r.mux.HandleFunc("GET /polls/{id}", r.read(r.handleGetPoll))
	r.mux.HandleFunc("PATCH /polls/{id}", r.write(r.handleUpdatePoll))
	r.mux.HandleFunc("DELETE /polls/{id}", r.write(r.handleDeletePoll))
	r.mux.HandleFunc("GET /polls/{id}/common-slots", r.read(r.handleCommonSlots))
	r.mux.HandleFunc("GET /polls/{id}/participants", r.read(r.handleListParticipants))
	r.mux.HandleFunc("GET /polls/{id}/events", r.read(r.handlePollEvents))
	r.mux.HandleFunc("GET /ws/polls/{id}", r.read(r.handlePollWS))

	r.mux.HandleFunc("POST /participants", r.write(r.handleCreateParticipant))
	r.mux.HandleFunc("GET /participants/{id}", r.read(r.handleGetParticipant))
	r.mux.HandleFunc("PATCH /participants/{id}", r.write(r.handleRenameParticipant))
	r.mux.HandleFunc("DELETE /participants/{id}", r.write(r.handleDeleteParticipant))

	r.mux.HandleFunc("POST /slots", r.write(r.handleCreateSlot))
	r.mux.HandleFunc("GET /slots/{id}", r.read(r.handleGetSlot))
	r.mux.HandleFunc("DELETE /slots/{id}", r.write(r.handleDeleteSlot))
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}
