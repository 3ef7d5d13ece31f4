// Package gateway exposes the decision engine over HTTP and streams
// decision events to connected clients.
package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mergegate/mergegate/core/engine/decide"
	"github.com/mergegate/mergegate/core/engine/enforce"
	"github.com/mergegate/mergegate/core/engine/report"
	"github.com/mergegate/mergegate/core/infra/buildinfo"
	"github.com/mergegate/mergegate/core/infra/bus"
	"github.com/mergegate/mergegate/core/infra/config"
	"github.com/mergegate/mergegate/core/infra/logging"
	"github.com/mergegate/mergegate/core/infra/memory"
	infraMetrics "github.com/mergegate/mergegate/core/infra/metrics"
	"github.com/mergegate/mergegate/core/policy"
)

const (
	headerActorID    = "X-Actor-Id"
	headerActorRoles = "X-Actor-Roles"

	maxEvaluateBodyBytes = 4 << 20 // 4 MiB limit for changeset snapshots
)

// Bus is the slice of the event bus the gateway needs.
type Bus interface {
	PublishDecision(payload *report.AuditPayload) error
}

type server struct {
	store      memory.Store
	bus        Bus
	engine     *decide.Engine
	approve    policy.ApprovalConfig
	metrics    infraMetrics.Gateway
	decMetrics infraMetrics.Decision
	started    time.Time

	clients   map[*websocket.Conn]chan *report.AuditPayload
	clientsMu sync.RWMutex
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newServer(eng *decide.Engine, approve policy.ApprovalConfig, store memory.Store, b Bus, m infraMetrics.Gateway, dm infraMetrics.Decision) *server {
	if m == nil {
		m = infraMetrics.NoopGateway{}
	}
	if dm == nil {
		dm = infraMetrics.Noop{}
	}
	return &server{
		store:      store,
		bus:        b,
		engine:     eng,
		approve:    approve,
		metrics:    m,
		decMetrics: dm,
		started:    time.Now().UTC(),
		clients:    make(map[*websocket.Conn]chan *report.AuditPayload),
	}
}

// Run starts the gateway with the given configuration and blocks until the
// HTTP server exits.
func Run(cfg *config.Config) error {
	if cfg == nil {
		cfg = config.Load()
	}

	rs, err := policy.LoadRuleSet(cfg.RuleSetPath)
	if err != nil {
		return fmt.Errorf("load rule set: %w", err)
	}

	decMetrics := infraMetrics.NewProm("mergegate")
	eng, err := decide.New(rs, decMetrics)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}

	store, err := memory.NewRedisStore(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer store.Close()

	var eventBus Bus
	if cfg.BusEnabled {
		natsBus, err := bus.NewNatsBus(cfg.NatsURL)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer natsBus.Close()
		eventBus = natsBus
	}

	gwMetrics := infraMetrics.NewGatewayProm("mergegate_gateway")
	s := newServer(eng, rs.Approval, store, eventBus, gwMetrics, decMetrics)
	return s.start(cfg.HTTPAddr, cfg.MetricsAddr)
}

func (s *server) start(httpAddr, metricsAddr string) error {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", infraMetrics.Handler())
	go func() {
		srv := &http.Server{
			Addr:         metricsAddr,
			Handler:      metricsMux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		logging.Info("gateway", "metrics listening", "addr", metricsAddr+"/metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("gateway", "metrics server error", "error", err)
		}
	}()

	logging.Info("gateway", "http listening", "addr", httpAddr)
	srv := &http.Server{
		Addr:              httpAddr,
		Handler:           s.routes(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Error("gateway", "http server error", "error", err)
		return err
	}
	return nil
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.instrumented("/healthz", s.handleHealth))

	mux.HandleFunc("POST /api/v1/changesets/{id}/evaluate", s.instrumented("/api/v1/changesets/{id}/evaluate", s.handleEvaluate))
	mux.HandleFunc("POST /api/v1/changesets/{id}/approvals", s.instrumented("/api/v1/changesets/{id}/approvals", s.handleRecordApproval))
	mux.HandleFunc("GET /api/v1/changesets/{id}/approvals", s.instrumented("/api/v1/changesets/{id}/approvals", s.handleListApprovals))
	mux.HandleFunc("GET /api/v1/changesets/{id}/decision", s.instrumented("/api/v1/changesets/{id}/decision", s.handleGetDecision))

	mux.HandleFunc("GET /api/v1/events", s.instrumented("/api/v1/events", s.handleEvents))

	return mux
}

// --- Handlers ---

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	uptimeSeconds := int64(0)
	if !s.started.IsZero() {
		uptimeSeconds = int64(now.Sub(s.started).Seconds())
	}

	natsConnected := false
	natsStatus := "DISABLED"
	natsURL := ""
	if nb, ok := s.bus.(*bus.NatsBus); ok {
		natsConnected = nb.IsConnected()
		natsStatus = nb.Status()
		natsURL = nb.ConnectedURL()
	}

	redisOK := false
	redisErr := ""
	if rs, ok := s.store.(*memory.RedisStore); ok {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		err := rs.Ping(ctx)
		cancel()
		if err != nil {
			redisErr = err.Error()
		} else {
			redisOK = true
		}
	} else if s.store != nil {
		redisOK = true
	} else {
		redisErr = "store unavailable"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"time":           now.Format(time.RFC3339),
		"uptime_seconds": uptimeSeconds,
		"build":          buildinfo.Fields(),
		"nats": map[string]any{
			"connected": natsConnected,
			"status":    natsStatus,
			"url":       natsURL,
		},
		"redis": map[string]any{
			"ok":    redisOK,
			"error": redisErr,
		},
	})
}

type evaluateRequest struct {
	Files []changedFilePayload `json:"files"`
}

// changedFilePayload carries file content as plain text so callers do not
// have to base64-encode manifests.
type changedFilePayload struct {
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	Content string `json:"content,omitempty"`
}

func (s *server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	changesetID := strings.TrimSpace(r.PathValue("id"))
	if changesetID == "" {
		http.Error(w, "missing changeset id", http.StatusBadRequest)
		return
	}
	if s.engine == nil {
		http.Error(w, "engine unavailable", http.StatusServiceUnavailable)
		return
	}

	var body evaluateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEvaluateBodyBytes))
	if err := dec.Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if len(body.Files) == 0 {
		http.Error(w, "changeset has no files", http.StatusBadRequest)
		return
	}

	files := make([]decide.ChangedFile, 0, len(body.Files))
	for _, f := range body.Files {
		if strings.TrimSpace(f.Path) == "" {
			http.Error(w, "file entry missing path", http.StatusBadRequest)
			return
		}
		cf := decide.ChangedFile{Path: f.Path, Kind: decide.ChangeKind(f.Kind)}
		if f.Content != "" {
			cf.Content = []byte(f.Content)
		}
		files = append(files, cf)
	}

	var approvals []decide.Approval
	if s.store != nil {
		stored, err := s.store.ListApprovals(r.Context(), changesetID)
		if err != nil {
			logging.Error("gateway", "list approvals failed", "changeset", changesetID, "error", err)
			http.Error(w, "approval store unavailable", http.StatusServiceUnavailable)
			return
		}
		approvals = stored
	}

	decision := s.engine.Run(r.Context(), decide.Input{
		ChangesetID: changesetID,
		Actor:       actorFrom(r),
		Files:       files,
		Approvals:   approvals,
	})
	rep := report.Render(decision)

	payload, err := json.Marshal(rep.Payload)
	if err != nil {
		http.Error(w, "encode decision", http.StatusInternalServerError)
		return
	}
	if s.store != nil {
		if err := s.store.PutDecision(r.Context(), changesetID, payload); err != nil {
			logging.Error("gateway", "persist decision failed", "changeset", changesetID, "error", err)
			http.Error(w, "decision store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	if s.bus != nil {
		if err := s.bus.PublishDecision(&rep.Payload); err != nil {
			// Decision stands even when the event cannot be published.
			logging.Warn("gateway", "publish decision failed", "changeset", changesetID, "error", err)
		}
	}
	s.broadcast(&rep.Payload)

	writeJSON(w, http.StatusOK, rep)
}

type recordApprovalRequest struct {
	Role string `json:"role"`
}

func (s *server) handleRecordApproval(w http.ResponseWriter, r *http.Request) {
	changesetID := strings.TrimSpace(r.PathValue("id"))
	if changesetID == "" {
		http.Error(w, "missing changeset id", http.StatusBadRequest)
		return
	}
	if s.store == nil {
		http.Error(w, "approval store unavailable", http.StatusServiceUnavailable)
		return
	}

	actor := actorFrom(r)
	if actor.ID == "" {
		http.Error(w, "missing "+headerActorID+" header", http.StatusBadRequest)
		return
	}

	var body recordApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	role := policy.Role(strings.TrimSpace(body.Role))
	if role == "" {
		http.Error(w, "missing role", http.StatusBadRequest)
		return
	}
	if !s.approve.Recognized(role) {
		http.Error(w, fmt.Sprintf("role %q is not recognized", role), http.StatusBadRequest)
		return
	}
	if !actor.HasRole(role) {
		http.Error(w, fmt.Sprintf("actor does not hold role %q", role), http.StatusForbidden)
		return
	}

	// An approval is only meaningful against an evaluated snapshot; it is
	// pinned to that snapshot's hash so later commits void it.
	stored, err := s.store.GetDecision(r.Context(), changesetID)
	if err != nil {
		var nf *memory.ErrNotFound
		if errors.As(err, &nf) {
			http.Error(w, "no decision recorded; evaluate the changeset first", http.StatusConflict)
			return
		}
		http.Error(w, "decision store unavailable", http.StatusServiceUnavailable)
		return
	}
	var prior report.AuditPayload
	if err := json.Unmarshal(stored, &prior); err != nil {
		http.Error(w, "stored decision unreadable", http.StatusInternalServerError)
		return
	}
	if prior.Outcome != decide.OutcomeRequireApproval {
		http.Error(w, "changeset not awaiting approval", http.StatusConflict)
		return
	}

	ap := decide.Approval{
		Role:          role,
		ActorID:       actor.ID,
		RecordedAt:    time.Now().Unix(),
		ChangesetHash: prior.ChangesetHash,
	}
	if err := s.store.PutApproval(r.Context(), changesetID, ap); err != nil {
		logging.Error("gateway", "record approval failed", "changeset", changesetID, "error", err)
		http.Error(w, "approval store unavailable", http.StatusServiceUnavailable)
		return
	}
	s.decMetrics.IncApprovalRecorded(string(role))
	logging.Info("gateway", "approval recorded",
		"changeset", changesetID, "role", string(role), "actor", actor.ID)

	writeJSON(w, http.StatusCreated, ap)
}

func (s *server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	changesetID := strings.TrimSpace(r.PathValue("id"))
	if changesetID == "" {
		http.Error(w, "missing changeset id", http.StatusBadRequest)
		return
	}
	if s.store == nil {
		http.Error(w, "approval store unavailable", http.StatusServiceUnavailable)
		return
	}
	approvals, err := s.store.ListApprovals(r.Context(), changesetID)
	if err != nil {
		http.Error(w, "approval store unavailable", http.StatusServiceUnavailable)
		return
	}
	if approvals == nil {
		approvals = []decide.Approval{}
	}
	writeJSON(w, http.StatusOK, approvals)
}

func (s *server) handleGetDecision(w http.ResponseWriter, r *http.Request) {
	changesetID := strings.TrimSpace(r.PathValue("id"))
	if changesetID == "" {
		http.Error(w, "missing changeset id", http.StatusBadRequest)
		return
	}
	if s.store == nil {
		http.Error(w, "decision store unavailable", http.StatusServiceUnavailable)
		return
	}
	payload, err := s.store.GetDecision(r.Context(), changesetID)
	if err != nil {
		var nf *memory.ErrNotFound
		if errors.As(err, &nf) {
			http.Error(w, "decision not found", http.StatusNotFound)
			return
		}
		http.Error(w, "decision store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	logging.Info("gateway", "ws connection attempt", "remote", r.RemoteAddr)
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("gateway", "ws upgrade failed", "error", err)
		return
	}
	defer ws.Close()
	logging.Info("gateway", "ws connected", "remote", r.RemoteAddr)

	clientCh := make(chan *report.AuditPayload, 100)
	s.clientsMu.Lock()
	s.clients[ws] = clientCh
	s.clientsMu.Unlock()
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, ws)
		s.clientsMu.Unlock()
		close(clientCh)
	}()

	for {
		select {
		case payload, ok := <-clientCh:
			if !ok {
				return
			}
			data, err := json.Marshal(payload)
			if err != nil {
				logging.Error("gateway", "marshal event failed", "error", err)
				continue
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// broadcast fans a decision event out to connected stream clients. Slow
// clients drop events rather than block the request path.
func (s *server) broadcast(payload *report.AuditPayload) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for _, ch := range s.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// --- Helpers ---

// actorFrom resolves the already-authenticated identity from request
// headers. Authentication itself happens upstream of the gateway.
func actorFrom(r *http.Request) enforce.Actor {
	actor := enforce.Actor{ID: strings.TrimSpace(r.Header.Get(headerActorID))}
	for _, part := range strings.Split(r.Header.Get(headerActorRoles), ",") {
		role := strings.TrimSpace(part)
		if role != "" {
			actor.Roles = append(actor.Roles, policy.Role(role))
		}
	}
	return actor
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack forwards websocket hijacking support to the underlying writer when available.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("hijacker not supported")
	}
	return hj.Hijack()
}

// Flush preserves streaming support if the wrapped writer implements it.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// instrumented wraps handlers to record metrics.
func (s *server) instrumented(route string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		if s.metrics != nil {
			s.metrics.ObserveRequest(r.Method, route, fmt.Sprintf("%d", rec.status), time.Since(start).Seconds())
		}
	}
}
