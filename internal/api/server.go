package api

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ncuskey/solid-couscous/internal/events"
	"github.com/ncuskey/solid-couscous/internal/lockbox"
	"github.com/ncuskey/solid-couscous/internal/mqtt"
	"github.com/ncuskey/solid-couscous/internal/puzzle"
	"github.com/ncuskey/solid-couscous/internal/storage/postgres"
	"github.com/ncuskey/solid-couscous/internal/version"
)

//go:embed pages/*.html
var pageFS embed.FS

const (
	shutdownTimeout = 5 * time.Second
	auditQueryWait  = 5 * time.Second
)

// AuditTrail reads back persisted events.
type AuditTrail interface {
	Query(ctx context.Context, limit int) ([]postgres.EventRow, error)
}

// Options wires a Server to the rest of the process.
type Options struct {
	Box        *lockbox.Box
	DeviceName string
	// Controller is nil unless the lock sits behind an MQTT controller.
	Controller *mqtt.StatusMonitor
	// Audit serves /events?source=db. Nil when Postgres is disabled.
	Audit      AuditTrail
}

// Server dispatches kiosk and operator HTTP routes.
type Server struct {
	box        *lockbox.Box
	deviceName string
	controller *mqtt.StatusMonitor
	audit      AuditTrail
	mux        *http.ServeMux
}

// NewServer builds the route table. Paths not listed here get a 404.
func NewServer(opts Options) (*Server, error) {
	if opts.Box == nil {
		return nil, errors.New("api: nil box")
	}
	s := &Server{
		box:        opts.Box,
		deviceName: opts.DeviceName,
		controller: opts.Controller,
		audit:      opts.Audit,
		mux:        http.NewServeMux(),
	}

	if err := s.loadPage("/{$}", "index.html"); err != nil {
		return nil, err
	}
	for _, p := range puzzle.All() {
		if err := s.loadPage(p.Route, p.Page); err != nil {
			return nil, err
		}
	}
	s.mux.HandleFunc("/solve", s.solveHandler)

	s.mux.HandleFunc("/health", healthHandler)
	s.mux.HandleFunc("/ready", readyHandler)
	s.mux.HandleFunc("/status", RequireAdmin(s.statusHandler))
	s.mux.HandleFunc("/events", RequireAdmin(s.eventsHandler))
	s.mux.HandleFunc("/ws/events", RequireAdmin(wsEventsHandler))
	s.mux.HandleFunc("/metrics", RequireAdmin(promhttp.Handler().ServeHTTP))
	s.mux.HandleFunc("/ui", RequireAdmin(operatorUIHandler))
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) loadPage(pattern, file string) error {
	body, err := pageFS.ReadFile("pages/" + file)
	if err != nil {
		return fmt.Errorf("api: load page %s: %w", file, err)
	}
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(body)
	})
	return nil
}

// solveHandler accepts a solve signal. The reply is always 200 "ok" so the
// page cannot tell a recorded signal from a duplicate or a bad number.
func (s *Server) solveHandler(w http.ResponseWriter, r *http.Request) {
	out := s.box.Solve(r.Context(), r.URL.Query().Get("puzzle"))
	recordSolve(out)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte("ok"))
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	resp := HealthResponse{
		Status:    "ok",
		Service:   "lockbox",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

type ControllerResponse struct {
	Topic     string     `json:"topic"`
	Connected bool       `json:"connected"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
}

type StatusResponse struct {
	Device     string              `json:"device"`
	BootID     string              `json:"boot_id"`
	Version    string              `json:"version"`
	Uptime     string              `json:"uptime"`
	Driver     string              `json:"driver"`
	Box        lockbox.Snapshot    `json:"box"`
	Controller *ControllerResponse `json:"controller,omitempty"`
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Device:  s.deviceName,
		BootID:  events.BootID(),
		Version: version.Version,
		Uptime:  time.Since(startTime).Round(time.Second).String(),
		Driver:  s.box.Latch().DriverName(),
		Box:     s.box.Snapshot(),
	}
	if s.controller != nil {
		st := s.controller.Status()
		cr := &ControllerResponse{Topic: st.Topic, Connected: st.Connected}
		if !st.LastSeen.IsZero() {
			cr.LastSeen = &st.LastSeen
		}
		resp.Controller = cr
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// eventsHandler returns the in-memory ring buffer, or with source=db the
// newest rows of the Postgres audit trail.
func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch q.Get("source") {
	case "", "memory":
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(events.Snapshot())
		return
	case "db":
	default:
		http.Error(w, "unknown source", http.StatusBadRequest)
		return
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	if s.audit == nil {
		http.Error(w, "audit trail disabled", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), auditQueryWait)
	defer cancel()
	rows, err := s.audit.Query(ctx, limit)
	if err != nil {
		log.Printf("api: audit query failed: %v", err)
		http.Error(w, "audit trail unavailable", http.StatusServiceUnavailable)
		return
	}
	if rows == nil {
		rows = []postgres.EventRow{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rows)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	tlsCfg, err := LoadTLSConfig()
	if err != nil {
		return err
	}
	srv.TLSConfig = tlsCfg

	errc := make(chan error, 1)
	go func() {
		if tlsCfg != nil {
			log.Printf("lockbox listening on %s (https)", srv.Addr)
			errc <- srv.ListenAndServeTLS("", "")
			return
		}
		log.Printf("lockbox listening on %s", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	// Websocket handlers return once their subscription closes.
	events.CloseAllSubscribers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return nil
}
