// Package mockapi is an in-process stand-in for the parking backend. It
// serves the REST endpoints and the live stream the console consumes,
// issues revocable tokens for one configured operator, and can generate
// synthetic gate traffic.
package mockapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	nanoid "github.com/matoous/go-nanoid/v2"
	"github.com/parkwatch/console/internal/client"
	"go.uber.org/zap"
)

const (
	tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	tokenLength   = 32
	historyLimit  = 200
	eventLogLimit = 500
)

// Config describes the mock operator and lot.
type Config struct {
	Username string
	Password string
	Profile  client.Identity
	Capacity int
}

// DefaultConfig returns an operator "admin" / "admin".
func DefaultConfig() Config {
	return Config{
		Username: "admin",
		Password: "admin",
		Profile: client.Identity{
			ID:       "1",
			Username: "admin",
			FullName: "Lot Administrator",
			Email:    "admin@parkwatch.local",
			Role:     "admin",
		},
		Capacity: 200,
	}
}

// Server is safe for concurrent use.
type Server struct {
	cfg Config
	log *zap.Logger
	hub *hub

	mu        sync.RWMutex
	tokens    map[string]bool
	alerts    []client.Alert // newest first
	events    []client.ParkingEvent
	occupancy client.Occupancy
}

// New creates a Server seeded with an empty lot of cfg.Capacity spaces.
func New(cfg Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 200
	}
	if cfg.Profile.Username == "" {
		cfg.Profile.Username = cfg.Username
	}
	return &Server{
		cfg:       cfg,
		log:       log,
		hub:       newHub(log),
		tokens:    make(map[string]bool),
		occupancy: client.Occupancy{Total: cfg.Capacity},
	}
}

// Handler returns the backend's routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)
	r.Use(requestLogging(s.log))

	r.Get("/ws", s.handleWS)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleMe)

			r.Get("/alerts", s.handleAlerts)
			r.Get("/alerts/history", s.handleAlertHistory)
			r.Put("/alerts/{id}/resolve", s.handleResolve)

			r.Get("/analytics/occupancy", s.handleOccupancy)
			r.Get("/events", s.handleEvents)
		})
	})
	return r
}

// --- Test hooks ---

// IssueToken mints a valid token without a login round trip.
func (s *Server) IssueToken() (string, error) {
	tok, err := nanoid.Generate(tokenAlphabet, tokenLength)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.tokens[tok] = true
	s.mu.Unlock()
	return tok, nil
}

// Revoke invalidates token, as if it expired. Stream clients that
// connected with it are dropped.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
	s.hub.dropWhere(func(sub *subscriber) bool { return sub.token == token })
}

// DropClients disconnects every stream client and returns how many were
// connected.
func (s *Server) DropClients() int {
	return s.hub.dropWhere(func(*subscriber) bool { return true })
}

// StreamClients returns the number of connected stream clients.
func (s *Server) StreamClients() int {
	return s.hub.count()
}

// Push sends one frame to every stream client. Payload is marshaled as
// the frame's payload; a json.RawMessage is sent verbatim.
func (s *Server) Push(tag client.EventTag, payload any) error {
	return s.hub.broadcast(tag, payload)
}

// PushRaw sends data to every stream client unframed.
func (s *Server) PushRaw(data []byte) {
	s.hub.broadcastRaw(data)
}

// SetAlerts replaces the backend's alert table.
func (s *Server) SetAlerts(alerts []client.Alert) {
	s.mu.Lock()
	s.alerts = slices.Clone(alerts)
	s.mu.Unlock()
}

// SetOccupancy overwrites the lot reading.
func (s *Server) SetOccupancy(current, total int) {
	s.mu.Lock()
	s.occupancy = client.Occupancy{Current: current, Total: total}
	s.mu.Unlock()
}

// --- Auth ---

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid form")
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "username and password are required")
		return
	}
	if username != s.cfg.Username || password != s.cfg.Password {
		writeDetail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	tok, err := s.IssueToken()
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "token generation failed")
		return
	}
	writeJSON(w, http.StatusOK, client.AuthResponse{AccessToken: tok, TokenType: "bearer"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Revoke(tokenFromContext(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Profile)
}

// --- Alerts ---

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.filterAlerts(false, 0))
}

func (s *Server) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.filterAlerts(true, historyLimit))
}

func (s *Server) filterAlerts(resolved bool, limit int) []client.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]client.Alert, 0)
	for _, a := range s.alerts {
		if a.Resolved != resolved {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	idx := slices.IndexFunc(s.alerts, func(a client.Alert) bool { return a.ID == id })
	if idx < 0 {
		s.mu.Unlock()
		writeDetail(w, http.StatusNotFound, "Alert not found")
		return
	}
	now := time.Now().UTC()
	a := &s.alerts[idx]
	a.Resolved = true
	a.ResolvedBy = s.cfg.Profile.Username
	a.ResolvedAt = &now
	resolved := *a
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, resolved)
}

// --- Analytics and events ---

func (s *Server) handleOccupancy(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	o := s.occupancy
	s.mu.RUnlock()
	if o.Total > 0 {
		o.Percentage = float64(o.Current) * 100 / float64(o.Total)
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeDetail(w, http.StatusUnprocessableEntity, "invalid limit")
			return
		}
		limit = n
	}

	s.mu.RLock()
	out := slices.Clone(s.events[:min(limit, len(s.events))])
	s.mu.RUnlock()
	if out == nil {
		out = []client.ParkingEvent{}
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Live stream ---

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	tok, ok := s.authorize(r)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("stream upgrade failed", zap.Error(err))
		return
	}

	s.log.Debug("stream client connected", zap.String("remote", r.RemoteAddr))
	sub := s.hub.add(conn, tok)

	go func() {
		defer func() {
			s.hub.remove(sub)
			s.log.Debug("stream client disconnected", zap.String("remote", r.RemoteAddr))
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// --- Middleware and helpers ---

type tokenKey struct{}

func tokenFromContext(ctx context.Context) string {
	tok, _ := ctx.Value(tokenKey{}).(string)
	return tok
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := s.authorize(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tokenKey{}, tok)))
	})
}

func (s *Server) authorize(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	tok, found := strings.CutPrefix(auth, "Bearer ")
	if !found || tok == "" {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tok, s.tokens[tok]
}

func requestLogging(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// ListenAndServe serves the mock backend on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.DropClients()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
