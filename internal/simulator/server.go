// Package simulator is an in-process stand-in for the remote payment
// assistant: token login, the transaction endpoints, a fake extraction of
// uploads and an agent that walks approved payments through the PIN step.
package simulator

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"payagent/internal/config"
	"payagent/internal/logging"
	"payagent/internal/txn/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
)

// Config controls the simulated service
type Config struct {
	Addr      string
	AgentStep time.Duration
	Username  string
	Password  string
	PIN       string
}

// ConfigFrom extracts the simulator settings from the application config
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Addr:      cfg.Simulator.Addr,
		AgentStep: cfg.Simulator.AgentStep,
		Username:  cfg.Simulator.Username,
		Password:  cfg.Simulator.Password,
		PIN:       cfg.Simulator.PIN,
	}
}

// Server serves the simulated API
type Server struct {
	config Config
	state  *state
	router chi.Router
	logger *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a simulator with an empty database
func New(cfg Config) *Server {
	if cfg.Username == "" {
		cfg.Username = "admin@example.com"
	}
	if cfg.Password == "" {
		cfg.Password = "password"
	}
	if cfg.PIN == "" {
		cfg.PIN = "123456"
	}
	if cfg.AgentStep <= 0 {
		cfg.AgentStep = 2 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config: cfg,
		state:  newState(time.Now),
		logger: logging.NewDefaultLogger("simulator"),
		ctx:    ctx,
		cancel: cancel,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/token", s.handleToken)
	r.Get("/static/live_feed.png", s.handleFeed)

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)

		r.Post("/upload", s.handleUpload)
		r.Get("/audits", s.handleAudits)
		r.Get("/transactions/pending", s.handlePending)
		r.Post("/transactions/approve_batch/{batchID}", s.handleApproveBatch)
		r.Get("/transactions/{id}", s.handleGet)
		r.Put("/transactions/{id}", s.handleUpdate)
		r.Post("/transactions/{id}/approve", s.handleApprove)
		r.Post("/transactions/{id}/provide_pin", s.handleProvidePIN)
	})
	return r
}

// Handler returns the HTTP handler of the simulator
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on the configured address until ctx is done
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("Simulator listening on http://%s (login %s / %s, PIN %s)",
		ln.Addr(), s.config.Username, s.config.Password, s.config.PIN)

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops every running agent
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// AddTransaction inserts a transaction awaiting review. It is complete, and
// so marked NEEDS_APPROVAL, when account is set.
func (s *Server) AddTransaction(batchID, vendor string, amount decimal.Decimal, account *string) domain.ID {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	return s.state.insert(batchID, vendor, amount, account, initialStatus(account))
}

// Status returns the current status of id
func (s *Server) Status(id domain.ID) (domain.Status, bool) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	rec, ok := s.state.records[id]
	if !ok {
		return "", false
	}
	return rec.tx.Status, true
}

// SetStatus forces a status, bypassing the agent
func (s *Server) SetStatus(id domain.ID, status domain.Status) bool {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	rec, ok := s.state.records[id]
	if ok {
		rec.tx.Status = status
	}
	return ok
}

// RevokeTokens expires every issued token
func (s *Server) RevokeTokens() {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.tokens = make(map[string]bool)
}

func initialStatus(account *string) domain.Status {
	if account != nil && strings.TrimSpace(*account) != "" {
		return domain.StatusNeedsApproval
	}
	return domain.StatusNeedsReview
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("%s %s -> %d (%s) req=%s", r.Method, r.URL.Path, ww.Status(),
			time.Since(start).Round(time.Microsecond), r.Header.Get("X-Request-ID"))
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.state.mu.Lock()
		ok := token != "" && s.state.tokens[token]
		s.state.mu.Unlock()

		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
