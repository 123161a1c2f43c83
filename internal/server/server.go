// Package server exposes the HTTP signal intake endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"synthbot/internal/contracts"
	"synthbot/internal/engine"
	"synthbot/internal/metrics"
	"synthbot/internal/types"
	"synthbot/internal/worker"
)

// Config holds signal server settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// LotSize validates inbound quantities; qty must be a positive
	// multiple of it.
	LotSize int
}

// DefaultConfig returns the standard server settings.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		LotSize:      types.DefaultLotSize,
	}
}

// Server accepts trading signals over HTTP and dispatches them to the
// position manager through a bounded worker pool. The caller gets an
// immediate acknowledgement; execution continues in the background.
type Server struct {
	cfg      Config
	manager  *engine.Manager
	resolver contracts.Resolver
	pool     *worker.Pool
	logger   *slog.Logger
	recorder *metrics.Recorder
	srv      *http.Server
}

// NewServer creates a signal intake server.
func NewServer(
	cfg Config,
	manager *engine.Manager,
	resolver contracts.Resolver,
	pool *worker.Pool,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LotSize <= 0 {
		cfg.LotSize = types.DefaultLotSize
	}

	s := &Server{
		cfg:      cfg,
		manager:  manager,
		resolver: resolver,
		pool:     pool,
		logger:   logger,
		recorder: metrics.NewRecorder(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /", s.handleRoot)

	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	s.logger.Info("signal server starting", "addr", s.cfg.Addr)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("signal server failed", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler returns the underlying handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// webhookRequest is the inbound signal payload.
type webhookRequest struct {
	Signal     string `json:"signal"`
	SystemID   string `json:"system_id"`
	Underlying string `json:"underlying"`
	Qty        int    `json:"qty"`
}

type webhookResponse struct {
	Status       string `json:"status"`
	SubmissionID string `json:"submission_id,omitempty"`
	Detail       string `json:"detail,omitempty"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		s.reject(w, fmt.Errorf("%w: malformed JSON body", types.ErrInvalidSignal))
		return
	}

	action, err := validateSignal(&req, s.cfg.LotSize)
	if err != nil {
		s.reject(w, err)
		return
	}

	logger := s.logger.With("signal", action, "system_id", req.SystemID, "underlying", req.Underlying)

	switch action {
	case types.SignalCheck:
		s.handleCheck(r.Context(), w, req.SystemID)
		return
	case types.SignalBuy:
		s.dispatch(w, logger, req, func(ctx context.Context) error {
			contract, err := s.nearestContract(ctx, req.Underlying)
			if err != nil {
				return fmt.Errorf("resolve contract: %w", err)
			}
			_, err = s.manager.Enter(ctx, req.SystemID, *contract, req.Qty)
			return err
		})
	case types.SignalSell, types.SignalExit:
		s.dispatch(w, logger, req, func(ctx context.Context) error {
			_, err := s.manager.Exit(ctx, req.SystemID)
			return err
		})
	}
}

// dispatch queues the task and acknowledges immediately.
func (s *Server) dispatch(w http.ResponseWriter, logger *slog.Logger, req webhookRequest, task worker.Task) {
	submissionID := uuid.NewString()
	_, err := s.pool.Submit(func(ctx context.Context) error {
		if err := task(ctx); err != nil {
			logger.Error("signal processing failed", "submission_id", submissionID, "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		s.recorder.RecordSignal(req.Signal, "rejected")
		logger.Warn("signal rejected", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, webhookResponse{
			Status: "rejected",
			Detail: err.Error(),
		})
		return
	}

	s.recorder.RecordSignal(req.Signal, "accepted")
	logger.Info("signal accepted", "submission_id", submissionID, "qty", req.Qty)
	s.writeJSON(w, http.StatusAccepted, webhookResponse{
		Status:       "accepted",
		SubmissionID: submissionID,
	})
}

func (s *Server) handleCheck(ctx context.Context, w http.ResponseWriter, systemID string) {
	pos, err := s.manager.Status(ctx, systemID)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, webhookResponse{
			Status: "error",
			Detail: err.Error(),
		})
		return
	}
	if pos == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"status": "flat", "system_id": systemID})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": string(pos.Status), "position": pos})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// validateSignal checks the inbound payload, applying the lot-size default
// to a zero quantity. Failures carry types.ErrInvalidSignal or ErrInvalidQty.
func validateSignal(req *webhookRequest, lotSize int) (types.SignalAction, error) {
	action, ok := types.ParseSignalAction(req.Signal)
	if !ok {
		return "", fmt.Errorf("%w: unknown signal %q", types.ErrInvalidSignal, req.Signal)
	}
	if req.SystemID == "" {
		return "", fmt.Errorf("%w: system_id is required", types.ErrInvalidSignal)
	}
	if req.Underlying == "" {
		return "", fmt.Errorf("%w: underlying is required", types.ErrInvalidSignal)
	}
	if req.Qty == 0 {
		req.Qty = lotSize
	}
	if !types.ValidLotQty(req.Qty, lotSize) {
		return "", fmt.Errorf("%w of %d: got %d", types.ErrInvalidQty, lotSize, req.Qty)
	}
	return action, nil
}

// nearestContract resolves the ATM pair at the earliest known expiry.
func (s *Server) nearestContract(ctx context.Context, underlying string) (*types.Contract, error) {
	expiries, err := s.resolver.ListExpiries(ctx, underlying)
	if err != nil {
		return nil, err
	}
	if len(expiries) == 0 {
		return nil, fmt.Errorf("%s: %w", underlying, contracts.ErrNoExpiries)
	}
	return s.resolver.ResolveATM(ctx, underlying, expiries[0])
}

func (s *Server) reject(w http.ResponseWriter, err error) {
	s.recorder.RecordSignal("invalid", "rejected")
	s.writeJSON(w, http.StatusBadRequest, webhookResponse{
		Status: "rejected",
		Detail: err.Error(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write response", "error", err)
	}
}
