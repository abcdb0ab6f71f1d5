// Package server exposes the ledger over HTTP/JSON.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"LoanLedger/internal/engine"
	"LoanLedger/internal/ledger"
	"LoanLedger/internal/observability"
	"LoanLedger/internal/query"
	"LoanLedger/internal/transfer"
)

// Server routes HTTP requests to the engine (live state and mutations), the
// query service (audit history), and the in-process banks (demo asset
// administration, present only when the movers are in-process banks).
type Server struct {
	engine  *engine.Engine
	queries *query.Service
	banks   map[string]*transfer.Bank
	health  *observability.HealthChecker
	metrics *observability.Metrics
	log     zerolog.Logger
}

func New(
	eng *engine.Engine,
	queries *query.Service,
	banks map[string]*transfer.Bank,
	health *observability.HealthChecker,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Server {
	return &Server{
		engine:  eng,
		queries: queries,
		banks:   banks,
		health:  health,
		metrics: metrics,
		log:     log,
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/supply/deposit", s.instrument("supply_deposit", s.handleDeposit))
		r.Post("/supply/withdraw", s.instrument("supply_withdraw", s.handleWithdraw))
		r.Get("/supply/{account}", s.instrument("supply_get", s.handleLenderBalance))

		r.Post("/collateral/deposit", s.instrument("collateral_deposit", s.handleDepositCollateral))

		r.Post("/loans/borrow", s.instrument("loans_borrow", s.handleBorrow))
		r.Post("/loans/repay", s.instrument("loans_repay", s.handleRepay))
		r.Post("/loans/liquidate", s.instrument("loans_liquidate", s.handleLiquidate))
		r.Get("/loans/{account}", s.instrument("loans_get", s.handleBorrowerRecord))
		r.Get("/loans/{account}/debt", s.instrument("loans_debt", s.handleTotalDebt))
		r.Get("/loans/{account}/ratio", s.instrument("loans_ratio", s.handleCollateralRatio))
		r.Get("/loans/{account}/liquidatable", s.instrument("loans_liquidatable", s.handleIsLiquidatable))

		r.Get("/pool", s.instrument("pool", s.handlePoolState))

		if s.queries != nil {
			r.Get("/audit/events", s.instrument("audit_events", s.handleAuditEvents))
		}

		if s.banks != nil {
			r.Post("/assets/{asset}/mint", s.instrument("asset_mint", s.handleMint))
			r.Post("/assets/{asset}/approve", s.instrument("asset_approve", s.handleApprove))
			r.Get("/assets/{asset}/balance/{account}", s.instrument("asset_balance", s.handleBankBalance))
		}
	})

	return r
}

func (s *Server) instrument(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r)
		if s.metrics != nil {
			s.metrics.APIRequests.WithLabelValues(endpoint, http.StatusText(sw.status)).Inc()
			s.metrics.APIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError maps the ledger error taxonomy onto HTTP status codes. Every
// precondition failure is the caller's problem, never the ledger's.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "internal"

	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		status, code = http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		status, code = http.StatusConflict, "insufficient_balance"
	case errors.Is(err, ledger.ErrInsufficientLiquidity):
		status, code = http.StatusConflict, "insufficient_liquidity"
	case errors.Is(err, ledger.ErrCollateralLimitExceeded):
		status, code = http.StatusConflict, "collateral_limit_exceeded"
	case errors.Is(err, ledger.ErrNoActiveLoan):
		status, code = http.StatusNotFound, "no_active_loan"
	case errors.Is(err, ledger.ErrOverRepayment):
		status, code = http.StatusConflict, "over_repayment"
	case errors.Is(err, ledger.ErrNotLiquidatable):
		status, code = http.StatusConflict, "not_liquidatable"
	case errors.Is(err, ledger.ErrTransferFailed):
		status, code = http.StatusBadGateway, "transfer_failed"
	case errors.Is(err, ledger.ErrReentrantCall):
		status, code = http.StatusInternalServerError, "reentrant_call"
	default:
		s.log.Error().Err(err).Msg("unhandled API error")
	}

	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}
