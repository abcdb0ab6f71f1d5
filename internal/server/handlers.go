package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"LoanLedger/internal/query"
)

type amountRequest struct {
	Account uuid.UUID `json:"account"`
	Amount  int64     `json:"amount"`
}

type liquidateRequest struct {
	Liquidator uuid.UUID `json:"liquidator"`
	Account    uuid.UUID `json:"account"`
}

type appliedResponse struct {
	Status string `json:"status"`
}

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
}

func accountParam(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "account"))
}

// --- mutations ---

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	if err := s.engine.Deposit(r.Context(), req.Account, req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appliedResponse{Status: "applied"})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	if err := s.engine.Withdraw(r.Context(), req.Account, req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appliedResponse{Status: "applied"})
}

func (s *Server) handleDepositCollateral(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	if err := s.engine.DepositCollateral(r.Context(), req.Account, req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appliedResponse{Status: "applied"})
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	if err := s.engine.Borrow(r.Context(), req.Account, req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appliedResponse{Status: "applied"})
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	if err := s.engine.Repay(r.Context(), req.Account, req.Amount); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appliedResponse{Status: "applied"})
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	if err := s.engine.Liquidate(r.Context(), req.Liquidator, req.Account); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appliedResponse{Status: "applied"})
}

// --- live state reads ---

func (s *Server) handleLenderBalance(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	balance, err := s.engine.LenderBalance(r.Context(), account)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account":         account,
		"amount_supplied": balance,
	})
}

type borrowerResponse struct {
	Account             uuid.UUID  `json:"account"`
	AmountBorrowed      int64      `json:"amount_borrowed"`
	InitialBorrowAmount int64      `json:"initial_borrow_amount"`
	CollateralDeposited int64      `json:"collateral_deposited"`
	AmountRepaid        int64      `json:"amount_repaid"`
	BorrowTimestamp     *time.Time `json:"borrow_timestamp,omitempty"`
	LastIteration       *time.Time `json:"last_iteration,omitempty"`
}

func (s *Server) handleBorrowerRecord(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	rec, err := s.engine.BorrowerRecord(r.Context(), account)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := borrowerResponse{
		Account:             rec.Account,
		AmountBorrowed:      rec.AmountBorrowed,
		InitialBorrowAmount: rec.InitialBorrowAmount,
		CollateralDeposited: rec.CollateralDeposited,
		AmountRepaid:        rec.AmountRepaid,
	}
	if !rec.BorrowTimestamp.IsZero() {
		resp.BorrowTimestamp = &rec.BorrowTimestamp
	}
	if !rec.LastIteration.IsZero() {
		resp.LastIteration = &rec.LastIteration
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTotalDebt(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	debt, err := s.engine.TotalDebt(r.Context(), account)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account":    account,
		"total_debt": debt,
	})
}

func (s *Server) handleCollateralRatio(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	ratio, err := s.engine.CollateralRatio(r.Context(), account)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account":   account,
		"ratio_bps": ratio,
	})
}

func (s *Server) handleIsLiquidatable(w http.ResponseWriter, r *http.Request) {
	account, err := accountParam(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	eligible, err := s.engine.IsLiquidatable(r.Context(), account)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account":      account,
		"liquidatable": eligible,
	})
}

func (s *Server) handlePoolState(w http.ResponseWriter, r *http.Request) {
	pool, err := s.engine.PoolState(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	seq, err := s.engine.Sequence(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_supplied":     pool.TotalSupplied,
		"interest_collected": pool.InterestCollected,
		"fees_paid":          pool.FeesPaid,
		"sequence":           seq,
	})
}

// --- audit history ---

func (s *Server) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	var filter query.EventFilter

	if v := r.URL.Query().Get("account"); v != "" {
		account, err := uuid.Parse(v)
		if err != nil {
			s.badRequest(w, err)
			return
		}
		filter.Account = &account
	}
	filter.Op = r.URL.Query().Get("op")
	if v := r.URL.Query().Get("after"); v != "" {
		after, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.badRequest(w, err)
			return
		}
		filter.AfterSequence = &after
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			s.badRequest(w, err)
			return
		}
		filter.Limit = limit
	}

	events, err := s.queries.Events(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if events == nil {
		events = []query.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// --- demo asset administration ---

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	bank, ok := s.banks[chi.URLParam(r, "asset")]
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown asset", Code: "unknown_asset"})
		return
	}
	var req amountRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	if err := bank.Mint(req.Account, req.Amount); err != nil {
		s.badRequest(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appliedResponse{Status: "applied"})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	bank, ok := s.banks[chi.URLParam(r, "asset")]
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown asset", Code: "unknown_asset"})
		return
	}
	var req amountRequest
	if err := decode(r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	if err := bank.Approve(req.Account, req.Amount); err != nil {
		s.badRequest(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appliedResponse{Status: "applied"})
}

func (s *Server) handleBankBalance(w http.ResponseWriter, r *http.Request) {
	bank, ok := s.banks[chi.URLParam(r, "asset")]
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown asset", Code: "unknown_asset"})
		return
	}
	account, err := accountParam(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account":   account,
		"balance":   bank.BalanceOf(account),
		"allowance": bank.AllowanceOf(account),
	})
}
