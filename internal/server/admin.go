package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/noteforge/noteforge/internal/models"
	"github.com/noteforge/noteforge/internal/repository"
)

type adminCreditRequest struct {
	UserID      int64  `json:"user_id"`
	Amount      int    `json:"amount"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.adminUser || pass != s.adminPass {
				w.Header().Set("WWW-Authenticate", `Basic realm="noteforge"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// handleAdminCredit applies a manual ledger adjustment: a promotional bonus
// or an operator-issued refund.
func (s *Server) handleAdminCredit(w http.ResponseWriter, r *http.Request) {
	var req adminCreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.UserID <= 0 || req.Amount <= 0 {
		s.writeError(w, http.StatusBadRequest, "user_id and a positive amount are required")
		return
	}
	description := req.Description
	if description == "" {
		description = fmt.Sprintf("admin %s", req.Kind)
	}

	var transaction *models.Transaction
	var err error
	switch req.Kind {
	case string(models.TransactionBonus):
		transaction, err = s.accounts.CreditBonus(r.Context(), req.UserID, req.Amount, description)
	case string(models.TransactionRefund):
		transaction, err = s.accounts.Refund(r.Context(), req.UserID, req.Amount, description)
	default:
		s.writeError(w, http.StatusBadRequest, "kind must be bonus or refund")
		return
	}
	if errors.Is(err, repository.ErrAccountNotFound) {
		s.writeError(w, http.StatusNotFound, "account not found")
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"kind":             string(transaction.Kind),
		"amount":           transaction.Amount,
		"previous_balance": transaction.PreviousBalance,
		"new_balance":      transaction.NewBalance,
	})
}
