package service

import (
	"context"
	"fmt"

	"github.com/noteforge/noteforge/internal/config"
	"github.com/noteforge/noteforge/internal/models"
	"github.com/noteforge/noteforge/internal/repository"
)

// AccountService wraps the ledger for account lifecycle and read paths.
type AccountService struct {
	cfg      config.Config
	accounts *repository.AccountRepository
}

func NewAccountService(cfg config.Config, accounts *repository.AccountRepository) *AccountService {
	return &AccountService{cfg: cfg, accounts: accounts}
}

// Ensure creates the coin account on a user's first authenticated request,
// granting the signup bonus and the configured monthly cap.
func (s *AccountService) Ensure(ctx context.Context, userID int64) (*models.CoinAccount, bool, error) {
	var monthlyLimit *int
	if s.cfg.DefaultMonthlyLimit > 0 {
		limit := s.cfg.DefaultMonthlyLimit
		monthlyLimit = &limit
	}
	account, created, err := s.accounts.Ensure(ctx, userID, s.cfg.SignupBonus, monthlyLimit)
	if err != nil {
		return nil, false, fmt.Errorf("ensure account: %w", err)
	}
	return account, created, nil
}

func (s *AccountService) Get(ctx context.Context, userID int64) (*models.CoinAccount, error) {
	return s.accounts.Get(ctx, userID)
}

func (s *AccountService) CreditBonus(ctx context.Context, userID int64, amount int, description string) (*models.Transaction, error) {
	return s.accounts.CreditBonus(ctx, userID, amount, description)
}

func (s *AccountService) Refund(ctx context.Context, userID int64, amount int, description string) (*models.Transaction, error) {
	return s.accounts.Refund(ctx, userID, amount, description)
}

func (s *AccountService) Transactions(ctx context.Context, userID int64, limit int) ([]models.Transaction, error) {
	return s.accounts.Transactions(ctx, userID, limit)
}
