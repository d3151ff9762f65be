package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/noteforge/noteforge/internal/models"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// AccountRepository is the coin ledger. Balance changes go through guarded
// UPDATE ... WHERE balance >= ? statements, so concurrent deductions against
// one account can never jointly overdraw it; every change appends an immutable
// transaction row in the same SQL transaction.
type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Get(ctx context.Context, userID int64) (*models.CoinAccount, error) {
	account, err := r.get(ctx, r.db, userID)
	if err != nil || account == nil {
		return account, err
	}

	// Lazy monthly-window roll: a stale window is reset on first read in the new month.
	monthStart := startOfMonth(time.Now().UTC())
	if account.MonthStart.Before(monthStart) {
		const query = `
UPDATE coin_accounts SET monthly_count = 0, month_start = ?, updated_at = NOW()
WHERE user_id = ? AND month_start < ?`
		if _, err := r.db.ExecContext(ctx, query, monthStart, userID, monthStart); err != nil {
			return nil, fmt.Errorf("roll monthly window: %w", err)
		}
		account.MonthlyCount = 0
		account.MonthStart = monthStart
	}
	return account, nil
}

// Ensure creates the account on first sight, granting the signup bonus.
func (r *AccountRepository) Ensure(ctx context.Context, userID int64, signupBonus int, monthlyLimit *int) (*models.CoinAccount, bool, error) {
	account, err := r.Get(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if account != nil {
		return account, false, nil
	}

	const query = `
INSERT INTO coin_accounts (user_id, balance, monthly_limit, month_start)
VALUES (?, 0, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, userID, monthlyLimit, startOfMonth(time.Now().UTC())); err != nil {
		return nil, false, fmt.Errorf("insert account: %w", err)
	}
	if signupBonus > 0 {
		if _, err := r.CreditBonus(ctx, userID, signupBonus, "signup bonus"); err != nil {
			return nil, false, err
		}
	}
	created, err := r.Get(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// TryDeduct atomically charges amount coins. It fails with
// ErrInsufficientBalance, without any mutation, when the balance cannot cover
// the charge. On success the monthly counter and lifetime totals move with it.
func (r *AccountRepository) TryDeduct(ctx context.Context, userID int64, amount int, description string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("deduct amount must be positive, got %d", amount)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin deduct tx: %w", err)
	}
	defer tx.Rollback()

	const update = `
UPDATE coin_accounts
SET balance = balance - ?,
    total_spent = total_spent + ?,
    total_generated = total_generated + 1,
    monthly_count = monthly_count + 1,
    updated_at = NOW()
WHERE user_id = ? AND balance >= ?`
	res, err := tx.ExecContext(ctx, update, amount, amount, userID, amount)
	if err != nil {
		return nil, fmt.Errorf("deduct balance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("deduct rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.exists(ctx, tx, userID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrAccountNotFound
		}
		return nil, ErrInsufficientBalance
	}

	transaction, err := appendTransaction(ctx, tx, userID, -amount, models.TransactionDeduction, description)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit deduct tx: %w", err)
	}
	return transaction, nil
}

// Refund is the compensating credit for a charge that preceded a downstream
// failure. It always succeeds for an existing account.
func (r *AccountRepository) Refund(ctx context.Context, userID int64, amount int, description string) (*models.Transaction, error) {
	return r.credit(ctx, userID, amount, models.TransactionRefund, description)
}

// CreditBonus grants promotional or signup coins.
func (r *AccountRepository) CreditBonus(ctx context.Context, userID int64, amount int, description string) (*models.Transaction, error) {
	return r.credit(ctx, userID, amount, models.TransactionBonus, description)
}

// Transactions lists the most recent ledger entries for an account.
func (r *AccountRepository) Transactions(ctx context.Context, userID int64, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
SELECT id, user_id, amount, kind, previous_balance, new_balance, description, created_at
FROM coin_transactions
WHERE user_id = ?
ORDER BY id DESC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Kind, &t.PreviousBalance, &t.NewBalance, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *AccountRepository) credit(ctx context.Context, userID int64, amount int, kind models.TransactionKind, description string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin credit tx: %w", err)
	}
	defer tx.Rollback()

	const update = `
UPDATE coin_accounts SET balance = balance + ?, updated_at = NOW() WHERE user_id = ?`
	res, err := tx.ExecContext(ctx, update, amount, userID)
	if err != nil {
		return nil, fmt.Errorf("credit balance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("credit rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrAccountNotFound
	}

	transaction, err := appendTransaction(ctx, tx, userID, amount, kind, description)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit credit tx: %w", err)
	}
	return transaction, nil
}

// appendTransaction records the ledger row for a balance change already
// applied inside tx. The post-change balance is read back within the same
// transaction so previous + amount == new holds exactly.
func appendTransaction(ctx context.Context, tx *sql.Tx, userID int64, amount int, kind models.TransactionKind, description string) (*models.Transaction, error) {
	var newBalance int
	if err := tx.QueryRowContext(ctx, `SELECT balance FROM coin_accounts WHERE user_id = ?`, userID).Scan(&newBalance); err != nil {
		return nil, fmt.Errorf("read post-change balance: %w", err)
	}
	previous := newBalance - amount

	const insert = `
INSERT INTO coin_transactions (user_id, amount, kind, previous_balance, new_balance, description)
VALUES (?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, insert, userID, amount, kind, previous, newBalance, description)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("transaction last insert id: %w", err)
	}

	return &models.Transaction{
		ID:              id,
		UserID:          userID,
		Amount:          amount,
		Kind:            kind,
		PreviousBalance: previous,
		NewBalance:      newBalance,
		Description:     description,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *AccountRepository) get(ctx context.Context, q queryer, userID int64) (*models.CoinAccount, error) {
	const query = `
SELECT user_id, balance, total_spent, total_generated, monthly_count, monthly_limit, month_start, created_at, updated_at
FROM coin_accounts WHERE user_id = ?`
	row := q.QueryRowContext(ctx, query, userID)
	var a models.CoinAccount
	var limit sql.NullInt64
	if err := row.Scan(&a.UserID, &a.Balance, &a.TotalSpent, &a.TotalGenerated, &a.MonthlyCount, &limit, &a.MonthStart, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	if limit.Valid {
		v := int(limit.Int64)
		a.MonthlyLimit = &v
	}
	return &a, nil
}

func (r *AccountRepository) exists(ctx context.Context, q queryer, userID int64) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM coin_accounts WHERE user_id = ?`, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check account exists: %w", err)
	}
	return true, nil
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
