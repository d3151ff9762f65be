package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*AccountRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAccountRepository(db), mock
}

func TestTryDeductChargesAndAppendsLedgerRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	// The amount appears both as the decrement and as the balance guard.
	mock.ExpectExec("UPDATE coin_accounts").
		WithArgs(3, 3, int64(1), 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT balance FROM coin_accounts").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(7))
	mock.ExpectExec("INSERT INTO coin_transactions").
		WithArgs(int64(1), -3, "deduction", 10, 7, "generation: Topic").
		WillReturnResult(sqlmock.NewResult(12, 1))
	mock.ExpectCommit()

	transaction, err := repo.TryDeduct(context.Background(), 1, 3, "generation: Topic")
	require.NoError(t, err)
	require.Equal(t, 10, transaction.PreviousBalance)
	require.Equal(t, 7, transaction.NewBalance)
	require.Equal(t, transaction.NewBalance, transaction.PreviousBalance+transaction.Amount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTryDeductGuardFailureLeavesLedgerUntouched(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE coin_accounts").
		WithArgs(8, 8, int64(1), 8).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1 FROM coin_accounts").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectRollback()

	_, err := repo.TryDeduct(context.Background(), 1, 8, "generation")
	require.ErrorIs(t, err, ErrInsufficientBalance)
	// No transaction insert and no commit may have happened.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTryDeductUnknownAccount(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE coin_accounts").
		WithArgs(2, 2, int64(9), 2).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1 FROM coin_accounts").
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectRollback()

	_, err := repo.TryDeduct(context.Background(), 9, 2, "generation")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

// Two charges racing for a balance of 5: the second one hits the balance >= ?
// guard and fails without mutation, so successful deductions never sum past
// the starting balance.
func TestDeductionsNeverOverdraw(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE coin_accounts").
		WithArgs(3, 3, int64(1), 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT balance FROM coin_accounts").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(2))
	mock.ExpectExec("INSERT INTO coin_transactions").
		WithArgs(int64(1), -3, "deduction", 5, 2, "first").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE coin_accounts").
		WithArgs(3, 3, int64(1), 3).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1 FROM coin_accounts").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectRollback()

	first, err := repo.TryDeduct(context.Background(), 1, 3, "first")
	require.NoError(t, err)
	require.Equal(t, 2, first.NewBalance)

	_, err = repo.TryDeduct(context.Background(), 1, 3, "second")
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditAppendsBalancedLedgerRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE coin_accounts SET balance = balance \\+").
		WithArgs(10, int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT balance FROM coin_accounts").
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(10))
	mock.ExpectExec("INSERT INTO coin_transactions").
		WithArgs(int64(4), 10, "bonus", 0, 10, "signup bonus").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	transaction, err := repo.CreditBonus(context.Background(), 4, 10, "signup bonus")
	require.NoError(t, err)
	require.Equal(t, transaction.NewBalance, transaction.PreviousBalance+transaction.Amount)
	require.NoError(t, mock.ExpectationsWereMet())
}
