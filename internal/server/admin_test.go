package server

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/noteforge/noteforge/internal/config"
	"github.com/noteforge/noteforge/internal/repository"
	"github.com/noteforge/noteforge/internal/service"
)

func newAdminTestServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := slog.Default()
	accounts := service.NewAccountService(config.Config{}, repository.NewAccountRepository(db))
	auth := NewAuthenticator(testSecret, log, accounts)
	s := NewServer(":0", time.Minute, "admin", "s3cret", log, auth, nil, accounts, nil, &recordingGuests{limit: 1}, nil)
	return s, mock
}

func postAdminCredit(s *Server, body, user, pass string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/admin/credits", bytes.NewReader([]byte(body)))
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestAdminCreditRequiresBasicAuth(t *testing.T) {
	s, _ := newAdminTestServer(t)
	require.Equal(t, http.StatusUnauthorized, postAdminCredit(s, `{}`, "", "").Code)
	require.Equal(t, http.StatusUnauthorized, postAdminCredit(s, `{}`, "admin", "wrong").Code)
}

func TestAdminCreditGrantsBonus(t *testing.T) {
	s, mock := newAdminTestServer(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE coin_accounts SET balance = balance \\+").
		WithArgs(5, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT balance FROM coin_accounts").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(15))
	mock.ExpectExec("INSERT INTO coin_transactions").
		WithArgs(int64(7), 5, "bonus", 10, 15, "promo credit").
		WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectCommit()

	rec := postAdminCredit(s, `{"user_id":7,"amount":5,"kind":"bonus","description":"promo credit"}`, "admin", "s3cret")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"new_balance":15`)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminCreditRefund(t *testing.T) {
	s, mock := newAdminTestServer(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE coin_accounts SET balance = balance \\+").
		WithArgs(2, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT balance FROM coin_accounts").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(12))
	mock.ExpectExec("INSERT INTO coin_transactions").
		WithArgs(int64(7), 2, "refund", 10, 12, "admin refund").
		WillReturnResult(sqlmock.NewResult(4, 1))
	mock.ExpectCommit()

	rec := postAdminCredit(s, `{"user_id":7,"amount":2,"kind":"refund"}`, "admin", "s3cret")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminCreditRejectsBadInput(t *testing.T) {
	s, _ := newAdminTestServer(t)
	require.Equal(t, http.StatusBadRequest, postAdminCredit(s, `{"user_id":7,"amount":5,"kind":"chargeback"}`, "admin", "s3cret").Code)
	require.Equal(t, http.StatusBadRequest, postAdminCredit(s, `{"user_id":7,"amount":0,"kind":"bonus"}`, "admin", "s3cret").Code)
	require.Equal(t, http.StatusBadRequest, postAdminCredit(s, `not json`, "admin", "s3cret").Code)
}

func TestAdminCreditUnknownAccount(t *testing.T) {
	s, mock := newAdminTestServer(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE coin_accounts SET balance = balance \\+").
		WithArgs(5, int64(404)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	rec := postAdminCredit(s, `{"user_id":404,"amount":5,"kind":"bonus"}`, "admin", "s3cret")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}
