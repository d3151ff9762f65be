package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noteforge/noteforge/internal/models"
	"github.com/noteforge/noteforge/internal/repository"
)

type stubLedger struct {
	account     *models.CoinAccount
	getCalls    int
	deductTx    *models.Transaction
	deductErr   error
	deductCalls int
}

func (s *stubLedger) Get(_ context.Context, _ int64) (*models.CoinAccount, error) {
	s.getCalls++
	return s.account, nil
}

func (s *stubLedger) TryDeduct(_ context.Context, _ int64, amount int, _ string) (*models.Transaction, error) {
	s.deductCalls++
	if s.deductErr != nil {
		return nil, s.deductErr
	}
	if s.deductTx != nil {
		return s.deductTx, nil
	}
	return &models.Transaction{Amount: -amount, NewBalance: s.account.Balance - amount}, nil
}

type stubGenerator struct {
	calls int
	text  string
	err   error
}

func (s *stubGenerator) Generate(_ context.Context, _ string, _ int) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

type stubStore struct {
	created []*models.Note
	err     error
}

func (s *stubStore) Create(_ context.Context, note *models.Note) error {
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, note)
	return nil
}

func newService(ledger *stubLedger, store *stubStore, gen *stubGenerator) *GenerationService {
	return NewGenerationService(slog.Default(), ledger, store, gen)
}

func userRef(id int64) *int64 { return &id }

func TestGenerateInsufficientFundsSkipsUpstream(t *testing.T) {
	ledger := &stubLedger{account: &models.CoinAccount{UserID: 1, Balance: 3}}
	gen := &stubGenerator{text: "<html></html>"}
	svc := newService(ledger, &stubStore{}, gen)

	_, err := svc.Generate(context.Background(), GenerateRequest{
		Topic:     "Thermodynamics",
		PageCount: 5,
		UserID:    userRef(1),
	})

	var insufficient *InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, 5, insufficient.Required)
	require.Equal(t, 3, insufficient.Available)
	require.Zero(t, gen.calls, "upstream must not be called when the balance cannot pay")
	require.Zero(t, ledger.deductCalls)
}

func TestGenerateQuotaExceeded(t *testing.T) {
	limit := 10
	ledger := &stubLedger{account: &models.CoinAccount{
		UserID: 1, Balance: 100, MonthlyCount: 10, MonthlyLimit: &limit,
	}}
	gen := &stubGenerator{text: "<html></html>"}
	svc := newService(ledger, &stubStore{}, gen)

	_, err := svc.Generate(context.Background(), GenerateRequest{
		Topic: "Topic", PageCount: 1, UserID: userRef(1),
	})

	var quota *QuotaExceededError
	require.ErrorAs(t, err, &quota)
	require.Equal(t, 10, quota.Limit)
	require.Zero(t, gen.calls)
}

func TestGenerateEmptyTopicRejected(t *testing.T) {
	gen := &stubGenerator{text: "<html></html>"}
	svc := newService(&stubLedger{}, &stubStore{}, gen)

	_, err := svc.Generate(context.Background(), GenerateRequest{Topic: "   ", PageCount: 1})
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.Zero(t, gen.calls)
}

func TestGenerateSuccessDeductsPerPage(t *testing.T) {
	ledger := &stubLedger{account: &models.CoinAccount{UserID: 1, Balance: 10}}
	store := &stubStore{}
	svc := newService(ledger, store, &stubGenerator{text: "<html>notes</html>"})

	result, err := svc.Generate(context.Background(), GenerateRequest{
		Topic: "Cell Biology", PageCount: 4, UserID: userRef(1),
	})
	require.NoError(t, err)
	require.Equal(t, 1, ledger.deductCalls)
	require.Equal(t, 4, result.Note.CoinsSpent)
	require.Equal(t, 6, result.CoinsRemaining)
	require.Empty(t, result.Warning)
	require.Len(t, store.created, 1)
	require.Equal(t, "Cell Biology", store.created[0].Title)
}

func TestGenerateClampsInvalidPageCount(t *testing.T) {
	for _, pages := range []int{-3, 0, 11, 100} {
		ledger := &stubLedger{account: &models.CoinAccount{UserID: 1, Balance: 10}}
		svc := newService(ledger, &stubStore{}, &stubGenerator{text: "<html></html>"})

		result, err := svc.Generate(context.Background(), GenerateRequest{
			Topic: "Topic", PageCount: pages, UserID: userRef(1),
		})
		require.NoError(t, err, "pages=%d", pages)
		require.Equal(t, 1, result.Note.PageCount, "pages=%d", pages)
		require.Equal(t, 1, result.Note.CoinsSpent, "pages=%d", pages)
	}
}

func TestCoinsRequiredMatchesPageCount(t *testing.T) {
	for pages := 1; pages <= 10; pages++ {
		require.Equal(t, pages, CoinsRequiredFor(pages))
	}
	require.Equal(t, 1, CoinsRequiredFor(0))
	require.Equal(t, 1, CoinsRequiredFor(99))
}

func TestGenerateUpstreamFailureNoLedgerMutation(t *testing.T) {
	ledger := &stubLedger{account: &models.CoinAccount{UserID: 1, Balance: 10}}
	gen := &stubGenerator{err: errors.New("boom")}
	store := &stubStore{}
	svc := newService(ledger, store, gen)

	_, err := svc.Generate(context.Background(), GenerateRequest{
		Topic: "Topic", PageCount: 2, UserID: userRef(1),
	})

	var failed *GenerationFailedError
	require.ErrorAs(t, err, &failed)
	require.Equal(t, 1, gen.calls)
	require.Zero(t, ledger.deductCalls, "failed generation must not touch the ledger")
	require.Empty(t, store.created)
}

// A concurrent request can drain the balance between the precondition check
// and the deduction. The artifact is still delivered, flagged, uncharged.
func TestGenerateDeductRaceReturnsArtifactWithWarning(t *testing.T) {
	ledger := &stubLedger{
		account:   &models.CoinAccount{UserID: 1, Balance: 5},
		deductErr: repository.ErrInsufficientBalance,
	}
	store := &stubStore{}
	svc := newService(ledger, store, &stubGenerator{text: "<html>kept</html>"})

	result, err := svc.Generate(context.Background(), GenerateRequest{
		Topic: "Topic", PageCount: 2, UserID: userRef(1),
	})
	require.NoError(t, err)
	require.Equal(t, 1, ledger.deductCalls)
	require.NotEmpty(t, result.Warning)
	require.Zero(t, result.Note.CoinsSpent)
	require.Equal(t, -1, result.CoinsRemaining)
	require.Equal(t, "<html>kept</html>", result.Note.HTMLContent)
	require.Len(t, store.created, 1, "flagged artifact must still be persisted")
	require.NotEmpty(t, store.created[0].Warning)
}

func TestGeneratePersistFailureDowngradesToWarning(t *testing.T) {
	ledger := &stubLedger{account: &models.CoinAccount{UserID: 1, Balance: 10}}
	store := &stubStore{err: errors.New("db down")}
	svc := newService(ledger, store, &stubGenerator{text: "<html></html>"})

	result, err := svc.Generate(context.Background(), GenerateRequest{
		Topic: "Topic", PageCount: 1, UserID: userRef(1),
	})
	require.NoError(t, err, "persistence failure must not fail the request")
	require.NotEmpty(t, result.Warning)
	require.Equal(t, 1, result.Note.CoinsSpent, "coins stay spent; no refund for a successful generation")
}

func TestGenerateGuestSkipsLedger(t *testing.T) {
	ledger := &stubLedger{}
	store := &stubStore{}
	svc := newService(ledger, store, &stubGenerator{text: "<html>guest</html>"})

	result, err := svc.Generate(context.Background(), GenerateRequest{
		Topic: "Topic", PageCount: 3,
	})
	require.NoError(t, err)
	require.Zero(t, ledger.getCalls)
	require.Zero(t, ledger.deductCalls)
	require.Zero(t, result.Note.CoinsSpent)
	require.Nil(t, result.Note.UserID)
	require.Len(t, store.created, 1)
}

func TestGenerateStripsCodeFences(t *testing.T) {
	ledger := &stubLedger{account: &models.CoinAccount{UserID: 1, Balance: 10}}
	svc := newService(ledger, &stubStore{}, &stubGenerator{
		text: "```html\n<!DOCTYPE html><html><body>x</body></html>\n```",
	})

	result, err := svc.Generate(context.Background(), GenerateRequest{
		Topic: "Topic", PageCount: 1, UserID: userRef(1),
	})
	require.NoError(t, err)
	require.Equal(t, "<!DOCTYPE html><html><body>x</body></html>", result.Note.HTMLContent)
}
