package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/noteforge/noteforge/internal/export"
	"github.com/noteforge/noteforge/internal/llm"
	"github.com/noteforge/noteforge/internal/models"
	"github.com/noteforge/noteforge/internal/prompt"
	"github.com/noteforge/noteforge/internal/repository"
)

const (
	minPages = 1
	maxPages = 10

	// One coin per generated page, fixed exchange rate.
	coinsPerPage = 1

	maxTitleLen = 120
)

var ErrInvalidRequest = errors.New("invalid request")

// InsufficientFundsError terminates a request before any upstream call.
type InsufficientFundsError struct {
	Required  int
	Available int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient balance: need %d coins, have %d", e.Required, e.Available)
}

// QuotaExceededError terminates a request when the account's monthly cap is hit.
type QuotaExceededError struct {
	Limit   int
	Current int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("monthly quota exceeded: %d of %d used", e.Current, e.Limit)
}

// GenerationFailedError reports an exhausted or terminally failed upstream
// call. Status is the last upstream HTTP status, 0 for transport failures.
type GenerationFailedError struct {
	Status int
	Err    error
}

func (e *GenerationFailedError) Error() string {
	return fmt.Sprintf("generation failed (status %d): %v", e.Status, e.Err)
}

func (e *GenerationFailedError) Unwrap() error { return e.Err }

// Generator produces raw document text for a prompt.
type Generator interface {
	Generate(ctx context.Context, promptText string, pageCount int) (string, error)
}

// Ledger is the slice of the coin ledger the orchestrator consumes.
type Ledger interface {
	Get(ctx context.Context, userID int64) (*models.CoinAccount, error)
	TryDeduct(ctx context.Context, userID int64, amount int, description string) (*models.Transaction, error)
}

// NoteStore persists generated artifacts.
type NoteStore interface {
	Create(ctx context.Context, note *models.Note) error
}

type GenerateRequest struct {
	Topic      string
	TemplateID models.TemplateID
	PageCount  int
	// UserID is nil on the guest path; guests never touch the ledger.
	UserID *int64
}

type GenerateResult struct {
	Note *models.Note
	// CoinsRemaining is -1 when unknown (guest path or failed reconciliation).
	CoinsRemaining int
	Warning        string
}

// GenerationService runs each request through a single pass of
// precondition -> generate -> reconcile -> persist. There is no retry across
// stages, and the precondition check and the deduction are deliberately not
// one atomic reservation: holding a ledger lock across a multi-second
// upstream call would serialize every request from the same account. The
// narrow overspend race that ordering admits is absorbed as a warning.
type GenerationService struct {
	log       *slog.Logger
	ledger    Ledger
	notes     NoteStore
	generator Generator
}

func NewGenerationService(log *slog.Logger, ledger Ledger, notes NoteStore, generator Generator) *GenerationService {
	return &GenerationService{
		log:       log,
		ledger:    ledger,
		notes:     notes,
		generator: generator,
	}
}

func (s *GenerationService) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidRequest)
	}

	pages := clampPages(req.PageCount)
	coinsRequired := pages * coinsPerPage

	// Precondition: never spend upstream capacity on a request that cannot pay.
	if req.UserID != nil {
		account, err := s.ledger.Get(ctx, *req.UserID)
		if err != nil {
			return nil, fmt.Errorf("fetch account: %w", err)
		}
		if account == nil {
			return nil, fmt.Errorf("%w: unknown account", ErrInvalidRequest)
		}
		if account.Balance < coinsRequired {
			return nil, &InsufficientFundsError{Required: coinsRequired, Available: account.Balance}
		}
		if account.MonthlyLimit != nil && account.MonthlyCount >= *account.MonthlyLimit {
			return nil, &QuotaExceededError{Limit: *account.MonthlyLimit, Current: account.MonthlyCount}
		}
	}

	promptText := prompt.Build(topic, req.TemplateID, pages)
	raw, err := s.generator.Generate(ctx, promptText, pages)
	if err != nil {
		// No ledger mutation has happened yet, nothing to compensate.
		return nil, &GenerationFailedError{Status: upstreamStatus(err), Err: err}
	}

	html := export.StripFences(raw)

	note := &models.Note{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Title:       title(topic),
		TemplateID:  prompt.Lookup(req.TemplateID).ID,
		PageCount:   pages,
		HTMLContent: html,
	}

	result := &GenerateResult{Note: note, CoinsRemaining: -1}

	// Reconcile. A concurrent request may have drained the balance since the
	// precondition check; the generated artifact is still delivered, flagged.
	if req.UserID != nil {
		transaction, err := s.ledger.TryDeduct(ctx, *req.UserID, coinsRequired, fmt.Sprintf("generation: %s", note.Title))
		switch {
		case errors.Is(err, repository.ErrInsufficientBalance):
			result.Warning = "balance changed during generation; coins were not deducted"
			s.log.Warn("deduct raced with concurrent spend", "user_id", *req.UserID, "required", coinsRequired)
		case err != nil:
			result.Warning = "billing could not be reconciled; coins were not deducted"
			s.log.Error("deduct failed after successful generation", "user_id", *req.UserID, "err", err)
		default:
			note.CoinsSpent = coinsRequired
			result.CoinsRemaining = transaction.NewBalance
		}
	}
	note.Warning = result.Warning

	// Persist. Coins already spent bought a successful generation, so a
	// persistence failure downgrades the response instead of refunding.
	if err := s.notes.Create(ctx, note); err != nil {
		s.log.Error("failed to persist note", "note_id", note.ID, "err", err)
		if result.Warning == "" {
			result.Warning = "note was generated but could not be saved to history"
		}
	}

	return result, nil
}

// CoinsRequiredFor returns the charge for a raw page count after clamping.
func CoinsRequiredFor(pageCount int) int {
	return clampPages(pageCount) * coinsPerPage
}

// clampPages maps any out-of-range page count to the minimum rather than
// rejecting the request.
func clampPages(pages int) int {
	if pages < minPages || pages > maxPages {
		return minPages
	}
	return pages
}

func title(topic string) string {
	if len(topic) <= maxTitleLen {
		return topic
	}
	return topic[:maxTitleLen]
}

func upstreamStatus(err error) int {
	var se *llm.StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}
