package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/noteforge/noteforge/internal/models"
)

type NoteRepository struct {
	db *sql.DB
}

func NewNoteRepository(db *sql.DB) *NoteRepository {
	return &NoteRepository{db: db}
}

func (r *NoteRepository) Create(ctx context.Context, note *models.Note) error {
	const query = `
INSERT INTO notes (id, user_id, title, template_id, page_count, coins_spent, html_content, warning)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	var userID any
	if note.UserID != nil {
		userID = *note.UserID
	}
	if _, err := r.db.ExecContext(ctx, query, note.ID, userID, note.Title, note.TemplateID, note.PageCount, note.CoinsSpent, note.HTMLContent, note.Warning); err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

func (r *NoteRepository) GetByID(ctx context.Context, id string) (*models.Note, error) {
	const query = `
SELECT id, user_id, title, template_id, page_count, coins_spent, html_content, warning, created_at
FROM notes WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	var n models.Note
	var userID sql.NullInt64
	if err := row.Scan(&n.ID, &userID, &n.Title, &n.TemplateID, &n.PageCount, &n.CoinsSpent, &n.HTMLContent, &n.Warning, &n.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan note: %w", err)
	}
	if userID.Valid {
		v := userID.Int64
		n.UserID = &v
	}
	return &n, nil
}

// ListByUser returns a page of the user's history, newest first, plus the
// total number of notes for pagination.
func (r *NoteRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]models.NoteSummary, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notes WHERE user_id = ?`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notes: %w", err)
	}

	const query = `
SELECT id, title, template_id, page_count, coins_spent, created_at
FROM notes
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var items []models.NoteSummary
	for rows.Next() {
		var s models.NoteSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.TemplateID, &s.PageCount, &s.CoinsSpent, &s.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan note summary: %w", err)
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}
