// Package memory persists journal entries.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"daybook/models"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(conn *sql.DB) *Store {
	return &Store{db: conn, now: time.Now}
}

// Create inserts a memory owned by userID and returns its id. Date must be
// non-empty but is otherwise stored verbatim; content must not be blank.
// An empty imagePath stores NULL.
func (s *Store) Create(ctx context.Context, userID int64, date, content, imagePath string) (int64, error) {
	if userID <= 0 {
		return 0, models.ErrUnauthenticated
	}
	if strings.TrimSpace(date) == "" {
		return 0, fmt.Errorf("%w: date is required", models.ErrValidation)
	}
	if strings.TrimSpace(content) == "" {
		return 0, fmt.Errorf("%w: content is required", models.ErrValidation)
	}

	var image sql.NullString
	if imagePath != "" {
		image = sql.NullString{String: imagePath, Valid: true}
	}

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO memories (user_id, date, content, image_path, created_at) VALUES (?, ?, ?, ?, ?)",
		userID, date, content, image, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("insert memory: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// ListByDate returns userID's memories for date, newest first. No match
// yields an empty, non-nil slice.
func (s *Store) ListByDate(ctx context.Context, userID int64, date string) ([]models.Memory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, date, content, image_path, created_at
		 FROM memories
		 WHERE user_id = ? AND date = ?
		 ORDER BY created_at DESC, id DESC`, userID, date)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	memories := []models.Memory{}
	for rows.Next() {
		var (
			m         models.Memory
			image     sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.Date, &m.Content, &image, &createdAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		m.ImagePath = image.String
		m.CreatedAt = time.UnixMilli(createdAt).UTC()
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}

	return memories, nil
}

// DatesWithMemories lists the distinct dates in [from, to] on which
// userID wrote something, for marking the calendar view.
func (s *Store) DatesWithMemories(ctx context.Context, userID int64, from, to string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT date FROM memories
		 WHERE user_id = ? AND date >= ? AND date <= ?
		 ORDER BY date`, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("query memory dates: %w", err)
	}
	defer rows.Close()

	dates := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan memory date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

// OwnsImage reports whether one of userID's memories references ref.
func (s *Store) OwnsImage(ctx context.Context, userID int64, ref string) (bool, error) {
	if ref == "" {
		return false, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM memories WHERE user_id = ? AND image_path = ?", userID, ref).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query image owner: %w", err)
	}
	return n > 0, nil
}
