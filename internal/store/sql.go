package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"magabot/internal/crypto"
	"magabot/internal/database"
	"magabot/internal/models"
)

// SQLRepository stores sealed JSON records in MySQL or SQLite
type SQLRepository struct {
	db    *database.DB
	codec codec
}

// NewSQLRepository wraps an initialized database
func NewSQLRepository(db *database.DB, sealer crypto.Sealer) *SQLRepository {
	return &SQLRepository{db: db, codec: newCodec(sealer)}
}

// upsert builds a dialect-specific insert-or-update; created_at is never overwritten
func (r *SQLRepository) upsert(table, key string, columns []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")

	var updates []string
	for _, c := range columns {
		if c == key || c == "created_at" {
			continue
		}
		if r.db.Dialect == database.DialectMySQL {
			updates = append(updates, c+" = VALUES("+c+")")
		} else {
			updates = append(updates, c+" = excluded."+c)
		}
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), placeholders)
	if r.db.Dialect == database.DialectMySQL {
		return insert + " ON DUPLICATE KEY UPDATE " + strings.Join(updates, ", ")
	}
	return insert + " ON CONFLICT(" + key + ") DO UPDATE SET " + strings.Join(updates, ", ")
}

func (r *SQLRepository) GetSession(ctx context.Context, userID string) (*models.Session, error) {
	var payload string
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM sessions WHERE user_id = ?`, userID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", userID, err)
	}
	var s models.Session
	if err := r.codec.decode(userID, "session:"+userID, payload, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SQLRepository) SaveSession(ctx context.Context, s *models.Session) error {
	payload, err := r.codec.encode(s.UserID, "session:"+s.UserID, s)
	if err != nil {
		return err
	}
	query := r.upsert("sessions", "user_id", []string{"user_id", "chat_id", "payload", "updated_at"})
	if _, err := r.db.ExecContext(ctx, query, s.UserID, s.ChatID, payload, s.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to save session %s: %w", s.UserID, err)
	}
	return nil
}

func (r *SQLRepository) GetCase(ctx context.Context, id string) (*models.Case, error) {
	var userID, payload string
	err := r.db.QueryRowContext(ctx, `SELECT user_id, payload FROM cases WHERE id = ?`, id).Scan(&userID, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load case %s: %w", id, err)
	}
	var c models.Case
	if err := r.codec.decode(userID, id, payload, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *SQLRepository) SaveCase(ctx context.Context, c *models.Case) error {
	payload, err := r.codec.encode(c.UserID, c.ID, c)
	if err != nil {
		return err
	}
	query := r.upsert("cases", "id", []string{"id", "user_id", "stage", "active", "payload", "created_at", "updated_at"})
	if _, err := r.db.ExecContext(ctx, query, c.ID, c.UserID, string(c.Stage), c.Active(), payload, c.CreatedAt.UTC(), c.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to save case %s: %w", c.ID, err)
	}
	return nil
}

func (r *SQLRepository) ListActiveCases(ctx context.Context) ([]*models.Case, error) {
	return r.listCases(ctx, `SELECT id, user_id, payload FROM cases WHERE active = ? ORDER BY updated_at ASC`, true)
}

func (r *SQLRepository) ListUserCases(ctx context.Context, userID string, limit int) ([]*models.Case, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.listCases(ctx, `SELECT id, user_id, payload FROM cases WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit)
}

func (r *SQLRepository) listCases(ctx context.Context, query string, args ...any) ([]*models.Case, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer rows.Close()

	var out []*models.Case
	for rows.Next() {
		var id, userID, payload string
		if err := rows.Scan(&id, &userID, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		var c models.Case
		if err := r.codec.decode(userID, id, payload, &c); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (r *SQLRepository) Close(context.Context) error {
	return r.db.Close()
}
