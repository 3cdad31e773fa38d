package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"magabot/internal/crypto"
	"magabot/internal/models"
)

// ErrNotFound is returned when a session or case does not exist
var ErrNotFound = errors.New("not found")

// Repository persists sessions and cases. Every method returns copies:
// callers never share memory with the store.
type Repository interface {
	GetSession(ctx context.Context, userID string) (*models.Session, error)
	SaveSession(ctx context.Context, s *models.Session) error

	GetCase(ctx context.Context, id string) (*models.Case, error)
	SaveCase(ctx context.Context, c *models.Case) error
	ListActiveCases(ctx context.Context) ([]*models.Case, error)
	ListUserCases(ctx context.Context, userID string, limit int) ([]*models.Case, error)

	Close(ctx context.Context) error
}

// codec seals JSON-encoded records for the durable backends
type codec struct {
	sealer crypto.Sealer
}

func newCodec(sealer crypto.Sealer) codec {
	if sealer == nil {
		sealer = crypto.Plain{}
	}
	return codec{sealer: sealer}
}

func (c codec) encode(owner, id string, v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode record %s: %w", id, err)
	}
	return c.sealer.Seal(owner, id, raw)
}

func (c codec) decode(owner, id, sealed string, v any) error {
	raw, err := c.sealer.Open(owner, id, sealed)
	if err != nil {
		return fmt.Errorf("failed to open record %s: %w", id, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode record %s: %w", id, err)
	}
	return nil
}
