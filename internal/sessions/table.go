package sessions

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"magabot/internal/models"
	"magabot/internal/store"
)

// ErrCaseActive is returned when linking a case to a session that already has another one
var ErrCaseActive = errors.New("another case is active")

// Table is the keyed session store. Work on one user's session is serialized
// by a per-user lock; different users proceed concurrently. Idle sessions are
// evicted from memory and re-hydrated from the repository on the next event.
type Table struct {
	repo  store.Repository
	cache *cache.Cache
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*keyLock

	// last committed mode per user, readable without the user's lock
	modes sync.Map
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewTable creates a session table. idle is how long an untouched session stays in memory.
func NewTable(repo store.Repository, idle time.Duration) *Table {
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	t := &Table{
		repo:  repo,
		cache: cache.New(idle, idle/2),
		now:   time.Now,
		locks: make(map[string]*keyLock),
	}
	t.cache.OnEvicted(func(userID string, _ interface{}) {
		t.modes.Delete(userID)
		log.Printf("💤 [SESSIONS] Evicted idle session %s", userID)
	})
	return t
}

func (t *Table) lock(userID string) func() {
	t.mu.Lock()
	l, ok := t.locks[userID]
	if !ok {
		l = &keyLock{}
		t.locks[userID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, userID)
		}
		t.mu.Unlock()
	}
}

// load returns the cached session, re-hydrating or creating it when absent.
// The caller must hold the user's lock.
func (t *Table) load(ctx context.Context, userID, chatID string) (*models.Session, error) {
	if v, ok := t.cache.Get(userID); ok {
		return v.(*models.Session), nil
	}
	s, err := t.repo.GetSession(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return models.NewSession(userID, chatID, t.now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", userID, err)
	}
	return s, nil
}

// With runs fn with exclusive access to the user's session. The session is
// persisted after fn returns, whatever fn returned, so dedup marks survive
// handler errors.
func (t *Table) With(ctx context.Context, userID, chatID string, fn func(s *models.Session) error) error {
	unlock := t.lock(userID)
	defer unlock()

	s, err := t.load(ctx, userID, chatID)
	if err != nil {
		return err
	}
	if chatID != "" {
		s.ChatID = chatID
	}

	fnErr := fn(s)

	s.UpdatedAt = t.now()
	t.cache.SetDefault(userID, s)
	t.modes.Store(userID, s.Mode)
	if err := t.repo.SaveSession(ctx, s); err != nil {
		log.Printf("⚠️ [SESSIONS] Failed to persist session %s: %v", userID, err)
		if fnErr == nil {
			return err
		}
	}
	return fnErr
}

// Get returns a snapshot of the user's session
func (t *Table) Get(ctx context.Context, userID string) (*models.Session, error) {
	unlock := t.lock(userID)
	defer unlock()
	s, err := t.load(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	return s.Clone(), nil
}

// Mode returns the user's configured response mode without waiting for a
// turn in progress. Unknown users report auto.
func (t *Table) Mode(ctx context.Context, userID string) models.ResponseMode {
	if v, ok := t.modes.Load(userID); ok {
		return v.(models.ResponseMode)
	}
	s, err := t.repo.GetSession(ctx, userID)
	if err != nil {
		return models.ModeAuto
	}
	t.modes.Store(userID, s.Mode)
	return s.Mode
}

// LinkCase makes caseID the session's active case
func (t *Table) LinkCase(ctx context.Context, userID, caseID string) error {
	return t.With(ctx, userID, "", func(s *models.Session) error {
		if s.ActiveCaseID != "" && s.ActiveCaseID != caseID {
			return fmt.Errorf("%w: %s", ErrCaseActive, s.ActiveCaseID)
		}
		s.ActiveCaseID = caseID
		s.LastCaseID = caseID
		return nil
	})
}

// UnlinkCase clears the active case if it is still caseID. The case stays reachable as LastCaseID.
func (t *Table) UnlinkCase(ctx context.Context, userID, caseID string) {
	err := t.With(ctx, userID, "", func(s *models.Session) error {
		if s.ActiveCaseID == caseID {
			s.ActiveCaseID = ""
		}
		s.LastCaseID = caseID
		return nil
	})
	if err != nil {
		log.Printf("⚠️ [SESSIONS] Failed to unlink case %s from %s: %v", caseID, userID, err)
	}
}

// Resident returns the number of sessions held in memory
func (t *Table) Resident() int {
	return t.cache.ItemCount()
}

// EvictExpired drops idle sessions now instead of waiting for the janitor
func (t *Table) EvictExpired() {
	t.cache.DeleteExpired()
}
