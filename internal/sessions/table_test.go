package sessions

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"magabot/internal/models"
	"magabot/internal/store"
)

func TestWith_CreatesAndPersists(t *testing.T) {
	repo := store.NewMemoryRepository()
	table := NewTable(repo, time.Minute)
	ctx := context.Background()

	err := table.With(ctx, "u1", "c1", func(s *models.Session) error {
		if s.Mode != models.ModeAuto {
			t.Errorf("new sessions default to auto, got %s", s.Mode)
		}
		s.Mode = models.ModeVoice
		return nil
	})
	if err != nil {
		t.Fatalf("With: %v", err)
	}

	saved, err := repo.GetSession(ctx, "u1")
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if saved.Mode != models.ModeVoice || saved.ChatID != "c1" {
		t.Errorf("unexpected persisted session %+v", saved)
	}
}

func TestWith_PersistsEvenOnError(t *testing.T) {
	repo := store.NewMemoryRepository()
	table := NewTable(repo, time.Minute)
	boom := errors.New("boom")

	err := table.With(context.Background(), "u1", "c1", func(s *models.Session) error {
		s.MarkEvent("5")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
	saved, _ := repo.GetSession(context.Background(), "u1")
	if saved == nil || !saved.SeenEvent("5") {
		t.Error("dedup mark lost after handler error")
	}
}

func TestWith_RehydratesAfterEviction(t *testing.T) {
	repo := store.NewMemoryRepository()
	table := NewTable(repo, 10*time.Millisecond)
	ctx := context.Background()

	_ = table.With(ctx, "u1", "c1", func(s *models.Session) error {
		s.Language = "ru"
		return nil
	})
	time.Sleep(20 * time.Millisecond)
	table.EvictExpired()
	if table.Resident() != 0 {
		t.Fatalf("expected eviction, %d resident", table.Resident())
	}

	s, err := table.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.Language != "ru" {
		t.Errorf("session was not re-hydrated: %+v", s)
	}
}

func TestWith_SerializesPerUser(t *testing.T) {
	table := NewTable(store.NewMemoryRepository(), time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = table.With(ctx, "u1", "c1", func(s *models.Session) error {
				// Slice append without atomics; only safe under the per-user lock
				s.MarkEvent(strconv.Itoa(i))
				return nil
			})
		}()
	}
	wg.Wait()

	s, _ := table.Get(ctx, "u1")
	if len(s.RecentEventIDs) != 50 {
		t.Errorf("expected 50 serialized updates, got %d", len(s.RecentEventIDs))
	}
	table.mu.Lock()
	defer table.mu.Unlock()
	if len(table.locks) != 0 {
		t.Errorf("key locks leaked: %d", len(table.locks))
	}
}

func TestLinkAndUnlinkCase(t *testing.T) {
	table := NewTable(store.NewMemoryRepository(), time.Minute)
	ctx := context.Background()

	if err := table.LinkCase(ctx, "u1", "case-1"); err != nil {
		t.Fatalf("LinkCase: %v", err)
	}
	if err := table.LinkCase(ctx, "u1", "case-2"); !errors.Is(err, ErrCaseActive) {
		t.Fatalf("expected ErrCaseActive, got %v", err)
	}

	table.UnlinkCase(ctx, "u1", "case-1")
	s, _ := table.Get(ctx, "u1")
	if s.ActiveCaseID != "" || s.LastCaseID != "case-1" {
		t.Errorf("unexpected session after unlink: %+v", s)
	}

	if err := table.LinkCase(ctx, "u1", "case-2"); err != nil {
		t.Errorf("link after unlink failed: %v", err)
	}
}

func TestMode_ReadsCommittedModeWithoutTheLock(t *testing.T) {
	repo := store.NewMemoryRepository()
	table := NewTable(repo, time.Minute)
	ctx := context.Background()

	if got := table.Mode(ctx, "nobody"); got != models.ModeAuto {
		t.Errorf("unknown users report auto, got %s", got)
	}

	_ = table.With(ctx, "u1", "c1", func(s *models.Session) error {
		s.Mode = models.ModeVoice
		return nil
	})

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = table.With(ctx, "u1", "c1", func(s *models.Session) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	if got := table.Mode(ctx, "u1"); got != models.ModeVoice {
		t.Errorf("expected voice while a turn is running, got %s", got)
	}
	close(release)

	fresh := NewTable(repo, time.Minute)
	if got := fresh.Mode(ctx, "u1"); got != models.ModeVoice {
		t.Errorf("mode should load from the repository, got %s", got)
	}
}
