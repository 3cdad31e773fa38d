package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"magabot/internal/crypto"
	"magabot/internal/database"
	"magabot/internal/models"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newSQLiteRepo(t *testing.T) *SQLRepository {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	cipher, err := crypto.NewRecordCipher(testKey)
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	repo := NewSQLRepository(db, cipher)
	t.Cleanup(func() { repo.Close(context.Background()) })
	return repo
}

func repositories(t *testing.T) map[string]Repository {
	return map[string]Repository{
		"memory": NewMemoryRepository(),
		"sqlite": newSQLiteRepo(t),
	}
}

func TestRepository_Sessions(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := repo.GetSession(ctx, "u1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
			s := models.NewSession("u1", "c1", now)
			s.Mode = models.ModeVoice
			s.MarkEvent("17")
			if err := repo.SaveSession(ctx, s); err != nil {
				t.Fatalf("SaveSession: %v", err)
			}

			s.ActiveCaseID = "case-1"
			if err := repo.SaveSession(ctx, s); err != nil {
				t.Fatalf("SaveSession (update): %v", err)
			}

			got, err := repo.GetSession(ctx, "u1")
			if err != nil {
				t.Fatalf("GetSession: %v", err)
			}
			if got.Mode != models.ModeVoice || got.ActiveCaseID != "case-1" {
				t.Errorf("unexpected session %+v", got)
			}
			if !got.SeenEvent("17") {
				t.Error("dedup state was not persisted")
			}
		})
	}
}

func TestRepository_Cases(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

			active := models.NewCase("case-a", "u1", "c1", models.Criteria{TargetRole: "Go Developer"}, models.Profile{Email: "dev@example.com"}, base)
			active.Artifacts.Postings = []models.Posting{{ID: "p1", Title: "Go Developer", Company: "Acme"}}
			active.Attempts[models.StageDiscover] = 1

			done := models.NewCase("case-b", "u1", "c1", models.Criteria{}, models.Profile{}, base.Add(time.Hour))
			done.Stage = models.StageDone

			other := models.NewCase("case-c", "u2", "c2", models.Criteria{}, models.Profile{}, base.Add(2*time.Hour))

			for _, c := range []*models.Case{active, done, other} {
				if err := repo.SaveCase(ctx, c); err != nil {
					t.Fatalf("SaveCase(%s): %v", c.ID, err)
				}
			}

			got, err := repo.GetCase(ctx, "case-a")
			if err != nil {
				t.Fatalf("GetCase: %v", err)
			}
			if got.Attempts[models.StageDiscover] != 1 || len(got.Artifacts.Postings) != 1 || got.Profile.Email != "dev@example.com" {
				t.Errorf("case not round-tripped: %+v", got)
			}

			// Returned cases are copies
			got.Artifacts.Postings[0].Title = "mutated"
			again, _ := repo.GetCase(ctx, "case-a")
			if again.Artifacts.Postings[0].Title != "Go Developer" {
				t.Error("repository shares memory with callers")
			}

			activeCases, err := repo.ListActiveCases(ctx)
			if err != nil {
				t.Fatalf("ListActiveCases: %v", err)
			}
			if len(activeCases) != 2 {
				t.Errorf("expected 2 active cases, got %d", len(activeCases))
			}

			userCases, err := repo.ListUserCases(ctx, "u1", 10)
			if err != nil {
				t.Fatalf("ListUserCases: %v", err)
			}
			if len(userCases) != 2 || userCases[0].ID != "case-b" {
				t.Errorf("expected newest first, got %v", caseIDs(userCases))
			}

			if _, err := repo.GetCase(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestSQLRepository_PayloadIsSealed(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()
	c := models.NewCase("case-x", "u1", "c1", models.Criteria{}, models.Profile{Email: "secret@example.com"}, time.Now())
	if err := repo.SaveCase(ctx, c); err != nil {
		t.Fatalf("SaveCase: %v", err)
	}

	var payload string
	if err := repo.db.QueryRow(`SELECT payload FROM cases WHERE id = ?`, "case-x").Scan(&payload); err != nil {
		t.Fatalf("query: %v", err)
	}
	if payload == "" || strings.Contains(payload, "secret@example.com") {
		t.Error("case payload is not encrypted at rest")
	}
}

func caseIDs(cases []*models.Case) []string {
	ids := make([]string, len(cases))
	for i, c := range cases {
		ids[i] = c.ID
	}
	return ids
}
