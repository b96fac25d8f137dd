//go:build integration

package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mentora-ai/mentora/internal/testutil"
)

func TestRepository(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	repo, err := NewRepository(db.Pool, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewRepository() error: %v", err)
	}
	ctx := context.Background()

	t.Run("upsert updates in place", func(t *testing.T) {
		owner := "owner-upsert"
		first, err := repo.Upsert(ctx, Entry{
			Title:    "Algebra Notes",
			Content:  "quadratic equations",
			Source:   SourceNotebook,
			SourceID: "note-1",
			OwnerID:  owner,
		})
		if err != nil {
			t.Fatalf("Upsert() error: %v", err)
		}

		second, err := repo.Upsert(ctx, Entry{
			Title:    "Algebra Notes v2",
			Content:  "quadratic and cubic equations",
			Source:   SourceNotebook,
			SourceID: "note-1",
			OwnerID:  owner,
		})
		if err != nil {
			t.Fatalf("second Upsert() error: %v", err)
		}
		if first != second {
			t.Errorf("re-upsert created new entry: %s != %s", first, second)
		}

		got, err := repo.BySourceRef(ctx, owner, SourceNotebook, "note-1")
		if err != nil {
			t.Fatalf("BySourceRef() error: %v", err)
		}
		if got.Title != "Algebra Notes v2" {
			t.Errorf("Title = %q after update", got.Title)
		}
		if got.Content != "quadratic and cubic equations" {
			t.Errorf("Content = %q after update", got.Content)
		}
		if !got.LastUpdated.After(got.CreatedAt) && !got.LastUpdated.Equal(got.CreatedAt) {
			t.Error("LastUpdated predates CreatedAt")
		}
	})

	t.Run("upsert validates entries", func(t *testing.T) {
		tests := []struct {
			name  string
			entry Entry
		}{
			{name: "unknown source", entry: Entry{Source: "wiki", SourceID: "x", OwnerID: "o", Content: "c"}},
			{name: "missing source id", entry: Entry{Source: SourceText, OwnerID: "o", Content: "c"}},
			{name: "missing owner", entry: Entry{Source: SourceText, SourceID: "x", Content: "c"}},
			{name: "blank content", entry: Entry{Source: SourceText, SourceID: "x", OwnerID: "o", Content: "   "}},
		}
		for _, tt := range tests {
			if _, err := repo.Upsert(ctx, tt.entry); !errors.Is(err, ErrInvalidEntry) {
				t.Errorf("%s: Upsert() error = %v, want ErrInvalidEntry", tt.name, err)
			}
		}
	})

	t.Run("metadata round trip", func(t *testing.T) {
		owner := "owner-metadata"
		score := 87.5
		questions := 12
		meta := Metadata{
			Subject:        "chemistry",
			Difficulty:     "hard",
			Tags:           []string{"organic", "reactions"},
			Score:          &score,
			QuestionsCount: &questions,
		}
		if _, err := repo.Upsert(ctx, Entry{
			Title:    "Organic Chemistry Quiz",
			Content:  "reaction mechanisms",
			Source:   SourceQuiz,
			SourceID: "quiz-1",
			OwnerID:  owner,
			Metadata: meta,
		}); err != nil {
			t.Fatalf("Upsert() error: %v", err)
		}

		got, err := repo.BySourceRef(ctx, owner, SourceQuiz, "quiz-1")
		if err != nil {
			t.Fatalf("BySourceRef() error: %v", err)
		}
		if diff := cmp.Diff(meta, got.Metadata); diff != "" {
			t.Errorf("Metadata mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("by source ref not found", func(t *testing.T) {
		if _, err := repo.BySourceRef(ctx, "nobody", SourceNotebook, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("BySourceRef() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("keyword search", func(t *testing.T) {
		owner := "owner-keyword"
		seed := []Entry{
			{Title: "Photosynthesis", Content: "light reactions in chloroplasts", Source: SourceNotebook, SourceID: "n1", OwnerID: owner},
			{Title: "Cell Division", Content: "mitosis and meiosis", Source: SourceNotebook, SourceID: "n2", OwnerID: owner},
			{Title: "Progress 50%", Content: "tracking notes", Source: SourceText, SourceID: "n3", OwnerID: owner},
		}
		for _, e := range seed {
			if _, err := repo.Upsert(ctx, e); err != nil {
				t.Fatalf("seeding: %v", err)
			}
		}

		// Case-insensitive, matches title or content.
		got, err := repo.KeywordSearch(ctx, owner, "MITOSIS", 10)
		if err != nil {
			t.Fatalf("KeywordSearch() error: %v", err)
		}
		if len(got) != 1 || got[0].Title != "Cell Division" {
			t.Errorf("KeywordSearch(MITOSIS) = %d entries", len(got))
		}

		// LIKE metacharacters match literally, not as wildcards.
		got, err = repo.KeywordSearch(ctx, owner, "50%", 10)
		if err != nil {
			t.Fatalf("KeywordSearch() error: %v", err)
		}
		if len(got) != 1 || got[0].Title != "Progress 50%" {
			t.Errorf("KeywordSearch(50%%) matched %d entries, want the literal one", len(got))
		}

		// Other owners never see these entries.
		got, err = repo.KeywordSearch(ctx, "someone-else", "mitosis", 10)
		if err != nil {
			t.Fatalf("KeywordSearch() error: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("cross-owner keyword search returned %d entries", len(got))
		}

		// Blank queries return nothing rather than everything.
		got, err = repo.KeywordSearch(ctx, owner, "   ", 10)
		if err != nil {
			t.Fatalf("KeywordSearch() error: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("blank query returned %d entries", len(got))
		}
	})

	t.Run("list filters by source", func(t *testing.T) {
		owner := "owner-list"
		for _, e := range []Entry{
			{Title: "Quiz A", Content: "qa", Source: SourceQuiz, SourceID: "q1", OwnerID: owner},
			{Title: "Quiz B", Content: "qb", Source: SourceQuiz, SourceID: "q2", OwnerID: owner},
			{Title: "Note A", Content: "na", Source: SourceNotebook, SourceID: "n1", OwnerID: owner},
		} {
			if _, err := repo.Upsert(ctx, e); err != nil {
				t.Fatalf("seeding: %v", err)
			}
		}

		quizzes, err := repo.List(ctx, owner, SourceQuiz, 10)
		if err != nil {
			t.Fatalf("List() error: %v", err)
		}
		if len(quizzes) != 2 {
			t.Errorf("List(quiz) = %d entries, want 2", len(quizzes))
		}

		all, err := repo.List(ctx, owner, "", 10)
		if err != nil {
			t.Fatalf("List() error: %v", err)
		}
		if len(all) != 3 {
			t.Errorf("List(all) = %d entries, want 3", len(all))
		}

		if _, err := repo.List(ctx, owner, "wiki", 10); !errors.Is(err, ErrInvalidEntry) {
			t.Errorf("List(wiki) error = %v, want ErrInvalidEntry", err)
		}
	})

	t.Run("soft delete", func(t *testing.T) {
		owner := "owner-delete"
		if _, err := repo.Upsert(ctx, Entry{
			Title: "Old Notes", Content: "stale", Source: SourceNotebook, SourceID: "n1", OwnerID: owner,
		}); err != nil {
			t.Fatalf("Upsert() error: %v", err)
		}

		if err := repo.SoftDelete(ctx, owner, SourceNotebook, "n1"); err != nil {
			t.Fatalf("SoftDelete() error: %v", err)
		}
		if _, err := repo.BySourceRef(ctx, owner, SourceNotebook, "n1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("BySourceRef() after delete error = %v, want ErrNotFound", err)
		}
		if n, err := repo.Count(ctx, owner); err != nil || n != 0 {
			t.Errorf("Count() = %d, %v, want 0", n, err)
		}

		// Deleting again finds no active row.
		if err := repo.SoftDelete(ctx, owner, SourceNotebook, "n1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("second SoftDelete() error = %v, want ErrNotFound", err)
		}

		// Re-upserting the same ref resurrects the entry.
		if _, err := repo.Upsert(ctx, Entry{
			Title: "Fresh Notes", Content: "new", Source: SourceNotebook, SourceID: "n1", OwnerID: owner,
		}); err != nil {
			t.Fatalf("re-Upsert() error: %v", err)
		}
		got, err := repo.BySourceRef(ctx, owner, SourceNotebook, "n1")
		if err != nil {
			t.Fatalf("BySourceRef() after resurrect error: %v", err)
		}
		if got.Title != "Fresh Notes" {
			t.Errorf("Title = %q after resurrect", got.Title)
		}
	})
}
