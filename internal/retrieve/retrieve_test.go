package retrieve

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mentora-ai/mentora/internal/knowledge"
	"github.com/mentora-ai/mentora/internal/testutil"
	"github.com/mentora-ai/mentora/internal/vector"
)

var fixedNow = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

type fakeSearcher struct {
	hits []vector.Hit
	err  error
}

func (f *fakeSearcher) Search(_ context.Context, _ vector.TenantKey, _ []float32, _ int, _ float32) ([]vector.Hit, error) {
	return f.hits, f.err
}

type fakeEntries struct {
	bySourceRef map[string]*knowledge.Entry // keyed source/sourceID
	keyword     []*knowledge.Entry
	keywordErr  error
	list        []*knowledge.Entry
}

func (f *fakeEntries) BySourceRef(_ context.Context, _ string, source knowledge.Source, sourceID string) (*knowledge.Entry, error) {
	if e, ok := f.bySourceRef[string(source)+"/"+sourceID]; ok {
		return e, nil
	}
	return nil, knowledge.ErrNotFound
}

func (f *fakeEntries) KeywordSearch(_ context.Context, _, _ string, _ int) ([]*knowledge.Entry, error) {
	return f.keyword, f.keywordErr
}

func (f *fakeEntries) List(_ context.Context, _ string, _ knowledge.Source, _ int) ([]*knowledge.Entry, error) {
	return f.list, nil
}

func newTestRetriever(t *testing.T, store Searcher, entries EntrySource) *Retriever {
	t.Helper()
	r, err := New(store, entries, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	r.now = func() time.Time { return fixedNow }
	return r
}

func entry(title, content string, updated time.Time) *knowledge.Entry {
	return &knowledge.Entry{
		ID:          uuid.NewSHA1(uuid.NameSpaceOID, []byte(title)),
		Title:       title,
		Content:     content,
		Source:      knowledge.SourceNotebook,
		OwnerID:     "owner-1",
		LastUpdated: updated,
		Active:      true,
	}
}

func testKey(t *testing.T) vector.TenantKey {
	t.Helper()
	key, err := vector.NewTenantKey("owner-1", "")
	if err != nil {
		t.Fatalf("NewTenantKey() error: %v", err)
	}
	return key
}

func TestRetrieve_SemanticHitPreferred(t *testing.T) {
	t.Parallel()

	e := entry("Photosynthesis", "light reactions in chloroplasts", fixedNow.Add(-48*time.Hour))
	store := &fakeSearcher{hits: []vector.Hit{{
		ID:    "p1",
		Score: 0.92,
		Payload: vector.Payload{
			Content:  "light reactions in chloroplasts",
			Metadata: map[string]string{"source": "notebook", "source_id": "nb-1"},
		},
	}}}
	entries := &fakeEntries{
		bySourceRef: map[string]*knowledge.Entry{"notebook/nb-1": e},
		keyword:     []*knowledge.Entry{entry("Decoy", "keyword path", fixedNow)},
	}

	r := newTestRetriever(t, store, entries)
	out, err := r.Retrieve(context.Background(), testKey(t), []float32{1, 0}, "photosynthesis", 5, 0.3)
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if out.Mode != SemanticHit {
		t.Fatalf("Mode = %v, want SemanticHit", out.Mode)
	}
	if len(out.Candidates) != 1 || out.Candidates[0].Entry.Title != "Photosynthesis" {
		t.Fatalf("candidates = %+v", out.Candidates)
	}
	if out.Candidates[0].Similarity != 0.92 {
		t.Errorf("Similarity = %v, want 0.92", out.Candidates[0].Similarity)
	}
}

func TestRetrieve_KeywordFallback(t *testing.T) {
	t.Parallel()

	entries := &fakeEntries{
		keyword: []*knowledge.Entry{entry("Notes", "matching content", fixedNow.Add(-time.Hour))},
	}

	tests := []struct {
		name  string
		store *fakeSearcher
		vec   []float32
	}{
		{name: "semantic empty", store: &fakeSearcher{}, vec: []float32{1, 0}},
		{name: "semantic error", store: &fakeSearcher{err: errors.New("store down")}, vec: []float32{1, 0}},
		{name: "no query vector", store: &fakeSearcher{hits: []vector.Hit{{ID: "never"}}}, vec: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := newTestRetriever(t, tt.store, entries)
			out, err := r.Retrieve(context.Background(), testKey(t), tt.vec, "matching", 5, 0.3)
			if err != nil {
				t.Fatalf("Retrieve() error: %v", err)
			}
			if out.Mode != KeywordHit {
				t.Errorf("Mode = %v, want KeywordHit", out.Mode)
			}
			if len(out.Candidates) != 1 {
				t.Errorf("got %d candidates, want 1", len(out.Candidates))
			}
		})
	}
}

func TestRetrieve_NoContext(t *testing.T) {
	t.Parallel()

	r := newTestRetriever(t, &fakeSearcher{}, &fakeEntries{})
	out, err := r.Retrieve(context.Background(), testKey(t), []float32{1, 0}, "anything", 5, 0.3)
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if out.Mode != NoContext {
		t.Errorf("Mode = %v, want NoContext", out.Mode)
	}
	if len(out.Candidates) != 0 {
		t.Errorf("got %d candidates, want 0", len(out.Candidates))
	}
}

func TestRetrieve_KeywordErrorPropagates(t *testing.T) {
	t.Parallel()

	r := newTestRetriever(t, &fakeSearcher{}, &fakeEntries{keywordErr: errors.New("db down")})
	_, err := r.Retrieve(context.Background(), testKey(t), nil, "anything", 5, 0.3)
	if err == nil {
		t.Fatal("Retrieve() should fail when both paths are unavailable")
	}
}

func TestRank_ExactTitleBeatsWordOverlap(t *testing.T) {
	t.Parallel()

	updated := fixedNow.Add(-30 * 24 * time.Hour) // outside all recency tiers
	a := entry("What is cellular respiration", "the process described in class", updated)
	b := entry("Biology notes", "cellular processes and respiration basics", updated)

	entries := &fakeEntries{keyword: []*knowledge.Entry{b, a}}
	r := newTestRetriever(t, &fakeSearcher{}, entries)

	out, err := r.Retrieve(context.Background(), testKey(t), nil, "cellular respiration", 5, 0)
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if len(out.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(out.Candidates))
	}
	first, second := out.Candidates[0], out.Candidates[1]
	if first.Entry.Title != a.Title {
		t.Fatalf("ranked %q first, want exact-title match %q", first.Entry.Title, a.Title)
	}
	if first.Score <= second.Score {
		t.Errorf("exact-title score %v not strictly above word-overlap score %v", first.Score, second.Score)
	}
}

func TestRank_RecencyBreaksTies(t *testing.T) {
	t.Parallel()

	old := entry("Identical", "same text", fixedNow.Add(-40*24*time.Hour))
	newer := entry("Identical", "same text", fixedNow.Add(-30*24*time.Hour))
	newer.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("newer"))

	entries := &fakeEntries{keyword: []*knowledge.Entry{old, newer}}
	r := newTestRetriever(t, &fakeSearcher{}, entries)

	out, err := r.Retrieve(context.Background(), testKey(t), nil, "unrelated query", 5, 0)
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if !out.Candidates[0].Entry.LastUpdated.After(out.Candidates[1].Entry.LastUpdated) {
		t.Error("tie not broken by most recent update")
	}
}

func TestRank_RecencyTiers(t *testing.T) {
	t.Parallel()

	r := newTestRetriever(t, &fakeSearcher{}, &fakeEntries{})

	tests := []struct {
		age  time.Duration
		want float64
	}{
		{12 * time.Hour, recencyDayBonus},
		{2 * 24 * time.Hour, recency3DayBonus},
		{5 * 24 * time.Hour, recencyWeekBonus},
		{10 * 24 * time.Hour, recency2WeekBonus},
		{20 * 24 * time.Hour, 0},
	}
	for _, tt := range tests {
		if got := r.recencyBonus(fixedNow.Add(-tt.age)); got != tt.want {
			t.Errorf("recencyBonus(age %v) = %v, want %v", tt.age, got, tt.want)
		}
	}
	if got := r.recencyBonus(time.Time{}); got != 0 {
		t.Errorf("recencyBonus(zero) = %v, want 0", got)
	}
}

func TestRank_TagAndSubjectBonuses(t *testing.T) {
	t.Parallel()

	updated := fixedNow.Add(-30 * 24 * time.Hour)
	plain := entry("Alpha", "nothing relevant here", updated)
	tagged := entry("Beta", "nothing relevant here", updated)
	tagged.Metadata.Tags = []string{"algebra"}
	tagged.Metadata.Subject = "math"

	entries := &fakeEntries{keyword: []*knowledge.Entry{plain, tagged}}
	r := newTestRetriever(t, &fakeSearcher{}, entries)

	out, err := r.Retrieve(context.Background(), testKey(t), nil, "math algebra homework", 5, 0)
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if out.Candidates[0].Entry.Title != "Beta" {
		t.Errorf("tagged entry should rank first, got %q", out.Candidates[0].Entry.Title)
	}
	gap := out.Candidates[0].Score - out.Candidates[1].Score
	if gap != tagMatchBonus+subjectMatchBonus {
		t.Errorf("score gap = %v, want %v", gap, tagMatchBonus+subjectMatchBonus)
	}
}

func TestRank_Deterministic(t *testing.T) {
	t.Parallel()

	updated := fixedNow.Add(-30 * 24 * time.Hour)
	es := []*knowledge.Entry{
		entry("One", "shared words in content", updated),
		entry("Two", "shared words in content", updated),
		entry("Three", "shared words in content", updated),
	}
	entries := &fakeEntries{keyword: es}
	r := newTestRetriever(t, &fakeSearcher{}, entries)

	var firstOrder []string
	for range 5 {
		out, err := r.Retrieve(context.Background(), testKey(t), nil, "shared words", 5, 0)
		if err != nil {
			t.Fatalf("Retrieve() error: %v", err)
		}
		var order []string
		for _, c := range out.Candidates {
			order = append(order, c.Entry.Title)
		}
		if firstOrder == nil {
			firstOrder = order
			continue
		}
		for i := range order {
			if order[i] != firstOrder[i] {
				t.Fatalf("ordering changed between runs: %v vs %v", order, firstOrder)
			}
		}
	}
}

func TestRetrieve_SurfaceModeUsesSourcePriority(t *testing.T) {
	t.Parallel()

	updated := fixedNow.Add(-30 * 24 * time.Hour)
	text := entry("Loose note", "some text", updated)
	text.Source = knowledge.SourceText
	quiz := entry("Algebra quiz", "recent quiz", updated)
	quiz.Source = knowledge.SourceQuiz

	entries := &fakeEntries{list: []*knowledge.Entry{text, quiz}}
	r := newTestRetriever(t, &fakeSearcher{}, entries)

	out, err := r.Retrieve(context.Background(), testKey(t), nil, "", 5, 0)
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if out.Mode != Surfaced {
		t.Errorf("Mode = %v, want Surfaced", out.Mode)
	}
	if len(out.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(out.Candidates))
	}
	if out.Candidates[0].Entry.Source != knowledge.SourceQuiz {
		t.Errorf("quiz should surface before free text, got %v first", out.Candidates[0].Entry.Source)
	}
}

func TestRetrieve_SemanticDeduplicatesChunks(t *testing.T) {
	t.Parallel()

	e := entry("Long doc", "full document text", fixedNow.Add(-time.Hour))
	meta := map[string]string{"source": "notebook", "source_id": "nb-9"}
	store := &fakeSearcher{hits: []vector.Hit{
		{ID: "c0", Score: 0.81, Payload: vector.Payload{Content: "chunk zero", Metadata: meta}},
		{ID: "c1", Score: 0.93, Payload: vector.Payload{Content: "chunk one", Metadata: meta}},
	}}
	entries := &fakeEntries{bySourceRef: map[string]*knowledge.Entry{"notebook/nb-9": e}}

	r := newTestRetriever(t, store, entries)
	out, err := r.Retrieve(context.Background(), testKey(t), []float32{1}, "doc", 5, 0.3)
	if err != nil {
		t.Fatalf("Retrieve() error: %v", err)
	}
	if len(out.Candidates) != 1 {
		t.Fatalf("got %d candidates, want 1 after dedup", len(out.Candidates))
	}
	c := out.Candidates[0]
	if c.Similarity != 0.93 || c.Snippet != "chunk one" {
		t.Errorf("kept chunk = %q sim %v, want best-scoring chunk", c.Snippet, c.Similarity)
	}
}
