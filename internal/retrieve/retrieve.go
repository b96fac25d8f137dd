// Package retrieve finds and ranks the knowledge most relevant to a
// query. Semantic search against the vector index is the primary path;
// when it yields nothing (or is unavailable) the retriever degrades to
// keyword search over the repository, and when that too comes up empty
// it reports no context rather than an error. Every outcome is tagged so
// downstream confidence scoring can reflect evidence strength.
package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/mentora-ai/mentora/internal/knowledge"
	"github.com/mentora-ai/mentora/internal/vector"
)

// Mode tags how an outcome's candidates were found.
type Mode int

// Retrieval outcomes, strongest evidence first.
const (
	// SemanticHit means the vector index returned candidates above the
	// score threshold.
	SemanticHit Mode = iota
	// KeywordHit means semantic search found nothing and keyword search
	// over the repository matched instead.
	KeywordHit
	// NoContext means neither path found anything. The caller answers
	// from general knowledge.
	NoContext
	// Surfaced means the candidates were ranked without a query, by
	// recency, source type and performance only. Surfaced outcomes feed
	// review listings, not answer synthesis.
	Surfaced
)

func (m Mode) String() string {
	switch m {
	case SemanticHit:
		return "semantic_hit"
	case KeywordHit:
		return "keyword_hit"
	case Surfaced:
		return "surfaced"
	default:
		return "no_context"
	}
}

// Ranking signal weights. Additive so each signal stays independently
// auditable in logs.
const (
	titlePhraseBonus    = 12.0
	contentPhraseBonus  = 6.0
	wordOccurrenceBonus = 0.5
	tagMatchBonus       = 2.0
	subjectMatchBonus   = 4.0
	performanceWeight   = 0.03
	sourceWeight        = 2.0 // query-less mode only
)

// Recency bonus tiers by age of last update.
const (
	recencyDayBonus   = 5.0
	recency3DayBonus  = 3.0
	recencyWeekBonus  = 2.0
	recency2WeekBonus = 1.0
)

// DefaultLimit caps candidates per retrieval when the caller passes none.
const DefaultLimit = 5

// Candidate is one ranked retrieval result.
type Candidate struct {
	Entry      *knowledge.Entry
	Snippet    string  // the matched chunk (semantic) or entry content
	Similarity float32 // raw cosine similarity, semantic hits only
	Score      float64 // composite relevance score
}

// Outcome is the tagged result of one retrieval.
type Outcome struct {
	Mode       Mode
	Candidates []Candidate
}

// Searcher is the slice of the vector store the retriever needs.
type Searcher interface {
	Search(ctx context.Context, key vector.TenantKey, queryVec []float32, limit int, threshold float32) ([]vector.Hit, error)
}

// EntrySource is the slice of the knowledge repository the retriever needs.
type EntrySource interface {
	BySourceRef(ctx context.Context, ownerID string, source knowledge.Source, sourceID string) (*knowledge.Entry, error)
	KeywordSearch(ctx context.Context, ownerID, query string, limit int) ([]*knowledge.Entry, error)
	List(ctx context.Context, ownerID string, source knowledge.Source, limit int) ([]*knowledge.Entry, error)
}

// Retriever runs the hybrid search pipeline.
type Retriever struct {
	store   Searcher
	entries EntrySource
	logger  *slog.Logger
	now     func() time.Time // swappable for tests
}

// New creates a Retriever.
func New(store Searcher, entries EntrySource, logger *slog.Logger) (*Retriever, error) {
	if store == nil {
		return nil, fmt.Errorf("vector searcher is required")
	}
	if entries == nil {
		return nil, fmt.Errorf("entry source is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{store: store, entries: entries, logger: logger, now: time.Now}, nil
}

// Retrieve runs semantic search, then keyword fallback, then ranks.
//
// queryVec may be nil when embedding failed upstream; the semantic pass
// is skipped and retrieval goes straight to keyword search. queryText
// may be empty when the caller wants "what's worth surfacing now"
// rather than an answer to a specific question; ranking then uses only
// recency, source type and prior performance. Retrieve never returns an
// error for an empty result, only for hard failures of both paths.
func (r *Retriever) Retrieve(ctx context.Context, key vector.TenantKey, queryVec []float32, queryText string, limit int, threshold float32) (Outcome, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	if queryText == "" {
		return r.surface(ctx, key, limit)
	}

	if queryVec != nil {
		candidates, err := r.semantic(ctx, key, queryVec, limit, threshold)
		if err != nil {
			// Degrade, not fail: keyword search may still answer.
			r.logger.Warn("semantic search failed, falling back to keyword",
				"tenant", key.String(), "error", err)
		} else if len(candidates) > 0 {
			r.rank(candidates, queryText)
			return Outcome{Mode: SemanticHit, Candidates: candidates}, nil
		}
	}

	entries, err := r.entries.KeywordSearch(ctx, key.OwnerID(), queryText, limit)
	if err != nil {
		return Outcome{}, fmt.Errorf("keyword search: %w", err)
	}
	if len(entries) == 0 {
		return Outcome{Mode: NoContext}, nil
	}

	candidates := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		candidates = append(candidates, Candidate{Entry: e, Snippet: e.Content})
	}
	r.rank(candidates, queryText)
	return Outcome{Mode: KeywordHit, Candidates: candidates}, nil
}

// semantic runs the vector search and resolves hits to repository
// entries, keeping the best-scoring chunk per entry.
func (r *Retriever) semantic(ctx context.Context, key vector.TenantKey, queryVec []float32, limit int, threshold float32) ([]Candidate, error) {
	// Over-fetch so deduplicating chunks of one entry still fills limit.
	hits, err := r.store.Search(ctx, key, queryVec, limit*3, threshold)
	if err != nil {
		return nil, err
	}

	type ref struct{ source, sourceID string }
	best := make(map[ref]Candidate)
	order := make([]ref, 0, len(hits))
	for _, h := range hits {
		k := ref{h.Payload.Metadata["source"], h.Payload.Metadata["source_id"]}
		if prev, ok := best[k]; ok && prev.Similarity >= h.Score {
			continue
		} else if !ok {
			order = append(order, k)
		}
		best[k] = Candidate{Snippet: h.Payload.Content, Similarity: h.Score}
	}

	candidates := make([]Candidate, 0, len(order))
	for _, k := range order {
		c := best[k]
		e, err := r.entries.BySourceRef(ctx, key.OwnerID(), knowledge.Source(k.source), k.sourceID)
		if err != nil {
			// The point may outlive its entry (or carry no ref at all);
			// the chunk text alone is still usable evidence.
			r.logger.Debug("vector hit without repository entry",
				"source", k.source, "source_id", k.sourceID, "error", err)
			e = &knowledge.Entry{Content: c.Snippet}
		}
		c.Entry = e
		candidates = append(candidates, c)
		if len(candidates) == limit {
			break
		}
	}
	return candidates, nil
}

// surface ranks recent entries without a query, for "what should I look
// at" requests. Uses recency, source priority and performance only.
func (r *Retriever) surface(ctx context.Context, key vector.TenantKey, limit int) (Outcome, error) {
	entries, err := r.entries.List(ctx, key.OwnerID(), "", limit*2)
	if err != nil {
		return Outcome{}, fmt.Errorf("listing entries: %w", err)
	}
	if len(entries) == 0 {
		return Outcome{Mode: NoContext}, nil
	}

	candidates := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		c := Candidate{Entry: e, Snippet: e.Content}
		c.Score = r.recencyBonus(e.LastUpdated) +
			float64(e.Source.Priority())*sourceWeight +
			performanceBonus(e.Metadata.Score)
		candidates = append(candidates, c)
	}
	sortCandidates(candidates)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return Outcome{Mode: Surfaced, Candidates: candidates}, nil
}

// rank assigns composite scores in place and sorts descending.
func (r *Retriever) rank(candidates []Candidate, queryText string) {
	query := strings.ToLower(strings.TrimSpace(queryText))
	words := queryWords(query)

	for i := range candidates {
		c := &candidates[i]
		e := c.Entry
		title := strings.ToLower(e.Title)
		content := strings.ToLower(e.Content)

		score := float64(c.Similarity) // 0 for keyword candidates

		if query != "" && strings.Contains(title, query) {
			score += titlePhraseBonus
		}
		if query != "" && strings.Contains(content, query) {
			score += contentPhraseBonus
		}
		for _, w := range words {
			score += wordOccurrenceBonus * float64(strings.Count(content, w))
		}
		for _, tag := range e.Metadata.Tags {
			if strings.Contains(query, strings.ToLower(tag)) {
				score += tagMatchBonus
			}
		}
		if subj := strings.ToLower(e.Metadata.Subject); subj != "" && strings.Contains(query, subj) {
			score += subjectMatchBonus
		}
		score += r.recencyBonus(e.LastUpdated)
		score += performanceBonus(e.Metadata.Score)

		c.Score = score
	}

	sortCandidates(candidates)
}

// sortCandidates orders by score descending, ties broken by most recent
// update, then by ID so ordering is fully deterministic.
func sortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Entry.LastUpdated.Equal(b.Entry.LastUpdated) {
			return a.Entry.LastUpdated.After(b.Entry.LastUpdated)
		}
		return a.Entry.ID.String() < b.Entry.ID.String()
	})
}

// recencyBonus rewards recently updated entries in tiers.
func (r *Retriever) recencyBonus(lastUpdated time.Time) float64 {
	if lastUpdated.IsZero() {
		return 0
	}
	age := r.now().Sub(lastUpdated)
	switch {
	case age <= 24*time.Hour:
		return recencyDayBonus
	case age <= 3*24*time.Hour:
		return recency3DayBonus
	case age <= 7*24*time.Hour:
		return recencyWeekBonus
	case age <= 14*24*time.Hour:
		return recency2WeekBonus
	default:
		return 0
	}
}

// performanceBonus converts a recorded 0-100 score into a small bonus.
func performanceBonus(score *float64) float64 {
	if score == nil {
		return 0
	}
	return *score * performanceWeight
}

// queryWords splits the query into lowercase words worth counting,
// skipping fragments too short to be meaningful.
func queryWords(query string) []string {
	fields := strings.Fields(query)
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) >= 3 {
			words = append(words, f)
		}
	}
	return words
}
