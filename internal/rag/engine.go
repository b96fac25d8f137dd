// Package rag orchestrates the retrieval-augmented generation pipeline:
// ingestion (chunk, embed, index) and querying (embed, retrieve,
// assemble, synthesize, remember). The engine owns the degradation
// policy: any external failure during a query routes into a weaker mode
// rather than an error, so Ask always produces a complete answer.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/mentora-ai/mentora/internal/answer"
	"github.com/mentora-ai/mentora/internal/assemble"
	"github.com/mentora-ai/mentora/internal/chunk"
	"github.com/mentora-ai/mentora/internal/conversation"
	"github.com/mentora-ai/mentora/internal/knowledge"
	"github.com/mentora-ai/mentora/internal/retrieve"
	"github.com/mentora-ai/mentora/internal/vector"
)

// Default per-call timeouts for external services. Each call is bounded
// independently so one slow dependency degrades only its own stage.
const (
	DefaultEmbedTimeout  = 10 * time.Second
	DefaultSearchTimeout = 5 * time.Second
	DefaultLLMTimeout    = 60 * time.Second
)

// DefaultScoreThreshold filters semantic hits below this cosine
// similarity.
const DefaultScoreThreshold = 0.3

// pointNamespace derives deterministic vector point IDs, so
// re-ingesting the same chunk overwrites its point instead of
// duplicating it.
var pointNamespace = uuid.MustParse("8c9d3cf1-52a4-4d5e-9b3e-0d6c2f1a7b42")

// ErrInvalidRequest indicates a request missing required fields.
var ErrInvalidRequest = errors.New("invalid request")

// EntryStore is the slice of the knowledge repository the engine needs,
// beyond what the retriever already consumes.
type EntryStore interface {
	retrieve.EntrySource
	Upsert(ctx context.Context, e knowledge.Entry) (uuid.UUID, error)
	SoftDelete(ctx context.Context, ownerID string, source knowledge.Source, sourceID string) error
	Count(ctx context.Context, ownerID string) (int, error)
}

// Config carries the engine's dependencies and tuning.
type Config struct {
	Embedder  ai.Embedder
	Store     vector.Store
	Entries   EntryStore
	Chunker   *chunk.Chunker
	Retriever *retrieve.Retriever
	Answers   *answer.Synthesizer
	Sessions  *conversation.Registry
	Logger    *slog.Logger

	// EmbeddingDim is the fixed vector dimension for this deployment.
	EmbeddingDim int

	// RetrievalLimit caps candidates per query (0 = retrieve.DefaultLimit).
	RetrievalLimit int
	// ScoreThreshold filters semantic hits (0 = DefaultScoreThreshold).
	ScoreThreshold float32
	// TokenBudget bounds assembled context (0 = assemble.DefaultTokenBudget).
	TokenBudget int

	// RateLimiter throttles embedding calls during ingestion
	// (nil = 10 req/s, burst 5).
	RateLimiter *rate.Limiter

	EmbedTimeout  time.Duration
	SearchTimeout time.Duration
	LLMTimeout    time.Duration
}

func (cfg Config) validate() error {
	if cfg.Embedder == nil {
		return errors.New("embedder is required")
	}
	if cfg.Store == nil {
		return errors.New("vector store is required")
	}
	if cfg.Entries == nil {
		return errors.New("entry store is required")
	}
	if cfg.Chunker == nil {
		return errors.New("chunker is required")
	}
	if cfg.Retriever == nil {
		return errors.New("retriever is required")
	}
	if cfg.Answers == nil {
		return errors.New("answer synthesizer is required")
	}
	if cfg.Sessions == nil {
		return errors.New("session registry is required")
	}
	if cfg.EmbeddingDim <= 0 {
		return errors.New("embedding dimension must be positive")
	}
	return nil
}

// Engine runs the end-to-end pipeline.
//
// Engine is safe for concurrent use by multiple goroutines. Ingestion
// into the same tenant is serialized internally; queries run freely in
// parallel.
type Engine struct {
	embedder  ai.Embedder
	store     vector.Store
	entries   EntryStore
	chunker   *chunk.Chunker
	retriever *retrieve.Retriever
	answers   *answer.Synthesizer
	sessions  *conversation.Registry
	limiter   *rate.Limiter
	logger    *slog.Logger

	dim            int
	retrievalLimit int
	scoreThreshold float32
	tokenBudget    int
	embedTimeout   time.Duration
	searchTimeout  time.Duration
	llmTimeout     time.Duration

	mu        sync.Mutex
	tenantMus map[string]*sync.Mutex
}

// New creates an Engine from cfg, applying defaults for unset tuning.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 5)
	}
	threshold := cfg.ScoreThreshold
	if threshold == 0 {
		threshold = DefaultScoreThreshold
	}

	e := &Engine{
		embedder:       cfg.Embedder,
		store:          cfg.Store,
		entries:        cfg.Entries,
		chunker:        cfg.Chunker,
		retriever:      cfg.Retriever,
		answers:        cfg.Answers,
		sessions:       cfg.Sessions,
		limiter:        limiter,
		logger:         logger,
		dim:            cfg.EmbeddingDim,
		retrievalLimit: cfg.RetrievalLimit,
		scoreThreshold: threshold,
		tokenBudget:    cfg.TokenBudget,
		embedTimeout:   cfg.EmbedTimeout,
		searchTimeout:  cfg.SearchTimeout,
		llmTimeout:     cfg.LLMTimeout,
		tenantMus:      make(map[string]*sync.Mutex),
	}
	if e.embedTimeout <= 0 {
		e.embedTimeout = DefaultEmbedTimeout
	}
	if e.searchTimeout <= 0 {
		e.searchTimeout = DefaultSearchTimeout
	}
	if e.llmTimeout <= 0 {
		e.llmTimeout = DefaultLLMTimeout
	}
	return e, nil
}

// IngestRequest describes one document to ingest.
type IngestRequest struct {
	OwnerID  string
	ScopeID  string // notebook id, or empty for the owner's global base
	Title    string
	Content  string
	Source   knowledge.Source
	SourceID string
	Metadata knowledge.Metadata
}

// IngestReport summarizes one ingestion.
type IngestReport struct {
	EntryID      uuid.UUID
	ChunksStored int
	ChunksFailed int
}

// Ingest records the document in the knowledge repository, then chunks,
// embeds and indexes it. A chunk whose embedding, validation or upsert
// fails is counted and skipped; the batch continues with the remaining
// chunks. Re-ingesting the same (owner, source, sourceID) updates in
// place.
func (e *Engine) Ingest(ctx context.Context, req IngestRequest) (IngestReport, error) {
	key, err := vector.NewTenantKey(req.OwnerID, req.ScopeID)
	if err != nil {
		return IngestReport{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	entryID, err := e.entries.Upsert(ctx, knowledge.Entry{
		Title:    req.Title,
		Content:  req.Content,
		Source:   req.Source,
		SourceID: req.SourceID,
		OwnerID:  req.OwnerID,
		Metadata: req.Metadata,
	})
	if err != nil {
		return IngestReport{}, fmt.Errorf("recording entry: %w", err)
	}

	chunks := e.chunker.Split(req.Content)
	report := IngestReport{EntryID: entryID}
	if len(chunks) == 0 {
		return report, nil
	}

	points := make([]vector.Point, 0, len(chunks))
	for i, c := range chunks {
		vec, err := e.embedChunk(ctx, c)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			e.logger.Warn("embedding chunk failed, skipping",
				"entry", entryID, "chunk", i, "error", err)
			report.ChunksFailed++
			continue
		}
		if err := vector.ValidateVector(vec, e.dim); err != nil {
			e.logger.Warn("rejecting invalid embedding",
				"entry", entryID, "chunk", i, "error", err)
			report.ChunksFailed++
			continue
		}
		points = append(points, vector.Point{
			ID:     pointID(entryID, i),
			Vector: vec,
			Payload: vector.Payload{
				Content:    c,
				ChunkIndex: i,
				TenantKey:  key.Canonical(),
				Metadata: map[string]string{
					"source":    string(req.Source),
					"source_id": req.SourceID,
					"title":     req.Title,
				},
			},
		})
	}
	if len(points) == 0 {
		return report, nil
	}

	// Writes to one tenant are serialized so concurrent re-ingestion of
	// overlapping chunks cannot interleave.
	unlock := e.lockTenant(key)
	defer unlock()

	if err := e.store.EnsureCollection(ctx, key); err != nil {
		e.logger.Warn("ensuring collection failed, batch not indexed",
			"entry", entryID, "tenant", key.String(), "error", err)
		report.ChunksFailed += len(points)
		return report, nil
	}
	// Points are upserted one at a time so a store failure costs only
	// that chunk, not the batch.
	for _, p := range points {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if err := e.store.Upsert(ctx, key, []vector.Point{p}); err != nil {
			e.logger.Warn("upserting point failed, skipping",
				"entry", entryID, "point", p.ID, "error", err)
			report.ChunksFailed++
			continue
		}
		report.ChunksStored++
	}

	e.logger.Info("document ingested",
		"entry", entryID,
		"tenant", key.String(),
		"chunks", report.ChunksStored,
		"failed", report.ChunksFailed)
	return report, nil
}

// AskRequest describes one question.
type AskRequest struct {
	OwnerID   string
	ScopeID   string
	SessionID string
	Question  string
}

// Ask answers a question grounded in the tenant's knowledge. The
// pipeline degrades stage by stage: embedding failure skips semantic
// search, retrieval failure answers from general knowledge, and LLM
// failure yields a templated answer. When callback is non-nil the
// answer streams through it. Ask errors only on invalid input or
// caller cancellation.
func (e *Engine) Ask(ctx context.Context, req AskRequest, callback answer.StreamCallback) (answer.Result, error) {
	key, err := vector.NewTenantKey(req.OwnerID, req.ScopeID)
	if err != nil {
		return answer.Result{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.Question == "" {
		return answer.Result{}, fmt.Errorf("%w: question is required", ErrInvalidRequest)
	}

	queryVec := e.embedQuery(ctx, req.Question)

	outcome := e.search(ctx, key, queryVec, req.Question)
	assembled := assemble.Context(outcome.Candidates, e.tokenBudget)

	history := e.sessions.Session(sessionKey(key, req.SessionID))
	memory := history.Recent(0)

	llmCtx, cancel := context.WithTimeout(ctx, e.llmTimeout)
	defer cancel()
	result := e.answers.Answer(llmCtx, answer.Request{
		Question: req.Question,
		Context:  assembled,
		Outcome:  outcome,
		Memory:   memory,
	}, callback)

	// An aborted turn is not recorded: a partial answer in memory would
	// poison later prompts.
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	history.Push(conversation.Turn{
		Question:   req.Question,
		Answer:     result.Answer,
		Sources:    sourceTitles(result.Sources),
		Confidence: result.Confidence,
	})

	e.logger.Info("question answered",
		"tenant", key.String(),
		"mode", outcome.Mode.String(),
		"candidates", len(outcome.Candidates),
		"confidence", result.Confidence,
		"streaming", callback != nil)
	return result, nil
}

// Surface ranks what is most worth reviewing right now, without a
// specific question. Candidates are ordered by recency, source type and
// prior performance.
func (e *Engine) Surface(ctx context.Context, ownerID, scopeID string, limit int) ([]retrieve.Candidate, error) {
	key, err := vector.NewTenantKey(ownerID, scopeID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	outcome, err := e.retriever.Retrieve(ctx, key, nil, "", limit, 0)
	if err != nil {
		return nil, err
	}
	return outcome.Candidates, nil
}

// Stats describes one tenant's knowledge base.
type Stats struct {
	Entries int
	Points  int
}

// TenantStats counts the tenant's active entries and indexed vector
// points.
func (e *Engine) TenantStats(ctx context.Context, ownerID, scopeID string) (Stats, error) {
	key, err := vector.NewTenantKey(ownerID, scopeID)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	entries, err := e.entries.Count(ctx, ownerID)
	if err != nil {
		return Stats{}, fmt.Errorf("counting entries: %w", err)
	}

	points := 0
	cursor := ""
	for {
		batch, next, err := e.store.Scroll(ctx, key, 500, cursor)
		if err != nil {
			if errors.Is(err, vector.ErrCollectionNotFound) {
				break
			}
			return Stats{}, fmt.Errorf("scrolling points: %w", err)
		}
		points += len(batch)
		if next == "" {
			break
		}
		cursor = next
	}
	return Stats{Entries: entries, Points: points}, nil
}

// Forget removes a document: its vector points are deleted and its
// repository entry soft-deleted.
func (e *Engine) Forget(ctx context.Context, ownerID, scopeID string, source knowledge.Source, sourceID string) error {
	key, err := vector.NewTenantKey(ownerID, scopeID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	unlock := e.lockTenant(key)
	defer unlock()

	var ids []string
	cursor := ""
	for {
		batch, next, err := e.store.Scroll(ctx, key, 500, cursor)
		if err != nil {
			if errors.Is(err, vector.ErrCollectionNotFound) {
				break
			}
			return fmt.Errorf("scrolling points: %w", err)
		}
		for _, p := range batch {
			if p.Payload.Metadata["source"] == string(source) &&
				p.Payload.Metadata["source_id"] == sourceID {
				ids = append(ids, p.ID)
			}
		}
		if next == "" {
			break
		}
		cursor = next
	}
	if len(ids) > 0 {
		if err := e.store.Delete(ctx, key, ids); err != nil {
			return fmt.Errorf("deleting points: %w", err)
		}
	}

	if err := e.entries.SoftDelete(ctx, ownerID, source, sourceID); err != nil {
		return err
	}
	e.logger.Info("document forgotten",
		"tenant", key.String(), "source", source, "source_id", sourceID, "points", len(ids))
	return nil
}

// ClearSession discards a session's conversation memory.
func (e *Engine) ClearSession(ownerID, scopeID, sessionID string) {
	key, err := vector.NewTenantKey(ownerID, scopeID)
	if err != nil {
		return
	}
	e.sessions.Drop(sessionKey(key, sessionID))
}

// embedChunk embeds one ingestion chunk under the rate limiter.
func (e *Engine) embedChunk(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	embedCtx, cancel := context.WithTimeout(ctx, e.embedTimeout)
	defer cancel()
	return e.embed(embedCtx, text)
}

// embedQuery embeds the question, returning nil on failure so retrieval
// degrades to keyword search instead of failing the query.
func (e *Engine) embedQuery(ctx context.Context, question string) []float32 {
	embedCtx, cancel := context.WithTimeout(ctx, e.embedTimeout)
	defer cancel()
	vec, err := e.embed(embedCtx, question)
	if err != nil {
		e.logger.Warn("query embedding failed, semantic search unavailable", "error", err)
		return nil
	}
	if err := vector.ValidateVector(vec, e.dim); err != nil {
		e.logger.Warn("query embedding invalid, semantic search unavailable", "error", err)
		return nil
	}
	return vec
}

// embed calls the embedding provider for one text.
func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	dim := int32(e.dim)
	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return resp.Embeddings[0].Embedding, nil
}

// search runs retrieval under its own timeout. Any failure degrades to
// no-context mode rather than failing the query.
func (e *Engine) search(ctx context.Context, key vector.TenantKey, queryVec []float32, question string) retrieve.Outcome {
	searchCtx, cancel := context.WithTimeout(ctx, e.searchTimeout)
	defer cancel()

	outcome, err := e.retriever.Retrieve(searchCtx, key, queryVec, question, e.retrievalLimit, e.scoreThreshold)
	if err != nil {
		e.logger.Warn("retrieval failed, answering without context",
			"tenant", key.String(), "error", err)
		return retrieve.Outcome{Mode: retrieve.NoContext}
	}
	return outcome
}

// lockTenant serializes writers to one tenant collection.
func (e *Engine) lockTenant(key vector.TenantKey) func() {
	canonical := key.Canonical()
	e.mu.Lock()
	mu, ok := e.tenantMus[canonical]
	if !ok {
		mu = &sync.Mutex{}
		e.tenantMus[canonical] = mu
	}
	e.mu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// pointID derives the stable vector point id for one chunk of an entry.
func pointID(entryID uuid.UUID, chunkIndex int) string {
	name := fmt.Sprintf("%s/%d", entryID, chunkIndex)
	return uuid.NewSHA1(pointNamespace, []byte(name)).String()
}

// sessionKey scopes conversation memory per tenant and session.
func sessionKey(key vector.TenantKey, sessionID string) string {
	return key.Canonical() + "\x1f" + sessionID
}

// sourceTitles extracts titles for memory logging.
func sourceTitles(sources []answer.SourceRef) []string {
	if len(sources) == 0 {
		return nil
	}
	titles := make([]string, 0, len(sources))
	for _, s := range sources {
		titles = append(titles, s.Title)
	}
	return titles
}
