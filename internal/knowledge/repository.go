package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// entryCols is the standard SELECT column list for scanEntries.
const entryCols = `id, title, content, source, source_id, owner_id,
	subject, difficulty, tags, score, questions_count,
	created_at, last_updated, is_active`

// Repository persists knowledge entries in PostgreSQL.
//
// Repository is safe for concurrent use by multiple goroutines.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a Repository.
func NewRepository(pool *pgxpool.Pool, logger *slog.Logger) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{pool: pool, logger: logger}, nil
}

// validateEntry checks required fields before a write.
func validateEntry(e Entry) error {
	if !e.Source.Valid() {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidEntry, e.Source)
	}
	if e.SourceID == "" {
		return fmt.Errorf("%w: source ID is required", ErrInvalidEntry)
	}
	if e.OwnerID == "" {
		return fmt.Errorf("%w: owner ID is required", ErrInvalidEntry)
	}
	if strings.TrimSpace(e.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidEntry)
	}
	return nil
}

// Upsert inserts the entry or, when one already exists for the same
// (source_id, source, owner_id) triple, updates it in place. Re-ingestion
// therefore never duplicates entries. Returns the entry's ID.
func (r *Repository) Upsert(ctx context.Context, e Entry) (uuid.UUID, error) {
	if err := validateEntry(e); err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err := r.pool.QueryRow(ctx,
		`INSERT INTO knowledge_entries
		   (title, content, source, source_id, owner_id,
		    subject, difficulty, tags, score, questions_count,
		    created_at, last_updated, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now(), true)
		 ON CONFLICT (owner_id, source, source_id) DO UPDATE
		 SET title = EXCLUDED.title,
		     content = EXCLUDED.content,
		     subject = EXCLUDED.subject,
		     difficulty = EXCLUDED.difficulty,
		     tags = EXCLUDED.tags,
		     score = EXCLUDED.score,
		     questions_count = EXCLUDED.questions_count,
		     last_updated = now(),
		     is_active = true
		 RETURNING id`,
		e.Title, e.Content, string(e.Source), e.SourceID, e.OwnerID,
		e.Metadata.Subject, e.Metadata.Difficulty, e.Metadata.Tags,
		e.Metadata.Score, e.Metadata.QuestionsCount,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upserting entry (%s/%s/%s): %w",
			e.OwnerID, e.Source, e.SourceID, err)
	}

	r.logger.Debug("entry upserted", "id", id, "source", e.Source, "owner", e.OwnerID)
	return id, nil
}

// BySourceRef fetches the active entry for a (owner, source, sourceID)
// triple. Returns ErrNotFound when absent or soft-deleted.
func (r *Repository) BySourceRef(ctx context.Context, ownerID string, source Source, sourceID string) (*Entry, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+entryCols+`
		 FROM knowledge_entries
		 WHERE owner_id = $1 AND source = $2 AND source_id = $3 AND is_active = true`,
		ownerID, string(source), sourceID,
	)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching entry (%s/%s/%s): %w", ownerID, source, sourceID, err)
	}
	return e, nil
}

// KeywordSearch finds active entries whose title or content contains the
// query, newest first. This is the degraded path when semantic search is
// unavailable, so it deliberately stays simple: case-insensitive substring
// match, capped at limit.
func (r *Repository) KeywordSearch(ctx context.Context, ownerID, query string, limit int) ([]*Entry, error) {
	if ownerID == "" || strings.TrimSpace(query) == "" {
		return []*Entry{}, nil
	}
	if limit <= 0 {
		limit = 5
	}

	pattern := "%" + escapeLike(query) + "%"
	rows, err := r.pool.Query(ctx,
		`SELECT `+entryCols+`
		 FROM knowledge_entries
		 WHERE owner_id = $1 AND is_active = true
		   AND (title ILIKE $2 OR content ILIKE $2)
		 ORDER BY last_updated DESC
		 LIMIT $3`,
		ownerID, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("keyword searching: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// List returns active entries for an owner, newest first, optionally
// filtered by source. source == "" returns all sources.
func (r *Repository) List(ctx context.Context, ownerID string, source Source, limit int) ([]*Entry, error) {
	if ownerID == "" {
		return []*Entry{}, nil
	}
	if limit <= 0 {
		limit = 50
	}

	var rows pgx.Rows
	var err error
	if source != "" {
		if !source.Valid() {
			return nil, fmt.Errorf("%w: unknown source %q", ErrInvalidEntry, source)
		}
		rows, err = r.pool.Query(ctx,
			`SELECT `+entryCols+`
			 FROM knowledge_entries
			 WHERE owner_id = $1 AND source = $2 AND is_active = true
			 ORDER BY last_updated DESC
			 LIMIT $3`,
			ownerID, string(source), limit,
		)
	} else {
		rows, err = r.pool.Query(ctx,
			`SELECT `+entryCols+`
			 FROM knowledge_entries
			 WHERE owner_id = $1 AND is_active = true
			 ORDER BY last_updated DESC
			 LIMIT $2`,
			ownerID, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Count returns the number of active entries for an owner.
func (r *Repository) Count(ctx context.Context, ownerID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM knowledge_entries WHERE owner_id = $1 AND is_active = true`,
		ownerID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting entries: %w", err)
	}
	return count, nil
}

// SoftDelete marks an entry inactive. The row is kept so historical
// vector points referencing it stay resolvable. Returns ErrNotFound when
// no active entry matched.
func (r *Repository) SoftDelete(ctx context.Context, ownerID string, source Source, sourceID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE knowledge_entries
		 SET is_active = false, last_updated = now()
		 WHERE owner_id = $1 AND source = $2 AND source_id = $3 AND is_active = true`,
		ownerID, string(source), sourceID,
	)
	if err != nil {
		return fmt.Errorf("soft-deleting entry (%s/%s/%s): %w", ownerID, source, sourceID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// escapeLike escapes LIKE metacharacters so user queries match literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// rowScanner abstracts pgx.Row and pgx.Rows for scanEntry.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntry reads one Entry from a row.
func scanEntry(row rowScanner) (*Entry, error) {
	e := &Entry{}
	var source string
	if err := row.Scan(
		&e.ID, &e.Title, &e.Content, &source, &e.SourceID, &e.OwnerID,
		&e.Metadata.Subject, &e.Metadata.Difficulty, &e.Metadata.Tags,
		&e.Metadata.Score, &e.Metadata.QuestionsCount,
		&e.CreatedAt, &e.LastUpdated, &e.Active,
	); err != nil {
		return nil, err
	}
	e.Source = Source(source)
	return e, nil
}

// scanEntries reads all entries from rows.
func scanEntries(rows pgx.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return entries, nil
}
