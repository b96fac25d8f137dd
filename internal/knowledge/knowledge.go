// Package knowledge manages the durable record of ingested entries,
// independent of the vector index. The repository is the system of record:
// vector points can always be rebuilt from it, and it serves the keyword
// fallback when semantic search is unavailable.
package knowledge

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Source categorizes where an entry's content came from. The order here is
// also the surfacing priority when ranking without a query: quizzes carry
// the freshest evidence about what the owner is working on, free text the
// least.
type Source string

// Known entry sources.
const (
	SourceQuiz     Source = "quiz"
	SourceNotebook Source = "notebook"
	SourcePDF      Source = "pdf"
	SourceManual   Source = "manual"
	SourceText     Source = "text"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceQuiz, SourceNotebook, SourcePDF, SourceManual, SourceText:
		return true
	}
	return false
}

// Priority returns the source's surfacing rank (higher = surfaced first
// when no query text is available).
func (s Source) Priority() int {
	switch s {
	case SourceQuiz:
		return 4
	case SourceNotebook:
		return 3
	case SourceManual:
		return 2
	case SourcePDF:
		return 1
	default:
		return 0
	}
}

// Metadata holds the optional descriptive fields of an entry.
type Metadata struct {
	Subject        string
	Difficulty     string
	Tags           []string
	Score          *float64 // prior performance, 0-100
	QuestionsCount *int
}

// Entry is one logical knowledge record. One entry exists per
// (SourceID, Source, OwnerID) triple; re-ingestion updates it in place.
type Entry struct {
	ID          uuid.UUID
	Title       string
	Content     string
	Source      Source
	SourceID    string
	OwnerID     string
	Metadata    Metadata
	CreatedAt   time.Time
	LastUpdated time.Time
	Active      bool
}

// Sentinel errors for repository operations.
var (
	// ErrNotFound indicates no entry matched the lookup.
	ErrNotFound = errors.New("knowledge entry not found")

	// ErrInvalidEntry indicates an entry missing required fields.
	ErrInvalidEntry = errors.New("invalid knowledge entry")
)
