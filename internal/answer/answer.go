// Package answer turns retrieved context and conversation memory into a
// final response. It owns prompt construction, streaming relay,
// confidence scoring and the templated fallback path. By contract it
// never surfaces an LLM failure to the caller: every invocation resolves
// to a complete Result, with degraded quality expressed only through the
// confidence score and answer text.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/mentora-ai/mentora/internal/conversation"
	"github.com/mentora-ai/mentora/internal/retrieve"
)

// Confidence constants for the degraded paths. Semantic hits derive
// confidence from mean similarity instead, so evidence strength always
// orders as semantic > keyword > none > failure.
const (
	// KeywordConfidence is reported when only keyword search matched.
	KeywordConfidence = 50
	// NoContextConfidence is reported when answering from general
	// knowledge with no retrieved evidence.
	NoContextConfidence = 30
	// FailureConfidence is reported on the templated fallback path.
	FailureConfidence = 0
)

// snippetLen caps source snippets carried in results.
const snippetLen = 150

const systemPersona = `You are Mentora, a patient and encouraging study companion.
Explain concepts clearly in your own words and adapt to the learner's level.
When study material is provided, understand it and paraphrase it naturally.
Never quote the material verbatim or dump it as-is into your answer.
Answer in the same language as the question.`

const fallbackNoCandidates = "I couldn't find anything in your study materials for that, " +
	"and I'm having trouble generating an answer right now. " +
	"Please try again in a moment, or rephrase your question."

// StreamCallback receives each answer delta as it arrives. Returning an
// error aborts the stream.
type StreamCallback func(ctx context.Context, delta string) error

// SourceRef describes one piece of evidence behind an answer.
type SourceRef struct {
	Title      string
	Snippet    string
	Category   string
	Similarity float32
}

// Result is the complete outcome of one answer. It is always fully
// populated, including on failure paths.
type Result struct {
	Answer     string
	Sources    []SourceRef
	Confidence int // 0-100
}

// Request carries everything the synthesizer needs for one answer.
type Request struct {
	Question string
	Context  string // assembled retrieval context, "" for none
	Outcome  retrieve.Outcome
	Memory   []conversation.Turn // newest first, as conversation.History returns
}

// Synthesizer generates answers through Genkit.
type Synthesizer struct {
	g         *genkit.Genkit
	modelName string
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Synthesizer. modelName is the provider-qualified model
// (e.g. "googleai/gemini-2.5-flash").
func New(g *genkit.Genkit, modelName string, logger *slog.Logger) (*Synthesizer, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{g: g, modelName: modelName, logger: logger, now: time.Now}, nil
}

// Answer generates the response for req. When callback is non-nil the
// answer streams through it delta by delta; the returned Result always
// carries the full accumulated text either way, so streaming and
// blocking modes produce identical final answers.
//
// Answer does not return an error: LLM failures, including mid-stream
// ones, resolve to a templated fallback Result with confidence 0.
func (s *Synthesizer) Answer(ctx context.Context, req Request, callback StreamCallback) Result {
	confidence := s.confidence(req.Outcome)
	sources := sourceRefs(req.Outcome.Candidates)

	opts := []ai.GenerateOption{
		ai.WithModelName(s.modelName),
		ai.WithSystem(s.systemPrompt(req.Memory)),
		ai.WithMessages(ai.NewUserMessage(ai.NewTextPart(userPrompt(req.Question, req.Context)))),
	}
	if callback != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			return callback(ctx, chunk.Text())
		}))
	}

	resp, err := genkit.Generate(ctx, s.g, opts...)
	if err != nil {
		s.logger.Error("answer generation failed, using fallback",
			"mode", req.Outcome.Mode.String(), "error", err)
		return s.fallback(req)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		s.logger.Warn("model returned empty response, using fallback",
			"mode", req.Outcome.Mode.String())
		return s.fallback(req)
	}

	return Result{Answer: text, Sources: sources, Confidence: confidence}
}

// confidence maps the retrieval outcome to a 0-100 score. Semantic hits
// scale with the mean similarity of the candidates actually used.
func (s *Synthesizer) confidence(o retrieve.Outcome) int {
	switch o.Mode {
	case retrieve.SemanticHit:
		if len(o.Candidates) == 0 {
			return NoContextConfidence
		}
		var sum float64
		for _, c := range o.Candidates {
			sum += float64(c.Similarity)
		}
		mean := sum / float64(len(o.Candidates))
		conf := int(mean * 100)
		if conf < 0 {
			conf = 0
		}
		if conf > 100 {
			conf = 100
		}
		return conf
	case retrieve.KeywordHit:
		return KeywordConfidence
	default:
		return NoContextConfidence
	}
}

// fallback builds the deterministic templated answer used when the
// model is unavailable. With candidates, it surfaces the top one
// directly; without, a generic encouragement.
func (s *Synthesizer) fallback(req Request) Result {
	sources := sourceRefs(req.Outcome.Candidates)
	if len(req.Outcome.Candidates) == 0 {
		return Result{Answer: fallbackNoCandidates, Confidence: FailureConfidence}
	}

	top := req.Outcome.Candidates[0]
	title := top.Entry.Title
	if title == "" {
		title = "your study materials"
	}
	answer := fmt.Sprintf(
		"I'm having trouble generating a full answer right now, but here is the most relevant material I found.\n\n%s:\n%s",
		title, truncate(top.Snippet, 500))
	return Result{Answer: answer, Sources: sources, Confidence: FailureConfidence}
}

// systemPrompt assembles persona, temporal context and serialized memory.
func (s *Synthesizer) systemPrompt(memory []conversation.Turn) string {
	var b strings.Builder
	b.WriteString(systemPersona)
	fmt.Fprintf(&b, "\n\nCurrent date: %s", s.now().Format("2006-01-02"))

	if history := conversation.Format(memory); history != "" {
		b.WriteString("\n\nRecent conversation:\n")
		b.WriteString(history)
	}
	return b.String()
}

// userPrompt embeds the retrieved context, when any, and the question.
func userPrompt(question, context string) string {
	if context == "" {
		return question
	}
	return fmt.Sprintf(
		"Study material relevant to the question:\n\n%s\n\nQuestion: %s",
		context, question)
}

// sourceRefs converts candidates to the source list carried in results.
func sourceRefs(candidates []retrieve.Candidate) []SourceRef {
	if len(candidates) == 0 {
		return nil
	}
	refs := make([]SourceRef, 0, len(candidates))
	for _, c := range candidates {
		refs = append(refs, SourceRef{
			Title:      c.Entry.Title,
			Snippet:    truncate(c.Snippet, snippetLen),
			Category:   string(c.Entry.Source),
			Similarity: c.Similarity,
		})
	}
	return refs
}

// truncate bounds s to n runes with an ellipsis.
func truncate(s string, n int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= n {
		return string(runes)
	}
	return strings.TrimSpace(string(runes[:n])) + "..."
}
