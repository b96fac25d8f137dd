package conversation

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestHistory_EvictionAtCapacity(t *testing.T) {
	t.Parallel()

	h := NewHistory(10)
	for i := 1; i <= 11; i++ {
		h.Push(Turn{
			Question:  fmt.Sprintf("question %d", i),
			Answer:    fmt.Sprintf("answer %d", i),
			Timestamp: time.Date(2026, 1, 1, 0, i, 0, 0, time.UTC),
		})
	}

	got := h.Recent(10)
	if len(got) != 10 {
		t.Fatalf("Recent(10) returned %d turns, want 10", len(got))
	}

	// Newest first: turn 11 down to turn 2. Turn 1 is evicted.
	for i, turn := range got {
		want := fmt.Sprintf("question %d", 11-i)
		if turn.Question != want {
			t.Errorf("turn %d question = %q, want %q", i, turn.Question, want)
		}
	}
	for _, turn := range got {
		if turn.Question == "question 1" {
			t.Error("oldest turn survived eviction")
		}
	}
}

func TestHistory_RecentLimits(t *testing.T) {
	t.Parallel()

	h := NewHistory(5)
	for i := 1; i <= 3; i++ {
		h.Push(Turn{Question: fmt.Sprintf("q%d", i)})
	}

	if got := h.Recent(2); len(got) != 2 || got[0].Question != "q3" {
		t.Errorf("Recent(2) = %v, want newest 2", got)
	}
	if got := h.Recent(0); len(got) != 3 {
		t.Errorf("Recent(0) returned %d turns, want all 3", len(got))
	}
	if got := h.Recent(100); len(got) != 3 {
		t.Errorf("Recent(100) returned %d turns, want 3", len(got))
	}
}

func TestHistory_AnswerPreviewTruncated(t *testing.T) {
	t.Parallel()

	h := NewHistory(3)
	long := strings.Repeat("a", 1000)
	h.Push(Turn{Question: "q", Answer: long})

	got := h.Recent(1)[0].Answer
	if len([]rune(got)) > previewLen+3 {
		t.Errorf("preview length %d exceeds bound", len([]rune(got)))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("preview %q should end with ellipsis", got[len(got)-10:])
	}

	// The stored turn keeps the full answer.
	h.Push(Turn{Question: "q2", Answer: "short"})
	if h.Recent(2)[1].Answer == long {
		t.Error("Recent should truncate, not return the stored answer")
	}
}

func TestHistory_Clear(t *testing.T) {
	t.Parallel()

	h := NewHistory(4)
	h.Push(Turn{Question: "q"})
	h.Clear()

	if h.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", h.Len())
	}
	if got := h.Recent(0); len(got) != 0 {
		t.Errorf("Recent(0) = %v after Clear, want empty", got)
	}
}

func TestHistory_DefaultCapacity(t *testing.T) {
	t.Parallel()

	h := NewHistory(0)
	for i := range DefaultCapacity + 5 {
		h.Push(Turn{Question: fmt.Sprintf("q%d", i)})
	}
	if h.Len() != DefaultCapacity {
		t.Errorf("Len() = %d, want %d", h.Len(), DefaultCapacity)
	}
}

func TestHistory_ConcurrentPush(t *testing.T) {
	t.Parallel()

	h := NewHistory(10)
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Push(Turn{Question: fmt.Sprintf("q%d", i)})
		}()
	}
	wg.Wait()

	if h.Len() != 10 {
		t.Errorf("Len() = %d after concurrent pushes, want 10", h.Len())
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	if got := Format(nil); got != "" {
		t.Errorf("Format(nil) = %q, want empty", got)
	}

	// Newest-first input renders oldest-first.
	turns := []Turn{
		{Question: "second", Answer: "b"},
		{Question: "first", Answer: "a"},
	}
	got := Format(turns)
	if strings.Index(got, "first") > strings.Index(got, "second") {
		t.Errorf("Format should render oldest first:\n%s", got)
	}
}

func TestRegistry_SessionIsolation(t *testing.T) {
	t.Parallel()

	r := NewRegistry(5)
	a := r.Session("a")
	b := r.Session("b")

	a.Push(Turn{Question: "only in a"})
	if b.Len() != 0 {
		t.Error("sessions share history")
	}
	if r.Session("a") != a {
		t.Error("Session should return the same history for the same key")
	}

	r.Drop("a")
	if r.Session("a") == a {
		t.Error("Drop should discard the history")
	}
}
