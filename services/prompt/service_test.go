package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/farbook/far-chat/models"
)

func newTestService(maxChars int) *PromptService {
	return NewPromptService(Config{MaxContextChars: maxChars}, zap.NewNop())
}

func candidate(id string, score float64, text string) models.RetrievalCandidate {
	return models.RetrievalCandidate{
		ChunkID: id,
		Score:   score,
		Text:    text,
		Chapter: 1,
		Section: "15.203",
	}
}

func TestPromptService_Assemble(t *testing.T) {
	t.Run("returns the placeholder when there is nothing to assemble", func(t *testing.T) {
		svc := newTestService(12000)

		assembled := svc.Assemble(nil, "")

		assert.Equal(t, EmptyContext, assembled.Context)
		assert.NotNil(t, assembled.Sources)
		assert.Empty(t, assembled.Sources)
	})

	t.Run("labels each candidate with rank, section, and score", func(t *testing.T) {
		svc := newTestService(12000)
		candidates := []models.RetrievalCandidate{
			candidate("a", 0.91, "Solicitations are issued as RFPs."),
			candidate("b", 0.72, "Proposals respond to solicitations."),
		}

		assembled := svc.Assemble(candidates, "")

		assert.Contains(t, assembled.Context, "[Source 1] FAR Section 15.203 (Relevance: 0.91)")
		assert.Contains(t, assembled.Context, "[Source 2] FAR Section 15.203 (Relevance: 0.72)")
		assert.Contains(t, assembled.Context, "Solicitations are issued as RFPs.")
		assert.Contains(t, assembled.Context, separator)

		require.Len(t, assembled.Sources, 2)
		assert.Equal(t, "a", assembled.Sources[0].ChunkID)
		assert.Equal(t, "b", assembled.Sources[1].ChunkID)
	})

	t.Run("places highlighted text first", func(t *testing.T) {
		svc := newTestService(12000)
		candidates := []models.RetrievalCandidate{candidate("a", 0.9, "Chunk text.")}

		assembled := svc.Assemble(candidates, "The clause under discussion.")

		assert.True(t, strings.HasPrefix(assembled.Context, highlightedHeader))
		assert.Less(t,
			strings.Index(assembled.Context, "The clause under discussion."),
			strings.Index(assembled.Context, "Chunk text."))
		// the highlight is not a retrieved source
		require.Len(t, assembled.Sources, 1)
		assert.Equal(t, "a", assembled.Sources[0].ChunkID)
	})

	t.Run("highlight alone produces context without sources", func(t *testing.T) {
		svc := newTestService(12000)

		assembled := svc.Assemble(nil, "Just the highlight.")

		assert.Contains(t, assembled.Context, "Just the highlight.")
		assert.Empty(t, assembled.Sources)
		assert.NotEqual(t, EmptyContext, assembled.Context)
	})

	t.Run("strips the legacy section prefix from chunk text", func(t *testing.T) {
		svc := newTestService(12000)
		candidates := []models.RetrievalCandidate{
			candidate("a", 0.9, "[FAR 15.203] Solicitations are issued as RFPs."),
		}

		assembled := svc.Assemble(candidates, "")

		assert.NotContains(t, assembled.Context, "[FAR 15.203]")
		assert.Contains(t, assembled.Context, "Solicitations are issued as RFPs.")
	})

	t.Run("never exceeds the budget", func(t *testing.T) {
		svc := newTestService(300)
		long := strings.Repeat("regulation text ", 50)
		candidates := []models.RetrievalCandidate{
			candidate("a", 0.9, long),
			candidate("b", 0.8, long),
			candidate("c", 0.7, long),
		}

		assembled := svc.Assemble(candidates, strings.Repeat("highlight ", 20))

		assert.LessOrEqual(t, len(assembled.Context), 300)
	})

	t.Run("drops candidates past the budget and keeps their sources out", func(t *testing.T) {
		svc := newTestService(260)
		candidates := []models.RetrievalCandidate{
			candidate("a", 0.9, strings.Repeat("first chunk words ", 10)),
			candidate("b", 0.8, "second chunk that no longer fits at all"),
		}

		assembled := svc.Assemble(candidates, "")

		require.Len(t, assembled.Sources, 1)
		assert.Equal(t, "a", assembled.Sources[0].ChunkID)
		assert.NotContains(t, assembled.Context, "second chunk")
	})

	t.Run("cuts the overflowing candidate at a whitespace boundary", func(t *testing.T) {
		svc := newTestService(120)
		candidates := []models.RetrievalCandidate{
			candidate("a", 0.9, "alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima mike november oscar papa"),
		}

		assembled := svc.Assemble(candidates, "")

		assert.LessOrEqual(t, len(assembled.Context), 120)
		require.Len(t, assembled.Sources, 1)
		// the cut falls between words, never inside one
		trimmed := strings.TrimSuffix(assembled.Context, "\n")
		assert.True(t, strings.HasSuffix(trimmed, "alpha") ||
			strings.Contains(assembled.Context, "bravo"))
		for _, word := range strings.Fields(assembled.Context) {
			assert.NotRegexp(t, "^(alph|brav|charli|delt)$", word)
		}
	})

	t.Run("truncates the highlight itself when it exceeds the budget", func(t *testing.T) {
		svc := newTestService(80)
		highlight := "one two three four five six seven eight nine ten " + strings.Repeat("word ", 30)

		assembled := svc.Assemble(nil, highlight)

		assert.LessOrEqual(t, len(assembled.Context), 80)
		assert.True(t, strings.HasPrefix(assembled.Context, highlightedHeader))
	})
}

func TestNewSource(t *testing.T) {
	t.Run("copies the locator metadata", func(t *testing.T) {
		page := 112
		c := models.RetrievalCandidate{
			ChunkID: "chunk-7",
			Score:   0.83,
			Text:    "Short excerpt text.",
			Chapter: 2,
			Section: "201.104",
			Page:    &page,
		}

		s := newSource(c)

		assert.Equal(t, "chunk-7", s.ChunkID)
		assert.Equal(t, 2, s.Chapter)
		assert.Equal(t, "201.104", s.Section)
		assert.Equal(t, 0.83, s.RelevanceScore)
		require.NotNil(t, s.Page)
		assert.Equal(t, 112, *s.Page)
		assert.Equal(t, "Short excerpt text.", s.Excerpt)
	})

	t.Run("defaults a missing chapter to 1", func(t *testing.T) {
		s := newSource(models.RetrievalCandidate{ChunkID: "c", Text: "t"})
		assert.Equal(t, 1, s.Chapter)
	})

	t.Run("bounds the excerpt", func(t *testing.T) {
		s := newSource(models.RetrievalCandidate{ChunkID: "c", Text: strings.Repeat("x", 500)})
		assert.Len(t, s.Excerpt, excerptLength)
	})

	t.Run("cuts multibyte excerpts on a rune boundary", func(t *testing.T) {
		s := newSource(models.RetrievalCandidate{ChunkID: "c", Text: strings.Repeat("…", 150)})
		assert.LessOrEqual(t, len(s.Excerpt), excerptLength)
		assert.True(t, strings.HasSuffix(s.Excerpt, "…"))
	})
}

func TestTruncateAtWhitespace(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{
			name: "short text passes through",
			text: "fits fine",
			max:  100,
			want: "fits fine",
		},
		{
			name: "cuts at the last boundary within the limit",
			text: "alpha bravo charlie",
			max:  11,
			want: "alpha bravo",
		},
		{
			name: "cut lands inside a word",
			text: "alpha bravo charlie",
			max:  14,
			want: "alpha bravo",
		},
		{
			name: "no boundary within the limit",
			text: "supercalifragilistic",
			max:  10,
			want: "",
		},
		{
			name: "zero budget",
			text: "anything",
			max:  0,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateAtWhitespace(tt.text, tt.max)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), tt.max)
		})
	}
}

func TestAssembleBudgetProperty(t *testing.T) {
	// the budget invariant holds across a sweep of tight budgets
	long := strings.Repeat("lorem ipsum dolor sit amet ", 40)
	candidates := []models.RetrievalCandidate{
		candidate("a", 0.9, long),
		candidate("b", 0.8, long),
	}

	for _, budget := range []int{40, 64, 100, 150, 333, 1024, 5000} {
		t.Run(fmt.Sprintf("budget_%d", budget), func(t *testing.T) {
			svc := newTestService(budget)
			assembled := svc.Assemble(candidates, "some highlighted passage to include first")
			assert.LessOrEqual(t, len(assembled.Context), budget)
		})
	}
}
