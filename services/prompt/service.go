package prompt

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/farbook/far-chat/models"
)

const (
	// separator sits between context segments
	separator = "\n---\n\n"

	// highlightedHeader labels the user-highlighted segment
	highlightedHeader = "[User-Highlighted Text]\n"

	// EmptyContext is the canonical placeholder used when nothing was
	// retrieved and nothing was highlighted. The generator's system
	// instruction keys off this exact string.
	EmptyContext = "No relevant FAR content found."

	// excerptLength bounds the citation excerpt attached to each source
	excerptLength = 200
)

// sectionPrefixPattern matches the legacy "[FAR x.xxx]" prefix some chunks
// carry; the section already appears in the segment header.
var sectionPrefixPattern = regexp.MustCompile(`^\[FAR [^\]]+\]\s*`)

// Config holds the context assembly policy
type Config struct {
	MaxContextChars int
}

// DefaultConfig returns the default assembly policy
func DefaultConfig() Config {
	return Config{
		MaxContextChars: 12000,
	}
}

// Assembled is the bounded context string fed to the generator together
// with the ordered Source list of the candidates actually included.
type Assembled struct {
	Context string
	Sources []models.Source
}

// PromptService builds generation context from retrieval candidates
type PromptService struct {
	cfg    Config
	logger *zap.Logger
}

// NewPromptService creates a new context assembly service
func NewPromptService(cfg Config, logger *zap.Logger) *PromptService {
	return &PromptService{
		cfg:    cfg,
		logger: logger,
	}
}

// Assemble builds the context window. Highlighted text, when present, is
// always the first segment. The remaining budget is filled by candidates in
// the order given (descending score) until the budget or the candidates run
// out; a candidate that only partially fits is cut at a whitespace boundary,
// and everything after it is dropped silently. The result never exceeds
// MaxContextChars. With no candidates and no highlight the canonical
// empty-context placeholder is returned.
func (s *PromptService) Assemble(candidates []models.RetrievalCandidate, highlightedText string) *Assembled {
	if len(candidates) == 0 && highlightedText == "" {
		return &Assembled{Context: EmptyContext, Sources: []models.Source{}}
	}

	var b strings.Builder
	sources := make([]models.Source, 0, len(candidates))

	if highlightedText != "" {
		remaining := s.cfg.MaxContextChars
		if segment := highlightedHeader + highlightedText + "\n"; len(segment) <= remaining {
			b.WriteString(segment)
		} else if overhead := len(highlightedHeader) + 1; remaining > overhead {
			if cut := truncateAtWhitespace(highlightedText, remaining-overhead); cut != "" {
				b.WriteString(highlightedHeader + cut + "\n")
			}
		}
	}

	included := 0
	for _, c := range candidates {
		prefix := ""
		if b.Len() > 0 {
			prefix = separator
		}
		header := fmt.Sprintf("[Source %d] FAR Section %s (Relevance: %.2f)\n", included+1, c.Section, c.Score)
		text := sectionPrefixPattern.ReplaceAllString(c.Text, "")

		remaining := s.cfg.MaxContextChars - b.Len()
		if full := prefix + header + text + "\n"; len(full) <= remaining {
			b.WriteString(full)
			sources = append(sources, newSource(c))
			included++
			continue
		}

		// This candidate is the last one that can contribute. Cut its text
		// at a whitespace boundary; if not even one word fits, drop it too.
		overhead := len(prefix) + len(header) + 1
		if remaining > overhead {
			if cut := truncateAtWhitespace(text, remaining-overhead); cut != "" {
				b.WriteString(prefix + header + cut + "\n")
				sources = append(sources, newSource(c))
				included++
			}
		}
		break
	}

	dropped := len(candidates) - included
	if dropped > 0 {
		s.logger.Debug("context budget reached",
			zap.Int("included", included),
			zap.Int("dropped", dropped),
			zap.Int("context_chars", b.Len()))
	}

	return &Assembled{Context: b.String(), Sources: sources}
}

// newSource builds the citation entry for an included candidate. The
// excerpt keeps the raw chunk text, bounded and cut on a rune boundary.
func newSource(c models.RetrievalCandidate) models.Source {
	chapter := c.Chapter
	if chapter == 0 {
		chapter = 1
	}
	excerpt := c.Text
	if len(excerpt) > excerptLength {
		cut := excerptLength
		for cut > 0 && !utf8.RuneStart(excerpt[cut]) {
			cut--
		}
		excerpt = excerpt[:cut]
	}
	return models.Source{
		ChunkID:        c.ChunkID,
		Chapter:        chapter,
		Section:        c.Section,
		Page:           c.Page,
		RelevanceScore: c.Score,
		Excerpt:        excerpt,
	}
}

// truncateAtWhitespace returns the longest prefix of text no longer than
// max that ends at a whitespace boundary, with the boundary whitespace
// trimmed. Returns "" when no boundary exists within max.
func truncateAtWhitespace(text string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(text) <= max {
		return text
	}
	cut := strings.LastIndexAny(text[:max+1], " \t\n")
	if cut <= 0 {
		return ""
	}
	return strings.TrimRight(text[:cut], " \t\n")
}
