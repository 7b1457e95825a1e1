package session

import (
	"context"
	"regexp"
	"strings"

	"github.com/openviking/openviking/internal/models"
)

// MemoryCandidate is one consolidated fact proposed by the extractor.
type MemoryCandidate struct {
	Category string // e.g. "facts", "preferences", "tasks"
	Content  string
}

// Consolidation is the result of one extraction pass over a transcript:
// a grep-searchable history entry plus the long-term memory candidates.
type Consolidation struct {
	HistoryEntry string
	Memories     []MemoryCandidate
	InputTokens  int64
	OutputTokens int64
}

// Extractor is the LLM boundary for memory consolidation. Implementations
// are pluggable providers behind this narrow interface; the engine never
// sees prompts or model specifics.
type Extractor interface {
	Consolidate(ctx context.Context, messages []models.SessionMessage) (Consolidation, error)
}

// RuleExtractor is the embedded fallback extractor: it consolidates user
// statements into memories with simple declarative-sentence heuristics.
// It keeps the engine usable (and testable) without any model endpoint.
// The service passes no extractor to NewManager, so this is the one in
// use; this package ships no LLM-backed Extractor.
type RuleExtractor struct{}

// declarative matches first-person statements worth remembering
// ("I live in Paris", "my favorite editor is vim", "we use postgres").
var declarative = regexp.MustCompile(`(?i)\b(i|my|we|our)\b.*\b(am|is|are|was|live|like|love|hate|prefer|use|work|want|need|have)\b`)

func (RuleExtractor) Consolidate(_ context.Context, messages []models.SessionMessage) (Consolidation, error) {
	var history []string
	var memories []MemoryCandidate
	seen := map[string]bool{}

	for _, msg := range messages {
		line := strings.TrimSpace(msg.Content)
		if line == "" {
			continue
		}
		history = append(history, msg.Role+": "+line)
		if msg.Role != "user" {
			continue
		}
		for _, sentence := range splitSentences(line) {
			if !declarative.MatchString(sentence) {
				continue
			}
			normalized := strings.ToLower(sentence)
			if seen[normalized] {
				continue
			}
			seen[normalized] = true
			memories = append(memories, MemoryCandidate{
				Category: categorize(sentence),
				Content:  sentence,
			})
		}
	}

	return Consolidation{
		HistoryEntry: strings.Join(history, "\n"),
		Memories:     memories,
	}, nil
}

func splitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func categorize(sentence string) string {
	lower := strings.ToLower(sentence)
	switch {
	case strings.Contains(lower, "prefer") || strings.Contains(lower, "like") ||
		strings.Contains(lower, "love") || strings.Contains(lower, "hate"):
		return "preferences"
	case strings.Contains(lower, "want") || strings.Contains(lower, "need"):
		return "tasks"
	default:
		return "facts"
	}
}
