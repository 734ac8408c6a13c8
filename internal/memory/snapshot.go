// Package memory builds the session-local MemorySnapshot the Evidence &
// Memory Packer produces alongside the EvidencePack. Enriched beyond the
// base spec's minimal shape per SPEC_FULL.md §2.3, grounded loosely on the
// "memory" concerns referenced throughout
// original_source/backend/core/graph_engine.py's synthesizer node.
package memory

import (
	"strings"

	"github.com/xiaot623/gogo/orchestrator/internal/domain"
)

// Build produces a MemorySnapshot from the terminal agent results and
// debate exchanges of one session. Never fails: on thin input it returns a
// minimal snapshot, since the packer is best-effort per spec §4.8.
func Build(agentResults []domain.AgentResult, exchanges []domain.DebateExchange, finalReport string) domain.MemorySnapshot {
	highlights := make(map[string][]string, len(agentResults))
	entities := make(map[string][]string)

	for _, ar := range agentResults {
		if ar.Content == "" {
			continue
		}
		highlights[ar.AgentName] = topSentences(ar.Content, 2)
		entities[ar.AgentName] = entityLikeTokens(ar.Content)
	}

	var debateFocus []string
	for _, ex := range exchanges {
		if ex.Revised {
			debateFocus = append(debateFocus, ex.Responder+" revised after "+string(ex.DebateType)+" from "+ex.Challenger)
		}
	}

	return domain.MemorySnapshot{
		Version:         "phase3.memory.v1",
		Summary:         topSentence(finalReport),
		Entities:        entities,
		AgentHighlights: highlights,
		DebateFocus:     debateFocus,
		ActionItems:     extractByPrefix(finalReport, []string{"recommend", "should", "action"}),
		RiskItems:       extractByPrefix(finalReport, []string{"risk", "caution", "warning"}),
	}
}

func topSentence(text string) string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return ""
	}
	return sentences[0]
}

func topSentences(text string, n int) []string {
	sentences := splitSentences(text)
	if len(sentences) > n {
		sentences = sentences[:n]
	}
	return sentences
}

func splitSentences(text string) []string {
	raw := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '\n' || r == '!' || r == '?'
	})
	var out []string
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if len(s) >= 10 {
			out = append(out, s)
		}
	}
	return out
}

func entityLikeTokens(text string) []string {
	words := strings.Fields(text)
	seen := make(map[string]bool)
	var out []string
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?()\"'")
		if len(w) > 2 && strings.ToUpper(w[:1]) == w[:1] && !seen[w] {
			seen[w] = true
			out = append(out, w)
			if len(out) >= 8 {
				break
			}
		}
	}
	return out
}

func extractByPrefix(text string, keywords []string) []string {
	var out []string
	for _, sentence := range splitSentences(text) {
		lower := strings.ToLower(sentence)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				out = append(out, sentence)
				break
			}
		}
		if len(out) >= 5 {
			break
		}
	}
	return out
}
