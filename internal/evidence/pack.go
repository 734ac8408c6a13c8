// Package evidence implements the Evidence & Memory Packer: after the
// synthesizer completes, it scans the final report for claim-like
// sentences, maps each to source agents via lexical overlap, and builds a
// traceability pack. Grounded on
// original_source/backend/core/evidence_pack.py.
package evidence

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xiaot623/gogo/orchestrator/internal/domain"
)

var sentenceSplit = regexp.MustCompile(`[.!?\n]+`)
var urlLike = regexp.MustCompile(`https?://[^\s)]+`)

func clip(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit-1] + "…"
}

// Build produces an EvidencePack from the agent results, debate exchanges,
// and final report of one session. It never returns an error: on any
// unexpected input it degrades to a minimal pack, since the packer is
// best-effort per spec §4.8.
func Build(sessionID string, profile domain.Profile, agentResults []domain.AgentResult, exchanges []domain.DebateExchange, finalReport string) domain.EvidencePack {
	generatedAt := time.Now().UTC().Format(time.RFC3339)

	sources, sourceIndex := buildSourceIndex(agentResults)

	sentences := ClaimSentences(finalReport)
	if len(sentences) == 0 {
		// Synthesizer produced nothing claim-worthy (e.g. fallback report
		// under degrade_mode=partial); fall back to one claim per agent so
		// the pack still has traceable content.
		sentences = make([]string, 0, len(agentResults))
		for _, ar := range agentResults {
			if ar.Content != "" {
				sentences = append(sentences, clip(ar.Content, 240))
			}
		}
	}

	claims := make([]domain.Claim, 0, len(sentences))
	traceability := make([]domain.Traceability, 0, len(sentences))
	for idx, sentence := range sentences {
		agent, refs := attributeSentence(sentence, agentResults, sourceIndex)
		claimID := fmt.Sprintf("C%03d", idx+1)
		claims = append(claims, domain.Claim{
			ClaimID:     claimID,
			Agent:       agent,
			Summary:     clip(sentence, 240),
			Confidence:  normalizeConfidence(confidenceFor(agent, agentResults)),
			SourceRefs:  refs,
			GeneratedAt: generatedAt,
		})
		traceability = append(traceability, domain.Traceability{
			ClaimID: claimID, FromAgent: agent, SourceRefs: refs,
		})
	}

	adjustments := make([]domain.DebateAdjust, 0, len(exchanges))
	for _, ex := range exchanges {
		adjustments = append(adjustments, domain.DebateAdjust{
			RoundNumber:      ex.RoundNumber,
			DebateType:       string(ex.DebateType),
			Challenger:       ex.Challenger,
			Responder:        ex.Responder,
			Revised:          ex.Revised,
			ChallengeSummary: clip(ex.ChallengeContent, 140),
			ResponseSummary:  clip(ex.ResponseContent, 140),
		})
	}

	return domain.EvidencePack{
		Version:       "phase3.v1",
		SessionID:     sessionID,
		GeneratedAt:   generatedAt,
		ReportExcerpt: clip(finalReport, 300),
		Claims:        claims,
		Sources:       sources,
		Traceability:  traceability,
		DebateAdjusts: adjustments,
		Stats: domain.EvidenceStats{
			ClaimsCount:  len(claims),
			SourcesCount: len(sources),
			DebateCount:  len(adjustments),
		},
	}
}

// attributeSentence maps one report sentence back to the agent whose
// findings overlap it most, per spec §4.8. Zero-overlap sentences attribute
// to the synthesizer itself; on a tie the earliest agent in agentResults
// with the top score wins.
func attributeSentence(sentence string, agentResults []domain.AgentResult, sourceIndex map[string]string) (string, []string) {
	bestAgent := domain.AgentSynthesizer
	bestScore := 0.0
	var bestSources []string
	for _, ar := range agentResults {
		score := LexicalOverlap(sentence, ar.Content)
		if score > bestScore {
			bestScore = score
			bestAgent = ar.AgentName
			bestSources = ar.Sources
		}
	}
	return bestAgent, refsFor(bestSources, sourceIndex)
}

func confidenceFor(agent string, agentResults []domain.AgentResult) float64 {
	for _, ar := range agentResults {
		if ar.AgentName == agent {
			return ar.Confidence
		}
	}
	return 0
}

func buildSourceIndex(agentResults []domain.AgentResult) ([]domain.Source, map[string]string) {
	var sources []domain.Source
	index := make(map[string]string)
	for _, ar := range agentResults {
		for _, src := range dedupe(ar.Sources) {
			if _, ok := index[src]; ok {
				continue
			}
			id := fmt.Sprintf("S%03d", len(sources)+1)
			index[src] = id
			sources = append(sources, domain.Source{SourceID: id, Source: src, FirstSeenAgent: ar.AgentName})
		}
	}
	return sources, index
}

func refsFor(sources []string, index map[string]string) []string {
	var refs []string
	for _, s := range dedupe(sources) {
		if id, ok := index[s]; ok {
			refs = append(refs, id)
		}
	}
	return refs
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, it := range items {
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}

func normalizeConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	if v == 0 {
		return 0.6
	}
	return v
}

// ExtractURLs finds URL-like tokens in text, for building sources[] from
// tool outputs, per spec §4.8.
func ExtractURLs(text string) []string {
	return dedupe(urlLike.FindAllString(text, -1))
}

// ClaimSentences splits text into claim-like sentences (non-trivial length)
// for lexical-overlap mapping against agent content.
func ClaimSentences(text string) []string {
	parts := sentenceSplit.Split(text, -1)
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) >= 20 {
			out = append(out, p)
		}
	}
	return out
}

// LexicalOverlap returns the fraction of words in sentence that also appear
// in content, used to map a claim sentence back to the agent(s) whose
// content it most likely came from.
func LexicalOverlap(sentence, content string) float64 {
	sentWords := wordSet(sentence)
	contentWords := wordSet(content)
	if len(sentWords) == 0 {
		return 0
	}
	overlap := 0
	for w := range sentWords {
		if contentWords[w] {
			overlap++
		}
	}
	return float64(overlap) / float64(len(sentWords))
}

func wordSet(s string) map[string]bool {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?()\"'")
		if len(w) > 2 {
			set[w] = true
		}
	}
	return set
}
