package graph

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xiaot623/gogo/orchestrator/internal/domain"
)

// runDebateRound executes one full round of the Debate Coordinator: for
// every target agent, a challenge is issued, the responder replies, and
// (if enabled) a follow-up resolves ambiguity. Different responders run in
// parallel; each responder's own challenge→respond→followup sequence is
// strictly sequential, per spec §4.4.
func runDebateRound(ctx context.Context, rc *runContext, round int, debateType domain.DebateType, targets []domain.AgentResult, resultsByAgent map[string]domain.AgentResult) []domain.DebateExchange {
	participants := make([]string, 0, len(targets)+1)
	participants = append(participants, domain.AgentDebateChallenger)
	for _, t := range targets {
		participants = append(participants, t.AgentName)
	}

	rc.emit(domain.EventDebateRoundStart, "", "", "debate", map[string]interface{}{
		"round_number": round, "debate_type": string(debateType), "participants": participants,
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	exchanges := make([]domain.DebateExchange, 0, len(targets))

	for _, target := range targets {
		wg.Add(1)
		go func(target domain.AgentResult) {
			defer wg.Done()
			ex := runOneExchange(ctx, rc, round, debateType, target)
			mu.Lock()
			exchanges = append(exchanges, ex)
			if ex.Revised {
				applyRevision(rc, resultsByAgent, ex)
			}
			mu.Unlock()
		}(target)
	}
	wg.Wait()

	rc.emit(domain.EventDebateRoundEnd, "", "", "debate", map[string]interface{}{"round_number": round})
	return exchanges
}

func runOneExchange(ctx context.Context, rc *runContext, round int, debateType domain.DebateType, target domain.AgentResult) domain.DebateExchange {
	ex := domain.DebateExchange{
		ExchangeID:  uuid.NewString(),
		SessionID:   rc.session.SessionID,
		RoundNumber: round,
		DebateType:  debateType,
		Challenger:  domain.AgentDebateChallenger,
		Responder:   target.AgentName,
		CreatedAt:   time.Now().UTC(),
	}

	// Step 1: challenge.
	rc.emit(domain.EventAgentChallenge, domain.AgentDebateChallenger, "", "debate", map[string]interface{}{
		"round_number": round, "from_agent": domain.AgentDebateChallenger, "to_agent": target.AgentName,
	})
	challengeOutcome := runAgentStage(ctx, rc, domain.AgentDebateChallenger, challengePrompt(round, debateType, target), false)
	ex.ChallengeContent = challengeOutcome.result.Content
	_ = rc.saveExchange(ctx, &ex)
	rc.emit(domain.EventAgentChallengeEnd, domain.AgentDebateChallenger, "", "debate", map[string]interface{}{
		"round_number": round, "from_agent": domain.AgentDebateChallenger, "to_agent": target.AgentName,
		"challenge_content": ex.ChallengeContent,
	})

	// Step 2: respond.
	rc.emit(domain.EventAgentRespond, target.AgentName, "", "debate", map[string]interface{}{
		"round_number": round, "from_agent": target.AgentName, "to_agent": domain.AgentDebateChallenger,
	})
	responseOutcome := runAgentStage(ctx, rc, target.AgentName, respondPrompt(target, ex.ChallengeContent), false)
	content, revised, _ := ExtractRevised(responseOutcome.result.Content)
	ex.ResponseContent = content
	ex.Revised = revised
	_ = rc.saveExchange(ctx, &ex)
	rc.emit(domain.EventAgentRespondEnd, target.AgentName, "", "debate", map[string]interface{}{
		"round_number": round, "from_agent": target.AgentName, "to_agent": domain.AgentDebateChallenger,
		"response_content": ex.ResponseContent, "revised": ex.Revised,
	})

	// Step 3: optional follow-up.
	if rc.session.Config.EnableFollowup {
		followupOutcome := runAgentStage(ctx, rc, domain.AgentDebateChallenger, followupPrompt(ex.ResponseContent), false)
		ex.FollowupContent = followupOutcome.result.Content
		_ = rc.saveExchange(ctx, &ex)
		rc.emit(domain.EventAgentFollowupEnd, domain.AgentDebateChallenger, "", "debate", map[string]interface{}{
			"round_number": round, "from_agent": domain.AgentDebateChallenger, "to_agent": target.AgentName,
			"followup_content": ex.FollowupContent,
		})
	}

	return ex
}

// applyRevision mutates the in-memory AgentResult for the responder if the
// revision clears the configured threshold, per DESIGN.md Open Question 3.
// This is the only path by which a gather result mutates after gather.
func applyRevision(rc *runContext, resultsByAgent map[string]domain.AgentResult, ex domain.DebateExchange) {
	threshold := rc.session.Config.RevisionApplyThreshold
	prior, ok := resultsByAgent[ex.Responder]
	if !ok {
		return
	}
	apply := threshold <= 0
	if !apply {
		apply = jaccardDistance(prior.Content, ex.ResponseContent) > threshold
	}
	if !apply {
		return
	}
	prior.Content = ex.ResponseContent
	resultsByAgent[ex.Responder] = prior
	_ = rc.saveAgentResult(context.Background(), &prior)
}

func jaccardDistance(a, b string) float64 {
	setA := splitWords(a)
	setB := splitWords(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	union := map[string]bool{}
	for w := range setA {
		union[w] = true
	}
	for w := range setB {
		union[w] = true
	}
	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	similarity := float64(intersection) / float64(len(union))
	return 1 - similarity
}

func splitWords(s string) map[string]bool {
	out := map[string]bool{}
	word := ""
	for _, r := range s {
		if r == ' ' || r == '\n' || r == '\t' {
			if word != "" {
				out[word] = true
				word = ""
			}
			continue
		}
		word += string(r)
	}
	if word != "" {
		out[word] = true
	}
	return out
}
