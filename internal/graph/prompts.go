package graph

import (
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/orchestrator/internal/domain"
)

func rolePrompt(agent string, profile domain.Profile) string {
	base := fmt.Sprintf("Target market: %s. Category: %s. Seller type: %s. Price band: %d-%d.",
		profile.TargetMarket, profile.SupplyChain, profile.SellerType, profile.MinPrice, profile.MaxPrice)

	switch agent {
	case domain.AgentTrendScout:
		return "You are a trend scout analyst. " + base + " Identify emerging demand trends."
	case domain.AgentCompetitor:
		return "You are a competitor analyst. " + base + " Identify the top competing sellers and their positioning."
	case domain.AgentRegulation:
		return "You are a regulation checker. " + base + " Identify compliance and import/export requirements."
	case domain.AgentSocial:
		return "You are a social sentiment analyst. " + base + " Summarize social-media sentiment for this category."
	default:
		return base
	}
}

func synthesizerPrompt(profile domain.Profile, results []domain.AgentResult) string {
	var sb strings.Builder
	sb.WriteString("You are the synthesizer. Compose one market-insight report from the following analyst findings.\n")
	for _, r := range results {
		sb.WriteString(fmt.Sprintf("\n[%s] (%s): %s\n", r.AgentName, r.Status, r.Content))
	}
	return sb.String()
}

func challengePrompt(round int, debateType domain.DebateType, target domain.AgentResult) string {
	tone := "peer-review"
	if debateType == domain.DebateRedTeam {
		tone = "red-team"
	}
	return fmt.Sprintf("You are the debate challenger performing a %s critique (round %d) of %s's finding:\n%s\nRaise the strongest objection you can.",
		tone, round, target.AgentName, target.Content)
}

func respondPrompt(original domain.AgentResult, challenge string) string {
	return fmt.Sprintf("Your prior finding was:\n%s\n\nA reviewer raised this critique:\n%s\n\nRespond, revising your finding if warranted. End your response with the literal marker <<<<REVISED:true>>>> if you changed your conclusion, or <<<<REVISED:false>>>> if you did not.",
		original.Content, challenge)
}

func followupPrompt(response string) string {
	return fmt.Sprintf("Your revised response was:\n%s\n\nBriefly resolve any remaining ambiguity in one or two sentences.", response)
}
