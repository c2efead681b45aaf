// Package heuristics produces local approximations of the AI
// classification outputs. It is used only when the remote classifier
// cannot be reached, so it must never fail or block.
package heuristics

import (
	"strings"

	"github.com/maher4real/support-ticket-system/internal/domain"
)

// Priority score thresholds.
const (
	baseScore         = 10
	CriticalThreshold = 75
	HighThreshold     = 50
	MediumThreshold   = 30
)

type categoryKeywords struct {
	category domain.TicketCategory
	keywords []string
}

// Declaration order breaks ties.
var categoryTable = []categoryKeywords{
	{domain.TicketCategoryBilling, []string{
		"invoice", "billing", "bill", "charged", "charge", "refund", "payment", "paid",
		"subscription", "credit card", "pricing", "receipt", "overcharged",
	}},
	{domain.TicketCategoryTechnical, []string{
		"error", "bug", "crash", "outage", "down", "500", "502", "503", "timeout",
		"latency", "api", "server", "broken", "fails", "failing", "not working",
		"production", "deploy", "exception", "checkout",
	}},
	{domain.TicketCategoryAccount, []string{
		"account", "login", "log in", "password", "sign in", "signin", "2fa", "mfa",
		"locked out", "username", "profile", "reset link", "permissions",
	}},
}

type weightedKeywords struct {
	weight   int
	keywords []string
}

var priorityTable = []weightedKeywords{
	{50, []string{
		"outage", "critical", "data loss", "lost data", "all users", "everyone",
		"production", "security breach", "down for", "completely down", "site is down",
	}},
	{25, []string{
		"urgent", "asap", "immediately", "blocked", "blocking", "emergency",
		"right now", "deadline",
	}},
	{20, []string{
		"error", "cannot", "can't", "unable", "fail", "timeout", "timed out",
		"broken", "not working", "crash",
	}},
	{15, []string{
		"500", "502", "503", "504", "gateway", "database", "server error", "dns",
		"ssl", "certificate", "latency",
	}},
}

var (
	angryKeywords = []string{
		"angry", "furious", "unacceptable", "ridiculous", "worst", "terrible",
		"outraged", "scam", "disgusted", "absurd", "!!!",
	}
	frustratedKeywords = []string{
		"frustrated", "frustrating", "annoyed", "annoying", "disappointed",
		"still not", "again", "keeps", "waste of time", "fed up",
	}
	calmKeywords = []string{
		"please", "thank", "thanks", "appreciate", "kindly", "could you",
		"would you", "help",
	}
)

var sentimentBias = map[domain.TicketSentiment]int{
	domain.TicketSentimentCalm:       -8,
	domain.TicketSentimentNeutral:    0,
	domain.TicketSentimentFrustrated: 8,
	domain.TicketSentimentAngry:      14,
}

// Analysis carries every locally inferred signal for a text.
type Analysis struct {
	Category      domain.TicketCategory
	Priority      domain.TicketPriority
	PriorityScore int
	Sentiment     domain.TicketSentiment
	UrgencyScore  int
}

// Analyze runs every heuristic over text.
func Analyze(text string) Analysis {
	normalized := normalize(text)
	score := priorityScore(normalized)
	category := inferCategory(normalized)
	if category == domain.TicketCategoryGeneral && score >= HighThreshold {
		category = domain.TicketCategoryTechnical
	}
	sentiment := inferSentiment(normalized)
	return Analysis{
		Category:      category,
		Priority:      PriorityFromScore(score),
		PriorityScore: score,
		Sentiment:     sentiment,
		UrgencyScore:  clamp(score+sentimentBias[sentiment], 0, 100),
	}
}

// Classify returns the local category/priority guess.
func Classify(text string) domain.Classification {
	a := Analyze(text)
	return domain.Classification{SuggestedCategory: a.Category, SuggestedPriority: a.Priority}
}

// ScoreSentimentUrgency returns the local sentiment/urgency estimate.
func ScoreSentimentUrgency(text string) domain.SentimentUrgency {
	a := Analyze(text)
	return domain.SentimentUrgency{Sentiment: a.Sentiment, UrgencyScore: a.UrgencyScore}
}

// PriorityFromScore maps a 0..100 score onto a priority.
func PriorityFromScore(score int) domain.TicketPriority {
	switch {
	case score >= CriticalThreshold:
		return domain.TicketPriorityCritical
	case score >= HighThreshold:
		return domain.TicketPriorityHigh
	case score >= MediumThreshold:
		return domain.TicketPriorityMedium
	default:
		return domain.TicketPriorityLow
	}
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func inferCategory(text string) domain.TicketCategory {
	best := domain.TicketCategoryGeneral
	bestScore := 0
	for _, entry := range categoryTable {
		score := countMatches(text, entry.keywords)
		if score > bestScore {
			best = entry.category
			bestScore = score
		}
	}
	return best
}

func priorityScore(text string) int {
	score := baseScore
	for _, group := range priorityTable {
		if containsAny(text, group.keywords) {
			score += group.weight
		}
	}
	return clamp(score, 0, 100)
}

func inferSentiment(text string) domain.TicketSentiment {
	switch {
	case containsAny(text, angryKeywords):
		return domain.TicketSentimentAngry
	case containsAny(text, frustratedKeywords):
		return domain.TicketSentimentFrustrated
	case containsAny(text, calmKeywords):
		return domain.TicketSentimentCalm
	default:
		return domain.TicketSentimentNeutral
	}
}

func countMatches(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
