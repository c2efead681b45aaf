package heuristics_test

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/maher4real/support-ticket-system/internal/domain"
	"github.com/maher4real/support-ticket-system/internal/heuristics"
)

func TestAnalyze_ProductionOutageIsCriticalTechnical(t *testing.T) {
	a := heuristics.Analyze("Production checkout fails with 500 for all users")

	assert.Equal(t, domain.TicketCategoryTechnical, a.Category)
	assert.Equal(t, domain.TicketPriorityCritical, a.Priority)
	assert.GreaterOrEqual(t, a.PriorityScore, heuristics.CriticalThreshold)
}

func TestAnalyze_NoKeywordsYieldsDefaults(t *testing.T) {
	a := heuristics.Analyze("   ")

	assert.Equal(t, domain.TicketCategoryGeneral, a.Category)
	assert.Equal(t, domain.TicketPriorityLow, a.Priority)
	assert.Equal(t, domain.TicketSentimentNeutral, a.Sentiment)
	assert.Equal(t, a.PriorityScore, a.UrgencyScore)
}

func TestAnalyze_CategoryKeywords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want domain.TicketCategory
	}{
		{"billing", "I was charged twice on my last invoice", domain.TicketCategoryBilling},
		{"account", "Password reset link never arrives for my account", domain.TicketCategoryAccount},
		{"technical", "The API returns an exception on deploy", domain.TicketCategoryTechnical},
		{"general", "What are your office hours", domain.TicketCategoryGeneral},
		{"bill at end of text", "Question about my bill", domain.TicketCategoryBilling},
		{"bill before punctuation", "Please check my bill.", domain.TicketCategoryBilling},
		// one billing match and one account match: billing is declared first
		{"tie goes to first declared", "refund for my profile", domain.TicketCategoryBilling},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, heuristics.Classify(tt.text).SuggestedCategory)
		})
	}
}

func TestAnalyze_HighScoreOverridesGeneralToTechnical(t *testing.T) {
	// severity language only, no category keyword
	a := heuristics.Analyze("Everyone is affected, this is critical")

	assert.Equal(t, domain.TicketCategoryTechnical, a.Category)
	assert.Equal(t, domain.TicketPriorityHigh, a.Priority)
}

func TestAnalyze_SentimentTiers(t *testing.T) {
	tests := []struct {
		text string
		want domain.TicketSentiment
		bias int
	}{
		{"This is unacceptable and I am frustrated, please help", domain.TicketSentimentAngry, 14},
		{"I am frustrated, please help", domain.TicketSentimentFrustrated, 8},
		{"Could you please help me", domain.TicketSentimentCalm, -8},
		{"Question about features", domain.TicketSentimentNeutral, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			a := heuristics.Analyze(tt.text)
			assert.Equal(t, tt.want, a.Sentiment)
			expected := a.PriorityScore + tt.bias
			if expected < 0 {
				expected = 0
			}
			assert.Equal(t, expected, a.UrgencyScore)
		})
	}
}

func TestPriorityFromScore(t *testing.T) {
	cases := map[int]domain.TicketPriority{
		0:   domain.TicketPriorityLow,
		10:  domain.TicketPriorityLow,
		29:  domain.TicketPriorityLow,
		30:  domain.TicketPriorityMedium,
		40:  domain.TicketPriorityMedium,
		50:  domain.TicketPriorityHigh,
		60:  domain.TicketPriorityHigh,
		75:  domain.TicketPriorityCritical,
		80:  domain.TicketPriorityCritical,
		100: domain.TicketPriorityCritical,
	}
	for score, want := range cases {
		assert.Equal(t, want, heuristics.PriorityFromScore(score), "score %d", score)
	}
}

func TestAnalyze_ScoresStayInRange(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	vocabulary := []string{
		"outage", "urgent", "error", "500", "angry", "please", "refund",
		"login", "critical", "all users", "timeout", "frustrated", "hello",
	}
	words := gen.SliceOf(gen.IntRange(0, len(vocabulary)-1))
	sentence := func(picks []int) string {
		parts := make([]string, 0, len(picks))
		for _, i := range picks {
			parts = append(parts, vocabulary[i])
		}
		return strings.Join(parts, " ")
	}

	properties.Property("priority and urgency scores are clamped to [0,100]", prop.ForAll(
		func(picks []int, noise string) bool {
			a := heuristics.Analyze(sentence(picks) + noise)
			return a.PriorityScore >= 0 && a.PriorityScore <= 100 &&
				a.UrgencyScore >= 0 && a.UrgencyScore <= 100
		},
		words,
		gen.AnyString(),
	))

	properties.Property("analysis is deterministic", prop.ForAll(
		func(text string) bool {
			return heuristics.Analyze(text) == heuristics.Analyze(text)
		},
		gen.AnyString(),
	))

	properties.Property("priority always agrees with the score", prop.ForAll(
		func(picks []int) bool {
			a := heuristics.Analyze(sentence(picks))
			return a.Priority == heuristics.PriorityFromScore(a.PriorityScore)
		},
		words,
	))

	properties.TestingRun(t)
}
