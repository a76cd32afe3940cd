package quality

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iago/market-analysis-back/internal/domain"
)

func ptr(value float64) *float64 {
	return &value
}

func TestCheckResearchSufficiencyListsEveryPhrase(t *testing.T) {
	assert.NoError(t, CheckResearchSufficiency("Acme sells robots with a 12% CAGR market"))

	err := CheckResearchSufficiency("We cannot find any information. ANALYSIS NOT POSSIBLE.")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDomainValidation))

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, ReasonInsufficientResearch, domainErr.Reason)
	assert.Equal(t, []string{"cannot find any information", "ANALYSIS NOT POSSIBLE"}, domainErr.Phrases)
	assert.Contains(t, err.Error(), "cannot find any information")
	assert.Contains(t, err.Error(), "ANALYSIS NOT POSSIBLE")
}

func TestCheckResearchSufficiencyIsCaseSensitive(t *testing.T) {
	assert.NoError(t, CheckResearchSufficiency("analysis not possible was never said"))
	assert.NoError(t, CheckResearchSufficiency("No Data Available"))
}

func TestDetectGenericRulesInOrder(t *testing.T) {
	quantified := []domain.InvestmentTrend{
		{TrendName: "A", MarketSizeUSDBillions: ptr(10), CAGRPercentage: ptr(12)},
		{TrendName: "B", MarketSizeUSDBillions: ptr(5), CAGRPercentage: ptr(8)},
	}
	cases := []struct {
		name     string
		analysis domain.Analysis
		generic  bool
		reason   string
	}{
		{
			name: "generic summary wins over missing trends",
			analysis: domain.Analysis{
				ExecutiveSummary: "Research data insufficient; we were unable to find specific details.",
			},
			generic: true,
			reason:  "Executive summary indicates insufficient company data",
		},
		{
			name:     "single generic phrase is not enough",
			analysis: domain.Analysis{ExecutiveSummary: "Insufficient data on margins", InvestmentTrends: quantified},
			reason:   "Analysis appears to be company-specific",
		},
		{
			name:     "no trends",
			analysis: domain.Analysis{ExecutiveSummary: "Strong outlook"},
			generic:  true,
			reason:   "No investment trends identified",
		},
		{
			name: "no market size",
			analysis: domain.Analysis{InvestmentTrends: []domain.InvestmentTrend{
				{TrendName: "A", CAGRPercentage: ptr(12)},
				{TrendName: "B", MarketSizeUSDBillions: ptr(0)},
			}},
			generic: true,
			reason:  "All trends lack market size data",
		},
		{
			name: "one quantified trend",
			analysis: domain.Analysis{InvestmentTrends: []domain.InvestmentTrend{
				{TrendName: "A", MarketSizeUSDBillions: ptr(10), CAGRPercentage: ptr(12)},
				{TrendName: "B", MarketSizeUSDBillions: ptr(3)},
			}},
			generic: true,
			reason:  "Most trends lack quantitative market data",
		},
		{
			name:     "company specific",
			analysis: domain.Analysis{InvestmentTrends: quantified},
			reason:   "Analysis appears to be company-specific",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			generic, reason := DetectGeneric(&tc.analysis)
			assert.Equal(t, tc.generic, generic)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripCodeFence("```\n{\"a\":1}\n```\n"))
	assert.Equal(t, `{"a":1}`, StripCodeFence(`{"a":1}`))
}

const validAnalysis = `{
	"company_name": "Acme",
	"analysis_date": "2026-01-02",
	"executive_summary": "Acme should invest in AI. See https://www.linkedin.com/company/acme",
	"investment_trends": [
		{"trend_name":"AI","investment_priority":"High","market_size_usd_billions":45.2,"cagr_percentage":28.5,"description":"Fast growth"},
		{"trend_name":"IoT","investment_priority":"Medium","market_size_usd_billions":20,"cagr_percentage":15,"description":"Steady"}
	],
	"key_strategic_recommendations": ["Start a pilot"],
	"implementation_priorities": ["Priority 1: MVP - 6 months"],
	"visual_data": [{"title":"AI market","source_url":"https://www.statista.com/a.png","description":"Size","relevance":"High"}]
}`

func TestParseAnalysisStripsLinkedInAndValidates(t *testing.T) {
	analysis, err := ParseAnalysis("```json\n" + validAnalysis + "\n```")
	require.NoError(t, err)

	assert.Equal(t, "Acme should invest in AI. See", analysis.ExecutiveSummary)
	require.Len(t, analysis.InvestmentTrends, 2)
	assert.InDelta(t, 45.2, analysis.InvestmentTrends[0].MarketSize(), 0.0001)
	assert.Equal(t, 1, analysis.HighPriorityTrends())
}

func TestParseAnalysisRejectsMalformedJSON(t *testing.T) {
	_, err := ParseAnalysis("Sorry, I cannot help with that")

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, ReasonMalformedAnalysis, domainErr.Reason)
	assert.ErrorIs(t, err, ErrDomainValidation)
}

func TestParseAnalysisRejectsGenericAnalysis(t *testing.T) {
	_, err := ParseAnalysis(`{"company_name":"Acme","analysis_date":"2026-01-02","executive_summary":"ok","investment_trends":[]}`)

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, ReasonGenericAnalysis, domainErr.Reason)
	assert.Equal(t, "Analysis too generic: No investment trends identified", err.Error())
}

func TestParseAnalysisRejectsMissingRequiredFields(t *testing.T) {
	body := fmt.Sprintf(`{
		"company_name": "Acme",
		"analysis_date": "2026-01-02",
		"executive_summary": "Acme grows",
		"investment_trends": [%s, %s]
	}`,
		`{"trend_name":"AI","market_size_usd_billions":1,"cagr_percentage":2,"description":"x"}`,
		`{"trend_name":"IoT","investment_priority":"Low","market_size_usd_billions":1,"cagr_percentage":2,"description":"y"}`,
	)

	_, err := ParseAnalysis(body)

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, ReasonMalformedAnalysis, domainErr.Reason)
}
