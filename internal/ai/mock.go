package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/iago/market-analysis-back/internal/domain"
)

// MockResearchClient returns canned research after a short simulated
// delay. It backs DEV_MODE so the pipeline runs without API keys.
type MockResearchClient struct {
	Delay time.Duration
}

func (c MockResearchClient) Research(ctx context.Context, company domain.CompanyInfo) (ResearchResult, error) {
	if err := sleepContext(ctx, c.Delay); err != nil {
		return ResearchResult{}, err
	}
	content := fmt.Sprintf(`# Market Research Report: %[1]s

## Company Overview
%[1]s is a %[2]s operating in the %[3]s sector with strong positioning in its niche.

## Market Size & Growth
- Current market size: estimated at $15-20 billion
- Annual growth rate: 12-15%% CAGR
- Projected market size (5 years): $25-35 billion

## Emerging Trends
- AI-powered analytics platforms: $45.2B market, 28.5%% CAGR (2024-2030)
- Sustainable technology solutions: $32.8B market, 22.3%% CAGR
- Edge computing and IoT integration: $28.5B market, 19.8%% CAGR`,
		company.Name, mockOr(string(company.Type), "company"), mockOr(company.Sector, "technology"))

	raw, err := json.Marshal(map[string]any{
		"id":     "mock-research",
		"model":  "sonar",
		"object": "chat.completion",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]string{"role": "assistant", "content": content},
		}},
	})
	if err != nil {
		return ResearchResult{}, err
	}
	return ResearchResult{Raw: raw, Content: content}, nil
}

type MockSynthesisClient struct {
	Delay time.Duration
	Now   func() time.Time
}

func (c MockSynthesisClient) Synthesize(ctx context.Context, company domain.CompanyInfo, _ ResearchResult) (string, error) {
	if err := sleepContext(ctx, c.Delay); err != nil {
		return "", err
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	analysis := domain.Analysis{
		CompanyName:      company.Name,
		AnalysisDate:     now().Format("2006-01-02"),
		ExecutiveSummary: fmt.Sprintf("%s should prioritize AI analytics and sustainable technology, two segments growing above 20%% CAGR with strong fit for its current offering.", company.Name),
		InvestmentTrends: []domain.InvestmentTrend{
			mockTrend("AI-Powered Analytics Platforms", "High", 45.2, 28.5, 250, 35),
			mockTrend("Sustainable Technology Solutions", "High", 32.8, 22.3, 180, 28),
			mockTrend("Edge Computing & IoT Integration", "Medium", 28.5, 19.8, 120, 22),
		},
		KeyStrategicRecommendations: []string{
			"Launch an AI analytics pilot within 6 months targeting existing enterprise clients",
			"Allocate 20% of R&D budget to sustainable product lines over 18 months",
			"Partner with an IoT platform vendor to reduce edge deployment risk",
		},
		ImplementationPriorities: []string{
			"Priority 1: Build AI analytics MVP - 6 months",
			"Priority 2: Certify sustainable product line - 12 months",
			"Priority 3: Scale edge offering regionally - 24 months",
		},
		VisualData: []domain.VisualData{{
			Title:       "AI Analytics Market Size 2024-2030",
			SourceURL:   "https://www.grandviewresearch.com/static/img/research/ai-analytics-market-size.png",
			Description: "Market size growth at 28.5% CAGR",
			Relevance:   "Sizes the primary investment opportunity",
		}},
	}
	encoded, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return "", err
	}
	return "```json\n" + string(encoded) + "\n```", nil
}

func mockTrend(name, priority string, size, cagr, investment, roi float64) domain.InvestmentTrend {
	return domain.InvestmentTrend{
		TrendName:                  name,
		InvestmentPriority:         priority,
		MarketSizeUSDBillions:      &size,
		CAGRPercentage:             &cagr,
		TimePeriod:                 "2024-2030",
		InvestmentRequiredMillions: &investment,
		ExpectedROIPercentage:      &roi,
		Description:                name + " is expanding rapidly across the sector",
		ImplementationTimeline:     "12-18 months",
		StrategicFit:               "Builds on existing capabilities",
	}
}

func mockOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
