package report

import (
	"fmt"
	"strings"

	"github.com/iago/market-analysis-back/internal/domain"
	"github.com/iago/market-analysis-back/internal/policy"
)

const maxSlideRows = 3

// ChartImage is a selected chart ready to embed. Ref is a path relative to
// the output directory when the image was downloaded, else its URL.
type ChartImage struct {
	Title       string
	Description string
	SourceURL   string
	Ref         string
	LocalPath   string
}

// BuildMarkdown renders the one-slide executive report.
func BuildMarkdown(analysis *domain.Analysis, companyName string, charts []ChartImage) string {
	var lines []string
	add := func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}

	add("# %s | Strategic Analysis", policy.CleanCompanyName(companyName))
	add("*%s*", analysis.AnalysisDate)
	add("\n**KEY INSIGHT:** %s", analysis.ExecutiveSummary)

	trends := analysis.InvestmentTrends
	if len(trends) > maxSlideRows {
		trends = trends[:maxSlideRows]
	}

	add("\n## Investment Opportunities")
	add("| Trend | Priority | Market Size | CAGR | ROI | Investment |")
	add("|-------|----------|-------------|------|-----|------------|")
	for _, trend := range trends {
		add("| **%s** | %s | %s | %s | %s | %s |",
			trend.TrendName,
			orNA(trend.InvestmentPriority),
			formatValue(trend.MarketSizeUSDBillions, "$%.0fB"),
			formatValue(trend.CAGRPercentage, "%.0f%%"),
			formatValue(trend.ExpectedROIPercentage, "%.0f%%"),
			formatValue(trend.InvestmentRequiredMillions, "$%.0fM"),
		)
	}

	add("\n## Top Investment Opportunities")
	for i, trend := range trends {
		line := fmt.Sprintf("**%d.** **%s**: %s", i+1, trend.TrendName, trend.Description)
		if trend.CAGR() != 0 {
			line += fmt.Sprintf(" (%.0f%% CAGR)", trend.CAGR())
		}
		lines = append(lines, line)
	}

	add("\n## Strategic Priorities")
	for i, recommendation := range firstN(analysis.KeyStrategicRecommendations, maxSlideRows) {
		add("**%d.** %s", i+1, recommendation)
	}

	add("\n## Implementation Timeline")
	for _, priority := range firstN(analysis.ImplementationPriorities, maxSlideRows) {
		add("• %s", priority)
	}

	if len(charts) > 0 {
		add("\n## Market Trend Charts")
		for _, chart := range charts {
			add("\n### %s", chart.Title)
			add("![%s](%s)", chart.Title, chart.Ref)
			description := chart.Description
			if strings.TrimSpace(description) == "" {
				description = "Market trend chart"
			}
			add("*%s*", description)
		}
	}

	add("\n---")
	add("**Total Market Size: $%.0fB** | **Avg CAGR: %.1f%%** | **High Priority Trends: %d**",
		analysis.TotalMarketSize(),
		analysis.AverageCAGR(),
		analysis.HighPriorityTrends(),
	)

	return policy.StripLinkedIn(strings.Join(lines, "\n"))
}

func formatValue(value *float64, format string) string {
	if value == nil || *value == 0 {
		return "N/A"
	}
	return fmt.Sprintf(format, *value)
}

func orNA(value string) string {
	if strings.TrimSpace(value) == "" {
		return "N/A"
	}
	return value
}

func firstN(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}
