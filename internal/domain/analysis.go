package domain

// Analysis is the structured output of the synthesis stage.
type Analysis struct {
	CompanyName                 string            `json:"company_name" validate:"required"`
	AnalysisDate                string            `json:"analysis_date" validate:"required"`
	ExecutiveSummary            string            `json:"executive_summary" validate:"required"`
	InvestmentTrends            []InvestmentTrend `json:"investment_trends" validate:"dive"`
	KeyStrategicRecommendations []string          `json:"key_strategic_recommendations"`
	ImplementationPriorities    []string          `json:"implementation_priorities"`
	VisualData                  []VisualData      `json:"visual_data" validate:"dive"`
}

type InvestmentTrend struct {
	TrendName                  string   `json:"trend_name" validate:"required"`
	InvestmentPriority         string   `json:"investment_priority" validate:"required"`
	MarketSizeUSDBillions      *float64 `json:"market_size_usd_billions,omitempty"`
	CAGRPercentage             *float64 `json:"cagr_percentage,omitempty"`
	TimePeriod                 string   `json:"time_period,omitempty"`
	InvestmentRequiredMillions *float64 `json:"investment_required_millions,omitempty"`
	ExpectedROIPercentage      *float64 `json:"expected_roi_percentage,omitempty"`
	Description                string   `json:"description" validate:"required"`
	MarketDrivers              []string `json:"market_drivers,omitempty"`
	KeyPlayers                 []string `json:"key_players,omitempty"`
	ImplementationTimeline     string   `json:"implementation_timeline,omitempty"`
	StrategicFit               string   `json:"strategic_fit,omitempty"`
}

// MarketSize returns the market size or 0 when absent.
func (t InvestmentTrend) MarketSize() float64 {
	if t.MarketSizeUSDBillions == nil {
		return 0
	}
	return *t.MarketSizeUSDBillions
}

func (t InvestmentTrend) CAGR() float64 {
	if t.CAGRPercentage == nil {
		return 0
	}
	return *t.CAGRPercentage
}

// HasQuantitativeData reports whether both growth rate and market size
// are present and non-zero.
func (t InvestmentTrend) HasQuantitativeData() bool {
	return t.CAGR() != 0 && t.MarketSize() != 0
}

// VisualData is a candidate chart reference proposed by the synthesis.
type VisualData struct {
	Title       string `json:"title" validate:"required"`
	SourceURL   string `json:"source_url,omitempty"`
	Description string `json:"description" validate:"required"`
	Relevance   string `json:"relevance" validate:"required"`
}

// TotalMarketSize sums market size across all trends.
func (a *Analysis) TotalMarketSize() float64 {
	total := 0.0
	for _, trend := range a.InvestmentTrends {
		total += trend.MarketSize()
	}
	return total
}

// AverageCAGR averages the growth rate over trends that carry one.
func (a *Analysis) AverageCAGR() float64 {
	sum := 0.0
	count := 0
	for _, trend := range a.InvestmentTrends {
		if trend.CAGR() == 0 {
			continue
		}
		sum += trend.CAGR()
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func (a *Analysis) HighPriorityTrends() int {
	count := 0
	for _, trend := range a.InvestmentTrends {
		if trend.InvestmentPriority == "High" {
			count++
		}
	}
	return count
}
