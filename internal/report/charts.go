package report

import (
	"net/url"
	"strings"

	"github.com/iago/market-analysis-back/internal/domain"
)

var trustedDomains = []string{
	"grandviewresearch.com",
	"precedenceresearch.com",
	"gminsights.com",
	"futuremarketinsights.com",
	"marketsandmarkets.com",
	"zionmarketresearch.com",
	"polarismarketresearch.com",
	"verifiedmarketresearch.com",
	"statista.com",
	"fortunebusinessinsights.com",
}

var genericSources = []string{
	"vecteezy.com", "freepik.com", "shutterstock.com",
	"istockphoto.com", "depositphotos.com", "gettyimages.com",
	"pexels.com", "unsplash.com", "youtube.com", "youtu.be",
	"vimeo.com", "economicsdiscussion.net", "investopedia.com",
	"wikipedia.org", "examples.com",
}

var genericKeywords = []string{
	"vector", "illustration", "concept", "icon", "template",
	"example", "sample", "puzzle", "jigsaw", "assembling",
	"matching-together", "visualizing", "problem-solving",
	"stock-photo", "stock-illustration", "diagram-theory",
	"introduction", "overview", "what-is", "guide-to",
}

var marketDataKeywords = []string{
	"market size", "cagr", "forecast", "revenue",
	"billion", "million", "$", "growth rate",
	"compound annual", "market share", "segmentation",
}

// IsTrustedDomain reports whether rawURL points at one of the known market
// research publishers.
func IsTrustedDomain(rawURL string) bool {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	host := strings.ReplaceAll(strings.ToLower(parsed.Host), "www.", "")
	for _, trusted := range trustedDomains {
		if strings.Contains(host, trusted) {
			return true
		}
	}
	return false
}

// IsGenericImage flags stock photography, video and illustration content.
func IsGenericImage(rawURL, title, description string) bool {
	lowerURL := strings.ToLower(rawURL)
	for _, source := range genericSources {
		if strings.Contains(lowerURL, source) {
			return true
		}
	}
	combined := lowerURL + " " + strings.ToLower(title) + " " + strings.ToLower(description)
	for _, keyword := range genericKeywords {
		if strings.Contains(combined, keyword) {
			return true
		}
	}
	return false
}

// HasMarketData reports whether the chart text mentions market figures.
func HasMarketData(title, description string) bool {
	combined := strings.ToLower(title + " " + description)
	for _, keyword := range marketDataKeywords {
		if strings.Contains(combined, keyword) {
			return true
		}
	}
	return false
}

// SelectCharts keeps the visuals worth embedding, in input order.
func SelectCharts(visuals []domain.VisualData) []domain.VisualData {
	selected := make([]domain.VisualData, 0, len(visuals))
	for _, visual := range visuals {
		source := strings.TrimSpace(visual.SourceURL)
		if source == "" {
			continue
		}
		if IsGenericImage(source, visual.Title, visual.Description) {
			continue
		}
		if IsTrustedDomain(source) || HasMarketData(visual.Title, visual.Description) {
			selected = append(selected, visual)
		}
	}
	return selected
}
