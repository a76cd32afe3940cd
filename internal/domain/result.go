package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

var ErrInvalidResult = errors.New("invalid result payload")

// Overview is the key/value synopsis of a finished analysis.
type Overview struct {
	CompanyName             string  `json:"company_name"`
	AnalysisDate            string  `json:"analysis_date"`
	ExecutiveSummary        string  `json:"executive_summary"`
	TotalMarketSizeBillions float64 `json:"total_market_size_usd_billions"`
	AverageCAGR             float64 `json:"average_cagr_percentage"`
	HighPriorityTrends      int     `json:"high_priority_trends"`
}

type Actions struct {
	Recommendations          []string `json:"recommendations"`
	ImplementationPriorities []string `json:"implementation_priorities"`
}

type Analytics struct {
	Images []string `json:"images"`
}

// ResultPayload is the normalized output of a completed job. Document is
// the rendered PDF; encoding/json emits it as base64 and as null when
// rendering failed.
type ResultPayload struct {
	Overview  Overview  `json:"overview"`
	Actions   Actions   `json:"actions"`
	Analytics Analytics `json:"analytics"`
	Document  []byte    `json:"document"`
}

// NewResultPayload validates the sections and returns the payload with
// images sorted.
func NewResultPayload(overview Overview, actions Actions, images []string, document []byte) (*ResultPayload, error) {
	if strings.TrimSpace(overview.ExecutiveSummary) == "" {
		return nil, fmt.Errorf("%w: overview executive summary is empty", ErrInvalidResult)
	}
	sorted := make([]string, 0, len(images))
	for _, image := range images {
		if !filepath.IsAbs(image) {
			return nil, fmt.Errorf("%w: image path %q is not absolute", ErrInvalidResult, image)
		}
		sorted = append(sorted, image)
	}
	sort.Strings(sorted)

	if actions.Recommendations == nil {
		actions.Recommendations = []string{}
	}
	if actions.ImplementationPriorities == nil {
		actions.ImplementationPriorities = []string{}
	}

	var doc []byte
	if len(document) > 0 {
		doc = append([]byte(nil), document...)
	}

	return &ResultPayload{
		Overview:  overview,
		Actions:   actions,
		Analytics: Analytics{Images: sorted},
		Document:  doc,
	}, nil
}

func (p *ResultPayload) HasDocument() bool {
	return p != nil && len(p.Document) > 0
}

func (p *ResultPayload) Clone() *ResultPayload {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Actions.Recommendations = cloneStrings(p.Actions.Recommendations)
	clone.Actions.ImplementationPriorities = cloneStrings(p.Actions.ImplementationPriorities)
	clone.Analytics.Images = cloneStrings(p.Analytics.Images)
	if p.Document != nil {
		clone.Document = append([]byte(nil), p.Document...)
	}
	return &clone
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	return append(make([]string, 0, len(values)), values...)
}
