package quality

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iago/market-analysis-back/internal/domain"
	"github.com/iago/market-analysis-back/internal/policy"
)

var ErrDomainValidation = errors.New("domain validation failed")

const (
	ReasonInsufficientResearch = "insufficient_research"
	ReasonMalformedAnalysis    = "malformed_analysis"
	ReasonGenericAnalysis      = "generic_analysis"
)

// DomainError reports content that was delivered successfully but cannot
// be used. It is never retried.
type DomainError struct {
	Reason  string
	Detail  string
	Phrases []string
	Err     error
}

func (e *DomainError) Error() string {
	switch e.Reason {
	case ReasonInsufficientResearch:
		return "Insufficient data found for company analysis: " + strings.Join(e.Phrases, ", ")
	case ReasonGenericAnalysis:
		return "Analysis too generic: " + e.Detail
	default:
		if e.Err != nil {
			return fmt.Sprintf("Invalid analysis response: %s: %v", e.Detail, e.Err)
		}
		return "Invalid analysis response: " + e.Detail
	}
}

func (e *DomainError) Is(target error) bool {
	return target == ErrDomainValidation
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Research texts containing any of these are unusable. Matching is
// case-sensitive.
var criticalFailurePhrases = []string{
	"cannot find any information",
	"no data available",
	"company does not exist",
	"ANALYSIS NOT POSSIBLE",
}

var strongGenericPhrases = []string{
	"research data insufficient",
	"unable to find specific",
	"no information available",
	"cannot analyze",
	"insufficient data",
}

// CheckResearchSufficiency fails when the research text contains any
// critical failure phrase. The error lists every matched phrase.
func CheckResearchSufficiency(text string) error {
	var found []string
	for _, phrase := range criticalFailurePhrases {
		if strings.Contains(text, phrase) {
			found = append(found, phrase)
		}
	}
	if len(found) == 0 {
		return nil
	}
	return &DomainError{Reason: ReasonInsufficientResearch, Phrases: found}
}

// DetectGeneric applies the genericness rules in order and returns the
// first that matches.
func DetectGeneric(analysis *domain.Analysis) (bool, string) {
	summary := strings.ToLower(analysis.ExecutiveSummary)
	matches := 0
	for _, phrase := range strongGenericPhrases {
		if strings.Contains(summary, phrase) {
			matches++
		}
	}
	if matches >= 2 {
		return true, "Executive summary indicates insufficient company data"
	}

	if len(analysis.InvestmentTrends) == 0 {
		return true, "No investment trends identified"
	}
	if analysis.TotalMarketSize() == 0 {
		return true, "All trends lack market size data"
	}

	withData := 0
	for _, trend := range analysis.InvestmentTrends {
		if trend.HasQuantitativeData() {
			withData++
		}
	}
	if withData < 2 {
		return true, "Most trends lack quantitative market data"
	}
	return false, "Analysis appears to be company-specific"
}

// StripCodeFence removes a single leading ``` or ```json line and a
// single trailing ``` line.
func StripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 {
			trimmed = trimmed[newline+1:]
		} else {
			trimmed = ""
		}
	}
	trimmed = strings.TrimSpace(trimmed)
	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSuffix(trimmed, "```")
	}
	return strings.TrimSpace(trimmed)
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// ParseAnalysis decodes the synthesis text into an Analysis with LinkedIn
// references removed from every string, then applies the genericness and
// schema checks.
func ParseAnalysis(text string) (*domain.Analysis, error) {
	body := StripCodeFence(text)

	var generic any
	decoder := json.NewDecoder(bytes.NewReader([]byte(body)))
	decoder.UseNumber()
	if err := decoder.Decode(&generic); err != nil {
		return nil, &DomainError{Reason: ReasonMalformedAnalysis, Detail: "invalid JSON", Err: err}
	}
	if _, ok := generic.(map[string]any); !ok {
		return nil, &DomainError{Reason: ReasonMalformedAnalysis, Detail: "expected a JSON object"}
	}

	cleaned, err := json.Marshal(policy.StripLinkedInValue(generic))
	if err != nil {
		return nil, &DomainError{Reason: ReasonMalformedAnalysis, Detail: "re-encode cleaned analysis", Err: err}
	}

	var analysis domain.Analysis
	if err := json.Unmarshal(cleaned, &analysis); err != nil {
		return nil, &DomainError{Reason: ReasonMalformedAnalysis, Detail: "unexpected field types", Err: err}
	}

	if generic, reason := DetectGeneric(&analysis); generic {
		return nil, &DomainError{Reason: ReasonGenericAnalysis, Detail: reason}
	}

	if err := structValidator.Struct(&analysis); err != nil {
		return nil, &DomainError{Reason: ReasonMalformedAnalysis, Detail: "schema check failed", Err: err}
	}
	return &analysis, nil
}
