package ai

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/iago/market-analysis-back/internal/domain"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

type researchPromptData struct {
	domain.CompanyInfo
	Location string
}

type synthesisPromptData struct {
	Company  domain.CompanyInfo
	Location string
	Research string
	Date     string
}

// ResearchPrompt renders the research instructions for company.
func ResearchPrompt(company domain.CompanyInfo) (string, error) {
	return renderPrompt("research.tmpl", researchPromptData{
		CompanyInfo: company,
		Location:    location(company),
	})
}

// SynthesisPrompt renders the analysis instructions around the research
// text.
func SynthesisPrompt(company domain.CompanyInfo, research string, now time.Time) (string, error) {
	return renderPrompt("synthesis.tmpl", synthesisPromptData{
		Company:  company,
		Location: location(company),
		Research: research,
		Date:     now.Format("2006-01-02"),
	})
}

func renderPrompt(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func location(company domain.CompanyInfo) string {
	city := strings.TrimSpace(company.City)
	country := strings.TrimSpace(company.Country)
	switch {
	case city != "" && country != "":
		return city + ", " + country
	case country != "":
		return country
	default:
		return city
	}
}
