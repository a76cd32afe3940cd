package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/iago/market-analysis-back/internal/domain"
	"github.com/iago/market-analysis-back/internal/logging"
	"github.com/iago/market-analysis-back/internal/policy"
)

// TimestampLayout names every artifact of a run.
const TimestampLayout = "20060102_150405"

// ImageFetcher stores a remote image under dir and returns its local path.
type ImageFetcher interface {
	Download(ctx context.Context, rawURL, dir string) (string, error)
}

type FormatterConfig struct {
	OutputDir string
	Fetcher   ImageFetcher
	Renderer  Renderer
	Logger    *logging.ContextLogger
}

// Formatter turns a validated analysis into the persisted report artifacts
// and the job result payload.
type Formatter struct {
	outputDir string
	fetcher   ImageFetcher
	renderer  Renderer
	logger    *logging.ContextLogger
}

// Run identifies one pipeline execution. Its Stem names every artifact of
// the run so concurrent jobs for the same company never share a file.
type Run struct {
	ID      string
	Company string
	At      time.Time
}

const runIDLength = 8

// Stem is <safe company>_<timestamp>_<job id prefix>.
func (r Run) Stem() string {
	stem := SafeFilename(r.Company) + "_" + r.At.Format(TimestampLayout)
	if id := shortRunID(r.ID); id != "" {
		stem += "_" + id
	}
	return stem
}

func shortRunID(id string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(id) {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			b.WriteRune(c)
			if b.Len() == runIDLength {
				break
			}
		}
	}
	return b.String()
}

// Artifacts lists the files written for one run.
type Artifacts struct {
	Markdown   string
	Structured string
	Document   string
	ImagesDir  string
}

func NewFormatter(config FormatterConfig) *Formatter {
	if strings.TrimSpace(config.OutputDir) == "" {
		config.OutputDir = "output"
	}
	if config.Logger == nil {
		config.Logger = logging.Nop()
	}
	if config.Fetcher == nil {
		config.Fetcher = NewDownloader(DownloaderConfig{Logger: config.Logger})
	}
	if config.Renderer == nil {
		config.Renderer = FPDFRenderer{}
	}
	return &Formatter{
		outputDir: config.OutputDir,
		fetcher:   config.Fetcher,
		renderer:  config.Renderer,
		logger:    config.Logger,
	}
}

func (f *Formatter) OutputDir() string {
	return f.outputDir
}

// Format builds the markdown report, persists it with the structured JSON,
// renders the PDF and assembles the result payload. A rendering failure is
// logged and leaves the payload without a document.
func (f *Formatter) Format(ctx context.Context, analysis *domain.Analysis, run Run) (*domain.ResultPayload, Artifacts, error) {
	logger := logging.FromContext(ctx, f.logger)
	companyName := run.Company
	stem := run.Stem()
	artifacts := Artifacts{ImagesDir: filepath.Join(f.outputDir, "images_"+stem)}

	if err := os.MkdirAll(f.outputDir, 0o755); err != nil {
		return nil, artifacts, fmt.Errorf("create output dir: %w", err)
	}

	charts, images := f.collectCharts(ctx, analysis.VisualData, artifacts.ImagesDir)
	markdown := BuildMarkdown(analysis, companyName, charts)
	logger.Info("report formatted", "charts", len(charts), "images", len(images), "output_length", len(markdown))

	artifacts.Markdown = filepath.Join(f.outputDir, "executive_analysis_"+stem+".md")
	if err := os.WriteFile(artifacts.Markdown, []byte(markdown), 0o644); err != nil {
		return nil, artifacts, fmt.Errorf("write markdown report: %w", err)
	}

	structured, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return nil, artifacts, fmt.Errorf("encode structured analysis: %w", err)
	}
	artifacts.Structured = filepath.Join(f.outputDir, "structured_analysis_"+stem+".json")
	if err := os.WriteFile(artifacts.Structured, structured, 0o644); err != nil {
		return nil, artifacts, fmt.Errorf("write structured analysis: %w", err)
	}

	title := policy.CleanCompanyName(companyName) + " - Strategic Analysis"
	started := time.Now()
	document, err := f.renderer.Render(ctx, markdown, title, f.outputDir)
	if err != nil {
		logger.Exception(err, "pdf generation failed", "duration_ms", time.Since(started), "step", "pdf_failed")
		document = nil
	} else {
		path := filepath.Join(f.outputDir, "structured_analysis_"+stem+".pdf")
		if writeErr := os.WriteFile(path, document, 0o644); writeErr != nil {
			logger.Warn("pdf could not be saved", "path", path, "error", writeErr)
		} else {
			artifacts.Document = path
		}
		logger.Info("pdf generated", "duration_ms", time.Since(started), "bytes", len(document))
	}

	payload, err := domain.NewResultPayload(
		domain.Overview{
			CompanyName:             policy.CleanCompanyName(firstNonEmpty(analysis.CompanyName, companyName)),
			AnalysisDate:            analysis.AnalysisDate,
			ExecutiveSummary:        analysis.ExecutiveSummary,
			TotalMarketSizeBillions: analysis.TotalMarketSize(),
			AverageCAGR:             analysis.AverageCAGR(),
			HighPriorityTrends:      analysis.HighPriorityTrends(),
		},
		domain.Actions{
			Recommendations:          analysis.KeyStrategicRecommendations,
			ImplementationPriorities: analysis.ImplementationPriorities,
		},
		images,
		document,
	)
	if err != nil {
		return nil, artifacts, err
	}
	return payload, artifacts, nil
}

// collectCharts downloads the selected charts. Failed downloads keep the
// remote URL in the report and are not listed as images.
func (f *Formatter) collectCharts(ctx context.Context, visuals []domain.VisualData, imagesDir string) ([]ChartImage, []string) {
	logger := logging.FromContext(ctx, f.logger)
	selected := SelectCharts(visuals)
	charts := make([]ChartImage, 0, len(selected))
	seen := make(map[string]struct{}, len(selected))
	var images []string

	for _, visual := range selected {
		chart := ChartImage{
			Title:       visual.Title,
			Description: visual.Description,
			SourceURL:   visual.SourceURL,
			Ref:         visual.SourceURL,
		}
		local, err := f.fetcher.Download(ctx, visual.SourceURL, imagesDir)
		if err != nil {
			logger.Warn("chart download failed", "url", visual.SourceURL, "error", err)
			charts = append(charts, chart)
			continue
		}
		if rel, relErr := filepath.Rel(f.outputDir, local); relErr == nil {
			chart.Ref = filepath.ToSlash(rel)
		}
		if abs, absErr := filepath.Abs(local); absErr == nil {
			chart.LocalPath = abs
			if _, dup := seen[abs]; !dup {
				seen[abs] = struct{}{}
				images = append(images, abs)
			}
		}
		charts = append(charts, chart)
	}
	sort.Strings(images)
	return charts, images
}

// SafeFilename turns a company name into a lowercase file name fragment.
func SafeFilename(name string) string {
	if before, _, found := strings.Cut(name, "|"); found {
		name = strings.TrimSpace(before)
	}
	name = strings.NewReplacer(
		"<", "", ">", "", ":", "", `"`, "", "|", "",
		"?", "", "*", "", `\`, "", "/", "",
	).Replace(name)
	name = strings.ToLower(strings.ReplaceAll(name, " ", "_"))
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	return strings.Trim(name, "_")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
