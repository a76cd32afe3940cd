package report

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/iago/market-analysis-back/internal/logging"
)

const imageUserAgent = "Mozilla/5.0 (compatible; market-analysis-back/1.0; +chart-fetcher)"

// maxImageBytes bounds a single chart download.
const maxImageBytes = 20 << 20

type DownloaderConfig struct {
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.ContextLogger
}

// Downloader fetches chart images into a run's images directory.
type Downloader struct {
	timeout    time.Duration
	httpClient *http.Client
	logger     *logging.ContextLogger
}

func NewDownloader(config DownloaderConfig) *Downloader {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if config.Logger == nil {
		config.Logger = logging.Nop()
	}
	return &Downloader{
		timeout:    config.Timeout,
		httpClient: config.HTTPClient,
		logger:     config.Logger,
	}
}

// ChartFilename derives a stable file name for rawURL.
func ChartFilename(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	ext := ".jpg"
	if parsed, err := url.Parse(rawURL); err == nil {
		if found := path.Ext(parsed.Path); found != "" {
			ext = found
		}
	}
	return "chart_" + hex.EncodeToString(sum[:8]) + ext
}

// Download stores the image behind rawURL under dir and returns the local
// path. A file that already exists is reused without a request.
func (d *Downloader) Download(ctx context.Context, rawURL, dir string) (string, error) {
	logger := logging.FromContext(ctx, d.logger)
	target := filepath.Join(dir, ChartFilename(rawURL))

	if info, err := os.Stat(target); err == nil && info.Size() > 0 {
		logger.Debug("chart already downloaded", "url", rawURL, "path", target)
		return target, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create images dir: %w", err)
	}

	requestCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(requestCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create image request: %w", err)
	}
	request.Header.Set("User-Agent", imageUserAgent)

	response, err := d.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return "", fmt.Errorf("download image: status %d", response.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("read image body: %w", err)
	}
	if len(body) > maxImageBytes {
		return "", errors.New("download image: body too large")
	}
	if len(body) == 0 {
		return "", errors.New("download image: empty body")
	}

	// Write through a temp file so concurrent runs never see a partial image.
	tmp, err := os.CreateTemp(dir, ".chart-*")
	if err != nil {
		return "", fmt.Errorf("create temp image: %w", err)
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close image: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("store image: %w", err)
	}

	trust := "alternative source"
	if IsTrustedDomain(rawURL) {
		trust = "trusted source"
	}
	logger.Info("chart downloaded", "url", rawURL, "path", target, "source", trust, "bytes", len(body))
	return target, nil
}
