package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var htmlPage = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
@page { size: A4; margin: 20mm; }
body { font-family: 'Segoe UI', Helvetica, Arial, sans-serif; line-height: 1.6; color: #333; }
h1 { color: #2c3e50; border-bottom: 3px solid #3498db; padding-bottom: 10px; font-size: 28px; }
h2 { color: #2980b9; margin-top: 30px; font-size: 22px; border-left: 4px solid #3498db; padding-left: 15px; }
h3 { color: #34495e; font-size: 18px; margin-top: 25px; }
table { border-collapse: collapse; width: 100%; margin: 15px 0; font-size: 12px; }
th, td { border: 1px solid #ddd; padding: 12px 8px; text-align: left; }
th { background-color: #3498db; color: white; }
tr:nth-child(even) { background-color: #f9f9f9; }
img { max-width: 100%; height: auto; margin: 15px 0; border: 1px solid #ddd; display: block; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// RenderHTML converts the report markdown to a standalone HTML page whose
// relative image sources point at absolute file URLs under baseDir.
func RenderHTML(markdown, title, baseDir string) (string, error) {
	var body bytes.Buffer
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	if err := md.Convert([]byte(markdown), &body); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}

	var pageBuf bytes.Buffer
	if err := htmlPage.Execute(&pageBuf, struct {
		Title string
		Body  template.HTML
	}{Title: title, Body: template.HTML(body.String())}); err != nil {
		return "", fmt.Errorf("render html page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(&pageBuf)
	if err != nil {
		return "", fmt.Errorf("parse html page: %w", err)
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("resolve base dir: %w", err)
	}
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || src == "" || strings.Contains(src, "://") {
			return
		}
		local := src
		if !filepath.IsAbs(local) {
			local = filepath.Join(absBase, filepath.FromSlash(src))
		}
		img.SetAttr("src", (&url.URL{Scheme: "file", Path: filepath.ToSlash(local)}).String())
	})
	return doc.Html()
}

type HTMLRendererConfig struct {
	Timeout         time.Duration
	AllocatorOption []chromedp.ExecAllocatorOption
}

// HTMLRenderer prints the HTML rendition through headless Chrome. It is
// the fallback when the native renderer fails.
type HTMLRenderer struct {
	timeout time.Duration
	options []chromedp.ExecAllocatorOption
}

func NewHTMLRenderer(config HTMLRendererConfig) *HTMLRenderer {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	options := config.AllocatorOption
	if len(options) == 0 {
		options = append(options, chromedp.DefaultExecAllocatorOptions[:]...)
		options = append(options, chromedp.Flag("allow-file-access-from-files", true))
	}
	return &HTMLRenderer{timeout: config.Timeout, options: options}
}

func (r *HTMLRenderer) Name() string {
	return "chromedp"
}

func (r *HTMLRenderer) Render(ctx context.Context, markdown, title, baseDir string) ([]byte, error) {
	html, err := RenderHTML(markdown, title, baseDir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create render dir: %w", err)
	}
	file, err := os.CreateTemp(baseDir, ".report-*.html")
	if err != nil {
		return nil, fmt.Errorf("create html file: %w", err)
	}
	defer os.Remove(file.Name())
	if _, err := file.WriteString(html); err != nil {
		file.Close()
		return nil, fmt.Errorf("write html file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("close html file: %w", err)
	}
	absPath, err := filepath.Abs(file.Name())
	if err != nil {
		return nil, err
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, r.options...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	runCtx, cancel := context.WithTimeout(browserCtx, r.timeout)
	defer cancel()

	var document []byte
	err = chromedp.Run(runCtx,
		chromedp.Navigate((&url.URL{Scheme: "file", Path: filepath.ToSlash(absPath)}).String()),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				Do(ctx)
			if err != nil {
				return err
			}
			document = data
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	if len(document) == 0 {
		return nil, errors.New("print pdf: empty document")
	}
	return document, nil
}
