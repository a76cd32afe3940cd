package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

const (
	pageWidthMM   = 210.0
	marginMM      = 15.0
	contentWidth  = pageWidthMM - 2*marginMM
	bodyFontSize  = 10.0
	lineHeightMM  = 5.0
	tableFontSize = 8.0
)

// FPDFRenderer draws the markdown AST directly with go-pdf/fpdf. It needs
// no external process.
type FPDFRenderer struct{}

func (FPDFRenderer) Name() string {
	return "fpdf"
}

func (FPDFRenderer) Render(_ context.Context, markdown, title, baseDir string) ([]byte, error) {
	source := []byte(markdown)
	doc := goldmark.New(goldmark.WithExtensions(extension.Table)).Parser().Parse(text.NewReader(source))

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetMargins(marginMM, marginMM, marginMM)
	pdf.SetAutoPageBreak(true, marginMM)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", bodyFontSize)

	walker := &fpdfWalker{
		pdf:     pdf,
		tr:      pdf.UnicodeTranslatorFromDescriptor(""),
		source:  source,
		baseDir: baseDir,
	}
	if err := ast.Walk(doc, walker.walk); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("build pdf: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

type fpdfWalker struct {
	pdf       *fpdf.Fpdf
	tr        func(string) string
	source    []byte
	baseDir   string
	size      float64
	bold      bool
	italic    bool
	listLevel int
}

func (w *fpdfWalker) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		w.heading(node, entering)
	case *ast.Paragraph:
		if !entering {
			w.pdf.Ln(lineHeightMM + 1)
		}
	case *ast.Text:
		if entering {
			w.write(string(node.Segment.Value(w.source)))
			if node.SoftLineBreak() {
				w.write(" ")
			}
			if node.HardLineBreak() {
				w.pdf.Ln(lineHeightMM)
			}
		}
	case *ast.Emphasis:
		if node.Level == 2 {
			w.bold = entering
		} else {
			w.italic = entering
		}
		w.applyFont()
	case *ast.List:
		if entering {
			w.listLevel++
		} else {
			w.listLevel--
			if w.listLevel == 0 {
				w.pdf.Ln(2)
			}
		}
	case *ast.ListItem:
		if entering {
			w.pdf.Ln(lineHeightMM)
			w.pdf.SetX(marginMM + float64(w.listLevel)*5)
			w.write("- ")
		}
	case *ast.ThematicBreak:
		if entering {
			w.pdf.Ln(2)
			y := w.pdf.GetY()
			w.pdf.Line(marginMM, y, pageWidthMM-marginMM, y)
			w.pdf.Ln(3)
		}
	case *ast.Image:
		if entering {
			w.image(node)
		}
		return ast.WalkSkipChildren, nil
	case *extast.Table:
		if entering {
			w.table(node)
		}
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func (w *fpdfWalker) heading(n *ast.Heading, entering bool) {
	if !entering {
		w.pdf.Ln(lineHeightMM + 2)
		w.size = 0
		w.applyFont()
		return
	}
	w.pdf.Ln(3)
	switch n.Level {
	case 1:
		w.size = 16
	case 2:
		w.size = 13
	default:
		w.size = 11
	}
	w.pdf.SetFont("Helvetica", "B", w.size)
}

func (w *fpdfWalker) applyFont() {
	style := ""
	if w.bold {
		style += "B"
	}
	if w.italic {
		style += "I"
	}
	size := w.size
	if size == 0 {
		size = bodyFontSize
	}
	w.pdf.SetFont("Helvetica", style, size)
}

func (w *fpdfWalker) write(value string) {
	lineHeight := lineHeightMM
	if w.size > bodyFontSize {
		lineHeight = w.size * 0.5
	}
	w.pdf.Write(lineHeight, w.tr(value))
}

// image embeds a local chart. Remote or unreadable images fall back to
// their alt text so a bad chart never fails the document.
func (w *fpdfWalker) image(n *ast.Image) {
	alt := nodeText(n, w.source)
	destination := string(n.Destination)
	local := destination
	if !filepath.IsAbs(local) {
		local = filepath.Join(w.baseDir, filepath.FromSlash(destination))
	}
	if strings.Contains(destination, "://") {
		local = ""
	}

	if local != "" {
		if _, err := os.Stat(local); err == nil {
			w.pdf.Ln(2)
			w.pdf.ImageOptions(local, marginMM, w.pdf.GetY(), contentWidth*0.8, 0, true, fpdf.ImageOptions{ReadDpi: true}, 0, "")
			if w.pdf.Ok() {
				return
			}
			w.pdf.ClearError()
		}
	}
	w.write("[" + alt + "]")
}

func (w *fpdfWalker) table(n *extast.Table) {
	var rows [][]string
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		var cells []string
		for cell := child.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, nodeText(cell, w.source))
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return
	}

	columns := len(rows[0])
	first := contentWidth * 0.3
	rest := (contentWidth - first) / float64(columns-1)
	if columns == 1 {
		first = contentWidth
	}

	w.pdf.Ln(2)
	for i, row := range rows {
		style := ""
		fill := false
		if i == 0 {
			style = "B"
			fill = true
			w.pdf.SetFillColor(230, 230, 230)
		}
		w.pdf.SetFont("Helvetica", style, tableFontSize)
		w.pdf.SetX(marginMM)
		for j := 0; j < columns; j++ {
			value := ""
			if j < len(row) {
				value = row[j]
			}
			width := rest
			if j == 0 {
				width = first
			}
			w.pdf.CellFormat(width, 6, w.tr(truncate(value, 48)), "1", 0, "L", fill, 0, "")
		}
		w.pdf.Ln(-1)
	}
	w.pdf.Ln(3)
	w.applyFont()
}

func nodeText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if textNode, ok := child.(*ast.Text); ok {
				b.Write(textNode.Segment.Value(source))
				if textNode.SoftLineBreak() {
					b.WriteByte(' ')
				}
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-3]) + "..."
}
