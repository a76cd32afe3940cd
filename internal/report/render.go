package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iago/market-analysis-back/internal/logging"
)

var ErrRenderFailed = errors.New("document rendering failed")

// Renderer turns report markdown into PDF bytes. Relative image paths are
// resolved against baseDir.
type Renderer interface {
	Name() string
	Render(ctx context.Context, markdown, title, baseDir string) ([]byte, error)
}

// RenderError collects the failure of every renderer that was tried.
type RenderError struct {
	Failures []error
}

func (e *RenderError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, failure := range e.Failures {
		parts = append(parts, failure.Error())
	}
	return fmt.Sprintf("%s: %s", ErrRenderFailed, strings.Join(parts, "; "))
}

func (e *RenderError) Is(target error) bool {
	return target == ErrRenderFailed
}

func (e *RenderError) Unwrap() []error {
	return e.Failures
}

// ChainRenderer tries each renderer in order and returns the first
// successful document.
type ChainRenderer struct {
	renderers []Renderer
	logger    *logging.ContextLogger
}

func NewChainRenderer(logger *logging.ContextLogger, renderers ...Renderer) *ChainRenderer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &ChainRenderer{renderers: renderers, logger: logger}
}

func (c *ChainRenderer) Name() string {
	names := make([]string, 0, len(c.renderers))
	for _, renderer := range c.renderers {
		names = append(names, renderer.Name())
	}
	return strings.Join(names, ">")
}

func (c *ChainRenderer) Render(ctx context.Context, markdown, title, baseDir string) ([]byte, error) {
	logger := logging.FromContext(ctx, c.logger)
	var failures []error
	for _, renderer := range c.renderers {
		document, err := renderer.Render(ctx, markdown, title, baseDir)
		if err == nil && len(document) > 0 {
			logger.Info("document rendered", "renderer", renderer.Name(), "bytes", len(document))
			return document, nil
		}
		if err == nil {
			err = errors.New("empty document")
		}
		logger.Warn("renderer failed", "renderer", renderer.Name(), "error", err)
		failures = append(failures, fmt.Errorf("%s: %w", renderer.Name(), err))
	}
	if len(failures) == 0 {
		failures = append(failures, errors.New("no renderer configured"))
	}
	return nil, &RenderError{Failures: failures}
}
