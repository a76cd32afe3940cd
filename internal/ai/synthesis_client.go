package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/iago/market-analysis-back/internal/domain"
	"github.com/iago/market-analysis-back/internal/logging"
)

const synthesisAPI = "claude"

// Synthesizer turns research into the raw structured analysis text.
type Synthesizer interface {
	Synthesize(ctx context.Context, company domain.CompanyInfo, research ResearchResult) (string, error)
}

type SynthesisClientConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	Policy     RetryPolicy
	RPS        float64
	HTTPClient *http.Client
	Logger     *logging.ContextLogger
	Now        func() time.Time
}

type SynthesisClient struct {
	apiKey    string
	model     string
	maxTokens int
	messages  *anthropic.MessageService
	retrier   *Retrier
	now       func() time.Time
}

func NewSynthesisClient(config SynthesisClientConfig) *SynthesisClient {
	if strings.TrimSpace(config.Model) == "" {
		config.Model = "claude-sonnet-4-20250514"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 15000
	}
	if config.Policy.Timeout <= 0 {
		config.Policy.Timeout = 180 * time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	// The retrier owns the retry policy, so the SDK must not retry.
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(config.APIKey)),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(config.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if config.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(config.HTTPClient))
	}
	client := anthropic.NewClient(opts...)

	return &SynthesisClient{
		apiKey:    strings.TrimSpace(config.APIKey),
		model:     config.Model,
		maxTokens: config.MaxTokens,
		messages:  &client.Messages,
		retrier:   NewRetrier(synthesisAPI, config.Policy, config.RPS, config.Logger),
		now:       config.Now,
	}
}

func (c *SynthesisClient) Available() bool {
	return c.apiKey != ""
}

func (c *SynthesisClient) Retrier() *Retrier {
	return c.retrier
}

func (c *SynthesisClient) Synthesize(ctx context.Context, company domain.CompanyInfo, research ResearchResult) (string, error) {
	if !c.Available() {
		return "", fmt.Errorf("%w: %s api key is not configured", ErrClientUnavailable, synthesisAPI)
	}

	researchText := research.Content
	if len(research.Raw) > 0 {
		researchText = string(research.Raw)
	}
	prompt, err := SynthesisPrompt(company, researchText, c.now())
	if err != nil {
		return "", err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	logging.FromContext(ctx, c.retrier.logger).Info("synthesis payload prepared",
		"api_name", synthesisAPI,
		"model", c.model,
		"max_tokens", c.maxTokens,
		"prompt_length", len(prompt),
	)

	var text string
	err = c.retrier.Do(ctx, func(attemptCtx context.Context) error {
		var callErr error
		text, callErr = c.callMessagesAPI(attemptCtx, params)
		return callErr
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *SynthesisClient) callMessagesAPI(ctx context.Context, params anthropic.MessageNewParams) (string, error) {
	response, err := c.messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", protocolError(synthesisAPI, apiErr.StatusCode, []byte(apiErr.Error()))
		}
		return "", transportError(synthesisAPI, ctx, err)
	}

	var text strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", &CallError{API: synthesisAPI, Kind: ErrorKindUnexpected, Err: errors.New("synthesis response without text output")}
	}
	return text.String(), nil
}
