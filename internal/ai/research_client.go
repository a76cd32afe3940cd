package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/iago/market-analysis-back/internal/domain"
	"github.com/iago/market-analysis-back/internal/logging"
)

const researchAPI = "perplexity"

// ResearchResult is the research response: the raw body as received plus
// the extracted message text.
type ResearchResult struct {
	Raw     json.RawMessage `json:"raw"`
	Content string          `json:"content"`
	Images  []ResearchImage `json:"images,omitempty"`
}

type ResearchImage struct {
	ImageURL  string `json:"image_url"`
	OriginURL string `json:"origin_url,omitempty"`
	Height    int    `json:"height,omitempty"`
	Width     int    `json:"width,omitempty"`
}

// Researcher gathers market research for a company.
type Researcher interface {
	Research(ctx context.Context, company domain.CompanyInfo) (ResearchResult, error)
}

type ResearchClientConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Policy     RetryPolicy
	RPS        float64
	HTTPClient *http.Client
	Logger     *logging.ContextLogger
}

type ResearchClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	retrier    *Retrier
}

func NewResearchClient(config ResearchClientConfig) *ResearchClient {
	if strings.TrimSpace(config.BaseURL) == "" {
		config.BaseURL = "https://api.perplexity.ai"
	}
	if strings.TrimSpace(config.Model) == "" {
		config.Model = "sonar-reasoning-pro"
	}
	if config.Policy.Timeout <= 0 {
		config.Policy.Timeout = 120 * time.Second
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}

	return &ResearchClient{
		apiKey:     strings.TrimSpace(config.APIKey),
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		model:      config.Model,
		httpClient: config.HTTPClient,
		retrier:    NewRetrier(researchAPI, config.Policy, config.RPS, config.Logger),
	}
}

func (c *ResearchClient) Available() bool {
	return c.apiKey != ""
}

// Retrier exposes the retry loop so tests can replace the backoff wait.
func (c *ResearchClient) Retrier() *Retrier {
	return c.retrier
}

func (c *ResearchClient) Research(ctx context.Context, company domain.CompanyInfo) (ResearchResult, error) {
	if !c.Available() {
		return ResearchResult{}, fmt.Errorf("%w: %s api key is not configured", ErrClientUnavailable, researchAPI)
	}
	prompt, err := ResearchPrompt(company)
	if err != nil {
		return ResearchResult{}, err
	}

	payload := map[string]any{
		"model":         c.model,
		"return_images": true,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return ResearchResult{}, fmt.Errorf("marshal research payload: %w", err)
	}

	logging.FromContext(ctx, c.retrier.logger).Info("research payload prepared",
		"api_name", researchAPI,
		"model", c.model,
		"prompt_length", len(prompt),
		"timeout_ms", c.retrier.Policy().Timeout,
	)

	var result ResearchResult
	err = c.retrier.Do(ctx, func(attemptCtx context.Context) error {
		var callErr error
		result, callErr = c.callChatCompletionsAPI(attemptCtx, encoded)
		return callErr
	})
	if err != nil {
		return ResearchResult{}, err
	}
	return result, nil
}

func (c *ResearchClient) callChatCompletionsAPI(ctx context.Context, payload []byte) (ResearchResult, error) {
	httpRequest, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/chat/completions",
		bytes.NewReader(payload),
	)
	if err != nil {
		return ResearchResult{}, &CallError{API: researchAPI, Kind: ErrorKindUnexpected, Err: err}
	}
	httpRequest.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Accept", "application/json")

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return ResearchResult{}, transportError(researchAPI, ctx, err)
	}
	defer httpResponse.Body.Close()

	body, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return ResearchResult{}, transportError(researchAPI, ctx, fmt.Errorf("read research body: %w", err))
	}

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode > 299 {
		return ResearchResult{}, protocolError(researchAPI, httpResponse.StatusCode, body)
	}

	var raw chatCompletionsResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return ResearchResult{}, &CallError{API: researchAPI, Kind: ErrorKindUnexpected, Err: fmt.Errorf("decode research json: %w", err)}
	}
	if len(raw.Choices) == 0 {
		return ResearchResult{}, &CallError{API: researchAPI, Kind: ErrorKindUnexpected, Err: errors.New("research response without choices")}
	}

	return ResearchResult{
		Raw:     json.RawMessage(body),
		Content: extractMessageText(raw),
		Images:  raw.Images,
	}, nil
}

type chatCompletionsResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content any    `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Images []ResearchImage `json:"images"`
}

func extractMessageText(response chatCompletionsResponse) string {
	if len(response.Choices) == 0 {
		return ""
	}
	switch typed := response.Choices[0].Message.Content.(type) {
	case string:
		return strings.TrimSpace(typed)
	case []any:
		fragments := make([]string, 0, len(typed))
		for _, item := range typed {
			fragment, ok := item.(map[string]any)
			if !ok {
				continue
			}
			text, _ := fragment["text"].(string)
			if strings.TrimSpace(text) != "" {
				fragments = append(fragments, strings.TrimSpace(text))
			}
		}
		return strings.Join(fragments, "\n")
	default:
		return ""
	}
}
