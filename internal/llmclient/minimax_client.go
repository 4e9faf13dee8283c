// internal/llmclient/minimax_client.go
package llmclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tasker-cli/api/schemas"
	"github.com/xkilldash9x/tasker-cli/internal/config"
)

// MiniMaxClient implements schemas.LLMClient against a chatcompletion_v2
// style endpoint.
type MiniMaxClient struct {
	apiKey     string
	endpoint   string
	model      string
	maxTokens  int
	httpClient *http.Client
	logger     *zap.Logger
}

// -- Wire Structures (internal to this file) --

type chatMessage struct {
	Role string `json:"role"`
	// Content is either a plain string or a list of contentPart.
	Content any `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	BaseResp struct {
		StatusCode int    `json:"status_code"`
		StatusMsg  string `json:"status_msg"`
	} `json:"base_resp"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewMiniMaxClient initializes the client.
func NewMiniMaxClient(cfg config.EngineConfig, logger *zap.Logger) (*MiniMaxClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("engine API key is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("engine base URL is required")
	}

	return &MiniMaxClient{
		apiKey:    cfg.APIKey,
		endpoint:  cfg.BaseURL + "/v1/text/chatcompletion_v2",
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		httpClient: &http.Client{
			Timeout: cfg.DecideTimeout,
		},
		logger: logger.Named("llm_client.minimax"),
	}, nil
}

// Generate sends the prompts (plus an optional screenshot) to the engine and
// returns the raw reply text, retrying transient transport errors. A request
// rejected with 400 while carrying an image is retried once text-only, since
// some deployments only accept string content.
func (c *MiniMaxClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 90 * time.Second
	b.MaxInterval = 15 * time.Second

	var responseContent string

	operation := func() error {
		content := c.buildUserContent(req)
		reply, status, err := c.doRequest(ctx, req.SystemPrompt, content)
		if err == nil && status == http.StatusBadRequest && req.Image != nil {
			// Fall back to text-only with a note about the missing image.
			fallback := req.UserPrompt + "\n\n(A screenshot was captured but could not be attached; use the goal and steps above.)"
			reply, status, err = c.doRequest(ctx, req.SystemPrompt, fallback)
		}
		if err != nil {
			c.logger.Warn("Network error during engine request, retrying...", zap.Error(err))
			return err
		}
		if status != http.StatusOK {
			return c.handleAPIError(status, reply)
		}

		var payload chatResponse
		if err := json.Unmarshal([]byte(reply), &payload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}
		if payload.BaseResp.StatusCode != 0 {
			return backoff.Permanent(fmt.Errorf("engine error: %s (status %d)", payload.BaseResp.StatusMsg, payload.BaseResp.StatusCode))
		}
		if len(payload.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("engine returned no choices"))
		}

		responseContent = payload.Choices[0].Message.Content
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return responseContent, nil
}

// Close releases client resources. The shared http.Client needs none.
func (c *MiniMaxClient) Close() error { return nil }

func (c *MiniMaxClient) buildUserContent(req schemas.GenerationRequest) any {
	if req.Image == nil || len(req.Image.Data) == 0 {
		return req.UserPrompt
	}
	mime := req.Image.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	b64 := base64.StdEncoding.EncodeToString(req.Image.Data)
	return []contentPart{
		{Type: "text", Text: req.UserPrompt},
		{Type: "image_url", ImageURL: &imageURL{URL: fmt.Sprintf("data:%s;base64,%s", mime, b64)}},
	}
}

// doRequest posts one chat completion and returns the raw body and status.
func (c *MiniMaxClient) doRequest(ctx context.Context, systemPrompt string, userContent any) (string, int, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContent},
		},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", 0, backoff.Permanent(fmt.Errorf("failed to marshal request payload: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(body))
	if err != nil {
		return "", 0, backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", 0, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("Engine request complete",
		zap.Duration("duration", time.Since(start)),
		zap.Int("status", resp.StatusCode),
	)
	return string(respBody), resp.StatusCode, nil
}

func (c *MiniMaxClient) handleAPIError(statusCode int, body string) error {
	c.logger.Error("Engine API returned error status", zap.Int("status", statusCode), zap.String("response", truncate(body, 500)))
	err := fmt.Errorf("engine API error: status %d, body: %s", statusCode, truncate(body, 500))

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError:
		return err // Transient errors, retry.
	default:
		return backoff.Permanent(err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
