// Package extract talks to the document extraction agent that turns an
// invoice PDF into structured data.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/go-authgate/qbo-bridge/qbo"
)

// DefaultTimeout is generous because the agent runs OCR before answering.
const DefaultTimeout = 120 * time.Second

const maxAgentResponse = 5 << 20

// Response is the agent's loosely shaped answer.
type Response map[string]any

// Config locates the agent.
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client calls the extraction agent.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient returns a client. It fails when the agent URL or key is unset.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("extraction agent URL is not set")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("extraction agent API key is not set")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, httpClient: httpClient, logger: logger}, nil
}

var jsonBlock = regexp.MustCompile(`(?s)\{.*\}`)

// Process asks the agent to read the document at documentURL.
func (c *Client) Process(ctx context.Context, documentURL string) (Response, error) {
	if documentURL == "" {
		return nil, errors.New("document URL is empty")
	}

	payload, err := json.Marshal(map[string]string{"document_url": documentURL})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, qbo.WrapTransportError("document extraction", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAgentResponse))
	if err != nil {
		return nil, qbo.WrapTransportError("document extraction", err)
	}

	c.logger.Info("document extraction finished",
		"status", resp.StatusCode,
		"content_type", resp.Header.Get("Content-Type"),
		"bytes", len(body),
		"elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &qbo.UpstreamError{StatusCode: resp.StatusCode, Body: body}
	}

	return parseResponse(body), nil
}

// parseResponse accepts JSON, JSON embedded in prose, or plain text.
func parseResponse(body []byte) Response {
	var out Response
	if err := json.Unmarshal(body, &out); err == nil && out != nil {
		return out
	}
	if block := jsonBlock.Find(body); block != nil {
		if err := json.Unmarshal(block, &out); err == nil && out != nil {
			return out
		}
		return Response{"raw_text": string(body), "error": "could not parse response as JSON"}
	}
	return Response{"raw_text": string(body)}
}
