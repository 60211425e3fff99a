package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bloops-games/partyroom/internal/logging"
	"golang.org/x/time/rate"
)

const (
	flowCategory = "category"
	flowWords    = "words"
	flowRiddle   = "riddle"
	flowSentence = "sentence"
)

type Config struct {
	URL     string        `envconfig:"PARTYROOM_CONTENT_URL"`
	Timeout time.Duration `envconfig:"PARTYROOM_CONTENT_TIMEOUT" default:"10s"`
	RPS     float64       `envconfig:"PARTYROOM_CONTENT_RPS" default:"5"`
	Burst   int           `envconfig:"PARTYROOM_CONTENT_BURST" default:"5"`
}

func NewClient(config *Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(config.URL, "/"),
		http:    &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RPS), config.Burst),
	}
}

var _ Generator = (*Client)(nil)

// Client posts JSON requests to <baseURL>/<flow>.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

func (c *Client) Category(ctx context.Context, req CategoryRequest) (CategoryResponse, error) {
	var resp CategoryResponse
	if err := c.call(ctx, flowCategory, req, &resp); err != nil {
		return resp, err
	}
	if strings.TrimSpace(resp.Category) == "" {
		return resp, ErrEmptyResponse
	}
	return resp, nil
}

func (c *Client) Words(ctx context.Context, req WordsRequest) (WordsResponse, error) {
	var resp WordsResponse
	if err := c.call(ctx, flowWords, req, &resp); err != nil {
		return resp, err
	}
	if len(resp.Words) == 0 {
		return resp, ErrEmptyResponse
	}
	return resp, nil
}

func (c *Client) Riddle(ctx context.Context, req RiddleRequest) (RiddleResponse, error) {
	var resp RiddleResponse
	if err := c.call(ctx, flowRiddle, req, &resp); err != nil {
		return resp, err
	}
	if resp.Category == "" || resp.SecretWord == "" {
		return resp, ErrEmptyResponse
	}
	return resp, nil
}

func (c *Client) SentenceTemplate(ctx context.Context, req SentenceRequest) (SentenceResponse, error) {
	var resp SentenceResponse
	if err := c.call(ctx, flowSentence, req, &resp); err != nil {
		return resp, err
	}
	if !strings.Contains(resp.Template, "[") {
		return resp, fmt.Errorf("template without blanks: %w", ErrEmptyResponse)
	}
	return resp, nil
}

func (c *Client) call(ctx context.Context, flow string, in, out interface{}) error {
	logger := logging.FromContext(ctx).Named("content.call")

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+flow, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	logger.Debugf("flow %s answered %d in %s", flow, resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("flow %s: unexpected status %d", flow, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
