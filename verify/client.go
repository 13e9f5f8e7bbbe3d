// Package verify submits text to the remote phishing classifier.
package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"phishcheck/metrics"
)

const (
	DefaultBaseURL = "https://pubsub-api-549920649116.us-central1.run.app/"

	analyzePath      = "analize-text"
	maxResponseBytes = 64 << 10
	maxErrorSnippet  = 200
)

// Result is the classifier's verdict. Score is not range-checked.
type Result struct {
	Score  float64
	Reason string

	Network *NetworkMetrics // timings of the request that produced it
}

type Verifier interface {
	Verify(ctx context.Context, text string) (Result, error)
}

type Client struct {
	endpoint string
	http     *TracedClient
}

type analyzeRequest struct {
	Text string `json:"text"`
}

type analyzeResponse struct {
	Score  *float64 `json:"score"`
	Reason string   `json:"reason"`
}

// NewClient targets <baseURL>/analize-text.
func NewClient(baseURL string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid api url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid api url %q: missing host", baseURL)
	}
	return &Client{
		endpoint: strings.TrimRight(baseURL, "/") + "/" + analyzePath,
		http:     NewTracedClient(),
	}, nil
}

func (c *Client) Endpoint() string { return c.endpoint }

// Warm pre-opens a connection to the classifier host.
func (c *Client) Warm(ctx context.Context) time.Duration {
	return c.http.WarmConnection(ctx, c.endpoint)
}

// Verify sends one request. There is no retry; the caller bounds it with ctx.
func (c *Client) Verify(ctx context.Context, text string) (Result, error) {
	start := time.Now()
	res, err := c.do(ctx, text)
	outcome := "scored"
	if err != nil {
		outcome = string(KindOf(err))
	}
	metrics.RecordVerification(outcome, time.Since(start))
	return res, err
}

func (c *Client) do(ctx context.Context, text string) (Result, error) {
	body, err := json.Marshal(analyzeRequest{Text: text})
	if err != nil {
		return Result{}, &Error{Kind: KindTransport, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, &Error{Kind: KindTransport, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			return Result{}, &Error{Kind: KindDecode, Err: err}
		}
		return Result{}, &Error{Kind: KindTransport, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := strings.TrimSpace(string(resp.Body))
		if len(snippet) > maxErrorSnippet {
			snippet = snippet[:maxErrorSnippet]
		}
		var detail error
		if snippet != "" {
			detail = errors.New(snippet)
		}
		return Result{}, &Error{Kind: KindStatus, StatusCode: resp.StatusCode, Err: detail}
	}

	var parsed analyzeResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return Result{}, &Error{Kind: KindDecode, Err: err}
	}
	if parsed.Score == nil {
		return Result{}, &Error{Kind: KindDecode, Err: errors.New("response has no score")}
	}

	return Result{
		Score:   *parsed.Score,
		Reason:  parsed.Reason,
		Network: resp.Metrics,
	}, nil
}
