package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"relevancy/internal/models"
)

// Predictor asks the remote service to score a stored spreadsheet against a query.
type Predictor interface {
	Predict(ctx context.Context, query, filePath string) (*models.PredictionResult, error)
}

// Client posts prediction requests to one fixed endpoint.
type Client struct {
	endpoint string
	client   *http.Client
}

// NewClient builds a Client. A zero timeout keeps the transport default.
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// newClientWithHTTP is used by tests to inject an httptest client.
func newClientWithHTTP(endpoint string, hc *http.Client) *Client {
	return &Client{endpoint: endpoint, client: hc}
}

// Endpoint returns the configured URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Predict issues exactly one POST; it never retries.
func (c *Client) Predict(ctx context.Context, query, filePath string) (*models.PredictionResult, error) {
	body, err := json.Marshal(models.PredictionRequest{Query: query, FilePath: filePath})
	if err != nil {
		return nil, &Error{Kind: KindTransport, Err: fmt.Errorf("marshal request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindTransport, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		return nil, &Error{Kind: KindNonSuccessStatus, StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(ctx, err)
	}
	var result models.PredictionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &Error{Kind: KindMalformedResponse, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if strings.TrimSpace(result.Path) == "" || strings.TrimSpace(result.FilteredPath) == "" {
		return nil, &Error{Kind: KindMalformedResponse, StatusCode: resp.StatusCode, Err: errors.New("response missing Path or FilteredPath")}
	}
	return &result, nil
}

func classify(ctx context.Context, err error) *Error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return &Error{Kind: KindCanceled, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return &Error{Kind: KindConnectionRefused, Err: err}
	}
	return &Error{Kind: KindTransport, Err: err}
}
