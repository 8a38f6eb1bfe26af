package ledger

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

	domain "github.com/nebg-ship/190Group-Analytics-Dashboard/internal/domain/ledger"
)

// HTTPConfig configures the Convex HTTP API transport
type HTTPConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// HTTPTransport calls ledger functions through the deployment's
// POST /api/run/{module}/{function} endpoint
type HTTPTransport struct {
	baseURL string
	token   string
	client  *http.Client
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates an HTTPTransport
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
	}
}

type runRequest struct {
	Args   any    `json:"args"`
	Format string `json:"format"`
}

type runResponse struct {
	Status       string          `json:"status"`
	Value        json.RawMessage `json:"value"`
	ErrorMessage string          `json:"errorMessage"`
}

// functionPath turns "module:function" into "module/function"
func functionPath(function string) string {
	return strings.ReplaceAll(function, ":", "/")
}

// Call implements Transport
func (t *HTTPTransport) Call(ctx context.Context, function string, args any) (json.RawMessage, error) {
	body, err := json.Marshal(runRequest{Args: args, Format: "json"})
	if err != nil {
		return nil, fmt.Errorf("ledger: encode %s args: %w", function, err)
	}

	url := t.baseURL + "/api/run/" + functionPath(function)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ledger: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Convex "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrTransient, function, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %v", domain.ErrTransient, function, err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: %s: HTTP %d: %s", domain.ErrTransient, function, resp.StatusCode, truncate(data))
	}

	var out runResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: HTTP %d: %s", domain.ErrMalformedOutput, function, resp.StatusCode, truncate(data))
	}
	if resp.StatusCode != http.StatusOK || out.Status != "success" {
		msg := out.ErrorMessage
		if msg == "" {
			msg = truncate(data)
		}
		return nil, fmt.Errorf("ledger: %s failed (HTTP %d): %s", function, resp.StatusCode, msg)
	}
	if len(out.Value) == 0 {
		return json.RawMessage("null"), nil
	}
	return out.Value, nil
}
