// Package trainingdata fetches labeled transaction records from the
// web application's training-data endpoint.
package trainingdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Record is one labeled transaction as served by the endpoint. The
// JSON keys are the web application's wire contract and keep their
// original names.
type Record struct {
	Description string          `json:"descricao"`
	Category    string          `json:"categoria"`
	Type        string          `json:"tipo"`
	Bank        string          `json:"banco"`
	Amount      decimal.Decimal `json:"valor"`
	Method      string          `json:"metodo"` // "manual" or "automatico"
}

// Response is the training-data endpoint's JSON body.
type Response struct {
	Total      int      `json:"total"`
	Manual     int      `json:"manuais"`
	Categories []string `json:"categorias"`
	Records    []Record `json:"dados"`
}

// ErrUnreachable marks a connectivity failure; the command layer turns
// it into a remediation hint for the operator.
var ErrUnreachable = errors.New("training-data endpoint unreachable")

// StatusError is a non-2xx response from the endpoint.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("training-data endpoint returned status %d", e.Code)
}

// Client fetches training data over HTTP.
type Client struct {
	url        string
	httpClient *http.Client
}

// New creates a Client for the given endpoint URL with a bounded
// request timeout. This is a run-once tool: there are no retries, and
// the caller is expected to treat any fetch error as fatal.
func New(url string, timeout time.Duration) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch issues one GET to the endpoint and decodes the dataset.
func (c *Client) Fetch(ctx context.Context) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w, is the web app dev server running? (%v)", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var data Response
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding training data: %w", err)
	}
	return &data, nil
}
