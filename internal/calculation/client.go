// Package calculation provides the HTTP client for the external calculation
// service that reports whether a deal's calculation is complete.
package calculation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"sales_pipeline_backend/internal/blueprint"
	"sales_pipeline_backend/platform/config"
	"sales_pipeline_backend/platform/logger"
)

const (
	maxErrorBody     = 4 << 10
	msgNoCalculation = "No calculation has been started for this deal"
)

// Client calls the calculation service. It implements
// blueprint.CalculationChecker.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	log        *logger.Logger
}

// New creates a client from configuration. The per-request deadline is
// applied by the caller; the transport timeout is a backstop.
func New(cfg config.CalculationConfig, log *logger.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.GetCalculationTimeout()},
		baseURL:    cfg.GetCalculationAPIURL(),
		apiKey:     cfg.GetCalculationAPIKey(),
		log:        log,
	}
}

var _ blueprint.CalculationChecker = (*Client)(nil)

type apiStatus struct {
	IsComplete    bool     `json:"is_complete"`
	MissingFields []string `json:"missing_fields"`
	ErrorMessage  string   `json:"error_message"`
}

// Check fetches the completeness status of a deal's calculation. Transport
// failures and unexpected statuses are returned as errors; a 404 means no
// calculation exists yet and is reported as incomplete.
func (c *Client) Check(ctx context.Context, tenantID, dealID uuid.UUID) (blueprint.CalculationResult, error) {
	reqURL := fmt.Sprintf("%s/v1/calculations/%s/status", c.baseURL, url.PathEscape(dealID.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return blueprint.CalculationResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID.String())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("calculation request failed", "error", err, "deal_id", dealID)
		return blueprint.CalculationResult{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return blueprint.CalculationResult{ErrorMessage: msgNoCalculation}, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.log.Error("calculation upstream error", "status", resp.StatusCode, "deal_id", dealID, "body", string(body))
		return blueprint.CalculationResult{}, fmt.Errorf("upstream error: status %d", resp.StatusCode)
	}

	var status apiStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return blueprint.CalculationResult{}, fmt.Errorf("decode response: %w", err)
	}
	missing := status.MissingFields
	if missing == nil {
		missing = []string{}
	}
	return blueprint.CalculationResult{
		IsComplete:    status.IsComplete,
		MissingFields: missing,
		ErrorMessage:  status.ErrorMessage,
	}, nil
}
