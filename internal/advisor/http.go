package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opensource-finance/kite/internal/domain"
)

// HTTPAdvisor calls an external recommendation endpoint (an LLM service
// in production). The response is untrusted: the policy engine clamps
// the disposition and applies its own overrides. Failures and timeouts
// map to ErrAdvisoryUnavailable so the policy engine escalates instead
// of approving.
type HTTPAdvisor struct {
	endpoint  string
	authToken string
	client    *http.Client
}

// NewHTTPAdvisor creates an advisor client for the given endpoint.
func NewHTTPAdvisor(cfg domain.AdvisorConfig) (*HTTPAdvisor, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("advisor endpoint is required")
	}
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPAdvisor{
		endpoint:  cfg.Endpoint,
		authToken: cfg.AuthToken,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

// Advise posts the advisory context and parses the recommendation.
func (a *HTTPAdvisor) Advise(ctx context.Context, actx *domain.AdvisoryContext) (*domain.AdvisoryResult, error) {
	body, err := json.Marshal(actx)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal advisory context: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAdvisoryUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.authToken)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAdvisoryUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrAdvisoryUnavailable, resp.StatusCode, body)
	}

	var result domain.AdvisoryResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", domain.ErrAdvisoryUnavailable, err)
	}
	return &result, nil
}

// New creates an advisor based on configuration.
func New(cfg domain.AdvisorConfig) (domain.Advisor, error) {
	switch cfg.Type {
	case "", "matrix":
		return NewMatrixAdvisor(), nil
	case "http":
		return NewHTTPAdvisor(cfg)
	default:
		return nil, fmt.Errorf("unsupported advisor type: %s", cfg.Type)
	}
}
