package plans

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/flexprice/deprovisioner/internal/config"
	ierr "github.com/flexprice/deprovisioner/internal/errors"
	"github.com/flexprice/deprovisioner/internal/logger"
	"github.com/hashicorp/go-retryablehttp"
)

// HTTPSource reads member limits from the billing plan API:
// GET {base_url}/products/{id} returning {"member_limit": n}.
type HTTPSource struct {
	client  *retryablehttp.Client
	baseURL string
	apiKey  string
}

type productResponse struct {
	ID          string `json:"id"`
	MemberLimit *int   `json:"member_limit"`
}

func NewHTTPSource(cfg *config.Configuration, logger *logger.Logger) *HTTPSource {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = logger.GetRetryableHTTPLogger()

	return &HTTPSource{
		client:  client,
		baseURL: strings.TrimRight(cfg.Plans.BaseURL, "/"),
		apiKey:  cfg.Plans.APIKey,
	}
}

func (s *HTTPSource) MemberLimit(ctx context.Context, productID string) (int, bool, error) {
	endpoint := fmt.Sprintf("%s/products/%s", s.baseURL, url.PathEscape(productID))
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, false, ierr.WithError(err).
			WithHint("Failed to build plan lookup request").
			Mark(ierr.ErrInternal)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, false, ierr.WithError(err).
			WithHint("Plan lookup failed").
			WithReportableDetails(map[string]interface{}{"product_id": productID}).
			Mark(ierr.ErrSystem)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, false, nil
	case resp.StatusCode >= 300:
		return 0, false, ierr.NewErrorf("plan lookup returned status %d", resp.StatusCode).
			WithReportableDetails(map[string]interface{}{"product_id": productID}).
			Mark(ierr.ErrSystem)
	}

	var body productResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, false, ierr.WithError(err).
			WithHint("Invalid plan lookup response").
			Mark(ierr.ErrSystem)
	}
	if body.MemberLimit == nil {
		return 0, false, nil
	}
	return *body.MemberLimit, true, nil
}
