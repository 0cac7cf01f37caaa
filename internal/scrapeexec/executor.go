// Package scrapeexec fetches page content for filtered URLs through the
// external scrape provider, either inline (sync) or as a fire-and-forget
// submission resolved later by the scrape callback (async).
package scrapeexec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"jobmate/scan-service/internal/model"
)

// Configuration errors are fatal for the current pipeline run and are
// raised before any provider call.
var (
	ErrMissingZone     = errors.New("scrape: provider zone is required")
	ErrMissingCustomer = errors.New("scrape: customer id is required in async mode")
)

const httpTimeout = 90 * time.Second

// Executor calls the scrape provider.
type Executor struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewExecutor constructs an executor with a shared HTTP client.
func NewExecutor(baseURL, apiKey string) *Executor {
	return &Executor{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: httpTimeout},
	}
}

type scrapeRequest struct {
	Zone string   `json:"zone"`
	URLs []string `json:"urls"`
}

type syncResponse struct {
	Pages []model.RawPage `json:"pages"`
}

type asyncResponse struct {
	ResponseIDs []string `json:"response_ids"`
}

// Scrape executes one scrape batch. Empty URL input returns an empty output
// in the shape of the requested mode, with no provider call. A missing zone
// (always) or customer id (async mode) is a configuration error raised
// before any network activity.
func (e *Executor) Scrape(ctx context.Context, in model.ScrapeInput) (*model.ScrapeOutput, error) {
	if in.Zone == "" {
		return nil, ErrMissingZone
	}
	if in.Mode == model.ScrapeModeAsync && in.Customer == "" {
		return nil, ErrMissingCustomer
	}
	if len(in.URLs) == 0 {
		return &model.ScrapeOutput{}, nil
	}

	switch in.Mode {
	case model.ScrapeModeAsync:
		return e.submitAsync(ctx, in)
	default:
		return e.fetchSync(ctx, in)
	}
}

// fetchSync fetches content for all URLs in one provider call and returns
// it inline.
func (e *Executor) fetchSync(ctx context.Context, in model.ScrapeInput) (*model.ScrapeOutput, error) {
	raw, err := e.post(ctx, "/scrape", nil, scrapeRequest{Zone: in.Zone, URLs: in.URLs})
	if err != nil {
		return nil, err
	}
	var resp syncResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode scrape response: %w", err)
	}
	return &model.ScrapeOutput{Data: resp.Pages}, nil
}

// submitAsync submits the URLs for asynchronous processing and returns only
// the provider's correlation ids. Content resolution happens out of band on
// the scrape-callback endpoint.
func (e *Executor) submitAsync(ctx context.Context, in model.ScrapeInput) (*model.ScrapeOutput, error) {
	params := url.Values{}
	params.Set("customer", in.Customer)

	raw, err := e.post(ctx, "/trigger", params, scrapeRequest{Zone: in.Zone, URLs: in.URLs})
	if err != nil {
		return nil, err
	}
	var resp asyncResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode trigger response: %w", err)
	}
	return &model.ScrapeOutput{ResponseIDs: resp.ResponseIDs}, nil
}

func (e *Executor) post(ctx context.Context, path string, params url.Values, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := e.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scrape provider returned %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}
