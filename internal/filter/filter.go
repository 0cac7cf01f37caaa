// Package filter classifies candidate URLs through the external scoring
// capability and applies the configured truncation policy.
package filter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"jobmate/scan-service/internal/model"
)

// TruncatePolicy selects the order used when a result limit cuts the
// filtered list. The scorer's return order is not documented to be
// meaningful, so the policy is explicit rather than implied.
type TruncatePolicy string

const (
	// TruncateScoreDesc keeps the highest-scored URLs (stable: ties keep
	// scorer order). This is the default.
	TruncateScoreDesc TruncatePolicy = "score_desc"
	// TruncateAsReturned keeps the first URLs in scorer return order.
	TruncateAsReturned TruncatePolicy = "as_returned"
)

const httpTimeout = 30 * time.Second

// Client calls the scoring capability: one batch round-trip per Filter
// call, no chunking. Callers are responsible for staying within the
// scorer's batch-size limits.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient constructs a filter client with a shared HTTP client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: httpTimeout},
	}
}

type classifyRequest struct {
	URLs []string `json:"urls"`
}

type classifyResponse struct {
	Results []classifyResult `json:"results"`
}

type classifyResult struct {
	URL    string  `json:"url"`
	Score  float64 `json:"score"`
	Kind   string  `json:"kind"`
	Reason string  `json:"reason"`
}

// Filter submits all candidate URLs in one batch and attaches each result's
// score, kind and rationale to the originating URL's provenance tag. Empty
// input returns empty output without any provider call. A scorer failure is
// a hard error: the whole pipeline run fails and is retried by the queue.
func (c *Client) Filter(ctx context.Context, urls []model.CandidateURL) ([]model.FilteredURL, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	sourceByURL := make(map[string]string, len(urls))
	batch := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, seen := sourceByURL[u.URL]; !seen {
			sourceByURL[u.URL] = u.Source
		}
		batch = append(batch, u.URL)
	}

	body, err := json.Marshal(classifyRequest{URLs: batch})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scoring call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("scorer returned %d: %s", resp.StatusCode, string(raw))
	}

	var apiResp classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode scorer response: %w", err)
	}

	filtered := make([]model.FilteredURL, 0, len(apiResp.Results))
	for _, r := range apiResp.Results {
		filtered = append(filtered, model.FilteredURL{
			URL:    r.URL,
			Score:  r.Score,
			Kind:   model.URLKind(r.Kind),
			Reason: r.Reason,
			Source: sourceByURL[r.URL],
		})
	}
	return filtered, nil
}

// Truncate applies the result limit under the given policy. limit <= 0
// means no limit. The input slice is not modified.
func Truncate(urls []model.FilteredURL, limit int, policy TruncatePolicy) []model.FilteredURL {
	if limit <= 0 || len(urls) <= limit {
		return urls
	}
	out := append([]model.FilteredURL(nil), urls...)
	if policy == TruncateScoreDesc {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	}
	return out[:limit]
}
