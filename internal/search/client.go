// Package search implements the search-dork client: it turns profile-derived
// dork queries into provider calls and collects organic result links.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"jobmate/scan-service/internal/model"
)

const (
	// batchSize bounds outbound concurrency: queries run in parallel within
	// a batch, batches run sequentially.
	batchSize      = 3
	resultsPerPage = 20
	httpTimeout    = 15 * time.Second
)

// Client calls the external search provider. The provider accepts a query
// string and returns structured organic results as JSON.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient constructs a search client with a shared HTTP client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: httpTimeout},
	}
}

// searchRequest mirrors the provider's request body.
type searchRequest struct {
	Query    string `json:"q"`
	Location string `json:"location,omitempty"`
	Num      int    `json:"num"`
}

// searchResponse mirrors the structured provider response.
type searchResponse struct {
	Organic []organicResult `json:"organic"`
}

type organicResult struct {
	Title string `json:"title"`
	Link  string `json:"link"`
}

// Search runs all queries in batches of batchSize and returns every organic
// link discovered. A single query's failure is logged and contributes zero
// URLs; it never aborts the batch or the other in-flight queries.
func (c *Client) Search(ctx context.Context, queries []model.SearchDorkQuery) ([]model.CandidateURL, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	var (
		mu   sync.Mutex
		urls []model.CandidateURL
	)

	for start := 0; start < len(queries); start += batchSize {
		end := start + batchSize
		if end > len(queries) {
			end = len(queries)
		}

		g, gCtx := errgroup.WithContext(ctx)
		for _, q := range queries[start:end] {
			query := q
			g.Go(func() error {
				found, err := c.searchOne(gCtx, query)
				if err != nil {
					log.Printf("[search] Query %q failed: %v — continuing", ProviderQuery(query), err)
					return nil
				}
				mu.Lock()
				urls = append(urls, found...)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	return urls, nil
}

func (c *Client) searchOne(ctx context.Context, q model.SearchDorkQuery) ([]model.CandidateURL, error) {
	providerQuery := ProviderQuery(q)

	body, err := json.Marshal(searchRequest{
		Query:    providerQuery,
		Location: q.Location,
		Num:      resultsPerPage,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http POST: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search provider returned %d: %s", resp.StatusCode, string(raw))
	}

	var apiResp searchResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		// Unstructured/raw provider response is a soft miss, not an error:
		// the query simply yields no URLs.
		log.Printf("[search] Unstructured response for %q — skipping", providerQuery)
		return nil, nil
	}

	source := "dork"
	if q.Site != "" {
		source = "dork:" + q.Site
	}

	urls := make([]model.CandidateURL, 0, len(apiResp.Organic))
	for _, r := range apiResp.Organic {
		if r.Link == "" {
			continue
		}
		urls = append(urls, model.CandidateURL{
			URL:    r.Link,
			Query:  providerQuery,
			Source: source,
		})
	}
	return urls, nil
}

// ProviderQuery builds the provider query string from a dork query: the
// quoted term, the optional location, and the optional site restriction.
func ProviderQuery(q model.SearchDorkQuery) string {
	parts := []string{fmt.Sprintf("%q", q.Query)}
	if q.Location != "" {
		parts = append(parts, q.Location)
	}
	if q.Site != "" {
		parts = append(parts, "site:"+q.Site)
	}
	return strings.Join(parts, " ")
}
