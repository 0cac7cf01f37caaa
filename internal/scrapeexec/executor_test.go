package scrapeexec_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"jobmate/scan-service/internal/model"
	"jobmate/scan-service/internal/scrapeexec"
)

func newCountingServer(t *testing.T, calls *int64, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(calls, 1)
		handler(w, r)
	}))
}

// ── Configuration errors ───────────────────────────────────────────────────

func TestScrape_MissingZoneFailsBeforeAnyCall(t *testing.T) {
	var calls int64
	srv := newCountingServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {})
	defer srv.Close()

	e := scrapeexec.NewExecutor(srv.URL, "key")
	_, err := e.Scrape(context.Background(), model.ScrapeInput{
		URLs: []string{"https://a.example"},
		Mode: model.ScrapeModeSync,
	})
	if err != scrapeexec.ErrMissingZone {
		t.Errorf("Scrape without zone = %v, want ErrMissingZone", err)
	}
	if calls != 0 {
		t.Errorf("provider was called %d times, want 0", calls)
	}
}

func TestScrape_AsyncWithoutCustomerFailsBeforeAnyCall(t *testing.T) {
	var calls int64
	srv := newCountingServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {})
	defer srv.Close()

	e := scrapeexec.NewExecutor(srv.URL, "key")
	_, err := e.Scrape(context.Background(), model.ScrapeInput{
		URLs: []string{"https://a.example"},
		Zone: "eu-west",
		Mode: model.ScrapeModeAsync,
	})
	if err != scrapeexec.ErrMissingCustomer {
		t.Errorf("async Scrape without customer = %v, want ErrMissingCustomer", err)
	}
	if calls != 0 {
		t.Errorf("provider was called %d times, want 0", calls)
	}
}

// ── Empty input ────────────────────────────────────────────────────────────

func TestScrape_EmptyURLsMakesNoCalls(t *testing.T) {
	var calls int64
	srv := newCountingServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {})
	defer srv.Close()

	e := scrapeexec.NewExecutor(srv.URL, "key")
	out, err := e.Scrape(context.Background(), model.ScrapeInput{
		Zone: "eu-west",
		Mode: model.ScrapeModeSync,
	})
	if err != nil {
		t.Fatalf("empty Scrape returned unexpected error: %v", err)
	}
	if len(out.Data) != 0 || len(out.ResponseIDs) != 0 {
		t.Errorf("empty Scrape returned non-empty output: %+v", out)
	}
	if calls != 0 {
		t.Errorf("provider was called %d times, want 0", calls)
	}
}

// ── Sync mode ──────────────────────────────────────────────────────────────

func TestScrape_SyncReturnsInlineData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Zone string   `json:"zone"`
			URLs []string `json:"urls"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Zone != "eu-west" {
			t.Errorf("provider received zone %q, want eu-west", req.Zone)
		}
		pages := make([]model.RawPage, 0, len(req.URLs))
		for _, u := range req.URLs {
			pages = append(pages, model.RawPage{URL: u, Content: "<html></html>", StatusCode: 200})
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"pages": pages})
	}))
	defer srv.Close()

	e := scrapeexec.NewExecutor(srv.URL, "key")
	out, err := e.Scrape(context.Background(), model.ScrapeInput{
		URLs: []string{"https://a.example", "https://b.example"},
		Zone: "eu-west",
		Mode: model.ScrapeModeSync,
	})
	if err != nil {
		t.Fatalf("sync Scrape returned unexpected error: %v", err)
	}
	if len(out.Data) != 2 {
		t.Errorf("sync Scrape returned %d pages, want 2", len(out.Data))
	}
	if len(out.ResponseIDs) != 0 {
		t.Errorf("sync Scrape returned response ids: %v", out.ResponseIDs)
	}
}

// ── Async mode ─────────────────────────────────────────────────────────────

func TestScrape_AsyncReturnsCorrelationIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("customer"); got != "acct-1" {
			t.Errorf("provider received customer %q, want acct-1", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"response_ids": []string{"resp-1", "resp-2"},
		})
	}))
	defer srv.Close()

	e := scrapeexec.NewExecutor(srv.URL, "key")
	out, err := e.Scrape(context.Background(), model.ScrapeInput{
		URLs:     []string{"https://a.example", "https://b.example"},
		Zone:     "eu-west",
		Customer: "acct-1",
		Mode:     model.ScrapeModeAsync,
	})
	if err != nil {
		t.Fatalf("async Scrape returned unexpected error: %v", err)
	}
	if len(out.ResponseIDs) != 2 {
		t.Errorf("async Scrape returned %d response ids, want 2", len(out.ResponseIDs))
	}
	if len(out.Data) != 0 {
		t.Errorf("async Scrape returned inline data: %d pages", len(out.Data))
	}
}
