// Package pipeline sequences one scan request through its five stages:
// discover → filter → scrape → normalize → persist.
package pipeline

import (
	"context"
	"fmt"
	"log"

	"jobmate/scan-service/internal/filter"
	"jobmate/scan-service/internal/model"
)

// Collaborator capabilities, injected explicitly. No package-level client
// singletons: connection reuse lives inside each implementation.
type (
	// ProfileSource resolves the profile a scan request targets.
	ProfileSource interface {
		Profile(ctx context.Context, profileID string) (*model.Profile, error)
	}

	// Searcher discovers candidate URLs for a set of dork queries.
	Searcher interface {
		Search(ctx context.Context, queries []model.SearchDorkQuery) ([]model.CandidateURL, error)
	}

	// Filterer scores and classifies candidate URLs.
	Filterer interface {
		Filter(ctx context.Context, urls []model.CandidateURL) ([]model.FilteredURL, error)
	}

	// Scraper fetches page content for the surviving URLs.
	Scraper interface {
		Scrape(ctx context.Context, in model.ScrapeInput) (*model.ScrapeOutput, error)
	}

	// Normalizer converts raw page content into job-creation records.
	Normalizer interface {
		Normalize(ctx context.Context, pages []model.RawPage) ([]model.JobCreateInput, error)
	}

	// Sink persists normalised job records.
	Sink interface {
		Persist(ctx context.Context, jobs []model.JobCreateInput) error
	}
)

// Config carries the deployment-level pipeline settings.
type Config struct {
	ScrapeZone     string
	ScrapeCustomer string
	ScrapeMode     model.ScrapeMode
	ResultLimit    int // 0 = unlimited
	TruncatePolicy filter.TruncatePolicy
}

// Orchestrator runs the pipeline. It performs no retries itself: a stage
// failure propagates and fails the enclosing queue job attempt.
type Orchestrator struct {
	cfg        Config
	profiles   ProfileSource
	searcher   Searcher
	filterer   Filterer
	scraper    Scraper
	normalizer Normalizer
	sink       Sink
}

// New wires an Orchestrator from its collaborators.
func New(cfg Config, profiles ProfileSource, searcher Searcher, filterer Filterer, scraper Scraper, normalizer Normalizer, sink Sink) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		profiles:   profiles,
		searcher:   searcher,
		filterer:   filterer,
		scraper:    scraper,
		normalizer: normalizer,
		sink:       sink,
	}
}

// Run executes the five stages strictly in order for one scan request.
func (o *Orchestrator) Run(ctx context.Context, req model.ScanRequest) error {
	profile, err := o.profiles.Profile(ctx, req.ProfileID)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	queries := BuildQueries(profile)
	log.Printf("[pipeline] Scan %s/%s: %d dork queries", req.UserID, req.ProfileID, len(queries))

	candidates, err := o.searcher.Search(ctx, queries)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}

	scored, err := o.filterer.Filter(ctx, candidates)
	if err != nil {
		return fmt.Errorf("filter: %w", err)
	}

	kept := make([]model.FilteredURL, 0, len(scored))
	for _, f := range scored {
		if f.Kind == model.KindIrrelevant {
			continue
		}
		kept = append(kept, f)
	}
	kept = filter.Truncate(kept, o.cfg.ResultLimit, o.cfg.TruncatePolicy)

	if len(kept) == 0 {
		log.Printf("[pipeline] Scan %s/%s: no URLs survived filtering — done", req.UserID, req.ProfileID)
		return nil
	}

	urls := make([]string, 0, len(kept))
	for _, f := range kept {
		urls = append(urls, f.URL)
	}

	out, err := o.scraper.Scrape(ctx, model.ScrapeInput{
		URLs:     urls,
		Zone:     o.cfg.ScrapeZone,
		Customer: o.cfg.ScrapeCustomer,
		Mode:     o.cfg.ScrapeMode,
	})
	if err != nil {
		return fmt.Errorf("scrape: %w", err)
	}

	if o.cfg.ScrapeMode == model.ScrapeModeAsync {
		// Two-phase handshake: this run ends at "submitted". The scrape
		// callback resolves content and runs normalize→persist itself.
		log.Printf("[pipeline] Scan %s/%s: submitted %d URL(s), %d correlation id(s)",
			req.UserID, req.ProfileID, len(urls), len(out.ResponseIDs))
		return nil
	}

	jobs, err := o.normalizer.Normalize(ctx, out.Data)
	if err != nil {
		return fmt.Errorf("normalize: %w", err)
	}

	if err := o.sink.Persist(ctx, jobs); err != nil {
		return fmt.Errorf("persist: %w", err)
	}

	log.Printf("[pipeline] Scan %s/%s done — %d page(s) → %d record(s)",
		req.UserID, req.ProfileID, len(out.Data), len(jobs))
	return nil
}

// defaultSites are the job boards targeted when a profile has no explicit
// site restrictions.
var defaultSites = []string{
	"boards.greenhouse.io",
	"jobs.lever.co",
	"apply.workable.com",
}

// BuildQueries derives the dork queries for a profile: one unrestricted
// query per target role, plus one site-restricted query per (role, site).
func BuildQueries(p *model.Profile) []model.SearchDorkQuery {
	sites := p.TargetSites
	if len(sites) == 0 {
		sites = defaultSites
	}

	queries := make([]model.SearchDorkQuery, 0, len(p.TargetRoles)*(len(sites)+1))
	for _, role := range p.TargetRoles {
		if role == "" {
			continue
		}
		queries = append(queries, model.SearchDorkQuery{Query: role, Location: p.Location})
		for _, site := range sites {
			queries = append(queries, model.SearchDorkQuery{Query: role, Site: site, Location: p.Location})
		}
	}
	return queries
}
