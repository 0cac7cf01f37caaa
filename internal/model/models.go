// Package model defines the shared data structures of the scan pipeline.
package model

import "time"

// ScanRequest identifies one user+profile's request to discover new job
// postings. The (UserID, ProfileID) pair is the identity key: at most one
// queued-or-running scan may exist per pair at any instant.
type ScanRequest struct {
	UserID    string `json:"userId"`
	ProfileID string `json:"profileId"`
}

// Profile carries the search-relevant slice of a user profile. Loaded from
// the profiles table; the surrounding system owns profile CRUD.
type Profile struct {
	ID          string
	UserID      string
	TargetRoles []string
	Location    string
	TargetSites []string // site restrictions for dork queries; empty uses the defaults
}

// SearchDorkQuery is one immutable search-engine query derived from a
// profile. Many queries are built from a single profile.
type SearchDorkQuery struct {
	Query    string
	Site     string // optional site: restriction
	Location string // optional
}

// CandidateURL is an unfiltered discovered link, possibly irrelevant.
// Deduplication by URL is not guaranteed at this stage.
type CandidateURL struct {
	URL    string
	Query  string // the provider query string that produced this link
	Source string // provenance tag, e.g. "dork:boards.greenhouse.io"
}

// URLKind is the coarse category a scored candidate falls into.
type URLKind string

const (
	KindJobPosting   URLKind = "JOB_POSTING"
	KindListingIndex URLKind = "LISTING_INDEX"
	KindIrrelevant   URLKind = "IRRELEVANT"
)

// FilteredURL is a candidate annotated with a fitness score, category and
// rationale by the scoring capability.
type FilteredURL struct {
	URL    string
	Score  float64
	Kind   URLKind
	Reason string
	Source string
}

// ScrapeMode selects how the scrape provider executes a batch.
type ScrapeMode string

const (
	// ScrapeModeSync fetches content for all URLs and returns it inline.
	ScrapeModeSync ScrapeMode = "sync"
	// ScrapeModeAsync submits the URLs and returns correlation ids; the
	// content arrives later on the scrape-callback endpoint.
	ScrapeModeAsync ScrapeMode = "async"
)

// ScrapeInput is the full input to one scrape executor call.
type ScrapeInput struct {
	URLs     []string
	Zone     string // provider zone/region identifier, required
	Customer string // provider account identifier, required in async mode
	Mode     ScrapeMode
}

// RawPage is one fetched page in a sync-mode scrape result.
type RawPage struct {
	URL        string `json:"url"`
	Content    string `json:"content"`
	StatusCode int    `json:"statusCode"`
}

// ScrapeOutput carries either inline page data (sync) or correlation ids
// to be resolved by the scrape callback (async). Exactly one side is set.
type ScrapeOutput struct {
	Data        []RawPage
	ResponseIDs []string
}

// JobCreateInput is a normalised, provider-agnostic job posting ready for
// persistence. ExternalURL is a pointer so a missing URL reaches storage as
// an explicit NULL rather than an empty string.
type JobCreateInput struct {
	Title          string
	Company        string
	Location       string
	EmploymentType string
	WorkMode       string
	Source         string
	ExternalURL    *string
	Description    string
	PostedAt       time.Time
}
