// Package httpapi exposes the scan service over HTTP: public admission and
// status endpoints, plus internal endpoints for the drain trigger and the
// async scrape callback, both guarded by a shared secret.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"

	"jobmate/scan-service/internal/config"
	"jobmate/scan-service/internal/model"
	"jobmate/scan-service/internal/pipeline"
	"jobmate/scan-service/internal/scan"
)

// internalTokenHeader carries the shared secret on /internal endpoints.
const internalTokenHeader = "X-Internal-Token"

// API bundles the handlers' dependencies.
type API struct {
	scans      *scan.Service
	normalizer pipeline.Normalizer
	sink       pipeline.Sink
	drain      scan.DrainOptions
	token      string
}

// New constructs the API.
func New(scans *scan.Service, normalizer pipeline.Normalizer, sink pipeline.Sink, drain config.DrainConfig, token string) *API {
	return &API{
		scans:      scans,
		normalizer: normalizer,
		sink:       sink,
		drain: scan.DrainOptions{
			Concurrency: drain.Concurrency,
			MaxJobs:     drain.MaxJobs,
			MaxDuration: drain.MaxDuration,
			IdleWait:    drain.IdleWait,
		},
		token: token,
	}
}

// Routes registers all endpoints on mux.
func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("POST /scan", a.handleRequestScan)
	mux.HandleFunc("GET /scan/status", a.handleScanStatus)
	mux.HandleFunc("POST /internal/drain-batch", a.internal(a.handleDrainBatch))
	mux.HandleFunc("POST /internal/scrape-callback", a.internal(a.handleScrapeCallback))
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "scan-service",
	})
}

type scanRequestBody struct {
	UserID    string `json:"userId"`
	ProfileID string `json:"profileId"`
}

func (a *API) handleRequestScan(w http.ResponseWriter, r *http.Request) {
	var body scanRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" || body.ProfileID == "" {
		writeError(w, http.StatusBadRequest, "userId and profileId are required")
		return
	}

	jobKey, err := a.scans.RequestScan(r.Context(), body.UserID, body.ProfileID)
	if err == scan.ErrInsufficientCredits {
		writeError(w, http.StatusPaymentRequired, "insufficient credits")
		return
	}
	if err != nil {
		log.Printf("[api] RequestScan %s/%s failed: %v", body.UserID, body.ProfileID, err)
		writeError(w, http.StatusServiceUnavailable, "could not schedule scan")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"jobKey": jobKey})
}

func (a *API) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	profileID := r.URL.Query().Get("profileId")
	if userID == "" || profileID == "" {
		writeError(w, http.StatusBadRequest, "userId and profileId are required")
		return
	}

	res, err := a.scans.GetStatus(r.Context(), userID, profileID)
	if err != nil {
		log.Printf("[api] GetStatus %s/%s failed: %v", userID, profileID, err)
		writeError(w, http.StatusServiceUnavailable, "could not read scan status")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleDrainBatch(w http.ResponseWriter, r *http.Request) {
	res, err := a.scans.Drain(r.Context(), a.drain)
	if err != nil {
		log.Printf("[api] Drain failed after %d job(s): %v", res.Processed, err)
		writeError(w, http.StatusInternalServerError, "drain aborted")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// scrapeCallbackBody resolves one async scrape submission: the provider
// posts the correlation id plus the fetched pages.
type scrapeCallbackBody struct {
	ResponseID string          `json:"responseId"`
	Pages      []model.RawPage `json:"pages"`
}

// handleScrapeCallback is the second phase of the async scrape handshake:
// it normalises and persists the delivered content itself, outside the
// queue's state machine.
func (a *API) handleScrapeCallback(w http.ResponseWriter, r *http.Request) {
	var body scrapeCallbackBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ResponseID == "" {
		writeError(w, http.StatusBadRequest, "responseId and pages are required")
		return
	}

	jobs, err := a.normalizer.Normalize(r.Context(), body.Pages)
	if err != nil {
		log.Printf("[api] Normalize for callback %s failed: %v", body.ResponseID, err)
		writeError(w, http.StatusInternalServerError, "normalize failed")
		return
	}
	if err := a.sink.Persist(r.Context(), jobs); err != nil {
		log.Printf("[api] Persist for callback %s failed: %v", body.ResponseID, err)
		writeError(w, http.StatusInternalServerError, "persist failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"responseId": body.ResponseID,
		"persisted":  len(jobs),
	})
}

// internal guards a handler with the shared-secret check.
func (a *API) internal(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(internalTokenHeader) != a.token {
			writeError(w, http.StatusUnauthorized, "invalid internal token")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] Encode response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
