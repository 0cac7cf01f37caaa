package pipeline

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"jobmate/scan-service/internal/model"
)

const maxDescriptionLen = 8000

// HTMLNormalizer extracts job fields from scraped page HTML. It is the
// shipped Normalizer implementation; deployments with a richer extraction
// service swap it out behind the interface.
type HTMLNormalizer struct{}

// NewHTMLNormalizer returns the goquery-based normalizer.
func NewHTMLNormalizer() *HTMLNormalizer {
	return &HTMLNormalizer{}
}

// Normalize converts each raw page into a job-creation record. A page that
// cannot be parsed or yields no title is logged and skipped; it never fails
// the batch.
func (n *HTMLNormalizer) Normalize(_ context.Context, pages []model.RawPage) ([]model.JobCreateInput, error) {
	if len(pages) == 0 {
		return nil, nil
	}

	jobs := make([]model.JobCreateInput, 0, len(pages))
	for _, page := range pages {
		if page.StatusCode >= 400 {
			log.Printf("[normalize] Skipping %s — upstream status %d", page.URL, page.StatusCode)
			continue
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Content))
		if err != nil {
			log.Printf("[normalize] Parse of %s failed: %v — skipping", page.URL, err)
			continue
		}

		title := firstText(doc, "h1", "title")
		if title == "" {
			log.Printf("[normalize] No title in %s — skipping", page.URL)
			continue
		}

		externalURL := page.URL
		job := model.JobCreateInput{
			Title:       title,
			Company:     metaContent(doc, `meta[property="og:site_name"]`),
			Location:    firstText(doc, `[class*="location"]`),
			Description: clip(pageText(doc), maxDescriptionLen),
			PostedAt:    time.Now().UTC(),
		}
		if externalURL != "" {
			job.ExternalURL = &externalURL
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

func pageText(doc *goquery.Document) string {
	body := doc.Find("body")
	body.Find("script, style, nav, footer").Remove()
	return strings.Join(strings.Fields(body.Text()), " ")
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
