package pipeline_test

import (
	"context"
	"testing"

	"jobmate/scan-service/internal/model"
	"jobmate/scan-service/internal/pipeline"
)

const jobPageHTML = `<html>
<head>
  <title>Acme Corp Careers</title>
  <meta property="og:site_name" content="Acme Corp">
</head>
<body>
  <h1>Senior Backend Engineer</h1>
  <div class="job-location">Berlin, Germany</div>
  <p>Build the job-matching platform.</p>
  <script>analytics()</script>
</body>
</html>`

func TestNormalize_ExtractsJobFields(t *testing.T) {
	n := pipeline.NewHTMLNormalizer()
	jobs, err := n.Normalize(context.Background(), []model.RawPage{
		{URL: "https://acme.example/jobs/42", Content: jobPageHTML, StatusCode: 200},
	})
	if err != nil {
		t.Fatalf("Normalize returned unexpected error: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("got %d records, want 1", len(jobs))
	}

	j := jobs[0]
	if j.Title != "Senior Backend Engineer" {
		t.Errorf("title = %q, want the h1 text", j.Title)
	}
	if j.Company != "Acme Corp" {
		t.Errorf("company = %q, want og:site_name", j.Company)
	}
	if j.Location != "Berlin, Germany" {
		t.Errorf("location = %q", j.Location)
	}
	if j.ExternalURL == nil || *j.ExternalURL != "https://acme.example/jobs/42" {
		t.Errorf("external url = %v, want the page URL", j.ExternalURL)
	}
	if j.Description == "" {
		t.Error("description should carry the page text")
	}
}

func TestNormalize_SkipsFailedAndTitlelessPages(t *testing.T) {
	n := pipeline.NewHTMLNormalizer()
	jobs, err := n.Normalize(context.Background(), []model.RawPage{
		{URL: "https://a.example", Content: jobPageHTML, StatusCode: 404},
		{URL: "https://b.example", Content: "<html><body><p>nothing here</p></body></html>", StatusCode: 200},
		{URL: "https://c.example", Content: jobPageHTML, StatusCode: 200},
	})
	if err != nil {
		t.Fatalf("Normalize returned unexpected error: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("got %d records from 3 pages (1 good), want 1", len(jobs))
	}
}

func TestNormalize_EmptyInput(t *testing.T) {
	n := pipeline.NewHTMLNormalizer()
	jobs, err := n.Normalize(context.Background(), nil)
	if err != nil {
		t.Fatalf("Normalize(nil) returned unexpected error: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("Normalize(nil) = %d records, want 0", len(jobs))
	}
}
