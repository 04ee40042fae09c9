package gazette

import (
	"strings"
	"testing"
	"time"
)

const sampleResultsPage = `
<html><body>
<div class="result_container">
  <div class="row">
    <div class="first">Musterfirma GmbH</div>
    <div class="area">Rechnungslegung/Finanzberichte</div>
    <div class="info"><a href="/pub/Jahresabschluss2022">Jahresabschluss zum Gesch&auml;ftsjahr vom 01.01.2022 bis zum 31.12.2022</a></div>
    <div class="date">15.08.2023</div>
  </div>
  <div class="row">
    <div class="first">Musterfirma GmbH</div>
    <div class="area">Gesellschaftsbekanntmachungen</div>
    <div class="info"><a href="/pub/Einladung">Einladung zur Hauptversammlung</a></div>
    <div class="date">01.06.2023</div>
  </div>
  <div class="row">
    <div class="first">Beispiel AG</div>
    <div class="area">Rechnungslegung/Finanzberichte</div>
    <div class="info"><a href="/pub/Konzernabschluss">Konzernabschluss 2021</a></div>
    <div class="date">2. Mai 2022</div>
  </div>
  <div class="row">
    <div class="area">Rechnungslegung/Finanzberichte</div>
    <div class="info"><a href="/pub/Anonym">Jahresabschluss 2020</a></div>
  </div>
  <div class="row">
    <div class="first">Linkless GmbH</div>
    <div class="area">Rechnungslegung/Finanzberichte</div>
    <div class="info"></div>
  </div>
</div>
</body></html>`

func TestParseSearchResults(t *testing.T) {
	reports, err := parseSearchResults(sampleResultsPage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("got %d reports, want 3 (non-financial and linkless rows skipped)", len(reports))
	}

	first := reports[0]
	if first.CompanyName != "Musterfirma GmbH" {
		t.Errorf("company = %q", first.CompanyName)
	}
	if first.ContentURL != "/pub/Jahresabschluss2022" {
		t.Errorf("content url = %q", first.ContentURL)
	}
	if !first.PublishDate.Equal(time.Date(2023, time.August, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("publish date = %v", first.PublishDate)
	}
	if first.ReportID == "" {
		t.Error("report id must be derived")
	}

	second := reports[1]
	if !second.PublishDate.Equal(time.Date(2022, time.May, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("written-out date parsed as %v", second.PublishDate)
	}

	third := reports[2]
	if third.CompanyName != "Unknown Company" {
		t.Errorf("missing company should fall back, got %q", third.CompanyName)
	}
	if !third.PublishDate.IsZero() {
		t.Errorf("missing date should be zero, got %v", third.PublishDate)
	}
	if third.DateString() != "unknown" {
		t.Errorf("date string = %q, want unknown", third.DateString())
	}
}

func TestParseSearchResultsNoContainer(t *testing.T) {
	reports, err := parseSearchResults("<html><body><p>keine Treffer</p></body></html>")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reports) != 0 {
		t.Errorf("got %d reports, want 0", len(reports))
	}
}

func TestParseGermanDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"15.08.2023", time.Date(2023, time.August, 15, 0, 0, 0, 0, time.UTC)},
		{"2. Mai 2022", time.Date(2022, time.May, 2, 0, 0, 0, 0, time.UTC)},
		{"31. Dezember 2021", time.Date(2021, time.December, 31, 0, 0, 0, 0, time.UTC)},
		{"1. MÄRZ 2020", time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC)},
		{"", time.Time{}},
		{"irgendwann", time.Time{}},
		{"32.13.2023", time.Time{}},
	}
	for _, tt := range tests {
		got := parseGermanDate(tt.in)
		if !got.Equal(tt.want) {
			t.Errorf("parseGermanDate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

const sampleChallengePage = `
<html><body>
<form action="/search" method="get"><input name="q"></form>
<div class="captcha_wrapper"><img src="/images/captcha/4711.png"></div>
<form action="/pub/solve?state=abc" method="post"><input name="solution"></form>
</body></html>`

const samplePublicationPage = `
<html><body>
<div class="publication_container">
  <h1>Jahresabschluss zum 31.12.2022</h1>
  <p>Bilanzsumme: 1.234.567,89 EUR</p>
</div>
</body></html>`

func TestIsChallengePage(t *testing.T) {
	if !isChallengePage(sampleChallengePage) {
		t.Error("page without publication_container must count as challenge")
	}
	if isChallengePage(samplePublicationPage) {
		t.Error("publication page must not count as challenge")
	}
}

func TestExtractChallenge(t *testing.T) {
	src, action, err := extractChallenge(sampleChallengePage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src != "/images/captcha/4711.png" {
		t.Errorf("image src = %q", src)
	}
	if action != "/pub/solve?state=abc" {
		t.Errorf("form action = %q", action)
	}

	if _, _, err := extractChallenge(samplePublicationPage); err == nil {
		t.Error("expected error for page without puzzle image")
	}
}

func TestExtractPublicationText(t *testing.T) {
	text := extractPublicationText(samplePublicationPage)
	if text == "" {
		t.Fatal("expected publication text")
	}
	if want := "Bilanzsumme: 1.234.567,89 EUR"; !strings.Contains(text, want) {
		t.Errorf("text %q missing %q", text, want)
	}
	if extractPublicationText(sampleChallengePage) != "" {
		t.Error("challenge page must yield empty text")
	}
}
