package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// RegistryEntry is one candidate company produced by a registry search.
// Entries are ephemeral: they live for the duration of a single search.
type RegistryEntry struct {
	RegistryID  string `json:"registry_id"`
	DisplayName string `json:"display_name"`
	MatchScore  int    `json:"match_score"` // 0..100 similarity ratio
	ReportCount int    `json:"report_count"`
}

// Report is one published disclosure document for a company.
type Report struct {
	ReportID         string    `json:"report_id"`
	CompanyName      string    `json:"company_name"`
	Title            string    `json:"title"`
	PublishDate      time.Time `json:"publish_date"` // zero value means "unknown", sorts last
	ContentURL       string    `json:"content_url"`
	HasFinancialData bool      `json:"has_financial_data"`
}

// DateString renders the publish date the way the upstream tools expect it,
// or "unknown" when no date could be parsed from the listing.
func (r *Report) DateString() string {
	if r.PublishDate.IsZero() {
		return "unknown"
	}
	return r.PublishDate.Format("2006-01-02")
}

// FinancialRecord holds the normalized figures extracted from one report.
// Each field is independently nullable; all monetary values are whole EUR.
type FinancialRecord struct {
	ReportID            string    `json:"report_id"`
	EarningsCurrentYear *float64  `json:"earnings_current_year"`
	TotalAssets         *float64  `json:"total_assets"`
	Revenue             *float64  `json:"revenue"`
	CurrencyUnit        string    `json:"currency_unit"`
	Confidence          float64   `json:"extraction_confidence"`
	ExtractedAt         time.Time `json:"extracted_at"`
}

// HasData reports whether at least one financial field was extracted.
func (f *FinancialRecord) HasData() bool {
	return f.EarningsCurrentYear != nil || f.TotalAssets != nil || f.Revenue != nil
}

// CacheEntry wraps a FinancialRecord with its cache identity and freshness data.
type CacheEntry struct {
	Key          string          `json:"key"`
	CompanyName  string          `json:"company_name"`
	ReportName   string          `json:"report_name"`
	ReportDate   string          `json:"report_date"`
	Record       FinancialRecord `json:"record"`
	FetchedAt    time.Time       `json:"fetched_at"`
	LastAccessed time.Time       `json:"last_accessed"`
}

// TimelinePoint is one dated entry in a company timeline.
type TimelinePoint struct {
	Date       time.Time       `json:"date"`
	ReportName string          `json:"report_name"`
	Record     FinancialRecord `json:"record"`
	FromCache  bool            `json:"from_cache"`
	Failed     bool            `json:"failed"`
}

// Timeline is a strictly ascending, date-deduplicated series of records
// for one company plus the computed trend summary.
type Timeline struct {
	CompanyName string          `json:"company_name"`
	Points      []TimelinePoint `json:"points"`
	Trend       *TrendSummary   `json:"trend,omitempty"`
	Warning     string          `json:"warning,omitempty"`
}

// TrendDelta is the period-over-period change between two adjacent dated points.
// Nil fields mean one side of the pair was missing that figure.
type TrendDelta struct {
	FromDate            time.Time `json:"from_date"`
	ToDate              time.Time `json:"to_date"`
	EarningsCurrentYear *float64  `json:"earnings_current_year,omitempty"`
	TotalAssets         *float64  `json:"total_assets,omitempty"`
	Revenue             *float64  `json:"revenue,omitempty"`
}

// TrendSummary aggregates the deltas across a timeline.
type TrendSummary struct {
	Deltas []TrendDelta `json:"deltas"`
}

// NormalizeCompanyName folds case and whitespace so that matching and
// cache-key derivation are insensitive to input formatting.
func NormalizeCompanyName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// ReportKey derives the content-addressed cache key for a company+report pair.
func ReportKey(companyName, reportID string) string {
	sum := sha256.Sum256([]byte(NormalizeCompanyName(companyName) + "|" + reportID))
	return hex.EncodeToString(sum[:])
}

// DeriveReportID builds the stable report identity from the fields that make
// a report unique upstream: company, title, and publish date.
func DeriveReportID(companyName, title, date string) string {
	sum := sha256.Sum256([]byte(companyName + "|" + title + "|" + date))
	return hex.EncodeToString(sum[:16])
}
