// Package service orchestrates the retrieval-extraction-caching-timeline
// pipeline behind the three operations consumers call: Search, Analyze and
// Timeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"bundesanzeiger_insight/pkg/core/gazette"
	"bundesanzeiger_insight/pkg/core/match"
	"bundesanzeiger_insight/pkg/core/store"
	"bundesanzeiger_insight/pkg/core/timeline"
	"bundesanzeiger_insight/pkg/models"
)

// Fetcher lists and retrieves registry reports within one session.
// Implemented by gazette.Client; tests substitute fakes.
type Fetcher interface {
	NewSession() *gazette.Session
	Search(ctx context.Context, s *gazette.Session, companyName string) ([]models.Report, error)
	FetchContent(ctx context.Context, s *gazette.Session, report *models.Report) (string, error)
}

// Extractor converts raw report text into a financial record.
type Extractor interface {
	Extract(ctx context.Context, reportID string, rawText string) (models.FinancialRecord, error)
}

// Service is the core pipeline facade. Each Analyze/Timeline call runs its
// own upstream session; the only shared mutable state is the cache.
type Service struct {
	fetcher       Fetcher
	extractor     Extractor
	cache         *store.Cache
	minSimilarity int
	log           *logrus.Logger
}

// New creates the service.
func New(fetcher Fetcher, extractor Extractor, cache *store.Cache, minSimilarity int, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if minSimilarity <= 0 {
		minSimilarity = match.DefaultMinSimilarity
	}
	return &Service{
		fetcher:       fetcher,
		extractor:     extractor,
		cache:         cache,
		minSimilarity: minSimilarity,
		log:           log,
	}
}

// ReportSummary is one listed report in a search result.
type ReportSummary struct {
	Name             string `json:"name"`
	Company          string `json:"company"`
	Date             string `json:"date"`
	HasFinancialData bool   `json:"has_financial_data"`
}

// CompanySummary groups a company's reports in a search result.
type CompanySummary struct {
	Name             string          `json:"name"`
	MatchScore       int             `json:"match_score"`
	ReportsCount     int             `json:"reports_count"`
	LatestReport     string          `json:"latest_report"`
	LatestReportDate string          `json:"latest_report_date"`
	Reports          []ReportSummary `json:"reports"`
}

// SearchResult is the response of the search operation.
type SearchResult struct {
	Found        bool             `json:"found"`
	SearchedName string           `json:"searched_name"`
	Companies    []CompanySummary `json:"companies,omitempty"`
	Reports      []ReportSummary  `json:"reports,omitempty"`
	Message      string           `json:"message,omitempty"`
}

// FinancialData is the extracted figure set exposed to consumers.
type FinancialData struct {
	EarningsCurrentYear *float64 `json:"earnings_current_year"`
	TotalAssets         *float64 `json:"total_assets"`
	Revenue             *float64 `json:"revenue"`
}

// AnalyzeResult is the response of the analyze operation.
type AnalyzeResult struct {
	Found         bool           `json:"found"`
	IsCached      bool           `json:"is_cached"`
	CompanyName   string         `json:"company_name,omitempty"`
	Date          string         `json:"date,omitempty"`
	ReportName    string         `json:"report_name,omitempty"`
	FinancialData *FinancialData `json:"financial_data,omitempty"`
	Message       string         `json:"message,omitempty"`
}

// Search resolves a free-text company name to registry candidates, ranked by
// similarity, without processing any report content.
func (s *Service) Search(ctx context.Context, companyName string) (*SearchResult, error) {
	reports, err := s.resolveReports(ctx, s.fetcher.NewSession(), companyName)
	if err != nil {
		var notFound *models.NotFoundError
		if errors.As(err, &notFound) {
			return &SearchResult{
				Found:        false,
				SearchedName: companyName,
				Message:      notFound.Error(),
			}, nil
		}
		return nil, err
	}

	result := &SearchResult{Found: true, SearchedName: companyName}

	// Group reports per company, then rank companies against the query.
	grouped := make(map[string][]models.Report)
	for _, r := range reports {
		grouped[r.CompanyName] = append(grouped[r.CompanyName], r)
		result.Reports = append(result.Reports, ReportSummary{
			Name:             r.Title,
			Company:          r.CompanyName,
			Date:             r.DateString(),
			HasFinancialData: r.HasFinancialData,
		})
	}

	candidates := make([]models.RegistryEntry, 0, len(grouped))
	for name, rs := range grouped {
		candidates = append(candidates, models.RegistryEntry{
			RegistryID:  models.NormalizeCompanyName(name),
			DisplayName: name,
			ReportCount: len(rs),
		})
	}
	ranked := match.Rank(companyName, candidates, s.minSimilarity)
	if len(ranked) == 0 {
		// Every candidate fell below the similarity threshold.
		return &SearchResult{
			Found:        false,
			SearchedName: companyName,
			Message:      (&models.NotFoundError{Query: companyName}).Error(),
		}, nil
	}

	for _, entry := range ranked {
		rs := grouped[entry.DisplayName]
		summary := CompanySummary{
			Name:             entry.DisplayName,
			MatchScore:       entry.MatchScore,
			ReportsCount:     len(rs),
			LatestReport:     rs[0].Title,
			LatestReportDate: rs[0].DateString(),
		}
		for _, r := range rs {
			summary.Reports = append(summary.Reports, ReportSummary{
				Name:             r.Title,
				Company:          r.CompanyName,
				Date:             r.DateString(),
				HasFinancialData: r.HasFinancialData,
			})
		}
		result.Companies = append(result.Companies, summary)
	}

	return result, nil
}

// Analyze retrieves and extracts the selected report for a company,
// cache-first. selector picks a report from the newest-first listing ("",
// "latest", index, range start, or title substring); refresh forces
// re-extraction by invalidating the cached entry first.
func (s *Service) Analyze(ctx context.Context, companyName string, selector string, refresh bool) (*AnalyzeResult, error) {
	// Query-level shortcut: a repeated analyze for a known company skips the
	// upstream listing entirely when no explicit selector is in play.
	if selector == "" && !refresh {
		if entry, err := s.cache.FindByCompany(ctx, companyName); err == nil && entry != nil {
			return resultFromEntry(entry, true), nil
		}
	}

	session := s.fetcher.NewSession()
	reports, err := s.resolveReports(ctx, session, companyName)
	if err != nil {
		var notFound *models.NotFoundError
		if errors.As(err, &notFound) {
			return &AnalyzeResult{
				Found:   false,
				Message: fmt.Sprintf("No reports found for company: %s", companyName),
			}, nil
		}
		return nil, err
	}

	selected, err := timeline.Select(reports, selector, 1)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return &AnalyzeResult{
			Found:   false,
			Message: fmt.Sprintf("No reports matched selector %q for company: %s", selector, companyName),
		}, nil
	}
	report := selected[0]

	key := models.ReportKey(report.CompanyName, report.ReportID)
	if refresh {
		if err := s.cache.Invalidate(ctx, key); err != nil {
			s.log.Warnf("cache invalidation degraded: %v", err)
		}
	}

	entry, cached, err := s.cache.GetOrCompute(ctx, key, func() (*models.CacheEntry, error) {
		return s.fetchAndExtract(ctx, session, &report)
	})
	if err != nil {
		return nil, err
	}

	return resultFromEntry(entry, cached), nil
}

// TimelineResult is the response of the timeline operation.
type TimelineResult struct {
	Found    bool            `json:"found"`
	Timeline models.Timeline `json:"timeline"`
	Message  string          `json:"message,omitempty"`
}

// Timeline builds the multi-period view for a company: up to maxReports
// reports (optionally narrowed by selection), each resolved cache-first,
// ordered ascending by publish date with a trend summary. A failure on one
// report marks that point failed and the rest proceed.
func (s *Service) Timeline(ctx context.Context, companyName string, maxReports int, selection string) (*TimelineResult, error) {
	session := s.fetcher.NewSession()
	reports, err := s.resolveReports(ctx, session, companyName)
	if err != nil {
		var notFound *models.NotFoundError
		if errors.As(err, &notFound) {
			return &TimelineResult{
				Found:   false,
				Message: fmt.Sprintf("No reports found for company: %s", companyName),
			}, nil
		}
		return nil, err
	}

	selected, err := timeline.Select(reports, selection, maxReports)
	if err != nil {
		return nil, err
	}

	var points []models.TimelinePoint
	for i := range selected {
		report := selected[i]
		point := models.TimelinePoint{
			Date:       report.PublishDate,
			ReportName: report.Title,
		}

		key := models.ReportKey(report.CompanyName, report.ReportID)
		entry, cached, err := s.cache.GetOrCompute(ctx, key, func() (*models.CacheEntry, error) {
			return s.fetchAndExtract(ctx, session, &report)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.WithField("report", report.Title).Warnf("timeline point failed: %v", err)
			point.Failed = true
		} else {
			point.Record = entry.Record
			point.FromCache = cached
			point.Failed = !entry.Record.HasData()
		}
		points = append(points, point)
	}

	result := &TimelineResult{
		Found:    true,
		Timeline: timeline.Build(companyName, points),
	}
	return result, nil
}

// fetchAndExtract is the cache-miss path: fetch raw content with the active
// session, run extraction, and package the cache entry. A persistently
// malformed AI response still yields a (partial, all-null) entry.
func (s *Service) fetchAndExtract(ctx context.Context, session *gazette.Session, report *models.Report) (*models.CacheEntry, error) {
	content, err := s.fetcher.FetchContent(ctx, session, report)
	if err != nil {
		return nil, err
	}

	record, err := s.extractor.Extract(ctx, report.ReportID, content)
	if err != nil {
		var extractionErr *models.ExtractionError
		if !errors.As(err, &extractionErr) {
			return nil, err
		}
		s.log.WithField("report", report.Title).Warnf("extraction degraded: %v", err)
	}
	report.HasFinancialData = record.HasData()

	return &models.CacheEntry{
		Key:         models.ReportKey(report.CompanyName, report.ReportID),
		CompanyName: report.CompanyName,
		ReportName:  report.Title,
		ReportDate:  report.DateString(),
		Record:      record,
	}, nil
}

// resolveReports searches for the company, falling back to common name
// variations (casing, GmbH/AG spellings) before giving up with NotFoundError.
func (s *Service) resolveReports(ctx context.Context, session *gazette.Session, companyName string) ([]models.Report, error) {
	reports, err := s.fetcher.Search(ctx, session, companyName)
	if err != nil {
		return nil, err
	}
	if len(reports) > 0 {
		return reports, nil
	}

	for _, variation := range nameVariations(companyName) {
		s.log.WithField("variation", variation).Debug("retrying search with name variation")
		reports, err = s.fetcher.Search(ctx, session, variation)
		if err != nil {
			return nil, err
		}
		if len(reports) > 0 {
			return reports, nil
		}
	}

	return nil, &models.NotFoundError{Query: companyName}
}

// nameVariations lists the spellings the upstream search often expects
// when the literal query returns nothing.
func nameVariations(name string) []string {
	candidates := []string{
		strings.ToLower(name),
		strings.ToUpper(name),
		titleCase(name),
		strings.ReplaceAll(name, "gmbh", "GmbH"),
		strings.ReplaceAll(name, "GmbH", "gmbh"),
		strings.ReplaceAll(name, "ag", "AG"),
		strings.ReplaceAll(name, "AG", "ag"),
	}
	seen := map[string]bool{name: true}
	var out []string
	for _, c := range candidates {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 {
			words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
		}
	}
	return strings.Join(words, " ")
}

func resultFromEntry(entry *models.CacheEntry, cached bool) *AnalyzeResult {
	result := &AnalyzeResult{
		Found:       true,
		IsCached:    cached,
		CompanyName: entry.CompanyName,
		Date:        entry.ReportDate,
		ReportName:  entry.ReportName,
	}
	if entry.Record.HasData() {
		result.FinancialData = &FinancialData{
			EarningsCurrentYear: entry.Record.EarningsCurrentYear,
			TotalAssets:         entry.Record.TotalAssets,
			Revenue:             entry.Record.Revenue,
		}
	} else {
		result.Message = "Found report but couldn't extract financial data"
	}
	return result
}
