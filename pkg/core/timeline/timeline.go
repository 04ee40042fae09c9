// Package timeline assembles multi-period views of extracted financial
// records: report selection, chronological ordering, deduplication, and
// period-over-period trend summaries.
package timeline

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"bundesanzeiger_insight/pkg/models"
)

// Select applies a report selection to a newest-first report listing and
// caps the result at max. Supported selections (1-based, matching what users
// see in listings):
//
//	""            every report up to max
//	"latest"      the newest report only
//	"4"           a single index
//	"4-6"         an inclusive range
//	"4,7,13"      a comma-separated list
//	anything else a case-insensitive substring filter on title/company
func Select(reports []models.Report, selection string, max int) ([]models.Report, error) {
	if max <= 0 {
		max = len(reports)
	}

	selection = strings.TrimSpace(selection)
	if selection == "" {
		return capReports(reports, max), nil
	}
	if strings.EqualFold(selection, "latest") {
		return capReports(reports, 1), nil
	}

	if indices, ok := parseIndices(selection, len(reports)); ok {
		picked := make([]models.Report, 0, len(indices))
		for _, idx := range indices {
			picked = append(picked, reports[idx])
		}
		return capReports(picked, max), nil
	}
	if looksNumeric(selection) {
		return nil, fmt.Errorf("invalid selection %q: indices must be between 1 and %d", selection, len(reports))
	}

	// Substring filter on report title or company name.
	needle := strings.ToLower(selection)
	var picked []models.Report
	for _, r := range reports {
		if strings.Contains(strings.ToLower(r.Title), needle) ||
			strings.Contains(strings.ToLower(r.CompanyName), needle) {
			picked = append(picked, r)
		}
	}
	return capReports(picked, max), nil
}

// parseIndices handles "4", "4-6" and "4,7,13". Returns ok=false when the
// input does not resolve to valid indices; the caller then decides between
// an out-of-range error and substring matching via looksNumeric.
func parseIndices(s string, count int) ([]int, bool) {
	if strings.Contains(s, ",") {
		var indices []int
		for _, part := range strings.Split(s, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return nil, false
			}
			if n < 1 || n > count {
				return nil, false
			}
			indices = append(indices, n-1)
		}
		return dedupeInts(indices), len(indices) > 0
	}

	if strings.Contains(s, "-") {
		bounds := strings.SplitN(s, "-", 2)
		start, err1 := strconv.Atoi(strings.TrimSpace(bounds[0]))
		end, err2 := strconv.Atoi(strings.TrimSpace(bounds[1]))
		if err1 != nil || err2 != nil {
			return nil, false
		}
		if start < 1 || end > count || start > end {
			return nil, false
		}
		var indices []int
		for i := start; i <= end; i++ {
			indices = append(indices, i-1)
		}
		return indices, true
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, false
	}
	if n < 1 || n > count {
		return nil, false
	}
	return []int{n - 1}, true
}

// looksNumeric reports whether a failed index parse should be an error
// rather than fall through to substring matching.
func looksNumeric(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && r != ',' && r != '-' && r != ' ' {
			return false
		}
	}
	return true
}

func dedupeInts(in []int) []int {
	seen := make(map[int]bool, len(in))
	out := in[:0]
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func capReports(reports []models.Report, max int) []models.Report {
	if len(reports) > max {
		return reports[:max]
	}
	return reports
}

// Build assembles the final timeline from resolved points: ascending by
// date, one point per date (the latest extraction wins a collision), failed
// and undated points excluded from trend computation. When fewer than two
// dated points remain the raw timeline is still returned, with the
// InsufficientDataError carried as a warning.
func Build(companyName string, points []models.TimelinePoint) models.Timeline {
	tl := models.Timeline{CompanyName: companyName}

	// Deduplicate by date: latest extraction wins.
	byDate := make(map[string]models.TimelinePoint)
	var undated []models.TimelinePoint
	for _, p := range points {
		if p.Date.IsZero() {
			undated = append(undated, p)
			continue
		}
		key := p.Date.Format("2006-01-02")
		if existing, ok := byDate[key]; !ok || p.Record.ExtractedAt.After(existing.Record.ExtractedAt) {
			byDate[key] = p
		}
	}

	for _, p := range byDate {
		tl.Points = append(tl.Points, p)
	}
	sort.Slice(tl.Points, func(i, j int) bool {
		return tl.Points[i].Date.Before(tl.Points[j].Date)
	})
	tl.Points = append(tl.Points, undated...)

	trendable := make([]models.TimelinePoint, 0, len(tl.Points))
	for _, p := range tl.Points {
		if !p.Failed && !p.Date.IsZero() {
			trendable = append(trendable, p)
		}
	}

	if len(trendable) < 2 {
		err := &models.InsufficientDataError{Points: len(trendable)}
		tl.Warning = err.Error()
		return tl
	}

	tl.Trend = computeTrend(trendable)
	return tl
}

// computeTrend produces one delta per adjacent pair of dated points,
// field by field, skipping fields that are null on either side.
func computeTrend(points []models.TimelinePoint) *models.TrendSummary {
	summary := &models.TrendSummary{}
	for i := 1; i < len(points); i++ {
		prev, curr := points[i-1], points[i]
		delta := models.TrendDelta{
			FromDate:            prev.Date,
			ToDate:              curr.Date,
			EarningsCurrentYear: diff(prev.Record.EarningsCurrentYear, curr.Record.EarningsCurrentYear),
			TotalAssets:         diff(prev.Record.TotalAssets, curr.Record.TotalAssets),
			Revenue:             diff(prev.Record.Revenue, curr.Record.Revenue),
		}
		summary.Deltas = append(summary.Deltas, delta)
	}
	return summary
}

func diff(from, to *float64) *float64 {
	if from == nil || to == nil {
		return nil
	}
	d := *to - *from
	return &d
}
