package gazette

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"bundesanzeiger_insight/pkg/models"
)

// Listing rows outside these categories are ads, insolvency notices and the
// like; only accounting publications carry financial statements.
var financialCategories = []string{"Rechnungslegung", "Finanzberichte"}

// germanMonths maps the month names used in listing dates.
var germanMonths = map[string]time.Month{
	"januar": time.January, "februar": time.February, "märz": time.March,
	"april": time.April, "mai": time.May, "juni": time.June,
	"juli": time.July, "august": time.August, "september": time.September,
	"oktober": time.October, "november": time.November, "dezember": time.December,
}

// parseSearchResults extracts report rows from a search result page.
// The markup varies between publications: unknown fields are ignored and a
// row only needs a link and a company name to survive.
func parseSearchResults(html string) ([]models.Report, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse search result page: %w", err)
	}

	wrapper := doc.Find("div.result_container")
	if wrapper.Length() == 0 {
		return nil, nil
	}

	var reports []models.Report
	wrapper.Find("div.row").Each(func(i int, row *goquery.Selection) {
		category := strings.TrimSpace(row.Find("div.area").Text())
		if category != "" && !isFinancialCategory(category) {
			return
		}

		link := row.Find("div.info a").First()
		if link.Length() == 0 {
			return
		}
		href, ok := link.Attr("href")
		if !ok || href == "" {
			return
		}
		title := strings.TrimSpace(link.Text())

		company := strings.TrimSpace(row.Find("div.first").First().Text())
		if company == "" {
			company = "Unknown Company"
		}

		date := parseGermanDate(strings.TrimSpace(row.Find("div.date").First().Text()))

		r := models.Report{
			CompanyName: company,
			Title:       title,
			PublishDate: date,
			ContentURL:  href,
		}
		r.ReportID = models.DeriveReportID(company, title, r.DateString())
		reports = append(reports, r)
	})

	return reports, nil
}

func isFinancialCategory(category string) bool {
	for _, want := range financialCategories {
		if strings.Contains(category, want) {
			return true
		}
	}
	return false
}

// parseGermanDate handles the two date shapes the listing uses:
// "02.05.2023" and "2. Mai 2023". Anything else yields the zero time,
// which sorts last ("unknown").
func parseGermanDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	if t, err := time.Parse("02.01.2006", raw); err == nil {
		return t
	}

	// "2. Mai 2023"
	parts := strings.Fields(strings.ReplaceAll(raw, ".", ""))
	if len(parts) == 3 {
		month, ok := germanMonths[strings.ToLower(parts[1])]
		if ok {
			var day, year int
			if _, err := fmt.Sscanf(parts[0], "%d", &day); err == nil {
				if _, err := fmt.Sscanf(parts[2], "%d", &year); err == nil {
					return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
				}
			}
		}
	}

	return time.Time{}
}

// isChallengePage detects an access challenge: gated pages lack the
// publication_container that every real report page carries.
func isChallengePage(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	return doc.Find("div.publication_container").Length() == 0
}

// extractChallenge pulls the puzzle image URL and the solution form action
// out of a gated page.
func extractChallenge(html string) (imageSrc string, formAction string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", err
	}

	img := doc.Find("div.captcha_wrapper img").First()
	src, ok := img.Attr("src")
	if !ok || src == "" {
		return "", "", fmt.Errorf("challenge page has no puzzle image")
	}

	// The solution form is the second form on the page.
	forms := doc.Find("form")
	if forms.Length() < 2 {
		return "", "", fmt.Errorf("challenge page has no solution form")
	}
	action, ok := forms.Eq(1).Attr("action")
	if !ok || action == "" {
		return "", "", fmt.Errorf("challenge form has no action")
	}

	return src, action, nil
}

// extractPublicationText returns the report body text, or "" when the page
// carries no publication.
func extractPublicationText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("div.publication_container").Text())
}
