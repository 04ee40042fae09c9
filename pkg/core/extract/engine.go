// Package extract converts raw report text into normalized financial fields
// via a schema-constrained AI call with validation and bounded retry.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"bundesanzeiger_insight/pkg/core/llm"
	"bundesanzeiger_insight/pkg/core/utils"
	"bundesanzeiger_insight/pkg/models"
)

// maxTextLength caps the report text sent to the model, approximating the
// context window at 4 chars per token.
const maxTextLength = 400000

const systemPrompt = `You are an accounting specialist focused on German financial reports. Extract financial data in EUR. Only respond with JSON.`

const extractionPrompt = `You are analyzing public financial information from a company.
Extract and return ONLY the following information in a JSON format:
- earnings_current_year (in EUR)
- total_assets (in EUR)
- revenue (in EUR)

Amounts given in thousands (kEUR/TEUR) or millions (Mio. EUR) must be converted to plain EUR.
If a value cannot be found, use null.
Only return the JSON object, nothing else.
Example output: {"earnings_current_year": 1000000, "total_assets": 5000000, "revenue": null}

Here's the financial information:
`

const correctivePrompt = `Your previous response could not be parsed as a JSON object with the fields earnings_current_year, total_assets and revenue.
Respond again with ONLY that JSON object and nothing else. Use null for values you cannot determine.

Here's the financial information:
`

// rawExtraction is the wire schema of the model response. Fields arrive as
// raw JSON so that a type mismatch drops the field instead of the record.
type rawExtraction struct {
	EarningsCurrentYear json.RawMessage `json:"earnings_current_year"`
	TotalAssets         json.RawMessage `json:"total_assets"`
	Revenue             json.RawMessage `json:"revenue"`
}

// Engine runs schema-constrained extraction against an AI provider.
type Engine struct {
	provider   llm.Provider
	maxRetries int
	timeout    time.Duration
	log        *logrus.Logger
}

// NewEngine creates an extraction engine. maxRetries bounds the corrective
// re-prompts after a malformed response.
func NewEngine(provider llm.Provider, maxRetries int, timeout time.Duration, log *logrus.Logger) *Engine {
	if maxRetries <= 0 {
		maxRetries = 2
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{provider: provider, maxRetries: maxRetries, timeout: timeout, log: log}
}

// Extract runs the AI call and validates the response against the schema.
// A persistently malformed response is downgraded to an all-null record with
// confidence 0 rather than failing the pipeline; the returned error is then
// the ExtractionError for the caller's log, with the record still usable.
// Only context cancellation aborts outright.
func (e *Engine) Extract(ctx context.Context, reportID string, rawText string) (models.FinancialRecord, error) {
	record := models.FinancialRecord{
		ReportID:     reportID,
		CurrencyUnit: "EUR",
		ExtractedAt:  time.Now().UTC(),
	}

	if len(rawText) > maxTextLength {
		e.log.WithField("report", reportID).Infof("truncating report text from %d to %d characters", len(rawText), maxTextLength)
		rawText = rawText[:maxTextLength] + "..."
	}

	prompt := extractionPrompt
	var lastErr error

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			prompt = correctivePrompt
		}

		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		response, err := e.provider.Generate(callCtx, systemPrompt, prompt+rawText)
		cancel()

		if ctx.Err() != nil {
			return record, ctx.Err()
		}
		if err != nil {
			lastErr = err
			e.log.WithField("attempt", attempt+1).Warnf("extraction call failed: %v", err)
			continue
		}

		var raw rawExtraction
		if _, err := utils.SmartParse(response, &raw); err != nil {
			lastErr = err
			e.log.WithField("attempt", attempt+1).Warnf("extraction response unparseable: %v", err)
			continue
		}

		record.EarningsCurrentYear = normalizeAmount(raw.EarningsCurrentYear)
		record.TotalAssets = normalizeAmount(raw.TotalAssets)
		record.Revenue = normalizeAmount(raw.Revenue)
		record.Confidence = confidence(&record)
		return record, nil
	}

	// All attempts exhausted: signal "found report but no extractable data".
	record.Confidence = 0
	return record, &models.ExtractionError{Err: fmt.Errorf("response malformed after %d attempts: %w", e.maxRetries+1, lastErr)}
}

// confidence is the share of schema fields that yielded a usable value.
func confidence(r *models.FinancialRecord) float64 {
	found := 0
	if r.EarningsCurrentYear != nil {
		found++
	}
	if r.TotalAssets != nil {
		found++
	}
	if r.Revenue != nil {
		found++
	}
	return float64(found) / 3
}
