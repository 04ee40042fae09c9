// Package gazette talks to the Bundesanzeiger public registry: session and
// challenge handling, company search, report listing, and report content
// retrieval.
package gazette

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"bundesanzeiger_insight/pkg/core/config"
	"bundesanzeiger_insight/pkg/models"
)

const (
	searchPath = "/pub/de/start?0-2.-top%%7Econtent%%7Epanel-left%%7Ecard-form=&fulltext=%s&area_select=&search_button=Suchen"
	startPath  = "/pub/de/start?0"

	// Consent cookie the upstream expects before serving search results.
	consentCookie = "1628606977-805e172265bfdbde-10"
)

// browserHeaders mirrors a regular browser; the upstream serves an empty
// shell to clients it does not recognize.
var browserHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
	"Accept-Language":           "de-DE,de;q=0.9,en-US;q=0.8,en;q=0.7",
	"Cache-Control":             "no-cache",
	"Connection":                "keep-alive",
	"Pragma":                    "no-cache",
	"Upgrade-Insecure-Requests": "1",
	"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/92.0.4515.131 Safari/537.36",
}

// Client performs upstream registry requests. It is safe for concurrent use;
// per-analysis state lives in the Session each call receives.
type Client struct {
	baseURL           string
	timeout           time.Duration
	retryAttempts     int
	retryBackoff      time.Duration
	challengeAttempts int
	challengeBackoff  time.Duration
	limiter           *rate.Limiter
	solver            ChallengeSolver
	log               *logrus.Logger
}

// NewClient builds a Client from configuration. solver resolves access
// challenges; it may be nil, in which case gated reports fail with
// ChallengeUnsolvedError immediately.
func NewClient(cfg *config.Config, solver ChallengeSolver, log *logrus.Logger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		baseURL:           strings.TrimRight(cfg.Upstream.BaseURL, "/"),
		timeout:           cfg.Upstream.RequestTimeout.Std(),
		retryAttempts:     cfg.Upstream.RetryAttempts,
		retryBackoff:      cfg.Upstream.RetryBackoff.Std(),
		challengeAttempts: cfg.Challenge.MaxAttempts,
		challengeBackoff:  cfg.Challenge.Backoff.Std(),
		limiter:           rate.NewLimiter(rate.Limit(cfg.Upstream.RatePerSecond), cfg.Upstream.RateBurst),
		solver:            solver,
		log:               log,
	}
}

// NewSession creates a fresh session for one company-fetch sequence.
func (c *Client) NewSession() *Session {
	return NewSession(c.timeout)
}

// ensureAuthenticated primes the session cookies by walking the entry pages,
// the way a browser arrives at the search form. Re-entrant: an EXPIRED
// session is re-established from scratch.
func (c *Client) ensureAuthenticated(ctx context.Context, s *Session) error {
	switch s.State() {
	case StateAuthenticated:
		return nil
	case StateExpired:
		c.log.WithField("session", s.ID).Info("session expired, re-authenticating")
		s.reset()
	}

	base, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("bad upstream base URL: %w", err)
	}
	s.client.Jar.SetCookies(base, []*http.Cookie{{Name: "cc", Value: consentCookie}})

	if _, err := c.get(ctx, s, c.baseURL); err != nil {
		return err
	}
	if _, err := c.get(ctx, s, c.baseURL+startPath); err != nil {
		return err
	}

	s.markAuthenticated()
	c.log.WithField("session", s.ID).Debug("session established")
	return nil
}

// Search runs the fulltext query and returns the financial-report rows,
// newest first. Rows without a parsable date sort last.
func (c *Client) Search(ctx context.Context, s *Session, companyName string) ([]models.Report, error) {
	if err := c.ensureAuthenticated(ctx, s); err != nil {
		return nil, err
	}

	searchURL := c.baseURL + fmt.Sprintf(searchPath, url.QueryEscape(companyName))
	html, err := c.get(ctx, s, searchURL)
	if err != nil {
		return nil, err
	}

	reports, err := parseSearchResults(html)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(reports, func(i, j int) bool {
		di, dj := reports[i].PublishDate, reports[j].PublishDate
		if di.IsZero() != dj.IsZero() {
			return dj.IsZero()
		}
		return di.After(dj)
	})
	return reports, nil
}

// FetchContent retrieves the raw report text, solving an access challenge if
// the page is gated. An expired session is transparently re-established once.
func (c *Client) FetchContent(ctx context.Context, s *Session, report *models.Report) (string, error) {
	if err := c.ensureAuthenticated(ctx, s); err != nil {
		return "", err
	}

	html, err := c.get(ctx, s, c.absURL(report.ContentURL))
	if err != nil {
		return "", err
	}

	if isChallengePage(html) {
		html, err = c.solveChallenge(ctx, s, html)
		if err != nil {
			return "", err
		}
	}

	text := extractPublicationText(html)
	if text == "" {
		return "", &models.NetworkError{Op: "fetch report content", Err: fmt.Errorf("no publication content in response")}
	}
	return text, nil
}

// solveChallenge runs the bounded solve loop: fetch puzzle image, delegate to
// the solver, post the solution, re-check. Each failed round backs off.
func (c *Client) solveChallenge(ctx context.Context, s *Session, html string) (string, error) {
	if c.solver == nil {
		return "", &models.ChallengeUnsolvedError{Attempts: 0, Err: fmt.Errorf("no challenge solver configured")}
	}

	s.markChallenged()
	var lastErr error

	for attempt := 1; attempt <= c.challengeAttempts; attempt++ {
		imageSrc, formAction, err := extractChallenge(html)
		if err != nil {
			lastErr = err
			break
		}

		image, err := c.getBytes(ctx, s, c.absURL(imageSrc))
		if err != nil {
			lastErr = err
			break
		}

		solution, err := c.solver.Solve(ctx, image)
		if err != nil {
			lastErr = err
			c.log.WithField("attempt", attempt).Warnf("challenge solver failed: %v", err)
		} else {
			html, err = c.postForm(ctx, s, c.absURL(formAction), url.Values{
				"solution":       {solution},
				"confirm-button": {"OK"},
			})
			if err != nil {
				lastErr = err
			} else if !isChallengePage(html) {
				s.markAuthenticated()
				return html, nil
			} else {
				lastErr = fmt.Errorf("solution rejected by upstream")
			}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.challengeBackoff * time.Duration(attempt)):
		}
	}

	s.reset()
	return "", &models.ChallengeUnsolvedError{Attempts: c.challengeAttempts, Err: lastErr}
}

// get fetches a URL within the retry budget and returns the body as a string.
func (c *Client) get(ctx context.Context, s *Session, rawURL string) (string, error) {
	body, err := c.do(ctx, s, "GET", rawURL, nil, "")
	return string(body), err
}

func (c *Client) getBytes(ctx context.Context, s *Session, rawURL string) ([]byte, error) {
	return c.do(ctx, s, "GET", rawURL, nil, "")
}

func (c *Client) postForm(ctx context.Context, s *Session, rawURL string, form url.Values) (string, error) {
	body, err := c.do(ctx, s, "POST", rawURL, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	return string(body), err
}

// do issues one upstream request with rate limiting and exponential backoff.
// Non-2xx responses and transport errors are retried; once the budget is
// exhausted the failure surfaces as NetworkError.
func (c *Client) do(ctx context.Context, s *Session, method, rawURL string, reqBody io.Reader, contentType string) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		for k, v := range browserHeaders {
			req.Header.Set(k, v)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				lastErr = readErr
			} else if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return body, nil
			} else {
				lastErr = fmt.Errorf("upstream returned status %d", resp.StatusCode)
			}
		}

		if attempt < c.retryAttempts {
			c.log.WithFields(logrus.Fields{"url": rawURL, "attempt": attempt}).
				Warnf("upstream request failed, retrying: %v", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		// POST bodies cannot be replayed from a consumed reader.
		if reqBody != nil && attempt < c.retryAttempts {
			if seeker, ok := reqBody.(io.Seeker); ok {
				seeker.Seek(0, io.SeekStart)
			} else {
				break
			}
		}
	}

	return nil, &models.NetworkError{Op: method + " " + rawURL, Err: lastErr}
}

// absURL resolves listing hrefs, which may be relative, against the base URL.
func (c *Client) absURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasPrefix(href, "/") {
		return c.baseURL + href
	}
	return c.baseURL + "/" + href
}
