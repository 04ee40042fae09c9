package gazette

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"bundesanzeiger_insight/pkg/core/config"
	"bundesanzeiger_insight/pkg/models"
)

// staticSolver answers every challenge with the same token.
type staticSolver struct {
	solution string
	err      error
	calls    int32
}

func (s *staticSolver) Solve(ctx context.Context, image []byte) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.solution, s.err
}

func testConfig(baseURL string) *config.Config {
	cfg := config.Default()
	cfg.Upstream.BaseURL = baseURL
	cfg.Upstream.RetryBackoff = config.Duration(time.Millisecond)
	cfg.Upstream.RatePerSecond = 1000
	cfg.Upstream.RateBurst = 1000
	cfg.Challenge.Backoff = config.Duration(time.Millisecond)
	return cfg
}

func TestSessionLifecycle(t *testing.T) {
	s := NewSession(time.Second)
	if s.ID == "" {
		t.Error("session must carry an id")
	}
	if got := s.State(); got != StateUnauthenticated {
		t.Errorf("fresh session state = %v", got)
	}

	s.markChallenged()
	if got := s.State(); got != StateChallenged {
		t.Errorf("state after challenge = %v", got)
	}

	s.markAuthenticated()
	if got := s.State(); got != StateAuthenticated {
		t.Errorf("state after auth = %v", got)
	}

	// Backdate past the TTL; State must downgrade on read.
	s.authenticatedAt = time.Now().Add(-sessionTTL - time.Minute)
	if got := s.State(); got != StateExpired {
		t.Errorf("state past TTL = %v, want EXPIRED", got)
	}

	s.reset()
	if got := s.State(); got != StateUnauthenticated {
		t.Errorf("state after reset = %v", got)
	}
}

func TestSearchFlow(t *testing.T) {
	var sawConsent bool
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("cc"); err == nil && c.Value == consentCookie {
			sawConsent = true
		}
		fmt.Fprint(w, "<html><body>start</body></html>")
	})
	mux.HandleFunc("/pub/de/start", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fulltext") == "" {
			fmt.Fprint(w, "<html><body>form</body></html>")
			return
		}
		fmt.Fprint(w, `<div class="result_container">
			<div class="row">
				<div class="first">Alt GmbH</div>
				<div class="area">Rechnungslegung</div>
				<div class="info"><a href="/pub/alt">Jahresabschluss 2020</a></div>
				<div class="date">10.03.2021</div>
			</div>
			<div class="row">
				<div class="first">Neu GmbH</div>
				<div class="area">Rechnungslegung</div>
				<div class="info"><a href="/pub/neu">Jahresabschluss 2022</a></div>
				<div class="date">10.03.2023</div>
			</div>
			<div class="row">
				<div class="first">Undatiert GmbH</div>
				<div class="area">Rechnungslegung</div>
				<div class="info"><a href="/pub/undatiert">Jahresabschluss</a></div>
			</div>
		</div>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil, nil)
	session := client.NewSession()

	reports, err := client.Search(context.Background(), session, "GmbH")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !sawConsent {
		t.Error("consent cookie was not sent on the entry page")
	}
	if session.State() != StateAuthenticated {
		t.Errorf("session state = %v, want AUTHENTICATED", session.State())
	}
	if len(reports) != 3 {
		t.Fatalf("got %d reports, want 3", len(reports))
	}
	if reports[0].CompanyName != "Neu GmbH" {
		t.Errorf("newest report must sort first, got %q", reports[0].CompanyName)
	}
	if reports[2].CompanyName != "Undatiert GmbH" {
		t.Errorf("undated report must sort last, got %q", reports[2].CompanyName)
	}
}

func TestFetchContentDirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>start</body></html>")
	})
	mux.HandleFunc("/pub/report", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<div class="publication_container">Bilanzsumme: 500.000 EUR</div>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil, nil)
	session := client.NewSession()

	text, err := client.FetchContent(context.Background(), session, &models.Report{ContentURL: "/pub/report"})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if text != "Bilanzsumme: 500.000 EUR" {
		t.Errorf("text = %q", text)
	}
}

func TestFetchContentSolvesChallenge(t *testing.T) {
	var solved atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>start</body></html>")
	})
	mux.HandleFunc("/pub/gated", func(w http.ResponseWriter, r *http.Request) {
		if solved.Load() {
			fmt.Fprint(w, `<div class="publication_container">Umsatz: 1 Mio EUR</div>`)
			return
		}
		fmt.Fprint(w, `<form action="/search"></form>
			<div class="captcha_wrapper"><img src="/captcha.png"></div>
			<form action="/pub/solve"></form>`)
	})
	mux.HandleFunc("/captcha.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{0x89, 0x50, 0x4e, 0x47})
	})
	mux.HandleFunc("/pub/solve", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Method == "POST" && r.PostForm.Get("solution") == "K7F2A" && r.PostForm.Get("confirm-button") == "OK" {
			solved.Store(true)
			fmt.Fprint(w, `<div class="publication_container">Umsatz: 1 Mio EUR</div>`)
			return
		}
		fmt.Fprint(w, `<form action="/search"></form>
			<div class="captcha_wrapper"><img src="/captcha.png"></div>
			<form action="/pub/solve"></form>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	solver := &staticSolver{solution: "K7F2A"}
	client := NewClient(testConfig(srv.URL), solver, nil)
	session := client.NewSession()

	text, err := client.FetchContent(context.Background(), session, &models.Report{ContentURL: "/pub/gated"})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if text != "Umsatz: 1 Mio EUR" {
		t.Errorf("text = %q", text)
	}
	if atomic.LoadInt32(&solver.calls) != 1 {
		t.Errorf("solver called %d times, want 1", solver.calls)
	}
	if session.State() != StateAuthenticated {
		t.Errorf("session state = %v, want AUTHENTICATED after solve", session.State())
	}
}

func TestFetchContentChallengeExhausted(t *testing.T) {
	challengePage := `<form action="/search"></form>
		<div class="captcha_wrapper"><img src="/captcha.png"></div>
		<form action="/pub/solve"></form>`

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>start</body></html>")
	})
	mux.HandleFunc("/pub/gated", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, challengePage)
	})
	mux.HandleFunc("/captcha.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{0x89})
	})
	mux.HandleFunc("/pub/solve", func(w http.ResponseWriter, r *http.Request) {
		// Every solution is wrong.
		fmt.Fprint(w, challengePage)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	solver := &staticSolver{solution: "WRONG"}
	client := NewClient(testConfig(srv.URL), solver, nil)
	session := client.NewSession()

	_, err := client.FetchContent(context.Background(), session, &models.Report{ContentURL: "/pub/gated"})
	var challengeErr *models.ChallengeUnsolvedError
	if !errors.As(err, &challengeErr) {
		t.Fatalf("expected ChallengeUnsolvedError, got %v", err)
	}
	if challengeErr.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", challengeErr.Attempts)
	}
	if got := atomic.LoadInt32(&solver.calls); got != 3 {
		t.Errorf("solver called %d times, want 3", got)
	}
	if session.State() != StateUnauthenticated {
		t.Errorf("session state = %v, want reset to UNAUTHENTICATED", session.State())
	}
}

func TestFetchContentNoSolver(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>start</body></html>")
	})
	mux.HandleFunc("/pub/gated", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<div class="captcha_wrapper"><img src="/c.png"></div>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil, nil)
	_, err := client.FetchContent(context.Background(), client.NewSession(), &models.Report{ContentURL: "/pub/gated"})
	var challengeErr *models.ChallengeUnsolvedError
	if !errors.As(err, &challengeErr) {
		t.Fatalf("expected ChallengeUnsolvedError, got %v", err)
	}
}

func TestRetryBudgetYieldsNetworkError(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil, nil)
	session := client.NewSession()

	_, err := client.Search(context.Background(), session, "Musterfirma")
	var netErr *models.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Errorf("upstream hit %d times, want 3 retries of the first request", got)
	}
}
