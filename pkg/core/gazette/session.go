package gazette

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/google/uuid"
)

// SessionState tracks where a scraping session sits in its lifecycle.
type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateChallenged
	StateAuthenticated
	StateExpired
)

func (s SessionState) String() string {
	switch s {
	case StateChallenged:
		return "CHALLENGED"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateExpired:
		return "EXPIRED"
	default:
		return "UNAUTHENTICATED"
	}
}

// sessionTTL bounds how long upstream session cookies are trusted before the
// session is considered expired and re-established.
const sessionTTL = 10 * time.Minute

// Session holds the cookies and state for one company-fetch sequence.
// Sessions must not be shared across concurrent analyses: a challenge solve
// on one would invalidate the cookies of the other mid-flight.
type Session struct {
	ID              string
	state           SessionState
	client          *http.Client
	authenticatedAt time.Time
}

// NewSession creates an unauthenticated session with its own cookie jar.
// Callers normally go through Client.NewSession.
func NewSession(timeout time.Duration) *Session {
	jar, _ := cookiejar.New(nil)
	return &Session{
		ID:    uuid.NewString(),
		state: StateUnauthenticated,
		client: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
	}
}

// State returns the current state, downgrading AUTHENTICATED to EXPIRED once
// the session TTL has elapsed.
func (s *Session) State() SessionState {
	if s.state == StateAuthenticated && time.Since(s.authenticatedAt) > sessionTTL {
		s.state = StateExpired
	}
	return s.state
}

func (s *Session) markAuthenticated() {
	s.state = StateAuthenticated
	s.authenticatedAt = time.Now()
}

func (s *Session) markChallenged() {
	s.state = StateChallenged
}

func (s *Session) reset() {
	s.state = StateUnauthenticated
}

// Challenge is the access-control artifact extracted from a gated page:
// the puzzle image plus the form the solution must be posted to.
type Challenge struct {
	ImageData  []byte
	FormAction string
}

// ChallengeSolver is the external collaborator that turns a challenge image
// into a proposed solution token. Implementations may fail or time out.
type ChallengeSolver interface {
	Solve(ctx context.Context, image []byte) (string, error)
}
