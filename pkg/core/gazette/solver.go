package gazette

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPSolver delegates challenge solving to a remote endpoint that accepts
// the raw puzzle image and responds with {"solution": "..."}.
type HTTPSolver struct {
	Endpoint string
	client   *http.Client
}

var _ ChallengeSolver = (*HTTPSolver)(nil)

// NewHTTPSolver creates a solver client for the given endpoint.
func NewHTTPSolver(endpoint string) *HTTPSolver {
	return &HTTPSolver{
		Endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Solve posts the image bytes and returns the proposed solution token.
func (s *HTTPSolver) Solve(ctx context.Context, image []byte) (string, error) {
	if s.Endpoint == "" {
		return "", fmt.Errorf("no solver endpoint configured")
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.Endpoint, bytes.NewReader(image))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("solver request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("solver returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Solution string `json:"solution"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse solver response: %w", err)
	}
	if result.Solution == "" {
		return "", fmt.Errorf("solver returned empty solution")
	}
	return result.Solution, nil
}
