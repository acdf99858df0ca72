package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/okian/proctor/internal/domain/model"
)

const (
	defaultExternalTimeout = 2 * time.Second
	maxResponseBytes       = 64 << 10
)

// Upstream failure reasons, used as metric labels.
const (
	ReasonTransport = "transport"
	ReasonTimeout   = "timeout"
	ReasonStatus    = "status"
	ReasonDecode    = "decode"
)

// UpstreamError describes a failed external scoring call. It matches
// model.ErrUpstream with errors.Is.
type UpstreamError struct {
	Reason     string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", model.ErrUpstream, e.Reason, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s: %v", model.ErrUpstream, e.Reason, e.Err)
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{model.ErrUpstream}
	}
	return []error{model.ErrUpstream, e.Err}
}

// ExternalOption applies a configuration option to the ExternalScorer.
type ExternalOption func(*ExternalScorer)

// WithTimeout bounds every scoring call.
func WithTimeout(d time.Duration) ExternalOption {
	return func(s *ExternalScorer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client used for scoring calls.
func WithHTTPClient(c *http.Client) ExternalOption {
	return func(s *ExternalScorer) {
		if c != nil {
			s.client = c
		}
	}
}

// ExternalScorer posts the full event history to an inference endpoint.
type ExternalScorer struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// analyzeRequest is the body sent to the inference endpoint.
type analyzeRequest struct {
	BehavioralData []model.BehavioralEvent `json:"behavioral_data"`
}

// analyzeResponse is the body expected from the inference endpoint.
type analyzeResponse struct {
	RiskScore *float64 `json:"risk_score"`
}

// NewExternalScorer creates a scorer that calls url.
func NewExternalScorer(url string, opts ...ExternalOption) *ExternalScorer {
	s := &ExternalScorer{
		url:     url,
		timeout: defaultExternalTimeout,
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score implements Scorer. Every failure is returned as *UpstreamError.
func (s *ExternalScorer) Score(ctx context.Context, in Input) (Result, error) {
	history := in.History
	if history == nil {
		history = []model.BehavioralEvent{}
	}
	body, err := json.Marshal(analyzeRequest{BehavioralData: history})
	if err != nil {
		return Result{}, &UpstreamError{Reason: ReasonTransport, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, &UpstreamError{Reason: ReasonTransport, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, &UpstreamError{Reason: ReasonTimeout, Err: err}
		}
		return Result{}, &UpstreamError{Reason: ReasonTransport, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return Result{}, &UpstreamError{Reason: ReasonStatus, StatusCode: resp.StatusCode}
	}

	var out analyzeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, &UpstreamError{Reason: ReasonTimeout, Err: err}
		}
		return Result{}, &UpstreamError{Reason: ReasonDecode, Err: err}
	}
	if out.RiskScore == nil || math.IsNaN(*out.RiskScore) || math.IsInf(*out.RiskScore, 0) {
		return Result{}, &UpstreamError{Reason: ReasonDecode, Err: errors.New("missing numeric risk_score")}
	}

	return Result{Score: Clamp(int(math.Round(*out.RiskScore))), Strategy: StrategyExternal}, nil
}
