package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/okian/proctor/internal/domain/model"
	"github.com/okian/proctor/internal/domain/types"
)

const maxErrorBody = 4 << 10

// Client calls the proctor HTTP API on behalf of one identity.
type Client struct {
	baseURL string
	http    *http.Client
	userID  int64
	role    model.Role
}

// NewClient creates a client that identifies as userID with role.
func NewClient(baseURL string, timeout time.Duration, userID int64, role model.Role) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		userID:  userID,
		role:    role,
	}
}

// As returns a client sharing the transport but acting as another identity.
func (c *Client) As(userID int64, role model.Role) *Client {
	out := *c
	out.userID = userID
	out.role = role
	return &out
}

// do sends a JSON request and decodes the response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any, want int) error {
	var body io.Reader = http.NoBody
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID > 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(c.userID, 10))
		req.Header.Set("X-User-Role", string(c.role))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s %s: %w: %d %s", method, path, ErrUnexpectedCode, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, http.StatusOK)
}

// CreateAssessment creates an assessment as the client's instructor.
func (c *Client) CreateAssessment(ctx context.Context, title string, minutes int) (model.Assessment, error) {
	var a model.Assessment
	in := map[string]any{"title": title, "description": "simulated", "duration": minutes}
	err := c.do(ctx, http.MethodPost, "/api/assessments", in, &a, http.StatusCreated)
	return a, err
}

// ActivateAssessment opens an assessment to students.
func (c *Client) ActivateAssessment(ctx context.Context, id int64) (model.Assessment, error) {
	var a model.Assessment
	active := true
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/assessments/%d", id), model.AssessmentPatch{Active: &active}, &a, http.StatusOK)
	return a, err
}

// CreateSession starts a consented session as the client's student.
func (c *Client) CreateSession(ctx context.Context, assessmentID int64) (model.Session, error) {
	var s model.Session
	in := map[string]any{"assessmentId": assessmentID, "consentGiven": true}
	err := c.do(ctx, http.MethodPost, "/api/sessions", in, &s, http.StatusCreated)
	return s, err
}

// GetSession reads a session.
func (c *Client) GetSession(ctx context.Context, id int64) (model.Session, error) {
	var s model.Session
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/sessions/%d", id), nil, &s, http.StatusOK)
	return s, err
}

// EndSession ends a session now.
func (c *Client) EndSession(ctx context.Context, id int64) (model.Session, error) {
	var s model.Session
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/sessions/%d", id), map[string]any{}, &s, http.StatusOK)
	return s, err
}

// RiskBoard reads the top limit sessions by risk.
func (c *Client) RiskBoard(ctx context.Context, limit int) ([]types.RiskEntry, error) {
	var out []types.RiskEntry
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/analytics/risk?limit=%d", limit), nil, &out, http.StatusOK)
	return out, err
}

// Stream sends envelopes as text frames over one WebSocket connection and
// closes it cleanly. The channel is fire-and-forget so only transport errors
// are reported.
func Stream(ctx context.Context, baseURL string, envs []model.Envelope) error {
	url := "ws" + strings.TrimPrefix(strings.TrimRight(baseURL, "/"), "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer func() { _ = conn.Close() }()

	for i := range envs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := conn.WriteJSON(envs[i]); err != nil {
			return fmt.Errorf("write frame %d: %w", i, err)
		}
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	// Wait for the server's close reply so no queued frame is cut off.
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return nil
		}
	}
}
