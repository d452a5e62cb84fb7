package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/terra-clan/mot-engine/internal/models"
)

// Client is a Go SDK for the mot-engine API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithAPIKey sets the facilitator API key sent as a bearer token
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new mot-engine client. Player calls need no key.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is a non-2xx response decoded from the error envelope
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s - %s", e.Status, e.Code, e.Message)
}

// ListSessionsOptions filters ListSessions
type ListSessionsOptions struct {
	Status string
	Limit  int
	Offset int
}

// --- Content ---

// ListEditions retrieves all loaded editions
func (c *Client) ListEditions(ctx context.Context) ([]models.EditionSummary, error) {
	var data struct {
		Editions []models.EditionSummary `json:"editions"`
		Total    int                     `json:"total"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/editions", nil, &data); err != nil {
		return nil, err
	}
	return data.Editions, nil
}

// GetEdition retrieves the player-facing content of an edition
func (c *Client) GetEdition(ctx context.Context, id string) (*models.EditionDetail, error) {
	var detail models.EditionDetail
	if err := c.do(ctx, http.MethodGet, "/api/v1/editions/"+url.PathEscape(id), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// --- Sessions (facilitator) ---

// CreateSession opens a session; a zero request uses the server defaults
func (c *Client) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.GameSession, error) {
	var session models.GameSession
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession retrieves a session by code
func (c *Client) GetSession(ctx context.Context, code string) (*models.GameSession, error) {
	var session models.GameSession
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions/"+url.PathEscape(code), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessions retrieves sessions, newest first
func (c *Client) ListSessions(ctx context.Context, opts ListSessionsOptions) ([]*models.GameSession, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	var data struct {
		Sessions []*models.GameSession `json:"sessions"`
		Total    int                   `json:"total"`
	}
	if err := c.do(ctx, http.MethodGet, withQuery("/api/v1/sessions", q), nil, &data); err != nil {
		return nil, err
	}
	return data.Sessions, nil
}

// CloseSession stops new players from joining
func (c *Client) CloseSession(ctx context.Context, code string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/sessions/"+url.PathEscape(code), nil, nil)
}

// SessionStats retrieves score statistics for a session
func (c *Client) SessionStats(ctx context.Context, code string) (*models.SessionStats, error) {
	var stats models.SessionStats
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions/"+url.PathEscape(code)+"/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// GlobalLeaderboard retrieves the best result per player across sessions
func (c *Client) GlobalLeaderboard(ctx context.Context, edition string, limit int) ([]models.LeaderboardEntry, error) {
	q := url.Values{}
	if edition != "" {
		q.Set("edition", edition)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var data struct {
		Entries []models.LeaderboardEntry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, withQuery("/api/v1/leaderboard", q), nil, &data); err != nil {
		return nil, err
	}
	return data.Entries, nil
}

// --- Players ---

// Join enters a session, resuming the player's path if the name is known
func (c *Client) Join(ctx context.Context, code, username string) (*models.JoinResponse, error) {
	var resp models.JoinResponse
	req := models.JoinRequest{Username: username}
	if err := c.do(ctx, http.MethodPost, "/api/v1/join/"+url.PathEscape(code), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SessionBoard retrieves the live leaderboard of a session
func (c *Client) SessionBoard(ctx context.Context, code string) ([]models.LeaderboardEntry, error) {
	var board models.BoardUpdate
	if err := c.do(ctx, http.MethodGet, "/api/v1/board/"+url.PathEscape(code), nil, &board); err != nil {
		return nil, err
	}
	return board.Entries, nil
}

// GetPath retrieves a player's path by token
func (c *Client) GetPath(ctx context.Context, token string) (*models.PlayerPath, error) {
	var path models.PlayerPath
	if err := c.do(ctx, http.MethodGet, playPath(token, ""), nil, &path); err != nil {
		return nil, err
	}
	return &path, nil
}

// StepChoices retrieves the choices a player sees for a step
func (c *Client) StepChoices(ctx context.Context, token string, step models.Step) (*models.StepView, error) {
	var view models.StepView
	if err := c.do(ctx, http.MethodGet, playPath(token, "/steps/"+step.String()+"/choices"), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// SubmitStep records a player's answer for a step
func (c *Client) SubmitStep(ctx context.Context, token string, step models.Step, sub models.StepSubmission) (*models.StepOutcome, error) {
	var outcome models.StepOutcome
	if err := c.do(ctx, http.MethodPost, playPath(token, "/steps/"+step.String()), sub, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

// Score retrieves the running score of a path
func (c *Client) Score(ctx context.Context, token string) (*models.ScoreSummary, error) {
	var summary models.ScoreSummary
	if err := c.do(ctx, http.MethodGet, playPath(token, "/score"), nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Result retrieves the final result of a completed path
func (c *Client) Result(ctx context.Context, token string) (*models.Result, error) {
	var result models.Result
	if err := c.do(ctx, http.MethodGet, playPath(token, "/result"), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func playPath(token, suffix string) string {
	return "/api/v1/play/" + url.PathEscape(token) + suffix
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

// do performs an HTTP request and decodes the envelope's data into out
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{Status: resp.StatusCode, Code: "http_error", Message: string(respBody)}
		}
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !envelope.Success || resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Code: "unknown_error"}
		if envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}

	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return nil
}
