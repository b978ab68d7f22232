// Package client is a Go SDK for the Fix My Ward API.
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
	"strings"
	"sync"
	"time"

	"github.com/fixmyward/ward-service/internal/api/dto"
)

// APIError is returned when the API responds with a non-2xx status.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ward api %d: %s (%s)", e.Status, e.Message, e.Code)
}

// Client calls the REST API with an optional bearer token.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	mu    sync.RWMutex
	token string
}

// Option configures the client.
type Option func(*Client)

// WithToken sets the bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.HTTPClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// New creates a client for baseURL, e.g. "http://localhost:5000".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the bearer token. An empty token signs the client out.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// WebsocketURL is the authenticated ward-room endpoint.
func (c *Client) WebsocketURL() (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	q := u.Query()
	q.Set("token", c.Token())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && resp.StatusCode < 400 {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 400 {
		if env.Error != nil {
			return &APIError{Status: resp.StatusCode, Code: env.Error.Code, Message: env.Error.Message, Details: env.Error.Details}
		}
		return &APIError{Status: resp.StatusCode, Code: "UNKNOWN", Message: http.StatusText(resp.StatusCode)}
	}

	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

// Signup calls POST /auth/signup and keeps the returned token.
func (c *Client) Signup(ctx context.Context, req dto.SignupRequest) (*dto.SessionResponse, error) {
	var out dto.SessionResponse
	if err := c.do(ctx, http.MethodPost, "/auth/signup", req, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.Auth.Token)
	return &out, nil
}

// Login calls POST /auth/login and keeps the returned token.
func (c *Client) Login(ctx context.Context, req dto.LoginRequest) (*dto.SessionResponse, error) {
	var out dto.SessionResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, &out); err != nil {
		return nil, err
	}
	c.SetToken(out.Auth.Token)
	return &out, nil
}

// ForgotPassword calls POST /auth/forgot.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/auth/forgot", dto.ForgotPasswordRequest{Email: email}, nil)
}

// ResetPassword calls POST /auth/reset.
func (c *Client) ResetPassword(ctx context.Context, token, password string) error {
	return c.do(ctx, http.MethodPost, "/auth/reset", dto.ResetPasswordRequest{Token: token, Password: password}, nil)
}

// Me calls GET /auth/me.
func (c *Client) Me(ctx context.Context) (*dto.UserResponse, error) {
	var out dto.UserResponse
	err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out)
	return &out, err
}

// IssueQuery filters ListIssues. Zero values are omitted.
type IssueQuery struct {
	Ward     string
	Status   string
	Category string
	Page     int
	PageSize int
}

func (q IssueQuery) encode() string {
	v := url.Values{}
	if q.Ward != "" {
		v.Set("ward", q.Ward)
	}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set("page_size", strconv.Itoa(q.PageSize))
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

// CreateIssue calls POST /issues.
func (c *Client) CreateIssue(ctx context.Context, req dto.CreateIssueRequest) (*dto.IssueResponse, error) {
	var out dto.IssueResponse
	err := c.do(ctx, http.MethodPost, "/issues", req, &out)
	return &out, err
}

// ListIssues calls GET /issues.
func (c *Client) ListIssues(ctx context.Context, q IssueQuery) ([]dto.IssueResponse, error) {
	var out []dto.IssueResponse
	err := c.do(ctx, http.MethodGet, "/issues"+q.encode(), nil, &out)
	return out, err
}

// GetIssue calls GET /issues/{id}.
func (c *Client) GetIssue(ctx context.Context, id string) (*dto.IssueResponse, error) {
	var out dto.IssueResponse
	err := c.do(ctx, http.MethodGet, "/issues/"+url.PathEscape(id), nil, &out)
	return &out, err
}

// UpdateStatus calls PATCH /issues/{id}/status.
func (c *Client) UpdateStatus(ctx context.Context, id string, req dto.UpdateStatusRequest) (*dto.IssueResponse, error) {
	var out dto.IssueResponse
	err := c.do(ctx, http.MethodPatch, "/issues/"+url.PathEscape(id)+"/status", req, &out)
	return &out, err
}

// IssueHistory calls GET /issues/:id/history.
func (c *Client) IssueHistory(ctx context.Context, id string) ([]dto.StatusChangeResponse, error) {
	var out []dto.StatusChangeResponse
	err := c.do(ctx, http.MethodGet, "/issues/"+url.PathEscape(id)+"/history", nil, &out)
	return out, err
}

// AddComment calls POST /issues/{id}/comments.
func (c *Client) AddComment(ctx context.Context, id, text string) (*dto.IssueResponse, error) {
	var out dto.IssueResponse
	err := c.do(ctx, http.MethodPost, "/issues/"+url.PathEscape(id)+"/comments", dto.AddCommentRequest{Text: text}, &out)
	return &out, err
}

// DeleteIssue calls DELETE /issues/{id}.
func (c *Client) DeleteIssue(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/issues/"+url.PathEscape(id), nil, nil)
}

// Analyze calls POST /issues/analyze.
func (c *Client) Analyze(ctx context.Context, title, description string) (*dto.AnalyzeResponse, error) {
	var out dto.AnalyzeResponse
	err := c.do(ctx, http.MethodPost, "/issues/analyze", dto.AnalyzeRequest{Title: title, Description: description}, &out)
	return &out, err
}

// ListNotifications calls GET /notifications.
func (c *Client) ListNotifications(ctx context.Context, page, pageSize int) ([]dto.NotificationResponse, error) {
	var out []dto.NotificationResponse
	path := fmt.Sprintf("/notifications?page=%d&page_size=%d", max(page, 1), max(pageSize, 1))
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// MarkNotificationRead calls PATCH /notifications/{id}/read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPatch, "/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

// ComposeNotification calls POST /notifications/compose.
func (c *Client) ComposeNotification(ctx context.Context, action, issueID string) (*dto.DraftResponse, error) {
	var out dto.DraftResponse
	err := c.do(ctx, http.MethodPost, "/notifications/compose", dto.ComposeRequest{Action: action, IssueID: issueID}, &out)
	return &out, err
}
