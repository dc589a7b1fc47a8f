// Package taskapi is the request/response client for the task service:
// account endpoints, the task catalog, standalone submissions and the
// per-user analytics summary. It has no state machine of its own; every
// call either renders a result or maps a failure onto a sentinel error.
package taskapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/playperu/taskduel/internal/auth"
	"github.com/playperu/taskduel/internal/protocol"
)

var (
	// ErrAuthRequired means there is no usable credential: either none is
	// stored or the server rejected the one we sent. Never retried.
	ErrAuthRequired = errors.New("sign-in required")

	// ErrAlreadyAnswered means the server already holds a submission for
	// this task from this user.
	ErrAlreadyAnswered = errors.New("answer already submitted")

	ErrNotFound = errors.New("not found")
)

// Submission is the server's record of one standalone answer.
type Submission struct {
	ID        int64  `json:"id"`
	TaskID    int64  `json:"task_id"`
	Answer    string `json:"answer"`
	IsCorrect bool   `json:"is_correct"`
}

// Summary aggregates this user's standalone submissions.
type Summary struct {
	TotalSubmissions   int            `json:"total_submissions"`
	CorrectSubmissions int            `json:"correct_submissions"`
	Accuracy           float64        `json:"accuracy"`
	AvgDurationMS      *float64       `json:"avg_duration_ms"`
	BySubject          []SubjectStats `json:"by_subject"`
}

type SubjectStats struct {
	Subject string `json:"subject"`
	Total   int    `json:"total"`
	Correct int    `json:"correct"`
}

// ListParams filters and pages the task catalog. Zero values are omitted.
type ListParams struct {
	Subject       string
	Topic         string
	DifficultyMin int
	DifficultyMax int
	Query         string
	Limit         int
	Offset        int
}

type Client struct {
	baseURL string
	httpc   *http.Client
	creds   auth.Store
}

func New(baseURL string, timeout time.Duration, creds auth.Store) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		creds:   creds,
	}
}

// Login exchanges a username and password for a bearer token and stores
// it in the credential store.
func (c *Client) Login(ctx context.Context, username, password string) error {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/auth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.do(req, http.StatusOK, &body); err != nil {
		return err
	}
	if body.AccessToken == "" {
		return errors.New("server returned an empty token")
	}
	if err := c.creds.SetToken(body.AccessToken); err != nil {
		return fmt.Errorf("storing token: %w", err)
	}
	return nil
}

// Register creates an account. The caller still has to log in afterwards.
func (c *Client) Register(ctx context.Context, email, username, password string) error {
	payload := map[string]string{"email": email, "username": username, "password": password}
	req, err := c.jsonRequest(ctx, http.MethodPost, "/api/auth/register", payload)
	if err != nil {
		return err
	}
	return c.do(req, http.StatusCreated, nil)
}

func (c *Client) ListTasks(ctx context.Context, p ListParams) ([]protocol.Task, error) {
	q := url.Values{}
	if p.Subject != "" {
		q.Set("subject", p.Subject)
	}
	if p.Topic != "" {
		q.Set("topic", p.Topic)
	}
	if p.DifficultyMin > 0 {
		q.Set("difficulty_min", strconv.Itoa(p.DifficultyMin))
	}
	if p.DifficultyMax > 0 {
		q.Set("difficulty_max", strconv.Itoa(p.DifficultyMax))
	}
	if p.Query != "" {
		q.Set("q", p.Query)
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		q.Set("offset", strconv.Itoa(p.Offset))
	}

	path := "/api/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	req, err := c.jsonRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var tasks []protocol.Task
	if err := c.do(req, http.StatusOK, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *Client) GetTask(ctx context.Context, id int64) (protocol.Task, error) {
	req, err := c.jsonRequest(ctx, http.MethodGet, fmt.Sprintf("/api/tasks/%d", id), nil)
	if err != nil {
		return protocol.Task{}, err
	}

	var task protocol.Task
	if err := c.do(req, http.StatusOK, &task); err != nil {
		return protocol.Task{}, err
	}
	return task, nil
}

// Submit sends a standalone (non-PvP) answer for grading.
func (c *Client) Submit(ctx context.Context, taskID int64, answer string) (Submission, error) {
	payload := map[string]string{"answer": answer}
	req, err := c.jsonRequest(ctx, http.MethodPost, fmt.Sprintf("/api/tasks/%d/submit", taskID), payload)
	if err != nil {
		return Submission{}, err
	}

	var sub Submission
	if err := c.do(req, http.StatusCreated, &sub); err != nil {
		return Submission{}, err
	}
	return sub, nil
}

func (c *Client) Summary(ctx context.Context) (Summary, error) {
	req, err := c.jsonRequest(ctx, http.MethodGet, "/api/analytics/me/summary", nil)
	if err != nil {
		return Summary{}, err
	}

	var s Summary
	if err := c.do(req, http.StatusOK, &s); err != nil {
		return Summary{}, err
	}
	return s, nil
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do attaches the bearer token, runs the request and decodes the response
// into out when the status matches. Other statuses map onto the error
// taxonomy; the server's "detail" message is kept where it has one.
func (c *Client) do(req *http.Request, wantStatus int, out any) error {
	token, err := c.creds.Token()
	if err != nil {
		return fmt.Errorf("reading credential: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("calling task service: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != wantStatus {
		return statusError(res)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func statusError(res *http.Response) error {
	switch res.StatusCode {
	case http.StatusUnauthorized:
		return ErrAuthRequired
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrAlreadyAnswered
	}

	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err == nil && body.Detail != "" {
		return fmt.Errorf("task service: %s (status %d)", body.Detail, res.StatusCode)
	}
	return fmt.Errorf("task service: unexpected status %d", res.StatusCode)
}
