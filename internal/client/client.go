// Package client provides an HTTP client for the askmycourse server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/askmycourse/internal/metrics"
	"github.com/raphaelgruber/askmycourse/internal/models"
)

// Client talks to the askmycourse REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new client.
// If baseURL is empty, uses ASKMYCOURSE_SERVER_URL env var or defaults to localhost:8585.
// Timeout can be configured via ASKMYCOURSE_CLIENT_TIMEOUT env var (default 5m for slow LLM answers).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("ASKMYCOURSE_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8585"
	}

	timeout := 5 * time.Minute
	if t := os.Getenv("ASKMYCOURSE_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error: %d - %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Answer is the response of POST /answer.
type Answer struct {
	Answer  string            `json:"answer"`
	Sources []models.Document `json:"sources"`
}

// Stats is the response of GET /stats.
type Stats struct {
	Lectures map[string]int   `json:"lectures"`
	Metrics  metrics.Snapshot `json:"metrics"`
}

// do sends a JSON request and decodes a JSON response into result (if non-nil).
func (c *Client) do(ctx context.Context, method, endpoint string, body, result any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &errBody) == nil && errBody.Error != "" {
			msg = errBody.Error
		}
		return resp, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return resp, fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return resp, nil
}

// AddLecture starts ingesting a video and returns the new lecture's file ID.
func (c *Client) AddLecture(ctx context.Context, youtubeURL string) (string, error) {
	var ok bool
	resp, err := c.do(ctx, http.MethodPost, "/add_lecture", map[string]string{"youtube_url": youtubeURL}, &ok)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("server did not accept %s", youtubeURL)
	}
	return path.Base(resp.Header.Get("Location")), nil
}

// ListLectures returns every lecture that has started transcription.
func (c *Client) ListLectures(ctx context.Context) ([]models.LectureSummary, error) {
	var lectures []models.LectureSummary
	if _, err := c.do(ctx, http.MethodGet, "/lectures", nil, &lectures); err != nil {
		return nil, err
	}
	return lectures, nil
}

// GetLecture returns one lecture with its status history.
func (c *Client) GetLecture(ctx context.Context, fileID string) (*models.LectureDetail, error) {
	var lecture models.LectureDetail
	if _, err := c.do(ctx, http.MethodGet, "/lectures/"+url.PathEscape(fileID), nil, &lecture); err != nil {
		return nil, err
	}
	return &lecture, nil
}

// Ask answers a question within a chat session. An empty session uses the server default.
func (c *Client) Ask(ctx context.Context, question, sessionID string) (*Answer, error) {
	req := map[string]string{"question": question}
	if sessionID != "" {
		req["chat_session_id"] = sessionID
	}
	var answer Answer
	if _, err := c.do(ctx, http.MethodPost, "/answer", req, &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

// History returns the turns of a chat session, oldest first. An empty session uses the server default.
func (c *Client) History(ctx context.Context, sessionID string) ([]models.ChatTurn, error) {
	endpoint := "/history"
	if sessionID != "" {
		endpoint += "/" + url.PathEscape(sessionID)
	}
	var turns []models.ChatTurn
	if _, err := c.do(ctx, http.MethodGet, endpoint, nil, &turns); err != nil {
		return nil, err
	}
	return turns, nil
}

// ListJobs returns the most recent stage jobs, newest first.
func (c *Client) ListJobs(ctx context.Context, limit int) ([]models.StageJobInfo, error) {
	endpoint := "/jobs"
	if limit > 0 {
		endpoint += "?limit=" + strconv.Itoa(limit)
	}
	var jobs []models.StageJobInfo
	if _, err := c.do(ctx, http.MethodGet, endpoint, nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetJob returns a single stage job.
func (c *Client) GetJob(ctx context.Context, id string) (*models.StageJobInfo, error) {
	var job models.StageJobInfo
	if _, err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Stats returns lecture counts and server metrics.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if _, err := c.do(ctx, http.MethodGet, "/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// WatchLectures streams the lecture list from the server's websocket feed.
// onUpdate is called with every list the server pushes. Return an error from onUpdate
// to stop watching; ErrStopWatching stops without an error.
func (c *Client) WatchLectures(ctx context.Context, onUpdate func([]models.LectureSummary) error) error {
	wsURL := c.baseURL + "/lectures/watch"
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}

	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var lectures []models.LectureSummary
		if err := conn.ReadJSON(&lectures); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}
		if err := onUpdate(lectures); err != nil {
			if errors.Is(err, ErrStopWatching) {
				return nil
			}
			return err
		}
	}
}

// ErrStopWatching ends WatchLectures cleanly when returned from its callback.
var ErrStopWatching = errors.New("stop watching")
