package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is an HTTP client for the API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError represents an error response from the API
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an API error
type ErrorResponse struct {
	Error APIError `json:"error"`
}

func (e *APIError) String() string {
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// RequestError is returned for non-2xx responses
type RequestError struct {
	Status int
	API    APIError
}

func (e *RequestError) Error() string {
	if e.API.Code != "" {
		return e.API.String()
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// IsNotFound reports whether err is a 404 from the API
func IsNotFound(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.Status == http.StatusNotFound
}

// Do performs an HTTP request
func (c *Client) Do(method, path string, body, result any) error {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	// Check for error responses
	if resp.StatusCode >= 400 {
		reqErr := &RequestError{Status: resp.StatusCode}
		var errResp ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil {
			reqErr.API = errResp.Error
		}
		return reqErr
	}

	// Parse successful response
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return nil
}

// Get performs a GET request
func (c *Client) Get(path string, result any) error {
	return c.Do(http.MethodGet, path, nil, result)
}

// Post performs a POST request
func (c *Client) Post(path string, body, result any) error {
	return c.Do(http.MethodPost, path, body, result)
}

// Join queues the player into a room
func (c *Client) Join(name, playerID string) (JoinResult, error) {
	var result JoinResult
	err := c.Post("/api/v1/rooms/join", map[string]string{"display_name": name, "player_id": playerID}, &result)
	return result, err
}

// Leave removes the player from their room
func (c *Client) Leave(playerID string) error {
	return c.Post("/api/v1/rooms/leave", map[string]string{"player_id": playerID}, nil)
}

// RoomStatus fetches the polled view of a room
func (c *Client) RoomStatus(roomID string) (RoomStatus, error) {
	var result RoomStatus
	err := c.Get("/api/v1/rooms/"+url.PathEscape(roomID), &result)
	return result, err
}

// PlayerRoom fetches the status of the player's current room
func (c *Client) PlayerRoom(playerID string) (RoomStatus, error) {
	var result RoomStatus
	err := c.Get("/api/v1/players/"+url.PathEscape(playerID)+"/room", &result)
	return result, err
}

// Start starts the game in a full room
func (c *Client) Start(roomID string) (StartResult, error) {
	var result StartResult
	err := c.Post("/api/v1/rooms/"+url.PathEscape(roomID)+"/start", nil, &result)
	return result, err
}

// WebSocketURL maps the server URL to the push endpoint
func (c *Client) WebSocketURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/api/v1/ws"
}
