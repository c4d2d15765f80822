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
	"time"
)

// HTTPClient makes REST calls to the parking backend. All requests go
// through the Guard transport.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client targeting baseURL (e.g.
// "http://localhost:8000") whose requests are routed through guard.
func NewHTTPClient(baseURL string, guard *Guard, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Transport: guard, Timeout: timeout},
	}
}

// --- Auth ---

// Login exchanges username/password for an access token. The body is
// form-encoded as the backend's OAuth2 password flow expects.
func (c *HTTPClient) Login(ctx context.Context, username, password string) (*AuthResponse, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/login",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out AuthResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout sends POST /api/auth/logout.
func (c *HTTPClient) Logout(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

// Me fetches /api/auth/me.
func (c *HTTPClient) Me(ctx context.Context) (*Identity, error) {
	var id Identity
	if err := c.doJSON(ctx, http.MethodGet, "/api/auth/me", nil, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// --- Alerts ---

// ListAlerts fetches /api/alerts.
func (c *HTTPClient) ListAlerts(ctx context.Context) ([]Alert, error) {
	var out []Alert
	if err := c.doJSON(ctx, http.MethodGet, "/api/alerts", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AlertHistory fetches /api/alerts/history.
func (c *HTTPClient) AlertHistory(ctx context.Context) ([]Alert, error) {
	var out []Alert
	if err := c.doJSON(ctx, http.MethodGet, "/api/alerts/history", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ResolveAlert sends PUT /api/alerts/{id}/resolve.
func (c *HTTPClient) ResolveAlert(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPut, "/api/alerts/"+url.PathEscape(id)+"/resolve", nil, nil)
}

// --- Analytics and events ---

// Occupancy fetches /api/analytics/occupancy.
func (c *HTTPClient) Occupancy(ctx context.Context) (*Occupancy, error) {
	var o Occupancy
	if err := c.doJSON(ctx, http.MethodGet, "/api/analytics/occupancy", nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// ListEvents fetches the most recent parking events.
func (c *HTTPClient) ListEvents(ctx context.Context, limit int) ([]ParkingEvent, error) {
	path := "/api/events"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []ParkingEvent
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, result)
}

func (c *HTTPClient) do(req *http.Request, result any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// errorMessage extracts {"detail": "..."} or {"error": "..."} from an
// error body, falling back to the raw text.
func errorMessage(body []byte) string {
	var e struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil {
		var detail string
		if json.Unmarshal(e.Detail, &detail) == nil && detail != "" {
			return detail
		}
		if e.Error != "" {
			return e.Error
		}
		if len(e.Detail) > 0 {
			return string(e.Detail)
		}
	}
	return strings.TrimSpace(string(body))
}
