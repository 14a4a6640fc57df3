// Package credential is the player-side client of the connection-details endpoint.
package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/zhouzirui/improv-battle/backend/internal/model/connection"
)

const defaultTimeout = 15 * time.Second

// NetworkError means the issuance call failed or returned something unusable.
type NetworkError struct {
	Status int
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("connection details request failed (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("connection details request failed: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Client requests connection details from the API server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: httpClient,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

// ConnectionDetails asks the issuer for a token scoped to a new room.
func (c *Client) ConnectionDetails(ctx context.Context, name string) (connection.Details, error) {
	endpoint := c.baseURL + "/api/connection-details?name=" + url.QueryEscape(name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return connection.Details{}, &NetworkError{Err: errors.Wrap(err, "build request")}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return connection.Details{}, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return connection.Details{}, &NetworkError{Status: resp.StatusCode, Err: errors.Wrap(err, "read body")}
	}

	if resp.StatusCode != http.StatusOK {
		var payload struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
			msg = payload.Error
		}
		return connection.Details{}, &NetworkError{Status: resp.StatusCode, Err: errors.New(msg)}
	}

	var details connection.Details
	if err := json.Unmarshal(body, &details); err != nil {
		return connection.Details{}, &NetworkError{Status: resp.StatusCode, Err: errors.Wrap(err, "decode connection details")}
	}
	if err := details.Validate(); err != nil {
		return connection.Details{}, &NetworkError{Status: resp.StatusCode, Err: errors.Wrap(err, "malformed connection details")}
	}
	return details, nil
}
