package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Colors for terminal output
const (
	Red    = "\033[0;31m"
	Green  = "\033[0;32m"
	Yellow = "\033[1;33m"
	Blue   = "\033[0;34m"
	Cyan   = "\033[0;36m"
	Reset  = "\033[0m"
)

const pingPath = "/api/auth/me"

// ErrAPI marks a request the backend answered with an error.
var ErrAPI = errors.New("API error")

// APIError carries the backend's status and message.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
	}
	return "API error: " + e.Message
}

func (e *APIError) Unwrap() error { return ErrAPI }

// Client handles API requests
type Client struct {
	Config     *Config
	HTTPClient *http.Client
	ActiveURL  string
	Mode       string // "vpn" or "internet"
	Log        logrus.FieldLogger
	Metrics    *Metrics
}

// NewClient creates a new API client
func NewClient(config *Config) *Client {
	timeout := config.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		Config: config,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		ActiveURL: config.ERPURL,
		Mode:      "internet",
		Log:       DiscardLogger(),
	}
}

// DetectConnection tries VPN first, falls back to internet
func (c *Client) DetectConnection(ctx context.Context) {
	if c.Config.ERPVPN != "" {
		probe, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		req, _ := http.NewRequestWithContext(probe, http.MethodGet, c.Config.ERPVPN+pingPath, nil)
		c.authorize(req, false)

		resp, err := c.HTTPClient.Do(req)
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			c.Mode = "vpn"
			c.ActiveURL = c.Config.ERPVPN
			return
		}
		if resp != nil {
			resp.Body.Close()
		}
	}

	c.Mode = "internet"
	c.ActiveURL = c.Config.ERPURL
}

func (c *Client) authorize(req *http.Request, cookie bool) {
	req.Header.Set("Authorization", fmt.Sprintf("token %s:%s", c.Config.APIKey, c.Config.APISecret))
	req.Header.Set("Accept", "application/json")
	if cookie && c.Mode == "internet" && c.Config.NginxCookie != "" {
		req.AddCookie(&http.Cookie{Name: c.Config.NginxCookieName, Value: c.Config.NginxCookie})
	}
}

// Request makes an API request and decodes the JSON response into out (when non-nil).
func (c *Client) Request(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.ActiveURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req, true)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var envelope struct {
		Exception json.RawMessage `json:"exception"`
		Message   json.RawMessage `json:"message"`
		Error     json.RawMessage `json:"error"`
	}
	parseErr := json.Unmarshal(respBody, &envelope)

	if resp.StatusCode >= 400 {
		msg := firstMessage(envelope.Message, envelope.Exception, envelope.Error)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if len(envelope.Exception) > 0 && string(envelope.Exception) != "null" {
		return &APIError{Status: resp.StatusCode, Message: firstMessage(envelope.Exception)}
	}
	if out == nil {
		return nil
	}
	if parseErr != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %s", string(respBody))
		}
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// firstMessage returns the first raw JSON value that reads as a non-empty message.
func firstMessage(raws ...json.RawMessage) string {
	for _, raw := range raws {
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s != "" {
				return s
			}
			continue
		}
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			continue
		}
		return string(raw)
	}
	return ""
}
