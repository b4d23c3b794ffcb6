// Package whatsapp provides the WhatsApp Cloud API client used for outbound
// message dispatch, plus the payload and webhook wire types.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

const (
	// DefaultAPIURL is the Graph API base used when none is configured.
	DefaultAPIURL = "https://graph.facebook.com/v18.0"

	// DefaultTimeout bounds a single send request.
	DefaultTimeout = 30 * time.Second

	// UserAgent identifies this service to the provider.
	UserAgent = "service-whatsapp/1.0"
)

// Config holds provider credentials and endpoint settings.
type Config struct {
	APIURL        string
	PhoneNumberID string
	AccessToken   string
	Timeout       time.Duration
}

// APIError is a non-2xx response from the provider. It carries the raw body
// so the error detail can be persisted on the failed message record.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp: api error status=%d body=%s", e.StatusCode, e.Body)
}

// Client talks to the WhatsApp Cloud API messages endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *log.Helper
}

// NewClient creates a provider client. An HTTP client with the configured
// timeout is built once; callers may additionally bound individual sends
// with their own context deadline.
func NewClient(cfg Config, logger log.Logger) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	helper := log.NewHelper(logger)
	if cfg.PhoneNumberID == "" || cfg.AccessToken == "" {
		helper.Warn("WhatsApp configuration incomplete, sends will fail until credentials are set")
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     helper,
	}
}

// Configured reports whether the credentials required for dispatch are set.
// Exposed on the service status endpoint.
func (c *Client) Configured() bool {
	return c.cfg.PhoneNumberID != "" && c.cfg.AccessToken != ""
}

// sendResponse is the success body of POST /{phone_number_id}/messages.
type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendMessage posts a message payload and returns the provider-assigned
// message id. Non-2xx responses, connection errors and timeouts are all
// returned as errors; classification against circuit health is the guarded
// executor's concern, not the client's.
func (c *Client) SendMessage(ctx context.Context, payload *MessagePayload) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("whatsapp: incomplete configuration (phone_number_id/access_token)")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("whatsapp: failed to encode payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.cfg.APIURL, c.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("whatsapp: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return "", fmt.Errorf("whatsapp: request timed out: %w", err)
		}
		return "", fmt.Errorf("whatsapp: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("whatsapp: failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Errorw("WhatsApp API returned error",
			"status", resp.StatusCode,
			"to", payload.To)
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed sendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("whatsapp: failed to decode response: %w", err)
	}
	if len(parsed.Messages) == 0 {
		return "", fmt.Errorf("whatsapp: response contained no message id")
	}

	return parsed.Messages[0].ID, nil
}
