// Package whatsapp wraps the WhatsApp Business Cloud API for TrainPipe.
//
// It implements the messaging.Sender contract over the Graph REST endpoints
// (text, interactive list and document payloads) plus the two-step media
// retrieval: resolve the media id to a short-lived URL, then fetch the bytes.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/vbtlab/trainpipe/internal/messaging"
	"github.com/vbtlab/trainpipe/internal/models"
)

// Constants for the Cloud API client configuration
const (
	// DefaultBaseURL is the Graph API origin.
	DefaultBaseURL = "https://graph.facebook.com"
	// DefaultAPIVersion is used when no version is configured.
	DefaultAPIVersion = "v18.0"
	// DefaultTimeout bounds every outbound HTTP call.
	DefaultTimeout = 10 * time.Second
	// MaxMediaBytes caps downloaded documents; ADR exports are tiny.
	MaxMediaBytes = 16 << 20
)

// Opts holds configuration options for the Cloud API client.
type Opts struct {
	BaseURL       string
	AccessToken   string
	APIVersion    string
	PhoneNumberID string
	Timeout       time.Duration
	HTTPClient    *http.Client
}

// Option defines a configuration option for the Cloud API client.
type Option func(*Opts)

// WithAccessToken sets the bearer token.
func WithAccessToken(token string) Option {
	return func(o *Opts) { o.AccessToken = token }
}

// WithAPIVersion sets the Graph API version segment (e.g. "v18.0").
func WithAPIVersion(version string) Option {
	return func(o *Opts) { o.APIVersion = version }
}

// WithPhoneNumberID sets the sending business phone number id.
func WithPhoneNumberID(id string) Option {
	return func(o *Opts) { o.PhoneNumberID = id }
}

// WithBaseURL overrides the Graph API origin (used by tests).
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithHTTPClient injects a custom HTTP client (used by tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client talks to the WhatsApp Business Cloud API.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	token         string
	version       string
	phoneNumberID string
}

// Compile-time checks for the messaging contracts.
var (
	_ messaging.Sender       = (*Client)(nil)
	_ messaging.MediaFetcher = (*Client)(nil)
)

// NewClient creates a new Cloud API client, applying any provided options and
// falling back to environment variables for the credentials.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccessToken == "" {
		cfg.AccessToken = os.Getenv("WHATSAPP_ACCESS_TOKEN")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = os.Getenv("WHATSAPP_API_VERSION")
	}
	if cfg.PhoneNumberID == "" {
		cfg.PhoneNumberID = os.Getenv("WHATSAPP_PHONE_NUMBER_ID")
	}
	slog.Debug("whatsapp.NewClient: config loaded",
		"token_set", cfg.AccessToken != "",
		"api_version", cfg.APIVersion,
		"phone_number_id_set", cfg.PhoneNumberID != "")

	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("whatsapp access token must be provided")
	}
	if cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("whatsapp phone number id must be provided")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		httpClient:    httpClient,
		baseURL:       cfg.BaseURL,
		token:         cfg.AccessToken,
		version:       cfg.APIVersion,
		phoneNumberID: cfg.PhoneNumberID,
	}, nil
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to string, body string) error {
	to, err := messaging.CanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if body == "" {
		return models.ErrEmptyBody
	}
	slog.Debug("whatsapp.SendText invoked", "to", to, "body_length", len(body))
	return c.send(ctx, models.NewTextPayload(to, body))
}

// SendList sends a native interactive list message.
func (c *Client) SendList(ctx context.Context, to string, list models.InteractiveList) error {
	to, err := messaging.CanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if err := list.Validate(); err != nil {
		return err
	}
	slog.Debug("whatsapp.SendList invoked", "to", to, "header", list.Header)
	return c.send(ctx, models.NewListPayload(to, list))
}

// SendDocument forwards an uploaded media document to the recipient.
func (c *Client) SendDocument(ctx context.Context, to string, mediaID, filename string) error {
	to, err := messaging.CanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if mediaID == "" {
		return fmt.Errorf("media id cannot be empty")
	}
	slog.Debug("whatsapp.SendDocument invoked", "to", to, "media_id", mediaID, "filename", filename)
	return c.send(ctx, models.NewDocumentPayload(to, mediaID, filename))
}

// send posts one payload to the messages endpoint.
func (c *Client) send(ctx context.Context, payload models.SendPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal send payload: %w", err)
	}
	url := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.version, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify("send", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		slog.Error("whatsapp.send: non-2xx response", "status", resp.StatusCode, "to", payload.To, "body", string(respBody))
		return &TransportError{Op: "send", StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	slog.Info("whatsapp.send: message delivered to API", "to", payload.To, "type", payload.Type)
	return nil
}

// MediaURL resolves a media id to its short-lived download URL.
func (c *Client) MediaURL(ctx context.Context, mediaID string) (string, error) {
	url := fmt.Sprintf("%s/%s/%s/", c.baseURL, c.version, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build media url request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classify("media_url", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &TransportError{Op: "media_url", StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	var payload struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", &TransportError{Op: "media_url", Err: fmt.Errorf("invalid JSON response: %w", err)}
	}
	if payload.URL == "" {
		return "", &TransportError{Op: "media_url", Err: fmt.Errorf("response carries no url for media %s", mediaID)}
	}
	slog.Debug("whatsapp.MediaURL resolved", "media_id", mediaID)
	return payload.URL, nil
}

// DownloadMedia fetches the media bytes behind a media id (two-step: id ->
// short-lived URL -> content).
func (c *Client) DownloadMedia(ctx context.Context, mediaID string) ([]byte, error) {
	mediaURL, err := c.MediaURL(ctx, mediaID)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build media download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify("download", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Op: "download", StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxMediaBytes))
	if err != nil {
		return nil, classify("download", err)
	}
	slog.Info("whatsapp.DownloadMedia succeeded", "media_id", mediaID, "bytes", len(data))
	return data, nil
}

// classify splits transport failures into timeout vs request-failed.
func classify(op string, err error) error {
	var netErr net.Error
	timeout := errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
	if timeout {
		slog.Error("whatsapp transport timeout", "op", op, "error", err)
	} else {
		slog.Error("whatsapp transport failure", "op", op, "error", err)
	}
	return &TransportError{Op: op, Timeout: timeout, Err: err}
}
