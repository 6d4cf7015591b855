// Package twiliowhatsapp wraps the Twilio API as a fallback WhatsApp sender
// for TrainPipe. Twilio's Go SDK carries no native interactive list or
// media-id document support, so lists degrade to numbered text and documents
// degrade to a text notice.
package twiliowhatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/vbtlab/trainpipe/internal/messaging"
	"github.com/vbtlab/trainpipe/internal/models"
)

// Opts holds configuration options for the Twilio WhatsApp client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sending number in "whatsapp:+1234567890" format.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// Client wraps the Twilio REST API for WhatsApp.
type Client struct {
	client    *twilio.RestClient
	fromWhats string // WhatsApp number in "whatsapp:+1234567890" format
}

// Compile-time check that Client satisfies the sender contract.
var _ messaging.Sender = (*Client)(nil)

// NewClient creates a Twilio-backed sender, falling back to environment
// variables for any credential not provided via options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("twiliowhatsapp.NewClient: config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &Client{
		client:    client,
		fromWhats: cfg.FromWhats,
	}, nil
}

// SendText sends a plain WhatsApp text message through Twilio.
func (c *Client) SendText(ctx context.Context, to string, body string) error {
	to, err := messaging.CanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if body == "" {
		return models.ErrEmptyBody
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:" + to)
	params.SetFrom(c.fromWhats)
	params.SetBody(body)

	_, err = c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("twiliowhatsapp.SendText failed", "to", to, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}

	slog.Debug("twiliowhatsapp.SendText: message sent", "to", to)
	return nil
}

// SendList degrades an interactive list to a numbered text message, since the
// Twilio Go SDK exposes no WhatsApp list payloads.
func (c *Client) SendList(ctx context.Context, to string, list models.InteractiveList) error {
	if err := list.Validate(); err != nil {
		return err
	}
	slog.Debug("twiliowhatsapp.SendList: degrading list to text", "to", to, "header", list.Header)
	return c.SendText(ctx, to, messaging.RenderListAsText(list))
}

// SendDocument degrades to a text notice. Cloud API media ids are not
// resolvable through Twilio, so the document itself cannot be forwarded.
func (c *Client) SendDocument(ctx context.Context, to string, mediaID, filename string) error {
	if mediaID == "" {
		return fmt.Errorf("media id cannot be empty")
	}
	slog.Debug("twiliowhatsapp.SendDocument: degrading document to text", "to", to, "filename", filename)
	return c.SendText(ctx, to, fmt.Sprintf("Documento recibido: %s", filename))
}
