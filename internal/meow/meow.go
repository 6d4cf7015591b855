// Package meow wraps the Whatsmeow client as a personal-account fallback
// sender for TrainPipe.
//
// The Cloud API client is the primary transport; this backend exists for
// deployments that run against a linked personal account instead of a
// business number. Interactive lists and documents degrade to text.
package meow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/vbtlab/trainpipe/internal/messaging"
	"github.com/vbtlab/trainpipe/internal/models"
	"github.com/vbtlab/trainpipe/internal/store"
)

// Constants for the whatsmeow client configuration
const (
	// DefaultSQLitePath is the default path for the whatsmeow SQLite database
	DefaultSQLitePath = "/var/lib/trainpipe/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users
	JIDSuffix = "s.whatsapp.net"
)

// Opts holds configuration options for the whatsmeow client.
type Opts struct {
	DBDSN       string // whatsmeow session database connection string
	QRPath      string // path to write login QR code
	NumericCode bool   // use numeric login code instead of QR code
}

// Option defines a configuration option for the whatsmeow client.
type Option func(*Opts)

// WithDBDSN sets the whatsmeow session database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) { o.DBDSN = dsn }
}

// WithQRCodeOutput writes the login QR code to the specified path.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) { o.QRPath = path }
}

// WithNumericCode uses a numeric login code instead of a QR code.
func WithNumericCode() Option {
	return func(o *Opts) { o.NumericCode = true }
}

// Client wraps the whatsmeow client.
type Client struct {
	waClient *whatsmeow.Client
}

// Compile-time check that Client satisfies the sender contract.
var _ messaging.Sender = (*Client)(nil)

// NewClient creates a whatsmeow-backed sender, running the QR login flow when
// no linked device exists yet.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("meow.NewClient: options set", "DBDSN_set", cfg.DBDSN != "", "QRPath_set", cfg.QRPath != "", "NumericCode", cfg.NumericCode)

	dbDSN := cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultSQLitePath
		slog.Debug("meow.NewClient: no session DSN provided, using default SQLite path", "default_path", dbDSN)
	}

	var dbDriver string
	if store.DetectDSNType(dbDSN) == "postgres" {
		dbDriver = "postgres"
	} else {
		dbDriver = "sqlite3"
		// whatsmeow strongly recommends foreign keys on SQLite sessions.
		if !strings.Contains(dbDSN, "_foreign_keys") && !strings.Contains(dbDSN, "foreign_keys") {
			slog.Warn("meow.NewClient: SQLite session database has no foreign keys enabled, consider adding '?_foreign_keys=on'",
				"suggested_dsn", "file:"+dbDSN+"?_foreign_keys=on")
		}
	}

	logger := waLog.Stdout("Database", "INFO", true)
	ctx := context.Background()
	container, err := sqlstore.New(ctx, dbDriver, dbDSN, logger)
	if err != nil {
		slog.Error("meow.NewClient: failed to initialize session store", "error", err)
		return nil, fmt.Errorf("failed to initialize whatsmeow session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		slog.Error("meow.NewClient: failed to get first device from store", "error", err)
		return nil, fmt.Errorf("failed to get device from whatsmeow store: %w", err)
	}

	clientLog := waLog.Stdout("Client", "INFO", true)
	waClient := whatsmeow.NewClient(deviceStore, clientLog)

	if waClient.Store.ID == nil {
		slog.Info("meow.NewClient: login required, starting QR code flow")
		qrChan, _ := waClient.GetQRChannel(context.Background())
		if err := waClient.Connect(); err != nil {
			slog.Error("meow.NewClient: failed to connect during login", "error", err)
			return nil, fmt.Errorf("failed to connect during login: %w", err)
		}
		writer := io.Writer(os.Stdout)
		if cfg.QRPath != "" {
			f, ferr := os.Create(cfg.QRPath)
			if ferr != nil {
				slog.Error("meow.NewClient: failed to create QR file", "error", ferr)
				return nil, fmt.Errorf("failed to create QR file: %w", ferr)
			}
			defer f.Close()
			writer = f
		}
		for evt := range qrChan {
			if evt.Event == "code" {
				slog.Debug("meow.NewClient: login code received")
				if cfg.NumericCode {
					fmt.Fprintln(writer, evt.Code)
				} else {
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
				}
			} else {
				slog.Debug("meow.NewClient: login event", "event", evt.Event)
			}
		}
	} else {
		slog.Debug("meow.NewClient: already logged in, connecting to server")
		if err := waClient.Connect(); err != nil {
			slog.Error("meow.NewClient: failed to connect to server", "error", err)
			return nil, fmt.Errorf("failed to connect to server: %w", err)
		}
	}
	slog.Info("meow.NewClient: client connected")
	return &Client{waClient: waClient}, nil
}

// SendText sends a plain conversation message to the recipient.
func (c *Client) SendText(ctx context.Context, to string, body string) error {
	if c.waClient == nil {
		return fmt.Errorf("whatsmeow client not initialized")
	}
	to, err := messaging.CanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if body == "" {
		return models.ErrEmptyBody
	}

	slog.Debug("meow.SendText: sending message", "to", to, "body_length", len(body))
	jid := types.NewJID(to, JIDSuffix)
	msg := &waE2E.Message{Conversation: &body}

	_, err = c.waClient.SendMessage(ctx, jid, msg)
	if err != nil {
		slog.Error("meow.SendText failed", "error", err, "to", to)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	return nil
}

// SendList degrades an interactive list to a numbered text message; the
// personal-account protocol has no reliable native list support.
func (c *Client) SendList(ctx context.Context, to string, list models.InteractiveList) error {
	if err := list.Validate(); err != nil {
		return err
	}
	return c.SendText(ctx, to, messaging.RenderListAsText(list))
}

// SendDocument degrades to a text notice. Cloud API media ids cannot be
// re-uploaded through a personal session.
func (c *Client) SendDocument(ctx context.Context, to string, mediaID, filename string) error {
	if mediaID == "" {
		return fmt.Errorf("media id cannot be empty")
	}
	return c.SendText(ctx, to, fmt.Sprintf("Documento recibido: %s", filename))
}

// Disconnect closes the underlying whatsmeow connection.
func (c *Client) Disconnect() {
	if c.waClient != nil {
		c.waClient.Disconnect()
	}
}
