package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vbtlab/trainpipe/internal/api"
	"github.com/vbtlab/trainpipe/internal/flow"
	"github.com/vbtlab/trainpipe/internal/lockfile"
	"github.com/vbtlab/trainpipe/internal/meow"
	"github.com/vbtlab/trainpipe/internal/messaging"
	"github.com/vbtlab/trainpipe/internal/store"
	"github.com/vbtlab/trainpipe/internal/twiliowhatsapp"
	"github.com/vbtlab/trainpipe/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for TrainPipe state data
	DefaultStateDir = "/var/lib/trainpipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "trainpipe.db"
	// ShutdownTimeout bounds graceful server shutdown
	ShutdownTimeout = 10 * time.Second
)

// Sender backend names accepted by -backend / $SENDER_BACKEND.
const (
	BackendCloud  = "cloud"
	BackendTwilio = "twilio"
	BackendMeow   = "meow"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to lock state directory", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	sender, media, err := buildSender(flags)
	if err != nil {
		slog.Error("Failed to initialize sender backend", "error", err, "backend", *flags.backend)
		os.Exit(1)
	}

	engine := flow.NewEngine(st, sender, media)

	server, err := api.NewServer(engine, buildAPIOptions(flags)...)
	if err != nil {
		slog.Error("Failed to initialize webhook server", "error", err)
		os.Exit(1)
	}

	// Stop the server on SIGINT/SIGTERM.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Webhook server shutdown failed", "error", err)
		}
	}()

	slog.Info("Bootstrapping TrainPipe", "backend", *flags.backend, "api_addr", *flags.apiAddr)
	if err := server.Run(); err != nil {
		slog.Error("TrainPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("TrainPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL   string
	StateDir      string
	APIAddr       string
	Backend       string
	VerifyToken   string
	AppSecret     string
	AccessToken   string
	APIVersion    string
	PhoneNumberID string
}

// Flags holds command line flag values
type Flags struct {
	stateDir      *string
	dbDSN         *string
	apiAddr       *string
	backend       *string
	verifyToken   *string
	appSecret     *string
	accessToken   *string
	apiVersion    *string
	phoneNumberID *string
	qrOutput      *string
	numeric       *bool
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StateDir:      os.Getenv("TRAINPIPE_STATE_DIR"),
		APIAddr:       os.Getenv("API_ADDR"),
		Backend:       os.Getenv("SENDER_BACKEND"),
		VerifyToken:   os.Getenv("VERIFY_TOKEN"),
		AppSecret:     os.Getenv("APP_SECRET"),
		AccessToken:   os.Getenv("WHATSAPP_ACCESS_TOKEN"),
		APIVersion:    os.Getenv("WHATSAPP_API_VERSION"),
		PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No TRAINPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.Backend == "" {
		config.Backend = BackendCloud
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"TRAINPIPE_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"SENDER_BACKEND", config.Backend,
		"VERIFY_TOKEN_SET", config.VerifyToken != "",
		"APP_SECRET_SET", config.AppSecret != "",
		"WHATSAPP_ACCESS_TOKEN_SET", config.AccessToken != "",
		"WHATSAPP_PHONE_NUMBER_ID_SET", config.PhoneNumberID != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for TrainPipe data (overrides $TRAINPIPE_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "database DSN for the training store (overrides $DATABASE_URL)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "webhook server address (overrides $API_ADDR)"),
		backend:       flag.String("backend", config.Backend, "sender backend: cloud, twilio or meow (overrides $SENDER_BACKEND)"),
		verifyToken:   flag.String("verify-token", config.VerifyToken, "webhook verification token (overrides $VERIFY_TOKEN)"),
		appSecret:     flag.String("app-secret", config.AppSecret, "app secret for signature verification (overrides $APP_SECRET)"),
		accessToken:   flag.String("access-token", config.AccessToken, "Cloud API access token (overrides $WHATSAPP_ACCESS_TOKEN)"),
		apiVersion:    flag.String("api-version", config.APIVersion, "Graph API version (overrides $WHATSAPP_API_VERSION)"),
		phoneNumberID: flag.String("phone-number-id", config.PhoneNumberID, "Cloud API phone number id (overrides $WHATSAPP_PHONE_NUMBER_ID)"),
		qrOutput:      flag.String("qr-output", "", "path to write login QR code (meow backend)"),
		numeric:       flag.Bool("numeric-code", false, "use numeric login code instead of QR code (meow backend)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"backend", *flags.backend,
		"verifyToken_set", *flags.verifyToken != "",
		"appSecret_set", *flags.appSecret != "",
		"accessToken_set", *flags.accessToken != "")

	// Follow a relocated state directory when the DSN was derived from it.
	if *flags.dbDSN == config.DatabaseURL && config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		return nil
	}
	stateDir := filepath.Dir(*flags.dbDSN)
	slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
		return err
	}
	return nil
}

// buildStore initializes the training store, picking the backend by DSN shape.
func buildStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// buildSender initializes the configured outbound backend. Only the Cloud
// API backend can retrieve inbound media; with the fallback backends
// document imports fail with the engine's regular error policy.
func buildSender(flags Flags) (messaging.Sender, messaging.MediaFetcher, error) {
	switch *flags.backend {
	case BackendTwilio:
		sender, err := twiliowhatsapp.NewClient()
		return sender, nil, err

	case BackendMeow:
		var meowOpts []meow.Option
		meowOpts = append(meowOpts, meow.WithDBDSN(filepath.Join(*flags.stateDir, "whatsmeow.db")))
		if *flags.qrOutput != "" {
			meowOpts = append(meowOpts, meow.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			meowOpts = append(meowOpts, meow.WithNumericCode())
		}
		sender, err := meow.NewClient(meowOpts...)
		return sender, nil, err

	default:
		var waOpts []whatsapp.Option
		if *flags.accessToken != "" {
			waOpts = append(waOpts, whatsapp.WithAccessToken(*flags.accessToken))
		}
		if *flags.apiVersion != "" {
			waOpts = append(waOpts, whatsapp.WithAPIVersion(*flags.apiVersion))
		}
		if *flags.phoneNumberID != "" {
			waOpts = append(waOpts, whatsapp.WithPhoneNumberID(*flags.phoneNumberID))
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	}
}

// buildAPIOptions constructs webhook server configuration options
func buildAPIOptions(flags Flags) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if *flags.verifyToken != "" {
		apiOpts = append(apiOpts, api.WithVerifyToken(*flags.verifyToken))
	}
	if *flags.appSecret != "" {
		apiOpts = append(apiOpts, api.WithAppSecret(*flags.appSecret))
	}
	return apiOpts
}
