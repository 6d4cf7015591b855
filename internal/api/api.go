// Package api serves the WhatsApp Cloud API webhook endpoints for TrainPipe.
//
// It exposes the verification handshake (GET /webhook), the event receiver
// (POST /webhook) and a health probe. Every POST is answered with a
// definitive JSON response; the platform retries on anything else, and a
// retried event would re-run its side effects.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vbtlab/trainpipe/internal/flow"
)

// Server configuration defaults
const (
	// DefaultAddr is the default listen address.
	DefaultAddr = ":8080"
	// DefaultRequestTimeout bounds the processing of one webhook delivery.
	DefaultRequestTimeout = 30 * time.Second
	// maxBodyBytes caps inbound webhook bodies.
	maxBodyBytes = 1 << 20
)

// Opts holds configuration options for the webhook server.
type Opts struct {
	Addr           string
	VerifyToken    string
	AppSecret      string
	RequestTimeout time.Duration
}

// Option defines a configuration option for the webhook server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithVerifyToken sets the token expected in the GET verification handshake.
func WithVerifyToken(token string) Option {
	return func(o *Opts) { o.VerifyToken = token }
}

// WithAppSecret enables HMAC signature verification of POST bodies.
func WithAppSecret(secret string) Option {
	return func(o *Opts) { o.AppSecret = secret }
}

// WithRequestTimeout overrides the per-delivery processing timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Opts) { o.RequestTimeout = d }
}

// Server is the webhook HTTP server.
type Server struct {
	engine      *flow.Engine
	httpServer  *http.Server
	verifyToken string
	appSecret   string
	timeout     time.Duration
}

// NewServer creates the webhook server around a flow engine.
func NewServer(engine *flow.Engine, opts ...Option) (*Server, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Server.NewServer: config loaded",
		"addr", cfg.Addr,
		"verify_token_set", cfg.VerifyToken != "",
		"app_secret_set", cfg.AppSecret != "")

	if engine == nil {
		return nil, fmt.Errorf("flow engine must be provided")
	}
	if cfg.VerifyToken == "" {
		return nil, fmt.Errorf("webhook verify token must be provided")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	s := &Server{
		engine:      engine,
		verifyToken: cfg.VerifyToken,
		appSecret:   cfg.AppSecret,
		timeout:     cfg.RequestTimeout,
	}
	s.httpServer = &http.Server{
		Addr:    cfg.Addr,
		Handler: s.Handler(),
	}
	return s, nil
}

// Handler returns the route multiplexer, exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.webhookHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	slog.Info("Server.Run: webhook server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("webhook server failed: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Server.Shutdown: stopping webhook server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.verifyHandler(w, r)
	case http.MethodPost:
		s.receiveHandler(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}
