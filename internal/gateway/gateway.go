// ABOUTME: Gateway orchestrator wiring config, bus, sessions, and the HTTP server
// ABOUTME: Manages TCP or Tailscale listeners and graceful shutdown

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/openwire/internal/auth"
	"github.com/2389/openwire/internal/bus"
	"github.com/2389/openwire/internal/chatapi"
	"github.com/2389/openwire/internal/config"
	"github.com/2389/openwire/internal/dispatch"
	"github.com/2389/openwire/internal/session"
)

// Gateway orchestrates the openwire-gateway server components: the event bus,
// the session registry, the dispatch pipeline, and the HTTP server exposing
// the chat completions API.
type Gateway struct {
	config      *config.Config
	bus         *bus.Bus
	sessions    *session.SQLiteStore
	dispatcher  dispatch.Dispatcher
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	jwtVerifier *auth.JWTVerifier
	logger      *slog.Logger

	// serverID identifies this gateway instance
	serverID string
}

// initSessions creates the session registry based on config and environment.
func initSessions(cfg *config.Config) (*session.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("OPENWIRE_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := session.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing session store: %w", err)
	}
	return s, nil
}

// buildVerifier assembles the bearer-token verifier chain from config.
// Returns nil when no credentials are configured (open development mode).
func buildVerifier(cfg *config.Config, logger *slog.Logger) (auth.Verifier, *auth.JWTVerifier, error) {
	var jwtVerifier *auth.JWTVerifier
	var chain []auth.Verifier

	if cfg.Auth.JWTSecret != "" {
		v, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			return nil, nil, fmt.Errorf("creating JWT verifier: %w", err)
		}
		jwtVerifier = v
		chain = append(chain, v)
	}
	if len(cfg.Auth.APIKeys) > 0 {
		chain = append(chain, auth.NewAPIKeyVerifier(cfg.Auth.APIKeys))
	}

	if len(chain) == 0 {
		logger.Warn("auth disabled - no jwt_secret or api_keys configured")
		return nil, nil, nil
	}

	logger.Info("bearer auth enabled", "jwt", jwtVerifier != nil, "api_keys", len(cfg.Auth.APIKeys))
	return auth.NewMultiVerifier(chain...), jwtVerifier, nil
}

// New creates a new Gateway instance with the given configuration.
// A nil dispatcher selects the loopback dispatcher, which answers slash
// commands and echoes everything else.
func New(cfg *config.Config, dispatcher dispatch.Dispatcher, logger *slog.Logger) (*Gateway, error) {
	sessions, err := initSessions(cfg)
	if err != nil {
		return nil, err
	}

	eventBus := bus.New(logger)
	if dispatcher == nil {
		dispatcher = dispatch.NewLocalDispatcher(eventBus, logger)
	}

	verifier, jwtVerifier, err := buildVerifier(cfg, logger)
	if err != nil {
		_ = sessions.Close()
		return nil, err
	}

	gw := &Gateway{
		config:      cfg,
		bus:         eventBus,
		sessions:    sessions,
		dispatcher:  dispatcher,
		jwtVerifier: jwtVerifier,
		logger:      logger.With("component", "gateway"),
		serverID:    generateServerID(),
	}

	completions := chatapi.NewHandler(dispatcher, eventBus, sessions, chatapi.Options{
		DefaultModel: cfg.Completions.DefaultModel,
		DefaultAgent: cfg.Completions.DefaultAgent,
		AgentModels:  cfg.Completions.AgentModels,
		MaxBodyBytes: cfg.Completions.MaxBodyBytes,
	}, logger)

	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/health/ready", gw.handleReady)

	// API endpoints - bearer auth when credentials are configured
	var protect func(http.Handler) http.Handler
	if verifier != nil {
		protect = auth.Middleware(verifier)
	} else {
		protect = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("/v1/chat/completions", protect(completions))
	mux.Handle("/v1/models", protect(http.HandlerFunc(gw.handleListModels)))

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Run starts the gateway server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	httpListener, err := g.setupListeners(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", httpListener.Addr().String())
		if err := g.httpServer.Serve(httpListener); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown gracefully stops the gateway and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "session store close", g.sessions.Close())

	g.bus.Close()

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// setupListeners creates the HTTP listener based on configuration.
func (g *Gateway) setupListeners(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", g.config.Server.HTTPAddr)
		}
		return g.setupTailscaleListener(ctx)
	}

	g.logger.Info("starting gateway", "http_addr", g.config.Server.HTTPAddr)
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "openwire-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable (get one at https://login.tailscale.com/admin/settings/keys)")
	}
	return authKey, nil
}

// setupTailscaleListener creates a tsnet server and returns the HTTP listener.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	switch {
	case tsCfg.Funnel:
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale funnel port: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		return g.createTailscaleTLSListener()
	default:
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// createTailscaleTLSListener creates a TLS listener using Tailscale's auto-provisioned certs.
func (g *Gateway) createTailscaleTLSListener() (net.Listener, error) {
	g.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := g.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := g.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// generateServerID creates a unique identifier for this gateway instance.
func generateServerID() string {
	return fmt.Sprintf("openwire-gateway-%d", time.Now().UnixNano()%1000000)
}
