package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/megasecretaria/megasecretaria/internal/action"
	"github.com/megasecretaria/megasecretaria/internal/assistant"
	"github.com/megasecretaria/megasecretaria/internal/calendar"
	"github.com/megasecretaria/megasecretaria/internal/config"
	"github.com/megasecretaria/megasecretaria/internal/contextwindow"
	"github.com/megasecretaria/megasecretaria/internal/dispatcher"
	"github.com/megasecretaria/megasecretaria/internal/google"
	"github.com/megasecretaria/megasecretaria/internal/history"
	"github.com/megasecretaria/megasecretaria/internal/instrumentation"
	"github.com/megasecretaria/megasecretaria/internal/llm"
	"github.com/megasecretaria/megasecretaria/internal/logging"
	"github.com/megasecretaria/megasecretaria/internal/server"
	"github.com/megasecretaria/megasecretaria/internal/state"
	"github.com/megasecretaria/megasecretaria/internal/webhook"
	"github.com/megasecretaria/megasecretaria/internal/whatsapp"
)

// startupTimeout bounds how long a listener may take to bind.
const startupTimeout = 5 * time.Second

// serveFlags mirrors the config fields that can be set on the command line.
type serveFlags struct {
	addr           string
	tlsCertFile    string
	tlsKeyFile     string
	timezone       string
	allowedNumbers []string
	model          string
	databasePath   string
	tokenFile      string
	calendarID     string
	historyLimit   int
	tokenBudget    int
	duplicate      time.Duration
	pendingTTL     time.Duration
	retention      time.Duration
	pruneSchedule  string
	maxConcurrency int

	stateStore      string
	valkeyURL       string
	valkeyPassword  string
	valkeyTLS       bool
	valkeyKeyPrefix string
	valkeyDB        int

	metricsEnabled bool
	metricsAddr    string
}

func newServeCmd() *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the WhatsApp webhook server",
		Long: `Start the HTTP server that receives Evolution API webhooks and answers
each allowed sender as a calendar secretary.

Configuration is layered: defaults, then the --config YAML file, then
environment variables (a .env file is loaded first), then flags that were
set explicitly.

Required settings:
  OPENAI_API_KEY                 model access
  EVOLUTION_API_URL              Evolution API base URL
  EVOLUTION_API_KEY              Evolution API key
  EVOLUTION_INSTANCE             Evolution instance name
  ALLOWED_PHONE_NUMBERS          comma-separated senders allowed to use the assistant
  GOOGLE_TOKEN_FILE              token written by the auth command

State:
  STATE_STORE_TYPE=valkey keeps pending confirmations across restarts.
  The default in-memory store loses them on restart.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(cmd, &f)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}

	bindServeFlags(cmd, &f)

	return cmd
}

func bindServeFlags(cmd *cobra.Command, f *serveFlags) {
	cmd.Flags().StringVar(&f.addr, "addr", config.DefaultAddr, "Webhook server address. Can also use HTTP_ADDR env var.")
	cmd.Flags().StringVar(&f.tlsCertFile, "tls-cert-file", "", "Path to TLS certificate file (PEM format). If provided with --tls-key-file, enables HTTPS. Can also use TLS_CERT_FILE env var.")
	cmd.Flags().StringVar(&f.tlsKeyFile, "tls-key-file", "", "Path to TLS private key file (PEM format). If provided with --tls-cert-file, enables HTTPS. Can also use TLS_KEY_FILE env var.")
	cmd.Flags().StringVar(&f.timezone, "timezone", config.DefaultTimezone, "IANA timezone for interpreting and rendering times. Can also use TIMEZONE env var.")
	cmd.Flags().StringSliceVar(&f.allowedNumbers, "allowed-numbers", nil, "Phone numbers allowed to use the assistant (comma-separated). Can also use ALLOWED_PHONE_NUMBERS env var.")
	cmd.Flags().StringVar(&f.model, "model", llm.DefaultModel, "OpenAI chat model. Can also use OPENAI_MODEL env var.")
	cmd.Flags().StringVar(&f.databasePath, "database-path", config.DefaultDatabasePath, "SQLite conversation history file. Can also use DATABASE_PATH env var.")
	cmd.Flags().StringVar(&f.tokenFile, "token-file", config.DefaultTokenFile, "Google OAuth token file. Can also use GOOGLE_TOKEN_FILE env var.")
	cmd.Flags().StringVar(&f.calendarID, "calendar-id", "primary", "Google Calendar ID. Can also use GOOGLE_CALENDAR_ID env var.")
	cmd.Flags().IntVar(&f.historyLimit, "history-limit", assistant.DefaultHistoryLimit, "Stored turns read per message. Can also use HISTORY_LIMIT env var.")
	cmd.Flags().IntVar(&f.tokenBudget, "token-budget", contextwindow.DefaultBudget, "Token budget of the conversation context. Can also use HISTORY_TOKEN_BUDGET env var.")
	cmd.Flags().DurationVar(&f.duplicate, "duplicate-window", state.DefaultDuplicateWindow, "Window in which an identical create is suppressed. Can also use DUPLICATE_WINDOW env var.")
	cmd.Flags().DurationVar(&f.pendingTTL, "pending-ttl", state.DefaultPendingTTL, "How long a conflict confirmation stays open. Can also use PENDING_TTL env var.")
	cmd.Flags().DurationVar(&f.retention, "history-retention", config.DefaultHistoryRetention, "Conversation history retention, 0 disables pruning. Can also use HISTORY_RETENTION env var.")
	cmd.Flags().StringVar(&f.pruneSchedule, "history-prune-schedule", config.DefaultPruneSchedule, "Cron schedule of the history pruner. Can also use HISTORY_PRUNE_SCHEDULE env var.")
	cmd.Flags().IntVar(&f.maxConcurrency, "max-concurrency", assistant.DefaultMaxConcurrency, "Senders processed in parallel. Can also use MAX_CONCURRENCY env var.")

	// State store flags
	cmd.Flags().StringVar(&f.stateStore, "state-store", config.StateStoreMemory, "Conversation state store: memory or valkey. Can also use STATE_STORE_TYPE env var.")
	cmd.Flags().StringVar(&f.valkeyURL, "valkey-url", "", "Valkey server address (e.g., valkey.namespace.svc:6379). Can also use VALKEY_URL env var.")
	cmd.Flags().StringVar(&f.valkeyPassword, "valkey-password", "", "Valkey authentication password. Can also use VALKEY_PASSWORD env var.")
	cmd.Flags().BoolVar(&f.valkeyTLS, "valkey-tls", false, "Enable TLS for Valkey connections. Can also use VALKEY_TLS_ENABLED env var.")
	cmd.Flags().StringVar(&f.valkeyKeyPrefix, "valkey-key-prefix", state.DefaultKeyPrefix, "Prefix for all Valkey keys. Can also use VALKEY_KEY_PREFIX env var.")
	cmd.Flags().IntVar(&f.valkeyDB, "valkey-db", 0, "Valkey database number. Can also use VALKEY_DB env var.")

	// Metrics server flags
	cmd.Flags().BoolVar(&f.metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", config.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")
}

// loadServeConfig layers defaults, the config file, the environment and the
// flags that were explicitly set.
func loadServeConfig(cmd *cobra.Command, f *serveFlags) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		if err := cfg.LoadFile(configPath); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, fmt.Errorf("invalid environment: %w", err)
	}
	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	applyServeFlags(cmd, f, &cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyServeFlags copies flag values over cfg. Flags only win when they were
// explicitly set, so defaults never mask environment variables.
func applyServeFlags(cmd *cobra.Command, f *serveFlags, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("addr") {
		cfg.Addr = f.addr
	}
	if changed("tls-cert-file") {
		cfg.TLSCertFile = f.tlsCertFile
	}
	if changed("tls-key-file") {
		cfg.TLSKeyFile = f.tlsKeyFile
	}
	if changed("timezone") {
		cfg.Timezone = f.timezone
	}
	if changed("allowed-numbers") {
		cfg.AllowedNumbers = f.allowedNumbers
	}
	if changed("model") {
		cfg.OpenAI.Model = f.model
	}
	if changed("database-path") {
		cfg.DatabasePath = f.databasePath
	}
	if changed("token-file") {
		cfg.Google.TokenFile = f.tokenFile
	}
	if changed("calendar-id") {
		cfg.Google.CalendarID = f.calendarID
	}
	if changed("history-limit") {
		cfg.HistoryLimit = f.historyLimit
	}
	if changed("token-budget") {
		cfg.TokenBudget = f.tokenBudget
	}
	if changed("duplicate-window") {
		cfg.DuplicateWindow = f.duplicate
	}
	if changed("pending-ttl") {
		cfg.PendingTTL = f.pendingTTL
	}
	if changed("history-retention") {
		cfg.HistoryRetention = f.retention
	}
	if changed("history-prune-schedule") {
		cfg.PruneSchedule = f.pruneSchedule
	}
	if changed("max-concurrency") {
		cfg.MaxConcurrency = f.maxConcurrency
	}
	if changed("state-store") {
		cfg.StateStore = f.stateStore
	}
	if changed("valkey-url") {
		cfg.Valkey.URL = f.valkeyURL
	}
	if changed("valkey-password") {
		cfg.Valkey.Password = f.valkeyPassword
	}
	if changed("valkey-tls") {
		cfg.Valkey.TLSEnabled = f.valkeyTLS
	}
	if changed("valkey-key-prefix") {
		cfg.Valkey.KeyPrefix = f.valkeyKeyPrefix
	}
	if changed("valkey-db") {
		cfg.Valkey.DB = f.valkeyDB
	}
	if changed("metrics-enabled") {
		cfg.MetricsEnabled = f.metricsEnabled
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
}

func runServe(cfg config.Config) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("error during instrumentation shutdown", logging.Err(err))
		}
	}()

	var (
		metrics *instrumentation.Metrics
		audit   *instrumentation.AuditLogger
	)
	if provider.Enabled() {
		metrics = provider.Metrics()
		audit = instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging)
	}

	serverContext := server.NewServerContext(shutdownCtx, metrics, audit)
	defer func() { _ = serverContext.Shutdown() }()

	// Start metrics server if enabled
	if cfg.MetricsEnabled && provider.Enabled() {
		metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.MetricsAddr,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		if err := startListener(metricsServer.StartWithReadySignal); err != nil {
			return fmt.Errorf("metrics server failed to start: %w", err)
		}
		logger.Info("metrics server started", "addr", metricsServer.Addr())
		defer shutdownServer(logger, "metrics", metricsServer.Shutdown)
	}

	// Conversation history
	store, err := history.Open(shutdownCtx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer func() { _ = store.Close() }()

	if cfg.HistoryRetention > 0 {
		pruner, err := history.NewPruner(store, cfg.HistoryRetention, cfg.PruneSchedule, logger)
		if err != nil {
			return err
		}
		pruner.Start()
		defer pruner.Stop(context.Background())
	}

	// Conversation state
	stateOpts := state.Options{PendingTTL: cfg.PendingTTL, FingerprintTTL: cfg.DuplicateWindow}
	var (
		stateStore state.Store
		stateCheck server.CheckFunc
	)
	switch cfg.StateStore {
	case config.StateStoreValkey:
		vs, err := state.NewValkeyStore(cfg.Valkey, stateOpts)
		if err != nil {
			return fmt.Errorf("failed to connect to Valkey: %w", err)
		}
		defer func() { _ = vs.Close() }()
		stateStore, stateCheck = vs, vs.Ping
		logger.Info("using Valkey state store", "url", cfg.Valkey.URL, "key_prefix", cfg.Valkey.KeyPrefix)
	default:
		ms := state.NewMemoryStore(stateOpts, time.Minute)
		defer func() { _ = ms.Close() }()
		stateStore = ms
		logger.Warn("using in-memory state store, pending confirmations are lost on restart")
	}
	pendingGauge, err := metrics.ObservePendingConfirmations(stateStore.PendingCount)
	if err != nil {
		return err
	}
	if pendingGauge != nil {
		defer func() { _ = pendingGauge.Unregister() }()
	}

	// Google Calendar
	cal, err := newCalendarClient(shutdownCtx, cfg, loc, metrics, logger)
	if err != nil {
		return err
	}

	// Model and transport
	model, err := llm.NewOpenAI(llm.Config{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.Model,
		BaseURL: cfg.OpenAI.BaseURL,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	sender, err := whatsapp.NewClient(whatsapp.Config{
		BaseURL:  cfg.Evolution.URL,
		APIKey:   cfg.Evolution.APIKey,
		Instance: cfg.Evolution.Instance,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	disp := dispatcher.New(cal, stateStore, dispatcher.Config{
		Location:        loc,
		DuplicateWindow: cfg.DuplicateWindow,
		Logger:          logger,
		Metrics:         serverContext.Metrics(),
		Audit:           serverContext.AuditLogger(),
	})

	pipeline, err := assistant.NewPipeline(assistant.Config{
		History:      store,
		Dispatcher:   disp,
		Model:        model,
		Sender:       sender,
		Prompt:       llm.NewPromptBuilder(cfg.Persona, cfg.Designation, loc),
		Parser:       action.NewParser(loc),
		Counter:      contextwindow.NewTiktokenCounter(contextwindow.DefaultEncoding, logger),
		HistoryLimit: cfg.HistoryLimit,
		TokenBudget:  cfg.TokenBudget,
		Logger:       logger,
		Metrics:      metrics,
	})
	if err != nil {
		return err
	}

	queue := assistant.NewQueue(pipeline, assistant.QueueConfig{
		MaxConcurrency: cfg.MaxConcurrency,
		Logger:         logger,
	})

	health := server.NewHealthChecker(serverContext)
	health.AddCheck("history", store.Ping)
	if stateCheck != nil {
		health.AddCheck("state", stateCheck)
	}

	httpServer, err := server.NewHTTPServer(server.HTTPServerConfig{
		Addr: cfg.Addr,
		Handler: webhook.NewRouter(webhook.Config{
			AllowList: webhook.NewAllowList(cfg.AllowedNumbers),
			Queue:     queue,
			Health:    health,
			Metrics:   metrics,
			Logger:    logger,
		}),
		TLSCertFile: cfg.TLSCertFile,
		TLSKeyFile:  cfg.TLSKeyFile,
	})
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	ready := make(chan struct{})
	go func() { serveErr <- httpServer.StartWithReadySignal(ready) }()

	select {
	case <-ready:
	case err := <-serveErr:
		return fmt.Errorf("webhook server failed to start: %w", err)
	case <-time.After(startupTimeout):
		return fmt.Errorf("webhook server startup timed out")
	}

	logger.Info("megasecretaria started",
		"addr", httpServer.Addr(),
		"version", version,
		"model", model.Model(),
		"timezone", loc.String(),
		"allowed_senders", len(cfg.AllowedNumbers),
		"state_store", cfg.StateStore)

	select {
	case <-shutdownCtx.Done():
		logger.Info("shutdown signal received, stopping webhook server")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("webhook server error: %w", err)
		}
	}

	health.SetReady(false)
	_ = serverContext.Shutdown()
	shutdownServer(logger, "webhook", httpServer.Shutdown)

	// Let queued messages finish before closing their collaborators.
	logger.Info("draining message queue", "active_senders", queue.Active())
	ctx, cancelQueue := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancelQueue()
	if err := queue.Close(ctx); err != nil {
		logger.Warn("queue did not drain before shutdown", logging.Err(err))
	}

	logger.Info("megasecretaria stopped")
	return nil
}

func newCalendarClient(ctx context.Context, cfg config.Config, loc *time.Location, metrics *instrumentation.Metrics, logger *slog.Logger) (*calendar.Client, error) {
	oauthConf, err := google.OAuthConfig(googleCredentials(cfg.Google))
	if err != nil {
		return nil, fmt.Errorf("failed to load Google OAuth client: %w", err)
	}

	provider := google.NewFileTokenProvider(cfg.Google.TokenFile, oauthConf)
	provider.Logger = logger
	if !provider.HasToken() {
		return nil, fmt.Errorf("%w (expected at %s)", google.ErrNoToken, cfg.Google.TokenFile)
	}

	cal, err := calendar.NewClient(ctx, provider, calendar.Config{
		CalendarID: cfg.Google.CalendarID,
		Location:   loc,
		Metrics:    metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar client: %w", err)
	}
	return cal, nil
}

// googleCredentials prefers an explicit client id and secret over the
// credentials file.
func googleCredentials(g config.GoogleConfig) google.ClientCredentials {
	if g.ClientID != "" && g.ClientSecret != "" {
		return google.ClientCredentials{ClientID: g.ClientID, ClientSecret: g.ClientSecret}
	}
	return google.ClientCredentials{CredentialsFile: g.CredentialsFile}
}

// startListener runs start in the background and waits until it signals
// readiness or fails.
func startListener(start func(ready chan<- struct{}) error) error {
	ready := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		if err := start(ready); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ready:
		return nil
	case err := <-errCh:
		if err == nil {
			err = errors.New("server stopped before becoming ready")
		}
		return err
	case <-time.After(startupTimeout):
		return fmt.Errorf("startup timed out")
	}
}

func shutdownServer(logger *slog.Logger, name string, shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Warn("error during server shutdown", "server", name, logging.Err(err))
	}
}
