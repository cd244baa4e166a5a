package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/grid-monitor/dashboard/internal/api"
	"github.com/grid-monitor/dashboard/internal/config"
	"github.com/grid-monitor/dashboard/internal/export"
	"github.com/grid-monitor/dashboard/internal/fetch"
	"github.com/grid-monitor/dashboard/internal/prefs"
	"github.com/grid-monitor/dashboard/internal/session"
	"github.com/grid-monitor/dashboard/internal/stream"
	"github.com/grid-monitor/dashboard/internal/web"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Resolve config next to the executable so the binary can be dropped
	// into a substation box and run without flags
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	configPath := filepath.Join(exeDir, "GridDashboard.config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Advanced.LogLevel)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	embeddedMode := web.HasEmbeddedFiles()

	store := prefs.NewFileStore(cfg.Storage.PreferencesFile)

	widgets, err := config.LoadWidgetConfig(cfg.Storage.WidgetsFile)
	if err != nil {
		logger.Warn("failed to load widget config, using defaults", zap.Error(err))
		widgets = config.DefaultWidgetConfig()
	}

	upstreamTimeout := time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second
	restClient := fetch.NewRESTClient(cfg.Upstream.BaseURL, cfg.Upstream.StatsPath, upstreamTimeout, logger)
	gqlClient := fetch.NewGraphQLClient(cfg.Upstream.GraphQLURL, upstreamTimeout, logger)

	windows := session.Windows{
		Voltage:      widgets.Voltage.Window,
		PowerQuality: widgets.PowerQuality.Window,
		Faults:       widgets.Faults.Window,
	}

	newFetcher := func(sink fetch.RequestSink) *fetch.Fetcher {
		return fetch.NewFetcher(restClient, gqlClient, sink, logger)
	}
	openStream := func(ctx context.Context, token string, onMessage stream.Handler) (*stream.Subscription, error) {
		return stream.Subscribe(ctx, cfg.Upstream.StreamURL, token, onMessage, logger)
	}

	sessionMgr := session.NewManager(store, windows, newFetcher, openStream, logger)
	sessionMgr.SetNetlogCapacity(cfg.Advanced.NetworkLogCapacity)

	hub := api.NewLiveHub(logger)
	sessionMgr.SetLiveHook(hub.Broadcast)

	// Background session cleanup
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Session.CleanupIntervalMinutes) * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if n := sessionMgr.CleanupExpired(time.Duration(cfg.Session.TimeoutMinutes) * time.Minute); n > 0 {
				logger.Info("cleaned up expired sessions", zap.Int("count", n))
			}
		}
	}()

	exportMgr := export.NewManager(restClient, 2*time.Minute, logger)

	h := api.NewHandler(sessionMgr, exportMgr, restClient, store, widgets, cfg, hub, logger)

	e := echo.New()
	e.HideBanner = true

	api.SetupMiddleware(e)

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/health" || path == "/api/netlog"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			// WebSocket upgrades and export polling outlive one request
			// cycle; leaving them under the timeout would cut them off.
			path := c.Request().URL.Path
			return strings.HasPrefix(path, "/api/ws/") ||
				strings.HasPrefix(path, "/api/export/")
		},
		ErrorMessage: "Request timeout - upstream took too long",
	}))

	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			return strings.HasSuffix(c.Request().URL.Path, "/msgpack")
		},
	}))

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, api.SessionHeader},
		}))
	}

	api.RegisterRoutes(e, h)
	api.RegisterWebSocketRoutes(e, h)

	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			logger.Warn("failed to register static routes", zap.Error(err))
		} else {
			logger.Info("serving embedded frontend from binary")
		}
	}

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	mode := "Development"
	if embeddedMode {
		mode = "Air-Gapped (Embedded)"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Grid Monitor Dashboard Gateway                  ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Upstream:  %-46s║\n", cfg.Upstream.BaseURL)
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.GetDataDir())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	if embeddedMode {
		fmt.Printf("Open http://localhost:%d in your browser\n\n", cfg.Server.Port)
	}

	defer sessionMgr.CloseAll()

	e.Logger.Fatal(e.StartServer(s))
}

// buildLogger maps the configured level onto a production zap logger.
func buildLogger(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(strings.ToLower(level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}
