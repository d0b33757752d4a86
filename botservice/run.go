// Package botservice wires the tracker bot together: config, sheets,
// nutrition pipeline, conversation engine, per-tenant pollers and the
// health endpoint.
package botservice

import (
	"context"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/sheetfit/trackerbot/internal/config"
	"github.com/sheetfit/trackerbot/internal/conversation"
	"github.com/sheetfit/trackerbot/internal/extractor"
	"github.com/sheetfit/trackerbot/internal/fooddata/usda"
	"github.com/sheetfit/trackerbot/internal/gemini"
	"github.com/sheetfit/trackerbot/internal/health"
	"github.com/sheetfit/trackerbot/internal/logger"
	"github.com/sheetfit/trackerbot/internal/nutrition"
	"github.com/sheetfit/trackerbot/internal/rowstore"
	"github.com/sheetfit/trackerbot/internal/schema"
	"github.com/sheetfit/trackerbot/internal/sheets"
	"github.com/sheetfit/trackerbot/internal/summary"
	"github.com/sheetfit/trackerbot/internal/telegram"
)

const healthInterval = 30 * time.Second

// Run starts the bot service and blocks until shutdown or error.
func Run() error {
	log := logger.New("tracker-bot")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}
	log = logger.WithLevel(log, cfg.LogLevel)

	log.Info().
		Str("gemini_model", cfg.GeminiModel).
		Int("http_port", cfg.HTTPPort).
		Int("tenants", len(cfg.Tenants)).
		Msg("Tracker bot starting")

	ctx, stop := newServerContext()
	defer stop()

	// The registry is the single place duplicate tokens are rejected.
	registry, err := schema.NewRegistry(cfg.Tenants)
	if err != nil {
		log.Error().Err(err).Msg("Invalid tenant configuration")
		return err
	}

	deps, err := initDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}

	tenants := make([]*schema.Tenant, len(cfg.Tenants))
	apis := make([]*telegram.Client, len(cfg.Tenants))
	for i, t := range cfg.Tenants {
		tenant, err := registry.ByToken(t.Token)
		if err != nil {
			log.Error().Err(err).Msg("Tenant lookup failed")
			return err
		}
		tenants[i] = tenant
		apis[i] = telegram.New(tenant.Token, log)
	}

	svcHealth := startHealthCheckers(ctx, cfg, log, deps, apis[0])

	server := newHTTPServer(ctx, cfg, buildRouter(svcHealth))
	errCh := serveHTTP(server, log, cfg)

	var wg sync.WaitGroup
	for i, t := range tenants {
		poller := telegram.NewPoller(apis[i], t, deps.engine, deps.summaries, cfg.PollTimeout, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(ctx)
		}()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
		wg.Wait()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Tracker bot exited")
		return nil
	case err := <-errCh:
		log.Error().Err(err).Msg("HTTP server failed")
		return err
	}
}

// dependencies holds the constructed service graph.
type dependencies struct {
	sheetsClient *sheets.Client
	foodDB       *usda.Client
	llm          *gemini.Client
	engine       *conversation.Engine
	summaries    *summary.Service
}

func initDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*dependencies, error) {
	sheetsClient, err := sheets.New(ctx, cfg.ServiceAccountJSON, log)
	if err != nil {
		log.Error().Err(err).Msg("Sheets client unavailable")
		return nil, err
	}

	llm := gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel, "", log)
	foodDB := usda.New(cfg.USDAAPIKey, "", log)

	rows := rowstore.New(sheetsClient, log)
	resolver := nutrition.NewResolver(foodDB, nutrition.NewGeminiAdvisor(llm, log), log)
	items := extractor.New(llm, log)

	engine := conversation.NewEngine(rows, resolver, items, conversation.NewManager(), log)
	summaries := summary.New(rows, log)

	return &dependencies{
		sheetsClient: sheetsClient,
		foodDB:       foodDB,
		llm:          llm,
		engine:       engine,
		summaries:    summaries,
	}, nil
}

// startHealthCheckers probes each upstream and aggregates into one flag.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, deps *dependencies, bot *telegram.Client) *health.ServiceHealthChecker {
	// Any tenant's sheet proves Sheets API reachability; any bot token
	// proves the Bot API is up.
	sheetID := cfg.Tenants[0].SheetID

	checkers := []health.Checker{
		health.NewPingChecker("sheets", func(ctx context.Context) error {
			return deps.sheetsClient.Ping(ctx, sheetID)
		}, log),
		health.NewPingChecker("usda", deps.foodDB.Ping, log),
		health.NewPingChecker("gemini", deps.llm.Ping, log),
		health.NewPingChecker("telegram", bot.Ping, log),
	}
	for _, c := range checkers {
		go c.Start(ctx, healthInterval)
	}

	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	go svcHealth.Start(ctx, healthInterval)
	return svcHealth
}

func buildRouter(svcHealth *health.ServiceHealthChecker) *mux.Router {
	root := mux.NewRouter()
	root.HandleFunc("/v0/health", func(w http.ResponseWriter, r *http.Request) {
		if !svcHealth.IsHealthy() {
			http.Error(w, `{"status":"unhealthy"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	return root
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
