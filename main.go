package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/concertbot/server/internal/agent/graph"
	"github.com/concertbot/server/internal/agent/model"
	"github.com/concertbot/server/internal/agent/repo"
	"github.com/concertbot/server/internal/agent/service"
	"github.com/concertbot/server/internal/core"
	"github.com/concertbot/server/internal/events"
	"github.com/concertbot/server/internal/geo"
	"github.com/concertbot/server/internal/server"
	"github.com/concertbot/server/pkg/httpx"
	logx "github.com/concertbot/server/pkg/logger"
	pkgredis "github.com/concertbot/server/pkg/redis"
)

// AppConfig defines all configurable parameters of the service,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure
	Redis pkgredis.Config

	// Upstream APIs
	Events model.EventsConfig
	Geo    model.GeoConfig
	Retry  model.RetryConfig

	// Agent configs
	Conversation model.ConversationConfig
	Server       model.ServerConfig
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "concertbot",
		Short:         "Chat agent that finds concerts across the United States",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading the environment")
	root.AddCommand(serveCmd(), chatCmd())
	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API, websocket push and widget assets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return server.New(a.svc, cfg.Server).ListenAndServe(ctx)
		},
	}
	cmd.Flags().String("addr", "", "listen address, overrides HTTP_ADDR")
	return cmd
}

func loadConfig(cmd *cobra.Command) (*AppConfig, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	envLoadErr := godotenv.Load(envFile)

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Environment)})
	if envLoadErr != nil {
		logx.Debug().Err(envLoadErr).Str("file", envFile).Msg("no dotenv file loaded")
	}
	if cfg.Events.APIKey == "" {
		logx.Warn().Msg("TICKETMASTER_API_KEY is empty, every query will use sample concerts")
	}
	return &cfg, nil
}

// app holds the wired agent and what must be released on exit.
type app struct {
	svc     *service.Service
	rdb     *goredis.Client
	sweeper *service.Sweeper
}

func (a *app) Close() {
	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	a.svc.Close()
	a.closeRedis()
}

func buildApp(ctx context.Context, cfg *AppConfig) (*app, error) {
	ttl, err := cfg.Conversation.SessionTTL()
	if err != nil {
		return nil, fmt.Errorf("invalid CONVERSATION_TTL %q: %w", cfg.Conversation.TTL, err)
	}

	var (
		a        = &app{}
		sessions model.SessionRepository
		history  model.ConversationRepository
		cache    model.ConcertCache

		memSessions *repo.MemorySessionRepository
	)
	if cfg.Redis.Enabled() {
		rdb, err := cfg.Redis.New()
		if err != nil {
			return nil, fmt.Errorf("initialise redis client: %w", err)
		}
		a.rdb = rdb
		sessions = repo.NewRedisSessionRepository(rdb, ttl)
		history = repo.NewRedisConversationRepository(rdb, ttl, cfg.Conversation.HistoryLimit)
		cache = repo.NewRedisConcertCache(rdb, ttl)
		logx.Info().Msg("connected to redis")
	} else {
		memSessions = repo.NewMemorySessionRepository()
		sessions = memSessions
		history = repo.NewMemoryConversationRepository(cfg.Conversation.HistoryLimit)
		cache = events.NewMemoryCache()
		logx.Info().Msg("REDIS_URL not set, keeping sessions in memory")
	}

	retry := httpx.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Delay:       cfg.Retry.Delay,
		Multiplier:  cfg.Retry.Multiplier,
	}
	finder := events.NewFinder(events.Config{
		BaseURL:  cfg.Events.BaseURL,
		APIKey:   cfg.Events.APIKey,
		PageSize: cfg.Events.PageSize,
		Retry:    retry,
	}, cache, events.WithHTTPClient(&http.Client{Timeout: cfg.Events.Timeout}))

	resolver := geo.NewResolver(geo.Config{
		ReverseURL:  cfg.Geo.ReverseURL,
		DefaultCity: cfg.Geo.DefaultCity,
		Retry:       retry,
	}, geo.WithHTTPClient(&http.Client{Timeout: cfg.Geo.Timeout}))

	runner, err := graph.BuildResponseGraph(ctx, graph.Config{
		Sessions:         sessions,
		ConversationRepo: history,
		Finder:           finder,
		Conversation:     cfg.Conversation,
	})
	if err != nil {
		a.closeRedis()
		return nil, fmt.Errorf("build graph: %w", err)
	}

	a.svc, err = service.New(service.Deps{
		Runner:           runner,
		Sessions:         sessions,
		ConversationRepo: history,
		Cache:            cache,
		Finder:           finder,
		Fallback:         finder.Fallback(),
		Resolver:         resolver,
		Hub:              service.NewHub(0),
	}, cfg.Conversation)
	if err != nil {
		a.closeRedis()
		return nil, err
	}

	if memSessions != nil && ttl > 0 {
		a.sweeper, err = service.NewSweeper(a.svc, memSessions, ttl, cfg.Conversation.SweepSchedule)
		if err != nil {
			a.svc.Close()
			return nil, err
		}
		a.sweeper.Start()
	}
	return a, nil
}

func (a *app) closeRedis() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}
