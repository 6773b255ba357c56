package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/scalepilot/scalepilot/internal/advisory"
	"github.com/scalepilot/scalepilot/internal/engine"
	"github.com/scalepilot/scalepilot/internal/guardstate"
	"github.com/scalepilot/scalepilot/internal/httpapi"
	"github.com/scalepilot/scalepilot/internal/metrics"
	"github.com/scalepilot/scalepilot/internal/store"
)

var (
	serveAddr       string
	serveRedisAddr  string
	servePostgres   string
	serveAdvisorURL string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scoring HTTP API",
	Long: `Serve starts the HTTP API: POST /v1/score runs the engine over
caller-supplied inputs, GET /v1/recommendations reads history, GET
/v1/settings shows the effective configuration, /metrics exposes
Prometheus metrics.

Guardrail cooldown state lives in Redis when --redis is set and in
process memory otherwise. Recommendation history requires --postgres.`,
	RunE: runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.StringVar(&serveAddr, "listen", "127.0.0.1:8080", "listen address")
	flags.StringVar(&serveRedisAddr, "redis", "", "redis address for guardrail state (in-memory when empty)")
	flags.StringVar(&servePostgres, "postgres", "", "postgres DSN for recommendation history (disabled when empty)")
	flags.StringVar(&serveAdvisorURL, "advisor", "", "advisory service base URL (no-op when empty)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var guards guardstate.Store = guardstate.NewMemory()
	if serveRedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: serveRedisAddr})
		guards = guardstate.NewRedis(client, "")
		log.Info().Str("addr", serveRedisAddr).Msg("guardrail state in redis")
	}

	registry := prometheus.NewRegistry()
	set := metrics.NewSet()
	if err := set.Register(registry); err != nil {
		return err
	}

	eng, err := engine.New(cfg, guards,
		engine.WithLogger(log.Logger),
		engine.WithMetrics(set),
	)
	if err != nil {
		return err
	}

	var history httpapi.History
	if servePostgres != "" {
		pg, err := store.Open(servePostgres)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.EnsureSchema(cmd.Context()); err != nil {
			return err
		}
		history = pg
	}

	var advisor advisory.Advisor = advisory.Noop{}
	if serveAdvisorURL != "" {
		advisor = advisory.NewClient(serveAdvisorURL, 10*time.Second)
	}

	srvCfg := httpapi.DefaultServerConfig()
	srvCfg.Addr = serveAddr
	srv := httpapi.NewServer(srvCfg, eng, cfg, history, advisor, registry, log.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return srv.ListenAndServe(ctx)
}
