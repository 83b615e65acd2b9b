package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KamdynS/payroll-agents/config"
	"github.com/KamdynS/payroll-agents/observability/prom"
	httpserver "github.com/KamdynS/payroll-agents/server/http"
)

var serveCORS bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the orchestrator over HTTP.

Endpoints:
  POST /api/query        Ask one question, optionally forcing an agent
  POST /api/multi-agent  Ask with the full relevance analysis in the response
  GET  /api/agents       List the agent catalog
  GET  /health           Liveness probe
  GET  /metrics          Prometheus text metrics`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveCORS, "cors", false, "Allow cross-origin requests")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := buildStack(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		return err
	}
	defer s.Close()

	srv := httpserver.NewServer(s.orch, serverConfig(cfg.Server, serveCORS, s.metrics), log)
	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func serverConfig(cfg config.ServerConfig, cors bool, metrics *prom.Exporter) httpserver.Config {
	out := httpserver.Config{
		Addr:         cfg.Addr,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		EnableCORS:   cors,
	}
	if cfg.RateLimit.Enabled {
		out.RateLimit = httpserver.RateLimit{RPS: cfg.RateLimit.RPS, Burst: cfg.RateLimit.Burst}
	}
	if metrics != nil {
		out.Metrics = prom.Handler(metrics)
	}
	return out
}

