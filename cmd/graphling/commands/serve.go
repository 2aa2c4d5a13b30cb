package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/graphling/graphling/internal/checkpoint"
	"github.com/graphling/graphling/internal/config"
	"github.com/graphling/graphling/internal/jobregistry"
	"github.com/graphling/graphling/internal/observability"
	"github.com/graphling/graphling/internal/transport"
)

// readHeaderTimeout bounds how long the websocket HTTP listener waits for
// request headers before giving up, per Go's http.Server hardening advice.
const readHeaderTimeout = 10 * time.Second

// shutdownGrace bounds how long serve waits for in-flight jobs to unwind
// on SIGINT/SIGTERM before the process exits anyway.
const shutdownGrace = 10 * time.Second

// ServeCommand holds the flags for the serve command.
type ServeCommand struct {
	addr            string
	diagnosticsAddr string
	configPath      string
	checkpointDir   string
	projects        []string
}

// NewServeCommand creates and configures the serve command.
func NewServeCommand() *cobra.Command {
	sc := &ServeCommand{}

	cobraCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket analysis server",
		Long:  "Run the websocket server that accepts start_analysis/subscribe/cancel requests and streams batch_update frames back.",
		RunE:  sc.Run,
	}

	cobraCmd.Flags().StringVar(&sc.addr, "addr", ":8765", "address to listen on")
	cobraCmd.Flags().StringVar(&sc.diagnosticsAddr, "diagnostics-addr", "", "address for /healthz, /readyz, /metrics (disabled if empty)")
	cobraCmd.Flags().StringVar(&sc.configPath, "config", "", "path to config file (default: search CWD and $HOME)")
	cobraCmd.Flags().StringVar(&sc.checkpointDir, "checkpoint-dir", "", "checkpoint base directory (default: ~/.graphling/checkpoints)")
	cobraCmd.Flags().StringSliceVar(&sc.projects, "project", nil, "project_id=root_path pair, repeatable")

	return cobraCmd
}

// Run executes the serve command.
func (sc *ServeCommand) Run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(sc.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	providers, err := observability.Init(observability.Config{Mode: observability.ModeServe})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	defer func() {
		_ = providers.Shutdown(context.Background())
	}()

	checkpointDir := sc.checkpointDir
	if checkpointDir == "" {
		checkpointDir = checkpoint.DefaultDir()
	}

	registry, err := buildRegistry(cfg, checkpointDir, providers.Logger)
	if err != nil {
		return fmt.Errorf("build job registry: %w", err)
	}

	resolver, err := sc.resolver()
	if err != nil {
		return err
	}

	redMetrics, err := observability.NewREDMetrics(providers.Meter)
	if err != nil {
		return fmt.Errorf("build RED metrics: %w", err)
	}

	srv := transport.NewServer(registry, resolver, providers.Logger).WithMetrics(redMetrics)

	httpServer := &http.Server{
		Addr:              sc.addr,
		Handler:           observability.HTTPMiddleware(providers.Tracer, providers.Logger, srv),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	var diag *observability.DiagnosticsServer
	if sc.diagnosticsAddr != "" {
		diag, err = observability.NewDiagnosticsServer(
			sc.diagnosticsAddr, providers.Meter, providers.PrometheusRegistry,
			sc.poolReadyChecks(cfg, registry)...,
		)
		if err != nil {
			return fmt.Errorf("start diagnostics server: %w", err)
		}

		defer func() { _ = diag.Close() }()

		providers.Logger.Info("diagnostics listening", "addr", diag.Addr())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)

	go func() {
		providers.Logger.Info("listening", "addr", sc.addr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		providers.Logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		_ = httpServer.Shutdown(shutdownCtx)
		registry.Shutdown(shutdownCtx)
	}

	return nil
}

// poolReadyChecks builds one ReadyCheck per configured language, each
// reporting unavailable (respawn budget exhausted) as a
// failed readiness probe — a process that can no longer reach any of its
// configured language servers isn't ready to accept start_analysis.
func (sc *ServeCommand) poolReadyChecks(cfg *config.Config, registry *jobregistry.Registry) []observability.ReadyCheck {
	checks := make([]observability.ReadyCheck, 0, len(cfg.Languages))

	for _, l := range cfg.Languages {
		lang := l.Language

		checks = append(checks, func(_ context.Context) error {
			if registry.Unavailable(lang) {
				return fmt.Errorf("language server %q is unavailable", lang)
			}

			return nil
		})
	}

	return checks
}

func (sc *ServeCommand) resolver() (*transport.MapResolver, error) {
	roots := make(map[string]string, len(sc.projects))

	for _, p := range sc.projects {
		idPath := strings.SplitN(p, "=", 2)
		if len(idPath) != 2 || idPath[0] == "" || idPath[1] == "" {
			return nil, fmt.Errorf("invalid --project value %q, want project_id=root_path", p)
		}

		roots[idPath[0]] = idPath[1]
	}

	return transport.NewMapResolver(roots), nil
}
