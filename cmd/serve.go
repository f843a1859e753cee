package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-registry/internal/audit"
	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/constants"
	"github.com/kozaktomas/face-registry/internal/embedding"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"github.com/kozaktomas/face-registry/internal/logging"
	"github.com/kozaktomas/face-registry/internal/metrics"
	"github.com/kozaktomas/face-registry/internal/registry"
	"github.com/kozaktomas/face-registry/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Registry HTTP API.
The server registers identities, compares probe faces against the registry,
issues session tokens and records every request in the audit history.
Pending database migrations are applied on startup.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides HOST)")
}

// resolveServeHostPort applies the --host and --port flags on top of the
// environment configuration.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = mustGetString(cmd, "host")
	}
}

// newMetricsRegistry returns a registry with the process collectors and the
// application metrics.
func newMetricsRegistry(m *metrics.Metrics) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := m.Register(reg); err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}
	return reg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	resolveServeHostPort(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.New(cfg.Log)
	ctx := context.Background()

	fmt.Printf("Connecting to database...\n")
	backend, err := openBackend(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer backend.Close()

	if count, err := backend.Identities.Count(ctx); err != nil {
		fmt.Printf("Warning: failed to count identities: %v\n", err)
	} else {
		fmt.Printf("Registry holds %d identities\n", count)
	}

	images, err := newImageStore(cfg)
	if err != nil {
		return err
	}

	tokenStore, closeTokens, err := newTokenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeTokens()

	m := metrics.New()
	promReg, err := newMetricsRegistry(m)
	if err != nil {
		return err
	}

	embedder := embedding.NewClient(cfg.Embedding.URL, embedding.Options{
		Dim:          cfg.Embedding.Dim,
		MaxImageSize: cfg.Embedding.MaxImageSize,
		Timeout:      cfg.Embedding.Timeout,
	})
	matcher := facematch.NewMatcher(cfg.Matching.FaceThreshold, cfg.Matching.EffectiveDuplicateThreshold())
	fmt.Printf("Face threshold: %.2f (duplicates: %.2f)\n",
		cfg.Matching.FaceThreshold, cfg.Matching.EffectiveDuplicateThreshold())

	reg := registry.New(backend.Identities, images, embedder, matcher, registry.Options{
		RequireEmail: cfg.Registration.RequireEmail,
		Metrics:      m,
		Logger:       logger,
	})
	recorder := audit.NewRecorder(backend.Audit, logger, m)

	server := web.NewServer(web.Dependencies{
		Config:   cfg,
		Registry: reg,
		Images:   images,
		Tokens:   tokenStore,
		Recorder: recorder,
		Metrics:  m,
		Gatherer: promReg,
		Logger:   logger,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start returns as soon as Shutdown begins; wait for in-flight requests
	// and audit writes before the deferred closes run.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	if cfg.Server.DevTokenEndpoint {
		fmt.Println("Warning: GET /generarToken is enabled, anyone can mint session tokens")
	}
	fmt.Printf("Starting Face Registry on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	<-shutdownDone
	return nil
}
