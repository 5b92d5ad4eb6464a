// Command sundew runs a deception service: it impersonates a believable
// internal API and MCP server, captures every probe, and classifies the
// traffic behind it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sundew-sh/sundew/internal/config"
	"github.com/sundew-sh/sundew/internal/httpapi"
	"github.com/sundew-sh/sundew/internal/llm"
	"github.com/sundew-sh/sundew/internal/logs"
	"github.com/sundew-sh/sundew/internal/models"
	"github.com/sundew-sh/sundew/internal/observability"
	"github.com/sundew-sh/sundew/internal/persona"
	"github.com/sundew-sh/sundew/internal/session"
	"github.com/sundew-sh/sundew/internal/storage"
)

var (
	configFile          string
	logLevel            string
	regenerateTemplates bool

	version = "v0.1.0" // injected by -ldflags during build
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "sundew",
		Short:   "Adaptive deception service for AI agents and automated scanners",
		Version: version,
		RunE:    runServe,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path (default: ./sundew.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	rootCmd.Flags().BoolVar(&regenerateTemplates, "regenerate-templates", false, "Discard the template cache and regenerate at startup")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the trap listener",
		RunE:  runServe,
	}
	serveCmd.Flags().BoolVar(&regenerateTemplates, "regenerate-templates", false, "Discard the template cache and regenerate at startup")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newPersonaCmd())
	rootCmd.AddCommand(newEventsCmd())
	rootCmd.AddCommand(newSessionsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger, err := logs.SetupLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	p, err := resolvePersona(cfg, sugar)
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("persona rejected: %w", err)
	}

	provider, err := llm.New(llm.Config{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}, sugar)
	if err != nil {
		return fmt.Errorf("failed to build llm provider: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dataDir := filepath.Dir(cfg.Storage.Database)
	engine, err := persona.NewEngine(p, provider, dataDir, sugar)
	if err != nil {
		return fmt.Errorf("failed to create persona engine: %w", err)
	}
	if err := engine.Initialize(ctx, regenerateTemplates); err != nil {
		return fmt.Errorf("failed to initialize templates: %w", err)
	}

	store, err := storage.NewManager(cfg.Storage.Database, cfg.Storage.LogFile, sugar)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	tracker := session.NewTracker(store, time.Duration(cfg.Session.IdleSeconds)*time.Second, sugar)

	var metrics *observability.MetricsManager
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetricsManager(sugar)
		go func() {
			if err := metrics.Serve(ctx, cfg.Observability.MetricsListen); err != nil {
				sugar.Errorw("Metrics listener failed", "error", err)
			}
		}()
	}

	server := httpapi.NewServer(cfg, engine, tracker, metrics, sugar)
	return server.Start(ctx)
}

// resolvePersona generates a fresh persona or loads a persisted one,
// depending on the config's persona value.
func resolvePersona(cfg *config.Config, logger *zap.SugaredLogger) (*models.Persona, error) {
	if cfg.Persona == config.PersonaAuto {
		p := persona.Generate(persona.NewSeed())
		logger.Infow("Generated persona",
			"seed", p.Seed,
			"company", p.CompanyName,
			"industry", p.Industry,
			"framework", p.FrameworkFingerprint)
		return p, nil
	}
	p, err := persona.LoadYAML(cfg.Persona)
	if err != nil {
		return nil, fmt.Errorf("failed to load persona from %s: %w", cfg.Persona, err)
	}
	logger.Infow("Loaded persona", "path", cfg.Persona, "company", p.CompanyName)
	return p, nil
}
