// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/codegate/pkg/api"
	"github.com/kadirpekel/codegate/pkg/config"
	"github.com/kadirpekel/codegate/pkg/embedders"
	"github.com/kadirpekel/codegate/pkg/mux"
	"github.com/kadirpekel/codegate/pkg/notifications"
	"github.com/kadirpekel/codegate/pkg/observability"
	"github.com/kadirpekel/codegate/pkg/pii"
	"github.com/kadirpekel/codegate/pkg/pipeline"
	"github.com/kadirpekel/codegate/pkg/prompts"
	"github.com/kadirpekel/codegate/pkg/providers"
	"github.com/kadirpekel/codegate/pkg/secrets"
	"github.com/kadirpekel/codegate/pkg/server"
	"github.com/kadirpekel/codegate/pkg/sessions"
	"github.com/kadirpekel/codegate/pkg/storage"
	"github.com/kadirpekel/codegate/pkg/vector"
)

// ServeCmd starts the gateway.
type ServeCmd struct {
	Port int `help:"Override the configured listen port." default:"0"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadConfig(cli.Config)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	store, err := storage.Open(cfg.Database.Dialect, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	workspaces := storage.NewWorkspaceService(store)
	if err := workspaces.EnsureDefault(ctx); err != nil {
		return fmt.Errorf("failed to bootstrap default workspace: %w", err)
	}
	providerSvc := storage.NewProviderService(store)
	muxes := storage.NewMuxService(store)
	records := storage.NewRecordService(store)
	personas := storage.NewPersonaService(store)

	engine, err := newSecretsEngine(cfg)
	if err != nil {
		return err
	}

	catalog, err := newPromptCatalog(cfg)
	if err != nil {
		return err
	}

	// The embedder section is optional: without it, persona routing and
	// package advisories stay off while redaction keeps working.
	var embedder embedders.Embedder
	if cfg.EmbeddingEnabled() {
		embedder, err = embedders.New(cfg.Embedder)
		if err != nil {
			return fmt.Errorf("failed to create embedder: %w", err)
		}
		defer embedder.Close()
	}

	vstore, err := vector.New(&cfg.Vector)
	if err != nil {
		return fmt.Errorf("failed to create vector store: %w", err)
	}
	defer vstore.Close()

	alerts := notifications.NewBroadcaster()
	defer alerts.Close()

	factory := &pipeline.Factory{
		Secrets:      engine,
		PII:          pii.NewAnalyzer(),
		Sensitive:    sessions.NewManager(sessions.NewStore()),
		Workspaces:   workspaces,
		Recorder:     records,
		Notifier:     alerts,
		Catalog:      catalog,
		DashboardURL: cfg.Server.DashboardURL,
		Version:      buildVersion(),
	}

	if embedder != nil {
		oracle := vector.NewOracle(vstore, embedder)
		if cfg.Oracle.PackagesFile != "" {
			advisories, err := vector.LoadRecords(cfg.Oracle.PackagesFile)
			if err != nil {
				return fmt.Errorf("failed to load advisory dataset: %w", err)
			}
			if err := oracle.Seed(ctx, advisories); err != nil {
				return fmt.Errorf("failed to seed advisory dataset: %w", err)
			}
			slog.Info("Advisory dataset seeded", "packages", len(advisories))
		}
		factory.Oracle = oracle
	}

	registry := mux.NewRegistry()
	builder := mux.Builder{Threshold: cfg.Muxing.PersonaDistanceThreshold}
	if embedder != nil {
		builder.Personas = vector.NewPersonaScorer(personas, embedder)
	}
	syncer := mux.NewSyncer(registry, builder, muxes, providerSvc, workspaces)
	if err := syncer.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to load routing rules: %w", err)
	}

	upstream := providers.New()

	apiServer := &api.Server{
		Workspaces: workspaces,
		Providers:  providerSvc,
		Muxes:      muxes,
		Personas:   personas,
		Records:    records,
		Upstream:   upstream,
		Embedder:   embedder,
		Alerts:     alerts,
		Rules:      syncer,
		Version:    buildVersion(),
	}

	var obs *observability.Manager
	if cfg.Observability != nil {
		obs = observability.NewManager(*cfg.Observability)
		if err := obs.Initialize(ctx); err != nil {
			return fmt.Errorf("failed to initialize observability: %w", err)
		}
		defer func() {
			if err := obs.Shutdown(context.Background()); err != nil {
				slog.Warn("Observability shutdown failed", "error", err)
			}
		}()
	}

	srv := &server.Server{
		Config:        cfg,
		Factory:       factory,
		Upstream:      upstream,
		Router:        mux.NewRouter(registry),
		Registry:      registry,
		Workspaces:    workspaces,
		Recorder:      records,
		API:           apiServer,
		Observability: obs,
	}

	printStartupInfo(cfg, embedder != nil, obs)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Secrets.Watch && cfg.Secrets.SignaturesFile != "" {
		g.Go(func() error { return engine.Watch(gctx) })
	}
	g.Go(func() error { return srv.Start(gctx) })
	return g.Wait()
}

// newSecretsEngine builds the signature engine from the configured file
// or the embedded catalog.
func newSecretsEngine(cfg *config.Config) (*secrets.Engine, error) {
	if cfg.Secrets.SignaturesFile != "" {
		engine, err := secrets.NewEngineFromFile(cfg.Secrets.SignaturesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load signature catalog: %w", err)
		}
		return engine, nil
	}
	engine, err := secrets.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded signature catalog: %w", err)
	}
	return engine, nil
}

// newPromptCatalog builds the system-prompt catalog from the configured
// file or the embedded one.
func newPromptCatalog(cfg *config.Config) (*prompts.Catalog, error) {
	if cfg.Prompts.File != "" {
		catalog, err := prompts.FromFile(cfg.Prompts.File)
		if err != nil {
			return nil, fmt.Errorf("failed to load prompt catalog: %w", err)
		}
		return catalog, nil
	}
	catalog, err := prompts.Default()
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded prompt catalog: %w", err)
	}
	return catalog, nil
}

func printStartupInfo(cfg *config.Config, embedding bool, obs *observability.Manager) {
	fmt.Printf("\nCodeGate %s ready\n", buildVersion())
	fmt.Printf("   Gateway:     http://%s\n", cfg.Server.Address())
	fmt.Printf("   API:         http://%s/api/v1\n", cfg.Server.Address())
	fmt.Printf("   Health:      http://%s/health\n", cfg.Server.Address())
	fmt.Printf("   Storage:     %s (%s)\n", cfg.Database.Dialect, cfg.Database.DSN)
	if embedding {
		fmt.Printf("   Embedder:    %s/%s\n", cfg.Embedder.Type, cfg.Embedder.Model)
		fmt.Printf("   Vector:      %s\n", cfg.Vector.Type)
	} else {
		fmt.Printf("   Embedder:    disabled (persona routing and package advisories off)\n")
	}
	if obs != nil && obs.MetricsEnabled() {
		fmt.Printf("   Metrics:     http://%s%s\n", cfg.Server.Address(), obs.MetricsEndpoint())
	}
	fmt.Println("\nPress Ctrl+C to stop")
}
