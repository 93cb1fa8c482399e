package cli

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/ignatij/blogflow/internal/config"
	"github.com/ignatij/blogflow/internal/log"
	internal_storage "github.com/ignatij/blogflow/internal/storage"
	"github.com/ignatij/blogflow/pkg/provider"
	"github.com/ignatij/blogflow/pkg/service"
	"github.com/ignatij/blogflow/pkg/storage"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// app holds what a command needs to talk to the workflow service.
type app struct {
	cfg      *config.Config
	store    storage.Store
	registry *provider.Registry
	svc      *service.WorkflowService

	awsCfg aws.Config
	awsErr error
}

// newApp loads configuration, applies flag overrides and opens the store.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	applyFlags(cmd, cfg)
	log.GetLogger().Debugf("Using %s store, provider %s, model %s", cfg.Store, cfg.Provider, cfg.ModelID)

	store, err := internal_storage.InitStore(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "initialize store")
	}

	a := &app{cfg: cfg, store: store}
	a.registry = a.buildRegistry(cmd.Context())
	a.svc = service.NewWorkflowService(cmd.Context(), store, a.registry, log.GetLogger(), service.WithWorkers(cfg.Workers))
	return a, nil
}

// buildRegistry registers every provider that can be constructed. Bedrock is
// left out when no AWS configuration can be loaded.
func (a *app) buildRegistry(ctx context.Context) *provider.Registry {
	registry := provider.NewRegistry()
	registry.Register(provider.EchoProvider, provider.NewEcho)
	registry.Register(provider.OpenAIProvider, provider.NewOpenAI)

	a.awsCfg, a.awsErr = provider.LoadAWSConfig(ctx, a.cfg.Region)
	if a.awsErr != nil {
		log.Component("cli").Warnf("Bedrock provider unavailable: %v", a.awsErr)
		return registry
	}
	registry.Register(provider.BedrockProvider, provider.NewBedrockFactory(a.awsCfg))
	return registry
}

func (a *app) Close() {
	a.svc.Close()
	if err := a.store.Close(); err != nil {
		log.GetLogger().Errorf("Failed to close store: %v", err)
	}
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("store") {
		cfg.Store, _ = flags.GetString("store")
	}
	if flags.Changed("db") {
		cfg.DBConnStr, _ = flags.GetString("db")
	}
	if flags.Changed("sqlite-path") {
		cfg.SQLitePath, _ = flags.GetString("sqlite-path")
	}
	if flags.Changed("provider") {
		cfg.Provider, _ = flags.GetString("provider")
	}
	if flags.Changed("model") {
		cfg.ModelID, _ = flags.GetString("model")
	}
	if flags.Changed("region") {
		cfg.Region, _ = flags.GetString("region")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
}
