// Package registry tracks available step actions and source providers,
// including ones loaded from plugins.
package registry

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"sort"
	"strings"

	"github.com/gantryci/gantry/pkg/protocol"
)

type Registry struct {
	logger          *slog.Logger
	actionFactories map[string]protocol.ActionFactory
	sourceFactories map[string]protocol.ProviderFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:          log,
		actionFactories: make(map[string]protocol.ActionFactory),
		sourceFactories: make(map[string]protocol.ProviderFactory),
	}
}

func (r *Registry) LoadActionPlugins(ctx context.Context, pluginsPath string) ([]protocol.ActionFactory, error) {
	return loadPlugin[protocol.ActionFactory](r.logger, pluginsPath, "Action")
}

func (r *Registry) LoadSourceProviderPlugins(ctx context.Context, pluginsPath string) ([]protocol.ProviderFactory, error) {
	return loadPlugin[protocol.ProviderFactory](r.logger, pluginsPath, "SourceProvider")
}

func (r *Registry) RegisterAction(actionFactory protocol.ActionFactory) {
	r.actionFactories[actionFactory.ID()] = actionFactory
}

func (r *Registry) RegisterSourceProvider(providerFactory protocol.ProviderFactory) {
	r.sourceFactories[providerFactory.ID()] = providerFactory
}

func (r *Registry) CreateAction(actionID string, config map[string]interface{}) (protocol.Action, error) {
	factory, ok := r.actionFactories[actionID]
	if !ok {
		return nil, fmt.Errorf("action type '%s' not registered", actionID)
	}

	return factory.Create(config)
}

func (r *Registry) CreateSourceProvider(providerID string, config map[string]any) (protocol.Provider, error) {
	factory, ok := r.sourceFactories[providerID]
	if !ok {
		return nil, fmt.Errorf("source provider '%s' not registered", providerID)
	}

	return factory.Create(config, r.logger)
}

// AvailableActions returns the registered action identifiers, sorted.
func (r *Registry) AvailableActions() []string {
	ids := make([]string, 0, len(r.actionFactories))
	for id := range r.actionFactories {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// AvailableActionFactories returns the registered action factories,
// sorted by ID. The API uses these to expose action schemas.
func (r *Registry) AvailableActionFactories() []protocol.ActionFactory {
	factories := make([]protocol.ActionFactory, 0, len(r.actionFactories))
	for _, factory := range r.actionFactories {
		factories = append(factories, factory)
	}

	sort.Slice(factories, func(i, j int) bool {
		return factories[i].ID() < factories[j].ID()
	})

	return factories
}

// AvailableSourceProviders returns the registered provider factories,
// sorted by ID. The API uses these to expose provider schemas.
func (r *Registry) AvailableSourceProviders() []protocol.ProviderFactory {
	factories := make([]protocol.ProviderFactory, 0, len(r.sourceFactories))
	for _, factory := range r.sourceFactories {
		factories = append(factories, factory)
	}

	sort.Slice(factories, func(i, j int) bool {
		return factories[i].ID() < factories[j].ID()
	})

	return factories
}

// HealthCheck reports registry contents for the health endpoint. A
// registry with no actions cannot run any pipeline step.
func (r *Registry) HealthCheck() (map[string]any, bool) {
	details := map[string]any{
		"actions":          len(r.actionFactories),
		"source_providers": len(r.sourceFactories),
	}

	return details, len(r.actionFactories) > 0
}

func loadPlugin[T interface{}](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	if pluginsPath == "" {
		return nil, nil
	}

	rootPath := pluginsPath + "/" + strings.ToLower(symbolName) + "s"
	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "**/*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			panic(err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			panic(err)
		}

		castV, ok := v.(T)
		if !ok {
			panic("Could not cast plugin")
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
