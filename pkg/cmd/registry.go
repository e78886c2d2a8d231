// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"log/slog"

	"github.com/gantryci/gantry/pkg/actions/checkout"
	"github.com/gantryci/gantry/pkg/actions/install"
	"github.com/gantryci/gantry/pkg/actions/lint"
	"github.com/gantryci/gantry/pkg/actions/runtime"
	"github.com/gantryci/gantry/pkg/actions/script"
	"github.com/gantryci/gantry/pkg/registry"
	"github.com/gantryci/gantry/pkg/sources/queue"
	"github.com/gantryci/gantry/pkg/sources/scheduler"
	"github.com/gantryci/gantry/pkg/sources/webhook"
)

func registerActionPlugins(ctx context.Context, reg *registry.Registry, pluginsPath string) {
	actionPlugins, err := reg.LoadActionPlugins(ctx, pluginsPath)
	if err != nil {
		panic(err)
	}

	for _, plugin := range actionPlugins {
		reg.RegisterAction(plugin)
	}
}

func registerSourceProviderPlugins(ctx context.Context, reg *registry.Registry, pluginsPath string) {
	sourceProviderPlugins, err := reg.LoadSourceProviderPlugins(ctx, pluginsPath)
	if err != nil {
		panic(err)
	}

	for _, plugin := range sourceProviderPlugins {
		reg.RegisterSourceProvider(plugin)
	}
}

func registerNativeActions(reg *registry.Registry) {
	reg.RegisterAction(checkout.NewFactory())
	reg.RegisterAction(runtime.NewFactory())
	reg.RegisterAction(install.NewFactory())
	reg.RegisterAction(lint.NewFactory())
	reg.RegisterAction(script.NewFactory())
}

func registerNativeSourceProviders(reg *registry.Registry) {
	reg.RegisterSourceProvider(webhook.NewFactory())
	reg.RegisterSourceProvider(scheduler.NewFactory())
	reg.RegisterSourceProvider(queue.NewFactory())
}

// NewRegistry builds the action and source provider registry: the five
// bundled step actions, the three bundled source providers, and any .so
// plugins found under pluginsPath.
func NewRegistry(ctx context.Context, log *slog.Logger, pluginsPath string) *registry.Registry {
	reg := registry.NewRegistry(log)

	registerActionPlugins(ctx, reg, pluginsPath)
	registerSourceProviderPlugins(ctx, reg, pluginsPath)

	registerNativeActions(reg)
	registerNativeSourceProviders(reg)

	return reg
}
