// Package cli holds the cobra commands of the testengine binary.
package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.keploy.io/testengine/config"
	"go.uber.org/zap"
)

type HookFunc func(ctx context.Context, logger *zap.Logger, cfg *config.Config, serviceFactory ServiceFactory, cmdConfigurator CmdConfigurator) *cobra.Command

// Registered holds the registered command hooks
var Registered map[string]HookFunc

func Register(name string, f HookFunc) {
	if Registered == nil {
		Registered = make(map[string]HookFunc)
	}
	Registered[name] = f
}
