package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// ServiceFactory builds the service a command runs against. cmd is the
// top-level command name.
type ServiceFactory interface {
	GetService(ctx context.Context, cmd string) (interface{}, error)
}

type CmdConfigurator interface {
	AddFlags(cmd *cobra.Command) error
	Validate(ctx context.Context, cmd *cobra.Command) error
}
