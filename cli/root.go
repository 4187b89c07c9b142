package cli

import (
	"context"
	"sort"

	"github.com/spf13/cobra"
	"go.keploy.io/testengine/config"
	"go.keploy.io/testengine/utils"
	"go.uber.org/zap"
)

var rootCustomHelpTemplate = `{{.Short}}

Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Available Commands:{{range .Commands}}{{if .IsAvailableCommand}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}

Examples:
{{.Example}}

Use "{{.CommandPath}} [command] --help" for more information about a command.
`

var rootExamples = `
  API tests:
	testengine apitest run -f testengine/apitests.yaml --suite smoke --report html -o report.html
	testengine apitest curl "curl -X POST http://localhost:8080/users -d '{\"name\":\"ada\"}'"

  Mock data:
	testengine mock generate --template user-profile-basic --seed 42 --store yaml
	testengine mock export <id> --format csv

  Load:
	testengine load -f testengine/apitests.yaml --testCase list-users --users 50 --rampUp 30s --sustain 2m

  Scenarios:
	testengine scenario run -f testengine/apitests.yaml --name checkout
`

var versionTemplate = `{{with .Version}}{{printf "testengine %s" .}}{{end}}{{"\n"}}`

func Root(ctx context.Context, logger *zap.Logger, cfg *config.Config, svcFactory ServiceFactory, cmdConfigurator CmdConfigurator) *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:           "testengine",
		Short:         "Run API tests, load tests and scenarios against HTTP services, with generated mock data.",
		Example:       rootExamples,
		Version:       utils.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetHelpTemplate(rootCustomHelpTemplate)
	rootCmd.SetVersionTemplate(versionTemplate)

	if err := cmdConfigurator.AddFlags(rootCmd); err != nil {
		utils.LogError(logger, err, "failed to set flags")
		return nil
	}

	names := make([]string, 0, len(Registered))
	for name := range Registered {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if c := Registered[name](ctx, logger, cfg, svcFactory, cmdConfigurator); c != nil {
			rootCmd.AddCommand(c)
		}
	}
	return rootCmd
}
