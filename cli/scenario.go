package cli

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
	"go.keploy.io/testengine/config"
	"go.keploy.io/testengine/pkg/models"
	"go.keploy.io/testengine/pkg/service/apitest"
	"go.keploy.io/testengine/pkg/service/scenario"
	"go.keploy.io/testengine/utils"
	"go.uber.org/zap"
)

func init() {
	Register("scenario", Scenario)
}

func Scenario(ctx context.Context, logger *zap.Logger, cfg *config.Config, serviceFactory ServiceFactory, cmdConfigurator CmdConfigurator) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "scenario",
		Short: "run multi-step test scenarios",
	}

	var runCmd = &cobra.Command{
		Use:     "run",
		Short:   "run the scenarios of a test file",
		Example: `testengine scenario run -f testengine/apitests.yaml --name checkout --tag smoke`,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmdConfigurator.Validate(ctx, cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			runner, err := scenarioRunner(ctx, serviceFactory)
			if err != nil {
				utils.LogError(logger, err, "failed to get service")
				return err
			}
			tf, err := apitest.LoadTestFile(cfg.Scenario.File)
			if err != nil {
				utils.LogError(logger, err, "failed to load the scenario file", zap.String("file", cfg.Scenario.File))
				return err
			}
			names, _ := cmd.Flags().GetStringSlice("name")
			tags, _ := cmd.Flags().GetStringSlice("tag")
			selected, err := selectScenarios(tf, names, tags)
			if err != nil {
				utils.LogError(logger, err, "failed to select scenarios")
				return err
			}

			baseURL := cfg.Scenario.BaseURL
			if baseURL == "" {
				baseURL = tf.BaseURL
			}
			if baseURL == "" {
				baseURL = cfg.APITest.BaseURL
			}
			runID, _ := cmd.Flags().GetString("runId")
			ro := scenario.RunOptions{RunID: runID, Environment: cfg.Environment, Build: cfg.Build, BaseURL: baseURL}

			var results []*models.FlowResult
			failed := 0
			for _, opts := range selected {
				for i := range opts.Steps {
					if opts.Steps[i].Timeout == 0 {
						opts.Steps[i].Timeout = cfg.Scenario.StepTimeout
					}
				}
				s, err := models.NewTestScenario(opts, nil)
				if err != nil {
					utils.LogError(logger, err, "invalid scenario", zap.String("scenario", opts.Name))
					return err
				}
				res, err := runner.Run(ctx, s, ro)
				if err != nil {
					utils.LogError(logger, err, "failed to run the scenario", zap.String("scenario", opts.Name))
					return err
				}
				printFlow(cmd.OutOrStdout(), opts.Name, res)
				results = append(results, res)
				if res.Status != models.FlowPassed {
					failed++
				}
				if ctx.Err() != nil {
					break
				}
			}

			if out, _ := cmd.Flags().GetString("out"); out != "" {
				raw, err := json.MarshalIndent(results, "", "  ")
				if err != nil {
					return err
				}
				if err := writeOutput(cmd.OutOrStdout(), out, raw); err != nil {
					utils.LogError(logger, err, "failed to write the scenario report")
					return err
				}
			}
			if failed > 0 {
				return models.AppError{AppErrorType: models.ErrTestFailure}
			}
			return nil
		},
	}

	cmd.AddCommand(runCmd)
	if err := cmdConfigurator.AddFlags(runCmd); err != nil {
		utils.LogError(logger, err, "failed to add scenario flags")
		return nil
	}
	return cmd
}

func scenarioRunner(ctx context.Context, serviceFactory ServiceFactory) (*scenario.Runner, error) {
	svc, err := serviceFactory.GetService(ctx, "scenario")
	if err != nil {
		return nil, err
	}
	runner, ok := svc.(*scenario.Runner)
	if !ok {
		return nil, errors.New("service doesn't satisfy the scenario runner")
	}
	return runner, nil
}

func findScenario(tf *models.TestFile, name string) (models.ScenarioOptions, error) {
	names := make([]string, 0, len(tf.Scenarios))
	for _, s := range tf.Scenarios {
		if s.Name == name || (s.ID != "" && s.ID == name) {
			return s, nil
		}
		names = append(names, s.Name)
	}
	return models.ScenarioOptions{}, &models.NotFoundError{Kind: "scenario", IDs: []string{name}, Suggestion: utils.Suggest(name, names, 3)}
}

// selectScenarios keeps the scenarios named in names (all when empty) that
// carry at least one of tags (any when empty), in file order.
func selectScenarios(tf *models.TestFile, names, tags []string) ([]models.ScenarioOptions, error) {
	var selected []models.ScenarioOptions
	if len(names) > 0 {
		for _, n := range names {
			s, err := findScenario(tf, n)
			if err != nil {
				return nil, err
			}
			selected = append(selected, s)
		}
	} else {
		selected = append(selected, tf.Scenarios...)
	}
	if len(tags) > 0 {
		kept := selected[:0]
		for _, s := range selected {
			if hasAnyTag(s.Tags, tags) {
				kept = append(kept, s)
			}
		}
		selected = kept
	}
	if len(selected) == 0 {
		return nil, errors.New("no scenarios matched the selection")
	}
	return selected, nil
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}
