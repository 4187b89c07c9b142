package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.keploy.io/testengine/config"
	"go.keploy.io/testengine/pkg/models"
	"go.keploy.io/testengine/pkg/service/apitest"
	loadSvc "go.keploy.io/testengine/pkg/service/load"
	"go.keploy.io/testengine/pkg/service/scenario"
	"go.keploy.io/testengine/utils"
	"go.uber.org/zap"
)

func init() {
	Register("load", Load)
}

func Load(ctx context.Context, logger *zap.Logger, cfg *config.Config, serviceFactory ServiceFactory, cmdConfigurator CmdConfigurator) *cobra.Command {
	var cmd = &cobra.Command{
		Use:     "load",
		Short:   "load test a test case, a suite or a scenario from a test file",
		Example: `testengine load -f testengine/apitests.yaml --testCase list-users --users 50 --rampUp 30s --sustain 2m --exporterAddr :9090`,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmdConfigurator.Validate(ctx, cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := serviceFactory.GetService(ctx, cmd.Name())
			if err != nil {
				utils.LogError(logger, err, "failed to get service")
				return err
			}
			lt, ok := svc.(*loadSvc.LoadTester)
			if !ok {
				err := errors.New("service doesn't satisfy the load tester")
				utils.LogError(logger, err, "failed to get service")
				return err
			}

			scenarioName, _ := cmd.Flags().GetString("scenario")
			workload, err := buildWorkload(ctx, cmd, cfg, serviceFactory, scenarioName)
			if err != nil {
				utils.LogError(logger, err, "failed to build the load workload")
				return err
			}

			if cfg.Load.ExporterAddr != "" {
				addr, err := loadSvc.NewExporter(logger, lt, cfg.Load.ExporterAddr).Start(ctx)
				if err != nil {
					utils.LogError(logger, err, "failed to start the metrics exporter")
					return err
				}
				logger.Info("serving load metrics", zap.String("metrics", "http://"+addr+"/metrics"), zap.String("report", "http://"+addr+"/report"))
			}

			events := lt.Subscribe(64)
			go func() {
				defer utils.Recover(logger)
				for ev := range events {
					switch ev.Kind {
					case loadSvc.EventPhaseChanged:
						logger.Info("load test phase changed", zap.String("from", string(ev.From)), zap.String("to", string(ev.To)))
					case loadSvc.EventSystemStress:
						logger.Warn("system under stress", zap.Float64("memoryPercent", ev.MemoryPercent), zap.Float64("loadAverage", ev.LoadAverage))
					}
				}
			}()

			res, err := lt.Run(ctx, workload)
			if err != nil {
				utils.LogError(logger, err, "failed to run the load test")
				return err
			}
			if err := printLoadSummary(cmd.OutOrStdout(), res); err != nil {
				utils.LogError(logger, err, "failed to print the load summary")
			}
			if out, _ := cmd.Flags().GetString("out"); out != "" {
				raw, err := json.MarshalIndent(res, "", "  ")
				if err != nil {
					return err
				}
				if err := writeOutput(cmd.OutOrStdout(), out, raw); err != nil {
					utils.LogError(logger, err, "failed to write the load report")
					return err
				}
			}
			if !res.ThresholdsPassed() {
				return models.AppError{AppErrorType: models.ErrThresholdFail}
			}
			return nil
		},
	}

	if err := cmdConfigurator.AddFlags(cmd); err != nil {
		utils.LogError(logger, err, "failed to add load flags")
		return nil
	}
	return cmd
}

// buildWorkload picks, in order, a scenario, a single test case, a suite or
// every test case of the test file.
func buildWorkload(ctx context.Context, cmd *cobra.Command, cfg *config.Config, serviceFactory ServiceFactory, scenarioName string) (loadSvc.Workload, error) {
	tf, err := apitest.LoadTestFile(cfg.APITest.TestFile)
	if err != nil {
		return nil, err
	}
	baseURL := cfg.APITest.BaseURL
	if tf.BaseURL != "" && !cmd.Flags().Changed("baseUrl") {
		baseURL = tf.BaseURL
	}

	if scenarioName != "" {
		runner, err := scenarioRunner(ctx, serviceFactory)
		if err != nil {
			return nil, err
		}
		opts, err := findScenario(tf, scenarioName)
		if err != nil {
			return nil, err
		}
		return runner.Workload(opts, scenario.RunOptions{Environment: cfg.Environment, Build: cfg.Build, BaseURL: baseURL}), nil
	}

	tester, err := apiTester(ctx, serviceFactory)
	if err != nil {
		return nil, err
	}
	if err := tester.RegisterFile(tf); err != nil {
		return nil, err
	}
	if cfg.Load.TestCase != "" {
		tc, ok := tester.GetTestCase(cfg.Load.TestCase)
		if !ok {
			ids := make([]string, 0)
			for _, c := range tester.ListTestCases() {
				ids = append(ids, c.ID)
			}
			return nil, &models.NotFoundError{Kind: "test case", IDs: []string{cfg.Load.TestCase}, Suggestion: utils.Suggest(cfg.Load.TestCase, ids, 3)}
		}
		return loadSvc.TestCaseWorkload(tester, tc, baseURL), nil
	}

	cases := tester.ListTestCases()
	if cfg.APITest.Suite != "" {
		cases = nil
		var members []string
		for _, s := range tester.ListSuites() {
			if s.Name == cfg.APITest.Suite {
				members = s.TestCaseIDs
			}
		}
		if members == nil {
			return nil, &models.NotFoundError{Kind: "suite", IDs: []string{cfg.APITest.Suite}}
		}
		for _, id := range members {
			tc, ok := tester.GetTestCase(id)
			if !ok {
				return nil, &models.NotFoundError{Kind: "test case", IDs: []string{id}}
			}
			cases = append(cases, tc)
		}
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("no test cases to load test in %s", cfg.APITest.TestFile)
	}
	return loadSvc.SuiteWorkload(tester, cases, baseURL), nil
}
