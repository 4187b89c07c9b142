package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"go.keploy.io/testengine/config"
	"go.keploy.io/testengine/pkg/models"
	"go.keploy.io/testengine/pkg/service/apitest"
	"go.keploy.io/testengine/utils"
	"go.uber.org/zap"
)

func init() {
	Register("apitest", APITest)
}

// fileRegistrar is the API testing service plus test file loading.
type fileRegistrar interface {
	apitest.Service
	RegisterFile(tf *models.TestFile) error
}

func APITest(ctx context.Context, logger *zap.Logger, cfg *config.Config, serviceFactory ServiceFactory, cmdConfigurator CmdConfigurator) *cobra.Command {
	var cmd = &cobra.Command{
		Use:   "apitest",
		Short: "run API test cases and suites against a running service",
	}

	var runCmd = &cobra.Command{
		Use:     "run",
		Short:   "run a suite, a list of test cases, or every test case of a test file",
		Example: `testengine apitest run -f testengine/apitests.yaml --suite smoke --parallel`,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmdConfigurator.Validate(ctx, cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := apiTester(ctx, serviceFactory)
			if err != nil {
				utils.LogError(logger, err, "failed to get service")
				return err
			}
			tf, err := apitest.LoadTestFile(cfg.APITest.TestFile)
			if err != nil {
				utils.LogError(logger, err, "failed to load the test file", zap.String("file", cfg.APITest.TestFile))
				return err
			}
			if err := svc.RegisterFile(tf); err != nil {
				utils.LogError(logger, err, "failed to register the test file")
				return err
			}

			opts := apitest.SuiteOptions{
				Parallel:       cfg.APITest.Parallel,
				MaxConcurrency: cfg.APITest.MaxConcurrency,
				BaseURL:        cfg.APITest.BaseURL,
			}
			if tf.BaseURL != "" && !cmd.Flags().Changed("baseUrl") {
				opts.BaseURL = tf.BaseURL
			}

			var res *models.SuiteResult
			switch {
			case cfg.APITest.Suite != "":
				res, err = svc.ExecuteTestSuite(ctx, cfg.APITest.Suite, opts)
			case len(cfg.APITest.TestCases) > 0:
				res, err = svc.ExecuteMultipleTestCases(ctx, cfg.APITest.TestCases, opts)
			default:
				ids := make([]string, 0)
				for _, tc := range svc.ListTestCases() {
					ids = append(ids, tc.ID)
				}
				res, err = svc.ExecuteMultipleTestCases(ctx, ids, opts)
			}
			if err != nil {
				utils.LogError(logger, err, "failed to run the API tests")
				return err
			}

			if cfg.APITest.ReportPath == "" && strings.EqualFold(cfg.APITest.ReportFormat, string(apitest.ReportText)) {
				printSuite(cmd.OutOrStdout(), res)
			} else {
				report, err := apitest.GenerateReport(res.Results, apitest.ReportFormat(cfg.APITest.ReportFormat))
				if err != nil {
					utils.LogError(logger, err, "failed to generate the report")
					return err
				}
				if err := writeOutput(cmd.OutOrStdout(), cfg.APITest.ReportPath, report); err != nil {
					utils.LogError(logger, err, "failed to write the report")
					return err
				}
				if cfg.APITest.ReportPath != "" {
					printSuite(cmd.OutOrStdout(), res)
					logger.Info("report written", zap.String("path", cfg.APITest.ReportPath))
				}
			}
			if res.Passed != res.Total {
				return models.AppError{AppErrorType: models.ErrTestFailure}
			}
			return nil
		},
	}

	var curlCmd = &cobra.Command{
		Use:     "curl <command>",
		Short:   "execute a curl command and report the response",
		Example: `testengine apitest curl "curl -sS -H 'Accept: application/json' http://localhost:8080/users"`,
		Args:    cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmdConfigurator.Validate(ctx, cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := apiTester(ctx, serviceFactory)
			if err != nil {
				utils.LogError(logger, err, "failed to get service")
				return err
			}
			res := svc.ExecuteCurlCommand(ctx, args[0])
			if strings.EqualFold(cfg.APITest.ReportFormat, string(apitest.ReportText)) && cfg.APITest.ReportPath == "" {
				printResult(cmd.OutOrStdout(), res)
			} else {
				report, err := apitest.GenerateReport([]*models.APIResult{res}, apitest.ReportFormat(cfg.APITest.ReportFormat))
				if err != nil {
					utils.LogError(logger, err, "failed to generate the report")
					return err
				}
				if err := writeOutput(cmd.OutOrStdout(), cfg.APITest.ReportPath, report); err != nil {
					utils.LogError(logger, err, "failed to write the report")
					return err
				}
			}
			if !res.Passed() {
				return models.AppError{AppErrorType: models.ErrTestFailure}
			}
			return nil
		},
	}

	cmd.AddCommand(runCmd, curlCmd)
	for _, c := range []*cobra.Command{runCmd, curlCmd} {
		if err := cmdConfigurator.AddFlags(c); err != nil {
			utils.LogError(logger, err, "failed to add apitest flags")
			return nil
		}
	}
	return cmd
}

func apiTester(ctx context.Context, serviceFactory ServiceFactory) (fileRegistrar, error) {
	svc, err := serviceFactory.GetService(ctx, "apitest")
	if err != nil {
		return nil, err
	}
	tester, ok := svc.(fileRegistrar)
	if !ok {
		return nil, errors.New("service doesn't satisfy the api testing service interface")
	}
	return tester, nil
}
