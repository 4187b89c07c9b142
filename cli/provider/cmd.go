// Package provider wires cobra flags to the config and builds the services
// the commands run against.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.keploy.io/testengine/config"
	"go.keploy.io/testengine/utils"
	"go.keploy.io/testengine/utils/log"
	"go.uber.org/zap"
)

// EnvPrefix namespaces config overrides, e.g. TESTENGINE_APITEST_TIMEOUT=5s.
const EnvPrefix = "TESTENGINE"

func LogExample(example string) string {
	return fmt.Sprintf("Example usage: %s", example)
}

type CmdConfigurator struct {
	logger *zap.Logger
	cfg    *config.Config
	v      *viper.Viper
	// keys maps a command path to its flag -> config key bindings.
	keys map[string]map[string]string
}

func NewCmdConfigurator(logger *zap.Logger, cfg *config.Config) *CmdConfigurator {
	return &CmdConfigurator{
		logger: logger,
		cfg:    cfg,
		v:      viper.New(),
		keys:   make(map[string]map[string]string),
	}
}

// commandPath is the command path without the binary name, e.g. "apitest run".
func commandPath(cmd *cobra.Command) string {
	var parts []string
	for c := cmd; c != nil; c = c.Parent() {
		if c.Parent() == nil && c.Name() == "testengine" {
			break
		}
		parts = append([]string{c.Name()}, parts...)
	}
	return strings.Join(parts, " ")
}

func (c *CmdConfigurator) bind(cmd *cobra.Command, flag, key string) {
	path := commandPath(cmd)
	if c.keys[path] == nil {
		c.keys[path] = make(map[string]string)
	}
	c.keys[path][flag] = key
}

func (c *CmdConfigurator) AddFlags(cmd *cobra.Command) error {
	cfg := c.cfg
	flags := cmd.Flags()
	switch commandPath(cmd) {
	case "":
		pf := cmd.PersistentFlags()
		pf.Bool("debug", cfg.Debug, "Run in debug mode")
		pf.StringSlice("debugModules", cfg.DebugModules, "Only emit debug logs for these modules")
		pf.Bool("disableANSI", cfg.DisableANSI, "Disable coloured output")
		pf.String("configPath", cfg.ConfigPath, "Path to the testengine config file (defaults to ./testengine.yaml when present)")
		pf.StringP("path", "p", cfg.Path, "Path to the local directory where testengine stores its data")
		pf.String("environment", cfg.Environment, "Environment recorded on scenario results")
		pf.String("build", cfg.Build, "Build identifier recorded on scenario results")
		for _, name := range []string{"debug", "debugModules", "disableANSI", "configPath", "path", "environment", "build"} {
			c.bind(cmd, name, name)
		}
		err := pf.MarkHidden("debugModules")
		if err != nil {
			errMsg := "failed to mark debugModules as hidden flag"
			utils.LogError(c.logger, err, errMsg)
			return errors.New(errMsg)
		}
		return nil
	case "apitest run", "apitest curl":
		flags.StringP("file", "f", cfg.APITest.TestFile, "Path to the YAML test file")
		flags.String("baseUrl", cfg.APITest.BaseURL, "Base URL prepended to relative endpoints")
		flags.Duration("timeout", cfg.APITest.Timeout, "Default per-request timeout")
		flags.Bool("insecure", cfg.APITest.Insecure, "Skip TLS certificate verification")
		flags.StringP("report", "r", cfg.APITest.ReportFormat, "Report format: text, json or html")
		flags.StringP("out", "o", cfg.APITest.ReportPath, "Write the report to this file instead of stdout")
		c.bind(cmd, "file", "apiTest.testFile")
		c.bind(cmd, "baseUrl", "apiTest.baseUrl")
		c.bind(cmd, "timeout", "apiTest.timeout")
		c.bind(cmd, "insecure", "apiTest.insecure")
		c.bind(cmd, "report", "apiTest.reportFormat")
		c.bind(cmd, "out", "apiTest.reportPath")
		if cmd.Name() == "run" {
			flags.StringP("suite", "s", cfg.APITest.Suite, "Suite to run")
			flags.StringSliceP("testCases", "t", cfg.APITest.TestCases, "Test case ids to run e.g. --testCases \"get-user, list-users\"")
			flags.Bool("parallel", cfg.APITest.Parallel, "Run test cases concurrently")
			flags.Int("maxConcurrency", cfg.APITest.MaxConcurrency, "Upper bound on concurrent test cases when --parallel is set")
			c.bind(cmd, "suite", "apiTest.suite")
			c.bind(cmd, "testCases", "apiTest.testCases")
			c.bind(cmd, "parallel", "apiTest.parallel")
			c.bind(cmd, "maxConcurrency", "apiTest.maxConcurrency")
		}
	case "mock":
		pf := cmd.PersistentFlags()
		pf.String("store", cfg.MockData.Store, "Mock data store: memory or yaml")
		pf.Int64("cacheMaxSize", cfg.MockData.CacheMaxSize, "Cache size bound in bytes")
		pf.Duration("cacheMaxAge", cfg.MockData.CacheMaxAge, "Cache entry age bound")
		c.bind(cmd, "store", "mockData.store")
		c.bind(cmd, "cacheMaxSize", "mockData.cacheMaxSize")
		c.bind(cmd, "cacheMaxAge", "mockData.cacheMaxAge")
	case "mock generate":
		flags.String("template", "", "Template id to generate from")
		flags.String("type", "", "Data set type, used to pick a template when --template is empty")
		flags.String("category", "", "Template category, used with --type")
		flags.String("name", "", "Name of the generated data set")
		flags.Int64("seed", cfg.MockData.Seed, "Seed for deterministic generation")
		flags.String("locale", cfg.MockData.Locale, "Locale of the generated values")
		flags.Int("count", 1, "Number of items to generate")
		flags.Duration("ttl", cfg.MockData.DefaultTTL, "Time to live of the generated data set")
		flags.StringSlice("tags", nil, "Extra tags")
		flags.StringToString("field", nil, "Custom field overrides as dot.path=value; JSON values are decoded")
		c.bind(cmd, "seed", "mockData.seed")
		c.bind(cmd, "locale", "mockData.locale")
	case "mock export":
		flags.String("format", "json", "Export format: json, csv, yaml or xml")
		flags.Bool("metadata", false, "Wrap JSON output in a metadata envelope")
		flags.StringP("out", "o", "", "Write to this file instead of stdout")
	case "mock import":
		flags.String("format", "", "Import format; inferred from the file extension when empty")
		flags.String("name", "", "Name of the imported data set")
		flags.String("type", "other", "Data set type")
		flags.String("category", "", "Category of the imported data set")
		flags.String("description", "", "Description of the imported data set")
		flags.StringSlice("tags", nil, "Tags of the imported data set")
		flags.Duration("ttl", cfg.MockData.DefaultTTL, "Time to live of the imported data set")
	case "mock list":
		flags.String("type", "", "Only list data sets of this type")
		flags.String("category", "", "Only list data sets in this category")
		flags.StringSlice("tags", nil, "Only list data sets carrying all of these tags")
		flags.Bool("expired", false, "Only list expired (true) or live (false) data sets")
	case "mock purge":
		return nil
	case "load":
		flags.StringP("file", "f", cfg.APITest.TestFile, "Path to the YAML test file")
		flags.String("baseUrl", cfg.APITest.BaseURL, "Base URL prepended to relative endpoints")
		flags.String("testCase", cfg.Load.TestCase, "Test case id to load test")
		flags.StringP("suite", "s", cfg.APITest.Suite, "Suite to load test when --testCase is empty")
		flags.String("scenario", "", "Scenario name to load test instead of test cases")
		flags.IntP("users", "u", cfg.Load.Users, "Number of virtual users")
		flags.Duration("rampUp", cfg.Load.RampUp, "Time over which users are started")
		flags.Duration("sustain", cfg.Load.Sustain, "Time all users run together")
		flags.Duration("rampDown", cfg.Load.RampDown, "Time over which users are stopped")
		flags.Duration("thinkTime", cfg.Load.ThinkTime, "Mean pause between iterations of a user")
		flags.Duration("callTimeout", cfg.Load.CallTimeout, "Timeout of one workload invocation")
		flags.Int("maxRetries", cfg.Load.MaxRetries, "Retries of a failed invocation")
		flags.Duration("healthInterval", cfg.Load.HealthInterval, "Interval between system health samples")
		flags.Float64("memoryThreshold", cfg.Load.MemoryThreshold, "Memory percentage above which a stress event is raised")
		flags.Float64("loadThreshold", cfg.Load.LoadThreshold, "Load average above which a stress event is raised; 0 disables")
		flags.Int("errorBudget", cfg.Load.ErrorBudget, "Failures after which a user stops; 0 disables")
		flags.Int("rps", cfg.Load.RPS, "Global request rate cap; 0 disables")
		flags.String("exporterAddr", cfg.Load.ExporterAddr, "Serve /metrics and /report on this address while the test runs")
		flags.StringP("out", "o", "", "Write the JSON results to this file")
		c.bind(cmd, "file", "apiTest.testFile")
		c.bind(cmd, "baseUrl", "apiTest.baseUrl")
		c.bind(cmd, "suite", "apiTest.suite")
		for _, name := range []string{"testCase", "users", "rampUp", "sustain", "rampDown", "thinkTime", "callTimeout", "maxRetries",
			"healthInterval", "memoryThreshold", "loadThreshold", "errorBudget", "rps", "exporterAddr"} {
			c.bind(cmd, name, "load."+name)
		}
	case "scenario run":
		flags.StringP("file", "f", cfg.Scenario.File, "Path to the YAML file holding the scenarios")
		flags.String("baseUrl", cfg.Scenario.BaseURL, "Base URL of the service under test")
		flags.Duration("stepTimeout", cfg.Scenario.StepTimeout, "Timeout of steps that declare none")
		flags.StringSliceP("name", "n", nil, "Scenario names or ids to run")
		flags.StringSlice("tag", nil, "Only run scenarios carrying one of these tags")
		flags.String("runId", "", "Run id recorded on the results")
		flags.StringP("out", "o", "", "Write the JSON flow results to this file")
		c.bind(cmd, "file", "scenario.file")
		c.bind(cmd, "baseUrl", "scenario.baseUrl")
		c.bind(cmd, "stepTimeout", "scenario.stepTimeout")
	default:
		return fmt.Errorf("unknown command %q", commandPath(cmd))
	}
	return nil
}

// Validate merges flags, environment and the config file into the config,
// in that order of precedence, and checks the result.
func (c *CmdConfigurator) Validate(_ context.Context, cmd *cobra.Command) error {
	if err := c.bindFlags(cmd); err != nil {
		errMsg := "failed to bind flags to config"
		utils.LogError(c.logger, err, errMsg)
		return errors.New(errMsg)
	}

	c.v.SetEnvPrefix(EnvPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.v.AutomaticEnv()

	configPath := c.v.GetString("configPath")
	if configPath != "" {
		c.v.SetConfigFile(configPath)
	} else {
		c.v.SetConfigName("testengine")
		c.v.SetConfigType("yaml")
		c.v.AddConfigPath(".")
	}
	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			errMsg := "failed to read config file"
			utils.LogError(c.logger, err, errMsg, zap.String("path", configPath))
			return fmt.Errorf("%s: %w", errMsg, err)
		}
		c.logger.Debug("config file not found; proceeding with flags only")
	}

	if err := c.v.Unmarshal(c.cfg); err != nil {
		errMsg := "failed to unmarshal the config"
		utils.LogError(c.logger, err, errMsg)
		return errors.New(errMsg)
	}
	log.DisableANSI(c.cfg.DisableANSI)
	color.NoColor = color.NoColor || c.cfg.DisableANSI
	if c.cfg.Debug || len(c.cfg.DebugModules) > 0 {
		logger, err := log.ChangeLogLevel(zap.DebugLevel)
		if err != nil {
			errMsg := "failed to change log level"
			utils.LogError(c.logger, err, errMsg)
			return errors.New(errMsg)
		}
		*c.logger = *logger
	}
	if err := c.cfg.Validate(); err != nil {
		utils.LogError(c.logger, err, "invalid configuration")
		return err
	}
	c.logger.Debug("config has been initialised", zap.String("for cmd", commandPath(cmd)), zap.Any("config", c.cfg))
	return nil
}

// bindFlags binds the flags of cmd and of every ancestor to their config keys.
func (c *CmdConfigurator) bindFlags(cmd *cobra.Command) error {
	for cur := cmd; cur != nil; cur = cur.Parent() {
		for name, key := range c.keys[commandPath(cur)] {
			var f *pflag.Flag
			if f = cmd.Flags().Lookup(name); f == nil {
				f = cmd.Flag(name)
			}
			if f == nil {
				continue
			}
			if err := c.v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}
