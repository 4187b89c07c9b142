package provider

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"go.keploy.io/testengine/config"
	"go.keploy.io/testengine/pkg/models"
	"go.keploy.io/testengine/pkg/platform/memdb"
	"go.keploy.io/testengine/pkg/platform/yaml/datasetdb"
	"go.keploy.io/testengine/pkg/service/apitest"
	"go.keploy.io/testengine/pkg/service/load"
	"go.keploy.io/testengine/pkg/service/mockdata"
	"go.keploy.io/testengine/pkg/service/scenario"
	"go.keploy.io/testengine/utils/log"
	"go.uber.org/zap"
)

// DataDir is where the yaml store keeps data sets, relative to Config.Path.
const DataDir = "testengine/mockdata"

// ServiceProvider builds services from the config as it stands after flag
// validation. The mock data and API testing services are shared between
// commands of one process.
type ServiceProvider struct {
	logger *zap.Logger
	cfg    *config.Config

	mu      sync.Mutex
	loggers *log.ModuleLoggerFactory
	mock    *mockdata.MockData
	api     *apitest.APITester
}

func NewServiceProvider(logger *zap.Logger, cfg *config.Config) *ServiceProvider {
	return &ServiceProvider{
		logger: logger,
		cfg:    cfg,
	}
}

func (n *ServiceProvider) moduleLogger(module string) *zap.Logger {
	if n.loggers == nil {
		n.loggers = log.NewModuleLoggerFactory(n.logger, n.cfg.Debug, n.cfg.DebugModules)
	}
	return n.loggers.GetLogger(module)
}

func (n *ServiceProvider) mockData() (*mockdata.MockData, error) {
	if n.mock != nil {
		return n.mock, nil
	}
	logger := n.moduleLogger(log.ModuleMockData)
	var store mockdata.Store
	switch n.cfg.MockData.Store {
	case "yaml":
		store = datasetdb.New(logger, filepath.Join(n.cfg.Path, DataDir))
	case "memory", "":
		store = memdb.New()
	default:
		return nil, &models.ValidationError{Entity: "config", Rule: "mock-store", Msg: fmt.Sprintf("unknown store %q", n.cfg.MockData.Store)}
	}
	n.mock = mockdata.New(logger, store, mockdata.DefaultTemplates(), mockdata.Options{
		CacheMaxSize: n.cfg.MockData.CacheMaxSize,
		CacheMaxAge:  n.cfg.MockData.CacheMaxAge,
		DefaultTTL:   n.cfg.MockData.DefaultTTL,
		Locale:       n.cfg.MockData.Locale,
	})
	return n.mock, nil
}

func (n *ServiceProvider) apiTester() (*apitest.APITester, error) {
	if n.api != nil {
		return n.api, nil
	}
	mock, err := n.mockData()
	if err != nil {
		return nil, err
	}
	n.api = apitest.New(n.moduleLogger(log.ModuleAPITest), mock, apitest.Options{
		BaseURL:  n.cfg.APITest.BaseURL,
		Timeout:  n.cfg.APITest.Timeout,
		Insecure: n.cfg.APITest.Insecure,
	})
	return n.api, nil
}

// LoadConfig converts the load section of the config.
func LoadConfig(cfg config.Load) models.LoadTestConfig {
	thresholds := make([]models.Threshold, 0, len(cfg.Thresholds))
	for _, t := range cfg.Thresholds {
		thresholds = append(thresholds, models.Threshold{Metric: t.Metric, Condition: t.Condition, Severity: t.Severity})
	}
	return models.LoadTestConfig{
		Users:           cfg.Users,
		RampUp:          cfg.RampUp,
		Sustain:         cfg.Sustain,
		RampDown:        cfg.RampDown,
		ThinkTime:       cfg.ThinkTime,
		CallTimeout:     cfg.CallTimeout,
		MaxRetries:      cfg.MaxRetries,
		HealthInterval:  cfg.HealthInterval,
		MemoryThreshold: cfg.MemoryThreshold,
		LoadThreshold:   cfg.LoadThreshold,
		ErrorBudget:     cfg.ErrorBudget,
		RPS:             cfg.RPS,
		Thresholds:      thresholds,
	}
}

// GetService returns *apitest.APITester for "apitest", *mockdata.MockData for
// "mock", *scenario.Runner for "scenario" and a fresh *load.LoadTester for
// "load".
func (n *ServiceProvider) GetService(_ context.Context, cmd string) (interface{}, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch cmd {
	case "apitest":
		return n.apiTester()
	case "mock":
		return n.mockData()
	case "scenario":
		api, err := n.apiTester()
		if err != nil {
			return nil, err
		}
		return scenario.NewRunner(n.moduleLogger(log.ModuleScenario), scenario.DefaultActions(api, n.mock), nil), nil
	case "load":
		return load.New(n.moduleLogger(log.ModuleLoad), LoadConfig(n.cfg.Load), load.Options{})
	default:
		return nil, fmt.Errorf("invalid command %q", cmd)
	}
}
