package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// defaultConfig holds every default of the engine. It is not a constant so that
// embedders can replace it through SetDefaultConfig.
var defaultConfig = `
path: ""
configPath: ""
debug: false
debugModules: []
disableANSI: false
logFile: ""
environment: "local"
build: ""
mockData:
  store: "memory"
  cacheMaxSize: 10485760
  cacheMaxAge: 5m
  defaultTTL: 0s
  seed: 0
  locale: "en"
apiTest:
  baseUrl: "http://localhost:8080"
  testFile: "testengine/apitests.yaml"
  suite: ""
  testCases: []
  timeout: 30s
  parallel: false
  maxConcurrency: 4
  reportFormat: "text"
  reportPath: ""
  insecure: false
load:
  users: 10
  rampUp: 10s
  sustain: 30s
  rampDown: 5s
  thinkTime: 1s
  callTimeout: 10s
  maxRetries: 0
  healthInterval: 5s
  memoryThreshold: 85
  loadThreshold: 0
  errorBudget: 0
  rps: 0
  thresholds: []
  exporterAddr: ""
  testCase: ""
scenario:
  file: ""
  baseUrl: ""
  stepTimeout: 30s
`

func GetDefaultConfig() string {
	return defaultConfig
}

func SetDefaultConfig(cfgStr string) {
	defaultConfig = cfgStr
}

// New returns a Config populated with the defaults.
func New() *Config {
	config := &Config{}
	if err := yaml.Unmarshal([]byte(defaultConfig), config); err != nil {
		panic(fmt.Errorf("failed to unmarshal the default config: %v", err))
	}
	return config
}
