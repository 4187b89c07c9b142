// Package config provides configuration structures for the application.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Path         string   `json:"path" yaml:"path" mapstructure:"path"`
	ConfigPath   string   `json:"configPath" yaml:"configPath" mapstructure:"configPath"`
	Debug        bool     `json:"debug" yaml:"debug" mapstructure:"debug"`
	DebugModules []string `json:"debugModules" yaml:"debugModules" mapstructure:"debugModules"`
	DisableANSI  bool     `json:"disableANSI" yaml:"disableANSI" mapstructure:"disableANSI"`
	LogFile      string   `json:"logFile" yaml:"logFile" mapstructure:"logFile"`
	Environment  string   `json:"environment" yaml:"environment" mapstructure:"environment"`
	Build        string   `json:"build" yaml:"build" mapstructure:"build"`
	MockData     MockData `json:"mockData" yaml:"mockData" mapstructure:"mockData"`
	APITest      APITest  `json:"apiTest" yaml:"apiTest" mapstructure:"apiTest"`
	Load         Load     `json:"load" yaml:"load" mapstructure:"load"`
	Scenario     Scenario `json:"scenario" yaml:"scenario" mapstructure:"scenario"`
}

type MockData struct {
	// Store is "memory" or "yaml".
	Store        string        `json:"store" yaml:"store" mapstructure:"store"`
	CacheMaxSize int64         `json:"cacheMaxSize" yaml:"cacheMaxSize" mapstructure:"cacheMaxSize"`
	CacheMaxAge  time.Duration `json:"cacheMaxAge" yaml:"cacheMaxAge" mapstructure:"cacheMaxAge"`
	DefaultTTL   time.Duration `json:"defaultTTL" yaml:"defaultTTL" mapstructure:"defaultTTL"`
	Seed         int64         `json:"seed" yaml:"seed" mapstructure:"seed"`
	Locale       string        `json:"locale" yaml:"locale" mapstructure:"locale"`
}

type APITest struct {
	BaseURL        string        `json:"baseUrl" yaml:"baseUrl" mapstructure:"baseUrl"`
	TestFile       string        `json:"testFile" yaml:"testFile" mapstructure:"testFile"`
	Suite          string        `json:"suite" yaml:"suite" mapstructure:"suite"`
	TestCases      []string      `json:"testCases" yaml:"testCases" mapstructure:"testCases"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	Parallel       bool          `json:"parallel" yaml:"parallel" mapstructure:"parallel"`
	MaxConcurrency int           `json:"maxConcurrency" yaml:"maxConcurrency" mapstructure:"maxConcurrency"`
	ReportFormat   string        `json:"reportFormat" yaml:"reportFormat" mapstructure:"reportFormat"`
	ReportPath     string        `json:"reportPath" yaml:"reportPath" mapstructure:"reportPath"`
	Insecure       bool          `json:"insecure" yaml:"insecure" mapstructure:"insecure"`
}

type Load struct {
	Users           int           `json:"users" yaml:"users" mapstructure:"users"`
	RampUp          time.Duration `json:"rampUp" yaml:"rampUp" mapstructure:"rampUp"`
	Sustain         time.Duration `json:"sustain" yaml:"sustain" mapstructure:"sustain"`
	RampDown        time.Duration `json:"rampDown" yaml:"rampDown" mapstructure:"rampDown"`
	ThinkTime       time.Duration `json:"thinkTime" yaml:"thinkTime" mapstructure:"thinkTime"`
	CallTimeout     time.Duration `json:"callTimeout" yaml:"callTimeout" mapstructure:"callTimeout"`
	MaxRetries      int           `json:"maxRetries" yaml:"maxRetries" mapstructure:"maxRetries"`
	HealthInterval  time.Duration `json:"healthInterval" yaml:"healthInterval" mapstructure:"healthInterval"`
	MemoryThreshold float64       `json:"memoryThreshold" yaml:"memoryThreshold" mapstructure:"memoryThreshold"`
	LoadThreshold   float64       `json:"loadThreshold" yaml:"loadThreshold" mapstructure:"loadThreshold"`
	ErrorBudget     int           `json:"errorBudget" yaml:"errorBudget" mapstructure:"errorBudget"`
	RPS             int           `json:"rps" yaml:"rps" mapstructure:"rps"`
	Thresholds      []Threshold   `json:"thresholds" yaml:"thresholds" mapstructure:"thresholds"`
	ExporterAddr    string        `json:"exporterAddr" yaml:"exporterAddr" mapstructure:"exporterAddr"`
	TestCase        string        `json:"testCase" yaml:"testCase" mapstructure:"testCase"`
}

type Threshold struct {
	Metric    string `json:"metric" yaml:"metric" mapstructure:"metric"`
	Condition string `json:"condition" yaml:"condition" mapstructure:"condition"`
	Severity  string `json:"severity" yaml:"severity" mapstructure:"severity"`
}

type Scenario struct {
	File        string        `json:"file" yaml:"file" mapstructure:"file"`
	BaseURL     string        `json:"baseUrl" yaml:"baseUrl" mapstructure:"baseUrl"`
	StepTimeout time.Duration `json:"stepTimeout" yaml:"stepTimeout" mapstructure:"stepTimeout"`
}

// Validate checks the ranges that cannot be expressed through flag types.
func (c *Config) Validate() error {
	var errs []string
	switch c.MockData.Store {
	case "memory", "yaml":
	default:
		errs = append(errs, fmt.Sprintf("mockData.store must be one of \"memory\" or \"yaml\", got %q", c.MockData.Store))
	}
	if c.MockData.CacheMaxSize < 0 {
		errs = append(errs, "mockData.cacheMaxSize must not be negative")
	}
	if c.MockData.CacheMaxAge < 0 {
		errs = append(errs, "mockData.cacheMaxAge must not be negative")
	}
	if c.APITest.Timeout <= 0 {
		errs = append(errs, "apiTest.timeout must be positive")
	}
	if c.APITest.MaxConcurrency < 0 {
		errs = append(errs, "apiTest.maxConcurrency must not be negative")
	}
	if c.Load.Users < 0 {
		errs = append(errs, "load.users must not be negative")
	}
	if c.Load.RampUp < 0 || c.Load.Sustain < 0 || c.Load.RampDown < 0 || c.Load.ThinkTime < 0 {
		errs = append(errs, "load phase durations must not be negative")
	}
	if c.Load.MemoryThreshold < 0 || c.Load.MemoryThreshold > 100 {
		errs = append(errs, "load.memoryThreshold must be within [0, 100]")
	}
	if c.Load.ErrorBudget < 0 || c.Load.MaxRetries < 0 || c.Load.RPS < 0 {
		errs = append(errs, "load.errorBudget, load.maxRetries and load.rps must not be negative")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
