package models

import (
	"fmt"
	"slices"
	"time"
)

type AssertionKind string

const (
	AssertStatus AssertionKind = "status"
	AssertHeader AssertionKind = "header"
	AssertBody   AssertionKind = "body"
)

var SupportedAssertionKinds = []AssertionKind{AssertStatus, AssertHeader, AssertBody}

type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpGreater     Operator = "gt"
	OpGreaterEq   Operator = "gte"
	OpLess        Operator = "lt"
	OpLessEq      Operator = "lte"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "not_exists"
	OpMatches     Operator = "matches"
)

var SupportedOperators = []Operator{
	OpEquals, OpNotEquals, OpContains, OpNotContains, OpGreater, OpGreaterEq,
	OpLess, OpLessEq, OpExists, OpNotExists, OpMatches,
}

// ResponseAssertion is one expected-vs-actual comparison against a response.
// Field is a dot path for body assertions and a header name for header ones.
type ResponseAssertion struct {
	Kind        AssertionKind `json:"kind" yaml:"kind"`
	Field       string        `json:"field,omitempty" yaml:"field,omitempty"`
	Operator    Operator      `json:"operator" yaml:"operator"`
	Expected    any           `json:"expected,omitempty" yaml:"expected,omitempty"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Tolerance   float64       `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
}

// Validate checks kind and operator. An empty operator means equals.
func (a ResponseAssertion) Validate() error {
	if !slices.Contains(SupportedAssertionKinds, a.Kind) {
		return &ValidationError{Entity: "assertion", Rule: "unsupported-kind", Msg: fmt.Sprintf("kind %q must be one of status, header or body", a.Kind)}
	}
	if a.Operator != "" && !slices.Contains(SupportedOperators, a.Operator) {
		return &ValidationError{Entity: "assertion", Rule: "unsupported-operator", Msg: fmt.Sprintf("operator %q is not supported", a.Operator)}
	}
	if a.Kind == AssertHeader && a.Field == "" {
		return &ValidationError{Entity: "assertion", Rule: "missing-field", Msg: "header assertions need a header name"}
	}
	if a.Tolerance < 0 {
		return &ValidationError{Entity: "assertion", Rule: "negative-tolerance"}
	}
	return nil
}

type AuthType string

const (
	AuthNone   AuthType = ""
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
	AuthAPIKey AuthType = "apikey"
)

type Auth struct {
	Type     AuthType `json:"type,omitempty" yaml:"type,omitempty"`
	Token    string   `json:"token,omitempty" yaml:"token,omitempty"`
	Username string   `json:"username,omitempty" yaml:"username,omitempty"`
	Password string   `json:"password,omitempty" yaml:"password,omitempty"`
	// Header carries the api key header name, X-API-Key when empty.
	Header   string   `json:"header,omitempty" yaml:"header,omitempty"`
}

type APITestCase struct {
	ID             string              `json:"id" yaml:"id"`
	Name           string              `json:"name" yaml:"name"`
	Endpoint       string              `json:"endpoint" yaml:"endpoint"`
	Method         string              `json:"method" yaml:"method"`
	Headers        map[string]string   `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body           any                 `json:"body,omitempty" yaml:"body,omitempty"`
	ExpectedStatus int                 `json:"expectedStatus,omitempty" yaml:"expectedStatus,omitempty"`
	ExpectedShape  *Schema             `json:"expectedShape,omitempty" yaml:"expectedShape,omitempty"`
	Curl           string              `json:"curl" yaml:"curl,omitempty"`
	Timeout        time.Duration       `json:"timeout" yaml:"timeout,omitempty"`
	Auth           Auth                `json:"auth,omitempty" yaml:"auth,omitempty"`
	Assertions     []ResponseAssertion `json:"assertions" yaml:"assertions"`
	Tags           []string            `json:"tags,omitempty" yaml:"tags,omitempty"`
}

type ResultStatus string

const (
	ResultPassed ResultStatus = "passed"
	ResultFailed ResultStatus = "failed"
	ResultError  ResultStatus = "error"
)

type AssertionResult struct {
	Assertion ResponseAssertion `json:"assertion"`
	Passed    bool              `json:"passed"`
	Actual    any               `json:"actual"`
	Message   string            `json:"message,omitempty"`
}

// APIResult is produced once per executed test case and never modified after.
type APIResult struct {
	TestCaseID   string            `json:"testCaseId,omitempty"`
	Name         string            `json:"name,omitempty"`
	Status       ResultStatus      `json:"status"`
	StatusCode   int               `json:"statusCode"`
	Body         any               `json:"body,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	ResponseTime time.Duration     `json:"responseTime"`
	Errors       []string          `json:"errors,omitempty"`
	Assertions   []AssertionResult `json:"assertions,omitempty"`
	Curl         string            `json:"curl"`
	Timestamp    time.Time         `json:"timestamp"`
	BytesSent    int64             `json:"bytesSent"`
	BytesRecv    int64             `json:"bytesReceived"`
}

func (r *APIResult) Passed() bool {
	return r != nil && r.Status == ResultPassed
}

type SuiteResult struct {
	Name        string        `json:"name"`
	Total       int           `json:"totalTests"`
	Passed      int           `json:"passed"`
	Failed      int           `json:"failed"`
	Errored     int           `json:"errored"`
	Duration    time.Duration `json:"duration"`
	SuccessRate float64       `json:"successRate"`
	Results     []*APIResult  `json:"results"`
}

// TestSuite groups test cases by id.
type TestSuite struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	TestCaseIDs []string `json:"testCases" yaml:"testCases"`
}

// TestFile is the on-disk form loaded by the CLI.
type TestFile struct {
	Version   string            `yaml:"version"`
	Kind      string            `yaml:"kind"`
	BaseURL   string            `yaml:"baseUrl,omitempty"`
	TestCases []APITestCase     `yaml:"testCases"`
	Suites    []TestSuite       `yaml:"suites,omitempty"`
	Scenarios []ScenarioOptions `yaml:"scenarios,omitempty"`
}
