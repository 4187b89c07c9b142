// Package apitest registers, executes and reports HTTP API test cases.
package apitest

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"facette.io/natsort"
	"github.com/google/uuid"
	"go.keploy.io/testengine/pkg/models"
	"go.keploy.io/testengine/pkg/service/mockdata"
	"go.keploy.io/testengine/utils"
	"go.uber.org/zap"
)

const DefaultTimeout = 30 * time.Second

// mockRefKey marks a request body that names a mock data set.
const mockRefKey = "$mock"

var allowedMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodOptions,
}

type Options struct {
	BaseURL  string
	Timeout  time.Duration
	Insecure bool
	Clock    utils.Clock
	// Transport replaces the default transport, mostly for tests.
	Transport http.RoundTripper
}

type TestCaseOptions struct {
	ID             string
	Name           string
	Endpoint       string
	Method         string
	Headers        map[string]string
	Body           any
	ExpectedStatus int
	ExpectedShape  *models.Schema
	Timeout        time.Duration
	Auth           models.Auth
	Assertions     []models.ResponseAssertion
	Tags           []string
	// BaseURL is only used to render the curl text.
	BaseURL string
}

type SuiteOptions struct {
	Parallel       bool
	MaxConcurrency int
	BaseURL        string
}

type APITester struct {
	logger            *zap.Logger
	mock              MockDataReader
	clock             utils.Clock
	baseURL           string
	timeout           time.Duration
	transport         http.RoundTripper
	insecureTransport http.RoundTripper
	insecure          bool

	mu     sync.RWMutex
	cases  map[string]*models.APITestCase
	suites map[string]*models.TestSuite
}

func New(logger *zap.Logger, mock MockDataReader, opts Options) *APITester {
	if opts.Clock == nil {
		opts.Clock = utils.RealClock{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	transport := opts.Transport
	insecureTransport := opts.Transport
	if transport == nil {
		base := http.DefaultTransport.(*http.Transport)
		transport = base.Clone()
		it := base.Clone()
		//nolint:gosec
		it.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		insecureTransport = it
	}
	return &APITester{
		logger:            logger,
		mock:              mock,
		clock:             opts.Clock,
		baseURL:           opts.BaseURL,
		timeout:           opts.Timeout,
		transport:         transport,
		insecureTransport: insecureTransport,
		insecure:          opts.Insecure,
		cases:             make(map[string]*models.APITestCase),
		suites:            make(map[string]*models.TestSuite),
	}
}

// NewTestCase validates opts and derives the curl text. A set ExpectedStatus
// becomes a leading status assertion unless one is already declared.
func NewTestCase(opts TestCaseOptions) (*models.APITestCase, error) {
	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = http.MethodGet
	}
	if !slices.Contains(allowedMethods, method) {
		return nil, &models.ValidationError{Entity: "test case", Rule: "unsupported-method", Msg: method}
	}
	if strings.TrimSpace(opts.Endpoint) == "" {
		return nil, &models.ValidationError{Entity: "test case", Rule: "empty-endpoint", Msg: "endpoint is required"}
	}
	for i, a := range opts.Assertions {
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("assertion %d: %w", i, err)
		}
	}

	assertions := slices.Clone(opts.Assertions)
	if opts.ExpectedStatus > 0 && !slices.ContainsFunc(assertions, func(a models.ResponseAssertion) bool { return a.Kind == models.AssertStatus }) {
		assertions = append([]models.ResponseAssertion{{
			Kind:        models.AssertStatus,
			Operator:    models.OpEquals,
			Expected:    opts.ExpectedStatus,
			Description: fmt.Sprintf("status is %d", opts.ExpectedStatus),
		}}, assertions...)
	}

	tc := &models.APITestCase{
		ID:             opts.ID,
		Name:           opts.Name,
		Endpoint:       opts.Endpoint,
		Method:         method,
		Headers:        copyHeaders(opts.Headers),
		Body:           opts.Body,
		ExpectedStatus: opts.ExpectedStatus,
		ExpectedShape:  opts.ExpectedShape,
		Timeout:        opts.Timeout,
		Auth:           opts.Auth,
		Assertions:     assertions,
		Tags:           slices.Clone(opts.Tags),
	}
	if tc.ID == "" {
		tc.ID = uuid.NewString()
	}
	if tc.Name == "" {
		tc.Name = method + " " + opts.Endpoint
	}
	body, _ := previewBody(tc.Body)
	tc.Curl = BuildCurl(method, joinURL(opts.BaseURL, opts.Endpoint), requestHeaders(tc, body != ""), body)
	return tc, nil
}

func (t *APITester) RegisterTestCase(tc *models.APITestCase) error {
	if tc == nil || tc.ID == "" {
		return &models.ValidationError{Entity: "test case", Rule: "empty-id"}
	}
	for i, a := range tc.Assertions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("test case %s assertion %d: %w", tc.ID, i, err)
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.cases[tc.ID]; ok {
		return &models.ValidationError{Entity: "test case", Rule: "duplicate-id", Msg: tc.ID}
	}
	t.cases[tc.ID] = tc
	return nil
}

func (t *APITester) GetTestCase(id string) (*models.APITestCase, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tc, ok := t.cases[id]
	return tc, ok
}

// ListTestCases returns every registered case in natural id order.
func (t *APITester) ListTestCases() []*models.APITestCase {
	t.mu.RLock()
	ids := make([]string, 0, len(t.cases))
	for id := range t.cases {
		ids = append(ids, id)
	}
	t.mu.RUnlock()
	natsort.Sort(ids)

	out := make([]*models.APITestCase, 0, len(ids))
	for _, id := range ids {
		if tc, ok := t.GetTestCase(id); ok {
			out = append(out, tc)
		}
	}
	return out
}

// RegisterSuite records the member ids. They are resolved when the suite runs.
func (t *APITester) RegisterSuite(name string, ids []string) error {
	if name == "" {
		return &models.ValidationError{Entity: "suite", Rule: "empty-name"}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.suites[name] = &models.TestSuite{Name: name, TestCaseIDs: slices.Clone(ids)}
	return nil
}

func (t *APITester) ListSuites() []models.TestSuite {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.TestSuite, 0, len(t.suites))
	for _, s := range t.suites {
		out = append(out, models.TestSuite{Name: s.Name, Description: s.Description, TestCaseIDs: slices.Clone(s.TestCaseIDs)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (t *APITester) suiteNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.suites))
	for n := range t.suites {
		names = append(names, n)
	}
	return names
}

// ExecuteTestCase never returns a Go error: network failures and timeouts
// become error results.
func (t *APITester) ExecuteTestCase(ctx context.Context, tc *models.APITestCase, baseURL string) *models.APIResult {
	if baseURL == "" {
		baseURL = t.baseURL
	}
	return t.execute(ctx, tc, baseURL, requestOptions{insecure: t.insecure, followRedirects: true})
}

type requestOptions struct {
	insecure        bool
	followRedirects bool
	// curl is used verbatim as the result's curl text when set.
	curl string
}

func (t *APITester) execute(ctx context.Context, tc *models.APITestCase, baseURL string, opts requestOptions) *models.APIResult {
	result := &models.APIResult{
		TestCaseID: tc.ID,
		Name:       tc.Name,
		Status:     models.ResultError,
		Timestamp:  t.clock.Now(),
	}
	fail := func(format string, args ...any) *models.APIResult {
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
		t.logger.Debug("test case errored", zap.String("id", tc.ID), zap.Strings("errors", result.Errors))
		return result
	}

	payload, err := t.resolveBody(ctx, tc.Body)
	if err != nil {
		return fail("%v", err)
	}
	body, err := encodeBody(payload)
	if err != nil {
		return fail("failed to encode request body: %v", err)
	}
	target := joinURL(baseURL, tc.Endpoint)
	headers := requestHeaders(tc, len(body) > 0 && isStructured(payload))
	result.Curl = opts.curl
	if result.Curl == "" {
		result.Curl = BuildCurl(tc.Method, target, headers, string(body))
	}

	timeout := tc.Timeout
	if timeout <= 0 {
		timeout = t.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, tc.Method, target, bytes.NewReader(body))
	if err != nil {
		return fail("failed to create request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	result.BytesSent = int64(len(body))

	start := time.Now()
	resp, err := t.client(opts).Do(req)
	if err != nil {
		result.ResponseTime = time.Since(start)
		return fail("%s", requestError(ctx, callCtx, err, timeout))
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			t.logger.Debug("failed to close response body", zap.Error(cerr))
		}
	}()
	raw, err := io.ReadAll(resp.Body)
	result.ResponseTime = time.Since(start)
	if err != nil {
		return fail("%s", requestError(ctx, callCtx, err, timeout))
	}

	result.StatusCode = resp.StatusCode
	result.BytesRecv = int64(len(raw))
	result.Headers = flattenHeaders(resp.Header)
	result.Body = parseBody(resp.Header.Get("Content-Type"), raw)

	r := response{status: resp.StatusCode, headers: result.Headers, body: result.Body, raw: raw}
	passed := true
	for _, a := range tc.Assertions {
		ar := evaluate(a, r)
		passed = passed && ar.Passed
		result.Assertions = append(result.Assertions, ar)
	}
	if tc.ExpectedShape != nil {
		ar := models.AssertionResult{
			Assertion: models.ResponseAssertion{Kind: models.AssertBody, Description: "response body matches the expected shape"},
			Passed:    true,
		}
		if err := mockdata.ValidateShape(tc.ExpectedShape, jsonValue(result.Body)); err != nil {
			ar.Passed = false
			ar.Message = err.Error()
		}
		passed = passed && ar.Passed
		result.Assertions = append(result.Assertions, ar)
	}

	result.Status = models.ResultFailed
	if passed {
		result.Status = models.ResultPassed
	}
	t.logger.Debug("test case executed",
		zap.String("id", tc.ID),
		zap.String("status", string(result.Status)),
		zap.Int("statusCode", result.StatusCode),
		zap.Duration("responseTime", result.ResponseTime))
	return result
}

func (t *APITester) client(opts requestOptions) *http.Client {
	c := &http.Client{Transport: t.transport}
	if opts.insecure {
		c.Transport = t.insecureTransport
	}
	if !opts.followRedirects {
		c.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	}
	return c
}

func requestError(parent, call context.Context, err error, timeout time.Duration) string {
	if parent.Err() == nil && errors.Is(call.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("request timed out after %s", timeout)
	}
	if parent.Err() != nil {
		return fmt.Sprintf("request cancelled: %v", parent.Err())
	}
	return fmt.Sprintf("request failed: %v", err)
}

// resolveBody swaps a {"$mock": "<id>"} body for the data set payload.
func (t *APITester) resolveBody(ctx context.Context, body any) (any, error) {
	ref, ok := body.(map[string]any)
	if !ok || len(ref) != 1 {
		return body, nil
	}
	raw, ok := ref[mockRefKey]
	if !ok {
		return body, nil
	}
	id, ok := raw.(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("%s must name a mock data set id", mockRefKey)
	}
	if t.mock == nil {
		return nil, fmt.Errorf("mock data set %s requested but no mock data service is configured", id)
	}
	ds, found, err := t.mock.GetDataSet(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load mock data set %s: %w", id, err)
	}
	if !found {
		return nil, fmt.Errorf("mock data set %s not found", id)
	}
	return ds.Data, nil
}

func isStructured(body any) bool {
	switch body.(type) {
	case nil, string, []byte:
		return false
	}
	return true
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(b), nil
	case []byte:
		return b, nil
	default:
		return json.Marshal(b)
	}
}

func previewBody(body any) (string, error) {
	raw, err := encodeBody(body)
	return string(raw), err
}

// requestHeaders merges declared headers with auth and a JSON content type.
func requestHeaders(tc *models.APITestCase, jsonBody bool) map[string]string {
	h := copyHeaders(tc.Headers)
	if h == nil {
		h = make(map[string]string)
	}
	switch tc.Auth.Type {
	case models.AuthBearer:
		h["Authorization"] = "Bearer " + tc.Auth.Token
	case models.AuthBasic:
		req := &http.Request{Header: http.Header{}}
		req.SetBasicAuth(tc.Auth.Username, tc.Auth.Password)
		h["Authorization"] = req.Header.Get("Authorization")
	case models.AuthAPIKey:
		name := tc.Auth.Header
		if name == "" {
			name = "X-API-Key"
		}
		h[name] = tc.Auth.Token
	}
	if jsonBody && headerValue(h, "Content-Type") == "" {
		h["Content-Type"] = "application/json"
	}
	return h
}

func headerValue(h map[string]string, name string) string {
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func copyHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return out
}

// parseBody decodes JSON bodies and keeps everything else, including JSON
// that fails to parse, as text.
func parseBody(contentType string, raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	if isJSONContentType(contentType) {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	}
	return string(raw)
}

func isJSONContentType(ct string) bool {
	ct = strings.ToLower(ct)
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.TrimSpace(ct)
	return ct == "application/json" || strings.HasSuffix(ct, "+json") || ct == "text/json"
}

// joinURL resolves endpoint against base. Absolute endpoints win.
func joinURL(base, endpoint string) string {
	if u, err := url.Parse(endpoint); err == nil && u.IsAbs() {
		return endpoint
	}
	if base == "" {
		return endpoint
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/")
}
