package apitest

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/wI2L/jsondiff"
	"go.keploy.io/testengine/pkg/models"
)

type response struct {
	status  int
	headers map[string]string
	body    any
	raw     []byte
}

var indexRe = regexp.MustCompile(`\[(\d+)\]`)

// evaluate runs a single assertion against a response. Fields that cannot be
// resolved fail with a nil Actual, except for not_exists.
func evaluate(a models.ResponseAssertion, r response) models.AssertionResult {
	op := a.Operator
	if op == "" {
		op = models.OpEquals
	}
	res := models.AssertionResult{Assertion: a}

	actual, found := resolve(a, r)
	switch op {
	case models.OpExists:
		res.Passed = found
		res.Actual = actual
		if !found {
			res.Message = fmt.Sprintf("expected %s to exist", describe(a))
		}
		return res
	case models.OpNotExists:
		res.Passed = !found
		res.Actual = actual
		if found {
			res.Message = fmt.Sprintf("expected %s to be absent", describe(a))
		}
		return res
	}
	if !found {
		res.Message = fmt.Sprintf("%s could not be resolved", describe(a))
		return res
	}
	res.Actual = actual
	expected := jsonValue(a.Expected)

	switch op {
	case models.OpEquals, models.OpNotEquals:
		eq, diff := equal(actual, expected, a.Tolerance)
		res.Passed = eq == (op == models.OpEquals)
		if !res.Passed {
			if op == models.OpEquals {
				res.Message = fmt.Sprintf("expected %s to equal %s, got %s", describe(a), render(expected), render(actual))
				if diff != "" {
					res.Message += "; diff: " + diff
				}
			} else {
				res.Message = fmt.Sprintf("expected %s not to equal %s", describe(a), render(expected))
			}
		}
	case models.OpContains, models.OpNotContains:
		has := contains(actual, expected)
		res.Passed = has == (op == models.OpContains)
		if !res.Passed {
			verb := "contain"
			if op == models.OpNotContains {
				verb = "not contain"
			}
			res.Message = fmt.Sprintf("expected %s to %s %s, got %s", describe(a), verb, render(expected), render(actual))
		}
	case models.OpGreater, models.OpGreaterEq, models.OpLess, models.OpLessEq:
		x, okA := toFloat(actual)
		y, okE := toFloat(expected)
		if !okA || !okE {
			res.Message = fmt.Sprintf("cannot compare %s with %s numerically", render(actual), render(expected))
			return res
		}
		switch op {
		case models.OpGreater:
			res.Passed = x > y
		case models.OpGreaterEq:
			res.Passed = x >= y
		case models.OpLess:
			res.Passed = x < y
		case models.OpLessEq:
			res.Passed = x <= y
		}
		if !res.Passed {
			res.Message = fmt.Sprintf("expected %s %s %s, got %s", describe(a), op, render(expected), render(actual))
		}
	case models.OpMatches:
		pattern, ok := expected.(string)
		if !ok {
			res.Message = "matches needs a string pattern"
			return res
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			res.Message = fmt.Sprintf("invalid pattern %q: %v", pattern, err)
			return res
		}
		res.Passed = re.MatchString(scalarString(actual))
		if !res.Passed {
			res.Message = fmt.Sprintf("expected %s to match %q, got %s", describe(a), pattern, render(actual))
		}
	default:
		res.Message = fmt.Sprintf("unsupported operator %q", op)
	}
	return res
}

// EvaluateResult runs an assertion against a recorded result.
func EvaluateResult(a models.ResponseAssertion, r *models.APIResult) models.AssertionResult {
	return evaluate(a, responseOf(r))
}

// ExtractValue resolves a body path of a recorded result.
func ExtractValue(r *models.APIResult, path string) (any, bool) {
	return resolveBody(responseOf(r), path)
}

func responseOf(r *models.APIResult) response {
	resp := response{status: r.StatusCode, headers: r.Headers, body: r.Body}
	switch b := r.Body.(type) {
	case nil:
	case string:
		resp.raw = []byte(b)
	default:
		resp.raw, _ = json.Marshal(b)
	}
	return resp
}

func describe(a models.ResponseAssertion) string {
	switch a.Kind {
	case models.AssertStatus:
		return "status"
	case models.AssertHeader:
		return "header " + a.Field
	}
	if a.Field == "" {
		return "body"
	}
	return "body." + a.Field
}

func resolve(a models.ResponseAssertion, r response) (any, bool) {
	switch a.Kind {
	case models.AssertStatus:
		return float64(r.status), r.status != 0
	case models.AssertHeader:
		for k, v := range r.headers {
			if strings.EqualFold(k, a.Field) {
				return v, true
			}
		}
		return nil, false
	case models.AssertBody:
		return resolveBody(r, a.Field)
	}
	return nil, false
}

// resolveBody walks a dot path through the body. A trailing ".length" that
// is not a real key yields the length of an array, string or object.
func resolveBody(r response, path string) (any, bool) {
	path = strings.TrimPrefix(indexRe.ReplaceAllString(path, ".$1"), ".")
	if path == "" {
		return r.body, r.body != nil
	}
	if s, ok := r.body.(string); ok {
		if path == "length" {
			return float64(len([]rune(s))), true
		}
		return nil, false
	}
	if r.body == nil {
		return nil, false
	}
	doc := gjson.ParseBytes(r.raw)
	if v := doc.Get(path); v.Exists() {
		return v.Value(), true
	}
	var base gjson.Result
	switch {
	case path == "length":
		base = doc
	case strings.HasSuffix(path, ".length"):
		base = doc.Get(strings.TrimSuffix(path, ".length"))
	default:
		return nil, false
	}
	if !base.Exists() {
		return nil, false
	}
	switch {
	case base.IsArray():
		return float64(len(base.Array())), true
	case base.IsObject():
		return float64(len(base.Map())), true
	case base.Type == gjson.String:
		return float64(len([]rune(base.String()))), true
	}
	return nil, false
}

// equal compares numerically when both sides read as numbers, textually
// when either side is a string, and structurally otherwise. The second
// return value is a JSON patch for mismatched objects or arrays.
func equal(actual, expected any, tolerance float64) (bool, string) {
	if x, ok := toFloat(actual); ok {
		if y, ok := toFloat(expected); ok && (isNumber(actual) || isNumber(expected)) {
			return math.Abs(x-y) <= tolerance, ""
		}
	}
	_, as := actual.(string)
	_, es := expected.(string)
	if as || es {
		return scalarString(actual) == scalarString(expected), ""
	}
	if reflect.DeepEqual(actual, expected) {
		return true, ""
	}
	if !isComposite(actual) && !isComposite(expected) {
		return false, ""
	}
	patch, err := jsondiff.Compare(expected, actual)
	if err != nil {
		return false, ""
	}
	out, err := json.Marshal(patch)
	if err != nil {
		return false, ""
	}
	return false, string(out)
}

func contains(actual, expected any) bool {
	switch v := actual.(type) {
	case string:
		return strings.Contains(v, scalarString(expected))
	case []any:
		for _, item := range v {
			if eq, _ := equal(item, expected, 0); eq {
				return true
			}
		}
		return false
	case map[string]any:
		if sub, ok := expected.(map[string]any); ok {
			for k, want := range sub {
				got, ok := v[k]
				if !ok {
					return false
				}
				if eq, _ := equal(got, want, 0); !eq {
					return false
				}
			}
			return true
		}
		_, ok := v[scalarString(expected)]
		return ok
	}
	return strings.Contains(scalarString(actual), scalarString(expected))
}

// jsonValue maps Go values onto the shapes encoding/json decodes into.
func jsonValue(v any) any {
	switch v.(type) {
	case nil, string, bool, float64:
		return v
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int64, int32, uint, uint64, uint32:
		return true
	}
	return false
}

func isComposite(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func scalarString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	}
	if isComposite(v) {
		return render(v)
	}
	return fmt.Sprint(v)
}

func render(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}
