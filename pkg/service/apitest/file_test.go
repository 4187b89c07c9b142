package apitest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.keploy.io/testengine/pkg/models"
	"go.uber.org/zap/zaptest"
)

const sampleFile = `version: testengine.io/v1
kind: APITest
baseUrl: http://localhost:8080
testCases:
  - id: list-users
    endpoint: /users
    expectedStatus: 200
    timeout: 2s
    assertions:
      - kind: body
        field: data.length
        operator: gte
        expected: 1
  - id: create-user
    endpoint: /users
    method: POST
    body:
      name: Ada
    auth:
      type: bearer
      token: secret
suites:
  - name: smoke
    description: quick checks
    testCases: [list-users, create-user]
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "apitests.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadTestFile(t *testing.T) {
	tf, err := LoadTestFile(writeFile(t, sampleFile))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", tf.BaseURL)
	require.Len(t, tf.TestCases, 2)
	assert.Equal(t, 2*time.Second, tf.TestCases[0].Timeout)
	assert.Equal(t, models.OpGreaterEq, tf.TestCases[0].Assertions[0].Operator)
	assert.Equal(t, models.AuthBearer, tf.TestCases[1].Auth.Type)

	tester := New(zaptest.NewLogger(t), nil, Options{})
	require.NoError(t, tester.RegisterFile(tf))
	created, ok := tester.GetTestCase("create-user")
	require.True(t, ok)
	assert.Contains(t, created.Curl, "--header 'Authorization: Bearer secret'")
	assert.Contains(t, created.Curl, `--data '{"name":"Ada"}'`)
	listed, _ := tester.GetTestCase("list-users")
	assert.Len(t, listed.Assertions, 2)
	assert.Equal(t, []models.TestSuite{{Name: "smoke", Description: "quick checks", TestCaseIDs: []string{"list-users", "create-user"}}}, tester.ListSuites())
}

func TestLoadTestFile_Errors(t *testing.T) {
	_, err := LoadTestFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadTestFile(t.TempDir())
	assert.ErrorContains(t, err, "is a directory")

	_, err = LoadTestFile(writeFile(t, "kind: TestSuite\ntestCases:\n  - id: a\n    endpoint: /a\n"))
	assert.ErrorContains(t, err, "invalid kind")

	_, err = LoadTestFile(writeFile(t, "kind: APITest\n"))
	assert.ErrorContains(t, err, "no test cases")

	_, err = LoadTestFile(writeFile(t, "testCases: [\n"))
	assert.ErrorContains(t, err, "error parsing YAML")
}
