package apitest

import (
	"fmt"
	"os"

	"go.keploy.io/testengine/pkg/models"
	"gopkg.in/yaml.v3"
)

const TestFileKind = "APITest"

// LoadTestFile parses a YAML test definition file.
func LoadTestFile(path string) (*models.TestFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path %s is a directory, expected a file", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	var tf models.TestFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("error parsing YAML: %w", err)
	}
	if tf.Kind != "" && tf.Kind != TestFileKind {
		return nil, fmt.Errorf("invalid kind: expected '%s', got '%s'", TestFileKind, tf.Kind)
	}
	if len(tf.TestCases) == 0 && len(tf.Scenarios) == 0 {
		return nil, fmt.Errorf("no test cases or scenarios found in %s", path)
	}
	return &tf, nil
}

// RegisterFile validates and registers every test case and suite in tf.
func (t *APITester) RegisterFile(tf *models.TestFile) error {
	for i := range tf.TestCases {
		tc := tf.TestCases[i]
		built, err := NewTestCase(TestCaseOptions{
			ID:             tc.ID,
			Name:           tc.Name,
			Endpoint:       tc.Endpoint,
			Method:         tc.Method,
			Headers:        tc.Headers,
			Body:           tc.Body,
			ExpectedStatus: tc.ExpectedStatus,
			ExpectedShape:  tc.ExpectedShape,
			Timeout:        tc.Timeout,
			Auth:           tc.Auth,
			Assertions:     tc.Assertions,
			Tags:           tc.Tags,
			BaseURL:        tf.BaseURL,
		})
		if err != nil {
			return fmt.Errorf("test case %d (%s): %w", i, tc.ID, err)
		}
		if err := t.RegisterTestCase(built); err != nil {
			return err
		}
	}
	for _, s := range tf.Suites {
		if err := t.RegisterSuite(s.Name, s.TestCaseIDs); err != nil {
			return err
		}
		if s.Description != "" {
			t.mu.Lock()
			t.suites[s.Name].Description = s.Description
			t.mu.Unlock()
		}
	}
	return nil
}
