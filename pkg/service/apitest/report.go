package apitest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	"go.keploy.io/testengine/pkg/models"
)

type ReportFormat string

const (
	ReportJSON ReportFormat = "json"
	ReportHTML ReportFormat = "html"
	ReportText ReportFormat = "text"
)

var SupportedReportFormats = []string{string(ReportJSON), string(ReportHTML), string(ReportText)}

type reportSummary struct {
	Total       int     `json:"totalTests"`
	Passed      int     `json:"passed"`
	Failed      int     `json:"failed"`
	Errored     int     `json:"errored"`
	SuccessRate float64 `json:"successRate"`
}

type jsonReport struct {
	Summary reportSummary       `json:"summary"`
	Results []*models.APIResult `json:"results"`
}

func summarize(results []*models.APIResult) reportSummary {
	s := reportSummary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case models.ResultPassed:
			s.Passed++
		case models.ResultFailed:
			s.Failed++
		default:
			s.Errored++
		}
	}
	s.SuccessRate = successRate(s.Passed, s.Total)
	return s
}

func successRate(passed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(passed) / float64(total) * 100
}

// GenerateReport renders results as json, html or text.
func GenerateReport(results []*models.APIResult, format ReportFormat) ([]byte, error) {
	switch ReportFormat(strings.ToLower(string(format))) {
	case ReportJSON:
		if results == nil {
			results = []*models.APIResult{}
		}
		return json.MarshalIndent(jsonReport{Summary: summarize(results), Results: results}, "", "  ")
	case ReportHTML:
		return htmlReport(results)
	case ReportText:
		return textReport(results), nil
	}
	return nil, &models.UnsupportedFormatError{Format: string(format), Supported: SupportedReportFormats}
}

func statusLabel(r *models.APIResult) string {
	if r.Passed() {
		return "PASSED"
	}
	return "FAILED"
}

func textReport(results []*models.APIResult) []byte {
	s := summarize(results)
	var b bytes.Buffer
	b.WriteString("API Test Report\n")
	b.WriteString("===============\n")
	fmt.Fprintf(&b, "Total Tests: %d\n", s.Total)
	fmt.Fprintf(&b, "Passed: %d\n", s.Passed)
	fmt.Fprintf(&b, "Failed: %d\n", s.Failed)
	fmt.Fprintf(&b, "Errors: %d\n", s.Errored)
	fmt.Fprintf(&b, "Success Rate: %.2f%%\n", s.SuccessRate)
	for i, r := range results {
		fmt.Fprintf(&b, "\n[%d] %s\n", i+1, r.Name)
		fmt.Fprintf(&b, "Status: %s\n", statusLabel(r))
		if r.StatusCode != 0 {
			fmt.Fprintf(&b, "Status Code: %d\n", r.StatusCode)
		}
		fmt.Fprintf(&b, "Response Time: %s\n", r.ResponseTime.Round(time.Millisecond))
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "Error: %s\n", e)
		}
		for _, a := range r.Assertions {
			if !a.Passed {
				fmt.Fprintf(&b, "Assertion failed: %s\n", a.Message)
			}
		}
	}
	return b.Bytes()
}

var htmlTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>API Test Report</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ccc; padding: 6px 10px; text-align: left; }
tr.pass td.status { color: #1a7f37; font-weight: bold; }
tr.fail td.status { color: #cf222e; font-weight: bold; }
</style>
</head>
<body>
<h1>API Test Report</h1>
<p>Total Tests: {{.Summary.Total}} | Passed: {{.Summary.Passed}} | Failed: {{.Summary.Failed}} | Errors: {{.Summary.Errored}} | Success Rate: {{printf "%.2f" .Summary.SuccessRate}}%</p>
<table>
<tr><th>Test</th><th>Status</th><th>Code</th><th>Response Time</th><th>Details</th></tr>
{{range .Rows}}<tr class="{{.Class}}"><td>{{.Name}}</td><td class="status">{{.Label}}</td><td>{{.Code}}</td><td>{{.Time}}</td><td>{{range .Details}}{{.}}<br>{{end}}</td></tr>
{{end}}</table>
</body>
</html>
`))

type htmlRow struct {
	Name    string
	Class   string
	Label   string
	Code    int
	Time    time.Duration
	Details []string
}

func htmlReport(results []*models.APIResult) ([]byte, error) {
	rows := make([]htmlRow, 0, len(results))
	for _, r := range results {
		row := htmlRow{Name: r.Name, Label: statusLabel(r), Code: r.StatusCode, Time: r.ResponseTime.Round(time.Millisecond), Class: "fail"}
		if r.Passed() {
			row.Class = "pass"
		}
		row.Details = append(row.Details, r.Errors...)
		for _, a := range r.Assertions {
			if !a.Passed {
				row.Details = append(row.Details, a.Message)
			}
		}
		rows = append(rows, row)
	}
	var buf bytes.Buffer
	err := htmlTmpl.Execute(&buf, struct {
		Summary reportSummary
		Rows    []htmlRow
	}{summarize(results), rows})
	if err != nil {
		return nil, fmt.Errorf("failed to render html report: %w", err)
	}
	return buf.Bytes(), nil
}
