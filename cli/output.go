package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"go.keploy.io/testengine/pkg/models"
)

var (
	passColor = color.New(color.FgHiGreen).SprintFunc()
	failColor = color.New(color.FgHiRed).SprintFunc()
	warnColor = color.New(color.FgHiYellow).SprintFunc()
	dimColor  = color.New(color.FgHiBlack).SprintFunc()
)

func statusText(r *models.APIResult) string {
	switch r.Status {
	case models.ResultPassed:
		return passColor("PASS")
	case models.ResultFailed:
		return failColor("FAIL")
	}
	return warnColor("ERROR")
}

func printResult(w io.Writer, r *models.APIResult) {
	fmt.Fprintf(w, "%s %s %s\n", statusText(r), r.Name, dimColor(fmt.Sprintf("(%d, %s)", r.StatusCode, r.ResponseTime.Round(time.Millisecond))))
	for _, e := range r.Errors {
		fmt.Fprintf(w, "    %s\n", failColor(e))
	}
	for _, a := range r.Assertions {
		if !a.Passed {
			fmt.Fprintf(w, "    %s\n", failColor(a.Message))
		}
	}
}

func printSuite(w io.Writer, res *models.SuiteResult) {
	for _, r := range res.Results {
		printResult(w, r)
	}
	summary := fmt.Sprintf("%d passed, %d failed, %d errored of %d (%.2f%%) in %s",
		res.Passed, res.Failed, res.Errored, res.Total, res.SuccessRate, res.Duration.Round(time.Millisecond))
	if res.Passed == res.Total {
		fmt.Fprintln(w, passColor(summary))
		return
	}
	fmt.Fprintln(w, failColor(summary))
}

func printFlow(w io.Writer, name string, res *models.FlowResult) {
	label := passColor("PASS")
	switch res.Status {
	case models.FlowFailed:
		label = failColor("FAIL")
	case models.FlowTimeout, models.FlowErrored:
		label = warnColor(string(res.Status))
	}
	fmt.Fprintf(w, "%s %s %s\n", label, name, dimColor(fmt.Sprintf("(attempts: %d, %s)", res.Attempts, res.Duration.Round(time.Millisecond))))
	for _, s := range res.Steps {
		if s.Error != "" {
			fmt.Fprintf(w, "    step %d %s: %s\n", s.Order, s.Name, failColor(s.Error))
		}
	}
	for _, e := range res.Errors {
		if e.Code == "outcome_failed" {
			fmt.Fprintf(w, "    %s\n", failColor(e.Message))
		}
	}
}

func printLoadSummary(w io.Writer, res *models.LoadTestResults) error {
	table := tablewriter.NewWriter(w)
	table.Header("Metric", "Value")
	rows := [][]string{
		{"State", string(res.State)},
		{"Users (target / achieved)", fmt.Sprintf("%d / %d", res.TargetUsers, res.AchievedUsers)},
		{"Requests (total / steady)", fmt.Sprintf("%d / %d", res.TotalRequests, res.SteadyRequests)},
		{"Errors", strconv.FormatInt(res.TotalErrors, 10)},
		{"Error rate", fmt.Sprintf("%.2f%%", res.ErrorRate)},
		{"Avg response", res.AvgResponseTime.String()},
		{"P95 response", res.P95ResponseTime.String()},
		{"Throughput", fmt.Sprintf("%.2f/s", res.Throughput)},
		{"Duration", res.Duration.Round(time.Millisecond).String()},
		{"Stress events", strconv.Itoa(res.StressEvents)},
	}
	for _, t := range res.Thresholds {
		verdict := passColor("pass")
		if !t.Passed {
			verdict = failColor("fail")
		}
		rows = append(rows, []string{fmt.Sprintf("%s %s", t.Metric, t.Condition), fmt.Sprintf("%s (%s)", t.Actual, verdict)})
	}
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

// writeOutput writes data to path, or to w when path is empty.
func writeOutput(w io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := w.Write(data)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create the output directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}
