package wrappers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/user/ci-analysis-collector/pkg/result"
	"github.com/user/ci-analysis-collector/pkg/runner"
)

// CheckovWrapper runs checkov against the working directory
type CheckovWrapper struct {
	exec runner.Executor
}

func NewCheckov(exec runner.Executor) *CheckovWrapper {
	return &CheckovWrapper{exec: exec}
}

func (c *CheckovWrapper) ID() ToolID {
	return Checkov
}

func (c *CheckovWrapper) Version(ctx context.Context, opts runner.Options) (string, error) {
	return c.exec.Run(ctx, "checkov", []string{"--version"}, opts)
}

func (c *CheckovWrapper) Results(ctx context.Context, opts runner.Options) ([]result.Result, error) {
	// --soft-fail keeps checkov at exit 0 when checks fail; failures are
	// read from the report instead.
	args := []string{"--directory", ".", "--output", "json", "--no-guide", "--soft-fail"}
	output, err := c.exec.Run(ctx, "checkov", args, opts)
	if err != nil {
		return nil, execError("Checkov", err)
	}
	return c.Parse([]byte(output))
}

type checkovSummary struct {
	CheckType string          `json:"check_type"`
	Results   *checkovResults `json:"results"`
}

type checkovResults struct {
	PassedChecks  []checkovCheck    `json:"passed_checks"`
	FailedChecks  []checkovCheck    `json:"failed_checks"`
	SkippedChecks []checkovCheck    `json:"skipped_checks"`
	ParsingErrors []json.RawMessage `json:"parsing_errors"`
}

type checkovCheck struct {
	CheckID     string `json:"check_id"`
	CheckName   string `json:"check_name"`
	CheckResult struct {
		Result string `json:"result"`
	} `json:"check_result"`
	Resource      string            `json:"resource"`
	FilePath      string            `json:"file_path"`
	FileLineRange []int             `json:"file_line_range"`
	CodeBlock     []result.CodeLine `json:"code_block"`
}

var checkovStatus = map[string]result.Status{
	"PASSED":  result.Pass,
	"FAILED":  result.Fail,
	"SKIPPED": result.Skipped,
}

// Parse accepts a single summary object or an array of them; checkov
// returns an array when it scanned more than one framework.
func (c *CheckovWrapper) Parse(raw []byte) ([]result.Result, error) {
	var summaries []checkovSummary
	if isJSONArray(raw) {
		if err := json.Unmarshal(raw, &summaries); err != nil {
			return nil, fmt.Errorf("parse checkov output: %w", err)
		}
	} else {
		var single checkovSummary
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, fmt.Errorf("parse checkov output: %w", err)
		}
		summaries = []checkovSummary{single}
	}

	results := make([]result.Result, 0)
	for _, s := range summaries {
		// An empty scan yields a bare counts summary without results
		if s.Results == nil {
			continue
		}

		groups := []struct {
			checks   []checkovCheck
			fallback result.Status
		}{
			{s.Results.PassedChecks, result.Pass},
			{s.Results.FailedChecks, result.Fail},
			{s.Results.SkippedChecks, result.Skipped},
		}
		for _, g := range groups {
			for _, check := range g.checks {
				status, ok := checkovStatus[check.CheckResult.Result]
				if !ok {
					status = g.fallback
				}
				results = append(results, newCheckovResult(check, s.CheckType, status))
			}
		}

		for _, rawErr := range s.Results.ParsingErrors {
			check, err := parseCheckovError(rawErr)
			if err != nil {
				return nil, err
			}
			results = append(results, newCheckovResult(check, s.CheckType, result.Errored))
		}
	}
	return results, nil
}

// parseCheckovError reads a parsing_errors entry, which is either a check
// object or the path of the file that failed to parse.
func parseCheckovError(raw json.RawMessage) (checkovCheck, error) {
	var path string
	if err := json.Unmarshal(raw, &path); err == nil {
		return checkovCheck{CheckID: "parsing_error", CheckName: "Failed to parse file.", FilePath: path}, nil
	}

	var check checkovCheck
	if err := json.Unmarshal(raw, &check); err != nil {
		return check, fmt.Errorf("parse checkov parsing error: %w", err)
	}
	return check, nil
}

func newCheckovResult(check checkovCheck, checkType string, status result.Status) result.Result {
	r := result.Result{
		CheckID:     check.CheckID,
		CheckName:   check.CheckName,
		CheckType:   checkType,
		CheckResult: status,
		ResourceID:  result.ResourceID(check.Resource),
		FilePath:    check.FilePath,
	}

	if len(check.FileLineRange) == 2 {
		start, end := check.FileLineRange[0], check.FileLineRange[1]
		if start > end {
			start, end = end, start
		}
		r.FileLineRange = result.NewLineRange(start, end)
	}

	if len(check.CodeBlock) > 0 {
		r.CodeBlock = make([]result.CodeLine, 0, len(check.CodeBlock))
		for _, line := range check.CodeBlock {
			r.CodeBlock = append(r.CodeBlock, result.NewCodeLine(line.Number, line.Text))
		}
	}
	return r
}
