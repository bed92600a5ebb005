package sarif

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/user/ci-analysis-collector/pkg/result"
)

const (
	Version = "2.1.0"
	Schema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"
)

type Log struct {
	Version string `json:"version"`
	Schema  string `json:"$schema"`
	Runs    []Run  `json:"runs"`
}

type Run struct {
	Tool    Tool     `json:"tool"`
	Results []Result `json:"results"`
}

type Tool struct {
	Driver Driver `json:"driver"`
}

type Driver struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type Result struct {
	RuleID    string     `json:"ruleId"`
	Message   Message    `json:"message"`
	Level     string     `json:"level"` // error, warning
	Locations []Location `json:"locations"`
}

type Message struct {
	Text string `json:"text"`
}

type Location struct {
	PhysicalLocation PhysicalLocation `json:"physicalLocation"`
}

type PhysicalLocation struct {
	ArtifactLocation ArtifactLocation `json:"artifactLocation"`
	Region           *Region          `json:"region,omitempty"`
}

type ArtifactLocation struct {
	URI string `json:"uri"`
}

type Region struct {
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine,omitempty"`
}

// Build converts failing results into a single-run SARIF log. Passing and
// skipped results are left out.
func Build(results []result.Result, toolName, toolVersion string) Log {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if !r.CheckResult.Failing() {
			continue
		}

		level := "error"
		if r.CheckResult == result.Errored {
			level = "warning"
		}

		text := strings.TrimSpace(r.CheckName)
		if text == "" {
			text = r.CheckID
		}

		loc := PhysicalLocation{ArtifactLocation: ArtifactLocation{URI: toURI(r.FilePath)}}
		if loc.ArtifactLocation.URI == "" {
			loc.ArtifactLocation.URI = r.ResourceID
		}
		if lr := r.FileLineRange; lr != nil {
			loc.Region = &Region{StartLine: lr[0], EndLine: lr[1]}
		}

		out = append(out, Result{
			RuleID:    r.CheckID,
			Level:     level,
			Message:   Message{Text: text},
			Locations: []Location{{PhysicalLocation: loc}},
		})
	}

	return Log{
		Version: Version,
		Schema:  Schema,
		Runs: []Run{{
			Tool:    Tool{Driver: Driver{Name: toolName, Version: toolVersion}},
			Results: out,
		}},
	}
}

// Export writes the SARIF log for results to path
func Export(path string, results []result.Result, toolName, toolVersion string) error {
	data, err := json.MarshalIndent(Build(results, toolName, toolVersion), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sarif: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create sarif dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write sarif: %w", err)
	}
	return nil
}

func toURI(p string) string {
	p = filepath.ToSlash(strings.TrimSpace(p))
	for strings.HasPrefix(p, "../") {
		p = strings.TrimPrefix(p, "../")
	}
	p = strings.TrimPrefix(p, "./")
	return strings.TrimPrefix(p, "/")
}
