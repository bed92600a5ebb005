package result

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Status is the outcome of a single check
type Status string

const (
	Pass    Status = "PASS"
	Fail    Status = "FAIL"
	Errored Status = "ERRORED"
	Skipped Status = "SKIPPED"
)

// Failing reports whether the status should fail a run
func (s Status) Failing() bool {
	return s == Fail || s == Errored
}

// UnknownResource is used when a tool does not name the scanned entity
const UnknownResource = "unknown"

// Result is the normalized record every tool wrapper emits
type Result struct {
	CheckID     string `json:"checkId"`
	CheckName   string `json:"checkName,omitempty"` // console only, cleared before submission
	CheckType   string `json:"checkType"`
	CheckResult Status `json:"checkResult"`
	ResourceID  string `json:"resourceId"`

	// File-based tools
	FilePath      string     `json:"filePath,omitempty"`
	FileLineRange *LineRange `json:"fileLineRange,omitempty"`
	CodeBlock     []CodeLine `json:"codeBlock,omitempty"`

	// Vulnerability scanners
	VulnerabilityID string `json:"vulnerabilityId,omitempty"`
	PackageName     string `json:"packageName,omitempty"`
	PackageVersion  string `json:"packageVersion,omitempty"`

	// Web scanners
	CheckMethod string `json:"checkMethod,omitempty"`
}

// LineRange is an inclusive, 1-based [start, end] pair
type LineRange [2]int

// Single reports whether the range covers one line
func (r LineRange) Single() bool {
	return r[0] == r[1]
}

// NewLineRange builds a range from 0-based tool output
func NewLineRange(start, end int) *LineRange {
	return &LineRange{start + 1, end + 1}
}

// CodeLine is one line of a source excerpt. It is encoded as the tuple
// [number, text] on the wire.
type CodeLine struct {
	Number int
	Text   string
}

// NewCodeLine builds a code line from a 0-based line number, trimming
// trailing whitespace from the text.
func NewCodeLine(number int, text string) CodeLine {
	return CodeLine{Number: number + 1, Text: strings.TrimRightFunc(text, unicode.IsSpace)}
}

func (c CodeLine) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{c.Number, c.Text})
}

func (c *CodeLine) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != 2 {
		return fmt.Errorf("code line: expected [number, text], got %d elements", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &c.Number); err != nil {
		return fmt.Errorf("code line number: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &c.Text); err != nil {
		return fmt.Errorf("code line text: %w", err)
	}
	return nil
}

// ResourceID normalizes a tool-supplied resource name. Nested module
// resources come out of some tools with a trailing period.
func ResourceID(raw string) string {
	id := strings.TrimSuffix(raw, ".")
	if id == "" {
		return UnknownResource
	}
	return id
}

// Passing reports whether none of the results fail the run
func Passing(results []Result) bool {
	for _, r := range results {
		if r.CheckResult.Failing() {
			return false
		}
	}
	return true
}

// Summary counts results per status
type Summary map[Status]int

func Summarize(results []Result) Summary {
	s := Summary{}
	for _, r := range results {
		s[r.CheckResult]++
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("%d passed, %d failed, %d errored, %d skipped",
		s[Pass], s[Fail], s[Errored], s[Skipped])
}
