package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/user/ci-analysis-collector/pkg/result"
)

// Reporter renders results as human readable console blocks
type Reporter struct {
	Out   io.Writer
	Quiet bool // skip PASS results
}

func New(quiet bool) *Reporter {
	return &Reporter{Out: os.Stdout, Quiet: quiet}
}

var (
	bold      = color.New(color.Bold)
	boldWhite = color.New(color.Bold, color.FgWhite)
	faint     = color.New(color.Faint)

	statusColors = map[result.Status]*color.Color{
		result.Pass:    color.New(color.FgGreen),
		result.Fail:    color.New(color.FgRed),
		result.Errored: color.New(color.FgYellow),
		result.Skipped: faint,
	}
)

func statusColor(s result.Status) *color.Color {
	if c, ok := statusColors[s]; ok {
		return c
	}
	return faint
}

// Print writes one block per result
func (r *Reporter) Print(results []result.Result) error {
	for _, res := range results {
		if r.Quiet && res.CheckResult == result.Pass {
			continue
		}
		if _, err := io.WriteString(r.Out, Format(res)); err != nil {
			return err
		}
	}
	return nil
}

// Format renders a single result block, terminated by a blank line
func Format(res result.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, " [%s] %s\n\n",
		statusColor(res.CheckResult).Sprint(res.CheckResult),
		boldWhite.Sprintf("%s: %s", res.CheckID, res.CheckName))
	fmt.Fprintf(&b, "  %s | %s\n\n", bold.Sprint(res.CheckType), res.ResourceID)

	if res.FilePath != "" {
		b.WriteString("  File: " + res.FilePath)
		if lr := res.FileLineRange; lr != nil {
			if lr.Single() {
				fmt.Fprintf(&b, ":%d", lr[0])
			} else {
				fmt.Fprintf(&b, ":%d-%d", lr[0], lr[1])
			}
		}
		b.WriteString("\n\n")
	}

	if len(res.CodeBlock) > 0 {
		width := numberWidth(res.CodeBlock)
		for _, line := range res.CodeBlock {
			b.WriteString(faint.Sprintf("    %*d: ", width, line.Number))
			b.WriteString(line.Text + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	return b.String()
}

func numberWidth(lines []result.CodeLine) int {
	width := 0
	for _, l := range lines {
		if n := len(strconv.Itoa(l.Number)); n > width {
			width = n
		}
	}
	return width
}
