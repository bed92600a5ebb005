package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/user/ci-analysis-collector/pkg/logging"
)

// Options control how an external command is started
type Options struct {
	Dir string   // working directory, empty means the current directory
	Env []string // extra KEY=VALUE pairs appended to the process environment
}

// Executor runs an external command and returns its trimmed stdout.
// A non-zero exit yields an *ExitError carrying the captured stderr.
type Executor interface {
	Run(ctx context.Context, name string, args []string, opts Options) (string, error)
}

// ExitError reports a command that exited with a non-zero status
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return fmt.Sprintf("%s exited with status code %d", e.Command, e.Code)
}

// Runner is the os/exec backed Executor
type Runner struct {
	Logger *logging.Logger
}

func New(logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{Logger: logger}
}

func (r *Runner) Run(ctx context.Context, name string, args []string, opts Options) (string, error) {
	cmdLine := strings.Join(append([]string{name}, args...), " ")
	r.Logger.Debugw("spawning", "cmd", cmdLine, "dir", opts.Dir)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			r.Logger.Debugw("command failed", "cmd", name, "code", ee.ExitCode(), "stderr", stderr.String())
			return "", &ExitError{
				Command: name,
				Code:    ee.ExitCode(),
				Stderr:  strings.TrimSpace(stderr.String()),
			}
		}
		return "", fmt.Errorf("start %s: %w", name, err)
	}

	r.Logger.Debugw("command finished", "cmd", name, "code", 0, "bytes", stdout.Len())
	return strings.TrimSpace(stdout.String()), nil
}
