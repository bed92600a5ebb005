// Package runnertest provides a scripted runner.Executor for tests.
package runnertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/user/ci-analysis-collector/pkg/runner"
)

// Call records one invocation of the fake executor
type Call struct {
	Name string
	Args []string
	Opts runner.Options
}

// Response is the scripted outcome for a command
type Response struct {
	Stdout string
	Err    error
}

// Executor answers commands from a table keyed by the command line
// ("name arg1 arg2"). A key holding only the command name matches any
// arguments. Unknown commands fail like a missing binary would.
type Executor struct {
	mu        sync.Mutex
	Responses map[string]Response
	Calls     []Call
}

func New() *Executor {
	return &Executor{Responses: make(map[string]Response)}
}

// On registers a response for a command line
func (e *Executor) On(cmdLine string, stdout string, err error) *Executor {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Responses[cmdLine] = Response{Stdout: stdout, Err: err}
	return e
}

func (e *Executor) Run(ctx context.Context, name string, args []string, opts runner.Options) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Calls = append(e.Calls, Call{Name: name, Args: append([]string(nil), args...), Opts: opts})

	full := strings.Join(append([]string{name}, args...), " ")
	if resp, ok := e.Responses[full]; ok {
		return resp.Stdout, resp.Err
	}
	if resp, ok := e.Responses[name]; ok {
		return resp.Stdout, resp.Err
	}
	return "", &runner.ExitError{Command: name, Code: 127, Stderr: fmt.Sprintf("%s: command not found", name)}
}

// Count returns how many times a command name was invoked
func (e *Executor) Count(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, c := range e.Calls {
		if c.Name == name {
			n++
		}
	}
	return n
}
