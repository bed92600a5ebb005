package wrappers

import (
	"context"
	"fmt"

	"github.com/user/ci-analysis-collector/pkg/config"
	"github.com/user/ci-analysis-collector/pkg/result"
	"github.com/user/ci-analysis-collector/pkg/runner"
)

// ToolID names one of the supported scanners
type ToolID string

const (
	Checkov   ToolID = "checkov"
	Trivy     ToolID = "trivy"
	Zap       ToolID = "zap"
	SonarQube ToolID = "sonarqube"
)

// Tools lists every supported scanner in display order
func Tools() []ToolID {
	return []ToolID{Checkov, Trivy, Zap, SonarQube}
}

// Tool is implemented by every scanner wrapper
type Tool interface {
	ID() ToolID
	// Version invokes the tool's version flag and returns its output.
	Version(ctx context.Context, opts runner.Options) (string, error)
	// Results validates configuration, runs the tool and parses its output.
	Results(ctx context.Context, opts runner.Options) ([]result.Result, error)
	// Parse converts the tool's native JSON into results. It has no side effects.
	Parse(raw []byte) ([]result.Result, error)
}

// New builds the wrapper for id. cfg is copied into the wrapper.
func New(id ToolID, cfg config.Config, exec runner.Executor) (Tool, error) {
	switch id {
	case Checkov:
		return NewCheckov(exec), nil
	case Trivy:
		return NewTrivy(cfg.Trivy, exec), nil
	case Zap:
		return NewZap(cfg.Zap, exec), nil
	case SonarQube:
		return NewSonarQube(cfg.Sonar, exec, nil), nil
	default:
		return nil, fmt.Errorf("the specified tool %q is not supported", id)
	}
}

// ConfigError reports a missing required setting. It is returned before
// any external process is started.
type ConfigError struct {
	Flag string // command line flag, without dashes
	Env  string // environment variable that can supply the value, if any
}

// flags read aloud with a leading vowel sound
var anFlags = map[string]bool{
	"image-name": true,
}

func (e *ConfigError) Error() string {
	article := "a"
	if anFlags[e.Flag] {
		article = "an"
	}
	msg := fmt.Sprintf("you must specify %s --%s argument", article, e.Flag)
	if e.Env != "" {
		msg += fmt.Sprintf(" or the %s environment variable", e.Env)
	}
	return msg
}

func execError(tool string, err error) error {
	return fmt.Errorf("error executing %s: %w", tool, err)
}

// isJSONArray reports whether raw starts with '[' after leading whitespace.
// Several tools return either one object or a list of them.
func isJSONArray(raw []byte) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}
