package wrappers

import (
	"testing"

	"github.com/user/ci-analysis-collector/pkg/config"
	"github.com/user/ci-analysis-collector/pkg/runner/runnertest"
)

func TestNew(t *testing.T) {
	cfg := config.Default()
	for _, id := range Tools() {
		tool, err := New(id, cfg, runnertest.New())
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", id, err)
		}
		if tool.ID() != id {
			t.Errorf("expected %s, got %s", id, tool.ID())
		}
	}
}

func TestNewUnsupported(t *testing.T) {
	_, err := New("bandit", config.Default(), runnertest.New())
	if err == nil || err.Error() != `the specified tool "bandit" is not supported` {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestConfigErrorArticle(t *testing.T) {
	tests := []struct {
		err  ConfigError
		want string
	}{
		{ConfigError{Flag: "image-name"}, "you must specify an --image-name argument"},
		{ConfigError{Flag: "target-name"}, "you must specify a --target-name argument"},
		{ConfigError{Flag: "login", Env: "SQ_LOGIN"}, "you must specify a --login argument or the SQ_LOGIN environment variable"},
		{ConfigError{Flag: "username", Env: "SQ_USERNAME"}, "you must specify a --username argument or the SQ_USERNAME environment variable"},
		{ConfigError{Flag: "project-key"}, "you must specify a --project-key argument"},
	}

	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, got)
		}
	}
}

func TestIsJSONArray(t *testing.T) {
	tests := map[string]bool{
		"[]":          true,
		"\n\t [1]":    true,
		"{}":          false,
		"":            false,
		"  null":      false,
		" {\"a\":[]}": false,
	}
	for in, want := range tests {
		if got := isJSONArray([]byte(in)); got != want {
			t.Errorf("isJSONArray(%q) = %v, want %v", in, got, want)
		}
	}
}
