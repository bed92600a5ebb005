package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/user/ci-analysis-collector/pkg/config"
	"github.com/user/ci-analysis-collector/pkg/logging"
	"github.com/user/ci-analysis-collector/pkg/report"
	"github.com/user/ci-analysis-collector/pkg/result"
	"github.com/user/ci-analysis-collector/pkg/runner"
	"github.com/user/ci-analysis-collector/pkg/runner/runnertest"
	"github.com/user/ci-analysis-collector/pkg/submit"
	"github.com/user/ci-analysis-collector/pkg/wrappers"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

type fakeTool struct {
	results    []result.Result
	err        error
	version    string
	versionErr error

	versionCalls int
	gotOpts      runner.Options
}

func (f *fakeTool) ID() wrappers.ToolID { return wrappers.Checkov }

func (f *fakeTool) Version(ctx context.Context, opts runner.Options) (string, error) {
	f.versionCalls++
	return f.version, f.versionErr
}

func (f *fakeTool) Results(ctx context.Context, opts runner.Options) ([]result.Result, error) {
	f.gotOpts = opts
	return f.results, f.err
}

func (f *fakeTool) Parse(raw []byte) ([]result.Result, error) { return nil, nil }

type fakeSubmitter struct {
	payloads []submit.Payload
	err      error
}

func (f *fakeSubmitter) Submit(ctx context.Context, p submit.Payload) error {
	f.payloads = append(f.payloads, p)
	return f.err
}

type fakeArchive struct {
	keys []string
	err  error
}

func (f *fakeArchive) Upload(ctx context.Context, key string, data []byte) (string, error) {
	f.keys = append(f.keys, key)
	return "http://archive/" + key, f.err
}

func sampleResults() []result.Result {
	return []result.Result{
		{CheckID: "CKV_1", CheckName: "first", CheckType: "terraform", CheckResult: result.Pass, ResourceID: "a"},
		{CheckID: "CKV_2", CheckName: "second", CheckType: "terraform", CheckResult: result.Fail, ResourceID: "b"},
	}
}

type harness struct {
	tool     *fakeTool
	sub      *fakeSubmitter
	exec     *runnertest.Executor
	out      *bytes.Buffer
	logs     *observer.ObservedLogs
	deps     Deps
	fixedNow time.Time
}

func newHarness(results []result.Result) *harness {
	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		tool:     &fakeTool{results: results, version: "3.2.1"},
		sub:      &fakeSubmitter{},
		exec:     runnertest.New(),
		out:      &bytes.Buffer{},
		logs:     logs,
		fixedNow: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h.deps = Deps{
		Exec:      h.exec,
		Logger:    logging.Wrap(zap.New(core)),
		Reporter:  &report.Reporter{Out: h.out},
		Submitter: h.sub,
		Now:       func() time.Time { return h.fixedNow },
	}
	return h
}

func TestNewWithoutTokenLogsNotice(t *testing.T) {
	h := newHarness(nil)
	c := New(h.tool, config.Default(), h.deps)

	if c.HasToken() {
		t.Error("expected no token")
	}
	if n := h.logs.FilterMessageSnippet("QS_API_TOKEN").Len(); n != 1 {
		t.Errorf("expected one hint about QS_API_TOKEN, got %d", n)
	}
	for _, e := range h.logs.All() {
		if e.Level != zapcore.InfoLevel {
			t.Errorf("token notice must be info level, got %s", e.Level)
		}
	}
}

func TestNewIdentity(t *testing.T) {
	h := newHarness(nil)
	a := New(h.tool, config.Default(), h.deps)
	b := New(h.tool, config.Default(), h.deps)

	if a.TraceID == "" || a.TraceID == b.TraceID {
		t.Errorf("expected distinct trace ids, got %q and %q", a.TraceID, b.TraceID)
	}
	if !a.Timestamp.Equal(h.fixedNow) {
		t.Errorf("expected timestamp %v, got %v", h.fixedNow, a.Timestamp)
	}
}

func TestExecWithoutTokenNeverSubmits(t *testing.T) {
	h := newHarness(sampleResults())
	c := New(h.tool, config.Default(), h.deps)

	passing, err := c.Exec(context.Background(), runner.Options{Dir: "/repo"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if passing {
		t.Error("expected a failing run")
	}
	if len(h.sub.payloads) != 0 {
		t.Error("results must not be submitted without a token")
	}
	if h.tool.versionCalls != 0 {
		t.Error("tool version must only be queried when submitting")
	}
	if h.exec.Count("git") != 0 {
		t.Error("git must only be queried when submitting")
	}
	if !strings.Contains(h.out.String(), "[FAIL] CKV_2: second") {
		t.Errorf("expected rendered results, got:\n%s", h.out.String())
	}
}

func TestExecSubmitsWithToken(t *testing.T) {
	h := newHarness(sampleResults())
	h.exec.On("git remote get-url origin", "git@github.com:acme/infra.git", nil)
	h.exec.On("git --no-pager log -n 1 --pretty=format:%H", "9fceb02d0ae598e95dc970b74767f19372d61af8", nil)

	cfg := config.Default()
	cfg.APIToken = "tok"
	c := New(h.tool, cfg, h.deps)

	results := h.tool.results
	passing, err := c.Exec(context.Background(), runner.Options{Dir: "/repo"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if passing {
		t.Error("expected a failing run")
	}

	if len(h.sub.payloads) != 1 {
		t.Fatalf("expected exactly one submission, got %d", len(h.sub.payloads))
	}
	p := h.sub.payloads[0]
	if p.TraceID != c.TraceID || p.ToolID != "checkov" || p.ToolVersion != "3.2.1" {
		t.Errorf("unexpected payload identity: %+v", p)
	}
	if p.RepositoryURL == nil || *p.RepositoryURL != "git@github.com:acme/infra.git" {
		t.Errorf("unexpected repository url %v", p.RepositoryURL)
	}
	if p.CommitHash == nil || *p.CommitHash != "9fceb02d0ae598e95dc970b74767f19372d61af8" {
		t.Errorf("unexpected commit hash %v", p.CommitHash)
	}
	for _, r := range p.Results {
		if r.CheckName != "" {
			t.Errorf("checkName must be cleared before submission, got %q", r.CheckName)
		}
	}
	if results[0].CheckName != "first" {
		t.Error("the caller's results must not be mutated")
	}
	if h.logs.FilterMessageSnippet("successfully submitted").Len() != 1 {
		t.Error("expected a success log line")
	}
}

func TestExecGitUnavailable(t *testing.T) {
	h := newHarness(sampleResults())
	cfg := config.Default()
	cfg.APIToken = "tok"

	if _, err := New(h.tool, cfg, h.deps).Exec(context.Background(), runner.Options{Dir: "/repo"}); err != nil {
		t.Fatalf("git failures must not abort the run: %v", err)
	}
	p := h.sub.payloads[0]
	if p.RepositoryURL != nil || p.CommitHash != nil {
		t.Errorf("expected null repository fields, got %v / %v", p.RepositoryURL, p.CommitHash)
	}
}

func TestExecErrors(t *testing.T) {
	toolErr := errors.New("error executing Checkov: boom")
	submitErr := errors.New("webhook returned status 500")
	versionErr := errors.New("checkov: command not found")

	tests := []struct {
		name    string
		setup   func(h *harness)
		wantErr error
	}{
		{"tool", func(h *harness) { h.tool.err = toolErr }, toolErr},
		{"submit", func(h *harness) { h.sub.err = submitErr }, submitErr},
		{"version", func(h *harness) { h.tool.versionErr = versionErr }, versionErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(sampleResults())
			tt.setup(h)
			cfg := config.Default()
			cfg.APIToken = "tok"

			_, err := New(h.tool, cfg, h.deps).Exec(context.Background(), runner.Options{Dir: "/repo"})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestExecPassing(t *testing.T) {
	tests := []struct {
		name   string
		status []result.Status
		want   bool
	}{
		{"empty", nil, true},
		{"pass_and_skip", []result.Status{result.Pass, result.Skipped}, true},
		{"fail", []result.Status{result.Pass, result.Fail}, false},
		{"errored", []result.Status{result.Errored}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rs []result.Result
			for _, s := range tt.status {
				rs = append(rs, result.Result{CheckID: "x", CheckResult: s})
			}
			h := newHarness(rs)
			passing, err := New(h.tool, config.Default(), h.deps).Exec(context.Background(), runner.Options{Dir: "/repo"})
			if err != nil {
				t.Fatal(err)
			}
			if passing != tt.want {
				t.Errorf("expected passing=%v, got %v", tt.want, passing)
			}
		})
	}
}

func TestExecDefaultsWorkingDirectory(t *testing.T) {
	h := newHarness(nil)
	wd, _ := os.Getwd()

	if _, err := New(h.tool, config.Default(), h.deps).Exec(context.Background(), runner.Options{}); err != nil {
		t.Fatal(err)
	}
	if h.tool.gotOpts.Dir != wd {
		t.Errorf("expected working dir %q, got %q", wd, h.tool.gotOpts.Dir)
	}
}

func TestExecArchive(t *testing.T) {
	h := newHarness(sampleResults())
	arch := &fakeArchive{err: errors.New("bucket unreachable")}
	h.deps.Archive = arch

	passing, err := New(h.tool, config.Default(), h.deps).Exec(context.Background(), runner.Options{Dir: "/repo"})
	if err != nil {
		t.Fatalf("archive failures must not abort the run: %v", err)
	}
	if passing {
		t.Error("expected a failing run")
	}
	if len(arch.keys) != 1 || !strings.HasPrefix(arch.keys[0], "checkov/20240301T120000Z-") {
		t.Errorf("unexpected archive keys %v", arch.keys)
	}
	if h.logs.FilterMessage("archive upload failed").Len() != 1 {
		t.Error("expected a warning about the failed upload")
	}
	if len(h.sub.payloads) != 0 {
		t.Error("archiving must not submit without a token")
	}
}

func TestExecSarif(t *testing.T) {
	h := newHarness(sampleResults())
	cfg := config.Default()
	cfg.APIToken = "tok"
	cfg.SarifFile = filepath.Join(t.TempDir(), "results.sarif")

	if _, err := New(h.tool, cfg, h.deps).Exec(context.Background(), runner.Options{Dir: "/repo"}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(cfg.SarifFile)
	if err != nil {
		t.Fatal(err)
	}
	var log struct {
		Runs []struct {
			Tool struct {
				Driver struct {
					Name    string `json:"name"`
					Version string `json:"version"`
				} `json:"driver"`
			} `json:"tool"`
			Results []json.RawMessage `json:"results"`
		} `json:"runs"`
	}
	if err := json.Unmarshal(data, &log); err != nil {
		t.Fatal(err)
	}
	if log.Runs[0].Tool.Driver.Version != "3.2.1" || len(log.Runs[0].Results) != 1 {
		t.Errorf("unexpected sarif run: %s", data)
	}
}
