package wrappers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/user/ci-analysis-collector/pkg/config"
	"github.com/user/ci-analysis-collector/pkg/result"
	"github.com/user/ci-analysis-collector/pkg/runner"
	"github.com/user/ci-analysis-collector/pkg/runner/runnertest"
)

const zapFixture = `[{
  "name": "http://example.test",
  "alerts": [{
    "pluginid": "10038",
    "alert": "Content Security Policy (CSP) Header Not Set",
    "instances": [{"uri": "http://example.test/login", "method": "GET"}, {"uri": "http://example.test/", "method": "GET"}]
  }, {
    "pluginid": "10020",
    "alert": "Missing Anti-clickjacking Header",
    "instances": {"uri": "http://example.test/admin", "method": "POST"}
  }]
}, {
  "name": "http://static.example.test",
  "alerts": []
}]`

func TestZapParse(t *testing.T) {
	results, err := NewZap(config.ZapConfig{}, nil).Parse([]byte(zapFixture))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []result.Result{
		{
			CheckID:     "10038",
			CheckName:   "Content Security Policy (CSP) Header Not Set",
			CheckType:   "website",
			CheckResult: result.Fail,
			ResourceID:  "http://example.test/login",
			CheckMethod: "GET",
		},
		{
			CheckID:     "10020",
			CheckName:   "Missing Anti-clickjacking Header",
			CheckType:   "website",
			CheckResult: result.Fail,
			ResourceID:  "http://example.test/admin",
			CheckMethod: "POST",
		},
		{
			CheckID:     "vulnerabilities",
			CheckName:   "No vulnerabilities found.",
			CheckType:   "website",
			CheckResult: result.Pass,
			ResourceID:  "http://static.example.test",
		},
	}
	if !reflect.DeepEqual(results, want) {
		t.Errorf("expected %+v\ngot %+v", want, results)
	}
}

func TestZapParseNativeReport(t *testing.T) {
	raw := `{"@version": "2.14.0", "site": [{"@name": "https://app.test", "alerts": [{"pluginid": "1", "alert": "A", "instances": []}]}]}`
	results, err := NewZap(config.ZapConfig{}, nil).Parse([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].ResourceID != result.UnknownResource {
		t.Errorf("expected unknown resource for an alert without instances, got %q", results[0].ResourceID)
	}
}

func TestZapResultsRequiresTarget(t *testing.T) {
	fake := runnertest.New()
	_, err := NewZap(config.ZapConfig{}, fake).Results(context.Background(), runner.Options{})

	var ce *ConfigError
	if !errors.As(err, &ce) || ce.Flag != "target-name" {
		t.Fatalf("expected target-name config error, got %v", err)
	}
	if err.Error() != "you must specify a --target-name argument" {
		t.Errorf("unexpected message: %s", err.Error())
	}
	if len(fake.Calls) != 0 {
		t.Error("zap must not be started without a target")
	}
}

func TestZapResultsReadsReport(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "zapreport.json"), []byte(zapFixture), 0644); err != nil {
		t.Fatal(err)
	}

	fake := runnertest.New().On("zap-full-scan.py", "scan progress...", nil)
	z := NewZap(config.ZapConfig{TargetName: "http://example.test"}, fake)

	results, err := z.Results(context.Background(), runner.Options{Dir: dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("expected 3 results, got %d", len(results))
	}

	wantArgs := []string{"-t", "http://example.test", "-J", "zapreport.json", "-s"}
	if len(fake.Calls) != 1 || !reflect.DeepEqual(fake.Calls[0].Args, wantArgs) {
		t.Errorf("unexpected calls: %+v", fake.Calls)
	}
}

func TestZapResultsAbsoluteReportPath(t *testing.T) {
	var read string
	fake := runnertest.New().On("zap-full-scan.py", "", nil)
	z := NewZap(config.ZapConfig{TargetName: "http://example.test", ReportFile: "/zap/wrk/out.json"}, fake)
	z.readFile = func(path string) ([]byte, error) {
		read = path
		return []byte(`[]`), nil
	}

	if _, err := z.Results(context.Background(), runner.Options{Dir: "/somewhere/else"}); err != nil {
		t.Fatal(err)
	}
	if read != "/zap/wrk/out.json" {
		t.Errorf("expected absolute report path to be used as-is, got %q", read)
	}
}

func TestZapResultsScanFailure(t *testing.T) {
	fake := runnertest.New().On("zap-full-scan.py", "", &runner.ExitError{Command: "zap-full-scan.py", Code: 3})
	z := NewZap(config.ZapConfig{TargetName: "http://example.test"}, fake)
	z.readFile = func(string) ([]byte, error) {
		t.Fatal("report must not be read after a failed scan")
		return nil, nil
	}

	_, err := z.Results(context.Background(), runner.Options{})
	if err == nil || err.Error() != "error executing Zap: zap-full-scan.py exited with status code 3" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestZapResultsMissingReport(t *testing.T) {
	fake := runnertest.New().On("zap-full-scan.py", "", nil)
	z := NewZap(config.ZapConfig{TargetName: "http://example.test"}, fake)

	_, err := z.Results(context.Background(), runner.Options{Dir: t.TempDir()})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected a not-exist error, got %v", err)
	}
}
