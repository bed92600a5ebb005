package wrappers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/user/ci-analysis-collector/pkg/config"
	"github.com/user/ci-analysis-collector/pkg/result"
	"github.com/user/ci-analysis-collector/pkg/runner"
)

const websiteType = "website"

// ZapWrapper runs an OWASP ZAP full scan against a target URL. ZAP's
// stdout is progress only; results come from the JSON report it writes.
type ZapWrapper struct {
	cfg  config.ZapConfig
	exec runner.Executor

	readFile func(string) ([]byte, error)
}

func NewZap(cfg config.ZapConfig, exec runner.Executor) *ZapWrapper {
	if cfg.ReportFile == "" {
		cfg.ReportFile = "zapreport.json"
	}
	return &ZapWrapper{cfg: cfg, exec: exec, readFile: os.ReadFile}
}

func (z *ZapWrapper) ID() ToolID {
	return Zap
}

func (z *ZapWrapper) Version(ctx context.Context, opts runner.Options) (string, error) {
	return z.exec.Run(ctx, "zap.sh", []string{"-cmd", "-version"}, opts)
}

func (z *ZapWrapper) Results(ctx context.Context, opts runner.Options) ([]result.Result, error) {
	if z.cfg.TargetName == "" {
		return nil, &ConfigError{Flag: "target-name"}
	}

	args := []string{"-t", z.cfg.TargetName, "-J", z.cfg.ReportFile, "-s"}
	if _, err := z.exec.Run(ctx, "zap-full-scan.py", args, opts); err != nil {
		return nil, execError("Zap", err)
	}

	reportPath := z.cfg.ReportFile
	if !filepath.IsAbs(reportPath) {
		reportPath = filepath.Join(opts.Dir, reportPath)
	}
	data, err := z.readFile(reportPath)
	if err != nil {
		return nil, fmt.Errorf("read zap report: %w", err)
	}
	return z.Parse(data)
}

type zapSite struct {
	Name   string     `json:"name"`
	AtName string     `json:"@name"`
	Alerts []zapAlert `json:"alerts"`
}

func (s zapSite) name() string {
	if s.Name != "" {
		return s.Name
	}
	return s.AtName
}

type zapAlert struct {
	PluginID  string       `json:"pluginid"`
	Alert     string       `json:"alert"`
	Instances zapInstances `json:"instances"`
}

type zapInstance struct {
	URI    string `json:"uri"`
	Method string `json:"method"`
}

// zapInstances decodes either a single instance object or a list
type zapInstances []zapInstance

func (z *zapInstances) UnmarshalJSON(data []byte) error {
	if isJSONArray(data) {
		var list []zapInstance
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*z = list
		return nil
	}

	var single *zapInstance
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	if single != nil {
		*z = zapInstances{*single}
	}
	return nil
}

// Parse accepts an array of per-target summaries or ZAP's native report
// envelope ({"site": [...]}).
func (z *ZapWrapper) Parse(raw []byte) ([]result.Result, error) {
	var sites []zapSite
	if isJSONArray(raw) {
		if err := json.Unmarshal(raw, &sites); err != nil {
			return nil, fmt.Errorf("parse zap report: %w", err)
		}
	} else {
		var report struct {
			Site []zapSite `json:"site"`
		}
		if err := json.Unmarshal(raw, &report); err != nil {
			return nil, fmt.Errorf("parse zap report: %w", err)
		}
		sites = report.Site
	}

	results := make([]result.Result, 0, len(sites))
	for _, site := range sites {
		if len(site.Alerts) == 0 {
			results = append(results, result.Result{
				CheckID:     "vulnerabilities",
				CheckName:   "No vulnerabilities found.",
				CheckType:   websiteType,
				CheckResult: result.Pass,
				ResourceID:  result.ResourceID(site.name()),
			})
			continue
		}

		for _, alert := range site.Alerts {
			var instance zapInstance
			if len(alert.Instances) > 0 {
				instance = alert.Instances[0]
			}
			results = append(results, result.Result{
				CheckID:     alert.PluginID,
				CheckName:   alert.Alert,
				CheckType:   websiteType,
				CheckResult: result.Fail,
				ResourceID:  result.ResourceID(instance.URI),
				CheckMethod: instance.Method,
			})
		}
	}
	return results, nil
}
