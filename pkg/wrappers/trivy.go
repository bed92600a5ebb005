package wrappers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/user/ci-analysis-collector/pkg/config"
	"github.com/user/ci-analysis-collector/pkg/result"
	"github.com/user/ci-analysis-collector/pkg/runner"
)

const containerLayerType = "container-layer"

// TrivyWrapper scans container images for known vulnerabilities
type TrivyWrapper struct {
	cfg  config.TrivyConfig
	exec runner.Executor
}

func NewTrivy(cfg config.TrivyConfig, exec runner.Executor) *TrivyWrapper {
	return &TrivyWrapper{cfg: cfg, exec: exec}
}

func (t *TrivyWrapper) ID() ToolID {
	return Trivy
}

func (t *TrivyWrapper) Version(ctx context.Context, opts runner.Options) (string, error) {
	return t.exec.Run(ctx, "trivy", []string{"--version"}, opts)
}

// Results scans each configured image in turn.
func (t *TrivyWrapper) Results(ctx context.Context, opts runner.Options) ([]result.Result, error) {
	if len(t.cfg.ImageNames) == 0 {
		return nil, &ConfigError{Flag: "image-name"}
	}

	results := make([]result.Result, 0)
	for _, image := range t.cfg.ImageNames {
		args := []string{"--quiet", "image", "--security-checks", "vuln,config", "--exit-code", "0", "-f", "json", "--light", image}
		output, err := t.exec.Run(ctx, "trivy", args, opts)
		if err != nil {
			return nil, execError("Trivy", err)
		}

		parsed, err := t.Parse([]byte(output))
		if err != nil {
			return nil, fmt.Errorf("image %s: %w", image, err)
		}
		results = append(results, parsed...)
	}
	return results, nil
}

type trivyLayer struct {
	Target          string               `json:"Target"`
	Vulnerabilities []trivyVulnerability `json:"Vulnerabilities"`
}

type trivyVulnerability struct {
	VulnerabilityID  string `json:"VulnerabilityID"`
	PkgName          string `json:"PkgName"`
	InstalledVersion string `json:"InstalledVersion"`
	Layer            struct {
		Digest string `json:"Digest"`
	} `json:"Layer"`
}

// Parse accepts the per-layer array or the report object that newer trivy
// releases wrap it in ({"Results": [...]}).
func (t *TrivyWrapper) Parse(raw []byte) ([]result.Result, error) {
	var layers []trivyLayer
	if isJSONArray(raw) {
		if err := json.Unmarshal(raw, &layers); err != nil {
			return nil, fmt.Errorf("parse trivy output: %w", err)
		}
	} else {
		var report struct {
			Results []trivyLayer `json:"Results"`
		}
		if err := json.Unmarshal(raw, &report); err != nil {
			return nil, fmt.Errorf("parse trivy output: %w", err)
		}
		layers = report.Results
	}

	results := make([]result.Result, 0, len(layers))
	for _, layer := range layers {
		if len(layer.Vulnerabilities) == 0 {
			results = append(results, result.Result{
				CheckID:     "vulnerabilities",
				CheckName:   "No vulnerabilities found.",
				CheckType:   containerLayerType,
				CheckResult: result.Pass,
				ResourceID:  result.ResourceID(layer.Target),
			})
			continue
		}

		for _, v := range layer.Vulnerabilities {
			resource := v.Layer.Digest
			if resource == "" {
				resource = layer.Target
			}
			results = append(results, result.Result{
				CheckID:         "vulnerabilities",
				CheckName:       v.VulnerabilityID,
				CheckType:       containerLayerType,
				CheckResult:     result.Fail,
				ResourceID:      result.ResourceID(resource),
				VulnerabilityID: v.VulnerabilityID,
				PackageName:     v.PkgName,
				PackageVersion:  v.InstalledVersion,
			})
		}
	}
	return results, nil
}
