package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/ci-analysis-collector/pkg/archive"
	"github.com/user/ci-analysis-collector/pkg/collector"
	"github.com/user/ci-analysis-collector/pkg/config"
	"github.com/user/ci-analysis-collector/pkg/report"
	"github.com/user/ci-analysis-collector/pkg/runner"
	"github.com/user/ci-analysis-collector/pkg/wrappers"
)

var toolDescriptions = map[wrappers.ToolID]string{
	wrappers.Checkov:   "Scan infrastructure as code in --path with checkov",
	wrappers.Trivy:     "Scan container images for vulnerabilities with trivy",
	wrappers.Zap:       "Run an OWASP ZAP full scan against a web target",
	wrappers.SonarQube: "Analyze a project with sonar-scanner and collect its issues",
}

func newToolCmd(id wrappers.ToolID, o *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(id),
		Short: toolDescriptions[id],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.collect(cmd.Context(), id)
		},
	}

	flags := cmd.Flags()
	switch id {
	case wrappers.Trivy:
		flags.StringSliceVar(&o.trivy.ImageNames, "image-name", nil, "Image to scan (repeatable or comma separated)")
	case wrappers.Zap:
		flags.StringVar(&o.zap.TargetName, "target-name", "", "URL of the site to scan")
		flags.StringVar(&o.zap.ReportFile, "report-file", "zapreport.json", "JSON report written by zap-full-scan.py, relative to --path")
	case wrappers.SonarQube:
		flags.StringVar(&o.sonar.Login, "login", "", "SonarQube analysis token (env "+config.EnvSonarLogin+")")
		flags.StringVar(&o.sonar.ProjectKey, "project-key", "", "SonarQube project key (env "+config.EnvSonarKey+")")
		flags.StringVar(&o.sonar.ProjectDir, "proj-dir", "", "Project base directory passed to sonar-scanner")
		flags.StringVar(&o.sonar.Username, "username", "", "SonarQube API user (env "+config.EnvSonarUsername+")")
		flags.StringVar(&o.sonar.Password, "password", "", "SonarQube API password (env "+config.EnvSonarPassword+")")
		flags.StringVar(&o.sonar.Host, "host", "", "SonarQube server, default localhost:9000 (env "+config.EnvSonarHost+")")
	}
	return cmd
}

// collect runs one tool end to end and maps the outcome onto an exit code
func (o *cliOptions) collect(ctx context.Context, id wrappers.ToolID) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log := o.cfg, o.logger

	if err := config.ValidatePath(cfg.Path); err != nil {
		log.Error("The supplied --path argument does not exist.")
		log.Infof("%s could not be found.", cfg.Path)
		return &exitError{code: ExitUsage, err: err}
	}

	exec := newExecutor(log)
	tool, err := wrappers.New(id, cfg, exec)
	if err != nil {
		log.Error(err)
		return &exitError{code: ExitUsage, err: err}
	}

	deps := collector.Deps{
		Exec:     exec,
		Logger:   log,
		Reporter: &report.Reporter{Out: o.out, Quiet: cfg.Quiet},
	}
	if cfg.Archive.Enabled() {
		store, err := archive.New(ctx, cfg.Archive)
		if err != nil {
			log.Warnw("result archive disabled", "error", err)
		} else {
			deps.Archive = store
		}
	}

	log.Infof("Running tool %q...", id)
	passing, err := collector.New(tool, cfg, deps).Exec(ctx, runner.Options{Dir: cfg.Path})
	if err != nil {
		var ce *wrappers.ConfigError
		if errors.As(err, &ce) {
			log.Error(err)
			return &exitError{code: ExitUsage, err: err}
		}
		log.Error("An error occurred during tool execution or analysis data collection:")
		log.Error(err)
		return &exitError{code: ExitUnexpected, err: err}
	}

	if !passing && !cfg.SoftFail {
		log.Errorf("One or more %s checks failed or errored.", id)
		return &exitError{code: ExitChecksFailed, err: fmt.Errorf("%s checks failed", id)}
	}

	log.Successf("%s analysis run and collection completed successfully.", id)
	return nil
}
