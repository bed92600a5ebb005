package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/user/ci-analysis-collector/pkg/archive"
	"github.com/user/ci-analysis-collector/pkg/config"
	"github.com/user/ci-analysis-collector/pkg/logging"
	"github.com/user/ci-analysis-collector/pkg/report"
	"github.com/user/ci-analysis-collector/pkg/result"
	"github.com/user/ci-analysis-collector/pkg/runner"
	"github.com/user/ci-analysis-collector/pkg/sarif"
	"github.com/user/ci-analysis-collector/pkg/submit"
	"github.com/user/ci-analysis-collector/pkg/wrappers"
)

// Submitter delivers a run payload to the collection endpoint
type Submitter interface {
	Submit(ctx context.Context, p submit.Payload) error
}

// Archiver stores a copy of a run payload
type Archiver interface {
	Upload(ctx context.Context, key string, data []byte) (string, error)
}

// Deps are the collaborators of a Collector. Zero values are replaced with
// the production implementations.
type Deps struct {
	Exec      runner.Executor
	Logger    *logging.Logger
	Reporter  *report.Reporter
	Submitter Submitter
	Archive   Archiver
	Now       func() time.Time
}

// Collector runs one tool and reports, archives and submits its results
type Collector struct {
	TraceID   string
	Timestamp time.Time

	tool wrappers.Tool
	cfg  config.Config
	deps Deps

	version *string
}

func New(tool wrappers.Tool, cfg config.Config, deps Deps) *Collector {
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Exec == nil {
		deps.Exec = runner.New(deps.Logger)
	}
	if deps.Reporter == nil {
		deps.Reporter = report.New(cfg.Quiet)
	}
	if deps.Submitter == nil && cfg.APIToken != "" {
		deps.Submitter = submit.New(cfg.WebhookURL, cfg.APIToken)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	c := &Collector{
		TraceID:   uuid.New().String(),
		Timestamp: deps.Now().UTC(),
		tool:      tool,
		cfg:       cfg,
		deps:      deps,
	}
	c.detectAPIToken()
	return c
}

func (c *Collector) detectAPIToken() {
	if c.cfg.APIToken != "" {
		return
	}
	log := c.deps.Logger
	log.Info("No Quantum API token detected on the environment.")
	log.Info("Some reporting and lifecycle management features may not be available.")
	log.Infof("You can add your token via the %s environment variable.", config.EnvAPIToken)
}

// HasToken reports whether results will be submitted
func (c *Collector) HasToken() bool {
	return c.cfg.APIToken != ""
}

// Exec runs the tool and handles its results. passing is false when any
// result is FAIL or ERRORED.
func (c *Collector) Exec(ctx context.Context, opts runner.Options) (bool, error) {
	if opts.Dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return false, fmt.Errorf("resolve working directory: %w", err)
		}
		opts.Dir = wd
	}

	log := c.deps.Logger
	results, err := c.tool.Results(ctx, opts)
	if err != nil {
		return false, err
	}

	if data, err := json.MarshalIndent(results, "", "  "); err == nil {
		log.Debug(string(data))
	}

	if err := c.deps.Reporter.Print(results); err != nil {
		return false, fmt.Errorf("print results: %w", err)
	}

	var payload *submit.Payload
	if c.deps.Archive != nil || c.HasToken() {
		p, err := c.buildPayload(ctx, opts, results)
		if err != nil {
			return false, err
		}
		payload = &p
	}

	if c.cfg.SarifFile != "" {
		if err := c.exportSarif(results); err != nil {
			return false, err
		}
	}

	if payload != nil && c.deps.Archive != nil {
		c.archive(ctx, *payload)
	}
	if payload != nil && c.HasToken() {
		if err := c.submit(ctx, *payload); err != nil {
			return false, err
		}
	}

	passing := result.Passing(results)
	log.Infof("%s: %s", c.tool.ID(), result.Summarize(results))
	return passing, nil
}

// toolVersion queries the tool version once per run
func (c *Collector) toolVersion(ctx context.Context, opts runner.Options) (string, error) {
	if c.version != nil {
		return *c.version, nil
	}
	v, err := c.tool.Version(ctx, opts)
	if err != nil {
		return "", fmt.Errorf("get %s version: %w", c.tool.ID(), err)
	}
	c.version = &v
	return v, nil
}

func (c *Collector) buildPayload(ctx context.Context, opts runner.Options, results []result.Result) (submit.Payload, error) {
	version, err := c.toolVersion(ctx, opts)
	if err != nil {
		if c.HasToken() {
			return submit.Payload{}, err
		}
		c.deps.Logger.Warnw("could not determine tool version", "error", err)
	}

	// checkName is console only; the caller's slice is left untouched
	stripped := make([]result.Result, len(results))
	copy(stripped, results)
	for i := range stripped {
		stripped[i].CheckName = ""
	}

	return submit.Payload{
		TraceID:       c.TraceID,
		Timestamp:     c.Timestamp,
		ToolID:        string(c.tool.ID()),
		ToolVersion:   version,
		RepositoryURL: runner.RepositoryURL(ctx, c.deps.Exec, opts),
		CommitHash:    runner.RepositoryHead(ctx, c.deps.Exec, opts),
		Results:       stripped,
	}, nil
}

func (c *Collector) submit(ctx context.Context, payload submit.Payload) error {
	log := c.deps.Logger
	log.Info("Submitting results to the Quantum Security platform...")
	log.Debugw("sending webhook event", "url", c.cfg.WebhookURL, "traceId", payload.TraceID)

	if err := c.deps.Submitter.Submit(ctx, payload); err != nil {
		return err
	}
	log.Success("Results successfully submitted to the Quantum Security platform.")
	return nil
}

func (c *Collector) archive(ctx context.Context, payload submit.Payload) {
	log := c.deps.Logger

	data, err := json.Marshal(payload)
	if err != nil {
		log.Warnw("could not encode payload for archive", "error", err)
		return
	}
	key := archive.Key(payload.ToolID, payload.Timestamp, payload.TraceID)
	url, err := c.deps.Archive.Upload(ctx, key, data)
	if err != nil {
		log.Warnw("archive upload failed", "key", key, "error", err)
		return
	}
	log.Debugw("archived results", "url", url)
}

func (c *Collector) exportSarif(results []result.Result) error {
	var version string
	if c.version != nil {
		version = *c.version
	}
	if err := sarif.Export(c.cfg.SarifFile, results, string(c.tool.ID()), version); err != nil {
		return err
	}
	c.deps.Logger.Debugw("wrote sarif report", "file", c.cfg.SarifFile)
	return nil
}
