package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/ci-analysis-collector/pkg/config"
	"github.com/user/ci-analysis-collector/pkg/logging"
	"github.com/user/ci-analysis-collector/pkg/runner"
	"github.com/user/ci-analysis-collector/pkg/wrappers"
)

// Process exit codes
const (
	ExitOK           = 0
	ExitUsage        = 1
	ExitChecksFailed = 2
	ExitUnexpected   = -1
)

// exitError carries the exit code of a failed command. The message has
// already been logged when it reaches Execute.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// cliOptions holds the raw flag values of one invocation
type cliOptions struct {
	path       string
	softFail   bool
	quiet      bool
	webhookURL string
	logLevel   string
	debug      bool
	sarifFile  string
	configFile string

	trivy config.TrivyConfig
	zap   config.ZapConfig
	sonar config.SonarConfig

	cfg    config.Config
	logger *logging.Logger
	out    io.Writer
}

// Overridden in tests
var (
	newExecutor = func(l *logging.Logger) runner.Executor { return runner.New(l) }
	getenv      = os.Getenv
)

// Execute runs the command line and returns the process exit code.
func Execute() int {
	return run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	c, err := root.ExecuteC()
	if err == nil {
		return ExitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}

	// flag parsing and other cobra errors
	if c == nil {
		c = root
	}
	fmt.Fprintln(stderr, "Error:", err)
	fmt.Fprint(stderr, c.UsageString())
	return ExitUsage
}

func newRootCmd(out io.Writer) *cobra.Command {
	o := &cliOptions{out: out}

	root := &cobra.Command{
		Use:   "ci-collector <tool>",
		Short: "Run a security scanner and collect its results",
		Long: `ci-collector runs one of the supported analysis tools (checkov, trivy,
OWASP ZAP, SonarQube), prints a normalized report and submits the results
to the Quantum Security platform when QS_API_TOKEN is set.`,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.prepare(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.unknownTool(args)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&o.path, "path", ".", "Directory the tool is run in")
	flags.BoolVar(&o.softFail, "soft-fail", false, "Exit 0 even when checks fail (env "+config.EnvSoftFail+", false/0 turns it off)")
	flags.BoolVar(&o.quiet, "quiet", false, "Only print failing, errored and skipped checks (env "+config.EnvQuiet+", false/0 turns it off)")
	flags.StringVar(&o.webhookURL, "webhook-url", config.DefaultWebhookURL, "Results webhook (env "+config.EnvWebhookURL+")")
	flags.StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warning, error")
	flags.BoolVar(&o.debug, "debug", false, "Enable debug logging")
	flags.StringVar(&o.sarifFile, "sarif", "", "Also write failing results as SARIF 2.1.0 to this file")
	flags.StringVar(&o.configFile, "config", "", "Config file (default ~/.ci-collector/config.yaml)")

	for _, id := range wrappers.Tools() {
		root.AddCommand(newToolCmd(id, o))
	}
	root.AddCommand(newConfigCmd(o))
	return root
}

// prepare builds the logger and the merged configuration for every command
func (o *cliOptions) prepare(cmd *cobra.Command) error {
	cfg, err := o.buildConfig(cmd)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return &exitError{code: ExitUsage, err: err}
	}

	level := cfg.LogLevel
	if o.debug {
		level = "debug"
	}
	logger, err := logging.New(level)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return &exitError{code: ExitUsage, err: err}
	}

	o.cfg = cfg
	o.logger = logger
	return nil
}

func (o *cliOptions) configPath() string {
	if o.configFile != "" {
		return o.configFile
	}
	path, err := config.GetConfigPath()
	if err != nil {
		return ""
	}
	return path
}

// buildConfig layers defaults, the config file, the environment and
// explicitly set flags, in that order.
func (o *cliOptions) buildConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if path := o.configPath(); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	config.ApplyEnv(&cfg, getenv)

	changed := cmd.Flags().Changed
	set := func(flag string, dst *string, v string) {
		if changed(flag) {
			*dst = v
		}
	}

	cfg.Path = o.path
	cfg.SarifFile = o.sarifFile
	if o.softFail {
		cfg.SoftFail = true
	}
	if o.quiet {
		cfg.Quiet = true
	}
	set("webhook-url", &cfg.WebhookURL, o.webhookURL)
	set("log-level", &cfg.LogLevel, o.logLevel)

	if changed("image-name") {
		cfg.Trivy.ImageNames = o.trivy.ImageNames
	}
	set("target-name", &cfg.Zap.TargetName, o.zap.TargetName)
	set("report-file", &cfg.Zap.ReportFile, o.zap.ReportFile)

	set("host", &cfg.Sonar.Host, o.sonar.Host)
	set("login", &cfg.Sonar.Login, o.sonar.Login)
	set("project-key", &cfg.Sonar.ProjectKey, o.sonar.ProjectKey)
	set("proj-dir", &cfg.Sonar.ProjectDir, o.sonar.ProjectDir)
	set("username", &cfg.Sonar.Username, o.sonar.Username)
	set("password", &cfg.Sonar.Password, o.sonar.Password)

	return cfg, nil
}

func (o *cliOptions) unknownTool(args []string) error {
	log := o.logger
	if len(args) == 0 {
		log.Error("No tool specified to instrument.")
		log.Info("You must specify the tool as a positional argument.")
		log.Info("Example:")
		log.Info("  ci-collector <tool>")
		return &exitError{code: ExitUsage, err: errors.New("no tool specified")}
	}

	log.Errorf("The specified tool %q is not supported.", args[0])
	log.Info("Specify one of the following supported tools for instrumentation:")
	for _, id := range wrappers.Tools() {
		log.Infof("  • %s", id)
	}
	return &exitError{code: ExitUsage, err: fmt.Errorf("unsupported tool %q", args[0])}
}
