package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/user/ci-analysis-collector/pkg/config"
)

func newConfigCmd(o *cliOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the stored configuration (API token, webhook, SonarQube, archive)",
	}

	configCmd.AddCommand(
		newSetTokenCmd(o),
		newSetSonarCmd(o),
		newSetArchiveCmd(o),
		newShowCmd(o),
		newSetupCmd(o),
	)
	return configCmd
}

// updateConfig loads the config file, applies fn and saves it back. The
// environment is not applied so env-only secrets are never persisted.
func (o *cliOptions) updateConfig(fn func(*config.Config)) (string, error) {
	path := o.configPath()
	if path == "" {
		return "", errors.New("could not determine the config file location, use --config")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return path, err
	}
	fn(&cfg)
	if err := config.Save(path, cfg); err != nil {
		return path, fmt.Errorf("save config: %w", err)
	}
	return path, nil
}

func newSetTokenCmd(o *cliOptions) *cobra.Command {
	var token, webhook string

	cmd := &cobra.Command{
		Use:   "set-token",
		Short: "Store the Quantum Security API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				return usageError(cmd, "--token is required")
			}
			path, err := o.updateConfig(func(c *config.Config) {
				c.APIToken = token
				if webhook != "" {
					c.WebhookURL = webhook
				}
			})
			if err != nil {
				return failure(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "API token saved to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&token, "token", "t", "", "API token")
	cmd.Flags().StringVar(&webhook, "webhook", "", "Webhook URL to submit results to")
	return cmd
}

func newSetSonarCmd(o *cliOptions) *cobra.Command {
	var s config.SonarConfig

	cmd := &cobra.Command{
		Use:   "set-sonar",
		Short: "Store SonarQube connection settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := o.updateConfig(func(c *config.Config) {
				changed := cmd.Flags().Changed
				for flag, pair := range map[string][2]*string{
					"sonar-host":     {&c.Sonar.Host, &s.Host},
					"sonar-login":    {&c.Sonar.Login, &s.Login},
					"sonar-key":      {&c.Sonar.ProjectKey, &s.ProjectKey},
					"sonar-dir":      {&c.Sonar.ProjectDir, &s.ProjectDir},
					"sonar-username": {&c.Sonar.Username, &s.Username},
					"sonar-password": {&c.Sonar.Password, &s.Password},
				} {
					if changed(flag) {
						*pair[0] = *pair[1]
					}
				}
			})
			if err != nil {
				return failure(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "SonarQube settings saved to %s\n", path)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&s.Host, "sonar-host", "", "SonarQube server")
	flags.StringVar(&s.Login, "sonar-login", "", "Analysis token")
	flags.StringVar(&s.ProjectKey, "sonar-key", "", "Project key")
	flags.StringVar(&s.ProjectDir, "sonar-dir", "", "Project base directory")
	flags.StringVar(&s.Username, "sonar-username", "", "API user")
	flags.StringVar(&s.Password, "sonar-password", "", "API password")
	return cmd
}

func newSetArchiveCmd(o *cliOptions) *cobra.Command {
	var a config.ArchiveConfig

	cmd := &cobra.Command{
		Use:   "set-archive",
		Short: "Store S3/MinIO settings for archiving run payloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.Endpoint == "" || a.Bucket == "" {
				return usageError(cmd, "--endpoint and --bucket are required")
			}
			path, err := o.updateConfig(func(c *config.Config) {
				c.Archive = a
			})
			if err != nil {
				return failure(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archive settings saved to %s\n", path)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&a.Endpoint, "endpoint", "", "Object store endpoint (host:port)")
	flags.StringVar(&a.Region, "region", "", "Bucket region")
	flags.StringVar(&a.Bucket, "bucket", "", "Bucket name")
	flags.StringVar(&a.AccessKey, "access-key", "", "Access key")
	flags.StringVar(&a.SecretKey, "secret-key", "", "Secret key")
	flags.BoolVar(&a.UseSSL, "use-ssl", false, "Connect with TLS")
	return cmd
}

func newShowCmd(o *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := yaml.Marshal(o.cfg.Masked())
			if err != nil {
				return failure(cmd, err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func usageError(cmd *cobra.Command, msg string) error {
	fmt.Fprintln(cmd.ErrOrStderr(), "Error:", msg)
	return &exitError{code: ExitUsage, err: errors.New(msg)}
}

func failure(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
	return &exitError{code: ExitUnexpected, err: err}
}
