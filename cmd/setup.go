package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/ci-analysis-collector/pkg/config"
)

func newSetupCmd(o *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			scanner := bufio.NewScanner(cmd.InOrStdin())
			out := cmd.OutOrStdout()
			ask := func(prompt string) string {
				fmt.Fprint(out, prompt)
				scanner.Scan()
				return strings.TrimSpace(scanner.Text())
			}

			fmt.Fprintln(out, "Welcome to the CI Analysis Collector Setup Wizard")
			fmt.Fprintln(out, "-------------------------------------------------")

			// 1. API token
			fmt.Fprintln(out, "Step 1: Enter your Quantum Security API token")
			fmt.Fprintf(out, "Leave empty to rely on the %s environment variable.\n", config.EnvAPIToken)
			token := ask("> ")

			// 2. Webhook
			fmt.Fprintf(out, "\nStep 2: Webhook URL [%s]\n", config.DefaultWebhookURL)
			webhook := ask("> ")

			// 3. SonarQube
			fmt.Fprintln(out, "\nStep 3: Configure SonarQube? (y/N)")
			var sonar *config.SonarConfig
			if answer := strings.ToLower(ask("> ")); answer == "y" || answer == "yes" {
				sonar = &config.SonarConfig{
					Host:     ask("Host [localhost:9000] > "),
					Login:    ask("Analysis token > "),
					Username: ask("API user > "),
					Password: ask("API password > "),
				}
			}

			// 4. Save
			fmt.Fprintln(out, "\nStep 4: Saving Configuration...")
			path, err := o.updateConfig(func(c *config.Config) {
				if token != "" {
					c.APIToken = token
				}
				if webhook != "" {
					c.WebhookURL = webhook
				}
				if sonar != nil {
					sonar.ProjectKey = c.Sonar.ProjectKey
					sonar.ProjectDir = c.Sonar.ProjectDir
					c.Sonar = *sonar
				}
			})
			if err != nil {
				return failure(cmd, err)
			}

			fmt.Fprintln(out, "-------------------------------------------------")
			fmt.Fprintln(out, "Setup Complete!")
			fmt.Fprintf(out, "Config:  %s\n", path)
			fmt.Fprintln(out, "You can now run 'ci-collector <tool>'")
			return nil
		},
	}
}
