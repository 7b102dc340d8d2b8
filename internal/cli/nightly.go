package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewNightlyCommand creates the nightly command.
func NewNightlyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "nightly",
		Short:         "Trigger the deploy hook when drafts or deletions are pending",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := rootOpts.setup(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a, err := rootOpts.OpenApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Services.Build.Nightly(cmd.Context())
			if err != nil {
				return fmt.Errorf("nightly check failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				return writeJSON(out, result)
			}
			fmt.Fprintln(out, result.Message)
			if result.Triggered {
				fmt.Fprintf(out, "Pending drafts: %d, deletions: %d\n", result.TempPosts, result.Deletions)
				if result.DeploymentURL != "" {
					fmt.Fprintf(out, "Deployment: %s\n", result.DeploymentURL)
				}
			}
			return nil
		},
	}

	return cmd
}
