package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/draft-staging-api/internal/models"
	"github.com/spf13/cobra"
)

// NewMaterializeCommand creates the materialize command.
func NewMaterializeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "materialize",
		Short: "Write staged drafts into the content tree and apply deletions",
		Long: `Drain every staged draft into its markdown file and remove the static
articles marked for deletion.

Per-item failures are reported but do not fail the command; the affected
drafts and markers stay queued for the next run. The command exits non-zero
only when the draft index cannot be read.`,
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

			result, err := a.Services.Materializer.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("materialization failed: %w", err)
			}
			return writeMaterializeResult(cmd.OutOrStdout(), rootOpts.Format, result)
		},
	}

	return cmd
}

func writeMaterializeResult(w io.Writer, format string, result *models.MaterializeResult) error {
	if format == "json" {
		return writeJSON(w, result)
	}
	fmt.Fprintf(w, "Processed: %d\n", result.Processed)
	fmt.Fprintf(w, "Deleted:   %d\n", result.Deleted)
	if len(result.Errors) > 0 {
		fmt.Fprintf(w, "Errors:    %d\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
