package cli

import (
	"fmt"
	"io"

	"github.com/draft-staging-api/internal/app"
	"github.com/draft-staging-api/internal/config"
	"github.com/draft-staging-api/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// LoadConfig and OpenApp are replaced in tests
	LoadConfig func() (*config.Config, error)
	OpenApp    func(cfg *config.Config, log zerolog.Logger) (*app.App, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for contentctl.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWith(&RootOptions{
		LoadConfig: config.Load,
		OpenApp: func(cfg *config.Config, log zerolog.Logger) (*app.App, error) {
			return app.Open(cfg, nil, log)
		},
	})
}

// NewRootCommandWith creates the root command around opts.
func NewRootCommandWith(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contentctl",
		Short: "contentctl - draft staging build tool",
		Long:  "Build-time operations for the draft staging service: materialize drafts into the content tree, run the nightly check, and manage the database schema.",
		// main prints the error once
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	// Add subcommands
	cmd.AddCommand(NewMaterializeCommand(opts))
	cmd.AddCommand(NewNightlyCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// setup loads configuration and builds a logger writing to stderr, so JSON
// output on stdout stays clean
func (o *RootOptions) setup(errOut io.Writer) (*config.Config, zerolog.Logger, error) {
	cfg, err := o.LoadConfig()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	level := cfg.Log.Level
	if o.Verbose {
		level = "debug"
	} else if level == "" || level == "info" {
		level = "warn"
	}
	log := logger.NewWithWriter(errOut, logger.Options{Level: level, Format: cfg.Log.Format, Env: cfg.Env})
	return cfg, log, nil
}
