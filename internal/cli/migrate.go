package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/draft-staging-api/internal/app"
	"github.com/draft-staging-api/internal/config"
	"github.com/draft-staging-api/internal/database"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command and its up/down/to children.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres key-value schema",
	}
	cmd.PersistentFlags().StringVar(&path, "path", "", "migrations directory (default from config)")

	run := func(fn func(db *database.DB, path string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, log, err := rootOpts.setup(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cfg.Store.Backend != config.BackendPostgres {
				return fmt.Errorf("migrations apply to the postgres backend, store is %q", cfg.Store.Backend)
			}
			dir := path
			if dir == "" {
				dir = cfg.Database.MigrationsPath
			}
			return withDatabase(cfg, log, func(db *database.DB) error {
				return fn(db, dir)
			})
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:          "up",
		Short:        "Apply all pending migrations",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: run(func(db *database.DB, path string) error {
			return db.RunMigrations(path)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:          "down",
		Short:        "Roll back the last migration",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: run(func(db *database.DB, path string) error {
			return db.MigrateDown(path)
		}),
	})

	to := &cobra.Command{
		Use:          "to <version>",
		Short:        "Migrate up or down to a specific version",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
	}
	to.RunE = func(cmd *cobra.Command, args []string) error {
		version, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		return run(func(db *database.DB, path string) error {
			return db.MigrateToVersion(path, uint(version))
		})(cmd, args)
	}
	cmd.AddCommand(to)

	status := &cobra.Command{
		Use:          "status",
		Short:        "Show the applied schema version",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
	}
	status.RunE = func(cmd *cobra.Command, args []string) error {
		return run(func(db *database.DB, path string) error {
			version, dirty, ok, err := db.SchemaVersion(path)
			if err != nil {
				return err
			}
			return writeSchemaStatus(cmd.OutOrStdout(), rootOpts.Format, schemaStatus{Version: version, Dirty: dirty, Applied: ok})
		})(cmd, args)
	}
	cmd.AddCommand(status)

	return cmd
}

type schemaStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
	Applied bool `json:"applied"`
}

func writeSchemaStatus(w io.Writer, format string, s schemaStatus) error {
	if format == "json" {
		return writeJSON(w, s)
	}
	if !s.Applied {
		fmt.Fprintln(w, "No migrations applied")
		return nil
	}
	fmt.Fprintf(w, "Version: %d\n", s.Version)
	if s.Dirty {
		fmt.Fprintln(w, "Dirty:   yes, fix the failed migration and force the version")
	}
	return nil
}

func withDatabase(cfg *config.Config, log zerolog.Logger, fn func(db *database.DB) error) error {
	db, err := app.OpenDatabase(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}
