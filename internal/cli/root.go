// Package cli implements the relmodel command tree.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	// database/sql drivers selectable through database.driver.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/mickamy/relmodel/internal/config"
)

// options holds the persistent flags and what PersistentPreRunE builds
// from them.
type options struct {
	configPath string
	driver     string
	dsn        string
	verbose    bool

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCmd constructs the root command with all subcommands attached.
func NewRootCmd(version string) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:     "relmodel",
		Version: version,
		Short:   "relmodel - relationship lifecycle samples over an in-memory entity store",
		Long: "relmodel walks one-to-one, one-to-many and many-to-many sample models through " +
			"create, query, update and delete, mirroring every commit to a SQL database.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default $"+config.EnvPath+" or ./"+config.FileName+")")
	flags.StringVar(&opts.driver, "driver", "", "database/sql driver: sqlite, mysql or pgx")
	flags.StringVar(&opts.dsn, "dsn", "", "data source name for the driver")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log every commit and SQL statement")

	cmd.AddCommand(newOneToOneCmd(opts))
	cmd.AddCommand(newOneToManyCmd(opts))
	cmd.AddCommand(newManyToManyCmd(opts))
	cmd.AddCommand(newSchemaCmd(opts))
	return cmd
}

// Execute runs the CLI entrypoint.
func Execute(version string) {
	if err := NewRootCmd(version).Execute(); err != nil {
		exitCode := 1
		var cerr CommandError
		if errors.As(err, &cerr) {
			msg := strings.TrimSpace(cerr.Message)
			if msg != "" {
				fmt.Fprintln(os.Stderr, msg)
			}
			if cerr.Suggestion != "" {
				fmt.Fprintln(os.Stderr, formatSuggestion(cerr.Suggestion))
			}
			exitCode = cerr.ExitStatus()
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCode)
	}
}

// load reads the config file, applies flag overrides and builds the
// logger.
func (o *options) load(cmd *cobra.Command) error {
	cfg, path, err := config.Load(o.configPath)
	if err != nil {
		return wrapError(fmt.Sprintf("config: %v", err), err, "Check --config or $"+config.EnvPath+".", 2)
	}
	cfg.UseDriver(o.driver)
	if o.dsn != "" {
		cfg.Database.DSN = o.dsn
	}
	if err := cfg.Validate(); err != nil {
		return wrapError(fmt.Sprintf("config: %v", err), err, "Pass --dsn or set database.dsn.", 2)
	}

	logger, err := cfg.Log.Logger(cmd.ErrOrStderr(), o.verbose)
	if err != nil {
		return wrapError("", err, "", 2)
	}
	o.cfg = cfg
	o.logger = logger
	if path != "" {
		logger.Debug("config loaded", "path", path)
	}
	return nil
}
