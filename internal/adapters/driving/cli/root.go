// Package cli implements the algosync command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/algosync/internal/app"
	"github.com/custodia-labs/algosync/internal/logger"
)

// version is set at build time.
var version = "dev"

var (
	configPath string
	dataDir    string
	verbose    bool
	dryRun     bool
)

// application is the wired app shared by commands. Tests set it directly.
var application *app.App

// bootstrap builds the application from the global flags.
var bootstrap = app.Build

var rootCmd = &cobra.Command{
	Use:   "algosync",
	Short: "Keep Algolia indexes in sync with local content records",
	Long: `algosync extracts local content records into search documents, keeps
the configured Algolia indexes consistent with them and maps search hits
back to records.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "configuration file (default ~/.algosync/config.toml)")
	flags.StringVar(&dataDir, "data-dir", "", "database directory (default ~/.algosync/data)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	flags.BoolVar(&dryRun, "dry-run", false, "use in-memory copies and discard remote writes")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// Execute runs the root command.
func Execute() error {
	defer closeApp()
	return rootCmd.Execute()
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	logger.SetOutput(cmd.ErrOrStderr())
	return nil
}

func options() app.Options {
	return app.Options{ConfigPath: configPath, DataDir: dataDir, DryRun: dryRun}
}

// requireApp builds the application on first use.
func requireApp() (*app.App, error) {
	if application != nil {
		return application, nil
	}
	if bootstrap == nil {
		return nil, errors.New("application not configured")
	}
	a, err := bootstrap(options())
	if err != nil {
		return nil, err
	}
	application = a
	return a, nil
}

func closeApp() {
	if application == nil {
		return
	}
	if err := application.Close(); err != nil {
		logger.Error("close: %v", err)
	}
	application = nil
}

// commandContext returns the command's context or a background one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// parseRecordRef parses "<class> <id>" arguments.
func parseRecordRef(args []string) (string, int64, error) {
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("invalid record id %q", args[1])
	}
	return args[0], id, nil
}

// addRecordRefFlags registers --class and --id on a command that acts on
// one record.
func addRecordRefFlags(cmd *cobra.Command) {
	cmd.Flags().String("class", "", "class of the record")
	cmd.Flags().Int64("id", 0, "id of the record")
}

// recordRefArgs accepts either no arguments (flags) or "<class> <id>".
func recordRefArgs(cmd *cobra.Command, args []string) error {
	switch len(args) {
	case 0:
		return nil
	case 2:
		if cmd.Flags().Changed("class") || cmd.Flags().Changed("id") {
			return fmt.Errorf("use either --class and --id or <class> <id>, not both")
		}
		return nil
	}
	return fmt.Errorf("accepts --class and --id or 2 arg(s), received %d", len(args))
}

// recordRef resolves the record a command acts on from its flags, or from
// positional arguments when given.
func recordRef(cmd *cobra.Command, args []string) (string, int64, error) {
	if len(args) == 2 {
		return parseRecordRef(args)
	}
	class, err := cmd.Flags().GetString("class")
	if err != nil {
		return "", 0, err
	}
	id, err := cmd.Flags().GetInt64("id")
	if err != nil {
		return "", 0, err
	}
	if class == "" {
		return "", 0, fmt.Errorf("--class is required")
	}
	if id <= 0 {
		return "", 0, fmt.Errorf("invalid record id %d", id)
	}
	return class, id, nil
}
