package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"statement-reconciler/cmd/reconciler/config"
	"statement-reconciler/pkg/errors"
	"statement-reconciler/pkg/logger"
)

var (
	cfgFile string
	version = "dev"
	commit  = "unknown"
	date    = "unknown"

	// v holds flags, environment and config file values of the running command
	v = viper.New()
	// appFs is the filesystem statements, ledgers and reports are read from and written to
	appFs afero.Fs = afero.NewOsFs()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Bank statement reconciliation tool",
	Long: `Reconciler ingests bank statement exports, flags suspected duplicate
transactions, matches transactions against ledger entries and ages the open
ledger items left over.

Examples:
  reconciler reconcile --statement june.csv --ledger ledger.csv --format ch-bank
  reconciler reconcile --statement june.csv,july.csv --ledger ledger.csv --output-format json
  reconciler duplicates --statement june.csv --format de-bank
  reconciler aging --ledger ledger.csv --as-of 2024-06-30
  reconciler formats`,
	Version:       getVersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code
func Execute(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)
	return NewCLIErrorHandler(rootCmd.ErrOrStderr(), v.GetBool("verbose")).HandleError(err)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text, json")
	rootCmd.PersistentFlags().String("log-file", "", "write logs to this file instead of stderr")
}

// initConfig wires environment variables and the config file into v
func initConfig() {
	if err := config.Configure(v, cfgFile); err != nil {
		configErr = err
	}
}

// configErr defers config file failures to the command so they are reported
// through the error handler
var configErr error

// loadSettings binds the flags of the running command and builds its
// settings and logger
func loadSettings(cmd *cobra.Command) (*config.Settings, logger.Logger, error) {
	if configErr != nil {
		return nil, nil, configErr
	}
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, nil, err
	}

	settings, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.NewLogger(settings.LoggerConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.SetGlobalLogger(log)

	if cfgFile != "" {
		log.WithField("config", v.ConfigFileUsed()).Debug("Using config file")
	}
	return settings, log, nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(ver, c, d string) {
	version = ver
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}

// openOutput returns the file at path or the command's stdout
func openOutput(cmd *cobra.Command, path string) (io.Writer, func(), error) {
	if path == "" {
		return cmd.OutOrStdout(), func() {}, nil
	}
	file, err := appFs.Create(path)
	if err != nil {
		return nil, nil, errors.FileError(errors.CodeFilePermission, path, err).
			WithSuggestion("Check that the output directory exists and is writable")
	}
	return file, func() { file.Close() }, nil
}
