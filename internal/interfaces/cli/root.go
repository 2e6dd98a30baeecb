// Package cli implements the morphoscreen command line interface: local
// pipeline execution over profile CSVs and database schema management.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/MorphoScreen/internal/config"
	"github.com/turtacn/MorphoScreen/internal/infrastructure/monitoring/logging"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// RootOptions holds the global CLI flags.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	Verbose    bool
}

// NewRootCommand creates the root cobra command with all global flags and
// subcommands attached.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "morphoscreen",
		Short: "MorphoScreen CLI for phenotypic compound prioritization",
		Long: "MorphoScreen ranks chemical compounds from high-content imaging screens by\n" +
			"how far they shift diseased cell populations toward a healthy morphological\n" +
			"state, without disturbing features the disease leaves untouched.",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: ./configs/config.yaml)")
	pf.StringVar(&opts.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable verbose output")

	cmd.AddCommand(
		newRunCommand(opts),
		newSignaturesCommand(opts),
		newRankCommand(opts),
		newMigrateCommand(opts),
	)
	return cmd
}

// loadConfig resolves the configuration with priority: --config flag, then
// well-known file locations, then MSCREEN_* environment variables alone.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	if opts.ConfigPath != "" {
		return config.Load(opts.ConfigPath)
	}
	searchPaths := []string{
		"./configs/config.yaml",
		"./morphoscreen.yaml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".morphoscreen", "config.yaml"))
	}
	searchPaths = append(searchPaths, "/etc/morphoscreen/config.yaml")
	for _, p := range searchPaths {
		if _, err := os.Stat(p); err == nil {
			return config.Load(p)
		}
	}
	return config.LoadFromEnv()
}

// newCLILogger creates a console logger on stderr so command output on
// stdout stays machine-readable.
func newCLILogger(opts *RootOptions) (logging.Logger, error) {
	level := strings.ToLower(opts.LogLevel)
	if opts.Verbose {
		level = "debug"
	}
	return logging.NewLogger(logging.LogConfig{
		Level:            level,
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
}

// Execute runs the CLI and reports the exit error to stderr.
func Execute() error {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		return err
	}
	return nil
}
