package commands

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/asgardtech/pathsec/internal/cli/config"
	"github.com/asgardtech/pathsec/internal/cli/ui"
	"github.com/asgardtech/pathsec/internal/logging"
	"github.com/asgardtech/pathsec/internal/ops"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// ErrRejected is returned by --fail runs in which at least one input was
// rejected or altered
var ErrRejected = errors.New("one or more inputs were rejected")

// Output formats
const (
	OutputTable = "table"
	OutputJSON  = "json"
)

// rootOptions holds the persistent flags and the lazily loaded config
type rootOptions struct {
	configPath string
	output     string
	noColor    bool

	cfg *config.Config
}

func (o *rootOptions) config() (*config.Config, error) {
	if o.cfg != nil {
		return o.cfg, nil
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	o.cfg = cfg
	return cfg, nil
}

// loadConfig loads the config and prints a formatted error when it fails
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := o.config()
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), ui.ConfigError(err, o.noColor))
		return nil, err
	}
	return cfg, nil
}

// logger builds the configured logger, falling back to a no-op logger
func (o *rootOptions) logger(cfg *config.Config) *zap.Logger {
	return logging.Must(cfg.Log.Level, cfg.Log.Format)
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "pathsec",
		Short: "Validate and sanitize untrusted paths, filenames and project names",
		Long: color.CyanString(`pathsec - path security checks

Rejects traversal attempts, encoded and Unicode evasions, reserved device
names and illegal characters, or rewrites the input into a safe form.

Every check is available as a command, as a batch over a file of inputs,
and as a JSON HTTP API served by "pathsec serve".`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.noColor {
				color.NoColor = true
			}
			if !lo.Contains([]string{OutputTable, OutputJSON}, opts.output) {
				return fmt.Errorf("invalid --output %q (want %s or %s)", opts.output, OutputTable, OutputJSON)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Config file (default ./pathsec.yaml)")
	flags.StringVarP(&opts.output, "output", "o", OutputTable, "Output format: table or json")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	for _, op := range ops.All {
		rootCmd.AddCommand(newOperationCommand(opts, op))
	}
	rootCmd.AddCommand(newBatchCommand(opts))
	rootCmd.AddCommand(newServeCommand(opts))
	rootCmd.AddCommand(newConfigCommand(opts))
	rootCmd.AddCommand(newAuditCommand(opts))
	rootCmd.AddCommand(newTokenCommand(opts))
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the pathsec version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			t := ui.NewKeyValueTable(cmd.OutOrStdout(), color.NoColor)
			t.AddRow("pathsec version", Version)
			t.AddRow("Git commit", GitCommit)
			t.AddRow("Build date", BuildDate)
			t.AddRow("Go version", goVer)
			t.Render()
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, ErrRejected) {
			errorColor := color.New(color.FgRed, color.Bold)
			errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		}
		return err
	}
	return nil
}

// ExitCode maps an Execute error to a process exit status
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrRejected):
		return 2
	default:
		return 1
	}
}
