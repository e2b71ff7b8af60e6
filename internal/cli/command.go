package cli

import (
	"errors"
	"fmt"
	"slices"

	"github.com/MakeNowJust/heredoc/v2"
	goerrors "github.com/go-errors/errors"
	"github.com/sasha-s/go-deadlock"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/idelchi/dirsize/internal/dirsize"
	"github.com/idelchi/dirsize/internal/integration"
)

// CLI represents the command-line interface.
type CLI struct {
	version string
}

// New creates a new CLI instance with the given version.
func New(version string) CLI {
	return CLI{version: version}
}

// allowedOutputs lists the accepted output formats.
//
//nolint:gochecknoglobals // Config constant
var allowedOutputs = []string{"table", "json", "yaml", "paths"}

// long is the help text of the root command.
//
//nolint:gochecknoglobals // Config constant
var long = heredoc.Doc(`
	dirsize computes the cumulative size of every entry below a directory and
	reports the direct children of that directory, largest first, with their
	share of the total.

	Positional Arguments:
	  path                   Directory to analyze. Defaults to current directory if not specified.

	Symbolic links are never followed; a link counts with its own size.
	Entries that cannot be read are skipped and listed after the breakdown.
	Press Ctrl-C during a scan to stop it and print the partial breakdown.

	Configuration is read from ./dirsize.yaml (or --config) and from
	DIRSIZE_* environment variables, e.g. DIRSIZE_WORKERS=8 or DIRSIZE_LOG_FILE=dirsize.log.

	The '--init' flag prints a zsh function, 'dz', that pipes '--output paths'
	into 'fzf' and changes into the selected entry.
`)

// Execute runs the CLI with the process arguments.
func (c CLI) Execute() error {
	return c.newRootCmd().Execute()
}

func (c CLI) newRootCmd() *cobra.Command {
	var (
		configPath  string
		showVersion bool
		showInit    bool
	)

	v := newConfig()

	cmd := &cobra.Command{
		Use:           "dirsize [flags] [path]",
		Short:         "Report what takes up space in a directory",
		Long:          long,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Fprintln(cmd.OutOrStdout(), c.version)

				return nil
			}

			if showInit {
				rendered, err := integration.Render()
				if err != nil {
					return fmt.Errorf("rendering integration script: %w", err)
				}

				fmt.Fprintln(cmd.OutOrStdout(), rendered)

				return nil
			}

			if err := readConfig(v, configPath); err != nil {
				return fmt.Errorf("reading config: %w", err)
			}

			opts, err := validate(v)
			if err != nil {
				return err
			}

			opts.Path = "."
			if len(args) > 0 {
				opts.Path = args[0]
			}

			log, closeLog := newLogger(v, cmd.ErrOrStderr(), c.version)
			defer closeLog() //nolint:errcheck // Nothing to report a close error to

			// Lock-order checking runs in debug mode only.
			deadlock.Opts.Disable = !opts.Debug

			err = logic(cmd, opts, log)
			if err != nil && opts.Debug {
				log.Debug(goerrors.Wrap(err, 0).ErrorStack())
			}

			return err
		},
	}

	flags := cmd.Flags()
	flags.SortFlags = false

	flags.IntP(topKey, "t", dirsize.DefaultTopN, "Number of top entries to display (0=all)")
	flags.StringP(outputKey, "o", "table", fmt.Sprintf("Output format: one of %v", allowedOutputs))
	flags.StringSliceP(excludeKey, "e", []string{}, "Regex patterns to exclude (matched against slash-separated paths)")
	flags.IntP(workersKey, "w", 0, "Number of parallel workers (0=auto)")
	flags.String(engineKey, string(dirsize.EngineAuto), fmt.Sprintf("Traversal engine: one of %v", dirsize.Engines))
	flags.Bool(dirsKey, false, "Only list directories in the breakdown")
	flags.Duration("progress-interval", dirsize.DefaultProgressInterval, "Refresh interval of the progress line")
	flags.Bool(debugKey, false, "Enable debug output")
	flags.String("log-file", "", "Write logs to this file (rotated)")
	flags.StringVarP(&configPath, "config", "c", "", "Config file (default ./"+configFileName+")")
	flags.BoolVarP(&showVersion, "version", "v", false, "Show version and exit")
	flags.BoolVarP(&showInit, "init", "i", false, "Output init script for shell usage")

	bindFlags(v, flags, map[string]string{
		topKey:              topKey,
		outputKey:           outputKey,
		excludeKey:          excludeKey,
		workersKey:          workersKey,
		engineKey:           engineKey,
		dirsKey:             dirsKey,
		"progress-interval": progressIntervalKey,
		debugKey:            debugKey,
		"log-file":          logFileKey,
	})

	return cmd
}

// bindFlags wires flags to viper keys so config and env values feed them.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		cobra.CheckErr(v.BindPFlag(key, flags.Lookup(name)))
	}
}

// validate checks the merged configuration.
func validate(v *viper.Viper) (dirsize.Options, error) {
	opts := options(v)

	if !slices.Contains(allowedOutputs, opts.Output) {
		return opts, fmt.Errorf("invalid output format %q: must be one of %v", opts.Output, allowedOutputs)
	}

	if opts.TopN < 0 {
		return opts, errors.New("top cannot be negative")
	}

	if opts.Workers < 0 {
		return opts, errors.New("workers cannot be negative")
	}

	engine, err := dirsize.ParseEngine(string(opts.Engine))
	if err != nil {
		return opts, err
	}

	opts.Engine = engine

	return opts, nil
}
