package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/idelchi/dirsize/internal/dirsize"
)

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func logic(cmd *cobra.Command, options dirsize.Options, log *logrus.Entry) error {
	stderr := cmd.ErrOrStderr()

	enableProgress := options.Output == "table" &&
		!options.Debug &&
		isTerminal(stderr)

	// Ctrl-C stops the walk; the partial breakdown is still printed.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	// Simple progress callback that prints directly to stderr
	var progressHook func(dirsize.Progress)

	if enableProgress {
		// Hide cursor for in-place updates; restore on exit.
		fmt.Fprint(stderr, "\033[?25l")
		defer fmt.Fprint(stderr, "\033[?25h")

		progressHook = func(progress dirsize.Progress) {
			fmt.Fprintf(stderr, "\r\033[2K%s\r", progressLine(progress))
		}
	}

	result, err := dirsize.Run(ctx, options, progressHook, dirsize.WithLogger(log))

	// Clear the status line
	if enableProgress {
		fmt.Fprint(stderr, "\r\033[2K\r")
	}

	if err != nil {
		return err
	}

	if !result.Complete() {
		log.WithField("root", result.Root).Info("scan cancelled, printing partial result")
	}

	return render(result, options, cmd.OutOrStdout())
}

// maxProgressPath is the number of characters of the current path shown in the progress line.
const maxProgressPath = 60

// progressLine formats the status line shown while scanning.
func progressLine(progress dirsize.Progress) string {
	msg := fmt.Sprintf("Scanning… %d entries, %s",
		progress.Entries, humanize.IBytes(uint64(progress.Bytes))) //nolint:gosec // Bytes is always positive

	if progress.CurrentPath == "" {
		return msg
	}

	return msg + "  " + shortenPath(progress.CurrentPath, maxProgressPath)
}

// shortenPath keeps the last limit characters of path, marking the cut with an ellipsis.
func shortenPath(path string, limit int) string {
	runes := []rune(path)
	if len(runes) <= limit {
		return path
	}

	return "…" + string(runes[len(runes)-limit+1:])
}

// render writes result in the configured output format.
func render(result *dirsize.Result, options dirsize.Options, writer io.Writer) error {
	switch options.Output {
	case "json":
		return PrintJSON(result, writer)
	case "yaml":
		return PrintYAML(result, writer)
	case "paths":
		return PrintPaths(result, options, writer)
	case "table":
		return PrintTable(result, options, writer)
	default:
		return fmt.Errorf("unknown output format: %s", options.Output)
	}
}
