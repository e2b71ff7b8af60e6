package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/idelchi/dirsize/internal/dirsize"
)

const (
	// TabSpacing is the number of spaces between tabwriter columns.
	TabSpacing = 2

	// maxListedInaccessible is how many skipped paths the table lists before summarizing.
	maxListedInaccessible = 5
)

// PrintJSON outputs the result in JSON format.
func PrintJSON(result *dirsize.Result, writer io.Writer) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	if _, err := fmt.Fprintln(writer, string(data)); err != nil {
		return err
	}

	return nil
}

// PrintYAML outputs the result in YAML format.
func PrintYAML(result *dirsize.Result, writer io.Writer) error {
	encoder := yaml.NewEncoder(writer)
	encoder.SetIndent(2)

	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("encoding YAML output: %w", err)
	}

	return encoder.Close()
}

// PrintPaths outputs the path of every displayed entry, one per line.
func PrintPaths(result *dirsize.Result, options dirsize.Options, writer io.Writer) error {
	shown, _ := visible(result, options)

	for _, child := range shown {
		if _, err := fmt.Fprintln(writer, child.Path); err != nil {
			return err
		}
	}

	return nil
}

// visible applies the directories-only filter and the top-N limit to the
// breakdown. It returns the rows to show and how many were cut by the limit.
func visible(result *dirsize.Result, options dirsize.Options) ([]dirsize.Child, int) {
	children := result.Children
	if options.DirsOnly {
		children = lo.Filter(children, func(child dirsize.Child, _ int) bool {
			return child.Kind == dirsize.KindDirectory
		})
	}

	if options.TopN > 0 && len(children) > options.TopN {
		return children[:options.TopN], len(children) - options.TopN
	}

	return children, 0
}

// PrintTable outputs the breakdown in human-readable table format.
//
//nolint:forbidigo // This function prints output to the console.
func PrintTable(result *dirsize.Result, options dirsize.Options, writer io.Writer) error {
	shown, hidden := visible(result, options)

	fmt.Fprintf(writer, "\n%s\n\n", result.Root)

	table := tablewriter.NewWriter(writer)
	table.SetHeader([]string{"#", "Name", "Kind", "Size", "Share"})
	table.SetAutoFormatHeaders(false) // Footer holds sizes like "1.5 KiB"
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
	})

	table.AppendBulk(lo.Map(shown, func(child dirsize.Child, i int) []string {
		return []string{
			fmt.Sprintf("%d", i+1),
			child.Name,
			child.Kind.String(),
			humanize.IBytes(uint64(child.Size)), //nolint:gosec // Sizes are never negative
			fmt.Sprintf("%.1f%%", child.Percent),
		}
	}))

	table.SetFooter([]string{
		"",
		"Total",
		"",
		humanize.IBytes(uint64(result.Total)), //nolint:gosec // Sizes are never negative
		fmt.Sprintf("%d entries", len(result.Children)),
	})

	table.Render()

	if hidden > 0 {
		fmt.Fprintf(writer, "  … %d more not shown (use --top 0 to list all)\n", hidden)
	}

	// Stats summary
	w := tabwriter.NewWriter(writer, 0, 4, TabSpacing, ' ', 0)

	fmt.Fprintf(w, "\nFiles:\t%d\n", result.Files)
	fmt.Fprintf(w, "Directories:\t%d\n", result.Dirs)
	fmt.Fprintf(w, "Total size:\t%s (%d bytes)\n",
		humanize.IBytes(uint64(result.Total)), result.Total) //nolint:gosec // Sizes are never negative

	if !result.Complete() {
		fmt.Fprintln(w, "Status:\tcancelled, totals are partial")
	}

	if n := len(result.Inaccessible); n > 0 {
		fmt.Fprintf(w, "Skipped:\t%d inaccessible\n", n)

		for _, path := range result.Inaccessible[:min(n, maxListedInaccessible)] {
			fmt.Fprintf(w, "\t%s\n", path)
		}

		if n > maxListedInaccessible {
			fmt.Fprintf(w, "\t… and %d more\n", n-maxListedInaccessible)
		}
	}

	fmt.Fprintf(w, "\nElapsed:\t%v\n", result.Elapsed)

	return w.Flush()
}
