package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/obentoo/storewatch/internal/catalog"
	"github.com/obentoo/storewatch/internal/common/output"
)

// DefaultAnnotatedFile is where compare and modify write when -o is not given
const DefaultAnnotatedFile = "modified_storeConfig.json"

// detailLimit is the number of added items listed per section before only the
// count is shown
const detailLimit = 25

var (
	compareOutput  string
	compareDetails bool
)

var compareCmd = &cobra.Command{
	Use:   "compare OLD NEW",
	Short: "Compare two store catalog files",
	Long: `Compare two store catalog JSON files section by section and report the
items that were added, removed or modified.

When there are changes, an annotated copy of NEW is written: every added item
is marked with "preOwned": true and hidden items are made visible.

Examples:
  storewatch compare storeConfig_old.json storeConfig_new.json
  storewatch compare old.json new.json -o annotated.json --details`,
	Args: cobra.ExactArgs(2),
	Run:  runCompare,
}

func init() {
	compareCmd.Flags().StringVarP(&compareOutput, "output", "o", DefaultAnnotatedFile, "Annotated output file")
	compareCmd.Flags().BoolVar(&compareDetails, "details", false, "Show a line diff of every modified item")
	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) {
	changes, err := compareCatalogs(cmd.OutOrStdout(), args[0], args[1], compareOutput, compareDetails)
	if err != nil {
		fatal("%v", err)
	}
	if !changes.Empty() {
		output.PrintSuccess("Annotated catalog written to %s", compareOutput)
	}
}

// compareCatalogs diffs the two files, prints the report to w and writes the
// annotated new document to outPath when anything changed.
func compareCatalogs(w io.Writer, oldPath, newPath, outPath string, details bool) (*catalog.ChangeSet, error) {
	oldDoc, err := catalog.LoadFile(oldPath)
	if err != nil {
		return nil, fmt.Errorf("loading old catalog: %w", err)
	}
	newDoc, err := catalog.LoadFile(newPath)
	if err != nil {
		return nil, fmt.Errorf("loading new catalog: %w", err)
	}

	changes := catalog.Compare(oldDoc, newDoc)
	log.Debug("compared %s and %s: %d summary line(s)", oldPath, newPath, len(changes.Summary))

	printChangeSet(w, changes, details)
	if changes.Empty() {
		return changes, nil
	}

	annotated := catalog.Annotate(newDoc, changes)
	if err := catalog.SaveFile(outPath, annotated); err != nil {
		return changes, fmt.Errorf("writing %s: %w", outPath, err)
	}
	return changes, nil
}

func printChangeSet(w io.Writer, changes *catalog.ChangeSet, details bool) {
	fmt.Fprintln(w)
	if changes.Empty() {
		output.Dim.Fprintln(w, "No changes detected")
		return
	}

	output.Header.Fprintln(w, "Summary")
	for _, line := range changes.Summary {
		fmt.Fprintf(w, "  %s\n", output.FormatChange(line))
	}

	if added := changes.AddedDetails(detailLimit); len(added) > 0 {
		fmt.Fprintln(w)
		output.Header.Fprintf(w, "New items (%d)\n", changes.AddedCount())
		for _, d := range added {
			if len(d.Lines) == 0 {
				output.Added.Fprintf(w, "  %s: %d new items\n", d.Section, d.Count)
				continue
			}
			output.Added.Fprintf(w, "  %s:\n", d.Section)
			for _, line := range d.Lines {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
	}

	if !details {
		return
	}
	for _, section := range catalog.Sections {
		for _, id := range changes.ModifiedIDs(section) {
			mod := changes.Modified[section][id]
			fmt.Fprintln(w)
			output.Modified.Fprintf(w, "%s/%s\n", section, id)
			printRecordDiff(w, catalog.RecordDiff(mod.Old, mod.New))
		}
	}
}

func printRecordDiff(w io.Writer, diff string) {
	for _, line := range strings.Split(strings.TrimSuffix(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+ "):
			output.Added.Fprintln(w, line)
		case strings.HasPrefix(line, "- "):
			output.Removed.Fprintln(w, line)
		default:
			output.Dim.Fprintln(w, line)
		}
	}
}
