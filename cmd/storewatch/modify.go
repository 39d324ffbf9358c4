package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/obentoo/storewatch/internal/catalog"
	"github.com/obentoo/storewatch/internal/common/output"
)

var modifyOutput string

var modifyCmd = &cobra.Command{
	Use:   "modify FILE IDS...",
	Short: "Mark catalog items as pre-owned",
	Long: `Mark the listed item ids in a store catalog file with "preOwned": true.

Ids may be given comma-separated or whitespace-separated. Each id is looked up
in section order and only its first occurrence is marked.

Examples:
  storewatch modify storeConfig.json 2050,2051,2052
  storewatch modify storeConfig.json 2050 2051 -o marked.json`,
	Args: cobra.MinimumNArgs(2),
	Run:  runModify,
}

func init() {
	modifyCmd.Flags().StringVarP(&modifyOutput, "output", "o", DefaultAnnotatedFile, "Annotated output file")
	rootCmd.AddCommand(modifyCmd)
}

func runModify(cmd *cobra.Command, args []string) {
	matched, err := modifyCatalog(cmd.OutOrStdout(), args[0], args[1:], modifyOutput)
	if err != nil {
		fatal("%v", err)
	}
	if len(matched) == 0 {
		output.PrintWarning("No ids matched, nothing written")
		return
	}
	output.PrintSuccess("Annotated catalog written to %s", modifyOutput)
}

// modifyCatalog marks the ids in the file at path, reports matches to w and
// writes the result to outPath when at least one id matched.
func modifyCatalog(w io.Writer, path string, rawIDs []string, outPath string) ([]string, error) {
	var ids []string
	for _, raw := range rawIDs {
		ids = append(ids, catalog.ParseItemIDs(raw)...)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no item ids given")
	}

	doc, err := catalog.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	out, matched, unmatched := catalog.AnnotateByIDs(doc, ids)

	if len(matched) > 0 {
		output.Header.Fprintf(w, "Marked %d item(s)\n", len(matched))
		for _, m := range matched {
			output.Added.Fprintf(w, "  %s\n", m)
		}
	}
	if len(unmatched) > 0 {
		output.Warning.Fprintf(w, "Not found: %s\n", strings.Join(unmatched, ", "))
	}
	if len(matched) == 0 {
		return matched, nil
	}

	if err := catalog.SaveFile(outPath, out); err != nil {
		return matched, fmt.Errorf("writing %s: %w", outPath, err)
	}
	return matched, nil
}
