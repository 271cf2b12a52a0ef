package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/annotate"
	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/types"
)

var (
	annotateTitle    string
	annotateDictFile string
	annotateCounts   bool
)

var annotateCmd = &cobra.Command{
	Use:   "annotate <text-file>",
	Short: "Annotate a text file locally",
	Long: `Annotate a chapter of plain text without a server or database.

The dictionary file maps categories to entity names, as YAML or JSON:

  characters: [Harry, Hermione]
  places: [Hogwarts]

Examples:
  folio annotate chapter1.txt --dictionary dict.yaml
  folio annotate chapter1.txt --dictionary dict.yaml --counts -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		dict := types.Dictionary{}
		if annotateDictFile != "" {
			if dict, err = annotate.ReadDictionaryFile(annotateDictFile); err != nil {
				return err
			}
		}

		pc := annotate.ProcessChapterContent(string(text), annotateTitle, dict)
		if annotateCounts {
			return api.Output(map[string]any{
				"title":      pc.Title,
				"totalWords": pc.TotalWords,
				"paragraphs": len(pc.Paragraphs),
				"entities":   pc.EntityCounts(),
			})
		}
		return api.Output(pc)
	},
}

func init() {
	annotateCmd.Flags().StringVar(&annotateTitle, "title", "", "Chapter title")
	annotateCmd.Flags().StringVarP(&annotateDictFile, "dictionary", "d", "", "YAML or JSON dictionary file")
	annotateCmd.Flags().BoolVar(&annotateCounts, "counts", false, "Print entity mention counts instead of paragraphs")

	rootCmd.AddCommand(annotateCmd)
}
