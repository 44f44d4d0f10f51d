package cli

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"
)

// SearchCmd returns the search command
func SearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid search against the index",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}

	cmd.Flags().Int("top-k", 5, "Number of documents to return")
	cmd.Flags().Int("chunk-candidates", 50, "Candidate width of the chunk prefetch")

	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	app, cleanup, err := buildApp()
	if err != nil {
		return err
	}
	defer cleanup()

	topK, _ := cmd.Flags().GetInt("top-k")
	candidateWidth, _ := cmd.Flags().GetInt("chunk-candidates")
	query := strings.Join(args, " ")

	results, err := app.search.Search(cmd.Context(), query, topK, candidateWidth)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(map[string]interface{}{"results": results})
}
