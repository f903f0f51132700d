package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/algosync/internal/core/domain"
)

var (
	searchIndex   string
	searchPage    int
	searchLimit   int
	searchFilters string
	searchJSON    bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search an index and list the matching records",
	Long: `Runs a query against one index and maps the hits back to local records.
Hits whose record was deleted, changed class or may not be viewed are
dropped from the page.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchIndex, "index", "i", "", "logical index name (default: first configured index)")
	searchCmd.Flags().IntVarP(&searchPage, "page", "p", 1, "one-based page number")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "hits per page")
	searchCmd.Flags().StringVar(&searchFilters, "filters", "", "remote filter expression")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchPage < 1 {
		return errors.New("--page must be at least 1")
	}
	a, err := requireApp()
	if err != nil {
		return err
	}

	req := domain.SearchRequest{
		Index: searchIndex,
		Query: args[0],
		Params: domain.SearchParams{
			Page:        searchPage - 1,
			HitsPerPage: searchLimit,
			Filters:     searchFilters,
		},
	}
	page, err := a.Querier.Search(commandContext(cmd), req)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return printJSON(cmd, page)
	}
	return outputSearchTable(cmd, page)
}

func outputSearchTable(cmd *cobra.Command, page *domain.SearchPage) error {
	if len(page.Records) == 0 {
		cmd.Println("No results found.")
		printDropped(cmd, page.Dropped)
		return nil
	}

	cmd.Printf("Results %d-%d of %d (page %d):\n",
		page.PageStart+1, page.PageStart+len(page.Records), page.TotalItems, page.CurrentPage)
	cmd.Println()
	for i := range page.Records {
		rec := &page.Records[i]
		title := rec.Title
		if title == "" {
			title = fmt.Sprintf("#%d", rec.ID)
		}
		cmd.Printf("  [%d] %s (%s %d)\n", page.PageStart+i+1, title, rec.ClassName, rec.ID)
		if rec.Link != "" {
			cmd.Printf("      %s\n", domain.CanonicalLink(rec.Link))
		}
	}
	printDropped(cmd, page.Dropped)
	return nil
}

func printDropped(cmd *cobra.Command, n int) {
	if n > 0 {
		cmd.Printf("%d hits without a viewable record were dropped.\n", n)
	}
}
