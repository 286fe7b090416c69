package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/reposearch/internal/docindex"
)

var (
	searchType       string
	searchRepository string
	searchTop        int
	searchSkip       int
	searchFilters    []string
	searchFacets     bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the index",
	Long: `Search indexed documents.

Search types:
  hybrid    vector similarity combined with keyword matching (default)
  semantic  vector similarity only
  keyword   weighted keyword matching only

Filters use field:op:value syntax with operators eq, ne, gt, lt, contains.

Examples:
  reposearch search "rate limiter middleware"
  reposearch search "parse config" --type keyword --top 20
  reposearch search "http handler" --repository golang/go
  reposearch search "retry" --filter language:eq:go --filter filePath:contains:internal`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchType, "type", "hybrid", "search type (semantic, keyword, hybrid)")
	searchCmd.Flags().StringVar(&searchRepository, "repository", "", "restrict results to one repository")
	searchCmd.Flags().IntVar(&searchTop, "top", 10, "maximum results to return")
	searchCmd.Flags().IntVar(&searchSkip, "skip", 0, "results to skip for pagination")
	searchCmd.Flags().StringArrayVar(&searchFilters, "filter", nil, "metadata filter as field:op:value")
	searchCmd.Flags().BoolVar(&searchFacets, "facets", false, "print facet counts")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	filters, err := parseFilters(searchFilters)
	if err != nil {
		return err
	}

	query := docindex.Query{
		Text:    args[0],
		Type:    docindex.SearchType(searchType),
		Filters: filters,
		Top:     searchTop,
		Skip:    searchSkip,
	}

	var results *docindex.Results
	if searchRepository != "" {
		results, err = a.index.SearchRepository(ctx, searchRepository, query)
	} else {
		results, err = a.index.Search(ctx, query)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	printResults(results)
	return nil
}

// parseFilters converts field:op:value strings into query filters. The value
// part may itself contain colons.
func parseFilters(raw []string) ([]docindex.Filter, error) {
	filters := make([]docindex.Filter, 0, len(raw))
	for _, r := range raw {
		parts := strings.SplitN(r, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid filter %q, expected field:op:value", r)
		}
		filters = append(filters, docindex.Filter{
			Field:    parts[0],
			Operator: docindex.FilterOperator(parts[1]),
			Value:    parts[2],
		})
	}
	return filters, nil
}

func printResults(r *docindex.Results) {
	if len(r.Results) == 0 {
		fmt.Println("No results.")
		return
	}

	fmt.Printf("%d result(s) of %d total\n\n", len(r.Results), r.TotalCount)
	for i, res := range r.Results {
		doc := res.Document
		fmt.Printf("%2d. %s %s  (score %.4f)\n", i+1, doc.RepositoryID, doc.FilePath, res.Score)
		if doc.Language != "" {
			fmt.Printf("    language: %s, lines: %d\n", doc.Language, doc.LineCount)
		}
		for _, h := range res.Highlights {
			fmt.Printf("    ... %s ...\n", h)
		}
	}

	if searchFacets && len(r.Facets) > 0 {
		fmt.Println("\nFacets:")
		for field, counts := range r.Facets {
			fmt.Printf("  %s:\n", field)
			for value, count := range counts {
				fmt.Printf("    %-24s %d\n", value, count)
			}
		}
	}
}
