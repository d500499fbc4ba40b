package cmd

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/climatedb/internal/collect"
	"github.com/JakeFAU/climatedb/internal/ingest"
	"github.com/JakeFAU/climatedb/internal/search"
)

func newCollectCmd() *cobra.Command {
	opts := collect.Options{}
	cmd := &cobra.Command{
		Use:   "collect [source ids...|all]",
		Short: "Collect article URLs and archive the articles",
		Long: `Retrieves up to --num candidate URLs per source, either live from the
search upstream (--source google) or by replaying a named log, drops URLs
already archived or not recognised as articles, appends the survivors to
the --db log and, with --parse, archives each article.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			opts.Sources = args
			res, runErr := a.Runner.Run(cmd.Context(), opts)
			printCollectResult(cmd.OutOrStdout(), res)
			pushMetrics(cmd.Context(), a)
			if runErr != nil {
				return fmt.Errorf("collect: %w", runErr)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVarP(&opts.Count, "num", "n", 5, "candidate URLs to retrieve per source")
	f.StringVar(&opts.Mode, "source", search.Live, "retrieval mode: google for live search, otherwise a log to replay")
	f.BoolVar(&opts.Parse, "parse", true, "archive the collected articles")
	f.BoolVar(&opts.Check, "check", true, "drop URLs the source does not recognise as articles")
	f.BoolVar(&opts.Replace, "replace", true, "re-archive articles that already exist")
	f.StringVar(&opts.Destination, "db", collect.DefaultDestination, "log the collected URLs are appended to")
	return cmd
}

func printCollectResult(w io.Writer, res collect.Result) {
	if res.RunID != "" {
		fmt.Fprintf(w, "run %s\n", res.RunID)
	}
	for _, sr := range res.Sources {
		line := fmt.Sprintf("%-16s retrieved=%d persisted=%d", sr.SourceID, sr.Retrieved, sr.Persisted)
		if dropped := formatCounts(sr.Dropped); dropped != "" {
			line += " dropped(" + dropped + ")"
		}
		if sr.Err != nil {
			line += " error=" + sr.Err.Error()
		}
		fmt.Fprintln(w, line)
	}
	if res.Ingest.Total() > 0 {
		printSummary(w, res.Ingest)
	}
}

func printSummary(w io.Writer, s ingest.Summary) {
	counts := make(map[string]int, len(s))
	for outcome, n := range s {
		counts[string(outcome)] = n
	}
	fmt.Fprintf(w, "ingested %d: %s\n", s.Total(), formatCounts(counts))
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k, n := range counts {
		if n > 0 {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}
