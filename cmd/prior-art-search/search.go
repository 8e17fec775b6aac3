package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/joelkehle/prior-art-engine/internal/config"
	"github.com/joelkehle/prior-art-engine/internal/priorartsearch"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Run a prior-art search and write the report",
	Long: `search generates PatentsView strategies for the query, runs them, scores
and selects the most relevant patents, fetches their claims, and writes the
analysis report. The finished run is saved to the local run store.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.TrimSpace(strings.Join(args, " "))
		flags := cmd.Flags()
		c := cfg
		if scorer, _ := flags.GetString("scorer"); scorer != "" {
			c.Search.Scorer = strings.ToLower(scorer)
			if c.Search.Scorer != config.ScorerLLM && c.Search.Scorer != config.ScorerKeyword {
				return fmt.Errorf("unknown scorer %q", scorer)
			}
		}
		noStore, _ := flags.GetBool("no-store")

		ctx := cmd.Context()
		a, err := newApp(ctx, c, !noStore)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		opts := []priorartsearch.SearchOption{}
		if flags.Changed("max-results") {
			n, _ := flags.GetInt("max-results")
			opts = append(opts, priorartsearch.WithMaxResults(n))
		}
		if flags.Changed("threshold") {
			th, _ := flags.GetFloat64("threshold")
			opts = append(opts, priorartsearch.WithRelevanceThreshold(th))
		}
		if domain, _ := flags.GetString("domain"); domain != "" {
			opts = append(opts, priorartsearch.WithDomain(domain))
		}
		if quiet, _ := flags.GetBool("quiet"); !quiet {
			opts = append(opts, priorartsearch.WithProgress(func(_ priorartsearch.Phase, msg string) {
				fmt.Fprintln(os.Stderr, msg)
			}))
		}

		res, err := a.engine.Search(ctx, query, opts...)
		if err != nil {
			return err
		}
		if a.store != nil {
			if err := a.store.SaveRun(ctx, res); err != nil {
				a.log.WithError(err).Warn("save run")
			}
		}

		md, err := a.engine.GenerateReport(ctx, res)
		if err != nil {
			return fmt.Errorf("%w (run %s was saved; retry with: prior-art-search report --run-id %s --regenerate)", err, res.ID, res.ID)
		}
		if a.store != nil {
			if err := a.store.SaveReport(ctx, res.ID.String(), md); err != nil {
				a.log.WithError(err).Warn("save report")
			}
		}

		format, _ := flags.GetString("format")
		out, _ := flags.GetString("out")
		if err := writeReport(ctx, c, format, out, reportTitle(res.Query), md); err != nil {
			return err
		}
		a.log.WithFields(logrus.Fields{
			"event":   "search_finished",
			"run_id":  res.ID.String(),
			"results": len(res.Results),
			"out":     out,
		}).Info("done")
		if out != "" {
			fmt.Fprintf(os.Stderr, "run %s: %d patents selected, report written to %s\n", res.ID, len(res.Results), out)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("max-results", priorartsearch.DefaultMaxResults, "maximum number of patents to keep")
	searchCmd.Flags().Float64("threshold", priorartsearch.DefaultRelevanceThreshold, "minimum relevance score in [0,1]; overrides any domain threshold")
	searchCmd.Flags().String("domain", "", "technology domain label used for the threshold, e.g. AI_ML or 5G_TELECOM")
	searchCmd.Flags().String("scorer", "", "relevance scorer: llm or keyword (default from config)")
	searchCmd.Flags().String("format", "md", "report format: md, html, or pdf")
	searchCmd.Flags().StringP("out", "o", "", "output file (default stdout)")
	searchCmd.Flags().Bool("no-store", false, "do not save the run or use the claims cache")
	searchCmd.Flags().BoolP("quiet", "q", false, "suppress progress messages")

	rootCmd.AddCommand(searchCmd)
}
