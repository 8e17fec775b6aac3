package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/joelkehle/prior-art-engine/internal/logging"
	"github.com/joelkehle/prior-art-engine/internal/runstore"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write the report for a stored run",
	Long: `report prints the saved report of a previous search. With --regenerate, or
when the run has no saved report, the report is generated again from the
stored results.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		runID, _ := flags.GetString("run-id")
		if runID == "" {
			return errors.New("--run-id is required")
		}
		regenerate, _ := flags.GetBool("regenerate")
		format, _ := flags.GetString("format")
		out, _ := flags.GetString("out")
		ctx := cmd.Context()

		store := openStore(cfg, logging.WithComponent(logger, "cli"))
		if store == nil {
			return errors.New("run store is not available")
		}
		defer store.Close()

		res, err := store.LoadRun(ctx, runID)
		if err != nil {
			return fmt.Errorf("run %s: %w", runID, err)
		}
		md := ""
		if !regenerate {
			if md, err = store.LoadReport(ctx, runID); err != nil {
				return err
			}
		}
		if md == "" {
			a, err := newApp(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			if md, err = a.engine.GenerateReport(ctx, res); err != nil {
				return err
			}
			if err := store.SaveReport(ctx, runID, md); err != nil {
				a.log.WithError(err).Warn("save report")
			}
		}
		return writeReport(ctx, cfg, format, out, reportTitle(res.Query), md)
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored search runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")
		store := openStore(cfg, logging.WithComponent(logger, "cli"))
		if store == nil {
			return errors.New("run store is not available")
		}
		defer store.Close()

		runs, err := store.ListRuns(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(runs)
		}
		return printRuns(runs)
	},
}

func printRuns(runs []runstore.Summary) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tCREATED\tRESULTS\tREPORT\tQUERY")
	for _, r := range runs {
		report := "no"
		if r.HasReport {
			report = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", r.ID, r.CreatedAt.Local().Format(time.DateTime), r.ResultCount, report, truncate(r.Query, 60))
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	reportCmd.Flags().String("run-id", "", "id of the stored run")
	reportCmd.Flags().Bool("regenerate", false, "generate the report again instead of printing the saved one")
	reportCmd.Flags().String("format", "md", "report format: md, html, or pdf")
	reportCmd.Flags().StringP("out", "o", "", "output file (default stdout)")
	runsCmd.Flags().Int("limit", 20, "maximum runs to list")
	runsCmd.Flags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(reportCmd, runsCmd)
}
