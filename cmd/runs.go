package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jfmyers9/firstscrobbles/internal/config"
	"github.com/jfmyers9/firstscrobbles/internal/export"
	"github.com/jfmyers9/firstscrobbles/internal/firsts"
	"github.com/spf13/cobra"
)

var (
	runsLimit    int
	runsShow     string
	runsCleanup  time.Duration
	runsTimezone string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored runs or show one run's results",
	Long: `List the runs kept in the local result store, newest first.

Use --show with a run ID to print that run's table, and --cleanup to
delete runs older than the given age.

Examples:
  firstscrobbles runs
  firstscrobbles runs --show 3f6c1e1a-8a0e-4d59-9a57-2f1f0c7c1a52
  firstscrobbles runs --cleanup 720h`,
	Args: cobra.NoArgs,
	RunE: runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs to list (0 = all)")
	runsCmd.Flags().StringVar(&runsShow, "show", "", "Print the rows of this run")
	runsCmd.Flags().DurationVar(&runsCleanup, "cleanup", 0, "Delete runs older than this age")
	runsCmd.Flags().StringVar(&runsTimezone, "timezone", "", "IANA time zone for dates (default: system zone)")
}

func runRuns(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("timezone") {
		cfg.Timezone = runsTimezone
	}
	if cfg.Store.Path == "" {
		return fmt.Errorf("result store is disabled (store.path is empty)")
	}

	store, err := export.OpenStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open result store: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case runsCleanup > 0:
		deleted, err := store.Cleanup(ctx, runsCleanup)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %d run(s) older than %s\n", deleted, runsCleanup)
		return nil

	case runsShow != "":
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		rows, err := store.RunRows(ctx, runsShow)
		if err != nil {
			return err
		}
		for i := range rows {
			rows[i].FirstScrobbled = rows[i].FirstScrobbled.In(loc)
		}
		w := export.NewTableWriter(out, 0)
		if _, err := export.Write(w, rows, setupLogger(logFile, logLevel)); err != nil {
			return err
		}
		return w.Close()

	default:
		runs, err := store.ListRuns(ctx, runsLimit)
		if err != nil {
			return err
		}
		return printRuns(out, runs)
	}
}

func printRuns(out io.Writer, runs []firsts.Summary) error {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No stored runs.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tUSER\tFINISHED\tARTISTS\tPAGES\tMISSING\tSTATUS")
	for _, r := range runs {
		status := "ok"
		if r.FatalError != "" {
			status = "failed: " + r.FatalError
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%d\t%s\n",
			r.RunID,
			r.Username,
			humanize.Time(r.FinishedAt),
			humanize.Comma(int64(r.TotalArtists)),
			r.PagesFetched, r.TotalPages,
			r.MissingPageCount(),
			status,
		)
	}
	return tw.Flush()
}
