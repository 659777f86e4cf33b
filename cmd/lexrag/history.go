package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/liliang-cn/lexrag/internal/domain"
	"github.com/spf13/cobra"
)

var historyLimit int

// historyCmd prints the local send log
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent sends from the local send log",
	Long: `Shows the outcome of recent questions: strategy, final phase, failure kind,
token and source counts, dropped stream lines and duration.

The send log holds no message content.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if !cfg.Database.Enabled {
		return errors.New("send log is disabled (database.enabled = false)")
	}
	sendLog, closeLog, err := openSendLog()
	if err != nil {
		return err
	}
	defer closeLog()

	records, err := sendLog.ListRecent(cmd.Context(), historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read send log: %w", err)
	}
	printHistory(cmd.OutOrStdout(), records)
	return nil
}

func printHistory(out io.Writer, records []*domain.SendRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No sends recorded.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tSESSION\tSTRATEGY\tPHASE\tERROR\tTOKENS\tSOURCES\tSKIPPED\tDURATION")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			orDash(shortID(r.SessionID)),
			orDash(string(r.Strategy)),
			r.Phase,
			orDash(string(r.ErrorKind)),
			r.Tokens,
			r.SourceCount,
			r.Skipped,
			r.Duration().Round(time.Millisecond),
		)
	}
	w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
