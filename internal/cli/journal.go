package cli

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/lpsuspend/internal/engine"
	"github.com/roach88/lpsuspend/internal/ir"
	"github.com/roach88/lpsuspend/internal/store"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	DB       string
	TxID     string
	Platform string
	Outcome  string // "ok", "error" or an error code
	Limit    int
	Stats    bool
}

// JournalStats counts journaled transactions per outcome code.
type JournalStats struct {
	Total    int            `json:"total"`
	Outcomes map[string]int `json:"outcomes"`
	LastSeq  int64          `json:"last_seq"`
	Format   string         `json:"format"`
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show journaled sleep transactions",
		Long: `Show the sleep transactions journaled by enter --db.

Without --tx the transactions are listed oldest first; --tx shows one
transaction with every state it passed through. --stats counts the
transactions per outcome.

Examples:
  lpsuspend journal --db journal.db
  lpsuspend journal --db journal.db --outcome VETOED --limit 10
  lpsuspend journal --db journal.db --tx 0190c3d2-...
  lpsuspend journal --db journal.db --stats --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "journal database path (required)")
	cmd.Flags().StringVar(&opts.TxID, "tx", "", "show one transaction")
	cmd.Flags().StringVar(&opts.Platform, "platform", "", "only transactions on this platform")
	cmd.Flags().StringVar(&opts.Outcome, "outcome", "", "only transactions with this outcome (ok, error or a code)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "only the most recent N transactions (0 = all)")
	cmd.Flags().BoolVar(&opts.Stats, "stats", false, "count transactions per outcome")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runJournal(opts *JournalOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.Outcome != "" && opts.Outcome != engine.OutcomeOK && opts.Outcome != "error" && !engine.IsKnownCode(opts.Outcome) {
		return commandError(formatter, ErrCodeBadFlag, fmt.Sprintf("unknown outcome %q", opts.Outcome))
	}

	// store.Open creates missing databases; a typo should not.
	if _, err := os.Stat(opts.DB); err != nil {
		return commandError(formatter, ErrCodeNotFound, fmt.Sprintf("journal not found: %s", opts.DB))
	}
	st, err := store.Open(opts.DB)
	if err != nil {
		return commandError(formatter, ErrCodeJournal, fmt.Sprintf("open journal: %v", err))
	}
	defer st.Close()

	switch {
	case opts.TxID != "":
		rec, err := st.ReadTransaction(ctx, opts.TxID)
		if errors.Is(err, store.ErrNotFound) {
			return commandError(formatter, ErrCodeNotFound, fmt.Sprintf("transaction %s not found", opts.TxID))
		}
		if err != nil {
			return commandError(formatter, ErrCodeJournal, err.Error())
		}
		if formatter.Format == "json" {
			return formatter.Success(rec)
		}
		printTransaction(formatter, rec, true)
		return nil

	case opts.Stats:
		counts, err := st.CountByOutcome(ctx)
		if err != nil {
			return commandError(formatter, ErrCodeJournal, err.Error())
		}
		last, err := st.LastSeq(ctx)
		if err != nil {
			return commandError(formatter, ErrCodeJournal, err.Error())
		}
		stats := JournalStats{Outcomes: counts, LastSeq: last, Format: st.Format()}
		for _, n := range counts {
			stats.Total += n
		}
		if formatter.Format == "json" {
			return formatter.Success(stats)
		}
		printStats(formatter, stats)
		return nil
	}

	recs, err := listTransactions(cmd, st, opts)
	if err != nil {
		return commandError(formatter, ErrCodeJournal, err.Error())
	}
	if formatter.Format == "json" {
		return formatter.Success(recs)
	}
	if len(recs) == 0 {
		fmt.Fprintln(formatter.Writer, "No transactions.")
		return nil
	}
	for _, rec := range recs {
		printTransaction(formatter, rec, false)
	}
	return nil
}

// listTransactions applies the filters. Error codes live in their own
// column, so filtering on one happens here rather than in the query.
func listTransactions(cmd *cobra.Command, st *store.Store, opts *JournalOptions) ([]ir.TransactionRecord, error) {
	list := store.ListOptions{Platform: opts.Platform, Outcome: opts.Outcome, Limit: opts.Limit}
	code := ""
	if opts.Outcome != "" && opts.Outcome != engine.OutcomeOK && opts.Outcome != "error" {
		code = opts.Outcome
		list.Outcome = "error"
		list.Limit = 0
	}

	recs, err := st.ListTransactions(cmd.Context(), list)
	if err != nil || code == "" {
		return recs, err
	}

	filtered := []ir.TransactionRecord{}
	for _, rec := range recs {
		if rec.Error == code {
			filtered = append(filtered, rec)
		}
	}
	if opts.Limit > 0 && len(filtered) > opts.Limit {
		filtered = filtered[len(filtered)-opts.Limit:]
	}
	return filtered, nil
}

func printTransaction(f *OutputFormatter, rec ir.TransactionRecord, transitions bool) {
	outcome := rec.Outcome
	if rec.Error != "" {
		outcome = rec.Error
	}
	fmt.Fprintf(f.Writer, "%s %s  %s %s  %s", f.Mark(rec.Error == ""), rec.ID, rec.Platform, rec.Depth, outcome)
	if rec.Error == "" {
		fmt.Fprintf(f.Writer, "  raw=0x%x logical=%d", rec.RawEvent, rec.WakeCause)
	}
	fmt.Fprintf(f.Writer, "  attempts=%d  seq=%d\n", rec.Attempts, rec.Seq)
	if !transitions {
		return
	}
	fmt.Fprintf(f.Writer, "  program: %s\n", rec.ProgramHash)
	for _, t := range rec.Transitions {
		if t.Detail != "" {
			fmt.Fprintf(f.Writer, "  [%d] %s (%s)\n", t.Seq, t.State, t.Detail)
		} else {
			fmt.Fprintf(f.Writer, "  [%d] %s\n", t.Seq, t.State)
		}
	}
}

func printStats(f *OutputFormatter, stats JournalStats) {
	codes := make([]string, 0, len(stats.Outcomes))
	for code := range stats.Outcomes {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	fmt.Fprintf(f.Writer, "%d transaction(s), last seq %d, table format %s\n", stats.Total, stats.LastSeq, stats.Format)
	for _, code := range codes {
		fmt.Fprintf(f.Writer, "  %-18s %d\n", code, stats.Outcomes[code])
	}
}
