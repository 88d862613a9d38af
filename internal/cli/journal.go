package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/brp/internal/brp"
	"github.com/roach88/brp/internal/harness"
	"github.com/roach88/brp/internal/metrics"
	"github.com/roach88/brp/internal/session"
	"github.com/roach88/brp/internal/store"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	Session  string
	Kinds    []string
	Errors   bool
	Code     string
	AfterSeq int64
	Limit    int
}

// filter returns the exchange filter selected by the flags, and whether
// any was set. Without one the command lists sessions.
func (o *JournalOptions) filter() (store.Filter, bool) {
	f := store.Filter{
		Session:  o.Session,
		Errors:   o.Errors,
		Code:     brp.ErrorCode(o.Code),
		AfterSeq: o.AfterSeq,
		Limit:    o.Limit,
	}
	for _, k := range o.Kinds {
		f.Kinds = append(f.Kinds, brp.RequestKind(k))
	}
	set := f.Session != "" || len(f.Kinds) > 0 || f.Errors || f.Code != "" || f.AfterSeq > 0 || f.Limit > 0
	return f, set
}

// SessionRow is one journaled session in command output.
type SessionRow struct {
	Label     string `json:"label"`
	Format    string `json:"format"`
	Exchanges int    `json:"exchanges"`
	Errors    int    `json:"errors"`
	FirstSeq  int64  `json:"first_seq"`
	LastSeq   int64  `json:"last_seq"`
}

// ExchangeRow is one journaled exchange in command output.
type ExchangeRow struct {
	Seq      int64           `json:"seq"`
	Tick     uint64          `json:"tick"`
	Session  string          `json:"session"`
	Kind     string          `json:"kind"`
	Outcome  string          `json:"outcome"`
	Duration string          `json:"duration"`
	Request  json.RawMessage `json:"request"`
	Response json.RawMessage `json:"response"`
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal <db>",
		Short: "Inspect the exchange journal",
		Long: `List the sessions recorded in a journal. With any filter flag, list
the matching exchanges in the order they were answered instead.

Examples:
  brp journal brp.db
  brp journal brp.db --session http
  brp journal brp.db --kind InsertComponent --kind SpawnEntity
  brp journal brp.db --errors --after 1200 --limit 50
  brp journal brp.db --code EntityNotFound --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Session, "session", "s", "", "only exchanges of this session")
	cmd.Flags().StringSliceVarP(&opts.Kinds, "kind", "k", nil, "only these request kinds (repeatable)")
	cmd.Flags().BoolVar(&opts.Errors, "errors", false, "only exchanges answered with an error")
	cmd.Flags().StringVar(&opts.Code, "code", "", "only exchanges answered with this error code")
	cmd.Flags().Int64Var(&opts.AfterSeq, "after", 0, "only exchanges after this seq")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "at most this many exchanges")

	return cmd
}

func runJournal(opts *JournalOptions, path string, cmd *cobra.Command) error {
	// store.Open would create a missing file.
	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("journal not found: %s", path), err)
	}
	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	out := opts.output(cmd)

	filter, filtered := opts.filter()
	if !filtered {
		infos, err := st.Sessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read sessions", err)
		}
		rows := make([]SessionRow, len(infos))
		for i, s := range infos {
			rows[i] = SessionRow{
				Label:     s.Label,
				Format:    s.Format.String(),
				Exchanges: s.Exchanges,
				Errors:    s.Errors,
				FirstSeq:  s.FirstSeq,
				LastSeq:   s.LastSeq,
			}
		}
		return out.Success(rows, func(w io.Writer) { writeSessions(w, rows) })
	}

	exchanges, err := st.Find(ctx, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read exchanges", err)
	}
	if len(exchanges) == 0 {
		return NewExitError(ExitFailure, "no matching exchanges")
	}
	rows := make([]ExchangeRow, 0, len(exchanges))
	for _, ex := range exchanges {
		row, err := exchangeRow(ex)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to encode exchange", err)
		}
		rows = append(rows, row)
	}
	return out.Success(rows, func(w io.Writer) { writeExchanges(w, rows, opts.Verbose) })
}

func exchangeRow(ex session.Exchange) (ExchangeRow, error) {
	ev, err := harness.NewTraceEvent(ex)
	if err != nil {
		return ExchangeRow{}, err
	}
	return ExchangeRow{
		Seq:      ev.Seq,
		Tick:     ev.Tick,
		Session:  ev.Session,
		Kind:     ev.Kind,
		Outcome:  metrics.Outcome(ex.Response),
		Duration: ex.Duration.String(),
		Request:  ev.Request,
		Response: ev.Response,
	}, nil
}

func writeSessions(w io.Writer, rows []SessionRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No sessions recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tFORMAT\tEXCHANGES\tERRORS\tSEQ")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d-%d\n", r.Label, r.Format, r.Exchanges, r.Errors, r.FirstSeq, r.LastSeq)
	}
	tw.Flush()
}

func writeExchanges(w io.Writer, rows []ExchangeRow, verbose bool) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTICK\tSESSION\tKIND\tOUTCOME\tDURATION")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\n", r.Seq, r.Tick, r.Session, r.Kind, r.Outcome, r.Duration)
		if verbose {
			fmt.Fprintf(tw, "\t\t\t> %s\n\t\t\t< %s\n", r.Request, r.Response)
		}
	}
	tw.Flush()
}
