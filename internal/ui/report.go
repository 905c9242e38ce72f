package ui

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/thomas-vilte/materelease/internal/history"
	"github.com/thomas-vilte/materelease/internal/i18n"
	"github.com/thomas-vilte/materelease/internal/saga"
)

// PrintManualCleanup lists the compensations that failed so the user knows
// what is still left on the remote or in the local repository.
func PrintManualCleanup(w io.Writer, r saga.Report) {
	failed := r.FailedActions()
	if len(failed) == 0 {
		return
	}
	red := color.New(color.FgRed)
	for _, a := range failed {
		_, _ = fmt.Fprintf(w, "   %s %s %s\n", red.Sprint("•"), a.Action, Accent.Sprint(a.Target))
		_, _ = fmt.Fprintf(w, "     %s\n", Dim.Sprint(a.Err))
	}
}

// PrintHistory renders entries as a table, newest first.
func PrintHistory(w io.Writer, t *i18n.Translations, entries []history.Entry) {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, t.GetMessage("history_empty", 0, nil))
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		outcome := Success.Sprint(e.Outcome)
		if e.Failed() {
			outcome = Error.Sprint(e.Outcome)
		}
		cleanup := ""
		if e.ManualCleanup {
			cleanup = Warning.Sprint("manual cleanup")
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.FinishedAt.Local().Format(time.DateTime),
			e.Repository,
			e.Tag,
			outcome,
			Dim.Sprint(e.FinishedAt.Sub(e.StartedAt).Round(time.Second)),
			cleanup,
		)
	}
	_ = tw.Flush()

	for _, e := range entries {
		if e.Error == "" {
			continue
		}
		_, _ = fmt.Fprintf(w, "\n%s %s\n", Accent.Sprint(e.RunID), Dim.Sprint(e.Error))
		for _, a := range e.Actions {
			mark := Success.Sprint("✓")
			if a.Error != "" {
				mark = Error.Sprint("✗")
			}
			_, _ = fmt.Fprintf(w, "   %s %s %s\n", mark, a.Name, a.Target)
		}
	}
}
