package ui

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/thomas-vilte/materelease/internal/i18n"
	"github.com/thomas-vilte/materelease/internal/saga"
)

// RunPlain prints one colored line per event for terminals without cursor
// control. Cancelling ctx requests cancellation once; the function still
// returns only after the run has settled or events is closed.
func RunPlain(ctx context.Context, w io.Writer, trans *i18n.Translations, events <-chan any, cancel func() bool) *saga.Report {
	arrow := color.New(color.FgCyan).Sprint("→")
	rollback := color.New(color.FgYellow)
	interrupt := ctx.Done()

	for {
		select {
		case <-interrupt:
			interrupt = nil
			if cancel() {
				_, _ = fmt.Fprintf(w, "%s %s\n", WarningEmoji, Warning.Sprint(trans.GetMessage("publish_cancel_requested", 0, nil)))
			}
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev := ev.(type) {
			case StepMsg:
				switch ev.Step {
				case saga.StepDone, saga.StepFailed:
				case saga.StepRollingBack:
					_, _ = fmt.Fprintf(w, "%s %s\n", arrow, rollback.Sprint(ev.Text))
				default:
					_, _ = fmt.Fprintf(w, "%s %s\n", arrow, ev.Text)
				}
			case FinishedMsg:
				if ev.Success {
					PrintSuccess(w, ev.Message)
				} else {
					PrintError(w, ev.Message)
				}
			case SettledMsg:
				r := saga.Report(ev)
				if r.Outcome == saga.StepFailed && r.Message != "" {
					if r.ManualCleanup {
						_, _ = fmt.Fprintf(w, "%s %s\n", WarningEmoji, Warning.Sprint(r.Message))
					} else {
						_, _ = fmt.Fprintf(w, "%s %s\n", InfoEmoji, Info.Sprint(r.Message))
					}
				}
				return &r
			}
		}
	}
}
