package saga

import (
	"context"
	"strconv"

	"github.com/thomas-vilte/materelease/internal/errors"
	"github.com/thomas-vilte/materelease/internal/logger"
	"github.com/thomas-vilte/materelease/internal/worker"
)

type compensation struct {
	action Action
	target string
	issue  func() uint64
}

// rollback walks the compensations of a failed run one at a time. It holds
// the active-run slot until every compensation has an outcome.
type rollback struct {
	report   Report
	steps    []compensation
	next     int
	awaiting uint64
}

// compensationsFor lists what r created, newest first: release, then the
// remote tag (only if it was pushed), then the local tag.
func (s *Saga) compensationsFor(r *run) []compensation {
	var steps []compensation
	dir, tag, token, handle := r.handle.LocalPath, r.draft.TagName, r.settings.Token, r.handle

	if r.release.ID != 0 {
		id := r.release.ID
		steps = append(steps, compensation{
			action: ActionDeleteRelease,
			target: strconv.FormatInt(id, 10),
			issue:  func() uint64 { return s.deps.API.DeleteRelease(token, handle, id) },
		})
	}
	if r.tagCreated {
		if r.tagPushed {
			steps = append(steps, compensation{
				action: ActionDeleteRemoteTag,
				target: tag,
				issue:  func() uint64 { return s.deps.VCS.DeleteRemoteTag(dir, tag) },
			})
		}
		steps = append(steps, compensation{
			action: ActionDeleteLocalTag,
			target: tag,
			issue:  func() uint64 { return s.deps.VCS.DeleteTag(dir, tag) },
		})
	}
	return steps
}

func (s *Saga) startRollback(ctx context.Context, r *run, cause error) {
	s.rollback = &rollback{
		steps: s.compensationsFor(r),
		report: Report{
			RunID:      r.id,
			Tag:        r.draft.TagName,
			Repository: r.handle.FullName(),
			Outcome:    StepFailed,
			Err:        cause,
			StartedAt:  r.startedAt,
		},
	}
	if len(s.rollback.steps) > 0 {
		logger.Info(ctx, "rolling back", "run", r.id, "actions", len(s.rollback.steps))
	}
	s.issueNext(ctx)
}

func (s *Saga) issueNext(ctx context.Context) {
	rb := s.rollback
	for rb.next < len(rb.steps) {
		c := rb.steps[rb.next]
		s.sink.StepChanged(rb.report.RunID, StepRollingBack,
			s.text("step_rolling_back", map[string]interface{}{"Action": describe(c)}))

		ticket := c.issue()
		if ticket != 0 {
			rb.awaiting = ticket
			return
		}
		s.recordCompensation(ctx, c, errors.ErrWorkerClosed)
	}
	s.settleRollback(ctx)
}

func describe(c compensation) string {
	return string(c.action) + " " + c.target
}

func (s *Saga) handleRollback(ctx context.Context, ev worker.Event) {
	rb := s.rollback
	rb.awaiting = 0
	c := rb.steps[rb.next]

	var err error
	if failed, ok := ev.(worker.OperationFailed); ok {
		err = failed.Reason
	}
	s.recordCompensation(ctx, c, err)
	s.issueNext(ctx)
}

func (s *Saga) recordCompensation(ctx context.Context, c compensation, err error) {
	rb := s.rollback
	rb.next++
	rb.report.Actions = append(rb.report.Actions, ActionResult{Action: c.action, Target: c.target, Err: err})
	if err != nil {
		logger.Warn(ctx, "compensation failed", "run", rb.report.RunID, "action", c.action, "target", c.target, "error", err)
		return
	}
	logger.Debug(ctx, "compensation done", "run", rb.report.RunID, "action", c.action, "target", c.target)
}

func (s *Saga) settleRollback(ctx context.Context) {
	report := s.rollback.report
	s.rollback = nil

	failed := len(report.FailedActions())
	report.ManualCleanup = failed > 0
	switch {
	case len(report.Actions) == 0:
		report.Message = s.text("rollback_nothing", nil)
	case failed > 0:
		report.Message = s.translatePlural("rollback_manual_cleanup", failed)
	default:
		report.Message = s.translatePlural("rollback_clean", len(report.Actions))
	}
	report.FinishedAt = s.now()

	if report.ManualCleanup {
		logger.Warn(ctx, "rollback incomplete, manual cleanup required", "run", report.RunID, "failed", failed)
	} else {
		logger.Info(ctx, "rollback settled", "run", report.RunID, "actions", len(report.Actions))
	}
	s.sink.Settled(report)
}

func (s *Saga) translatePlural(id string, count int) string {
	if s.deps.Translator == nil {
		return id
	}
	return s.deps.Translator.GetMessage(id, count, map[string]interface{}{"Count": count})
}
