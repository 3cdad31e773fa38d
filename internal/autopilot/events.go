package autopilot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"magabot/internal/logging"
	"magabot/internal/models"
)

// resumeEventID marks advance events queued by the resume job. Their
// throttle and daily-cap pauses are not re-announced.
const resumeEventID = "resume"

func (m *Machine) handle(ctx context.Context, r *runner, ev models.CaseEvent) error {
	r.proc.Lock()
	defer r.proc.Unlock()
	r.setBusy(true)
	defer r.setBusy(false)

	c, err := m.Get(ctx, ev.CaseID)
	if err != nil {
		if ev.Kind == models.CaseEventCancel {
			r.clearCancel()
		}
		return err
	}

	switch ev.Kind {
	case models.CaseEventStart:
		return m.runStage(ctx, r, c, false)
	case models.CaseEventAdvance:
		if ev.Stage != "" && ev.Stage != c.Stage {
			log.Printf("⏭️ [AUTOPILOT] Dropping stale advance for case %s (issued for %s, now %s)", c.ID, ev.Stage, c.Stage)
			return nil
		}
		return m.runStage(ctx, r, c, ev.EventID == resumeEventID)
	case models.CaseEventRetry:
		return m.retry(ctx, r, c)
	case models.CaseEventCancel:
		return m.cancel(ctx, r, c)
	case models.CaseEventStatus:
		m.notify(ctx, c, NoticeStatus, StatusText(c, m.Settings()))
		return nil
	case models.CaseEventInput:
		return m.input(ctx, c, ev.Text)
	}
	return fmt.Errorf("unknown case event kind %q", ev.Kind)
}

// runStage executes the handler of the case's current stage and commits the outcome
func (m *Machine) runStage(ctx context.Context, r *runner, c *models.Case, quiet bool) error {
	if !c.Active() {
		return nil
	}
	stage := c.Stage
	handler, ok := m.stageHandler(stage)
	if !ok {
		return fmt.Errorf("no handler for stage %s", stage)
	}
	logger := logging.WithCase(nil, c.ID, string(stage))
	inv := newGuardedInvoker(m.deps.Invoker, m.deps.Guard)

	stageCtx, gen, ok := r.beginStage(ctx)
	if !ok {
		logger.Info("stage skipped, cancel pending")
		return nil
	}
	work := c.Clone()
	started := m.now()
	err := handler(stageCtx, work, inv)
	if !r.endStage(gen) {
		logger.Info("stage result discarded after cancel", "error", err)
		return nil
	}
	if err != nil && ctx.Err() != nil {
		// shutting down; the resume job picks the stage up again
		return ctx.Err()
	}
	logger.Debug("stage finished", "duration", m.now().Sub(started), "error", err)

	if d, denied := inv.throttled(); denied && err != nil {
		// a deny pauses the stage: no attempt is charged and the work done
		// before it is kept
		logger.Info("stage throttled", "reason", d.Reason, "retry_after", d.RetryAfter)
		if saveErr := m.save(ctx, work); saveErr != nil {
			return saveErr
		}
		if !quiet {
			m.notify(ctx, work, NoticeThrottled, fmt.Sprintf(
				"⏳ Too many requests right now. %s is paused and will continue in about %s.",
				stage.Title(), roundWait(d.RetryAfter)))
		}
		return d.Err()
	}

	switch {
	case err == nil:
		return m.completeStage(ctx, r, work)
	case errors.Is(err, errDailyCap):
		if saveErr := m.save(ctx, work); saveErr != nil {
			return saveErr
		}
		if !quiet {
			m.notify(ctx, work, NoticeThrottled, fmt.Sprintf(
				"⏸️ Daily application limit of %d reached. Applying continues tomorrow.", work.Criteria.MaxApplyPerDay))
		}
		return nil
	default:
		return m.failStage(ctx, work, err)
	}
}

func (m *Machine) completeStage(ctx context.Context, r *runner, c *models.Case) error {
	stage := c.Stage
	next := stage.Next()
	summary := stageSummary(stage, c)
	if !m.transition(c, next, "") {
		return fmt.Errorf("case %s: cannot advance from %s", c.ID, stage)
	}
	if err := m.save(ctx, c); err != nil {
		return err
	}
	log.Printf("✅ [AUTOPILOT] Case %s: %s → %s", c.ID, stage, next)

	if next == models.StageDone {
		m.unlink(ctx, c)
		m.notify(ctx, c, NoticeDone, summary+"\n🎉 Auto-pilot finished. Send /export for the full report.")
		return nil
	}
	m.notify(ctx, c, NoticeProgress, summary)

	if m.Settings().AutoAdvance {
		err := r.enqueue(models.CaseEvent{
			CaseID: c.ID,
			UserID: c.UserID,
			ChatID: c.ChatID,
			Kind:   models.CaseEventAdvance,
			Stage:  next,
		})
		if err != nil {
			log.Printf("⚠️ [AUTOPILOT] Could not queue %s for case %s: %v (left to the resume job)", next, c.ID, err)
		}
	}
	return nil
}

func (m *Machine) failStage(ctx context.Context, c *models.Case, err error) error {
	stage := c.Stage
	if !errors.Is(err, ErrStageFailure) {
		err = stageFailure(stage, userReason(err), err)
	}
	c.Attempts[stage]++
	attempts := c.Attempts[stage]
	limit := m.Settings().MaxAttemptsFor(stage)
	reason := userReason(err)

	if attempts < limit {
		if saveErr := m.save(ctx, c); saveErr != nil {
			return saveErr
		}
		log.Printf("⚠️ [AUTOPILOT] Case %s: %s attempt %d/%d failed: %v", c.ID, stage, attempts, limit, err)
		m.notify(ctx, c, NoticeRetryable, fmt.Sprintf(
			"⚠️ %s failed (attempt %d of %d): %s. Send /retry to try again now.",
			stage.Title(), attempts, limit, reason))
		return err
	}

	c.FailedStage = stage
	c.FailureReason = reason
	m.transition(c, models.StageFailed, reason)
	if saveErr := m.save(ctx, c); saveErr != nil {
		return saveErr
	}
	m.unlink(ctx, c)
	log.Printf("❌ [AUTOPILOT] Case %s failed at %s after %d attempts: %v", c.ID, stage, attempts, err)
	m.notify(ctx, c, NoticeFailed, fmt.Sprintf(
		"❌ Auto-pilot stopped at %s after %d attempts: %s. Send /retry to resume from this stage.",
		stage.Title(), attempts, reason))
	return err
}

func (m *Machine) retry(ctx context.Context, r *runner, c *models.Case) error {
	switch {
	case c.Cancelled:
		m.notify(ctx, c, NoticeInfo, "This case was cancelled and can't be resumed. Send /autopilot to start a new one.")
		return ErrNotRetryable
	case c.Stage == models.StageDone:
		m.notify(ctx, c, NoticeInfo, "This case is already finished. Send /export for the report.")
		return ErrNotRetryable
	case c.Stage == models.StageFailed:
		if !canTransition(c, c.FailedStage) {
			return ErrNotRetryable
		}
		if m.deps.Sessions != nil {
			if err := m.deps.Sessions.LinkCase(ctx, c.UserID, c.ID); err != nil {
				m.notify(ctx, c, NoticeInfo, "Another auto-pilot case is running. Cancel it before retrying this one.")
				return err
			}
		}
		stage := c.FailedStage
		if !m.transition(c, stage, "retry") {
			return ErrNotRetryable
		}
		c.Attempts[stage] = 0
		c.FailureReason = ""
		if err := m.save(ctx, c); err != nil {
			return err
		}
		m.notify(ctx, c, NoticeProgress, fmt.Sprintf("🔁 Resuming from %s.", stage.Title()))
	}
	return m.runStage(ctx, r, c, false)
}

func (m *Machine) cancel(ctx context.Context, r *runner, c *models.Case) error {
	defer r.clearCancel()
	if !c.Active() {
		m.notify(ctx, c, NoticeInfo, fmt.Sprintf("Nothing to cancel: the case is already %s.", c.Stage))
		return nil
	}
	stage := c.Stage
	c.Cancelled = true
	c.FailedStage = stage
	c.FailureReason = "cancelled by user"
	m.transition(c, models.StageFailed, "cancelled")
	if err := m.save(ctx, c); err != nil {
		return err
	}
	m.unlink(ctx, c)
	log.Printf("🛑 [AUTOPILOT] Case %s cancelled at %s", c.ID, stage)
	m.notify(ctx, c, NoticeFailed, fmt.Sprintf("🛑 Auto-pilot cancelled at %s. Send /autopilot to start a new search.", stage.Title()))
	return nil
}

// input records free text sent while a case runs
func (m *Machine) input(ctx context.Context, c *models.Case, text string) error {
	if text != "" && c.Active() {
		c.Artifacts.Notes = append(c.Artifacts.Notes, text)
		if err := m.save(ctx, c); err != nil {
			return err
		}
	}
	m.notify(ctx, c, NoticeInfo, fmt.Sprintf(
		"📝 Noted. Auto-pilot is at %s. Use /status, /cancel or /mode while it runs.", c.Stage.Title()))
	return nil
}

func roundWait(d time.Duration) time.Duration {
	if d < time.Second {
		return time.Second
	}
	return d.Round(time.Second)
}
