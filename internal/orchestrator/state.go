package orchestrator

import (
	"context"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/core/domain"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/utils"
)

func (o *Orchestrator) status(t *task) domain.TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap.Status
}

func (o *Orchestrator) currentProgress(t *task) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap.Progress
}

func (o *Orchestrator) transition(t *task, to domain.TaskStatus, progress float64) error {
	t.mu.Lock()
	from := t.snap.Status
	if !domain.CanTransition(from, to) {
		t.mu.Unlock()
		return utils.WrapError(ErrInvalidTransition, "refusing status change", map[string]any{
			"from": string(from),
			"to":   string(to),
		})
	}
	t.snap.Status = to
	t.snap.Progress = progress
	t.mu.Unlock()

	o.log(t).WithFields(map[string]any{"from": string(from), "to": string(to)}).Debug("Task status changed")
	o.save(t)
	return nil
}

// progress raises the reported percentage; it never moves backwards.
func (o *Orchestrator) progress(t *task, percent float64) {
	t.mu.Lock()
	if int(percent) <= int(t.snap.Progress) || t.snap.Status.IsTerminal() {
		t.mu.Unlock()
		return
	}
	t.snap.Progress = percent
	t.mu.Unlock()
	o.save(t)
}

func (o *Orchestrator) warn(t *task, message string) {
	t.mu.Lock()
	t.snap.Warnings = append(t.snap.Warnings, message)
	t.mu.Unlock()
	o.save(t)
}

// fail moves t to failed. message is for the requester, detail for operators.
func (o *Orchestrator) fail(t *task, message, detail string) {
	t.mu.Lock()
	if t.snap.Status.IsTerminal() {
		t.mu.Unlock()
		return
	}
	t.snap.Status = domain.StatusFailed
	t.snap.Error = message
	t.snap.Detail = detail
	t.mu.Unlock()

	o.log(t).WithField("detail", detail).Error("Download task failed")
	o.save(t)
}

func (o *Orchestrator) finishCancelled(t *task) {
	t.mu.Lock()
	if t.snap.Status.IsTerminal() {
		t.mu.Unlock()
		return
	}
	t.snap.Status = domain.StatusCancelled
	t.mu.Unlock()

	o.log(t).Info("Download task cancelled")
	o.save(t)
}

// save publishes the current snapshot. A store failure is logged and the task
// keeps running.
func (o *Orchestrator) save(t *task) {
	t.mu.Lock()
	t.snap.UpdatedAt = o.now()
	snap := t.snap.Clone()
	t.mu.Unlock()

	if err := o.deps.Store.Update(context.Background(), snap); err != nil {
		o.log(t).WithError(err).Warn("Failed to store task snapshot")
	}
}
