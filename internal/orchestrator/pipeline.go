package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/core/domain"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/fetch"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/selector"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/torrent"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/upload"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/utils"
)

// errCancelled ends a pipeline that observed the cancel flag.
var errCancelled = errors.New("task cancelled")

func (o *Orchestrator) run(t *task) {
	defer o.wg.Done()
	defer o.forget(t.snap.ID)

	select {
	case o.semaphore <- struct{}{}:
	case <-t.cancelled:
		o.finishCancelled(t)
		return
	case <-o.ctx.Done():
		o.finishCancelled(t)
		return
	}
	defer func() { <-o.semaphore }()

	defer func() {
		if r := recover(); r != nil {
			logutils.Log.WithFields(map[string]any{
				"task_id": t.snap.ID,
				"panic":   r,
				"stack":   string(debug.Stack()),
			}).Error("Download task panicked")
			o.fail(t, "internal error while downloading "+t.snap.Title, fmt.Sprint(r))
		}
	}()

	err := o.pipeline(t)
	switch {
	case err == nil:
	case errors.Is(err, errCancelled):
		o.finishCancelled(t)
	default:
		o.fail(t, "internal error while downloading "+t.snap.Title, err.Error())
	}
}

func (o *Orchestrator) log(t *task) *logutils.Logger {
	return logutils.Log.WithFields(map[string]any{"task_id": t.snap.ID, "title": t.snap.Title})
}

// checkpoint is called at every phase boundary.
func (o *Orchestrator) checkpoint(t *task) error {
	if t.isCancelled() || o.ctx.Err() != nil {
		return errCancelled
	}
	return nil
}

func (o *Orchestrator) pipeline(t *task) error {
	ctx := o.ctx

	if err := o.checkpoint(t); err != nil {
		return err
	}
	if err := o.transition(t, domain.StatusProbing, progressProbing); err != nil {
		return err
	}
	o.checkSources(ctx, t)

	if err := o.checkpoint(t); err != nil {
		return err
	}
	if err := o.transition(t, domain.StatusExtracting, progressExtracting); err != nil {
		return err
	}

	lastErr, done, err := o.streamSources(ctx, t)
	if err != nil || done {
		return err
	}
	return o.torrentFallback(ctx, t, lastErr)
}

// checkSources only reports availability. Mirrors are checked again during
// extraction, so an unreachable source here is never skipped.
func (o *Orchestrator) checkSources(ctx context.Context, t *task) {
	if len(o.deps.Sources) == 0 {
		return
	}
	reachable := 0
	for _, src := range o.deps.Sources {
		if src.Reachable(ctx) {
			reachable++
		}
	}
	o.log(t).WithFields(map[string]any{
		"reachable": reachable,
		"sources":   len(o.deps.Sources),
	}).Info("Streaming source availability checked")
	if reachable == 0 {
		o.warn(t, "no streaming source answered the availability check")
	}
}

// streamSources walks the streaming sources in order. done is true when a file
// was fetched and the task has finished.
func (o *Orchestrator) streamSources(ctx context.Context, t *task) (lastErr error, done bool, err error) {
	for _, src := range o.deps.Sources {
		if err := o.checkpoint(t); err != nil {
			return lastErr, false, err
		}
		name := src.Descriptor().Name
		if status := o.status(t); status != domain.StatusExtracting {
			if err := o.transition(t, domain.StatusExtracting, progressExtracting); err != nil {
				return lastErr, false, err
			}
		}

		cand, locateErr := src.Locate(ctx, t.query)
		if locateErr != nil {
			o.log(t).WithError(locateErr).WithField("source", name).Info("No candidate from source")
			lastErr = fmt.Errorf("source %s: %w", name, locateErr)
			continue
		}
		if cand.Blocked || domain.IsBlockedLocator(cand.Locator) {
			o.log(t).WithField("source", name).Warn("Source returned a blocked candidate, skipping")
			continue
		}

		if err := o.checkpoint(t); err != nil {
			return lastErr, false, err
		}
		if err := o.transition(t, domain.StatusFetching, progressFetchStart); err != nil {
			return lastErr, false, err
		}
		file, fetchErr := o.deps.Fetcher.Fetch(ctx, cand, fetch.Target{
			Title:    t.snap.Title,
			TaskID:   t.snap.ID,
			Progress: func(p float64) { o.progress(t, progressFetchStart+p*progressFetchSpan/100) },
		})
		if fetchErr != nil {
			o.log(t).WithError(fetchErr).WithField("source", name).Warn("Fetch failed, trying next source")
			o.warn(t, fmt.Sprintf("fetch from %s failed: %v", name, fetchErr))
			lastErr = fmt.Errorf("fetch from %s: %w", name, fetchErr)
			continue
		}

		return nil, true, o.deliverFile(ctx, t, cand, file)
	}
	return lastErr, false, nil
}

func (o *Orchestrator) deliverFile(ctx context.Context, t *task, cand domain.Candidate, file fetch.LocalFile) error {
	t.mu.Lock()
	t.snap.Source = cand.Source
	t.snap.FilePath = file.Path
	t.mu.Unlock()

	if err := o.checkpoint(t); err != nil {
		return err
	}
	if err := o.transition(t, domain.StatusUploading, progressUploading); err != nil {
		return err
	}
	err := o.deps.Uploader.Upload(ctx, upload.Upload{
		Path:      file.Path,
		Title:     t.snap.Title,
		Requester: t.snap.Requester,
	})
	if err != nil {
		o.log(t).WithError(err).Warn("Upload failed")
		o.warn(t, "upload failed: "+err.Error())
	}
	return o.transition(t, domain.StatusCompleted, progressDone)
}

func (o *Orchestrator) torrentFallback(ctx context.Context, t *task, lastErr error) error {
	if err := o.checkpoint(t); err != nil {
		return err
	}
	if err := o.transition(t, domain.StatusSelecting, o.currentProgress(t)); err != nil {
		return err
	}

	var pool []domain.Candidate
	if o.deps.Torrents != nil {
		pool = o.deps.Torrents.Search(ctx, t.query)
	}
	selected := selector.Select(pool, o.settings.SelectCount, o.settings.Policy)
	if len(selected) == 0 {
		detail := utils.WrapError(ErrSourcesExhausted, "no streaming or torrent candidate", map[string]any{
			"sources":  len(o.deps.Sources),
			"torrents": len(pool),
		})
		msg := detail.Error()
		if lastErr != nil {
			msg += "; last error: " + lastErr.Error()
		}
		o.fail(t, "nothing found for "+t.snap.Title, msg)
		return nil
	}

	if o.settings.HealthySeeds > 0 && !torrent.HealthySwarm(selected, o.settings.HealthySeeds) {
		o.warn(t, fmt.Sprintf("no selected torrent has %d or more seeds", o.settings.HealthySeeds))
	}
	t.mu.Lock()
	t.snap.Torrents = selected
	t.snap.Source = selected[0].Source
	t.mu.Unlock()

	if err := o.checkpoint(t); err != nil {
		return err
	}
	if err := o.transition(t, domain.StatusUploading, progressUploading); err != nil {
		return err
	}
	if err := o.deps.Uploader.PublishTorrents(ctx, t.snap.Title, t.snap.Requester, selected); err != nil {
		o.log(t).WithError(err).Warn("Publishing torrents failed")
		o.warn(t, "publishing torrents failed: "+err.Error())
	}
	return o.transition(t, domain.StatusCompleted, progressDone)
}
