package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/config"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/core/domain"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/selector"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/store"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/upload"
	"github.com/google/uuid"
)

// Orchestrator admits download requests and drives each one through the
// source-fallback state machine on its own goroutine.
type Orchestrator struct {
	deps     Dependencies
	settings Settings

	semaphore chan struct{}

	mu     sync.Mutex
	active map[string]*task

	wg  sync.WaitGroup
	ctx context.Context
	now func() time.Time
}

func SettingsFromConfig(cfg *config.Config) Settings {
	sel := cfg.GetSelectionSettings()
	return Settings{
		MaxConcurrentDownloads: cfg.GetDownloadSettings().MaxConcurrentDownloads,
		SelectCount:            sel.Count,
		HealthySeeds:           sel.HealthySeeds,
		Policy:                 selector.PolicyFromConfig(sel),
	}
}

// New builds an orchestrator. Tasks run under ctx; cancelling it aborts in-flight
// network calls of every task.
func New(ctx context.Context, deps Dependencies, settings Settings) *Orchestrator {
	if settings.MaxConcurrentDownloads <= 0 {
		settings.MaxConcurrentDownloads = config.DefaultMaxConcurrentDownloads
	}
	if settings.SelectCount <= 0 {
		settings.SelectCount = config.DefaultSelectCount
	}
	if deps.Store == nil {
		deps.Store = store.NewMemory()
	}
	if deps.Uploader == nil {
		deps.Uploader = upload.Noop{}
	}
	return &Orchestrator{
		deps:      deps,
		settings:  settings,
		semaphore: make(chan struct{}, settings.MaxConcurrentDownloads),
		active:    make(map[string]*task),
		ctx:       ctx,
		now:       time.Now,
	}
}

// Submit records a queued task and returns its id without waiting for any work.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (string, error) {
	title := strings.Join(strings.Fields(req.Title), " ")
	if title == "" {
		return "", ErrEmptyTitle
	}

	now := o.now()
	t := &task{
		query: domain.NewSearchQuery(title),
		snap: domain.Snapshot{
			ID:        uuid.NewString(),
			RequestID: req.RequestID,
			Title:     title,
			Requester: req.Requester,
			Metadata:  req.Metadata,
			Status:    domain.StatusQueued,
			CreatedAt: now,
			UpdatedAt: now,
		}.Clone(),
		cancelled: make(chan struct{}),
	}
	if err := o.deps.Store.Create(ctx, t.snap); err != nil {
		return "", err
	}

	o.mu.Lock()
	o.active[t.snap.ID] = t
	o.mu.Unlock()

	logutils.Log.WithFields(map[string]any{
		"task_id":    t.snap.ID,
		"request_id": req.RequestID,
		"title":      title,
	}).Info("Download task queued")

	o.wg.Add(1)
	go o.run(t)
	return t.snap.ID, nil
}

func (o *Orchestrator) Status(ctx context.Context, id string) (domain.Snapshot, error) {
	return o.deps.Store.Get(ctx, id)
}

func (o *Orchestrator) List(ctx context.Context) ([]domain.Snapshot, error) {
	return o.deps.Store.List(ctx)
}

// Cancel flags a task. The task observes the flag at its next phase boundary.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	o.mu.Lock()
	t, ok := o.active[id]
	o.mu.Unlock()
	if ok {
		t.cancel()
		logutils.Log.WithField("task_id", id).Info("Cancellation requested")
		return nil
	}

	snap, err := o.deps.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if snap.Status.IsTerminal() {
		return ErrTaskFinished
	}
	// Not owned by this process, e.g. left over from a previous run.
	return store.ErrTaskNotFound
}

// CancelAll flags every active task.
func (o *Orchestrator) CancelAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, t := range o.active {
		t.cancel()
	}
}

// Wait blocks until every submitted task has reached a terminal state.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) forget(id string) {
	o.mu.Lock()
	delete(o.active, id)
	o.mu.Unlock()
}
