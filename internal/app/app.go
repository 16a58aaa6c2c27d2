package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/api"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/config"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/extractor"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/fetch"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/orchestrator"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/reach"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/store"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/torrent"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/upload"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/utils"
	"github.com/go-resty/resty/v2"
)

const (
	scrapeTimeout  = 30 * time.Second
	indexerTimeout = 20 * time.Second
)

// App holds every long-lived component of the process.
type App struct {
	Config       *config.Config
	Store        store.Store
	Orchestrator *orchestrator.Orchestrator
	Server       *api.Server

	closeStore func() error
}

// New wires the components described by cfg. Tasks run under ctx.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	uploader, err := newUploader(cfg)
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	deps := orchestrator.Dependencies{
		Store:    st,
		Sources:  BuildSources(cfg),
		Torrents: BuildAggregator(cfg),
		Fetcher:  fetch.NewExecutor(cfg.GetFetchSettings(), cfg.OutputDir),
		Uploader: uploader,
	}
	orch := orchestrator.New(ctx, deps, orchestrator.SettingsFromConfig(cfg))

	logutils.Log.WithFields(map[string]any{
		"sources":        len(deps.Sources),
		"indexers":       len(cfg.Indexers),
		"max_concurrent": cfg.GetDownloadSettings().MaxConcurrentDownloads,
		"task_store":     cfg.TaskStore,
	}).Info("Download orchestrator initialized")

	return &App{
		Config:       cfg,
		Store:        st,
		Orchestrator: orch,
		Server:       api.NewServer(orch, cfg.APIListenAddr, cfg.APIKey),
		closeStore:   closeStore,
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, func() error, error) {
	if cfg.TaskStore != config.TaskStoreSQLite {
		return store.NewMemory(), func() error { return nil }, nil
	}
	sq, err := store.OpenSQLite(cfg.TaskDBPath)
	if err != nil {
		return nil, nil, err
	}
	if n, err := sq.MarkInterrupted(ctx); err != nil {
		logutils.Log.WithError(err).Warn("Failed to mark interrupted tasks")
	} else if n > 0 {
		logutils.Log.WithField("count", n).Info("Marked tasks interrupted by restart as failed")
	}
	return sq, sq.Close, nil
}

func newUploader(cfg *config.Config) (upload.Uploader, error) {
	if cfg.BotToken == "" {
		logutils.Log.Info("BOT_TOKEN not set, results are kept on disk only")
		return upload.Noop{}, nil
	}
	tg, err := upload.NewTelegram(cfg.BotToken)
	if err != nil {
		return nil, utils.WrapError(err, "bot initialization failed", nil)
	}
	return tg, nil
}

// BuildSources turns the configured source list into adapters, keeping its order.
func BuildSources(cfg *config.Config) []extractor.SourceAdapter {
	ext := cfg.GetExtractSettings()
	opts := extractor.SiteOptions{
		Checker:             reach.NewHTTPChecker(ext.ReachTimeout, ext.ReachAcceptBotWall),
		Browser:             extractor.NewChromeSessionFactory(ext.BrowserPath),
		Direct:              extractor.NewHTTPSessionFactory(resty.New().SetTimeout(scrapeTimeout)),
		MaxDetailLinks:      ext.MaxDetailLinks,
		ChallengeWaitWindow: ext.ChallengeWaitWindow,
		HumanPacingWindow:   ext.HumanPacingWindow,
	}
	adapters := make([]extractor.SourceAdapter, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		adapters = append(adapters, extractor.NewSite(src, opts))
	}
	return adapters
}

func BuildAggregator(cfg *config.Config) *torrent.Aggregator {
	client := resty.New().SetTimeout(indexerTimeout)
	indexers := make([]torrent.Indexer, 0, len(cfg.Indexers))
	for _, ix := range cfg.Indexers {
		indexers = append(indexers, torrent.NewIndexer(ix, client))
	}
	return torrent.NewAggregator(indexers...)
}

// Run serves the API until Shutdown is called.
func (a *App) Run() error {
	if err := a.Server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return utils.WrapError(err, "API server stopped", map[string]any{"addr": a.Config.APIListenAddr})
	}
	return nil
}

// Shutdown stops accepting requests, cancels running tasks and waits for them
// to reach a terminal state before closing the store.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.Server.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	a.Orchestrator.CancelAll()

	done := make(chan struct{})
	go func() {
		a.Orchestrator.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	if err := a.closeStore(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
