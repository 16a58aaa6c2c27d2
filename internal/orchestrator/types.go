package orchestrator

import (
	"errors"
	"sync"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/core/domain"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/extractor"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/fetch"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/selector"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/store"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/torrent"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/upload"
)

var (
	ErrEmptyTitle        = errors.New("movie title is required")
	ErrTaskFinished      = errors.New("task already finished")
	ErrSourcesExhausted  = errors.New("all sources exhausted")
	ErrInvalidTransition = errors.New("invalid task status transition")
)

// Progress checkpoints reported in snapshots.
const (
	progressProbing    = 5
	progressExtracting = 10
	progressFetchStart = 20
	progressFetchSpan  = 70
	progressUploading  = 95
	progressDone       = 100
)

// Request is one inbound download submission.
type Request struct {
	Title     string
	RequestID string
	Requester string
	Metadata  map[string]string
}

// Dependencies are the collaborators a task runs against. Sources are tried in
// slice order.
type Dependencies struct {
	Store    store.Store
	Sources  []extractor.SourceAdapter
	Torrents torrent.Searcher
	Fetcher  fetch.Fetcher
	Uploader upload.Uploader
}

type Settings struct {
	MaxConcurrentDownloads int
	SelectCount            int
	HealthySeeds           int
	Policy                 selector.Policy
}

// task is the orchestrator's private handle on one running request.
type task struct {
	query domain.SearchQuery

	mu   sync.Mutex
	snap domain.Snapshot

	cancelled chan struct{}
	once      sync.Once
}

func (t *task) cancel() {
	t.once.Do(func() { close(t.cancelled) })
}

func (t *task) isCancelled() bool {
	select {
	case <-t.cancelled:
		return true
	default:
		return false
	}
}
