package torrent

import (
	"context"
	"net/url"
	"strings"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/config"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/core/domain"
	"github.com/go-resty/resty/v2"
)

// Indexer is one torrent index. Implementations return every listing they parse;
// filtering and ordering happen in the Aggregator.
type Indexer interface {
	Name() string
	Search(ctx context.Context, q domain.SearchQuery) ([]domain.Candidate, error)
}

// NewIndexer builds the indexer described by cfg.
func NewIndexer(cfg config.IndexerConfig, client *resty.Client) Indexer {
	if client == nil {
		client = resty.New()
	}
	if cfg.Kind == config.IndexerKindTable {
		return NewTableIndexer(cfg, client)
	}
	return NewJSONIndexer(cfg, client)
}

func searchURL(baseURL, path string, q domain.SearchQuery) string {
	return strings.TrimRight(baseURL, "/") + strings.ReplaceAll(path, "{query}", url.QueryEscape(q.Title))
}
