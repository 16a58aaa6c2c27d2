package torrent

import (
	"context"
	"fmt"
	"strings"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/config"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/core/domain"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/reach"
	"github.com/go-resty/resty/v2"
)

// listMoviesResponse is the list-movies JSON schema: movies with nested torrents
// carrying authoritative quality, seed and size fields.
type listMoviesResponse struct {
	Status string `json:"status"`
	Data   struct {
		Movies []struct {
			Title    string `json:"title"`
			Year     int    `json:"year"`
			Torrents []struct {
				URL     string `json:"url"`
				Hash    string `json:"hash"`
				Quality string `json:"quality"`
				Type    string `json:"type"`
				Seeds   int    `json:"seeds"`
				Size    string `json:"size"`
			} `json:"torrents"`
		} `json:"movies"`
	} `json:"data"`
}

type JSONIndexer struct {
	name    string
	baseURL string
	path    string
	client  *resty.Client
}

func NewJSONIndexer(cfg config.IndexerConfig, client *resty.Client) *JSONIndexer {
	return &JSONIndexer{name: cfg.Name, baseURL: cfg.BaseURL, path: cfg.SearchPath, client: client}
}

func (ix *JSONIndexer) Name() string { return ix.name }

func (ix *JSONIndexer) Search(ctx context.Context, q domain.SearchQuery) ([]domain.Candidate, error) {
	var body listMoviesResponse
	resp, err := ix.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", reach.RandomUserAgent()).
		SetHeader("Accept", "application/json").
		SetResult(&body).
		Get(searchURL(ix.baseURL, ix.path, q))
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", ix.name, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%s returned %s", ix.name, resp.Status())
	}

	var results []domain.Candidate
	for _, movie := range body.Data.Movies {
		title := movie.Title
		if movie.Year > 0 {
			title = fmt.Sprintf("%s (%d)", movie.Title, movie.Year)
		}
		for _, t := range movie.Torrents {
			c := domain.Candidate{
				Source:     ix.name,
				Kind:       domain.KindTorrent,
				Quality:    domain.ParseQualityLabel(t.Quality),
				Size:       t.Size,
				Seeds:      t.Seeds,
				Title:      strings.TrimSpace(title + " " + t.Quality + " " + t.Type),
				TorrentURL: t.URL,
			}
			if magnet, hash, err := MagnetFromHash(t.Hash, title); err == nil {
				c.Locator, c.InfoHash = magnet, hash
			} else {
				c.Locator = t.URL
			}
			if c.Locator == "" {
				continue
			}
			results = append(results, c)
		}
	}

	logutils.Log.WithFields(map[string]any{
		"indexer": ix.name,
		"query":   q.Title,
		"count":   len(results),
	}).Info("Indexer search finished")
	return results, nil
}
