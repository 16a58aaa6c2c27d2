package torrent

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/config"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/core/domain"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/reach"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

const defaultLinkSelector = `a[href^="magnet:"]`

// TableIndexer scrapes an HTML results table, reading fields by column position.
type TableIndexer struct {
	cfg    config.IndexerConfig
	client *resty.Client
}

func NewTableIndexer(cfg config.IndexerConfig, client *resty.Client) *TableIndexer {
	if cfg.LinkSelector == "" {
		cfg.LinkSelector = defaultLinkSelector
	}
	return &TableIndexer{cfg: cfg, client: client}
}

func (ix *TableIndexer) Name() string { return ix.cfg.Name }

func (ix *TableIndexer) Search(ctx context.Context, q domain.SearchQuery) ([]domain.Candidate, error) {
	pageURL := searchURL(ix.cfg.BaseURL, ix.cfg.SearchPath, q)
	resp, err := ix.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", reach.RandomUserAgent()).
		Get(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", ix.cfg.Name, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%s returned %s", ix.cfg.Name, resp.Status())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("%s parse: %w", ix.cfg.Name, err)
	}
	base, _ := url.Parse(pageURL)

	var results []domain.Candidate
	doc.Find(ix.cfg.RowSelector).Each(func(_ int, row *goquery.Selection) {
		if c, ok := ix.parseRow(row, base); ok {
			results = append(results, c)
		}
	})

	logutils.Log.WithFields(map[string]any{
		"indexer": ix.cfg.Name,
		"query":   q.Title,
		"count":   len(results),
	}).Info("Indexer search finished")
	return results, nil
}

func (ix *TableIndexer) parseRow(row *goquery.Selection, base *url.URL) (domain.Candidate, bool) {
	cells := row.Find("td")
	maxCol := max(ix.cfg.TitleColumn, ix.cfg.SeedsColumn, ix.cfg.SizeColumn)
	if cells.Length() <= maxCol {
		return domain.Candidate{}, false
	}

	title := strings.TrimSpace(cells.Eq(ix.cfg.TitleColumn).Text())
	if title == "" {
		return domain.Candidate{}, false
	}
	href, ok := row.Find(ix.cfg.LinkSelector).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return domain.Candidate{}, false
	}

	c := domain.Candidate{
		Source:  ix.cfg.Name,
		Kind:    domain.KindTorrent,
		Title:   strings.Join(strings.Fields(title), " "),
		Quality: domain.QualityFromTitle(title),
		Seeds:   parseSeeds(cells.Eq(ix.cfg.SeedsColumn).Text()),
		Size:    strings.TrimSpace(cells.Eq(ix.cfg.SizeColumn).Text()),
	}

	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "magnet:") {
		magnet, hash, err := NormalizeMagnet(href)
		if err != nil {
			logutils.Log.WithError(err).WithField("indexer", ix.cfg.Name).Debug("Skipping row with invalid magnet")
			return domain.Candidate{}, false
		}
		c.Locator, c.InfoHash = magnet, hash
	} else {
		ref, err := url.Parse(href)
		if err != nil {
			return domain.Candidate{}, false
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		c.Locator = ref.String()
		c.TorrentURL = c.Locator
	}
	return c, true
}

func parseSeeds(text string) int {
	cleaned := strings.NewReplacer(",", "", " ", "", " ", "").Replace(strings.TrimSpace(text))
	n, err := strconv.Atoi(cleaned)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
