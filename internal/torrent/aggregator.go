package torrent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/core/domain"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/logutils"
	"golang.org/x/sync/errgroup"
)

// Searcher is what the orchestrator needs from the torrent fallback.
type Searcher interface {
	Search(ctx context.Context, q domain.SearchQuery) []domain.Candidate
}

type Aggregator struct {
	indexers []Indexer
}

func NewAggregator(indexers ...Indexer) *Aggregator {
	return &Aggregator{indexers: indexers}
}

// Search queries every indexer concurrently. A failing indexer contributes nothing
// and never affects the others. 4K listings are dropped; the rest are ordered by
// quality, then seeds, both descending.
func (a *Aggregator) Search(ctx context.Context, q domain.SearchQuery) []domain.Candidate {
	var (
		mu      sync.Mutex
		results []domain.Candidate
		g       errgroup.Group
	)

	for _, ix := range a.indexers {
		g.Go(func() error {
			found := searchIsolated(ctx, ix, q)
			mu.Lock()
			results = append(results, found...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	filtered := results[:0]
	for _, c := range results {
		if c.Quality.Excluded() {
			continue
		}
		c.Blocked = domain.IsBlockedLocator(c.Title)
		filtered = append(filtered, c)
	}
	SortByQualityAndSeeds(filtered)

	logutils.Log.WithFields(map[string]any{
		"query":    q.Title,
		"indexers": len(a.indexers),
		"count":    len(filtered),
	}).Info("Torrent search finished")
	return filtered
}

func searchIsolated(ctx context.Context, ix Indexer, q domain.SearchQuery) (found []domain.Candidate) {
	defer func() {
		if r := recover(); r != nil {
			logutils.Log.WithField("indexer", ix.Name()).Errorf("Indexer panicked: %v", r)
			found = nil
		}
	}()

	found, err := ix.Search(ctx, q)
	if err != nil {
		logutils.Log.WithError(err).WithField("indexer", ix.Name()).Warn("Indexer search failed")
		return nil
	}
	return found
}

// SortByQualityAndSeeds orders candidates by quality then seeds, both descending.
// Ties keep their input order.
func SortByQualityAndSeeds(cands []domain.Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Quality != cands[j].Quality {
			return cands[i].Quality > cands[j].Quality
		}
		return cands[i].Seeds > cands[j].Seeds
	})
}

// HealthySwarm reports whether any candidate has at least threshold seeds.
func HealthySwarm(cands []domain.Candidate, threshold int) bool {
	for _, c := range cands {
		if c.Seeds >= threshold {
			return true
		}
	}
	return false
}

// FormatCaption renders the lines sent alongside a torrent listing.
func FormatCaption(movieTitle string, c domain.Candidate) string {
	size := c.Size
	if size == "" {
		size = "N/A"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Movie: %s\n", movieTitle)
	fmt.Fprintf(&sb, "Quality: %s\n", c.Quality)
	fmt.Fprintf(&sb, "Seeds: %d\n", c.Seeds)
	fmt.Fprintf(&sb, "Size: %s\n", size)
	fmt.Fprintf(&sb, "Source: %s\n", c.Source)
	sb.WriteString(c.Locator)
	return sb.String()
}
