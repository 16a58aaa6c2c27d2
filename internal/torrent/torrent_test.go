package torrent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/config"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/core/domain"
)

const (
	hashA = "0123456789abcdef0123456789abcdef01234567"
	hashB = "89abcdef0123456789abcdef0123456789abcdef"
)

func TestJSONIndexerSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query_term"); got != "Dune" {
			t.Errorf("query_term = %q, want Dune", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","data":{"movies":[{"title":"Dune","year":2021,"torrents":[
			{"url":"https://api.example.org/t/1","hash":%q,"quality":"1080p","type":"web","seeds":40,"size":"2.1 GB"},
			{"url":"https://api.example.org/t/2","hash":%q,"quality":"2160p","type":"web","seeds":90,"size":"5 GB"},
			{"url":"https://api.example.org/t/3","hash":"not-a-hash","quality":"720p","type":"bluray","seeds":12,"size":"1 GB"}
		]}]}}`, hashA, hashB)
	}))
	defer srv.Close()

	ix := NewIndexer(config.IndexerConfig{
		Name: "api", Kind: config.IndexerKindJSON, BaseURL: srv.URL, SearchPath: "/list.json?query_term={query}",
	}, nil)

	got, err := ix.Search(context.Background(), domain.NewSearchQuery("Dune (2021)"))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Search() returned %d candidates, want 3", len(got))
	}
	if got[0].Quality != domain.Quality1080p || got[0].Seeds != 40 || got[0].InfoHash != hashA {
		t.Errorf("first candidate = %+v", got[0])
	}
	if !strings.HasPrefix(got[0].Locator, "magnet:?xt=urn:btih:"+hashA) {
		t.Errorf("Locator = %q, want magnet", got[0].Locator)
	}
	if got[1].Quality != domain.Quality4K {
		t.Errorf("second quality = %v, want 4K (filtered later by the aggregator)", got[1].Quality)
	}
	if got[2].Locator != "https://api.example.org/t/3" {
		t.Errorf("bad hash should fall back to torrent URL, got %q", got[2].Locator)
	}
}

func TestTableIndexerSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<table>
			<tr><th>Cat</th><th>Name</th><th>SE</th><th>LE</th><th>Size</th></tr>
			<tr><td>Movies</td><td>Dune.2021.720p.BluRay</td><td>1,204</td><td>10</td><td>1.4 GB</td>
				<td><a href="magnet:?xt=urn:btih:%s&dn=Dune">m</a></td></tr>
			<tr><td>Movies</td><td>Dune.2021.HDCAM</td><td>n/a</td><td>1</td><td>700 MB</td>
				<td><a href="/download/42.torrent">t</a></td></tr>
			<tr><td>Movies</td><td>Dune.2021.2160p</td><td>5</td><td>1</td><td>20 GB</td>
				<td><a href="magnet:?xt=urn:btih:%s">m</a></td></tr>
			<tr><td>short row</td></tr>
		</table>`, hashA, hashB)
	}))
	defer srv.Close()

	ix := NewIndexer(config.IndexerConfig{
		Name: "table", Kind: config.IndexerKindTable, BaseURL: srv.URL, SearchPath: "/search/{query}",
		RowSelector: "table tr", TitleColumn: 1, SeedsColumn: 2, SizeColumn: 4,
		LinkSelector: `a[href^="magnet:"], a[href$=".torrent"]`,
	}, nil)

	got, err := ix.Search(context.Background(), domain.NewSearchQuery("Dune"))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Search() returned %d rows, want 3: %+v", len(got), got)
	}
	if got[0].Quality != domain.Quality720p || got[0].Seeds != 1204 || got[0].InfoHash != hashA {
		t.Errorf("row 0 = %+v", got[0])
	}
	if got[1].Quality != domain.QualityHDCAM || got[1].Seeds != 0 || got[1].Locator != srv.URL+"/download/42.torrent" {
		t.Errorf("row 1 = %+v", got[1])
	}
	if got[2].Quality != domain.Quality4K {
		t.Errorf("row 2 quality = %v", got[2].Quality)
	}
}

type fakeIndexer struct {
	name    string
	results []domain.Candidate
	err     error
	panics  bool
	delay   time.Duration
}

func (f fakeIndexer) Name() string { return f.name }

func (f fakeIndexer) Search(ctx context.Context, _ domain.SearchQuery) ([]domain.Candidate, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panics {
		panic("indexer bug")
	}
	return f.results, f.err
}

func TestAggregatorIsolatesFailuresAndOrders(t *testing.T) {
	agg := NewAggregator(
		fakeIndexer{name: "broken", err: errors.New("timeout")},
		fakeIndexer{name: "panicky", panics: true},
		fakeIndexer{name: "a", results: []domain.Candidate{
			{Source: "a", Locator: "a1", Quality: domain.Quality720p, Seeds: 4},
			{Source: "a", Locator: "a2", Quality: domain.Quality4K, Seeds: 100},
			{Source: "a", Locator: "a3", Quality: domain.QualityDVD, Seeds: 50},
		}},
		fakeIndexer{name: "b", delay: 20 * time.Millisecond, results: []domain.Candidate{
			{Source: "b", Locator: "b1", Quality: domain.Quality1080p, Seeds: 2},
			{Source: "b", Locator: "b2", Quality: domain.Quality720p, Seeds: 9},
			{Source: "b", Locator: "b3", Quality: domain.QualityDVD, Seeds: 1, Title: "Dune Trailer"},
		}},
	)

	got := agg.Search(context.Background(), domain.NewSearchQuery("Dune"))

	want := []string{"b1", "b2", "a1", "a3", "b3"}
	if len(got) != len(want) {
		t.Fatalf("Search() returned %d, want %d: %+v", len(got), len(want), got)
	}
	for i, loc := range want {
		if got[i].Locator != loc {
			t.Errorf("position %d = %s, want %s", i, got[i].Locator, loc)
		}
		if got[i].Quality.Excluded() {
			t.Errorf("4K candidate %s returned", got[i].Locator)
		}
	}
	if !got[4].Blocked {
		t.Error("trailer listing should be marked blocked")
	}
}

func TestAggregatorFansOutConcurrently(t *testing.T) {
	slow := 150 * time.Millisecond
	agg := NewAggregator(
		fakeIndexer{name: "1", delay: slow},
		fakeIndexer{name: "2", delay: slow},
		fakeIndexer{name: "3", delay: slow},
	)

	start := time.Now()
	agg.Search(context.Background(), domain.NewSearchQuery("x"))
	if elapsed := time.Since(start); elapsed >= 3*slow {
		t.Errorf("Search() took %s, indexers appear to run sequentially", elapsed)
	}
}

func TestNormalizeMagnet(t *testing.T) {
	magnet, hash, err := NormalizeMagnet("magnet:?xt=urn:btih:" + strings.ToUpper(hashA) + "&dn=Dune")
	if err != nil {
		t.Fatalf("NormalizeMagnet() error = %v", err)
	}
	if hash != hashA {
		t.Errorf("hash = %s, want %s", hash, hashA)
	}
	if !strings.Contains(magnet, hashA) {
		t.Errorf("magnet = %s", magnet)
	}
	if _, _, err := NormalizeMagnet("magnet:?dn=nothing"); err == nil {
		t.Error("expected error for magnet without info hash")
	}
}

func TestHealthySwarmAndCaption(t *testing.T) {
	cands := []domain.Candidate{{Seeds: 2}, {Seeds: 4}}
	if HealthySwarm(cands, 5) {
		t.Error("HealthySwarm() = true below threshold")
	}
	if !HealthySwarm(append(cands, domain.Candidate{Seeds: 5}), 5) {
		t.Error("HealthySwarm() = false at threshold")
	}

	caption := FormatCaption("Dune", domain.Candidate{Source: "api", Quality: domain.Quality1080p, Seeds: 7, Locator: "magnet:?x"})
	for _, want := range []string{"Movie: Dune", "Quality: 1080p", "Seeds: 7", "Size: N/A", "Source: api", "magnet:?x"} {
		if !strings.Contains(caption, want) {
			t.Errorf("caption missing %q:\n%s", want, caption)
		}
	}
}
