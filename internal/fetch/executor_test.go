package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/config"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/core/domain"
	"github.com/kkdai/youtube/v2"
)

func testFetchConfig() config.FetchConfig {
	return config.FetchConfig{
		Retries:         3,
		AttemptTimeout:  5 * time.Second,
		FragmentTimeout: 2 * time.Second,
		MaxHeight:       1080,
		MinFileSize:     1024,
	}
}

func newTestExecutor(t *testing.T, cfg config.FetchConfig) (*Executor, string) {
	t.Helper()
	dir := t.TempDir()
	e := NewExecutor(cfg, dir)
	e.retryDelay = time.Millisecond
	return e, dir
}

func stream(locator string) domain.Candidate {
	return domain.Candidate{Source: "test", Locator: locator, Kind: domain.KindStream}
}

func TestFetchDirectWritesTaskScopedFile(t *testing.T) {
	payload := strings.Repeat("x", 4096)
	var referer atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		referer.Store(r.Header.Get("Referer"))
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	e, dir := newTestExecutor(t, testFetchConfig())
	var lastProgress float64
	file, err := e.Fetch(context.Background(), stream(srv.URL+"/v/feature.mkv?token=1"), Target{
		Title:    "The Matrix (1999)",
		TaskID:   "task-1",
		Progress: func(p float64) { lastProgress = p },
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	wantPath := filepath.Join(dir, "task-1", "The_Matrix_1999.mkv")
	if file.Path != wantPath || file.Size != int64(len(payload)) {
		t.Errorf("Fetch() = %+v, want path %s size %d", file, wantPath, len(payload))
	}
	if got := referer.Load(); got != srv.URL+"/" {
		t.Errorf("Referer = %v, want %s/", got, srv.URL)
	}
	if lastProgress != 100 {
		t.Errorf("last progress = %v, want 100", lastProgress)
	}
}

func TestFetchDirectRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(strings.Repeat("y", 2048)))
	}))
	defer srv.Close()

	e, _ := newTestExecutor(t, testFetchConfig())
	if _, err := e.Fetch(context.Background(), stream(srv.URL+"/movie.mp4"), Target{Title: "m", TaskID: "t"}); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("server hit %d times, want 3", hits.Load())
	}
}

func TestFetchDirectFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantErr  error
		wantHits int32
	}{
		{"below size floor", http.StatusOK, "tiny", ErrFileTooSmall, 1},
		{"not found is not retried", http.StatusNotFound, "", nil, 1},
		{"server errors exhaust retries", http.StatusServiceUnavailable, "", nil, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			e, dir := newTestExecutor(t, testFetchConfig())
			_, err := e.Fetch(context.Background(), stream(srv.URL+"/movie.mp4"), Target{Title: "m", TaskID: "t"})
			if err == nil {
				t.Fatal("Fetch() error = nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Fetch() error = %v, want %v", err, tt.wantErr)
			}
			if hits.Load() != tt.wantHits {
				t.Errorf("server hit %d times, want %d", hits.Load(), tt.wantHits)
			}
			if _, statErr := os.Stat(filepath.Join(dir, "t", "m.mp4")); !os.IsNotExist(statErr) {
				t.Errorf("partial file left behind: %v", statErr)
			}
		})
	}
}

func TestFetchRejectsUnsupportedLocators(t *testing.T) {
	e, _ := newTestExecutor(t, testFetchConfig())
	cases := []domain.Candidate{
		stream("https://cdn.example.org/hls/master.m3u8"),
		{Locator: "magnet:?xt=urn:btih:abc", Kind: domain.KindTorrent},
		stream("not a url"),
	}
	for _, c := range cases {
		if _, err := e.Fetch(context.Background(), c, Target{Title: "m", TaskID: "t"}); !errors.Is(err, ErrUnsupportedLocator) {
			t.Errorf("Fetch(%q) error = %v, want ErrUnsupportedLocator", c.Locator, err)
		}
	}
}

func TestBuildYTDLPArgs(t *testing.T) {
	cfg := testFetchConfig()
	cfg.InsecureTLS = true
	cfg.MinFileSize = 50 * 1024 * 1024

	got := BuildYTDLPArgs(cfg, "https://media.example.org/v/1.m3u8", "/out/t/m.%(ext)s")
	want := []string{
		"-f", "best[height<=1080]/bestvideo[height<=1080]+bestaudio/best[height<=1080]",
		"--retries", "3",
		"--fragment-retries", "3",
		"--socket-timeout", "2",
		"--no-playlist",
		"--newline",
		"-o", "/out/t/m.%(ext)s",
		"--add-header", "Referer:https://media.example.org/",
		"--no-check-certificates",
		"--min-filesize", "52428800",
		"https://media.example.org/v/1.m3u8",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BuildYTDLPArgs() =\n%v\nwant\n%v", got, want)
	}

	cfg.InsecureTLS = false
	cfg.MinFileSize = 0
	for _, arg := range BuildYTDLPArgs(cfg, "https://media.example.org/v/1.m3u8", "o") {
		if arg == "--no-check-certificates" || arg == "--min-filesize" {
			t.Errorf("unexpected %s", arg)
		}
	}
}

const fakeYTDLP = `#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then out="$2"; shift; fi
  shift
done
echo "[download]  50.0% of 2.00KiB"
file=$(echo "$out" | sed 's/%(ext)s/mp4/')
head -c 2048 /dev/zero > "$file"
echo "[download] 100.0% of 2.00KiB"
`

func TestFetchViaYTDLP(t *testing.T) {
	script := filepath.Join(t.TempDir(), "yt-dlp")
	if err := os.WriteFile(script, []byte(fakeYTDLP), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	cfg := testFetchConfig()
	cfg.YTDLPPath = script
	e, dir := newTestExecutor(t, cfg)

	var progress []float64
	file, err := e.Fetch(context.Background(), stream("https://media.example.org/v/1.m3u8"), Target{
		Title:    "Dune",
		TaskID:   "task-9",
		Progress: func(p float64) { progress = append(progress, p) },
	})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if file.Path != filepath.Join(dir, "task-9", "Dune.mp4") || file.Size != 2048 {
		t.Errorf("Fetch() = %+v", file)
	}
	if !reflect.DeepEqual(progress, []float64{50, 100}) {
		t.Errorf("progress = %v, want [50 100]", progress)
	}
}

func TestPickFormat(t *testing.T) {
	formats := youtube.FormatList{
		{ItagNo: 1, MimeType: "video/mp4", Height: 360},
		{ItagNo: 2, MimeType: "video/webm", Height: 720},
		{ItagNo: 3, MimeType: "video/mp4", Height: 720},
		{ItagNo: 4, MimeType: "video/mp4", Height: 2160},
	}
	f, ok := pickFormat(formats, 1080)
	if !ok || f.ItagNo != 3 {
		t.Errorf("pickFormat() = %+v, %v; want itag 3", f, ok)
	}
	if _, ok := pickFormat(formats[3:], 1080); ok {
		t.Error("pickFormat() accepted a format above the ceiling")
	}
}

func TestIsYouTube(t *testing.T) {
	tests := map[string]bool{
		"https://www.youtube.com/watch?v=abc": true,
		"https://youtu.be/abc":                true,
		"https://m.youtube.com/watch?v=abc":   true,
		"https://notyoutube.com/watch":        false,
		"https://cdn.example.org/a.mp4":       false,
	}
	for in, want := range tests {
		if got := isYouTube(in); got != want {
			t.Errorf("isYouTube(%q) = %v, want %v", in, got, want)
		}
	}
}
