package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/config"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/core/domain"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/utils"
	"github.com/avast/retry-go/v4"
	"github.com/go-resty/resty/v2"
	"github.com/kkdai/youtube/v2"
)

const defaultRetryDelay = 3 * time.Second

var (
	ErrFileTooSmall       = errors.New("downloaded file is below the minimum size")
	ErrUnsupportedLocator = errors.New("locator cannot be fetched by this executor")
)

// Target names the task a fetch belongs to. Progress, when set, receives 0..100.
type Target struct {
	Title    string
	TaskID   string
	Progress func(percent float64)
}

func (t Target) report(percent float64) {
	if t.Progress != nil {
		t.Progress(percent)
	}
}

type LocalFile struct {
	Path string
	Size int64
}

// Fetcher turns a stream candidate into a local file.
type Fetcher interface {
	Fetch(ctx context.Context, c domain.Candidate, t Target) (LocalFile, error)
}

type Executor struct {
	cfg        config.FetchConfig
	outputDir  string
	client     *resty.Client
	youtube    *youtube.Client
	retryDelay time.Duration
}

func NewExecutor(cfg config.FetchConfig, outputDir string) *Executor {
	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.InsecureTLS}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSClientConfig:       tlsConfig,
		ResponseHeaderTimeout: cfg.FragmentTimeout,
		IdleConnTimeout:       90 * time.Second,
	}
	return &Executor{
		cfg:        cfg,
		outputDir:  outputDir,
		client:     resty.New().SetTransport(transport),
		youtube:    &youtube.Client{HTTPClient: &http.Client{Transport: transport}},
		retryDelay: defaultRetryDelay,
	}
}

// Fetch downloads one candidate into OUTPUT_DIR/<task id>/<title><ext>.
// It never retries a different candidate; that is the orchestrator's call.
func (e *Executor) Fetch(ctx context.Context, c domain.Candidate, t Target) (LocalFile, error) {
	if c.Kind != domain.KindStream || !utils.IsValidLink(c.Locator) {
		return LocalFile{}, fmt.Errorf("%w: %s", ErrUnsupportedLocator, c.Locator)
	}

	dir := filepath.Join(e.outputDir, utils.SanitizeFileName(t.TaskID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return LocalFile{}, utils.WrapError(err, "failed to create task directory", map[string]any{"dir": dir})
	}
	base := utils.SanitizeFileName(t.Title)

	log := logutils.Log.WithFields(map[string]any{
		"task_id": t.TaskID,
		"source":  c.Source,
		"locator": c.Locator,
	})

	var (
		file LocalFile
		err  error
	)
	switch {
	case isYouTube(c.Locator):
		log.Info("Fetching via YouTube client")
		file, err = e.fetchYouTube(ctx, c, dir, base, t)
	case e.cfg.YTDLPPath != "":
		log.Info("Fetching via yt-dlp")
		file, err = e.fetchYTDLP(ctx, c, dir, base, t)
	default:
		log.Info("Fetching via direct HTTP")
		file, err = e.fetchDirect(ctx, c, dir, base, t)
	}
	if err != nil {
		log.WithError(err).Warn("Fetch failed")
		return LocalFile{}, utils.WrapError(err, "fetch failed", map[string]any{"locator": c.Locator})
	}

	log.WithFields(map[string]any{"path": file.Path, "size": file.Size}).Info("Fetch completed")
	return file, nil
}

func (e *Executor) retryOptions(ctx context.Context, locator string) []retry.Option {
	attempts := e.cfg.Retries
	if attempts < 1 {
		attempts = 1
	}
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(e.retryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logutils.Log.WithError(err).WithFields(map[string]any{
				"attempt": n + 1,
				"locator": locator,
			}).Warn("Fetch attempt failed")
		}),
	}
}

// checkFloor removes path and fails when it is smaller than the configured floor.
func (e *Executor) checkFloor(path string) (LocalFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return LocalFile{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if e.cfg.MinFileSize > 0 && info.Size() < e.cfg.MinFileSize {
		_ = os.Remove(path)
		return LocalFile{}, fmt.Errorf("%w: %d < %d bytes", ErrFileTooSmall, info.Size(), e.cfg.MinFileSize)
	}
	return LocalFile{Path: path, Size: info.Size()}, nil
}

func isYouTube(locator string) bool {
	u, err := url.Parse(locator)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	return host == "youtube.com" || host == "youtu.be" || host == "music.youtube.com"
}
