package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/core/domain"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/reach"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/utils"
	"github.com/avast/retry-go/v4"
)

func (e *Executor) fetchDirect(ctx context.Context, c domain.Candidate, dir, base string, t Target) (LocalFile, error) {
	ext := utils.ExtensionOf(c.Locator)
	switch ext {
	case ".m3u8":
		return LocalFile{}, fmt.Errorf("%w: playlists need yt-dlp (set YTDLP_PATH)", ErrUnsupportedLocator)
	case ".mp4", ".mkv", ".avi", ".webm":
	default:
		ext = ".mp4"
	}
	path := filepath.Join(dir, base+ext)

	err := retry.Do(func() error {
		return e.downloadOnce(ctx, c.Locator, path, t)
	}, e.retryOptions(ctx, c.Locator)...)
	if err != nil {
		_ = os.Remove(path)
		return LocalFile{}, err
	}
	return e.checkFloor(path)
}

func (e *Executor) downloadOnce(ctx context.Context, src, path string, t Target) error {
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
	defer cancel()

	req := e.client.R().
		SetContext(attemptCtx).
		SetDoNotParseResponse(true).
		SetHeader("User-Agent", reach.RandomUserAgent())
	if origin := utils.Origin(src); origin != "" {
		req.SetHeader("Referer", origin)
	}

	resp, err := req.Get(src)
	if err != nil {
		return err
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		err := fmt.Errorf("%w: status %s", utils.ErrDownloadFailed, resp.Status())
		if resp.StatusCode() >= 400 && resp.StatusCode() < 500 && resp.StatusCode() != http.StatusTooManyRequests {
			return retry.Unrecoverable(err)
		}
		return err
	}

	total := resp.RawResponse.ContentLength
	if e.cfg.MinFileSize > 0 && total > 0 && total < e.cfg.MinFileSize {
		return retry.Unrecoverable(fmt.Errorf("%w: server reports %d bytes", ErrFileTooSmall, total))
	}

	f, err := os.Create(path)
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("create %s: %w", path, err))
	}
	defer f.Close()

	written, err := io.Copy(f, &progressReader{r: body, total: total, report: t.report})
	if err != nil {
		return fmt.Errorf("copy after %d bytes: %w", written, err)
	}
	return f.Sync()
}

type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	report func(float64)
	last   int
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 {
		pct := int(p.read * 100 / p.total)
		if pct != p.last {
			p.last = pct
			p.report(float64(pct))
		}
	}
	return n, err
}
