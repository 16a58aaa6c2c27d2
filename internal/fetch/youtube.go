package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/core/domain"
	"github.com/avast/retry-go/v4"
	"github.com/kkdai/youtube/v2"
)

func (e *Executor) fetchYouTube(ctx context.Context, c domain.Candidate, dir, base string, t Target) (LocalFile, error) {
	path := filepath.Join(dir, base+".mp4")

	err := retry.Do(func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
		defer cancel()

		video, err := e.youtube.GetVideoContext(attemptCtx, c.Locator)
		if err != nil {
			return fmt.Errorf("resolve video: %w", err)
		}
		format, ok := pickFormat(video.Formats.WithAudioChannels(), e.cfg.MaxHeight)
		if !ok {
			return retry.Unrecoverable(fmt.Errorf("%w: no progressive format at or below %dp", ErrUnsupportedLocator, e.cfg.MaxHeight))
		}
		if e.cfg.MinFileSize > 0 && format.ContentLength > 0 && format.ContentLength < e.cfg.MinFileSize {
			return retry.Unrecoverable(fmt.Errorf("%w: format is %d bytes", ErrFileTooSmall, format.ContentLength))
		}

		stream, size, err := e.youtube.GetStreamContext(attemptCtx, video, format)
		if err != nil {
			return fmt.Errorf("open stream: %w", err)
		}
		defer stream.Close()

		f, err := os.Create(path)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		defer f.Close()

		_, err = io.Copy(f, &progressReader{r: stream, total: size, report: t.report})
		return err
	}, e.retryOptions(ctx, c.Locator)...)
	if err != nil {
		_ = os.Remove(path)
		return LocalFile{}, err
	}
	return e.checkFloor(path)
}

// pickFormat returns the tallest mp4 format not above maxHeight.
func pickFormat(formats youtube.FormatList, maxHeight int) (*youtube.Format, bool) {
	var best *youtube.Format
	for i := range formats {
		f := &formats[i]
		if f.Height > maxHeight || !strings.Contains(f.MimeType, "mp4") {
			continue
		}
		if best == nil || f.Height > best.Height {
			best = f
		}
	}
	return best, best != nil
}
