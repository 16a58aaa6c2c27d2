package fetch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/config"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/core/domain"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/utils"
)

// BuildYTDLPArgs returns the yt-dlp arguments for one stream download. yt-dlp does
// its own retrying, so it is invoked once per fetch.
func BuildYTDLPArgs(cfg config.FetchConfig, locator, outputTemplate string) []string {
	h := cfg.MaxHeight
	args := []string{
		"-f", fmt.Sprintf("best[height<=%d]/bestvideo[height<=%d]+bestaudio/best[height<=%d]", h, h, h),
		"--retries", strconv.Itoa(cfg.Retries),
		"--fragment-retries", strconv.Itoa(cfg.Retries),
		"--socket-timeout", strconv.Itoa(int(cfg.FragmentTimeout.Seconds())),
		"--no-playlist",
		"--newline",
		"-o", outputTemplate,
	}
	if origin := utils.Origin(locator); origin != "" {
		args = append(args, "--add-header", "Referer:"+origin)
	}
	if cfg.InsecureTLS {
		args = append(args, "--no-check-certificates")
	}
	if cfg.MinFileSize > 0 {
		args = append(args, "--min-filesize", strconv.FormatInt(cfg.MinFileSize, 10))
	}
	return append(args, locator)
}

func (e *Executor) fetchYTDLP(ctx context.Context, c domain.Candidate, dir, base string, t Target) (LocalFile, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout*time.Duration(max(e.cfg.Retries, 1)))
	defer cancel()

	outputTemplate := filepath.Join(dir, base+".%(ext)s")
	cmd := exec.CommandContext(attemptCtx, e.cfg.YTDLPPath, BuildYTDLPArgs(e.cfg, c.Locator, outputTemplate)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return LocalFile{}, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return LocalFile{}, fmt.Errorf("failed to start yt-dlp: %w", err)
	}
	scanProgress(stdout, t.report)

	if err := cmd.Wait(); err != nil {
		logutils.Log.WithError(err).WithField("task_id", t.TaskID).Errorf("yt-dlp exited with error: %s", stderr.String())
		return LocalFile{}, fmt.Errorf("yt-dlp failed (%w): %s", err, strings.TrimSpace(stderr.String()))
	}

	matches, err := filepath.Glob(filepath.Join(dir, globEscape(base)+".*"))
	if err != nil || len(matches) == 0 {
		// --min-filesize makes yt-dlp skip small files and still exit 0.
		return LocalFile{}, fmt.Errorf("%w: yt-dlp produced no file", ErrFileTooSmall)
	}
	return e.checkFloor(pickOutput(matches))
}

// scanProgress forwards "[download]  42.0% of ..." lines to report.
func scanProgress(r io.Reader, report func(float64)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "[download]") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if pct, err := strconv.ParseFloat(strings.TrimSuffix(fields[1], "%"), 64); err == nil {
			report(pct)
		}
	}
}

// pickOutput skips yt-dlp's partial and fragment leftovers.
func pickOutput(matches []string) string {
	for _, m := range matches {
		if !strings.HasSuffix(m, ".part") && !strings.Contains(m, ".part-Frag") && !strings.HasSuffix(m, ".ytdl") {
			return m
		}
	}
	return matches[0]
}

func globEscape(s string) string {
	return strings.NewReplacer("*", `\*`, "?", `\?`, "[", `\[`).Replace(s)
}
