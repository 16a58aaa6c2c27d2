package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/config"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/core/domain"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/reach"
)

var (
	defaultDetailSelectors = []string{
		`a[href*="/movie/"]`,
		`a[href*="/film/"]`,
		`a[href*="/watch/"]`,
		`.movie-item a`,
		`.film-item a`,
	}
	defaultPlaySelectors = []string{
		`button.play`,
		`.play-button`,
		`.btn-play`,
		`[aria-label="Play"]`,
		`.vjs-big-play-button`,
		`.jw-icon-playback`,
		`video`,
	}
	defaultChallengeSelectors = []string{
		`#challenge-form`,
		`#challenge-running`,
		`.cf-browser-verification`,
		`iframe[src*="challenges.cloudflare.com"]`,
	}
)

// SourceAdapter is one content source the orchestrator can ask for media.
type SourceAdapter interface {
	Descriptor() domain.SourceDescriptor
	// Reachable reports whether any mirror currently answers.
	Reachable(ctx context.Context) bool
	// Locate returns a stream candidate or ErrNotFound. It never returns other errors.
	Locate(ctx context.Context, q domain.SearchQuery) (domain.Candidate, error)
}

type SiteOptions struct {
	Checker             reach.Checker
	Browser             SessionFactory
	Direct              SessionFactory
	MaxDetailLinks      int
	ChallengeWaitWindow time.Duration
	HumanPacingWindow   time.Duration
}

// Site is a SourceAdapter driven entirely by its SourceConfig.
type Site struct {
	desc               domain.SourceDescriptor
	templates          []config.SearchTemplate
	detailSelectors    []string
	playSelectors      []string
	challengeSelectors []string

	checker             reach.Checker
	sessions            SessionFactory
	maxDetailLinks      int
	challengeWaitWindow time.Duration
	humanPacingWindow   time.Duration
}

func NewSite(cfg config.SourceConfig, opts SiteOptions) *Site {
	sessions := opts.Direct
	if cfg.RequiresBrowser {
		sessions = opts.Browser
	}
	maxLinks := opts.MaxDetailLinks
	if maxLinks <= 0 {
		maxLinks = config.DefaultMaxDetailLinks
	}
	return &Site{
		desc: domain.SourceDescriptor{
			Name:            cfg.Name,
			Mirrors:         append([]string(nil), cfg.Mirrors...),
			RequiresBrowser: cfg.RequiresBrowser,
			BehindBotWall:   cfg.BehindBotWall,
		},
		templates:           append([]config.SearchTemplate(nil), cfg.SearchTemplates...),
		detailSelectors:     orDefault(cfg.DetailSelectors, defaultDetailSelectors),
		playSelectors:       orDefault(cfg.PlaySelectors, defaultPlaySelectors),
		challengeSelectors:  orDefault(cfg.ChallengeSelectors, defaultChallengeSelectors),
		checker:             opts.Checker,
		sessions:            sessions,
		maxDetailLinks:      maxLinks,
		challengeWaitWindow: opts.ChallengeWaitWindow,
		humanPacingWindow:   opts.HumanPacingWindow,
	}
}

func orDefault(values, fallback []string) []string {
	if len(values) == 0 {
		return fallback
	}
	return append([]string(nil), values...)
}

func (s *Site) Descriptor() domain.SourceDescriptor {
	d := s.desc
	d.Mirrors = append([]string(nil), s.desc.Mirrors...)
	return d
}

func (s *Site) Reachable(ctx context.Context) bool {
	for _, mirror := range s.desc.Mirrors {
		if s.checker.IsReachable(ctx, mirror) {
			return true
		}
	}
	return false
}

func (s *Site) log() *logutils.Logger {
	return logutils.Log.WithField("source", s.desc.Name)
}

func (s *Site) Locate(ctx context.Context, q domain.SearchQuery) (domain.Candidate, error) {
	if s.sessions == nil {
		s.log().Warn("No session factory configured for source")
		return domain.Candidate{}, ErrNotFound
	}

	for _, mirror := range s.desc.Mirrors {
		if ctx.Err() != nil {
			break
		}
		mlog := s.log().WithField("mirror", mirror)
		if !s.checker.IsReachable(ctx, mirror) {
			mlog.Info("Mirror unreachable, skipping")
			continue
		}

		media, err := s.locateOnMirror(ctx, mirror, q)
		if err != nil {
			mlog.WithError(err).Info("Mirror yielded no media")
			continue
		}

		mlog.WithField("locator", media).Info("Located stream")
		return domain.Candidate{
			Source:  s.desc.Name,
			Locator: media,
			Kind:    domain.KindStream,
			Quality: domain.QualityFromTitle(media),
			Title:   q.String(),
		}, nil
	}
	return domain.Candidate{}, ErrNotFound
}

func (s *Site) locateOnMirror(ctx context.Context, mirror string, q domain.SearchQuery) (string, error) {
	session, err := s.sessions.NewSession(ctx)
	if err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			s.log().WithError(cerr).Debug("Session close reported an error")
		}
	}()

	links, err := s.searchDetailLinks(ctx, session, mirror, q)
	if err != nil {
		return "", err
	}

	for _, link := range links {
		media, err := s.inspectDetailPage(ctx, session, link)
		if err != nil {
			if errors.Is(err, ErrChallengeBlocked) {
				return "", err
			}
			s.log().WithError(err).WithField("page", link).Debug("Detail page yielded no media")
			continue
		}
		return media, nil
	}
	return "", ErrNotFound
}

// searchDetailLinks tries every query variant against every template until a
// search page lists at least one detail link.
func (s *Site) searchDetailLinks(ctx context.Context, session Session, mirror string, q domain.SearchQuery) ([]string, error) {
	for _, variant := range q.Variants() {
		for _, tpl := range s.templates {
			searchURL := BuildSearchURL(mirror, tpl, variant)
			if err := session.Navigate(ctx, searchURL); err != nil {
				s.log().WithError(err).WithField("url", searchURL).Debug("Search page failed to load")
				continue
			}
			if err := s.clearChallenge(ctx, session); err != nil {
				return nil, err
			}
			links := s.detailLinks(ctx, session, searchURL)
			if len(links) > 0 {
				return links, nil
			}
		}
	}
	return nil, ErrNotFound
}

func (s *Site) detailLinks(ctx context.Context, session Session, searchURL string) []string {
	seen := map[string]bool{searchURL: true}
	var links []string
	for _, sel := range s.detailSelectors {
		found, err := session.Links(ctx, sel)
		if err != nil {
			continue
		}
		for _, l := range found {
			if seen[l] {
				continue
			}
			seen[l] = true
			links = append(links, l)
			if len(links) == s.maxDetailLinks {
				return links
			}
		}
	}
	return links
}

func (s *Site) inspectDetailPage(ctx context.Context, session Session, link string) (string, error) {
	if err := session.Navigate(ctx, link); err != nil {
		return "", err
	}
	if err := s.clearChallenge(ctx, session); err != nil {
		return "", err
	}
	if err := sleepCtx(ctx, s.humanPacingWindow); err != nil {
		return "", err
	}

	selector, err := ClickFirst(ctx, session, s.playSelectors)
	switch {
	case err == nil:
		s.log().WithField("selector", selector).Debug("Triggered playback")
		if err := sleepCtx(ctx, s.humanPacingWindow); err != nil {
			return "", err
		}
	case errors.Is(err, ErrSelectorNotFound):
		s.log().WithField("page", link).Debug("No play control found, observing page as is")
	default:
		s.log().WithError(err).WithField("page", link).Debug("Play control click failed")
	}

	media := PickMediaURL(s.observeMedia(ctx, session))
	if media == "" {
		return "", ErrNotFound
	}
	return media, nil
}

func (s *Site) observeMedia(ctx context.Context, session Session) []string {
	var urls []string
	for _, u := range session.Observed() {
		if IsMediaURL(u) {
			urls = append(urls, u)
		}
	}
	for _, sel := range []string{"video", "video source"} {
		if found, err := session.Attributes(ctx, sel, "src"); err == nil {
			urls = append(urls, found...)
		}
	}
	if found, err := session.Attributes(ctx, "iframe", "src"); err == nil {
		for _, u := range found {
			if IsMediaURL(u) {
				urls = append(urls, u)
			}
		}
	}
	return urls
}

// clearChallenge waits once for a challenge page to go away and gives up otherwise.
func (s *Site) clearChallenge(ctx context.Context, session Session) error {
	if !s.challenged(ctx, session) {
		return nil
	}
	s.log().WithField("wait", s.challengeWaitWindow).Info("Challenge page detected, waiting once")
	if err := sleepCtx(ctx, s.challengeWaitWindow); err != nil {
		return err
	}
	if s.challenged(ctx, session) {
		return ErrChallengeBlocked
	}
	return nil
}

func (s *Site) challenged(ctx context.Context, session Session) bool {
	for _, sel := range s.challengeSelectors {
		if ok, err := session.Exists(ctx, sel); err == nil && ok {
			return true
		}
	}
	return false
}

// BuildSearchURL substitutes the query into a template relative to mirror.
func BuildSearchURL(mirror string, tpl config.SearchTemplate, query string) string {
	words := strings.Fields(query)
	var encoded string
	switch tpl.Separator {
	case "%20", "+", "-":
		escaped := make([]string, len(words))
		for i, w := range words {
			escaped[i] = url.PathEscape(w)
		}
		encoded = strings.Join(escaped, tpl.Separator)
	default:
		encoded = url.QueryEscape(strings.Join(words, " "))
	}

	path := strings.ReplaceAll(tpl.Path, "{query}", encoded)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(mirror, "/") + path
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
