package extractor

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/reach"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const chromeActionTimeout = 30 * time.Second

// ChromeSessionFactory starts one headless browser process per session.
type ChromeSessionFactory struct {
	execPath string
}

func NewChromeSessionFactory(execPath string) *ChromeSessionFactory {
	return &ChromeSessionFactory{execPath: execPath}
}

func (f *ChromeSessionFactory) NewSession(ctx context.Context) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(reach.RandomUserAgent()),
		chromedp.WindowSize(1366, 768),
		chromedp.Flag("lang", "en-US"),
	)
	if f.execPath != "" {
		opts = append(opts, chromedp.ExecPath(f.execPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		ctx: browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
	}

	chromedp.ListenTarget(browserCtx, func(ev any) {
		if e, ok := ev.(*network.EventResponseReceived); ok && e.Response != nil {
			s.record(e.Response.URL)
		}
	})

	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		s.cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return s, nil
}

type chromeSession struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	observed []string
	closed   bool
}

func (s *chromeSession) record(u string) {
	s.mu.Lock()
	s.observed = append(s.observed, u)
	s.mu.Unlock()
}

func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, chromeActionTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

func (s *chromeSession) Navigate(ctx context.Context, rawURL string) error {
	s.mu.Lock()
	s.observed = nil
	s.mu.Unlock()
	return s.run(ctx, chromedp.Navigate(rawURL))
}

func (s *chromeSession) CurrentURL() string {
	var loc string
	if err := s.run(context.Background(), chromedp.Location(&loc)); err != nil {
		return ""
	}
	return loc
}

func (s *chromeSession) nodes(ctx context.Context, selector string) ([]*cdp.Node, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	return nodes, err
}

func (s *chromeSession) Exists(ctx context.Context, selector string) (bool, error) {
	nodes, err := s.nodes(ctx, selector)
	if err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

func (s *chromeSession) Links(ctx context.Context, selector string) ([]string, error) {
	return s.Attributes(ctx, selector, "href")
}

func (s *chromeSession) Click(ctx context.Context, selector string) error {
	nodes, err := s.nodes(ctx, selector)
	if err != nil {
		return err
	}
	if len(nodes) == 0 {
		return ErrSelectorNotFound
	}
	return s.run(ctx, chromedp.MouseClickNode(nodes[0]))
}

func (s *chromeSession) Attributes(ctx context.Context, selector, attr string) ([]string, error) {
	nodes, err := s.nodes(ctx, selector)
	if err != nil {
		return nil, err
	}
	base, _ := url.Parse(s.CurrentURL())
	var values []string
	for _, n := range nodes {
		if v, ok := n.Attribute(attr); ok {
			if abs := resolve(base, v); abs != "" {
				values = append(values, abs)
			}
		}
	}
	return values, nil
}

func (s *chromeSession) Observed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.observed...)
}

func (s *chromeSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := chromedp.Cancel(s.ctx)
	s.cancel()
	if err != nil {
		logutils.Log.WithError(err).Debug("Browser did not close cleanly")
	}
	return err
}
