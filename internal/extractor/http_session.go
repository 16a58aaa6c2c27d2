package extractor

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/reach"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

// HTTPSessionFactory opens sessions that load pages with plain HTTP requests and
// query them with goquery. Scripts never run, so Click only checks presence.
type HTTPSessionFactory struct {
	client *resty.Client
}

func NewHTTPSessionFactory(client *resty.Client) *HTTPSessionFactory {
	if client == nil {
		client = resty.New()
	}
	return &HTTPSessionFactory{client: client}
}

func (f *HTTPSessionFactory) NewSession(context.Context) (Session, error) {
	return &httpSession{client: f.client, userAgent: reach.RandomUserAgent()}, nil
}

type httpSession struct {
	client    *resty.Client
	userAgent string

	mu       sync.Mutex
	doc      *goquery.Document
	base     *url.URL
	observed []string
	closed   bool
}

func (s *httpSession) Navigate(ctx context.Context, rawURL string) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("session closed")
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", s.userAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml").
		SetHeader("Accept-Language", "en-US,en;q=0.9").
		Get(rawURL)
	if err != nil {
		return fmt.Errorf("load %s: %w", rawURL, err)
	}
	if resp.IsError() {
		return fmt.Errorf("load %s: status %s", rawURL, resp.Status())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return fmt.Errorf("parse %s: %w", rawURL, err)
	}

	final := rawURL
	if resp.RawResponse != nil && resp.RawResponse.Request != nil {
		final = resp.RawResponse.Request.URL.String()
	}
	base, err := url.Parse(final)
	if err != nil {
		return fmt.Errorf("parse url %s: %w", final, err)
	}

	s.mu.Lock()
	s.doc = doc
	s.base = base
	s.observed = []string{final}
	s.mu.Unlock()
	return nil
}

func (s *httpSession) CurrentURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base == nil {
		return ""
	}
	return s.base.String()
}

func (s *httpSession) selection(selector string) (*goquery.Selection, *url.URL, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil, nil, fmt.Errorf("no page loaded")
	}
	return s.doc.Find(selector), s.base, nil
}

func (s *httpSession) Exists(_ context.Context, selector string) (bool, error) {
	sel, _, err := s.selection(selector)
	if err != nil {
		return false, err
	}
	return sel.Length() > 0, nil
}

func (s *httpSession) Links(ctx context.Context, selector string) ([]string, error) {
	return s.Attributes(ctx, selector, "href")
}

func (s *httpSession) Click(_ context.Context, selector string) error {
	sel, _, err := s.selection(selector)
	if err != nil {
		return err
	}
	if sel.Length() == 0 {
		return ErrSelectorNotFound
	}
	return nil
}

func (s *httpSession) Attributes(_ context.Context, selector, attr string) ([]string, error) {
	sel, base, err := s.selection(selector)
	if err != nil {
		return nil, err
	}
	var values []string
	sel.Each(func(_ int, node *goquery.Selection) {
		if v, ok := node.Attr(attr); ok {
			if abs := resolve(base, v); abs != "" {
				values = append(values, abs)
			}
		}
	})
	return values, nil
}

func (s *httpSession) Observed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.observed...)
}

func (s *httpSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.doc = nil
	return nil
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "javascript:") || strings.HasPrefix(ref, "#") {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}
