package extractor

import (
	"context"
	"errors"
)

var (
	// ErrSelectorNotFound means none of the requested selectors matched the current page.
	ErrSelectorNotFound = errors.New("selector not found")
	// ErrNotFound means every mirror of a source was tried without locating media.
	ErrNotFound = errors.New("no media located")
	// ErrChallengeBlocked means a challenge page was still present after the wait window.
	ErrChallengeBlocked = errors.New("challenge page did not clear")
)

// Session is one isolated page-loading context owned by a single Locate call.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// CurrentURL is the URL of the loaded page after redirects.
	CurrentURL() string
	Exists(ctx context.Context, selector string) (bool, error)
	// Links returns absolute href values of elements matching selector, in page order.
	Links(ctx context.Context, selector string) ([]string, error)
	// Click clicks the first element matching selector or returns ErrSelectorNotFound.
	Click(ctx context.Context, selector string) error
	// Attributes returns absolute values of attr for every element matching selector.
	Attributes(ctx context.Context, selector, attr string) ([]string, error)
	// Observed returns URLs of network responses seen since the last Navigate.
	Observed() []string
	Close() error
}

// SessionFactory opens sessions. One factory is shared; sessions never are.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// ClickFirst tries selectors in order and stops at the first one that matches.
// It returns the matching selector, or ErrSelectorNotFound when none did.
func ClickFirst(ctx context.Context, s Session, selectors []string) (string, error) {
	for _, sel := range selectors {
		err := s.Click(ctx, sel)
		if err == nil {
			return sel, nil
		}
		if !errors.Is(err, ErrSelectorNotFound) {
			return "", err
		}
	}
	return "", ErrSelectorNotFound
}
