package reach

import (
	"context"
	"crypto/tls"
	"math/rand"
	"net/http"
	"time"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/logutils"
	"github.com/go-resty/resty/v2"
)

const MaxTimeout = 10 * time.Second

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// RandomUserAgent returns one of a small set of common desktop user agents.
func RandomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

// Checker gates expensive extraction behind a cheap reachability check.
type Checker interface {
	IsReachable(ctx context.Context, url string) bool
}

type HTTPChecker struct {
	client        *resty.Client
	acceptBotWall bool
}

// NewHTTPChecker builds a checker whose requests never outlive timeout (capped at MaxTimeout).
// With acceptBotWall, 301, 302 and 403 also count as reachable: a bot wall answers
// with 403 and a moved mirror with a redirect, but both mean the host is alive.
func NewHTTPChecker(timeout time.Duration, acceptBotWall bool) *HTTPChecker {
	if timeout <= 0 || timeout > MaxTimeout {
		timeout = MaxTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetTLSClientConfig(&tls.Config{MinVersion: tls.VersionTLS12}).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}))
	return &HTTPChecker{client: client, acceptBotWall: acceptBotWall}
}

// IsReachable never returns an error: any network failure means false.
func (c *HTTPChecker) IsReachable(ctx context.Context, url string) bool {
	status, err := c.status(ctx, http.MethodHead, url)
	if err != nil || status == http.StatusMethodNotAllowed {
		status, err = c.status(ctx, http.MethodGet, url)
	}
	if err != nil {
		logutils.Log.WithError(err).WithField("url", url).Debug("Reachability check failed")
		return false
	}

	reachable := c.accepts(status)
	logutils.Log.WithFields(map[string]any{
		"url":       url,
		"status":    status,
		"reachable": reachable,
	}).Debug("Reachability check finished")
	return reachable
}

func (c *HTTPChecker) accepts(status int) bool {
	switch status {
	case http.StatusOK:
		return true
	case http.StatusMovedPermanently, http.StatusFound, http.StatusForbidden:
		return c.acceptBotWall
	default:
		return false
	}
}

func (c *HTTPChecker) status(ctx context.Context, method, url string) (int, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", RandomUserAgent()).
		SetDoNotParseResponse(true).
		Execute(method, url)
	if err != nil {
		return 0, err
	}
	if body := resp.RawBody(); body != nil {
		_ = body.Close()
	}
	return resp.StatusCode(), nil
}
