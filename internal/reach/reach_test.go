package reach

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func statusServer(t *testing.T, status int, headOK bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("request without user agent")
		}
		if r.Method == http.MethodHead && !headOK {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if status == http.StatusFound {
			http.Redirect(w, r, "/elsewhere", http.StatusFound)
			return
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIsReachableStatuses(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		headOK        bool
		acceptBotWall bool
		want          bool
	}{
		{"200 via HEAD", http.StatusOK, true, false, true},
		{"200 via GET fallback", http.StatusOK, false, false, true},
		{"403 bot wall accepted", http.StatusForbidden, true, true, true},
		{"403 strict", http.StatusForbidden, true, false, false},
		{"302 accepted", http.StatusFound, true, true, true},
		{"302 strict", http.StatusFound, true, false, false},
		{"404", http.StatusNotFound, true, true, false},
		{"503", http.StatusServiceUnavailable, true, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := statusServer(t, tt.status, tt.headOK)
			p := NewHTTPChecker(2*time.Second, tt.acceptBotWall)
			if got := p.IsReachable(context.Background(), srv.URL); got != tt.want {
				t.Errorf("IsReachable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsReachableUnroutableHost(t *testing.T) {
	p := NewHTTPChecker(300*time.Millisecond, true)

	start := time.Now()
	got := p.IsReachable(context.Background(), "http://10.255.255.1:81/")
	elapsed := time.Since(start)

	if got {
		t.Error("IsReachable() = true for unroutable host")
	}
	// HEAD and GET each bounded by the timeout.
	if elapsed > 3*time.Second {
		t.Errorf("IsReachable() took %s, want within timeout bound", elapsed)
	}
}

func TestIsReachableClosedPortAndBadURL(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	p := NewHTTPChecker(time.Second, true)
	if p.IsReachable(context.Background(), addr) {
		t.Error("IsReachable() = true for closed server")
	}
	if p.IsReachable(context.Background(), "::not a url::") {
		t.Error("IsReachable() = true for malformed URL")
	}
}

func TestNewHTTPCheckerClampsTimeout(t *testing.T) {
	p := NewHTTPChecker(time.Minute, false)
	if got := p.client.GetClient().Timeout; got != MaxTimeout {
		t.Errorf("timeout = %s, want %s", got, MaxTimeout)
	}
}
