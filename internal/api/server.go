package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/core/domain"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/logutils"
	"github.com/NikitaDmitryuk/telegram-media-fetcher/internal/orchestrator"
	"github.com/google/uuid"
)

const jsonContentType = "application/json"

const (
	apiV1Prefix   = "/api/v1"
	healthPath    = apiV1Prefix + "/health"
	downloadsPath = apiV1Prefix + "/downloads"
)

// Service is the part of the orchestrator the API exposes.
type Service interface {
	Submit(ctx context.Context, req orchestrator.Request) (string, error)
	Status(ctx context.Context, id string) (domain.Snapshot, error)
	List(ctx context.Context) ([]domain.Snapshot, error)
	Cancel(ctx context.Context, id string) error
}

type Server struct {
	svc    Service
	apiKey string
	srv    *http.Server
}

// NewServer creates the status/submission API. When apiKey is empty, only requests
// from localhost are accepted.
func NewServer(svc Service, listenAddr, apiKey string) *Server {
	s := &Server{svc: svc, apiKey: apiKey}
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+healthPath, s.chain(s.health))
	mux.HandleFunc("POST "+downloadsPath, s.chain(s.submit))
	mux.HandleFunc("GET "+downloadsPath, s.chain(s.list))
	mux.HandleFunc("GET "+downloadsPath+"/{id}", s.chain(s.status))
	mux.HandleFunc("DELETE "+downloadsPath+"/{id}", s.chain(s.cancel))

	s.srv = &http.Server{
		Addr:         listenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func isLocalhost(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// chain runs requestID then auth then the handler.
func (s *Server) chain(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)
		r = r.WithContext(WithRequestID(r.Context(), requestID))

		if s.apiKey != "" {
			token := ""
			if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, "Bearer ") {
				token = strings.TrimSpace(ah[7:])
			}
			if token == "" {
				token = r.Header.Get("X-API-Key")
			}
			if token != s.apiKey {
				logutils.Log.WithFields(map[string]any{
					"request_id": requestID,
					"path":       r.URL.Path,
				}).Warn("API request unauthorized")
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		} else if !isLocalhost(r) {
			logutils.Log.WithFields(map[string]any{
				"request_id":  requestID,
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
			}).Warn("API request rejected: non-localhost without API key")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		logutils.Log.WithFields(map[string]any{
			"request_id": requestID,
			"path":       r.URL.Path,
			"method":     r.Method,
		}).Debug("API request")
		h(w, r)
	}
}

// Start listens and serves. Blocks until Shutdown is called.
func (s *Server) Start() error {
	logutils.Log.WithField("addr", s.srv.Addr).Info("API server starting")
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", jsonContentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logutils.Log.WithError(err).Warn("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
