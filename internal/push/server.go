// Package push exposes the client's small local HTTP surface: a health
// check, Prometheus metrics, and the endpoint the portal pushes live
// notifications to between polling cycles.
package push

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"elevate/portal/internal/model"
	"elevate/portal/internal/notify"
)

type Server struct {
	sync      *notify.Synchronizer
	authToken string
}

func NewServer(sync *notify.Synchronizer, authToken string) *Server {
	return &Server{sync: sync, authToken: authToken}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.With(s.authMiddleware).Post("/notifications", s.handlePushNotification)

	return r
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			writeError(w, http.StatusForbidden, "push_disabled")
			return
		}
		if bearerToken(r.Header.Get("Authorization")) != s.authToken {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePushNotification(w http.ResponseWriter, r *http.Request) {
	var n model.Notification
	if err := decodeJSON(r, &n); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if strings.TrimSpace(n.Message) == "" {
		writeError(w, http.StatusBadRequest, "missing_message")
		return
	}

	if err := s.sync.AppendLive(n); err != nil {
		if errors.Is(err, notify.ErrInactive) {
			writeError(w, http.StatusConflict, "no_active_session")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
