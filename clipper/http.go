package clipper

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Router builds the local HTTP API consumed by the extension front end.
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if err := s.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded", "error": err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/clip", func(w http.ResponseWriter, r *http.Request) {
		var req ClipRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		sessionID, err := s.Clip(req)
		switch {
		case errors.Is(err, ErrBusy):
			writeError(w, http.StatusConflict, err)
			return
		case errors.Is(err, ErrNoContent):
			writeError(w, http.StatusBadRequest, err)
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"sessionId": sessionID, "tabId": req.Tab,
		})
	})

	r.Post("/api/highlight", func(w http.ResponseWriter, r *http.Request) {
		var req HighlightRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		noteID, err := s.Highlight(r.Context(), req)
		if errors.Is(err, ErrNoContent) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"noteId": noteID})
	})

	r.Get("/api/sessions/{tab}", func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.Session(chi.URLParam(r, "tab"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if sess == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no session"})
			return
		}
		writeJSON(w, http.StatusOK, sess)
	})

	r.Post("/api/sessions/{tab}/cancel", func(w http.ResponseWriter, r *http.Request) {
		if !s.Cancel(chi.URLParam(r, "tab")) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no clip in flight"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
