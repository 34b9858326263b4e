package api

import (
	"bytes"
	"net/http"

	json "github.com/goccy/go-json"

	"walletcache/internal/logging"
)

type cachedHandler func(r *http.Request) (int, interface{})

// cached serves GET responses from the session response cache. Only 200
// responses are stored; any write through the API clears the cache.
func (s *Server) cached(next cachedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path + "?" + r.URL.Query().Encode()
		responses := s.session.Responses()

		if body, ok := responses.Get(key); ok {
			w.Header().Set("X-Cache", "HIT")
			writeBody(w, http.StatusOK, body)
			return
		}

		status, payload := next(r)
		buf := s.session.Buffers().Acquire()
		defer s.session.Buffers().Release(buf)
		if err := json.NewEncoder(buf).Encode(payload); err != nil {
			s.encodeFailed(w, r, err)
			return
		}
		if status == http.StatusOK {
			responses.Set(key, bytes.Clone(buf.Bytes()))
		}
		w.Header().Set("X-Cache", "MISS")
		writeBody(w, status, buf.Bytes())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload interface{}) {
	buf := s.session.Buffers().Acquire()
	defer s.session.Buffers().Release(buf)
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		s.encodeFailed(w, r, err)
		return
	}
	writeBody(w, status, buf.Bytes())
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.writeJSON(w, r, status, map[string]interface{}{
		"error":          message,
		"correlation_id": logging.GetCorrelationID(r.Context()),
	})
}

func (s *Server) encodeFailed(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error(r.Context(), logging.ComponentHTTP, logging.ActionResponse, "Failed to encode response", err)
	http.Error(w, "failed to encode response", http.StatusInternalServerError)
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
