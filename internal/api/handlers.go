package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"

	"walletcache/internal/logging"
	"walletcache/internal/monitor"
	"walletcache/internal/storage"
)

const maxBodyBytes = 8 << 20

var errIngestRevoked = errors.New("ingest revoked by memory cleanup")

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.session.Monitor().Status()
	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"healthy":              true,
		"session_id":           s.session.ID(),
		"level":                status.Level,
		"monitoring_available": !status.Unavailable,
		"correlation_id":       logging.GetCorrelationID(r.Context()),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.session.Stats())
}

func (s *Server) handleAddTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := decodeOneOrMany[storage.Transaction](w, r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	for i, tx := range txs {
		if tx.ID == "" {
			s.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("transaction %d: %v", i, storage.ErrMissingID))
			return
		}
	}

	store := s.session.Transactions()
	added, err := s.ingest(r.Context(), "transactions", len(txs), func(lo, hi int) error {
		return store.AddMany(txs[lo:hi])
	})
	s.ingested(w, r, "transactions", added, err)
}

func (s *Server) handleListTransactions(r *http.Request) (int, interface{}) {
	q := r.URL.Query()
	txs := s.session.Transactions().GetFiltered(q.Get("search"), q.Get("type"), q.Get("date"))
	return http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	}
}

func (s *Server) handleTransactionTotals(r *http.Request) (int, interface{}) {
	q := r.URL.Query()
	return http.StatusOK, map[string]interface{}{
		"totals": s.session.Transactions().Totals(q.Get("type"), q.Get("date")),
	}
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, ok := s.session.Transactions().GetByID(r.PathValue("id"))
	if !ok {
		s.writeError(w, r, http.StatusNotFound, "transaction not found")
		return
	}
	s.writeJSON(w, r, http.StatusOK, tx)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if !s.session.Transactions().Delete(r.PathValue("id")) {
		s.writeError(w, r, http.StatusNotFound, "transaction not found")
		return
	}
	s.session.Responses().Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddUsers(w http.ResponseWriter, r *http.Request) {
	users, err := decodeOneOrMany[storage.User](w, r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	for i, user := range users {
		if user.ID == "" {
			s.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("user %d: %v", i, storage.ErrMissingID))
			return
		}
	}

	store := s.session.Users()
	added, err := s.ingest(r.Context(), "users", len(users), func(lo, hi int) error {
		return store.AddMany(users[lo:hi])
	})
	s.ingested(w, r, "users", added, err)
}

func (s *Server) handleListUsers(r *http.Request) (int, interface{}) {
	q := r.URL.Query()
	store := s.session.Users()

	if email := q.Get("email"); email != "" {
		return userOrNotFound(store.GetByEmail(email))
	}
	if externalID := q.Get("external_id"); externalID != "" {
		return userOrNotFound(store.GetByExternalID(externalID))
	}

	users := store.GetFiltered(q.Get("search"), q.Get("role"), q.Get("date"))
	return http.StatusOK, map[string]interface{}{
		"users": users,
		"count": len(users),
	}
}

func userOrNotFound(user *storage.User, ok bool) (int, interface{}) {
	if !ok {
		return http.StatusNotFound, map[string]interface{}{"error": "user not found"}
	}
	return http.StatusOK, user
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, ok := s.session.Users().GetByID(r.PathValue("id"))
	if !ok {
		s.writeError(w, r, http.StatusNotFound, "user not found")
		return
	}
	s.writeJSON(w, r, http.StatusOK, user)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if !s.session.Users().Delete(r.PathValue("id")) {
		s.writeError(w, r, http.StatusNotFound, "user not found")
		return
	}
	s.session.Responses().Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	level, err := monitor.ParseLevel(r.URL.Query().Get("level"))
	if err != nil || level == monitor.LevelNormal {
		s.writeError(w, r, http.StatusBadRequest, "level must be one of warning, critical, emergency")
		return
	}

	s.log.Warn(r.Context(), logging.ComponentHTTP, logging.ActionCleanup, "Manual cleanup requested", logging.Fields{"level": level.String()})
	s.session.Cleanup(r.Context(), level)
	s.writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"level":          level,
		"correlation_id": logging.GetCorrelationID(r.Context()),
	})
}

// ingest adds n records in chunks, tracked so a critical cleanup can cancel it
func (s *Server) ingest(ctx context.Context, name string, n int, add func(lo, hi int) error) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tracker := s.session.Tracker()
	handle := tracker.Track("ingest."+name, func() error {
		cancel()
		return nil
	})
	defer tracker.Untrack(handle)

	added := 0
	for lo := 0; lo < n; lo += s.ingestChunk {
		if ctx.Err() != nil {
			return added, errIngestRevoked
		}
		hi := min(lo+s.ingestChunk, n)
		if err := add(lo, hi); err != nil {
			return added, err
		}
		added = hi
	}
	return added, nil
}

func (s *Server) ingested(w http.ResponseWriter, r *http.Request, name string, added int, err error) {
	if added > 0 {
		s.session.Responses().Clear()
	}
	fields := logging.Fields{"store": name, "added": added}
	if err != nil {
		s.log.Error(r.Context(), logging.ComponentHTTP, logging.ActionIngest, "Ingest stopped early", err, fields)
		status := http.StatusInternalServerError
		if errors.Is(err, errIngestRevoked) {
			status = http.StatusServiceUnavailable
		}
		s.writeJSON(w, r, status, map[string]interface{}{
			"error":          err.Error(),
			"added":          added,
			"correlation_id": logging.GetCorrelationID(r.Context()),
		})
		return
	}

	s.log.Info(r.Context(), logging.ComponentHTTP, logging.ActionIngest, "Records ingested", fields)
	s.writeJSON(w, r, http.StatusCreated, map[string]interface{}{"added": added})
}

// decodeOneOrMany accepts a single JSON object or an array of them
func decodeOneOrMany[T any](w http.ResponseWriter, r *http.Request) ([]*T, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, errors.New("empty body")
	}

	if trimmed[0] == '[' {
		var items []*T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("invalid JSON array: %w", err)
		}
		for i, item := range items {
			if item == nil {
				return nil, fmt.Errorf("item %d is null", i)
			}
		}
		return items, nil
	}

	item := new(T)
	if err := json.Unmarshal(trimmed, item); err != nil {
		return nil, fmt.Errorf("invalid JSON object: %w", err)
	}
	return []*T{item}, nil
}
