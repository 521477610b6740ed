// Package synctest is a test-support fake remote server implementing the
// same wire protocol remote.HTTPClient speaks: one generic
// table-parameterized handler set, backed by datasource.Memory instead of
// Postgres so integration tests don't need a live database. It drives
// end-to-end insert/push/pull scenarios over a real httptest.Server, and
// cmd/syncdemo serves it as its in-process remote.
package synctest

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/erauner12/syncengine-go/internal/auth"
	"github.com/erauner12/syncengine-go/internal/datasource"
	"github.com/erauner12/syncengine-go/internal/itemmeta"
	"github.com/erauner12/syncengine-go/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Server is an in-process fake remote, routed with chi.
type Server struct {
	Router *chi.Mux

	secret string
	ds     *datasource.Memory

	mu       sync.Mutex
	epoch    int
	sessions map[string]int // sessionID -> epoch at issue time
}

// NewServer constructs a fake remote authenticated with HS256 dev tokens
// (or X-Debug-Sub when no Authorization header is present).
func NewServer(secret string) *Server {
	s := &Server{
		secret:   secret,
		ds:       datasource.NewMemory(),
		sessions: make(map[string]int),
	}
	s.Router = chi.NewRouter()
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.Router.Use(s.authMiddleware)

	s.Router.Post("/v1/sync/sessions", s.handleCreateSession)
	s.Router.Route("/v1/tables/{table}", func(r chi.Router) {
		r.Use(s.epochMiddleware)
		r.Get("/", s.handleList)
		r.Post("/", s.handleInsert)
		r.Put("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
		r.Post("/_wipe", s.handleWipe)
	})
}

type ctxKey string

const ctxSub ctxKey = "sub"

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sub string
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			tok := strings.TrimPrefix(h, "Bearer ")
			validated, err := auth.ValidateDevToken(tok, s.secret)
			if err != nil {
				log.Warn().Err(err).Msg("synctest: token validation failed")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			sub = validated
		} else {
			sub = r.Header.Get("X-Debug-Sub")
		}
		if sub == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), ctxSub, sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// epochMiddleware enforces the session + epoch guard: a stale client (one
// whose session predates the last force-purge) gets a 409 epoch_mismatch
// instead of being allowed to read/write.
func (s *Server) epochMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.Header.Get("X-Sync-Session")
		if sessionID == "" {
			http.Error(w, `{"error":"session_required"}`, http.StatusPreconditionRequired)
			return
		}

		s.mu.Lock()
		sessionEpoch, ok := s.sessions[sessionID]
		currentEpoch := s.epoch
		s.mu.Unlock()

		if !ok {
			http.Error(w, `{"error":"session_required"}`, http.StatusPreconditionRequired)
			return
		}
		if sessionEpoch != currentEpoch {
			w.Header().Set("X-Sync-Epoch", strconv.Itoa(currentEpoch))
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "epoch_mismatch", "epoch": currentEpoch})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	id := uuid.New().String()
	s.sessions[id] = s.epoch
	epoch := s.epoch
	s.mu.Unlock()

	w.Header().Set("X-Sync-Epoch", strconv.Itoa(epoch))
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":        id,
		"epoch":     epoch,
		"expiresAt": time.Now().Add(1 * time.Hour),
	})
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	var item model.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if item.ID() == "" {
		item["id"] = uuid.New().String()
	}

	now := itemmeta.FormatISO(time.Now())
	item[itemmeta.FieldVersion] = 1
	item[itemmeta.FieldCreatedAt] = now
	item[itemmeta.FieldUpdatedAt] = now
	item[itemmeta.FieldDeleted] = false

	if err := s.ds.Upsert(r.Context(), table, []model.Item{item}); err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(item)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	id := chi.URLParam(r, "id")

	var incoming model.Item
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	current, ok, err := s.ds.Read(r.Context(), table, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	ifMatch := r.Header.Get("If-Match")
	if ok && ifMatch != "" {
		if want, err := strconv.Atoi(ifMatch); err == nil && want != itemmeta.Version(current) {
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":   "version_mismatch",
				"version": itemmeta.Version(current),
				"item":    current,
			})
			return
		}
	}

	incoming["id"] = id
	incoming[itemmeta.FieldVersion] = itemmeta.Version(current) + 1
	incoming[itemmeta.FieldUpdatedAt] = itemmeta.FormatISO(time.Now())
	incoming[itemmeta.FieldDeleted] = false
	if ok {
		if createdAt, present := current[itemmeta.FieldCreatedAt]; present {
			incoming[itemmeta.FieldCreatedAt] = createdAt
		}
	}

	if err := s.ds.Upsert(r.Context(), table, []model.Item{incoming}); err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	_ = json.NewEncoder(w).Encode(incoming)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	id := chi.URLParam(r, "id")

	current, ok, err := s.ds.Read(r.Context(), table, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if !ok {
		current = model.Item{"id": id}
	}

	ifMatch := r.Header.Get("If-Match")
	if ok && ifMatch != "" {
		if want, err := strconv.Atoi(ifMatch); err == nil && want != itemmeta.Version(current) {
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":   "version_mismatch",
				"version": itemmeta.Version(current),
				"item":    current,
			})
			return
		}
	}

	current[itemmeta.FieldDeleted] = true
	current[itemmeta.FieldVersion] = itemmeta.Version(current) + 1
	current[itemmeta.FieldUpdatedAt] = itemmeta.FormatISO(time.Now())
	if err := s.ds.Upsert(r.Context(), table, []model.Item{current}); err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	q := r.URL.Query()

	query := datasource.Query{TableName: table}
	if top := q.Get("top"); top != "" {
		if n, err := strconv.Atoi(top); err == nil {
			query.Top = n
		}
	}
	if skip := q.Get("skip"); skip != "" {
		if n, err := strconv.Atoi(skip); err == nil {
			query.FetchOffset = n
		}
	}
	if orderby := q.Get("orderby"); orderby != "" {
		parts := strings.Fields(orderby)
		query.OrderBy = parts[0]
		if len(parts) > 1 && strings.EqualFold(parts[1], "desc") {
			query.OrderDesc = true
		}
	}
	if gte := q.Get("updatedAtGte"); gte != "" {
		threshold, err := itemmeta.ParseISO(gte)
		if err == nil {
			query.Predicate = func(it model.Item) bool {
				ts, ok := itemmeta.UpdatedAt(it)
				return ok && !ts.Before(threshold)
			}
		}
	}

	res, err := s.ds.ReadByQuery(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"items": res.Items})
}

// handleWipe simulates another device's force-purge: it clears the table
// and bumps the server epoch, so every other client's next call fails with
// epoch_mismatch until it refreshes its session.
func (s *Server) handleWipe(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if err := s.ds.DeleteByQuery(r.Context(), datasource.Query{TableName: table}); err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	s.mu.Lock()
	s.epoch++
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": code, "message": message})
}
