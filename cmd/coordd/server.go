package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/enverbisevac/coord/errors"
	"github.com/enverbisevac/coord/queue"
	"github.com/enverbisevac/coord/store"
	"github.com/enverbisevac/coord/users"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
)

// maxBodySize caps request bodies accepted by the admin API.
const maxBodySize = 1 << 20

// userService is the part of users.Service the API calls.
type userService interface {
	Update(ctx context.Context, id string, patch users.Patch) (users.User, error)
}

type server struct {
	log     logr.Logger
	store   store.Store
	queue   *queue.Queue
	users   userService
	metrics http.Handler
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.withLogger)

	r.Get("/healthz", s.healthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Get("/queues/{name}", s.queueInfo)
	r.Post("/queues/{name}/messages", s.publish)
	if s.users != nil {
		r.Patch("/users/{id}", s.updateUser)
	}
	return r
}

// withLogger puts a request scoped logger into the request context.
func (s *server) withLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := s.log.WithValues("method", r.Method, "path", r.URL.Path, "requestId", middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r.WithContext(logr.NewContext(r.Context(), log)))
	})
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		renderError(w, r, errors.Unavailable("store unavailable").Source(err))
		return
	}
	render(w, http.StatusOK, map[string]string{"status": "ok"})
}

type queueInfo struct {
	Name   string `json:"name"`
	Length int64  `json:"length"`
	Full   bool   `json:"full"`
	State  string `json:"state"`
}

func (s *server) queueInfo(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	length := s.queue.Length(r.Context(), name)

	full := length >= s.queue.Config().MaxSize
	if length < 0 {
		full = s.queue.Config().FailClosed
	}
	render(w, http.StatusOK, queueInfo{
		Name:   name,
		Length: length,
		Full:   full,
		State:  s.queue.State(name).String(),
	})
}

type publishRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (s *server) publish(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req publishRequest
	if err := decode(r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	if req.Type == "" {
		renderError(w, r, errors.InvalidArgument("message type is required"))
		return
	}

	var payload any
	if len(req.Payload) > 0 {
		payload = req.Payload
	}
	msg, err := s.queue.PublishType(r.Context(), name, req.Type, payload)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, http.StatusAccepted, msg)
}

func (s *server) updateUser(w http.ResponseWriter, r *http.Request) {
	var patch users.Patch
	if err := decode(r, &patch); err != nil {
		renderError(w, r, err)
		return
	}

	user, err := s.users.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, http.StatusOK, user)
}

func decode(r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return errors.InvalidArgument("invalid request body: %v", err).Source(err)
	}
	return nil
}

func render(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	log := logr.FromContextOrDiscard(r.Context())
	if errors.AsCode(err) == errors.CodeInternal {
		log.Error(err, "request failed")
	} else {
		log.V(1).Info("request rejected", "error", err.Error())
	}
	if err := errors.JSONResponse(w, err); err != nil {
		log.Error(err, "write error response")
	}
}
