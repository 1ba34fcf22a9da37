// Package httpapi serves the entity graph over a JSON HTTP API.
package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"entitygraph/internal/blob"
	"entitygraph/internal/core"
	"entitygraph/pkg/domain"
)

const apiPrefix = "/api/v1"

// Handler routes API requests to a core.Service.
type Handler struct {
	svc     *core.Service
	backups blob.Store
	metrics http.Handler
	access  io.Writer
	logger  core.Logger
	router  *mux.Router
	handler http.Handler
}

// Option configures a Handler.
type Option func(*Handler)

// WithBackupStore enables the /api/v1/backups endpoints against store.
func WithBackupStore(store blob.Store) Option {
	return func(h *Handler) { h.backups = store }
}

// WithMetricsHandler mounts m at /metrics.
func WithMetricsHandler(m http.Handler) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithAccessLog writes one combined-format line per request to w.
func WithAccessLog(w io.Writer) Option {
	return func(h *Handler) { h.access = w }
}

// WithLogger receives recovered panics.
func WithLogger(l core.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandler builds the router for svc.
func NewHandler(svc *core.Service, opts ...Option) *Handler {
	h := &Handler{svc: svc, logger: discardLogger{}}
	for _, opt := range opts {
		opt(h)
	}
	h.router = mux.NewRouter()
	h.routes()

	var next http.Handler = h.router
	next = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{h.logger}),
		handlers.PrintRecoveryStack(false),
	)(next)
	if h.access != nil {
		next = handlers.CombinedLoggingHandler(h.access, next)
	}
	h.handler = next
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

// Router exposes the underlying router so callers can mount extra routes.
func (h *Handler) Router() *mux.Router { return h.router }

// NewServer wraps handler in an http.Server with conservative timeouts.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func (h *Handler) routes() {
	h.router.HandleFunc("/healthz", handleHealth()).Methods(http.MethodGet)
	if h.metrics != nil {
		h.router.Handle("/metrics", h.metrics).Methods(http.MethodGet)
	}

	api := h.router.PathPrefix(apiPrefix).Subrouter()
	svc := h.svc

	registerResource(api, "/roles", resource[domain.Role]{
		create: svc.CreateRole,
		get:    svc.GetRole,
		list:   svc.ListRoles,
		update: svc.UpdateRole,
		remove: svc.DeleteRole,
	})
	registerResource(api, "/issues", resource[domain.Issue]{
		create: svc.CreateIssue,
		get:    svc.GetIssue,
		list:   svc.ListIssues,
		update: svc.UpdateIssue,
		remove: svc.DeleteIssue,
	})
	registerResource(api, "/tags", resource[domain.Tag]{
		create: svc.CreateTag,
		get:    svc.GetTag,
		list:   svc.ListTags,
		update: svc.UpdateTag,
		remove: svc.DeleteTag,
	})
	registerResource(api, "/users", resource[domain.User]{
		create: svc.CreateUser,
		get:    svc.GetUser,
		list:   svc.ListUsers,
		update: svc.UpdateUser,
		remove: svc.DeleteUser,
	})

	api.HandleFunc("/users/{id:[0-9]+}/view", handleProjectUser(svc)).Methods(http.MethodGet)
	api.HandleFunc("/tags/{id:[0-9]+}/view", handleProjectTag(svc)).Methods(http.MethodGet)
	api.HandleFunc("/views/users", handleProjectUsers(svc)).Methods(http.MethodGet)
	api.HandleFunc("/views/tags", handleProjectTags(svc)).Methods(http.MethodGet)

	api.HandleFunc("/users/{id:[0-9]+}/role/{other:[0-9]+}", handleAssignRole(svc)).Methods(http.MethodPut)

	api.HandleFunc("/users/{id:[0-9]+}/tags", handleRelated(svc.UserTagIDs, "tag_ids")).Methods(http.MethodGet)
	api.HandleFunc("/tags/{id:[0-9]+}/users", handleRelated(svc.TagUserIDs, "user_ids")).Methods(http.MethodGet)
	api.HandleFunc("/tags/{id:[0-9]+}/issues", handleRelated(svc.TagIssueIDs, "issue_ids")).Methods(http.MethodGet)
	api.HandleFunc("/issues/{id:[0-9]+}/tags", handleRelated(svc.IssueTagIDs, "tag_ids")).Methods(http.MethodGet)

	api.HandleFunc("/users/{id:[0-9]+}/tags/{other:[0-9]+}", handleLink(svc.LinkUserTag)).Methods(http.MethodPut)
	api.HandleFunc("/users/{id:[0-9]+}/tags/{other:[0-9]+}", handleLink(svc.UnlinkUserTag)).Methods(http.MethodDelete)
	api.HandleFunc("/tags/{id:[0-9]+}/issues/{other:[0-9]+}", handleLink(svc.LinkTagIssue)).Methods(http.MethodPut)
	api.HandleFunc("/tags/{id:[0-9]+}/issues/{other:[0-9]+}", handleLink(svc.UnlinkTagIssue)).Methods(http.MethodDelete)

	if h.backups != nil {
		api.HandleFunc("/backups", handleListBackups(svc, h.backups)).Methods(http.MethodGet)
		api.Handle("/backups", jsonOnly(handleCreateBackup(svc, h.backups))).Methods(http.MethodPost)
		api.Handle("/backups/restore", jsonOnly(handleRestoreBackup(svc, h.backups))).Methods(http.MethodPost)
	}
}

func handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// jsonOnly rejects bodies that are not declared as JSON with 415.
func jsonOnly(next http.Handler) http.Handler {
	return handlers.ContentTypeHandler(next, "application/json")
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}

type recoveryLogger struct{ logger core.Logger }

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("http handler panic", "panic", fmt.Sprint(v...))
}
