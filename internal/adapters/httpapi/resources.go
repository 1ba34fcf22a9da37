package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"entitygraph/internal/core"
	"entitygraph/pkg/domain"
)

const maxBodyBytes = 1 << 20

// resource binds the CRUD operations of one entity table.
type resource[T any] struct {
	create func(context.Context, T) (T, domain.Result, error)
	get    func(context.Context, int64) (T, error)
	list   func(context.Context, core.ListOptions) ([]T, error)
	update func(context.Context, int64, func(*T) error) (T, domain.Result, error)
	remove func(context.Context, int64) (domain.Result, error)
}

func registerResource[T any](r *mux.Router, path string, res resource[T]) {
	r.HandleFunc(path, res.handleList()).Methods(http.MethodGet)
	r.Handle(path, jsonOnly(res.handleCreate(path))).Methods(http.MethodPost)
	item := path + "/{id:[0-9]+}"
	r.HandleFunc(item, res.handleGet()).Methods(http.MethodGet)
	r.Handle(item, jsonOnly(res.handlePatch())).Methods(http.MethodPatch)
	r.HandleFunc(item, res.handleDelete()).Methods(http.MethodDelete)
}

func (res resource[T]) handleList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		opts, err := listOptions(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, kindBadRequest, err.Error())
			return
		}
		items, err := res.list(r.Context(), opts)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, envelope{Data: items})
	}
}

func (res resource[T]) handleCreate(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rec T
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&rec); err != nil {
			writeError(w, http.StatusBadRequest, kindBadRequest, "invalid request body: "+err.Error())
			return
		}
		created, result, err := res.create(r.Context(), rec)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if id, ok := idOf(created); ok {
			w.Header().Set("Location", fmt.Sprintf("%s%s/%d", apiPrefix, path, id))
		}
		writeJSON(w, http.StatusCreated, envelope{Data: created, Violations: violations(result)})
	}
}

func (res resource[T]) handleGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		rec, err := res.get(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, envelope{Data: rec})
	}
}

// handlePatch merges the request object onto the stored record. Fields absent
// from the body keep their values; the store pins the id.
func (res resource[T]) handlePatch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, kindBadRequest, "read body: "+err.Error())
			return
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
			writeError(w, http.StatusBadRequest, kindBadRequest, "request body must be a JSON object")
			return
		}
		updated, result, err := res.update(r.Context(), id, func(rec *T) error {
			dec := json.NewDecoder(bytes.NewReader(body))
			dec.DisallowUnknownFields()
			if err := dec.Decode(rec); err != nil {
				return badRequestError{err: err}
			}
			return nil
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, envelope{Data: updated, Violations: violations(result)})
	}
}

func (res resource[T]) handleDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		if _, err := res.remove(r.Context(), id); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleProjectUser(svc *core.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		view, err := svc.ProjectUser(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, envelope{Data: view})
	}
}

func handleProjectTag(svc *core.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		view, err := svc.ProjectTag(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, envelope{Data: view})
	}
}

func handleProjectUsers(svc *core.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := svc.ProjectUsers(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, envelope{Data: views})
	}
}

func handleProjectTags(svc *core.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := svc.ProjectTags(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, envelope{Data: views})
	}
}

func handleAssignRole(svc *core.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		roleID, ok := pathID(w, r, "other")
		if !ok {
			return
		}
		user, result, err := svc.AssignUserRole(r.Context(), userID, roleID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, envelope{Data: user, Violations: violations(result)})
	}
}

func handleRelated(fn func(context.Context, int64) ([]int64, error), field string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		ids, err := fn(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if ids == nil {
			ids = []int64{}
		}
		writeJSON(w, http.StatusOK, envelope{Data: map[string][]int64{field: ids}})
	}
}

func handleLink(fn func(context.Context, int64, int64) (domain.Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		left, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		right, ok := pathID(w, r, "other")
		if !ok {
			return
		}
		if _, err := fn(r.Context(), left, right); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return id, true
}

func listOptions(r *http.Request) (core.ListOptions, error) {
	q := r.URL.Query()
	opts := core.ListOptions{OrderBy: q.Get("order_by")}
	for name, dst := range map[string]*int{"offset": &opts.Offset, "limit": &opts.Limit} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return core.ListOptions{}, fmt.Errorf("invalid %s %q", name, raw)
		}
		*dst = v
	}
	return opts, nil
}

// idOf reads the id of any entity record without reflection.
func idOf(rec any) (int64, bool) {
	switch v := rec.(type) {
	case domain.Role:
		return v.ID, true
	case domain.Issue:
		return v.ID, true
	case domain.Tag:
		return v.ID, true
	case domain.User:
		return v.ID, true
	}
	return 0, false
}

// badRequestError marks a malformed patch body surfaced from inside a mutator.
type badRequestError struct{ err error }

func (e badRequestError) Error() string { return "invalid request body: " + e.err.Error() }
func (e badRequestError) Unwrap() error { return e.err }

func isBadRequest(err error) bool {
	var br badRequestError
	return errors.As(err, &br)
}
