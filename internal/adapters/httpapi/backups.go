package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"entitygraph/internal/blob"
	"entitygraph/internal/core"
)

type backupRequest struct {
	Key string `json:"key"`
}

func decodeBackupRequest(w http.ResponseWriter, r *http.Request) (backupRequest, bool) {
	var req backupRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, kindBadRequest, "invalid backup request payload")
		return req, false
	}
	return req, true
}

func handleListBackups(svc *core.Service, store blob.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		infos, err := svc.ListBackups(r.Context(), store)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if infos == nil {
			infos = []blob.Info{}
		}
		writeJSON(w, http.StatusOK, envelope{Data: infos})
	}
}

// handleCreateBackup accepts an optional {"key": ...}; without one the key is
// generated from the service clock.
func handleCreateBackup(svc *core.Service, store blob.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeBackupRequest(w, r)
		if !ok {
			return
		}
		info, err := svc.Backup(r.Context(), store, req.Key)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, envelope{Data: info})
	}
}

func handleRestoreBackup(svc *core.Service, store blob.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeBackupRequest(w, r)
		if !ok {
			return
		}
		if req.Key == "" {
			writeError(w, http.StatusBadRequest, kindBadRequest, "key required")
			return
		}
		result, err := svc.Restore(r.Context(), store, req.Key)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, envelope{Data: map[string]string{"restored": req.Key}, Violations: violations(result)})
	}
}
