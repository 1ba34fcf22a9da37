package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"entitygraph/internal/blob"
	"entitygraph/pkg/domain"
)

// Error kinds reported in the "kind" field of error bodies.
const (
	kindBadRequest           = "bad_request"
	kindNotFound             = "not_found"
	kindDuplicateID          = "duplicate_id"
	kindValidation           = "validation"
	kindReferentialIntegrity = "referential_integrity"
	kindDanglingReference    = "dangling_reference"
	kindRuleViolation        = "rule_violation"
	kindConflict             = "conflict"
	kindInternal             = "internal"
)

type envelope struct {
	Data       any             `json:"data"`
	Violations []violationJSON `json:"violations,omitempty"`
}

type errorBody struct {
	Error      string          `json:"error"`
	Kind       string          `json:"kind"`
	Violations []violationJSON `json:"violations,omitempty"`
}

type violationJSON struct {
	Rule     string            `json:"rule"`
	Severity domain.Severity   `json:"severity"`
	Message  string            `json:"message"`
	Entity   domain.EntityType `json:"entity,omitempty"`
	EntityID int64             `json:"entity_id,omitempty"`
}

func violations(res domain.Result) []violationJSON {
	if len(res.Violations) == 0 {
		return nil
	}
	out := make([]violationJSON, len(res.Violations))
	for i, v := range res.Violations {
		out[i] = violationJSON{Rule: v.Rule, Severity: v.Severity, Message: v.Message, Entity: v.Entity, EntityID: v.EntityID}
	}
	return out
}

// statusFor maps an operation error onto an HTTP status and error kind.
func statusFor(err error) (int, string) {
	var rv domain.RuleViolationError
	switch {
	case isBadRequest(err):
		return http.StatusBadRequest, kindBadRequest
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound, kindNotFound
	case errors.Is(err, domain.ErrDuplicateID):
		return http.StatusConflict, kindDuplicateID
	case errors.Is(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity, kindValidation
	case errors.Is(err, domain.ErrReferentialIntegrity):
		return http.StatusConflict, kindReferentialIntegrity
	case errors.Is(err, domain.ErrDanglingReference):
		return http.StatusUnprocessableEntity, kindDanglingReference
	case errors.As(err, &rv):
		return http.StatusUnprocessableEntity, kindRuleViolation
	case errors.Is(err, blob.ErrExists):
		return http.StatusConflict, kindConflict
	case errors.Is(err, blob.ErrInvalidKey):
		return http.StatusBadRequest, kindBadRequest
	default:
		return http.StatusInternalServerError, kindInternal
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	status, kind := statusFor(err)
	body := errorBody{Error: err.Error(), Kind: kind}
	var rv domain.RuleViolationError
	if errors.As(err, &rv) {
		body.Violations = violations(rv.Result)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorBody{Error: message, Kind: kind})
}
