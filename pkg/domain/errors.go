package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Error kinds returned by every store implementation. Match them with errors.Is;
// use errors.As with the typed errors below for the details.
var (
	ErrDuplicateID          = errors.New("duplicate id")
	ErrNotFound             = errors.New("not found")
	ErrValidation           = errors.New("validation failed")
	ErrReferentialIntegrity = errors.New("referential integrity violation")
	ErrDanglingReference    = errors.New("dangling reference")
)

// DuplicateIDError is returned by inserts that reuse an existing identifier.
type DuplicateIDError struct {
	Entity EntityType
	ID     int64
}

func (e DuplicateIDError) Error() string {
	return fmt.Sprintf("%s %d already exists", e.Entity, e.ID)
}

// Is matches ErrDuplicateID.
func (e DuplicateIDError) Is(target error) bool { return target == ErrDuplicateID }

// NotFoundError is returned when a lookup, update or delete names a missing record.
type NotFoundError struct {
	Entity EntityType
	ID     int64
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// Is matches ErrNotFound.
func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError names the field whose invariant failed.
type ValidationError struct {
	Entity EntityType
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %s: %s", e.Entity, e.Field, e.Reason)
}

// Is matches ErrValidation.
func (e ValidationError) Is(target error) bool { return target == ErrValidation }

// ReferentialIntegrityError is returned when a delete is blocked by dependents.
// DependentIDs lists the blocking records in ascending order.
type ReferentialIntegrityError struct {
	Entity       EntityType
	ID           int64
	Dependent    EntityType
	DependentIDs []int64
}

func (e ReferentialIntegrityError) Error() string {
	ids := make([]string, len(e.DependentIDs))
	for i, id := range e.DependentIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("%s %d still referenced by %s [%s]", e.Entity, e.ID, e.Dependent, strings.Join(ids, ","))
}

// Is matches ErrReferentialIntegrity.
func (e ReferentialIntegrityError) Is(target error) bool { return target == ErrReferentialIntegrity }

// DanglingReferenceError is returned when a reference would point at a missing target.
type DanglingReferenceError struct {
	Entity   EntityType
	Field    string
	Target   EntityType
	TargetID int64
}

func (e DanglingReferenceError) Error() string {
	return fmt.Sprintf("%s %s references missing %s %d", e.Entity, e.Field, e.Target, e.TargetID)
}

// Is matches ErrDanglingReference.
func (e DanglingReferenceError) Is(target error) bool { return target == ErrDanglingReference }
