// Package domain defines the normalized entities, nested view shapes, and
// rule evaluation primitives used by entitygraph.
package domain

import "fmt"

// EntityType identifies the type of record stored in the entity graph.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityRole identifies a role record.
	EntityRole EntityType = "role"
	// EntityIssue identifies an issue record.
	EntityIssue EntityType = "issue"
	// EntityTag identifies a tag record.
	EntityTag EntityType = "tag"
	// EntityUser identifies a user record.
	EntityUser EntityType = "user"
	// EntityUserTag identifies a user to tag association.
	EntityUserTag EntityType = "user_tag"
	// EntityTagIssue identifies a tag to issue association.
	EntityTagIssue EntityType = "tag_issue"
	// EntitySnapshot identifies a whole-graph backup.
	EntitySnapshot EntityType = "snapshot"
)

// Gender enumerates the values accepted for Role.Gender.
type Gender string

// Canonical genders accepted by role validation.
const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
)

// Valid reports whether g is one of the canonical genders.
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale:
		return true
	default:
		return false
	}
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Role is a named role a user holds.
type Role struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Gender Gender `json:"gender"`
}

// Issue is a standalone issue that tags may reference.
type Issue struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Tag is a label that groups issues and is attached to users.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// User is the normalized user record. Its role and tags are resolved at read
// time through RoleID and the user_tags association.
type User struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Age      int     `json:"age"`
	Discount float64 `json:"discount"`
	RoleID   int64   `json:"role_id"`
}

// Link is a single (left, right) association pair.
type Link struct {
	Left  int64 `json:"left"`
	Right int64 `json:"right"`
}

// TagView is a Tag with its linked issues embedded in link order.
type TagView struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Issues []Issue `json:"issues"`
}

// UserView is a User with its role and tags (and their issues) embedded.
type UserView struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Age      int       `json:"age"`
	Discount float64   `json:"discount"`
	RoleID   int64     `json:"role_id"`
	Role     Role      `json:"role"`
	Tags     []TagView `json:"tags"`
}

// Change describes a mutation applied within a transaction.
type Change struct {
	Entity   EntityType
	Action   Action
	EntityID int64
	Before   any
	After    any
}

// Action indicates the type of modification performed.
type Action string

// Supported change actions.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	// ActionLink indicates an association pair was added.
	ActionLink Action = "link"
	// ActionUnlink indicates an association pair was removed.
	ActionUnlink Action = "unlink"
	// ActionRestore indicates the graph was replaced from a snapshot.
	ActionRestore Action = "restore"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID int64
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if any violation is blocking.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return fmt.Sprintf("transaction blocked by rules: %s: %s", v.Rule, v.Message)
		}
	}
	return "transaction blocked by rules"
}
