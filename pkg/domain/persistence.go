package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateRole(Role) (Role, error)
	UpdateRole(id int64, mutator func(*Role) error) (Role, error)
	DeleteRole(id int64) error
	CreateIssue(Issue) (Issue, error)
	UpdateIssue(id int64, mutator func(*Issue) error) (Issue, error)
	DeleteIssue(id int64) error
	CreateTag(Tag) (Tag, error)
	UpdateTag(id int64, mutator func(*Tag) error) (Tag, error)
	DeleteTag(id int64) error
	CreateUser(User) (User, error)
	UpdateUser(id int64, mutator func(*User) error) (User, error)
	DeleteUser(id int64) error
	LinkUserTag(userID, tagID int64) error
	UnlinkUserTag(userID, tagID int64) error
	LinkTagIssue(tagID, issueID int64) error
	UnlinkTagIssue(tagID, issueID int64) error
	FindRole(id int64) (Role, bool)
	FindIssue(id int64) (Issue, bool)
	FindTag(id int64) (Tag, bool)
	FindUser(id int64) (User, bool)
}

// TransactionView provides read-only access to a consistent state snapshot.
// List methods return records in insertion order.
type TransactionView interface {
	ListRoles() []Role
	ListIssues() []Issue
	ListTags() []Tag
	ListUsers() []User
	FindRole(id int64) (Role, bool)
	FindIssue(id int64) (Issue, bool)
	FindTag(id int64) (Tag, bool)
	FindUser(id int64) (User, bool)
	// TagIssueIDs returns the issues linked to a tag in link order.
	TagIssueIDs(tagID int64) []int64
	// IssueTagIDs returns the tags linked to an issue in link order.
	IssueTagIDs(issueID int64) []int64
	// UserTagIDs returns the tags linked to a user in link order.
	UserTagIDs(userID int64) []int64
	// TagUserIDs returns the users linked to a tag in link order.
	TagUserIDs(tagID int64) []int64
}

// PersistentStore is a minimal abstraction over durable backends. Mutations
// run serialized inside RunInTransaction; View observes committed state only.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
}
