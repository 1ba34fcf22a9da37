// Package memory provides the in-memory implementation of the entity graph
// store. Durable backends embed it and persist each commit through a commit hook.
package memory

import (
	"context"
	"fmt"
	"sync"

	"entitygraph/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Role aliases domain.Role for in-memory persistence operations.
	Role = domain.Role
	// Issue aliases domain.Issue.
	Issue = domain.Issue
	// Tag aliases domain.Tag.
	Tag = domain.Tag
	// User aliases domain.User.
	User = domain.User
	// Link aliases domain.Link.
	Link = domain.Link
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

// Association index names, matching the join tables of the relational schema.
const (
	UserTagsIndex  = "user_tags"
	TagIssuesIndex = "tag_issues"
)

type memoryState struct {
	roles     table[Role]
	issues    table[Issue]
	tags      table[Tag]
	users     table[User]
	userTags  associationIndex
	tagIssues associationIndex
}

func newMemoryState(policy domain.ValidationPolicy) *memoryState {
	return &memoryState{
		roles: newTable(domain.EntityRole,
			func(r Role) int64 { return r.ID },
			func(r Role, id int64) Role { r.ID = id; return r },
			policy.ValidateRole),
		issues: newTable(domain.EntityIssue,
			func(i Issue) int64 { return i.ID },
			func(i Issue, id int64) Issue { i.ID = id; return i },
			policy.ValidateIssue),
		tags: newTable(domain.EntityTag,
			func(t Tag) int64 { return t.ID },
			func(t Tag, id int64) Tag { t.ID = id; return t },
			policy.ValidateTag),
		users: newTable(domain.EntityUser,
			func(u User) int64 { return u.ID },
			func(u User, id int64) User { u.ID = id; return u },
			policy.ValidateUser),
		userTags:  newAssociationIndex(UserTagsIndex),
		tagIssues: newAssociationIndex(TagIssuesIndex),
	}
}

func (s *memoryState) clone() *memoryState {
	return &memoryState{
		roles:     s.roles.clone(),
		issues:    s.issues.clone(),
		tags:      s.tags.clone(),
		users:     s.users.clone(),
		userTags:  s.userTags.clone(),
		tagIssues: s.tagIssues.clone(),
	}
}

// Snapshot captures a point-in-time copy of the store state. Slices keep
// insertion order so that importing a snapshot reproduces list and link order.
type Snapshot struct {
	Roles     []Role  `json:"roles"`
	Issues    []Issue `json:"issues"`
	Tags      []Tag   `json:"tags"`
	Users     []User  `json:"users"`
	UserTags  []Link  `json:"user_tags"`
	TagIssues []Link  `json:"tag_issues"`
}

func snapshotFromMemoryState(state *memoryState) Snapshot {
	return Snapshot{
		Roles:     state.roles.list(),
		Issues:    state.issues.list(),
		Tags:      state.tags.list(),
		Users:     state.users.list(),
		UserTags:  state.userTags.pairs(),
		TagIssues: state.tagIssues.pairs(),
	}
}

// memoryStateFromSnapshot rebuilds state through the validating table and
// index paths, so a snapshot with bad fields, duplicates or dangling
// references is rejected as a whole.
func memoryStateFromSnapshot(snapshot Snapshot, policy domain.ValidationPolicy) (*memoryState, error) {
	state := newMemoryState(policy)
	for _, r := range snapshot.Roles {
		if err := state.roles.insert(r); err != nil {
			return nil, err
		}
	}
	for _, i := range snapshot.Issues {
		if err := state.issues.insert(i); err != nil {
			return nil, err
		}
	}
	for _, t := range snapshot.Tags {
		if err := state.tags.insert(t); err != nil {
			return nil, err
		}
	}
	for _, u := range snapshot.Users {
		if !state.roles.has(u.RoleID) {
			return nil, domain.DanglingReferenceError{Entity: domain.EntityUser, Field: "role_id", Target: domain.EntityRole, TargetID: u.RoleID}
		}
		if err := state.users.insert(u); err != nil {
			return nil, err
		}
	}
	for _, l := range snapshot.UserTags {
		if err := requireLinkEnds(state, domain.EntityUserTag, l); err != nil {
			return nil, err
		}
		state.userTags.link(l.Left, l.Right)
	}
	for _, l := range snapshot.TagIssues {
		if err := requireLinkEnds(state, domain.EntityTagIssue, l); err != nil {
			return nil, err
		}
		state.tagIssues.link(l.Left, l.Right)
	}
	return state, nil
}

func requireLinkEnds(state *memoryState, kind domain.EntityType, l Link) error {
	switch kind {
	case domain.EntityUserTag:
		if !state.users.has(l.Left) {
			return domain.DanglingReferenceError{Entity: kind, Field: "user_id", Target: domain.EntityUser, TargetID: l.Left}
		}
		if !state.tags.has(l.Right) {
			return domain.DanglingReferenceError{Entity: kind, Field: "tag_id", Target: domain.EntityTag, TargetID: l.Right}
		}
	case domain.EntityTagIssue:
		if !state.tags.has(l.Left) {
			return domain.DanglingReferenceError{Entity: kind, Field: "tag_id", Target: domain.EntityTag, TargetID: l.Left}
		}
		if !state.issues.has(l.Right) {
			return domain.DanglingReferenceError{Entity: kind, Field: "issue_id", Target: domain.EntityIssue, TargetID: l.Right}
		}
	}
	return nil
}

// Option configures a Store.
type Option func(*Store)

// WithPolicy overrides the default validation policy.
func WithPolicy(policy domain.ValidationPolicy) Option {
	return func(s *Store) { s.policy = policy }
}

// CommitHook receives the state a transaction is about to commit. A non-nil
// error aborts the commit and the committed state stays as it was.
type CommitHook func(ctx context.Context, snapshot Snapshot) error

// WithCommitHook registers hook to run under the writer lock before each commit.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.commitHook = hook }
}

// Store provides an in-memory transactional store for the entity graph.
// A single writer lock serializes every mutation across all tables, and
// committed state is never modified in place: transactions work on a clone
// that replaces the committed state only on success.
type Store struct {
	mu         sync.RWMutex
	state      *memoryState
	engine     *RulesEngine
	policy     domain.ValidationPolicy
	commitHook CommitHook
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		engine: engine,
		policy: domain.DefaultValidationPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state = newMemoryState(s.policy)
	return s
}

// ExportState copies the current committed state for external persistence.
func (s *Store) ExportState() Snapshot {
	return snapshotFromMemoryState(s.committed())
}

// ImportState replaces the store state with the provided snapshot. The
// snapshot is fully validated first; on error the store is left unchanged.
func (s *Store) ImportState(snapshot Snapshot) error {
	state, err := memoryStateFromSnapshot(snapshot, s.policy)
	if err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}

// RulesEngine exposes the currently configured engine for integration points.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Policy returns the validation policy applied to every record.
func (s *Store) Policy() domain.ValidationPolicy {
	return s.policy
}

func (s *Store) committed() *memoryState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Either every mutation made by fn is committed or none is. The commit hook,
// when set, runs after the rules pass and before the new state is swapped in,
// so hooks observe commits in order.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if s.commitHook != nil {
		if err := s.commitHook(ctx, snapshotFromMemoryState(tx.state)); err != nil {
			return Result{}, err
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against the committed state at the time of the call.
// Later commits replace the state wholesale and are not observed by fn.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	return fn(newTransactionView(s.committed()))
}
