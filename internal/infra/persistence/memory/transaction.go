package memory

import (
	"sort"

	"entitygraph/pkg/domain"
)

// transaction represents a mutation set applied to a cloned store state. Its
// delete, update and link methods enforce referential integrity across tables.
type transaction struct {
	store   *Store
	state   *memoryState
	changes []Change
}

// transactionView exposes a read-only view of a state to rules and readers.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) ListRoles() []Role   { return v.state.roles.list() }
func (v transactionView) ListIssues() []Issue { return v.state.issues.list() }
func (v transactionView) ListTags() []Tag     { return v.state.tags.list() }
func (v transactionView) ListUsers() []User   { return v.state.users.list() }

func (v transactionView) FindRole(id int64) (Role, bool)   { return v.state.roles.find(id) }
func (v transactionView) FindIssue(id int64) (Issue, bool) { return v.state.issues.find(id) }
func (v transactionView) FindTag(id int64) (Tag, bool)     { return v.state.tags.find(id) }
func (v transactionView) FindUser(id int64) (User, bool)   { return v.state.users.find(id) }

func (v transactionView) TagIssueIDs(tagID int64) []int64   { return v.state.tagIssues.rightsFor(tagID) }
func (v transactionView) IssueTagIDs(issueID int64) []int64 { return v.state.tagIssues.leftsFor(issueID) }
func (v transactionView) UserTagIDs(userID int64) []int64   { return v.state.userTags.rightsFor(userID) }
func (v transactionView) TagUserIDs(tagID int64) []int64    { return v.state.userTags.leftsFor(tagID) }

// helper to record and append change entries.
func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(tx.state)
}

// FindRole exposes role lookup within the transaction scope.
func (tx *transaction) FindRole(id int64) (Role, bool) { return tx.state.roles.find(id) }

// FindIssue exposes issue lookup within the transaction scope.
func (tx *transaction) FindIssue(id int64) (Issue, bool) { return tx.state.issues.find(id) }

// FindTag exposes tag lookup within the transaction scope.
func (tx *transaction) FindTag(id int64) (Tag, bool) { return tx.state.tags.find(id) }

// FindUser exposes user lookup within the transaction scope.
func (tx *transaction) FindUser(id int64) (User, bool) { return tx.state.users.find(id) }

// CreateRole stores a new role. A zero id is replaced with the next free id.
func (tx *transaction) CreateRole(r Role) (Role, error) {
	if r.ID == 0 {
		r.ID = tx.state.roles.nextID()
	}
	if err := tx.state.roles.insert(r); err != nil {
		return Role{}, err
	}
	tx.recordChange(Change{Entity: domain.EntityRole, Action: domain.ActionCreate, EntityID: r.ID, After: r})
	return r, nil
}

// UpdateRole mutates a role using the provided mutator function.
func (tx *transaction) UpdateRole(id int64, mutator func(*Role) error) (Role, error) {
	before, after, err := tx.state.roles.update(id, mutator)
	if err != nil {
		return Role{}, err
	}
	tx.recordChange(Change{Entity: domain.EntityRole, Action: domain.ActionUpdate, EntityID: id, Before: before, After: after})
	return after, nil
}

// DeleteRole removes a role. Roles are mandatory for users, so the delete is
// refused while any user still holds the role.
func (tx *transaction) DeleteRole(id int64) error {
	if !tx.state.roles.has(id) {
		return domain.NotFoundError{Entity: domain.EntityRole, ID: id}
	}
	var holders []int64
	for _, u := range tx.state.users.list() {
		if u.RoleID == id {
			holders = append(holders, u.ID)
		}
	}
	if len(holders) > 0 {
		sort.Slice(holders, func(i, j int) bool { return holders[i] < holders[j] })
		return domain.ReferentialIntegrityError{Entity: domain.EntityRole, ID: id, Dependent: domain.EntityUser, DependentIDs: holders}
	}
	current, err := tx.state.roles.remove(id)
	if err != nil {
		return err
	}
	tx.recordChange(Change{Entity: domain.EntityRole, Action: domain.ActionDelete, EntityID: id, Before: current})
	return nil
}

// CreateIssue stores a new issue.
func (tx *transaction) CreateIssue(i Issue) (Issue, error) {
	if i.ID == 0 {
		i.ID = tx.state.issues.nextID()
	}
	if err := tx.state.issues.insert(i); err != nil {
		return Issue{}, err
	}
	tx.recordChange(Change{Entity: domain.EntityIssue, Action: domain.ActionCreate, EntityID: i.ID, After: i})
	return i, nil
}

// UpdateIssue mutates an issue.
func (tx *transaction) UpdateIssue(id int64, mutator func(*Issue) error) (Issue, error) {
	before, after, err := tx.state.issues.update(id, mutator)
	if err != nil {
		return Issue{}, err
	}
	tx.recordChange(Change{Entity: domain.EntityIssue, Action: domain.ActionUpdate, EntityID: id, Before: before, After: after})
	return after, nil
}

// DeleteIssue unlinks the issue from every tag, then removes it.
func (tx *transaction) DeleteIssue(id int64) error {
	if !tx.state.issues.has(id) {
		return domain.NotFoundError{Entity: domain.EntityIssue, ID: id}
	}
	for _, l := range tx.state.tagIssues.removeAllFor(id, SideRight) {
		tx.recordUnlink(domain.EntityTagIssue, l)
	}
	current, err := tx.state.issues.remove(id)
	if err != nil {
		return err
	}
	tx.recordChange(Change{Entity: domain.EntityIssue, Action: domain.ActionDelete, EntityID: id, Before: current})
	return nil
}

// CreateTag stores a new tag.
func (tx *transaction) CreateTag(t Tag) (Tag, error) {
	if t.ID == 0 {
		t.ID = tx.state.tags.nextID()
	}
	if err := tx.state.tags.insert(t); err != nil {
		return Tag{}, err
	}
	tx.recordChange(Change{Entity: domain.EntityTag, Action: domain.ActionCreate, EntityID: t.ID, After: t})
	return t, nil
}

// UpdateTag mutates a tag.
func (tx *transaction) UpdateTag(id int64, mutator func(*Tag) error) (Tag, error) {
	before, after, err := tx.state.tags.update(id, mutator)
	if err != nil {
		return Tag{}, err
	}
	tx.recordChange(Change{Entity: domain.EntityTag, Action: domain.ActionUpdate, EntityID: id, Before: before, After: after})
	return after, nil
}

// DeleteTag unlinks the tag from every user and issue, then removes it.
func (tx *transaction) DeleteTag(id int64) error {
	if !tx.state.tags.has(id) {
		return domain.NotFoundError{Entity: domain.EntityTag, ID: id}
	}
	for _, l := range tx.state.userTags.removeAllFor(id, SideRight) {
		tx.recordUnlink(domain.EntityUserTag, l)
	}
	for _, l := range tx.state.tagIssues.removeAllFor(id, SideLeft) {
		tx.recordUnlink(domain.EntityTagIssue, l)
	}
	current, err := tx.state.tags.remove(id)
	if err != nil {
		return err
	}
	tx.recordChange(Change{Entity: domain.EntityTag, Action: domain.ActionDelete, EntityID: id, Before: current})
	return nil
}

// CreateUser stores a new user after checking that its role exists.
func (tx *transaction) CreateUser(u User) (User, error) {
	if u.ID == 0 {
		u.ID = tx.state.users.nextID()
	}
	if err := tx.store.policy.ValidateUser(u); err != nil {
		return User{}, err
	}
	if err := tx.requireRole(u); err != nil {
		return User{}, err
	}
	if err := tx.state.users.insert(u); err != nil {
		return User{}, err
	}
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionCreate, EntityID: u.ID, After: u})
	return u, nil
}

// UpdateUser mutates a user. A role_id change must target an existing role.
func (tx *transaction) UpdateUser(id int64, mutator func(*User) error) (User, error) {
	before, after, err := tx.state.users.update(id, mutator, tx.requireRole)
	if err != nil {
		return User{}, err
	}
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionUpdate, EntityID: id, Before: before, After: after})
	return after, nil
}

// DeleteUser unlinks the user from every tag, then removes it.
func (tx *transaction) DeleteUser(id int64) error {
	if !tx.state.users.has(id) {
		return domain.NotFoundError{Entity: domain.EntityUser, ID: id}
	}
	for _, l := range tx.state.userTags.removeAllFor(id, SideLeft) {
		tx.recordUnlink(domain.EntityUserTag, l)
	}
	current, err := tx.state.users.remove(id)
	if err != nil {
		return err
	}
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionDelete, EntityID: id, Before: current})
	return nil
}

// LinkUserTag attaches a tag to a user. Re-linking an existing pair is a no-op.
func (tx *transaction) LinkUserTag(userID, tagID int64) error {
	l := Link{Left: userID, Right: tagID}
	if err := requireLinkEnds(tx.state, domain.EntityUserTag, l); err != nil {
		return err
	}
	if tx.state.userTags.link(userID, tagID) {
		tx.recordChange(Change{Entity: domain.EntityUserTag, Action: domain.ActionLink, EntityID: userID, After: l})
	}
	return nil
}

// UnlinkUserTag detaches a tag from a user. Missing pairs are ignored.
func (tx *transaction) UnlinkUserTag(userID, tagID int64) error {
	l := Link{Left: userID, Right: tagID}
	if tx.state.userTags.unlink(userID, tagID) {
		tx.recordUnlink(domain.EntityUserTag, l)
	}
	return nil
}

// LinkTagIssue attaches an issue to a tag. Re-linking an existing pair is a no-op.
func (tx *transaction) LinkTagIssue(tagID, issueID int64) error {
	l := Link{Left: tagID, Right: issueID}
	if err := requireLinkEnds(tx.state, domain.EntityTagIssue, l); err != nil {
		return err
	}
	if tx.state.tagIssues.link(tagID, issueID) {
		tx.recordChange(Change{Entity: domain.EntityTagIssue, Action: domain.ActionLink, EntityID: tagID, After: l})
	}
	return nil
}

// UnlinkTagIssue detaches an issue from a tag. Missing pairs are ignored.
func (tx *transaction) UnlinkTagIssue(tagID, issueID int64) error {
	l := Link{Left: tagID, Right: issueID}
	if tx.state.tagIssues.unlink(tagID, issueID) {
		tx.recordUnlink(domain.EntityTagIssue, l)
	}
	return nil
}

func (tx *transaction) recordUnlink(kind domain.EntityType, l Link) {
	tx.recordChange(Change{Entity: kind, Action: domain.ActionUnlink, EntityID: l.Left, Before: l})
}

func (tx *transaction) requireRole(u User) error {
	if !tx.state.roles.has(u.RoleID) {
		return domain.DanglingReferenceError{Entity: domain.EntityUser, Field: "role_id", Target: domain.EntityRole, TargetID: u.RoleID}
	}
	return nil
}
