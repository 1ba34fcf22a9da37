package core

import (
	"context"

	"entitygraph/pkg/domain"
)

// CreateRole persists a new role. A zero id is auto-assigned.
func (s *Service) CreateRole(ctx context.Context, role domain.Role) (domain.Role, domain.Result, error) {
	var created domain.Role
	res, err := s.mutate(ctx, "create_role", func(tx domain.Transaction) (int64, error) {
		var err error
		created, err = tx.CreateRole(role)
		return created.ID, err
	})
	return created, res, err
}

// UpdateRole mutates a role using the provided mutator.
func (s *Service) UpdateRole(ctx context.Context, id int64, mutator func(*domain.Role) error) (domain.Role, domain.Result, error) {
	var updated domain.Role
	res, err := s.mutate(ctx, "update_role", func(tx domain.Transaction) (int64, error) {
		var err error
		updated, err = tx.UpdateRole(id, mutator)
		return id, err
	})
	return updated, res, err
}

// DeleteRole removes a role no user references.
func (s *Service) DeleteRole(ctx context.Context, id int64) (domain.Result, error) {
	return s.mutate(ctx, "delete_role", func(tx domain.Transaction) (int64, error) {
		return id, tx.DeleteRole(id)
	})
}

// CreateIssue persists a new issue.
func (s *Service) CreateIssue(ctx context.Context, issue domain.Issue) (domain.Issue, domain.Result, error) {
	var created domain.Issue
	res, err := s.mutate(ctx, "create_issue", func(tx domain.Transaction) (int64, error) {
		var err error
		created, err = tx.CreateIssue(issue)
		return created.ID, err
	})
	return created, res, err
}

// UpdateIssue mutates an issue.
func (s *Service) UpdateIssue(ctx context.Context, id int64, mutator func(*domain.Issue) error) (domain.Issue, domain.Result, error) {
	var updated domain.Issue
	res, err := s.mutate(ctx, "update_issue", func(tx domain.Transaction) (int64, error) {
		var err error
		updated, err = tx.UpdateIssue(id, mutator)
		return id, err
	})
	return updated, res, err
}

// DeleteIssue removes an issue and detaches it from every tag.
func (s *Service) DeleteIssue(ctx context.Context, id int64) (domain.Result, error) {
	return s.mutate(ctx, "delete_issue", func(tx domain.Transaction) (int64, error) {
		return id, tx.DeleteIssue(id)
	})
}

// CreateTag persists a new tag.
func (s *Service) CreateTag(ctx context.Context, tag domain.Tag) (domain.Tag, domain.Result, error) {
	var created domain.Tag
	res, err := s.mutate(ctx, "create_tag", func(tx domain.Transaction) (int64, error) {
		var err error
		created, err = tx.CreateTag(tag)
		return created.ID, err
	})
	return created, res, err
}

// UpdateTag mutates a tag.
func (s *Service) UpdateTag(ctx context.Context, id int64, mutator func(*domain.Tag) error) (domain.Tag, domain.Result, error) {
	var updated domain.Tag
	res, err := s.mutate(ctx, "update_tag", func(tx domain.Transaction) (int64, error) {
		var err error
		updated, err = tx.UpdateTag(id, mutator)
		return id, err
	})
	return updated, res, err
}

// DeleteTag removes a tag and detaches it from every user and issue.
func (s *Service) DeleteTag(ctx context.Context, id int64) (domain.Result, error) {
	return s.mutate(ctx, "delete_tag", func(tx domain.Transaction) (int64, error) {
		return id, tx.DeleteTag(id)
	})
}

// CreateUser persists a new user; its role must exist.
func (s *Service) CreateUser(ctx context.Context, user domain.User) (domain.User, domain.Result, error) {
	var created domain.User
	res, err := s.mutate(ctx, "create_user", func(tx domain.Transaction) (int64, error) {
		var err error
		created, err = tx.CreateUser(user)
		return created.ID, err
	})
	return created, res, err
}

// UpdateUser mutates a user.
func (s *Service) UpdateUser(ctx context.Context, id int64, mutator func(*domain.User) error) (domain.User, domain.Result, error) {
	var updated domain.User
	res, err := s.mutate(ctx, "update_user", func(tx domain.Transaction) (int64, error) {
		var err error
		updated, err = tx.UpdateUser(id, mutator)
		return id, err
	})
	return updated, res, err
}

// DeleteUser removes a user and detaches it from every tag.
func (s *Service) DeleteUser(ctx context.Context, id int64) (domain.Result, error) {
	return s.mutate(ctx, "delete_user", func(tx domain.Transaction) (int64, error) {
		return id, tx.DeleteUser(id)
	})
}

// AssignUserRole points a user at another role. A missing user is NotFound;
// a missing role is a DanglingReference.
func (s *Service) AssignUserRole(ctx context.Context, userID, roleID int64) (domain.User, domain.Result, error) {
	var updated domain.User
	res, err := s.mutate(ctx, "assign_user_role", func(tx domain.Transaction) (int64, error) {
		var err error
		updated, err = tx.UpdateUser(userID, func(u *domain.User) error {
			u.RoleID = roleID
			return nil
		})
		return userID, err
	})
	return updated, res, err
}
