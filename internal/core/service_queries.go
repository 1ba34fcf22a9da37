package core

import (
	"context"
	"sort"
	"strings"

	"entitygraph/internal/projection"
	"entitygraph/pkg/domain"
)

// Orderings accepted by ListOptions.OrderBy. The zero value keeps insertion order.
const (
	OrderByInsertion = ""
	OrderByID        = "id"
	OrderByName      = "name"
)

// ListOptions controls ordering and paging of list reads.
type ListOptions struct {
	OrderBy string
	Offset  int
	// Limit caps the page size; zero returns everything after Offset.
	Limit int
}

func (o ListOptions) validate(entity domain.EntityType) error {
	switch o.OrderBy {
	case OrderByInsertion, OrderByID, OrderByName:
	default:
		return domain.ValidationError{Entity: entity, Field: "order_by", Reason: "must be id or name"}
	}
	if o.Offset < 0 {
		return domain.ValidationError{Entity: entity, Field: "offset", Reason: "must not be negative"}
	}
	if o.Limit < 0 {
		return domain.ValidationError{Entity: entity, Field: "limit", Reason: "must not be negative"}
	}
	return nil
}

// applyListOptions sorts and pages items in place; ties on name fall back to id.
func applyListOptions[T any](items []T, opts ListOptions, idOf func(T) int64, nameOf func(T) string) []T {
	switch opts.OrderBy {
	case OrderByID:
		sort.SliceStable(items, func(i, j int) bool { return idOf(items[i]) < idOf(items[j]) })
	case OrderByName:
		sort.SliceStable(items, func(i, j int) bool {
			if c := strings.Compare(nameOf(items[i]), nameOf(items[j])); c != 0 {
				return c < 0
			}
			return idOf(items[i]) < idOf(items[j])
		})
	}
	if opts.Offset >= len(items) {
		return items[:0]
	}
	items = items[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

// GetRole returns a role by id.
func (s *Service) GetRole(ctx context.Context, id int64) (domain.Role, error) {
	var out domain.Role
	err := s.read(ctx, "get_role", id, func(v domain.TransactionView) error {
		r, ok := v.FindRole(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityRole, ID: id}
		}
		out = r
		return nil
	})
	return out, err
}

// ListRoles returns roles per opts.
func (s *Service) ListRoles(ctx context.Context, opts ListOptions) ([]domain.Role, error) {
	var out []domain.Role
	err := s.read(ctx, "list_roles", 0, func(v domain.TransactionView) error {
		if err := opts.validate(domain.EntityRole); err != nil {
			return err
		}
		out = applyListOptions(v.ListRoles(), opts,
			func(r domain.Role) int64 { return r.ID },
			func(r domain.Role) string { return r.Name })
		return nil
	})
	return out, err
}

// GetIssue returns an issue by id.
func (s *Service) GetIssue(ctx context.Context, id int64) (domain.Issue, error) {
	var out domain.Issue
	err := s.read(ctx, "get_issue", id, func(v domain.TransactionView) error {
		i, ok := v.FindIssue(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityIssue, ID: id}
		}
		out = i
		return nil
	})
	return out, err
}

// ListIssues returns issues per opts.
func (s *Service) ListIssues(ctx context.Context, opts ListOptions) ([]domain.Issue, error) {
	var out []domain.Issue
	err := s.read(ctx, "list_issues", 0, func(v domain.TransactionView) error {
		if err := opts.validate(domain.EntityIssue); err != nil {
			return err
		}
		out = applyListOptions(v.ListIssues(), opts,
			func(i domain.Issue) int64 { return i.ID },
			func(i domain.Issue) string { return i.Name })
		return nil
	})
	return out, err
}

// GetTag returns a tag by id.
func (s *Service) GetTag(ctx context.Context, id int64) (domain.Tag, error) {
	var out domain.Tag
	err := s.read(ctx, "get_tag", id, func(v domain.TransactionView) error {
		t, ok := v.FindTag(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityTag, ID: id}
		}
		out = t
		return nil
	})
	return out, err
}

// ListTags returns tags per opts.
func (s *Service) ListTags(ctx context.Context, opts ListOptions) ([]domain.Tag, error) {
	var out []domain.Tag
	err := s.read(ctx, "list_tags", 0, func(v domain.TransactionView) error {
		if err := opts.validate(domain.EntityTag); err != nil {
			return err
		}
		out = applyListOptions(v.ListTags(), opts,
			func(t domain.Tag) int64 { return t.ID },
			func(t domain.Tag) string { return t.Name })
		return nil
	})
	return out, err
}

// GetUser returns a user by id.
func (s *Service) GetUser(ctx context.Context, id int64) (domain.User, error) {
	var out domain.User
	err := s.read(ctx, "get_user", id, func(v domain.TransactionView) error {
		u, ok := v.FindUser(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityUser, ID: id}
		}
		out = u
		return nil
	})
	return out, err
}

// ListUsers returns users per opts.
func (s *Service) ListUsers(ctx context.Context, opts ListOptions) ([]domain.User, error) {
	var out []domain.User
	err := s.read(ctx, "list_users", 0, func(v domain.TransactionView) error {
		if err := opts.validate(domain.EntityUser); err != nil {
			return err
		}
		out = applyListOptions(v.ListUsers(), opts,
			func(u domain.User) int64 { return u.ID },
			func(u domain.User) string { return u.Name })
		return nil
	})
	return out, err
}

// ProjectUser assembles the nested view of one user.
func (s *Service) ProjectUser(ctx context.Context, id int64) (domain.UserView, error) {
	var out domain.UserView
	err := s.read(ctx, "project_user", id, func(v domain.TransactionView) error {
		var err error
		out, err = projection.ProjectUser(v, id)
		return err
	})
	return out, err
}

// ProjectTag assembles the nested view of one tag.
func (s *Service) ProjectTag(ctx context.Context, id int64) (domain.TagView, error) {
	var out domain.TagView
	err := s.read(ctx, "project_tag", id, func(v domain.TransactionView) error {
		var err error
		out, err = projection.ProjectTag(v, id)
		return err
	})
	return out, err
}

// ProjectUsers assembles nested views of every user, in insertion order.
func (s *Service) ProjectUsers(ctx context.Context) ([]domain.UserView, error) {
	var out []domain.UserView
	err := s.read(ctx, "project_users", 0, func(v domain.TransactionView) error {
		var err error
		out, err = projection.ProjectUsers(v)
		return err
	})
	return out, err
}

// ProjectTags assembles nested views of every tag, in insertion order.
func (s *Service) ProjectTags(ctx context.Context) ([]domain.TagView, error) {
	var out []domain.TagView
	err := s.read(ctx, "project_tags", 0, func(v domain.TransactionView) error {
		var err error
		out, err = projection.ProjectTags(v)
		return err
	})
	return out, err
}

// TagIssueIDs lists the issues linked to a tag, in link order.
func (s *Service) TagIssueIDs(ctx context.Context, tagID int64) ([]int64, error) {
	return s.relatedIDs(ctx, "tag_issue_ids", tagID, domain.EntityTag,
		func(v domain.TransactionView) bool { _, ok := v.FindTag(tagID); return ok },
		func(v domain.TransactionView) []int64 { return v.TagIssueIDs(tagID) })
}

// IssueTagIDs lists the tags an issue is linked to.
func (s *Service) IssueTagIDs(ctx context.Context, issueID int64) ([]int64, error) {
	return s.relatedIDs(ctx, "issue_tag_ids", issueID, domain.EntityIssue,
		func(v domain.TransactionView) bool { _, ok := v.FindIssue(issueID); return ok },
		func(v domain.TransactionView) []int64 { return v.IssueTagIDs(issueID) })
}

// UserTagIDs lists the tags linked to a user, in link order.
func (s *Service) UserTagIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.relatedIDs(ctx, "user_tag_ids", userID, domain.EntityUser,
		func(v domain.TransactionView) bool { _, ok := v.FindUser(userID); return ok },
		func(v domain.TransactionView) []int64 { return v.UserTagIDs(userID) })
}

// TagUserIDs lists the users a tag is linked to.
func (s *Service) TagUserIDs(ctx context.Context, tagID int64) ([]int64, error) {
	return s.relatedIDs(ctx, "tag_user_ids", tagID, domain.EntityTag,
		func(v domain.TransactionView) bool { _, ok := v.FindTag(tagID); return ok },
		func(v domain.TransactionView) []int64 { return v.TagUserIDs(tagID) })
}

func (s *Service) relatedIDs(ctx context.Context, op string, id int64, entity domain.EntityType, exists func(domain.TransactionView) bool, ids func(domain.TransactionView) []int64) ([]int64, error) {
	var out []int64
	err := s.read(ctx, op, id, func(v domain.TransactionView) error {
		if !exists(v) {
			return domain.NotFoundError{Entity: entity, ID: id}
		}
		out = ids(v)
		return nil
	})
	return out, err
}
