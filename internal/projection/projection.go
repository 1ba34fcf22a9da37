// Package projection assembles the nested user and tag views from the
// normalized tables and association indices. Every function is a pure read
// over a domain.TransactionView; nothing is cached between calls.
package projection

import (
	"entitygraph/pkg/domain"
)

// ProjectTag returns the tag with its linked issues embedded in link order.
func ProjectTag(view domain.TransactionView, tagID int64) (domain.TagView, error) {
	tag, ok := view.FindTag(tagID)
	if !ok {
		return domain.TagView{}, domain.NotFoundError{Entity: domain.EntityTag, ID: tagID}
	}
	return assembleTag(view, tag)
}

// ProjectUser returns the user with its role and tags embedded. A role or
// linked record that cannot be resolved yields a DanglingReferenceError.
func ProjectUser(view domain.TransactionView, userID int64) (domain.UserView, error) {
	user, ok := view.FindUser(userID)
	if !ok {
		return domain.UserView{}, domain.NotFoundError{Entity: domain.EntityUser, ID: userID}
	}
	return assembleUser(view, user)
}

// ProjectTags projects every tag in insertion order.
func ProjectTags(view domain.TransactionView) ([]domain.TagView, error) {
	tags := view.ListTags()
	out := make([]domain.TagView, 0, len(tags))
	for _, tag := range tags {
		tv, err := assembleTag(view, tag)
		if err != nil {
			return nil, err
		}
		out = append(out, tv)
	}
	return out, nil
}

// ProjectUsers projects every user in insertion order.
func ProjectUsers(view domain.TransactionView) ([]domain.UserView, error) {
	users := view.ListUsers()
	out := make([]domain.UserView, 0, len(users))
	for _, user := range users {
		uv, err := assembleUser(view, user)
		if err != nil {
			return nil, err
		}
		out = append(out, uv)
	}
	return out, nil
}

func assembleTag(view domain.TransactionView, tag domain.Tag) (domain.TagView, error) {
	ids := view.TagIssueIDs(tag.ID)
	issues := make([]domain.Issue, 0, len(ids))
	for _, id := range dedupe(ids) {
		issue, ok := view.FindIssue(id)
		if !ok {
			return domain.TagView{}, domain.DanglingReferenceError{Entity: domain.EntityTag, Field: "issues", Target: domain.EntityIssue, TargetID: id}
		}
		issues = append(issues, issue)
	}
	return domain.TagView{ID: tag.ID, Name: tag.Name, Issues: issues}, nil
}

func assembleUser(view domain.TransactionView, user domain.User) (domain.UserView, error) {
	role, ok := view.FindRole(user.RoleID)
	if !ok {
		return domain.UserView{}, domain.DanglingReferenceError{Entity: domain.EntityUser, Field: "role_id", Target: domain.EntityRole, TargetID: user.RoleID}
	}
	ids := view.UserTagIDs(user.ID)
	tags := make([]domain.TagView, 0, len(ids))
	for _, id := range dedupe(ids) {
		tag, ok := view.FindTag(id)
		if !ok {
			return domain.UserView{}, domain.DanglingReferenceError{Entity: domain.EntityUser, Field: "tags", Target: domain.EntityTag, TargetID: id}
		}
		tv, err := assembleTag(view, tag)
		if err != nil {
			return domain.UserView{}, err
		}
		tags = append(tags, tv)
	}
	return domain.UserView{
		ID:       user.ID,
		Name:     user.Name,
		Age:      user.Age,
		Discount: user.Discount,
		RoleID:   user.RoleID,
		Role:     role,
		Tags:     tags,
	}, nil
}

// dedupe keeps the first occurrence of each id. Store indices never hold
// duplicates, but views from other TransactionView implementations might.
func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
