package core

import (
	"context"

	"entitygraph/pkg/domain"
)

// LinkUserTag attaches a tag to a user. Linking an existing pair is a no-op.
func (s *Service) LinkUserTag(ctx context.Context, userID, tagID int64) (domain.Result, error) {
	return s.mutate(ctx, "link_user_tag", func(tx domain.Transaction) (int64, error) {
		return userID, tx.LinkUserTag(userID, tagID)
	})
}

// UnlinkUserTag detaches a tag from a user. Both records must exist; an
// absent pair is a no-op.
func (s *Service) UnlinkUserTag(ctx context.Context, userID, tagID int64) (domain.Result, error) {
	return s.mutate(ctx, "unlink_user_tag", func(tx domain.Transaction) (int64, error) {
		if _, ok := tx.FindUser(userID); !ok {
			return userID, domain.DanglingReferenceError{Entity: domain.EntityUserTag, Field: "user_id", Target: domain.EntityUser, TargetID: userID}
		}
		if _, ok := tx.FindTag(tagID); !ok {
			return userID, domain.DanglingReferenceError{Entity: domain.EntityUserTag, Field: "tag_id", Target: domain.EntityTag, TargetID: tagID}
		}
		return userID, tx.UnlinkUserTag(userID, tagID)
	})
}

// LinkTagIssue attaches an issue to a tag. Linking an existing pair is a no-op.
func (s *Service) LinkTagIssue(ctx context.Context, tagID, issueID int64) (domain.Result, error) {
	return s.mutate(ctx, "link_tag_issue", func(tx domain.Transaction) (int64, error) {
		return tagID, tx.LinkTagIssue(tagID, issueID)
	})
}

// UnlinkTagIssue detaches an issue from a tag. Both records must exist.
func (s *Service) UnlinkTagIssue(ctx context.Context, tagID, issueID int64) (domain.Result, error) {
	return s.mutate(ctx, "unlink_tag_issue", func(tx domain.Transaction) (int64, error) {
		if _, ok := tx.FindTag(tagID); !ok {
			return tagID, domain.DanglingReferenceError{Entity: domain.EntityTagIssue, Field: "tag_id", Target: domain.EntityTag, TargetID: tagID}
		}
		if _, ok := tx.FindIssue(issueID); !ok {
			return tagID, domain.DanglingReferenceError{Entity: domain.EntityTagIssue, Field: "issue_id", Target: domain.EntityIssue, TargetID: issueID}
		}
		return tagID, tx.UnlinkTagIssue(tagID, issueID)
	})
}
