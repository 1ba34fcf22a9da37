package core

import (
	"context"
	"fmt"

	"entitygraph/pkg/domain"
)

const (
	userTagCapRuleName  = "user_tag_cap"
	tagIssueCapRuleName = "tag_issue_cap"
)

// NewDefaultRulesEngine builds a rules engine with the built-in caps from policy.
func NewDefaultRulesEngine(policy domain.ValidationPolicy) *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewUserTagCapRule(policy.MaxTagsPerUser))
	engine.Register(NewTagIssueCapRule(policy.MaxIssuesPerTag))
	return engine
}

// NewUserTagCapRule blocks transactions that leave a user with more than max
// tags. A max of zero disables the rule.
func NewUserTagCapRule(maxTags int) domain.Rule {
	return linkCapRule{
		name:   userTagCapRuleName,
		kind:   domain.EntityUserTag,
		owner:  domain.EntityUser,
		limit:  maxTags,
		count:  func(v domain.TransactionView, id int64) int { return len(v.UserTagIDs(id)) },
		format: "user %d has %d tags, limit %d",
	}
}

// NewTagIssueCapRule blocks transactions that leave a tag with more than max
// issues. A max of zero disables the rule.
func NewTagIssueCapRule(maxIssues int) domain.Rule {
	return linkCapRule{
		name:   tagIssueCapRuleName,
		kind:   domain.EntityTagIssue,
		owner:  domain.EntityTag,
		limit:  maxIssues,
		count:  func(v domain.TransactionView, id int64) int { return len(v.TagIssueIDs(id)) },
		format: "tag %d has %d issues, limit %d",
	}
}

// linkCapRule only inspects owners touched by link changes in the transaction,
// so tightening the policy never blocks unrelated writes.
type linkCapRule struct {
	name   string
	kind   domain.EntityType
	owner  domain.EntityType
	limit  int
	count  func(domain.TransactionView, int64) int
	format string
}

func (r linkCapRule) Name() string { return r.name }

func (r linkCapRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	if r.limit <= 0 {
		return res, nil
	}
	seen := make(map[int64]struct{})
	for _, change := range changes {
		if change.Entity != r.kind || change.Action != domain.ActionLink {
			continue
		}
		if _, dup := seen[change.EntityID]; dup {
			continue
		}
		seen[change.EntityID] = struct{}{}
		if n := r.count(view, change.EntityID); n > r.limit {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.name,
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf(r.format, change.EntityID, n, r.limit),
				Entity:   r.owner,
				EntityID: change.EntityID,
			})
		}
	}
	return res, nil
}
