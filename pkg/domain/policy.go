package domain

import (
	"math"
	"strings"
)

// ValidationPolicy holds the configurable numeric bounds applied to records.
// A zero MaxAge, MaxTagsPerUser or MaxIssuesPerTag means unbounded.
type ValidationPolicy struct {
	MinAge          int     `yaml:"min_age" json:"min_age"`
	MaxAge          int     `yaml:"max_age" json:"max_age"`
	MinDiscount     float64 `yaml:"min_discount" json:"min_discount"`
	MaxDiscount     float64 `yaml:"max_discount" json:"max_discount"`
	MaxTagsPerUser  int     `yaml:"max_tags_per_user" json:"max_tags_per_user"`
	MaxIssuesPerTag int     `yaml:"max_issues_per_tag" json:"max_issues_per_tag"`
}

// DefaultValidationPolicy returns the bounds used when nothing is configured.
func DefaultValidationPolicy() ValidationPolicy {
	return ValidationPolicy{MinDiscount: 0, MaxDiscount: 1}
}

// ValidateRole checks role field invariants.
func (p ValidationPolicy) ValidateRole(r Role) error {
	if err := validateID(EntityRole, r.ID); err != nil {
		return err
	}
	if err := validateName(EntityRole, r.Name); err != nil {
		return err
	}
	if !r.Gender.Valid() {
		return ValidationError{Entity: EntityRole, Field: "gender", Reason: "must be Male or Female"}
	}
	return nil
}

// ValidateIssue checks issue field invariants.
func (p ValidationPolicy) ValidateIssue(i Issue) error {
	if err := validateID(EntityIssue, i.ID); err != nil {
		return err
	}
	return validateName(EntityIssue, i.Name)
}

// ValidateTag checks tag field invariants.
func (p ValidationPolicy) ValidateTag(t Tag) error {
	if err := validateID(EntityTag, t.ID); err != nil {
		return err
	}
	return validateName(EntityTag, t.Name)
}

// ValidateUser checks user field invariants. The role reference is checked by
// the store, which knows which roles exist.
func (p ValidationPolicy) ValidateUser(u User) error {
	if err := validateID(EntityUser, u.ID); err != nil {
		return err
	}
	if err := validateName(EntityUser, u.Name); err != nil {
		return err
	}
	if u.Age < p.MinAge || u.Age < 0 {
		return ValidationError{Entity: EntityUser, Field: "age", Reason: "below minimum"}
	}
	if p.MaxAge > 0 && u.Age > p.MaxAge {
		return ValidationError{Entity: EntityUser, Field: "age", Reason: "above maximum"}
	}
	if math.IsNaN(u.Discount) || u.Discount < p.MinDiscount || u.Discount > p.MaxDiscount {
		return ValidationError{Entity: EntityUser, Field: "discount", Reason: "out of range"}
	}
	return nil
}

func validateID(entity EntityType, id int64) error {
	if id <= 0 {
		return ValidationError{Entity: entity, Field: "id", Reason: "must be positive"}
	}
	return nil
}

func validateName(entity EntityType, name string) error {
	if strings.TrimSpace(name) == "" {
		return ValidationError{Entity: entity, Field: "name", Reason: "must not be empty"}
	}
	return nil
}
