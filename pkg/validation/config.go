package validation

import (
	"errors"
	"fmt"
	"time"
)

// FieldError reports one failed configuration rule.
type FieldError struct {
	Field  string
	Reason string
	Err    error
}

func (e *FieldError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Rules collects cross-field configuration checks that struct tags cannot
// express. Every failed rule is kept.
type Rules struct {
	section string
	errs    []error
}

// NewRules starts a rule set. Field names are reported under section.
func NewRules(section string) *Rules {
	return &Rules{section: section}
}

func (r *Rules) fail(field, reason string, err error) {
	r.errs = append(r.errs, &FieldError{Field: r.section + "." + field, Reason: reason, Err: err})
}

// Require fails when value is empty.
func (r *Rules) Require(field, value string) *Rules {
	if value == "" {
		r.fail(field, "required", nil)
	}
	return r
}

// AtLeast fails when a duration is below min.
func (r *Rules) AtLeast(field string, value, min time.Duration) *Rules {
	if value < min {
		r.fail(field, fmt.Sprintf("%v is below the minimum %v", value, min), nil)
	}
	return r
}

// Check fails with fn's error.
func (r *Rules) Check(field string, fn func() error) *Rules {
	if err := fn(); err != nil {
		r.fail(field, "", err)
	}
	return r
}

// If applies rules only when cond holds.
func (r *Rules) If(cond bool, rules func(*Rules)) *Rules {
	if cond {
		rules(r)
	}
	return r
}

// Err joins every failure, or returns nil.
func (r *Rules) Err() error {
	return errors.Join(r.errs...)
}

// DefaultOr returns value unless it is zero or negative.
func DefaultOr[T int | int64 | time.Duration](value, fallback T) T {
	if value <= 0 {
		return fallback
	}
	return value
}
