// Package schema verifies relationship storage mappings against a live
// database.
package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/syssam/linkage/dialect/sql"
)

// ValidationError is one finding of Verify.
type ValidationError struct {
	Type         string
	Relationship string
	Table        string
	Message      string
}

func (e *ValidationError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s.%s (%s): %s", e.Type, e.Relationship, e.Table, e.Message)
	}
	return fmt.Sprintf("%s.%s: %s", e.Type, e.Relationship, e.Message)
}

// ValidationResult holds the findings of Verify.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	if len(r.Errors) > 0 {
		sb.WriteString("Errors:\n")
		for _, e := range r.Errors {
			sb.WriteString("  - ")
			sb.WriteString(e.Error())
			sb.WriteString("\n")
		}
	}
	if len(r.Warnings) > 0 {
		sb.WriteString("Warnings:\n")
		for _, w := range r.Warnings {
			sb.WriteString("  - ")
			sb.WriteString(w.Error())
			sb.WriteString("\n")
		}
	}
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("No issues found")
	}
	return sb.String()
}

// VerifyOption configures Verify.
type VerifyOption func(*verifyConfig)

type verifyConfig struct {
	allowUnordered  bool
	allowAsymmetric bool
}

// AllowUnordered drops the warning for to-many relationships stored
// without an order column.
func AllowUnordered() VerifyOption {
	return func(c *verifyConfig) {
		c.allowUnordered = true
	}
}

// AllowAsymmetric drops the warning for inverse pairs stored in different
// places.
func AllowAsymmetric() VerifyOption {
	return func(c *verifyConfig) {
		c.allowAsymmetric = true
	}
}

// Verify checks the mapping of every relationship known to l. A mapping
// whose table or columns cannot be queried is an error. A to-many
// relationship without an order column, or an inverse pair whose mappings
// do not mirror each other, is a warning.
//
//	result := schema.Verify(ctx, loader)
//	if result.HasErrors() {
//	    return errors.New(result.String())
//	}
func Verify(ctx context.Context, l *sql.Loader, opts ...VerifyOption) *ValidationResult {
	cfg := &verifyConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	reg := l.Schema()
	result := &ValidationResult{}
	for _, t := range reg.Types() {
		for _, d := range t.Relationships {
			m, _, err := l.Mapping(t.Name, d.Name)
			if err != nil {
				result.Errors = append(result.Errors, &ValidationError{
					Type: t.Name, Relationship: d.Name, Message: err.Error(),
				})
				continue
			}
			if err := l.CheckStorage(ctx, t.Name, d.Name); err != nil {
				result.Errors = append(result.Errors, &ValidationError{
					Type: t.Name, Relationship: d.Name, Table: m.Table,
					Message: fmt.Sprintf("storage is not queryable: %v", err),
				})
				continue
			}
			if !d.Unique() && m.OrderBy == "" && !cfg.allowUnordered {
				result.Warnings = append(result.Warnings, &ValidationError{
					Type: t.Name, Relationship: d.Name, Table: m.Table,
					Message: "no order column, member order depends on the database",
				})
			}
			if cfg.allowAsymmetric {
				continue
			}
			inv, err := reg.Inverse(t.Name, d.Name)
			if err != nil || inv == nil {
				continue
			}
			im, _, err := l.Mapping(d.Type, inv.Name)
			if err != nil {
				continue
			}
			if im.Table != m.Table || im.OwnerColumn != m.TargetColumn || im.TargetColumn != m.OwnerColumn {
				result.Warnings = append(result.Warnings, &ValidationError{
					Type: t.Name, Relationship: d.Name, Table: m.Table,
					Message: fmt.Sprintf("inverse %s.%s is stored as %s(%s, %s)",
						d.Type, inv.Name, im.Table, im.OwnerColumn, im.TargetColumn),
				})
			}
		}
	}
	return result
}
