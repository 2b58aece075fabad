package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Supported entity types.
const (
	EntityContacts  = "contacts"
	EntityCompanies = "companies"
	EntityTasks     = "tasks"
	EntityLeads     = "leads"
)

// EntityTypes lists every entity type the system can update, in a stable
// order.
var EntityTypes = []string{EntityContacts, EntityCompanies, EntityTasks, EntityLeads}

// IsEntityType reports whether s names a known entity table.
func IsEntityType(s string) bool {
	for _, t := range EntityTypes {
		if t == s {
			return true
		}
	}
	return false
}

// EntityField pairs a request-facing field name with its database column.
type EntityField struct {
	Name   string
	Column string
}

// AllowList maps an entity type to the fixed set of fields a bulk action is
// permitted to write. It is built once at startup and validated before any
// service starts taking traffic.
type AllowList map[string][]EntityField

// DefaultAllowList returns the built-in per-entity updatable field sets.
func DefaultAllowList() AllowList {
	return AllowList{
		EntityContacts: {
			{Name: "name", Column: "name"},
			{Name: "age", Column: "age"},
			{Name: "email", Column: "email"},
			{Name: "phone", Column: "phone"},
		},
		EntityCompanies: {
			{Name: "name", Column: "name"},
			{Name: "industry", Column: "industry"},
			{Name: "size", Column: "size"},
			{Name: "location", Column: "location"},
		},
		EntityTasks: {
			{Name: "title", Column: "title"},
			{Name: "dueDate", Column: "due_date"},
			{Name: "priority", Column: "priority"},
			{Name: "status", Column: "status"},
		},
		EntityLeads: {
			{Name: "name", Column: "name"},
			{Name: "source", Column: "source"},
			{Name: "stage", Column: "stage"},
			{Name: "email", Column: "email"},
		},
	}
}

// NewAllowList builds an AllowList from configured field names, deriving the
// column for each field. An empty per-entity list falls back to the default
// set for that entity.
func NewAllowList(fields map[string][]string) (AllowList, error) {
	allow := DefaultAllowList()
	for entityType, names := range fields {
		if !IsEntityType(entityType) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEntityType, entityType)
		}
		if len(names) == 0 {
			continue
		}
		list := make([]EntityField, 0, len(names))
		for _, name := range names {
			list = append(list, EntityField{Name: name, Column: fieldColumn(name)})
		}
		allow[entityType] = list
	}
	if err := allow.Validate(); err != nil {
		return nil, err
	}
	return allow, nil
}

var columnPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Validate checks the allow-list covers every entity type with safe,
// non-empty field sets. Columns feed into SQL identifiers, so they must match
// a strict pattern.
func (a AllowList) Validate() error {
	for _, entityType := range EntityTypes {
		fields := a[entityType]
		if len(fields) == 0 {
			return fmt.Errorf("allow-list for %q is empty", entityType)
		}
		for _, f := range fields {
			if f.Name == "" {
				return fmt.Errorf("allow-list for %q has an unnamed field", entityType)
			}
			if !columnPattern.MatchString(f.Column) {
				return fmt.Errorf("allow-list for %q: field %q maps to unsafe column %q", entityType, f.Name, f.Column)
			}
		}
	}
	for entityType := range a {
		if !IsEntityType(entityType) {
			return fmt.Errorf("%w: %q", ErrUnknownEntityType, entityType)
		}
	}
	return nil
}

// Known reports whether the allow-list covers entityType.
func (a AllowList) Known(entityType string) bool {
	return len(a[entityType]) > 0
}

// Filter intersects the requested field names with the allow-list for
// entityType, preserving request order. An empty result means the action has
// nothing valid to write for this entity type.
func (a AllowList) Filter(entityType string, requested []string) []EntityField {
	allowed := a[entityType]
	if len(allowed) == 0 {
		return nil
	}
	byName := make(map[string]EntityField, len(allowed))
	for _, f := range allowed {
		byName[f.Name] = f
	}
	var out []EntityField
	seen := make(map[string]bool, len(requested))
	for _, name := range requested {
		f, ok := byName[name]
		if !ok || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, f)
	}
	return out
}

// fieldColumn derives a snake_case column name from a camelCase field name.
func fieldColumn(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
