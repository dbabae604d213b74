package model

import (
	"fmt"
	"strings"
)

// Normalizer rewrites a raw cell value into canonical form.
type Normalizer func(string) (string, error)

// Validator checks a normalized cell value.
type Validator func(string) error

// FieldSpec declares one field of a row schema.
type FieldSpec struct {
	// Name is the CSV column name.
	Name string

	// Required marks fields that must be present and non-empty on create.
	Required bool

	// Identity marks the field(s) that name the remote resource. Identity
	// fields are required for every action, including delete.
	Identity bool

	// List marks fields whose value is a |-separated list. Normalize and
	// Validate then apply per element.
	List bool

	// Normalize canonicalizes the value before validation. Optional.
	Normalize Normalizer

	// Validate checks the (normalized) value. Optional.
	Validate Validator
}

// Schema declares the fields of one object type.
//
// Fields not declared by the schema are accepted and passed through
// untouched; the remote server treats them as user-defined fields.
type Schema struct {
	Type ObjectType

	// RequiresConfiguration marks kinds that must carry the configuration
	// envelope column.
	RequiresConfiguration bool

	// RequiresView marks DNS kinds that must carry the view envelope column.
	RequiresView bool

	Fields []FieldSpec
}

// fieldIndex returns the spec for a named field, or nil.
func (s *Schema) fieldIndex(name string) *FieldSpec {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// Apply normalizes the row's fields in place and returns all schema
// violations. The row is only considered valid when the returned slice is
// empty.
func (s *Schema) Apply(row *Row) []ValidationError {
	var errs []ValidationError

	fail := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{
			RowID:   row.RowID,
			Field:   field,
			Message: fmt.Sprintf(format, args...),
		})
	}

	if s.RequiresConfiguration && row.Configuration == "" {
		fail("configuration", "required for object type %s", s.Type)
	}
	if s.RequiresView && row.View == "" {
		fail("view", "required for object type %s", s.Type)
	}

	for i := range s.Fields {
		spec := &s.Fields[i]
		raw, present := row.Fields[spec.Name]

		if !present || raw == "" {
			// Identity fields are always required; other required fields
			// only on create (updates patch, deletes only need identity).
			if spec.Identity {
				fail(spec.Name, "required field is missing")
			} else if spec.Required && row.Action == ActionCreate {
				fail(spec.Name, "required field is missing")
			}
			continue
		}

		if spec.List {
			parts := strings.Split(raw, ListDelimiter)
			normalized := make([]string, 0, len(parts))
			for _, part := range parts {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				value, err := spec.apply(part)
				if err != nil {
					fail(spec.Name, "%v", err)
					continue
				}
				normalized = append(normalized, value)
			}
			row.Fields[spec.Name] = strings.Join(normalized, ListDelimiter)
			continue
		}

		value, err := spec.apply(raw)
		if err != nil {
			fail(spec.Name, "%v", err)
			continue
		}
		row.Fields[spec.Name] = value
	}

	return errs
}

// apply runs the normalizer then the validator on a single value.
func (spec *FieldSpec) apply(value string) (string, error) {
	if spec.Normalize != nil {
		normalized, err := spec.Normalize(value)
		if err != nil {
			return "", err
		}
		value = normalized
	}
	if spec.Validate != nil {
		if err := spec.Validate(value); err != nil {
			return "", err
		}
	}
	return value, nil
}

// ValidateRow looks up the schema for the row's object type and applies it.
// An unknown object type yields a single validation error.
func ValidateRow(row *Row) []ValidationError {
	if row.RowID == "" {
		return []ValidationError{{RowID: row.RowID, Field: "row_id", Message: "row_id must not be empty"}}
	}
	if !row.Action.Valid() {
		return []ValidationError{{
			RowID:   row.RowID,
			Field:   "action",
			Message: fmt.Sprintf("unknown action %q", row.Action),
		}}
	}

	schema, ok := Schemas[row.ObjectType]
	if !ok {
		return []ValidationError{{
			RowID:   row.RowID,
			Field:   "object_type",
			Message: fmt.Sprintf("unknown object type %q", row.ObjectType),
		}}
	}
	return schema.Apply(row)
}

// KnownType reports whether the object type has a registered schema.
func KnownType(t ObjectType) bool {
	_, ok := Schemas[t]
	return ok
}
