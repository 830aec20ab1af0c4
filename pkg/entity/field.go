package entity

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cesarabad/muffinmanager/pkg/i18n"
)

// Field describes one editable attribute of T.
type Field[T any] struct {
	Name string
	// Label is an i18n key.
	Label    string
	Required bool
	Kind     Kind

	get func(*T) any
	set func(*T, any) error
}

// Get returns the current value: string for text-like kinds, float64 for
// Number and *int64 for Reference.
func (f Field[T]) Get(item *T) any {
	return f.get(item)
}

// Set converts value to the field's type and stores it in item.
func (f Field[T]) Set(item *T, value any) error {
	if err := f.set(item, value); err != nil {
		return fmt.Errorf("field %s: %w", f.Name, err)
	}
	return nil
}

// StringField binds a Text, Select or Image field to a string attribute.
func StringField[T any](name, label string, required bool, kind Kind, ptr func(*T) *string) Field[T] {
	return Field[T]{
		Name:     name,
		Label:    label,
		Required: required,
		Kind:     kind,
		get:      func(item *T) any { return *ptr(item) },
		set: func(item *T, value any) error {
			s, err := toString(value)
			if err != nil {
				return err
			}
			*ptr(item) = s
			return nil
		},
	}
}

// OptionalStringField binds a Text field to a *string attribute; an
// empty value is stored as nil.
func OptionalStringField[T any](name, label string, kind Text, ptr func(*T) **string) Field[T] {
	return Field[T]{
		Name:  name,
		Label: label,
		Kind:  kind,
		get: func(item *T) any {
			if p := *ptr(item); p != nil {
				return *p
			}
			return ""
		},
		set: func(item *T, value any) error {
			s, err := toString(value)
			if err != nil {
				return err
			}
			if strings.TrimSpace(s) == "" {
				*ptr(item) = nil
				return nil
			}
			*ptr(item) = &s
			return nil
		},
	}
}

// FloatField binds a Number field to a float64 attribute.
func FloatField[T any](name, label string, required bool, kind Number, ptr func(*T) *float64) Field[T] {
	return Field[T]{
		Name:     name,
		Label:    label,
		Required: required,
		Kind:     kind,
		get:      func(item *T) any { return *ptr(item) },
		set: func(item *T, value any) error {
			f, err := toFloat(value)
			if err != nil {
				return err
			}
			*ptr(item) = f
			return nil
		},
	}
}

// IntField binds an integer Number field to an int attribute.
func IntField[T any](name, label string, required bool, kind Number, ptr func(*T) *int) Field[T] {
	kind.Integer = true
	return Field[T]{
		Name:     name,
		Label:    label,
		Required: required,
		Kind:     kind,
		get:      func(item *T) any { return float64(*ptr(item)) },
		set: func(item *T, value any) error {
			f, err := toFloat(value)
			if err != nil {
				return err
			}
			n, rejected := toInt(name, f)
			if rejected != nil {
				return *rejected
			}
			*ptr(item) = n
			return nil
		},
	}
}

// ReferenceField binds a related-entity picker to an *int64 attribute.
func ReferenceField[T any](name, label string, required bool, resource string, ptr func(*T) **int64) Field[T] {
	return Field[T]{
		Name:     name,
		Label:    label,
		Required: required,
		Kind:     Reference{Resource: resource},
		get:      func(item *T) any { return *ptr(item) },
		set: func(item *T, value any) error {
			id, err := toID(value)
			if err != nil {
				return err
			}
			*ptr(item) = id
			return nil
		},
	}
}

func toString(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("expected text, got %T", value)
	}
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("expected number, got %T", value)
	}
}

// toInt refuses values an int cannot hold exactly instead of truncating them.
func toInt(field string, f float64) (int, *ValidationError) {
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return 0, &ValidationError{Field: field, Key: "validation.number"}
	case f != math.Trunc(f):
		return 0, &ValidationError{Field: field, Key: "validation.integer"}
	case f >= float64(math.MaxInt)+1:
		return 0, &ValidationError{Field: field, Key: "validation.max", Params: i18n.Params{"max": math.MaxInt}}
	case f < float64(math.MinInt):
		return 0, &ValidationError{Field: field, Key: "validation.min", Params: i18n.Params{"min": math.MinInt}}
	}
	return int(f), nil
}

// toID maps every "no selection" spelling to nil.
func toID(value any) (*int64, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *int64:
		if v == nil {
			return nil, nil
		}
		id := *v
		return &id, nil
	case int64:
		return &v, nil
	case int:
		id := int64(v)
		return &id, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", v)
		}
		return &id, nil
	default:
		return nil, fmt.Errorf("expected id, got %T", value)
	}
}
