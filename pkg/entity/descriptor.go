// Package entity declares how an entity type is edited and listed.
//
// A Descriptor is built once per entity type and never mutated. Its
// fields drive the form and its validation; its columns drive the table.
package entity

import (
	"strconv"

	"github.com/cesarabad/muffinmanager/pkg/constants"
	"github.com/cesarabad/muffinmanager/pkg/models"
)

type Descriptor[T any] struct {
	// Name is the i18n key of the entity, e.g. "entity.box".
	Name string
	// Resource is the CRUD path and topic suffix, e.g. "box".
	Resource  string
	Versioned bool
	Fields    []Field[T]
	Columns   []Column[T]
	// New returns a blank draft.
	New func() T
	// View and Manage gate reading and mutating controls.
	View   models.Permission
	Manage models.Permission
}

// Topic is the live topic the resource's changes are published on.
func (d Descriptor[T]) Topic() string {
	return constants.TopicPrefix + "/" + d.Resource
}

// Blank returns a new draft, the zero value when New is nil.
func (d Descriptor[T]) Blank() T {
	if d.New == nil {
		var zero T
		return zero
	}
	return d.New()
}

func (d Descriptor[T]) Field(name string) (Field[T], bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field[T]{}, false
}

// Column renders one cell per row.
type Column[T any] struct {
	Name string
	// Label is an i18n key.
	Label  string
	Render func(T) string
}

// FieldColumn renders the current value of f.
func FieldColumn[T any](f Field[T]) Column[T] {
	return Column[T]{
		Name:  f.Name,
		Label: f.Label,
		Render: func(item T) string {
			return Format(f.Get(&item))
		},
	}
}

// Format renders a field value for display.
func Format(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case *int64:
		if v == nil {
			return ""
		}
		return strconv.FormatInt(*v, 10)
	case *models.DateTime:
		if v.IsZero() {
			return ""
		}
		return v.String()
	default:
		return ""
	}
}
