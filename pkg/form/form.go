// Package form holds the editing state of one entity instance.
//
// A Form never talks to the backend: it validates on every change and
// reports submit, reset and obsolete-toggle intents through callbacks.
package form

import (
	"errors"
	"fmt"

	"github.com/cesarabad/muffinmanager/pkg/entity"
	"github.com/cesarabad/muffinmanager/pkg/models"
)

var (
	ErrNotSubmittable = errors.New("form has invalid fields")
	ErrNotPersisted   = errors.New("item is not persisted")
	ErrNotVersioned   = errors.New("entity has no version lifecycle")
	ErrUnknownField   = errors.New("unknown field")
)

const (
	LabelMarkObsolete   = "action.obsolete.mark"
	LabelRemoveObsolete = "action.obsolete.remove"
)

type Callbacks[T any] struct {
	OnChange         func(field string, value any)
	OnSubmit         func(item T)
	OnReset          func()
	OnToggleObsolete func(item T, obsolete bool)
}

// ObsoleteToggle is the render state of the obsolete button.
type ObsoleteToggle struct {
	Visible bool
	Enabled bool
	// Label is an i18n key.
	Label string
}

// Form is not safe for concurrent use.
type Form[T models.Identifiable] struct {
	fields    []entity.Field[T]
	factory   func() T
	versioned bool
	cb        Callbacks[T]

	item     T
	original T
	dirty    bool
	result   entity.Result
	// rejected holds input a field setter refused, keyed by field name.
	rejected map[string]entity.ValidationError
}

// New builds a form for d's fields followed by extra caller fields.
func New[T models.Identifiable](d entity.Descriptor[T], cb Callbacks[T], extra ...entity.Field[T]) *Form[T] {
	fields := make([]entity.Field[T], 0, len(d.Fields)+len(extra))
	fields = append(fields, d.Fields...)
	fields = append(fields, extra...)

	f := &Form[T]{
		fields:    fields,
		factory:   d.Blank,
		versioned: d.Versioned,
		cb:        cb,
	}
	f.Load(nil)
	return f
}

// Load shows item, or a blank draft when item is nil.
func (f *Form[T]) Load(item *T) {
	if item == nil {
		f.item = f.factory()
	} else {
		f.item = *item
	}
	f.original = f.item
	f.dirty = false
	clear(f.rejected)
	f.revalidate()
}

func (f *Form[T]) Item() T {
	return f.item
}

func (f *Form[T]) Fields() []entity.Field[T] {
	return f.fields
}

func (f *Form[T]) Value(field string) (any, error) {
	fd, ok := f.field(field)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	return fd.Get(&f.item), nil
}

// Change sets one field and revalidates the whole form. Input the field
// refuses as invalid keeps the form unsubmittable until the field is
// changed to an accepted value.
func (f *Form[T]) Change(field string, value any) error {
	fd, ok := f.field(field)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	if err := fd.Set(&f.item, value); err != nil {
		var invalid entity.ValidationError
		if errors.As(err, &invalid) {
			if f.rejected == nil {
				f.rejected = make(map[string]entity.ValidationError)
			}
			f.rejected[field] = invalid
			f.dirty = true
			f.revalidate()
		}
		return err
	}
	delete(f.rejected, field)
	f.dirty = true
	f.revalidate()
	if f.cb.OnChange != nil {
		f.cb.OnChange(field, value)
	}
	return nil
}

// Edit applies fn to the item, for fields rendered outside the descriptor.
func (f *Form[T]) Edit(fn func(item *T)) {
	fn(&f.item)
	f.dirty = true
	f.revalidate()
}

func (f *Form[T]) Submittable() bool {
	return f.result.Valid()
}

func (f *Form[T]) Errors() []entity.ValidationError {
	return f.result.Errors()
}

func (f *Form[T]) Error(field string) (entity.ValidationError, bool) {
	return f.result.For(field)
}

// Dirty reports unsaved changes since the last Load or Reset.
func (f *Form[T]) Dirty() bool {
	return f.dirty
}

// Persisted reports whether the item has a server identifier.
func (f *Form[T]) Persisted() bool {
	_, ok := f.item.EntityID()
	return ok
}

func (f *Form[T]) Submit() error {
	if !f.Submittable() {
		return ErrNotSubmittable
	}
	if f.cb.OnSubmit != nil {
		f.cb.OnSubmit(f.item)
	}
	return nil
}

// Reset restores the last loaded item.
func (f *Form[T]) Reset() {
	f.item = f.original
	f.dirty = false
	clear(f.rejected)
	f.revalidate()
	if f.cb.OnReset != nil {
		f.cb.OnReset()
	}
}

func (f *Form[T]) ObsoleteToggle() ObsoleteToggle {
	if !f.versioned {
		return ObsoleteToggle{}
	}
	t := ObsoleteToggle{Visible: true, Enabled: f.Persisted(), Label: LabelMarkObsolete}
	if isObsolete(f.item) {
		t.Label = LabelRemoveObsolete
	}
	return t
}

// ToggleObsolete requests flipping the obsolete flag of the persisted item.
func (f *Form[T]) ToggleObsolete() error {
	if !f.versioned {
		return ErrNotVersioned
	}
	if !f.Persisted() {
		return ErrNotPersisted
	}
	if f.cb.OnToggleObsolete != nil {
		f.cb.OnToggleObsolete(f.item, !isObsolete(f.item))
	}
	return nil
}

func (f *Form[T]) field(name string) (entity.Field[T], bool) {
	for _, fd := range f.fields {
		if fd.Name == name {
			return fd, true
		}
	}
	return entity.Field[T]{}, false
}

func (f *Form[T]) revalidate() {
	f.result = entity.ValidateWith(f.fields, &f.item, f.rejected)
}

func isObsolete(item any) bool {
	v, ok := item.(models.Versionable)
	return ok && v.IsObsolete()
}
