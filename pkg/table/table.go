// Package table pages a collection of entities and tracks per-row delete
// confirmations.
package table

import (
	"errors"
	"sync"

	"github.com/cesarabad/muffinmanager/pkg/constants"
	"github.com/cesarabad/muffinmanager/pkg/entity"
	"github.com/cesarabad/muffinmanager/pkg/i18n"
	"github.com/cesarabad/muffinmanager/pkg/models"
)

var (
	ErrNoRow              = errors.New("row out of range")
	ErrNotVersioned       = errors.New("table has a single view")
	ErrScopeUnavailable   = errors.New("delete scope unavailable")
	ErrConfirmationClosed = errors.New("confirmation already closed")
)

type View int

const (
	ViewActive View = iota
	ViewObsolete
)

// Label is the i18n key of the view switch entry.
func (v View) Label() string {
	if v == ViewObsolete {
		return "table.view.obsolete"
	}
	return "table.view.active"
}

func (v View) String() string {
	if v == ViewObsolete {
		return "obsolete"
	}
	return "active"
}

// Scope selects what a confirmed delete removes.
type Scope int

const (
	// ScopeVersion removes the selected row only.
	ScopeVersion Scope = iota
	// ScopeReference removes every version sharing the row's reference.
	ScopeReference
)

func (s Scope) Label() string {
	if s == ScopeReference {
		return "table.delete.scope.reference"
	}
	return "table.delete.scope.version"
}

type Config[T any] struct {
	// Extra columns are appended after the descriptor's.
	Extra    []entity.Column[T]
	PageSize int

	OnEdit       func(item T)
	OnDelete     func(item T, scope Scope)
	OnViewChange func(view View)
}

type Row[T any] struct {
	// Index addresses the item in the whole collection.
	Index int
	Item  T
	Cells []string
}

type Table[T models.Identifiable] struct {
	mu        sync.Mutex
	columns   []entity.Column[T]
	versioned bool
	pageSize  int
	cfg       Config[T]

	items []T
	page  int
	view  View
	open  map[*Confirmation[T]]struct{}
}

func New[T models.Identifiable](d entity.Descriptor[T], cfg Config[T]) *Table[T] {
	size := cfg.PageSize
	if size <= 0 {
		size = constants.DefaultPageSize
	}
	columns := make([]entity.Column[T], 0, len(d.Columns)+len(cfg.Extra))
	columns = append(columns, d.Columns...)
	columns = append(columns, cfg.Extra...)
	return &Table[T]{
		columns:   columns,
		versioned: d.Versioned,
		pageSize:  size,
		cfg:       cfg,
		open:      map[*Confirmation[T]]struct{}{},
	}
}

func (t *Table[T]) Columns() []entity.Column[T] {
	return t.columns
}

func (t *Table[T]) PageSize() int {
	return t.pageSize
}

// SetItems replaces the collection, keeping the current page when it
// still exists.
func (t *Table[T]) SetItems(items []T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append([]T(nil), items...)
	t.page = min(t.page, t.pagesLocked()-1)
}

func (t *Table[T]) Items() []T {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]T(nil), t.items...)
}

func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// Empty reports whether the "table.empty" placeholder should be shown.
func (t *Table[T]) Empty() bool {
	return t.Len() == 0
}

// Page is zero-based.
func (t *Table[T]) Page() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.page
}

// Pages is at least one, so an empty table still has a page to show.
func (t *Table[T]) Pages() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pagesLocked()
}

func (t *Table[T]) pagesLocked() int {
	if len(t.items) == 0 {
		return 1
	}
	return (len(t.items) + t.pageSize - 1) / t.pageSize
}

// SetPage moves to page n, clamped to the available pages.
func (t *Table[T]) SetPage(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.page = max(0, min(n, t.pagesLocked()-1))
}

func (t *Table[T]) Next() {
	t.SetPage(t.Page() + 1)
}

func (t *Table[T]) Prev() {
	t.SetPage(t.Page() - 1)
}

// Rows renders the current page.
func (t *Table[T]) Rows() []Row[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	start := t.page * t.pageSize
	end := min(start+t.pageSize, len(t.items))
	rows := make([]Row[T], 0, max(0, end-start))
	for i := start; i < end; i++ {
		cells := make([]string, len(t.columns))
		for c, col := range t.columns {
			cells[c] = col.Render(t.items[i])
		}
		rows = append(rows, Row[T]{Index: i, Item: t.items[i], Cells: cells})
	}
	return rows
}

func (t *Table[T]) item(index int) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.items) {
		var zero T
		return zero, ErrNoRow
	}
	return t.items[index], nil
}

// Edit hands the item at index to the edit callback.
func (t *Table[T]) Edit(index int) error {
	item, err := t.item(index)
	if err != nil {
		return err
	}
	if t.cfg.OnEdit != nil {
		t.cfg.OnEdit(item)
	}
	return nil
}

func (t *Table[T]) View() View {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.view
}

// SetView switches between active and obsolete rows. The current items
// belong to the previous view and are dropped; the caller reloads through
// the view change callback.
func (t *Table[T]) SetView(v View) error {
	if !t.versioned {
		return ErrNotVersioned
	}
	t.mu.Lock()
	if t.view == v {
		t.mu.Unlock()
		return nil
	}
	t.view = v
	t.items = nil
	t.page = 0
	open := t.open
	t.open = map[*Confirmation[T]]struct{}{}
	t.mu.Unlock()

	for c := range open {
		c.close()
	}
	if t.cfg.OnViewChange != nil {
		t.cfg.OnViewChange(v)
	}
	return nil
}

// Pending counts open delete confirmations.
func (t *Table[T]) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}

// BeginDelete opens a confirmation for the item at index.
func (t *Table[T]) BeginDelete(index int) (*Confirmation[T], error) {
	item, err := t.item(index)
	if err != nil {
		return nil, err
	}
	c := &Confirmation[T]{table: t, item: item, scope: ScopeVersion}
	t.mu.Lock()
	t.open[c] = struct{}{}
	t.mu.Unlock()
	return c, nil
}

func (t *Table[T]) release(c *Confirmation[T]) {
	t.mu.Lock()
	delete(t.open, c)
	t.mu.Unlock()
}

// Confirmation is the delete dialog of one row. Its scope choice lives
// and dies with it.
type Confirmation[T models.Identifiable] struct {
	table *Table[T]
	item  T

	mu     sync.Mutex
	scope  Scope
	closed bool
}

func (c *Confirmation[T]) Item() T {
	return c.item
}

func (c *Confirmation[T]) Scope() Scope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scope
}

// Scopes lists the choices to offer; plain entities only have one.
func (c *Confirmation[T]) Scopes() []Scope {
	if c.table.versioned {
		return []Scope{ScopeVersion, ScopeReference}
	}
	return []Scope{ScopeVersion}
}

func (c *Confirmation[T]) SetScope(s Scope) error {
	if s != ScopeVersion && (s != ScopeReference || !c.table.versioned) {
		return ErrScopeUnavailable
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConfirmationClosed
	}
	c.scope = s
	return nil
}

// Title returns the i18n key and params of the dialog title.
func (c *Confirmation[T]) Title() (string, i18n.Params) {
	return "table.delete.title", i18n.Params{"reference": c.item.EntityReference()}
}

// Confirm hands the item and chosen scope to the delete callback.
func (c *Confirmation[T]) Confirm() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConfirmationClosed
	}
	c.closed = true
	scope := c.scope
	c.mu.Unlock()

	c.table.release(c)
	if c.table.cfg.OnDelete != nil {
		c.table.cfg.OnDelete(c.item, scope)
	}
	return nil
}

// Cancel closes the dialog; it is safe to call more than once.
func (c *Confirmation[T]) Cancel() {
	c.close()
	c.table.release(c)
}

func (c *Confirmation[T]) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Confirmation[T]) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}
