// Package page drives one entity management screen: it loads the list,
// hosts the edit form and the table, serializes mutations, and refreshes
// on live notifications.
package page

import (
	"context"
	"errors"
	"sync"

	"github.com/cesarabad/muffinmanager/pkg/constants"
	"github.com/cesarabad/muffinmanager/pkg/crud"
	"github.com/cesarabad/muffinmanager/pkg/entity"
	"github.com/cesarabad/muffinmanager/pkg/form"
	"github.com/cesarabad/muffinmanager/pkg/i18n"
	"github.com/cesarabad/muffinmanager/pkg/live"
	"github.com/cesarabad/muffinmanager/pkg/logger"
	"github.com/cesarabad/muffinmanager/pkg/models"
	"github.com/cesarabad/muffinmanager/pkg/permission"
	"github.com/cesarabad/muffinmanager/pkg/table"
)

var (
	ErrBusy              = errors.New("another operation is in progress")
	ErrNotEditing        = errors.New("no item is being edited")
	ErrNotMounted        = errors.New("page is not mounted")
	ErrNoStore           = errors.New("page has no store")
	ErrStoreNotVersioned = errors.New("versioned entity needs a versioned store")
	// ErrStale is returned for a list result that was discarded.
	ErrStale = errors.New("stale result")
)

// Store is the CRUD surface a page needs; *crud.Client satisfies it.
type Store[T any] interface {
	ListAll(ctx context.Context) ([]T, error)
	Insert(ctx context.Context, item T) (T, error)
	Update(ctx context.Context, item T) (T, error)
	DeleteByID(ctx context.Context, id int64) error
}

// VersionedStore is satisfied by *crud.VersionedClient.
type VersionedStore[T any] interface {
	Store[T]
	ListObsolete(ctx context.Context) ([]T, error)
	SetObsoleteByID(ctx context.Context, id int64, obsolete bool) error
	DeleteByReference(ctx context.Context, reference string) error
}

type Config[T any] struct {
	Descriptor entity.Descriptor[T]
	Store      Store[T]
	// Live is optional; without it the page only reloads after its own
	// mutations.
	Live      live.Subscriber
	Notify    Notifier
	Translate i18n.TranslateFunc
	// Acting is the effective permission set of the signed-in user.
	Acting permission.Set
	Logger logger.Logger

	PageSize     int
	ExtraFields  []entity.Field[T]
	ExtraColumns []entity.Column[T]
}

type Manager[T models.Identifiable] struct {
	desc      entity.Descriptor[T]
	store     Store[T]
	versioned VersionedStore[T]
	sub       live.Subscriber
	notify    Notifier
	translate i18n.TranslateFunc
	acting    permission.Set
	log       logger.Logger

	form  *form.Form[T]
	table *table.Table[T]

	mu        sync.Mutex
	state     State
	errText   string
	busy      bool
	mounted   bool
	hasLoaded bool
	// gen changes on every mount and unmount so late results are dropped.
	gen     uint64
	seq     uint64
	applied uint64
	ctx     context.Context
	cancel  context.CancelFunc
	unsubs  []live.Unsubscribe
}

func New[T models.Identifiable](cfg Config[T]) (*Manager[T], error) {
	if cfg.Store == nil {
		return nil, ErrNoStore
	}
	vs, isVersioned := cfg.Store.(VersionedStore[T])
	if cfg.Descriptor.Versioned && !isVersioned {
		return nil, ErrStoreNotVersioned
	}
	if !cfg.Descriptor.Versioned {
		vs = nil
	}
	translate := cfg.Translate
	if translate == nil {
		translate = i18n.Nop
	}

	m := &Manager[T]{
		desc:      cfg.Descriptor,
		store:     cfg.Store,
		versioned: vs,
		sub:       cfg.Live,
		notify:    cfg.Notify,
		translate: translate,
		acting:    cfg.Acting,
		log:       logger.OrNop(cfg.Logger),
		ctx:       context.Background(),
	}
	m.form = form.New(cfg.Descriptor, form.Callbacks[T]{}, cfg.ExtraFields...)
	m.table = table.New(cfg.Descriptor, table.Config[T]{
		Extra:    cfg.ExtraColumns,
		PageSize: cfg.PageSize,
		OnEdit: func(item T) {
			if err := m.Edit(item); err != nil {
				m.refused("edit", err)
			}
		},
		OnDelete: func(item T, scope table.Scope) {
			// Backend failures are already notified by Delete.
			if err := m.Delete(m.context(), item, scope); isRefusal(err) {
				m.refused("delete", err)
			}
		},
		OnViewChange: func(table.View) {
			_ = m.load(m.context())
		},
	})
	return m, nil
}

// Form exposes the open form for rendering. A form is not safe for
// concurrent use: edit fields through Change, which holds the page lock.
func (m *Manager[T]) Form() *form.Form[T] {
	return m.form
}

// Change sets one field of the open form.
func (m *Manager[T]) Change(field string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case Submitting:
		return ErrBusy
	case Editing:
		return m.form.Change(field, value)
	default:
		return ErrNotEditing
	}
}

func (m *Manager[T]) Table() *table.Table[T] {
	return m.table
}

func (m *Manager[T]) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ErrorText is the message shown in the Error state.
func (m *Manager[T]) ErrorText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errText
}

func (m *Manager[T]) context() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

// Mount subscribes to the resource and global topics and loads the list.
func (m *Manager[T]) Mount(ctx context.Context) error {
	m.mu.Lock()
	if m.mounted {
		m.mu.Unlock()
		return nil
	}
	m.mounted = true
	m.gen++
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	if m.sub != nil {
		unsub := m.sub.Subscribe(m.onLive, m.desc.Topic(), constants.GlobalTopic)
		m.mu.Lock()
		m.unsubs = append(m.unsubs, unsub)
		m.mu.Unlock()
	}
	return m.load(m.context())
}

// Unmount releases the live subscriptions. Requests still in flight are
// cancelled and their results ignored.
func (m *Manager[T]) Unmount() {
	m.mu.Lock()
	if !m.mounted {
		m.mu.Unlock()
		return
	}
	m.mounted = false
	m.gen++
	m.state = Idle
	m.busy = false
	unsubs := m.unsubs
	m.unsubs = nil
	cancel := m.cancel
	m.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	cancel()
}

func (m *Manager[T]) onLive(message, topic string) {
	m.log.Debug("live refresh", "resource", m.desc.Resource, "topic", topic, "deleted", message == constants.DeletedSentinel)
	_ = m.load(m.context())
}

// Reload re-lists the current view. While a form is open the list
// refreshes in the background and the form is left as is.
func (m *Manager[T]) Reload(ctx context.Context) error {
	return m.load(ctx)
}

// load lists the current view. Each read is stamped with a sequence
// number and the view it was issued for; it is applied only if the page
// is still mounted, the view is unchanged and no newer read was applied.
func (m *Manager[T]) load(ctx context.Context) error {
	m.mu.Lock()
	if !m.mounted {
		m.mu.Unlock()
		return ErrNotMounted
	}
	m.seq++
	seq, gen, view := m.seq, m.gen, m.table.View()
	if m.state != Editing && m.state != Submitting {
		m.state = Loading
	}
	m.mu.Unlock()

	items, err := m.list(ctx, view)

	m.mu.Lock()
	if !m.mounted || gen != m.gen || view != m.table.View() || seq <= m.applied {
		m.mu.Unlock()
		m.log.Debug("discarding stale list", "resource", m.desc.Resource, "seq", seq, "view", view.String())
		return ErrStale
	}
	m.applied = seq
	if err != nil {
		if m.state == Loading {
			if m.hasLoaded {
				m.state = Loaded
			} else {
				m.state = Error
				m.errText = crud.MessageOf(err)
			}
		}
		m.mu.Unlock()
		m.failure("notify.error.load", err)
		return err
	}
	m.table.SetItems(items)
	m.hasLoaded = true
	m.errText = ""
	if m.state == Loading || m.state == Error {
		m.state = Loaded
	}
	m.mu.Unlock()
	return nil
}

func (m *Manager[T]) list(ctx context.Context, view table.View) ([]T, error) {
	if view == table.ViewObsolete && m.versioned != nil {
		return m.versioned.ListObsolete(ctx)
	}
	return m.store.ListAll(ctx)
}

// New opens the form on a blank draft.
func (m *Manager[T]) New() error {
	return m.open(nil)
}

// Edit opens the form on item.
func (m *Manager[T]) Edit(item T) error {
	return m.open(&item)
}

func (m *Manager[T]) open(item *T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.mounted {
		return ErrNotMounted
	}
	if m.busy {
		return ErrBusy
	}
	m.form.Load(item)
	m.state = Editing
	return nil
}

// Cancel closes the form without saving.
func (m *Manager[T]) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Submitting {
		return ErrBusy
	}
	if m.state != Editing {
		return ErrNotEditing
	}
	m.form.Load(nil)
	m.state = m.stableState()
	return nil
}

// stableState is where the page rests when no form is open.
func (m *Manager[T]) stableState() State {
	if m.hasLoaded {
		return Loaded
	}
	if m.errText != "" {
		return Error
	}
	return Loading
}

// begin reserves the single mutation slot.
func (m *Manager[T]) begin() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.mounted {
		return 0, ErrNotMounted
	}
	if m.busy {
		return 0, ErrBusy
	}
	m.busy = true
	return m.gen, nil
}

// end releases the mutation slot and reports whether the page that started
// it is still mounted. Called with mu held.
func (m *Manager[T]) end(gen uint64) bool {
	if gen != m.gen {
		return false
	}
	m.busy = false
	return m.mounted
}

// Submit saves the form item. Success closes the form and re-lists;
// failure keeps the form open and notifies.
func (m *Manager[T]) Submit(ctx context.Context) error {
	m.mu.Lock()
	switch {
	case !m.mounted:
		m.mu.Unlock()
		return ErrNotMounted
	case m.busy:
		m.mu.Unlock()
		return ErrBusy
	case m.state != Editing:
		m.mu.Unlock()
		return ErrNotEditing
	case !m.form.Submittable():
		m.mu.Unlock()
		return form.ErrNotSubmittable
	}
	m.busy = true
	m.state = Submitting
	gen := m.gen
	item := m.form.Item()
	m.mu.Unlock()

	err := m.save(ctx, item)

	m.mu.Lock()
	if !m.end(gen) {
		m.mu.Unlock()
		return err
	}
	if err != nil {
		m.state = Editing
		m.mu.Unlock()
		m.failure("notify.error.save", err)
		return err
	}
	m.form.Load(nil)
	m.state = Loading
	m.mu.Unlock()

	m.success("notify.saved")
	_ = m.load(ctx)
	return nil
}

func (m *Manager[T]) save(ctx context.Context, item T) error {
	var err error
	if _, ok := item.EntityID(); ok {
		_, err = m.store.Update(ctx, item)
	} else {
		_, err = m.store.Insert(ctx, item)
	}
	return err
}

// Delete removes item, or every version of its reference for
// table.ScopeReference, then re-lists.
func (m *Manager[T]) Delete(ctx context.Context, item T, scope table.Scope) error {
	id, hasID := item.EntityID()
	switch {
	case scope == table.ScopeReference && m.versioned == nil:
		return table.ErrScopeUnavailable
	case scope == table.ScopeVersion && !hasID:
		return constants.ErrMissingID
	}

	gen, err := m.begin()
	if err != nil {
		return err
	}
	if scope == table.ScopeReference {
		err = m.versioned.DeleteByReference(ctx, item.EntityReference())
	} else {
		err = m.store.DeleteByID(ctx, id)
	}

	m.mu.Lock()
	if !m.end(gen) {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()
	if err != nil {
		m.failure("notify.error.delete", err)
		return err
	}
	m.success("notify.deleted")
	_ = m.load(ctx)
	return nil
}

// ToggleObsolete flips the obsolete flag of the item in the form, closes
// the form and re-lists.
func (m *Manager[T]) ToggleObsolete(ctx context.Context) error {
	m.mu.Lock()
	if m.state != Editing {
		m.mu.Unlock()
		return ErrNotEditing
	}
	toggle := m.form.ObsoleteToggle()
	item := m.form.Item()
	m.mu.Unlock()

	switch {
	case !toggle.Visible || m.versioned == nil:
		return form.ErrNotVersioned
	case !toggle.Enabled:
		return form.ErrNotPersisted
	}
	id, _ := item.EntityID()
	obsolete := toggle.Label == form.LabelMarkObsolete

	gen, err := m.begin()
	if err != nil {
		return err
	}
	err = m.versioned.SetObsoleteByID(ctx, id, obsolete)

	m.mu.Lock()
	if !m.end(gen) {
		m.mu.Unlock()
		return err
	}
	if err != nil {
		m.mu.Unlock()
		m.failure("notify.error.obsolete", err)
		return err
	}
	m.form.Load(nil)
	m.state = Loading
	m.mu.Unlock()

	if obsolete {
		m.success("notify.obsolete.marked")
	} else {
		m.success("notify.obsolete.removed")
	}
	_ = m.load(ctx)
	return nil
}

// SwitchView shows the active or obsolete rows; the table's view change
// triggers the reload.
func (m *Manager[T]) SwitchView(v table.View) error {
	if !m.Mounted() {
		return ErrNotMounted
	}
	return m.table.SetView(v)
}

func (m *Manager[T]) Mounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mounted
}

// Controls says which actions to render. Hiding is a convenience only;
// the server authorizes every call.
type Controls struct {
	List           bool
	Create         bool
	Edit           bool
	Delete         bool
	Submit         bool
	Cancel         bool
	Reset          bool
	ToggleObsolete bool
	SwitchView     bool
}

func (m *Manager[T]) Controls() Controls {
	m.mu.Lock()
	defer m.mu.Unlock()
	manage := permission.Allowed(m.acting, m.desc.Manage)
	idle := m.mounted && !m.busy
	editing := m.state == Editing
	listed := m.state == Loaded || editing

	return Controls{
		List:           permission.Allowed(m.acting, m.desc.View),
		Create:         manage && idle && listed,
		Edit:           manage && idle && listed,
		Delete:         manage && idle && listed,
		Submit:         manage && idle && editing && m.form.Submittable(),
		Cancel:         editing,
		Reset:          editing,
		ToggleObsolete: manage && idle && editing && m.form.ObsoleteToggle().Enabled,
		SwitchView:     m.versioned != nil && m.mounted,
	}
}
