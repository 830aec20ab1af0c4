package page

import (
	"errors"

	"github.com/cesarabad/muffinmanager/pkg/constants"
	"github.com/cesarabad/muffinmanager/pkg/crud"
	"github.com/cesarabad/muffinmanager/pkg/i18n"
	"github.com/cesarabad/muffinmanager/pkg/table"
)

// Notification is a transient message for the user.
type Notification struct {
	Level  Level
	Key    string
	Params i18n.Params
	// Message is the server's own message for failures.
	Message string
	// Text is Key translated with Params.
	Text string
}

type Notifier func(Notification)

func (m *Manager[T]) success(key string) {
	m.emit(Notification{
		Level:  LevelSuccess,
		Key:    key,
		Params: i18n.Params{"entity": m.translate(m.desc.Name, nil)},
	})
}

func (m *Manager[T]) failure(key string, err error) {
	msg := crud.MessageOf(err)
	m.log.Warn("operation failed", "resource", m.desc.Resource, "notification", key, "error", err)
	m.emit(Notification{
		Level:   LevelError,
		Key:     key,
		Message: msg,
		Params:  i18n.Params{"entity": m.translate(m.desc.Name, nil), "message": msg},
	})
}

// refused reports a table action the page did not carry out.
func (m *Manager[T]) refused(action string, err error) {
	m.log.Warn("row action refused", "resource", m.desc.Resource, "action", action, "error", err)
	if errors.Is(err, ErrBusy) {
		m.emit(Notification{Level: LevelError, Key: "notify.error.busy"})
	}
}

func isRefusal(err error) bool {
	return errors.Is(err, ErrBusy) || errors.Is(err, ErrNotMounted) ||
		errors.Is(err, table.ErrScopeUnavailable) || errors.Is(err, constants.ErrMissingID)
}

func (m *Manager[T]) emit(n Notification) {
	n.Text = m.translate(n.Key, n.Params)
	if m.notify != nil {
		m.notify(n)
	}
}
