package crud

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cesarabad/muffinmanager/pkg/constants"
	"github.com/cesarabad/muffinmanager/pkg/models"
)

// Client performs the plain CRUD operations of one resource.
type Client[T models.Identifiable] struct {
	t        *Transport
	resource string
}

// New binds t to resource, e.g. "box".
func New[T models.Identifiable](t *Transport, resource string) *Client[T] {
	return &Client[T]{t: t, resource: resource}
}

func (c *Client[T]) Resource() string {
	return c.resource
}

func (c *Client[T]) ListAll(ctx context.Context) ([]T, error) {
	var items []T
	err := c.t.do(ctx, request{resource: c.resource, op: "getAll", method: http.MethodGet, path: "/getAll"}, &items)
	return items, err
}

func (c *Client[T]) GetByID(ctx context.Context, id int64) (T, error) {
	var item T
	err := c.t.do(ctx, request{
		resource: c.resource,
		op:       "getById",
		method:   http.MethodGet,
		path:     "/getById/" + strconv.FormatInt(id, 10),
	}, &item)
	return item, err
}

// Insert creates item, or replaces it when the server already knows it.
// The returned value is the persisted one.
func (c *Client[T]) Insert(ctx context.Context, item T) (T, error) {
	var saved T
	err := c.t.do(ctx, request{resource: c.resource, op: "insert", method: http.MethodPost, path: "/insert", body: item}, &saved)
	return saved, err
}

// Update requires item to carry an identifier.
func (c *Client[T]) Update(ctx context.Context, item T) (T, error) {
	var saved T
	if _, ok := item.EntityID(); !ok {
		return saved, constants.ErrMissingID
	}
	err := c.t.do(ctx, request{resource: c.resource, op: "update", method: http.MethodPost, path: "/update", body: item}, &saved)
	return saved, err
}

func (c *Client[T]) DeleteByID(ctx context.Context, id int64) error {
	return c.t.do(ctx, request{
		resource: c.resource,
		op:       "deleteById",
		method:   http.MethodDelete,
		path:     "/deleteById/" + strconv.FormatInt(id, 10),
	}, nil)
}

// Save inserts drafts and updates persisted items.
func (c *Client[T]) Save(ctx context.Context, item T) (T, error) {
	if _, ok := item.EntityID(); ok {
		return c.Update(ctx, item)
	}
	return c.Insert(ctx, item)
}
