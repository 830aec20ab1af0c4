package crud

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cesarabad/muffinmanager/pkg/constants"
	"github.com/cesarabad/muffinmanager/pkg/models"
)

// VersionedClient adds the endpoints of version-aware resources.
// The server keeps at most one active version per reference; after any
// call here the caller re-lists instead of patching local state.
type VersionedClient[T models.Versionable] struct {
	*Client[T]
}

func NewVersioned[T models.Versionable](t *Transport, resource string) *VersionedClient[T] {
	return &VersionedClient[T]{Client: New[T](t, resource)}
}

func (c *VersionedClient[T]) ListObsolete(ctx context.Context) ([]T, error) {
	var items []T
	err := c.t.do(ctx, request{resource: c.resource, op: "getObsoletes", method: http.MethodGet, path: "/getObsoletes"}, &items)
	return items, err
}

func (c *VersionedClient[T]) SetObsoleteByReference(ctx context.Context, reference string, obsolete bool) error {
	if strings.TrimSpace(reference) == "" {
		return constants.ErrEmptyReference
	}
	return c.t.do(ctx, request{
		resource: c.resource,
		op:       "setObsolete",
		method:   http.MethodPost,
		path:     "/setObsolete/" + url.PathEscape(reference),
		query:    url.Values{"obsolete": {strconv.FormatBool(obsolete)}},
	}, nil)
}

func (c *VersionedClient[T]) SetObsoleteByID(ctx context.Context, id int64, obsolete bool) error {
	return c.t.do(ctx, request{
		resource: c.resource,
		op:       "setObsoleteById",
		method:   http.MethodPost,
		path:     "/setObsoleteById/" + strconv.FormatInt(id, 10),
		query:    url.Values{"obsolete": {strconv.FormatBool(obsolete)}},
	}, nil)
}

// DeleteByReference removes every version of reference.
func (c *VersionedClient[T]) DeleteByReference(ctx context.Context, reference string) error {
	if strings.TrimSpace(reference) == "" {
		return constants.ErrEmptyReference
	}
	return c.t.do(ctx, request{
		resource: c.resource,
		op:       "delete",
		method:   http.MethodDelete,
		path:     "/delete/" + url.PathEscape(reference),
	}, nil)
}

func (c *VersionedClient[T]) ChangeReference(ctx context.Context, oldReference, newReference string) error {
	if strings.TrimSpace(oldReference) == "" || strings.TrimSpace(newReference) == "" {
		return constants.ErrEmptyReference
	}
	return c.t.do(ctx, request{
		resource: c.resource,
		op:       "changeReference",
		method:   http.MethodPost,
		path:     "/changeReference",
		query:    url.Values{"oldReference": {oldReference}, "newReference": {newReference}},
	}, nil)
}
