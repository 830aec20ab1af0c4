package resources

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/cesarabad/muffinmanager/pkg/crud"
	"github.com/cesarabad/muffinmanager/pkg/entity"
	"github.com/cesarabad/muffinmanager/pkg/models"
)

// Resource is a descriptor bound to its CRUD client with the entity type
// erased, for front-ends that pick the resource at runtime.
type Resource struct {
	Name      string
	Path      string
	Versioned bool
	Topic     string
	// Headers are i18n keys, "field.id" first.
	Headers []string

	List   func(ctx context.Context, obsolete bool) ([][]string, error)
	Get    func(ctx context.Context, id int64) ([]string, error)
	Delete func(ctx context.Context, id int64) error
	// DeleteReference and SetObsolete are nil for plain resources.
	DeleteReference func(ctx context.Context, reference string) error
	SetObsolete     func(ctx context.Context, reference string, obsolete bool) error
}

type Registry struct {
	byPath map[string]Resource
}

// NewRegistry binds every known descriptor to t.
func NewRegistry(t *crud.Transport) *Registry {
	r := &Registry{byPath: map[string]Resource{}}
	r.add(bind(crud.New[models.Box](t, BoxResource), Box()))
	r.add(bind(crud.New[models.PackagePrint](t, PackagePrintResource), PackagePrint()))
	r.add(bindVersioned(crud.NewVersioned[models.Brand](t, BrandResource), Brand()))
	r.add(bindVersioned(crud.NewVersioned[models.MuffinShape](t, MuffinShapeResource), MuffinShape()))
	r.add(bindVersioned(crud.NewVersioned[models.Product](t, ProductResource), Product()))
	r.add(bindVersioned(crud.NewVersioned[models.ProductItem](t, ProductItemResource), ProductItem()))
	r.add(bind(crud.New[models.UserDetailed](t, UserResource), User()))
	r.add(bind(crud.New[models.GroupEntity](t, GroupResource), Group()))
	return r
}

func (r *Registry) add(res Resource) {
	r.byPath[res.Path] = res
}

func (r *Registry) Lookup(path string) (Resource, error) {
	res, ok := r.byPath[path]
	if !ok {
		return Resource{}, fmt.Errorf("unknown resource %q", path)
	}
	return res, nil
}

// Paths lists the registered resource paths in sorted order.
func (r *Registry) Paths() []string {
	paths := make([]string, 0, len(r.byPath))
	for p := range r.byPath {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// Row renders item as the id followed by one cell per column.
func Row[T models.Identifiable](columns []entity.Column[T], item T) []string {
	row := make([]string, 0, len(columns)+1)
	if id, ok := item.EntityID(); ok {
		row = append(row, strconv.FormatInt(id, 10))
	} else {
		row = append(row, "")
	}
	for _, c := range columns {
		row = append(row, c.Render(item))
	}
	return row
}

func headers[T any](d entity.Descriptor[T]) []string {
	h := []string{"field.id"}
	for _, c := range d.Columns {
		h = append(h, c.Label)
	}
	return h
}

func rows[T models.Identifiable](columns []entity.Column[T], items []T) [][]string {
	out := make([][]string, 0, len(items))
	for _, item := range items {
		out = append(out, Row(columns, item))
	}
	return out
}

func bind[T models.Identifiable](c *crud.Client[T], d entity.Descriptor[T]) Resource {
	return Resource{
		Name:    d.Name,
		Path:    d.Resource,
		Topic:   d.Topic(),
		Headers: headers(d),
		List: func(ctx context.Context, obsolete bool) ([][]string, error) {
			if obsolete {
				return nil, fmt.Errorf("resource %q has no obsolete view", d.Resource)
			}
			items, err := c.ListAll(ctx)
			if err != nil {
				return nil, err
			}
			return rows(d.Columns, items), nil
		},
		Get: func(ctx context.Context, id int64) ([]string, error) {
			item, err := c.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			return Row(d.Columns, item), nil
		},
		Delete: c.DeleteByID,
	}
}

func bindVersioned[T models.Versionable](c *crud.VersionedClient[T], d entity.Descriptor[T]) Resource {
	res := bind(c.Client, d)
	res.Versioned = true
	res.List = func(ctx context.Context, obsolete bool) ([][]string, error) {
		list := c.ListAll
		if obsolete {
			list = c.ListObsolete
		}
		items, err := list(ctx)
		if err != nil {
			return nil, err
		}
		return rows(d.Columns, items), nil
	}
	res.DeleteReference = c.DeleteByReference
	res.SetObsolete = c.SetObsoleteByReference
	return res
}
