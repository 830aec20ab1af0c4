package permission

import (
	"cmp"
	"slices"

	"github.com/cesarabad/muffinmanager/pkg/logger"
	"github.com/cesarabad/muffinmanager/pkg/models"
)

// Catalog holds the permissions and groups loaded for one editing session.
type Catalog struct {
	permissions map[int64]models.PermissionEntity
	byName      map[models.Permission]models.PermissionEntity
	groups      map[int64]models.GroupEntity
	log         logger.Logger
}

// NewCatalog indexes perms and groups by id. Groups without an id are
// skipped, as are group permissions missing from perms when perms is not
// empty.
func NewCatalog(perms []models.PermissionEntity, groups []models.GroupEntity, log logger.Logger) *Catalog {
	c := &Catalog{
		permissions: make(map[int64]models.PermissionEntity, len(perms)),
		byName:      make(map[models.Permission]models.PermissionEntity, len(perms)),
		groups:      make(map[int64]models.GroupEntity, len(groups)),
		log:         logger.OrNop(log),
	}
	for _, p := range perms {
		c.permissions[p.ID] = p
		c.byName[p.Name] = p
	}
	for _, g := range groups {
		id, ok := g.EntityID()
		if !ok {
			c.log.Debug("skipping group without id", "group", g.Name)
			continue
		}
		g.Permissions = c.known(g.Permissions)
		c.groups[id] = g
	}
	return c
}

func (c *Catalog) known(perms []models.PermissionEntity) []models.PermissionEntity {
	if len(c.permissions) == 0 {
		return perms
	}
	out := make([]models.PermissionEntity, 0, len(perms))
	for _, p := range perms {
		if _, ok := c.permissions[p.ID]; !ok {
			c.log.Debug("skipping unknown permission", "id", p.ID, "name", p.Name)
			continue
		}
		out = append(out, p)
	}
	return out
}

func (c *Catalog) Group(id int64) (models.GroupEntity, bool) {
	g, ok := c.groups[id]
	return g, ok
}

func (c *Catalog) Permission(name models.Permission) (models.PermissionEntity, bool) {
	p, ok := c.byName[name]
	return p, ok
}

// Groups returns the groups ordered by id.
func (c *Catalog) Groups() []models.GroupEntity {
	ids := make([]int64, 0, len(c.groups))
	for id := range c.groups {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]models.GroupEntity, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.groups[id])
	}
	return out
}

// Permissions returns the permissions ordered by id.
func (c *Catalog) Permissions() []models.PermissionEntity {
	out := make([]models.PermissionEntity, 0, len(c.permissions))
	for _, p := range c.permissions {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b models.PermissionEntity) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Checkbox is the render state of one permission in the editor.
type Checkbox struct {
	Permission models.Permission
	Checked    bool
	// Disabled is set when a selected group grants the permission.
	Disabled bool
}

// Editor holds the group and manual permission selection of one user.
type Editor struct {
	catalog *Catalog
	groups  map[int64]struct{}
	manual  Set
}

// NewEditor seeds the selection from u. Groups missing from the catalog
// are dropped.
func NewEditor(c *Catalog, u models.UserDetailed) *Editor {
	e := &Editor{catalog: c, groups: map[int64]struct{}{}}
	for _, g := range u.Groups {
		id, ok := g.EntityID()
		if !ok {
			continue
		}
		if _, known := c.groups[id]; !known {
			c.log.Debug("skipping unknown group", "id", id, "user", u.Dni)
			continue
		}
		e.groups[id] = struct{}{}
	}
	e.manual = FromEntities(c.known(u.Permissions)).Difference(e.Inherited())
	return e
}

// SelectedGroups returns the selected group ids in ascending order.
func (e *Editor) SelectedGroups() []int64 {
	ids := make([]int64, 0, len(e.groups))
	for id := range e.groups {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (e *Editor) GroupSelected(id int64) bool {
	_, ok := e.groups[id]
	return ok
}

// ToggleGroup flips the selection of group id. Unknown groups are ignored.
func (e *Editor) ToggleGroup(id int64) bool {
	if _, ok := e.catalog.groups[id]; !ok {
		return false
	}
	if _, ok := e.groups[id]; ok {
		delete(e.groups, id)
	} else {
		e.groups[id] = struct{}{}
	}
	return true
}

// Inherited is recomputed from the current group selection.
func (e *Editor) Inherited() Set {
	s := Set{}
	for id := range e.groups {
		for _, p := range e.catalog.groups[id].Permissions {
			s[p.Name] = struct{}{}
		}
	}
	return s
}

func (e *Editor) Manual() Set {
	return e.manual.Clone()
}

func (e *Editor) Effective() Set {
	return e.manual.Union(e.Inherited())
}

// TogglePermission flips a manual grant. It does nothing when a selected
// group already grants p.
func (e *Editor) TogglePermission(p models.Permission) bool {
	if e.Inherited().Has(p) {
		return false
	}
	if e.manual.Has(p) {
		e.manual.Remove(p)
	} else {
		e.manual.Add(p)
	}
	return true
}

func (e *Editor) Checkbox(p models.Permission) Checkbox {
	inherited := e.Inherited().Has(p)
	return Checkbox{
		Permission: p,
		Checked:    inherited || e.manual.Has(p),
		Disabled:   inherited,
	}
}

// Checkboxes renders every catalog permission.
func (e *Editor) Checkboxes() []Checkbox {
	perms := e.catalog.Permissions()
	out := make([]Checkbox, 0, len(perms))
	for _, p := range perms {
		out = append(out, e.Checkbox(p.Name))
	}
	return out
}

// Result returns u with the edited groups and direct grants. Grants that
// a selected group already provides are left out.
func (e *Editor) Result(u models.UserDetailed) models.UserDetailed {
	direct := e.manual.Difference(e.Inherited())
	u.Permissions = make([]models.PermissionEntity, 0, len(direct))
	for _, name := range direct.Sorted() {
		if p, ok := e.catalog.Permission(name); ok {
			u.Permissions = append(u.Permissions, p)
		} else {
			u.Permissions = append(u.Permissions, models.PermissionEntity{Name: name})
		}
	}
	u.Groups = make([]models.GroupEntity, 0, len(e.groups))
	for _, id := range e.SelectedGroups() {
		u.Groups = append(u.Groups, e.catalog.groups[id])
	}
	return u
}
