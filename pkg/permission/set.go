// Package permission computes effective permissions from direct grants and
// group membership, and backs the user permission editor.
//
// All state is held as sets keyed by permission name and group id, so no
// component ever mutates a shared group or user record.
package permission

import (
	"slices"

	"github.com/cesarabad/muffinmanager/pkg/models"
)

type Set map[models.Permission]struct{}

func NewSet(perms ...models.Permission) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

func FromEntities(perms []models.PermissionEntity) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p.Name] = struct{}{}
	}
	return s
}

func (s Set) Has(p models.Permission) bool {
	_, ok := s[p]
	return ok
}

func (s Set) Add(p models.Permission) {
	s[p] = struct{}{}
}

func (s Set) Remove(p models.Permission) {
	delete(s, p)
}

func (s Set) Clone() Set {
	out := make(Set, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	return out
}

// Union returns a new set holding s and every other set.
func (s Set) Union(others ...Set) Set {
	out := s.Clone()
	for _, o := range others {
		for p := range o {
			out[p] = struct{}{}
		}
	}
	return out
}

// Difference returns the members of s absent from o.
func (s Set) Difference(o Set) Set {
	out := make(Set, len(s))
	for p := range s {
		if !o.Has(p) {
			out[p] = struct{}{}
		}
	}
	return out
}

func (s Set) Equal(o Set) bool {
	if len(s) != len(o) {
		return false
	}
	for p := range s {
		if !o.Has(p) {
			return false
		}
	}
	return true
}

func (s Set) Sorted() []models.Permission {
	out := make([]models.Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Direct is the set granted to u individually.
func Direct(u models.UserDetailed) Set {
	return FromEntities(u.Permissions)
}

// Inherited is the union of the permissions of groups.
func Inherited(groups []models.GroupEntity) Set {
	s := Set{}
	for _, g := range groups {
		for _, p := range g.Permissions {
			s[p.Name] = struct{}{}
		}
	}
	return s
}

func Effective(u models.UserDetailed) Set {
	return Direct(u).Union(Inherited(u.Groups))
}

// ManuallyAssignable is the part of u's direct grants no group provides.
func ManuallyAssignable(u models.UserDetailed) Set {
	return Direct(u).Difference(Inherited(u.Groups))
}

// Allowed reports whether a control gated by required is shown to a user
// holding acting. all_permissions matches everything. The server checks
// again on every call.
func Allowed(acting Set, required models.Permission) bool {
	if required == "" {
		return true
	}
	return acting.Has(required) || acting.Has(models.PermissionAllPermissions)
}
