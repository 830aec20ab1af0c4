package models

// Permission is the stable string key of a grant, e.g. "manage_stock".
type Permission string

// Well-known permission keys.
const (
	PermissionGetStock        Permission = "get_stock"
	PermissionManageStock     Permission = "manage_stock"
	PermissionManageBaseData  Permission = "manage_base_data"
	PermissionGetBaseData     Permission = "get_base_data"
	PermissionManageUsers     Permission = "manage_users"
	PermissionManageGroups    Permission = "manage_groups"
	PermissionAllPermissions  Permission = "all_permissions"
	PermissionGrantPermission Permission = "grant_permission"
)

type PermissionEntity struct {
	ID   int64      `json:"id"`
	Name Permission `json:"name"`
}

type GroupEntity struct {
	ID          *int64             `json:"id,omitempty"`
	Name        string             `json:"name"`
	Permissions []PermissionEntity `json:"permissions"`
}

func (g GroupEntity) EntityID() (int64, bool) {
	if g.ID == nil {
		return 0, false
	}
	return *g.ID, true
}

func (g GroupEntity) EntityReference() string {
	return g.Name
}

// UserDetailed is a user as seen by the permission editor.
type UserDetailed struct {
	ID          *int64             `json:"id,omitempty"`
	Dni         string             `json:"dni"`
	Name        string             `json:"name"`
	SecondName  string             `json:"secondName,omitempty"`
	Permissions []PermissionEntity `json:"permissions"`
	Groups      []GroupEntity      `json:"groups"`
	Disabled    bool               `json:"disabled"`
}

func (u UserDetailed) EntityID() (int64, bool) {
	if u.ID == nil {
		return 0, false
	}
	return *u.ID, true
}

func (u UserDetailed) EntityReference() string {
	return u.Dni
}
