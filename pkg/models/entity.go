// Package models holds the records exchanged with the console backend.
//
// Every managed record is an Entity: an optional server-assigned
// identifier, a human-assigned unique reference and last modification
// metadata. A VersionedEntity additionally tracks the version history of a
// reference; at most one version per reference is active at a time.
package models

// Identifiable is implemented by every record a CRUD page can manage.
type Identifiable interface {
	// EntityID reports the server-assigned identifier, false for drafts.
	EntityID() (int64, bool)
	// EntityReference is the human-meaningful unique key.
	EntityReference() string
}

// Versionable is implemented by version-aware records.
type Versionable interface {
	Identifiable
	IsObsolete() bool
}

// UserSummary identifies the user that last touched a record.
type UserSummary struct {
	ID   int64  `json:"id"`
	Dni  string `json:"dni,omitempty"`
	Name string `json:"name,omitempty"`
}

type Entity struct {
	ID             *int64       `json:"id,omitempty"`
	Reference      string       `json:"reference"`
	LastModifyDate *DateTime    `json:"lastModifyDate,omitempty"`
	LastModifyUser *UserSummary `json:"lastModifyUser,omitempty"`
}

func (e Entity) EntityID() (int64, bool) {
	if e.ID == nil {
		return 0, false
	}
	return *e.ID, true
}

func (e Entity) EntityReference() string {
	return e.Reference
}

type VersionedEntity struct {
	Entity
	Version      int       `json:"version"`
	AliasVersion *string   `json:"aliasVersion,omitempty"`
	CreationDate *DateTime `json:"creationDate,omitempty"`
	EndDate      *DateTime `json:"endDate,omitempty"`
	Obsolete     bool      `json:"obsolete"`
}

func (v VersionedEntity) IsObsolete() bool {
	return v.Obsolete
}

// IsActive reports whether this is the live version of its reference.
func (v VersionedEntity) IsActive() bool {
	return !v.Obsolete && v.EndDate.IsZero()
}

// ID returns a pointer to id, for building records in code.
func ID(id int64) *int64 {
	return &id
}
