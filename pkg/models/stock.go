package models

import "fmt"

type MovementType string

const (
	MovementEntry      MovementType = "Entry"
	MovementAssigned   MovementType = "Assigned"
	MovementAdjustment MovementType = "Adjustment"
	MovementReserve    MovementType = "Reserve"
)

type MovementStatus string

const (
	StatusInProgress MovementStatus = "InProgress"
	StatusCompleted  MovementStatus = "Completed"
	StatusCanceled   MovementStatus = "Canceled"
)

// Terminal reports whether no further status change is allowed.
func (s MovementStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// Movement is one stock movement of a batch.
type Movement struct {
	ID              *int64         `json:"id,omitempty"`
	StockID         int64          `json:"stockId"`
	Type            MovementType   `json:"type"`
	Units           int            `json:"units"`
	Destination     string         `json:"destination"`
	Observations    *string        `json:"observations,omitempty"`
	Status          MovementStatus `json:"status"`
	ResponsibleUser *UserSummary   `json:"responsibleUser,omitempty"`
	CreationDate    *DateTime      `json:"creationDate,omitempty"`
}

// Transition moves the movement to next, refusing changes out of a terminal
// status and anything other than completing or cancelling an open movement.
func (m *Movement) Transition(next MovementStatus) error {
	if m.Status.Terminal() {
		return fmt.Errorf("movement already %s", m.Status)
	}
	if m.Status != StatusInProgress || (next != StatusCompleted && next != StatusCanceled) {
		return fmt.Errorf("invalid movement transition from %q to %q", m.Status, next)
	}
	m.Status = next
	return nil
}
