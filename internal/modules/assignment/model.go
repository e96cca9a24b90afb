// README: Fleet assignment: a chief's claim on an accepted request.
package assignment

import (
	"time"

	"fret/internal/types"
)

type Status string

const (
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRejected   Status = "rejected"
)

// Active statuses hold the at-most-one-claim invariant: for a given
// sending_request_id at most one assignment may be assigned or
// in_progress, enforced by a partial unique index and re-checked inside
// the claim transaction.
func (s Status) Active() bool {
	return s == StatusAssigned || s == StatusInProgress
}

var Transitions = map[Status][]Status{
	StatusAssigned:   {StatusInProgress, StatusCompleted, StatusCancelled, StatusRejected},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
	StatusRejected:   {},
}

func CanTransition(from, to Status) bool {
	next, ok := Transitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

type Assignment struct {
	ID               types.ID
	SendingRequestID types.ID
	FleetManagerID   types.ID
	DriverID         *types.ID
	TruckID          *types.ID
	DeliveryNoteID   *types.ID
	AssignedAt       time.Time
	Status           Status
	StatusVersion    int
}
