// README: Sending-request aggregate, status machine, and audit event.
package request

import (
	"time"

	"github.com/shopspring/decimal"

	"fret/internal/types"
)

type Status string

const (
	StatusNone       Status = "none"
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusRejected   Status = "rejected"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

type CargoType string

const (
	CargoContainer      CargoType = "container"
	CargoPalletsBoxes   CargoType = "pallets_boxes"
	CargoBulkFret       CargoType = "bulk_fret"
	CargoVehicle        CargoType = "vehicle"
	CargoAnimals        CargoType = "animals"
	CargoFurnitureTools CargoType = "furniture_tools"
	CargoOther          CargoType = "other"
)

func (c CargoType) Valid() bool {
	switch c {
	case CargoContainer, CargoPalletsBoxes, CargoBulkFret, CargoVehicle,
		CargoAnimals, CargoFurnitureTools, CargoOther:
		return true
	}
	return false
}

type Priority string

const (
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	return p == PriorityMedium || p == PriorityHigh
}

// Request is a shipment order. total_price is derived once from
// base_price and commission_rate and persisted; it is never recomputed
// after the fact. CancellationFee and RefundAmount are set only when an
// in-progress request is cancelled.
type Request struct {
	ID       types.ID
	ClientID types.ID

	RecipientName  string
	RecipientEmail string
	RecipientPhone string

	CargoType  CargoType
	Weight     decimal.Decimal
	Dimensions string
	Quantity   int

	PickupLocation   string
	PickupAt         time.Time
	DeliveryLocation string
	DeliveryAt       time.Time

	AdditionalDetails *string
	SpecialConditions *string
	Priority          Priority

	BasePrice       *decimal.Decimal
	CommissionRate  *decimal.Decimal
	TotalPrice      *decimal.Decimal
	CancellationFee *decimal.Decimal
	RefundAmount    *decimal.Decimal

	Status        Status
	StatusVersion int
	RequestDate   time.Time
	UpdatedAt     time.Time
}

// Event is one row of the append-only status audit trail.
type Event struct {
	ID         int64
	RequestID  types.ID
	FromStatus Status
	ToStatus   Status
	ActorRole  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// Transitions is the canonical state-transition table. Every status
// change in the service goes through CanTransition; there are no
// per-endpoint ad hoc checks. cancelled -> pending is the relaunch
// edge; completed and rejected have no outgoing edges.
var Transitions = map[Status][]Status{
	StatusPending:    {StatusAccepted, StatusRejected, StatusCancelled},
	StatusAccepted:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCancelled:  {StatusPending},
	StatusRejected:   {},
	StatusCompleted:  {},
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

// Deletable reports whether a request may be deleted outright.
func (s Status) Deletable() bool {
	return s == StatusCancelled || s == StatusRejected
}
