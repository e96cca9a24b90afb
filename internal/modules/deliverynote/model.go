// README: Delivery note: immutable shipping manifest snapshotted at claim time.
package deliverynote

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fret/internal/modules/request"
	"fret/internal/types"
)

// Note copies the cargo/contact/pickup/delivery fields of a request at
// the moment a chief claims it. Later edits to the request never
// propagate here; the note is the manifest the shipment travels under.
type Note struct {
	ID               types.ID
	SendingRequestID types.ID
	ClientID         types.ID

	RecipientName  string
	RecipientEmail string
	RecipientPhone string

	CargoType  request.CargoType
	Weight     decimal.Decimal
	Dimensions string
	Quantity   int

	PickupLocation   string
	PickupAt         time.Time
	DeliveryLocation string
	DeliveryAt       time.Time

	AdditionalDetails *string
	SpecialConditions *string
	Priority          request.Priority

	CreatedAt time.Time
}

// FromRequest builds the snapshot. Pure; the caller decides when (and
// whether) it is persisted; the assignment ledger inserts it inside
// the claim transaction, at most once per assignment.
func FromRequest(r *request.Request, now time.Time) *Note {
	return &Note{
		ID:                types.ID(uuid.NewString()),
		SendingRequestID:  r.ID,
		ClientID:          r.ClientID,
		RecipientName:     r.RecipientName,
		RecipientEmail:    r.RecipientEmail,
		RecipientPhone:    r.RecipientPhone,
		CargoType:         r.CargoType,
		Weight:            r.Weight,
		Dimensions:        r.Dimensions,
		Quantity:          r.Quantity,
		PickupLocation:    r.PickupLocation,
		PickupAt:          r.PickupAt,
		DeliveryLocation:  r.DeliveryLocation,
		DeliveryAt:        r.DeliveryAt,
		AdditionalDetails: r.AdditionalDetails,
		SpecialConditions: r.SpecialConditions,
		Priority:          r.Priority,
		CreatedAt:         now,
	}
}
