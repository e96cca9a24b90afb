// README: Lifecycle controller for sending requests (submit, decide, cancel, relaunch, delete).
package request

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fret/internal/modules/billing"
	"fret/internal/modules/pricing"
	"fret/internal/types"
)

var (
	ErrNotFound     = errors.New("request not found")
	ErrForbidden    = errors.New("operation not permitted for this member")
	ErrInvalidState = errors.New("invalid request state transition")
	ErrConflict     = errors.New("request state conflict")
)

type Service struct {
	store       *Store
	billing     billing.Publisher
	forfeitRate decimal.Decimal
}

func NewService(store *Store, publisher billing.Publisher, forfeitRatePercent decimal.Decimal) *Service {
	return &Service{store: store, billing: publisher, forfeitRate: forfeitRatePercent}
}

// Payload is the full editable field set of a request.
type Payload struct {
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

	BasePrice      *decimal.Decimal
	CommissionRate *decimal.Decimal
}

// Patch carries partial edits; nil fields are left untouched.
type Patch struct {
	RecipientName  *string
	RecipientEmail *string
	RecipientPhone *string

	CargoType  *CargoType
	Weight     *decimal.Decimal
	Dimensions *string
	Quantity   *int

	PickupLocation   *string
	PickupAt         *time.Time
	DeliveryLocation *string
	DeliveryAt       *time.Time

	AdditionalDetails *string
	SpecialConditions *string
	Priority          *Priority

	BasePrice      *decimal.Decimal
	CommissionRate *decimal.Decimal
}

type SubmitCommand struct {
	Actor types.Actor
	Payload
}

type UpdateCommand struct {
	Actor     types.Actor
	RequestID types.ID
	Patch
}

type RelaunchCommand struct {
	Actor     types.Actor
	RequestID types.ID
	// Payload, when present, replaces the editable fields before the
	// request re-enters pending.
	Payload *Payload
}

// Submit validates and persists a new pending request, then emits the
// request-created billing event (best effort, never rolled back).
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (*Request, error) {
	if !cmd.Actor.Role.CanOwnRequests() {
		return nil, ErrForbidden
	}

	now := time.Now()
	r := &Request{
		ID:          types.ID(uuid.NewString()),
		ClientID:    cmd.Actor.ID,
		Status:      StatusPending,
		RequestDate: now,
		UpdatedAt:   now,
	}
	applyPayload(r, cmd.Payload)
	if r.Priority == "" {
		r.Priority = PriorityMedium
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := priceRequest(r); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	actorID := cmd.Actor.ID
	_ = s.store.AppendEvent(ctx, &Event{
		RequestID:  r.ID,
		FromStatus: StatusNone,
		ToStatus:   StatusPending,
		ActorRole:  string(cmd.Actor.Role),
		ActorID:    &actorID,
		CreatedAt:  now,
	})
	_ = s.billing.Publish(ctx, billing.Event{
		Kind:       billing.KindRequestCreated,
		RequestID:  string(r.ID),
		ClientID:   string(r.ClientID),
		TotalPrice: totalOrEmpty(r),
		OccurredAt: now,
	})
	return r, nil
}

func (s *Service) Get(ctx context.Context, actor types.Actor, id types.ID) (*Request, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canRead(actor, r) {
		return nil, ErrForbidden
	}
	return r, nil
}

// ListOwn returns the caller's requests.
func (s *Service) ListOwn(ctx context.Context, actor types.Actor) ([]Request, error) {
	if !actor.Role.CanOwnRequests() {
		return nil, ErrForbidden
	}
	return s.store.ListByClient(ctx, actor.ID)
}

// ListOpen is the chief's board: accepted requests awaiting a claim.
// accepted implies unclaimed, since a successful claim moves the
// request to in_progress in the same transaction.
func (s *Service) ListOpen(ctx context.Context, actor types.Actor) ([]Request, error) {
	if actor.Role != types.RoleChief {
		return nil, ErrForbidden
	}
	return s.store.ListByStatus(ctx, []Status{StatusAccepted})
}

// ListByStatus is the admin listing with an optional status-set filter;
// an empty set means all statuses.
func (s *Service) ListByStatus(ctx context.Context, actor types.Actor, statuses []Status) ([]Request, error) {
	if actor.Role != types.RoleAdmin {
		return nil, ErrForbidden
	}
	if len(statuses) == 0 {
		statuses = []Status{StatusPending, StatusAccepted, StatusRejected, StatusInProgress, StatusCompleted, StatusCancelled}
	}
	for _, st := range statuses {
		if !knownStatus(st) {
			return nil, &ValidationError{Fields: map[string]string{"status": "unknown status " + string(st)}}
		}
	}
	return s.store.ListByStatus(ctx, statuses)
}

// Update edits a pending request owned by the caller. Changing
// base_price or commission_rate re-derives total_price immediately.
func (s *Service) Update(ctx context.Context, cmd UpdateCommand) (*Request, error) {
	r, err := s.store.Get(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	if !isOwner(cmd.Actor, r) {
		return nil, ErrForbidden
	}
	if r.Status != StatusPending {
		return nil, ErrInvalidState
	}

	version := r.StatusVersion
	applyPatch(r, cmd.Patch)
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if cmd.Patch.BasePrice != nil || cmd.Patch.CommissionRate != nil {
		if err := priceRequest(r); err != nil {
			return nil, err
		}
	}

	ok, err := s.store.UpdateFields(ctx, r, version)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	return s.store.Get(ctx, cmd.RequestID)
}

// Accept moves pending -> accepted. Admin only.
func (s *Service) Accept(ctx context.Context, actor types.Actor, id types.ID) (*Request, error) {
	return s.decide(ctx, actor, id, StatusAccepted)
}

// Reject moves pending -> rejected. Admin only.
func (s *Service) Reject(ctx context.Context, actor types.Actor, id types.ID) (*Request, error) {
	return s.decide(ctx, actor, id, StatusRejected)
}

func (s *Service) decide(ctx context.Context, actor types.Actor, id types.ID, to Status) (*Request, error) {
	if actor.Role != types.RoleAdmin {
		return nil, ErrForbidden
	}
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(r.Status, to) {
		return nil, ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, id, r.Status, to, r.StatusVersion, actor)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	return s.store.Get(ctx, id)
}

// Cancel moves any active request to cancelled. Cancelling an
// in-progress request forfeits the configured share of total_price and
// records the refund-eligible remainder; the active assignment is
// cancelled in the same transaction.
func (s *Service) Cancel(ctx context.Context, actor types.Actor, id types.ID) (*Request, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isOwner(actor, r) {
		return nil, ErrForbidden
	}
	if !CanTransition(r.Status, StatusCancelled) {
		return nil, ErrInvalidState
	}

	var fee, refund *decimal.Decimal
	if r.Status == StatusInProgress && r.TotalPrice != nil {
		f, ref, err := pricing.CancellationSplit(*r.TotalPrice, s.forfeitRate)
		if err != nil {
			return nil, err
		}
		fee, refund = &f, &ref
	}

	ok, err := s.store.Cancel(ctx, id, r.Status, r.StatusVersion, fee, refund, actor)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	return s.store.Get(ctx, id)
}

// Relaunch re-enters pending from cancelled, optionally with a fresh
// payload. The request then needs a fresh admin acceptance.
func (s *Service) Relaunch(ctx context.Context, cmd RelaunchCommand) (*Request, error) {
	r, err := s.store.Get(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}
	if !isOwner(cmd.Actor, r) {
		return nil, ErrForbidden
	}
	if !CanTransition(r.Status, StatusPending) {
		return nil, ErrInvalidState
	}

	version := r.StatusVersion
	if cmd.Payload != nil {
		applyPayload(r, *cmd.Payload)
		if r.Priority == "" {
			r.Priority = PriorityMedium
		}
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if err := priceRequest(r); err != nil {
			return nil, err
		}
	}

	ok, err := s.store.Relaunch(ctx, r, version, cmd.Actor)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	return s.store.Get(ctx, cmd.RequestID)
}

// Delete removes a cancelled or rejected request. The terminal-status
// guard is enforced by the store.
func (s *Service) Delete(ctx context.Context, actor types.Actor, id types.ID) error {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if actor.Role != types.RoleAdmin && !isOwner(actor, r) {
		return ErrForbidden
	}
	return s.store.Delete(ctx, id)
}

func (s *Service) Events(ctx context.Context, actor types.Actor, id types.ID) ([]Event, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canRead(actor, r) {
		return nil, ErrForbidden
	}
	return s.store.ListEvents(ctx, id)
}

func isOwner(actor types.Actor, r *Request) bool {
	return actor.Role.CanOwnRequests() && actor.ID == r.ClientID
}

func canRead(actor types.Actor, r *Request) bool {
	switch actor.Role {
	case types.RoleAdmin, types.RoleChief:
		return true
	}
	return isOwner(actor, r)
}

func knownStatus(s Status) bool {
	_, ok := Transitions[s]
	return ok
}

// priceRequest derives total_price when both pricing inputs are set;
// otherwise the total stays unset until pricing is applied.
func priceRequest(r *Request) error {
	if r.BasePrice == nil || r.CommissionRate == nil {
		r.TotalPrice = nil
		return nil
	}
	total, err := pricing.ComputeTotal(*r.BasePrice, *r.CommissionRate)
	if err != nil {
		return &ValidationError{Fields: map[string]string{"base_price": "pricing inputs must not be negative"}}
	}
	r.TotalPrice = &total
	return nil
}

func applyPayload(r *Request, p Payload) {
	r.RecipientName = p.RecipientName
	r.RecipientEmail = p.RecipientEmail
	r.RecipientPhone = p.RecipientPhone
	r.CargoType = p.CargoType
	r.Weight = p.Weight
	r.Dimensions = p.Dimensions
	r.Quantity = p.Quantity
	r.PickupLocation = p.PickupLocation
	r.PickupAt = p.PickupAt
	r.DeliveryLocation = p.DeliveryLocation
	r.DeliveryAt = p.DeliveryAt
	r.AdditionalDetails = p.AdditionalDetails
	r.SpecialConditions = p.SpecialConditions
	r.Priority = p.Priority
	r.BasePrice = p.BasePrice
	r.CommissionRate = p.CommissionRate
}

func applyPatch(r *Request, p Patch) {
	if p.RecipientName != nil {
		r.RecipientName = *p.RecipientName
	}
	if p.RecipientEmail != nil {
		r.RecipientEmail = *p.RecipientEmail
	}
	if p.RecipientPhone != nil {
		r.RecipientPhone = *p.RecipientPhone
	}
	if p.CargoType != nil {
		r.CargoType = *p.CargoType
	}
	if p.Weight != nil {
		r.Weight = *p.Weight
	}
	if p.Dimensions != nil {
		r.Dimensions = *p.Dimensions
	}
	if p.Quantity != nil {
		r.Quantity = *p.Quantity
	}
	if p.PickupLocation != nil {
		r.PickupLocation = *p.PickupLocation
	}
	if p.PickupAt != nil {
		r.PickupAt = *p.PickupAt
	}
	if p.DeliveryLocation != nil {
		r.DeliveryLocation = *p.DeliveryLocation
	}
	if p.DeliveryAt != nil {
		r.DeliveryAt = *p.DeliveryAt
	}
	if p.AdditionalDetails != nil {
		r.AdditionalDetails = p.AdditionalDetails
	}
	if p.SpecialConditions != nil {
		r.SpecialConditions = p.SpecialConditions
	}
	if p.Priority != nil {
		r.Priority = *p.Priority
	}
	if p.BasePrice != nil {
		r.BasePrice = p.BasePrice
	}
	if p.CommissionRate != nil {
		r.CommissionRate = p.CommissionRate
	}
}

func totalOrEmpty(r *Request) string {
	if r.TotalPrice == nil {
		return ""
	}
	return r.TotalPrice.String()
}
