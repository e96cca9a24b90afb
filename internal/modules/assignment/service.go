// README: Assignment ledger service (claim, reassign, cancel, complete).
package assignment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"fret/internal/inventory"
	"fret/internal/modules/billing"
	"fret/internal/modules/deliverynote"
	"fret/internal/modules/request"
	"fret/internal/types"
)

var (
	ErrNotFound     = errors.New("assignment not found")
	ErrForbidden    = errors.New("operation not permitted for this member")
	ErrInvalidState = errors.New("invalid assignment state transition")
	ErrConflict     = errors.New("assignment state conflict")
)

// Inventory is the narrow slice of the truck/driver service the ledger
// needs: existence checks by id.
type Inventory interface {
	GetDriver(ctx context.Context, id types.ID) (*inventory.Driver, error)
	GetTruck(ctx context.Context, id types.ID) (*inventory.Truck, error)
}

type Service struct {
	store     *Store
	requests  *request.Store
	inventory Inventory
	billing   billing.Publisher
}

func NewService(store *Store, requests *request.Store, inv Inventory, publisher billing.Publisher) *Service {
	return &Service{store: store, requests: requests, inventory: inv, billing: publisher}
}

type ClaimCommand struct {
	Actor     types.Actor
	RequestID types.ID
	// Driver and truck may be chosen later via reassignment.
	DriverID *types.ID
	TruckID  *types.ID
}

// Claim takes an accepted request for the calling chief. Exactly one of
// any set of concurrent claims on the same request succeeds; the rest
// observe ErrConflict and no side effects.
func (s *Service) Claim(ctx context.Context, cmd ClaimCommand) (*Assignment, error) {
	if cmd.Actor.Role != types.RoleChief {
		return nil, ErrForbidden
	}
	if err := s.checkReferences(ctx, cmd.DriverID, cmd.TruckID); err != nil {
		return nil, err
	}

	req, err := s.requests.Get(ctx, cmd.RequestID)
	if err != nil {
		if errors.Is(err, request.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if req.Status != request.StatusAccepted {
		return nil, ErrConflict
	}

	now := time.Now()
	note := deliverynote.FromRequest(req, now)
	noteID := note.ID
	a := &Assignment{
		ID:               types.ID(uuid.NewString()),
		SendingRequestID: req.ID,
		FleetManagerID:   cmd.Actor.ID,
		DriverID:         cmd.DriverID,
		TruckID:          cmd.TruckID,
		DeliveryNoteID:   &noteID,
		AssignedAt:       now,
		Status:           StatusAssigned,
	}

	ok, err := s.store.Claim(ctx, a, note, req.StatusVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, actor types.Actor, id types.ID) (*Assignment, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canRead(actor, a) {
		return nil, ErrForbidden
	}
	return a, nil
}

func (s *Service) ListOwn(ctx context.Context, actor types.Actor) ([]Assignment, error) {
	if actor.Role != types.RoleChief {
		return nil, ErrForbidden
	}
	return s.store.ListByChief(ctx, actor.ID)
}

// ReassignDriver swaps the driver while the assignment is active.
func (s *Service) ReassignDriver(ctx context.Context, actor types.Actor, id, driverID types.ID) (*Assignment, error) {
	a, err := s.ownedActive(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.inventory.GetDriver(ctx, driverID); err != nil {
		return nil, mapInventoryErr(err)
	}
	ok, err := s.store.UpdateDriver(ctx, id, driverID, a.StatusVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	return s.store.Get(ctx, id)
}

func (s *Service) ReassignTruck(ctx context.Context, actor types.Actor, id, truckID types.ID) (*Assignment, error) {
	a, err := s.ownedActive(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.inventory.GetTruck(ctx, truckID); err != nil {
		return nil, mapInventoryErr(err)
	}
	ok, err := s.store.UpdateTruck(ctx, id, truckID, a.StatusVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	return s.store.Get(ctx, id)
}

// Cancel terminates the assignment. The owning request is not reopened:
// putting it back on the board is an explicit administrative decision.
func (s *Service) Cancel(ctx context.Context, actor types.Actor, id types.ID) (*Assignment, error) {
	a, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, StatusCancelled) {
		return nil, ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, id, a.Status, StatusCancelled, a.StatusVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	return s.store.Get(ctx, id)
}

// Complete terminates the assignment, cascades the request to
// completed, and emits the billing event. A second Complete on the same
// assignment reports ErrConflict; callers must not retry it.
func (s *Service) Complete(ctx context.Context, actor types.Actor, id types.ID) (*Assignment, error) {
	a, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, StatusCompleted) {
		return nil, ErrInvalidState
	}
	ok, err := s.store.Complete(ctx, id, a.StatusVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}

	done, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	_ = s.billing.Publish(ctx, billing.Event{
		Kind:         billing.KindAssignmentCompleted,
		RequestID:    string(done.SendingRequestID),
		AssignmentID: string(done.ID),
		ChiefID:      string(done.FleetManagerID),
		OccurredAt:   time.Now(),
	})
	return done, nil
}

func (s *Service) owned(ctx context.Context, actor types.Actor, id types.ID) (*Assignment, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != types.RoleChief || a.FleetManagerID != actor.ID {
		return nil, ErrForbidden
	}
	return a, nil
}

func (s *Service) ownedActive(ctx context.Context, actor types.Actor, id types.ID) (*Assignment, error) {
	a, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !a.Status.Active() {
		return nil, ErrInvalidState
	}
	return a, nil
}

func (s *Service) checkReferences(ctx context.Context, driverID, truckID *types.ID) error {
	if driverID != nil {
		if _, err := s.inventory.GetDriver(ctx, *driverID); err != nil {
			return mapInventoryErr(err)
		}
	}
	if truckID != nil {
		if _, err := s.inventory.GetTruck(ctx, *truckID); err != nil {
			return mapInventoryErr(err)
		}
	}
	return nil
}

func canRead(actor types.Actor, a *Assignment) bool {
	if actor.Role == types.RoleAdmin {
		return true
	}
	return actor.Role == types.RoleChief && a.FleetManagerID == actor.ID
}

func mapInventoryErr(err error) error {
	if errors.Is(err, inventory.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
