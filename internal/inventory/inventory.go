// README: Read-only lookups against the truck/driver inventory tables.
package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fret/internal/types"
)

var ErrNotFound = errors.New("inventory: not found")

// The core references drivers and trucks by id only; their lifecycle
// belongs to the inventory service that owns these tables.

type Driver struct {
	ID        types.ID
	FullName  string
	LicenseNo string
}

type Truck struct {
	ID          types.ID
	PlateNumber string
	Model       string
	CapacityKg  int
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetDriver(ctx context.Context, id types.ID) (*Driver, error) {
	var d Driver
	err := s.db.QueryRow(ctx,
		`SELECT id, full_name, license_no FROM drivers WHERE id = $1`, string(id),
	).Scan(&d.ID, &d.FullName, &d.LicenseNo)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) GetTruck(ctx context.Context, id types.ID) (*Truck, error) {
	var t Truck
	err := s.db.QueryRow(ctx,
		`SELECT id, plate_number, model, capacity_kg FROM trucks WHERE id = $1`, string(id),
	).Scan(&t.ID, &t.PlateNumber, &t.Model, &t.CapacityKg)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
