// README: Delivery note store backed by PostgreSQL (insert-once, read-only after).
package deliverynote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"fret/internal/types"
)

var ErrNotFound = errors.New("delivery note not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const noteColumns = `
	id, sending_request_id, client_id,
	recipient_name, recipient_email, recipient_phone,
	cargo_type, weight::text, dimensions, quantity,
	pickup_location, pickup_date_time, delivery_location, delivery_date_time,
	additional_details, special_conditions, priority, created_at`

// InsertTx writes the note inside the caller's transaction so a failed
// claim leaves no orphaned manifest behind.
func (s *Store) InsertTx(ctx context.Context, tx pgx.Tx, n *Note) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO delivery_notes (
			id, sending_request_id, client_id,
			recipient_name, recipient_email, recipient_phone,
			cargo_type, weight, dimensions, quantity,
			pickup_location, pickup_date_time, delivery_location, delivery_date_time,
			additional_details, special_conditions, priority, created_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14,
			$15, $16, $17, $18
		)`,
		string(n.ID), string(n.SendingRequestID), string(n.ClientID),
		n.RecipientName, n.RecipientEmail, n.RecipientPhone,
		string(n.CargoType), n.Weight.String(), n.Dimensions, n.Quantity,
		n.PickupLocation, n.PickupAt, n.DeliveryLocation, n.DeliveryAt,
		n.AdditionalDetails, n.SpecialConditions, string(n.Priority), n.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Note, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+noteColumns+` FROM delivery_notes WHERE id = $1`, string(id))
	return scanNote(row)
}

func (s *Store) ListByClient(ctx context.Context, clientID types.ID) ([]Note, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+noteColumns+` FROM delivery_notes
		 WHERE client_id = $1 ORDER BY created_at DESC`, string(clientID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*Note, error) {
	var n Note
	var weight string
	var additional, special sql.NullString

	err := row.Scan(
		&n.ID, &n.SendingRequestID, &n.ClientID,
		&n.RecipientName, &n.RecipientEmail, &n.RecipientPhone,
		&n.CargoType, &weight, &n.Dimensions, &n.Quantity,
		&n.PickupLocation, &n.PickupAt, &n.DeliveryLocation, &n.DeliveryAt,
		&additional, &special, &n.Priority, &n.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if n.Weight, err = decimal.NewFromString(weight); err != nil {
		return nil, fmt.Errorf("parse weight: %w", err)
	}
	if additional.Valid {
		v := additional.String
		n.AdditionalDetails = &v
	}
	if special.Valid {
		v := special.String
		n.SpecialConditions = &v
	}
	return &n, nil
}
