// README: Assignment ledger backed by PostgreSQL; claim and complete are single transactions.
package assignment

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fret/internal/modules/deliverynote"
	"fret/internal/types"
)

type Store struct {
	db    *pgxpool.Pool
	notes *deliverynote.Store
}

func NewStore(db *pgxpool.Pool, notes *deliverynote.Store) *Store {
	return &Store{db: db, notes: notes}
}

const assignmentColumns = `
	id, sending_request_id, fleet_manager_id, driver_id, truck_id,
	delivery_note_id, assigned_at, status, status_version`

// Claim atomically: moves the request accepted -> in_progress (CAS on
// status and version), verifies no active assignment exists, writes the
// delivery-note snapshot, inserts the assignment row, and records the
// audit event. Any failed step rolls the whole claim back, so a crash
// mid-claim cannot leave an orphaned note or a half-claimed request.
// The partial unique index on active assignments backstops the race:
// a 23505 from a concurrent winner reports false, not an error.
func (s *Store) Claim(ctx context.Context, a *Assignment, note *deliverynote.Note, requestVersion int) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE sending_requests
		SET status = 'in_progress', status_version = status_version + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'accepted' AND status_version = $2`,
		string(a.SendingRequestID), requestVersion,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	var hasActive bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM fleet_assignments
			WHERE sending_request_id = $1 AND status IN ('assigned', 'in_progress')
		)`, string(a.SendingRequestID),
	).Scan(&hasActive); err != nil {
		return false, err
	}
	if hasActive {
		return false, nil
	}

	if err := s.notes.InsertTx(ctx, tx, note); err != nil {
		return false, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO fleet_assignments (
			id, sending_request_id, fleet_manager_id, driver_id, truck_id,
			delivery_note_id, assigned_at, status, status_version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(a.ID), string(a.SendingRequestID), string(a.FleetManagerID),
		idToString(a.DriverID), idToString(a.TruckID),
		idToString(a.DeliveryNoteID), a.AssignedAt, string(a.Status), a.StatusVersion,
	); err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO request_state_events (request_id, from_status, to_status, actor_role, actor_id, created_at)
		VALUES ($1, 'accepted', 'in_progress', 'chief', $2, NOW())`,
		string(a.SendingRequestID), string(a.FleetManagerID),
	); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Assignment, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+assignmentColumns+` FROM fleet_assignments WHERE id = $1`, string(id))
	return scanAssignment(row)
}

func (s *Store) ListByChief(ctx context.Context, chiefID types.ID) ([]Assignment, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+assignmentColumns+` FROM fleet_assignments
		 WHERE fleet_manager_id = $1 ORDER BY assigned_at DESC`, string(chiefID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *Store) ListByRequest(ctx context.Context, requestID types.ID) ([]Assignment, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+assignmentColumns+` FROM fleet_assignments
		 WHERE sending_request_id = $1 ORDER BY assigned_at DESC`, string(requestID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// UpdateDriver swaps the driver on an active assignment.
func (s *Store) UpdateDriver(ctx context.Context, id types.ID, driverID types.ID, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE fleet_assignments
		SET driver_id = $1, status_version = status_version + 1
		WHERE id = $2 AND status IN ('assigned', 'in_progress') AND status_version = $3`,
		string(driverID), string(id), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) UpdateTruck(ctx context.Context, id types.ID, truckID types.ID, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE fleet_assignments
		SET truck_id = $1, status_version = status_version + 1
		WHERE id = $2 AND status IN ('assigned', 'in_progress') AND status_version = $3`,
		string(truckID), string(id), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateStatus applies a ledger-only transition (cancel, reject,
// assigned -> in_progress). The request row is untouched: a cancelled
// assignment does not reopen its request.
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE fleet_assignments
		SET status = $1, status_version = status_version + 1
		WHERE id = $2 AND status = $3 AND status_version = $4`,
		string(to), string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Complete terminates the assignment and cascades the owning request to
// completed in the same transaction. Row locks are taken in the same
// order as the cancel transaction on the request side: the
// sending_requests row first, then the fleet_assignments row, so a
// concurrent cancel and complete on the same request serialize and the
// loser observes a plain CAS miss.
func (s *Store) Complete(ctx context.Context, id types.ID, version int) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	// Plain read; takes no row lock.
	var requestID, chiefID string
	err = tx.QueryRow(ctx, `
		SELECT sending_request_id, fleet_manager_id FROM fleet_assignments WHERE id = $1`,
		string(id),
	).Scan(&requestID, &chiefID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE sending_requests
		SET status = 'completed', status_version = status_version + 1, updated_at = NOW()
		WHERE id = $1 AND status = 'in_progress'`,
		requestID,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		// Active assignment implies an in-progress request; anything
		// else means a concurrent transition won, so the completion loses.
		return false, nil
	}

	tag, err = tx.Exec(ctx, `
		UPDATE fleet_assignments
		SET status = 'completed', status_version = status_version + 1
		WHERE id = $1 AND status IN ('assigned', 'in_progress') AND status_version = $2`,
		string(id), version,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO request_state_events (request_id, from_status, to_status, actor_role, actor_id, created_at)
		VALUES ($1, 'in_progress', 'completed', 'chief', $2, NOW())`,
		requestID, chiefID,
	); err != nil {
		return false, err
	}

	return true, tx.Commit(ctx)
}

func scanAssignment(row interface{ Scan(dest ...any) error }) (*Assignment, error) {
	var a Assignment
	var driverID, truckID, noteID sql.NullString

	err := row.Scan(
		&a.ID, &a.SendingRequestID, &a.FleetManagerID, &driverID, &truckID,
		&noteID, &a.AssignedAt, &a.Status, &a.StatusVersion,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.DriverID = nullToIDPtr(driverID)
	a.TruckID = nullToIDPtr(truckID)
	a.DeliveryNoteID = nullToIDPtr(noteID)
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func idToString(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func nullToIDPtr(v sql.NullString) *types.ID {
	if !v.Valid {
		return nil
	}
	id := types.ID(v.String)
	return &id
}
