// README: Sending-request store backed by PostgreSQL (CAS status updates, audit events).
package request

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

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Numeric columns are read and written as text so money stays in
// decimal form end to end.
const requestColumns = `
	id, client_id, recipient_name, recipient_email, recipient_phone,
	cargo_type, weight::text, dimensions, quantity,
	pickup_location, pickup_date_time, delivery_location, delivery_date_time,
	additional_details, special_conditions, priority,
	base_price::text, commission_rate::text, total_price::text,
	cancellation_fee::text, refund_amount::text,
	status, status_version, request_date, updated_at`

func (s *Store) Create(ctx context.Context, r *Request) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sending_requests (
			id, client_id, recipient_name, recipient_email, recipient_phone,
			cargo_type, weight, dimensions, quantity,
			pickup_location, pickup_date_time, delivery_location, delivery_date_time,
			additional_details, special_conditions, priority,
			base_price, commission_rate, total_price,
			status, status_version, request_date, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16,
			$17, $18, $19,
			$20, $21, $22, $23
		)`,
		string(r.ID), string(r.ClientID), r.RecipientName, r.RecipientEmail, r.RecipientPhone,
		string(r.CargoType), r.Weight.String(), r.Dimensions, r.Quantity,
		r.PickupLocation, r.PickupAt, r.DeliveryLocation, r.DeliveryAt,
		r.AdditionalDetails, r.SpecialConditions, string(r.Priority),
		decToString(r.BasePrice), decToString(r.CommissionRate), decToString(r.TotalPrice),
		string(r.Status), r.StatusVersion, r.RequestDate, r.UpdatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Request, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM sending_requests WHERE id = $1`, string(id))
	return scanRequest(row)
}

func (s *Store) ListByClient(ctx context.Context, clientID types.ID) ([]Request, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+requestColumns+` FROM sending_requests
		 WHERE client_id = $1 ORDER BY request_date DESC`, string(clientID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

func (s *Store) ListByStatus(ctx context.Context, statuses []Status) ([]Request, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	vals := make([]string, len(statuses))
	for i, st := range statuses {
		vals[i] = string(st)
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+requestColumns+` FROM sending_requests
		 WHERE status = ANY($1) ORDER BY request_date DESC`, vals)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

// UpdateFields rewrites the editable payload of a pending request. The
// status guard lives in the WHERE clause so a concurrent accept/reject
// makes the edit lose cleanly instead of clobbering a decided request.
func (s *Store) UpdateFields(ctx context.Context, r *Request, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE sending_requests SET
			recipient_name = $1, recipient_email = $2, recipient_phone = $3,
			cargo_type = $4, weight = $5, dimensions = $6, quantity = $7,
			pickup_location = $8, pickup_date_time = $9,
			delivery_location = $10, delivery_date_time = $11,
			additional_details = $12, special_conditions = $13, priority = $14,
			base_price = $15, commission_rate = $16, total_price = $17,
			status_version = status_version + 1, updated_at = NOW()
		WHERE id = $18 AND status = 'pending' AND status_version = $19`,
		r.RecipientName, r.RecipientEmail, r.RecipientPhone,
		string(r.CargoType), r.Weight.String(), r.Dimensions, r.Quantity,
		r.PickupLocation, r.PickupAt,
		r.DeliveryLocation, r.DeliveryAt,
		r.AdditionalDetails, r.SpecialConditions, string(r.Priority),
		decToString(r.BasePrice), decToString(r.CommissionRate), decToString(r.TotalPrice),
		string(r.ID), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateStatus applies one state-machine edge with an optimistic check
// on (status, status_version) and records the audit event in the same
// transaction.
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, actor types.Actor) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE sending_requests
		SET status = $1, status_version = status_version + 1, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND status_version = $4`,
		string(to), string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	if err := appendEventTx(ctx, tx, id, from, to, actor); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// Cancel marks the request cancelled, persists the forfeit accounting,
// and terminates any active assignment, all in one transaction.
func (s *Store) Cancel(ctx context.Context, id types.ID, from Status, version int, fee, refund *decimal.Decimal, actor types.Actor) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE sending_requests
		SET status = 'cancelled', cancellation_fee = $1, refund_amount = $2,
		    status_version = status_version + 1, updated_at = NOW()
		WHERE id = $3 AND status = $4 AND status_version = $5`,
		decToString(fee), decToString(refund), string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	if _, err := tx.Exec(ctx, `
		UPDATE fleet_assignments SET status = 'cancelled'
		WHERE sending_request_id = $1 AND status IN ('assigned', 'in_progress')`,
		string(id),
	); err != nil {
		return false, err
	}
	if err := appendEventTx(ctx, tx, id, from, StatusCancelled, actor); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// Relaunch re-enters pending from cancelled, optionally rewriting the
// payload, and clears the previous cancellation accounting.
func (s *Store) Relaunch(ctx context.Context, r *Request, version int, actor types.Actor) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE sending_requests SET
			recipient_name = $1, recipient_email = $2, recipient_phone = $3,
			cargo_type = $4, weight = $5, dimensions = $6, quantity = $7,
			pickup_location = $8, pickup_date_time = $9,
			delivery_location = $10, delivery_date_time = $11,
			additional_details = $12, special_conditions = $13, priority = $14,
			base_price = $15, commission_rate = $16, total_price = $17,
			status = 'pending', cancellation_fee = NULL, refund_amount = NULL,
			status_version = status_version + 1, updated_at = NOW()
		WHERE id = $18 AND status = 'cancelled' AND status_version = $19`,
		r.RecipientName, r.RecipientEmail, r.RecipientPhone,
		string(r.CargoType), r.Weight.String(), r.Dimensions, r.Quantity,
		r.PickupLocation, r.PickupAt,
		r.DeliveryLocation, r.DeliveryAt,
		r.AdditionalDetails, r.SpecialConditions, string(r.Priority),
		decToString(r.BasePrice), decToString(r.CommissionRate), decToString(r.TotalPrice),
		string(r.ID), version,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	if err := appendEventTx(ctx, tx, r.ID, StatusCancelled, StatusPending, actor); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// Delete removes a terminal request. The status guard is enforced here,
// not by the caller: deleting an active request must be impossible no
// matter which code path asks.
func (s *Store) Delete(ctx context.Context, id types.ID) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM sending_requests
		WHERE id = $1 AND status IN ('cancelled', 'rejected')`, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sending_requests WHERE id = $1)`, string(id),
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

// AppendEvent records a non-transactional audit row (used for creation,
// where there is no prior state to guard).
func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO request_state_events (request_id, from_status, to_status, actor_role, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.RequestID), string(e.FromStatus), string(e.ToStatus),
		e.ActorRole, idToString(e.ActorID), e.CreatedAt,
	)
	return err
}

func (s *Store) ListEvents(ctx context.Context, id types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, request_id, from_status, to_status, actor_role, actor_id, created_at
		FROM request_state_events WHERE request_id = $1 ORDER BY id`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var actorID sql.NullString
		if err := rows.Scan(&e.ID, &e.RequestID, &e.FromStatus, &e.ToStatus, &e.ActorRole, &actorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if actorID.Valid {
			v := types.ID(actorID.String)
			e.ActorID = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func appendEventTx(ctx context.Context, tx pgx.Tx, id types.ID, from, to Status, actor types.Actor) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO request_state_events (request_id, from_status, to_status, actor_role, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`,
		string(id), string(from), string(to), string(actor.Role), string(actor.ID),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*Request, error) {
	var r Request
	var weight string
	var additional, special sql.NullString
	var basePrice, commissionRate, totalPrice, fee, refund sql.NullString

	err := row.Scan(
		&r.ID, &r.ClientID, &r.RecipientName, &r.RecipientEmail, &r.RecipientPhone,
		&r.CargoType, &weight, &r.Dimensions, &r.Quantity,
		&r.PickupLocation, &r.PickupAt, &r.DeliveryLocation, &r.DeliveryAt,
		&additional, &special, &r.Priority,
		&basePrice, &commissionRate, &totalPrice,
		&fee, &refund,
		&r.Status, &r.StatusVersion, &r.RequestDate, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if r.Weight, err = decimal.NewFromString(weight); err != nil {
		return nil, fmt.Errorf("parse weight: %w", err)
	}
	r.AdditionalDetails = nullToStringPtr(additional)
	r.SpecialConditions = nullToStringPtr(special)
	if r.BasePrice, err = nullToDecPtr(basePrice); err != nil {
		return nil, err
	}
	if r.CommissionRate, err = nullToDecPtr(commissionRate); err != nil {
		return nil, err
	}
	if r.TotalPrice, err = nullToDecPtr(totalPrice); err != nil {
		return nil, err
	}
	if r.CancellationFee, err = nullToDecPtr(fee); err != nil {
		return nil, err
	}
	if r.RefundAmount, err = nullToDecPtr(refund); err != nil {
		return nil, err
	}
	return &r, nil
}

func collectRequests(rows pgx.Rows) ([]Request, error) {
	var out []Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func decToString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func nullToDecPtr(v sql.NullString) (*decimal.Decimal, error) {
	if !v.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, fmt.Errorf("parse numeric %q: %w", v.String, err)
	}
	return &d, nil
}

func nullToStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func idToString(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
