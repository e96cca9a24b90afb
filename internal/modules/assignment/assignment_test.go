// README: Assignment ledger tests (claim, snapshot, reassign, complete).
package assignment

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"fret/internal/inventory"
	"fret/internal/modules/billing"
	"fret/internal/modules/deliverynote"
	"fret/internal/modules/request"
	"fret/internal/types"
)

var (
	testClient = types.Actor{ID: "c1", Role: types.RoleClient}
	testAdmin  = types.Actor{ID: "a1", Role: types.RoleAdmin}
	testChief  = types.Actor{ID: "m1", Role: types.RoleChief}
)

func TestAssignmentCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusAssigned, StatusInProgress, true},
		{StatusAssigned, StatusCompleted, true},
		{StatusAssigned, StatusCancelled, true},
		{StatusAssigned, StatusRejected, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCancelled, true},
		// terminal states have no outgoing edges
		{StatusCompleted, StatusAssigned, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusAssigned, false},
		{StatusRejected, StatusAssigned, false},
		{StatusInProgress, StatusRejected, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestClaimStartsRequestAndSnapshotsNote(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	r := seedAcceptedRequest(t, env)
	a, err := env.svc.Claim(ctx, ClaimCommand{Actor: testChief, RequestID: r.ID})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if a.Status != StatusAssigned {
		t.Fatalf("expected assigned, got %s", a.Status)
	}
	if a.DeliveryNoteID == nil {
		t.Fatal("expected a delivery note reference")
	}

	got, err := env.requests.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if got.Status != request.StatusInProgress {
		t.Fatalf("expected request in_progress, got %s", got.Status)
	}

	note, err := env.notes.Get(ctx, *a.DeliveryNoteID)
	if err != nil {
		t.Fatalf("get note: %v", err)
	}
	if note.SendingRequestID != r.ID || note.ClientID != r.ClientID {
		t.Fatalf("note references wrong request: %+v", note)
	}
	if note.RecipientName != r.RecipientName || !note.Weight.Equal(r.Weight) {
		t.Fatalf("note is not a faithful snapshot: %+v", note)
	}
}

func TestNoteIsImmutableUnderLaterState(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	r := seedAcceptedRequest(t, env)
	a, err := env.svc.Claim(ctx, ClaimCommand{Actor: testChief, RequestID: r.ID})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := env.svc.Cancel(ctx, testChief, a.ID); err != nil {
		t.Fatalf("cancel assignment: %v", err)
	}

	// Cancelling the assignment never touches the manifest.
	note, err := env.notes.Get(ctx, *a.DeliveryNoteID)
	if err != nil {
		t.Fatalf("get note after cancel: %v", err)
	}
	if note.RecipientName != r.RecipientName {
		t.Fatalf("note changed after assignment cancel: %+v", note)
	}
}

func TestClaimRequiresChief(t *testing.T) {
	env := setupTestEnv(t)

	r := seedAcceptedRequest(t, env)
	for _, actor := range []types.Actor{testClient, testAdmin} {
		if _, err := env.svc.Claim(context.Background(), ClaimCommand{Actor: actor, RequestID: r.ID}); err != ErrForbidden {
			t.Fatalf("claim as %s: expected ErrForbidden, got %v", actor.Role, err)
		}
	}
}

func TestClaimOnlyAcceptedRequests(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	r := mustSubmit(t, env)
	if _, err := env.svc.Claim(ctx, ClaimCommand{Actor: testChief, RequestID: r.ID}); err != ErrConflict {
		t.Fatalf("claim pending request: expected ErrConflict, got %v", err)
	}

	if _, err := env.svc.Claim(ctx, ClaimCommand{Actor: testChief, RequestID: "missing"}); err != ErrNotFound {
		t.Fatalf("claim unknown request: expected ErrNotFound, got %v", err)
	}
}

func TestClaimValidatesInventoryReferences(t *testing.T) {
	env := setupTestEnv(t)

	r := seedAcceptedRequest(t, env)
	ghost := types.ID("d_ghost")
	if _, err := env.svc.Claim(context.Background(), ClaimCommand{
		Actor:     testChief,
		RequestID: r.ID,
		DriverID:  &ghost,
	}); err != ErrNotFound {
		t.Fatalf("claim with unknown driver: expected ErrNotFound, got %v", err)
	}
}

func TestReassignDriverAndTruck(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	r := seedAcceptedRequest(t, env)
	a, err := env.svc.Claim(ctx, ClaimCommand{Actor: testChief, RequestID: r.ID})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	a2, err := env.svc.ReassignDriver(ctx, testChief, a.ID, "d2")
	if err != nil {
		t.Fatalf("reassign driver: %v", err)
	}
	if a2.DriverID == nil || *a2.DriverID != "d2" {
		t.Fatalf("expected driver d2, got %v", a2.DriverID)
	}

	a3, err := env.svc.ReassignTruck(ctx, testChief, a.ID, "t2")
	if err != nil {
		t.Fatalf("reassign truck: %v", err)
	}
	if a3.TruckID == nil || *a3.TruckID != "t2" {
		t.Fatalf("expected truck t2, got %v", a3.TruckID)
	}

	if _, err := env.svc.ReassignDriver(ctx, testChief, a.ID, "d_ghost"); err != ErrNotFound {
		t.Fatalf("reassign unknown driver: expected ErrNotFound, got %v", err)
	}

	// Reassignment ends with the assignment.
	if _, err := env.svc.Complete(ctx, testChief, a.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := env.svc.ReassignDriver(ctx, testChief, a.ID, "d2"); err != ErrInvalidState {
		t.Fatalf("reassign after complete: expected ErrInvalidState, got %v", err)
	}
}

func TestCancelLeavesRequestInProgress(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	r := seedAcceptedRequest(t, env)
	a, err := env.svc.Claim(ctx, ClaimCommand{Actor: testChief, RequestID: r.ID})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := env.svc.Cancel(ctx, testChief, a.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Reopening is an explicit administrative decision, never automatic.
	got, err := env.requests.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if got.Status != request.StatusInProgress {
		t.Fatalf("expected request still in_progress, got %s", got.Status)
	}
}

func TestCompleteCascadesToRequest(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	r := seedAcceptedRequest(t, env)
	a, err := env.svc.Claim(ctx, ClaimCommand{Actor: testChief, RequestID: r.ID})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	done, err := env.svc.Complete(ctx, testChief, a.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", done.Status)
	}

	got, err := env.requests.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if got.Status != request.StatusCompleted {
		t.Fatalf("expected request completed, got %s", got.Status)
	}

	if _, err := env.svc.Complete(ctx, testChief, a.ID); err != ErrInvalidState {
		t.Fatalf("second complete: expected ErrInvalidState, got %v", err)
	}
}

func TestForeignAssignmentForbidden(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	r := seedAcceptedRequest(t, env)
	a, err := env.svc.Claim(ctx, ClaimCommand{Actor: testChief, RequestID: r.ID})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	other := types.Actor{ID: "m2", Role: types.RoleChief}
	if _, err := env.svc.Cancel(ctx, other, a.ID); err != ErrForbidden {
		t.Fatalf("cancel foreign assignment: expected ErrForbidden, got %v", err)
	}
	if _, err := env.svc.Get(ctx, testClient, a.ID); err != ErrForbidden {
		t.Fatalf("get as client: expected ErrForbidden, got %v", err)
	}
	if _, err := env.svc.Get(ctx, testAdmin, a.ID); err != nil {
		t.Fatalf("get as admin: %v", err)
	}
}

// fakeInventory keeps existence checks in memory so ledger tests do not
// depend on seeded reference tables.
type fakeInventory struct {
	drivers map[types.ID]bool
	trucks  map[types.ID]bool
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{
		drivers: map[types.ID]bool{"d1": true, "d2": true},
		trucks:  map[types.ID]bool{"t1": true, "t2": true},
	}
}

func (f *fakeInventory) GetDriver(_ context.Context, id types.ID) (*inventory.Driver, error) {
	if !f.drivers[id] {
		return nil, inventory.ErrNotFound
	}
	return &inventory.Driver{ID: id, FullName: "Test Driver", LicenseNo: "X"}, nil
}

func (f *fakeInventory) GetTruck(_ context.Context, id types.ID) (*inventory.Truck, error) {
	if !f.trucks[id] {
		return nil, inventory.ErrNotFound
	}
	return &inventory.Truck{ID: id, PlateNumber: "XX-000-XX", Model: "Test", CapacityKg: 20000}, nil
}

type testEnv struct {
	requests *request.Store
	notes    *deliverynote.Store
	store    *Store
	svc      *Service
	reqSvc   *request.Service
}

func mustSubmit(t *testing.T, env *testEnv) *request.Request {
	t.Helper()
	base := decimal.RequireFromString("100000")
	rate := decimal.RequireFromString("20")
	p := request.Payload{
		RecipientName:    "Jane Doe",
		RecipientEmail:   "jane@example.com",
		RecipientPhone:   "0612345678",
		CargoType:        request.CargoContainer,
		Weight:           decimal.NewFromInt(1200),
		Dimensions:       "6x2.4x2.6",
		Quantity:         1,
		PickupLocation:   "Marseille",
		PickupAt:         timeNowPlus(t, 24),
		DeliveryLocation: "Lyon",
		DeliveryAt:       timeNowPlus(t, 72),
		Priority:         request.PriorityMedium,
		BasePrice:        &base,
		CommissionRate:   &rate,
	}
	r, err := env.reqSvc.Submit(context.Background(), request.SubmitCommand{Actor: testClient, Payload: p})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return r
}

func timeNowPlus(t *testing.T, hours int) time.Time {
	t.Helper()
	return time.Now().Add(time.Duration(hours) * time.Hour).Truncate(time.Second)
}

func seedAcceptedRequest(t *testing.T, env *testEnv) *request.Request {
	t.Helper()
	r := mustSubmit(t, env)
	accepted, err := env.reqSvc.Accept(context.Background(), testAdmin, r.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return accepted
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := os.Getenv("FRET_TEST_DSN")
	if dsn == "" {
		t.Skip("FRET_TEST_DSN not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := applyMigration(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	if _, err := db.Exec(ctx,
		"TRUNCATE TABLE request_state_events, fleet_assignments, delivery_notes, sending_requests"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}

	requests := request.NewStore(db)
	notes := deliverynote.NewStore(db)
	store := NewStore(db, notes)
	return &testEnv{
		requests: requests,
		notes:    notes,
		store:    store,
		svc:      NewService(store, requests, newFakeInventory(), billing.Noop{}),
		reqSvc:   request.NewService(requests, billing.Noop{}, decimal.NewFromInt(20)),
	}
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	content, err := os.ReadFile(filepath.Join(root, "migrations", "0001_init.sql"))
	if err != nil {
		return err
	}
	cleaned := stripSQLComments(string(content))
	for _, stmt := range splitSQL(cleaned) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
