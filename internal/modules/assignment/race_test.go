// README: Concurrency tests for the at-most-one-claim invariant.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"fret/internal/modules/request"
	"fret/internal/types"
)

func TestConcurrentClaimsExactlyOneWins(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	r := seedAcceptedRequest(t, env)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	start := make(chan struct{})

	for i := 0; i < attempts; i++ {
		chief := types.Actor{ID: types.ID(fmt.Sprintf("m%d", i)), Role: types.RoleChief}
		wg.Add(1)
		go func(actor types.Actor) {
			defer wg.Done()
			<-start
			_, err := env.svc.Claim(ctx, ClaimCommand{Actor: actor, RequestID: r.ID})
			errs <- err
		}(chief)
	}

	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 successful claim, got %d", success)
	}

	got, err := env.requests.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if got.Status != request.StatusInProgress {
		t.Fatalf("expected request in_progress, got %s", got.Status)
	}
	assertActiveAssignments(t, env, r.ID, 1)
}

func TestConcurrentClaimVsOwnerCancel(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	r := seedAcceptedRequest(t, env)

	var wg sync.WaitGroup
	claimErrs := make(chan error, 1)
	cancelErrs := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := env.svc.Claim(ctx, ClaimCommand{Actor: testChief, RequestID: r.ID})
		claimErrs <- err
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := env.reqSvc.Cancel(ctx, testClient, r.ID)
		cancelErrs <- err
	}()

	wg.Wait()

	if err := <-claimErrs; err != nil && !errors.Is(err, ErrConflict) {
		t.Fatalf("unexpected claim error: %v", err)
	}
	// The owner may cancel before the claim (from accepted) or after it
	// (from in_progress); either way the cancel itself must not fail
	// with anything but a version conflict.
	if err := <-cancelErrs; err != nil &&
		!errors.Is(err, request.ErrConflict) && !errors.Is(err, request.ErrInvalidState) {
		t.Fatalf("unexpected cancel error: %v", err)
	}

	got, err := env.requests.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	switch got.Status {
	case request.StatusCancelled:
		// A cancelled request keeps no live claim.
		assertActiveAssignments(t, env, r.ID, 0)
	case request.StatusInProgress:
		assertActiveAssignments(t, env, r.ID, 1)
	default:
		t.Fatalf("unexpected final status: %s", got.Status)
	}
}

// TestConcurrentCancelVsComplete drives the owner's cancel and the
// chief's complete against the same request at once. Both transactions
// touch the request row and the assignment rows; exactly one commits
// and the loser gets a version conflict, never a deadlock error.
func TestConcurrentCancelVsComplete(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	for round := 0; round < 5; round++ {
		r := seedAcceptedRequest(t, env)
		a, err := env.svc.Claim(ctx, ClaimCommand{Actor: testChief, RequestID: r.ID})
		if err != nil {
			t.Fatalf("round %d: claim: %v", round, err)
		}

		var wg sync.WaitGroup
		cancelErrs := make(chan error, 1)
		completeErrs := make(chan error, 1)
		start := make(chan struct{})

		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.reqSvc.Cancel(ctx, testClient, r.ID)
			cancelErrs <- err
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.svc.Complete(ctx, testChief, a.ID)
			completeErrs <- err
		}()

		close(start)
		wg.Wait()

		success := 0
		if err := <-cancelErrs; err == nil {
			success++
		} else if !errors.Is(err, request.ErrConflict) && !errors.Is(err, request.ErrInvalidState) {
			t.Fatalf("round %d: unexpected cancel error: %v", round, err)
		}
		if err := <-completeErrs; err == nil {
			success++
		} else if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrInvalidState) {
			t.Fatalf("round %d: unexpected complete error: %v", round, err)
		}
		if success != 1 {
			t.Fatalf("round %d: expected exactly 1 winner, got %d", round, success)
		}

		got, err := env.requests.Get(ctx, r.ID)
		if err != nil {
			t.Fatalf("round %d: get request: %v", round, err)
		}
		done, err := env.store.Get(ctx, a.ID)
		if err != nil {
			t.Fatalf("round %d: get assignment: %v", round, err)
		}
		switch got.Status {
		case request.StatusCancelled:
			if done.Status != StatusCancelled {
				t.Fatalf("round %d: cancelled request left assignment %s", round, done.Status)
			}
		case request.StatusCompleted:
			if done.Status != StatusCompleted {
				t.Fatalf("round %d: completed request left assignment %s", round, done.Status)
			}
		default:
			t.Fatalf("round %d: unexpected final status: %s", round, got.Status)
		}
	}
}

func TestConcurrentCompleteExactlyOnce(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	r := seedAcceptedRequest(t, env)
	a, err := env.svc.Claim(ctx, ClaimCommand{Actor: testChief, RequestID: r.ID})
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	const attempts = 4
	var wg sync.WaitGroup
	errs := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Complete(ctx, testChief, a.ID)
			errs <- err
		}()
	}

	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrInvalidState) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 successful complete, got %d", success)
	}

	got, err := env.requests.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if got.Status != request.StatusCompleted {
		t.Fatalf("expected request completed, got %s", got.Status)
	}
}

// TestClaimAfterCancelledClaimStillBlocked pins the no-auto-reopen rule:
// once a claim moved the request to in_progress, cancelling the
// assignment alone does not put the request back on the board.
func TestClaimAfterCancelledClaimStillBlocked(t *testing.T) {
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

	other := types.Actor{ID: "m2", Role: types.RoleChief}
	if _, err := env.svc.Claim(ctx, ClaimCommand{Actor: other, RequestID: r.ID}); err != ErrConflict {
		t.Fatalf("re-claim after cancel: expected ErrConflict, got %v", err)
	}
}

func assertActiveAssignments(t *testing.T, env *testEnv, requestID types.ID, want int) {
	t.Helper()
	as, err := env.store.ListByRequest(context.Background(), requestID)
	if err != nil {
		t.Fatalf("list assignments: %v", err)
	}
	active := 0
	for _, a := range as {
		if a.Status.Active() {
			active++
		}
	}
	if active != want {
		t.Fatalf("expected %d active assignments, got %d", want, active)
	}
}
