package queue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jalvrz/go-sos-relay/internal/models"
)

func setupTestQueue(t *testing.T) *SQLiteQueue {
	t.Helper()
	q, err := NewSQLiteQueue(":memory:")
	if err != nil {
		t.Fatalf("failed to create test queue: %v", err)
	}
	return q
}

func testReport(localID string, createdAt time.Time) *models.EmergencyReport {
	return &models.EmergencyReport{
		LocalID:   localID,
		Name:      "Jane Doe",
		Phone:     "555-0100",
		CreatedAt: createdAt,
		State:     models.StatePending,
	}
}

func TestSQLiteQueue_AppendAndListPending(t *testing.T) {
	q := setupTestQueue(t)
	defer q.Close()

	ctx := context.Background()
	r := testReport("r1", time.Now())
	r.EmergencyType = "fire"
	r.Location = &models.Coordinates{Latitude: 35.0, Longitude: 139.0}

	if err := q.Append(ctx, r); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	pending, err := q.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending report, got %d", len(pending))
	}
	got := pending[0]
	if got.LocalID != "r1" || got.Name != "Jane Doe" || got.Phone != "555-0100" {
		t.Errorf("unexpected report: %+v", got)
	}
	if got.State != models.StatePending {
		t.Errorf("expected state pending, got %s", got.State)
	}
	if got.Location == nil || got.Location.Latitude != 35.0 {
		t.Errorf("expected location to round-trip, got %+v", got.Location)
	}
}

func TestSQLiteQueue_AppendDuplicateID(t *testing.T) {
	q := setupTestQueue(t)
	defer q.Close()

	ctx := context.Background()
	r := testReport("dup", time.Now())

	if err := q.Append(ctx, r); err != nil {
		t.Fatalf("first Append failed: %v", err)
	}
	err := q.Append(ctx, r)
	if !errors.Is(err, ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}

	// The original record must be untouched.
	pending, err := q.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("expected 1 pending report, got %d", len(pending))
	}
}

func TestSQLiteQueue_RemoveIsIdempotent(t *testing.T) {
	q := setupTestQueue(t)
	defer q.Close()

	ctx := context.Background()
	if err := q.Append(ctx, testReport("gone", time.Now())); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if err := q.Remove(ctx, "gone"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	// Removing again, or removing an id that never existed, is a no-op.
	if err := q.Remove(ctx, "gone"); err != nil {
		t.Errorf("second Remove failed: %v", err)
	}
	if err := q.Remove(ctx, "never-existed"); err != nil {
		t.Errorf("Remove of unknown id failed: %v", err)
	}

	pending, err := q.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected removed report to stay gone, got %d pending", len(pending))
	}
}

func TestSQLiteQueue_NoResurrectionAfterRemove(t *testing.T) {
	q := setupTestQueue(t)
	defer q.Close()

	ctx := context.Background()
	if err := q.Append(ctx, testReport("r1", time.Now())); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := q.Remove(ctx, "r1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	// A stale in-flight retry marking the record failed must not bring it
	// back into the pending set.
	if err := q.MarkFailed(ctx, "r1"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	if err := q.MarkInFlight(ctx, "r1"); err != nil {
		t.Fatalf("MarkInFlight failed: %v", err)
	}
	if err := q.UpdateAddress(ctx, "r1", "1 Main St"); err != nil {
		t.Fatalf("UpdateAddress failed: %v", err)
	}

	pending, err := q.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("removed report resurrected: %d pending", len(pending))
	}
}

func TestSQLiteQueue_ListPendingOrderedByCreatedAt(t *testing.T) {
	q := setupTestQueue(t)
	defer q.Close()

	ctx := context.Background()
	base := time.Now()

	// Append out of creation order on purpose.
	if err := q.Append(ctx, testReport("t3", base.Add(2*time.Second))); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := q.Append(ctx, testReport("t1", base)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := q.Append(ctx, testReport("t2", base.Add(time.Second))); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	pending, err := q.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending reports, got %d", len(pending))
	}
	want := []string{"t1", "t2", "t3"}
	for i, w := range want {
		if pending[i].LocalID != w {
			t.Errorf("position %d: expected %s, got %s", i, w, pending[i].LocalID)
		}
	}
}

func TestSQLiteQueue_StateTransitions(t *testing.T) {
	q := setupTestQueue(t)
	defer q.Close()

	ctx := context.Background()
	if err := q.Append(ctx, testReport("r1", time.Now())); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// In-flight records are excluded from the pending snapshot.
	if err := q.MarkInFlight(ctx, "r1"); err != nil {
		t.Fatalf("MarkInFlight failed: %v", err)
	}
	pending, err := q.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected in-flight report excluded, got %d", len(pending))
	}

	// Failure returns it to the retryable set with a bumped count.
	if err := q.MarkFailed(ctx, "r1"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	pending, err = q.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 retryable report, got %d", len(pending))
	}
	if pending[0].State != models.StateFailed {
		t.Errorf("expected state failed, got %s", pending[0].State)
	}
	if pending[0].RetryCount != 1 {
		t.Errorf("expected retry count 1, got %d", pending[0].RetryCount)
	}

	if err := q.MarkFailed(ctx, "r1"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	pending, _ = q.ListPending(ctx)
	if pending[0].RetryCount != 2 {
		t.Errorf("expected retry count 2, got %d", pending[0].RetryCount)
	}
}

func TestSQLiteQueue_UpdateAddress(t *testing.T) {
	q := setupTestQueue(t)
	defer q.Close()

	ctx := context.Background()
	r := testReport("r1", time.Now())
	r.Location = &models.Coordinates{Latitude: 40.7, Longitude: -74.0}
	if err := q.Append(ctx, r); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if err := q.UpdateAddress(ctx, "r1", "City Hall Park, New York"); err != nil {
		t.Fatalf("UpdateAddress failed: %v", err)
	}

	pending, err := q.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if pending[0].LocationAddress != "City Hall Park, New York" {
		t.Errorf("expected address to be set, got %q", pending[0].LocationAddress)
	}
}

func TestSQLiteQueue_CrashRecovery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	ctx := context.Background()
	base := time.Now()

	q, err := NewSQLiteQueue(path)
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}
	if err := q.Append(ctx, testReport("t2", base.Add(time.Second))); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := q.Append(ctx, testReport("t1", base)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	// Simulate a crash mid-send: one record stuck in flight.
	if err := q.MarkInFlight(ctx, "t1"); err != nil {
		t.Fatalf("MarkInFlight failed: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewSQLiteQueue(path)
	if err != nil {
		t.Fatalf("failed to reopen queue: %v", err)
	}
	defer reopened.Close()

	pending, err := reopened.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected both records after restart, got %d", len(pending))
	}
	if pending[0].LocalID != "t1" || pending[1].LocalID != "t2" {
		t.Errorf("expected created_at order t1,t2 after restart, got %s,%s",
			pending[0].LocalID, pending[1].LocalID)
	}
	if pending[0].State != models.StatePending {
		t.Errorf("expected abandoned in-flight record reset to pending, got %s", pending[0].State)
	}
}

func TestSQLiteQueue_Depth(t *testing.T) {
	q := setupTestQueue(t)
	defer q.Close()

	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		if err := q.Append(ctx, testReport(id, time.Now().Add(time.Duration(i)*time.Millisecond))); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("Depth failed: %v", err)
	}
	if depth != 3 {
		t.Errorf("expected depth 3, got %d", depth)
	}

	q.Remove(ctx, "b")
	depth, _ = q.Depth(ctx)
	if depth != 2 {
		t.Errorf("expected depth 2 after remove, got %d", depth)
	}
}
