package audit_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"fieldaudit/internal/audit"
	"fieldaudit/internal/testutil"
)

// FixedClock is 2024-01-15, so today's prefix is 15012024.
const todayPrefix = "15012024"

func newAllocator(store audit.RecordStore) *audit.Allocator {
	return audit.NewAllocator(store, testutil.FixedClock(), audit.NewNopLogger())
}

func TestAllocator_Next(t *testing.T) {
	t.Run("first id of the day is sequence 1", func(t *testing.T) {
		store := newFakeRecordStore()
		alloc := newAllocator(store)

		got := alloc.Next(context.Background())
		if got.ID != todayPrefix+"-00001" {
			t.Errorf("Next() = %q, want %q", got.ID, todayPrefix+"-00001")
		}
		if got.Fallback {
			t.Error("Next() Fallback = true, want false")
		}
	})

	t.Run("continues from the max sequence of the day", func(t *testing.T) {
		store := newFakeRecordStore()
		store.add(todayPrefix+"-00001", "u1")
		store.add(todayPrefix+"-00007", "u1")
		store.add(todayPrefix+"-00003", "u2")

		got := newAllocator(store).Next(context.Background())
		if got.ID != todayPrefix+"-00008" {
			t.Errorf("Next() = %q, want %q", got.ID, todayPrefix+"-00008")
		}
	})

	t.Run("other days do not advance the sequence", func(t *testing.T) {
		store := newFakeRecordStore()
		store.add("14012024-00042", "u1")
		store.add("15012023-00099", "u1")

		got := newAllocator(store).Next(context.Background())
		if got.ID != todayPrefix+"-00001" {
			t.Errorf("Next() = %q, want %q", got.ID, todayPrefix+"-00001")
		}
	})

	t.Run("timestamp fallback ids are ignored by the scan", func(t *testing.T) {
		store := newFakeRecordStore()
		store.add(todayPrefix+"-1705315800000", "u1")
		store.add(todayPrefix+"-00002", "u1")

		got := newAllocator(store).Next(context.Background())
		if got.ID != todayPrefix+"-00003" {
			t.Errorf("Next() = %q, want %q", got.ID, todayPrefix+"-00003")
		}
	})

	t.Run("malformed tails are ignored by the scan", func(t *testing.T) {
		store := newFakeRecordStore()
		store.add(todayPrefix+"-abcde", "u1")
		store.add(todayPrefix+"-00004", "u1")

		got := newAllocator(store).Next(context.Background())
		if got.ID != todayPrefix+"-00005" {
			t.Errorf("Next() = %q, want %q", got.ID, todayPrefix+"-00005")
		}
	})

	t.Run("scan failure degrades to timestamp fallback", func(t *testing.T) {
		store := newFakeRecordStore()
		store.listIDsErr = errors.New("store unavailable")

		got := newAllocator(store).Next(context.Background())
		if !got.Fallback {
			t.Fatal("Next() Fallback = false, want true")
		}

		// Prefix plus the fixed clock's epoch milliseconds.
		want := regexp.MustCompile(`^` + todayPrefix + `-\d{13}$`)
		if !want.MatchString(got.ID) {
			t.Errorf("Next() fallback id = %q, want match %s", got.ID, want)
		}
	})

	t.Run("persistent collision degrades to timestamp fallback", func(t *testing.T) {
		// The probe sees sequence 1 as taken but the scan never observes it,
		// so every recompute lands on the same id.
		probe := newFakeRecordStore()
		probe.add(todayPrefix+"-00001", "u1")
		hybrid := &staleScanStore{RecordStore: probe, scan: newFakeRecordStore()}

		got := newAllocator(hybrid).Next(context.Background())
		if !got.Fallback {
			t.Error("Next() Fallback = false, want true for persistent collision")
		}
	})
}

// staleScanStore answers ListIDs from a lagging store and everything else
// from the embedded one, simulating a scan behind the probe's view.
type staleScanStore struct {
	audit.RecordStore
	scan *fakeRecordStore
}

func (s *staleScanStore) ListIDs(ctx context.Context) ([]string, error) {
	return s.scan.ListIDs(ctx)
}
