package audit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// allocScanRetries bounds the re-scan-and-recompute loop when a freshly
// computed identifier turns out to already exist (another writer got there
// between our scan and theirs).
const allocScanRetries = 3

// Allocation is the outcome of one identifier allocation. Fallback marks the
// non-collision-safe timestamp path so callers and monitoring can observe it.
type Allocation struct {
	ID       string
	Fallback bool
}

// Allocator derives the next date-scoped record identifier. Identifiers have
// the form DDMMYYYY-SSSSS: an 8-digit date prefix and a 5-digit zero-padded
// sequence computed by scanning existing ids client-side.
//
// Two concurrent allocators that both scan before either writes can still
// compute the same sequence. The bounded existence check below narrows that
// window but no transactional counter exists to close it; this is an accepted
// limitation of client-computed sequencing.
type Allocator struct {
	store  RecordStore
	clock  Clock
	logger Logger
}

func NewAllocator(store RecordStore, clock Clock, logger Logger) *Allocator {
	return &Allocator{store: store, clock: clock, logger: logger}
}

// Next allocates an identifier for a record created now. Allocation never
// blocks record creation: if the scan fails for any reason the returned
// identifier degrades to the date prefix plus the raw millisecond timestamp.
func (a *Allocator) Next(ctx context.Context) Allocation {
	prefix := a.datePrefix()

	for attempt := 0; attempt < allocScanRetries; attempt++ {
		seq, err := a.nextSequence(ctx, prefix)
		if err != nil {
			return a.fallback(prefix, err)
		}

		id := fmt.Sprintf("%s-%05d", prefix, seq)

		// Explicit collision probe: a concurrent writer may have claimed
		// this sequence since our scan. Re-scan and recompute if so.
		_, err = a.store.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return Allocation{ID: id}
		}
		if err != nil {
			return a.fallback(prefix, err)
		}
		a.logger.Warn("allocated identifier already taken, re-scanning", "id", id, "attempt", attempt+1)
	}

	return a.fallback(prefix, fmt.Errorf("identifier collision persisted after %d scans", allocScanRetries))
}

// nextSequence scans all record ids, filters by the date prefix client-side
// (the store offers no prefix query), and returns max observed sequence + 1.
// With no record for today the sequence starts at 1.
func (a *Allocator) nextSequence(ctx context.Context, prefix string) (int, error) {
	ids, err := a.store.ListIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("scanning record ids: %w", err)
	}

	maxSeq := 0
	for _, id := range ids {
		tail, ok := strings.CutPrefix(id, prefix+"-")
		if !ok {
			continue
		}
		// Timestamp-fallback ids share the prefix but carry a millisecond
		// tail; only 5-digit tails advance the sequence.
		if len(tail) != 5 {
			continue
		}
		n, err := strconv.Atoi(tail)
		if err != nil {
			continue
		}
		if n > maxSeq {
			maxSeq = n
		}
	}

	return maxSeq + 1, nil
}

func (a *Allocator) fallback(prefix string, cause error) Allocation {
	id := prefix + "-" + strconv.FormatInt(a.clock.Now().UnixMilli(), 10)
	a.logger.Warn("identifier allocation degraded to timestamp fallback", "id", id, "cause", cause)
	return Allocation{ID: id, Fallback: true}
}

// datePrefix renders the allocator's date scope as DDMMYYYY.
func (a *Allocator) datePrefix() string {
	now := a.clock.Now()
	return fmt.Sprintf("%02d%02d%04d", now.Day(), int(now.Month()), now.Year())
}
