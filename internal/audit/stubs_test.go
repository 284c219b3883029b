package audit_test

import (
	"context"
	"fmt"
	"sync"

	"fieldaudit/internal/audit"
	"fieldaudit/internal/model"
)

// fakeRecordStore is a map-backed RecordStore with per-call error injection
// for exercising the degraded allocation and deletion paths.
type fakeRecordStore struct {
	mu         sync.Mutex
	records    map[string]*model.AssessmentRecord
	listIDsErr error
	getErr     error
}

var _ audit.RecordStore = (*fakeRecordStore)(nil)

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{records: make(map[string]*model.AssessmentRecord)}
}

func (s *fakeRecordStore) Create(_ context.Context, rec *model.AssessmentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return fmt.Errorf("record %s: %w", rec.ID, audit.ErrDuplicateID)
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *fakeRecordStore) Get(_ context.Context, id string) (*model.AssessmentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, audit.ErrNotFound)
	}
	return rec, nil
}

func (s *fakeRecordStore) ListByOwner(_ context.Context, ownerID string) ([]*model.AssessmentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var recs []*model.AssessmentRecord
	for _, rec := range s.records {
		if rec.OwnerID == ownerID {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

func (s *fakeRecordStore) ListAll(_ context.Context) ([]*model.AssessmentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var recs []*model.AssessmentRecord
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	return recs, nil
}

func (s *fakeRecordStore) ListIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listIDsErr != nil {
		return nil, s.listIDsErr
	}
	var ids []string
	for id := range s.records {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *fakeRecordStore) Update(_ context.Context, id string, patch audit.RecordPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("record %s: %w", id, audit.ErrNotFound)
	}
	return nil
}

func (s *fakeRecordStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("record %s: %w", id, audit.ErrNotFound)
	}
	delete(s.records, id)
	return nil
}

func (s *fakeRecordStore) Close() error { return nil }

// add seeds a record under the given id without going through Create.
func (s *fakeRecordStore) add(id, ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = &model.AssessmentRecord{ID: id, OwnerID: ownerID}
}

// fakeResolver serves registered payloads and can fail a fixed number of
// times before recovering, for retry tests.
type fakeResolver struct {
	mu        sync.Mutex
	data      map[string][]byte
	failTimes int
	calls     int
}

var _ audit.Resolver = (*fakeResolver)(nil)

func newFakeResolver() *fakeResolver {
	return &fakeResolver{data: make(map[string][]byte)}
}

func (r *fakeResolver) register(uri string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[uri] = payload
}

func (r *fakeResolver) Resolve(_ context.Context, uri string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.failTimes > 0 {
		r.failTimes--
		return nil, fmt.Errorf("source %s temporarily unreadable", uri)
	}
	payload, ok := r.data[uri]
	if !ok {
		return nil, fmt.Errorf("source %s not found", uri)
	}
	return payload, nil
}

func (r *fakeResolver) Reachable(_ context.Context, uri string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.data[uri]
	return ok
}

// flakyDeleteStore wraps a RecordStore and fails Delete for selected ids.
type flakyDeleteStore struct {
	audit.RecordStore
	failIDs map[string]bool
}

func (s *flakyDeleteStore) Delete(ctx context.Context, id string) error {
	if s.failIDs[id] {
		return fmt.Errorf("record %s: simulated store outage", id)
	}
	return s.RecordStore.Delete(ctx, id)
}
