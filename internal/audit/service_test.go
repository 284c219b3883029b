package audit_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"fieldaudit/internal/audit"
	"fieldaudit/internal/testutil"
)

func newService(t *testing.T) (*audit.Service, *fakeResolver, audit.BlobStore) {
	t.Helper()
	st := testutil.NewTestStore(t)
	bs := testutil.NewTestBlobStore()
	resolver := newFakeResolver()
	clock := testutil.FixedClock()

	uploader := audit.NewUploader(bs, resolver, nil, audit.NewNopLogger(), testutil.NewStubSleeper())
	svc := audit.NewService(st, st, bs, uploader, audit.NewNopLogger(), clock)
	return svc, resolver, bs
}

func validInput(ref string) audit.CreateInput {
	return audit.CreateInput{
		OwnerID:       "user-1",
		Category:      "roof",
		Element:       "gutter",
		Condition:     2,
		Priority:      4,
		AttachmentRef: ref,
		Notes:         "corroded joints",
	}
}

func TestService_Create(t *testing.T) {
	t.Run("allocates date-scoped id and rewrites the attachment ref", func(t *testing.T) {
		svc, resolver, _ := newService(t)
		resolver.register("file:///tmp/p.jpg", []byte("jpeg"))

		rec, err := svc.Create(context.Background(), validInput("file:///tmp/p.jpg"))
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		if rec.ID != "15012024-00001" {
			t.Errorf("record id = %q, want 15012024-00001", rec.ID)
		}
		if rec.AttachmentRef == "file:///tmp/p.jpg" {
			t.Error("attachment ref was not rewritten to the durable url")
		}
		if !strings.Contains(rec.AttachmentRef, "owners/user-1/15012024-00001.jpg") {
			t.Errorf("attachment ref = %q, want owner-scoped key inside", rec.AttachmentRef)
		}
		if rec.CreatedAt != testutil.FixedClock().Now().UnixMilli() {
			t.Errorf("created at = %d, want clock time", rec.CreatedAt)
		}

		// The persisted record matches the returned one.
		got, err := svc.Get(context.Background(), rec.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.AttachmentRef != rec.AttachmentRef || got.Notes != rec.Notes {
			t.Errorf("Get() = %+v, want %+v", got, rec)
		}
	})

	t.Run("sequences increase within the day", func(t *testing.T) {
		svc, resolver, _ := newService(t)
		resolver.register("mem://a", []byte("a"))
		resolver.register("mem://b", []byte("b"))

		r1, err := svc.Create(context.Background(), validInput("mem://a"))
		if err != nil {
			t.Fatalf("first Create() error = %v", err)
		}
		r2, err := svc.Create(context.Background(), validInput("mem://b"))
		if err != nil {
			t.Fatalf("second Create() error = %v", err)
		}
		if r1.ID != "15012024-00001" || r2.ID != "15012024-00002" {
			t.Errorf("ids = %q, %q, want -00001 then -00002", r1.ID, r2.ID)
		}
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		svc, resolver, _ := newService(t)
		resolver.register("mem://p", []byte("x"))

		tests := []struct {
			name string
			in   audit.CreateInput
		}{
			{"missing owner", audit.CreateInput{AttachmentRef: "mem://p", Condition: 3, Priority: 3}},
			{"missing attachment", audit.CreateInput{OwnerID: "u", Condition: 3, Priority: 3}},
			{"condition too low", audit.CreateInput{OwnerID: "u", AttachmentRef: "mem://p", Condition: 0, Priority: 3}},
			{"priority too high", audit.CreateInput{OwnerID: "u", AttachmentRef: "mem://p", Condition: 3, Priority: 6}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := svc.Create(context.Background(), tt.in); err == nil {
					t.Error("Create() expected validation error")
				}
			})
		}
	})

	t.Run("upload failure leaves no metadata behind", func(t *testing.T) {
		svc, resolver, _ := newService(t)
		resolver.failTimes = 100

		_, err := svc.Create(context.Background(), validInput("mem://unreachable"))
		if err == nil {
			t.Fatal("Create() expected error")
		}
		var uerr *audit.UploadError
		if !errors.As(err, &uerr) {
			t.Fatalf("Create() error = %v, want *UploadError", err)
		}

		recs, err := svc.ListByOwner(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("ListByOwner() error = %v", err)
		}
		if len(recs) != 0 {
			t.Errorf("found %d records after failed upload, want 0", len(recs))
		}
	})
}

func TestService_Delete(t *testing.T) {
	create := func(t *testing.T, svc *audit.Service, resolver *fakeResolver, ref string) string {
		t.Helper()
		resolver.register(ref, []byte("payload"))
		rec, err := svc.Create(context.Background(), validInput(ref))
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		return rec.ID
	}

	t.Run("removes metadata and attachment", func(t *testing.T) {
		svc, resolver, bs := newService(t)
		id := create(t, svc, resolver, "mem://p")

		res, err := svc.Delete(context.Background(), id)
		if err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if !res.MetadataDeleted {
			t.Error("MetadataDeleted = false, want true")
		}
		if res.Attachment != audit.AttachmentDeleted {
			t.Errorf("Attachment = %v, want deleted", res.Attachment)
		}

		if _, err := svc.Get(context.Background(), id); !errors.Is(err, audit.ErrNotFound) {
			t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
		}
		blobs, _ := bs.List(context.Background(), audit.OwnerPrefix("user-1"))
		if len(blobs) != 0 {
			t.Errorf("found %d blobs after delete, want 0", len(blobs))
		}
	})

	t.Run("unknown id fails without touching anything", func(t *testing.T) {
		svc, _, _ := newService(t)
		if _, err := svc.Delete(context.Background(), "15012024-99999"); !errors.Is(err, audit.ErrNotFound) {
			t.Errorf("Delete() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("already-missing attachment counts as success", func(t *testing.T) {
		svc, resolver, bs := newService(t)
		id := create(t, svc, resolver, "mem://p")

		// Remove the blob out-of-band.
		if err := bs.Delete(context.Background(), audit.AttachmentKey("user-1", id)); err != nil {
			t.Fatalf("blob Delete() error = %v", err)
		}

		res, err := svc.Delete(context.Background(), id)
		if err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if res.Attachment != audit.AttachmentMissing {
			t.Errorf("Attachment = %v, want missing", res.Attachment)
		}
	})

	t.Run("unparsable ref falls back to the deterministic key", func(t *testing.T) {
		svc, resolver, bs := newService(t)
		id := create(t, svc, resolver, "mem://p")

		// Corrupt the stored reference so KeyFromURL cannot resolve it.
		garbage := "https://example.invalid/not-a-vault-url"
		if err := svc.Update(context.Background(), id, audit.RecordPatch{AttachmentRef: &garbage}); err != nil {
			t.Fatalf("Update() error = %v", err)
		}

		res, err := svc.Delete(context.Background(), id)
		if err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if res.Attachment != audit.AttachmentDeleted {
			t.Errorf("Attachment = %v, want deleted via fallback key", res.Attachment)
		}
		blobs, _ := bs.List(context.Background(), audit.OwnerPrefix("user-1"))
		if len(blobs) != 0 {
			t.Errorf("found %d blobs after fallback delete, want 0", len(blobs))
		}
	})
}

func TestService_Clear(t *testing.T) {
	t.Run("clears one owner and leaves others intact", func(t *testing.T) {
		svc, resolver, _ := newService(t)
		resolver.register("mem://p", []byte("x"))

		for i := 0; i < 3; i++ {
			if _, err := svc.Create(context.Background(), validInput("mem://p")); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
		}
		other := validInput("mem://p")
		other.OwnerID = "user-2"
		if _, err := svc.Create(context.Background(), other); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		res, err := svc.ClearOwner(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("ClearOwner() error = %v", err)
		}
		if res.Deleted != 3 || res.Failed != 0 {
			t.Errorf("ClearOwner() = %+v, want Deleted=3 Failed=0", res)
		}

		remaining, _ := svc.ListByOwner(context.Background(), "user-2")
		if len(remaining) != 1 {
			t.Errorf("user-2 has %d records after ClearOwner(user-1), want 1", len(remaining))
		}
	})

	t.Run("counts partial failures instead of aborting", func(t *testing.T) {
		st := testutil.NewTestStore(t)
		bs := testutil.NewTestBlobStore()
		resolver := newFakeResolver()
		resolver.register("mem://p", []byte("x"))

		uploader := audit.NewUploader(bs, resolver, nil, audit.NewNopLogger(), testutil.NewStubSleeper())
		flaky := &flakyDeleteStore{RecordStore: st, failIDs: map[string]bool{"15012024-00002": true}}
		svc := audit.NewService(flaky, st, bs, uploader, audit.NewNopLogger(), testutil.FixedClock())

		for i := 0; i < 3; i++ {
			if _, err := svc.Create(context.Background(), validInput("mem://p")); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
		}

		res, err := svc.ClearOwner(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("ClearOwner() error = %v", err)
		}
		if res.Deleted != 2 || res.Failed != 1 {
			t.Errorf("ClearOwner() = %+v, want Deleted=2 Failed=1", res)
		}
	})

	t.Run("clear all spans owners", func(t *testing.T) {
		svc, resolver, _ := newService(t)
		resolver.register("mem://p", []byte("x"))

		for _, owner := range []string{"user-1", "user-2"} {
			in := validInput("mem://p")
			in.OwnerID = owner
			if _, err := svc.Create(context.Background(), in); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
		}

		res, err := svc.ClearAll(context.Background())
		if err != nil {
			t.Fatalf("ClearAll() error = %v", err)
		}
		if res.Deleted != 2 {
			t.Errorf("ClearAll() Deleted = %d, want 2", res.Deleted)
		}
		all, _ := svc.ListAll(context.Background())
		if len(all) != 0 {
			t.Errorf("%d records remain after ClearAll, want 0", len(all))
		}
	})
}

func TestService_Update(t *testing.T) {
	svc, resolver, _ := newService(t)
	resolver.register("mem://p", []byte("x"))

	rec, err := svc.Create(context.Background(), validInput("mem://p"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("empty patch is a no-op", func(t *testing.T) {
		if err := svc.Update(context.Background(), rec.ID, audit.RecordPatch{}); err != nil {
			t.Errorf("Update() empty patch error = %v", err)
		}
	})

	t.Run("patch changes only named fields", func(t *testing.T) {
		notes := "re-inspected, worse than reported"
		cond := 1
		if err := svc.Update(context.Background(), rec.ID, audit.RecordPatch{Notes: &notes, Condition: &cond}); err != nil {
			t.Fatalf("Update() error = %v", err)
		}

		got, err := svc.Get(context.Background(), rec.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Notes != notes || got.Condition != 1 {
			t.Errorf("patched record = notes %q cond %d, want %q / 1", got.Notes, got.Condition, notes)
		}
		if got.Priority != rec.Priority || got.OwnerID != rec.OwnerID {
			t.Error("unpatched fields changed")
		}
	})
}

func TestService_UpdateProfileRole(t *testing.T) {
	svc, _, _ := newService(t)
	if err := svc.UpdateProfileRole(context.Background(), "u1", "superuser"); err == nil {
		t.Error("UpdateProfileRole() with unknown role expected error")
	}
}
