package audit_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"fieldaudit/internal/audit"
	"fieldaudit/internal/encryption"
	"fieldaudit/internal/testutil"
)

func TestUploader_Upload(t *testing.T) {
	t.Run("stores the payload under the owner-scoped key", func(t *testing.T) {
		blob := testutil.NewTestBlobStore()
		resolver := newFakeResolver()
		resolver.register("file:///tmp/photo.jpg", []byte("jpeg-bytes"))
		sleeper := testutil.NewStubSleeper()

		u := audit.NewUploader(blob, resolver, nil, audit.NewNopLogger(), sleeper)

		url, err := u.Upload(context.Background(), "file:///tmp/photo.jpg", "user-1", "15012024-00001")
		if err != nil {
			t.Fatalf("Upload() error = %v", err)
		}
		if url == "" {
			t.Fatal("Upload() returned empty url")
		}

		key, ok := blob.KeyFromURL(url)
		if !ok {
			t.Fatalf("KeyFromURL(%q) not resolvable", url)
		}
		if want := "owners/user-1/15012024-00001.jpg"; key != want {
			t.Errorf("stored key = %q, want %q", key, want)
		}

		var data bytes.Buffer
		if err := blob.Get(context.Background(), key, &data); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !bytes.Equal(data.Bytes(), []byte("jpeg-bytes")) {
			t.Errorf("stored payload = %q, want %q", data.Bytes(), "jpeg-bytes")
		}

		if len(sleeper.Slept) != 0 {
			t.Errorf("slept %v on first-attempt success, want no sleeps", sleeper.Slept)
		}
	})

	t.Run("retries with exponential backoff and recovers", func(t *testing.T) {
		blob := testutil.NewTestBlobStore()
		resolver := newFakeResolver()
		resolver.register("mem://photo", []byte("payload"))
		resolver.failTimes = 2
		sleeper := testutil.NewStubSleeper()

		u := audit.NewUploader(blob, resolver, nil, audit.NewNopLogger(), sleeper)

		if _, err := u.Upload(context.Background(), "mem://photo", "u", "r"); err != nil {
			t.Fatalf("Upload() error = %v", err)
		}

		want := []time.Duration{2 * time.Second, 4 * time.Second}
		if len(sleeper.Slept) != len(want) {
			t.Fatalf("slept %v, want %v", sleeper.Slept, want)
		}
		for i := range want {
			if sleeper.Slept[i] != want[i] {
				t.Errorf("backoff[%d] = %v, want %v", i, sleeper.Slept[i], want[i])
			}
		}
		if resolver.calls != 3 {
			t.Errorf("source resolved %d times, want 3", resolver.calls)
		}
	})

	t.Run("exhausted budget wraps the last error", func(t *testing.T) {
		blob := testutil.NewTestBlobStore()
		resolver := newFakeResolver()
		resolver.failTimes = 100
		sleeper := testutil.NewStubSleeper()

		u := audit.NewUploader(blob, resolver, nil, audit.NewNopLogger(), sleeper)

		_, err := u.Upload(context.Background(), "mem://gone", "u", "r")
		if err == nil {
			t.Fatal("Upload() expected error")
		}

		var uerr *audit.UploadError
		if !errors.As(err, &uerr) {
			t.Fatalf("Upload() error = %v, want *UploadError", err)
		}
		if uerr.Attempts != audit.DefaultMaxAttempts {
			t.Errorf("UploadError.Attempts = %d, want %d", uerr.Attempts, audit.DefaultMaxAttempts)
		}
		// Backoff between attempts only, not after the last one.
		if len(sleeper.Slept) != audit.DefaultMaxAttempts-1 {
			t.Errorf("slept %d times, want %d", len(sleeper.Slept), audit.DefaultMaxAttempts-1)
		}
	})

	t.Run("empty payload fails immediately without retry", func(t *testing.T) {
		blob := testutil.NewTestBlobStore()
		resolver := newFakeResolver()
		resolver.register("mem://empty", []byte{})
		sleeper := testutil.NewStubSleeper()

		u := audit.NewUploader(blob, resolver, nil, audit.NewNopLogger(), sleeper)

		_, err := u.Upload(context.Background(), "mem://empty", "u", "r")
		if !errors.Is(err, audit.ErrEmptyPayload) {
			t.Fatalf("Upload() error = %v, want ErrEmptyPayload", err)
		}
		if resolver.calls != 1 {
			t.Errorf("source resolved %d times, want 1", resolver.calls)
		}
		if len(sleeper.Slept) != 0 {
			t.Errorf("slept %v for empty payload, want no sleeps", sleeper.Slept)
		}
	})

	t.Run("respects a configured attempt budget", func(t *testing.T) {
		blob := testutil.NewTestBlobStore()
		resolver := newFakeResolver()
		resolver.failTimes = 100
		sleeper := testutil.NewStubSleeper()

		u := audit.NewUploader(blob, resolver, nil, audit.NewNopLogger(), sleeper)
		u.SetMaxAttempts(5)

		_, err := u.Upload(context.Background(), "mem://gone", "u", "r")
		var uerr *audit.UploadError
		if !errors.As(err, &uerr) {
			t.Fatalf("Upload() error = %v, want *UploadError", err)
		}
		if uerr.Attempts != 5 {
			t.Errorf("UploadError.Attempts = %d, want 5", uerr.Attempts)
		}
	})

	t.Run("encrypts the payload when an encryptor is configured", func(t *testing.T) {
		blob := testutil.NewTestBlobStore()
		resolver := newFakeResolver()
		resolver.register("mem://photo", []byte("plaintext"))
		enc := encryption.NewTestEncryptor()

		u := audit.NewUploader(blob, resolver, enc, audit.NewNopLogger(), testutil.NewStubSleeper())

		url, err := u.Upload(context.Background(), "mem://photo", "u", "r")
		if err != nil {
			t.Fatalf("Upload() error = %v", err)
		}

		key, _ := blob.KeyFromURL(url)
		var stored bytes.Buffer
		if err := blob.Get(context.Background(), key, &stored); err != nil {
			t.Fatalf("Get() error = %v", err)
		}

		if bytes.Equal(stored.Bytes(), []byte("plaintext")) {
			t.Fatal("stored payload equals plaintext, want ciphertext")
		}

		dctx, _ := enc.Unlock("")
		var out bytes.Buffer
		if err := dctx.Decrypt(&stored, &out); err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if out.String() != "plaintext" {
			t.Errorf("decrypted payload = %q, want %q", out.String(), "plaintext")
		}
	})
}

func TestUploader_IsReachable(t *testing.T) {
	resolver := newFakeResolver()
	resolver.register("mem://known", []byte("x"))

	u := audit.NewUploader(testutil.NewTestBlobStore(), resolver, nil, audit.NewNopLogger(), testutil.NewStubSleeper())

	if !u.IsReachable(context.Background(), "mem://known") {
		t.Error("IsReachable(known) = false, want true")
	}
	if u.IsReachable(context.Background(), "mem://unknown") {
		t.Error("IsReachable(unknown) = true, want false")
	}
}
