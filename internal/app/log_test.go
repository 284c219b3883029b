package app

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestAuditHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name      string
		operation string
		level     slog.Level
		message   string
		attrs     []slog.Attr
		want      string
	}{
		{
			name:      "basic info message",
			operation: "Create",
			level:     slog.LevelInfo,
			message:   "record created",
			want:      "2024-06-15T14:30:45Z\tINFO\tCreate\trecord created\n",
		},
		{
			name:      "warn level",
			operation: "Delete",
			level:     slog.LevelWarn,
			message:   "attachment cleanup failed",
			want:      "2024-06-15T14:30:45Z\tWARN\tDelete\tattachment cleanup failed\n",
		},
		{
			name:      "with record attrs",
			operation: "Create",
			level:     slog.LevelInfo,
			message:   "record created",
			attrs:     []slog.Attr{slog.String("id", "15012024-00001"), slog.Int("attempt", 2)},
			want:      "2024-06-15T14:30:45Z\tINFO\tCreate\trecord created\tid=15012024-00001\tattempt=2\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &auditHandler{w: &buf, operation: tt.operation}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestAuditHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &auditHandler{w: &buf, operation: "Create"}

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "uploader")}).(*auditHandler)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "upload", 0)
	r.AddAttrs(slog.String("key", "owners/u1/r1.jpg"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=uploader") {
		t.Errorf("expected pre-set attr component=uploader, got: %q", got)
	}
	if !strings.Contains(got, "key=owners/u1/r1.jpg") {
		t.Errorf("expected record attr, got: %q", got)
	}
}

func TestAuditHandler_WithAttrs_doesNotMutateOriginal(t *testing.T) {
	var buf bytes.Buffer
	h := &auditHandler{w: &buf, operation: "op", attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("b", "2")}).(*auditHandler)

	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}
	if len(h2.attrs) != 2 {
		t.Errorf("new handler attrs: got %d, want 2", len(h2.attrs))
	}
}

func TestAuditHandler_Enabled(t *testing.T) {
	h := &auditHandler{}
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if !h.Enabled(context.Background(), level) {
			t.Errorf("Enabled(%v) = false, want true", level)
		}
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()

	logger, f, err := newLogger(dir, "Create")
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	if logger == nil {
		t.Fatal("newLogger() returned nil logger")
	}
	if f == nil {
		t.Fatal("newLogger() returned nil file")
	}
}
