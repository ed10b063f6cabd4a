package csvbackend

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/perspicacity/internal/storage"
)

func TestCSVBackend(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "attempts.csv")

	b, err := New(filePath)
	if err != nil {
		t.Fatalf("Failed to create CSV backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	a1 := &storage.Attempt{
		ID:            "csv1",
		Query:         "best pizza, in \"town\"",
		URL:           "http://example.com/1",
		Identity:      "Mozilla/5.0 (X11; Linux x86_64)",
		Strategy:      "structured",
		Reason:        "ok",
		StatusCode:    200,
		ContentLength: 1234,
		Duration:      15 * time.Millisecond,
		CreatedAt:     now.Add(-time.Hour),
	}
	a2 := &storage.Attempt{
		ID:           "csv2",
		Query:        "best pizza, in \"town\"",
		URL:          "http://example.com/2",
		Strategy:     "raw",
		Reason:       "denied",
		StatusCode:   403,
		DetectionSrc: "Akamai",
		CreatedAt:    now,
		Error:        "http status 403\nsecond line",
	}

	for _, a := range []*storage.Attempt{a1, a2} {
		if err := b.Save(ctx, a); err != nil {
			t.Fatalf("Failed to save %s: %v", a.ID, err)
		}
	}

	all, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(all))
	}
	if all[0].ID != "csv2" {
		t.Errorf("Expected newest first, got %s", all[0].ID)
	}

	got := all[1]
	if got.Query != a1.Query || got.Identity != a1.Identity || got.ContentLength != a1.ContentLength {
		t.Errorf("Round trip mismatch: %+v", got)
	}
	if got.Duration != a1.Duration || !got.CreatedAt.Equal(a1.CreatedAt) {
		t.Errorf("Expected duration %v at %v, got %v at %v", a1.Duration, a1.CreatedAt, got.Duration, got.CreatedAt)
	}
	if all[0].Error != a2.Error || all[0].DetectionSrc != "Akamai" {
		t.Errorf("Expected multi-line error to survive, got %q", all[0].Error)
	}

	denied, err := b.Query(ctx, storage.Filter{Reason: "denied", URL: "http://example.com/2"})
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(denied) != 1 {
		t.Errorf("Expected 1 denied result, got %d", len(denied))
	}

	paged, err := b.Query(ctx, storage.Filter{Offset: 1})
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(paged) != 1 || paged[0].ID != "csv1" {
		t.Errorf("Expected csv1 after offset, got %d results", len(paged))
	}
}

func TestCSVBackend_HeaderWrittenOnce(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "attempts.csv")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		b, err := New(filePath)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if err := b.Save(ctx, &storage.Attempt{ID: "x", Reason: "ok", CreatedAt: time.Now()}); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if err := b.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "id,query,url"); n != 1 {
		t.Errorf("Expected header exactly once, found %d", n)
	}
}

func TestCSVBackend_SkipsMalformedRows(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "attempts.csv")
	content := strings.Join(headers, ",") + "\nonly,three,fields\n"
	if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	b, err := New(filePath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	// csv.Reader enforces a consistent field count by default, so the short row
	// surfaces as a read error rather than a silent skip.
	if _, err := b.Query(context.Background(), storage.Filter{}); err == nil {
		t.Errorf("Expected an error for a row with the wrong field count")
	}
}
