package csvbackend

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/FranksOps/perspicacity/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

// headers defines the CSV column order
var headers = []string{
	"id",
	"query",
	"url",
	"identity",
	"strategy",
	"reason",
	"status_code",
	"detection_src",
	"content_length",
	"duration_ms",
	"created_at",
	"error",
}

// New creates a new CSV-backed storage.Backend.
func New(filePath string) (storage.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filePath, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", filePath, err)
	}

	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("flush header: %w", err)
		}
	}

	return &csvBackend{
		file: f,
	}, nil
}

func (b *csvBackend) Save(ctx context.Context, a *storage.Attempt) error {
	record := []string{
		a.ID,
		a.Query,
		a.URL,
		a.Identity,
		a.Strategy,
		a.Reason,
		strconv.Itoa(a.StatusCode),
		a.DetectionSrc,
		strconv.Itoa(a.ContentLength),
		strconv.FormatInt(a.Duration.Milliseconds(), 10),
		a.CreatedAt.Format(time.RFC3339Nano),
		a.Error,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	w := csv.NewWriter(b.file)
	if err := w.Write(record); err != nil {
		return fmt.Errorf("write attempt %s: %w", a.ID, err)
	}
	w.Flush()

	if err := w.Error(); err != nil {
		return fmt.Errorf("flush attempt %s: %w", a.ID, err)
	}

	return nil
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Attempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind: %w", err)
	}
	defer func() {
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)

	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return []*storage.Attempt{}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	var matched []*storage.Attempt
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		if len(record) != len(headers) {
			continue // skip malformed rows
		}

		a := parseRecord(record)
		if filter.Matches(a) {
			matched = append(matched, a)
		}
	}

	return filter.Window(matched), nil
}

func parseRecord(record []string) *storage.Attempt {
	statusCode, _ := strconv.Atoi(record[6])
	contentLength, _ := strconv.Atoi(record[8])
	durationMs, _ := strconv.ParseInt(record[9], 10, 64)
	createdAt, _ := time.Parse(time.RFC3339Nano, record[10])

	return &storage.Attempt{
		ID:            record[0],
		Query:         record[1],
		URL:           record[2],
		Identity:      record[3],
		Strategy:      record[4],
		Reason:        record[5],
		StatusCode:    statusCode,
		DetectionSrc:  record[7],
		ContentLength: contentLength,
		Duration:      time.Duration(durationMs) * time.Millisecond,
		CreatedAt:     createdAt,
		Error:         record[11],
	}
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
