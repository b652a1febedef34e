// Package jsonl appends scan results to local JSON-line logs, one document
// per line. The found log carries full key material and is created with
// owner-only permissions; the empty log holds only redacted records.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/didinska21/wallet-hunter/internal/domain/model"
	"github.com/didinska21/wallet-hunter/internal/metrics"
	"github.com/didinska21/wallet-hunter/internal/store"
)

const (
	sink = "jsonl"

	logFound = "found"
	logEmpty = "empty"

	// found lines carry key material; keep them owner-readable only.
	foundFileMode = 0o600
	emptyFileMode = 0o644
)

// Store owns the two result logs. Each log has its own lock, so found and
// empty appends never contend with each other.
type Store struct {
	foundPath string
	emptyPath string
	logger    *slog.Logger

	foundMu sync.Mutex
	emptyMu sync.Mutex
}

func New(foundPath, emptyPath string, logger *slog.Logger) *Store {
	return &Store{
		foundPath: foundPath,
		emptyPath: emptyPath,
		logger:    logger.With("component", "store.jsonl"),
	}
}

func (s *Store) SaveFound(ctx context.Context, rec model.WalletRecord) error {
	s.foundMu.Lock()
	defer s.foundMu.Unlock()
	return appendLine(s.foundPath, logFound, foundFileMode, rec)
}

func (s *Store) SaveEmpty(ctx context.Context, rec model.EmptyRecord) error {
	s.emptyMu.Lock()
	defer s.emptyMu.Unlock()
	return appendLine(s.emptyPath, logEmpty, emptyFileMode, rec)
}

// CountFound reports the number of records in the found log. A missing
// file counts as zero.
func (s *Store) CountFound(_ context.Context) (int64, error) {
	s.foundMu.Lock()
	defer s.foundMu.Unlock()
	return countLines(s.foundPath)
}

// CountEmpty reports the number of records in the empty log.
func (s *Store) CountEmpty(_ context.Context) (int64, error) {
	s.emptyMu.Lock()
	defer s.emptyMu.Unlock()
	return countLines(s.emptyPath)
}

// ReadFound decodes every record in the found log, in append order. A
// missing file yields an empty slice. Undelivered markers appear as
// separate records, exactly as appended.
func (s *Store) ReadFound(_ context.Context) ([]model.WalletRecord, error) {
	s.foundMu.Lock()
	defer s.foundMu.Unlock()

	f, err := os.Open(s.foundPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open found log: %w", err)
	}
	defer f.Close()

	var records []model.WalletRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec model.WalletRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("decode found log line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan found log: %w", err)
	}
	return records, nil
}

// RecentFound returns the newest found records in sanitized form. The log
// is append-only, so recency is read from the tail.
func (s *Store) RecentFound(ctx context.Context, limit int) ([]store.FoundSummary, error) {
	records, err := s.ReadFound(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > len(records) {
		limit = len(records)
	}

	out := make([]store.FoundSummary, 0, limit)
	for i := len(records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, store.SummaryOf(records[i]))
	}
	return out, nil
}

// FoundPath returns the found log location for startup logging.
func (s *Store) FoundPath() string { return s.foundPath }

// EmptyPath returns the empty log location for startup logging.
func (s *Store) EmptyPath() string { return s.emptyPath }

func appendLine(path, logName string, mode os.FileMode, v any) error {
	start := time.Now()

	data, err := json.Marshal(v)
	if err != nil {
		metrics.StoreAppendFailures.WithLabelValues(logName, sink).Inc()
		return fmt.Errorf("marshal %s record: %w", logName, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, mode)
	if err != nil {
		metrics.StoreAppendFailures.WithLabelValues(logName, sink).Inc()
		return fmt.Errorf("open %s log: %w", logName, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		metrics.StoreAppendFailures.WithLabelValues(logName, sink).Inc()
		return fmt.Errorf("append %s record: %w", logName, err)
	}

	metrics.StoreAppendsTotal.WithLabelValues(logName, sink).Inc()
	metrics.StoreAppendLatency.WithLabelValues(logName, sink).Observe(time.Since(start).Seconds())
	return nil
}

func countLines(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var count int64
	for scanner.Scan() {
		if len(scanner.Bytes()) > 0 {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan log: %w", err)
	}
	return count, nil
}
