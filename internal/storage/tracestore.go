package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/tabtrace/internal/trace"
)

// ErrNotFound is returned when no trace is stored under the requested id.
var ErrNotFound = errors.New("trace not found")

// ErrInvalidID is returned for ids that are not canonical UUID strings.
var ErrInvalidID = errors.New("invalid trace id")

const metaSuffix = ".meta.json"

// TraceMeta describes a stored trace.
type TraceMeta struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	URL        string    `json:"url,omitempty"`
	Label      string    `json:"label,omitempty"`
	SizeBytes  int       `json:"size_bytes"`
	EventCount int       `json:"event_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// TraceStore keeps raw trace documents on disk next to a metadata sidecar.
type TraceStore struct {
	dir string
	mu  sync.RWMutex
}

// NewTraceStore creates a TraceStore and ensures the directory exists.
func NewTraceStore(dir string) (*TraceStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("trace store: mkdir %s: %w", dir, err)
	}
	return &TraceStore{dir: dir}, nil
}

// NewID returns a fresh trace id.
func NewID() string {
	return uuid.NewString()
}

func validateID(id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != id {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func (s *TraceStore) rawPath(id string) string  { return filepath.Join(s.dir, id+".json") }
func (s *TraceStore) metaPath(id string) string { return filepath.Join(s.dir, id+metaSuffix) }

// Save writes the raw trace and its metadata sidecar. A zero CreatedAt is
// set to the current time.
func (s *TraceStore) Save(meta TraceMeta, raw []byte) (TraceMeta, error) {
	if err := validateID(meta.ID); err != nil {
		return TraceMeta{}, err
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	meta.SizeBytes = len(raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.rawPath(meta.ID), raw, 0o644); err != nil {
		return TraceMeta{}, fmt.Errorf("trace store: write trace: %w", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		_ = os.Remove(s.rawPath(meta.ID))
		return TraceMeta{}, fmt.Errorf("trace store: marshal meta: %w", err)
	}
	if err := os.WriteFile(s.metaPath(meta.ID), data, 0o644); err != nil {
		_ = os.Remove(s.rawPath(meta.ID))
		return TraceMeta{}, fmt.Errorf("trace store: write meta: %w", err)
	}

	slog.Debug("trace stored", "id", meta.ID, "size_bytes", meta.SizeBytes, "events", meta.EventCount)
	return meta, nil
}

// Get reads trace metadata by id.
func (s *TraceStore) Get(id string) (TraceMeta, error) {
	if err := validateID(id); err != nil {
		return TraceMeta{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readMeta(id)
}

func (s *TraceStore) readMeta(id string) (TraceMeta, error) {
	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return TraceMeta{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return TraceMeta{}, fmt.Errorf("trace store: read meta: %w", err)
	}
	var meta TraceMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return TraceMeta{}, fmt.Errorf("trace store: unmarshal meta: %w", err)
	}
	return meta, nil
}

// List returns all stored traces, newest first. Unreadable sidecars are
// skipped.
func (s *TraceStore) List() ([]TraceMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+metaSuffix))
	if err != nil {
		return nil, fmt.Errorf("trace store: glob: %w", err)
	}

	metas := make([]TraceMeta, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Debug("trace store: skipping unreadable meta", "path", path, "error", err)
			continue
		}
		var meta TraceMeta
		if err := json.Unmarshal(data, &meta); err != nil {
			slog.Debug("trace store: skipping corrupt meta", "path", path, "error", err)
			continue
		}
		metas = append(metas, meta)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})
	return metas, nil
}

// ReadRaw returns the stored trace document unchanged.
func (s *TraceStore) ReadRaw(id string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.rawPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("trace store: read trace: %w", err)
	}
	return data, nil
}

// ReadTrace parses the stored trace document.
func (s *TraceStore) ReadTrace(id string) (*trace.Trace, error) {
	data, err := s.ReadRaw(id)
	if err != nil {
		return nil, err
	}
	tr, err := trace.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("trace store: parse %s: %w", id, err)
	}
	return tr, nil
}

// Delete removes the trace and its sidecar.
func (s *TraceStore) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.readMeta(id); err != nil {
		return err
	}
	if err := os.Remove(s.rawPath(id)); err != nil && !os.IsNotExist(err) {
		slog.Debug("trace file cleanup failed", "id", id, "error", err)
	}
	if err := os.Remove(s.metaPath(id)); err != nil {
		return fmt.Errorf("trace store: remove meta: %w", err)
	}
	return nil
}
