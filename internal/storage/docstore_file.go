package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"focus-keeper/internal/apperr"
	"focus-keeper/internal/metrics"
	"focus-keeper/internal/userdoc"
)

const (
	docExt     = ".json"
	tempMarker = ".tmp-"
	driverFile = "file"
)

// maxHexKey bounds keys spelled out in hex so the name, plus the temp
// prefix and suffix, stays under NAME_MAX.
const maxHexKey = 64

var plainKey = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// FileStore keeps one JSON file per key inside dir.
// Saves go through a temp file in the same directory followed by a rename,
// so the canonical file is always either the old or the new document.
type FileStore struct {
	dir   string
	clock clockwork.Clock

	// replaced in tests to simulate a crash before publish
	rename func(oldpath, newpath string) error
}

type Option func(*options)

type options struct {
	clock clockwork.Clock
}

// WithClock sets the clock used to stamp default documents and age temp files.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

func buildOptions(opts []Option) options {
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}
	o := buildOptions(opts)
	return &FileStore{dir: dir, clock: o.clock, rename: os.Rename}, nil
}

// ArtifactName maps a key to its file name. Plain keys keep their spelling.
// Other keys up to maxHexKey bytes are hex-encoded behind "~"; longer ones
// become "@" plus their SHA-256. Neither prefix can start a plain key, so
// names of different forms never meet, and every name has a fixed upper
// length.
func ArtifactName(key string) string {
	switch {
	case plainKey.MatchString(key):
		return key + docExt
	case len(key) <= maxHexKey:
		return "~" + hex.EncodeToString([]byte(key)) + docExt
	default:
		sum := sha256.Sum256([]byte(key))
		return "@" + hex.EncodeToString(sum[:]) + docExt
	}
}

func (s *FileStore) Path(key string) string {
	return filepath.Join(s.dir, ArtifactName(key))
}

func (s *FileStore) Load(_ context.Context, key string) (*userdoc.Document, error) {
	if key == "" {
		return nil, apperr.Validation("empty key")
	}
	start := time.Now()
	doc, err := s.load(key)
	observe(driverFile, "load", start, err)
	return doc, err
}

func (s *FileStore) load(key string) (*userdoc.Document, error) {
	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return userdoc.New(key, s.clock.Now()), nil
		}
		return nil, apperr.Storage("load "+key, err)
	}
	return decodeDocument(key, data)
}

func (s *FileStore) Save(_ context.Context, key string, doc *userdoc.Document) error {
	if key == "" {
		return apperr.Validation("empty key")
	}
	start := time.Now()
	err := s.save(key, doc)
	observe(driverFile, "save", start, err)
	return err
}

func (s *FileStore) save(key string, doc *userdoc.Document) error {
	data, err := encodeDocument(key, doc)
	if err != nil {
		return apperr.Storage("encode "+key, err)
	}
	if err := writeAtomic(s.Path(key), data, s.rename); err != nil {
		return apperr.Storage("save "+key, err)
	}
	return nil
}

// SweepTemp removes temp artifacts older than olderThan, measured on the
// store clock. They only exist when a process died between writing and
// publishing a document, and are never visible under a canonical name. Call
// with 0 at startup, before any writer is running.
func (s *FileStore) SweepTemp(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read store dir: %w", err)
	}
	cutoff := s.clock.Now().Add(-olderThan)
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !isTempName(name) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if olderThan > 0 && info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Printf("sweep %s: %v", name, err)
			continue
		}
		removed++
	}
	metrics.TempFilesSwept.Add(float64(removed))
	return removed, nil
}

func (s *FileStore) Close() error { return nil }

func isTempName(name string) bool {
	return strings.HasPrefix(name, ".") && strings.Contains(name, docExt+tempMarker)
}

func encodeDocument(key string, doc *userdoc.Document) ([]byte, error) {
	if doc == nil {
		return nil, errors.New("nil document")
	}
	if doc.UserID != key {
		return nil, fmt.Errorf("document belongs to %q", doc.UserID)
	}
	doc.Normalize()
	return json.MarshalIndent(doc, "", "  ")
}

func decodeDocument(key string, data []byte) (*userdoc.Document, error) {
	var doc userdoc.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, apperr.Storage("decode "+key, err)
	}
	if doc.UserID == "" {
		doc.UserID = key
	}
	if doc.UserID != key {
		return nil, apperr.Storage("decode "+key, fmt.Errorf("document belongs to %q", doc.UserID))
	}
	doc.Normalize()
	return &doc, nil
}

func observe(driver, op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.StoreOpsTotal.WithLabelValues(driver, op, status).Inc()
	metrics.StoreOpDuration.WithLabelValues(driver, op).Observe(time.Since(start).Seconds())
}
