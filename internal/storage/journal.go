package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"focus-keeper/internal/metrics"
)

// FileRecorder is the transition journal: one JSON event per line, appended
// to a file that stays open for the recorder's lifetime.
type FileRecorder struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewFileRecorder opens or creates the journal at path. A torn last line
// left by a crash is terminated so the next event starts on its own line.
func NewFileRecorder(path string) (*FileRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure journal dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := terminateTail(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to repair journal tail: %w", err)
	}
	return &FileRecorder{path: path, f: f}, nil
}

func terminateTail(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	_, err = f.Write([]byte{'\n'})
	return err
}

// Append writes the event as a single line and syncs it.
func (r *FileRecorder) Append(event Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return errors.New("journal closed")
	}
	if _, err := r.f.Write(line); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if err := r.f.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	return nil
}

// LoadEvents returns every decodable event in file order. Undecodable lines
// are skipped and counted.
func (r *FileRecorder) LoadEvents() ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var (
		events  []Event
		skipped int
	)
	br := bufio.NewReader(f)
	for {
		line, err := br.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			var ev Event
			if json.Unmarshal(line, &ev) == nil {
				events = append(events, ev)
			} else {
				skipped++
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read journal: %w", err)
		}
	}
	if skipped > 0 {
		metrics.JournalLinesSkipped.Add(float64(skipped))
		log.Printf("⚠️ journal %s: skipped %d undecodable lines", r.path, skipped)
	}
	return events, nil
}

func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}
