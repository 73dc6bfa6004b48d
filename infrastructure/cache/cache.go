// Package cache stores generation responses keyed by the content that
// produced them, so identical requests skip the backend.
package cache

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

// PrefixBytes is how much of each part's content contributes to a key.
// The full content length is always included.
const PrefixBytes = 4096

// Key is the hex BLAKE3 digest of a request's inputs.
type Key string

// Part is one (path, content) pair of a request, in request order.
type Part struct {
	Path    string
	Content string
}

// KeyInput is everything that determines a cached response.
type KeyInput struct {
	TemplateID string
	Model      string
	Language   string
	RepoPath   string
	Parts      []Part
}

// NewKey hashes in. Fields are length-prefixed so that no two inputs share
// an encoding.
func NewKey(in KeyInput) Key {
	h := blake3.New()
	writeField(h, in.TemplateID)
	writeField(h, in.Model)
	writeField(h, in.Language)
	writeField(h, in.RepoPath)

	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(in.Parts)))
	_, _ = h.Write(n[:])

	for _, p := range in.Parts {
		writeField(h, p.Path)
		binary.BigEndian.PutUint64(n[:], uint64(len(p.Content)))
		_, _ = h.Write(n[:])
		content := p.Content
		if len(content) > PrefixBytes {
			content = content[:PrefixBytes]
		}
		writeField(h, content)
	}

	return Key(hex.EncodeToString(h.Sum(nil)))
}

func writeField(h *blake3.Hasher, s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	_, _ = h.Write(n[:])
	_, _ = h.WriteString(s)
}

// Entry is a cached response.
type Entry struct {
	Content      string    `json:"content"`
	Model        string    `json:"model"`
	FinishReason string    `json:"finish_reason"`
	CreatedAt    time.Time `json:"created_at"`
}

// Cache looks up and stores responses.
type Cache interface {
	Get(ctx context.Context, key Key) (Entry, bool)
	Put(ctx context.Context, key Key, entry Entry) error
}

// Disk is a write-through cache of one JSON file per key under a directory.
// Unreadable or corrupt files count as misses.
type Disk struct {
	dir string
}

// NewDisk creates a Disk cache rooted at dir, creating it if needed.
func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Disk{dir: dir}, nil
}

func (d *Disk) path(key Key) string {
	return filepath.Join(d.dir, string(key)+".json")
}

// Get implements Cache.
func (d *Disk) Get(_ context.Context, key Key) (Entry, bool) {
	data, err := os.ReadFile(d.path(key))
	if err != nil {
		return Entry{}, false
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false
	}
	return e, true
}

// Put implements Cache. The file is written to a temporary name and renamed
// so readers never see a partial entry.
func (d *Disk) Put(_ context.Context, key Key, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(d.dir, string(key)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), d.path(key)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// Memory is an in-process cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[Key]Entry
}

// NewMemory creates an empty Memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[Key]Entry)}
}

// Get implements Cache.
func (m *Memory) Get(_ context.Context, key Key) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return e, ok
}

// Put implements Cache.
func (m *Memory) Put(_ context.Context, key Key, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry
	return nil
}

// Len returns the number of cached entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Noop never hits and discards writes.
type Noop struct{}

// Get implements Cache.
func (Noop) Get(context.Context, Key) (Entry, bool) { return Entry{}, false }

// Put implements Cache.
func (Noop) Put(context.Context, Key, Entry) error { return nil }

var (
	_ Cache = (*Disk)(nil)
	_ Cache = (*Memory)(nil)
	_ Cache = Noop{}
)
