package notify

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WatermarkStore persists the single read/unread boundary timestamp for one
// (user, device) pair. It lives outside the server store on purpose: the
// boundary is per profile and never synced across devices.
type WatermarkStore interface {
	Read() (time.Time, bool, error)
	Write(t time.Time) error
}

// FileStore keeps the watermark as one RFC3339 line in the user's profile
// directory.
type FileStore struct {
	path string
}

func NewFileStore(dir, userName string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create watermark dir: %w", err)
	}
	return &FileStore{path: filepath.Join(dir, watermarkFileName(userName))}, nil
}

// watermarkFileName maps an actor name to a single safe path element. The
// name comes from an untrusted token claim, so anything outside a small
// charset is replaced rather than allowed to form separators or dot dirs.
func watermarkFileName(userName string) string {
	var b strings.Builder
	for _, r := range userName {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := b.String()
	if name == "" {
		name = "anonymous"
	}
	return "watermark-" + name
}

func (s *FileStore) Read() (time.Time, bool, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read watermark: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data)))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt watermark %q: %w", string(data), err)
	}
	return t, true, nil
}

func (s *FileStore) Write(t time.Time) error {
	line := t.UTC().Format(time.RFC3339Nano) + "\n"
	if err := os.WriteFile(s.path, []byte(line), 0o644); err != nil {
		return fmt.Errorf("failed to write watermark: %w", err)
	}
	return nil
}

// MemoryStore is an in-process store for tests and ephemeral sessions.
type MemoryStore struct {
	mark time.Time
	set  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Read() (time.Time, bool, error) {
	return s.mark, s.set, nil
}

func (s *MemoryStore) Write(t time.Time) error {
	s.mark = t
	s.set = true
	return nil
}
