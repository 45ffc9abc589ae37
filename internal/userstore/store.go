package userstore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// User is the locally persisted identity: the connected username and its
// smart-account address. It is the sole source of "already connected" truth.
type User struct {
	Username string `json:"username"`
	Address  string `json:"address"`
}

// Valid reports whether the record is complete. Partial records are never
// partially trusted; they read back as absent.
func (u User) Valid() bool {
	return u.Username != "" && u.Address != ""
}

// Store abstracts Stored User persistence. Get returns nil for missing or
// incomplete records.
type Store interface {
	Get(ctx context.Context, key string) (*User, error)
	Save(ctx context.Context, key string, user User) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore is mostly for testing.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]User)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.data[key]
	if !ok || !user.Valid() {
		return nil, nil
	}
	return &user, nil
}

func (m *MemoryStore) Save(_ context.Context, key string, user User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = user
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// FileStore persists users to a JSON file, the durable local storage of
// embedders without a database.
type FileStore struct {
	path string
	mu   sync.Mutex
	data map[string]User
}

func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		path: path,
		data: make(map[string]User),
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	blob, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(blob) == 0 {
		return nil
	}
	if err := json.Unmarshal(blob, &f.data); err != nil {
		// Corrupt store: discard rather than trust partially.
		f.data = make(map[string]User)
	}
	return nil
}

func (f *FileStore) persist() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	blob, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, blob, 0o600)
}

func (f *FileStore) Get(_ context.Context, key string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.data[key]
	if !ok || !user.Valid() {
		return nil, nil
	}
	return &user, nil
}

func (f *FileStore) Save(_ context.Context, key string, user User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = user
	return f.persist()
}

func (f *FileStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; !ok {
		return nil
	}
	delete(f.data, key)
	return f.persist()
}
