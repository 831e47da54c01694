// SPDX-License-Identifier: Apache-2.0

// Package localstore keeps string key/value pairs in a JSON file, one file
// per namespace. Every mutation is written through immediately.
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Namespaces
const (
	Local   = "local"
	Session = "session"
)

// Store is one namespace
type Store struct {
	path string

	mu    sync.Mutex
	items map[string]string
}

// Open loads (or lazily creates) the namespace file under dir
func Open(dir, namespace string) (*Store, error) {
	s := &Store{
		path:  filepath.Join(dir, namespace+".json"),
		items: map[string]string{},
	}

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("error reading %s: %w", s.path, err)
	}

	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.items); err != nil {
		// unreadable storage behaves like empty storage
		s.items = map[string]string{}
	}
	return s, nil
}

// Path returns the backing file
func (s *Store) Path() string {
	return s.path
}

// GetItem returns the value stored under key
func (s *Store) GetItem(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	return v, ok
}

// SetItem stores value under key
func (s *Store) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
	return s.flush()
}

// RemoveItem deletes key; removing a missing key is not an error
func (s *Store) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; !ok {
		return nil
	}
	delete(s.items, key)
	return s.flush()
}

// Clear drops every key
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = map[string]string{}
	return s.flush()
}

// Keys returns the stored keys in sorted order
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetJSON decodes the value under key into v. It reports false when the key
// is absent; a present but undecodable value returns an error.
func (s *Store) GetJSON(key string, v interface{}) (bool, error) {
	raw, ok := s.GetItem(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return true, fmt.Errorf("error decoding %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key
func (s *Store) SetJSON(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("error encoding %s: %w", key, err)
	}
	return s.SetItem(key, string(data))
}

// flush writes through a temp file so a crash never leaves half a document
func (s *Store) flush() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("error creating storage directory: %w", err)
	}
	data, err := json.MarshalIndent(s.items, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding storage: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("error writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("error replacing %s: %w", s.path, err)
	}
	return nil
}
