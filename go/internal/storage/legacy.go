package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// Keys of the legacy flat key/value area.
const (
	legacySplits      = "splits"
	legacyLayout      = "layout"
	legacySettings    = "settings"
	legacyLayoutWidth = "layoutWidth"
)

// LegacyArea is the flat string key/value area written by older versions.
// It is read once during the first migration and cleared afterwards.
type LegacyArea interface {
	Load() (map[string]string, error)
	Clear() error
}

// FileLegacyArea keeps the legacy area in a JSON object file.
type FileLegacyArea struct {
	Path string
}

func (f FileLegacyArea) Load() (map[string]string, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy area: %w", err)
	}
	values := map[string]string{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to decode legacy area: %w", err)
	}
	return values, nil
}

func (f FileLegacyArea) Clear() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear legacy area: %w", err)
	}
	return nil
}

// MemoryLegacyArea is an in-memory legacy area.
type MemoryLegacyArea struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryLegacyArea returns an area holding a copy of values.
func NewMemoryLegacyArea(values map[string]string) *MemoryLegacyArea {
	m := &MemoryLegacyArea{values: map[string]string{}}
	for k, v := range values {
		m.values[k] = v
	}
	return m
}

func (m *MemoryLegacyArea) Load() (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryLegacyArea) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = map[string]string{}
	return nil
}

// Len returns the number of stored values.
func (m *MemoryLegacyArea) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.values)
}
