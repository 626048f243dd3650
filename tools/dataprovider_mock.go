package tools

import (
	"io/fs"
	"sync"
)

// MockDataProvider implements DataProvider for testing.
// It uses an in-memory map to simulate file storage without requiring
// actual files or embedded data to be present.
type MockDataProvider struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMockDataProvider creates a new mock data provider for testing.
func NewMockDataProvider() *MockDataProvider {
	return &MockDataProvider{
		files: make(map[string][]byte),
	}
}

// AddFile adds or replaces a file in the mock provider.
func (m *MockDataProvider) AddFile(name string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = content
}

// ReadFile reads a file from the mock storage.
func (m *MockDataProvider) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	content, exists := m.files[name]
	if !exists {
		return nil, fs.ErrNotExist
	}
	return content, nil
}
