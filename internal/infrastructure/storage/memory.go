package storage

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryLabelStore keeps labels in memory. Used in development and tests
// where no object storage backend is available.
type MemoryLabelStore struct {
	// BaseURL prefixes the fake download URLs.
	BaseURL string

	mu     sync.RWMutex
	labels map[string][]byte
}

// NewMemoryLabelStore creates an empty in-memory label store.
func NewMemoryLabelStore() *MemoryLabelStore {
	return &MemoryLabelStore{
		BaseURL: "https://labels.local",
		labels:  make(map[string][]byte),
	}
}

func (m *MemoryLabelStore) StoreLabel(_ context.Context, awb string, pdf []byte) (string, error) {
	if awb == "" {
		return "", errors.New("awb is required")
	}
	if len(pdf) == 0 {
		return "", errors.New("label content is empty")
	}
	m.mu.Lock()
	m.labels[awb] = append([]byte(nil), pdf...)
	m.mu.Unlock()
	return labelKey(awb), nil
}

func (m *MemoryLabelStore) LabelURL(_ context.Context, awb string, expiresIn time.Duration) (string, time.Time, error) {
	if awb == "" {
		return "", time.Time{}, errors.New("awb is required")
	}
	m.mu.RLock()
	_, ok := m.labels[awb]
	m.mu.RUnlock()
	if !ok {
		return "", time.Time{}, errors.New("label not found")
	}
	return m.BaseURL + "/" + labelKey(awb), time.Now().Add(expiresIn), nil
}

func (m *MemoryLabelStore) HasLabel(_ context.Context, awb string) (bool, error) {
	if awb == "" {
		return false, errors.New("awb is required")
	}
	m.mu.RLock()
	_, ok := m.labels[awb]
	m.mu.RUnlock()
	return ok, nil
}

func (m *MemoryLabelStore) DeleteLabel(_ context.Context, awb string) error {
	if awb == "" {
		return errors.New("awb is required")
	}
	m.mu.Lock()
	delete(m.labels, awb)
	m.mu.Unlock()
	return nil
}

// Label returns the stored bytes, for test assertions.
func (m *MemoryLabelStore) Label(awb string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pdf, ok := m.labels[awb]
	return pdf, ok
}
