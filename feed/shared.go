package feed

import "sync"

var (
	sharedMu sync.RWMutex
	shared   *Manager
)

// Setup installs the process-wide Manager returned by Shared. It can be called
// once; later calls fail with ErrAlreadyConfigured.
func Setup(cfg ConnectionConfig, opts ...Option) error {
	m, err := New(cfg, opts...)
	if err != nil {
		return err
	}

	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared != nil {
		return ErrAlreadyConfigured
	}
	shared = m
	return nil
}

// Shared returns the Manager installed by Setup, or ErrNotConfigured.
func Shared() (*Manager, error) {
	sharedMu.RLock()
	defer sharedMu.RUnlock()
	if shared == nil {
		return nil, ErrNotConfigured
	}
	return shared, nil
}
