package configuration

import (
	"errors"
	"sync"
)

// ErrNotInitialized is returned by Instance before Initialize succeeds or
// after Finalize.
var ErrNotInitialized = errors.New("configuration not initialized")

var (
	instanceMu sync.Mutex
	instance   *Configuration
)

// Initialize constructs the process-wide configuration. Subsequent calls are
// no-ops until Finalize releases the instance.
func Initialize(path string, opts ...Option) error {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance != nil {
		return nil
	}

	c, err := New(path, opts...)
	if err != nil {
		return err
	}
	instance = c
	return nil
}

// Finalize persists and releases the process-wide configuration. The
// instance is released even when persisting fails.
func Finalize() error {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance == nil {
		return nil
	}

	err := instance.Close()
	instance = nil
	return err
}

// Release drops the process-wide configuration without persisting it, leaving
// the file exactly as it was. It is a no-op when uninitialized.
func Release() {
	instanceMu.Lock()
	instance = nil
	instanceMu.Unlock()
}

// Instance returns the process-wide configuration.
func Instance() (*Configuration, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance == nil {
		return nil, ErrNotInitialized
	}
	return instance, nil
}

// MustInstance is like Instance but panics when not initialized.
func MustInstance() *Configuration {
	c, err := Instance()
	if err != nil {
		panic(err)
	}
	return c
}
