// Package service runs background services of the gateway next to HTTP
// servers and stops them together.
package service

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Service runs until ctx is canceled or it fails.
type Service interface {
	Run(ctx context.Context) error
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context) error

func (f ServiceFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Manager runs a set of services. The first failing service cancels the
// rest.
type Manager struct {
	mu       sync.Mutex
	services []Service
	group    *errgroup.Group
}

func NewManager() *Manager {
	return &Manager{}
}

// Register adds services. Services registered after Run are not started.
func (m *Manager) Register(s ...Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = append(m.services, s...)
}

// Run starts all registered services and returns immediately.
func (m *Manager) Run(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.services) == 0 || m.group != nil {
		return
	}
	group, ctx := errgroup.WithContext(ctx)
	for _, s := range m.services {
		group.Go(func() error {
			return s.Run(ctx)
		})
	}
	m.group = group
}

// Wait blocks until all started services return, it returns the first
// error.
func (m *Manager) Wait() error {
	m.mu.Lock()
	group := m.group
	m.mu.Unlock()
	if group == nil {
		return nil
	}
	return group.Wait()
}
