package live

import (
	"context"
	"errors"
	"fmt"

	"github.com/opensource-finance/fraudshield/internal/domain"
)

var (
	// ErrUnknownView is returned for a view name that is not configured.
	ErrUnknownView = errors.New("unknown view")

	// ErrNoSnapshot is returned before a view's first successful poll.
	ErrNoSnapshot = errors.New("no snapshot yet")
)

// Manager owns one Synchronizer per configured view.
type Manager struct {
	order []string
	views map[string]*Synchronizer
}

// NewManager creates a synchronizer for each view. All views share the
// same source and sink.
func NewManager(source Source, sink Sink, views []domain.ViewConfig, opts ...Option) *Manager {
	m := &Manager{
		views: make(map[string]*Synchronizer, len(views)),
	}
	for _, v := range views {
		m.order = append(m.order, v.Name)
		m.views[v.Name] = NewSynchronizer(v, source, sink, opts...)
	}
	return m
}

// Start starts every view.
func (m *Manager) Start(ctx context.Context) {
	for _, name := range m.order {
		m.views[name].Start(ctx)
	}
}

// View returns the synchronizer of the named view.
func (m *Manager) View(name string) (*Synchronizer, error) {
	s, ok := m.views[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownView, name)
	}
	return s, nil
}

// Pause pauses the named view.
func (m *Manager) Pause(name string) error {
	s, err := m.View(name)
	if err != nil {
		return err
	}
	s.Pause()
	return nil
}

// Resume resumes the named view.
func (m *Manager) Resume(name string) error {
	s, err := m.View(name)
	if err != nil {
		return err
	}
	s.Resume()
	return nil
}

// Dispose disposes the named view.
func (m *Manager) Dispose(name string) error {
	s, err := m.View(name)
	if err != nil {
		return err
	}
	s.Dispose()
	return nil
}

// DisposeAll disposes every view.
func (m *Manager) DisposeAll() {
	for _, name := range m.order {
		m.views[name].Dispose()
	}
}

// Snapshot returns the latest snapshot of the named view.
func (m *Manager) Snapshot(name string) (*domain.FeedSnapshot, error) {
	s, err := m.View(name)
	if err != nil {
		return nil, err
	}
	snap := s.Snapshot()
	if snap == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoSnapshot, name)
	}
	return snap, nil
}

// Status returns the status of every view in configuration order.
func (m *Manager) Status() []Status {
	out := make([]Status, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.views[name].Status())
	}
	return out
}
