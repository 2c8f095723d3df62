// -------------------------------------------------------------------------------
// Service Lifecycle Manager
//
// Author: Alex Freidah
//
// Supervises background service goroutines with panic recovery, automatic
// restart, and ordered shutdown. Services implement the Service interface
// (blocking Run method); the optional Stoppable interface adds explicit
// cleanup during shutdown, invoked in reverse registration order so that
// downstream resources outlive the services that feed them.
// -------------------------------------------------------------------------------

package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/afreidah/kafka-rest-proxy/internal/telemetry"
)

// restartPause is how long a crashed service waits before restarting.
const restartPause = time.Second

// Service represents a long-running background task. Run blocks until ctx is
// cancelled or a fatal error occurs.
type Service interface {
	Run(ctx context.Context) error
}

// Stoppable is an optional interface for services that need explicit cleanup
// beyond context cancellation.
type Stoppable interface {
	Stop(ctx context.Context) error
}

type registration struct {
	name    string
	service Service
}

// Manager registers and supervises background services.
type Manager struct {
	registrations []registration
}

// NewManager creates an empty service manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a named service. Services start in registration order and
// stop in reverse order.
func (m *Manager) Register(name string, svc Service) {
	m.registrations = append(m.registrations, registration{name: name, service: svc})
}

// Run starts all registered services and blocks until every supervision loop
// has exited. Each service runs in its own goroutine; a panic or unexpected
// return restarts it after a short pause.
func (m *Manager) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for _, reg := range m.registrations {
		wg.Add(1)
		go func(reg registration) {
			defer wg.Done()
			m.supervise(ctx, reg)
		}(reg)
	}

	wg.Wait()
}

// Stop calls Stop on services that implement Stoppable, in reverse
// registration order, bounded by the given timeout.
func (m *Manager) Stop(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for i := len(m.registrations) - 1; i >= 0; i-- {
		reg := m.registrations[i]
		s, ok := reg.service.(Stoppable)
		if !ok {
			continue
		}
		if err := s.Stop(ctx); err != nil {
			slog.Error("Service stop error",
				"service", reg.name,
				"error", err,
			)
		}
	}
}

// supervise runs a single service until ctx is cancelled, restarting it on
// panic or early return.
func (m *Manager) supervise(ctx context.Context, reg registration) {
	for {
		m.runOnce(ctx, reg)

		if ctx.Err() != nil {
			return
		}

		telemetry.ServiceRestartsTotal.WithLabelValues(reg.name).Inc()
		select {
		case <-time.After(restartPause):
		case <-ctx.Done():
			return
		}
	}
}

// runOnce invokes the service once, converting a panic into a logged error.
func (m *Manager) runOnce(ctx context.Context, reg registration) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Service panicked",
				"service", reg.name,
				"panic", fmt.Sprint(r),
			)
		}
	}()

	if err := reg.service.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("Service exited unexpectedly",
			"service", reg.name,
			"error", err,
		)
	}
}
