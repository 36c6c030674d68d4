package module

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is the default polling interval of a Host.
const DefaultInterval = time.Second

// ErrHostClosed is returned when a closed host is used.
var ErrHostClosed = errors.New("module host closed")

// HostOption configures a Host.
type HostOption func(h *Host)

// WithInterval configures the polling interval.
func WithInterval(d time.Duration) HostOption {
	return func(h *Host) {
		h.interval = d
	}
}

// WithLogger configures the logger.
func WithLogger(logger *slog.Logger) HostOption {
	return func(h *Host) {
		h.logger = logger
	}
}

// Host owns a set of modules and calls their DoWork on an interval.
type Host struct {
	interval time.Duration
	logger   *slog.Logger

	mu          sync.Mutex
	modules     []Interface
	initialized int
	closed      bool
}

// NewHost creates a host with no modules.
func NewHost(opts ...HostOption) *Host {
	h := &Host{
		interval: DefaultInterval,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.interval <= 0 {
		h.interval = DefaultInterval
	}
	return h
}

// Add registers m. Modules are initialized and polled in the order added
// and torn down in reverse order.
func (h *Host) Add(m Interface) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.modules = append(h.modules, m)
}

// Modules returns the registered modules.
func (h *Host) Modules() []Interface {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Interface(nil), h.modules...)
}

// Initialize initializes every module not yet initialized. On failure the
// modules initialized by this call stay initialized and the error is returned.
func (h *Host) Initialize(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHostClosed
	}

	for h.initialized < len(h.modules) {
		m := h.modules[h.initialized]
		info := m.ContractInfo()
		if err := m.Initialize(ctx); err != nil {
			return fmt.Errorf("initializing module %s: %w", info.Name, err)
		}
		h.logger.Info("module initialized", "module", info.Name, "version", info.Version)
		h.initialized++
	}
	return nil
}

// RunOnce calls DoWork on every initialized module. A failing module does
// not stop the others; the errors are joined.
func (h *Host) RunOnce(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHostClosed
	}
	modules := append([]Interface(nil), h.modules[:h.initialized]...)
	h.mu.Unlock()

	var errs []error
	for _, m := range modules {
		if err := m.DoWork(ctx); err != nil {
			name := m.ContractInfo().Name
			h.logger.Warn("module work failed", "module", name, "error", err)
			errs = append(errs, fmt.Errorf("module %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Run initializes the modules and polls them until ctx is done.
func (h *Host) Run(ctx context.Context) error {
	if err := h.Initialize(ctx); err != nil {
		return err
	}
	h.logger.Debug("starting module host", "interval", h.interval)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		_ = h.RunOnce(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close deinitializes and destroys every module in reverse order.
func (h *Host) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	modules := h.modules
	initialized := h.initialized
	h.mu.Unlock()

	for i := len(modules) - 1; i >= 0; i-- {
		m := modules[i]
		if i < initialized {
			m.Deinitialize()
		}
		m.Destroy()
		h.logger.Info("module destroyed", "module", m.ContractInfo().Name)
	}
}
