package monitor

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/roverton/go-stservo/logger"
	"github.com/roverton/go-stservo/stservo"
)

// Handle identifies one connected actuator managed by a Manager.
type Handle uint32

// Manager is the narrow interface consumed by thin collaborators (CLI,
// status displays): connect to an actuator, start a monitored move on
// it, poll its status, cancel it, close it. The core never depends on
// the Manager; it exists for callers that want handle-based access
// rather than holding Driver and Session values directly.
type Manager struct {
	entries *xsync.MapOf[Handle, *managedActuator]
	nextID  atomic.Uint32
	logger  logger.Logger
}

// Device is what the Manager manages: an actuator plus the ability to
// close its link. *stservo.Driver satisfies it.
type Device interface {
	Actuator
	Close() error
}

// managedActuator pairs a device with its current (at most one) session.
type managedActuator struct {
	mu      sync.Mutex
	device  Device
	servoID byte
	session *Session
	cancel  context.CancelFunc
}

// NewManager creates an empty Manager.
func NewManager(l logger.Logger) *Manager {
	if l == nil {
		l = logger.GetLogger()
	}

	m := &Manager{
		entries: xsync.NewMapOf[Handle, *managedActuator](),
		logger:  l,
	}

	// Seed handle values randomly so stale handles from a previous
	// process are unlikely to alias.
	var buf [4]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err == nil {
		m.nextID.Store(binary.LittleEndian.Uint32(buf[:]))
	}

	return m
}

// Connect opens the serial device at path and registers a driver for the
// servo with the given id, returning its handle.
func (m *Manager) Connect(path string, baud int, servoID byte, opts ...stservo.DriverOption) (Handle, error) {
	drv, err := stservo.Open(path, baud, opts...)
	if err != nil {
		return 0, err
	}

	h := m.AddDevice(drv, servoID)
	m.logger.Info("monitor: actuator connected", "handle", h, "path", path, "servoID", servoID)

	return h, nil
}

// AddDevice registers an already-open device, for callers that construct
// their own transport or driver.
func (m *Manager) AddDevice(dev Device, servoID byte) Handle {
	h := Handle(m.nextID.Add(1))
	m.entries.Store(h, &managedActuator{device: dev, servoID: servoID})

	return h
}

// Start launches a monitored move on the actuator behind h. The session
// runs on its own goroutine; observe it via PollStatus and Result. Only
// one session may run per handle at a time.
func (m *Manager) Start(h Handle, cfg *Config) error {
	entry, ok := m.entries.Load(h)
	if !ok {
		return ErrUnknownHandle
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.session != nil {
		if st := entry.session.Status(); !st.State.IsTerminal() {
			return ErrSessionActive
		}
	}

	session, err := NewSession(entry.device, entry.servoID, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	entry.session = session
	entry.cancel = cancel

	go func() {
		defer cancel()

		if _, err := session.Run(ctx); err != nil {
			m.logger.Error("monitor: session failed", "handle", h, "error", err)
		}
	}()

	return nil
}

// Cancel requests cancellation of the running session behind h, if any.
func (m *Manager) Cancel(h Handle) error {
	entry, ok := m.entries.Load(h)
	if !ok {
		return ErrUnknownHandle
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.session == nil {
		return ErrSessionNotStarted
	}

	entry.session.Cancel()

	return nil
}

// PollStatus returns the latest status snapshot of the session behind h.
func (m *Manager) PollStatus(h Handle) (Status, error) {
	entry, ok := m.entries.Load(h)
	if !ok {
		return Status{}, ErrUnknownHandle
	}

	entry.mu.Lock()
	session := entry.session
	entry.mu.Unlock()

	if session == nil {
		return Status{}, ErrSessionNotStarted
	}

	return session.Status(), nil
}

// Result blocks until the session behind h finishes and returns its
// outcome.
func (m *Manager) Result(h Handle) (Result, error) {
	entry, ok := m.entries.Load(h)
	if !ok {
		return Result{}, ErrUnknownHandle
	}

	entry.mu.Lock()
	session := entry.session
	entry.mu.Unlock()

	if session == nil {
		return Result{}, ErrSessionNotStarted
	}

	<-session.Done()

	return session.Result()
}

// Close cancels any running session behind h and closes its driver.
func (m *Manager) Close(h Handle) error {
	entry, ok := m.entries.LoadAndDelete(h)
	if !ok {
		return ErrUnknownHandle
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.session != nil {
		entry.session.Cancel()
		entry.cancel()
		<-entry.session.Done()
	}

	return entry.device.Close()
}

// Shutdown closes every managed actuator.
func (m *Manager) Shutdown() {
	m.entries.Range(func(h Handle, _ *managedActuator) bool {
		if err := m.Close(h); err != nil {
			m.logger.Warn("monitor: close during shutdown failed", "handle", h, "error", err)
		}
		return true
	})
}
