package job

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/nixxel-company-limited/escpos-receipt-server/adapter"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// fakeRegistry is a fixed device list that counts enumerations
type fakeRegistry struct {
	mu      sync.Mutex
	devices []adapter.DeviceDescriptor
	err     error
	calls   int
}

func newFakeRegistry(devices ...adapter.DeviceDescriptor) *fakeRegistry {
	return &fakeRegistry{devices: devices}
}

func (r *fakeRegistry) Enumerate() ([]adapter.DeviceDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	out := make([]adapter.DeviceDescriptor, len(r.devices))
	for i, d := range r.devices {
		d.Index = i
		out[i] = d
	}
	return out, nil
}

func (r *fakeRegistry) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// deviceState tracks how many sessions hold one physical device
type deviceState struct {
	mu       sync.Mutex
	open     int
	maxOpen  int
	overlaps int
}

func (s *deviceState) opened() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open++
	if s.open > 1 {
		s.overlaps++
	}
	if s.open > s.maxOpen {
		s.maxOpen = s.open
	}
}

func (s *deviceState) closed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open--
}

func (s *deviceState) snapshot() (maxOpen, overlaps int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxOpen, s.overlaps
}

// mockAdapter is a configurable Adapter. hang blocks the marked operations
// until the channel is closed, ignoring the context.
type mockAdapter struct {
	mu        sync.Mutex
	state     *deviceState
	open      bool
	notReady  bool
	openErr   error
	closeErr  error
	failWrite int
	writeErr  error
	writeWait time.Duration

	hang      chan struct{}
	hangOpen  bool
	hangWrite bool
	hangClose bool

	started chan struct{}

	writes [][]byte
	opens  int
	closes int
}

func (m *mockAdapter) Open() error {
	if m.hangOpen {
		<-m.hang
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	if m.openErr != nil {
		return m.openErr
	}
	m.open = true
	if m.state != nil {
		m.state.opened()
	}
	return nil
}

func (m *mockAdapter) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open && !m.notReady
}

func (m *mockAdapter) Write(_ context.Context, data []byte) (int, error) {
	if m.started != nil {
		select {
		case m.started <- struct{}{}:
		default:
		}
	}
	if m.hangWrite {
		<-m.hang
	}
	if m.writeWait > 0 {
		time.Sleep(m.writeWait)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite > 0 && m.failWrite == len(m.writes)+1 {
		return 0, m.writeErr
	}
	m.writes = append(m.writes, data)
	return len(data), nil
}

func (m *mockAdapter) Close() error {
	m.mu.Lock()
	m.closes++
	m.mu.Unlock()

	if m.hangClose {
		<-m.hang
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open && m.state != nil {
		m.state.closed()
	}
	m.open = false
	return m.closeErr
}

func (m *mockAdapter) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

func (m *mockAdapter) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

func (m *mockAdapter) written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []byte
	for _, w := range m.writes {
		out = append(out, w...)
	}
	return out
}

// mockFactory builds a mock adapter per session and keeps them for
// inspection
type mockFactory struct {
	mu      sync.Mutex
	build   func(d adapter.DeviceDescriptor) *mockAdapter
	created []*mockAdapter
}

func newMockFactory(build func(d adapter.DeviceDescriptor) *mockAdapter) *mockFactory {
	if build == nil {
		build = func(adapter.DeviceDescriptor) *mockAdapter { return &mockAdapter{} }
	}
	return &mockFactory{build: build}
}

func (f *mockFactory) New(d adapter.DeviceDescriptor) adapter.Adapter {
	m := f.build(d)
	f.mu.Lock()
	f.created = append(f.created, m)
	f.mu.Unlock()
	return m
}

func (f *mockFactory) last() *mockAdapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

func (f *mockFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

var (
	printerA = adapter.DeviceDescriptor{VendorID: 0x04b8, ProductID: 0x0202, Bus: 1, Address: 3}
	printerB = adapter.DeviceDescriptor{VendorID: 0x0519, ProductID: 0x0001, Bus: 1, Address: 4}
)

func intPtr(i int) *int { return &i }
