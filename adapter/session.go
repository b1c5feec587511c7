package adapter

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/nixxel-company-limited/escpos-receipt-server/escpos"
)

var (
	// ErrEndpointNotInitialized is returned when a session reports itself
	// open but its output endpoint cannot take a transfer
	ErrEndpointNotInitialized = errors.New("endpoint not initialized")
	ErrSessionNotOpen         = errors.New("session not open")
	ErrSessionUsed            = errors.New("session already used")
	ErrSessionClosed          = errors.New("session closed while opening")
)

// State is the lifecycle state of a Session
type State int

const (
	StateNew State = iota
	StateOpening
	StateOpen
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// OpenError reports that the device could not be claimed
type OpenError struct {
	Device DeviceDescriptor
	Err    error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %s: %v", e.Device, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// TransferError reports the command whose transfer failed. Commands after
// Index were not sent.
type TransferError struct {
	Index int
	Kind  escpos.Kind
	Err   error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("command %d (%s): %v", e.Index, e.Kind, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// CloseError reports that releasing the device failed
type CloseError struct {
	Device DeviceDescriptor
	Err    error
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("close %s: %v", e.Device, e.Err)
}

func (e *CloseError) Unwrap() error { return e.Err }

// Session is exclusive, single-use access to one device. It moves from
// new through opening, open and closing to closed; failed is absorbing.
type Session struct {
	device  DeviceDescriptor
	adapter Adapter
	encoder *escpos.Encoder
	logger  *log.Logger

	mu    sync.Mutex
	state State

	closeOnce sync.Once
	closeErr  error
}

// NewSession wraps an unopened adapter. A nil encoder selects the default
// code page.
func NewSession(device DeviceDescriptor, a Adapter, encoder *escpos.Encoder, logger *log.Logger) *Session {
	if encoder == nil {
		encoder = escpos.DefaultEncoder()
	}
	if logger == nil {
		logger = newUSBLogger()
	}
	return &Session{
		device:  device,
		adapter: a,
		encoder: encoder,
		logger:  logger,
	}
}

// Device returns the device the session targets
func (s *Session) Device() DeviceDescriptor {
	return s.device
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open claims the device. A failed open leaves the session failed; the
// adapter is expected to have released whatever it acquired.
func (s *Session) Open() error {
	s.mu.Lock()
	if s.state != StateNew {
		s.mu.Unlock()
		return &OpenError{Device: s.device, Err: ErrSessionUsed}
	}
	s.state = StateOpening
	s.mu.Unlock()

	err := s.adapter.Open()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		if s.state == StateOpening {
			s.state = StateFailed
		}
		return &OpenError{Device: s.device, Err: err}
	}
	if s.state != StateOpening {
		return &OpenError{Device: s.device, Err: ErrSessionClosed}
	}

	s.state = StateOpen
	return nil
}

// Send encodes and transmits each command in order. The session state and
// endpoint readiness are checked before every transfer; the first failure
// aborts the rest of the sequence and fails the session.
func (s *Session) Send(ctx context.Context, seq escpos.Sequence) error {
	for i, cmd := range seq {
		if err := ctx.Err(); err != nil {
			return s.fail(i, cmd, err)
		}

		data, err := s.encoder.Encode(cmd)
		if err != nil {
			return s.fail(i, cmd, err)
		}

		if s.State() != StateOpen {
			return s.fail(i, cmd, ErrSessionNotOpen)
		}
		if !s.adapter.Ready() {
			return s.fail(i, cmd, ErrEndpointNotInitialized)
		}

		if len(data) == 0 {
			continue
		}
		if _, err := s.adapter.Write(ctx, data); err != nil {
			return s.fail(i, cmd, err)
		}
	}
	return nil
}

func (s *Session) fail(index int, cmd escpos.Command, err error) error {
	s.mu.Lock()
	if s.state == StateOpen {
		s.state = StateFailed
	}
	s.mu.Unlock()
	return &TransferError{Index: index, Kind: cmd.Kind, Err: err}
}

// Close releases the device. The adapter is closed at most once no matter
// how many times or from how many goroutines Close is called; every caller
// gets the same result. Concurrent callers wait for the first release.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		prev := s.state
		if prev == StateNew {
			s.state = StateClosed
			s.mu.Unlock()
			return
		}
		if prev != StateFailed {
			s.state = StateClosing
		}
		s.mu.Unlock()

		err := s.adapter.Close()

		s.mu.Lock()
		defer s.mu.Unlock()
		if err != nil {
			s.state = StateFailed
			s.closeErr = &CloseError{Device: s.device, Err: err}
			if prev == StateFailed {
				s.logger.Printf("Best-effort release of %s failed: %v", s.device, err)
			}
			return
		}
		if prev != StateFailed {
			s.state = StateClosed
		}
	})
	return s.closeErr
}
