package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"time"
)

const (
	// MaxRawJobSize caps the bytes accepted from one raw connection
	MaxRawJobSize = 1 << 20
	// DefaultRawIdleTimeout ends a raw job when the client stops sending
	// without closing the connection
	DefaultRawIdleTimeout = 2 * time.Second
)

// RawServer accepts pre-encoded printer bytes over TCP. Everything a client
// sends on one connection becomes one print job.
type RawServer struct {
	service      PrintService
	printerIndex int
	idleTimeout  time.Duration
	listener     net.Listener
	address      string
	mu           sync.Mutex
	running      bool
	wg           sync.WaitGroup
	logger       *log.Logger
}

// NewRaw creates a raw passthrough server printing on printerIndex
func NewRaw(service PrintService, address string, printerIndex int) *RawServer {
	logger := log.New(os.Stdout, "[RAW] ", log.LstdFlags|log.Lmsgprefix)
	return NewRawWithLogger(service, address, printerIndex, logger)
}

// NewRawWithLogger creates a raw passthrough server with a custom logger
func NewRawWithLogger(service PrintService, address string, printerIndex int, logger *log.Logger) *RawServer {
	return &RawServer{
		service:      service,
		printerIndex: printerIndex,
		idleTimeout:  DefaultRawIdleTimeout,
		address:      address,
		logger:       logger,
	}
}

// SetIdleTimeout changes how long a silent connection is waited on
func (s *RawServer) SetIdleTimeout(d time.Duration) {
	if d > 0 {
		s.idleTimeout = d
	}
}

func (s *RawServer) listen() error {
	if s.running {
		s.logger.Println("Error: Server already running")
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		s.logger.Printf("Error: Failed to start server: %v", err)
		return fmt.Errorf("failed to start server: %w", err)
	}

	s.listener = listener
	s.running = true
	s.logger.Printf("Server listening on %s", listener.Addr())
	return nil
}

// Start starts the TCP server and blocks until Stop is called
func (s *RawServer) Start() error {
	s.mu.Lock()
	s.logger.Printf("Starting server on %s (blocking mode)", s.address)
	if err := s.listen(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Println("Ready to accept connections")
	s.acceptConnections()

	return nil
}

// StartAsync starts the TCP server in a goroutine (non-blocking)
func (s *RawServer) StartAsync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Printf("Starting server on %s (async mode)", s.address)
	if err := s.listen(); err != nil {
		return err
	}

	s.wg.Add(1)
	go s.acceptConnections()
	s.logger.Println("Server started in background, ready to accept connections")

	return nil
}

// acceptConnections handles incoming client connections
func (s *RawServer) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			running := s.running
			s.mu.Unlock()

			if !running {
				s.logger.Println("Server shutting down, stopping accept loop")
				return
			}
			s.logger.Printf("Error accepting connection: %v", err)
			continue
		}

		s.logger.Printf("Client connected from %s", conn.RemoteAddr())
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection collects one client's bytes and prints them as one job
func (s *RawServer) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.logger.Printf("Client disconnected: %s", conn.RemoteAddr())
		conn.Close()
	}()

	clientAddr := conn.RemoteAddr().String()

	data, err := s.readJob(conn)
	if err != nil {
		s.logger.Printf("Error reading from client %s: %v", clientAddr, err)
		return
	}
	if len(data) == 0 {
		s.logger.Printf("Client %s sent nothing", clientAddr)
		return
	}

	s.logger.Printf("Received %d bytes from %s", len(data), clientAddr)

	index := s.printerIndex
	printJob, err := s.service.PrintRaw(context.Background(), data, &index)
	if err != nil {
		s.logger.Printf("Error printing job from %s: %v", clientAddr, err)
		return
	}
	s.logger.Printf("Job %s: wrote %d bytes to printer", printJob.ID, len(data))
}

// readJob reads until EOF or until the client has been idle for
// idleTimeout. More than MaxRawJobSize bytes is an error.
func (s *RawServer) readJob(conn net.Conn) ([]byte, error) {
	var data bytes.Buffer
	buf := make([]byte, 4096)

	for {
		conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		n, err := conn.Read(buf)
		if n > 0 {
			if data.Len()+n > MaxRawJobSize {
				return nil, fmt.Errorf("job exceeds %d bytes", MaxRawJobSize)
			}
			data.Write(buf[:n])
		}
		if err != nil {
			var netErr net.Error
			if errors.Is(err, io.EOF) || (errors.As(err, &netErr) && netErr.Timeout()) {
				return data.Bytes(), nil
			}
			return nil, err
		}
	}
}

// Stop stops the TCP server and waits for in-flight jobs
func (s *RawServer) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.logger.Println("Stop called but server is not running")
		return nil
	}

	s.logger.Println("Stopping server...")
	s.running = false
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		s.logger.Println("Closing listener...")
		listener.Close()
	}

	s.logger.Println("Waiting for active connections to close...")
	s.wg.Wait()
	s.logger.Println("Server stopped successfully")
	return nil
}

// IsRunning returns whether the server is running
func (s *RawServer) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Address returns the server address
func (s *RawServer) Address() string {
	return s.address
}

// ListenAddr returns the bound address while running
func (s *RawServer) ListenAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
