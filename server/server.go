package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/nixxel-company-limited/escpos-receipt-server/adapter"
	"github.com/nixxel-company-limited/escpos-receipt-server/escpos"
	"github.com/nixxel-company-limited/escpos-receipt-server/job"
)

const shutdownTimeout = 5 * time.Second

// PrintService runs print jobs
type PrintService interface {
	Printers() ([]adapter.DeviceDescriptor, error)
	Print(ctx context.Context, content *escpos.Receipt, printerIndex *int) (*job.PrintJob, error)
	PrintRaw(ctx context.Context, data []byte, printerIndex *int) (*job.PrintJob, error)
}

// Options configures the HTTP server
type Options struct {
	// AllowedOrigins is the cross-origin caller set; "*" allows any
	AllowedOrigins []string
	// RateLimitRPS and RateLimitBurst bound print requests per client IP;
	// zero RPS disables the limit
	RateLimitRPS   float64
	RateLimitBurst int
	// Events, when set, is streamed on /api/events
	Events *job.Events
	// Gatherer, when set, is exposed on /metrics
	Gatherer prometheus.Gatherer
}

// Server exposes the print service over HTTP
type Server struct {
	service    PrintService
	address    string
	opts       Options
	handler    http.Handler
	limiter    *rateLimiter
	upgrader   websocket.Upgrader
	httpServer *http.Server
	listener   net.Listener
	quit       chan struct{}
	mu         sync.Mutex
	running    bool
	wg         sync.WaitGroup
	logger     *log.Logger
	access     *log.Logger
}

// New creates a new server instance
func New(service PrintService, address string, opts Options) *Server {
	logger := log.New(os.Stdout, "[SERVER] ", log.LstdFlags|log.Lmsgprefix)
	s := NewWithLogger(service, address, opts, logger)
	s.access = log.New(os.Stdout, "[HTTP] ", log.LstdFlags|log.Lmsgprefix)
	return s
}

// NewWithLogger creates a new server instance with a custom logger, used
// for access logs as well
func NewWithLogger(service PrintService, address string, opts Options, logger *log.Logger) *Server {
	s := &Server{
		service: service,
		address: address,
		opts:    opts,
		limiter: newRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst, 10*time.Minute),
		quit:    make(chan struct{}),
		logger:  logger,
		access:  logger,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.allowedOrigin}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), s.accessLog())

	api := engine.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/printers", s.handlePrinters)
	api.POST("/print", s.rateLimit(), s.handlePrint)
	if s.opts.Events != nil {
		api.GET("/events", s.handleEvents)
	}

	if s.opts.Gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))
	}

	c := cors.New(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept"},
	})
	return c.Handler(engine)
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.access.Printf("%s %s %d %s %s", c.Request.Method, c.Request.URL.Path,
			c.Writer.Status(), time.Since(start).Round(time.Millisecond), c.ClientIP())
	}
}

func (s *Server) allowedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Handler returns the root HTTP handler, CORS included
func (s *Server) Handler() http.Handler {
	return s.handler
}

// listen binds the listener; callers hold mu
func (s *Server) listen() error {
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
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.quit = make(chan struct{})
	s.running = true
	s.logger.Printf("Server listening on %s", listener.Addr())
	return nil
}

// Start starts the HTTP server and blocks until Stop is called
func (s *Server) Start() error {
	s.mu.Lock()
	s.logger.Printf("Starting server on %s (blocking mode)", s.address)
	if err := s.listen(); err != nil {
		s.mu.Unlock()
		return err
	}
	httpServer, listener := s.httpServer, s.listener
	s.mu.Unlock()

	s.logger.Println("Ready to accept connections")
	return s.serve(httpServer, listener)
}

// StartAsync starts the HTTP server in a goroutine (non-blocking)
func (s *Server) StartAsync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Printf("Starting server on %s (async mode)", s.address)
	if err := s.listen(); err != nil {
		return err
	}

	httpServer, listener := s.httpServer, s.listener
	go func() {
		if err := s.serve(httpServer, listener); err != nil {
			s.logger.Printf("Error: %v", err)
		}
	}()
	s.logger.Println("Server started in background, ready to accept connections")

	return nil
}

func (s *Server) serve(httpServer *http.Server, listener net.Listener) error {
	err := httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		s.logger.Println("Server shutting down, stopping accept loop")
		return nil
	}
	return fmt.Errorf("server failed: %w", err)
}

// Stop stops the HTTP server and waits for event streams to end
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.logger.Println("Stop called but server is not running")
		return nil
	}

	s.logger.Println("Stopping server...")
	s.running = false
	httpServer := s.httpServer
	close(s.quit)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := httpServer.Shutdown(ctx)

	s.logger.Println("Waiting for event streams to close...")
	s.wg.Wait()

	if err != nil {
		s.logger.Printf("Error during shutdown: %v", err)
		return err
	}
	s.logger.Println("Server stopped successfully")
	return nil
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Address returns the server address
func (s *Server) Address() string {
	return s.address
}

// ListenAddr returns the bound address while running
func (s *Server) ListenAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
