package job

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nixxel-company-limited/escpos-receipt-server/adapter"
	"github.com/nixxel-company-limited/escpos-receipt-server/escpos"
)

const (
	// DefaultDeadline bounds a job from start to result
	DefaultDeadline = 10 * time.Second
	// DefaultReleaseGrace is how long a timed-out job's forced close may
	// take before the device gate is handed to the next job anyway
	DefaultReleaseGrace = 2 * time.Second
)

// Enumerator lists the candidate devices
type Enumerator interface {
	Enumerate() ([]adapter.DeviceDescriptor, error)
}

// PrintJob scopes one print request
type PrintJob struct {
	ID       string
	Device   adapter.DeviceDescriptor
	Sequence escpos.Sequence
	Started  time.Time
	Deadline time.Time
	Finished time.Time
	Err      error

	released sync.Once
}

// Succeeded reports whether the job completed without error
func (j *PrintJob) Succeeded() bool {
	return !j.Finished.IsZero() && j.Err == nil
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithDeadline sets the per-job deadline
func WithDeadline(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.deadline = d
		}
	}
}

// WithReleaseGrace sets how long a forced close may block the device gate
func WithReleaseGrace(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.grace = d
		}
	}
}

// WithLogger sets the job logger
func WithLogger(logger *log.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEncoder sets the command encoder used by sessions
func WithEncoder(encoder *escpos.Encoder) Option {
	return func(o *Orchestrator) {
		if encoder != nil {
			o.encoder = encoder
		}
	}
}

// WithMetrics records job outcomes
func WithMetrics(metrics *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = metrics }
}

// WithEvents publishes job lifecycle events
func WithEvents(events *Events) Option {
	return func(o *Orchestrator) { o.events = events }
}

// Orchestrator runs print jobs end to end: it resolves the device, holds
// the device's gate, drives a fresh session through open, send and close,
// and enforces the deadline. Jobs are never retried.
type Orchestrator struct {
	registry Enumerator
	factory  adapter.Factory
	encoder  *escpos.Encoder
	deadline time.Duration
	grace    time.Duration
	gates    *gates
	metrics  *Metrics
	events   *Events
	logger   *log.Logger

	background sync.WaitGroup
}

// New creates an orchestrator
func New(registry Enumerator, factory adapter.Factory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		factory:  factory,
		encoder:  escpos.DefaultEncoder(),
		deadline: DefaultDeadline,
		grace:    DefaultReleaseGrace,
		gates:    newGates(),
		logger:   log.New(os.Stdout, "[JOB] ", log.LstdFlags|log.Lmsgprefix),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Deadline returns the per-job deadline
func (o *Orchestrator) Deadline() time.Duration {
	return o.deadline
}

// Printers returns a fresh enumeration of the candidate devices
func (o *Orchestrator) Printers() ([]adapter.DeviceDescriptor, error) {
	devices, err := o.registry.Enumerate()
	if err != nil {
		return nil, newError(KindEnumerationFailed, err)
	}
	return devices, nil
}

// Print prints a receipt on the device at printerIndex (0 when nil). The
// returned job is never nil.
func (o *Orchestrator) Print(ctx context.Context, content *escpos.Receipt, printerIndex *int) (*PrintJob, error) {
	job := o.newJob()
	if content.IsEmpty() {
		return o.finish(job, newError(KindNoContent, nil))
	}
	return o.execute(ctx, job, printerIndex, escpos.Build(*content))
}

// PrintRaw sends pre-encoded printer bytes through the same lifecycle as
// Print
func (o *Orchestrator) PrintRaw(ctx context.Context, data []byte, printerIndex *int) (*PrintJob, error) {
	job := o.newJob()
	if len(data) == 0 {
		return o.finish(job, newError(KindNoContent, nil))
	}
	return o.execute(ctx, job, printerIndex, escpos.Sequence{escpos.WriteRaw(data)})
}

// Wait blocks until every background release started by timed-out jobs
// has finished
func (o *Orchestrator) Wait() {
	o.background.Wait()
}

func (o *Orchestrator) newJob() *PrintJob {
	now := time.Now()
	return &PrintJob{
		ID:       uuid.NewString(),
		Started:  now,
		Deadline: now.Add(o.deadline),
	}
}

func (o *Orchestrator) execute(ctx context.Context, job *PrintJob, printerIndex *int, seq escpos.Sequence) (*PrintJob, error) {
	devices, err := o.registry.Enumerate()
	if err != nil {
		return o.finish(job, newError(KindEnumerationFailed, err))
	}
	if len(devices) == 0 {
		return o.finish(job, newError(KindNoPrintersFound, nil))
	}

	index := 0
	if printerIndex != nil {
		index = *printerIndex
	}
	device, err := adapter.Select(devices, index)
	if err != nil {
		return o.finish(job, newError(KindPrinterNotFound, err))
	}

	job.Device = device
	job.Sequence = seq
	o.events.emit(Event{Type: EventJobStarted, JobID: job.ID, Device: &job.Device})
	o.logger.Printf("Job %s: %d commands for printer %d %s", job.ID, len(seq), device.Index, device)

	// Only the deadline aborts a job; a caller going away does not.
	ctx, cancel := context.WithDeadline(context.WithoutCancel(ctx), job.Deadline)

	o.metrics.enter()
	defer o.metrics.leave()

	waitStart := time.Now()
	release, err := o.gates.acquire(ctx, device.Key())
	o.metrics.waited(time.Since(waitStart))
	if err != nil {
		cancel()
		return o.finish(job, newError(KindTimeout, err))
	}

	session := adapter.NewSession(device, o.factory(device), o.encoder, o.logger)
	done := make(chan error, 1)
	go func() {
		done <- o.drive(ctx, job, session)
	}()

	select {
	case err := <-done:
		cancel()
		release()
		return o.finish(job, err)
	case <-ctx.Done():
	}

	// The job may have completed at the same instant the deadline fired.
	select {
	case err := <-done:
		cancel()
		release()
		return o.finish(job, err)
	default:
	}

	o.background.Add(1)
	go o.forceRelease(job, session, release)
	cancel()
	return o.finish(job, newError(KindTimeout, ctx.Err()))
}

// drive opens the session, sends the sequence and always closes an opened
// session. A close failure only surfaces when the transfer succeeded.
func (o *Orchestrator) drive(ctx context.Context, job *PrintJob, session *adapter.Session) error {
	if err := session.Open(); err != nil {
		return newError(KindOpenFailed, err)
	}
	o.events.emit(Event{Type: EventDeviceOpened, JobID: job.ID, Device: &job.Device})

	sendErr := session.Send(ctx, job.Sequence)
	closeErr := session.Close()
	o.deviceReleased(job)

	if sendErr != nil {
		if closeErr != nil {
			o.logger.Printf("Job %s: close after failed transfer: %v", job.ID, closeErr)
		}
		return newError(KindTransferFailed, sendErr)
	}
	if closeErr != nil {
		return newError(KindCloseFailed, closeErr)
	}
	return nil
}

// forceRelease closes a timed-out job's session in the background and
// hands the device gate on once the device is released or the grace
// period has passed.
func (o *Orchestrator) forceRelease(job *PrintJob, session *adapter.Session, release func()) {
	defer o.background.Done()
	defer release()

	closed := make(chan error, 1)
	go func() {
		closed <- session.Close()
	}()

	timer := time.NewTimer(o.grace)
	defer timer.Stop()

	select {
	case err := <-closed:
		if err != nil {
			o.logger.Printf("Job %s: forced close failed: %v", job.ID, err)
		} else {
			o.logger.Printf("Job %s: forced close of %s done", job.ID, job.Device)
		}
		o.deviceReleased(job)
	case <-timer.C:
		o.logger.Printf("Job %s: %s not released after %s, unblocking next job", job.ID, job.Device, o.grace)
	}
}

func (o *Orchestrator) deviceReleased(job *PrintJob) {
	job.released.Do(func() {
		o.events.emit(Event{Type: EventDeviceReleased, JobID: job.ID, Device: &job.Device})
	})
}

func (o *Orchestrator) finish(job *PrintJob, err error) (*PrintJob, error) {
	job.Finished = time.Now()
	elapsed := job.Finished.Sub(job.Started)
	o.metrics.observe(err, elapsed)

	if err != nil {
		job.Err = err
		kind := KindOf(err)
		o.logger.Printf("Job %s failed after %s (%s): %v", job.ID, elapsed.Round(time.Millisecond), kind, err)
		event := Event{Type: EventJobFailed, JobID: job.ID, Kind: kind.String(), Error: err.Error()}
		if job.Sequence != nil {
			event.Device = &job.Device
		}
		o.events.emit(event)
		return job, err
	}

	o.logger.Printf("Job %s printed in %s", job.ID, elapsed.Round(time.Millisecond))
	o.events.emit(Event{Type: EventJobSucceeded, JobID: job.ID, Device: &job.Device})
	return job, nil
}
