package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nixxel-company-limited/escpos-receipt-server/adapter"
	"github.com/nixxel-company-limited/escpos-receipt-server/escpos"
)

var hello = &escpos.Receipt{Header: "Hi", Body: &escpos.Body{Main: "Thanks!"}}

func newTestOrchestrator(registry Enumerator, factory *mockFactory, opts ...Option) *Orchestrator {
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return New(registry, factory.New, opts...)
}

func TestPrintSuccess(t *testing.T) {
	registry := newFakeRegistry(printerA)
	factory := newMockFactory(nil)
	o := newTestOrchestrator(registry, factory)

	job, err := o.Print(context.Background(), hello, nil)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.True(t, job.Succeeded())
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, printerA.Key(), job.Device.Key())
	assert.Equal(t, escpos.Build(*hello), job.Sequence)

	mock := factory.last()
	require.NotNil(t, mock)
	expected, err := escpos.DefaultEncoder().EncodeAll(job.Sequence)
	require.NoError(t, err)
	assert.Equal(t, expected, mock.written())
	assert.Equal(t, 1, mock.closeCount())
	assert.Equal(t, 0, o.gates.size())
}

func TestPrintNoContent(t *testing.T) {
	testCases := []struct {
		name    string
		content *escpos.Receipt
	}{
		{"Absent", nil},
		{"Empty", &escpos.Receipt{}},
		{"EmptyBody", &escpos.Receipt{Body: &escpos.Body{}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			registry := newFakeRegistry(printerA)
			factory := newMockFactory(nil)
			o := newTestOrchestrator(registry, factory)

			job, err := o.Print(context.Background(), tc.content, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNoContent)
			assert.Equal(t, KindNoContent, KindOf(err))
			assert.Equal(t, "No content provided", err.Error())
			assert.False(t, job.Succeeded())
			assert.Equal(t, 0, registry.callCount())
			assert.Equal(t, 0, factory.count())
		})
	}
}

func TestPrintNoPrintersFound(t *testing.T) {
	registry := newFakeRegistry()
	factory := newMockFactory(nil)
	o := newTestOrchestrator(registry, factory)

	_, err := o.Print(context.Background(), hello, nil)
	assert.ErrorIs(t, err, ErrNoPrintersFound)
	assert.Equal(t, "No USB printers found", err.Error())
	assert.Equal(t, 0, factory.count())
}

func TestPrintPrinterNotFound(t *testing.T) {
	for _, index := range []int{1, 2, 10, -1} {
		registry := newFakeRegistry(printerA)
		factory := newMockFactory(nil)
		o := newTestOrchestrator(registry, factory)

		_, err := o.Print(context.Background(), hello, intPtr(index))
		assert.ErrorIs(t, err, ErrPrinterNotFound, "index %d", index)
		assert.ErrorIs(t, err, adapter.ErrDeviceNotFound)
		assert.Equal(t, 0, factory.count())
	}
}

func TestPrintSelectsIndex(t *testing.T) {
	registry := newFakeRegistry(printerA, printerB)
	factory := newMockFactory(nil)
	o := newTestOrchestrator(registry, factory)

	job, err := o.Print(context.Background(), hello, intPtr(1))
	require.NoError(t, err)
	assert.Equal(t, printerB.Key(), job.Device.Key())
	assert.Equal(t, 1, job.Device.Index)
}

func TestPrintEnumerationFailed(t *testing.T) {
	registry := newFakeRegistry(printerA)
	registry.err = errors.New("libusb: no access")
	o := newTestOrchestrator(registry, newMockFactory(nil))

	_, err := o.Print(context.Background(), hello, nil)
	assert.ErrorIs(t, err, ErrEnumerationFailed)
	assert.Contains(t, err.Error(), "no access")

	_, err = o.Printers()
	assert.ErrorIs(t, err, ErrEnumerationFailed)
}

func TestPrintOpenFailed(t *testing.T) {
	factory := newMockFactory(func(adapter.DeviceDescriptor) *mockAdapter {
		return &mockAdapter{openErr: errors.New("LIBUSB_ERROR_BUSY")}
	})
	o := newTestOrchestrator(newFakeRegistry(printerA), factory)

	_, err := o.Print(context.Background(), hello, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOpenFailed)
	assert.Contains(t, err.Error(), "LIBUSB_ERROR_BUSY")

	var openErr *adapter.OpenError
	assert.ErrorAs(t, err, &openErr)
	assert.Equal(t, 0, factory.last().closeCount(), "nothing to close after a failed open")
	assert.Equal(t, 0, o.gates.size())
}

func TestPrintTransferFailedClosesOnce(t *testing.T) {
	for k := 1; k <= 5; k++ {
		factory := newMockFactory(func(adapter.DeviceDescriptor) *mockAdapter {
			return &mockAdapter{
				failWrite: k,
				writeErr:  errors.New("bulk transfer stalled"),
				closeErr:  errors.New("release failed too"),
			}
		})
		o := newTestOrchestrator(newFakeRegistry(printerA), factory)

		_, err := o.Print(context.Background(), hello, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTransferFailed)
		assert.NotErrorIs(t, err, ErrCloseFailed)
		assert.Contains(t, err.Error(), "bulk transfer stalled")

		var transferErr *adapter.TransferError
		require.ErrorAs(t, err, &transferErr)
		assert.Equal(t, k-1, transferErr.Index)

		mock := factory.last()
		assert.Equal(t, 1, mock.closeCount())
		assert.Len(t, mock.writes, k-1)
	}
}

func TestPrintEndpointNotInitialized(t *testing.T) {
	factory := newMockFactory(func(adapter.DeviceDescriptor) *mockAdapter {
		return &mockAdapter{notReady: true}
	})
	o := newTestOrchestrator(newFakeRegistry(printerA), factory)

	_, err := o.Print(context.Background(), hello, nil)
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.ErrorIs(t, err, adapter.ErrEndpointNotInitialized)
	assert.Empty(t, factory.last().writes)
	assert.Equal(t, 1, factory.last().closeCount())
}

func TestPrintCloseFailed(t *testing.T) {
	factory := newMockFactory(func(adapter.DeviceDescriptor) *mockAdapter {
		return &mockAdapter{closeErr: errors.New("device vanished")}
	})
	o := newTestOrchestrator(newFakeRegistry(printerA), factory)

	_, err := o.Print(context.Background(), hello, nil)
	assert.ErrorIs(t, err, ErrCloseFailed)
	assert.Contains(t, err.Error(), "device vanished")
	assert.Equal(t, 1, factory.last().closeCount())
}

func TestPrintTimeoutOnHungTransfer(t *testing.T) {
	hang := make(chan struct{})
	t.Cleanup(func() { close(hang) })

	state := &deviceState{}
	first := true
	factory := newMockFactory(func(adapter.DeviceDescriptor) *mockAdapter {
		m := &mockAdapter{state: state}
		if first {
			m.hang = hang
			m.hangWrite = true
			first = false
		}
		return m
	})

	deadline := 100 * time.Millisecond
	o := newTestOrchestrator(newFakeRegistry(printerA), factory, WithDeadline(deadline))

	start := time.Now()
	_, err := o.Print(context.Background(), hello, nil)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "Print job timeout", err.Error())
	assert.GreaterOrEqual(t, elapsed, deadline-10*time.Millisecond)
	assert.Less(t, elapsed, deadline+500*time.Millisecond)

	hung := factory.last()
	assert.Eventually(t, func() bool { return hung.closeCount() == 1 }, time.Second, 5*time.Millisecond)

	// the device gate was released, so the next job goes through
	job, err := o.Print(context.Background(), hello, nil)
	require.NoError(t, err)
	assert.True(t, job.Succeeded())

	o.Wait()
	assert.Equal(t, 1, hung.closeCount())
	_, overlaps := state.snapshot()
	assert.Equal(t, 0, overlaps)
}

func TestPrintTimeoutOnHungOpen(t *testing.T) {
	hang := make(chan struct{})
	t.Cleanup(func() { close(hang) })

	factory := newMockFactory(func(adapter.DeviceDescriptor) *mockAdapter {
		return &mockAdapter{hang: hang, hangOpen: true}
	})
	o := newTestOrchestrator(newFakeRegistry(printerA), factory,
		WithDeadline(50*time.Millisecond), WithReleaseGrace(20*time.Millisecond))

	_, err := o.Print(context.Background(), hello, nil)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrOpenFailed)

	o.Wait()
	assert.Equal(t, 0, o.gates.size())
}

func TestPrintTimeoutReleasesGateWhenCloseHangs(t *testing.T) {
	hang := make(chan struct{})
	t.Cleanup(func() { close(hang) })

	first := true
	factory := newMockFactory(func(adapter.DeviceDescriptor) *mockAdapter {
		m := &mockAdapter{}
		if first {
			m.hang = hang
			m.hangWrite = true
			m.hangClose = true
			first = false
		}
		return m
	})
	o := newTestOrchestrator(newFakeRegistry(printerA), factory,
		WithDeadline(200*time.Millisecond), WithReleaseGrace(20*time.Millisecond))

	_, err := o.Print(context.Background(), hello, nil)
	require.ErrorIs(t, err, ErrTimeout)

	job, err := o.Print(context.Background(), hello, nil)
	require.NoError(t, err)
	assert.True(t, job.Succeeded())
	o.Wait()
}

func TestPrintIgnoresCallerCancellation(t *testing.T) {
	factory := newMockFactory(func(adapter.DeviceDescriptor) *mockAdapter {
		return &mockAdapter{writeWait: 5 * time.Millisecond}
	})
	o := newTestOrchestrator(newFakeRegistry(printerA), factory)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Print(ctx, hello, nil)
	require.NoError(t, err)
}

func TestConcurrentJobsSameDeviceNeverOverlap(t *testing.T) {
	state := &deviceState{}
	factory := newMockFactory(func(adapter.DeviceDescriptor) *mockAdapter {
		return &mockAdapter{state: state, writeWait: time.Millisecond}
	})
	o := newTestOrchestrator(newFakeRegistry(printerA), factory, WithDeadline(5*time.Second))

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Print(context.Background(), hello, nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	maxOpen, overlaps := state.snapshot()
	assert.Equal(t, 1, maxOpen)
	assert.Equal(t, 0, overlaps)
	assert.Equal(t, 8, factory.count())
	assert.Equal(t, 0, o.gates.size())
}

func TestConcurrentJobsDifferentDevicesRunInParallel(t *testing.T) {
	startedA := make(chan struct{}, 1)
	startedB := make(chan struct{}, 1)
	release := make(chan struct{})

	factory := newMockFactory(func(d adapter.DeviceDescriptor) *mockAdapter {
		m := &mockAdapter{hang: release, hangWrite: true, started: startedA}
		if d.Key() == printerB.Key() {
			m.started = startedB
		}
		return m
	})
	o := newTestOrchestrator(newFakeRegistry(printerA, printerB), factory, WithDeadline(5*time.Second))

	var wg sync.WaitGroup
	for _, index := range []int{0, 1} {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			_, err := o.Print(context.Background(), hello, intPtr(index))
			assert.NoError(t, err)
		}(index)
	}

	// both devices are mid-transfer at the same time
	for _, ch := range []chan struct{}{startedA, startedB} {
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			t.Fatal("job on a different device was blocked")
		}
	}
	close(release)
	wg.Wait()
}

func TestPrintRaw(t *testing.T) {
	factory := newMockFactory(nil)
	o := newTestOrchestrator(newFakeRegistry(printerA), factory)

	data := []byte{0x1B, 0x40, 'o', 'k', 0x0A}
	_, err := o.PrintRaw(context.Background(), data, nil)
	require.NoError(t, err)
	assert.Equal(t, data, factory.last().written())

	_, err = o.PrintRaw(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestPrintMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	o := newTestOrchestrator(newFakeRegistry(printerA), newMockFactory(nil), WithMetrics(metrics))

	_, err := o.Print(context.Background(), hello, nil)
	require.NoError(t, err)
	_, err = o.Print(context.Background(), nil, nil)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.jobs.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.jobs.WithLabelValues("no_content")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.inFlight))

	count, err := testutil.GatherAndCount(reg, "escpos_print_job_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPrintEvents(t *testing.T) {
	events := NewEvents()
	ch, unsubscribe := events.Subscribe(16)
	defer unsubscribe()

	o := newTestOrchestrator(newFakeRegistry(printerA), newMockFactory(nil), WithEvents(events))

	job, err := o.Print(context.Background(), hello, nil)
	require.NoError(t, err)

	var types []EventType
	for i := 0; i < 4; i++ {
		select {
		case ev := <-ch:
			assert.Equal(t, job.ID, ev.JobID)
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("missing event")
		}
	}
	assert.Equal(t, []EventType{EventJobStarted, EventDeviceOpened, EventDeviceReleased, EventJobSucceeded}, types)
}
