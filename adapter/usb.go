package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"sort"
	"sync"

	"github.com/google/gousb"
)

// Interface class codes
// Reference: http://www.usb.org/developers/defined_class
const (
	IfaceClassAudio   = 0x01
	IfaceClassHID     = 0x03
	IfaceClassPrinter = 0x07
	IfaceClassHub     = 0x09
)

var (
	ErrNotOpen     = errors.New("device not open")
	ErrAlreadyOpen = errors.New("device already open")
)

func newUSBLogger() *log.Logger {
	return log.New(os.Stdout, "[USB] ", log.LstdFlags|log.Lmsgprefix)
}

// HasPrinterInterface checks whether any configuration of the device
// exposes a printer-class interface
func HasPrinterInterface(desc *gousb.DeviceDesc) bool {
	if desc == nil {
		return false
	}
	for _, cfg := range desc.Configs {
		if printerInterface(cfg) >= 0 {
			return true
		}
	}
	return false
}

// printerInterface returns the number of the first printer-class
// interface in cfg, or -1
func printerInterface(cfg gousb.ConfigDesc) int {
	for _, iface := range cfg.Interfaces {
		for _, alt := range iface.AltSettings {
			if alt.Class == IfaceClassPrinter {
				return iface.Number
			}
		}
	}
	return -1
}

// USBBus scans the USB bus for printer-class devices
type USBBus struct {
	logger *log.Logger
}

// NewUSBBus creates a USB bus scanner
func NewUSBBus() *USBBus {
	return &USBBus{logger: newUSBLogger()}
}

// NewUSBBusWithLogger creates a USB bus scanner with a custom logger
func NewUSBBusWithLogger(logger *log.Logger) *USBBus {
	return &USBBus{logger: logger}
}

// Scan lists printer devices from their descriptors without opening any
// of them, ordered by bus and address.
func (b *USBBus) Scan() ([]DeviceDescriptor, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	var printers []DeviceDescriptor
	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if HasPrinterInterface(desc) {
			b.logger.Printf("Found printer: %s", desc)
			printers = append(printers, DeviceDescriptor{
				VendorID:  uint16(desc.Vendor),
				ProductID: uint16(desc.Product),
				Bus:       desc.Bus,
				Address:   desc.Address,
			})
		}
		return false
	})
	for _, dev := range devices {
		dev.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate usb devices: %w", err)
	}

	sort.Slice(printers, func(i, j int) bool {
		if printers[i].Bus != printers[j].Bus {
			return printers[i].Bus < printers[j].Bus
		}
		return printers[i].Address < printers[j].Address
	})

	return printers, nil
}

// USBAdapter manages communication with one USB printer
type USBAdapter struct {
	descriptor  DeviceDescriptor
	ctx         *gousb.Context
	device      *gousb.Device
	config      *gousb.Config
	iface       *gousb.Interface
	outEndpoint *gousb.OutEndpoint
	isOpen      bool
	logger      *log.Logger
	mu          sync.Mutex
}

// NewUSBAdapter creates an adapter for the device. Nothing is acquired
// until Open.
func NewUSBAdapter(device DeviceDescriptor) *USBAdapter {
	return NewUSBAdapterWithLogger(device, newUSBLogger())
}

// NewUSBAdapterWithLogger creates an adapter with a custom logger
func NewUSBAdapterWithLogger(device DeviceDescriptor, logger *log.Logger) *USBAdapter {
	return &USBAdapter{descriptor: device, logger: logger}
}

// USBFactory returns a Factory producing USB adapters
func USBFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = newUSBLogger()
	}
	return func(device DeviceDescriptor) Adapter {
		return NewUSBAdapterWithLogger(device, logger)
	}
}

func (a *USBAdapter) matches(desc *gousb.DeviceDesc) bool {
	d := a.descriptor
	if uint16(desc.Vendor) != d.VendorID || uint16(desc.Product) != d.ProductID {
		return false
	}
	if d.Bus == 0 && d.Address == 0 {
		return true
	}
	return desc.Bus == d.Bus && desc.Address == d.Address
}

// Open opens the USB device and claims the printer interface. Everything
// acquired is released again if any step fails.
func (a *USBAdapter) Open() (err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.isOpen {
		return ErrAlreadyOpen
	}

	a.ctx = gousb.NewContext()
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	devices, err := a.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return a.matches(desc)
	})
	for _, dev := range devices {
		if a.device == nil {
			a.device = dev
		} else {
			dev.Close()
		}
	}
	if a.device == nil {
		if err != nil {
			return fmt.Errorf("failed to open device %s: %w", a.descriptor, err)
		}
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, a.descriptor)
	}

	// Set auto-detach kernel driver on Linux
	if runtime.GOOS == "linux" {
		if err := a.device.SetAutoDetach(true); err != nil {
			a.logger.Printf("Warning: auto-detach not available: %v", err)
		}
	}

	cfgNum, err := a.device.ActiveConfigNum()
	if err != nil {
		return fmt.Errorf("failed to get active config: %w", err)
	}

	a.config, err = a.device.Config(cfgNum)
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}

	ifaceNum := printerInterface(a.config.Desc)
	if ifaceNum < 0 {
		return errors.New("no printer interface found")
	}

	a.iface, err = a.config.Interface(ifaceNum, 0)
	if err != nil {
		return fmt.Errorf("failed to claim interface: %w", err)
	}

	for _, epDesc := range a.iface.Setting.Endpoints {
		if epDesc.Direction != gousb.EndpointDirectionOut {
			continue
		}
		ep, err := a.iface.OutEndpoint(epDesc.Number)
		if err == nil {
			a.outEndpoint = ep
			break
		}
	}

	if a.outEndpoint == nil {
		return errors.New("cannot find output endpoint from printer")
	}

	a.isOpen = true
	a.logger.Printf("Opened printer %s", a.descriptor)

	return nil
}

// Ready reports whether the output endpoint is initialized
func (a *USBAdapter) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isOpen && a.outEndpoint != nil
}

// Write sends data to the printer. The lock is not held during the
// transfer so Close stays reachable while a write is blocked.
func (a *USBAdapter) Write(ctx context.Context, data []byte) (int, error) {
	a.mu.Lock()
	open, ep := a.isOpen, a.outEndpoint
	a.mu.Unlock()

	if !open {
		return 0, ErrNotOpen
	}
	if ep == nil {
		return 0, ErrEndpointNotInitialized
	}

	n, err := ep.WriteContext(ctx, data)
	if err != nil {
		return n, fmt.Errorf("write failed: %w", err)
	}
	if n < len(data) {
		return n, io.ErrShortWrite
	}

	return n, nil
}

// Close closes the USB device
func (a *USBAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.isOpen && a.ctx == nil {
		return nil
	}

	err := a.release()
	a.logger.Printf("Closed printer %s", a.descriptor)
	return err
}

// release frees everything acquired so far; callers hold mu
func (a *USBAdapter) release() error {
	var errs []error

	if a.iface != nil {
		a.iface.Close()
		a.iface = nil
	}
	a.outEndpoint = nil

	if a.config != nil {
		if err := a.config.Close(); err != nil {
			errs = append(errs, err)
		}
		a.config = nil
	}

	if a.device != nil {
		if err := a.device.Close(); err != nil {
			errs = append(errs, err)
		}
		a.device = nil
	}

	if a.ctx != nil {
		if err := a.ctx.Close(); err != nil {
			errs = append(errs, err)
		}
		a.ctx = nil
	}

	a.isOpen = false

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}

	return nil
}

// IsOpen returns whether the device is open
func (a *USBAdapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isOpen
}

// Descriptor returns the device this adapter targets
func (a *USBAdapter) Descriptor() DeviceDescriptor {
	return a.descriptor
}
