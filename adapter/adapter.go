package adapter

import (
	"context"
	"fmt"
)

// Adapter defines the interface for printer communication adapters
type Adapter interface {
	// Open acquires the device and its output endpoint
	Open() error

	// Ready reports whether the output endpoint is initialized and a
	// transfer can be attempted
	Ready() bool

	// Write sends data to the printer; ctx aborts an in-flight transfer
	Write(ctx context.Context, data []byte) (int, error)

	// Close releases the device. It must wait for an Open in progress
	// and may be called while a Write is blocked.
	Close() error

	// IsOpen returns whether the connection is open
	IsOpen() bool
}

// Factory creates an unopened adapter for a device. A new adapter is
// created for every session.
type Factory func(device DeviceDescriptor) Adapter

// DeviceDescriptor identifies a candidate printer. Index is only
// meaningful for the enumeration pass that produced it.
type DeviceDescriptor struct {
	Index     int    `json:"id"`
	VendorID  uint16 `json:"vendorId"`
	ProductID uint16 `json:"productId"`
	Bus       int    `json:"bus"`
	Address   int    `json:"address"`
}

// Key returns the physical identity of the device, stable across
// enumeration passes while the device stays attached.
func (d DeviceDescriptor) Key() string {
	return fmt.Sprintf("%03d:%03d:%04x:%04x", d.Bus, d.Address, d.VendorID, d.ProductID)
}

func (d DeviceDescriptor) String() string {
	return fmt.Sprintf("%04x:%04x (bus %d, address %d)", d.VendorID, d.ProductID, d.Bus, d.Address)
}
