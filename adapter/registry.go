package adapter

import (
	"errors"
	"fmt"
)

// ErrDeviceNotFound is returned when no device exists at the requested index
var ErrDeviceNotFound = errors.New("device not found")

// Bus performs one scan of the attached candidate devices
type Bus interface {
	Scan() ([]DeviceDescriptor, error)
}

// Registry enumerates printers on a bus. Nothing is cached: attachment
// state can change between calls.
type Registry struct {
	bus Bus
}

// NewRegistry creates a registry backed by bus
func NewRegistry(bus Bus) *Registry {
	return &Registry{bus: bus}
}

// Enumerate rescans the bus and numbers the devices found in scan order.
// An empty bus is reported as an empty slice, not an error.
func (r *Registry) Enumerate() ([]DeviceDescriptor, error) {
	found, err := r.bus.Scan()
	if err != nil {
		return nil, fmt.Errorf("failed to scan bus: %w", err)
	}

	devices := make([]DeviceDescriptor, len(found))
	for i, d := range found {
		d.Index = i
		devices[i] = d
	}
	return devices, nil
}

// Resolve returns the device at index from a fresh enumeration
func (r *Registry) Resolve(index int) (DeviceDescriptor, error) {
	devices, err := r.Enumerate()
	if err != nil {
		return DeviceDescriptor{}, err
	}
	return Select(devices, index)
}

// Select returns the device at index in devices
func Select(devices []DeviceDescriptor, index int) (DeviceDescriptor, error) {
	if index < 0 || index >= len(devices) {
		return DeviceDescriptor{}, fmt.Errorf("%w: index %d of %d", ErrDeviceNotFound, index, len(devices))
	}
	return devices[index], nil
}
