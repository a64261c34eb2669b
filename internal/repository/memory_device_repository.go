package repository

import (
	"context"
	"sync"
	"time"

	"github.com/passmint/wallet-service/internal/domain"
)

// MemoryDeviceRepository implements DeviceRepository using in-memory storage
// for testing and development. Pass-change timestamps come from the paired
// pass repository in the Postgres implementation; here callers set them via
// TouchSerial.
type MemoryDeviceRepository struct {
	regs    map[string]*domain.DeviceRegistration // composite key -> registration
	updated map[string]time.Time                  // serialNumber -> last pass change
	mu      sync.RWMutex
}

// NewMemoryDeviceRepository creates a new in-memory device repository
func NewMemoryDeviceRepository() *MemoryDeviceRepository {
	return &MemoryDeviceRepository{
		regs:    make(map[string]*domain.DeviceRegistration),
		updated: make(map[string]time.Time),
	}
}

func regKey(deviceLibraryID, passTypeID, serialNumber string) string {
	return deviceLibraryID + "|" + passTypeID + "|" + serialNumber
}

// Register stores a registration, returning false when it already existed
func (r *MemoryDeviceRepository) Register(ctx context.Context, reg *domain.DeviceRegistration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := regKey(reg.DeviceLibraryIdentifier, reg.PassTypeIdentifier, reg.SerialNumber)
	_, existed := r.regs[key]

	stored := *reg
	r.regs[key] = &stored
	if _, ok := r.updated[reg.SerialNumber]; !ok {
		r.updated[reg.SerialNumber] = reg.RegisteredAt
	}
	return !existed, nil
}

// Unregister removes one registration
func (r *MemoryDeviceRepository) Unregister(ctx context.Context, deviceLibraryID, passTypeID, serialNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := regKey(deviceLibraryID, passTypeID, serialNumber)
	if _, exists := r.regs[key]; !exists {
		return domain.ErrDeviceNotFound
	}
	delete(r.regs, key)
	return nil
}

// SerialsForDevice lists serials registered to a device whose passes changed
// since the given time
func (r *MemoryDeviceRepository) SerialsForDevice(ctx context.Context, deviceLibraryID, passTypeID string, since time.Time) ([]string, time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var serials []string
	var lastUpdated time.Time
	for _, reg := range r.regs {
		if reg.DeviceLibraryIdentifier != deviceLibraryID || reg.PassTypeIdentifier != passTypeID {
			continue
		}
		changedAt := r.updated[reg.SerialNumber]
		if !changedAt.After(since) {
			continue
		}
		serials = append(serials, reg.SerialNumber)
		if changedAt.After(lastUpdated) {
			lastUpdated = changedAt
		}
	}
	return serials, lastUpdated, nil
}

// DevicesForPass lists the registrations to notify about a pass change
func (r *MemoryDeviceRepository) DevicesForPass(ctx context.Context, passTypeID, serialNumber string) ([]*domain.DeviceRegistration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var regs []*domain.DeviceRegistration
	for _, reg := range r.regs {
		if reg.PassTypeIdentifier == passTypeID && reg.SerialNumber == serialNumber {
			stored := *reg
			regs = append(regs, &stored)
		}
	}
	return regs, nil
}

// TouchSerial records a pass-change instant for SerialsForDevice queries
func (r *MemoryDeviceRepository) TouchSerial(serialNumber string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated[serialNumber] = at
}
