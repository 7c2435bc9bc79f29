// Package daq contains the acquisition-source capability and the worker
// logic that drives one acquisition run from source to capture file.
package daq

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"

	"daq-console/internal/domain"
)

// ErrDeviceUnavailable is returned when a source cannot be opened for the
// configured device address.
var ErrDeviceUnavailable = errors.New("device unavailable")

// ErrSourceFault wraps unrecoverable mid-run hardware faults reported by a
// source.
var ErrSourceFault = errors.New("acquisition source fault")

// Source yields a sequence of digitizer events. Next blocks until the next
// trigger fires, the context is cancelled, or the source is exhausted
// (io.EOF). Unrecoverable faults are reported wrapped in ErrSourceFault.
type Source interface {
	Next(ctx context.Context) (domain.Event, error)
	Close() error
}

// OpenFunc opens a configured source for one driver scheme.
type OpenFunc func(ctx context.Context, cfg domain.AcquisitionConfig) (Source, error)

var (
	driversMu sync.RWMutex
	drivers   = map[string]OpenFunc{}
)

// Register installs a source driver for a device address scheme. Hardware
// bindings register themselves here; the simulated driver is built in.
func Register(scheme string, open OpenFunc) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[scheme] = open
}

// Schemes lists the registered driver schemes in sorted order.
func Schemes() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	out := make([]string, 0, len(drivers))
	for scheme := range drivers {
		out = append(out, scheme)
	}
	sort.Strings(out)
	return out
}

// Open resolves the driver for the configured device address and opens a
// source. Unknown schemes and driver handshake failures both surface as
// ErrDeviceUnavailable so the caller of start sees them synchronously.
func Open(ctx context.Context, cfg domain.AcquisitionConfig) (Source, error) {
	u, err := url.Parse(cfg.DeviceAddress)
	if err != nil || u.Scheme == "" {
		return nil, fmt.Errorf("%w: malformed device address %q", ErrDeviceUnavailable, cfg.DeviceAddress)
	}

	driversMu.RLock()
	open, ok := drivers[u.Scheme]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no driver registered for scheme %q", ErrDeviceUnavailable, u.Scheme)
	}

	source, err := open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	return source, nil
}
