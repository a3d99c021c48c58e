/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import "go.uber.org/atomic"

// Default rate ceilings (10 MB/s).
const (
	DefaultMaximumRatePerClientInKiloBytes = 10240
	DefaultMaximumOverAllRateInKiloBytes   = 10240
)

// MasterRateConfig holds process-wide throughput ceilings in kilobytes per second.
// Values may be changed at any time (e.g., through the management API) and are read by the rate allocator.
// Non-negativity is the responsibility of the caller.
type MasterRateConfig struct {
	maximumRatePerClientInKiloBytes atomic.Int64
	maximumOverAllRateInKiloBytes   atomic.Int64
	instantRateInBytes              atomic.Int64
}

// NewMasterRateConfig creates a new MasterRateConfig with the given ceilings.
func NewMasterRateConfig(maximumRatePerClientInKiloBytes, maximumOverAllRateInKiloBytes int64) *MasterRateConfig {
	c := &MasterRateConfig{}
	c.maximumRatePerClientInKiloBytes.Store(maximumRatePerClientInKiloBytes)
	c.maximumOverAllRateInKiloBytes.Store(maximumOverAllRateInKiloBytes)
	return c
}

// NewDefaultMasterRateConfig creates a new MasterRateConfig with default ceilings.
func NewDefaultMasterRateConfig() *MasterRateConfig {
	return NewMasterRateConfig(DefaultMaximumRatePerClientInKiloBytes, DefaultMaximumOverAllRateInKiloBytes)
}

// MaximumRatePerClientInKiloBytes returns the ceiling shared by all uploads of one client.
func (c *MasterRateConfig) MaximumRatePerClientInKiloBytes() int64 {
	return c.maximumRatePerClientInKiloBytes.Load()
}

// SetMaximumRatePerClientInKiloBytes changes the per-client ceiling.
func (c *MasterRateConfig) SetMaximumRatePerClientInKiloBytes(rate int64) {
	c.maximumRatePerClientInKiloBytes.Store(rate)
}

// MaximumOverAllRateInKiloBytes returns the ceiling shared by all uploads of all clients.
func (c *MasterRateConfig) MaximumOverAllRateInKiloBytes() int64 {
	return c.maximumOverAllRateInKiloBytes.Load()
}

// SetMaximumOverAllRateInKiloBytes changes the global ceiling.
func (c *MasterRateConfig) SetMaximumOverAllRateInKiloBytes(rate int64) {
	c.maximumOverAllRateInKiloBytes.Store(rate)
}

// InstantRateInBytes returns the last computed overall throughput in bytes per second.
func (c *MasterRateConfig) InstantRateInBytes() int64 {
	return c.instantRateInBytes.Load()
}

// SetInstantRateInBytes records the overall throughput.
func (c *MasterRateConfig) SetInstantRateInBytes(rate int64) {
	c.instantRateInBytes.Store(rate)
}
