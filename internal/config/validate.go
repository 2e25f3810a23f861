// internal/config/validate.go
package config

import (
	"fmt"
)

// Known device types.
var deviceTypes = map[string]bool{
	"":          true,
	"dexcom_g4": true,
	"share2":    true,
}

// StatusBlockSize is the register footprint of the status block per slot.
const StatusBlockSize = 20

// ReadingWindowSize is the register footprint of the newest-reading window.
const ReadingWindowSize = 4

// KnownDeviceType reports whether t names a supported receiver.
func KnownDeviceType(t string) bool {
	return deviceTypes[t]
}

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
//
// An unknown device type is not an error: the collector runs without a device.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	c := cfg.Collector

	// ------------------------------------------------------------
	// DEVICE
	// ------------------------------------------------------------

	if c.Device.BaudRate < 0 {
		return fmt.Errorf("device: baud_rate must be >= 0")
	}
	if c.Device.TimeoutMs < 0 {
		return fmt.Errorf("device: timeout_ms must be >= 0")
	}

	// ------------------------------------------------------------
	// POLL
	// ------------------------------------------------------------

	p := c.Poll
	if p.CeilingSec < 0 || p.FallbackSec < 0 || p.MinDelaySec < 0 {
		return fmt.Errorf("poll: intervals must be >= 0")
	}
	if p.CeilingSec > 0 && p.MinDelaySec > p.CeilingSec {
		return fmt.Errorf("poll: min_delay_sec (%d) exceeds ceiling_sec (%d)", p.MinDelaySec, p.CeilingSec)
	}
	if p.CeilingSec > 0 && p.FallbackSec > p.CeilingSec {
		return fmt.Errorf("poll: fallback_sec (%d) exceeds ceiling_sec (%d)", p.FallbackSec, p.CeilingSec)
	}
	if p.ScheduledPages < 0 || p.ManualPages < 0 {
		return fmt.Errorf("poll: page counts must be >= 0")
	}
	if p.ScheduledPages > 255 || p.ManualPages > 255 {
		return fmt.Errorf("poll: page counts must be <= 255")
	}

	// ------------------------------------------------------------
	// STORE
	// ------------------------------------------------------------

	if !validIdent(c.Store.Table) {
		return fmt.Errorf("store: table %q is not a plain SQL identifier", c.Store.Table)
	}

	// ------------------------------------------------------------
	// STATUS EXPORT (OPT-IN)
	// ------------------------------------------------------------

	s := c.Status
	if s == nil {
		return nil
	}
	if s.Endpoint == "" {
		return fmt.Errorf("status: endpoint is required")
	}
	for i := 0; i < len(s.DeviceName); i++ {
		if s.DeviceName[i] > 0x7F {
			return fmt.Errorf("status: device_name must contain ASCII characters only")
		}
	}

	blockStart := uint32(s.Slot) * StatusBlockSize
	blockEnd := blockStart + StatusBlockSize - 1
	if blockEnd > 0xFFFF {
		return fmt.Errorf("status: slot %d exceeds register space", s.Slot)
	}

	if s.DataAddress != nil {
		start := uint32(*s.DataAddress)
		end := start + ReadingWindowSize - 1
		if end > 0xFFFF {
			return fmt.Errorf("status: data_address %d exceeds register space", start)
		}
		// overlap check (inclusive)
		if !(end < blockStart || start > blockEnd) {
			return fmt.Errorf(
				"status: data window %d-%d overlaps status block %d-%d",
				start,
				end,
				blockStart,
				blockEnd,
			)
		}
	}

	return nil
}

// validIdent accepts "" or [A-Za-z_][A-Za-z0-9_]*.
func validIdent(s string) bool {
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '_', ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
