// internal/config/normalize.go
package config

// Defaults applied by Normalize.
const (
	DefaultCeilingSec     = 600
	DefaultFallbackSec    = 120
	DefaultMinDelaySec    = 15
	DefaultScheduledPages = 1
	DefaultManualPages    = 2
	DefaultBaudRate       = 115200
	DefaultTimeoutMs      = 2000
	DefaultWakeLockName   = "cgm-collector"
	DefaultWakeLockDir    = "/sys/power"
	DefaultTable          = "glucose_readings"
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	c := &cfg.Collector

	if c.Device.BaudRate == 0 {
		c.Device.BaudRate = DefaultBaudRate
	}
	if c.Device.TimeoutMs == 0 {
		c.Device.TimeoutMs = DefaultTimeoutMs
	}

	if c.Poll.CeilingSec == 0 {
		c.Poll.CeilingSec = DefaultCeilingSec
	}
	if c.Poll.FallbackSec == 0 {
		c.Poll.FallbackSec = DefaultFallbackSec
	}
	if c.Poll.MinDelaySec == 0 {
		c.Poll.MinDelaySec = DefaultMinDelaySec
	}
	// Defaults never exceed the sampling interval.
	if c.Poll.MinDelaySec > c.Poll.CeilingSec {
		c.Poll.MinDelaySec = c.Poll.CeilingSec
	}
	if c.Poll.FallbackSec > c.Poll.CeilingSec {
		c.Poll.FallbackSec = c.Poll.CeilingSec
	}
	if c.Poll.ScheduledPages == 0 {
		c.Poll.ScheduledPages = DefaultScheduledPages
	}
	if c.Poll.ManualPages == 0 {
		c.Poll.ManualPages = DefaultManualPages
	}

	if c.WakeLock.Name == "" {
		c.WakeLock.Name = DefaultWakeLockName
	}
	if c.WakeLock.Dir == "" {
		c.WakeLock.Dir = DefaultWakeLockDir
	}

	if c.Store.Table == "" {
		c.Store.Table = DefaultTable
	}

	// ------------------------------------------------------------
	// STATUS EXPORT (OPT-IN)
	// ------------------------------------------------------------

	if c.Status == nil {
		return
	}
	if c.Status.TimeoutMs == 0 {
		c.Status.TimeoutMs = DefaultTimeoutMs
	}
	// ASCII already validated; the block holds 16 characters.
	if len(c.Status.DeviceName) > 16 {
		c.Status.DeviceName = c.Status.DeviceName[:16]
	}
}
