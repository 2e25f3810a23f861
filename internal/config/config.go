// internal/config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Collector CollectorConfig `yaml:"collector"`
}

type CollectorConfig struct {
	Device   DeviceConfig   `yaml:"device"`
	Poll     PollConfig     `yaml:"poll"`
	WakeLock WakeLockConfig `yaml:"wake_lock"`
	Store    StoreConfig    `yaml:"store"`
	Control  ControlConfig  `yaml:"control"`
	Status   *StatusConfig  `yaml:"status"` // optional Modbus export
	Debug    bool           `yaml:"debug"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	Type      string `yaml:"type"` // "dexcom_g4", "share2"; empty = no device
	Port      string `yaml:"port"`
	BaudRate  int    `yaml:"baud_rate"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- POLL ----

type PollConfig struct {
	CeilingSec     int `yaml:"ceiling_sec"`
	FallbackSec    int `yaml:"fallback_sec"`
	MinDelaySec    int `yaml:"min_delay_sec"`
	ScheduledPages int `yaml:"scheduled_pages"`
	ManualPages    int `yaml:"manual_pages"`
}

// ---- WAKE LOCK ----

type WakeLockConfig struct {
	Name string `yaml:"name"`
	Dir  string `yaml:"dir"` // sysfs power dir
}

// ---- STORE ----

type StoreConfig struct {
	DSN   string `yaml:"dsn"` // empty = in-memory
	Table string `yaml:"table"`
}

// ---- CONTROL ----

type ControlConfig struct {
	Addr string `yaml:"addr"` // empty = disabled
}

// ---- STATUS EXPORT ----

type StatusConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	UnitID      uint8   `yaml:"unit_id"`
	Slot        uint16  `yaml:"slot"`
	DataAddress *uint16 `yaml:"data_address"` // newest reading window (optional)
	TimeoutMs   int     `yaml:"timeout_ms"`
	DeviceName  string  `yaml:"device_name"`
}

// Load reads, validates and normalizes the config file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse is Load without the file.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	Normalize(&cfg)
	return &cfg, nil
}
