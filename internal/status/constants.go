// internal/status/constants.go
package status

// Collector Status Block layout constants.
// These values define the protocol and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of logical slots per collector.
const SlotsPerDevice = 20

// ---- SLOT INDICES ----

// SlotHealthCode holds the collector health state.
const SlotHealthCode = 0

// SlotLastErrorCode holds the last download status code (0 = success).
const SlotLastErrorCode = 1

// SlotSecondsInError holds the duration (in seconds) the collector has been in error.
const SlotSecondsInError = 2

// SlotSecondsToNextPoll holds the countdown to the scheduled poll (0 = none).
const SlotSecondsToNextPoll = 3

// SlotLastGlucose holds the newest glucose value in mg/dL.
const SlotLastGlucose = 4

// SlotLastTrend holds the trend code of the newest reading.
const SlotLastTrend = 5

// LiveSlots is the number of leading slots rewritten incrementally.
const LiveSlots = 6

// ---- RESERVED RANGE ----

// Slots 6-10 are reserved for future use.
const SlotReservedStart = 6
const SlotReservedEnd = 10

// ---- DEVICE NAME ----

// SlotDeviceNameStart is the first slot used for the device name.
// Device name is always placed at the END of the status block.
const SlotDeviceNameStart = 11

// SlotDeviceNameSlots is the number of slots reserved for the device name.
const SlotDeviceNameSlots = 8

// SlotDeviceNameEnd is the last slot used for the device name (inclusive).
const SlotDeviceNameEnd = SlotDeviceNameStart + SlotDeviceNameSlots - 1

// ---- LIMITS ----

// DeviceNameMaxChars is the maximum number of ASCII characters stored for device name.
const DeviceNameMaxChars = 16

// MaxCounter is where second counters saturate.
const MaxCounter = 65535

// ---- HEALTH CODES ----

// HealthUnknown represents an unknown or boot state.
const HealthUnknown uint16 = 0

// HealthOK represents a successful last download.
const HealthOK uint16 = 1

// HealthError represents a failed last download.
const HealthError uint16 = 2

// HealthStale represents a successful download that returned no new readings.
const HealthStale uint16 = 3

// HealthDisabled represents a collector without a configured device.
const HealthDisabled uint16 = 4
