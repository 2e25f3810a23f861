// internal/download/types.go
package download

import (
	"fmt"
	"time"
)

// Status is the normalized outcome of one download attempt.
// The zero value is StatusSuccess; every Download carries an explicit status.
type Status uint8

const (
	StatusSuccess Status = iota
	StatusDeviceNotFound
	StatusTransportFault
	StatusUnknownFault
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusDeviceNotFound:
		return "DEVICE_NOT_FOUND"
	case StatusTransportFault:
		return "TRANSPORT_FAULT"
	case StatusUnknownFault:
		return "UNKNOWN_FAULT"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Code is the numeric fault code exported in the status block.
// 0 means success.
func (s Status) Code() uint16 {
	return uint16(s)
}

// DeviceType identifies the receiver family records were downloaded from.
type DeviceType string

const (
	DeviceNone     DeviceType = ""
	DeviceDexcomG4 DeviceType = "dexcom_g4"
	DeviceShare2   DeviceType = "share2"
)

// Reading is one sensor sample as reported by the receiver.
// SystemTime is seconds since the receiver epoch.
type Reading struct {
	SystemTime  uint32
	DisplayTime uint32
	Glucose     uint16 // mg/dL
	Trend       uint8
}

// Payload is the data part of a successful download.
type Payload struct {
	// ReceiverSystemTime is the receiver clock at download time,
	// in the same epoch as Reading.SystemTime.
	ReceiverSystemTime uint32

	// Readings are chronological (oldest first).
	Readings []Reading
}

// Latest returns the newest reading, if any.
func (p *Payload) Latest() (Reading, bool) {
	if p == nil || len(p.Readings) == 0 {
		return Reading{}, false
	}
	return p.Readings[len(p.Readings)-1], true
}

// Download is the result of exactly one attempt.
// It is a value: once built it is never mutated.
type Download struct {
	Status  Status
	At      time.Time
	Device  DeviceType
	Payload *Payload // nil unless Status == StatusSuccess
}

// New builds a successful Download. Readings are copied.
func New(at time.Time, device DeviceType, receiverTime uint32, readings []Reading) Download {
	rs := make([]Reading, len(readings))
	copy(rs, readings)
	return Download{
		Status: StatusSuccess,
		At:     at,
		Device: device,
		Payload: &Payload{
			ReceiverSystemTime: receiverTime,
			Readings:           rs,
		},
	}
}

// Placeholder builds a Download that carries only a status.
func Placeholder(at time.Time, device DeviceType, s Status) Download {
	return Download{Status: s, At: at, Device: device}
}

// Since is an optional receiver timestamp used as a download cursor.
// The zero value means "no records persisted yet".
type Since struct {
	SystemTime uint32
	Valid      bool
}

// SinceTime returns a valid cursor at t.
func SinceTime(t uint32) Since {
	return Since{SystemTime: t, Valid: true}
}

// Includes reports whether a record at t is newer than the cursor.
func (s Since) Includes(t uint32) bool {
	return !s.Valid || t > s.SystemTime
}
