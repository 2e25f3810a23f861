// internal/download/errors.go
package download

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrDeviceNotFound means no receiver is configured or attached.
var ErrDeviceNotFound = errors.New("device not found")

// FrameError reports malformed framing from the receiver:
// bad start byte, impossible length, or a record index outside its page.
type FrameError struct {
	Op  string
	Err error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame error (%s): %v", e.Op, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

// CRCError reports a checksum mismatch on a packet, page header or record.
type CRCError struct {
	Where string
	Want  uint16
	Got   uint16
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("crc mismatch in %s: got=0x%04x want=0x%04x", e.Where, e.Got, e.Want)
}

// FromPanic converts a value recovered while decoding receiver data into an error.
// Runtime bounds failures (index, slice or makeslice out of range) are framing
// faults; anything else is returned as an opaque panic error.
func FromPanic(rec any) error {
	if rec == nil {
		return nil
	}
	if re, ok := rec.(runtime.Error); ok {
		msg := re.Error()
		if strings.Contains(msg, "out of range") {
			return &FrameError{Op: "decode", Err: re}
		}
		return fmt.Errorf("panic: %w", re)
	}
	if err, ok := rec.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", rec)
}
