// internal/poller/next.go
package poller

import (
	"time"

	"github.com/tamzrod/cgm-collector/internal/download"
)

// Defaults for NextPoll.
const (
	DefaultCeiling  = 600 * time.Second
	DefaultFallback = 2 * time.Minute
	DefaultMinDelay = 15 * time.Second
)

// NextPoll computes the delay until the next poll.
//
// The receiver records a new sample every Ceiling. After a successful download
// the next poll is aligned to the receiver's own cadence: the age of the newest
// reading (receiver clock minus reading time) modulo Ceiling is how far into the
// current sample window we are, so the next sample is due in Ceiling minus that.
type NextPoll struct {
	Ceiling  time.Duration
	Fallback time.Duration
	Min      time.Duration
}

// DefaultNextPoll returns the stock cadence settings.
func DefaultNextPoll() NextPoll {
	return NextPoll{
		Ceiling:  DefaultCeiling,
		Fallback: DefaultFallback,
		Min:      DefaultMinDelay,
	}
}

// Delay returns the delay after d. A nil or failed download, or one without
// readings, yields Fallback. The result is always positive.
func (n NextPoll) Delay(d *download.Download) time.Duration {
	if d == nil || d.Status != download.StatusSuccess {
		return n.clamp(n.Fallback)
	}
	last, ok := d.Payload.Latest()
	if !ok {
		return n.clamp(n.Fallback)
	}
	return n.CadenceDelay(last.SystemTime, d.Payload.ReceiverSystemTime)
}

// CadenceDelay is the cadence-aligned delay for a reading taken at readingTime
// when the receiver clock reads receiverTime (both in receiver seconds).
func (n NextPoll) CadenceDelay(readingTime, receiverTime uint32) time.Duration {
	ceil := int64(n.Ceiling / time.Second)
	if ceil <= 0 {
		return n.clamp(n.Fallback)
	}

	elapsed := int64(receiverTime) - int64(readingTime)
	rem := ((elapsed % ceil) + ceil) % ceil
	if rem == 0 {
		// On a sample boundary: poll again shortly, never a full ceiling out.
		return n.min()
	}

	return n.clamp(time.Duration(ceil-rem) * time.Second)
}

func (n NextPoll) min() time.Duration {
	if n.Min <= 0 {
		return time.Second
	}
	return n.Min
}

func (n NextPoll) clamp(d time.Duration) time.Duration {
	if m := n.min(); d < m {
		return m
	}
	return d
}
