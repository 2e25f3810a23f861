// internal/writer/writer.go
package writer

import (
	"errors"
	"fmt"

	"github.com/tamzrod/cgm-collector/internal/poller"
)

// ReadingWindowSize is the register footprint of the newest-reading window:
// glucose, trend, system time (hi), system time (lo).
const ReadingWindowSize = 4

// RegisterClient is the exact contract the writers use.
type RegisterClient interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

type readingWriter struct {
	plan *DataPlan
	cli  RegisterClient

	lastTime uint32
	written  bool
}

// NewReadingWriter builds the newest-reading writer if the data window is enabled.
func NewReadingWriter(plan Plan, clients map[string]RegisterClient) (Writer, bool) {
	if plan.Data == nil {
		return nil, false
	}
	return &readingWriter{
		plan: plan.Data,
		cli:  clients[plan.Data.Endpoint],
	}, true
}

// Write mirrors the newest reading of a successful download.
// Results without readings, and repeats of the last written reading, are skipped.
func (w *readingWriter) Write(res poller.Result) error {
	if res.Download == nil {
		return nil
	}
	last, ok := res.Download.Payload.Latest()
	if !ok {
		return nil
	}
	if w.written && last.SystemTime == w.lastTime {
		return nil
	}
	if w.cli == nil {
		return errors.New("reading writer: missing client for endpoint " + w.plan.Endpoint)
	}

	regs := []uint16{
		last.Glucose,
		uint16(last.Trend),
		uint16(last.SystemTime >> 16),
		uint16(last.SystemTime),
	}
	if err := w.cli.WriteRegisters(w.plan.UnitID, w.plan.Address, regs); err != nil {
		return fmt.Errorf(
			"reading writer: ep=%s unit=%d addr=%d err=%w",
			w.plan.Endpoint, w.plan.UnitID, w.plan.Address, err,
		)
	}

	w.lastTime = last.SystemTime
	w.written = true
	return nil
}
