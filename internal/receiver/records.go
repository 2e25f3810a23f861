// internal/receiver/records.go
package receiver

import (
	"encoding/binary"
	"fmt"

	"github.com/tamzrod/cgm-collector/internal/download"
)

// Database page geometry.
const (
	pageLen       = 528
	pageHeaderLen = 28

	recordTypeEGV byte = 0x04
	egvRecordLen       = 13

	// Page range reply for an empty partition.
	emptyPage uint32 = 0xFFFFFFFF

	glucoseMask = 0x03FF
	trendMask   = 0x0F
)

// pageHeader is the fixed prefix of every database page.
//
//	0-3   first record index
//	4-7   record count
//	8     record type
//	9     revision
//	10-13 page number
//	14-25 reserved
//	26-27 crc over 0-25
type pageHeader struct {
	FirstIndex uint32
	Count      uint32
	RecordType byte
	Revision   byte
	PageNumber uint32
}

func parsePageHeader(b []byte) (pageHeader, error) {
	if len(b) < pageHeaderLen {
		return pageHeader{}, &download.FrameError{Op: "page", Err: fmt.Errorf("short page header: %d bytes", len(b))}
	}

	want := crc16sum(b[:pageHeaderLen-2])
	got := binary.LittleEndian.Uint16(b[pageHeaderLen-2 : pageHeaderLen])
	if want != got {
		return pageHeader{}, &download.CRCError{Where: "page header", Want: want, Got: got}
	}

	return pageHeader{
		FirstIndex: binary.LittleEndian.Uint32(b[0:4]),
		Count:      binary.LittleEndian.Uint32(b[4:8]),
		RecordType: b[8],
		Revision:   b[9],
		PageNumber: binary.LittleEndian.Uint32(b[10:14]),
	}, nil
}

// parseEGVPage decodes the glucose records of one page.
//
// Record layout (13 bytes):
//
//	0-3   system time
//	4-7   display time
//	8-9   glucose (low 10 bits)
//	10    trend (low 4 bits)
//	11-12 crc over 0-10
func parseEGVPage(b []byte) ([]download.Reading, error) {
	h, err := parsePageHeader(b)
	if err != nil {
		return nil, err
	}
	if h.RecordType != recordTypeEGV {
		return nil, &download.FrameError{Op: "page", Err: fmt.Errorf("record type 0x%02x on page %d", h.RecordType, h.PageNumber)}
	}

	end := pageHeaderLen + int(h.Count)*egvRecordLen
	if h.Count > pageLen || end > len(b) {
		return nil, &download.FrameError{
			Op:  "page",
			Err: fmt.Errorf("record index %d outside page %d (%d bytes)", h.Count, h.PageNumber, len(b)),
		}
	}

	out := make([]download.Reading, 0, h.Count)
	for i := 0; i < int(h.Count); i++ {
		rec := b[pageHeaderLen+i*egvRecordLen : pageHeaderLen+(i+1)*egvRecordLen]

		want := crc16sum(rec[:egvRecordLen-2])
		got := binary.LittleEndian.Uint16(rec[egvRecordLen-2:])
		if want != got {
			return nil, &download.CRCError{
				Where: fmt.Sprintf("record %d of page %d", h.FirstIndex+uint32(i), h.PageNumber),
				Want:  want,
				Got:   got,
			}
		}

		out = append(out, download.Reading{
			SystemTime:  binary.LittleEndian.Uint32(rec[0:4]),
			DisplayTime: binary.LittleEndian.Uint32(rec[4:8]),
			Glucose:     binary.LittleEndian.Uint16(rec[8:10]) & glucoseMask,
			Trend:       rec[10] & trendMask,
		})
	}
	return out, nil
}
