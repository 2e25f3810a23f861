// internal/receiver/session.go
package receiver

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/tamzrod/cgm-collector/internal/download"
)

// Dialer opens one link to the receiver. ONE attempt per call.
type Dialer func() (io.ReadWriteCloser, error)

// Config is the session's runtime config.
type Config struct {
	Device download.DeviceType
	Dial   Dialer

	// PagesPerRequest caps how many pages one read command asks for.
	// 0 or anything above MaxPagesPerRequest means MaxPagesPerRequest.
	PagesPerRequest int

	Clock clock.Clock
}

// Session is a lazily connected link to one receiver.
// The link is reused while healthy and dropped on any error,
// so the next Download redials.
type Session struct {
	cfg Config

	mu   sync.Mutex
	conn io.ReadWriteCloser
}

func NewSession(cfg Config) (*Session, error) {
	if cfg.Dial == nil {
		return nil, errors.New("receiver: dialer required")
	}
	if cfg.PagesPerRequest <= 0 || cfg.PagesPerRequest > MaxPagesPerRequest {
		cfg.PagesPerRequest = MaxPagesPerRequest
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Session{cfg: cfg}, nil
}

// Connect opens the link if it is not open yet.
func (s *Session) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked()
}

func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Close drops the link. Safe to call repeatedly or when never connected.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropLocked()
}

// Download reads the newest `pages` glucose pages and returns the readings
// newer than since, oldest first.
func (s *Session) Download(ctx context.Context, since download.Since, pages int) (d download.Download, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pages <= 0 {
		pages = 1
	}

	if err := s.connectLocked(); err != nil {
		return download.Download{}, err
	}

	defer func() {
		if rec := recover(); rec != nil {
			d = download.Download{}
			err = download.FromPanic(rec)
		}
		if err != nil {
			// Stream position is unknown after any failure.
			_ = s.dropLocked()
		}
	}()

	at := s.cfg.Clock.Now()

	if err := ctx.Err(); err != nil {
		return download.Download{}, err
	}
	if _, err := s.exchange(cmdPing, nil); err != nil {
		return download.Download{}, fmt.Errorf("receiver: ping: %w", err)
	}

	sysTime, err := s.readSystemTime()
	if err != nil {
		return download.Download{}, err
	}

	first, last, err := s.readPageRange(recordTypeEGV)
	if err != nil {
		return download.Download{}, err
	}

	var readings []download.Reading
	if first != emptyPage && last != emptyPage {
		start := first
		if last-first+1 > uint32(pages) {
			start = last - uint32(pages) + 1
		}

		for p := start; p <= last; {
			if err := ctx.Err(); err != nil {
				return download.Download{}, err
			}

			n := last - p + 1
			if n > uint32(s.cfg.PagesPerRequest) {
				n = uint32(s.cfg.PagesPerRequest)
			}
			rs, err := s.readEGVPages(p, n)
			if err != nil {
				return download.Download{}, err
			}
			for _, r := range rs {
				if since.Includes(r.SystemTime) {
					readings = append(readings, r)
				}
			}
			p += n
		}
	}

	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].SystemTime < readings[j].SystemTime
	})

	return download.New(at, s.cfg.Device, sysTime, readings), nil
}

// ---- link lifecycle ----

func (s *Session) connectLocked() error {
	if s.conn != nil {
		return nil
	}
	conn, err := s.cfg.Dial()
	if err != nil {
		return fmt.Errorf("receiver: connect: %w", err)
	}
	s.conn = conn
	return nil
}

func (s *Session) dropLocked() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// ---- commands ----

func (s *Session) exchange(cmd command, payload []byte) ([]byte, error) {
	if _, err := s.conn.Write(encodePacket(cmd, payload)); err != nil {
		return nil, fmt.Errorf("receiver: write: %w", err)
	}

	resp, body, err := readPacket(s.conn)
	if err != nil {
		return nil, err
	}

	switch resp {
	case cmdAck:
		return body, nil
	case cmdNak, cmdInvalidCommand, cmdInvalidParam:
		return nil, fmt.Errorf("receiver: command %d rejected with %d", cmd, resp)
	default:
		return nil, &download.FrameError{Op: "response", Err: fmt.Errorf("unexpected response %d to command %d", resp, cmd)}
	}
}

func (s *Session) readSystemTime() (uint32, error) {
	body, err := s.exchange(cmdReadSystemTime, nil)
	if err != nil {
		return 0, fmt.Errorf("receiver: read system time: %w", err)
	}
	if len(body) != 4 {
		return 0, &download.FrameError{Op: "system time", Err: fmt.Errorf("payload %d bytes", len(body))}
	}
	return binary.LittleEndian.Uint32(body), nil
}

func (s *Session) readPageRange(recordType byte) (first, last uint32, err error) {
	body, err := s.exchange(cmdReadDatabasePageRange, []byte{recordType})
	if err != nil {
		return 0, 0, fmt.Errorf("receiver: read page range: %w", err)
	}
	if len(body) != 8 {
		return 0, 0, &download.FrameError{Op: "page range", Err: fmt.Errorf("payload %d bytes", len(body))}
	}
	first = binary.LittleEndian.Uint32(body[0:4])
	last = binary.LittleEndian.Uint32(body[4:8])
	if first != emptyPage && last < first {
		return 0, 0, &download.FrameError{Op: "page range", Err: fmt.Errorf("last page %d before first %d", last, first)}
	}
	return first, last, nil
}

func (s *Session) readEGVPages(start, count uint32) ([]download.Reading, error) {
	req := make([]byte, 6)
	req[0] = recordTypeEGV
	binary.LittleEndian.PutUint32(req[1:5], start)
	req[5] = byte(count)

	body, err := s.exchange(cmdReadDatabasePages, req)
	if err != nil {
		return nil, fmt.Errorf("receiver: read pages %d+%d: %w", start, count, err)
	}
	if len(body) != int(count)*pageLen {
		return nil, &download.FrameError{
			Op:  "pages",
			Err: fmt.Errorf("payload %d bytes for %d pages", len(body), count),
		}
	}

	var out []download.Reading
	for i := 0; i < int(count); i++ {
		rs, err := parseEGVPage(body[i*pageLen : (i+1)*pageLen])
		if err != nil {
			return nil, err
		}
		out = append(out, rs...)
	}
	return out, nil
}
