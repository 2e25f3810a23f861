// internal/receiver/serial.go
package receiver

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/goburrow/serial"

	"github.com/tamzrod/cgm-collector/internal/download"
)

// SerialConfig describes the USB CDC serial port of the receiver.
type SerialConfig struct {
	Port     string
	BaudRate int
	Timeout  time.Duration
}

// SerialDialer opens the receiver's serial port (8N1).
// A missing device node is reported as download.ErrDeviceNotFound.
func SerialDialer(c SerialConfig) Dialer {
	return func() (io.ReadWriteCloser, error) {
		if c.Port == "" {
			return nil, fmt.Errorf("%w: no serial port configured", download.ErrDeviceNotFound)
		}
		if _, err := os.Stat(c.Port); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", download.ErrDeviceNotFound, c.Port)
		}

		port, err := serial.Open(&serial.Config{
			Address:  c.Port,
			BaudRate: c.BaudRate,
			DataBits: 8,
			StopBits: 1,
			Parity:   "N",
			Timeout:  c.Timeout,
		})
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", download.ErrDeviceNotFound, c.Port)
			}
			return nil, fmt.Errorf("receiver: open %s: %w", c.Port, err)
		}
		return port, nil
	}
}
