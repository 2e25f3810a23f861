// internal/receiver/packet.go
package receiver

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sigurn/crc16"

	"github.com/tamzrod/cgm-collector/internal/download"
)

// Packet layout:
//   SOF(1)=0x01 LEN(2, LE, whole packet) CMD(1) PAYLOAD(n) CRC(2, LE)
// CRC is CRC-16/XMODEM over everything before it.

const (
	startOfFrame byte = 0x01

	packetHeaderLen = 4
	packetCRCLen    = 2
	packetMinLen    = packetHeaderLen + packetCRCLen
	packetMaxLen    = 1590
)

// MaxPagesPerRequest is how many database pages fit in one response packet.
const MaxPagesPerRequest = (packetMaxLen - packetMinLen) / pageLen

type command byte

const (
	cmdAck                   command = 1
	cmdNak                   command = 2
	cmdInvalidCommand        command = 3
	cmdInvalidParam          command = 4
	cmdPing                  command = 10
	cmdReadDatabasePageRange command = 16
	cmdReadDatabasePages     command = 17
	cmdReadSystemTime        command = 34
)

func encodePacket(cmd command, payload []byte) []byte {
	n := packetMinLen + len(payload)
	b := make([]byte, n)
	b[0] = startOfFrame
	binary.LittleEndian.PutUint16(b[1:3], uint16(n))
	b[3] = byte(cmd)
	copy(b[packetHeaderLen:], payload)
	binary.LittleEndian.PutUint16(b[n-packetCRCLen:], crc16sum(b[:n-packetCRCLen]))
	return b
}

func readPacket(r io.Reader) (command, []byte, error) {
	var hdr [packetHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, fmt.Errorf("receiver: read header: %w", err)
	}
	if hdr[0] != startOfFrame {
		return 0, nil, &download.FrameError{Op: "packet", Err: fmt.Errorf("bad start byte 0x%02x", hdr[0])}
	}

	n := int(binary.LittleEndian.Uint16(hdr[1:3]))
	if n < packetMinLen || n > packetMaxLen {
		return 0, nil, &download.FrameError{Op: "packet", Err: fmt.Errorf("length %d out of range", n)}
	}

	rest := make([]byte, n-packetHeaderLen)
	if _, err := io.ReadFull(r, rest); err != nil {
		return 0, nil, fmt.Errorf("receiver: read body: %w", err)
	}

	payload := rest[:len(rest)-packetCRCLen]
	got := binary.LittleEndian.Uint16(rest[len(rest)-packetCRCLen:])

	sum := crc16Update(crc16sum(hdr[:]), payload)
	if sum != got {
		return 0, nil, &download.CRCError{Where: "packet", Want: sum, Got: got}
	}
	return command(hdr[3]), payload, nil
}

var crcTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// crc16sum is CRC-16/XMODEM over b.
func crc16sum(b []byte) uint16 {
	return crc16.Checksum(b, crcTable)
}

// crc16Update continues a running XMODEM checksum (no reflection, no final xor).
func crc16Update(crc uint16, b []byte) uint16 {
	return crc16.Update(crc, b, crcTable)
}
