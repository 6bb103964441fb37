package main

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Login-phase packet IDs. Serverbound and clientbound IDs overlap; the
// connection state disambiguates.
const (
	packetHandshake          = 0x00
	packetLoginStart         = 0x00
	packetEncryptionResponse = 0x01

	packetDisconnect        = 0x00
	packetEncryptionRequest = 0x01
	packetLoginSuccess      = 0x02

	// nextStateLogin is the handshake intention for the login flow.
	nextStateLogin = 2

	// maxPacketSize caps login-phase frames. Login packets are tiny;
	// anything bigger is hostile.
	maxPacketSize = 1 << 14

	// maxNameLen is the protocol bound on declared names.
	maxNameLen = 16
)

var errVarIntTooBig = fmt.Errorf("varint exceeds 5 bytes")

// readVarInt decodes a protocol varint (LEB128, 32-bit).
func readVarInt(r io.ByteReader) (int32, error) {
	var value uint32
	for i := 0; ; i++ {
		if i == 5 {
			return 0, errVarIntTooBig
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		value |= uint32(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			break
		}
	}
	return int32(value), nil
}

// appendVarInt encodes a protocol varint.
func appendVarInt(dst []byte, v int32) []byte {
	u := uint32(v)
	for {
		b := byte(u & 0x7F)
		u >>= 7
		if u != 0 {
			b |= 0x80
		}
		dst = append(dst, b)
		if u == 0 {
			return dst
		}
	}
}

// packetReader decodes fields from a framed packet payload.
type packetReader struct {
	buf *bytes.Reader
}

func newPacketReader(payload []byte) *packetReader {
	return &packetReader{buf: bytes.NewReader(payload)}
}

func (r *packetReader) VarInt() (int32, error) {
	return readVarInt(r.buf)
}

func (r *packetReader) String(maxLen int) (string, error) {
	length, err := readVarInt(r.buf)
	if err != nil {
		return "", err
	}
	if length < 0 || int(length) > maxLen*4 {
		return "", fmt.Errorf("string length %d out of bounds", length)
	}
	raw := make([]byte, length)
	if _, err := io.ReadFull(r.buf, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}

func (r *packetReader) ByteArray(maxLen int) ([]byte, error) {
	length, err := readVarInt(r.buf)
	if err != nil {
		return nil, err
	}
	if length < 0 || int(length) > maxLen {
		return nil, fmt.Errorf("byte array length %d out of bounds", length)
	}
	raw := make([]byte, length)
	if _, err := io.ReadFull(r.buf, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (r *packetReader) UShort() (uint16, error) {
	raw := make([]byte, 2)
	if _, err := io.ReadFull(r.buf, raw); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(raw), nil
}

// packetWriter builds a framed packet payload.
type packetWriter struct {
	payload []byte
}

func newPacketWriter(id int32) *packetWriter {
	return &packetWriter{payload: appendVarInt(nil, id)}
}

func (w *packetWriter) VarInt(v int32) *packetWriter {
	w.payload = appendVarInt(w.payload, v)
	return w
}

func (w *packetWriter) String(s string) *packetWriter {
	w.payload = appendVarInt(w.payload, int32(len(s)))
	w.payload = append(w.payload, s...)
	return w
}

func (w *packetWriter) ByteArray(b []byte) *packetWriter {
	w.payload = appendVarInt(w.payload, int32(len(b)))
	w.payload = append(w.payload, b...)
	return w
}

// WriteTo frames the payload with its length prefix and writes it out.
func (w *packetWriter) WriteTo(out io.Writer) error {
	frame := appendVarInt(nil, int32(len(w.payload)))
	frame = append(frame, w.payload...)
	_, err := out.Write(frame)
	return err
}

// readPacket reads one length-framed packet and returns its ID and
// remaining payload.
func readPacket(r *bufio.Reader) (int32, *packetReader, error) {
	length, err := readVarInt(r)
	if err != nil {
		return 0, nil, err
	}
	if length <= 0 || length > maxPacketSize {
		return 0, nil, fmt.Errorf("packet length %d out of bounds", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}

	reader := newPacketReader(payload)
	id, err := reader.VarInt()
	if err != nil {
		return 0, nil, err
	}
	return id, reader, nil
}
