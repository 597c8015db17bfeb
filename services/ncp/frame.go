package ncp

import (
	"io"
	"sync"

	"smokenode/x/fmtx"
)

// Frame types. Host to co-processor below 0x40, co-processor to host above.
const (
	framePing       byte = 0x01
	framePong       byte = 0x02
	frameRegister   byte = 0x20
	frameStart      byte = 0x21
	frameCommission byte = 0x22
	frameZoneStatus byte = 0x30
	frameAttr       byte = 0x31
	frameSignal     byte = 0x40
	frameNetwork    byte = 0x41
	frameClose      byte = 0x7f
)

// Frame is a length-prefixed frame: type, 16-bit big-endian length, payload.
type Frame struct {
	Type    byte
	Payload []byte
}

const maxPayload = 0xFFFF

type frameReader struct{ r io.Reader }

type frameWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newFrameReader(r io.Reader) *frameReader { return &frameReader{r: r} }
func newFrameWriter(w io.Writer) *frameWriter { return &frameWriter{w: w} }

func (fr *frameReader) ReadFrame() (Frame, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return Frame{}, err
	}
	n := int(hdr[1])<<8 | int(hdr[2])
	var buf []byte
	if n > 0 {
		buf = make([]byte, n)
		if _, err := io.ReadFull(fr.r, buf); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Type: hdr[0], Payload: buf}, nil
}

// WriteFrame writes header and payload in one call so that concurrent
// writers never interleave.
func (fw *frameWriter) WriteFrame(f Frame) error {
	if len(f.Payload) > maxPayload {
		return fmtx.Errorf("frame too large: %d", len(f.Payload))
	}
	buf := make([]byte, 0, 3+len(f.Payload))
	buf = append(buf, f.Type, byte(len(f.Payload)>>8), byte(len(f.Payload)))
	buf = append(buf, f.Payload...)

	fw.mu.Lock()
	defer fw.mu.Unlock()
	_, err := fw.w.Write(buf)
	return err
}
