package inmemory

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxString guards against allocating from a corrupt length prefix.
const maxString = 64 << 20

type binWriter struct {
	w   io.Writer
	buf [8]byte
	err error
}

func (b *binWriter) bytes(p []byte) {
	if b.err != nil {
		return
	}
	_, b.err = b.w.Write(p)
}

func (b *binWriter) u8(v uint8) {
	b.buf[0] = v
	b.bytes(b.buf[:1])
}

func (b *binWriter) u16(v uint16) {
	binary.LittleEndian.PutUint16(b.buf[:2], v)
	b.bytes(b.buf[:2])
}

func (b *binWriter) u32(v uint32) {
	binary.LittleEndian.PutUint32(b.buf[:4], v)
	b.bytes(b.buf[:4])
}

func (b *binWriter) u64(v uint64) {
	binary.LittleEndian.PutUint64(b.buf[:8], v)
	b.bytes(b.buf[:8])
}

func (b *binWriter) str(s string) {
	b.u32(uint32(len(s)))
	b.bytes([]byte(s))
}

type binReader struct {
	r   io.Reader
	buf [8]byte
	err error
}

func (b *binReader) bytes(n int) []byte {
	if b.err != nil {
		return nil
	}
	p := make([]byte, n)
	if _, err := io.ReadFull(b.r, p); err != nil {
		b.err = err
		return nil
	}
	return p
}

func (b *binReader) fill(n int) []byte {
	if b.err != nil {
		return b.buf[:n]
	}
	if _, err := io.ReadFull(b.r, b.buf[:n]); err != nil {
		b.err = err
		for i := range b.buf {
			b.buf[i] = 0
		}
	}
	return b.buf[:n]
}

func (b *binReader) u8() uint8   { return b.fill(1)[0] }
func (b *binReader) u16() uint16 { return binary.LittleEndian.Uint16(b.fill(2)) }
func (b *binReader) u32() uint32 { return binary.LittleEndian.Uint32(b.fill(4)) }
func (b *binReader) u64() uint64 { return binary.LittleEndian.Uint64(b.fill(8)) }

func (b *binReader) str() string {
	n := b.u32()
	if b.err != nil {
		return ""
	}
	if n > maxString {
		b.err = fmt.Errorf("string length %d exceeds limit", n)
		return ""
	}
	return string(b.bytes(int(n)))
}
