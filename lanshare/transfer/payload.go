package transfer

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/lanshare/lanshare/lanshare/crypto"
	"github.com/lanshare/lanshare/lanshare/protocol"
	"github.com/pierrec/lz4/v4"
)

// payloadMode is decided once, when the header is built, and never inferred
// from the writer or reader types afterwards.
type payloadMode uint8

const (
	payloadPlain payloadMode = iota
	payloadSealed
)

func modeOf(h protocol.Header) payloadMode {
	if h.Encrypted {
		return payloadSealed
	}
	return payloadPlain
}

// payloadWriter is the sender side pipeline: [lz4] -> [AES-CBC] -> conn.
type payloadWriter struct {
	mode payloadMode
	w    io.Writer
	zw   *lz4.Writer
	enc  *crypto.EncryptWriter
}

func newPayloadWriter(conn io.Writer, h protocol.Header, password string) (*payloadWriter, error) {
	p := &payloadWriter{mode: modeOf(h), w: conn}
	if p.mode == payloadSealed {
		enc, err := crypto.NewEncryptWriter(conn, crypto.DeriveKey(password), h.IV)
		if err != nil {
			return nil, err
		}
		p.enc = enc
		p.w = enc
	}
	if h.Compressed {
		p.zw = acquireCompressor(p.w)
		p.w = p.zw
	}
	return p, nil
}

func (p *payloadWriter) Write(b []byte) (int, error) { return p.w.Write(b) }

// Finish flushes the compressor and writes the final padded cipher block.
// It must run before the connection is closed.
func (p *payloadWriter) Finish() error {
	if p.zw != nil {
		if err := p.zw.Close(); err != nil {
			return err
		}
		releaseCompressor(p.zw)
		p.zw = nil
	}
	switch p.mode {
	case payloadSealed:
		return p.enc.Close()
	default:
		return nil
	}
}

// payloadReader is the receiver side pipeline: conn -> [AES-CBC] -> [lz4].
type payloadReader struct {
	mode    payloadMode
	ct      *countingReader // ciphertext as it arrives, sealed mode only
	want    uint64          // expected ciphertext length, 0 when compressed
	raw     io.Reader       // after decryption, before decompression
	r       io.Reader
	zr      *decompressor
	head    *headRecorder // first decrypted bytes, sealed and compressed only
}

func newPayloadReader(conn io.Reader, h protocol.Header, password string) (*payloadReader, error) {
	p := &payloadReader{mode: modeOf(h), raw: conn}
	if p.mode == payloadSealed {
		p.ct = &countingReader{r: conn}
		if !h.Compressed {
			p.want = crypto.SealedSize(h.FileSize)
		}
		dec, err := crypto.NewDecryptReader(p.ct, crypto.DeriveKey(password), h.IV)
		if err != nil {
			return nil, err
		}
		p.raw = dec
	}
	p.r = p.raw
	if h.Compressed {
		src := p.raw
		if p.mode == payloadSealed {
			p.head = &headRecorder{r: src}
			src = p.head
		}
		p.zr = acquireDecompressor(src)
		p.r = p.zr
	}
	return p, nil
}

func (p *payloadReader) Read(b []byte) (int, error) { return p.r.Read(b) }

// Finish drains the raw stream to EOF so the final cipher block is always
// validated, even when the decompressor stopped reading early. It returns the
// number of unexpected trailing bytes.
func (p *payloadReader) Finish() (int64, error) {
	if p.zr != nil {
		p.zr.release()
		p.zr = nil
	}
	return io.Copy(io.Discard, p.raw)
}

// cut reports whether a sealed payload stopped before the sender could have
// finished it. Uncompressed, the ciphertext length is known from the header.
// Compressed, a correctly decrypted LZ4 frame magic proves the key, so a
// later bad pad means a short stream.
func (p *payloadReader) cut() bool {
	if p.mode != payloadSealed {
		return false
	}
	if p.head != nil {
		return bytes.Equal(p.head.b, lz4FrameMagic)
	}
	return p.ct.n < p.want
}

// fail maps a payload error onto the transfer error kinds.
func (p *payloadReader) fail(err error) error {
	if p.cut() && errors.Is(err, crypto.ErrDecryptionFailed) {
		return fmt.Errorf("%w: ciphertext ended early: %w", ErrTruncated, err)
	}
	return classify(err, p.mode == payloadSealed)
}

// short reports a payload that ended with fewer bytes than declared.
func (p *payloadReader) short(got, declared uint64) error {
	if p.mode == payloadSealed && !p.cut() {
		return fmt.Errorf("%w: whole ciphertext decrypted to %d of %d bytes", ErrDecryptionFailed, got, declared)
	}
	return fmt.Errorf("%w: got %d of %d bytes", ErrTruncated, got, declared)
}

// lz4FrameMagic opens every LZ4 frame (0x184D2204, little endian).
var lz4FrameMagic = []byte{0x04, 0x22, 0x4d, 0x18}

// headRecorder keeps a copy of the first bytes read through it.
type headRecorder struct {
	r io.Reader
	b []byte
}

func (h *headRecorder) Read(b []byte) (int, error) {
	n, err := h.r.Read(b)
	if need := len(lz4FrameMagic) - len(h.b); need > 0 && n > 0 {
		h.b = append(h.b, b[:min(need, n)]...)
	}
	return n, err
}

type countingReader struct {
	r io.Reader
	n uint64
}

func (c *countingReader) Read(b []byte) (int, error) {
	n, err := c.r.Read(b)
	c.n += uint64(n)
	return n, err
}
