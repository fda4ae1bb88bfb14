package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
)

const (
	// BlockSize is the AES block size.
	BlockSize = aes.BlockSize
	// IVSize is the CBC initialization vector length.
	IVSize = aes.BlockSize
)

// SealedSize is the ciphertext length of n plaintext bytes. PKCS#7 always
// adds between 1 and BlockSize bytes.
func SealedSize(n uint64) uint64 {
	return (n/BlockSize + 1) * BlockSize
}

var (
	ErrInvalidIV        = errors.New("crypto: invalid IV length")
	ErrDecryptionFailed = errors.New("crypto: decryption failed (likely wrong password)")
	ErrWriterClosed     = errors.New("crypto: write to closed encrypt writer")
)

// GenerateIV returns a fresh random IV. Never reuse one across transfers.
func GenerateIV() ([]byte, error) {
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, err
	}
	return iv, nil
}

func newBlock(key Key, iv []byte) (cipher.Block, error) {
	if len(iv) != IVSize {
		return nil, ErrInvalidIV
	}
	return aes.NewCipher(key[:])
}

// EncryptWriter encrypts everything written to it with AES-CBC and forwards
// whole ciphertext blocks to the underlying writer.
// Close must be called to emit the final padded block.
type EncryptWriter struct {
	w       io.Writer
	mode    cipher.BlockMode
	pending []byte
	closed  bool
}

// NewEncryptWriter wraps w. Closing the EncryptWriter does not close w.
func NewEncryptWriter(w io.Writer, key Key, iv []byte) (*EncryptWriter, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, err
	}
	return &EncryptWriter{
		w:       w,
		mode:    cipher.NewCBCEncrypter(block, iv),
		pending: make([]byte, 0, 2*aes.BlockSize),
	}, nil
}

func (e *EncryptWriter) Write(p []byte) (int, error) {
	if e.closed {
		return 0, ErrWriterClosed
	}
	e.pending = append(e.pending, p...)
	full := len(e.pending) - len(e.pending)%aes.BlockSize
	if full == 0 {
		return len(p), nil
	}
	e.mode.CryptBlocks(e.pending[:full], e.pending[:full])
	if _, err := e.w.Write(e.pending[:full]); err != nil {
		return 0, err
	}
	e.pending = append(e.pending[:0], e.pending[full:]...)
	return len(p), nil
}

// Close pads and writes the final block. It is safe to call more than once.
func (e *EncryptWriter) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	pad := aes.BlockSize - len(e.pending)%aes.BlockSize
	for i := 0; i < pad; i++ {
		e.pending = append(e.pending, byte(pad))
	}
	e.mode.CryptBlocks(e.pending, e.pending)
	_, err := e.w.Write(e.pending)
	e.pending = e.pending[:0]
	return err
}

// DecryptReader decrypts an AES-CBC stream read from an underlying reader.
// The last ciphertext block is held back until the source reports EOF, at
// which point its padding is validated. A bad final block is reported as
// ErrDecryptionFailed and a ciphertext cut off mid-block as
// io.ErrUnexpectedEOF, instead of io.EOF.
type DecryptReader struct {
	r       io.Reader
	mode    cipher.BlockMode
	scratch []byte
	in      []byte
	plain   []byte
	out     []byte
	err     error
}

// NewDecryptReader wraps r.
func NewDecryptReader(r io.Reader, key Key, iv []byte) (*DecryptReader, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, err
	}
	return &DecryptReader{
		r:       r,
		mode:    cipher.NewCBCDecrypter(block, iv),
		scratch: make([]byte, 32*1024),
	}, nil
}

func (d *DecryptReader) Read(p []byte) (int, error) {
	for len(d.out) == 0 {
		if d.err != nil {
			return 0, d.err
		}
		d.fill()
	}
	n := copy(p, d.out)
	d.out = d.out[n:]
	return n, nil
}

func (d *DecryptReader) fill() {
	n, err := d.r.Read(d.scratch)
	d.in = append(d.in, d.scratch[:n]...)

	// Everything but the last complete block can be released now.
	k := (len(d.in) - 1) / aes.BlockSize * aes.BlockSize
	if k > 0 {
		if cap(d.plain) < k+aes.BlockSize {
			d.plain = make([]byte, k, k+aes.BlockSize)
		}
		d.plain = d.plain[:k]
		d.mode.CryptBlocks(d.plain, d.in[:k])
		d.out = d.plain
		d.in = append(d.in[:0], d.in[k:]...)
	}

	switch {
	case err == io.EOF:
		d.err = d.finish()
	case err != nil:
		d.err = err
	}
}

// finish decrypts the held-back block at EOF. A ciphertext that is empty or
// not block aligned was cut short and yields io.ErrUnexpectedEOF; a bad pad
// on a whole block yields ErrDecryptionFailed.
func (d *DecryptReader) finish() error {
	if len(d.in) != aes.BlockSize {
		return io.ErrUnexpectedEOF
	}
	last := make([]byte, aes.BlockSize)
	d.mode.CryptBlocks(last, d.in)
	d.in = d.in[:0]
	pad := int(last[aes.BlockSize-1])
	if pad == 0 || pad > aes.BlockSize {
		return ErrDecryptionFailed
	}
	for _, b := range last[aes.BlockSize-pad:] {
		if int(b) != pad {
			return ErrDecryptionFailed
		}
	}
	d.out = append(d.out, last[:aes.BlockSize-pad]...)
	return io.EOF
}
