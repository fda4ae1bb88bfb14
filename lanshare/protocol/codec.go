package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// IVSize is the length of the IV carried by encrypted transfers.
const IVSize = 16

// MaxFilename is the largest filename the u16 length prefix can carry.
const MaxFilename = 1<<16 - 1

// Flags is the first byte of a transfer.
type Flags uint8

const (
	FlagEncrypted  Flags = 1 << 0
	FlagCompressed Flags = 1 << 1

	knownFlags = FlagEncrypted | FlagCompressed
)

var (
	ErrInvalidHeader = errors.New("protocol: invalid transfer header")
	ErrIVMismatch    = fmt.Errorf("%w: IV must be present iff encrypted", ErrInvalidHeader)
	ErrTruncated     = errors.New("protocol: connection closed before header was complete")
)

// Header precedes the payload of every transfer. It is always sent in the
// clear; only the payload goes through the cipher.
//
// Format:
//
//	1 byte: flags (bit 0 encrypted, bit 1 lz4 compressed)
//	16 bytes: IV, only when encrypted
//	2 bytes: filename length (big endian)
//	N bytes: filename (UTF-8)
//	8 bytes: file size (big endian)
type Header struct {
	Encrypted  bool
	Compressed bool
	IV         []byte
	Filename   string
	FileSize   uint64
}

func (h Header) flags() Flags {
	var f Flags
	if h.Encrypted {
		f |= FlagEncrypted
	}
	if h.Compressed {
		f |= FlagCompressed
	}
	return f
}

func (h Header) validate() error {
	if h.Encrypted != (len(h.IV) > 0) {
		return ErrIVMismatch
	}
	if h.Encrypted && len(h.IV) != IVSize {
		return fmt.Errorf("%w: IV length %d", ErrInvalidHeader, len(h.IV))
	}
	if len(h.Filename) > MaxFilename {
		return fmt.Errorf("%w: filename too long", ErrInvalidHeader)
	}
	if !utf8.ValidString(h.Filename) {
		return fmt.Errorf("%w: filename is not UTF-8", ErrInvalidHeader)
	}
	return nil
}

func WriteHeader(w io.Writer, h Header) error {
	if err := h.validate(); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	if err := bw.WriteByte(byte(h.flags())); err != nil {
		return err
	}
	if h.Encrypted {
		if _, err := bw.Write(h.IV); err != nil {
			return err
		}
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(h.Filename)))
	if _, err := bw.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := bw.WriteString(h.Filename); err != nil {
		return err
	}
	var sizeBuf [8]byte
	binary.BigEndian.PutUint64(sizeBuf[:], h.FileSize)
	if _, err := bw.Write(sizeBuf[:]); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadFlags reads the flags byte and, for encrypted transfers, the IV.
// It consumes nothing past the IV so a receiver can bail out early.
func ReadFlags(r io.Reader) (Header, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return Header{}, truncated(err)
	}
	f := Flags(b[0])
	if f&^knownFlags != 0 {
		return Header{}, fmt.Errorf("%w: unknown flags %#02x", ErrInvalidHeader, b[0])
	}
	h := Header{
		Encrypted:  f&FlagEncrypted != 0,
		Compressed: f&FlagCompressed != 0,
	}
	if h.Encrypted {
		h.IV = make([]byte, IVSize)
		if _, err := io.ReadFull(r, h.IV); err != nil {
			return Header{}, truncated(err)
		}
	}
	return h, nil
}

// ReadFileInfo reads the filename and size into h.
func ReadFileInfo(r io.Reader, h *Header) error {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return truncated(err)
	}
	name := make([]byte, binary.BigEndian.Uint16(lenBuf[:]))
	if _, err := io.ReadFull(r, name); err != nil {
		return truncated(err)
	}
	if !utf8.Valid(name) {
		return fmt.Errorf("%w: filename is not UTF-8", ErrInvalidHeader)
	}
	var sizeBuf [8]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return truncated(err)
	}
	h.Filename = string(name)
	h.FileSize = binary.BigEndian.Uint64(sizeBuf[:])
	return nil
}

// ReadHeader reads a complete header.
func ReadHeader(r io.Reader) (Header, error) {
	h, err := ReadFlags(r)
	if err != nil {
		return Header{}, err
	}
	if err := ReadFileInfo(r, &h); err != nil {
		return Header{}, err
	}
	return h, nil
}

func truncated(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrTruncated
	}
	return err
}
