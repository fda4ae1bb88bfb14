package transfer

import (
	"errors"
	"fmt"
	"io"

	"github.com/lanshare/lanshare/lanshare/crypto"
	"github.com/lanshare/lanshare/lanshare/protocol"
)

var (
	ErrPeerUnreachable     = errors.New("transfer: peer unreachable")
	ErrMissingPassword     = errors.New("transfer: encrypted transfer but no password supplied")
	ErrDecryptionFailed    = errors.New("transfer: decryption failed, likely wrong password")
	ErrFileNotFound        = errors.New("transfer: file not found")
	ErrNotRegularFile      = errors.New("transfer: not a regular file")
	ErrDirectoryUnwritable = errors.New("transfer: cannot create file in save directory")
	ErrTruncated           = errors.New("transfer: connection closed before transfer completed")
	ErrCorruptPayload      = errors.New("transfer: corrupt payload")
	ErrFileChanged         = errors.New("transfer: source file changed during transfer")
)

// classify maps a payload read failure onto the transfer error kinds.
func classify(err error, encrypted bool) error {
	switch {
	case errors.Is(err, crypto.ErrDecryptionFailed):
		return fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
	case errors.Is(err, protocol.ErrTruncated), err == io.EOF, err == io.ErrUnexpectedEOF:
		return fmt.Errorf("%w: %w", ErrTruncated, err)
	case errors.Is(err, errDecode):
		if encrypted {
			return fmt.Errorf("%w: %w", ErrDecryptionFailed, err)
		}
		return fmt.Errorf("%w: %w", ErrCorruptPayload, err)
	default:
		return fmt.Errorf("transfer: receive: %w", err)
	}
}

// overrun reports a payload longer than the header declared. For encrypted
// transfers that is what a wrong key whose padding happens to validate looks like.
func overrun(encrypted bool) error {
	if encrypted {
		return fmt.Errorf("%w: payload longer than declared size", ErrDecryptionFailed)
	}
	return fmt.Errorf("%w: payload longer than declared size", protocol.ErrInvalidHeader)
}
