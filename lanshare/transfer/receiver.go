package transfer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/lanshare/lanshare/lanshare/protocol"
	"github.com/lanshare/lanshare/lanshare/transport"
)

// Receiver accepts single incoming transfers.
type Receiver struct {
	cfg  Config
	pool *ChunkPool
}

func NewReceiver(cfg Config) *Receiver {
	cfg = cfg.withDefaults()
	return &Receiver{cfg: cfg, pool: NewChunkPool(cfg.ChunkSize)}
}

// Listen binds addr for one transfer. Use it with Receive when the caller
// needs the bound address before a sender connects.
func (r *Receiver) Listen(addr string) (transport.Listener, error) {
	ln, err := r.cfg.Transport.Listen(addr)
	if err != nil {
		return nil, fmt.Errorf("transfer: listen %s: %w", addr, err)
	}
	return ln, nil
}

// ReceiveFile binds addr, accepts exactly one transfer, saves it under
// saveDir and releases the listener. saveDir must already exist.
// It returns the path of the written file.
func (r *Receiver) ReceiveFile(ctx context.Context, addr, saveDir, password string) (string, error) {
	ln, err := r.Listen(addr)
	if err != nil {
		return "", err
	}
	defer ln.Close()
	return r.Receive(ctx, ln, saveDir, password)
}

// Receive accepts one connection from ln and saves the transfer under saveDir.
// It blocks until a sender connects or ctx is done.
func (r *Receiver) Receive(ctx context.Context, ln transport.Listener, saveDir, password string) (string, error) {
	r.cfg.Logger.Info("waiting for sender", "addr", ln.Addr().String())
	conn, err := ln.Accept(ctx)
	if err != nil {
		return "", fmt.Errorf("transfer: accept: %w", err)
	}
	defer conn.Close()

	id := uuid.New()
	logger := r.cfg.Logger.With("transfer_id", id.String(), "peer", conn.RemoteAddr().String())
	logger.Info("sender connected")

	path, err := r.receive(conn, id, saveDir, password, logger)
	if err != nil {
		logger.Warn("receive failed", "err", err)
		return "", err
	}
	logger.Info("file received", "path", path)
	return path, nil
}

func (r *Receiver) receive(conn io.Reader, id uuid.UUID, saveDir, password string, logger *slog.Logger) (path string, err error) {
	br := bufio.NewReaderSize(conn, r.cfg.ChunkSize)

	h, err := protocol.ReadFlags(br)
	if err != nil {
		return "", headerErr(err)
	}
	if h.Encrypted && password == "" {
		return "", ErrMissingPassword
	}
	if err := protocol.ReadFileInfo(br, &h); err != nil {
		return "", headerErr(err)
	}
	name, err := safeName(h.Filename)
	if err != nil {
		return "", err
	}
	logger.Info("incoming file", "file", name, "size", h.FileSize, "encrypted", h.Encrypted, "compressed", h.Compressed)

	pr, err := newPayloadReader(br, h, password)
	if err != nil {
		return "", err
	}

	// Write to a temp file beside the target; it replaces the target only
	// after the payload is complete and validated.
	tmp, err := os.CreateTemp(saveDir, "."+name+".part-*")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDirectoryUnwritable, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := r.copyPayload(tmp, pr, h, newTracker(id, name, int64(h.FileSize), r.cfg.OnProgress)); err != nil {
		return "", err
	}
	if err := tmp.Chmod(0o644); err != nil {
		return "", fmt.Errorf("transfer: chmod %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("transfer: close %s: %w", tmp.Name(), err)
	}
	path = filepath.Join(saveDir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("%w: %w", ErrDirectoryUnwritable, err)
	}
	return path, nil
}

func (r *Receiver) copyPayload(dst io.Writer, pr *payloadReader, h protocol.Header, t *tracker) error {
	buf := r.pool.Get()
	defer r.pool.Put(buf)

	var got uint64
	for {
		n, rerr := pr.Read(*buf)
		if n > 0 {
			got += uint64(n)
			if got > h.FileSize {
				return overrun(h.Encrypted)
			}
			if _, err := dst.Write((*buf)[:n]); err != nil {
				return fmt.Errorf("transfer: write: %w", err)
			}
			t.add(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return pr.fail(rerr)
		}
	}
	if got < h.FileSize {
		return pr.short(got, h.FileSize)
	}

	extra, err := pr.Finish()
	if err != nil {
		return pr.fail(err)
	}
	if extra > 0 {
		return overrun(h.Encrypted)
	}
	t.done()
	return nil
}

func headerErr(err error) error {
	if errors.Is(err, protocol.ErrTruncated) {
		return fmt.Errorf("%w: %w", ErrTruncated, err)
	}
	return err
}

// safeName reduces a sender-supplied filename to a single path element.
func safeName(name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, `\`, "/")))
	if base == "/" || base == `\` || base == "." || base == ".." {
		return "", fmt.Errorf("%w: unusable filename %q", protocol.ErrInvalidHeader, name)
	}
	return base, nil
}
