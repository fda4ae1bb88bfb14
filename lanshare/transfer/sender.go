package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/lanshare/lanshare/lanshare/crypto"
	"github.com/lanshare/lanshare/lanshare/protocol"
)

// Sender pushes single files to peers.
type Sender struct {
	cfg  Config
	pool *ChunkPool
}

func NewSender(cfg Config) *Sender {
	cfg = cfg.withDefaults()
	return &Sender{cfg: cfg, pool: NewChunkPool(cfg.ChunkSize)}
}

// SendFile sends the file at path to peer. peer is a host, optionally with a
// port; without one the configured transfer port is used. A non-empty
// password encrypts the payload.
func (s *Sender) SendFile(ctx context.Context, peer, path, password string) error {
	f, info, err := openSource(path)
	if err != nil {
		return err
	}
	defer f.Close()

	addr := PeerAddr(peer, s.cfg.Port)
	id := uuid.New()
	logger := s.cfg.Logger.With("transfer_id", id.String(), "peer", addr, "file", info.Name())

	conn, err := s.cfg.Transport.Dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPeerUnreachable, addr, err)
	}
	logger.Info("connected to peer", "size", info.Size(), "encrypted", password != "", "compressed", s.cfg.Compress)

	err = s.stream(conn, f, info.Name(), info.Size(), password, newTracker(id, info.Name(), info.Size(), s.cfg.OnProgress))
	if cerr := conn.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("transfer: close connection: %w", cerr)
	}
	if err != nil {
		logger.Warn("send failed", "err", err)
		return err
	}
	logger.Info("file sent")
	return nil
}

// stream writes the header and the payload of one transfer to w.
func (s *Sender) stream(w io.Writer, src io.Reader, name string, size int64, password string, t *tracker) error {
	h := protocol.Header{
		Filename:   name,
		FileSize:   uint64(size),
		Compressed: s.cfg.Compress,
	}
	if password != "" {
		iv, err := crypto.GenerateIV()
		if err != nil {
			return fmt.Errorf("transfer: generate IV: %w", err)
		}
		h.Encrypted = true
		h.IV = iv
	}
	if err := protocol.WriteHeader(w, h); err != nil {
		return fmt.Errorf("transfer: write header: %w", err)
	}

	pw, err := newPayloadWriter(w, h, password)
	if err != nil {
		return err
	}

	buf := s.pool.Get()
	defer s.pool.Put(buf)

	var sent int64
	for {
		n, rerr := src.Read(*buf)
		if n > 0 {
			if _, err := pw.Write((*buf)[:n]); err != nil {
				return fmt.Errorf("transfer: send: %w", err)
			}
			sent += int64(n)
			t.add(n)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("transfer: read %s: %w", name, rerr)
		}
	}
	if sent != size {
		return fmt.Errorf("%w: sent %d of %d bytes", ErrFileChanged, sent, size)
	}
	if err := pw.Finish(); err != nil {
		return fmt.Errorf("transfer: finish payload: %w", err)
	}
	t.done()
	return nil
}

func openSource(path string) (*os.File, fs.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, nil, fmt.Errorf("transfer: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("transfer: stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %s", ErrNotRegularFile, filepath.Base(path))
	}
	return f, info, nil
}

// PeerAddr appends port to peer unless it already carries one.
func PeerAddr(peer string, port int) string {
	if _, _, err := net.SplitHostPort(peer); err == nil {
		return peer
	}
	return net.JoinHostPort(peer, strconv.Itoa(port))
}
