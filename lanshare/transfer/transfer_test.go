package transfer

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lanshare/lanshare/lanshare/protocol"
	"github.com/lanshare/lanshare/lanshare/transport/quic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func writeSource(t *testing.T, name string, size int) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path, data
}

type outcome struct {
	path    string
	sendErr error
	recvErr error
}

// runTransfer sends src to a receiver bound on loopback and waits for both sides.
func runTransfer(t *testing.T, scfg, rcfg Config, src, saveDir, sendPw, recvPw string) outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if scfg.Logger == nil {
		scfg.Logger = quiet
	}
	if rcfg.Logger == nil {
		rcfg.Logger = quiet
	}

	recv := NewReceiver(rcfg)
	ln, err := recv.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	type result struct {
		path string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := recv.Receive(ctx, ln, saveDir, recvPw)
		ch <- result{p, err}
	}()

	sendErr := NewSender(scfg).SendFile(ctx, ln.Addr().String(), src, sendPw)
	res := <-ch
	return outcome{path: res.path, sendErr: sendErr, recvErr: res.err}
}

func TestTransferPlainLarge(t *testing.T) {
	src, data := writeSource(t, "large.bin", 10<<20)
	dir := t.TempDir()

	out := runTransfer(t, Config{}, Config{}, src, dir, "", "")
	require.NoError(t, out.sendErr)
	require.NoError(t, out.recvErr)
	assert.Equal(t, filepath.Join(dir, "large.bin"), out.path)

	got, err := os.ReadFile(out.path)
	require.NoError(t, err)
	assert.Equal(t, len(data), len(got))
	assert.True(t, bytes.Equal(data, got), "received file differs from source")
}

func TestTransferEncrypted(t *testing.T) {
	src, data := writeSource(t, "secret.txt", 1024)
	dir := t.TempDir()

	out := runTransfer(t, Config{}, Config{}, src, dir, "secret", "secret")
	require.NoError(t, out.sendErr)
	require.NoError(t, out.recvErr)

	got, err := os.ReadFile(out.path)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestTransferFreshIVPerTransfer(t *testing.T) {
	data := bytes.Repeat([]byte("same bytes "), 100)
	s := NewSender(Config{Logger: quiet})

	var wires [2][]byte
	for i := range wires {
		var buf bytes.Buffer
		tr := newTracker(uuid.New(), "f.txt", int64(len(data)), nil)
		require.NoError(t, s.stream(&buf, bytes.NewReader(data), "f.txt", int64(len(data)), "secret", tr))
		wires[i] = buf.Bytes()
	}

	h0, err := protocol.ReadFlags(bytes.NewReader(wires[0]))
	require.NoError(t, err)
	h1, err := protocol.ReadFlags(bytes.NewReader(wires[1]))
	require.NoError(t, err)
	require.True(t, h0.Encrypted)
	require.Len(t, h0.IV, protocol.IVSize)
	assert.NotEqual(t, h0.IV, h1.IV)
	assert.NotEqual(t, wires[0], wires[1])

	// Both still decode with the shared password.
	r := NewReceiver(Config{Logger: quiet})
	for _, wire := range wires {
		path, err := r.receive(bytes.NewReader(wire), uuid.New(), t.TempDir(), "secret", quiet)
		require.NoError(t, err)
		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
}

func TestTransferWrongPassword(t *testing.T) {
	src, _ := writeSource(t, "doc.pdf", 4096+7)
	dir := t.TempDir()

	out := runTransfer(t, Config{}, Config{}, src, dir, "alpha", "beta")
	require.ErrorIs(t, out.recvErr, ErrDecryptionFailed)
	assert.Empty(t, out.path)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial file left behind")
}

func TestTransferMissingPassword(t *testing.T) {
	src, _ := writeSource(t, "doc.pdf", 2048)
	dir := t.TempDir()

	out := runTransfer(t, Config{}, Config{}, src, dir, "alpha", "")
	require.ErrorIs(t, out.recvErr, ErrMissingPassword)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTransferCompressed(t *testing.T) {
	data := bytes.Repeat([]byte("compressible payload line\n"), 20000)
	src := filepath.Join(t.TempDir(), "log.txt")
	require.NoError(t, os.WriteFile(src, data, 0o644))

	for _, pw := range []string{"", "secret"} {
		dir := t.TempDir()
		out := runTransfer(t, Config{Compress: true}, Config{}, src, dir, pw, pw)
		require.NoError(t, out.sendErr, "password %q", pw)
		require.NoError(t, out.recvErr, "password %q", pw)
		got, err := os.ReadFile(out.path)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
}

func TestTransferEmptyFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(src, nil, 0o644))

	for _, pw := range []string{"", "secret"} {
		var last Progress
		dir := t.TempDir()
		out := runTransfer(t, Config{}, Config{OnProgress: func(p Progress) { last = p }}, src, dir, pw, pw)
		require.NoError(t, out.sendErr)
		require.NoError(t, out.recvErr)
		info, err := os.Stat(out.path)
		require.NoError(t, err)
		assert.Zero(t, info.Size())
		assert.Equal(t, 100, last.Percent)
	}
}

func TestTransferProgressMonotonic(t *testing.T) {
	src, data := writeSource(t, "progress.bin", 100*1024+13)

	var mu sync.Mutex
	var sent, received []Progress
	scfg := Config{OnProgress: func(p Progress) { sent = append(sent, p) }}
	rcfg := Config{OnProgress: func(p Progress) {
		mu.Lock()
		received = append(received, p)
		mu.Unlock()
	}}

	out := runTransfer(t, scfg, rcfg, src, t.TempDir(), "pw", "pw")
	require.NoError(t, out.sendErr)
	require.NoError(t, out.recvErr)

	mu.Lock()
	defer mu.Unlock()
	for _, series := range [][]Progress{sent, received} {
		require.NotEmpty(t, series)
		for i := 1; i < len(series); i++ {
			assert.GreaterOrEqual(t, series[i].Percent, series[i-1].Percent)
			assert.Greater(t, series[i].Bytes, series[i-1].Bytes)
			assert.Equal(t, series[0].ID, series[i].ID)
		}
		final := series[len(series)-1]
		assert.Equal(t, int64(len(data)), final.Bytes)
		assert.Equal(t, final.Total, final.Bytes)
		assert.Equal(t, 100, final.Percent)
		for _, p := range series[:len(series)-1] {
			assert.Less(t, p.Percent, 100)
		}
	}
}

func TestTransferOverQUIC(t *testing.T) {
	src, data := writeSource(t, "quic.bin", 256*1024+1)
	dir := t.TempDir()

	cfg := Config{Transport: quic.New()}
	out := runTransfer(t, cfg, cfg, src, dir, "secret", "secret")
	require.NoError(t, out.sendErr)
	require.NoError(t, out.recvErr)

	got, err := os.ReadFile(out.path)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestSendPeerUnreachable(t *testing.T) {
	src, _ := writeSource(t, "a.txt", 10)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	err = NewSender(Config{Logger: quiet}).SendFile(context.Background(), addr, src, "")
	assert.ErrorIs(t, err, ErrPeerUnreachable)
}

func TestSendFileNotFound(t *testing.T) {
	s := NewSender(Config{Logger: quiet})
	err := s.SendFile(context.Background(), "127.0.0.1", filepath.Join(t.TempDir(), "nope"), "")
	assert.ErrorIs(t, err, ErrFileNotFound)

	err = s.SendFile(context.Background(), "127.0.0.1", t.TempDir(), "")
	assert.ErrorIs(t, err, ErrNotRegularFile)
}

func TestReceiveDirectoryUnwritable(t *testing.T) {
	src, _ := writeSource(t, "a.txt", 10)
	missing := filepath.Join(t.TempDir(), "does", "not", "exist")

	out := runTransfer(t, Config{}, Config{}, src, missing, "", "")
	assert.ErrorIs(t, out.recvErr, ErrDirectoryUnwritable)
}

func wire(t *testing.T, h protocol.Header, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, protocol.WriteHeader(&buf, h))
	buf.Write(payload)
	return buf.Bytes()
}

func TestReceiveTruncated(t *testing.T) {
	r := NewReceiver(Config{Logger: quiet})
	dir := t.TempDir()

	data := wire(t, protocol.Header{Filename: "short.bin", FileSize: 100}, make([]byte, 10))
	_, err := r.receive(bytes.NewReader(data), uuid.New(), dir, "", quiet)
	require.ErrorIs(t, err, ErrTruncated)
	_, statErr := os.Stat(filepath.Join(dir, "short.bin"))
	assert.True(t, os.IsNotExist(statErr))

	// Connection dropped inside the header.
	_, err = r.receive(bytes.NewReader(data[:5]), uuid.New(), dir, "", quiet)
	assert.ErrorIs(t, err, ErrTruncated)
}

// sealedWire returns the bytes a Sender puts on the wire for data.
func sealedWire(t *testing.T, cfg Config, name string, data []byte, password string) []byte {
	t.Helper()
	cfg.Logger = quiet
	var buf bytes.Buffer
	tr := newTracker(uuid.New(), name, int64(len(data)), nil)
	require.NoError(t, NewSender(cfg).stream(&buf, bytes.NewReader(data), name, int64(len(data)), password, tr))
	return buf.Bytes()
}

func headerLen(name string, encrypted bool) int {
	n := 1 + 2 + len(name) + 8
	if encrypted {
		n += protocol.IVSize
	}
	return n
}

func TestReceiveFailureKeepsExistingFile(t *testing.T) {
	r := NewReceiver(Config{Logger: quiet})
	dir := t.TempDir()
	target := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(target, []byte("precious user data"), 0o600))

	assertIntact := func() {
		t.Helper()
		got, err := os.ReadFile(target)
		require.NoError(t, err)
		assert.Equal(t, "precious user data", string(got))
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1, "partial file left behind")
	}

	// Sender hangs up after five bytes.
	data := wire(t, protocol.Header{Filename: "notes.txt", FileSize: 100}, []byte("hello"))
	_, err := r.receive(bytes.NewReader(data), uuid.New(), dir, "", quiet)
	require.ErrorIs(t, err, ErrTruncated)
	assertIntact()

	// Wrong password.
	sealed := sealedWire(t, Config{}, "notes.txt", bytes.Repeat([]byte("x"), 300), "alpha")
	_, err = r.receive(bytes.NewReader(sealed), uuid.New(), dir, "beta", quiet)
	require.ErrorIs(t, err, ErrDecryptionFailed)
	assertIntact()

	// A complete transfer replaces the file.
	data = wire(t, protocol.Header{Filename: "notes.txt", FileSize: 3}, []byte("new"))
	path, err := r.receive(bytes.NewReader(data), uuid.New(), dir, "", quiet)
	require.NoError(t, err)
	assert.Equal(t, target, path)
	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReceiveEncryptedTruncated(t *testing.T) {
	data := make([]byte, 4096)
	_, err := rand.Read(data)
	require.NoError(t, err)
	full := sealedWire(t, Config{}, "cut.bin", data, "secret")
	hdr := headerLen("cut.bin", true)
	require.Len(t, full, hdr+4112)

	r := NewReceiver(Config{Logger: quiet})
	for _, n := range []int{0, 5, 1000, 1024, 4096, 4111} {
		dir := t.TempDir()
		_, err := r.receive(bytes.NewReader(full[:hdr+n]), uuid.New(), dir, "secret", quiet)
		require.ErrorIs(t, err, ErrTruncated, "cut after %d ciphertext bytes", n)
		assert.NotErrorIs(t, err, ErrDecryptionFailed, "cut after %d ciphertext bytes", n)
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	}

	// The complete ciphertext under another key is still a password problem.
	_, err = r.receive(bytes.NewReader(full), uuid.New(), t.TempDir(), "not-secret", quiet)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
	assert.NotErrorIs(t, err, ErrTruncated)
}

func TestReceiveEncryptedCompressedTruncated(t *testing.T) {
	data := bytes.Repeat([]byte("compressible payload line\n"), 20000)
	full := sealedWire(t, Config{Compress: true}, "log.txt", data, "secret")
	hdr := headerLen("log.txt", true)
	require.Greater(t, len(full), hdr+1024)

	r := NewReceiver(Config{Logger: quiet})
	for _, n := range []int{512, 515} {
		_, err := r.receive(bytes.NewReader(full[:hdr+n]), uuid.New(), t.TempDir(), "secret", quiet)
		require.ErrorIs(t, err, ErrTruncated, "cut after %d ciphertext bytes", n)
		assert.NotErrorIs(t, err, ErrDecryptionFailed, "cut after %d ciphertext bytes", n)
	}

	_, err := r.receive(bytes.NewReader(full), uuid.New(), t.TempDir(), "not-secret", quiet)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestReceivePlainOverrun(t *testing.T) {
	r := NewReceiver(Config{Logger: quiet})
	data := wire(t, protocol.Header{Filename: "long.bin", FileSize: 4}, []byte("too many bytes"))
	_, err := r.receive(bytes.NewReader(data), uuid.New(), t.TempDir(), "", quiet)
	assert.ErrorIs(t, err, protocol.ErrInvalidHeader)
}

func TestReceiveStripsPath(t *testing.T) {
	r := NewReceiver(Config{Logger: quiet})
	dir := t.TempDir()
	data := wire(t, protocol.Header{Filename: "../../escape.txt", FileSize: 2}, []byte("hi"))
	path, err := r.receive(bytes.NewReader(data), uuid.New(), dir, "", quiet)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "escape.txt"), path)
}

func TestSafeName(t *testing.T) {
	cases := map[string]string{
		"report.pdf":         "report.pdf",
		"dir/file.txt":       "file.txt",
		`C:\Users\me\a.txt`:  "a.txt",
		"../../../etc/hosts": "hosts",
	}
	for in, want := range cases {
		got, err := safeName(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", ".", "..", "/", "a/.."} {
		_, err := safeName(bad)
		assert.ErrorIs(t, err, protocol.ErrInvalidHeader, bad)
	}
}

func TestPeerAddr(t *testing.T) {
	assert.Equal(t, "192.168.1.5:12345", PeerAddr("192.168.1.5", 12345))
	assert.Equal(t, "192.168.1.5:9000", PeerAddr("192.168.1.5:9000", 12345))
	assert.Equal(t, "[::1]:12345", PeerAddr("::1", 12345))
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, percent(0, 10))
	assert.Equal(t, 50, percent(5, 10))
	assert.Equal(t, 99, percent(99, 100))
	assert.Equal(t, 100, percent(10, 10))
	assert.Equal(t, 100, percent(0, 0))
}

func BenchmarkStreamPlain(b *testing.B) {
	data := make([]byte, 1<<20)
	s := NewSender(Config{Logger: quiet})
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.stream(io.Discard, bytes.NewReader(data), "b", int64(len(data)), "", newTracker(uuid.Nil, "b", int64(len(data)), nil))
	}
}
