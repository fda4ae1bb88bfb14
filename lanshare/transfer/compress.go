package transfer

import (
	"errors"
	"io"
	"sync"

	"github.com/pierrec/lz4/v4"
)

// errDecode marks a failure inside the decompressor itself, as opposed to
// an error from the stream underneath it.
var errDecode = errors.New("transfer: lz4 decode failed")

// compressorPool reuses LZ4 writers to reduce allocations.
var compressorPool = sync.Pool{
	New: func() interface{} {
		return lz4.NewWriter(nil)
	},
}

// decompressorPool reuses LZ4 readers.
var decompressorPool = sync.Pool{
	New: func() interface{} {
		return lz4.NewReader(nil)
	},
}

// acquireCompressor returns a pooled LZ4 frame writer targeting w.
// LZ4 is chosen for its speed; transfers are usually network-bound.
func acquireCompressor(w io.Writer) *lz4.Writer {
	zw := compressorPool.Get().(*lz4.Writer)
	zw.Reset(w)
	_ = zw.Apply(lz4.CompressionLevelOption(lz4.Fast))
	return zw
}

func releaseCompressor(zw *lz4.Writer) {
	zw.Reset(nil)
	compressorPool.Put(zw)
}

// decompressor reads an LZ4 frame and keeps source and decoder failures apart.
type decompressor struct {
	zr  *lz4.Reader
	src *errRecorder
}

func acquireDecompressor(r io.Reader) *decompressor {
	src := &errRecorder{r: r}
	zr := decompressorPool.Get().(*lz4.Reader)
	zr.Reset(src)
	return &decompressor{zr: zr, src: src}
}

func (d *decompressor) Read(p []byte) (int, error) {
	n, err := d.zr.Read(p)
	if err == nil || err == io.EOF {
		return n, err
	}
	if d.src.err != nil && d.src.err != io.EOF {
		return n, d.src.err
	}
	if d.src.err == io.EOF && err == io.ErrUnexpectedEOF {
		return n, err
	}
	return n, errors.Join(errDecode, err)
}

func (d *decompressor) release() {
	d.zr.Reset(nil)
	decompressorPool.Put(d.zr)
}

// errRecorder remembers the last error returned by r.
type errRecorder struct {
	r   io.Reader
	err error
}

func (e *errRecorder) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil {
		e.err = err
	}
	return n, err
}
