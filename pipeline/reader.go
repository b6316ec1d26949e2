package pipeline

import (
	"context"
	"io"

	"github.com/c360/leo/errors"
)

// Reader is the read-over-read adapter: it layers codec decoders over an
// upstream reader and serves the decoded bytes chunk by chunk.
// Cancellation is checked before every read.
//
// Reader is single-consumer: two goroutines must not Read concurrently.
type Reader struct {
	ctx      context.Context
	upstream io.Reader

	// layers holds the codec decoders outermost first; layers[len-1]
	// yields the fully decoded bytes.
	layers []io.ReadCloser
	top    io.Reader

	closed bool
}

// NewReader composes the codecs over upstream in decode order: codecs[0]
// strips the outermost on-disk layer. For the store's
// compress-then-encrypt layout the call is
//
//	NewReader(ctx, backendReader, encryptor, compressor)
//
// which decrypts first and decompresses second.
func NewReader(ctx context.Context, upstream io.Reader, codecs ...Codec) (*Reader, error) {
	r := &Reader{
		ctx:      ctx,
		upstream: upstream,
		top:      upstream,
	}

	for _, codec := range codecs {
		dec, err := codec.Decoder(r.top)
		if err != nil {
			r.teardown()
			return nil, errors.Wrap(err, "pipeline", "NewReader", "layer "+codec.Algorithm())
		}
		r.layers = append(r.layers, dec)
		r.top = dec
	}

	return r, nil
}

// Read serves at most ChunkSize decoded bytes per call.
func (r *Reader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, io.ErrClosedPipe
	}
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}

	if len(p) > ChunkSize {
		p = p[:ChunkSize]
	}
	return r.top.Read(p)
}

// Close disposes the codec layers and then the upstream reader when it
// is an io.Closer, invoking the backend's release hook. Idempotent.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	r.teardown()

	if closer, ok := r.upstream.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (r *Reader) teardown() {
	// Innermost first so each layer can still drain from the one below.
	for i := len(r.layers) - 1; i >= 0; i-- {
		_ = r.layers[i].Close()
	}
	r.layers = nil
}
