package pipeline

import (
	"context"
	"io"

	"github.com/c360/leo/errors"
)

// Writer is the write-over-write adapter: it layers codec encoders over
// a downstream writer and pushes bytes through them chunk by chunk.
// Cancellation is checked before every downstream write.
//
// Writer is single-producer: two goroutines must not Write concurrently.
type Writer struct {
	ctx        context.Context
	downstream io.Writer

	// layers holds the codec encoders innermost first; writes enter
	// layers[0] and surface on downstream.
	layers []io.WriteCloser
	top    io.Writer

	completed bool
	aborted   bool
}

// NewWriter composes the codecs over downstream in encode order: bytes
// written pass through codecs[0] first, then codecs[1], and so on, with
// the last codec's output landing on downstream. For the store's
// compress-then-encrypt layout the call is
//
//	NewWriter(ctx, backendWriter, compressor, encryptor)
//
// which makes encryption the outermost layer on disk.
func NewWriter(ctx context.Context, downstream io.Writer, codecs ...Codec) (*Writer, error) {
	w := &Writer{
		ctx:        ctx,
		downstream: downstream,
		top:        downstream,
	}

	// Build from the downstream up so each encoder wraps the next
	// layer's writer.
	for i := len(codecs) - 1; i >= 0; i-- {
		enc, err := codecs[i].Encoder(w.top)
		if err != nil {
			w.teardown()
			return nil, errors.Wrap(err, "pipeline", "NewWriter", "layer "+codecs[i].Algorithm())
		}
		w.layers = append([]io.WriteCloser{enc}, w.layers...)
		w.top = enc
	}

	return w, nil
}

// Write pushes p through the codec chain in chunks of at most ChunkSize.
func (w *Writer) Write(p []byte) (int, error) {
	if w.completed || w.aborted {
		return 0, io.ErrClosedPipe
	}

	written := 0
	for len(p) > 0 {
		if err := w.ctx.Err(); err != nil {
			return written, err
		}

		chunk := p
		if len(chunk) > ChunkSize {
			chunk = chunk[:ChunkSize]
		}

		n, err := w.top.Write(chunk)
		written += n
		if err != nil {
			return written, err
		}
		p = p[n:]
	}
	return written, nil
}

// Close flushes every codec's tail bytes innermost-out and then
// completes the downstream writer (closing it when it is an io.Closer).
// Idempotent.
func (w *Writer) Close() error {
	if w.completed || w.aborted {
		return nil
	}
	w.completed = true

	if err := w.ctx.Err(); err != nil {
		w.teardown()
		return err
	}

	for _, layer := range w.layers {
		if err := layer.Close(); err != nil {
			w.teardown()
			return errors.Wrap(err, "pipeline", "Close", "codec flush")
		}
	}
	w.layers = nil

	if closer, ok := w.downstream.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Abort tears down intermediate codec state without completing the
// downstream writer. Use when a save is abandoned mid-stream.
func (w *Writer) Abort() {
	if w.completed || w.aborted {
		return
	}
	w.aborted = true
	w.teardown()
}

func (w *Writer) teardown() {
	for _, layer := range w.layers {
		_ = layer.Close()
	}
	w.layers = nil
}
