package aom

import (
	"iter"
	"runtime"
	"sync"
	"time"

	"github.com/thesyncim/aom/internal/native"
)

// DecoderStats provides decoding metrics.
type DecoderStats struct {
	PacketsIn  uint64 // Packets accepted by Decode
	BytesIn    uint64 // Compressed bytes accepted
	Frames     uint64 // Frames pulled
	Corrupted  uint64 // Packets rejected as corrupt or unsupported bitstreams
	Errors     uint64 // Native calls that failed
	LastWidth  int
	LastHeight int
}

// Decoder owns one libaom AV1 decoder context.
//
// Frames returned by NextFrame are owned by the decoder and stay valid until
// the next Decode, Flush or Close. Use Frame.Clone to keep one longer.
type Decoder struct {
	mu sync.Mutex
	handle

	cfg     DecoderConfig
	pool    []*Frame
	n       int
	drained bool
	stats   DecoderStats
}

// NewDecoder validates cfg and opens a decoder context.
func NewDecoder(cfg DecoderConfig, opts ...Option) (*Decoder, error) {
	const op = "NewDecoder"
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := newOptions(opts)
	lib, err := loadLibrary(o)
	if err != nil {
		return nil, unavailableError(op, err)
	}
	if lib.DecoderCaps()&native.CapDecoder == 0 {
		return nil, &Error{Op: op, Kind: KindUnsupportedOperation, Message: "libaom built without the AV1 decoder"}
	}

	h, st, detail := lib.NewDecoder(cfg.settings())
	if st != native.StatusOK {
		e := newStatusError(lib, 0, op, st, detail)
		o.observer.Failed(CoderDecoder, op, e.Kind, e.Code)
		o.logger.Debug("decoder init failed", "status", st.String(), "detail", detail)
		return nil, e
	}

	dec := &Decoder{
		handle:  newHandle(lib, h, CoderDecoder, o),
		cfg:     cfg,
		drained: true,
	}
	dec.cleanup = runtime.AddCleanup(dec, releaseLeaked, dec.leak())
	dec.obs.Opened(CoderDecoder)
	dec.log.Debug("decoder opened", "threads", cfg.Threads)
	return dec, nil
}

// Config returns the decoder configuration.
func (d *Decoder) Config() DecoderConfig {
	return d.cfg
}

// Stats returns a snapshot of the decoder counters.
func (d *Decoder) Stats() DecoderStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Decode submits one compressed temporal unit. data is borrowed for the
// call only. A nil error with no frames available means the decoder needs
// more data.
func (d *Decoder) Decode(data []byte) error {
	return d.decode("Decoder.Decode", data, 0)
}

// DecodeTagged is Decode with a caller value that is copied to the Tag of
// every frame this packet produces.
func (d *Decoder) DecodeTagged(data []byte, tag uint64) error {
	return d.decode("Decoder.DecodeTagged", data, tag)
}

func (d *Decoder) decode(op string, data []byte, tag uint64) error {
	if len(data) == 0 {
		return invalidArg(op, "empty packet; use Flush to drain the decoder")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed() {
		return closedError(op)
	}
	d.n = 0
	d.drained = false
	start := time.Now()
	st := d.lib.Decode(d.h, data, tag)
	d.obs.Call(CoderDecoder, "decode", time.Since(start))
	if err := d.check(op, st); err != nil {
		if st == native.StatusCorruptFrame || st == native.StatusUnsupBitstream {
			d.stats.Corrupted++
		}
		return err
	}
	d.stats.PacketsIn++
	d.stats.BytesIn += uint64(len(data))
	return nil
}

// Flush signals end of stream so frames held for frame-parallel decoding
// become available.
func (d *Decoder) Flush() error {
	const op = "Decoder.Flush"
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed() {
		return closedError(op)
	}
	d.n = 0
	d.drained = false
	start := time.Now()
	st := d.lib.Decode(d.h, nil, 0)
	d.obs.Call(CoderDecoder, "flush", time.Since(start))
	return d.check(op, st)
}

func (d *Decoder) check(op string, st native.Status) error {
	switch kindForStatus(st) {
	case KindUnknown:
		return nil
	case KindNeedMoreData:
		d.drained = true
		return nil
	}
	d.drained = true
	d.stats.Errors++
	return d.fail(op, st)
}

// NextFrame returns the next frame produced by the last Decode or Flush.
// It returns false once the output is exhausted.
func (d *Decoder) NextFrame() (*Frame, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for !d.closed() && !d.drained {
		var img native.Image
		if !d.lib.NextFrame(d.h, &img) {
			d.drained = true
			break
		}
		var dst *Frame
		if d.n < len(d.pool) {
			dst = d.pool[d.n]
		}
		f := frameFromImage(dst, &img)
		if f == nil {
			d.log.Warn("skipping frame in unsupported layout", "format", uint32(img.Format))
			continue
		}
		if d.n < len(d.pool) {
			d.pool[d.n] = f
		} else {
			d.pool = append(d.pool, f)
		}
		d.n++

		d.stats.Frames++
		d.stats.LastWidth, d.stats.LastHeight = f.width, f.height
		d.obs.Frame(f.width, f.height)
		return f, true
	}
	return nil, false
}

// Frames iterates the output of the last Decode or Flush.
func (d *Decoder) Frames() iter.Seq[*Frame] {
	return func(yield func(*Frame) bool) {
		for {
			f, ok := d.NextFrame()
			if !ok || !yield(f) {
				return
			}
		}
	}
}

// ReceiveFrame is NextFrame with an error instead of a boolean: it returns
// an error of kind KindNeedMoreData when the output is exhausted.
func (d *Decoder) ReceiveFrame() (*Frame, error) {
	const op = "Decoder.ReceiveFrame"
	if f, ok := d.NextFrame(); ok {
		return f, nil
	}
	d.mu.Lock()
	closed := d.closed()
	d.mu.Unlock()
	if closed {
		return nil, closedError(op)
	}
	return nil, needMoreData(op)
}

// Close releases the decoder context. It is safe to call more than once;
// calls after the first return nil.
func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pool = nil
	d.n = 0
	d.drained = true
	return d.release("Decoder.Close")
}
