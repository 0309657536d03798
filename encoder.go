package aom

import (
	"fmt"
	"iter"
	"runtime"
	"sync"
	"time"

	"github.com/thesyncim/aom/internal/native"
)

// EncoderStats provides encoding metrics.
type EncoderStats struct {
	FramesIn     uint64 // Frames submitted to Encode
	Flushes      uint64 // Flush calls
	Packets      uint64 // Packets of every kind pulled
	FramePackets uint64 // Compressed frame packets pulled
	Keyframes    uint64 // Keyframe packets pulled
	Bytes        uint64 // Bytes of compressed frame data pulled
	Errors       uint64 // Native calls that failed
}

// EncodeOptions modify a single Encode call.
type EncodeOptions struct {
	// ForceKeyframe makes this frame a keyframe.
	ForceKeyframe bool
}

// Encoder owns one libaom AV1 encoder context.
//
// An Encoder is safe for use by multiple goroutines, but calls are
// serialized. Close releases the context; an Encoder that becomes
// unreachable without Close is released by the garbage collector and logged
// as a leak.
type Encoder struct {
	mu sync.Mutex
	handle

	cfg         EncoderConfig
	arena       arena
	drained     bool
	keyframeReq bool
	stats       EncoderStats
}

// NewEncoder validates cfg and opens an encoder context.
func NewEncoder(cfg EncoderConfig, opts ...Option) (*Encoder, error) {
	const op = "NewEncoder"
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := newOptions(opts)
	lib, err := loadLibrary(o)
	if err != nil {
		return nil, unavailableError(op, err)
	}

	caps := lib.EncoderCaps()
	switch {
	case caps&native.CapEncoder == 0:
		return nil, &Error{Op: op, Kind: KindUnsupportedOperation, Message: "libaom built without the AV1 encoder"}
	case cfg.Format.HighBitDepth() && caps&native.CapHighBitDepth == 0:
		return nil, &Error{Op: op, Kind: KindUnsupportedOperation, Message: "libaom built without high bit depth support"}
	case cfg.PSNR && caps&native.CapPSNR == 0:
		return nil, &Error{Op: op, Kind: KindUnsupportedOperation, Message: "encoder cannot report PSNR"}
	}

	h, st, detail := lib.NewEncoder(cfg.settings())
	if st != native.StatusOK {
		e := newStatusError(lib, 0, op, st, detail)
		o.observer.Failed(CoderEncoder, op, e.Kind, e.Code)
		o.logger.Debug("encoder init failed", "status", st.String(), "detail", detail)
		return nil, e
	}

	enc := &Encoder{
		handle:  newHandle(lib, h, CoderEncoder, o),
		cfg:     cfg,
		drained: true,
	}
	for _, c := range cfg.controls() {
		st := lib.Control(h, c.id, c.value)
		if st == native.StatusOK {
			continue
		}
		if st == native.StatusIncapable && c.optional {
			enc.log.Warn("control not supported", "control", c.id.String())
			continue
		}
		e := enc.fail(op, st)
		if e.Detail == "" {
			e.Detail = fmt.Sprintf("%s=%d", c.id, c.value)
		}
		lib.Destroy(h)
		return nil, e
	}

	enc.cleanup = runtime.AddCleanup(enc, releaseLeaked, enc.leak())
	enc.obs.Opened(CoderEncoder)
	enc.log.Debug("encoder opened",
		"width", cfg.Width, "height", cfg.Height, "format", cfg.Format.String(),
		"usage", cfg.Usage.String(), "rc", cfg.RateControl.String(), "bitrate_kbps", cfg.BitrateKbps)
	return enc, nil
}

// Config returns the configuration in effect, including SetBitrate and
// SetSpeed changes.
func (e *Encoder) Config() EncoderConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Stats returns a snapshot of the encoder counters.
func (e *Encoder) Stats() EncoderStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Encode submits one frame. The frame is borrowed for the duration of the
// call only. A nil error with no packets available means the encoder is
// holding the frame in its lookahead; keep submitting frames, or Flush.
//
// Packets from an earlier call are invalidated.
func (e *Encoder) Encode(frame *Frame) error {
	return e.encode("Encoder.Encode", frame, EncodeOptions{})
}

// EncodeWithOptions is Encode with per-frame options.
func (e *Encoder) EncodeWithOptions(frame *Frame, opts EncodeOptions) error {
	return e.encode("Encoder.EncodeWithOptions", frame, opts)
}

func (e *Encoder) encode(op string, frame *Frame, opts EncodeOptions) error {
	if frame == nil {
		return invalidArg(op, "nil frame; use Flush to drain the encoder")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed() {
		return closedError(op)
	}
	if err := e.checkFrame(op, frame); err != nil {
		return err
	}

	var flags native.EncodeFlags
	if opts.ForceKeyframe || e.keyframeReq {
		flags |= native.EncodeForceKeyframe
	}
	duration := frame.Duration
	if duration == 0 {
		duration = 1
	}

	e.arena.reset()
	e.drained = false
	start := time.Now()
	st := e.lib.Encode(e.h, frame.image(), frame.PTS, duration, flags)
	e.obs.Call(CoderEncoder, "encode", time.Since(start))
	if err := e.check(op, st); err != nil {
		return err
	}
	e.keyframeReq = false
	e.stats.FramesIn++
	return nil
}

// checkFrame rejects frames the context was not configured for, before any
// native call.
func (e *Encoder) checkFrame(op string, f *Frame) error {
	if f.format != e.cfg.Format {
		return invalidArg(op, "frame format %s, encoder expects %s", f.format, e.cfg.Format)
	}
	if f.width != e.cfg.Width || f.height != e.cfg.Height {
		return invalidArg(op, "frame is %dx%d, encoder expects %dx%d", f.width, f.height, e.cfg.Width, e.cfg.Height)
	}
	if f.bitDepth != e.cfg.BitDepth {
		return invalidArg(op, "frame has %d-bit samples, encoder expects %d", f.bitDepth, e.cfg.BitDepth)
	}
	n := f.format.PlaneCount()
	return checkLayout(op, f.format, f.width, f.height, f.planes[:n], f.strides[:n])
}

// check maps the status of an Encode or Flush. Need-more-data is success
// with nothing to read.
func (e *Encoder) check(op string, st native.Status) error {
	switch kindForStatus(st) {
	case KindUnknown:
		return nil
	case KindNeedMoreData:
		e.drained = true
		return nil
	}
	e.drained = true
	e.stats.Errors++
	return e.fail(op, st)
}

// Flush signals end of input. Packets still held by the lookahead become
// available through NextPacket. libaom may need several Flush calls; FlushAll
// repeats until nothing is left.
func (e *Encoder) Flush() error {
	const op = "Encoder.Flush"
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed() {
		return closedError(op)
	}
	e.arena.reset()
	e.drained = false
	start := time.Now()
	st := e.lib.Encode(e.h, nil, 0, 0, 0)
	e.obs.Call(CoderEncoder, "flush", time.Since(start))
	if err := e.check(op, st); err != nil {
		return err
	}
	e.stats.Flushes++
	return nil
}

// FlushAll flushes until the encoder produces no more output and returns
// every packet, cloned.
func (e *Encoder) FlushAll() ([]*Packet, error) {
	var out []*Packet
	for {
		if err := e.Flush(); err != nil {
			return out, err
		}
		n := len(out)
		for p := range e.Packets() {
			out = append(out, p.Clone())
		}
		if len(out) == n {
			return out, nil
		}
	}
}

// NextPacket returns the next packet produced by the last Encode or Flush.
// It returns false once the output is exhausted; further calls keep
// returning false without touching the native context.
func (e *Encoder) NextPacket() (*Packet, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed() || e.drained {
		return nil, false
	}
	var np native.Packet
	if !e.lib.NextPacket(e.h, &np) {
		e.drained = true
		return nil, false
	}
	p := e.arena.packet(&np)

	e.stats.Packets++
	if p.Kind == PacketFrame {
		e.stats.FramePackets++
		e.stats.Bytes += uint64(len(p.Data))
		if p.Keyframe() {
			e.stats.Keyframes++
		}
	}
	e.obs.Packet(p.Kind, len(p.Data), p.Keyframe())
	return p, true
}

// Packets iterates the output of the last Encode or Flush.
func (e *Encoder) Packets() iter.Seq[*Packet] {
	return func(yield func(*Packet) bool) {
		for {
			p, ok := e.NextPacket()
			if !ok || !yield(p) {
				return
			}
		}
	}
}

// ReceivePacket is NextPacket with an error instead of a boolean: it returns
// an error of kind KindNeedMoreData when the output is exhausted.
func (e *Encoder) ReceivePacket() (*Packet, error) {
	const op = "Encoder.ReceivePacket"
	if p, ok := e.NextPacket(); ok {
		return p, nil
	}
	e.mu.Lock()
	closed := e.closed()
	e.mu.Unlock()
	if closed {
		return nil, closedError(op)
	}
	return nil, needMoreData(op)
}

// RequestKeyframe makes the next encoded frame a keyframe.
func (e *Encoder) RequestKeyframe() {
	e.mu.Lock()
	e.keyframeReq = true
	e.mu.Unlock()
}

// SetBitrate changes the target bitrate of a running encoder.
func (e *Encoder) SetBitrate(kbps int) error {
	const op = "Encoder.SetBitrate"
	if kbps <= 0 {
		return invalidArg(op, "bitrate %d kbps must be positive", kbps)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed() {
		return closedError(op)
	}
	cfg := e.cfg
	cfg.BitrateKbps = kbps
	if st := e.lib.SetEncoderConfig(e.h, cfg.settings()); st != native.StatusOK {
		e.stats.Errors++
		return e.fail(op, st)
	}
	e.cfg = cfg
	e.log.Debug("bitrate changed", "bitrate_kbps", kbps)
	return nil
}

// SetSpeed changes AOME_SET_CPUUSED. Higher is faster.
func (e *Encoder) SetSpeed(speed int) error {
	const op = "Encoder.SetSpeed"
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed() {
		return closedError(op)
	}
	if limit := maxSpeed(e.cfg.Usage); speed < 0 || speed > limit {
		return invalidArg(op, "speed %d out of range 0-%d", speed, limit)
	}
	if st := e.lib.Control(e.h, native.CtrlCPUUsed, int32(speed)); st != native.StatusOK {
		e.stats.Errors++
		return e.fail(op, st)
	}
	e.cfg.Speed = speed
	return nil
}

// Close releases the encoder context. It is safe to call more than once;
// calls after the first return nil.
func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.arena.release()
	e.drained = true
	return e.release("Encoder.Close")
}
