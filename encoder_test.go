package aom

import (
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/aom/internal/native"
	"github.com/thesyncim/aom/internal/native/nativetest"
)

// recorder is an Observer that remembers what it saw.
type recorder struct {
	mu      sync.Mutex
	opened  map[Coder]int
	closed  map[Coder]int
	leaked  map[Coder]int
	packets map[PacketKind]int
	frames  int
	failed  []Kind
	calls   map[string]int
}

func newRecorder() *recorder {
	return &recorder{
		opened:  map[Coder]int{},
		closed:  map[Coder]int{},
		leaked:  map[Coder]int{},
		packets: map[PacketKind]int{},
		calls:   map[string]int{},
	}
}

func (r *recorder) Opened(c Coder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened[c]++
}

func (r *recorder) Closed(c Coder, leaked bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if leaked {
		r.leaked[c]++
	} else {
		r.closed[c]++
	}
}

func (r *recorder) Packet(kind PacketKind, _ int, _ bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packets[kind]++
}

func (r *recorder) Frame(int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames++
}

func (r *recorder) Failed(_ Coder, _ string, kind Kind, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, kind)
}

func (r *recorder) Call(c Coder, op string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[string(c)+"."+op]++
}

func (r *recorder) leakedCount(c Coder) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaked[c]
}

func testEncoder(t *testing.T, fake *nativetest.Fake, cfg EncoderConfig, opts ...Option) *Encoder {
	t.Helper()
	enc, err := NewEncoder(cfg, append(opts, withLibrary(fake))...)
	require.NoError(t, err)
	t.Cleanup(func() { enc.Close() })
	return enc
}

func testFrame(t *testing.T, format PixelFormat, w, h int, fill byte) *Frame {
	t.Helper()
	f, err := NewFrameBuffer(format, w, h)
	require.NoError(t, err)
	for i := 0; i < format.PlaneCount(); i++ {
		for j := range f.Plane(i) {
			f.Plane(i)[j] = fill
		}
	}
	return f
}

func drain(e *Encoder) []*Packet {
	var out []*Packet
	for p := range e.Packets() {
		out = append(out, p.Clone())
	}
	return out
}

func TestEncoder_OpenClose(t *testing.T) {
	hbd := DefaultEncoderConfig(64, 48)
	hbd.Format, hbd.BitDepth = PixelFormatI42016, 10

	i444 := DefaultEncoderConfig(64, 48)
	i444.Format, i444.Profile = PixelFormatI444, 1

	cq := DefaultEncoderConfig(1920, 1080)
	cq.Usage, cq.RateControl, cq.LagInFrames = UsageGoodQuality, RateControlCQ, 19

	tiles := DefaultEncoderConfig(64, 48)
	tiles.TileColumns, tiles.TileRows, tiles.Lossless, tiles.PSNR = 2, 1, true, true

	configs := map[string]EncoderConfig{
		"default": DefaultEncoderConfig(64, 48),
		"odd":     DefaultEncoderConfig(1, 1),
		"hbd":     hbd,
		"i444":    i444,
		"cq":      cq,
		"tiles":   tiles,
	}

	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			fake := nativetest.New()
			enc, err := NewEncoder(cfg, withLibrary(fake))
			require.NoError(t, err)
			assert.Equal(t, 1, fake.Live())
			require.NoError(t, enc.Close())

			c := fake.Counters()
			assert.Equal(t, 0, fake.Live())
			assert.Equal(t, 1, c.Opened)
			assert.Equal(t, 1, c.Destroyed)
		})
	}
}

func TestEncoder_DoubleClose(t *testing.T) {
	fake := nativetest.New()
	rec := newRecorder()
	enc, err := NewEncoder(DefaultEncoderConfig(64, 48), withLibrary(fake), WithObserver(rec))
	require.NoError(t, err)

	require.NoError(t, enc.Close())
	require.NoError(t, enc.Close())

	c := fake.Counters()
	assert.Equal(t, 1, c.Destroyed)
	assert.Zero(t, c.DoubleDestroys)
	assert.Equal(t, 1, rec.opened[CoderEncoder])
	assert.Equal(t, 1, rec.closed[CoderEncoder])
}

func TestEncoder_InvalidConfigMakesNoNativeCall(t *testing.T) {
	fake := nativetest.New()
	cfg := DefaultEncoderConfig(0, 48)

	_, err := NewEncoder(cfg, withLibrary(fake))
	require.Error(t, err)
	assert.Equal(t, KindInvalidArgument, KindOf(err))
	assert.Zero(t, fake.Counters().Calls)
}

func TestEncoder_InitFailure(t *testing.T) {
	tests := []struct {
		status native.Status
		kind   Kind
	}{
		{native.StatusMemError, KindAllocationFailure},
		{native.StatusABIMismatch, KindNativeFailure},
		{native.StatusIncapable, KindUnsupportedOperation},
		{native.StatusInvalidParam, KindNativeFailure},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			fake := nativetest.New()
			fake.FailNewEncoder = tt.status

			enc, err := NewEncoder(DefaultEncoderConfig(64, 48), withLibrary(fake))
			require.Error(t, err)
			assert.Nil(t, enc)

			var e *Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, int(tt.status), e.Code)
			assert.Equal(t, fake.ErrString(tt.status), e.Message)
			assert.Equal(t, "scripted encoder init failure", e.Detail)
			assert.Equal(t, "NewEncoder", e.Op)
			assert.Zero(t, fake.Live())
		})
	}
}

func TestEncoder_ControlsApplied(t *testing.T) {
	fake := nativetest.New()
	cfg := DefaultEncoderConfig(64, 48)
	cfg.RateControl = RateControlCQ
	cfg.CQLevel = 40
	cfg.Speed = 6
	cfg.TileColumns = 2
	cfg.Lossless = true
	enc := testEncoder(t, fake, cfg)

	for id, want := range map[native.ControlID]int32{
		native.CtrlCPUUsed:     6,
		native.CtrlCQLevel:     40,
		native.CtrlRowMT:       1,
		native.CtrlTileColumns: 2,
		native.CtrlLossless:    1,
	} {
		got, ok := fake.ControlValue(enc.h, id)
		require.True(t, ok, id.String())
		assert.Equal(t, want, got, id.String())
	}
	_, ok := fake.ControlValue(enc.h, native.CtrlTileRows)
	assert.False(t, ok, "zero tile rows keeps the library default")

	st, ok := fake.EncoderSettings(enc.h)
	require.True(t, ok)
	assert.Equal(t, native.RCCQ, st.EndUsage)
	assert.Equal(t, native.UsageRealtime, st.Usage)
	assert.Equal(t, uint32(64), st.Width)
	assert.Equal(t, int32(30), st.TimebaseDen)
}

func TestEncoder_ControlFailureReleasesContext(t *testing.T) {
	fake := nativetest.New()
	fake.FailControl = map[native.ControlID]native.Status{native.CtrlTileColumns: native.StatusInvalidParam}
	cfg := DefaultEncoderConfig(64, 48)
	cfg.TileColumns = 3

	enc, err := NewEncoder(cfg, withLibrary(fake))
	require.Error(t, err)
	assert.Nil(t, enc)
	assert.Equal(t, KindNativeFailure, KindOf(err))
	code, ok := NativeCode(err)
	require.True(t, ok)
	assert.Equal(t, int(native.StatusInvalidParam), code)
	assert.Contains(t, err.Error(), "AV1E_SET_TILE_COLUMNS")

	c := fake.Counters()
	assert.Equal(t, 1, c.Opened)
	assert.Equal(t, 1, c.Destroyed)
	assert.Zero(t, fake.Live())
}

func TestEncoder_OptionalControlIncapable(t *testing.T) {
	fake := nativetest.New()
	fake.FailControl = map[native.ControlID]native.Status{native.CtrlCPUUsed: native.StatusIncapable}

	enc := testEncoder(t, fake, DefaultEncoderConfig(64, 48))
	require.NoError(t, enc.Encode(testFrame(t, PixelFormatI420, 64, 48, 1)))
	assert.Len(t, drain(enc), 1)
}

func TestEncoder_RejectsBadFramesBeforeNativeCall(t *testing.T) {
	fake := nativetest.New()
	enc := testEncoder(t, fake, DefaultEncoderConfig(64, 48))

	short := testFrame(t, PixelFormatI420, 64, 48, 0)
	short.planes[1] = short.planes[1][:10]

	hbd := testFrame(t, PixelFormatI42016, 64, 48, 0)

	tests := map[string]*Frame{
		"nil":            nil,
		"zero value":     {},
		"wrong size":     testFrame(t, PixelFormatI420, 32, 48, 0),
		"wrong format":   testFrame(t, PixelFormatI444, 64, 48, 0),
		"wrong depth":    hbd,
		"short chroma":   short,
		"yv12 into i420": testFrame(t, PixelFormatYV12, 64, 48, 0),
	}

	for name, f := range tests {
		t.Run(name, func(t *testing.T) {
			err := enc.Encode(f)
			require.Error(t, err)
			assert.Equal(t, KindInvalidArgument, KindOf(err))
		})
	}
	assert.Zero(t, fake.Counters().EncodeCalls)
}

func TestEncoder_OnePacketPerFrame(t *testing.T) {
	fake := nativetest.New()
	enc := testEncoder(t, fake, DefaultEncoderConfig(64, 48))

	for i := 0; i < 3; i++ {
		f := testFrame(t, PixelFormatI420, 64, 48, byte(i))
		f.PTS = int64(i)
		require.NoError(t, enc.Encode(f))

		pkts := drain(enc)
		require.Len(t, pkts, 1)
		assert.Equal(t, PacketFrame, pkts[0].Kind)
		assert.Equal(t, int64(i), pkts[0].PTS)
		assert.Equal(t, uint64(1), pkts[0].Duration)
		assert.Equal(t, i == 0, pkts[0].Keyframe())
	}
}

func TestEncoder_ManyPacketsPerFrame(t *testing.T) {
	fake := nativetest.New()
	fake.StatsPackets = true
	cfg := DefaultEncoderConfig(64, 48)
	cfg.PSNR = true
	enc := testEncoder(t, fake, cfg)

	require.NoError(t, enc.Encode(testFrame(t, PixelFormatI420, 64, 48, 7)))
	pkts := drain(enc)
	require.Len(t, pkts, 3)
	assert.Equal(t, PacketStats, pkts[0].Kind)
	assert.Equal(t, PacketFrame, pkts[1].Kind)
	assert.Equal(t, PacketPSNR, pkts[2].Kind)
	assert.Equal(t, 48.0, pkts[2].PSNR.PSNR[0])
	assert.False(t, pkts[0].Keyframe(), "only frame packets are keyframes")

	s := enc.Stats()
	assert.Equal(t, uint64(3), s.Packets)
	assert.Equal(t, uint64(1), s.FramePackets)
	assert.Equal(t, uint64(len(pkts[1].Data)), s.Bytes)
}

func TestEncoder_LagAndFlush(t *testing.T) {
	fake := nativetest.New()
	fake.Lag = 2
	cfg := DefaultEncoderConfig(64, 48)
	cfg.LagInFrames = 2
	enc := testEncoder(t, fake, cfg)

	// Nothing comes out while the lookahead fills.
	f := testFrame(t, PixelFormatI420, 64, 48, 0)
	require.NoError(t, enc.Encode(f))
	_, ok := enc.NextPacket()
	assert.False(t, ok)
	_, err := enc.ReceivePacket()
	assert.True(t, IsNeedMoreData(err))
	assert.ErrorIs(t, err, ErrNeedMoreData)
	assert.False(t, KindOf(err).Failure())

	f.PTS = 1
	require.NoError(t, enc.Encode(f))
	assert.Empty(t, drain(enc))

	for i := 2; i < 5; i++ {
		f := testFrame(t, PixelFormatI420, 64, 48, 0)
		f.PTS = int64(i)
		require.NoError(t, enc.Encode(f))
		pkts := drain(enc)
		require.Len(t, pkts, 1)
		assert.Equal(t, int64(i-2), pkts[0].PTS)
	}

	rest, err := enc.FlushAll()
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, int64(3), rest[0].PTS)
	assert.Equal(t, int64(4), rest[1].PTS)
	assert.Equal(t, uint64(2), enc.Stats().Flushes)
}

func TestEncoder_ExhaustedOutputMakesNoNativeCall(t *testing.T) {
	fake := nativetest.New()
	enc := testEncoder(t, fake, DefaultEncoderConfig(64, 48))

	_, ok := enc.NextPacket()
	assert.False(t, ok, "no packets before the first Encode")

	require.NoError(t, enc.Encode(testFrame(t, PixelFormatI420, 64, 48, 0)))
	require.Len(t, drain(enc), 1)

	calls := fake.Counters().Calls
	for i := 0; i < 3; i++ {
		p, ok := enc.NextPacket()
		assert.False(t, ok)
		assert.Nil(t, p)
		_, err := enc.ReceivePacket()
		assert.True(t, IsNeedMoreData(err))
	}
	assert.Equal(t, calls, fake.Counters().Calls)
}

func TestEncoder_PacketsAreRecycled(t *testing.T) {
	fake := nativetest.New()
	enc := testEncoder(t, fake, DefaultEncoderConfig(64, 48))

	require.NoError(t, enc.Encode(testFrame(t, PixelFormatI420, 64, 48, 10)))
	p, ok := enc.NextPacket()
	require.True(t, ok)
	kept := p.Clone()
	orig := append([]byte(nil), p.Data...)

	f := testFrame(t, PixelFormatI420, 64, 48, 200)
	f.PTS = 1
	require.NoError(t, enc.Encode(f))
	_, ok = enc.NextPacket()
	require.True(t, ok)

	assert.Equal(t, orig, kept.Data)
	assert.NotEqual(t, orig, p.Data, "the arena was reused by the second Encode")
}

func TestEncoder_Keyframes(t *testing.T) {
	fake := nativetest.New()
	enc := testEncoder(t, fake, DefaultEncoderConfig(64, 48))
	f := testFrame(t, PixelFormatI420, 64, 48, 0)

	keys := func() []bool {
		var out []bool
		for p := range enc.Packets() {
			out = append(out, p.Keyframe())
		}
		return out
	}

	require.NoError(t, enc.Encode(f))
	assert.Equal(t, []bool{true}, keys())
	require.NoError(t, enc.Encode(f))
	assert.Equal(t, []bool{false}, keys())

	enc.RequestKeyframe()
	require.NoError(t, enc.Encode(f))
	assert.Equal(t, []bool{true}, keys())
	require.NoError(t, enc.Encode(f))
	assert.Equal(t, []bool{false}, keys(), "a request applies to one frame")

	require.NoError(t, enc.EncodeWithOptions(f, EncodeOptions{ForceKeyframe: true}))
	assert.Equal(t, []bool{true}, keys())
	assert.Equal(t, uint64(3), enc.Stats().Keyframes)
}

func TestEncoder_KeyframeInterval(t *testing.T) {
	fake := nativetest.New()
	cfg := DefaultEncoderConfig(16, 16)
	cfg.KeyframeInterval = 3
	enc := testEncoder(t, fake, cfg)

	var keys []bool
	for i := 0; i < 6; i++ {
		require.NoError(t, enc.Encode(testFrame(t, PixelFormatI420, 16, 16, 0)))
		for p := range enc.Packets() {
			keys = append(keys, p.Keyframe())
		}
	}
	assert.Equal(t, []bool{true, false, false, true, false, false}, keys)
}

func TestEncoder_NativeFailure(t *testing.T) {
	fake := nativetest.New()
	rec := newRecorder()
	enc := testEncoder(t, fake, DefaultEncoderConfig(64, 48), WithObserver(rec))
	fake.FailEncode = native.StatusError

	err := enc.Encode(testFrame(t, PixelFormatI420, 64, 48, 0))
	require.Error(t, err)

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindNativeFailure, e.Kind)
	assert.Equal(t, 1, e.Code)
	assert.Equal(t, "Unspecified internal error", e.Message)
	assert.Equal(t, "scripted encode failure", e.Detail)
	assert.Equal(t, "Encoder.Encode", e.Op)
	assert.ErrorIs(t, err, ErrNativeFailure)
	assert.NotErrorIs(t, err, ErrInvalidArgument)

	_, ok := enc.NextPacket()
	assert.False(t, ok)
	assert.Equal(t, uint64(1), enc.Stats().Errors)
	assert.Equal(t, []Kind{KindNativeFailure}, rec.failed)
}

func TestEncoder_UseAfterClose(t *testing.T) {
	fake := nativetest.New()
	enc := testEncoder(t, fake, DefaultEncoderConfig(64, 48))
	require.NoError(t, enc.Encode(testFrame(t, PixelFormatI420, 64, 48, 0)))
	require.NoError(t, enc.Close())
	calls := fake.Counters().Calls

	err := enc.Encode(testFrame(t, PixelFormatI420, 64, 48, 0))
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, KindInvalidArgument, KindOf(err))
	assert.ErrorIs(t, enc.Flush(), ErrClosed)
	assert.ErrorIs(t, enc.SetBitrate(100), ErrClosed)
	assert.ErrorIs(t, enc.SetSpeed(3), ErrClosed)

	_, ok := enc.NextPacket()
	assert.False(t, ok)
	_, err = enc.ReceivePacket()
	assert.ErrorIs(t, err, ErrClosed)

	assert.Equal(t, calls, fake.Counters().Calls)
}

func TestEncoder_SetBitrate(t *testing.T) {
	fake := nativetest.New()
	enc := testEncoder(t, fake, DefaultEncoderConfig(64, 48))

	require.NoError(t, enc.SetBitrate(500))
	st, ok := fake.EncoderSettings(enc.h)
	require.True(t, ok)
	assert.Equal(t, uint32(500), st.TargetBitrate)
	assert.Equal(t, 500, enc.Config().BitrateKbps)

	err := enc.SetBitrate(0)
	assert.Equal(t, KindInvalidArgument, KindOf(err))
	assert.Equal(t, 500, enc.Config().BitrateKbps)
}

func TestEncoder_SetSpeed(t *testing.T) {
	fake := nativetest.New()
	enc := testEncoder(t, fake, DefaultEncoderConfig(64, 48))

	require.NoError(t, enc.SetSpeed(3))
	v, ok := fake.ControlValue(enc.h, native.CtrlCPUUsed)
	require.True(t, ok)
	assert.Equal(t, int32(3), v)
	assert.Equal(t, 3, enc.Config().Speed)

	require.NoError(t, enc.SetSpeed(10))
	calls := fake.Counters().Calls
	assert.Equal(t, KindInvalidArgument, KindOf(enc.SetSpeed(11)))
	assert.Equal(t, KindInvalidArgument, KindOf(enc.SetSpeed(-1)))
	assert.Equal(t, calls, fake.Counters().Calls)
	assert.Equal(t, 10, enc.Config().Speed)

	cfg := DefaultEncoderConfig(64, 48)
	cfg.Usage = UsageGoodQuality
	good := testEncoder(t, fake, cfg)
	assert.Equal(t, KindInvalidArgument, KindOf(good.SetSpeed(10)))
	require.NoError(t, good.SetSpeed(9))
}

func TestEncoder_HighBitDepth(t *testing.T) {
	fake := nativetest.New()
	cfg := DefaultEncoderConfig(32, 32)
	cfg.Format, cfg.BitDepth, cfg.Profile = PixelFormatI42016, 12, 2
	enc := testEncoder(t, fake, cfg)

	st, ok := fake.EncoderSettings(enc.h)
	require.True(t, ok)
	assert.NotZero(t, st.Flags&native.InitUseHighBitDepth)
	assert.Equal(t, uint32(12), st.BitDepth)

	f := testFrame(t, PixelFormatI42016, 32, 32, 0)
	assert.Equal(t, KindInvalidArgument, KindOf(enc.Encode(f)), "10-bit frame into a 12-bit encoder")

	require.NoError(t, f.SetBitDepth(12))
	require.NoError(t, enc.Encode(f))
	assert.Len(t, drain(enc), 1)
}

func TestEncoder_OwnedImageInput(t *testing.T) {
	fake := nativetest.New()
	enc := testEncoder(t, fake, DefaultEncoderConfig(64, 48))

	img, err := AllocImage(PixelFormatI420, 64, 48, 32, withLibrary(fake))
	require.NoError(t, err)
	require.NoError(t, enc.Encode(img.Frame()))
	assert.Len(t, drain(enc), 1)

	f := img.Frame()
	require.NoError(t, img.Close())
	assert.Equal(t, KindInvalidArgument, KindOf(enc.Encode(f)), "views of a freed image are rejected")
}

func TestEncoder_ID(t *testing.T) {
	fake := nativetest.New()
	a := testEncoder(t, fake, DefaultEncoderConfig(16, 16))
	b := testEncoder(t, fake, DefaultEncoderConfig(16, 16))
	assert.Len(t, a.ID(), 27)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestEncoder_Observer(t *testing.T) {
	fake := nativetest.New()
	rec := newRecorder()
	enc := testEncoder(t, fake, DefaultEncoderConfig(16, 16), WithObserver(rec))

	require.NoError(t, enc.Encode(testFrame(t, PixelFormatI420, 16, 16, 0)))
	drain(enc)
	_, err := enc.FlushAll()
	require.NoError(t, err)
	require.NoError(t, enc.Close())

	assert.Equal(t, 1, rec.packets[PacketFrame])
	assert.Equal(t, 1, rec.calls["encoder.encode"])
	assert.Equal(t, 1, rec.calls["encoder.flush"])
	assert.Equal(t, 1, rec.closed[CoderEncoder])
}

func TestEncoder_LeakedHandleIsReleased(t *testing.T) {
	fake := nativetest.New()
	rec := newRecorder()

	func() {
		_, err := NewEncoder(DefaultEncoderConfig(16, 16), withLibrary(fake), WithObserver(rec))
		require.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return fake.Live() == 0
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return rec.leakedCount(CoderEncoder) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, fake.Counters().Destroyed)
}

func TestEncoder_IndependentHandlesInParallel(t *testing.T) {
	fake := nativetest.New()
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			enc, err := NewEncoder(DefaultEncoderConfig(16, 16), withLibrary(fake))
			if err != nil {
				errs <- err
				return
			}
			defer enc.Close()
			f, _ := NewFrameBuffer(PixelFormatI420, 16, 16)
			for j := 0; j < 10; j++ {
				if err := enc.Encode(f); err != nil {
					errs <- err
					return
				}
				for range enc.Packets() {
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Zero(t, fake.Live())
}
