package aom

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/aom/internal/native"
)

func requireLibaom(t *testing.T) {
	t.Helper()
	if !Available() {
		t.Skip("libaom not available")
	}
}

func gradient(w, h, shift int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(x*4 + shift), uint8(y * 4), uint8(shift * 2), 255})
		}
	}
	return img
}

func TestLibaom_Info(t *testing.T) {
	requireLibaom(t)

	info, err := Info()
	require.NoError(t, err)
	assert.Equal(t, 3, info.Major)
	assert.NotEmpty(t, info.Version)
	assert.Contains(t, []string{"cgo", "purego"}, info.Backend)
	t.Logf("libaom %s via %s (%s)", info.Version, info.Backend, info.Features)
}

func TestLibaom_RoundTrip(t *testing.T) {
	requireLibaom(t)
	info, err := Info()
	require.NoError(t, err)
	if !info.Features.Has(FeatureEncoder | FeatureDecoder) {
		t.Skip("libaom built without encoder or decoder")
	}

	const w, h, frames = 64, 48, 6
	cfg := DefaultEncoderConfig(w, h)
	cfg.Speed = 10
	cfg.BitrateKbps = 200
	cfg.Threads = 1
	enc, err := NewEncoder(cfg)
	require.NoError(t, err)
	defer enc.Close()

	dec, err := NewDecoder(DecoderConfig{Threads: 1})
	require.NoError(t, err)
	defer dec.Close()

	decoded := 0
	decode := func(pkts []*Packet) {
		for _, p := range pkts {
			if p.Kind != PacketFrame {
				continue
			}
			require.NoError(t, dec.DecodeTagged(p.Data, uint64(p.PTS)+1))
			for f := range dec.Frames() {
				decoded++
				assert.Equal(t, w, f.Width())
				assert.Equal(t, h, f.Height())
				assert.Contains(t, []PixelFormat{PixelFormatI420, PixelFormatI42016}, f.Format())
				assert.Equal(t, uint64(p.PTS)+1, f.Tag)
			}
		}
	}

	var keyframes int
	for i := 0; i < frames; i++ {
		f, err := FrameFromImage(gradient(w, h, i*8), w, h)
		require.NoError(t, err)
		f.PTS = int64(i)
		require.NoError(t, enc.Encode(f))

		var pkts []*Packet
		for p := range enc.Packets() {
			if p.Keyframe() {
				keyframes++
			}
			pkts = append(pkts, p.Clone())
		}
		decode(pkts)
	}
	rest, err := enc.FlushAll()
	require.NoError(t, err)
	decode(rest)

	assert.Equal(t, frames, decoded)
	assert.GreaterOrEqual(t, keyframes, 1)
	assert.Equal(t, uint64(frames), enc.Stats().FramesIn)
}

func TestLibaom_MalformedInput(t *testing.T) {
	requireLibaom(t)

	dec, err := NewDecoder(DecoderConfig{})
	require.NoError(t, err)
	defer dec.Close()

	err = dec.Decode([]byte{0xff, 0xff, 0xff, 0xff, 0x00, 0x13, 0x37})
	require.Error(t, err)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, KindNativeFailure, e.Kind)
	assert.Contains(t, []int{
		int(native.StatusError),
		int(native.StatusUnsupBitstream),
		int(native.StatusCorruptFrame),
		int(native.StatusInvalidParam),
	}, e.Code)
	assert.NotEmpty(t, e.Message)
	t.Log(err)
}

func TestLibaom_OwnedImage(t *testing.T) {
	requireLibaom(t)

	img, err := AllocImage(PixelFormatI420, 64, 48, 32)
	require.NoError(t, err)
	defer img.Close()

	f := img.Frame()
	assert.GreaterOrEqual(t, f.Stride(0), 64)
	for i := 0; i < 3; i++ {
		for j := range f.Plane(i) {
			f.Plane(i)[j] = 128
		}
	}

	cfg := DefaultEncoderConfig(64, 48)
	cfg.Speed = 10
	enc, err := NewEncoder(cfg)
	require.NoError(t, err)
	defer enc.Close()

	require.NoError(t, enc.Encode(f))
	p, err := enc.ReceivePacket()
	require.NoError(t, err)
	assert.True(t, p.Keyframe())
}

func TestLibaom_SetBitrate(t *testing.T) {
	requireLibaom(t)

	enc, err := NewEncoder(DefaultEncoderConfig(64, 48))
	require.NoError(t, err)
	defer enc.Close()

	require.NoError(t, enc.SetBitrate(100))
	assert.Equal(t, 100, enc.Config().BitrateKbps)

	f, err := NewFrameBuffer(PixelFormatI420, 64, 48)
	require.NoError(t, err)
	require.NoError(t, enc.Encode(f))
}
