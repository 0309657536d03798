package native

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusString(t *testing.T) {
	tests := []struct {
		s    Status
		want string
	}{
		{StatusOK, "AOM_CODEC_OK"},
		{StatusMemError, "AOM_CODEC_MEM_ERROR"},
		{StatusCorruptFrame, "AOM_CODEC_CORRUPT_FRAME"},
		{StatusListEnd, "AOM_CODEC_LIST_END"},
		{Status(42), "AOM_CODEC_STATUS(42)"},
		{Status(-3), "AOM_CODEC_STATUS(-3)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.s.String())
	}
}

func TestImageFormatValues(t *testing.T) {
	assert.Equal(t, ImageFormat(0x102), ImgFmtI420)
	assert.Equal(t, ImageFormat(0x301), ImgFmtYV12)
	assert.Equal(t, ImageFormat(0x105), ImgFmtI422)
	assert.Equal(t, ImageFormat(0x106), ImgFmtI444)
	assert.Equal(t, ImageFormat(0x107), ImgFmtNV12)
	assert.Equal(t, ImageFormat(0x902), ImgFmtI42016)
	assert.Equal(t, ImageFormat(0x905), ImgFmtI42216)
	assert.Equal(t, ImageFormat(0x906), ImgFmtI44416)
}

func TestPlaneSize(t *testing.T) {
	tests := []struct {
		format ImageFormat
		w, h   uint32
		plane  int
		pw, ph int
	}{
		{ImgFmtI420, 640, 480, 0, 640, 480},
		{ImgFmtI420, 640, 480, 1, 320, 240},
		{ImgFmtI420, 641, 481, 2, 321, 241},
		{ImgFmtI422, 640, 480, 1, 320, 480},
		{ImgFmtI444, 640, 480, 2, 640, 480},
		{ImgFmtNV12, 640, 480, 1, 640, 240},
		{ImgFmtI42016, 33, 17, 1, 17, 9},
	}
	for _, tt := range tests {
		xs, ys := tt.format.ChromaShift()
		img := &Image{Format: tt.format, Width: tt.w, Height: tt.h, XChromaShift: xs, YChromaShift: ys}
		pw, ph := img.PlaneSize(tt.plane)
		if pw != tt.pw || ph != tt.ph {
			t.Errorf("%#x plane %d of %dx%d = %dx%d, want %dx%d", tt.format, tt.plane, tt.w, tt.h, pw, ph, tt.pw, tt.ph)
		}
	}
}

func TestImageViewLengths(t *testing.T) {
	y := make([]byte, 64*10)
	u := make([]byte, 32*5)
	v := make([]byte, 32*5)
	img := imageView(ImgFmtI420, 8, 40, 10, false,
		[3]unsafe.Pointer{planePointer(y), planePointer(u), planePointer(v)},
		[3]int{64, 32, 32}, 7)

	require.Len(t, img.Planes[0], 64*9+40)
	require.Len(t, img.Planes[1], 32*4+20)
	require.Len(t, img.Planes[2], 32*4+20)
	assert.Equal(t, uint64(7), img.Tag)
	assert.Equal(t, uint32(1), img.XChromaShift)
}

func TestRegistry(t *testing.T) {
	var r Registry[string]
	a := r.Put("a")
	b := r.Put("b")
	require.NotEqual(t, Handle(0), a)
	require.NotEqual(t, a, b)
	assert.Equal(t, 2, r.Len())

	v, ok := r.Get(a)
	require.True(t, ok)
	assert.Equal(t, "a", v)

	v, ok = r.Take(a)
	require.True(t, ok)
	assert.Equal(t, "a", v)

	_, ok = r.Take(a)
	assert.False(t, ok, "second Take must miss")
	assert.Equal(t, 1, r.Len())

	c := r.Put("c")
	assert.Greater(t, uint64(c), uint64(b), "handles are never reused")
}

func TestSplitVersion(t *testing.T) {
	major, minor, patch := SplitVersion(3<<16 | 8<<8 | 2)
	assert.Equal(t, []int{3, 8, 2}, []int{major, minor, patch})
}

func TestLookupABIVersions(t *testing.T) {
	pack := func(major, minor, patch int) int { return major<<16 | minor<<8 | patch }

	tests := []struct {
		name    string
		version int
		encoder int32
		ok      bool
	}{
		{"3.6.0", pack(3, 6, 0), 29, true},
		{"3.6.1", pack(3, 6, 1), 29, true},
		{"3.3.0", pack(3, 3, 0), 29, true},
		{"3.8.2", pack(3, 8, 2), 34, true},
		{"3.12.1", pack(3, 12, 1), 34, true},
		{"3.1.0", pack(3, 1, 0), 0, false},
		{"3.99.0", pack(3, 99, 0), 0, false},
		{"2.0.2", pack(2, 0, 2), 0, false},
		{"4.0.0", pack(4, 0, 0), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			abi, ok := LookupABIVersions(tt.version)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.encoder, abi.Encoder)
			assert.Equal(t, int32(22), abi.Decoder)
		})
	}
}
