package aom

import (
	"fmt"
	"strings"

	"github.com/thesyncim/aom/internal/native"
)

// PixelFormat represents the raw image layouts libaom accepts.
type PixelFormat int

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatI420                // YUV 4:2:0 planar (Y + U + V)
	PixelFormatYV12                // YUV 4:2:0 planar (Y + V + U)
	PixelFormatI422                // YUV 4:2:2 planar
	PixelFormatI444                // YUV 4:4:4 planar
	PixelFormatNV12                // YUV 4:2:0 semi-planar (Y + interleaved UV)
	PixelFormatI42016              // I420 with 16-bit samples
	PixelFormatI42216              // I422 with 16-bit samples
	PixelFormatI44416              // I444 with 16-bit samples
	pixelFormatCount
)

var pixelFormatNames = [pixelFormatCount]string{
	PixelFormatUnknown: "unknown",
	PixelFormatI420:    "i420",
	PixelFormatYV12:    "yv12",
	PixelFormatI422:    "i422",
	PixelFormatI444:    "i444",
	PixelFormatNV12:    "nv12",
	PixelFormatI42016:  "i42016",
	PixelFormatI42216:  "i42216",
	PixelFormatI44416:  "i44416",
}

var pixelFormatNative = [pixelFormatCount]native.ImageFormat{
	PixelFormatUnknown: native.ImgFmtNone,
	PixelFormatI420:    native.ImgFmtI420,
	PixelFormatYV12:    native.ImgFmtYV12,
	PixelFormatI422:    native.ImgFmtI422,
	PixelFormatI444:    native.ImgFmtI444,
	PixelFormatNV12:    native.ImgFmtNV12,
	PixelFormatI42016:  native.ImgFmtI42016,
	PixelFormatI42216:  native.ImgFmtI42216,
	PixelFormatI44416:  native.ImgFmtI44416,
}

func (p PixelFormat) valid() bool {
	return p > PixelFormatUnknown && p < pixelFormatCount
}

func (p PixelFormat) String() string {
	if p < 0 || p >= pixelFormatCount {
		return "unknown"
	}
	return pixelFormatNames[p]
}

// MarshalText implements encoding.TextMarshaler.
func (p PixelFormat) MarshalText() ([]byte, error) {
	if !p.valid() {
		return nil, fmt.Errorf("unknown pixel format %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PixelFormat) UnmarshalText(text []byte) error {
	s := strings.ToLower(string(text))
	for i := PixelFormatI420; i < pixelFormatCount; i++ {
		if pixelFormatNames[i] == s {
			*p = i
			return nil
		}
	}
	return fmt.Errorf("unknown pixel format %q", text)
}

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	switch {
	case p == PixelFormatNV12:
		return 2 // Y, UV
	case p.valid():
		return 3
	default:
		return 0
	}
}

// HighBitDepth reports whether samples are stored as 16-bit little endian.
func (p PixelFormat) HighBitDepth() bool {
	return p.native()&native.ImgFmtHighBitDepth != 0
}

// BytesPerSample returns 2 for high bit depth formats and 1 otherwise.
func (p PixelFormat) BytesPerSample() int {
	if p.HighBitDepth() {
		return 2
	}
	return 1
}

// ChromaShift returns the horizontal and vertical chroma subsampling shifts.
func (p PixelFormat) ChromaShift() (x, y int) {
	xs, ys := p.native().ChromaShift()
	return int(xs), int(ys)
}

// PlaneSize returns the visible width and height, in samples, of plane i of
// a width x height image.
func (p PixelFormat) PlaneSize(i, width, height int) (w, h int) {
	if i == 0 {
		return width, height
	}
	xs, ys := p.ChromaShift()
	w = (width + xs) >> xs
	h = (height + ys) >> ys
	if p == PixelFormatNV12 {
		w *= 2
	}
	return w, h
}

func (p PixelFormat) native() native.ImageFormat {
	if p < 0 || p >= pixelFormatCount {
		return native.ImgFmtNone
	}
	return pixelFormatNative[p]
}

func pixelFormatFromNative(f native.ImageFormat) PixelFormat {
	for i := PixelFormatI420; i < pixelFormatCount; i++ {
		if pixelFormatNative[i] == f {
			return i
		}
	}
	return PixelFormatUnknown
}

// FrameSize returns the total tightly packed buffer size of a frame.
func FrameSize(format PixelFormat, width, height int) int {
	n := 0
	for i := 0; i < format.PlaneCount(); i++ {
		w, h := format.PlaneSize(i, width, height)
		n += w * h * format.BytesPerSample()
	}
	return n
}

// I420Size returns the total buffer size needed for an I420 frame.
func I420Size(width, height int) int {
	return FrameSize(PixelFormatI420, width, height)
}

// Frame is a view of a raw image: a pixel layout plus plane memory.
//
// A Frame built with NewFrame borrows the caller's slices; nothing is copied
// and the caller must keep them alive and unmodified while an Encode using
// the frame is in progress. Frames returned by a Decoder are owned by the
// decoder and valid until its next Decode, Flush or Close.
type Frame struct {
	PTS      int64  // Presentation timestamp in timebase units
	Duration uint64 // Duration in timebase units
	Tag      uint64 // Caller data carried through Decoder.DecodeTagged

	format   PixelFormat
	width    int
	height   int
	bitDepth int
	planes   [3][]byte
	strides  [3]int
}

const maxDimension = 65536

// NewFrame wraps caller-owned plane memory. It checks that the format is
// known, that one plane and one stride is given per plane of the format, that
// every stride covers a row, and that every plane covers all rows. A frame
// failing any check is rejected with KindInvalidArgument.
func NewFrame(format PixelFormat, width, height int, planes [][]byte, strides []int) (*Frame, error) {
	if err := checkLayout("NewFrame", format, width, height, planes, strides); err != nil {
		return nil, err
	}
	f := &Frame{
		format:   format,
		width:    width,
		height:   height,
		bitDepth: defaultBitDepth(format),
	}
	copy(f.planes[:], planes)
	copy(f.strides[:], strides)
	return f, nil
}

// NewFrameBuffer allocates a tightly packed frame in Go memory.
func NewFrameBuffer(format PixelFormat, width, height int) (*Frame, error) {
	if err := checkGeometry("NewFrameBuffer", format, width, height); err != nil {
		return nil, err
	}
	f := &Frame{format: format, width: width, height: height, bitDepth: defaultBitDepth(format)}
	bps := format.BytesPerSample()
	for i := 0; i < format.PlaneCount(); i++ {
		w, h := format.PlaneSize(i, width, height)
		f.strides[i] = w * bps
		f.planes[i] = make([]byte, w*bps*h)
	}
	return f, nil
}

func defaultBitDepth(format PixelFormat) int {
	if format.HighBitDepth() {
		return 10
	}
	return 8
}

func checkGeometry(op string, format PixelFormat, width, height int) error {
	if !format.valid() {
		return invalidArg(op, "unknown pixel format %d", int(format))
	}
	if width <= 0 || height <= 0 || width > maxDimension || height > maxDimension {
		return invalidArg(op, "dimensions %dx%d out of range", width, height)
	}
	return nil
}

func checkLayout(op string, format PixelFormat, width, height int, planes [][]byte, strides []int) error {
	if err := checkGeometry(op, format, width, height); err != nil {
		return err
	}
	n := format.PlaneCount()
	if len(planes) != n {
		return invalidArg(op, "%s needs %d planes, got %d", format, n, len(planes))
	}
	if len(strides) != n {
		return invalidArg(op, "%s needs %d strides, got %d", format, n, len(strides))
	}
	bps := format.BytesPerSample()
	for i := 0; i < n; i++ {
		w, h := format.PlaneSize(i, width, height)
		row := w * bps
		if strides[i] < row {
			return invalidArg(op, "plane %d stride %d is less than row size %d", i, strides[i], row)
		}
		need := strides[i]*(h-1) + row
		if len(planes[i]) < need {
			return invalidArg(op, "plane %d has %d bytes, needs %d", i, len(planes[i]), need)
		}
	}
	return nil
}

// Format returns the pixel format.
func (f *Frame) Format() PixelFormat { return f.format }

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.width }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.height }

// BitDepth returns the number of significant bits per sample.
func (f *Frame) BitDepth() int { return f.bitDepth }

// SetBitDepth sets the significant bits per sample of a high bit depth frame.
func (f *Frame) SetBitDepth(bits int) error {
	switch {
	case !f.format.HighBitDepth() && bits == 8:
	case f.format.HighBitDepth() && (bits == 8 || bits == 10 || bits == 12):
	default:
		return invalidArg("Frame.SetBitDepth", "%d-bit samples do not fit %s", bits, f.format)
	}
	f.bitDepth = bits
	return nil
}

// Plane returns plane i, or nil if the format has fewer planes.
func (f *Frame) Plane(i int) []byte {
	if i < 0 || i >= 3 {
		return nil
	}
	return f.planes[i]
}

// Stride returns the stride of plane i in bytes.
func (f *Frame) Stride(i int) int {
	if i < 0 || i >= 3 {
		return 0
	}
	return f.strides[i]
}

// Clone creates a deep, tightly packed copy of the frame.
// Use this when you need to keep a decoder-owned frame beyond its lifetime.
func (f *Frame) Clone() *Frame {
	c := &Frame{
		PTS:      f.PTS,
		Duration: f.Duration,
		Tag:      f.Tag,
		format:   f.format,
		width:    f.width,
		height:   f.height,
		bitDepth: f.bitDepth,
	}
	bps := f.format.BytesPerSample()
	for i := 0; i < f.format.PlaneCount(); i++ {
		w, h := f.format.PlaneSize(i, f.width, f.height)
		row := w * bps
		c.strides[i] = row
		c.planes[i] = make([]byte, row*h)
		copyPlane(c.planes[i], row, f.planes[i], f.strides[i], row, h)
	}
	return c
}

func copyPlane(dst []byte, dstStride int, src []byte, srcStride, row, rows int) {
	if dstStride == srcStride && len(src) >= srcStride*rows {
		copy(dst, src[:srcStride*rows])
		return
	}
	for y := 0; y < rows; y++ {
		copy(dst[y*dstStride:y*dstStride+row], src[y*srcStride:y*srcStride+row])
	}
}

// image returns the native description of f, aliasing its planes.
func (f *Frame) image() *native.Image {
	img := &native.Image{
		Format:   f.format.native(),
		BitDepth: uint32(f.bitDepth),
		Width:    uint32(f.width),
		Height:   uint32(f.height),
		Tag:      f.Tag,
	}
	for i := range f.planes {
		j := nativePlane(f.format, i)
		img.Planes[j], img.Strides[j] = f.planes[i], f.strides[i]
	}
	img.XChromaShift, img.YChromaShift = img.Format.ChromaShift()
	return img
}

// nativePlane maps a Frame plane index to the aom_image_t plane index. YV12
// frames store V before U; aom_image_t always has U at index 1.
func nativePlane(format PixelFormat, i int) int {
	if format == PixelFormatYV12 && i > 0 {
		return 3 - i
	}
	return i
}

// frameFromImage fills dst (reallocating when the geometry changed) with a
// tightly packed copy of a native image.
func frameFromImage(dst *Frame, img *native.Image) *Frame {
	format := pixelFormatFromNative(img.Format)
	w, h := int(img.Width), int(img.Height)
	if dst == nil || dst.format != format || dst.width != w || dst.height != h {
		dst, _ = NewFrameBuffer(format, w, h)
		if dst == nil {
			return nil
		}
	}
	dst.bitDepth = int(img.BitDepth)
	dst.Tag = img.Tag
	dst.PTS = 0
	dst.Duration = 0
	bps := format.BytesPerSample()
	for i := 0; i < format.PlaneCount(); i++ {
		pw, ph := format.PlaneSize(i, w, h)
		j := nativePlane(format, i)
		if len(img.Planes[j]) == 0 {
			clear(dst.planes[i])
			continue
		}
		copyPlane(dst.planes[i], dst.strides[i], img.Planes[j], img.Strides[j], pw*bps, ph)
	}
	return dst
}
