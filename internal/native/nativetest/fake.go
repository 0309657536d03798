// Package nativetest provides an in-memory native.Library for tests.
//
// The fake keeps the contract of libaom (status codes, output iteration,
// lag, flush, control validation) without doing any real coding. Its
// "bitstream" is a small self-describing record so decoders can rebuild a
// frame of the right geometry, and it counts every resource it hands out so
// tests can assert that nothing leaks or is released twice.
package nativetest

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"sync"

	"github.com/thesyncim/aom/internal/native"
)

// Magic prefixes every fake frame packet.
var Magic = []byte("FAV1")

const headerSize = 4 + 4 + 4 + 4 + 8 + 4 + 3

// Counters is a snapshot of the fake's resource accounting.
type Counters struct {
	Opened          int
	Destroyed       int
	DoubleDestroys  int
	ImagesAllocated int
	ImagesFreed     int
	Calls           int
	EncodeCalls     int
	DecodeCalls     int
	ControlCalls    int
}

// Fake implements native.Library. The exported fields script failures and
// must be set before the fake is shared with other goroutines.
type Fake struct {
	// FailNewEncoder / FailNewDecoder make context creation fail.
	FailNewEncoder native.Status
	FailNewDecoder native.Status
	// FailEncode and FailDecode fail every call with the given status.
	FailEncode native.Status
	FailDecode native.Status
	// FailControl fails the listed controls.
	FailControl map[native.ControlID]native.Status
	// FailImageAlloc makes ImageAlloc return false.
	FailImageAlloc bool
	// Lag holds back this many frames before emitting packets.
	Lag int
	// StatsPackets emits a two-pass stats packet ahead of each frame packet.
	StatsPackets bool

	mu       sync.Mutex
	counters Counters
	sessions native.Registry[*session]
	images   native.Registry[*native.Image]
	retired  map[native.Handle]bool
}

type session struct {
	encoder  bool
	enc      native.EncoderSettings
	dec      native.DecoderSettings
	controls map[native.ControlID]int32

	pending []pendingFrame
	frames  int

	packets []native.Packet
	images  []native.Image
	next    int

	lastStatus native.Status
	detail     string
}

type pendingFrame struct {
	data []byte
	pts  int64
	dur  uint64
	key  bool
	psnr bool
}

// New returns an empty fake.
func New() *Fake {
	return &Fake{retired: make(map[native.Handle]bool)}
}

// Counters returns a snapshot of the resource counters.
func (f *Fake) Counters() Counters {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters
}

// Live returns the number of contexts that have not been destroyed.
func (f *Fake) Live() int { return f.sessions.Len() }

// LiveImages returns the number of allocated images not yet freed.
func (f *Fake) LiveImages() int { return f.images.Len() }

// ControlValue returns the last value applied to id on h.
func (f *Fake) ControlValue(h native.Handle, id native.ControlID) (int32, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions.Get(h)
	if !ok {
		return 0, false
	}
	v, ok := s.controls[id]
	return v, ok
}

// EncoderSettings returns the settings currently applied to h.
func (f *Fake) EncoderSettings(h native.Handle) (native.EncoderSettings, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions.Get(h)
	if !ok || !s.encoder {
		return native.EncoderSettings{}, false
	}
	return s.enc, true
}

func (f *Fake) Backend() string { return "fake" }

func (f *Fake) Version() (int, string) { return 3<<16 | 8<<8 | 0, "v3.8.0-fake" }

func (f *Fake) BuildConfig() string { return "-DCONFIG_FAKE=1" }

var errStrings = map[native.Status]string{
	native.StatusOK:             "Success",
	native.StatusError:          "Unspecified internal error",
	native.StatusMemError:       "Memory allocation error",
	native.StatusABIMismatch:    "ABI version mismatch",
	native.StatusIncapable:      "Codec does not implement requested capability",
	native.StatusUnsupBitstream: "Bitstream not supported by this decoder",
	native.StatusUnsupFeature:   "Encoded bitstream uses an unsupported feature",
	native.StatusCorruptFrame:   "Corrupt frame detected",
	native.StatusInvalidParam:   "Invalid parameter",
	native.StatusListEnd:        "End of iterated list",
}

func (f *Fake) ErrString(s native.Status) string {
	if msg, ok := errStrings[s]; ok {
		return msg
	}
	return "Unrecognized error code"
}

func (f *Fake) EncoderCaps() native.Caps {
	return native.CapEncoder | native.CapPSNR | native.CapHighBitDepth
}

func (f *Fake) DecoderCaps() native.Caps {
	return native.CapDecoder | native.CapHighBitDepth
}

func (f *Fake) call() {
	f.counters.Calls++
}

func (f *Fake) NewEncoder(st *native.EncoderSettings) (native.Handle, native.Status, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call()
	if f.FailNewEncoder != native.StatusOK {
		return 0, f.FailNewEncoder, "scripted encoder init failure"
	}
	if st.Width == 0 || st.Height == 0 || st.TimebaseDen <= 0 {
		return 0, native.StatusInvalidParam, "g_w/g_h/g_timebase out of range"
	}
	f.counters.Opened++
	return f.sessions.Put(&session{encoder: true, enc: *st, controls: map[native.ControlID]int32{}}), native.StatusOK, ""
}

func (f *Fake) NewDecoder(st *native.DecoderSettings) (native.Handle, native.Status, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call()
	if f.FailNewDecoder != native.StatusOK {
		return 0, f.FailNewDecoder, "scripted decoder init failure"
	}
	f.counters.Opened++
	return f.sessions.Put(&session{dec: *st, controls: map[native.ControlID]int32{}}), native.StatusOK, ""
}

func (f *Fake) Destroy(h native.Handle) native.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call()
	if _, ok := f.sessions.Take(h); !ok {
		if f.retired[h] {
			f.counters.DoubleDestroys++
		}
		return native.StatusInvalidParam
	}
	if f.retired == nil {
		f.retired = make(map[native.Handle]bool)
	}
	f.retired[h] = true
	f.counters.Destroyed++
	return native.StatusOK
}

func (f *Fake) Error(h native.Handle) (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions.Get(h)
	if !ok || s.lastStatus == native.StatusOK {
		return "", ""
	}
	return f.ErrString(s.lastStatus), s.detail
}

func (s *session) fail(st native.Status, detail string) native.Status {
	s.lastStatus = st
	s.detail = detail
	return st
}

var controlRanges = map[native.ControlID][2]int32{
	native.CtrlCPUUsed:     {0, 10},
	native.CtrlCQLevel:     {0, 63},
	native.CtrlLossless:    {0, 1},
	native.CtrlRowMT:       {0, 1},
	native.CtrlTileColumns: {0, 6},
	native.CtrlTileRows:    {0, 6},
}

func (f *Fake) Control(h native.Handle, id native.ControlID, v int32) native.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call()
	f.counters.ControlCalls++
	s, ok := f.sessions.Get(h)
	if !ok {
		return native.StatusInvalidParam
	}
	if st, ok := f.FailControl[id]; ok {
		return s.fail(st, "scripted control failure: "+id.String())
	}
	r, ok := controlRanges[id]
	if !ok || !s.encoder {
		return s.fail(native.StatusIncapable, "")
	}
	if id == native.CtrlCPUUsed && s.enc.Usage != native.UsageRealtime {
		r[1] = 9
	}
	if v < r[0] || v > r[1] {
		return s.fail(native.StatusInvalidParam, id.String()+" out of range")
	}
	s.controls[id] = v
	return native.StatusOK
}

func (f *Fake) SetEncoderConfig(h native.Handle, st *native.EncoderSettings) native.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call()
	s, ok := f.sessions.Get(h)
	if !ok || !s.encoder {
		return native.StatusInvalidParam
	}
	if st.Width != s.enc.Width || st.Height != s.enc.Height {
		return s.fail(native.StatusInvalidParam, "Cannot change width or height after initialization")
	}
	s.enc = *st
	return native.StatusOK
}

func (f *Fake) Encode(h native.Handle, img *native.Image, pts int64, duration uint64, flags native.EncodeFlags) native.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call()
	f.counters.EncodeCalls++
	s, ok := f.sessions.Get(h)
	if !ok || !s.encoder {
		return native.StatusInvalidParam
	}
	s.packets = s.packets[:0]
	s.next = 0
	if f.FailEncode != native.StatusOK {
		return s.fail(f.FailEncode, "scripted encode failure")
	}

	if img == nil {
		for _, p := range s.pending {
			f.emit(s, p)
		}
		s.pending = s.pending[:0]
		return native.StatusOK
	}

	if img.Width != s.enc.Width || img.Height != s.enc.Height {
		return s.fail(native.StatusInvalidParam, "image size does not match g_w/g_h")
	}
	hbd := img.Format&native.ImgFmtHighBitDepth != 0
	if hbd != (s.enc.Flags&native.InitUseHighBitDepth != 0) {
		return s.fail(native.StatusInvalidParam, "image format does not match AOM_CODEC_USE_HIGHBITDEPTH")
	}

	key := s.frames == 0 || flags&native.EncodeForceKeyframe != 0
	if s.enc.KFMaxDist > 0 && s.frames%int(s.enc.KFMaxDist) == 0 {
		key = true
	}
	s.frames++
	s.pending = append(s.pending, pendingFrame{
		data: marshalFrame(img, pts, key),
		pts:  pts,
		dur:  duration,
		key:  key,
		psnr: s.enc.Flags&native.InitUsePSNR != 0,
	})
	for len(s.pending) > f.Lag {
		f.emit(s, s.pending[0])
		s.pending = s.pending[1:]
	}
	return native.StatusOK
}

func (f *Fake) emit(s *session, p pendingFrame) {
	if f.StatsPackets {
		s.packets = append(s.packets, native.Packet{Kind: native.PacketStats, Data: []byte("stats")})
	}
	var flags uint32
	if p.key {
		flags |= native.FrameIsKey
	}
	s.packets = append(s.packets, native.Packet{
		Kind:     native.PacketFrame,
		Data:     p.data,
		PTS:      p.pts,
		Duration: p.dur,
		Flags:    flags,
	})
	if p.psnr {
		s.packets = append(s.packets, native.Packet{
			Kind: native.PacketPSNR,
			PSNR: native.PSNR{PSNR: [4]float64{48, 48, 50, 50}},
		})
	}
}

func (f *Fake) NextPacket(h native.Handle, out *native.Packet) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call()
	s, ok := f.sessions.Get(h)
	if !ok || s.next >= len(s.packets) {
		return false
	}
	*out = s.packets[s.next]
	s.next++
	return true
}

func (f *Fake) Decode(h native.Handle, data []byte, tag uint64) native.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call()
	f.counters.DecodeCalls++
	s, ok := f.sessions.Get(h)
	if !ok || s.encoder {
		return native.StatusInvalidParam
	}
	s.images = s.images[:0]
	s.next = 0
	if f.FailDecode != native.StatusOK {
		return s.fail(f.FailDecode, "scripted decode failure")
	}
	if data == nil {
		return native.StatusOK
	}
	img, st, detail := unmarshalFrame(data)
	if st != native.StatusOK {
		return s.fail(st, detail)
	}
	img.Tag = tag
	s.images = append(s.images, *img)
	return native.StatusOK
}

func (f *Fake) NextFrame(h native.Handle, out *native.Image) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call()
	s, ok := f.sessions.Get(h)
	if !ok || s.next >= len(s.images) {
		return false
	}
	*out = s.images[s.next]
	s.next++
	return true
}

func (f *Fake) ImageAlloc(format native.ImageFormat, w, h, align uint32) (native.Handle, *native.Image, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call()
	if f.FailImageAlloc || w == 0 || h == 0 {
		return 0, nil, false
	}
	if align == 0 {
		align = 1
	}
	img := newImage(format, 8, w, h, int(align))
	if format&native.ImgFmtHighBitDepth != 0 {
		img.BitDepth = 16
	}
	f.counters.ImagesAllocated++
	return f.images.Put(img), img, true
}

func (f *Fake) ImageFree(h native.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.call()
	if _, ok := f.images.Take(h); ok {
		f.counters.ImagesFreed++
	}
}

func newImage(format native.ImageFormat, bitDepth, w, h uint32, align int) *native.Image {
	xs, ys := format.ChromaShift()
	img := &native.Image{Format: format, BitDepth: bitDepth, Width: w, Height: h, XChromaShift: xs, YChromaShift: ys}
	for i := 0; i < format.Planes(); i++ {
		pw, ph := img.PlaneSize(i)
		stride := (pw*img.BytesPerSample() + align - 1) / align * align
		img.Strides[i] = stride
		img.Planes[i] = make([]byte, stride*ph)
	}
	return img
}

// planeMean returns the average of the first byte of every sample of plane i.
func planeMean(img *native.Image, i int) byte {
	p := img.Planes[i]
	if len(p) == 0 {
		return 0
	}
	pw, ph := img.PlaneSize(i)
	bps := img.BytesPerSample()
	var sum, n int
	for y := 0; y < ph; y++ {
		row := p[y*img.Strides[i]:]
		for x := 0; x < pw; x++ {
			sum += int(row[x*bps])
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return byte(sum / n)
}

func marshalFrame(img *native.Image, pts int64, key bool) []byte {
	buf := make([]byte, headerSize, headerSize+4)
	copy(buf, Magic)
	binary.LittleEndian.PutUint32(buf[4:], uint32(img.Format))
	binary.LittleEndian.PutUint32(buf[8:], img.Width)
	binary.LittleEndian.PutUint32(buf[12:], img.Height)
	binary.LittleEndian.PutUint64(buf[16:], uint64(pts))
	binary.LittleEndian.PutUint32(buf[24:], img.BitDepth)
	if key {
		buf[24] |= 0x80
	}
	for i := 0; i < 3; i++ {
		buf[28+i] = planeMean(img, i)
	}
	return binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf))
}

// FramePacket builds a fake frame packet without an encoder.
func FramePacket(format native.ImageFormat, w, h uint32, fill byte) []byte {
	img := newImage(format, 8, w, h, 1)
	for i := range img.Planes {
		for j := range img.Planes[i] {
			img.Planes[i][j] = fill
		}
	}
	return marshalFrame(img, 0, true)
}

func unmarshalFrame(data []byte) (*native.Image, native.Status, string) {
	if len(data) < len(Magic) || !bytes.Equal(data[:len(Magic)], Magic) {
		return nil, native.StatusUnsupBitstream, "missing sequence header"
	}
	if len(data) != headerSize+4 {
		return nil, native.StatusCorruptFrame, "truncated packet"
	}
	body := data[:headerSize]
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(data[headerSize:]) {
		return nil, native.StatusCorruptFrame, "checksum mismatch"
	}
	format := native.ImageFormat(binary.LittleEndian.Uint32(body[4:]))
	w := binary.LittleEndian.Uint32(body[8:])
	h := binary.LittleEndian.Uint32(body[12:])
	bitDepth := binary.LittleEndian.Uint32(body[24:]) &^ 0x80
	if format.Planes() == 0 || w == 0 || h == 0 {
		return nil, native.StatusCorruptFrame, "invalid frame header"
	}
	img := newImage(format, bitDepth, w, h, 32)
	for i := 0; i < format.Planes(); i++ {
		fill := body[28+i]
		bps := img.BytesPerSample()
		for j := 0; j < len(img.Planes[i]); j += bps {
			img.Planes[i][j] = fill
		}
	}
	return img, native.StatusOK, ""
}
