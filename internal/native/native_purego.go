//go:build (darwin || linux) && (!cgo || aom_purego)

package native

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	aomOnce    sync.Once
	aomHandle  uintptr
	aomInitErr error
	aomLib     *pureLibrary
	aomABI     ABIVersions
)

// libaom function pointers
var (
	aomCodecAV1CX          func() uintptr
	aomCodecAV1DX          func() uintptr
	aomCodecVersion        func() int32
	aomCodecVersionStr     func() uintptr
	aomCodecBuildConfig    func() uintptr
	aomCodecErrToString    func(err int32) uintptr
	aomCodecGetCaps        func(iface uintptr) int64
	aomCodecEncConfigDef   func(iface, cfg uintptr, usage uint32) int32
	aomCodecEncInitVer     func(ctx, iface, cfg uintptr, flags int64, ver int32) int32
	aomCodecDecInitVer     func(ctx, iface, cfg uintptr, flags int64, ver int32) int32
	aomCodecEncConfigSet   func(ctx, cfg uintptr) int32
	aomCodecDestroy        func(ctx uintptr) int32
	aomCodecError          func(ctx uintptr) uintptr
	aomCodecErrorDetail    func(ctx uintptr) uintptr
	aomCodecControl        func(ctx uintptr, id int32, v int32) int32
	aomCodecEncode         func(ctx, img uintptr, pts int64, duration uint64, flags int64) int32
	aomCodecGetCxData      func(ctx, iter uintptr) uintptr
	aomCodecDecode         func(ctx, data uintptr, size uint64, priv uintptr) int32
	aomCodecGetFrame       func(ctx, iter uintptr) uintptr
	aomImgAlloc            func(img uintptr, fmt, w, h, align uint32) uintptr
	aomImgFree             func(img uintptr)
	aomControlVariadicSafe bool
)

// Load opens libaom on first use.
func Load() (Library, error) {
	aomOnce.Do(func() {
		aomInitErr = loadAOMLib()
		if aomInitErr == nil {
			aomLib = &pureLibrary{}
		}
	})
	if aomInitErr != nil {
		return nil, aomInitErr
	}
	return aomLib, nil
}

func loadAOMLib() error {
	paths := libraryPaths()

	var lastErr error
	for _, path := range paths {
		handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		if err := loadAOMSymbols(handle); err != nil {
			purego.Dlclose(handle)
			lastErr = err
			continue
		}
		aomHandle = handle
		return nil
	}

	if lastErr != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, lastErr)
	}
	return ErrUnavailable
}

func loadAOMSymbols(handle uintptr) error {
	if _, err := purego.Dlsym(handle, "aom_codec_av1_cx"); err != nil {
		return errors.New("library does not export aom_codec_av1_cx")
	}

	purego.RegisterLibFunc(&aomCodecVersion, handle, "aom_codec_version")
	v := int(aomCodecVersion())
	abi, ok := LookupABIVersions(v)
	if !ok {
		major, minor, patch := SplitVersion(v)
		return fmt.Errorf("unsupported libaom version %d.%d.%d", major, minor, patch)
	}
	aomABI = abi

	purego.RegisterLibFunc(&aomCodecAV1CX, handle, "aom_codec_av1_cx")
	purego.RegisterLibFunc(&aomCodecAV1DX, handle, "aom_codec_av1_dx")
	purego.RegisterLibFunc(&aomCodecVersionStr, handle, "aom_codec_version_str")
	purego.RegisterLibFunc(&aomCodecBuildConfig, handle, "aom_codec_build_config")
	purego.RegisterLibFunc(&aomCodecErrToString, handle, "aom_codec_err_to_string")
	purego.RegisterLibFunc(&aomCodecGetCaps, handle, "aom_codec_get_caps")
	purego.RegisterLibFunc(&aomCodecEncConfigDef, handle, "aom_codec_enc_config_default")
	purego.RegisterLibFunc(&aomCodecEncInitVer, handle, "aom_codec_enc_init_ver")
	purego.RegisterLibFunc(&aomCodecDecInitVer, handle, "aom_codec_dec_init_ver")
	purego.RegisterLibFunc(&aomCodecEncConfigSet, handle, "aom_codec_enc_config_set")
	purego.RegisterLibFunc(&aomCodecDestroy, handle, "aom_codec_destroy")
	purego.RegisterLibFunc(&aomCodecError, handle, "aom_codec_error")
	purego.RegisterLibFunc(&aomCodecErrorDetail, handle, "aom_codec_error_detail")
	purego.RegisterLibFunc(&aomCodecEncode, handle, "aom_codec_encode")
	purego.RegisterLibFunc(&aomCodecGetCxData, handle, "aom_codec_get_cx_data")
	purego.RegisterLibFunc(&aomCodecDecode, handle, "aom_codec_decode")
	purego.RegisterLibFunc(&aomCodecGetFrame, handle, "aom_codec_get_frame")
	purego.RegisterLibFunc(&aomImgAlloc, handle, "aom_img_alloc")
	purego.RegisterLibFunc(&aomImgFree, handle, "aom_img_free")

	// aom_codec_control is variadic. Apple arm64 passes variadic arguments
	// on the stack, which a fixed-signature call cannot reproduce.
	aomControlVariadicSafe = !(runtime.GOOS == "darwin" && runtime.GOARCH == "arm64")
	if aomControlVariadicSafe {
		purego.RegisterLibFunc(&aomCodecControl, handle, "aom_codec_control")
	}
	return nil
}

// pureSession holds the native context and its configuration in Go memory.
// It stays pinned for its whole life because libaom keeps pointers to cfg.
type pureSession struct {
	ctx  [sizeofCodecCtx / 8]uint64
	cfg  [encCfgWords]uint64
	dcfg [sizeofDecCfg / 4]uint32
	iter uintptr
	img  [sizeofImage / 8]uint64
	pin  runtime.Pinner
}

func (s *pureSession) ctxPtr() uintptr  { return uintptr(unsafe.Pointer(&s.ctx)) }
func (s *pureSession) cfgPtr() uintptr  { return uintptr(unsafe.Pointer(&s.cfg)) }
func (s *pureSession) iterPtr() uintptr { return uintptr(unsafe.Pointer(&s.iter)) }

func newPureSession() *pureSession {
	s := &pureSession{}
	s.pin.Pin(s)
	return s
}

func (s *pureSession) release() {
	s.pin.Unpin()
}

type pureLibrary struct {
	sessions Registry[*pureSession]
	images   Registry[uintptr]
}

func (l *pureLibrary) Backend() string { return "purego" }

func (l *pureLibrary) Version() (int, string) {
	return int(aomCodecVersion()), goStringFromPtr(aomCodecVersionStr())
}

func (l *pureLibrary) BuildConfig() string {
	return goStringFromPtr(aomCodecBuildConfig())
}

func (l *pureLibrary) ErrString(s Status) string {
	return goStringFromPtr(aomCodecErrToString(int32(s)))
}

func (l *pureLibrary) EncoderCaps() Caps { return Caps(aomCodecGetCaps(aomCodecAV1CX())) }

func (l *pureLibrary) DecoderCaps() Caps { return Caps(aomCodecGetCaps(aomCodecAV1DX())) }

func put32(base unsafe.Pointer, off uintptr, v uint32) {
	*(*uint32)(unsafe.Add(base, off)) = v
}

func get32(base unsafe.Pointer, off uintptr) uint32 {
	return *(*uint32)(unsafe.Add(base, off))
}

func get64(base unsafe.Pointer, off uintptr) uint64 {
	return *(*uint64)(unsafe.Add(base, off))
}

func getPtr(base unsafe.Pointer, off uintptr) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Add(base, off))
}

func applySettings(cfg unsafe.Pointer, st *EncoderSettings) {
	put32(cfg, offCfgThreads, st.Threads)
	put32(cfg, offCfgProfile, st.Profile)
	put32(cfg, offCfgW, st.Width)
	put32(cfg, offCfgH, st.Height)
	put32(cfg, offCfgBitDepth, st.BitDepth)
	put32(cfg, offCfgInputBitDepth, st.InputBitDepth)
	put32(cfg, offCfgTimebaseNum, uint32(st.TimebaseNum))
	put32(cfg, offCfgTimebaseDen, uint32(st.TimebaseDen))
	put32(cfg, offCfgErrorResilient, st.ErrorResilient)
	put32(cfg, offCfgPass, 0)
	put32(cfg, offCfgLagInFrames, st.LagInFrames)
	put32(cfg, offCfgEndUsage, st.EndUsage)
	put32(cfg, offCfgTargetBitrate, st.TargetBitrate)
	put32(cfg, offCfgMinQuantizer, st.MinQuantizer)
	put32(cfg, offCfgMaxQuantizer, st.MaxQuantizer)
	put32(cfg, offCfgKFMode, st.KFMode)
	if st.KFMaxDist > 0 {
		put32(cfg, offCfgKFMaxDist, st.KFMaxDist)
	}
}

func (l *pureLibrary) open(s *pureSession, res int32) (Handle, Status, string) {
	if res != 0 {
		detail := goStringFromPtr(aomCodecErrorDetail(s.ctxPtr()))
		aomCodecDestroy(s.ctxPtr())
		s.release()
		return 0, Status(res), detail
	}
	return l.sessions.Put(s), StatusOK, ""
}

func (l *pureLibrary) NewEncoder(st *EncoderSettings) (Handle, Status, string) {
	s := newPureSession()
	iface := aomCodecAV1CX()
	if res := aomCodecEncConfigDef(iface, s.cfgPtr(), st.Usage); res != 0 {
		s.release()
		return 0, Status(res), ""
	}
	applySettings(unsafe.Pointer(&s.cfg), st)
	res := aomCodecEncInitVer(s.ctxPtr(), iface, s.cfgPtr(), st.Flags, aomABI.Encoder)
	return l.open(s, res)
}

func (l *pureLibrary) NewDecoder(st *DecoderSettings) (Handle, Status, string) {
	s := newPureSession()
	s.dcfg[0] = st.Threads
	s.dcfg[1] = st.Width
	s.dcfg[2] = st.Height
	if st.AllowLowBitDepth {
		s.dcfg[3] = 1
	}
	res := aomCodecDecInitVer(s.ctxPtr(), aomCodecAV1DX(), uintptr(unsafe.Pointer(&s.dcfg)), st.Flags, aomABI.Decoder)
	return l.open(s, res)
}

func (l *pureLibrary) Destroy(h Handle) Status {
	s, ok := l.sessions.Take(h)
	if !ok {
		return StatusInvalidParam
	}
	res := aomCodecDestroy(s.ctxPtr())
	s.release()
	return Status(res)
}

func (l *pureLibrary) Error(h Handle) (string, string) {
	s, ok := l.sessions.Get(h)
	if !ok {
		return "", ""
	}
	return goStringFromPtr(aomCodecError(s.ctxPtr())), goStringFromPtr(aomCodecErrorDetail(s.ctxPtr()))
}

func (l *pureLibrary) Control(h Handle, id ControlID, v int32) Status {
	s, ok := l.sessions.Get(h)
	if !ok {
		return StatusInvalidParam
	}
	if !aomControlVariadicSafe {
		return StatusIncapable
	}
	return Status(aomCodecControl(s.ctxPtr(), int32(id), v))
}

func (l *pureLibrary) SetEncoderConfig(h Handle, st *EncoderSettings) Status {
	s, ok := l.sessions.Get(h)
	if !ok {
		return StatusInvalidParam
	}
	applySettings(unsafe.Pointer(&s.cfg), st)
	return Status(aomCodecEncConfigSet(s.ctxPtr(), s.cfgPtr()))
}

func (l *pureLibrary) Encode(h Handle, img *Image, pts int64, duration uint64, flags EncodeFlags) Status {
	s, ok := l.sessions.Get(h)
	if !ok {
		return StatusInvalidParam
	}
	s.iter = 0
	if img == nil {
		return Status(aomCodecEncode(s.ctxPtr(), 0, pts, duration, int64(flags)))
	}

	var pin runtime.Pinner
	defer pin.Unpin()

	s.img = [sizeofImage / 8]uint64{}
	base := unsafe.Pointer(&s.img)
	xs, ys := img.Format.ChromaShift()
	put32(base, offImgFmt, uint32(img.Format))
	put32(base, offImgCP, cicpUnspecified)
	put32(base, offImgTC, cicpUnspecified)
	put32(base, offImgMC, cicpUnspecified)
	if img.Monochrome {
		put32(base, offImgMonochrome, 1)
	}
	put32(base, offImgW, img.Width)
	put32(base, offImgH, img.Height)
	put32(base, offImgBitDepth, img.BitDepth)
	put32(base, offImgDW, img.Width)
	put32(base, offImgDH, img.Height)
	put32(base, offImgXShift, xs)
	put32(base, offImgYShift, ys)
	for i := 0; i < 3; i++ {
		p := planePointer(img.Planes[i])
		if p != nil {
			pin.Pin(p)
		}
		*(*unsafe.Pointer)(unsafe.Add(base, offImgPlanes+8*i)) = p
		put32(base, offImgStride+uintptr(4*i), uint32(int32(img.Strides[i])))
	}
	res := aomCodecEncode(s.ctxPtr(), uintptr(base), pts, duration, int64(flags))
	s.img = [sizeofImage / 8]uint64{}
	return Status(res)
}

func (l *pureLibrary) NextPacket(h Handle, out *Packet) bool {
	s, ok := l.sessions.Get(h)
	if !ok {
		return false
	}
	raw := aomCodecGetCxData(s.ctxPtr(), s.iterPtr())
	if raw == 0 {
		return false
	}
	pkt := unsafe.Pointer(raw)
	*out = Packet{Kind: PacketKind(int32(get32(pkt, offPktKind)))}
	switch out.Kind {
	case PacketFrame:
		out.Data = bytesAt(getPtr(pkt, offPktBuf), int(get64(pkt, offPktSz)))
		out.PTS = int64(get64(pkt, offPktPTS))
		out.Duration = get64(pkt, offPktDuration)
		out.Flags = get32(pkt, offPktFlags)
		out.PartitionID = int32(get32(pkt, offPktPartitionID))
	case PacketStats, PacketFPMBStats, PacketCustom:
		out.Data = bytesAt(getPtr(pkt, offPktBuf), int(get64(pkt, offPktSz)))
	case PacketPSNR:
		for i := uintptr(0); i < 4; i++ {
			out.PSNR.Samples[i] = get32(pkt, offPktPSNRSamples+4*i)
			out.PSNR.SSE[i] = get64(pkt, offPktPSNRSSE+8*i)
			out.PSNR.PSNR[i] = *(*float64)(unsafe.Add(pkt, offPktPSNRValues+8*i))
		}
	}
	return true
}

func (l *pureLibrary) Decode(h Handle, data []byte, tag uint64) Status {
	s, ok := l.sessions.Get(h)
	if !ok {
		return StatusInvalidParam
	}
	s.iter = 0
	if len(data) == 0 {
		return Status(aomCodecDecode(s.ctxPtr(), 0, 0, 0))
	}
	var pin runtime.Pinner
	defer pin.Unpin()
	p := planePointer(data)
	pin.Pin(p)
	return Status(aomCodecDecode(s.ctxPtr(), uintptr(p), uint64(len(data)), uintptr(tag)))
}

func imageAt(raw uintptr) *Image {
	img := unsafe.Pointer(raw)
	var planes [3]unsafe.Pointer
	var strides [3]int
	for i := uintptr(0); i < 3; i++ {
		planes[i] = getPtr(img, offImgPlanes+8*i)
		strides[i] = int(int32(get32(img, offImgStride+4*i)))
	}
	return imageView(
		ImageFormat(get32(img, offImgFmt)),
		get32(img, offImgBitDepth),
		get32(img, offImgDW),
		get32(img, offImgDH),
		get32(img, offImgMonochrome) != 0,
		planes, strides,
		get64(img, offImgUserPriv),
	)
}

func (l *pureLibrary) NextFrame(h Handle, out *Image) bool {
	s, ok := l.sessions.Get(h)
	if !ok {
		return false
	}
	raw := aomCodecGetFrame(s.ctxPtr(), s.iterPtr())
	if raw == 0 {
		return false
	}
	*out = *imageAt(raw)
	return true
}

func (l *pureLibrary) ImageAlloc(format ImageFormat, w, h, align uint32) (Handle, *Image, bool) {
	raw := aomImgAlloc(0, uint32(format), w, h, align)
	if raw == 0 {
		return 0, nil, false
	}
	return l.images.Put(raw), imageAt(raw), true
}

func (l *pureLibrary) ImageFree(h Handle) {
	if raw, ok := l.images.Take(h); ok {
		aomImgFree(raw)
	}
}
