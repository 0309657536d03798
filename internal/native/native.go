// Package native is the raw interface layer over libaom.
//
// It mirrors the library's status codes, enumerations and structure layouts
// and exposes them through the Library interface. Three backends satisfy it:
// a cgo backend linked through pkg-config, a purego backend that dlopens the
// shared library when cgo is disabled, and a stub for every other platform.
//
// Nothing here validates arguments or manages lifetimes beyond what the
// native library does itself; that is the job of the safe wrapper in the
// parent package. This is the only package in the module allowed to import
// "C", "unsafe" or purego.
package native

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned by Load when no usable libaom could be found.
var ErrUnavailable = errors.New("native: libaom not available")

// Status mirrors aom_codec_err_t.
type Status int32

const (
	StatusOK             Status = 0
	StatusError          Status = 1
	StatusMemError       Status = 2
	StatusABIMismatch    Status = 3
	StatusIncapable      Status = 4
	StatusUnsupBitstream Status = 5
	StatusUnsupFeature   Status = 6
	StatusCorruptFrame   Status = 7
	StatusInvalidParam   Status = 8
	StatusListEnd        Status = 9
)

var statusNames = [...]string{
	StatusOK:             "AOM_CODEC_OK",
	StatusError:          "AOM_CODEC_ERROR",
	StatusMemError:       "AOM_CODEC_MEM_ERROR",
	StatusABIMismatch:    "AOM_CODEC_ABI_MISMATCH",
	StatusIncapable:      "AOM_CODEC_INCAPABLE",
	StatusUnsupBitstream: "AOM_CODEC_UNSUP_BITSTREAM",
	StatusUnsupFeature:   "AOM_CODEC_UNSUP_FEATURE",
	StatusCorruptFrame:   "AOM_CODEC_CORRUPT_FRAME",
	StatusInvalidParam:   "AOM_CODEC_INVALID_PARAM",
	StatusListEnd:        "AOM_CODEC_LIST_END",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("AOM_CODEC_STATUS(%d)", int32(s))
}

// Handle identifies a native object owned by a backend. Zero is never valid.
type Handle uint64

// ImageFormat mirrors aom_img_fmt_t.
type ImageFormat uint32

const (
	ImgFmtPlanar       ImageFormat = 0x100
	ImgFmtUVFlip       ImageFormat = 0x200
	ImgFmtHighBitDepth ImageFormat = 0x800

	ImgFmtNone   ImageFormat = 0
	ImgFmtYV12   ImageFormat = ImgFmtPlanar | ImgFmtUVFlip | 1
	ImgFmtI420   ImageFormat = ImgFmtPlanar | 2
	ImgFmtI422   ImageFormat = ImgFmtPlanar | 5
	ImgFmtI444   ImageFormat = ImgFmtPlanar | 6
	ImgFmtNV12   ImageFormat = ImgFmtPlanar | 7
	ImgFmtI42016 ImageFormat = ImgFmtI420 | ImgFmtHighBitDepth
	ImgFmtI42216 ImageFormat = ImgFmtI422 | ImgFmtHighBitDepth
	ImgFmtI44416 ImageFormat = ImgFmtI444 | ImgFmtHighBitDepth
)

// ChromaShift returns the horizontal and vertical chroma subsampling shifts
// libaom derives for the format.
func (f ImageFormat) ChromaShift() (x, y uint32) {
	switch f &^ ImgFmtHighBitDepth {
	case ImgFmtI420, ImgFmtYV12, ImgFmtNV12:
		return 1, 1
	case ImgFmtI422:
		return 1, 0
	default:
		return 0, 0
	}
}

// Planes returns the number of planes the format occupies in an aom_image_t.
func (f ImageFormat) Planes() int {
	if f == ImgFmtNV12 {
		return 2
	}
	return 3
}

// PacketKind mirrors enum aom_codec_cx_pkt_kind.
type PacketKind int32

const (
	PacketFrame       PacketKind = 0
	PacketStats       PacketKind = 1
	PacketFPMBStats   PacketKind = 2
	PacketPSNR        PacketKind = 3
	PacketCustom      PacketKind = 256
	PacketKindUnknown PacketKind = -1
)

// Frame flags carried by AOM_CODEC_CX_FRAME_PKT packets.
const (
	FrameIsKey          uint32 = 0x1
	FrameIsDroppable    uint32 = 0x2
	FrameIsIntraOnly    uint32 = 0x10
	FrameIsSwitch       uint32 = 0x20
	FrameErrorResilient uint32 = 0x40
)

// EncodeFlags mirrors aom_enc_frame_flags_t.
type EncodeFlags int64

const EncodeForceKeyframe EncodeFlags = 1

// ControlID mirrors the AOME_/AV1E_ control enumerations used by this module.
type ControlID int32

const (
	CtrlCPUUsed     ControlID = 13
	CtrlCQLevel     ControlID = 25
	CtrlLossless    ControlID = 31
	CtrlRowMT       ControlID = 32
	CtrlTileColumns ControlID = 33
	CtrlTileRows    ControlID = 34
)

func (c ControlID) String() string {
	switch c {
	case CtrlCPUUsed:
		return "AOME_SET_CPUUSED"
	case CtrlCQLevel:
		return "AOME_SET_CQ_LEVEL"
	case CtrlLossless:
		return "AV1E_SET_LOSSLESS"
	case CtrlRowMT:
		return "AV1E_SET_ROW_MT"
	case CtrlTileColumns:
		return "AV1E_SET_TILE_COLUMNS"
	case CtrlTileRows:
		return "AV1E_SET_TILE_ROWS"
	}
	return fmt.Sprintf("CTRL(%d)", int32(c))
}

// Caps mirrors aom_codec_caps_t.
type Caps uint64

const (
	CapDecoder      Caps = 0x1
	CapEncoder      Caps = 0x2
	CapPSNR         Caps = 0x10000
	CapHighBitDepth Caps = 0x40000
)

// Init flags for aom_codec_enc_init_ver / aom_codec_dec_init_ver.
const (
	InitUsePSNR         int64 = 0x10000
	InitUseHighBitDepth int64 = 0x40000
)

// Rate control modes (enum aom_rc_mode).
const (
	RCVBR uint32 = 0
	RCCBR uint32 = 1
	RCCQ  uint32 = 2
	RCQ   uint32 = 3
)

// Usage presets for aom_codec_enc_config_default.
const (
	UsageGoodQuality uint32 = 0
	UsageRealtime    uint32 = 1
	UsageAllIntra    uint32 = 2
)

// Keyframe placement modes (enum aom_kf_mode).
const (
	KFFixed uint32 = 0
	KFAuto  uint32 = 1
)

// ABI versions shared by every supported libaom 3.x release.
const (
	ImageABIVersion   = 9
	CodecABIVersion   = 7 + ImageABIVersion
	DecoderABIVersion = 6 + CodecABIVersion
)

// ABIVersions are the values a release expects in the ver argument of
// aom_codec_enc_init_ver and aom_codec_dec_init_ver. libaom rejects any
// other value with AOM_CODEC_ABI_MISMATCH.
type ABIVersions struct {
	Encoder int32
	Decoder int32
}

// extPartABIVersions maps a libaom 3.x minor version to its
// AOM_EXT_PART_ABI_VERSION, which is folded into AOM_ENCODER_ABI_VERSION.
var extPartABIVersions = map[int]int32{
	3:  3,
	4:  3,
	5:  3,
	6:  3,
	7:  8,
	8:  8,
	9:  8,
	10: 8,
	11: 8,
	12: 8,
	13: 8,
}

// LookupABIVersions returns the ABI versions for a packed
// aom_codec_version() value. It reports false for releases whose encoder
// ABI is not known.
func LookupABIVersions(version int) (ABIVersions, bool) {
	major, minor, _ := SplitVersion(version)
	if major != 3 {
		return ABIVersions{}, false
	}
	ext, ok := extPartABIVersions[minor]
	if !ok {
		return ABIVersions{}, false
	}
	return ABIVersions{
		Encoder: 10 + CodecABIVersion + ext,
		Decoder: DecoderABIVersion,
	}, true
}

// EncoderSettings is the subset of aom_codec_enc_cfg_t this module drives.
// Every field is written over the library defaults for Usage.
type EncoderSettings struct {
	Usage          uint32
	Threads        uint32
	Profile        uint32
	Width          uint32
	Height         uint32
	BitDepth       uint32
	InputBitDepth  uint32
	TimebaseNum    int32
	TimebaseDen    int32
	ErrorResilient uint32
	LagInFrames    uint32
	EndUsage       uint32
	TargetBitrate  uint32
	MinQuantizer   uint32
	MaxQuantizer   uint32
	KFMode         uint32
	// KFMaxDist of zero keeps the library default.
	KFMaxDist uint32
	Flags     int64
}

// DecoderSettings mirrors aom_codec_dec_cfg_t plus init flags.
type DecoderSettings struct {
	Threads          uint32
	Width            uint32
	Height           uint32
	AllowLowBitDepth bool
	Flags            int64
}

// Image describes an aom_image_t. Plane slices handed out by a backend view
// native memory and stay valid only until the next call on the same handle.
type Image struct {
	Format       ImageFormat
	BitDepth     uint32
	Width        uint32
	Height       uint32
	XChromaShift uint32
	YChromaShift uint32
	Monochrome   bool
	Planes       [3][]byte
	Strides      [3]int
	Tag          uint64
}

// PlaneSize returns the visible width and height, in samples, of plane i.
func (img *Image) PlaneSize(i int) (w, h int) {
	w, h = int(img.Width), int(img.Height)
	if i > 0 {
		w = (w + int(img.XChromaShift)) >> img.XChromaShift
		h = (h + int(img.YChromaShift)) >> img.YChromaShift
		if img.Format == ImgFmtNV12 {
			w *= 2
		}
	}
	return w, h
}

// BytesPerSample is 2 for high bit depth buffers and 1 otherwise.
func (img *Image) BytesPerSample() int {
	if img.Format&ImgFmtHighBitDepth != 0 {
		return 2
	}
	return 1
}

// PSNR mirrors the psnr arm of aom_codec_cx_pkt_t.
type PSNR struct {
	Samples [4]uint32
	SSE     [4]uint64
	PSNR    [4]float64
}

// Packet mirrors aom_codec_cx_pkt_t. Data views native memory and is valid
// only until the next Encode or Destroy on the same handle.
type Packet struct {
	Kind        PacketKind
	Data        []byte
	PTS         int64
	Duration    uint64
	Flags       uint32
	PartitionID int32
	PSNR        PSNR
}

// Library is the raw libaom surface used by the safe wrapper.
type Library interface {
	Backend() string
	Version() (int, string)
	BuildConfig() string
	ErrString(Status) string
	EncoderCaps() Caps
	DecoderCaps() Caps

	NewEncoder(*EncoderSettings) (Handle, Status, string)
	NewDecoder(*DecoderSettings) (Handle, Status, string)
	Destroy(Handle) Status
	// Error returns aom_codec_error and aom_codec_error_detail for h.
	Error(Handle) (msg, detail string)
	Control(Handle, ControlID, int32) Status
	SetEncoderConfig(Handle, *EncoderSettings) Status

	// Encode submits img, or flushes when img is nil.
	Encode(h Handle, img *Image, pts int64, duration uint64, flags EncodeFlags) Status
	NextPacket(Handle, *Packet) bool
	// Decode submits data, or flushes when data is nil.
	Decode(h Handle, data []byte, tag uint64) Status
	NextFrame(Handle, *Image) bool

	ImageAlloc(format ImageFormat, width, height, align uint32) (Handle, *Image, bool)
	ImageFree(Handle)
}

// SplitVersion splits a packed aom_codec_version() value.
func SplitVersion(v int) (major, minor, patch int) {
	return (v >> 16) & 0xff, (v >> 8) & 0xff, v & 0xff
}
