//go:build cgo && !aom_purego

package native

/*
#cgo pkg-config: aom

#include <stdint.h>
#include <stdlib.h>
#include <string.h>
#include <aom/aom_decoder.h>
#include <aom/aom_encoder.h>
#include <aom/aomcx.h>
#include <aom/aomdx.h>

typedef struct {
	aom_codec_ctx_t ctx;
	aom_codec_enc_cfg_t cfg;
	aom_codec_dec_cfg_t dcfg;
	aom_codec_iter_t iter;
	unsigned char *inbuf;
	size_t incap;
} goaom_session;

typedef struct {
	unsigned int usage;
	unsigned int threads;
	unsigned int profile;
	unsigned int w;
	unsigned int h;
	unsigned int bit_depth;
	unsigned int input_bit_depth;
	int tb_num;
	int tb_den;
	unsigned int error_resilient;
	unsigned int lag;
	unsigned int end_usage;
	unsigned int bitrate;
	unsigned int min_q;
	unsigned int max_q;
	unsigned int kf_mode;
	unsigned int kf_max_dist;
} goaom_enc_settings;

typedef struct {
	int kind;
	void *buf;
	size_t sz;
	int64_t pts;
	unsigned long duration;
	unsigned int flags;
	int partition_id;
	unsigned int samples[4];
	uint64_t sse[4];
	double psnr[4];
} goaom_packet;

typedef struct {
	unsigned int fmt;
	unsigned int bit_depth;
	unsigned int w;
	unsigned int h;
	int monochrome;
	unsigned char *planes[3];
	int stride[3];
	uint64_t tag;
} goaom_frame;

static void goaom_apply(aom_codec_enc_cfg_t *cfg, const goaom_enc_settings *st) {
	cfg->g_threads = st->threads;
	cfg->g_profile = st->profile;
	cfg->g_w = st->w;
	cfg->g_h = st->h;
	cfg->g_bit_depth = (aom_bit_depth_t)st->bit_depth;
	cfg->g_input_bit_depth = st->input_bit_depth;
	cfg->g_timebase.num = st->tb_num;
	cfg->g_timebase.den = st->tb_den;
	cfg->g_error_resilient = st->error_resilient;
	cfg->g_pass = AOM_RC_ONE_PASS;
	cfg->g_lag_in_frames = st->lag;
	cfg->rc_end_usage = (enum aom_rc_mode)st->end_usage;
	cfg->rc_target_bitrate = st->bitrate;
	cfg->rc_min_quantizer = st->min_q;
	cfg->rc_max_quantizer = st->max_q;
	cfg->kf_mode = (enum aom_kf_mode)st->kf_mode;
	if (st->kf_max_dist > 0) {
		cfg->kf_max_dist = st->kf_max_dist;
	}
}

static aom_codec_err_t goaom_encoder_new(goaom_session **out, const goaom_enc_settings *st, aom_codec_flags_t flags) {
	goaom_session *s = calloc(1, sizeof(goaom_session));
	aom_codec_err_t res;
	*out = s;
	if (s == NULL) {
		return AOM_CODEC_MEM_ERROR;
	}
	res = aom_codec_enc_config_default(aom_codec_av1_cx(), &s->cfg, st->usage);
	if (res != AOM_CODEC_OK) {
		return res;
	}
	goaom_apply(&s->cfg, st);
	return aom_codec_enc_init(&s->ctx, aom_codec_av1_cx(), &s->cfg, flags);
}

static aom_codec_err_t goaom_decoder_new(goaom_session **out, unsigned int threads, unsigned int w, unsigned int h, unsigned int allow_lowbitdepth, aom_codec_flags_t flags) {
	goaom_session *s = calloc(1, sizeof(goaom_session));
	*out = s;
	if (s == NULL) {
		return AOM_CODEC_MEM_ERROR;
	}
	s->dcfg.threads = threads;
	s->dcfg.w = w;
	s->dcfg.h = h;
	s->dcfg.allow_lowbitdepth = allow_lowbitdepth;
	return aom_codec_dec_init(&s->ctx, aom_codec_av1_dx(), &s->dcfg, flags);
}

static void goaom_free(goaom_session *s) {
	free(s->inbuf);
	free(s);
}

static aom_codec_err_t goaom_set_config(goaom_session *s, const goaom_enc_settings *st) {
	goaom_apply(&s->cfg, st);
	return aom_codec_enc_config_set(&s->ctx, &s->cfg);
}

static aom_codec_err_t goaom_control(goaom_session *s, int id, int v) {
	return (aom_codec_control)(&s->ctx, id, v);
}

static aom_codec_err_t goaom_encode(goaom_session *s, int has_img,
		unsigned int fmt, unsigned int bit_depth, unsigned int w, unsigned int h,
		unsigned int xs, unsigned int ys, int monochrome,
		unsigned char *p0, unsigned char *p1, unsigned char *p2,
		int s0, int s1, int s2,
		int64_t pts, unsigned long duration, int64_t flags) {
	aom_image_t img;
	s->iter = NULL;
	if (!has_img) {
		return aom_codec_encode(&s->ctx, NULL, pts, duration, flags);
	}
	memset(&img, 0, sizeof(img));
	img.fmt = (aom_img_fmt_t)fmt;
	img.cp = AOM_CICP_CP_UNSPECIFIED;
	img.tc = AOM_CICP_TC_UNSPECIFIED;
	img.mc = AOM_CICP_MC_UNSPECIFIED;
	img.range = AOM_CR_STUDIO_RANGE;
	img.monochrome = monochrome;
	img.bit_depth = bit_depth;
	img.w = w;
	img.h = h;
	img.d_w = w;
	img.d_h = h;
	img.x_chroma_shift = xs;
	img.y_chroma_shift = ys;
	img.planes[AOM_PLANE_Y] = p0;
	img.planes[AOM_PLANE_U] = p1;
	img.planes[AOM_PLANE_V] = p2;
	img.stride[AOM_PLANE_Y] = s0;
	img.stride[AOM_PLANE_U] = s1;
	img.stride[AOM_PLANE_V] = s2;
	return aom_codec_encode(&s->ctx, &img, pts, duration, flags);
}

static int goaom_next_packet(goaom_session *s, goaom_packet *out) {
	const aom_codec_cx_pkt_t *pkt = aom_codec_get_cx_data(&s->ctx, &s->iter);
	int i;
	if (pkt == NULL) {
		return 0;
	}
	memset(out, 0, sizeof(*out));
	out->kind = (int)pkt->kind;
	switch (pkt->kind) {
	case AOM_CODEC_CX_FRAME_PKT:
		out->buf = pkt->data.frame.buf;
		out->sz = pkt->data.frame.sz;
		out->pts = pkt->data.frame.pts;
		out->duration = pkt->data.frame.duration;
		out->flags = pkt->data.frame.flags;
		out->partition_id = pkt->data.frame.partition_id;
		break;
	case AOM_CODEC_STATS_PKT:
		out->buf = pkt->data.twopass_stats.buf;
		out->sz = pkt->data.twopass_stats.sz;
		break;
	case AOM_CODEC_FPMB_STATS_PKT:
		out->buf = pkt->data.firstpass_mb_stats.buf;
		out->sz = pkt->data.firstpass_mb_stats.sz;
		break;
	case AOM_CODEC_PSNR_PKT:
		for (i = 0; i < 4; i++) {
			out->samples[i] = pkt->data.psnr.samples[i];
			out->sse[i] = pkt->data.psnr.sse[i];
			out->psnr[i] = pkt->data.psnr.psnr[i];
		}
		break;
	case AOM_CODEC_CUSTOM_PKT:
		out->buf = pkt->data.raw.buf;
		out->sz = pkt->data.raw.sz;
		break;
	default:
		break;
	}
	return 1;
}

static aom_codec_err_t goaom_decode(goaom_session *s, const unsigned char *data, size_t n, uint64_t tag) {
	s->iter = NULL;
	if (data == NULL || n == 0) {
		return aom_codec_decode(&s->ctx, NULL, 0, NULL);
	}
	if (n > s->incap) {
		unsigned char *p = realloc(s->inbuf, n);
		if (p == NULL) {
			return AOM_CODEC_MEM_ERROR;
		}
		s->inbuf = p;
		s->incap = n;
	}
	memcpy(s->inbuf, data, n);
	return aom_codec_decode(&s->ctx, s->inbuf, n, (void *)(uintptr_t)tag);
}

static void goaom_fill_frame(const aom_image_t *img, goaom_frame *out) {
	int i;
	out->fmt = (unsigned int)img->fmt;
	out->bit_depth = img->bit_depth;
	out->w = img->d_w;
	out->h = img->d_h;
	out->monochrome = img->monochrome;
	for (i = 0; i < 3; i++) {
		out->planes[i] = img->planes[i];
		out->stride[i] = img->stride[i];
	}
	out->tag = (uint64_t)(uintptr_t)img->user_priv;
}

static int goaom_next_frame(goaom_session *s, goaom_frame *out) {
	aom_image_t *img = aom_codec_get_frame(&s->ctx, &s->iter);
	if (img == NULL) {
		return 0;
	}
	goaom_fill_frame(img, out);
	return 1;
}

static aom_image_t *goaom_img_alloc(unsigned int fmt, unsigned int w, unsigned int h, unsigned int align, goaom_frame *out) {
	aom_image_t *img = aom_img_alloc(NULL, (aom_img_fmt_t)fmt, w, h, align);
	if (img != NULL) {
		goaom_fill_frame(img, out);
	}
	return img;
}

static const char *goaom_error_detail(goaom_session *s) {
	return aom_codec_error_detail(&s->ctx);
}
*/
import "C"

import (
	"unsafe"
)

type cgoLibrary struct {
	sessions Registry[*C.goaom_session]
	images   Registry[*C.aom_image_t]
}

var cgoLib = &cgoLibrary{}

// Load returns the libaom linked into the binary.
func Load() (Library, error) {
	return cgoLib, nil
}

func (l *cgoLibrary) Backend() string { return "cgo" }

func (l *cgoLibrary) Version() (int, string) {
	return int(C.aom_codec_version()), C.GoString(C.aom_codec_version_str())
}

func (l *cgoLibrary) BuildConfig() string {
	return C.GoString(C.aom_codec_build_config())
}

func (l *cgoLibrary) ErrString(s Status) string {
	return C.GoString(C.aom_codec_err_to_string(C.aom_codec_err_t(s)))
}

func (l *cgoLibrary) EncoderCaps() Caps {
	return Caps(C.aom_codec_get_caps(C.aom_codec_av1_cx()))
}

func (l *cgoLibrary) DecoderCaps() Caps {
	return Caps(C.aom_codec_get_caps(C.aom_codec_av1_dx()))
}

func encSettings(st *EncoderSettings) C.goaom_enc_settings {
	return C.goaom_enc_settings{
		usage:           C.uint(st.Usage),
		threads:         C.uint(st.Threads),
		profile:         C.uint(st.Profile),
		w:               C.uint(st.Width),
		h:               C.uint(st.Height),
		bit_depth:       C.uint(st.BitDepth),
		input_bit_depth: C.uint(st.InputBitDepth),
		tb_num:          C.int(st.TimebaseNum),
		tb_den:          C.int(st.TimebaseDen),
		error_resilient: C.uint(st.ErrorResilient),
		lag:             C.uint(st.LagInFrames),
		end_usage:       C.uint(st.EndUsage),
		bitrate:         C.uint(st.TargetBitrate),
		min_q:           C.uint(st.MinQuantizer),
		max_q:           C.uint(st.MaxQuantizer),
		kf_mode:         C.uint(st.KFMode),
		kf_max_dist:     C.uint(st.KFMaxDist),
	}
}

// open finishes session creation: on failure the session is released and
// the native detail string, if any, is returned.
func (l *cgoLibrary) open(s *C.goaom_session, res C.aom_codec_err_t) (Handle, Status, string) {
	if s == nil {
		return 0, StatusMemError, ""
	}
	if res != C.AOM_CODEC_OK {
		var detail string
		if p := C.goaom_error_detail(s); p != nil {
			detail = C.GoString(p)
		}
		C.aom_codec_destroy(&s.ctx)
		C.goaom_free(s)
		return 0, Status(res), detail
	}
	return l.sessions.Put(s), StatusOK, ""
}

func (l *cgoLibrary) NewEncoder(st *EncoderSettings) (Handle, Status, string) {
	cst := encSettings(st)
	var s *C.goaom_session
	res := C.goaom_encoder_new(&s, &cst, C.aom_codec_flags_t(st.Flags))
	return l.open(s, res)
}

func (l *cgoLibrary) NewDecoder(st *DecoderSettings) (Handle, Status, string) {
	var lowbd C.uint
	if st.AllowLowBitDepth {
		lowbd = 1
	}
	var s *C.goaom_session
	res := C.goaom_decoder_new(&s, C.uint(st.Threads), C.uint(st.Width), C.uint(st.Height), lowbd, C.aom_codec_flags_t(st.Flags))
	return l.open(s, res)
}

func (l *cgoLibrary) Destroy(h Handle) Status {
	s, ok := l.sessions.Take(h)
	if !ok {
		return StatusInvalidParam
	}
	res := C.aom_codec_destroy(&s.ctx)
	C.goaom_free(s)
	return Status(res)
}

func (l *cgoLibrary) Error(h Handle) (string, string) {
	s, ok := l.sessions.Get(h)
	if !ok {
		return "", ""
	}
	var msg, detail string
	if p := C.aom_codec_error(&s.ctx); p != nil {
		msg = C.GoString(p)
	}
	if p := C.goaom_error_detail(s); p != nil {
		detail = C.GoString(p)
	}
	return msg, detail
}

func (l *cgoLibrary) Control(h Handle, id ControlID, v int32) Status {
	s, ok := l.sessions.Get(h)
	if !ok {
		return StatusInvalidParam
	}
	return Status(C.goaom_control(s, C.int(id), C.int(v)))
}

func (l *cgoLibrary) SetEncoderConfig(h Handle, st *EncoderSettings) Status {
	s, ok := l.sessions.Get(h)
	if !ok {
		return StatusInvalidParam
	}
	cst := encSettings(st)
	return Status(C.goaom_set_config(s, &cst))
}

func (l *cgoLibrary) Encode(h Handle, img *Image, pts int64, duration uint64, flags EncodeFlags) Status {
	s, ok := l.sessions.Get(h)
	if !ok {
		return StatusInvalidParam
	}
	if img == nil {
		return Status(C.goaom_encode(s, 0, 0, 0, 0, 0, 0, 0, 0, nil, nil, nil, 0, 0, 0,
			C.int64_t(pts), C.ulong(duration), C.int64_t(flags)))
	}
	var mono C.int
	if img.Monochrome {
		mono = 1
	}
	xs, ys := img.Format.ChromaShift()
	return Status(C.goaom_encode(s, 1,
		C.uint(img.Format), C.uint(img.BitDepth), C.uint(img.Width), C.uint(img.Height),
		C.uint(xs), C.uint(ys), mono,
		(*C.uchar)(planePointer(img.Planes[0])),
		(*C.uchar)(planePointer(img.Planes[1])),
		(*C.uchar)(planePointer(img.Planes[2])),
		C.int(img.Strides[0]), C.int(img.Strides[1]), C.int(img.Strides[2]),
		C.int64_t(pts), C.ulong(duration), C.int64_t(flags)))
}

func (l *cgoLibrary) NextPacket(h Handle, out *Packet) bool {
	s, ok := l.sessions.Get(h)
	if !ok {
		return false
	}
	var p C.goaom_packet
	if C.goaom_next_packet(s, &p) == 0 {
		return false
	}
	*out = Packet{
		Kind:        PacketKind(p.kind),
		Data:        bytesAt(p.buf, int(p.sz)),
		PTS:         int64(p.pts),
		Duration:    uint64(p.duration),
		Flags:       uint32(p.flags),
		PartitionID: int32(p.partition_id),
	}
	for i := 0; i < 4; i++ {
		out.PSNR.Samples[i] = uint32(p.samples[i])
		out.PSNR.SSE[i] = uint64(p.sse[i])
		out.PSNR.PSNR[i] = float64(p.psnr[i])
	}
	return true
}

func (l *cgoLibrary) Decode(h Handle, data []byte, tag uint64) Status {
	s, ok := l.sessions.Get(h)
	if !ok {
		return StatusInvalidParam
	}
	return Status(C.goaom_decode(s, (*C.uchar)(planePointer(data)), C.size_t(len(data)), C.uint64_t(tag)))
}

func frameView(f *C.goaom_frame) *Image {
	var planes [3]unsafe.Pointer
	var strides [3]int
	for i := 0; i < 3; i++ {
		planes[i] = unsafe.Pointer(f.planes[i])
		strides[i] = int(f.stride[i])
	}
	return imageView(ImageFormat(f.fmt), uint32(f.bit_depth), uint32(f.w), uint32(f.h),
		f.monochrome != 0, planes, strides, uint64(f.tag))
}

func (l *cgoLibrary) NextFrame(h Handle, out *Image) bool {
	s, ok := l.sessions.Get(h)
	if !ok {
		return false
	}
	var f C.goaom_frame
	if C.goaom_next_frame(s, &f) == 0 {
		return false
	}
	*out = *frameView(&f)
	return true
}

func (l *cgoLibrary) ImageAlloc(format ImageFormat, w, h, align uint32) (Handle, *Image, bool) {
	var f C.goaom_frame
	img := C.goaom_img_alloc(C.uint(format), C.uint(w), C.uint(h), C.uint(align), &f)
	if img == nil {
		return 0, nil, false
	}
	return l.images.Put(img), frameView(&f), true
}

func (l *cgoLibrary) ImageFree(h Handle) {
	if img, ok := l.images.Take(h); ok {
		C.aom_img_free(img)
	}
}
