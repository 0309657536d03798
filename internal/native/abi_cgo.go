//go:build cgo && !aom_purego

package native

/*
#cgo pkg-config: aom

#include <stddef.h>
#include <aom/aom_decoder.h>
#include <aom/aom_encoder.h>
#include <aom/aomcx.h>

static long goaom_layout(int i) {
	switch (i) {
	case 0: return sizeof(aom_codec_ctx_t);
	case 1: return offsetof(aom_codec_ctx_t, err);
	case 2: return offsetof(aom_codec_ctx_t, err_detail);
	case 3: return sizeof(aom_codec_enc_cfg_t) <= 8 * 160;
	case 4: return offsetof(aom_codec_enc_cfg_t, g_usage);
	case 5: return offsetof(aom_codec_enc_cfg_t, g_threads);
	case 6: return offsetof(aom_codec_enc_cfg_t, g_profile);
	case 7: return offsetof(aom_codec_enc_cfg_t, g_w);
	case 8: return offsetof(aom_codec_enc_cfg_t, g_h);
	case 9: return offsetof(aom_codec_enc_cfg_t, g_bit_depth);
	case 10: return offsetof(aom_codec_enc_cfg_t, g_input_bit_depth);
	case 11: return offsetof(aom_codec_enc_cfg_t, g_timebase.num);
	case 12: return offsetof(aom_codec_enc_cfg_t, g_timebase.den);
	case 13: return offsetof(aom_codec_enc_cfg_t, g_error_resilient);
	case 14: return offsetof(aom_codec_enc_cfg_t, g_pass);
	case 15: return offsetof(aom_codec_enc_cfg_t, g_lag_in_frames);
	case 16: return offsetof(aom_codec_enc_cfg_t, rc_end_usage);
	case 17: return offsetof(aom_codec_enc_cfg_t, rc_target_bitrate);
	case 18: return offsetof(aom_codec_enc_cfg_t, rc_min_quantizer);
	case 19: return offsetof(aom_codec_enc_cfg_t, rc_max_quantizer);
	case 20: return offsetof(aom_codec_enc_cfg_t, kf_mode);
	case 21: return offsetof(aom_codec_enc_cfg_t, kf_max_dist);
	case 22: return sizeof(aom_codec_dec_cfg_t);
	case 23: return sizeof(aom_image_t);
	case 24: return offsetof(aom_image_t, fmt);
	case 25: return offsetof(aom_image_t, cp);
	case 26: return offsetof(aom_image_t, tc);
	case 27: return offsetof(aom_image_t, mc);
	case 28: return offsetof(aom_image_t, monochrome);
	case 29: return offsetof(aom_image_t, range);
	case 30: return offsetof(aom_image_t, w);
	case 31: return offsetof(aom_image_t, h);
	case 32: return offsetof(aom_image_t, bit_depth);
	case 33: return offsetof(aom_image_t, d_w);
	case 34: return offsetof(aom_image_t, d_h);
	case 35: return offsetof(aom_image_t, x_chroma_shift);
	case 36: return offsetof(aom_image_t, y_chroma_shift);
	case 37: return offsetof(aom_image_t, planes);
	case 38: return offsetof(aom_image_t, stride);
	case 39: return offsetof(aom_image_t, user_priv);
	case 40: return offsetof(aom_codec_cx_pkt_t, kind);
	case 41: return offsetof(aom_codec_cx_pkt_t, data.frame.buf);
	case 42: return offsetof(aom_codec_cx_pkt_t, data.frame.sz);
	case 43: return offsetof(aom_codec_cx_pkt_t, data.frame.pts);
	case 44: return offsetof(aom_codec_cx_pkt_t, data.frame.duration);
	case 45: return offsetof(aom_codec_cx_pkt_t, data.frame.flags);
	case 46: return offsetof(aom_codec_cx_pkt_t, data.frame.partition_id);
	case 47: return offsetof(aom_codec_cx_pkt_t, data.psnr.samples);
	case 48: return offsetof(aom_codec_cx_pkt_t, data.psnr.sse);
	case 49: return offsetof(aom_codec_cx_pkt_t, data.psnr.psnr);
	case 50: return offsetof(aom_codec_cx_pkt_t, data.twopass_stats.buf);
	case 51: return offsetof(aom_codec_cx_pkt_t, data.twopass_stats.sz);
	case 52: return AOM_IMAGE_ABI_VERSION;
	case 53: return AOM_CODEC_ABI_VERSION;
	case 54: return AOM_ENCODER_ABI_VERSION;
	case 55: return AOM_DECODER_ABI_VERSION;
	case 56: return AOM_CODEC_LIST_END;
	case 57: return AOM_IMG_FMT_I42016;
	case 58: return AOM_IMG_FMT_NV12;
	case 59: return AOM_CODEC_PSNR_PKT;
	case 60: return AOME_SET_CPUUSED;
	case 61: return AOME_SET_CQ_LEVEL;
	case 62: return AV1E_SET_LOSSLESS;
	case 63: return AV1E_SET_ROW_MT;
	case 64: return AV1E_SET_TILE_COLUMNS;
	case 65: return AV1E_SET_TILE_ROWS;
	case 66: return AOM_EFLAG_FORCE_KF;
	case 67: return AOM_CODEC_USE_PSNR;
	case 68: return AOM_CODEC_USE_HIGHBITDEPTH;
	case 69: return AOM_CQ;
	case 70: return AOM_USAGE_REALTIME;
	case 71: return AOM_FRAME_IS_KEY;
	case 72: return AOM_CODEC_CAP_HIGHBITDEPTH;
	}
	return -1;
}
*/
import "C"

type layoutEntry struct {
	name string
	want int64
}

// layoutTable lists the Go mirrors in the same order as goaom_layout.
var layoutTable = []layoutEntry{
	{"sizeof(aom_codec_ctx_t)", sizeofCodecCtx},
	{"aom_codec_ctx_t.err", offCtxErr},
	{"aom_codec_ctx_t.err_detail", offCtxDetail},
	{"sizeof(aom_codec_enc_cfg_t) fits", 1},
	{"enc_cfg.g_usage", offCfgUsage},
	{"enc_cfg.g_threads", offCfgThreads},
	{"enc_cfg.g_profile", offCfgProfile},
	{"enc_cfg.g_w", offCfgW},
	{"enc_cfg.g_h", offCfgH},
	{"enc_cfg.g_bit_depth", offCfgBitDepth},
	{"enc_cfg.g_input_bit_depth", offCfgInputBitDepth},
	{"enc_cfg.g_timebase.num", offCfgTimebaseNum},
	{"enc_cfg.g_timebase.den", offCfgTimebaseDen},
	{"enc_cfg.g_error_resilient", offCfgErrorResilient},
	{"enc_cfg.g_pass", offCfgPass},
	{"enc_cfg.g_lag_in_frames", offCfgLagInFrames},
	{"enc_cfg.rc_end_usage", offCfgEndUsage},
	{"enc_cfg.rc_target_bitrate", offCfgTargetBitrate},
	{"enc_cfg.rc_min_quantizer", offCfgMinQuantizer},
	{"enc_cfg.rc_max_quantizer", offCfgMaxQuantizer},
	{"enc_cfg.kf_mode", offCfgKFMode},
	{"enc_cfg.kf_max_dist", offCfgKFMaxDist},
	{"sizeof(aom_codec_dec_cfg_t)", sizeofDecCfg},
	{"sizeof(aom_image_t)", sizeofImage},
	{"aom_image_t.fmt", offImgFmt},
	{"aom_image_t.cp", offImgCP},
	{"aom_image_t.tc", offImgTC},
	{"aom_image_t.mc", offImgMC},
	{"aom_image_t.monochrome", offImgMonochrome},
	{"aom_image_t.range", offImgRange},
	{"aom_image_t.w", offImgW},
	{"aom_image_t.h", offImgH},
	{"aom_image_t.bit_depth", offImgBitDepth},
	{"aom_image_t.d_w", offImgDW},
	{"aom_image_t.d_h", offImgDH},
	{"aom_image_t.x_chroma_shift", offImgXShift},
	{"aom_image_t.y_chroma_shift", offImgYShift},
	{"aom_image_t.planes", offImgPlanes},
	{"aom_image_t.stride", offImgStride},
	{"aom_image_t.user_priv", offImgUserPriv},
	{"cx_pkt.kind", offPktKind},
	{"cx_pkt.frame.buf", offPktBuf},
	{"cx_pkt.frame.sz", offPktSz},
	{"cx_pkt.frame.pts", offPktPTS},
	{"cx_pkt.frame.duration", offPktDuration},
	{"cx_pkt.frame.flags", offPktFlags},
	{"cx_pkt.frame.partition_id", offPktPartitionID},
	{"cx_pkt.psnr.samples", offPktPSNRSamples},
	{"cx_pkt.psnr.sse", offPktPSNRSSE},
	{"cx_pkt.psnr.psnr", offPktPSNRValues},
	{"cx_pkt.twopass_stats.buf", offPktBuf},
	{"cx_pkt.twopass_stats.sz", offPktSz},
	{"AOM_IMAGE_ABI_VERSION", ImageABIVersion},
	{"AOM_CODEC_ABI_VERSION", CodecABIVersion},
	{"AOM_ENCODER_ABI_VERSION", linkedABI(true)},
	{"AOM_DECODER_ABI_VERSION", linkedABI(false)},
	{"AOM_CODEC_LIST_END", int64(StatusListEnd)},
	{"AOM_IMG_FMT_I42016", int64(ImgFmtI42016)},
	{"AOM_IMG_FMT_NV12", int64(ImgFmtNV12)},
	{"AOM_CODEC_PSNR_PKT", int64(PacketPSNR)},
	{"AOME_SET_CPUUSED", int64(CtrlCPUUsed)},
	{"AOME_SET_CQ_LEVEL", int64(CtrlCQLevel)},
	{"AV1E_SET_LOSSLESS", int64(CtrlLossless)},
	{"AV1E_SET_ROW_MT", int64(CtrlRowMT)},
	{"AV1E_SET_TILE_COLUMNS", int64(CtrlTileColumns)},
	{"AV1E_SET_TILE_ROWS", int64(CtrlTileRows)},
	{"AOM_EFLAG_FORCE_KF", int64(EncodeForceKeyframe)},
	{"AOM_CODEC_USE_PSNR", InitUsePSNR},
	{"AOM_CODEC_USE_HIGHBITDEPTH", InitUseHighBitDepth},
	{"AOM_CQ", int64(RCCQ)},
	{"AOM_USAGE_REALTIME", int64(UsageRealtime)},
	{"AOM_FRAME_IS_KEY", int64(FrameIsKey)},
	{"AOM_CODEC_CAP_HIGHBITDEPTH", int64(CapHighBitDepth)},
}

// linkedABI returns the table entry for the linked library, which cgo
// builds expect to match the headers. A missing entry yields -1.
func linkedABI(encoder bool) int64 {
	abi, ok := LookupABIVersions(int(C.aom_codec_version()))
	switch {
	case !ok:
		return -1
	case encoder:
		return int64(abi.Encoder)
	}
	return int64(abi.Decoder)
}

func cLayout(i int) int64 {
	return int64(C.goaom_layout(C.int(i)))
}
