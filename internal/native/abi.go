package native

// Structure layouts of libaom 3.x on LP64 targets, used by the purego
// backend. The cgo build checks them against the C headers in abi_test.go.
const (
	sizeofCodecCtx = 56
	offCtxErr      = 16
	offCtxDetail   = 24

	// aom_codec_enc_cfg_t is about 930 bytes; sessions reserve encCfgWords
	// words for it.
	encCfgWords          = 160
	offCfgUsage          = 0
	offCfgThreads        = 4
	offCfgProfile        = 8
	offCfgW              = 12
	offCfgH              = 16
	offCfgBitDepth       = 32
	offCfgInputBitDepth  = 36
	offCfgTimebaseNum    = 40
	offCfgTimebaseDen    = 44
	offCfgErrorResilient = 48
	offCfgPass           = 52
	offCfgLagInFrames    = 56
	offCfgEndUsage       = 96
	offCfgTargetBitrate  = 136
	offCfgMinQuantizer   = 140
	offCfgMaxQuantizer   = 144
	offCfgKFMode         = 184
	offCfgKFMaxDist      = 192

	sizeofDecCfg = 16

	sizeofImage      = 168
	offImgFmt        = 0
	offImgCP         = 4
	offImgTC         = 8
	offImgMC         = 12
	offImgMonochrome = 16
	offImgRange      = 24
	offImgW          = 28
	offImgH          = 32
	offImgBitDepth   = 36
	offImgDW         = 40
	offImgDH         = 44
	offImgXShift     = 56
	offImgYShift     = 60
	offImgPlanes     = 64
	offImgStride     = 88
	offImgUserPriv   = 128

	offPktKind        = 0
	offPktBuf         = 8
	offPktSz          = 16
	offPktPTS         = 24
	offPktDuration    = 32
	offPktFlags       = 40
	offPktPartitionID = 44
	offPktPSNRSamples = 8
	offPktPSNRSSE     = 24
	offPktPSNRValues  = 56
)

// CICP "unspecified" for colour primaries, transfer and matrix.
const cicpUnspecified = 2
