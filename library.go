package aom

import (
	"github.com/thesyncim/aom/internal/native"
)

// Features is a bitmask of library capabilities.
type Features uint32

const (
	FeatureEncoder      Features = 1 << iota // AV1 encoder compiled in
	FeatureDecoder                           // AV1 decoder compiled in
	FeaturePSNR                              // Encoder can emit PSNR packets
	FeatureHighBitDepth                      // 10/12-bit coding
)

// Has returns true if all specified features are supported.
func (f Features) Has(feature Features) bool { return f&feature == feature }

func (f Features) String() string {
	if f == 0 {
		return "none"
	}
	var s string
	for _, n := range []struct {
		f    Features
		name string
	}{
		{FeatureEncoder, "encoder"},
		{FeatureDecoder, "decoder"},
		{FeaturePSNR, "psnr"},
		{FeatureHighBitDepth, "highbitdepth"},
	} {
		if f.Has(n.f) {
			if s != "" {
				s += ","
			}
			s += n.name
		}
	}
	return s
}

// LibraryInfo describes the libaom build in use.
type LibraryInfo struct {
	Backend       string // "cgo" or "purego"
	Version       string // aom_codec_version_str
	VersionNumber int    // aom_codec_version
	Major         int
	Minor         int
	Patch         int
	BuildConfig   string // aom_codec_build_config
	Features      Features
}

// loadLibrary resolves the native library for a handle, preferring the one
// injected through options.
func loadLibrary(o *options) (native.Library, error) {
	if o != nil && o.lib != nil {
		return o.lib, nil
	}
	return native.Load()
}

// Info reports the version and capabilities of the loaded libaom.
func Info(opts ...Option) (LibraryInfo, error) {
	o := newOptions(opts)
	lib, err := loadLibrary(o)
	if err != nil {
		return LibraryInfo{}, unavailableError("Info", err)
	}
	n, s := lib.Version()
	info := LibraryInfo{
		Backend:       lib.Backend(),
		Version:       s,
		VersionNumber: n,
		BuildConfig:   lib.BuildConfig(),
		Features:      featuresFromCaps(lib.EncoderCaps(), lib.DecoderCaps()),
	}
	info.Major, info.Minor, info.Patch = native.SplitVersion(n)
	return info, nil
}

// Available returns true if libaom could be loaded.
func Available() bool {
	_, err := native.Load()
	return err == nil
}

func featuresFromCaps(enc, dec native.Caps) Features {
	var f Features
	if enc&native.CapEncoder != 0 {
		f |= FeatureEncoder
	}
	if dec&native.CapDecoder != 0 {
		f |= FeatureDecoder
	}
	if enc&native.CapPSNR != 0 {
		f |= FeaturePSNR
	}
	if (enc|dec)&native.CapHighBitDepth != 0 {
		f |= FeatureHighBitDepth
	}
	return f
}
