package aom

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/thesyncim/aom/internal/native"
)

// Usage selects the libaom encoder preset.
type Usage int

const (
	UsageGoodQuality Usage = iota
	UsageRealtime
	UsageAllIntra
)

var usageNames = []string{"good", "realtime", "allintra"}

func (u Usage) String() string {
	if u < 0 || int(u) >= len(usageNames) {
		return "unknown"
	}
	return usageNames[u]
}

// MarshalText implements encoding.TextMarshaler.
func (u Usage) MarshalText() ([]byte, error) {
	if u < 0 || int(u) >= len(usageNames) {
		return nil, fmt.Errorf("unknown usage %d", int(u))
	}
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *Usage) UnmarshalText(text []byte) error {
	i, err := lookupName(usageNames, "usage", text)
	*u = Usage(i)
	return err
}

// RateControl selects the rate control mode.
type RateControl int

const (
	RateControlVBR RateControl = iota // Variable bitrate
	RateControlCBR                    // Constant bitrate
	RateControlCQ                     // Constrained quality
	RateControlQ                      // Constant quality
)

var rateControlNames = []string{"vbr", "cbr", "cq", "q"}

func (r RateControl) String() string {
	if r < 0 || int(r) >= len(rateControlNames) {
		return "unknown"
	}
	return rateControlNames[r]
}

// MarshalText implements encoding.TextMarshaler.
func (r RateControl) MarshalText() ([]byte, error) {
	if r < 0 || int(r) >= len(rateControlNames) {
		return nil, fmt.Errorf("unknown rate control %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *RateControl) UnmarshalText(text []byte) error {
	i, err := lookupName(rateControlNames, "rate control", text)
	*r = RateControl(i)
	return err
}

func lookupName(names []string, what string, text []byte) (int, error) {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for i, n := range names {
		if n == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", what, text)
}

// Rational is a timebase such as 1/30 or 1/90000.
type Rational struct {
	Num int `yaml:"num"`
	Den int `yaml:"den"`
}

// EncoderConfig configures an Encoder.
type EncoderConfig struct {
	Width    int         `yaml:"width"`
	Height   int         `yaml:"height"`
	Format   PixelFormat `yaml:"format"`    // Input layout; NV12 is view-only
	BitDepth int         `yaml:"bit_depth"` // 8, 10 or 12
	Profile  int         `yaml:"profile"`   // 0 main, 1 high, 2 professional
	Usage    Usage       `yaml:"usage"`
	Timebase Rational    `yaml:"timebase"`

	RateControl  RateControl `yaml:"rate_control"`
	BitrateKbps  int         `yaml:"bitrate_kbps"`
	MinQuantizer int         `yaml:"min_quantizer"` // 0-63
	MaxQuantizer int         `yaml:"max_quantizer"` // 0-63
	CQLevel      int         `yaml:"cq_level"`      // Used by CQ and Q modes

	Speed            int  `yaml:"speed"`             // AOME_SET_CPUUSED
	Threads          int  `yaml:"threads"`           // 0 = one per CPU, at most 8
	LagInFrames      int  `yaml:"lag_in_frames"`     // Lookahead depth
	KeyframeInterval int  `yaml:"keyframe_interval"` // 0 = encoder decides
	ErrorResilient   bool `yaml:"error_resilient"`
	Lossless         bool `yaml:"lossless"`
	TileColumns      int  `yaml:"tile_columns"` // log2
	TileRows         int  `yaml:"tile_rows"`    // log2
	RowMT            bool `yaml:"row_mt"`
	PSNR             bool `yaml:"psnr"` // Emit PSNR packets
}

// DefaultEncoderConfig returns a realtime 8-bit I420 configuration.
func DefaultEncoderConfig(width, height int) EncoderConfig {
	return EncoderConfig{
		Width:        width,
		Height:       height,
		Format:       PixelFormatI420,
		BitDepth:     8,
		Profile:      0,
		Usage:        UsageRealtime,
		Timebase:     Rational{Num: 1, Den: 30},
		RateControl:  RateControlCBR,
		BitrateKbps:  1000,
		MinQuantizer: 0,
		MaxQuantizer: 63,
		CQLevel:      32,
		Speed:        8,
		RowMT:        true,
	}
}

const (
	maxLagInFrames = 35
	maxThreads     = 64
	maxTileLog2    = 6
	maxQuantizer   = 63
)

// maxSpeed is the highest AOME_SET_CPUUSED value libaom accepts for u.
func maxSpeed(u Usage) int {
	if u == UsageRealtime {
		return 10
	}
	return 9
}

// Validate checks every field. It never calls into libaom.
func (c EncoderConfig) Validate() error {
	const op = "EncoderConfig.Validate"
	if err := checkGeometry(op, c.Format, c.Width, c.Height); err != nil {
		return err
	}
	if c.Format == PixelFormatNV12 {
		return invalidArg(op, "nv12 input is not accepted by the encoder")
	}
	switch {
	case c.Format.HighBitDepth() && c.BitDepth != 10 && c.BitDepth != 12:
		return invalidArg(op, "%s needs bit depth 10 or 12, got %d", c.Format, c.BitDepth)
	case !c.Format.HighBitDepth() && c.BitDepth != 8:
		return invalidArg(op, "%s needs bit depth 8, got %d", c.Format, c.BitDepth)
	}
	if c.Profile < 0 || c.Profile > 2 {
		return invalidArg(op, "profile %d out of range", c.Profile)
	}
	if need := c.minProfile(); c.Profile < need {
		return invalidArg(op, "%s at %d bits requires profile %d or higher", c.Format, c.BitDepth, need)
	}
	if c.Usage < UsageGoodQuality || c.Usage > UsageAllIntra {
		return invalidArg(op, "unknown usage %d", int(c.Usage))
	}
	if c.Timebase.Num <= 0 || c.Timebase.Den <= 0 {
		return invalidArg(op, "timebase %d/%d must be positive", c.Timebase.Num, c.Timebase.Den)
	}
	if c.RateControl < RateControlVBR || c.RateControl > RateControlQ {
		return invalidArg(op, "unknown rate control %d", int(c.RateControl))
	}
	if c.RateControl != RateControlQ && c.BitrateKbps <= 0 {
		return invalidArg(op, "bitrate %d kbps must be positive", c.BitrateKbps)
	}
	if c.MinQuantizer < 0 || c.MaxQuantizer > maxQuantizer || c.MinQuantizer > c.MaxQuantizer {
		return invalidArg(op, "quantizer range %d-%d invalid", c.MinQuantizer, c.MaxQuantizer)
	}
	if c.CQLevel < 0 || c.CQLevel > maxQuantizer {
		return invalidArg(op, "cq level %d out of range", c.CQLevel)
	}
	if c.Speed < 0 || c.Speed > maxSpeed(c.Usage) {
		return invalidArg(op, "speed %d out of range 0-%d for %s usage", c.Speed, maxSpeed(c.Usage), c.Usage)
	}
	if c.Threads < 0 || c.Threads > maxThreads {
		return invalidArg(op, "threads %d out of range", c.Threads)
	}
	if c.LagInFrames < 0 || c.LagInFrames > maxLagInFrames {
		return invalidArg(op, "lag %d out of range", c.LagInFrames)
	}
	if c.KeyframeInterval < 0 {
		return invalidArg(op, "keyframe interval %d must not be negative", c.KeyframeInterval)
	}
	if c.TileColumns < 0 || c.TileColumns > maxTileLog2 || c.TileRows < 0 || c.TileRows > maxTileLog2 {
		return invalidArg(op, "tiles %d/%d out of range", c.TileColumns, c.TileRows)
	}
	return nil
}

// minProfile is the lowest AV1 profile able to carry the format and bit depth.
func (c EncoderConfig) minProfile() int {
	xs, ys := c.Format.ChromaShift()
	switch {
	case c.BitDepth == 12, xs == 1 && ys == 0:
		return 2
	case xs == 0:
		return 1
	default:
		return 0
	}
}

func (c EncoderConfig) threads() int {
	if c.Threads > 0 {
		return c.Threads
	}
	return min(runtime.NumCPU(), 8)
}

// settings translates a validated configuration into native settings.
func (c EncoderConfig) settings() *native.EncoderSettings {
	st := &native.EncoderSettings{
		Usage:         uint32(c.Usage),
		Threads:       uint32(c.threads()),
		Profile:       uint32(c.Profile),
		Width:         uint32(c.Width),
		Height:        uint32(c.Height),
		BitDepth:      uint32(c.BitDepth),
		InputBitDepth: uint32(c.BitDepth),
		TimebaseNum:   int32(c.Timebase.Num),
		TimebaseDen:   int32(c.Timebase.Den),
		LagInFrames:   uint32(c.LagInFrames),
		EndUsage:      uint32(c.RateControl),
		TargetBitrate: uint32(c.BitrateKbps),
		MinQuantizer:  uint32(c.MinQuantizer),
		MaxQuantizer:  uint32(c.MaxQuantizer),
		KFMode:        native.KFAuto,
		KFMaxDist:     uint32(c.KeyframeInterval),
	}
	if c.ErrorResilient {
		st.ErrorResilient = 1
	}
	if c.Format.HighBitDepth() {
		st.Flags |= native.InitUseHighBitDepth
	}
	if c.PSNR {
		st.Flags |= native.InitUsePSNR
	}
	return st
}

type control struct {
	id    native.ControlID
	value int32
	// optional controls only tune speed; a library that cannot apply them
	// still encodes correctly.
	optional bool
}

// controls lists the codec controls applied after the context is created.
func (c EncoderConfig) controls() []control {
	ctrls := []control{
		{id: native.CtrlCPUUsed, value: int32(c.Speed), optional: true},
		{id: native.CtrlRowMT, value: boolInt(c.RowMT), optional: true},
	}
	if c.RateControl == RateControlCQ || c.RateControl == RateControlQ {
		ctrls = append(ctrls, control{id: native.CtrlCQLevel, value: int32(c.CQLevel)})
	}
	if c.TileColumns > 0 {
		ctrls = append(ctrls, control{id: native.CtrlTileColumns, value: int32(c.TileColumns)})
	}
	if c.TileRows > 0 {
		ctrls = append(ctrls, control{id: native.CtrlTileRows, value: int32(c.TileRows)})
	}
	if c.Lossless {
		ctrls = append(ctrls, control{id: native.CtrlLossless, value: 1})
	}
	return ctrls
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// ParseEncoderConfig reads a YAML document over DefaultEncoderConfig and
// validates the result.
func ParseEncoderConfig(data []byte) (EncoderConfig, error) {
	cfg := DefaultEncoderConfig(0, 0)
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return EncoderConfig{}, &Error{Op: "ParseEncoderConfig", Kind: KindInvalidArgument, Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return EncoderConfig{}, err
	}
	return cfg, nil
}

// LoadEncoderConfig reads and validates a YAML configuration file.
func LoadEncoderConfig(path string) (EncoderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EncoderConfig{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseEncoderConfig(data)
}

// YAML renders the configuration as a YAML document.
func (c EncoderConfig) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// DecoderConfig configures a Decoder.
type DecoderConfig struct {
	Threads int `yaml:"threads"` // 0 = one per CPU, at most 8
	// HighBitDepthOutput makes 8-bit streams decode into 16-bit formats.
	HighBitDepthOutput bool `yaml:"high_bit_depth_output"`
}

// Validate checks every field.
func (c DecoderConfig) Validate() error {
	if c.Threads < 0 || c.Threads > maxThreads {
		return invalidArg("DecoderConfig.Validate", "threads %d out of range", c.Threads)
	}
	return nil
}

func (c DecoderConfig) settings() *native.DecoderSettings {
	threads := c.Threads
	if threads == 0 {
		threads = min(runtime.NumCPU(), 8)
	}
	return &native.DecoderSettings{
		Threads:          uint32(threads),
		AllowLowBitDepth: !c.HighBitDepthOutput,
	}
}
