package aom

import (
	"image"
	"image/color"
	"iter"
	"math"
)

// Pattern selects the synthetic picture a PatternSource paints.
type Pattern int

const (
	PatternColorBars    Pattern = iota // SMPTE color bars
	PatternGradient                    // Horizontal luma gradient
	PatternCheckerboard                // Black and white squares
	PatternSolid                       // Single color
	PatternNoise                       // Random luma noise
	PatternMovingBox                   // White box moving in a circle
)

var patternNames = []string{"bars", "gradient", "checker", "solid", "noise", "box"}

func (p Pattern) String() string {
	if p < 0 || int(p) >= len(patternNames) {
		return "unknown"
	}
	return patternNames[p]
}

func (p Pattern) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Pattern) UnmarshalText(text []byte) error {
	i, err := lookupName(patternNames, "pattern", text)
	*p = Pattern(i)
	return err
}

// PatternConfig configures a PatternSource.
type PatternConfig struct {
	Width    int
	Height   int
	Format   PixelFormat // 8-bit planar formats only (default: I420)
	Pattern  Pattern
	Animated bool // Scroll gradient and checkerboard; noise and box always animate

	Color       color.RGBA // For PatternSolid
	CheckerSize int        // Size of each checker square (default: 16)
	Seed        uint64     // Noise seed (default: 1)
}

// PatternSource paints test pictures into a single reusable frame.
type PatternSource struct {
	cfg   PatternConfig
	frame *Frame
	n     uint64
	rng   uint64
	box   image.Rectangle
	solid [3]uint8
}

// NewPatternSource allocates the frame a PatternSource paints into.
func NewPatternSource(cfg PatternConfig) (*PatternSource, error) {
	const op = "NewPatternSource"
	if cfg.Format == PixelFormatUnknown {
		cfg.Format = PixelFormatI420
	}
	if cfg.Format.HighBitDepth() || cfg.Format == PixelFormatNV12 {
		return nil, invalidArg(op, "pattern source does not support %s", cfg.Format)
	}
	if cfg.Pattern < 0 || int(cfg.Pattern) >= len(patternNames) {
		return nil, invalidArg(op, "unknown pattern %d", int(cfg.Pattern))
	}
	if cfg.CheckerSize <= 0 {
		cfg.CheckerSize = 16
	}
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}
	f, err := NewFrameBuffer(cfg.Format, cfg.Width, cfg.Height)
	if err != nil {
		return nil, err
	}
	s := &PatternSource{cfg: cfg, frame: f, rng: cfg.Seed}
	s.solid[0], s.solid[1], s.solid[2] = rgbToYUV(cfg.Color.R, cfg.Color.G, cfg.Color.B)
	return s, nil
}

// Next paints the next picture and returns the shared frame. PTS counts
// frames from zero and Duration is one tick. The frame is overwritten by the
// following call.
func (s *PatternSource) Next() *Frame {
	if s.n == 0 || s.animated() {
		s.paint(s.n)
	}
	s.frame.PTS = int64(s.n)
	s.frame.Duration = 1
	s.n++
	return s.frame
}

// Frames yields count pictures.
func (s *PatternSource) Frames(count int) iter.Seq[*Frame] {
	return func(yield func(*Frame) bool) {
		for i := 0; i < count; i++ {
			if !yield(s.Next()) {
				return
			}
		}
	}
}

func (s *PatternSource) animated() bool {
	return s.cfg.Animated || s.cfg.Pattern == PatternNoise || s.cfg.Pattern == PatternMovingBox
}

func (s *PatternSource) paint(n uint64) {
	f := s.frame
	if s.cfg.Pattern == PatternMovingBox {
		s.box = s.boxAt(n)
	}

	for y := 0; y < f.height; y++ {
		row := f.planes[0][y*f.strides[0]:]
		for x := 0; x < f.width; x++ {
			if s.cfg.Pattern == PatternNoise {
				row[x] = s.noise()
				continue
			}
			row[x], _, _ = s.sample(x, y, n)
		}
	}

	cb, cr := 1, 2
	if f.format == PixelFormatYV12 {
		cb, cr = 2, 1
	}
	xs, ys := f.format.ChromaShift()
	cw, ch := f.format.PlaneSize(1, f.width, f.height)
	for y := 0; y < ch; y++ {
		u := f.planes[cb][y*f.strides[cb]:]
		v := f.planes[cr][y*f.strides[cr]:]
		for x := 0; x < cw; x++ {
			_, u[x], v[x] = s.sample(x<<xs, y<<ys, n)
		}
	}
}

// SMPTE color bars (simplified 8-bar pattern)
var colorBarsRGB = [8][3]uint8{
	{192, 192, 192}, // White (75%)
	{192, 192, 0},   // Yellow
	{0, 192, 192},   // Cyan
	{0, 192, 0},     // Green
	{192, 0, 192},   // Magenta
	{192, 0, 0},     // Red
	{0, 0, 192},     // Blue
	{16, 16, 16},    // Black
}

func (s *PatternSource) sample(x, y int, n uint64) (yv, u, v uint8) {
	w := s.frame.width
	if s.cfg.Animated && s.cfg.Pattern != PatternMovingBox {
		x = (x + int(n%uint64(w))*2) % w
	}
	switch s.cfg.Pattern {
	case PatternColorBars:
		bar := min(x/max(w/8, 1), 7)
		rgb := colorBarsRGB[bar]
		return rgbToYUV(rgb[0], rgb[1], rgb[2])
	case PatternGradient:
		return uint8(x * 255 / w), 128, 128
	case PatternCheckerboard:
		size := s.cfg.CheckerSize
		if (x/size+y/size)%2 == 0 {
			return 235, 128, 128
		}
		return 16, 128, 128
	case PatternSolid:
		return s.solid[0], s.solid[1], s.solid[2]
	case PatternMovingBox:
		if image.Pt(x, y).In(s.box) {
			return 235, 128, 128
		}
		return 16, 128, 128
	}
	return 16, 128, 128
}

// boxAt places the box on a circle around the frame centre.
func (s *PatternSource) boxAt(n uint64) image.Rectangle {
	w, h := s.frame.width, s.frame.height
	size := max(min(w, h)/4, 2)
	radius := float64(min(w, h)) / 4
	angle := float64(n) * 0.05
	x := w/2 + int(radius*math.Cos(angle)) - size/2
	y := h/2 + int(radius*math.Sin(angle)) - size/2
	return image.Rect(x, y, x+size, y+size)
}

// noise is xorshift64.
func (s *PatternSource) noise() uint8 {
	s.rng ^= s.rng << 13
	s.rng ^= s.rng >> 7
	s.rng ^= s.rng << 17
	return uint8(s.rng)
}
