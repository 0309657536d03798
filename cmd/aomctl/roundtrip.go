package main

import (
	"fmt"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/thesyncim/aom"
	"github.com/thesyncim/aom/metrics"
)

// roundtripCmd represents the roundtrip command
var roundtripCmd = &cobra.Command{
	Use:   "roundtrip",
	Short: "Encode a test pattern, decode it again and report quality",
	Long: `Encode frames of a moving test pattern, feed every packet to a decoder
and compare the decoded luma against the source.

Example:
  aomctl roundtrip --frames 30 --metrics`,
	Args: cobra.NoArgs,
	RunE: runRoundtrip,
}

func init() {
	f := roundtripCmd.Flags()
	f.String("config", "", "Encoder configuration YAML")
	f.Int("width", 320, "Frame width when no config is given")
	f.Int("height", 240, "Frame height when no config is given")
	f.Int("frames", 30, "Number of frames")
	f.String("pattern", "box", "Test pattern")
	f.Bool("metrics", false, "Print Prometheus metrics when done")
	rootCmd.AddCommand(roundtripCmd)
}

func runRoundtrip(cmd *cobra.Command, args []string) error {
	logger := loggerFrom(cmd)
	count, _ := cmd.Flags().GetInt("frames")
	name, _ := cmd.Flags().GetString("pattern")

	cfg, err := encoderConfig(cmd)
	if err != nil {
		return err
	}
	var pattern aom.Pattern
	if err := pattern.UnmarshalText([]byte(name)); err != nil {
		return err
	}
	src, err := aom.NewPatternSource(aom.PatternConfig{Width: cfg.Width, Height: cfg.Height, Format: cfg.Format, Pattern: pattern})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	opts := []aom.Option{aom.WithLogger(logger), aom.WithObserver(metrics.New(reg))}

	enc, err := aom.NewEncoder(cfg, opts...)
	if err != nil {
		return err
	}
	defer enc.Close()
	dec, err := aom.NewDecoder(aom.DecoderConfig{}, opts...)
	if err != nil {
		return err
	}
	defer dec.Close()

	sources := make(map[int64]*aom.Frame, count)
	var psnrSum float64
	var decoded int

	decode := func(pkts []*aom.Packet) error {
		for _, p := range pkts {
			if p.Kind != aom.PacketFrame {
				continue
			}
			if err := dec.DecodeTagged(p.Data, uint64(p.PTS)); err != nil {
				return err
			}
			for f := range dec.Frames() {
				if f.Width() != cfg.Width || f.Height() != cfg.Height {
					return fmt.Errorf("decoded %dx%d frame, encoded %dx%d", f.Width(), f.Height(), cfg.Width, cfg.Height)
				}
				ref, ok := sources[int64(f.Tag)]
				if !ok {
					continue
				}
				delete(sources, int64(f.Tag))
				psnrSum += lumaPSNR(ref, f)
				decoded++
			}
		}
		return nil
	}

	for f := range src.Frames(count) {
		sources[f.PTS] = f.Clone()
		if err := enc.Encode(f); err != nil {
			return err
		}
		var pkts []*aom.Packet
		for p := range enc.Packets() {
			pkts = append(pkts, p.Clone())
		}
		if err := decode(pkts); err != nil {
			return err
		}
	}
	rest, err := enc.FlushAll()
	if err != nil {
		return err
	}
	if err := decode(rest); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	st := enc.Stats()
	fmt.Fprintf(out, "frames:   %d encoded, %d decoded\n", st.FramesIn, decoded)
	fmt.Fprintf(out, "packets:  %d (%d keyframes, %d bytes)\n", st.FramePackets, st.Keyframes, st.Bytes)
	if decoded > 0 {
		fmt.Fprintf(out, "psnr(y):  %.2f dB\n", psnrSum/float64(decoded))
	}

	if show, _ := cmd.Flags().GetBool("metrics"); show {
		families, err := reg.Gather()
		if err != nil {
			return err
		}
		for _, mf := range families {
			if _, err := expfmt.MetricFamilyToText(out, mf); err != nil {
				return err
			}
		}
	}
	return nil
}

// lumaPSNR compares the luma planes of two 8-bit frames, capped at 100 dB.
func lumaPSNR(a, b *aom.Frame) float64 {
	if a.Width() != b.Width() || a.Height() != b.Height() || b.Format().HighBitDepth() {
		return 0
	}
	var sse float64
	for y := 0; y < a.Height(); y++ {
		ra := a.Plane(0)[y*a.Stride(0):]
		rb := b.Plane(0)[y*b.Stride(0):]
		for x := 0; x < a.Width(); x++ {
			d := float64(ra[x]) - float64(rb[x])
			sse += d * d
		}
	}
	if sse == 0 {
		return 100
	}
	mse := sse / float64(a.Width()*a.Height())
	return math.Min(100, 10*math.Log10(255*255/mse))
}
