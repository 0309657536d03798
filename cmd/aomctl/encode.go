package main

import (
	"bufio"
	"fmt"
	"image"
	"iter"
	"os"

	"github.com/fogleman/gg"
	"github.com/spf13/cobra"

	"github.com/thesyncim/aom"
)

// encodeCmd represents the encode command
var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode a test pattern or still image to an AV1 OBU stream",
	Long: `Encode synthetic frames and write the frame packets, concatenated, as a
low overhead AV1 bitstream.

Example:
  aomctl encode -o bars.obu --pattern bars --frames 60
  aomctl encode -o logo.obu --input logo.png --overlay --config enc.yaml`,
	Args: cobra.NoArgs,
	RunE: runEncode,
}

func init() {
	f := encodeCmd.Flags()
	f.StringP("output", "o", "", "Output file")
	f.String("config", "", "Encoder configuration YAML")
	f.Int("width", 320, "Frame width when no config is given")
	f.Int("height", 240, "Frame height when no config is given")
	f.Int("frames", 30, "Number of frames to encode")
	f.String("pattern", "bars", "Test pattern (bars, gradient, checker, solid, noise, box)")
	f.String("input", "", "Encode this image instead of a test pattern")
	f.Bool("overlay", false, "Draw the frame number on every frame")
	_ = encodeCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(encodeCmd)
}

func encoderConfig(cmd *cobra.Command) (aom.EncoderConfig, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return aom.LoadEncoderConfig(path)
	}
	w, _ := cmd.Flags().GetInt("width")
	h, _ := cmd.Flags().GetInt("height")
	return aom.DefaultEncoderConfig(w, h), nil
}

// frameSource yields the frames to encode according to the flags.
func frameSource(cmd *cobra.Command, cfg aom.EncoderConfig, count int) (iter.Seq2[*aom.Frame, error], error) {
	input, _ := cmd.Flags().GetString("input")
	overlay, _ := cmd.Flags().GetBool("overlay")
	name, _ := cmd.Flags().GetString("pattern")

	var pattern aom.Pattern
	if err := pattern.UnmarshalText([]byte(name)); err != nil {
		return nil, err
	}

	if input == "" && !overlay {
		src, err := aom.NewPatternSource(aom.PatternConfig{
			Width:    cfg.Width,
			Height:   cfg.Height,
			Format:   cfg.Format,
			Pattern:  pattern,
			Animated: true,
		})
		if err != nil {
			return nil, err
		}
		return func(yield func(*aom.Frame, error) bool) {
			for f := range src.Frames(count) {
				if !yield(f, nil) {
					return
				}
			}
		}, nil
	}

	if cfg.Format != aom.PixelFormatI420 {
		return nil, fmt.Errorf("--input and --overlay need format i420, config has %s", cfg.Format)
	}

	var still image.Image
	if input != "" {
		img, err := gg.LoadImage(input)
		if err != nil {
			return nil, fmt.Errorf("failed to load image: %w", err)
		}
		still = img
	}
	src, err := aom.NewPatternSource(aom.PatternConfig{Width: cfg.Width, Height: cfg.Height, Pattern: pattern, Animated: true})
	if err != nil {
		return nil, err
	}
	r := newRenderer(cfg.Width, cfg.Height, overlay)

	return func(yield func(*aom.Frame, error) bool) {
		for i := 0; i < count; i++ {
			bg := still
			if bg == nil {
				ycc, err := src.Next().ToImage()
				if err != nil {
					yield(nil, err)
					return
				}
				bg = ycc
			}
			if !yield(r.frame(bg, i)) {
				return
			}
		}
	}, nil
}

func runEncode(cmd *cobra.Command, args []string) error {
	logger := loggerFrom(cmd)
	output, _ := cmd.Flags().GetString("output")
	count, _ := cmd.Flags().GetInt("frames")
	if count <= 0 {
		return fmt.Errorf("--frames must be positive")
	}

	cfg, err := encoderConfig(cmd)
	if err != nil {
		return err
	}
	frames, err := frameSource(cmd, cfg, count)
	if err != nil {
		return err
	}

	enc, err := aom.NewEncoder(cfg, aom.WithLogger(logger))
	if err != nil {
		return err
	}
	defer enc.Close()

	file, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer file.Close()
	w := bufio.NewWriter(file)

	write := func() error {
		for p := range enc.Packets() {
			if p.Kind != aom.PacketFrame {
				continue
			}
			if _, err := w.Write(p.Data); err != nil {
				return fmt.Errorf("failed to write packet: %w", err)
			}
		}
		return nil
	}

	for f, err := range frames {
		if err != nil {
			return err
		}
		if err := enc.Encode(f); err != nil {
			return err
		}
		if err := write(); err != nil {
			return err
		}
	}
	rest, err := enc.FlushAll()
	if err != nil {
		return err
	}
	for _, p := range rest {
		if p.Kind != aom.PacketFrame {
			continue
		}
		if _, err := w.Write(p.Data); err != nil {
			return fmt.Errorf("failed to write packet: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	st := enc.Stats()
	logger.Info("encoded",
		"output", output,
		"frames", st.FramesIn,
		"packets", st.FramePackets,
		"keyframes", st.Keyframes,
		"bytes", st.Bytes,
	)
	return nil
}
