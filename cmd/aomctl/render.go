package main

import (
	"fmt"
	"image"

	"github.com/fogleman/gg"

	"github.com/thesyncim/aom"
)

// renderer composes a background picture with an optional frame counter
// label before handing it to the encoder as I420.
type renderer struct {
	dc      *gg.Context
	w, h    int
	overlay bool
}

func newRenderer(width, height int, overlay bool) *renderer {
	return &renderer{dc: gg.NewContext(width, height), w: width, h: height, overlay: overlay}
}

// render draws bg scaled to the output size and labels it with n.
func (r *renderer) render(bg image.Image, n int) image.Image {
	dc := r.dc
	dc.SetRGB(0, 0, 0)
	dc.Clear()

	b := bg.Bounds()
	dc.Push()
	dc.Scale(float64(r.w)/float64(b.Dx()), float64(r.h)/float64(b.Dy()))
	dc.DrawImage(bg, -b.Min.X, -b.Min.Y)
	dc.Pop()

	if r.overlay {
		label := fmt.Sprintf("frame %04d", n)
		tw, th := dc.MeasureString(label)
		dc.SetRGBA(0, 0, 0, 0.6)
		dc.DrawRectangle(4, 4, tw+8, th+8)
		dc.Fill()
		dc.SetRGB(1, 1, 1)
		dc.DrawStringAnchored(label, 8, 8+th/2, 0, 0.5)
	}
	return dc.Image()
}

// frame renders bg for frame n and converts it.
func (r *renderer) frame(bg image.Image, n int) (*aom.Frame, error) {
	f, err := aom.FrameFromImage(r.render(bg, n), r.w, r.h)
	if err != nil {
		return nil, err
	}
	f.PTS = int64(n)
	f.Duration = 1
	return f, nil
}
