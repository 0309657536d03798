package aom

import (
	"image"

	"golang.org/x/image/draw"
)

// FrameFromImage converts img to an I420 frame of width x height, scaling
// with Catmull-Rom when the sizes differ. Colours are converted with BT.601
// studio range coefficients.
func FrameFromImage(img image.Image, width, height int) (*Frame, error) {
	const op = "FrameFromImage"
	if img == nil {
		return nil, invalidArg(op, "nil image")
	}
	f, err := NewFrameBuffer(PixelFormatI420, width, height)
	if err != nil {
		return nil, err
	}

	src, ok := img.(*image.RGBA)
	if !ok || src.Bounds() != image.Rect(0, 0, width, height) {
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
		src = dst
	}

	y, u, v := f.planes[0], f.planes[1], f.planes[2]
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			p := src.RGBAAt(col, row)
			y[row*f.strides[0]+col], _, _ = rgbToYUV(p.R, p.G, p.B)
		}
	}

	cw, ch := PixelFormatI420.PlaneSize(1, width, height)
	for row := 0; row < ch; row++ {
		for col := 0; col < cw; col++ {
			var r, g, b, n int
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					x, yy := col*2+dx, row*2+dy
					if x >= width || yy >= height {
						continue
					}
					p := src.RGBAAt(x, yy)
					r += int(p.R)
					g += int(p.G)
					b += int(p.B)
					n++
				}
			}
			_, cu, cv := rgbToYUV(uint8(r/n), uint8(g/n), uint8(b/n))
			u[row*f.strides[1]+col] = cu
			v[row*f.strides[2]+col] = cv
		}
	}
	return f, nil
}

// ToImage returns an 8-bit copy of the frame as an *image.YCbCr.
func (f *Frame) ToImage() (*image.YCbCr, error) {
	const op = "Frame.ToImage"
	var ratio image.YCbCrSubsampleRatio
	switch f.format {
	case PixelFormatI420, PixelFormatYV12:
		ratio = image.YCbCrSubsampleRatio420
	case PixelFormatI422:
		ratio = image.YCbCrSubsampleRatio422
	case PixelFormatI444:
		ratio = image.YCbCrSubsampleRatio444
	default:
		return nil, &Error{Op: op, Kind: KindUnsupportedOperation, Message: "no image.YCbCr layout for " + f.format.String()}
	}

	img := image.NewYCbCr(image.Rect(0, 0, f.width, f.height), ratio)
	cb, cr := 1, 2
	if f.format == PixelFormatYV12 {
		cb, cr = 2, 1
	}
	w, h := f.format.PlaneSize(0, f.width, f.height)
	copyPlane(img.Y, img.YStride, f.planes[0], f.strides[0], w, h)
	w, h = f.format.PlaneSize(1, f.width, f.height)
	copyPlane(img.Cb, img.CStride, f.planes[cb], f.strides[cb], w, h)
	copyPlane(img.Cr, img.CStride, f.planes[cr], f.strides[cr], w, h)
	return img, nil
}

// rgbToYUV converts one pixel using BT.601 studio range.
func rgbToYUV(r, g, b uint8) (y, u, v uint8) {
	yf := 16.0 + 65.481*float64(r)/255.0 + 128.553*float64(g)/255.0 + 24.966*float64(b)/255.0
	uf := 128.0 - 37.797*float64(r)/255.0 - 74.203*float64(g)/255.0 + 112.0*float64(b)/255.0
	vf := 128.0 + 112.0*float64(r)/255.0 - 93.786*float64(g)/255.0 - 18.214*float64(b)/255.0

	y = uint8(clampf(yf, 16, 235) + 0.5)
	u = uint8(clampf(uf, 16, 240) + 0.5)
	v = uint8(clampf(vf, 16, 240) + 0.5)
	return
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
