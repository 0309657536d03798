package native

import "unsafe"

// imageView builds an Image whose planes alias native memory at p.
func imageView(format ImageFormat, bitDepth, w, h uint32, mono bool, p [3]unsafe.Pointer, strides [3]int, tag uint64) *Image {
	xs, ys := format.ChromaShift()
	img := &Image{
		Format:       format,
		BitDepth:     bitDepth,
		Width:        w,
		Height:       h,
		XChromaShift: xs,
		YChromaShift: ys,
		Monochrome:   mono,
		Strides:      strides,
		Tag:          tag,
	}
	bps := img.BytesPerSample()
	for i := 0; i < format.Planes(); i++ {
		if p[i] == nil || strides[i] <= 0 {
			continue
		}
		pw, ph := img.PlaneSize(i)
		if ph == 0 {
			continue
		}
		n := strides[i]*(ph-1) + pw*bps
		img.Planes[i] = unsafe.Slice((*byte)(p[i]), n)
	}
	return img
}

// planePointer returns the address of the first byte of b, or nil.
func planePointer(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(unsafe.SliceData(b))
}

// bytesAt views n bytes of native memory at p.
func bytesAt(p unsafe.Pointer, n int) []byte {
	if p == nil || n <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(p), n)
}
