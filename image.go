package aom

import (
	"runtime"
	"sync"
)

const maxAlign = 65536

// OwnedImage is a frame buffer allocated by libaom with aom_img_alloc and
// released with aom_img_free.
type OwnedImage struct {
	mu sync.Mutex
	handle
	frame *Frame
}

// AllocImage allocates a width x height image whose rows are aligned to
// align bytes. align must be zero or a power of two no larger than 65536.
func AllocImage(format PixelFormat, width, height, align int, opts ...Option) (*OwnedImage, error) {
	const op = "AllocImage"
	if err := checkGeometry(op, format, width, height); err != nil {
		return nil, err
	}
	if align < 0 || align > maxAlign || align&(align-1) != 0 {
		return nil, invalidArg(op, "alignment %d is not a power of two up to %d", align, maxAlign)
	}
	o := newOptions(opts)
	lib, err := loadLibrary(o)
	if err != nil {
		return nil, unavailableError(op, err)
	}

	h, img, ok := lib.ImageAlloc(format.native(), uint32(width), uint32(height), uint32(align))
	if !ok {
		e := &Error{Op: op, Kind: KindAllocationFailure, Message: "aom_img_alloc failed"}
		o.observer.Failed(CoderImage, op, e.Kind, 0)
		return nil, e
	}

	f := &Frame{format: format, width: width, height: height, bitDepth: defaultBitDepth(format)}
	for i := range f.planes {
		j := nativePlane(format, i)
		f.planes[i], f.strides[i] = img.Planes[j], img.Strides[j]
	}
	im := &OwnedImage{
		handle: newHandle(lib, h, CoderImage, o),
		frame:  f,
	}
	im.cleanup = runtime.AddCleanup(im, releaseLeaked, im.leak())
	im.obs.Opened(CoderImage)
	return im, nil
}

// Frame returns a view of the image memory, or nil after Close. The view
// must not be used after Close.
func (im *OwnedImage) Frame() *Frame {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.closed() {
		return nil
	}
	return im.frame
}

// Close frees the image. It is safe to call more than once.
func (im *OwnedImage) Close() error {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.frame != nil {
		// Views still held by the caller fail validation instead of
		// reaching freed memory through Encode.
		im.frame.planes = [3][]byte{}
		im.frame = nil
	}
	return im.release("OwnedImage.Close")
}
