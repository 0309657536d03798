package aom

import (
	"runtime"

	"github.com/segmentio/ksuid"

	"github.com/thesyncim/aom/internal/logging"
	"github.com/thesyncim/aom/internal/native"
)

// handle owns one native object: a codec context or an allocated image.
// The embedding type serializes access to it.
type handle struct {
	lib     native.Library
	h       native.Handle
	coder   Coder
	id      ksuid.KSUID
	log     logging.Logger
	obs     Observer
	cleanup runtime.Cleanup
}

func newHandle(lib native.Library, h native.Handle, coder Coder, o *options) handle {
	id := ksuid.New()
	return handle{
		lib:   lib,
		h:     h,
		coder: coder,
		id:    id,
		log:   o.logger.With("coder", string(coder), "id", id.String()),
		obs:   o.observer,
	}
}

// leak is what the cleanup backstop needs to release a handle whose owner
// became unreachable. It must not reference the owner.
type leak struct {
	lib   native.Library
	h     native.Handle
	coder Coder
	log   logging.Logger
	obs   Observer
}

func (hd *handle) leak() leak {
	return leak{lib: hd.lib, h: hd.h, coder: hd.coder, log: hd.log, obs: hd.obs}
}

func releaseLeaked(l leak) {
	if l.coder == CoderImage {
		l.lib.ImageFree(l.h)
	} else {
		l.lib.Destroy(l.h)
	}
	l.obs.Closed(l.coder, true)
	l.log.Warn("released unclosed handle")
}

func (hd *handle) closed() bool { return hd.h == 0 }

// release destroys the native object once. Later calls return nil.
func (hd *handle) release(op string) error {
	if hd.h == 0 {
		return nil
	}
	hd.cleanup.Stop()
	h := hd.h
	hd.h = 0

	var err error
	if hd.coder == CoderImage {
		hd.lib.ImageFree(h)
	} else if st := hd.lib.Destroy(h); st != native.StatusOK {
		e := newStatusError(hd.lib, 0, op, st, "")
		hd.obs.Failed(hd.coder, op, e.Kind, e.Code)
		err = e
	}
	hd.obs.Closed(hd.coder, false)
	hd.log.Debug("closed")
	return err
}

// fail converts a failed native status on the live handle into an *Error and
// reports it.
func (hd *handle) fail(op string, st native.Status) *Error {
	e := newStatusError(hd.lib, hd.h, op, st, "")
	hd.obs.Failed(hd.coder, op, e.Kind, e.Code)
	hd.log.Debug("native call failed", "op", op, "status", st.String(), "detail", e.Detail)
	return e
}

// ID returns the identifier used in log records for this handle.
func (hd *handle) ID() string { return hd.id.String() }
