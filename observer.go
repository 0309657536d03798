package aom

import "time"

// Coder names the kind of handle reporting an event.
type Coder string

const (
	CoderEncoder Coder = "encoder"
	CoderDecoder Coder = "decoder"
	CoderImage   Coder = "image"
)

// Observer receives events from every handle it is attached to. Methods are
// called synchronously with the handle's lock held and must not call back
// into the handle.
type Observer interface {
	// Opened is called once a native context or image exists.
	Opened(c Coder)
	// Closed is called when it is released. leaked is true when the
	// release came from the garbage collector instead of Close.
	Closed(c Coder, leaked bool)
	// Packet is called for every packet pulled from an encoder.
	Packet(kind PacketKind, size int, keyframe bool)
	// Frame is called for every frame pulled from a decoder.
	Frame(width, height int)
	// Failed is called for every error returned by a native call.
	Failed(c Coder, op string, kind Kind, code int)
	// Call records the duration of an Encode, Decode or Flush.
	Call(c Coder, op string, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) Opened(Coder) {}
func (nopObserver) Closed(Coder, bool) {}
func (nopObserver) Packet(PacketKind, int, bool) {}
func (nopObserver) Frame(int, int) {}
func (nopObserver) Failed(Coder, string, Kind, int) {}
func (nopObserver) Call(Coder, string, time.Duration) {}
