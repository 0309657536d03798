package aom

import (
	"github.com/thesyncim/aom/internal/native"
)

// PacketKind is the type of an encoder output packet.
//
// Encoders always run a single pass, so PacketStats and
// PacketFirstPassMBStats are surfaced for inspection only. There is no way
// to feed them back into a later pass.
type PacketKind int

const (
	PacketFrame            PacketKind = iota // Compressed temporal unit
	PacketStats                              // Two-pass statistics
	PacketFirstPassMBStats                   // First pass per-macroblock statistics
	PacketPSNR                               // PSNR of the last frame
	PacketCustom                             // Application defined
	PacketUnknown
)

func (k PacketKind) String() string {
	switch k {
	case PacketFrame:
		return "frame"
	case PacketStats:
		return "stats"
	case PacketFirstPassMBStats:
		return "fpmb_stats"
	case PacketPSNR:
		return "psnr"
	case PacketCustom:
		return "custom"
	default:
		return "unknown"
	}
}

func packetKindFromNative(k native.PacketKind) PacketKind {
	switch k {
	case native.PacketFrame:
		return PacketFrame
	case native.PacketStats:
		return PacketStats
	case native.PacketFPMBStats:
		return PacketFirstPassMBStats
	case native.PacketPSNR:
		return PacketPSNR
	case native.PacketCustom:
		return PacketCustom
	default:
		return PacketUnknown
	}
}

// FrameFlags describe a frame packet.
type FrameFlags uint32

const (
	FlagKeyframe       = FrameFlags(native.FrameIsKey)
	FlagDroppable      = FrameFlags(native.FrameIsDroppable)
	FlagIntraOnly      = FrameFlags(native.FrameIsIntraOnly)
	FlagSwitch         = FrameFlags(native.FrameIsSwitch)
	FlagErrorResilient = FrameFlags(native.FrameErrorResilient)
)

// PSNR holds the quality of one encoded frame. Index 0 is the whole frame,
// 1 to 3 are the Y, U and V planes.
type PSNR struct {
	Samples [4]uint32
	SSE     [4]uint64
	PSNR    [4]float64
}

// Packet is one unit of encoder output.
//
// A packet and its Data belong to the encoder and are overwritten by its next
// Encode, Flush or Close. Call Clone to keep a packet longer.
type Packet struct {
	Kind        PacketKind
	Data        []byte
	PTS         int64
	Duration    uint64
	Flags       FrameFlags
	PartitionID int
	PSNR        PSNR // Set for PacketPSNR
}

// Keyframe reports whether the packet starts a keyframe.
func (p *Packet) Keyframe() bool {
	return p.Kind == PacketFrame && p.Flags&FlagKeyframe != 0
}

// Droppable reports whether no other frame references this one.
func (p *Packet) Droppable() bool {
	return p.Flags&FlagDroppable != 0
}

// Clone returns a copy of p that owns its data.
func (p *Packet) Clone() *Packet {
	c := *p
	if p.Data != nil {
		c.Data = append([]byte(nil), p.Data...)
	}
	return &c
}

// arena hands out packet storage that is recycled as a whole.
type arena struct {
	buf     []byte
	packets []Packet
	n       int
}

func (a *arena) reset() {
	a.buf = a.buf[:0]
	a.n = 0
}

// release drops the backing memory so a closed handle pins nothing.
func (a *arena) release() {
	a.buf = nil
	a.packets = nil
	a.n = 0
}

// packet copies src into the arena. When the buffer has to grow a new one is
// allocated; packets handed out earlier keep the old one.
func (a *arena) packet(src *native.Packet) *Packet {
	if a.n == len(a.packets) {
		a.packets = append(a.packets, make([]Packet, max(4, len(a.packets)))...)
	}
	p := &a.packets[a.n]
	a.n++

	*p = Packet{
		Kind:        packetKindFromNative(src.Kind),
		PTS:         src.PTS,
		Duration:    src.Duration,
		Flags:       FrameFlags(src.Flags),
		PartitionID: int(src.PartitionID),
		PSNR:        PSNR(src.PSNR),
	}
	if len(src.Data) > 0 {
		if cap(a.buf)-len(a.buf) < len(src.Data) {
			a.buf = make([]byte, 0, max(2*cap(a.buf), len(src.Data)))
		}
		start := len(a.buf)
		a.buf = append(a.buf, src.Data...)
		p.Data = a.buf[start:len(a.buf):len(a.buf)]
	}
	return p
}
