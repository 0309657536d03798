// Package aom provides safe Go bindings for libaom, the AV1 reference codec.
//
// The package owns native codec contexts and image buffers, checks every
// argument before it crosses into native code and maps every native status
// into an *Error with a Kind.
//
// # Encoding
//
//	enc, err := aom.NewEncoder(aom.DefaultEncoderConfig(1280, 720))
//	if err != nil {
//		return err
//	}
//	defer enc.Close()
//
//	frame, _ := aom.NewFrame(aom.PixelFormatI420, 1280, 720, planes, strides)
//	if err := enc.Encode(frame); err != nil {
//		return err
//	}
//	for pkt := range enc.Packets() {
//		if pkt.Kind == aom.PacketFrame {
//			w.Write(pkt.Data)
//		}
//	}
//
// One Encode may produce zero, one or several packets. Packets, and the
// frames a Decoder returns, point into memory owned by the handle and are
// overwritten by the next call; Clone them to keep them.
//
// # Errors
//
// Argument checks fail with KindInvalidArgument before any native call.
// Native statuses map to KindAllocationFailure, KindUnsupportedOperation,
// KindNeedMoreData or KindNativeFailure, the last carrying the libaom code
// in Error.Code. KindNeedMoreData is not a failure: Encode and Decode
// return nil for it, and ReceivePacket and ReceiveFrame return it when the
// output is exhausted.
//
// # Native Library
//
// With cgo enabled the package links libaom through pkg-config. Without
// cgo, on Linux and macOS, it loads libaom.so.3 or libaom.3.dylib at run
// time; set AOM_LIB_PATH to the library file or its directory to pick a
// specific build. Available reports whether a library could be loaded.
//
// Each Encoder, Decoder and OwnedImage serializes its own calls. Distinct
// handles share no state.
package aom
