//go:build !darwin && !linux && (!cgo || aom_purego)

package native

// Load reports that no libaom backend is built for this platform.
func Load() (Library, error) {
	return nil, ErrUnavailable
}
