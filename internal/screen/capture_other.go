//go:build !linux && !darwin

package screen

// New returns a capturer that always reports Unavailable.
func New() Capturer {
	return newBase(unsupported{reason: "screen capture unsupported on this platform"}, "")
}
