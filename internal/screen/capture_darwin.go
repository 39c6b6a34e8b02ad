//go:build darwin

package screen

// New creates a capturer using the native screencapture command.
func New() Capturer {
	dir := tempDir()
	// -x: no sound, -m: main display only
	return newBase(&command{
		name:    "screencapture",
		args:    []string{"-x", "-t", "png", "-m"},
		file:    "screenshot.png",
		tempDir: dir,
	}, dir)
}
