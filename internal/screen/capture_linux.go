//go:build linux

package screen

import (
	"log/slog"
	"os/exec"
	"runtime"
)

// New creates a capturer for the running system: screencap on Android,
// grim on Wayland, then gnome-screenshot or scrot on X11.
func New() Capturer {
	dir := tempDir()
	return newBase(pickBackend(dir, exec.LookPath, runtime.GOOS), dir)
}

func pickBackend(dir string, lookPath func(string) (string, error), goos string) backend {
	if goos == "android" {
		return &command{name: "screencap", args: []string{"-p"}}
	}
	if _, err := lookPath("screencap"); err == nil {
		return &command{name: "screencap", args: []string{"-p"}}
	}
	if _, err := lookPath("grim"); err == nil {
		return &command{name: "grim", args: []string{"-t", "png"}, file: "screenshot.png", tempDir: dir}
	}
	if _, err := lookPath("gnome-screenshot"); err == nil {
		return &command{name: "gnome-screenshot", args: []string{"-f"}, file: "screenshot.png", tempDir: dir}
	}
	if _, err := lookPath("scrot"); err == nil {
		return &command{name: "scrot", args: []string{"-o"}, file: "screenshot.png", tempDir: dir}
	}
	slog.Warn("no screenshot tool found (install grim, gnome-screenshot or scrot)")
	return unsupported{reason: "no screenshot tool found"}
}
