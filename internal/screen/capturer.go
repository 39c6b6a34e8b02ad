// Package screen grabs encoded screenshots with platform tools for hosts
// where the compositor buffer queue is not reachable.
package screen

import (
	"bytes"
	"context"
	"crypto/md5"
	"os"
	"os/exec"
	"path/filepath"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
)

// Capturer captures screenshots with change detection.
type Capturer interface {
	// Capture returns the encoded screenshot and whether it differs from
	// the previous one.
	Capture(ctx context.Context) ([]byte, bool, error)
	CaptureAlways(ctx context.Context) ([]byte, error)
	Close()
}

// backend implements platform-specific raw capture.
type backend interface {
	captureRaw(ctx context.Context) ([]byte, error)
}

// baseCapturer provides shared hash-based change detection.
type baseCapturer struct {
	backend
	lastHash [md5.Size]byte
	tempDir  string
}

func newBase(b backend, tempDir string) *baseCapturer {
	return &baseCapturer{backend: b, tempDir: tempDir}
}

func (c *baseCapturer) Capture(ctx context.Context) ([]byte, bool, error) {
	data, err := c.captureRaw(ctx)
	if err != nil {
		return nil, false, err
	}
	hash := md5.Sum(data)
	if hash == c.lastHash {
		return data, false, nil
	}
	c.lastHash = hash
	return data, true, nil
}

func (c *baseCapturer) CaptureAlways(ctx context.Context) ([]byte, error) {
	data, err := c.captureRaw(ctx)
	if err != nil {
		return nil, err
	}
	c.lastHash = md5.Sum(data)
	return data, nil
}

func (c *baseCapturer) Close() {
	if c.tempDir != "" {
		os.RemoveAll(c.tempDir)
	}
}

// command runs a screenshot tool. With an empty file the tool writes the
// image to stdout; otherwise it writes into tempDir/file, which is read
// back and removed.
type command struct {
	name    string
	args    []string
	file    string
	tempDir string
}

func (c *command) captureRaw(ctx context.Context) ([]byte, error) {
	args := c.args
	var out string
	if c.file != "" {
		out = filepath.Join(c.tempDir, c.file)
		args = append(args[:len(args):len(args)], out)
	}

	cmd := exec.CommandContext(ctx, c.name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, apperr.Wrapf(err, apperr.CodeUnavailable, "%s failed", c.name).
			WithMetadata("stderr", stderr.String())
	}
	if out == "" {
		if stdout.Len() == 0 {
			return nil, apperr.Newf(apperr.CodeUnavailable, "%s wrote no image", c.name)
		}
		return stdout.Bytes(), nil
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "read screenshot")
	}
	os.Remove(out)
	return data, nil
}

// unsupported is the backend when no screenshot tool exists.
type unsupported struct{ reason string }

func (u unsupported) captureRaw(context.Context) ([]byte, error) {
	return nil, apperr.New(apperr.CodeUnavailable, u.reason)
}

func tempDir() string {
	dir, err := os.MkdirTemp("", "hotpath-screen-*")
	if err != nil {
		return os.TempDir()
	}
	return dir
}
