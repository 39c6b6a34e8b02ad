package screen

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
)

type fakeBackend struct {
	frames [][]byte
	err    error
	calls  int
}

func (f *fakeBackend) captureRaw(context.Context) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	data := f.frames[min(f.calls, len(f.frames)-1)]
	f.calls++
	return data, nil
}

func TestCaptureChangeDetection(t *testing.T) {
	b := &fakeBackend{frames: [][]byte{[]byte("a"), []byte("a"), []byte("b")}}
	c := newBase(b, "")
	ctx := context.Background()

	tests := []struct {
		want    string
		changed bool
	}{
		{"a", true},
		{"a", false},
		{"b", true},
	}
	for i, tt := range tests {
		data, changed, err := c.Capture(ctx)
		if err != nil {
			t.Fatalf("capture %d: %v", i, err)
		}
		if string(data) != tt.want || changed != tt.changed {
			t.Errorf("capture %d = (%q, %v), want (%q, %v)", i, data, changed, tt.want, tt.changed)
		}
	}
}

func TestCaptureAlwaysResetsHash(t *testing.T) {
	b := &fakeBackend{frames: [][]byte{[]byte("x")}}
	c := newBase(b, "")
	ctx := context.Background()

	if _, err := c.CaptureAlways(ctx); err != nil {
		t.Fatal(err)
	}
	if _, changed, _ := c.Capture(ctx); changed {
		t.Error("capture after CaptureAlways of the same image should be unchanged")
	}
}

func TestCaptureError(t *testing.T) {
	c := newBase(&fakeBackend{err: errors.New("boom")}, "")
	if _, _, err := c.Capture(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestCloseRemovesTempDir(t *testing.T) {
	dir := tempDir()
	c := newBase(&fakeBackend{frames: [][]byte{nil}}, dir)
	c.Close()
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("temp directory should be removed after Close")
	}
}

func TestUnsupported(t *testing.T) {
	_, err := unsupported{reason: "nope"}.captureRaw(context.Background())
	if !apperr.IsCode(err, apperr.CodeUnavailable) {
		t.Errorf("err = %v, want Unavailable", err)
	}
}

func TestCommandStdout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	c := &command{name: "sh", args: []string{"-c", "printf PNGDATA"}}
	data, err := c.captureRaw(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "PNGDATA" {
		t.Errorf("data = %q", data)
	}
}

func TestCommandFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	dir := t.TempDir()
	// sh -c script $0 $1: the output path is appended as $0.
	c := &command{name: "sh", args: []string{"-c", `printf IMG > "$0"`}, file: "shot.png", tempDir: dir}
	data, err := c.captureRaw(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "IMG" {
		t.Errorf("data = %q", data)
	}
	if _, err := os.Stat(filepath.Join(dir, "shot.png")); !os.IsNotExist(err) {
		t.Error("screenshot file should be removed")
	}
}

func TestCommandFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	c := &command{name: "sh", args: []string{"-c", "echo denied >&2; exit 3"}}
	_, err := c.captureRaw(context.Background())
	var ae *apperr.AppError
	if !errors.As(err, &ae) || ae.Code != apperr.CodeUnavailable {
		t.Fatalf("err = %v, want Unavailable", err)
	}
	if ae.Metadata["stderr"] != "denied\n" {
		t.Errorf("stderr metadata = %q", ae.Metadata["stderr"])
	}
}

func TestCommandEmptyStdout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	c := &command{name: "sh", args: []string{"-c", "true"}}
	if _, err := c.captureRaw(context.Background()); !apperr.IsCode(err, apperr.CodeUnavailable) {
		t.Errorf("err = %v, want Unavailable", err)
	}
}
