package platform

import (
	"bytes"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// APILevelEnv overrides the detected platform API level.
const APILevelEnv = "HOTPATH_API_LEVEL"

// DetectAPILevel returns the platform SDK level, or 0 when unknown.
func DetectAPILevel() int {
	if v := os.Getenv(APILevelEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if _, err := exec.LookPath("getprop"); err != nil {
		return 0
	}
	cmd := exec.Command("getprop", "ro.build.version.sdk")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		slog.Warn("getprop failed", "error", err, "stderr", stderr.String())
		return 0
	}
	return parseAPILevel(string(out))
}

func parseAPILevel(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
