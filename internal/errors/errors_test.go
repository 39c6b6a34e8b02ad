package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestAppErrorMessage(t *testing.T) {
	cause := fmt.Errorf("dlsym failed")
	err := Wrap(cause, CodeSymbolMissing, "createBufferQueue").WithMetadata("library", "libgui.so")

	got := err.Error()
	for _, want := range []string{"[SYMBOL_MISSING]", "createBufferQueue", "libgui.so", "dlsym failed"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}
	if !errors.Is(err, cause) {
		t.Error("Wrap should preserve cause for errors.Is")
	}
}

func TestIsCodeThroughWrapping(t *testing.T) {
	base := New(CodeInvalidState, "buffer not allocated")
	wrapped := fmt.Errorf("lock: %w", base)

	if !IsCode(wrapped, CodeInvalidState) {
		t.Error("IsCode should see AppError through fmt wrapping")
	}
	if IsCode(wrapped, CodeInternal) {
		t.Error("IsCode matched the wrong code")
	}
	if IsCode(errors.New("plain"), CodeInternal) {
		t.Error("IsCode on plain error should be false")
	}
}

func TestGRPCRoundTrip(t *testing.T) {
	orig := Newf(CodeOCRInitFailed, "no accelerator for %s", "det.onnx").WithMetadata("accelerator", "cpu")

	st := orig.GRPCStatus()
	if st.Code() != codes.Unavailable {
		t.Fatalf("GRPCCode = %v, want Unavailable", st.Code())
	}

	back := FromGRPCError(st.Err())
	if back.Code != CodeOCRInitFailed {
		t.Errorf("Code = %v, want %v", back.Code, CodeOCRInitFailed)
	}
	if back.Message != "no accelerator for det.onnx" {
		t.Errorf("Message = %q", back.Message)
	}
	if back.Metadata["accelerator"] != "cpu" {
		t.Errorf("Metadata = %v", back.Metadata)
	}
}

func TestFromGRPCErrorWithoutDetail(t *testing.T) {
	tests := []struct {
		code codes.Code
		want Code
	}{
		{codes.InvalidArgument, CodeInvalidArgument},
		{codes.Unavailable, CodeUnavailable},
		{codes.DeadlineExceeded, CodeTimeout},
		{codes.FailedPrecondition, CodeInvalidState},
		{codes.Unimplemented, CodeSymbolMissing},
		{codes.PermissionDenied, CodeUnknown},
	}
	for _, tt := range tests {
		got := FromGRPCError(status.Error(tt.code, "x"))
		if got.Code != tt.want {
			t.Errorf("FromGRPCError(%v).Code = %v, want %v", tt.code, got.Code, tt.want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(New(CodeUnavailable, "sidecar down")) {
		t.Error("Unavailable should be retryable")
	}
	if IsRetryable(New(CodeRuleInvalid, "bad rule")) {
		t.Error("RuleInvalid should not be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors are not retryable")
	}
}

func TestCodeString(t *testing.T) {
	if CodeNotInitialized.String() != "NOT_INITIALIZED" {
		t.Errorf("String() = %q", CodeNotInitialized.String())
	}
	if Code(999).String() != "CODE(999)" {
		t.Errorf("unknown code String() = %q", Code(999).String())
	}
}
