// Package errors provides structured error codes shared by every stage of the
// perception-to-action loop and their mapping onto gRPC status codes.
package errors

import (
	"errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// Domain is the ErrorInfo domain attached to gRPC statuses.
const Domain = "hotpath"

// Code classifies a failure.
type Code int32

const (
	CodeUnspecified Code = iota
	CodeUnknown
	CodeInternal
	CodeInvalidArgument
	CodeInvalidState
	CodeNotInitialized
	CodeNotFound
	CodeUnavailable
	CodeTimeout
	CodeCancelled
	CodeSymbolMissing
	CodeOCRInitFailed
	CodeOCRExtractFailed
	CodeRuleInvalid
	CodeRuleParse
	CodeConfigInvalid
	CodeVisionUnavailable
)

var codeNames = map[Code]string{
	CodeUnspecified:       "UNSPECIFIED",
	CodeUnknown:           "UNKNOWN",
	CodeInternal:          "INTERNAL",
	CodeInvalidArgument:   "INVALID_ARGUMENT",
	CodeInvalidState:      "INVALID_STATE",
	CodeNotInitialized:    "NOT_INITIALIZED",
	CodeNotFound:          "NOT_FOUND",
	CodeUnavailable:       "UNAVAILABLE",
	CodeTimeout:           "TIMEOUT",
	CodeCancelled:         "CANCELLED",
	CodeSymbolMissing:     "SYMBOL_MISSING",
	CodeOCRInitFailed:     "OCR_INIT_FAILED",
	CodeOCRExtractFailed:  "OCR_EXTRACT_FAILED",
	CodeRuleInvalid:       "RULE_INVALID",
	CodeRuleParse:         "RULE_PARSE",
	CodeConfigInvalid:     "CONFIG_INVALID",
	CodeVisionUnavailable: "VISION_UNAVAILABLE",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("CODE(%d)", int32(c))
}

// parseCode is the inverse of String, used when decoding ErrorInfo reasons.
func parseCode(s string) (Code, bool) {
	for c, name := range codeNames {
		if name == s {
			return c, true
		}
	}
	return CodeUnknown, false
}

// grpcCodeMap maps ErrorCode to gRPC status codes.
var grpcCodeMap = map[Code]codes.Code{
	CodeUnspecified:       codes.Unknown,
	CodeUnknown:           codes.Unknown,
	CodeInternal:          codes.Internal,
	CodeInvalidArgument:   codes.InvalidArgument,
	CodeInvalidState:      codes.FailedPrecondition,
	CodeNotInitialized:    codes.FailedPrecondition,
	CodeNotFound:          codes.NotFound,
	CodeUnavailable:       codes.Unavailable,
	CodeTimeout:           codes.DeadlineExceeded,
	CodeCancelled:         codes.Canceled,
	CodeSymbolMissing:     codes.Unimplemented,
	CodeOCRInitFailed:     codes.Unavailable,
	CodeOCRExtractFailed:  codes.Internal,
	CodeRuleInvalid:       codes.InvalidArgument,
	CodeRuleParse:         codes.InvalidArgument,
	CodeConfigInvalid:     codes.InvalidArgument,
	CodeVisionUnavailable: codes.Unimplemented,
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// ToProto converts to an ErrorInfo detail.
func (e *AppError) ToProto() *errdetails.ErrorInfo {
	info := &errdetails.ErrorInfo{Reason: e.Code.String(), Domain: Domain}
	if len(e.Metadata) > 0 {
		info.Metadata = make(map[string]string, len(e.Metadata)+1)
		for k, v := range e.Metadata {
			info.Metadata[k] = v
		}
	}
	if info.Metadata == nil {
		info.Metadata = map[string]string{}
	}
	info.Metadata["message"] = e.Message
	return info
}

// GRPCStatus returns a gRPC status with the ErrorInfo attached.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(e.GRPCCode(), e.Error())
	if withDetail, err := st.WithDetails(e.ToProto()); err == nil {
		return withDetail
	}
	return st
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// FromGRPCError extracts an AppError from a gRPC error if present.
func FromGRPCError(err error) *AppError {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: CodeUnknown, Message: err.Error(), Cause: err}
	}

	for _, detail := range st.Details() {
		info, ok := detail.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != Domain {
			continue
		}
		code, _ := parseCode(info.GetReason())
		md := make(map[string]string, len(info.GetMetadata()))
		msg := st.Message()
		for k, v := range info.GetMetadata() {
			if k == "message" {
				msg = v
				continue
			}
			md[k] = v
		}
		if len(md) == 0 {
			md = nil
		}
		return &AppError{Code: code, Message: msg, Metadata: md}
	}

	return &AppError{Code: grpcToCode(st.Code()), Message: st.Message()}
}

// grpcToCode maps gRPC codes back to our error codes (best effort).
func grpcToCode(c codes.Code) Code {
	switch c {
	case codes.InvalidArgument:
		return CodeInvalidArgument
	case codes.NotFound:
		return CodeNotFound
	case codes.Unavailable:
		return CodeUnavailable
	case codes.DeadlineExceeded:
		return CodeTimeout
	case codes.Canceled:
		return CodeCancelled
	case codes.Internal:
		return CodeInternal
	case codes.FailedPrecondition:
		return CodeInvalidState
	case codes.Unimplemented:
		return CodeSymbolMissing
	default:
		return CodeUnknown
	}
}

// IsCode reports whether any AppError in err's chain has the given code.
func IsCode(err error, code Code) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsRetryable returns true if the error is potentially retryable.
func IsRetryable(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case CodeUnavailable, CodeTimeout:
		return true
	default:
		return false
	}
}

var _ proto.Message = (*errdetails.ErrorInfo)(nil)
