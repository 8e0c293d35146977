package agent

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Stable error codes produced by the classifier. Downstream consumers key
// fallback behavior and metrics off these strings; never rename.
const (
	CodeRateLimit         = "rate_limit"
	CodeAuthentication    = "authentication"
	CodeTimeout           = "timeout"
	CodeInternalServer    = "internal_server"
	CodeInvalidRequest    = "invalid_request"
	CodeHTTPError         = "http_error"
	CodeContentFiltered   = "content_filtered"
	CodeModelNotFound     = "model_not_found"
	CodeUnsupported       = "unsupported_feature"
	CodeUnresolvedModel   = "unresolved_model_server"
	CodeRetriable         = "retriable"
	CodeNonRetriable      = "non_retriable"
	CodeLLMError          = "llm_error"
	CodeRequestAborted    = "request_aborted"
	CodeRequestTimeout    = "request_timeout"
	CodeUnknown           = "unknown"
)

// ClassifyError maps an error to a stable code.
//
// Precedence: an embedded "[code]" anywhere in the unwrap chain wins; then
// HTTP-status mapping; then domain errors; then transport conditions
// (cancellation, timeout); otherwise unknown.
func ClassifyError(err error) string {
	if err == nil {
		return CodeUnknown
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		if code := ExtractCode(e.Error()); code != "" {
			return code
		}
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return classifyStatus(httpErr.Status)
	}

	switch {
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimit
	case errors.Is(err, ErrAuthentication):
		return CodeAuthentication
	case errors.Is(err, ErrContentFiltered):
		return CodeContentFiltered
	case errors.Is(err, ErrInternalServer):
		return CodeInternalServer
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, ErrModelNotFound):
		return CodeModelNotFound
	case errors.Is(err, ErrUnsupportedFeature):
		return CodeUnsupported
	case errors.Is(err, ErrUnresolvedModelServer):
		return CodeUnresolvedModel
	case errors.Is(err, ErrRetriable):
		return CodeRetriable
	case errors.Is(err, ErrNonRetriable):
		return CodeNonRetriable
	case errors.Is(err, ErrLLM):
		return CodeLLMError
	}

	if errors.Is(err, context.Canceled) {
		return CodeRequestAborted
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeRequestTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeRequestTimeout
	}

	return CodeUnknown
}

// ClassifyDiagnostic maps a raw diagnostic string to a stable code. Blank
// input classifies as unknown.
func ClassifyDiagnostic(diagnostic string) string {
	s := strings.TrimSpace(diagnostic)
	if s == "" {
		return CodeUnknown
	}
	if code := ExtractCode(s); code != "" {
		return code
	}

	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "rate_limit") ||
		strings.Contains(lower, "too many requests") || strings.Contains(lower, "429"):
		return CodeRateLimit
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "forbidden") ||
		strings.Contains(lower, "authentication") || strings.Contains(lower, "api key"):
		return CodeAuthentication
	case strings.Contains(lower, "deadline exceeded") || strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "timed out"):
		return CodeTimeout
	case strings.Contains(lower, "internal server") || strings.Contains(lower, "500"):
		return CodeInternalServer
	case strings.Contains(lower, "content filter") || strings.Contains(lower, "filtered"):
		return CodeContentFiltered
	case strings.Contains(lower, "model not found") || strings.Contains(lower, "unknown model"):
		return CodeModelNotFound
	case strings.Contains(lower, "invalid"):
		return CodeInvalidRequest
	case strings.Contains(lower, "cancel") || strings.Contains(lower, "interrupt"):
		return CodeRequestAborted
	}
	return CodeUnknown
}

func classifyStatus(status int) string {
	switch {
	case status == 429:
		return CodeRateLimit
	case status == 401 || status == 403:
		return CodeAuthentication
	case status == 408 || status == 504:
		return CodeTimeout
	case status >= 500:
		return CodeInternalServer
	case status >= 400:
		return CodeInvalidRequest
	default:
		return CodeHTTPError
	}
}

// ExtractCode returns the code embedded as a leading "[code]" prefix, or
// the empty string when the input is not bracketed or is malformed.
func ExtractCode(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") {
		return ""
	}
	end := strings.IndexByte(s, ']')
	if end <= 1 {
		return ""
	}
	code := s[1:end]
	if strings.ContainsAny(code, " \t\n") {
		return ""
	}
	return code
}

// WithCode prefixes a message with "[code]". Idempotent: a message that
// already begins with the code is returned unchanged.
func WithCode(code, message string) string {
	prefix := "[" + code + "]"
	if message == "" {
		return prefix
	}
	if strings.HasPrefix(message, prefix) {
		return message
	}
	return prefix + " " + message
}
