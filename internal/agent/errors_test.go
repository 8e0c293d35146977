package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, CodeUnknown},
		{"embedded code wins", errors.New("[custom_code] something broke"), "custom_code"},
		{"embedded code beats http status", fmt.Errorf("wrap: %w", &HTTPError{Status: 429, Message: "[quota_exceeded] slow down"}), CodeRateLimit},
		{"embedded code in outer layer", fmt.Errorf("[outer] wrap: %w", ErrRateLimited), "outer"},
		{"http 429", &HTTPError{Status: 429}, CodeRateLimit},
		{"http 401", &HTTPError{Status: 401}, CodeAuthentication},
		{"http 403", &HTTPError{Status: 403}, CodeAuthentication},
		{"http 408", &HTTPError{Status: 408}, CodeTimeout},
		{"http 504", &HTTPError{Status: 504}, CodeTimeout},
		{"http 500", &HTTPError{Status: 500}, CodeInternalServer},
		{"http 503", &HTTPError{Status: 503}, CodeInternalServer},
		{"http 400", &HTTPError{Status: 400}, CodeInvalidRequest},
		{"http 302", &HTTPError{Status: 302}, CodeHTTPError},
		{"wrapped rate limit", fmt.Errorf("provider: %w", ErrRateLimited), CodeRateLimit},
		{"wrapped auth", fmt.Errorf("provider: %w", ErrAuthentication), CodeAuthentication},
		{"wrapped content filter", fmt.Errorf("x: %w", ErrContentFiltered), CodeContentFiltered},
		{"wrapped internal", fmt.Errorf("x: %w", ErrInternalServer), CodeInternalServer},
		{"wrapped invalid", fmt.Errorf("x: %w", ErrInvalidRequest), CodeInvalidRequest},
		{"wrapped model not found", fmt.Errorf("x: %w", ErrModelNotFound), CodeModelNotFound},
		{"wrapped unsupported", fmt.Errorf("x: %w", ErrUnsupportedFeature), CodeUnsupported},
		{"wrapped unresolved server", fmt.Errorf("x: %w", ErrUnresolvedModelServer), CodeUnresolvedModel},
		{"wrapped retriable", fmt.Errorf("x: %w", ErrRetriable), CodeRetriable},
		{"wrapped non-retriable", fmt.Errorf("x: %w", ErrNonRetriable), CodeNonRetriable},
		{"wrapped generic llm", fmt.Errorf("x: %w", ErrLLM), CodeLLMError},
		{"context canceled", context.Canceled, CodeRequestAborted},
		{"wrapped cancel", fmt.Errorf("call: %w", context.Canceled), CodeRequestAborted},
		{"deadline exceeded", context.DeadlineExceeded, CodeRequestTimeout},
		{"plain error", errors.New("boom"), CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyDiagnostic(t *testing.T) {
	tests := []struct {
		name       string
		diagnostic string
		want       string
	}{
		{"blank", "", CodeUnknown},
		{"whitespace only", "   \n", CodeUnknown},
		{"embedded code", "[rate_limit] too fast", CodeRateLimit},
		{"embedded custom code", "[weird] who knows", "weird"},
		{"rate limit text", "429 Too Many Requests", CodeRateLimit},
		{"auth text", "Unauthorized: invalid api key", CodeAuthentication},
		{"timeout text", "request timed out after 30s", CodeTimeout},
		{"internal text", "Internal Server Error", CodeInternalServer},
		{"filter text", "response was filtered by safety system", CodeContentFiltered},
		{"model text", "model not found: gpt-99", CodeModelNotFound},
		{"invalid text", "invalid request payload", CodeInvalidRequest},
		{"cancel text", "operation was cancelled by client", CodeRequestAborted},
		{"gibberish", "zorp", CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyDiagnostic(tt.diagnostic); got != tt.want {
				t.Errorf("ClassifyDiagnostic(%q) = %q, want %q", tt.diagnostic, got, tt.want)
			}
		})
	}
}

func TestExtractCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"[rate_limit] boom", "rate_limit"},
		{"  [timeout] slow", "timeout"},
		{"[x]", "x"},
		{"[]", ""},
		{"no brackets", ""},
		{"[has space] nope", ""},
		{"ends mid [code", ""},
	}

	for _, tt := range tests {
		if got := ExtractCode(tt.in); got != tt.want {
			t.Errorf("ExtractCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWithCodeIdempotent(t *testing.T) {
	once := WithCode(CodeTimeout, "too slow")
	if once != "[timeout] too slow" {
		t.Fatalf("WithCode() = %q", once)
	}
	if twice := WithCode(CodeTimeout, once); twice != once {
		t.Errorf("WithCode() not idempotent: %q", twice)
	}
	if got := WithCode(CodeTimeout, ""); got != "[timeout]" {
		t.Errorf("WithCode(empty) = %q", got)
	}
}
