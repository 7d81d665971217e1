package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestAppError_New_Retryable(t *testing.T) {
	err := New(ErrCodeTimeout, "timed out")
	if !err.Retryable {
		t.Error("TIMEOUT should be retryable")
	}
	if New(ErrCodeConfiguration, "bad").Retryable {
		t.Error("CONFIGURATION should not be retryable")
	}
}

func TestAppError_ErrorString(t *testing.T) {
	err := Transport(fmt.Errorf("connection refused"))
	if !strings.Contains(err.Error(), "TRANSPORT_FAILURE") {
		t.Errorf("expected code in message, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("expected cause in message, got %q", err.Error())
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := Deserialization("application/json", cause)
	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if err.Details["content_type"] != "application/json" {
		t.Errorf("expected content_type detail, got %v", err.Details)
	}
}

func TestTimeout_Message(t *testing.T) {
	err := Timeout("exchange", 50*time.Millisecond)
	if !strings.Contains(err.Message, "50ms") {
		t.Errorf("expected duration in message, got %q", err.Message)
	}
	if !err.Retryable {
		t.Error("timeouts should be retryable")
	}
}

func TestHTTPStatus_Retryable(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{400, false},
		{404, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.status), func(t *testing.T) {
			err := HTTPStatus(tt.status, "")
			if err.Retryable != tt.retryable {
				t.Errorf("status %d: retryable = %v, want %v", tt.status, err.Retryable, tt.retryable)
			}
			if err.StatusCode != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, err.StatusCode)
			}
		})
	}
}

func TestIsCode(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", Configuration("multipart requires POST or PUT, got %s", "GET"))
	if !IsCode(wrapped, ErrCodeConfiguration) {
		t.Error("expected IsCode to see through wrapping")
	}
	if IsCode(wrapped, ErrCodeTimeout) {
		t.Error("unexpected TIMEOUT match")
	}
	if IsCode(stderrors.New("plain"), ErrCodeConfiguration) {
		t.Error("plain errors never match")
	}
}

func TestAsAppError(t *testing.T) {
	if _, ok := AsAppError(stderrors.New("plain")); ok {
		t.Error("expected false for plain error")
	}
	appErr, ok := AsAppError(Cache("get", stderrors.New("down")))
	if !ok || appErr.Code != ErrCodeCache {
		t.Errorf("expected CACHE AppError, got %v", appErr)
	}
}
