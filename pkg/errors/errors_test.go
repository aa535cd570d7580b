package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeInvalidInput, "test message: %s", "value")

	if err.Code != ErrCodeInvalidInput {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidInput)
	}

	if err.Message != "test message: value" {
		t.Errorf("Message = %v, want %v", err.Message, "test message: value")
	}

	expected := "INVALID_INPUT: test message: value"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("permission denied")
	err := Wrap(ErrCodeIO, cause, "read manifest")

	if err.Code != ErrCodeIO {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeIO)
	}

	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}

	if unwrapped := errors.Unwrap(err); unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

type codedError struct{}

func (codedError) Error() string { return "coded" }
func (codedError) Code() Code    { return ErrCodeConflict }

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     Code
		expected bool
	}{
		{
			name:     "matching code",
			err:      New(ErrCodeParse, "test"),
			code:     ErrCodeParse,
			expected: true,
		},
		{
			name:     "non-matching code",
			err:      New(ErrCodeParse, "test"),
			code:     ErrCodeIO,
			expected: false,
		},
		{
			name:     "wrapped error",
			err:      Wrap(ErrCodeIO, New(ErrCodeParse, "inner"), "outer"),
			code:     ErrCodeIO,
			expected: true,
		},
		{
			name:     "coder in chain",
			err:      fmt.Errorf("resolve: %w", codedError{}),
			code:     ErrCodeConflict,
			expected: true,
		},
		{
			name:     "non-Error type",
			err:      errors.New("plain error"),
			code:     ErrCodeInvalidInput,
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			code:     ErrCodeInvalidInput,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.expected {
				t.Errorf("Is() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Code
	}{
		{"Error type", New(ErrCodeInvalidPackage, "test"), ErrCodeInvalidPackage},
		{"coder", codedError{}, ErrCodeConflict},
		{"plain error", errors.New("plain"), ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"Error type", New(ErrCodeInvalidInput, "friendly message"), "friendly message"},
		{"plain error", errors.New("plain error"), "plain error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.expected {
				t.Errorf("UserMessage() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRetriable(t *testing.T) {
	if !Retriable(Wrap(ErrCodeTimeout, context.DeadlineExceeded, "resolve")) {
		t.Error("timeout should be retriable")
	}
	if !Retriable(New(ErrCodeCanceled, "superseded")) {
		t.Error("cancellation should be retriable")
	}
	if Retriable(New(ErrCodeConflict, "conflict")) {
		t.Error("conflict should not be retriable")
	}
}
