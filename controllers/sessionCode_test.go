package controllers

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"stop-trivia/db"
)

func TestGenerateSessionCode(t *testing.T) {
	for i := 0; i < 100; i++ {
		code := GenerateSessionCode()
		if len(code) != SessionCodeLength {
			t.Fatalf("expected %d characters, got %q", SessionCodeLength, code)
		}
		if strings.Trim(code, SessionCodeChars) != "" {
			t.Fatalf("expected only digits, got %q", code)
		}
	}
}

func TestNormalizeSessionCode(t *testing.T) {
	tests := []struct {
		input string
		want  string
		err   error
	}{
		{"123456", "123456", nil},
		{"  654321\n", "654321", nil},
		{"ABCDEF", "abcdef", nil},
		{"12345", "", ErrInvalidSessionCode},
		{"1234567", "", ErrInvalidSessionCode},
		{"", "", ErrInvalidSessionCode},
	}
	for _, tt := range tests {
		got, err := NormalizeSessionCode(tt.input)
		if !errors.Is(err, tt.err) || got != tt.want {
			t.Fatalf("NormalizeSessionCode(%q): expected %q, %v, got %q, %v", tt.input, tt.want, tt.err, got, err)
		}
	}
}

func TestErrorCodes(t *testing.T) {
	err := storeError("read session", db.ErrNotFound)
	if CodeOf(err) != CodeStoreUnavailable {
		t.Fatalf("expected store errors to be transient, got %q", CodeOf(err))
	}
	if !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("expected cause to be kept")
	}
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected errors.Is to match by code")
	}
	if got := storeError("join", ErrSessionFull); got != ErrSessionFull {
		t.Fatalf("expected session errors passed through, got %v", got)
	}
	if storeError("noop", nil) != nil {
		t.Fatalf("expected nil for nil")
	}

	statuses := map[Code]int{
		CodeSessionNotFound:    http.StatusNotFound,
		CodeInvalidSessionCode: http.StatusBadRequest,
		CodeSessionFull:        http.StatusConflict,
		CodeRoundInProgress:    http.StatusConflict,
		CodeNotAllReady:        http.StatusPreconditionFailed,
		CodeSessionClosed:      http.StatusGone,
		CodeStoreUnavailable:   http.StatusServiceUnavailable,
	}
	for code, want := range statuses {
		if got := code.HTTPStatus(); got != want {
			t.Fatalf("%s: expected %d, got %d", code, want, got)
		}
	}
}
