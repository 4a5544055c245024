package logging

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestOperationErrorMessage(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name string
		err  *OperationError
		want string
	}{
		{"full", &OperationError{Operation: "valuation.score_damage", RequestID: "req-1", Kind: "inference_error", Err: base}, "valuation.score_damage [inference_error] (request_id=req-1): boom"},
		{"no kind", &OperationError{Operation: "valuation.score_damage", RequestID: "req-1", Err: base}, "valuation.score_damage (request_id=req-1): boom"},
		{"no request", &OperationError{Operation: "valuation.validate", Err: base}, "valuation.validate: boom"},
		{"no cause", &OperationError{Operation: "valuation.validate"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
		})
	}
}

func TestOperationErrorUnwrap(t *testing.T) {
	base := errors.New("boom")
	var err error = &OperationError{Operation: "valuation.score_damage", Err: base}

	if !errors.Is(err, base) {
		t.Fatal("expected errors.Is to find base error")
	}
	var nilErr *OperationError
	if nilErr.Unwrap() != nil || nilErr.Fields() != nil {
		t.Fatal("nil OperationError should unwrap to nil and have no fields")
	}
}

func TestOperationErrorFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	err := &OperationError{Operation: "valuation.validate", RequestID: "req-9", Kind: "invalid_attribute", Err: errors.New("invalid age -1")}
	logger.Warn("valuation rejected", err.Fields()...)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	want := map[string]string{
		"operation":  "valuation.validate",
		"request_id": "req-9",
		"kind":       "invalid_attribute",
		"error":      "invalid age -1",
	}
	for key, value := range want {
		if fields[key] != value {
			t.Errorf("%s: got %v want %s", key, fields[key], value)
		}
	}

	noID := (&OperationError{Operation: "valuation.quote", Err: errors.New("x")}).Fields()
	if len(noID) != 2 {
		t.Fatalf("expected operation and error fields only, got %d", len(noID))
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger("chatty"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	logger, err := NewLogger("debug")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected debug level to be enabled")
	}
}
