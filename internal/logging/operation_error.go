package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// OperationError records which step of a request failed and how the failure
// is classified for clients and metrics.
type OperationError struct {
	Operation string
	RequestID string
	Kind      string
	Err       error
}

func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	op := e.Operation
	if e.Kind != "" {
		op = fmt.Sprintf("%s [%s]", op, e.Kind)
	}
	if e.RequestID != "" {
		return fmt.Sprintf("%s (request_id=%s): %v", op, e.RequestID, e.Err)
	}
	return fmt.Sprintf("%s: %v", op, e.Err)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Fields describes the failure for a structured log line.
func (e *OperationError) Fields() []zap.Field {
	if e == nil {
		return nil
	}
	fields := []zap.Field{zap.String("operation", e.Operation)}
	if e.RequestID != "" {
		fields = append(fields, zap.String("request_id", e.RequestID))
	}
	if e.Kind != "" {
		fields = append(fields, zap.String("kind", e.Kind))
	}
	return append(fields, zap.Error(e.Err))
}
