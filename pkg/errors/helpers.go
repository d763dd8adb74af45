package errors

import (
	"context"
)

// CheckContext returns an error if the context is canceled or timed out.
// This provides a standardized way to check and wrap context errors.
func CheckContext(ctx context.Context, operation string) error {
	if err := ctx.Err(); err != nil {
		return Wrap(err, Canceled, operation+" canceled")
	}
	return nil
}

// CodeOf extracts the error code from an error, or Unknown if it is not
// a structured error.
func CodeOf(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code()
	}
	return Unknown
}
