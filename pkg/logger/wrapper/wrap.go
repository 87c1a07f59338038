package wrap

import (
	"context"
	"errors"
)

// Error wraps an error with the current LogCtx from the context.
// If err already carries a LogCtx, the context fields are refreshed in place.
func Error(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}

	c, _ := ctx.Value(LogCtxKey).(LogCtx)

	var e *errorWithLogCtx
	if errors.As(err, &e) {
		e.logCtx = c
		return err
	}

	return &errorWithLogCtx{
		err:    err,
		logCtx: c,
	}
}
