package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
)

// invokeHandler runs h and converts a panic into a HandlerFailure-class
// error, matching the pool's recover idiom. A genuine out-of-memory or
// stack-overflow fault is a Go fatal error, not a recoverable panic - the
// runtime terminates the process before this recover ever runs, so no
// explicit critical-fault check is needed here: the filter is catchable by
// construction, and what escapes it does so because recover() cannot see
// it at all.
func invokeHandler(ctx context.Context, h Handler, payload string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch: handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	return h(ctx, payload)
}
