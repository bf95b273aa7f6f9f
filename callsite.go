package stepflow

import (
	"fmt"
	"runtime"
)

// Callsite is the source location of a binding registration call.
// It is only used in diagnostics that tell ambiguous bindings apart.
type Callsite struct {
	File string
	Line int
}

// CaptureCallsite records the caller of the function that invokes it.
// skip counts additional frames above that caller.
func CaptureCallsite(skip int) Callsite {
	_, file, line, ok := runtime.Caller(skip + 2)
	if !ok {
		return Callsite{Line: -1}
	}
	return Callsite{File: file, Line: line}
}

func (c Callsite) String() string {
	return fmt.Sprintf("%s:%d", c.File, c.Line)
}
