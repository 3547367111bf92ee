package vm

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/Gregofi/caby/pkg/bytecode"
)

// RuntimeError carries the source location of the instruction that
// failed alongside the underlying message, so the CLI driver can render
// the `<file>:<line>:<col>: Fatal: <message>` form without the VM itself
// knowing about files or terminals.
type RuntimeError struct {
	Loc     bytecode.Loc
	Message string
}

func (e *RuntimeError) Error() string {
	return e.Message
}

// runtimeError builds a RuntimeError located at the current frame's
// instruction, wrapped through pkg/errors so callers can still use
// errors.Cause/errors.Wrap on it uniformly with the rest of the
// compiler/parser error chain.
func (vm *VM) runtimeError(format string, args ...interface{}) error {
	frame := vm.currentFrame()
	loc := bytecode.Loc{}
	if frame != nil {
		loc = frame.fn.Fn.Chunk.LocAtOffset(frame.ip)
	}
	return errors.WithStack(&RuntimeError{
		Loc:     loc,
		Message: fmt.Sprintf(format, args...),
	})
}
