package vm

import (
	"fmt"
	"math"
	"time"

	"github.com/Gregofi/caby/pkg/object"
)

// registerNatives installs the built-in native surface: clock, pow, and
// print. Each is a plain Go closure over the VM so print can share
// vm.writeOutput with the PRINT opcode.
func (vm *VM) registerNatives() {
	start := time.Now()

	vm.defineNative("clock", 0, func(args []object.Value) (object.Value, error) {
		return object.Double(time.Since(start).Seconds()), nil
	})

	vm.defineNative("pow", 2, func(args []object.Value) (object.Value, error) {
		base, err := numericArg(args[0])
		if err != nil {
			return object.None, err
		}
		exp, err := numericArg(args[1])
		if err != nil {
			return object.None, err
		}
		return object.Double(math.Pow(base, exp)), nil
	})

	vm.defineVariadicNative("print", func(args []object.Value) (object.Value, error) {
		if len(args) == 0 {
			return object.None, fmt.Errorf("print requires at least a format string")
		}
		fmtVal := args[0]
		if !object.IsObjectOfKind(fmtVal, object.KindString) {
			return object.None, fmt.Errorf("print's first argument must be a string")
		}
		out, err := renderFormat(fmtVal.Obj.Str.Bytes, args[1:])
		if err != nil {
			return object.None, err
		}
		vm.writeOutput(out)
		return object.None, nil
	})
}

func numericArg(v object.Value) (float64, error) {
	switch v.Kind {
	case object.KindInt:
		return float64(v.Int), nil
	case object.KindDouble:
		return v.Dbl, nil
	default:
		return 0, fmt.Errorf("expected a numeric argument, got %v", v.Kind)
	}
}

// defineNative registers a native under name in the globals table.
func (vm *VM) defineNative(name string, arity byte, fn object.NativeFn) {
	obj := object.NewNativeObject(name, arity, fn)
	vm.gcCollector.Track(obj)
	nameVal := object.FromObject(object.NewStringObject(name))
	vm.globals.Set(nameVal, object.FromObject(obj))
}

// defineVariadicNative registers a native that accepts any argument
// count (print); CALL's arity check is skipped and the native receives
// exactly the popped arguments.
func (vm *VM) defineVariadicNative(name string, fn object.NativeFn) {
	obj := object.NewVariadicNativeObject(name, fn)
	vm.gcCollector.Track(obj)
	nameVal := object.FromObject(object.NewStringObject(name))
	vm.globals.Set(nameVal, object.FromObject(obj))
}
