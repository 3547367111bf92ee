// Package vm implements the bytecode virtual machine for Caby.
//
// The VM is a stack-based interpreter over call frames:
//
//	Source -> lexer -> parser -> AST -> compiler -> Program -> VM -> result
//
// Each frame owns a window into one shared, VM-wide locals array; a
// frame's window starts immediately after its caller's window ends, so
// pushing a frame is just bumping an offset rather than allocating a new
// slice. The instruction pointer walks a Chunk's raw bytes directly; the
// dispatch loop in Run is a big switch on the current opcode byte.
package vm

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/Gregofi/caby/pkg/bytecode"
	"github.com/Gregofi/caby/pkg/gc"
	"github.com/Gregofi/caby/pkg/heap"
	"github.com/Gregofi/caby/pkg/object"
)

// MaxFrameDepth bounds recursion; exceeding it is a runtime error.
const MaxFrameDepth = 128

// DefaultHeapSize is the block allocator's pool size when none is
// configured.
const DefaultHeapSize = 1 << 30

// maxLocals is the VM-wide locals array's fixed capacity, sized to
// accommodate MaxFrameDepth frames each using a generous number of slots.
const maxLocals = MaxFrameDepth * 256

// frame is one call's bookkeeping: the Function object being executed,
// the instruction pointer into its chunk, and the starting offset of its
// window into the VM's shared locals array.
type frame struct {
	fn       *object.Object // Kind == KindFunction
	ip       int
	localsAt int
}

// VM executes a compiled Program to completion.
type VM struct {
	stack   []object.Value
	frames  []frame
	locals  []object.Value
	globals *object.Table

	heapAlloc   *heap.Allocator
	gcCollector *gc.Collector
	stress      bool
	gcLog       zerolog.Logger

	// constants is the running program's constant pool, cached for the
	// duration of Run so helpers that allocate (e.g. string
	// concatenation) can always hand the collector a complete root set
	// without threading the pool through every call.
	constants []*object.Object

	out io.Writer
}

// Option configures a VM at construction time.
type Option func(*VM)

// WithHeapSize overrides the block allocator's pool size.
func WithHeapSize(size uint64) Option {
	return func(vm *VM) { vm.heapAlloc = heap.New(size) }
}

// WithStress enables collect-on-every-allocation mode, which shakes out
// objects missing from the collector's root set far sooner than waiting
// for organic heap pressure would.
func WithStress(stress bool) Option {
	return func(vm *VM) { vm.stress = stress }
}

// WithOutput overrides stdout as PRINT/print's destination (tests use
// this to capture output).
func WithOutput(w io.Writer) Option {
	return func(vm *VM) { vm.out = w }
}

// WithGCLogger routes the collector's per-cycle debug events to logger
// instead of discarding them.
func WithGCLogger(logger zerolog.Logger) Option {
	return func(vm *VM) { vm.gcLog = logger }
}

// New constructs a VM with an empty global scope and the standard native
// surface already registered.
func New(opts ...Option) *VM {
	vm := &VM{
		locals:    make([]object.Value, maxLocals),
		globals:   object.NewTable(),
		heapAlloc: heap.New(DefaultHeapSize),
		gcLog:     zerolog.Nop(),
		out:       os.Stdout,
	}
	// Options may swap the allocator, so the collector is built only
	// after every option has run.
	for _, opt := range opts {
		opt(vm)
	}
	vm.gcCollector = gc.New(vm.heapAlloc)
	vm.gcCollector.Stress = vm.stress
	vm.gcCollector.Log = vm.gcLog
	vm.registerNatives()
	return vm
}

func (vm *VM) writeOutput(s string) {
	io.WriteString(vm.out, s)
}

func (vm *VM) currentFrame() *frame {
	if len(vm.frames) == 0 {
		return nil
	}
	return &vm.frames[len(vm.frames)-1]
}

func (vm *VM) push(v object.Value) { vm.stack = append(vm.stack, v) }

func (vm *VM) pop() object.Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v
}

func (vm *VM) peek(fromTop int) object.Value {
	return vm.stack[len(vm.stack)-1-fromTop]
}

// roots snapshots everything the collector must trace from the VM's
// current state, matching gc.Roots's shape exactly.
func (vm *VM) roots(constants []*object.Object) gc.Roots {
	frameLocals := make([][]object.Value, len(vm.frames))
	for i, f := range vm.frames {
		end := f.localsAt + int(f.fn.Fn.LocalsMax)
		frameLocals[i] = vm.locals[f.localsAt:end]
	}
	return gc.Roots{
		Constants: constants,
		Stack:     vm.stack,
		Globals:   vm.globals,
		Frames:    frameLocals,
	}
}

// track registers a freshly-built object with the collector, reserving
// its reported size from the block allocator first (running a collection
// if the threshold demands it).
func (vm *VM) track(obj *object.Object) error {
	h, ok := vm.gcCollector.Allocate(obj.Size(), vm.roots(vm.constants))
	if !ok {
		return vm.runtimeError("heap exhausted after forced collection")
	}
	obj.Handle = uint64(h)
	vm.gcCollector.Track(obj)
	return nil
}

// Run executes program starting at its entry point function and returns
// the final top-of-stack value (the stack holds exactly one value when
// the top frame RETURNs).
func (vm *VM) Run(program *object.Program) (object.Value, error) {
	vm.constants = program.Constants
	entry := program.Constants[program.EntryPoint]
	// A persistent VM (the REPL) calls Run once per input block; the
	// frame and operand stacks start empty each time, while globals and
	// the heap carry over.
	vm.frames = vm.frames[:0]
	vm.stack = vm.stack[:0]
	vm.frames = append(vm.frames, frame{fn: entry, localsAt: 0})

	for {
		result, halted, err := vm.step()
		if err != nil {
			return object.None, err
		}
		if halted {
			return result, nil
		}
	}
}

// step executes exactly one instruction of the current frame, returning
// (result, true, nil) when the program has halted successfully.
func (vm *VM) step() (object.Value, bool, error) {
	constants := vm.constants
	f := vm.currentFrame()
	chunk := f.fn.Fn.Chunk
	op := bytecode.Opcode(chunk.Code[f.ip])
	operand, size := chunk.ReadOperand(f.ip)
	nextIP := f.ip + size

	switch op {
	case bytecode.OpReturn:
		return vm.execReturn()
	case bytecode.OpLabel:
		f.ip = nextIP
	case bytecode.OpDrop:
		vm.pop()
		f.ip = nextIP
	case bytecode.OpDropN:
		n := int(operand)
		vm.stack = vm.stack[:len(vm.stack)-n]
		f.ip = nextIP
	case bytecode.OpDup:
		vm.push(vm.peek(0))
		f.ip = nextIP
	case bytecode.OpPushNone:
		vm.push(object.None)
		f.ip = nextIP
	case bytecode.OpPushBool:
		vm.push(object.Boolean(operand != 0))
		f.ip = nextIP
	case bytecode.OpPushShort:
		vm.push(object.Int32(int32(int16(operand))))
		f.ip = nextIP
	case bytecode.OpPushInt:
		vm.push(object.Int32(int32(operand)))
		f.ip = nextIP
	case bytecode.OpPushLiteral:
		vm.push(object.FromObject(constants[operand]))
		f.ip = nextIP

	case bytecode.OpIAdd, bytecode.OpISub, bytecode.OpIMul, bytecode.OpIDiv, bytecode.OpIMod,
		bytecode.OpIAnd, bytecode.OpIOr:
		v, err := vm.binaryArith(op)
		if err != nil {
			return object.None, false, err
		}
		vm.push(v)
		f.ip = nextIP
	case bytecode.OpINeg:
		v, err := vm.unaryNeg()
		if err != nil {
			return object.None, false, err
		}
		vm.push(v)
		f.ip = nextIP
	case bytecode.OpEq, bytecode.OpNeq:
		b := vm.pop()
		a := vm.pop()
		eq := object.Equal(a, b)
		if op == bytecode.OpNeq {
			eq = !eq
		}
		vm.push(object.Boolean(eq))
		f.ip = nextIP
	case bytecode.OpILt, bytecode.OpILe, bytecode.OpIGt, bytecode.OpIGe:
		v, err := vm.compare(op)
		if err != nil {
			return object.None, false, err
		}
		vm.push(v)
		f.ip = nextIP

	case bytecode.OpJmp:
		f.ip = int(operand)
	case bytecode.OpJmpShort:
		f.ip = int(operand)
	case bytecode.OpBranch, bytecode.OpBranchShort:
		cond := vm.pop()
		if cond.Kind != object.KindBool {
			return object.None, false, vm.runtimeError("branch condition must be a bool")
		}
		if cond.Bool {
			f.ip = int(operand)
		} else {
			f.ip = nextIP
		}
	case bytecode.OpBranchFalse, bytecode.OpBranchFalseShort:
		cond := vm.pop()
		if cond.Kind != object.KindBool {
			return object.None, false, vm.runtimeError("branch condition must be a bool")
		}
		if !cond.Bool {
			f.ip = int(operand)
		} else {
			f.ip = nextIP
		}

	case bytecode.OpValGlobal, bytecode.OpVarGlobal:
		name := object.FromObject(constants[operand])
		val := vm.pop()
		if _, exists := vm.globals.Get(name); exists {
			return object.None, false, vm.runtimeError("Variable '%s' is already defined", string(constants[operand].Str.Bytes))
		}
		vm.globals.Set(name, val)
		f.ip = nextIP
	case bytecode.OpGetGlobal:
		name := object.FromObject(constants[operand])
		val, ok := vm.globals.Get(name)
		if !ok {
			return object.None, false, vm.runtimeError("Access to undefined variable '%s'", string(constants[operand].Str.Bytes))
		}
		vm.push(val)
		f.ip = nextIP
	case bytecode.OpSetGlobal:
		name := object.FromObject(constants[operand])
		if _, ok := vm.globals.Get(name); !ok {
			return object.None, false, vm.runtimeError("Access to undefined variable '%s'", string(constants[operand].Str.Bytes))
		}
		vm.globals.Set(name, vm.peek(0))
		f.ip = nextIP

	case bytecode.OpGetLocal:
		vm.push(vm.locals[f.localsAt+int(operand)])
		f.ip = nextIP
	case bytecode.OpSetLocal:
		vm.locals[f.localsAt+int(operand)] = vm.peek(0)
		f.ip = nextIP

	case bytecode.OpCall:
		// The caller resumes past the CALL once the callee RETURNs. Its ip
		// is advanced only after execCall succeeds, so a failed call is
		// reported at the CALL itself; execCall may reallocate vm.frames,
		// so the caller is reached by index rather than through f.
		caller := len(vm.frames) - 1
		if err := vm.execCall(int(operand)); err != nil {
			return object.None, false, err
		}
		vm.frames[caller].ip = nextIP

	case bytecode.OpNewObject:
		classObj := constants[operand]
		if classObj.Kind != object.KindClass {
			return object.None, false, vm.runtimeError("NEW_OBJECT target is not a class")
		}
		inst := object.NewInstanceObject(classObj)
		if err := vm.track(inst); err != nil {
			return object.None, false, err
		}
		vm.push(object.FromObject(inst))
		f.ip = nextIP
	case bytecode.OpGetMember:
		name := object.FromObject(constants[operand])
		instVal := vm.pop()
		if !object.IsObjectOfKind(instVal, object.KindInstance) {
			return object.None, false, vm.runtimeError("GET_MEMBER target is not an instance")
		}
		val, ok := instVal.Obj.Inst.Members.Get(name)
		if !ok {
			return object.None, false, vm.runtimeError("no such member '%s'", string(constants[operand].Str.Bytes))
		}
		vm.push(val)
		f.ip = nextIP
	case bytecode.OpSetMember:
		name := object.FromObject(constants[operand])
		val := vm.pop()
		instVal := vm.pop()
		if !object.IsObjectOfKind(instVal, object.KindInstance) {
			return object.None, false, vm.runtimeError("SET_MEMBER target is not an instance")
		}
		instVal.Obj.Inst.Members.Set(name, val)
		// Like SET_LOCAL/SET_GLOBAL, a member assignment evaluates to the
		// assigned value, keeping every expression's one-value-on-stack
		// contract.
		vm.push(val)
		f.ip = nextIP
	case bytecode.OpDispatchMethod:
		// Same resume-point rule as OpCall above.
		caller := len(vm.frames) - 1
		if err := vm.execDispatch(operand, constants); err != nil {
			return object.None, false, err
		}
		vm.frames[caller].ip = nextIP

	case bytecode.OpPrint:
		if err := vm.execPrint(int(operand)); err != nil {
			return object.None, false, err
		}
		f.ip = nextIP

	default:
		return object.None, false, vm.runtimeError("unknown opcode %s", op)
	}

	return object.None, false, nil
}

// execReturn pops the current frame. If it was the top frame, the
// program halts with whatever value is left on the stack.
func (vm *VM) execReturn() (object.Value, bool, error) {
	if len(vm.frames) == 1 {
		if len(vm.stack) == 0 {
			return object.None, true, nil
		}
		return vm.pop(), true, nil
	}
	vm.frames = vm.frames[:len(vm.frames)-1]
	return object.None, false, nil
}

func (vm *VM) binaryArith(op bytecode.Opcode) (object.Value, error) {
	// compileBinary pushes the right operand first and the left operand
	// last, so the left operand is on top. a must be the first value
	// popped (top) to keep a OP b meaning left OP right.
	a := vm.pop()
	b := vm.pop()

	if a.Kind == object.KindInt && b.Kind == object.KindInt {
		switch op {
		case bytecode.OpIAdd:
			return object.Int32(a.Int + b.Int), nil
		case bytecode.OpISub:
			return object.Int32(a.Int - b.Int), nil
		case bytecode.OpIMul:
			return object.Int32(a.Int * b.Int), nil
		case bytecode.OpIDiv:
			if b.Int == 0 {
				return object.None, vm.runtimeError("Division by zero")
			}
			return object.Int32(a.Int / b.Int), nil
		case bytecode.OpIMod:
			if b.Int == 0 {
				return object.None, vm.runtimeError("Division by zero")
			}
			return object.Int32(a.Int % b.Int), nil
		case bytecode.OpIAnd:
			return object.Boolean(a.Int != 0 && b.Int != 0), nil
		case bytecode.OpIOr:
			return object.Boolean(a.Int != 0 || b.Int != 0), nil
		}
	}

	if a.Kind == object.KindBool && b.Kind == object.KindBool {
		switch op {
		case bytecode.OpIAnd:
			return object.Boolean(a.Bool && b.Bool), nil
		case bytecode.OpIOr:
			return object.Boolean(a.Bool || b.Bool), nil
		}
	}

	if a.Kind == object.KindDouble && b.Kind == object.KindDouble {
		switch op {
		case bytecode.OpIAdd:
			return object.Double(a.Dbl + b.Dbl), nil
		case bytecode.OpISub:
			return object.Double(a.Dbl - b.Dbl), nil
		case bytecode.OpIMul:
			return object.Double(a.Dbl * b.Dbl), nil
		case bytecode.OpIDiv:
			if b.Dbl == 0 {
				return object.None, vm.runtimeError("Division by zero")
			}
			return object.Double(a.Dbl / b.Dbl), nil
		}
	}

	if op == bytecode.OpIAdd && object.IsObjectOfKind(a, object.KindString) && object.IsObjectOfKind(b, object.KindString) {
		concatenated := append(append([]byte{}, a.Obj.Str.Bytes...), b.Obj.Str.Bytes...)
		strObj := object.NewStringObject(string(concatenated))
		if err := vm.track(strObj); err != nil {
			return object.None, err
		}
		return object.FromObject(strObj), nil
	}

	return object.None, vm.runtimeError("incompatible operand types for %s", op)
}

func (vm *VM) unaryNeg() (object.Value, error) {
	v := vm.pop()
	switch v.Kind {
	case object.KindInt:
		return object.Int32(-v.Int), nil
	case object.KindDouble:
		return object.Double(-v.Dbl), nil
	default:
		return object.None, vm.runtimeError("INEG requires an int or double operand")
	}
}

func (vm *VM) compare(op bytecode.Opcode) (object.Value, error) {
	// Same left-on-top convention as binaryArith: a is the left operand.
	a := vm.pop()
	b := vm.pop()

	// Cross-type pairs and None/None compare false under all four
	// operators; None carries no ordering, not even reflexive <=.
	if object.IsCrossType(a, b) || a.Kind == object.KindNone {
		return object.Boolean(false), nil
	}

	cmp, ok := object.Compare(a, b)
	if !ok {
		return object.None, vm.runtimeError("operands are not ordered")
	}

	switch op {
	case bytecode.OpILt:
		return object.Boolean(cmp < 0), nil
	case bytecode.OpILe:
		return object.Boolean(cmp <= 0), nil
	case bytecode.OpIGt:
		return object.Boolean(cmp > 0), nil
	case bytecode.OpIGe:
		return object.Boolean(cmp >= 0), nil
	default:
		return object.None, vm.runtimeError("not a comparison opcode: %s", op)
	}
}

// execCall pops the callee and dispatches to a Function (pushing a new
// frame) or a Native (invoking it inline, no frame).
func (vm *VM) execCall(argc int) error {
	callee := vm.pop()
	if callee.Kind != object.KindObject || callee.Obj == nil {
		return vm.runtimeError("call target is not callable")
	}

	switch callee.Obj.Kind {
	case object.KindFunction:
		return vm.callFunction(callee.Obj, argc)
	case object.KindNative:
		return vm.callNative(callee.Obj, argc)
	default:
		return vm.runtimeError("call target is not callable")
	}
}

func (vm *VM) callFunction(fn *object.Object, argc int) error {
	if int(fn.Fn.Arity) != argc {
		return vm.runtimeError("function '%s' expects %d arguments, got %d", fn.Fn.Name, fn.Fn.Arity, argc)
	}
	if len(vm.frames) >= MaxFrameDepth {
		return vm.runtimeError("call stack overflow")
	}

	prev := vm.currentFrame()
	localsAt := 0
	if prev != nil {
		localsAt = prev.localsAt + int(prev.fn.Fn.LocalsMax)
	}
	if localsAt+int(fn.Fn.LocalsMax) > len(vm.locals) {
		return vm.runtimeError("call stack overflow")
	}

	// Arguments sit on the operand stack in reverse push order (rightmost
	// pushed first), so the leftmost argument is on top: peek(0) is
	// parameter 0, peek(1) parameter 1, and so on down the stack. Copy
	// them into the new frame's local slots and drop them.
	for i := 0; i < argc; i++ {
		vm.locals[localsAt+i] = vm.peek(i)
	}
	vm.stack = vm.stack[:len(vm.stack)-argc]

	vm.frames = append(vm.frames, frame{fn: fn, localsAt: localsAt})
	return nil
}

func (vm *VM) callNative(nat *object.Object, argc int) error {
	if !nat.Nat.Variadic && int(nat.Nat.Arity) != argc {
		return vm.runtimeError("native '%s' expects %d arguments, got %d", nat.Nat.Name, nat.Nat.Arity, argc)
	}

	// Same layout as callFunction: the leftmost argument is on top, so
	// peek(i) is args[i] in left-to-right order.
	args := make([]object.Value, argc)
	for i := 0; i < argc; i++ {
		args[i] = vm.peek(i)
	}
	vm.stack = vm.stack[:len(vm.stack)-argc]

	result, err := nat.Nat.Fn(args)
	if err != nil {
		return vm.runtimeError("%s", err.Error())
	}
	vm.push(result)
	return nil
}

// execDispatch implements DISPATCH_METHOD: look up the method by name on
// the receiver's class, then call it as an ordinary Function with the
// receiver folded in as the implicit first ("self") argument.
func (vm *VM) execDispatch(operand uint64, constants []*object.Object) error {
	sel := operand >> 8
	argc := int(operand & 0xff)

	// The receiver is the call's leftmost (implicit) argument and was
	// pushed last, so it sits on top of the explicit arguments.
	nameObj := constants[sel]
	instVal := vm.peek(0)
	if !object.IsObjectOfKind(instVal, object.KindInstance) {
		return vm.runtimeError("DISPATCH_METHOD target is not an instance")
	}

	method, ok := instVal.Obj.Inst.Class.Cls.Methods.Get(object.FromObject(nameObj))
	if !ok {
		return vm.runtimeError("no such method '%s'", string(nameObj.Str.Bytes))
	}
	if !object.IsObjectOfKind(method, object.KindFunction) {
		return vm.runtimeError("'%s' is not a method", string(nameObj.Str.Bytes))
	}

	// Calling with argc+1 folds the receiver in as the self parameter
	// (local slot 0) without any stack shuffling.
	return vm.callFunction(method.Obj, argc+1)
}

// execPrint implements PRINT: the format string sits on top of the
// operand stack (it is the call's leftmost argument, and the calling
// convention puts the leftmost argument on top), popped first; each
// subsequent pop yields the next argument, consumed in left-to-right
// `{}` order by renderFormat.
func (vm *VM) execPrint(n int) error {
	if n == 0 {
		return vm.runtimeError("PRINT requires at least a format string")
	}
	fmtVal := vm.pop()
	if !object.IsObjectOfKind(fmtVal, object.KindString) {
		return vm.runtimeError("PRINT's first argument must be a string")
	}
	args := make([]object.Value, n-1)
	for i := 0; i < n-1; i++ {
		args[i] = vm.pop()
	}
	out, err := renderFormat(fmtVal.Obj.Str.Bytes, args)
	if err != nil {
		return vm.runtimeError("%s", err.Error())
	}
	vm.writeOutput(out)
	return nil
}
