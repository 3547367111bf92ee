package object

import "github.com/Gregofi/caby/pkg/bytecode"

// ObjKind discriminates the heap Object variants.
type ObjKind byte

const (
	KindString ObjKind = iota
	KindFunction
	KindNative
	KindClass
	KindInstance
	// KindDoubleConst boxes a float64 constant-pool entry so PUSH_LITERAL
	// can address it by index like any other constant. It never escapes
	// to the heap: FromObject unboxes it straight back into a primitive
	// Double Value, and it is never passed to vm.track/Collector.Track.
	// Because the wire format's constant tags cover only
	// FUNCTION/STRING/CLASS, a program containing a float literal can be
	// compiled and run directly but fails to serialize with
	// `caby compile`.
	KindDoubleConst
)

func (k ObjKind) String() string {
	switch k {
	case KindString:
		return "String"
	case KindFunction:
		return "Function"
	case KindNative:
		return "Native"
	case KindClass:
		return "Class"
	case KindInstance:
		return "Instance"
	case KindDoubleConst:
		return "DoubleConst"
	default:
		return "Unknown"
	}
}

// GCWhite, GCGray, and GCBlack name the tri-color mark states used by
// pkg/gc. Object carries only a byte so the collector can flip it without
// touching anything else about the node.
const (
	GCWhite byte = iota
	GCGray
	GCBlack
)

// Object is the header shared by every heap-allocated Caby value. Next
// threads every live object into one singly-linked list (the allocation
// order list pkg/gc walks during sweep); GCByte is the collector's mark
// state for this node.
type Object struct {
	Kind   ObjKind
	Next   *Object
	GCByte byte
	// Handle is the block allocator reservation backing this object's
	// reported size. It is assigned by the VM at allocation time and
	// freed by the collector at sweep; the zero Handle means "not yet
	// registered with an allocator" (e.g. during construction).
	Handle uint64

	Str  *StringData
	Fn   *FunctionData
	Nat  *NativeData
	Cls  *ClassData
	Inst *InstanceData
	Dbl  float64 // valid only when Kind == KindDoubleConst
}

// StringData is an immutable, interned-by-content byte string. Hash is
// computed once at construction (FNV-1a over Bytes) so Equal and the
// table probe sequence never re-hash.
type StringData struct {
	Bytes []byte
	Hash  uint32
}

// Len returns the string's length in bytes.
func (s *StringData) Len() int { return len(s.Bytes) }

// NewString allocates a StringData and precomputes its hash.
func NewString(s string) *StringData {
	b := []byte(s)
	return &StringData{Bytes: b, Hash: FNV1a(b)}
}

// FunctionData is a compiled function: its parameter count, the maximum
// number of local variable slots its frame needs, the code implementing
// it, and the name used in stack traces and disassembly.
type FunctionData struct {
	Name      string
	Arity     byte
	LocalsMax uint16
	Chunk     *bytecode.Chunk
}

// NativeFn is the signature every Caby native function implements.
// Natives receive their arguments already popped off the operand stack in
// left-to-right order and return either a result value or an error.
type NativeFn func(args []Value) (Value, error)

// NativeData wraps a Go-implemented native function exposed to Caby code.
// Variadic natives (print) accept any argument count and skip CALL's
// arity check.
type NativeData struct {
	Name     string
	Arity    byte
	Variadic bool
	Fn       NativeFn
}

// ClassData describes a class: its name, its declared field names in
// source order (used by `new` to assign constructor arguments), and its
// method table, mapping method name to a *Object of KindFunction.
type ClassData struct {
	Name    string
	Fields  []string
	Methods *Table
}

// InstanceData is a live instance of a class: a back-reference to its
// class and a member table (value -> value) holding field state.
type InstanceData struct {
	Class   *Object
	Members *Table
}

// NewObject allocates an Object header for a freshly-constructed payload.
// Callers set exactly one of the five payload pointers before returning
// the object to the interpreter.
func NewObject(kind ObjKind) *Object {
	return &Object{Kind: kind}
}

// NewStringObject builds a ready-to-use String object.
func NewStringObject(s string) *Object {
	return &Object{Kind: KindString, Str: NewString(s)}
}

// NewFunctionObject builds a ready-to-use Function object.
func NewFunctionObject(name string, arity byte, localsMax uint16, chunk *bytecode.Chunk) *Object {
	return &Object{Kind: KindFunction, Fn: &FunctionData{
		Name:      name,
		Arity:     arity,
		LocalsMax: localsMax,
		Chunk:     chunk,
	}}
}

// NewNativeObject builds a ready-to-use Native object.
func NewNativeObject(name string, arity byte, fn NativeFn) *Object {
	return &Object{Kind: KindNative, Nat: &NativeData{Name: name, Arity: arity, Fn: fn}}
}

// NewVariadicNativeObject builds a ready-to-use Native object that
// accepts any argument count.
func NewVariadicNativeObject(name string, fn NativeFn) *Object {
	return &Object{Kind: KindNative, Nat: &NativeData{Name: name, Variadic: true, Fn: fn}}
}

// NewClassObject builds a ready-to-use Class object with the given field
// names and an empty method table.
func NewClassObject(name string, fields []string) *Object {
	return &Object{Kind: KindClass, Cls: &ClassData{Name: name, Fields: fields, Methods: NewTable()}}
}

// NewInstanceObject builds a ready-to-use Instance object of the given
// class, with an empty member table.
func NewInstanceObject(class *Object) *Object {
	return &Object{Kind: KindInstance, Inst: &InstanceData{Class: class, Members: NewTable()}}
}

// NewDoubleObject boxes v as a KindDoubleConst constant-pool entry. See
// KindDoubleConst's doc comment for why this exists instead of a plain
// Double Value in the pool.
func NewDoubleObject(v float64) *Object {
	return &Object{Kind: KindDoubleConst, Dbl: v}
}

// Size estimates the object's footprint against the block allocator's
// byte budget, used by pkg/gc/pkg/vm when deciding whether an allocation
// should trigger a collection first. It need not be exact — only stable
// and proportionate to the payload.
func (o *Object) Size() uint64 {
	const headerSize = 24
	switch o.Kind {
	case KindString:
		return headerSize + uint64(len(o.Str.Bytes))
	case KindFunction:
		return headerSize + uint64(len(o.Fn.Chunk.Code))
	case KindNative:
		return headerSize
	case KindClass:
		return headerSize + uint64(o.Cls.Methods.Count())*16
	case KindInstance:
		return headerSize + uint64(o.Inst.Members.Count())*16
	case KindDoubleConst:
		return headerSize
	default:
		return headerSize
	}
}
