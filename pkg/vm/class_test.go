package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Gregofi/caby/pkg/compiler"
	"github.com/Gregofi/caby/pkg/object"
	"github.com/Gregofi/caby/pkg/parser"
)

// TestClassFieldAndMethodDispatch exercises NEW_OBJECT, SET_MEMBER (via
// `new`'s constructor-argument assignment), GET_MEMBER, and
// DISPATCH_METHOD end to end, since the compiler only ever emits
// DISPATCH_METHOD for an explicit `obj.method(...)` call.
func TestClassFieldAndMethodDispatch(t *testing.T) {
	src := `
class Greeter {
  name
  def greet() = self.name
}

val g = new Greeter("world")
g.greet()
`
	result := run(t, src)
	require.True(t, object.IsObjectOfKind(result, object.KindString))
	require.Equal(t, "world", string(result.Obj.Str.Bytes))
}

func TestClassMethodCanMutateFieldsThroughSelf(t *testing.T) {
	src := `
class Counter {
  n
  def bump() = self.n = self.n + 1
}

val c = new Counter(0)
c.bump()
c.bump()
c.n
`
	require.Equal(t, object.Int32(2), run(t, src))
}

func TestGetMemberOnUndefinedFieldIsRuntimeError(t *testing.T) {
	src := `
class Empty {
}

val e = new Empty()
e.missing
`
	p := parser.New(src)
	prog, err := p.Parse()
	require.NoError(t, err)
	c := compiler.New()
	program, err := c.Compile(prog)
	require.NoError(t, err)

	v := New()
	_, err = v.Run(program)
	require.Error(t, err)
}
