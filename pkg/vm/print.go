package vm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Gregofi/caby/pkg/object"
)

// renderFormat implements the PRINT opcode's formatting rules: the
// format is scanned left to right; each literal `{}` consumes the
// next element of args in order; `\n` is translated to a newline, any
// other backslash escape passes through unchanged. Both the PRINT opcode
// handler and the native print function call this, guaranteeing
// identical output on both paths.
func renderFormat(format []byte, args []object.Value) (string, error) {
	var b strings.Builder
	argIdx := 0

	for i := 0; i < len(format); i++ {
		c := format[i]
		switch {
		case c == '{' && i+1 < len(format) && format[i+1] == '}':
			if argIdx >= len(args) {
				return "", fmt.Errorf("more '{}' than arguments")
			}
			b.WriteString(renderValue(args[argIdx]))
			argIdx++
			i++
		case c == '\\' && i+1 < len(format):
			switch format[i+1] {
			case 'n':
				b.WriteByte('\n')
				i++
			default:
				b.WriteByte(c)
			}
		default:
			b.WriteByte(c)
		}
	}

	if argIdx < len(args) {
		return "", fmt.Errorf("more arguments than '{}'")
	}

	return b.String(), nil
}

// renderValue renders a single value for PRINT/print: int decimal,
// double in a %f-like style, bool as true/false, none as "none", string
// as its raw bytes, and class/instance as a short diagnostic form.
func renderValue(v object.Value) string {
	switch v.Kind {
	case object.KindInt:
		return strconv.FormatInt(int64(v.Int), 10)
	case object.KindDouble:
		return strconv.FormatFloat(v.Dbl, 'f', 6, 64)
	case object.KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case object.KindNone:
		return "none"
	case object.KindObject:
		return renderObject(v.Obj)
	default:
		return "?"
	}
}

func renderObject(o *object.Object) string {
	if o == nil {
		return "none"
	}
	switch o.Kind {
	case object.KindString:
		return string(o.Str.Bytes)
	case object.KindFunction:
		return "<function " + o.Fn.Name + ">"
	case object.KindNative:
		return "<native " + o.Nat.Name + ">"
	case object.KindClass:
		return "<class " + o.Cls.Name + ">"
	case object.KindInstance:
		return "<instance of " + o.Inst.Class.Cls.Name + ">"
	default:
		return "<object>"
	}
}
