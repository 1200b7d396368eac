package eval

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/gogpu/wgslinterp/types"
)

// String renders v for humans. Floats use six decimals, composites are
// rendered with their type name and nested values are indented.
func String(v Value) string {
	var sb strings.Builder
	writeValue(&sb, v, 0)
	return sb.String()
}

func writeValue(sb *strings.Builder, v Value, indent int) {
	switch v := v.(type) {
	case Bool:
		sb.WriteString(strconv.FormatBool(bool(v)))
	case I32:
		sb.WriteString(strconv.FormatInt(int64(v), 10))
	case U32:
		sb.WriteString(strconv.FormatUint(uint64(v), 10))
	case AbstractInt:
		sb.WriteString(strconv.FormatInt(int64(v), 10))
	case F32:
		sb.WriteString(fixed(float64(v)))
	case F16:
		sb.WriteString(fixed(float64(v)))
	case AbstractFloat:
		sb.WriteString(fixed(float64(v)))
	case *Composite:
		writeComposite(sb, v, indent)
	case nil:
		sb.WriteString("<none>")
	}
}

func writeComposite(sb *strings.Builder, c *Composite, indent int) {
	pad := strings.Repeat("  ", indent)
	switch t := c.T.(type) {
	case *types.Vector:
		sb.WriteString(t.String())
		sb.WriteByte('{')
		for i, e := range c.Elems {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeValue(sb, e, 0)
		}
		sb.WriteByte('}')
	case *types.Matrix:
		sb.WriteString(t.String())
		sb.WriteString("{\n")
		for _, col := range c.Elems {
			sb.WriteString(pad + "  ")
			writeValue(sb, col, 0)
			sb.WriteString(",\n")
		}
		sb.WriteString(pad + "}")
	case *types.Array:
		if t.Size == types.ArrayFixed {
			sb.WriteString(t.String())
		} else {
			fmt.Fprintf(sb, "array<%s, %d>", t.Elem, len(c.Elems))
		}
		sb.WriteString("{\n")
		for i, e := range c.Elems {
			fmt.Fprintf(sb, "%s  [%d] = ", pad, i)
			writeValue(sb, e, indent+1)
			sb.WriteString(",\n")
		}
		sb.WriteString(pad + "}")
	case *types.Struct:
		sb.WriteString(t.Name)
		sb.WriteString("{\n")
		for i, m := range t.Members {
			fmt.Fprintf(sb, "%s  .%s = ", pad, m.Name)
			writeValue(sb, c.Elems[i], indent+1)
			sb.WriteString(",\n")
		}
		sb.WriteString(pad + "}")
	default:
		sb.WriteString(c.T.String())
	}
}

func fixed(x float64) string {
	switch {
	case math.IsNaN(x):
		return "nan"
	case math.IsInf(x, 1):
		return "inf"
	case math.IsInf(x, -1):
		return "-inf"
	}
	return strconv.FormatFloat(x, 'f', 6, 64)
}

// Literal renders a scalar the way it would be written in source.
// Integral floats print every digit followed by ".0".
func Literal(v Value) string {
	switch v := v.(type) {
	case F32:
		return floatLiteral(float64(v), 32)
	case F16:
		return floatLiteral(float64(v), 32)
	case AbstractFloat:
		return floatLiteral(float64(v), 64)
	case *Composite:
		parts := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			parts[i] = Literal(e)
		}
		return v.T.String() + "(" + strings.Join(parts, ", ") + ")"
	}
	return String(v)
}

func floatLiteral(x float64, bits int) string {
	switch {
	case math.IsNaN(x):
		return "nan"
	case math.IsInf(x, 1):
		return "inf"
	case math.IsInf(x, -1):
		return "-inf"
	}
	if x == math.Trunc(x) {
		return new(big.Float).SetFloat64(x).Text('f', 0) + ".0"
	}
	return strconv.FormatFloat(x, 'f', -1, bits)
}
