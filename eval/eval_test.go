package eval

import (
	"encoding/binary"
	"fmt"
	"math"
	"testing"

	"github.com/gogpu/wgslinterp/types"
	"github.com/gogpu/wgslinterp/wgsl"
)

type warnings []string

func (w *warnings) Warnf(format string, args ...any) {
	*w = append(*w, fmt.Sprintf(format, args...))
}

// strictWarnings collects warnings the way constant folding does.
type strictWarnings struct{ warnings }

func (*strictWarnings) Strict() bool { return true }

var (
	vec2f = &types.Vector{N: 2, Elem: types.F32}
	vec3f = &types.Vector{N: 3, Elem: types.F32}
	vec4f = &types.Vector{N: 4, Elem: types.F32}
)

func vecF32(xs ...float32) *Composite {
	elems := make([]Value, len(xs))
	for i, x := range xs {
		elems[i] = F32(x)
	}
	return &Composite{T: &types.Vector{N: len(xs), Elem: types.F32}, Elems: elems}
}

func TestBinary(t *testing.T) {
	tests := []struct {
		name string
		op   wgsl.BinaryOp
		a, b Value
		want Value
		warn string
	}{
		{"f32 add", wgsl.OpAdd, F32(1.5), F32(2), F32(3.5), ""},
		{"f32 overflow", wgsl.OpAdd, F32(2.5e38), F32(1e38), F32(0),
			"'250000007218949514365393469883371487232.0 + 99999996802856924650656260769173209088.0' cannot be represented as 'f32'"},
		{"f32 divide by zero", wgsl.OpDiv, F32(1), F32(0), F32(1), "'1.0 / 0.0' cannot be represented as 'f32'"},
		{"f32 non-finite input", wgsl.OpMul, F32(float32(math.Inf(1))), F32(2), F32(float32(math.Inf(1))), ""},
		{"u32 divide by zero", wgsl.OpDiv, U32(100), U32(0), U32(100), "'100 / 0' cannot be represented as 'u32'"},
		{"u32 remainder by zero", wgsl.OpMod, U32(7), U32(0), U32(0), "'7 % 0' cannot be represented as 'u32'"},
		{"i32 wraps", wgsl.OpAdd, I32(math.MaxInt32), I32(1), I32(math.MinInt32), ""},
		{"i32 min over -1", wgsl.OpDiv, I32(math.MinInt32), I32(-1), I32(math.MinInt32),
			"'-2147483648 / -1' cannot be represented as 'i32'"},
		{"u32 wraps", wgsl.OpSub, U32(0), U32(1), U32(math.MaxUint32), ""},
		{"shift is masked", wgsl.OpShl, U32(1), U32(33), U32(2), ""},
		{"arithmetic shift", wgsl.OpShr, I32(-8), U32(1), I32(-4), ""},
		{"abstract operand", wgsl.OpMul, F32(1.5), AbstractInt(2), F32(3), ""},
		{"abstract overflow", wgsl.OpMul, AbstractInt(math.MaxInt64), AbstractInt(2), AbstractInt(0),
			"'9223372036854775807 * 2' cannot be represented as 'abstract-int'"},
		{"float remainder", wgsl.OpMod, F32(-7), F32(2), F32(-1), ""},
		{"comparison", wgsl.OpLt, I32(-1), I32(1), Bool(true), ""},
		{"bool and", wgsl.OpAnd, Bool(true), Bool(false), Bool(false), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w warnings
			got, err := Binary(tt.op, tt.a, tt.b, &w)
			if err != nil {
				t.Fatalf("Binary error: %v", err)
			}
			if !Equal(got, tt.want) {
				t.Errorf("%s %s %s = %s, want %s", String(tt.a), tt.op, String(tt.b), String(got), String(tt.want))
			}
			if tt.warn == "" && len(w) != 0 {
				t.Errorf("unexpected warnings %q", w)
			}
			if tt.warn != "" && (len(w) != 1 || w[0] != tt.warn) {
				t.Errorf("warnings = %q, want [%q]", w, tt.warn)
			}
		})
	}
}

// TestBinaryStrict checks that constant folding rejects i32 and u32
// results that would wrap.
func TestBinaryStrict(t *testing.T) {
	tests := []struct {
		name string
		op   wgsl.BinaryOp
		a, b Value
		want Value
		warn string
	}{
		{"i32 in range", wgsl.OpMul, I32(-5), I32(3), I32(-15), ""},
		{"i32 add overflow", wgsl.OpAdd, I32(math.MaxInt32), I32(1), I32(math.MinInt32),
			"'2147483647 + 1' cannot be represented as 'i32'"},
		{"i32 sub overflow", wgsl.OpSub, I32(math.MinInt32), I32(1), I32(math.MaxInt32),
			"'-2147483648 - 1' cannot be represented as 'i32'"},
		{"u32 underflow", wgsl.OpSub, U32(0), U32(1), U32(math.MaxUint32), "'0 - 1' cannot be represented as 'u32'"},
		{"u32 mul overflow", wgsl.OpMul, U32(0x10000), U32(0x10000), U32(0), "'65536 * 65536' cannot be represented as 'u32'"},
		{"u32 mul past int64", wgsl.OpMul, U32(math.MaxUint32), U32(math.MaxUint32), U32(1),
			"'4294967295 * 4294967295' cannot be represented as 'u32'"},
		{"u32 max", wgsl.OpAdd, U32(math.MaxUint32 - 1), U32(1), U32(math.MaxUint32), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w strictWarnings
			got, err := Binary(tt.op, tt.a, tt.b, &w)
			if err != nil {
				t.Fatalf("Binary error: %v", err)
			}
			if !Equal(got, tt.want) {
				t.Errorf("%s %s %s = %s, want %s", String(tt.a), tt.op, String(tt.b), String(got), String(tt.want))
			}
			if tt.warn == "" && len(w.warnings) != 0 {
				t.Errorf("unexpected warnings %q", w.warnings)
			}
			if tt.warn != "" && (len(w.warnings) != 1 || w.warnings[0] != tt.warn) {
				t.Errorf("warnings = %q, want [%q]", w.warnings, tt.warn)
			}
		})
	}
}

func TestBinaryComposite(t *testing.T) {
	got, err := Binary(wgsl.OpMul, vecF32(1, 2), F32(2), nil)
	if err != nil {
		t.Fatalf("Binary error: %v", err)
	}
	if want := vecF32(2, 4); !Equal(got, want) {
		t.Errorf("vec * scalar = %s, want %s", String(got), String(want))
	}

	cmp, err := Binary(wgsl.OpEq, vecF32(1, 2), vecF32(1, 3), nil)
	if err != nil {
		t.Fatalf("Binary error: %v", err)
	}
	if got := String(cmp); got != "vec2<bool>{true, false}" {
		t.Errorf("vec == vec = %s, want vec2<bool>{true, false}", got)
	}

	// Columns (1,2) and (3,4).
	mt := &types.Matrix{Cols: 2, Rows: 2, Elem: types.F32}
	m := &Composite{T: mt, Elems: []Value{vecF32(1, 2), vecF32(3, 4)}}
	mv, err := Binary(wgsl.OpMul, m, vecF32(1, 1), nil)
	if err != nil {
		t.Fatalf("Binary error: %v", err)
	}
	if want := vecF32(4, 6); !Equal(mv, want) {
		t.Errorf("mat * vec = %s, want %s", String(mv), String(want))
	}
	vm, err := Binary(wgsl.OpMul, vecF32(1, 1), m, nil)
	if err != nil {
		t.Fatalf("Binary error: %v", err)
	}
	if want := vecF32(3, 7); !Equal(vm, want) {
		t.Errorf("vec * mat = %s, want %s", String(vm), String(want))
	}
	mm, err := Binary(wgsl.OpMul, m, m, nil)
	if err != nil {
		t.Fatalf("Binary error: %v", err)
	}
	want := &Composite{T: mt, Elems: []Value{vecF32(7, 10), vecF32(15, 22)}}
	if !Equal(mm, want) {
		t.Errorf("mat * mat = %s, want %s", String(mm), String(want))
	}
}

func TestUnary(t *testing.T) {
	tests := []struct {
		name string
		op   wgsl.UnaryOp
		x    Value
		want Value
	}{
		{"negate i32 min", wgsl.OpNeg, I32(math.MinInt32), I32(math.MinInt32)},
		{"negate vector", wgsl.OpNeg, vecF32(1, -2), vecF32(-1, 2)},
		{"not", wgsl.OpNot, Bool(false), Bool(true)},
		{"complement", wgsl.OpCompl, U32(0), U32(math.MaxUint32)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Unary(tt.op, tt.x, nil)
			if err != nil {
				t.Fatalf("Unary error: %v", err)
			}
			if !Equal(got, tt.want) {
				t.Errorf("%s%s = %s, want %s", tt.op, String(tt.x), String(got), String(tt.want))
			}
		})
	}
}

func TestCall(t *testing.T) {
	tests := []struct {
		name string
		fn   string
		args []Value
		want Value
		warn string
	}{
		{"sqrt", "sqrt", []Value{F32(1024)}, F32(32), ""},
		{"sqrt negative", "sqrt", []Value{F32(-1)}, F32(0), "sqrt must be called with a value >= 0"},
		{"acos out of range", "acos", []Value{F32(1.1)}, F32(0),
			"acos must be called with a value in the range [-1 .. 1] (inclusive)"},
		{"normalize", "normalize", []Value{vecF32(0.0001, 0)}, vecF32(1, 0), ""},
		{"normalize zero", "normalize", []Value{vecF32(0, 0)}, vecF32(0, 0), "zero length vector can not be normalized"},
		{"quantizeToF16 max", "quantizeToF16", []Value{F32(65504)}, F32(65504), ""},
		{"quantizeToF16 too large", "quantizeToF16", []Value{F32(65505)}, F32(0),
			"value 65505.0 cannot be represented as 'f16'"},
		{"clamp", "clamp", []Value{I32(9), I32(0), I32(5)}, I32(5), ""},
		{"max vector", "max", []Value{vecF32(1, 5), vecF32(3, 2)}, vecF32(3, 5), ""},
		{"abs i32 min", "abs", []Value{I32(math.MinInt32)}, I32(math.MinInt32), ""},
		{"select scalar", "select", []Value{I32(1), I32(2), Bool(true)}, I32(2), ""},
		{"dot", "dot", []Value{vecF32(1, 2, 3), vecF32(4, 5, 6)}, F32(32), ""},
		{"cross", "cross", []Value{vecF32(1, 0, 0), vecF32(0, 1, 0)}, vecF32(0, 0, 1), ""},
		{"length", "length", []Value{vecF32(3, 4)}, F32(5), ""},
		{"countOneBits", "countOneBits", []Value{U32(0xF0F0)}, U32(8), ""},
		{"firstLeadingBit negative", "firstLeadingBit", []Value{I32(-1)}, I32(-1), ""},
		{"firstLeadingBit u32", "firstLeadingBit", []Value{U32(0x10)}, U32(4), ""},
		{"firstTrailingBit zero", "firstTrailingBit", []Value{U32(0)}, U32(math.MaxUint32), ""},
		{"reverseBits", "reverseBits", []Value{U32(1)}, U32(0x80000000), ""},
		{"extractBits signed", "extractBits", []Value{I32(0x70), U32(4), U32(3)}, I32(-1), ""},
		{"extractBits unsigned", "extractBits", []Value{U32(0x70), U32(4), U32(3)}, U32(7), ""},
		{"insertBits", "insertBits", []Value{U32(0), U32(0xF), U32(8), U32(4)}, U32(0xF00), ""},
		{"pack4x8unorm", "pack4x8unorm", []Value{vecF32(1, 0, 0.5, 1)}, U32(0xFF8000FF), ""},
		{"pack4x8snorm", "pack4x8snorm", []Value{vecF32(1, -1, 0, 0)}, U32(0x0000817F), ""},
		{"unpack4x8unorm", "unpack4x8unorm", []Value{U32(0xFF0000FF)}, vecF32(1, 0, 0, 1), ""},
		{"unpack2x16float", "unpack2x16float", []Value{U32(0x3C00C000)}, vecF32(-2, 1), ""},
		{"step", "step", []Value{F32(0.5), vecF32(0, 1)}, vecF32(0, 1), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w warnings
			got, err := Call(tt.fn, tt.args, tt.want.Type(), &w)
			if err != nil {
				t.Fatalf("Call error: %v", err)
			}
			if !Equal(got, tt.want) {
				t.Errorf("%s = %s, want %s", tt.fn, String(got), String(tt.want))
			}
			if tt.warn == "" && len(w) != 0 {
				t.Errorf("unexpected warnings %q", w)
			}
			if tt.warn != "" && (len(w) != 1 || w[0] != tt.warn) {
				t.Errorf("warnings = %q, want [%q]", w, tt.warn)
			}
		})
	}
}

func TestCallStructResult(t *testing.T) {
	ret := types.NewAnonymousStruct("__modf_result_f32",
		types.MemberSpec{Name: "fract", Type: types.F32},
		types.MemberSpec{Name: "whole", Type: types.F32},
	)
	got, err := Call("modf", []Value{F32(-2.5)}, ret, nil)
	if err != nil {
		t.Fatalf("Call error: %v", err)
	}
	if fract, whole := Index(got, 0), Index(got, 1); fract != F32(-0.5) || whole != F32(-2) {
		t.Errorf("modf(-2.5) = {%s, %s}, want {-0.5, -2}", String(fract), String(whole))
	}
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		to   types.Type
		want Value
		warn string
	}{
		{"f32 to i32 truncates", F32(-1.75), types.I32, I32(-1), ""},
		{"f32 to u32 clamps", F32(-5), types.U32, U32(0), ""},
		{"f32 to i32 nan", F32(float32(math.NaN())), types.I32, I32(0), ""},
		{"i32 to u32 reinterprets", I32(-1), types.U32, U32(math.MaxUint32), ""},
		{"bool to f32", Bool(true), types.F32, F32(1), ""},
		{"u32 to f16 overflow", U32(100000), types.F16, F16(float32(math.Inf(1))),
			"value 100000 cannot be represented as 'f16'"},
		{"f32 to f16 rounds", F32(1.0009765625), types.F16, F16(1.0009765625), ""},
		{"abstract to i32 overflow", AbstractInt(1 << 40), types.I32, I32(0),
			"value 1099511627776 cannot be represented as 'i32'"},
		{"splat", AbstractFloat(1.5), vec2f, vecF32(1.5, 1.5), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w warnings
			got := Convert(tt.v, tt.to, &w)
			if !Equal(got, tt.want) {
				t.Errorf("Convert(%s, %s) = %s, want %s", String(tt.v), tt.to, String(got), String(tt.want))
			}
			if tt.warn == "" && len(w) != 0 {
				t.Errorf("unexpected warnings %q", w)
			}
			if tt.warn != "" && (len(w) != 1 || w[0] != tt.warn) {
				t.Errorf("warnings = %q, want [%q]", w, tt.warn)
			}
		})
	}
}

func TestBitcast(t *testing.T) {
	var w warnings
	got, err := Bitcast(U32(0x3f800000), types.F32, &w)
	if err != nil {
		t.Fatalf("Bitcast error: %v", err)
	}
	if got != F32(1) || len(w) != 0 {
		t.Errorf("bitcast<f32>(0x3f800000) = %s with %q, want 1.000000", String(got), w)
	}

	got, err = Bitcast(U32(0x7FFFFFFF), types.F32, &w)
	if err != nil {
		t.Fatalf("Bitcast error: %v", err)
	}
	if !math.IsNaN(AsFloat64(got)) {
		t.Errorf("bitcast<f32>(0x7fffffff) = %s, want nan", String(got))
	}
	if len(w) != 1 || w[0] != "value nan cannot be represented as 'f32'" {
		t.Errorf("warnings = %q", w)
	}

	vec2h := &types.Vector{N: 2, Elem: types.F16}
	got, err = Bitcast(U32(0x3C00C000), vec2h, nil)
	if err != nil {
		t.Fatalf("Bitcast error: %v", err)
	}
	if want := (&Composite{T: vec2h, Elems: []Value{F16(-2), F16(1)}}); !Equal(got, want) {
		t.Errorf("bitcast<vec2<f16>> = %s, want %s", String(got), String(want))
	}

	if _, err := Bitcast(U32(1), vec2f, nil); err == nil {
		t.Error("bitcast with mismatched sizes succeeded")
	}
}

func TestConstruct(t *testing.T) {
	got, err := Construct(vec4f, []Value{vecF32(1, 2), F32(3), AbstractInt(4)}, nil)
	if err != nil {
		t.Fatalf("Construct error: %v", err)
	}
	if want := vecF32(1, 2, 3, 4); !Equal(got, want) {
		t.Errorf("vec4(vec2, 3, 4) = %s, want %s", String(got), String(want))
	}

	mt := &types.Matrix{Cols: 2, Rows: 2, Elem: types.F32}
	m, err := Construct(mt, []Value{F32(1), F32(2), F32(3), F32(4)}, nil)
	if err != nil {
		t.Fatalf("Construct error: %v", err)
	}
	if col := Index(m, 1); !Equal(col, vecF32(3, 4)) {
		t.Errorf("column 1 = %s, want vec2<f32>{3.000000, 4.000000}", String(col))
	}

	if _, err := Construct(vec3f, []Value{F32(1), F32(2)}, nil); err == nil {
		t.Error("vec3 with two components succeeded")
	}
}

func TestString(t *testing.T) {
	st := types.NewAnonymousStruct("S",
		types.MemberSpec{Name: "a", Type: types.I32},
		types.MemberSpec{Name: "v", Type: vec2f},
	)
	arr := &types.Array{Elem: types.U32, Count: 2}
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"f32", F32(1.5), "1.500000"},
		{"i32", I32(-3), "-3"},
		{"bool", Bool(true), "true"},
		{"inf", F32(float32(math.Inf(-1))), "-inf"},
		{"vector", vecF32(1, 2, 3), "vec3<f32>{1.000000, 2.000000, 3.000000}"},
		{"array", &Composite{T: arr, Elems: []Value{U32(1), U32(2)}}, "array<u32, 2>{\n  [0] = 1,\n  [1] = 2,\n}"},
		{"struct", &Composite{T: st, Elems: []Value{I32(7), vecF32(0, 1)}},
			"S{\n  .a = 7,\n  .v = vec2<f32>{0.000000, 1.000000},\n}"},
		{"matrix", &Composite{T: &types.Matrix{Cols: 2, Rows: 2, Elem: types.F32}, Elems: []Value{vecF32(1, 0), vecF32(0, 1)}},
			"mat2x2<f32>{\n  vec2<f32>{1.000000, 0.000000},\n  vec2<f32>{0.000000, 1.000000},\n}"},
		{"nested array", &Composite{
			T: &types.Array{Elem: arr, Count: 1},
			Elems: []Value{&Composite{T: arr, Elems: []Value{U32(1), U32(2)}}},
		}, "array<array<u32, 2>, 1>{\n  [0] = array<u32, 2>{\n    [0] = 1,\n    [1] = 2,\n  },\n}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := String(tt.v); got != tt.want {
				t.Errorf("String() =\n%s\nwant\n%s", got, tt.want)
			}
		})
	}
}

func TestLiteral(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{F32(1), "1.0"},
		{F32(0.5), "0.5"},
		{F32(float32(math.Copysign(0, -1))), "-0.0"},
		{AbstractFloat(1e20), "100000000000000000000.0"},
		{U32(100000), "100000"},
		{F32(float32(math.NaN())), "nan"},
	}
	for _, tt := range tests {
		if got := Literal(tt.v); got != tt.want {
			t.Errorf("Literal(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestF16(t *testing.T) {
	tests := []struct {
		f    float32
		bits uint16
	}{
		{1, 0x3c00},
		{-2, 0xc000},
		{65504, 0x7bff},
		{0.5, 0x3800},
		{1.0 / (1 << 24), 0x0001},
		{float32(math.Inf(1)), 0x7c00},
	}
	for _, tt := range tests {
		if got := F16Bits(tt.f); got != tt.bits {
			t.Errorf("F16Bits(%v) = %#04x, want %#04x", tt.f, got, tt.bits)
		}
		if got := F16FromBits(tt.bits); got != tt.f {
			t.Errorf("F16FromBits(%#04x) = %v, want %v", tt.bits, got, tt.f)
		}
	}
	if got := F16Bits(65520); got != 0x7c00 {
		t.Errorf("F16Bits(65520) = %#04x, want infinity", got)
	}
}

func TestEncodeLayout(t *testing.T) {
	st := types.NewAnonymousStruct("S",
		types.MemberSpec{Name: "a", Type: types.U32},
		types.MemberSpec{Name: "v", Type: vec3f},
	)
	v := &Composite{T: st, Elems: []Value{U32(7), vecF32(1, 2, 3)}}
	buf := make([]byte, types.Size(st))
	Encode(v, buf)

	if got := binary.LittleEndian.Uint32(buf[0:]); got != 7 {
		t.Errorf("a = %d, want 7", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(buf[20:])); got != 2 {
		t.Errorf("v.y at offset 20 = %v, want 2", got)
	}
	if back := Decode(st, buf); !Equal(back, v) {
		t.Errorf("Decode = %s, want %s", String(back), String(v))
	}

	rt := &types.Array{Elem: types.U32, Size: types.ArrayRuntime}
	if n := Len(Decode(rt, make([]byte, 12))); n != 3 {
		t.Errorf("runtime array length = %d, want 3", n)
	}
}
