package types

import "testing"

func TestLayout(t *testing.T) {
	vec3f := &Vector{N: 3, Elem: F32}
	tests := []struct {
		name  string
		typ   Type
		size  uint64
		align uint64
	}{
		{"bool", Bool, 4, 4},
		{"f16", F16, 2, 2},
		{"vec2<f32>", &Vector{N: 2, Elem: F32}, 8, 8},
		{"vec3<f32>", vec3f, 12, 16},
		{"vec4<u32>", &Vector{N: 4, Elem: U32}, 16, 16},
		{"vec3<f16>", &Vector{N: 3, Elem: F16}, 6, 8},
		{"mat2x2<f32>", &Matrix{Cols: 2, Rows: 2, Elem: F32}, 16, 8},
		{"mat3x3<f32>", &Matrix{Cols: 3, Rows: 3, Elem: F32}, 48, 16},
		{"mat4x3<f16>", &Matrix{Cols: 4, Rows: 3, Elem: F16}, 32, 8},
		{"array<vec3<f32>, 2>", &Array{Elem: vec3f, Count: 2}, 32, 16},
		{"array<i32>", &Array{Elem: I32, Size: ArrayRuntime}, 0, 4},
		{"atomic<u32>", &Atomic{Elem: U32}, 4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Size(tt.typ); got != tt.size {
				t.Errorf("Size(%s) = %d, want %d", tt.typ, got, tt.size)
			}
			if got := Align(tt.typ); got != tt.align {
				t.Errorf("Align(%s) = %d, want %d", tt.typ, got, tt.align)
			}
			if got := tt.typ.String(); got != tt.name {
				t.Errorf("String() = %q, want %q", got, tt.name)
			}
		})
	}
}

func TestNewStruct(t *testing.T) {
	s, err := NewStruct("S", []MemberSpec{
		{Name: "a", Type: F32},
		{Name: "b", Type: &Vector{N: 3, Elem: F32}},
		{Name: "c", Type: U32},
		{Name: "d", Type: F32, Align: 16, Size: 8},
	})
	if err != nil {
		t.Fatalf("NewStruct error: %v", err)
	}
	wantOffsets := []uint64{0, 16, 28, 32}
	for i, m := range s.Members {
		if m.Offset != wantOffsets[i] {
			t.Errorf("member %s offset = %d, want %d", m.Name, m.Offset, wantOffsets[i])
		}
	}
	if got := Size(s); got != 48 {
		t.Errorf("Size(S) = %d, want 48", got)
	}
	if got := Align(s); got != 16 {
		t.Errorf("Align(S) = %d, want 16", got)
	}
}

func TestNewStructErrors(t *testing.T) {
	tests := []struct {
		name  string
		specs []MemberSpec
	}{
		{"runtime array not last", []MemberSpec{
			{Name: "a", Type: &Array{Elem: U32, Size: ArrayRuntime}},
			{Name: "b", Type: U32},
		}},
		{"bad align", []MemberSpec{{Name: "a", Type: U32, Align: 6}}},
		{"size too small", []MemberSpec{{Name: "a", Type: &Vector{N: 4, Elem: F32}, Size: 8}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewStruct("S", tt.specs); err == nil {
				t.Error("NewStruct succeeded, want error")
			}
		})
	}
}

func TestEqual(t *testing.T) {
	s, _ := NewStruct("S", []MemberSpec{{Name: "a", Type: U32}})
	other, _ := NewStruct("S", []MemberSpec{{Name: "a", Type: U32}})
	tests := []struct {
		name string
		a, b Type
		want bool
	}{
		{"same vector", &Vector{N: 3, Elem: F32}, &Vector{N: 3, Elem: F32}, true},
		{"vector width", &Vector{N: 3, Elem: F32}, &Vector{N: 4, Elem: F32}, false},
		{"array count", &Array{Elem: I32, Count: 2}, &Array{Elem: I32, Count: 3}, false},
		{"runtime arrays", &Array{Elem: I32, Size: ArrayRuntime}, &Array{Elem: I32, Size: ArrayRuntime}, true},
		{"struct identity", s, s, true},
		{"distinct structs", s, other, false},
		{"pointer", &Pointer{Space: SpaceFunction, Elem: I32}, &Pointer{Space: SpacePrivate, Elem: I32}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.want {
				t.Errorf("Equal(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
