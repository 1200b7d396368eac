package interp

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/gogpu/wgslinterp/diag"
	"github.com/gogpu/wgslinterp/sem"
	"github.com/gogpu/wgslinterp/wgsl"
)

func compileProgram(t *testing.T, source string) *sem.Program {
	t.Helper()
	m, err := wgsl.Parse("test.wgsl", source)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	p, err := sem.Resolve(m)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	return p
}

// harness is an executor whose runtime diagnostics are collected instead
// of printed.
type harness struct {
	exec  *Executor
	diags []diag.List
}

func newHarness(t *testing.T, source string, overrides map[string]float64) *harness {
	t.Helper()
	exec, err := Create(compileProgram(t, source), "main", overrides)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	h := &harness{exec: exec}
	exec.AddErrorCallback(func(l diag.List) { h.diags = append(h.diags, l) })
	return h
}

func (h *harness) run(t *testing.T, count UVec3, buffers ...*Memory) {
	t.Helper()
	if err := h.exec.Run(count, bindAll(buffers...)); err != nil {
		t.Fatalf("Run error: %v", err)
	}
}

// bindAll binds buffers to @group(0) @binding(0), @binding(1), ...
func bindAll(buffers ...*Memory) map[BindingPoint]Binding {
	b := make(map[BindingPoint]Binding, len(buffers))
	for i, m := range buffers {
		b[BindingPoint{Group: 0, Binding: uint32(i)}] = Binding{Buffer: m}
	}
	return b
}

func u32Memory(vals ...uint32) *Memory {
	m := NewMemory(uint64(4 * len(vals)))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(m.Bytes()[4*i:], v)
	}
	return m
}

func f32Memory(vals ...float32) *Memory {
	m := NewMemory(uint64(4 * len(vals)))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(m.Bytes()[4*i:], math.Float32bits(v))
	}
	return m
}

func readU32s(m *Memory) []uint32 {
	out := make([]uint32, m.Size()/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(m.Bytes()[4*i:])
	}
	return out
}

func readI32s(m *Memory) []int32 {
	out := make([]int32, m.Size()/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(m.Bytes()[4*i:]))
	}
	return out
}

func readF32s(m *Memory) []float32 {
	out := make([]float32, m.Size()/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(m.Bytes()[4*i:]))
	}
	return out
}

func messages(lists []diag.List) []string {
	out := make([]string, len(lists))
	for i, l := range lists {
		out[i] = l.Message()
	}
	return out
}
