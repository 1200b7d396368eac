package interp

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgslinterp/eval"
	"github.com/gogpu/wgslinterp/wgsl"
)

func TestCreateErrors(t *testing.T) {
	p := compileProgram(t, `
fn helper() {}

@compute @workgroup_size(1)
fn main() {
  helper();
}
`)

	tests := []struct {
		name  string
		entry string
		kind  ErrorKind
		msg   string
	}{
		{"missing", "nope", ErrEntryPointNotFound, "entry point 'nope' not found in module"},
		{"not compute", "helper", ErrNotAComputeEntryPoint, "function 'helper' is not a compute shader"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Create(p, tt.entry, nil)
			var ierr *Error
			if !errors.As(err, &ierr) {
				t.Fatalf("Create error = %v, want *Error", err)
			}
			if ierr.Kind != tt.kind || ierr.Message != tt.msg {
				t.Errorf("Create error = %v %q, want %v %q", ierr.Kind, ierr.Message, tt.kind, tt.msg)
			}
		})
	}
}

const overrideShader = `
override scale : u32 = 2u;
@id(7) override offset : u32;
override wgx : u32 = 2u;

@group(0) @binding(0) var<storage, read_write> out : array<u32>;

@compute @workgroup_size(wgx)
fn main(@builtin(local_invocation_index) i : u32) {
  out[i] = offset + i * scale;
}
`

func TestOverrides(t *testing.T) {
	h := newHarness(t, overrideShader, map[string]float64{"7": 10, "scale": 3})
	if got := h.exec.WorkgroupSize(); got != (UVec3{2, 1, 1}) {
		t.Errorf("WorkgroupSize() = %v, want (2,1,1)", got)
	}
	if v, ok := h.exec.GetNamedOverride("scale"); !ok || !eval.Equal(v, eval.U32(3)) {
		t.Errorf("GetNamedOverride(scale) = %v, %v, want 3, true", v, ok)
	}
	if v, ok := h.exec.GetNamedOverride("offset"); !ok || !eval.Equal(v, eval.U32(10)) {
		t.Errorf("GetNamedOverride(offset) = %v, %v, want 10, true", v, ok)
	}
	if _, ok := h.exec.GetNamedOverride("missing"); ok {
		t.Error("GetNamedOverride(missing) reported a value")
	}

	out := NewMemory(8)
	h.run(t, UVec3{1, 1, 1}, out)
	if got := readU32s(out); !slices.Equal(got, []uint32{10, 13}) {
		t.Errorf("out = %v, want [10 13]", got)
	}
}

func TestOverrideWorkgroupSize(t *testing.T) {
	h := newHarness(t, overrideShader, map[string]float64{"7": 0, "wgx": 4})
	out := NewMemory(16)
	h.run(t, UVec3{1, 1, 1}, out)
	if got := readU32s(out); !slices.Equal(got, []uint32{0, 2, 4, 6}) {
		t.Errorf("out = %v, want [0 2 4 6]", got)
	}
}

func TestOverrideErrors(t *testing.T) {
	p := compileProgram(t, overrideShader)

	tests := []struct {
		name      string
		overrides map[string]float64
		kind      ErrorKind
		msg       string
	}{
		{"missing", map[string]float64{"scale": 3}, ErrMissingOverrideValue, "missing pipeline-override value for 'offset'"},
		{"fraction", map[string]float64{"7": 1.5}, ErrInvalidOverride, "value 1.5 for override 'offset' is not representable as 'u32'"},
		{"negative", map[string]float64{"7": -1}, ErrInvalidOverride, "value -1 for override 'offset' is not representable as 'u32'"},
		{"zero size", map[string]float64{"7": 0, "wgx": 0}, ErrInvalidWorkgroupSize, "workgroup size 0 in dimension 0 must be between 1 and 256"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Create(p, "main", tt.overrides)
			var ierr *Error
			if !errors.As(err, &ierr) {
				t.Fatalf("Create error = %v, want *Error", err)
			}
			if ierr.Kind != tt.kind || ierr.Message != tt.msg {
				t.Errorf("Create error = %v %q, want %v %q", ierr.Kind, ierr.Message, tt.kind, tt.msg)
			}
		})
	}
}

func TestWorkgroupSizeLimits(t *testing.T) {
	small := gputypes.DefaultLimits()
	small.MaxComputeWorkgroupSizeX = 8

	tests := []struct {
		name   string
		size   string
		limits gputypes.Limits
		ok     bool
	}{
		{"default fits", "64", gputypes.DefaultLimits(), true},
		{"x too large", "512", gputypes.DefaultLimits(), false},
		{"z too large", "1, 1, 128", gputypes.DefaultLimits(), false},
		{"too many invocations", "16, 16, 2", gputypes.DefaultLimits(), false},
		{"custom limit", "16", small, false},
		{"custom limit fits", "8, 4", small, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := compileProgram(t, "@compute @workgroup_size("+tt.size+")\nfn main() {}\n")
			_, err := CreateWithLimits(p, "main", nil, tt.limits)
			if tt.ok {
				if err != nil {
					t.Errorf("CreateWithLimits error: %v", err)
				}
				return
			}
			if kind, _ := KindOf(err); kind != ErrInvalidWorkgroupSize {
				t.Errorf("CreateWithLimits error = %v, want InvalidWorkgroupSize", err)
			}
		})
	}
}

func TestBindingErrors(t *testing.T) {
	const shader = `
@group(0) @binding(0) var<storage, read_write> data : array<u32>;

@compute @workgroup_size(1)
fn main() {
  data[0] = 1u;
}
`
	point := BindingPoint{Group: 0, Binding: 0}
	tests := []struct {
		name     string
		bindings map[BindingPoint]Binding
		kind     ErrorKind
		msg      string
	}{
		{"missing", nil, ErrMissingBufferBinding, "missing buffer binding for @group(0) @binding(0)"},
		{"wrong point", map[BindingPoint]Binding{{Group: 1}: {Buffer: NewMemory(4)}}, ErrMissingBufferBinding,
			"missing buffer binding for @group(0) @binding(0)"},
		{"nil buffer", map[BindingPoint]Binding{point: {}}, ErrInvalidBindingResource,
			"invalid binding resource for @group(0) @binding(0)"},
		{"offset past end", map[BindingPoint]Binding{point: {Buffer: NewMemory(4), Offset: 8}}, ErrInvalidBindingResource,
			"invalid binding resource for @group(0) @binding(0)"},
		{"size past end", map[BindingPoint]Binding{point: {Buffer: NewMemory(8), Offset: 4, Size: 8}}, ErrInvalidBindingResource,
			"invalid binding resource for @group(0) @binding(0)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, err := Create(compileProgram(t, shader), "main", nil)
			if err != nil {
				t.Fatalf("Create error: %v", err)
			}
			err = exec.Run(UVec3{1, 1, 1}, tt.bindings)
			var ierr *Error
			if !errors.As(err, &ierr) {
				t.Fatalf("Run error = %v, want *Error", err)
			}
			if ierr.Kind != tt.kind || ierr.Message != tt.msg {
				t.Errorf("Run error = %v %q, want %v %q", ierr.Kind, ierr.Message, tt.kind, tt.msg)
			}
		})
	}
}

func TestBindingOffset(t *testing.T) {
	h := newHarness(t, `
@group(0) @binding(0) var<storage, read_write> data : array<u32>;

@compute @workgroup_size(1)
fn main() {
  data[0] = arrayLength(&data);
}
`, nil)
	m := u32Memory(9, 9, 9, 9)
	err := h.exec.Run(UVec3{1, 1, 1}, map[BindingPoint]Binding{{}: {Buffer: m, Offset: 4, Size: 8}})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	// The binding covers two elements starting at byte 4.
	if got := readU32s(m); !slices.Equal(got, []uint32{9, 2, 9, 9}) {
		t.Errorf("data = %v, want [9 2 9 9]", got)
	}
}

func TestBindingSizeLimit(t *testing.T) {
	limits := gputypes.DefaultLimits()
	limits.MaxStorageBufferBindingSize = 8
	exec, err := CreateWithLimits(compileProgram(t, `
@group(0) @binding(0) var<storage, read_write> data : array<u32>;

@compute @workgroup_size(1)
fn main() {
  data[0] = 1u;
}
`), "main", nil, limits)
	if err != nil {
		t.Fatalf("CreateWithLimits error: %v", err)
	}
	err = exec.Run(UVec3{1, 1, 1}, bindAll(NewMemory(16)))
	if kind, _ := KindOf(err); kind != ErrInvalidBindingResource {
		t.Errorf("Run error = %v, want InvalidBindingResource", err)
	}
}

func TestRunTwice(t *testing.T) {
	h := newHarness(t, trivialShader, nil)
	h.run(t, UVec3{1, 1, 1})
	err := h.exec.Run(UVec3{1, 1, 1}, nil)
	if kind, _ := KindOf(err); kind != ErrAlreadyRun {
		t.Errorf("second Run error = %v, want AlreadyRun", err)
	}
}

func TestBindingLayout(t *testing.T) {
	h := newHarness(t, `
struct Counts {
  n : u32,
  data : array<u32>,
}

@group(0) @binding(2) var<storage, read_write> counts : Counts;
@group(0) @binding(0) var<storage, read> input : array<f32>;
@group(0) @binding(1) var<uniform> params : vec4<f32>;
@group(1) @binding(0) var<storage, read_write> extra : array<u32, 3>;
@group(3) @binding(0) var<storage, read_write> unused : u32;

@compute @workgroup_size(1)
fn main() {
  counts.data[0] = u32(input[0] + params.x);
  extra[0] = counts.n;
}
`, nil)

	if got := h.exec.BindGroups(); !slices.Equal(got, []uint32{0, 1}) {
		t.Errorf("BindGroups() = %v, want [0 1]", got)
	}

	want := []struct {
		binding uint32
		typ     gputypes.BufferBindingType
		min     uint64
	}{
		{0, gputypes.BufferBindingTypeReadOnlyStorage, 4},
		{1, gputypes.BufferBindingTypeUniform, 16},
		{2, gputypes.BufferBindingTypeStorage, 8},
	}
	got := h.exec.BindingLayout(0)
	if len(got) != len(want) {
		t.Fatalf("BindingLayout(0) has %d entries, want %d", len(got), len(want))
	}
	for i, w := range want {
		e := got[i]
		if e.Binding != w.binding || e.Buffer == nil || e.Buffer.Type != w.typ || e.Buffer.MinBindingSize != w.min {
			t.Errorf("entry %d = binding %d %+v, want binding %d type %v min %d", i, e.Binding, e.Buffer, w.binding, w.typ, w.min)
		}
		if e.Visibility != gputypes.ShaderStageCompute {
			t.Errorf("entry %d visibility = %v, want compute", i, e.Visibility)
		}
	}

	group1 := h.exec.BindingLayout(1)
	if len(group1) != 1 || group1[0].Buffer.MinBindingSize != 12 {
		t.Errorf("BindingLayout(1) = %+v, want one 12 byte entry", group1)
	}
	if got := h.exec.BindingLayout(3); len(got) != 0 {
		t.Errorf("BindingLayout(3) = %+v, want none for an unused variable", got)
	}
}

func TestDiagnosticOutput(t *testing.T) {
	exec, err := Create(compileProgram(t, `
@group(0) @binding(0) var<storage, read_write> data : array<u32, 2>;

@compute @workgroup_size(2)
fn main(@builtin(local_invocation_index) i : u32) {
  data[i + 1u] = i;
}
`), "main", nil)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	var buf bytes.Buffer
	exec.SetDiagnosticOutput(&buf)
	if err := exec.Run(UVec3{1, 1, 1}, bindAll(NewMemory(8))); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"storing to an out-of-bounds memory view",
		"while running local_invocation_id(1,0,0) workgroup_id(0,0,0)",
		"accessing 8 byte allocation in the storage address space",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("diagnostic output missing %q:\n%s", want, out)
		}
	}
	if got := len(exec.Diagnostics()); got != 1 {
		t.Errorf("Diagnostics() has %d entries, want 1", got)
	}
}

func TestCallbacksOrder(t *testing.T) {
	h := newHarness(t, `
@compute @workgroup_size(2)
fn main() {
  workgroupBarrier();
}
`, nil)

	var events []string
	h.exec.AddDispatchBeginCallback(func() { events = append(events, "dispatch-begin") })
	h.exec.AddWorkgroupBeginCallback(func(wg *Workgroup) { events = append(events, "wg-begin"+wg.ID().String()) })
	h.exec.AddBarrierCallback(func(*Workgroup, wgsl.ExprID) { events = append(events, "barrier") })
	h.exec.AddWorkgroupCompleteCallback(func(wg *Workgroup) { events = append(events, "wg-complete"+wg.ID().String()) })
	h.exec.AddDispatchCompleteCallback(func() { events = append(events, "dispatch-complete") })
	h.run(t, UVec3{2, 1, 1})

	want := []string{
		"dispatch-begin",
		"wg-begin(0,0,0)", "barrier", "wg-complete(0,0,0)",
		"wg-begin(1,0,0)", "barrier", "wg-complete(1,0,0)",
		"dispatch-complete",
	}
	if !slices.Equal(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestSelectWorkgroup(t *testing.T) {
	const shader = `
@group(0) @binding(0) var<storage, read_write> counter : atomic<u32>;
@group(0) @binding(1) var<storage, read_write> order : array<u32>;

@compute @workgroup_size(2)
fn main(@builtin(workgroup_id) g : vec3<u32>,
        @builtin(local_invocation_index) i : u32) {
  order[g.x * 2u + i] = atomicAdd(&counter, 1u);
}
`
	tests := []struct {
		name  string
		setup func(t *testing.T, e *Executor)
		want  []uint32
	}{
		{"default order", func(*testing.T, *Executor) {}, []uint32{0, 1, 2, 3}},
		{"last group first", func(t *testing.T, e *Executor) {
			e.AddDispatchBeginCallback(func() {
				if !e.SelectWorkgroup(UVec3{1, 0, 0}) {
					t.Error("SelectWorkgroup((1,0,0)) = false")
				}
				if e.SelectWorkgroup(UVec3{2, 0, 0}) {
					t.Error("SelectWorkgroup outside the dispatch = true")
				}
			})
		}, []uint32{2, 3, 0, 1}},
		{"interleaved", func(t *testing.T, e *Executor) {
			switched := false
			e.AddPostStepCallback(func(inv *Invocation) {
				// Once the first invocation of group 0 is done, run all of
				// group 1 before resuming group 0.
				if !switched && inv.State() == StateFinished {
					switched = true
					if !e.SelectWorkgroup(UVec3{1, 0, 0}) {
						t.Error("SelectWorkgroup((1,0,0)) = false")
					}
					if got := e.CurrentWorkgroup().ID(); got != (UVec3{1, 0, 0}) {
						t.Errorf("current workgroup = %v, want (1,0,0)", got)
					}
				}
			})
		}, []uint32{0, 3, 1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, shader, nil)
			tt.setup(t, h.exec)
			counter, order := NewMemory(4), NewMemory(16)
			h.run(t, UVec3{2, 1, 1}, counter, order)

			if got := readU32s(order); !slices.Equal(got, tt.want) {
				t.Errorf("order = %v, want %v", got, tt.want)
			}
		})
	}
}
