package interp

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gogpu/wgslinterp/diag"
)

func TestUVec3(t *testing.T) {
	tests := []struct {
		a, b UVec3
		less bool
	}{
		{UVec3{0, 0, 0}, UVec3{1, 0, 0}, true},
		{UVec3{5, 0, 0}, UVec3{0, 1, 0}, true},
		{UVec3{5, 5, 0}, UVec3{0, 0, 1}, true},
		{UVec3{0, 1, 0}, UVec3{5, 0, 0}, false},
		{UVec3{2, 2, 2}, UVec3{2, 2, 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.a.String()+tt.b.String(), func(t *testing.T) {
			if got := tt.a.Less(tt.b); got != tt.less {
				t.Errorf("%v.Less(%v) = %v, want %v", tt.a, tt.b, got, tt.less)
			}
		})
	}
	if got := (UVec3{2, 3, 4}).Volume(); got != 24 {
		t.Errorf("Volume() = %d, want 24", got)
	}
	if got := (UVec3{1, 2, 3}).String(); got != "(1,2,3)" {
		t.Errorf("String() = %q, want (1,2,3)", got)
	}
}

func TestWorkgroupVariables(t *testing.T) {
	h := newHarness(t, `
var<workgroup> tile : array<u32, 4>;

@group(0) @binding(0) var<storage, read_write> out : array<u32>;

@compute @workgroup_size(4)
fn main(@builtin(local_invocation_index) i : u32,
        @builtin(workgroup_id) g : vec3<u32>) {
  tile[i] = i * 10u + g.x;
  workgroupBarrier();
  out[g.x * 4u + i] = tile[3u - i];
}
`, nil)
	out := NewMemory(8 * 4)
	h.run(t, UVec3{2, 1, 1}, out)

	want := []uint32{30, 20, 10, 0, 31, 21, 11, 1}
	if got := readU32s(out); !slices.Equal(got, want) {
		t.Errorf("out = %v, want %v", got, want)
	}
	if len(h.diags) != 0 {
		t.Errorf("unexpected diagnostics: %q", messages(h.diags))
	}
}

func TestWorkgroupUniformLoad(t *testing.T) {
	h := newHarness(t, `
var<workgroup> flag : u32;

@group(0) @binding(0) var<storage, read_write> out : array<u32>;

@compute @workgroup_size(2)
fn main(@builtin(local_invocation_index) i : u32) {
  if (i == 0u) {
    flag = 7u;
  }
  let v = workgroupUniformLoad(&flag);
  out[i] = v;
}
`, nil)
	out := NewMemory(8)
	h.run(t, UVec3{1, 1, 1}, out)

	if got := readU32s(out); !slices.Equal(got, []uint32{7, 7}) {
		t.Errorf("out = %v, want [7 7]", got)
	}
}

func TestOverrideSizedWorkgroupArray(t *testing.T) {
	h := newHarness(t, `
override n : u32 = 4u;
var<workgroup> tile : array<u32, n>;

@group(0) @binding(0) var<storage, read_write> out : array<u32>;

@compute @workgroup_size(n)
fn main(@builtin(local_invocation_index) i : u32) {
  tile[i] = i;
  workgroupBarrier();
  out[i] = tile[n - 1u - i];
}
`, map[string]float64{"n": 3})
	out := NewMemory(12)
	h.run(t, UVec3{1, 1, 1}, out)

	if got := readU32s(out); !slices.Equal(got, []uint32{2, 1, 0}) {
		t.Errorf("out = %v, want [2 1 0]", got)
	}
	if len(h.diags) != 0 {
		t.Errorf("unexpected diagnostics: %q", messages(h.diags))
	}
}

func TestNonUniformBarrier(t *testing.T) {
	tests := []struct {
		name   string
		size   string
		branch string
		notes  []string
	}{
		{
			name: "some finished",
			size: "4",
			branch: `if (i < 2u) {
    workgroupBarrier();
  }`,
			notes: []string{
				"invocation(0,0,0) and 1 other invocations waiting here",
				"2 invocations have finished running the shader",
			},
		},
		{
			name: "two barriers",
			size: "4",
			branch: `if (i < 2u) {
    workgroupBarrier();
  } else {
    workgroupBarrier();
  }`,
			notes: []string{
				"invocation(0,0,0) and 1 other invocations waiting here",
				"invocation(2,0,0) and 1 other invocations waiting here",
			},
		},
		{
			name: "three barriers",
			size: "3",
			branch: `if (i == 0u) {
    workgroupBarrier();
  } else if (i == 1u) {
    workgroupBarrier();
  } else {
    storageBarrier();
  }`,
			notes: []string{
				"invocation(0,0,0) and 0 other invocations waiting here",
				"invocation(1,0,0) and 0 other invocations waiting here",
				"1 invocations are waiting at other barriers",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, `
@compute @workgroup_size(`+tt.size+`)
fn main(@builtin(local_invocation_index) i : u32) {
  `+tt.branch+`
}
`, nil)
			h.run(t, UVec3{1, 1, 1})

			if len(h.diags) != 1 {
				t.Fatalf("got %d diagnostics, want 1: %q", len(h.diags), messages(h.diags))
			}
			l := h.diags[0]
			if l.Message() != "barrier not reached by all invocations in the workgroup" {
				t.Errorf("message = %q", l.Message())
			}
			if l.Severity() != diag.Error {
				t.Errorf("severity = %v, want error", l.Severity())
			}
			var notes []string
			for _, d := range l[1:] {
				notes = append(notes, d.Message)
			}
			if diff := cmp.Diff(tt.notes, notes); diff != "" {
				t.Errorf("notes mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSelectInvocation(t *testing.T) {
	const shader = `
@group(0) @binding(0) var<storage, read_write> counter : atomic<u32>;
@group(0) @binding(1) var<storage, read_write> order : array<u32>;

@compute @workgroup_size(2)
fn main(@builtin(local_invocation_index) i : u32) {
  order[i] = atomicAdd(&counter, 1u);
}
`
	tests := []struct {
		name string
		pick bool
		want []uint32
	}{
		{"default order", false, []uint32{0, 1}},
		{"last first", true, []uint32{1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, shader, nil)
			if tt.pick {
				h.exec.AddWorkgroupBeginCallback(func(wg *Workgroup) {
					if !wg.SelectInvocation(UVec3{1, 0, 0}) {
						t.Error("SelectInvocation((1,0,0)) = false")
					}
					if wg.SelectInvocation(UVec3{5, 0, 0}) {
						t.Error("SelectInvocation of a missing invocation = true")
					}
					if got := wg.CurrentInvocation().LocalInvocationID(); got != (UVec3{1, 0, 0}) {
						t.Errorf("current invocation = %v, want (1,0,0)", got)
					}
				})
			}
			counter, order := NewMemory(4), NewMemory(8)
			h.run(t, UVec3{1, 1, 1}, counter, order)

			if got := readU32s(order); !slices.Equal(got, tt.want) {
				t.Errorf("order = %v, want %v", got, tt.want)
			}
			if got := readU32s(counter)[0]; got != 2 {
				t.Errorf("counter = %d, want 2", got)
			}
		})
	}
}

func TestDeterministicRuns(t *testing.T) {
	const shader = `
var<workgroup> acc : u32;

@group(0) @binding(0) var<storage, read_write> out : array<u32>;

@compute @workgroup_size(4)
fn main(@builtin(local_invocation_index) i : u32,
        @builtin(workgroup_id) g : vec3<u32>) {
  acc = acc * 3u + i;
  out[g.x] = acc;
  out[g.x + 2u + i] = out[g.x];
}
`
	run := func() ([]uint32, []string) {
		h := newHarness(t, shader, nil)
		out := NewMemory(8 * 4)
		h.run(t, UVec3{2, 1, 1}, out)
		return readU32s(out), messages(h.diags)
	}
	out1, msgs1 := run()
	out2, msgs2 := run()
	if !slices.Equal(out1, out2) {
		t.Errorf("outputs differ between runs: %v and %v", out1, out2)
	}
	if !slices.Equal(msgs1, msgs2) {
		t.Errorf("diagnostics differ between runs: %q and %q", msgs1, msgs2)
	}
}

func TestWorkgroupState(t *testing.T) {
	h := newHarness(t, `
@compute @workgroup_size(2)
fn main() {
  workgroupBarrier();
}
`, nil)

	states := map[State]bool{}
	var views int
	h.exec.AddPostStepCallback(func(inv *Invocation) {
		states[inv.State()] = true
	})
	h.exec.AddWorkgroupCompleteCallback(func(wg *Workgroup) {
		if !wg.Finished() {
			t.Error("workgroup complete callback before Finished()")
		}
		views = len(wg.views)
	})
	h.run(t, UVec3{1, 1, 1})

	for _, s := range []State{StateReady, StateWaitingAtBarrier, StateFinished} {
		if !states[s] {
			t.Errorf("never observed state %v", s)
		}
	}
	if views != 0 {
		t.Errorf("workgroup with no variables has %d views", views)
	}
	if got := StateWaitingAtBarrier.String(); got != "barrier" {
		t.Errorf("StateWaitingAtBarrier.String() = %q, want barrier", got)
	}
}
