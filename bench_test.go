package wgslinterp

import (
	"runtime"
	"testing"

	"github.com/gogpu/wgslinterp/diag"
	"github.com/gogpu/wgslinterp/interp"
	"github.com/gogpu/wgslinterp/sem"
	"github.com/gogpu/wgslinterp/wgsl"
)

// ---------------------------------------------------------------------------
// Test shader sources: compute shaders at different complexity levels
// ---------------------------------------------------------------------------

// shaderSmallFill writes one value per invocation.
const shaderSmallFill = `
@group(0) @binding(0) var<storage, read_write> data : array<u32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id : vec3<u32>) {
  data[id.x] = id.x;
}
`

// shaderMediumMath runs a loop of float math with control flow per
// invocation.
const shaderMediumMath = `
@group(0) @binding(0) var<storage, read_write> data : array<f32>;

fn shade(x : f32) -> f32 {
  var acc = 0.0;
  for (var i = 0; i < 8; i++) {
    let t = f32(i) * 0.125;
    if (t < 0.5) {
      acc += sin(x * t) * cos(x);
    } else {
      acc += clamp(x / (t + 1.0), 0.0, 1.0);
    }
  }
  return acc;
}

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id : vec3<u32>) {
  data[id.x] = shade(f32(id.x));
}
`

// shaderLargeReduce is a workgroup tree reduction with barriers and
// workgroup memory.
const shaderLargeReduce = `
@group(0) @binding(0) var<storage, read_write> data : array<f32>;

var<workgroup> partial : array<f32, 64>;

@compute @workgroup_size(64)
fn main(@builtin(local_invocation_index) li : u32,
        @builtin(workgroup_id) wg : vec3<u32>) {
  partial[li] = data[wg.x * 64u + li];
  workgroupBarrier();

  for (var stride = 32u; stride > 0u; stride = stride / 2u) {
    if (li < stride) {
      partial[li] = partial[li] + partial[li + stride];
    }
    workgroupBarrier();
  }

  if (li == 0u) {
    data[wg.x * 64u] = partial[0];
  }
}
`

// ---------------------------------------------------------------------------
// Complexity-grouped shaders for table-driven benchmarks
// ---------------------------------------------------------------------------

type shaderCase struct {
	name   string
	source string
}

var shadersByComplexity = []shaderCase{
	{"small/fill", shaderSmallFill},
	{"medium/math", shaderMediumMath},
	{"large/reduce", shaderLargeReduce},
}

// benchWorkgroups is the dispatch size used by the execution benchmarks.
const benchWorkgroups = 4

func benchBindings() map[interp.BindingPoint]interp.Binding {
	return map[interp.BindingPoint]interp.Binding{
		{Group: 0, Binding: 0}: {Buffer: interp.NewMemory(benchWorkgroups * 64 * 4)},
	}
}

// ---------------------------------------------------------------------------
// Front end: parsing and resolution
// ---------------------------------------------------------------------------

// BenchmarkCheck benchmarks parsing plus semantic resolution grouped by
// shader complexity. Reports allocations and throughput in bytes/sec.
func BenchmarkCheck(b *testing.B) {
	for _, sc := range shadersByComplexity {
		b.Run(sc.name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(sc.source)))
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				program, err := Check("bench.wgsl", sc.source)
				if err != nil {
					b.Fatalf("check failed: %v", err)
				}
				runtime.KeepAlive(program)
			}
		})
	}
}

// BenchmarkParseOnly isolates the parser from resolution.
func BenchmarkParseOnly(b *testing.B) {
	source := shaderLargeReduce
	b.ReportAllocs()
	b.SetBytes(int64(len(source)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		module, err := wgsl.Parse("bench.wgsl", source)
		if err != nil {
			b.Fatalf("parse failed: %v", err)
		}
		runtime.KeepAlive(module)
	}
}

// ---------------------------------------------------------------------------
// Execution: full dispatches with and without race detection
// ---------------------------------------------------------------------------

func benchmarkDispatch(b *testing.B, detectRaces bool) {
	for _, sc := range shadersByComplexity {
		b.Run(sc.name, func(b *testing.B) {
			// Resolve once; only executor setup and the dispatch are measured.
			program, err := Check("bench.wgsl", sc.source)
			if err != nil {
				b.Fatalf("check failed: %v", err)
			}
			opts := DefaultOptions()
			opts.DetectRaces = detectRaces

			b.ReportAllocs()
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				runDispatch(b, program, opts)
			}
		})
	}
}

func runDispatch(b *testing.B, program *sem.Program, opts Options) {
	b.Helper()
	exec, _, err := NewExecutor(program, opts)
	if err != nil {
		b.Fatalf("executor failed: %v", err)
	}
	exec.AddErrorCallback(func(diag.List) {})
	if err := exec.Run(interp.UVec3{benchWorkgroups, 1, 1}, benchBindings()); err != nil {
		b.Fatalf("dispatch failed: %v", err)
	}
}

// BenchmarkDispatch benchmarks dispatches without the race detector.
func BenchmarkDispatch(b *testing.B) {
	benchmarkDispatch(b, false)
}

// BenchmarkDispatchWithRaceDetection measures the overhead of tracking
// every storage and workgroup access.
func BenchmarkDispatchWithRaceDetection(b *testing.B) {
	benchmarkDispatch(b, true)
}
