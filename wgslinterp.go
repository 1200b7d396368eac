// Package wgslinterp interprets WGSL compute shaders on the CPU.
//
// It runs a dispatch of a compute entry point against host buffers, one
// invocation at a time in a fixed order, and reports what a GPU would hide:
// out-of-bounds accesses, non-finite values, barriers not reached by every
// invocation, and data races between invocations.
//
// Example usage:
//
//	source := `
//	@group(0) @binding(0) var<storage, read_write> data: array<u32>;
//
//	@compute @workgroup_size(64)
//	fn main(@builtin(global_invocation_id) id: vec3<u32>) {
//	    data[id.x] = id.x * 2u;
//	}
//	`
//	buf := interp.NewMemory(256)
//	res, err := wgslinterp.Run("double.wgsl", source, [3]uint32{1, 1, 1},
//	    map[interp.BindingPoint]interp.Binding{{Group: 0, Binding: 0}: {Buffer: buf}},
//	    wgslinterp.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, d := range res.Diagnostics {
//	    fmt.Println(d)
//	}
//
// The packages underneath can be used directly: wgsl parses, sem resolves,
// interp executes and race detects data races.
package wgslinterp

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgslinterp/diag"
	"github.com/gogpu/wgslinterp/interp"
	"github.com/gogpu/wgslinterp/race"
	"github.com/gogpu/wgslinterp/sem"
	"github.com/gogpu/wgslinterp/wgsl"
)

// Options configures an executor.
type Options struct {
	// Entry is the name of the compute entry point (default: "main").
	Entry string

	// Overrides supplies pipeline-override values by name or @id.
	Overrides map[string]float64

	// DetectRaces attaches a data race detector to the executor.
	DetectRaces bool

	// Limits are the device limits the dispatch is checked against.
	Limits gputypes.Limits
}

// DefaultOptions returns options for the "main" entry point with race
// detection enabled and WebGPU default limits.
func DefaultOptions() Options {
	return Options{
		Entry:       "main",
		DetectRaces: true,
		Limits:      gputypes.DefaultLimits(),
	}
}

// Result is the outcome of a dispatch.
type Result struct {
	// Diagnostics holds every runtime diagnostic, in report order.
	Diagnostics []diag.List

	// Races holds the data races found, when race detection was enabled.
	Races []race.Race
}

// Parse parses WGSL source to an AST. file names the source in diagnostics.
func Parse(file, source string) (*wgsl.Module, error) {
	module, err := wgsl.Parse(file, source)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return module, nil
}

// Check parses and resolves WGSL source.
func Check(file, source string) (*sem.Program, error) {
	module, err := Parse(file, source)
	if err != nil {
		return nil, err
	}
	program, err := sem.Resolve(module)
	if err != nil {
		return nil, fmt.Errorf("resolve error: %w", err)
	}
	return program, nil
}

// NewExecutor creates an executor for program. When opts.DetectRaces is
// set, the returned detector is attached to it; otherwise it is nil.
func NewExecutor(program *sem.Program, opts Options) (*interp.Executor, *race.Detector, error) {
	if opts.Entry == "" {
		opts.Entry = "main"
	}
	if opts.Limits == (gputypes.Limits{}) {
		opts.Limits = gputypes.DefaultLimits()
	}
	exec, err := interp.CreateWithLimits(program, opts.Entry, opts.Overrides, opts.Limits)
	if err != nil {
		return nil, nil, fmt.Errorf("executor error: %w", err)
	}
	var detector *race.Detector
	if opts.DetectRaces {
		detector = race.New(exec)
	}
	return exec, detector, nil
}

// Run checks source and runs one dispatch of count workgroups. Runtime
// diagnostics are collected in the result rather than printed.
func Run(file, source string, count [3]uint32, bindings map[interp.BindingPoint]interp.Binding, opts Options) (*Result, error) {
	program, err := Check(file, source)
	if err != nil {
		return nil, err
	}
	exec, detector, err := NewExecutor(program, opts)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	exec.AddErrorCallback(func(l diag.List) {
		res.Diagnostics = append(res.Diagnostics, l)
	})
	if err := exec.Run(count, bindings); err != nil {
		return res, fmt.Errorf("dispatch error: %w", err)
	}
	if detector != nil {
		res.Races = detector.Races()
	}
	return res, nil
}

// CrossCompile compiles source to SPIR-V with naga, to confirm that a
// shader that runs here is also accepted by the GPU toolchain. Use
// naga.DefaultOptions() for the usual settings.
func CrossCompile(source string, opts naga.CompileOptions) ([]byte, error) {
	spirv, err := naga.CompileWithOptions(source, opts)
	if err != nil {
		return nil, fmt.Errorf("naga: %w", err)
	}
	return spirv, nil
}

// SetLogger configures the logger used by the interpreter and the race
// detector. Pass nil to disable logging.
func SetLogger(l *slog.Logger) { interp.SetLogger(l) }

// Logger returns the current logger.
func Logger() *slog.Logger { return interp.Logger() }
