// Command wgslrun runs a WGSL compute shader on the CPU and reports the
// problems a GPU would hide.
//
// Usage:
//
//	wgslrun [options] <input.wgsl>
//
// Examples:
//
//	wgslrun -buffer 0:0=zero:256 -dump shader.wgsl          # Run one workgroup, print the buffer
//	wgslrun -count 4,1,1 -buffer 0:0=u32:1,2,3 shader.wgsl  # Dispatch 4 workgroups
//	wgslrun -override 7=16 -buffer 0:0=@data.bin shader.wgsl
//	wgslrun -layout shader.wgsl                             # Print the bind group layout
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgslinterp"
	"github.com/gogpu/wgslinterp/diag"
	"github.com/gogpu/wgslinterp/interp"
	"github.com/gogpu/wgslinterp/wgsl"
)

// listFlag collects the values of a repeatable flag.
type listFlag []string

func (l *listFlag) String() string     { return strings.Join(*l, " ") }
func (l *listFlag) Set(s string) error { *l = append(*l, s); return nil }

var (
	entry     = flag.String("entry", "main", "compute entry point")
	count     = flag.String("count", "1,1,1", "workgroup count as x,y,z")
	race      = flag.Bool("race", true, "detect data races")
	dump      = flag.Bool("dump", false, "print the buffers after the dispatch")
	layout    = flag.Bool("layout", false, "print the bind group layout and exit")
	crossComp = flag.Bool("naga", false, "also compile the shader to SPIR-V with naga")
	verbose   = flag.Bool("v", false, "log interpreter activity to stderr")
	overrides listFlag
	buffers   listFlag
)

func main() {
	flag.Var(&overrides, "override", "pipeline-override value as name=value or id=value (repeatable)")
	flag.Var(&buffers, "buffer", "buffer binding as group:binding=spec (repeatable)")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: no input file specified")
		usage()
		os.Exit(1)
	}
	if *verbose {
		wgslinterp.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	os.Exit(run(args[0]))
}

func run(inputPath string) int {
	source, err := os.ReadFile(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
		return 1
	}

	program, err := wgslinterp.Check(inputPath, string(source))
	if err != nil {
		var errs wgsl.SourceErrors
		if errors.As(err, &errs) {
			fmt.Fprintln(os.Stderr, errs.FormatAll())
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}

	if *crossComp {
		spirvBytes, err := wgslinterp.CrossCompile(string(source), naga.DefaultOptions())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Compilation error: %v\n", err)
			return 1
		}
		fmt.Printf("naga: compiled %s to %d bytes of SPIR-V\n", inputPath, len(spirvBytes))
	}

	opts := wgslinterp.DefaultOptions()
	opts.Entry = *entry
	opts.DetectRaces = *race
	if opts.Overrides, err = parseOverrides(overrides); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	exec, _, err := wgslinterp.NewExecutor(program, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *layout {
		printLayout(exec)
		return 0
	}

	groups, err := parseCount(*count)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	bound := make(map[interp.BindingPoint]*buffer, len(buffers))
	bindings := make(map[interp.BindingPoint]interp.Binding, len(buffers))
	for _, spec := range buffers {
		point, buf, err := parseBuffer(spec)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		bound[point] = buf
		bindings[point] = interp.Binding{Buffer: buf.mem}
	}

	if err := exec.Run(groups, bindings); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *dump {
		points := make([]interp.BindingPoint, 0, len(bound))
		for p := range bound {
			points = append(points, p)
		}
		slices.SortFunc(points, comparePoints)
		for _, p := range points {
			fmt.Printf("%s: %s\n", p, bound[p].format())
		}
	}

	errorCount := 0
	for _, l := range exec.Diagnostics() {
		if l.Severity() == diag.Error {
			errorCount++
		}
	}
	if n := len(exec.Diagnostics()); n > 0 {
		fmt.Fprintf(os.Stderr, "%d diagnostics (%d errors)\n", n, errorCount)
	}
	if errorCount > 0 {
		return 1
	}
	return 0
}

func printLayout(exec *interp.Executor) {
	fmt.Printf("entry point %s, workgroup size %s\n", exec.EntryPoint().Name, exec.WorkgroupSize())
	for _, g := range exec.BindGroups() {
		for _, e := range exec.BindingLayout(g) {
			fmt.Printf("@group(%d) @binding(%d) %s min_binding_size=%d\n",
				g, e.Binding, bufferTypeName(e.Buffer.Type), e.Buffer.MinBindingSize)
		}
	}
}

func bufferTypeName(t gputypes.BufferBindingType) string {
	switch t {
	case gputypes.BufferBindingTypeUniform:
		return "uniform"
	case gputypes.BufferBindingTypeReadOnlyStorage:
		return "read-only-storage"
	case gputypes.BufferBindingTypeStorage:
		return "storage"
	}
	return "unknown"
}

func comparePoints(a, b interp.BindingPoint) int {
	if a.Group != b.Group {
		return int(a.Group) - int(b.Group)
	}
	return int(a.Binding) - int(b.Binding)
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: wgslrun [options] <input.wgsl>\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nBuffer specs:\n")
	fmt.Fprintf(os.Stderr, "  u32:1,2,3   i32:-1,2   f32:0.5,1   initial values\n")
	fmt.Fprintf(os.Stderr, "  zero:N      N zeroed bytes\n")
	fmt.Fprintf(os.Stderr, "  @file       contents of file\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  wgslrun -buffer 0:0=zero:64 -dump shader.wgsl   Run and print the buffer\n")
	fmt.Fprintf(os.Stderr, "  wgslrun -count 8,1,1 -race=false shader.wgsl    Dispatch without race detection\n")
	fmt.Fprintf(os.Stderr, "  wgslrun -layout shader.wgsl                      Print the bind group layout\n")
}
