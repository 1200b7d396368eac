package diag

import (
	"testing"

	"github.com/gogpu/wgslinterp/wgsl"
)

const source = `var<workgroup> wgvar : u32;

fn main() {
  let x = wgvar;
}
`

func span(line, col, endCol int) wgsl.Span {
	return wgsl.Span{
		Start:  wgsl.Position{Line: line, Column: col},
		End:    wgsl.Position{Line: line, Column: endCol},
		Source: "test.wgsl",
	}
}

func TestListString(t *testing.T) {
	var l List
	l.Add(Warning, span(1, 16, 21), source, "data race detected on accesses to %s", "workgroup variable")
	l.Add(Note, span(4, 11, 16), source, "loaded %d bytes at offset %d", 4, 0)
	l.Add(Note, wgsl.Span{}, "", "%d invocations have finished running the shader", 3)

	want := `test.wgsl:1:16 warning: data race detected on accesses to workgroup variable
var<workgroup> wgvar : u32;
               ^^^^^

test.wgsl:4:11 note: loaded 4 bytes at offset 0
  let x = wgvar;
          ^^^^^

note: 3 invocations have finished running the shader
`
	if got := l.String(); got != want {
		t.Errorf("String() =\n%s\nwant\n%s", got, want)
	}
	if got := l.Severity(); got != Warning {
		t.Errorf("Severity() = %v, want %v", got, Warning)
	}
	if got := l.Message(); got != "data race detected on accesses to workgroup variable" {
		t.Errorf("Message() = %q", got)
	}
}

func TestDiagnosticWithoutSpan(t *testing.T) {
	d := Diagnostic{Severity: Error, Message: "barrier not reached by all invocations in the workgroup"}
	if got, want := d.String(), "error: barrier not reached by all invocations in the workgroup\n"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestListKey(t *testing.T) {
	a := List{{Severity: Warning, Message: "m", Span: span(1, 1, 2)}}
	b := List{{Severity: Warning, Message: "m", Span: span(1, 1, 2)}}
	c := List{{Severity: Warning, Message: "m", Span: span(2, 1, 2)}}
	c[0].Span.Start.Offset = 10

	if a.Key() != b.Key() {
		t.Errorf("identical lists have different keys %q and %q", a.Key(), b.Key())
	}
	if a.Key() == c.Key() {
		t.Errorf("lists at different offsets share key %q", a.Key())
	}
}
