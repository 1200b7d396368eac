// Package diag holds runtime diagnostics reported while a shader executes:
// out-of-bounds accesses, non-representable values, non-uniform barriers and
// data races.
//
// A List is one report. Its first entry carries the severity of the report;
// the entries after it are notes pointing at related source locations.
// List.String renders the report the way compiler diagnostics are usually
// shown: a location header, the source line and a caret marker.
package diag

import (
	"fmt"
	"strings"

	"github.com/gogpu/wgslinterp/wgsl"
)

// Severity classifies a diagnostic.
type Severity uint8

const (
	Note Severity = iota
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Note:
		return "note"
	case Warning:
		return "warning"
	default:
		return "error"
	}
}

// Diagnostic is one located message.
type Diagnostic struct {
	Severity Severity
	Message  string
	// Span locates the message. A zero span renders without a location.
	Span wgsl.Span
	// Source is the full text of the file Span points into.
	Source string
}

// HasSpan reports whether the diagnostic is tied to a source location.
func (d Diagnostic) HasSpan() bool { return d.Span.Start.Line > 0 }

// String renders the header, followed by the source line and carets when
// the diagnostic has a location. The result ends with a newline.
func (d Diagnostic) String() string {
	var sb strings.Builder
	if d.HasSpan() {
		if d.Span.Source != "" {
			fmt.Fprintf(&sb, "%s:", d.Span.Source)
		}
		fmt.Fprintf(&sb, "%d:%d ", d.Span.Start.Line, d.Span.Start.Column)
	}
	sb.WriteString(d.Severity.String())
	sb.WriteString(": ")
	sb.WriteString(d.Message)
	sb.WriteByte('\n')
	if d.HasSpan() {
		if snippet := wgsl.Snippet(d.Source, d.Span); snippet != "" {
			sb.WriteString(snippet)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// List is a single report: a primary diagnostic and its notes.
type List []Diagnostic

// Add appends a diagnostic.
func (l *List) Add(sev Severity, span wgsl.Span, source, format string, args ...any) {
	*l = append(*l, Diagnostic{
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
		Span:     span,
		Source:   source,
	})
}

// Severity returns the highest severity in the list.
func (l List) Severity() Severity {
	var s Severity
	for _, d := range l {
		s = max(s, d.Severity)
	}
	return s
}

// Message returns the message of the primary diagnostic.
func (l List) Message() string {
	if len(l) == 0 {
		return ""
	}
	return l[0].Message
}

// String renders every entry, separated by blank lines.
func (l List) String() string {
	parts := make([]string, len(l))
	for i, d := range l {
		parts[i] = d.String()
	}
	return strings.Join(parts, "\n")
}

// Key identifies a report by its messages and locations. Reports that repeat
// the same condition at the same places share a key.
func (l List) Key() string {
	var sb strings.Builder
	for _, d := range l {
		fmt.Fprintf(&sb, "%d|%s|%s:%d:%d|", d.Severity, d.Message,
			d.Span.Source, d.Span.Start.Offset, d.Span.End.Offset)
	}
	return sb.String()
}

// Error lets a List be returned as an error.
func (l List) Error() string { return strings.TrimRight(l.String(), "\n") }
