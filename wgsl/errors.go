package wgsl

import (
	"fmt"
	"strings"
)

// SourceError is a parse or resolve error tied to a source location.
type SourceError struct {
	Message string
	Span    Span
	Source  string // full source text, used for context rendering
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	if e.Span.Start.Line == 0 {
		return e.Message
	}
	if e.Span.Source != "" {
		return fmt.Sprintf("%s:%d:%d: %s", e.Span.Source, e.Span.Start.Line, e.Span.Start.Column, e.Message)
	}
	return fmt.Sprintf("%d:%d: %s", e.Span.Start.Line, e.Span.Start.Column, e.Message)
}

// FormatWithContext returns the error followed by the offending source line
// and a caret marker underneath the span.
func (e *SourceError) FormatWithContext() string {
	snippet := Snippet(e.Source, e.Span)
	if snippet == "" {
		return "error: " + e.Error()
	}
	return "error: " + e.Error() + "\n" + snippet
}

// NewSourceErrorf creates a SourceError with a formatted message.
func NewSourceErrorf(span Span, source string, format string, args ...any) *SourceError {
	return &SourceError{
		Message: fmt.Sprintf(format, args...),
		Span:    span,
		Source:  source,
	}
}

// SourceErrors is a list of source errors. A non-empty list is itself an error.
type SourceErrors []*SourceError

// Error implements the error interface.
func (el SourceErrors) Error() string {
	switch len(el) {
	case 0:
		return "no errors"
	case 1:
		return el[0].Error()
	default:
		return fmt.Sprintf("%s (and %d more errors)", el[0].Error(), len(el)-1)
	}
}

// FormatAll renders every error with context, separated by blank lines.
func (el SourceErrors) FormatAll() string {
	parts := make([]string, 0, len(el))
	for _, e := range el {
		parts = append(parts, e.FormatWithContext())
	}
	return strings.Join(parts, "\n")
}

// Add appends an error.
func (el *SourceErrors) Add(err *SourceError) {
	*el = append(*el, err)
}

// HasErrors reports whether the list is non-empty.
func (el SourceErrors) HasErrors() bool {
	return len(el) > 0
}

// Snippet renders the source line containing span.Start followed by a line of
// carets covering the span (clipped to that line). It returns "" when the
// span has no position or lies outside source.
func Snippet(source string, span Span) string {
	if source == "" || span.Start.Line == 0 {
		return ""
	}
	lines := strings.Split(source, "\n")
	ln := span.Start.Line
	if ln < 1 || ln > len(lines) {
		return ""
	}
	line := strings.TrimRight(lines[ln-1], "\r")

	col := max(span.Start.Column, 1)
	col = min(col, len(line)+1)
	width := 1
	if span.End.Line == span.Start.Line && span.End.Column > col {
		width = span.End.Column - col
	} else if span.End.Line > span.Start.Line {
		width = len(line) - col + 1
	}
	width = max(width, 1)

	var sb strings.Builder
	sb.WriteString(line)
	sb.WriteByte('\n')
	// Keep tabs so the carets line up with the source line.
	for i := 0; i < col-1 && i < len(line); i++ {
		if line[i] == '\t' {
			sb.WriteByte('\t')
		} else {
			sb.WriteByte(' ')
		}
	}
	sb.WriteString(strings.Repeat("^", width))
	return sb.String()
}
