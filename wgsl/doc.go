// Package wgsl parses WGSL compute shaders into a syntax tree.
//
// Tokenization is done by the naga WGSL lexer; this package turns the token
// stream into a Module whose expressions and statements live in flat arenas
// and carry source spans. Spans are what diagnostics point at, so every node
// keeps the range of the token(s) it was built from.
//
// # Usage
//
//	module, err := wgsl.Parse("shader.wgsl", source)
//	if err != nil {
//	    var errs wgsl.SourceErrors
//	    if errors.As(err, &errs) {
//	        fmt.Println(errs.FormatAll())
//	    }
//	    return err
//	}
//
// Types are parsed as expressions: `array<u32, 4>` becomes an Ident with two
// template arguments. The resolver in package sem gives them meaning.
//
// # Supported Syntax
//
//   - var, let, const and override declarations
//   - struct and alias declarations, const_assert
//   - Functions with attributes on parameters and results
//   - if, for, while, loop/continuing/break if, switch
//   - Assignment, compound assignment, increment and decrement, phony assignment
//   - The full WGSL operator precedence chain, including templated calls
//
// enable, requires and diagnostic directives are accepted and skipped.
package wgsl
