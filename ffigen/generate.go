// Package ffigen parses a C header and produces the data model a script
// binding generator needs to expose the header's functions to script code.
// It is grounded on original_source/ffigen.cc (which walks a header's
// top-level declarations and emits a call-wrapper per exported function)
// and uses modernc.org/cc/v3 — the C parser present elsewhere in the
// example pack — to do the parsing instead of hand-rolling one.
//
// Generate stops at producing the Binding data model: marshalling an
// arbitrary C calling convention from pure Go, without cgo, is outside what
// this package attempts (see SPEC_FULL.md §11.3).
package ffigen

import (
	"github.com/pkg/errors"
	"modernc.org/cc/v3"
)

// CType is the small set of C parameter/return types ffigen understands.
// Anything else causes Generate to skip the declaration with a recorded
// Skipped entry rather than failing the whole header.
type CType string

const (
	TypeVoid    CType = "void"
	TypeInt     CType = "int"
	TypeLong    CType = "long"
	TypeDouble  CType = "double"
	TypeCharPtr CType = "char*"
	TypeVoidPtr CType = "void*"
	TypeUnknown CType = "unknown"
)

// Param is one parameter of a generated binding.
type Param struct {
	Name string
	Type CType
}

// Binding describes one C function ffigen will generate a script-callable
// wrapper for.
type Binding struct {
	Name       string
	Params     []Param
	ReturnType CType
}

// Skip records a top-level declaration Generate chose not to bind, and why.
type Skip struct {
	Name   string
	Reason string
}

// Result is Generate's output: the bindable functions found, and the ones
// that were skipped.
type Result struct {
	Bindings []Binding
	Skipped  []Skip
}

// Config selects the host predefine/include configuration cc.Parse needs.
// HostConfig() from modernc.org/cc/v3 supplies reasonable defaults when the
// zero value is used.
type Config struct {
	Predefined  string
	IncludePath []string
	SysIncludes []string
}

// Generate parses headerPath and returns one Binding per top-level function
// declaration it recognises.
func Generate(headerPath string, cfg Config) (*Result, error) {
	predefined, includePaths, sysIncludes, err := cc.HostConfig()
	if err != nil {
		return nil, errors.Wrap(err, "resolving host C configuration")
	}
	if cfg.Predefined != "" {
		predefined = cfg.Predefined
	}
	if len(cfg.IncludePath) > 0 {
		includePaths = cfg.IncludePath
	}
	if len(cfg.SysIncludes) > 0 {
		sysIncludes = cfg.SysIncludes
	}

	ast, err := cc.Parse(
		&cc.Config{},
		[]string{"ffigen"},
		[]string{headerPath},
		&cc.SourceConfig{
			Predefined:  predefined,
			IncludePaths: includePaths,
			SysIncludePaths: sysIncludes,
		},
	)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing header %q", headerPath)
	}

	result := &Result{}
	for _, decl := range ast.TranslationUnit.TopLevelDecls() {
		fn, ok := decl.(cc.FunctionDeclarator)
		if !ok {
			continue
		}
		name := fn.Name()
		binding, skipReason := bindingFromDeclarator(fn)
		if skipReason != "" {
			result.Skipped = append(result.Skipped, Skip{Name: name, Reason: skipReason})
			continue
		}
		result.Bindings = append(result.Bindings, binding)
	}
	return result, nil
}

// bindingFromDeclarator maps a parsed function declarator to a Binding, or
// returns a non-empty skip reason if any parameter or the return type isn't
// one ffigen's generated wrappers know how to marshal.
func bindingFromDeclarator(fn cc.FunctionDeclarator) (Binding, string) {
	ret := mapCType(fn.ReturnType())
	if ret == TypeUnknown {
		return Binding{}, "unsupported return type " + fn.ReturnType().String()
	}

	b := Binding{Name: fn.Name(), ReturnType: ret}
	for _, p := range fn.Parameters() {
		t := mapCType(p.Type())
		if t == TypeUnknown {
			return Binding{}, "unsupported parameter type " + p.Type().String() + " in " + fn.Name()
		}
		b.Params = append(b.Params, Param{Name: p.Name(), Type: t})
	}
	return b, ""
}

// mapCType narrows a parsed cc.Type down to the small set ffigen can bind.
// Widening this switch is how ffigen grows to support more of the C type
// system; everything not recognised here is reported as a Skip rather than
// guessed at.
func mapCType(t cc.Type) CType {
	switch {
	case t == nil:
		return TypeVoid
	case t.Kind() == cc.Int || t.Kind() == cc.UInt:
		return TypeInt
	case t.Kind() == cc.Long || t.Kind() == cc.ULong:
		return TypeLong
	case t.Kind() == cc.Double:
		return TypeDouble
	case t.Kind() == cc.Ptr && t.Elem() != nil && t.Elem().Kind() == cc.Char:
		return TypeCharPtr
	case t.Kind() == cc.Ptr:
		return TypeVoidPtr
	default:
		return TypeUnknown
	}
}
