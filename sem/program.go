// Package sem resolves a parsed WGSL module: it binds names, types every
// expression, materializes abstract literals, folds constant expressions and
// records entry point metadata.
//
// The result is a Program that annotates the AST arenas without rewriting
// them. The interpreter walks the AST and reads the per-expression
// annotations to decide what to evaluate and how.
package sem

import (
	"strconv"

	"github.com/gogpu/wgslinterp/eval"
	"github.com/gogpu/wgslinterp/types"
	"github.com/gogpu/wgslinterp/wgsl"
)

// Stage is the earliest time an expression's value is known.
type Stage uint8

const (
	// StageConst values are folded during resolution.
	StageConst Stage = iota
	// StageOverride values are known once pipeline overrides are resolved.
	StageOverride
	// StageRuntime values are computed by an invocation.
	StageRuntime
)

func (s Stage) String() string {
	switch s {
	case StageConst:
		return "const"
	case StageOverride:
		return "override"
	default:
		return "runtime"
	}
}

// CallKind classifies call expressions.
type CallKind uint8

const (
	CallNone CallKind = iota
	// CallFunction calls a user-declared function.
	CallFunction
	// CallBuiltin calls a builtin function.
	CallBuiltin
	// CallConstruct is a value constructor or conversion.
	CallConstruct
	// CallBitcast is bitcast<T>(e).
	CallBitcast
)

// ExprInfo annotates one expression.
type ExprInfo struct {
	// Type is the expression type before the load rule; a variable
	// identifier has a reference type.
	Type  types.Type
	Stage Stage
	// Value is set for StageConst expressions.
	Value eval.Value
	// Load marks a reference-typed expression used as a value.
	Load bool

	// Var is the variable an identifier names.
	Var *Variable

	Call     CallKind
	Function *Function
	Builtin  string

	// Member is the structure member of a member access.
	Member *types.Member
	// Swizzle holds the component indices of a vector member access.
	Swizzle []int
}

// ValueType returns the type the expression has after the load rule.
func (e *ExprInfo) ValueType() types.Type {
	if e.Load {
		return types.Unref(e.Type)
	}
	return e.Type
}

// VarKind classifies variables.
type VarKind uint8

const (
	VarVar VarKind = iota
	VarLet
	VarConst
	VarOverride
	VarParam
)

func (k VarKind) String() string {
	switch k {
	case VarVar:
		return "var"
	case VarLet:
		return "let"
	case VarConst:
		return "const"
	case VarOverride:
		return "override"
	default:
		return "parameter"
	}
}

// Variable is any named value: module or function scope var, let, const,
// override, or a function parameter.
type Variable struct {
	Name   string
	Kind   VarKind
	Type   types.Type // store type
	Space  types.AddressSpace
	Access types.Access
	Global bool
	// Index is the declaration order of module-scope variables.
	Index int

	// Decl is the declaration, nil for parameters.
	Decl *wgsl.Variable
	Init wgsl.ExprID
	Span wgsl.Span

	// Group and Binding are set when HasBinding.
	HasBinding     bool
	Group, Binding uint32

	// OverrideID is the @id of an override when HasID.
	HasID      bool
	OverrideID uint32

	// Value is the folded value of a const.
	Value eval.Value

	// Builtin names the @builtin of an entry point parameter.
	Builtin string

	// refs are the module-scope variables the initializer and type refer to.
	refs []*Variable
}

// OverrideKey is the key used to supply a value for an override: the
// decimal @id when present, else the name.
func (v *Variable) OverrideKey() string {
	if v.HasID {
		return strconv.FormatUint(uint64(v.OverrideID), 10)
	}
	return v.Name
}

// Function is a resolved function declaration.
type Function struct {
	Name   string
	Decl   *wgsl.FuncDecl
	Params []*Variable
	Result types.Type // nil when the function returns nothing

	// Compute marks an @compute entry point.
	Compute bool
	// WorkgroupSize holds the @workgroup_size expressions; absent
	// dimensions are NoExpr.
	WorkgroupSize [3]wgsl.ExprID

	// Globals lists every module-scope variable, const and override the
	// function refers to, directly or through callees, in declaration order.
	Globals []*Variable

	uses    map[*Variable]bool
	callees map[*Function]bool
}

// Overrides returns the overrides among Globals.
func (f *Function) Overrides() []*Variable {
	var out []*Variable
	for _, v := range f.Globals {
		if v.Kind == VarOverride {
			out = append(out, v)
		}
	}
	return out
}

// Program is a resolved module.
type Program struct {
	Module    *wgsl.Module
	Exprs     []ExprInfo
	Globals   []*Variable
	Functions []*Function

	globals   map[string]*Variable
	functions map[string]*Function
	locals    map[*wgsl.Variable]*Variable
}

// Expr returns the annotation of an expression.
func (p *Program) Expr(id wgsl.ExprID) *ExprInfo { return &p.Exprs[id] }

// Function returns the function with the given name, or nil.
func (p *Program) Function(name string) *Function { return p.functions[name] }

// Global returns the module-scope variable with the given name, or nil.
func (p *Program) Global(name string) *Variable { return p.globals[name] }

// Local returns the variable declared by a function-scope declaration.
func (p *Program) Local(decl *wgsl.Variable) *Variable { return p.locals[decl] }

// ConstValue returns the folded value of a const-stage expression.
func (p *Program) ConstValue(id wgsl.ExprID) (eval.Value, bool) {
	if id == wgsl.NoExpr {
		return nil, false
	}
	e := &p.Exprs[id]
	if e.Stage != StageConst || e.Value == nil {
		return nil, false
	}
	return e.Value, true
}

// Source returns the source text of the module.
func (p *Program) Source() string { return p.Module.Source }
