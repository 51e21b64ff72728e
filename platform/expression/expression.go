// Package expression classifies snippets of Go source into a closed set of typed
// expressions. Every variant keeps the original snippet text plus the fields derived
// from it during classification, and is immutable once built.
package expression

import "fmt"

// Kind tags an Expression variant.
type Kind string

const (
	KindImport             Kind = "import"
	KindType               Kind = "type"
	KindMethod             Kind = "method"
	KindAssignmentWithType Kind = "assignment_with_type"
	KindAssignment         Kind = "assignment"
	KindStatement          Kind = "statement"
	KindValue              Kind = "value"
)

// MainPackage is the package every synthesized unit belongs to.
const MainPackage = "main"

// Expression is a classified snippet. The set of implementations is closed: only the
// variants declared in this package satisfy it.
type Expression interface {
	// Source returns the trimmed snippet text the expression was built from.
	Source() string

	// Kind returns the variant tag.
	Kind() Kind

	isExpression()
}

// Keyed is implemented by expressions that carry their own result key.
type Keyed interface {
	Expression
	Key() string
}

// Import is an import declaration, e.g. `import "strings"` or `import str "strings"`.
type Import struct {
	source string
	name   string
	path   string
}

// NewImport builds an Import from an already parsed name and path.
func NewImport(source, name, path string) *Import {
	return &Import{source: source, name: name, path: path}
}

func (e *Import) Source() string { return e.source }
func (e *Import) Kind() Kind     { return KindImport }
func (e *Import) isExpression()  {}

// Path returns the quoted-less import path.
func (e *Import) Path() string { return e.path }

// Name returns the explicit package name (alias, "." or "_"), or "" when none was given.
func (e *Import) Name() string { return e.name }

func (e *Import) String() string {
	if e.name == "" {
		return fmt.Sprintf("Import{%q}", e.path)
	}
	return fmt.Sprintf("Import{%s %q}", e.name, e.path)
}

// Type is a type declaration, e.g. `type Point struct{ X, Y int }`.
type Type struct {
	source string
	name   string
	pkg    string
	body   string
}

// NewType builds a Type declared in the main package.
func NewType(source, name, body string) *Type {
	return &Type{source: source, name: name, pkg: MainPackage, body: body}
}

func (e *Type) Source() string { return e.source }
func (e *Type) Kind() Kind     { return KindType }
func (e *Type) isExpression()  {}

// Name returns the declared type name.
func (e *Type) Name() string { return e.name }

// Package returns the package the type is declared in.
func (e *Type) Package() string { return e.pkg }

// Body returns everything after the type name (type parameters and the type itself).
func (e *Type) Body() string { return e.body }

// CanonicalName returns the package qualified name, e.g. "main.Point".
func (e *Type) CanonicalName() string { return e.pkg + "." + e.name }

func (e *Type) String() string { return fmt.Sprintf("Type{%s}", e.CanonicalName()) }

// Method is a function or method declaration.
type Method struct {
	source    string
	name      string
	receiver  string
	signature string
	body      string
}

// NewMethod builds a Method. receiver is the receiver base type name, or "" for a plain function.
func NewMethod(source, name, receiver, signature, body string) *Method {
	return &Method{source: source, name: name, receiver: receiver, signature: signature, body: body}
}

func (e *Method) Source() string { return e.source }
func (e *Method) Kind() Kind     { return KindMethod }
func (e *Method) isExpression()  {}

// Name returns the function name, qualified by the receiver type for methods ("Point.Norm").
func (e *Method) Name() string {
	if e.receiver == "" {
		return e.name
	}
	return e.receiver + "." + e.name
}

// Receiver returns the receiver base type name, or "" for plain functions.
func (e *Method) Receiver() string { return e.receiver }

// Signature returns the declaration up to the opening brace of the body.
func (e *Method) Signature() string { return e.signature }

// Body returns the function body including its braces.
func (e *Method) Body() string { return e.body }

func (e *Method) String() string { return fmt.Sprintf("Method{%s}", e.Name()) }

// AssignmentWithType is a variable declaration with an explicit type, e.g. `var x int = 3`.
// The right hand side may be empty (`var x int`), which declares the zero value.
type AssignmentWithType struct {
	source       string
	name         string
	declaredType string
	rhs          string
}

// NewAssignmentWithType builds an AssignmentWithType.
func NewAssignmentWithType(source, name, declaredType, rhs string) *AssignmentWithType {
	return &AssignmentWithType{source: source, name: name, declaredType: declaredType, rhs: rhs}
}

func (e *AssignmentWithType) Source() string { return e.source }
func (e *AssignmentWithType) Kind() Kind     { return KindAssignmentWithType }
func (e *AssignmentWithType) isExpression()  {}

// Key returns the variable name, used as the result key.
func (e *AssignmentWithType) Key() string { return e.name }

// DeclaredType returns the type exactly as written in the snippet.
func (e *AssignmentWithType) DeclaredType() string { return e.declaredType }

// Value returns the right hand side, or "" when the snippet declares the zero value.
func (e *AssignmentWithType) Value() string { return e.rhs }

func (e *AssignmentWithType) String() string {
	return fmt.Sprintf("AssignmentWithType{%s %s}", e.name, e.declaredType)
}

// Assignment is an untyped assignment: `x := 3`, `var x = 3`, or `x = 4`.
type Assignment struct {
	source string
	name   string
	rhs    string
	define bool
}

// NewAssignment builds an Assignment. define reports whether the snippet declares a new
// variable (`:=` or `var`) rather than assigning to an existing one.
func NewAssignment(source, name, rhs string, define bool) *Assignment {
	return &Assignment{source: source, name: name, rhs: rhs, define: define}
}

func (e *Assignment) Source() string { return e.source }
func (e *Assignment) Kind() Kind     { return KindAssignment }
func (e *Assignment) isExpression()  {}

// Key returns the variable name, used as the result key.
func (e *Assignment) Key() string { return e.name }

// Value returns the right hand side.
func (e *Assignment) Value() string { return e.rhs }

// Defines reports whether the assignment declares a new variable.
func (e *Assignment) Defines() bool { return e.define }

func (e *Assignment) String() string { return fmt.Sprintf("Assignment{%s}", e.name) }

// Statement is a snippet executed for its effects only.
type Statement struct {
	source string
}

// NewStatement wraps text as a Statement. The classifier never produces statements; they
// come from the evaluator's retry of values that fail to compile.
func NewStatement(source string) *Statement { return &Statement{source: source} }

func (e *Statement) Source() string { return e.source }
func (e *Statement) Kind() Kind     { return KindStatement }
func (e *Statement) isExpression()  {}

func (e *Statement) String() string { return "Statement{}" }

// Value is a snippet evaluated for the value it produces.
type Value struct {
	source string
}

// NewValue wraps text as a Value.
func NewValue(source string) *Value { return &Value{source: source} }

func (e *Value) Source() string { return e.source }
func (e *Value) Kind() Kind     { return KindValue }
func (e *Value) isExpression()  {}

func (e *Value) String() string { return "Value{}" }
