// Package synth turns a classified snippet plus the session history into a complete,
// compilable `package main` unit.
//
// Two shapes are produced. A type declaration becomes a standalone unit named after the
// type, carrying the session imports and previously loaded types. Everything else becomes
// a runnable unit: the session's imports, types and functions, one package variable per
// bound result, a replEvaluate function holding the snippet, and a fixed prelude that
// reads bindings from stdin and writes one Envelope to stdout.
//
// Rendering is pure: identical inputs produce byte-identical source.
package synth

import (
	"bytes"
	"embed"
	"fmt"
	"go/format"
	"go/parser"
	"go/scanner"
	"go/token"
	"go/types"
	"strings"
	"text/template"
	"unicode"

	"github.com/robbyt/go-replkit/platform/expression"
	"github.com/robbyt/go-replkit/platform/history"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// preludeNames are the package aliases the runnable template imports itself.
var preludeNames = []string{"replJSON", "replFmt", "replOS", "replReflect"}

const (
	runnableTemplate = "runnable.go.tmpl"
	typeTemplate     = "type.go.tmpl"

	// AnyType is used for bindings whose type cannot be named inside a unit.
	AnyType = "any"
)

// Unit is a rendered compilation unit.
type Unit struct {
	// Name is the unit name: the type name for type units, otherwise the evaluation ID.
	Name string

	// Source is the formatted Go source of the single main.go file.
	Source []byte

	// Runnable reports whether the unit executes the snippet when run.
	Runnable bool
}

func (u *Unit) String() string {
	return fmt.Sprintf("synth.Unit{Name: %s, Runnable: %t}", u.Name, u.Runnable)
}

// binding is one restored result. Decode is the type its JSON is decoded into; it differs
// from Type when Type is an interface and the value is restored as its dynamic type.
type binding struct {
	Name   string
	Type   string
	Decode string
}

type unitData struct {
	Imports  []string
	Decls    []string
	Bindings []binding
	Body     string
}

// Render synthesizes the unit for expr against hctx. For type expressions unitName is
// ignored and the unit is named after the type.
func Render(hctx *history.Context, expr expression.Expression, unitName string) (*Unit, error) {
	if expr == nil {
		return nil, ErrNilExpression
	}
	if hctx == nil {
		hctx = history.NewContext()
	}

	if t, ok := expr.(*expression.Type); ok {
		return renderType(hctx, t)
	}
	return renderRunnable(hctx, expr, unitName)
}

func renderType(hctx *history.Context, t *expression.Type) (*Unit, error) {
	data := unitData{
		Decls: append(typeDecls(hctx), t.Source()),
	}
	src, err := execute(typeTemplate, data, sessionImports(hctx), nil)
	if err != nil {
		return nil, err
	}
	return &Unit{Name: t.Name(), Source: src}, nil
}

func renderRunnable(hctx *history.Context, expr expression.Expression, unitName string) (*Unit, error) {
	if unitName == "" {
		return nil, ErrEmptyUnitName
	}

	methods := methodDecls(hctx, expr)
	decls := typeDecls(hctx)
	declared := make(map[string]bool)
	for t := range hctx.ExpressionsOfType(expression.KindType) {
		declared[t.(*expression.Type).Name()] = true
	}
	for _, m := range methods {
		decls = append(decls, m.Source())
		if m.Receiver() == "" {
			declared[m.Name()] = true
		}
	}

	imports := sessionImports(hctx)
	var extra []importSpec
	if imp, ok := expr.(*expression.Import); ok {
		extra = append(extra, importSpec{name: blankName, path: imp.Path()})
	}

	data := unitData{
		Decls:    decls,
		Bindings: bindings(hctx, imports, declared),
		Body:     body(expr),
	}
	src, err := execute(runnableTemplate, data, imports, extra)
	if err != nil {
		return nil, err
	}
	return &Unit{Name: unitName, Source: src, Runnable: true}, nil
}

// execute renders the template twice: once without session imports to learn which
// package names the unit references, then with the pruned import list.
func execute(name string, data unitData, imports, extra []importSpec) ([]byte, error) {
	var probe bytes.Buffer
	if err := templates.ExecuteTemplate(&probe, name, data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTemplate, err)
	}

	data.Imports = pruneImports(probe.Bytes(), imports, extra)

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTemplate, err)
	}

	// Unformattable source is returned as is so the toolchain reports the syntax error.
	formatted, err := format.Source(buf.Bytes())
	if err != nil {
		return buf.Bytes(), nil
	}
	return formatted, nil
}

func body(expr expression.Expression) string {
	switch e := expr.(type) {
	case *expression.Value:
		return "replV := (" + trimTrailingComments(e.Source()) + ")\nreplCapture(replOut, replV)"
	case *expression.Statement:
		return e.Source()
	case *expression.Assignment:
		op := " = "
		if e.Defines() {
			op = " := "
		}
		return e.Key() + op + e.Value() + "\nreplCapture(replOut, " + e.Key() + ")"
	case *expression.AssignmentWithType:
		decl := "var " + e.Key() + " " + e.DeclaredType()
		if e.Value() != "" {
			decl += " = " + e.Value()
		}
		return decl + "\nreplCapture(replOut, " + e.Key() + ")"
	default:
		return ""
	}
}

// trimTrailingComments drops the comments after the last token of src, so a trailing
// line comment cannot swallow the closing parenthesis the value is wrapped in.
func trimTrailingComments(src string) string {
	fset := token.NewFileSet()
	file := fset.AddFile("", fset.Base(), len(src))

	var s scanner.Scanner
	s.Init(file, []byte(src), nil, scanner.ScanComments)

	cut := -1
	for {
		pos, tok, lit := s.Scan()
		if tok == token.EOF {
			break
		}
		switch {
		case tok == token.COMMENT:
			if cut < 0 {
				cut = file.Offset(pos)
			}
		case tok == token.SEMICOLON && lit == "\n":
			// inserted, not part of src
		default:
			cut = -1
		}
	}
	if cut < 0 {
		return src
	}
	if trimmed := strings.TrimRightFunc(src[:cut], unicode.IsSpace); trimmed != "" {
		return trimmed
	}
	return src
}

func typeDecls(hctx *history.Context) []string {
	var decls []string
	for t := range hctx.ExpressionsOfType(expression.KindType) {
		decls = append(decls, t.Source())
	}
	return decls
}

// methodDecls returns the functions visible to the next unit. A later definition of a
// name replaces the earlier one and takes its position at the end.
func methodDecls(hctx *history.Context, current expression.Expression) []*expression.Method {
	var all []*expression.Method
	for m := range hctx.ExpressionsOfType(expression.KindMethod) {
		all = append(all, m.(*expression.Method))
	}
	if m, ok := current.(*expression.Method); ok {
		all = append(all, m)
	}

	last := make(map[string]int, len(all))
	for i, m := range all {
		last[m.Name()] = i
	}
	out := make([]*expression.Method, 0, len(last))
	for i, m := range all {
		if last[m.Name()] == i {
			out = append(out, m)
		}
	}
	return out
}

func bindings(hctx *history.Context, imports []importSpec, declared map[string]bool) []binding {
	pkgs := make(map[string]bool, len(imports))
	for _, imp := range imports {
		if n := imp.packageName(); n != "" {
			pkgs[n] = true
		}
	}

	var out []binding
	for _, r := range hctx.Bindings() {
		if declared[r.Key] {
			continue
		}
		typ := LocalType(r.Value.Type)
		if !expressible(typ, pkgs) {
			typ = AnyType
		}
		decode := typ
		if r.Value.Interface {
			// JSON cannot fill an interface, so decode the dynamic type. When that
			// type cannot be named here the binding is left undeclared and a
			// reference to it fails to compile.
			decode = LocalType(r.Value.RuntimeType)
			if !expressible(decode, pkgs) {
				continue
			}
		}
		out = append(out, binding{Name: r.Key, Type: typ, Decode: decode})
	}
	return out
}

// unresolvedNames parses src and returns the identifiers the file does not declare,
// minus the predeclared ones. ok is false when src does not parse.
func unresolvedNames(src []byte) (names map[string]bool, ok bool) {
	f, err := parser.ParseFile(token.NewFileSet(), "main.go", src, parser.AllErrors)
	if err != nil {
		return nil, false
	}
	names = make(map[string]bool, len(f.Unresolved))
	for _, id := range f.Unresolved {
		if types.Universe.Lookup(id.Name) != nil {
			continue
		}
		names[id.Name] = true
	}
	return names, true
}

func pruneImports(probe []byte, imports, extra []importSpec) []string {
	used, ok := unresolvedNames(probe)

	known := make(map[string]bool, len(imports)+len(preludeNames))
	for _, n := range preludeNames {
		known[n] = true
	}
	for _, imp := range imports {
		if n := imp.packageName(); n != "" {
			known[n] = true
		}
	}
	dotUsed := false
	for n := range used {
		if !known[n] {
			dotUsed = true
			break
		}
	}

	var specs []string
	seen := make(map[string]bool)
	add := func(s importSpec) {
		line := s.String()
		if !seen[line] {
			seen[line] = true
			specs = append(specs, line)
		}
	}

	for _, imp := range imports {
		switch {
		case !ok:
			add(imp)
		case imp.name == blankName:
			add(imp)
		case imp.name == dotName:
			if dotUsed {
				add(imp)
			} else {
				add(imp.blank())
			}
		case used[imp.packageName()]:
			add(imp)
		default:
			add(imp.blank())
		}
	}
	for _, imp := range extra {
		add(imp)
	}
	return specs
}

func expressible(typ string, pkgs map[string]bool) bool {
	if typ == "" || strings.ContainsAny(typ, "/\"`") {
		return false
	}
	for _, m := range qualifiedRe.FindAllStringSubmatch(typ, -1) {
		if !pkgs[m[1]] || !token.IsExported(m[2]) {
			return false
		}
	}
	return true
}
