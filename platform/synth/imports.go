package synth

import (
	"path"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/robbyt/go-replkit/platform/expression"
	"github.com/robbyt/go-replkit/platform/history"
)

const (
	blankName = "_"
	dotName   = "."
)

var (
	qualifiedRe = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)`)
	mainQualRe  = regexp.MustCompile(`(^|[^A-Za-z0-9_./])main\.`)
)

type importSpec struct {
	name string
	path string
}

// packageName is the identifier the import binds in the file, "" for dot and blank imports.
func (s importSpec) packageName() string {
	switch s.name {
	case blankName, dotName:
		return ""
	case "":
		return AssumedPackageName(s.path)
	default:
		return s.name
	}
}

// blank keeps the package resolving in units that do not reference it; an unused named
// import does not compile.
func (s importSpec) blank() importSpec {
	return importSpec{name: blankName, path: s.path}
}

func (s importSpec) String() string {
	if s.name == "" {
		return strconv.Quote(s.path)
	}
	return s.name + " " + strconv.Quote(s.path)
}

// sessionImports returns the committed imports in order, without exact duplicates.
func sessionImports(hctx *history.Context) []importSpec {
	var out []importSpec
	seen := make(map[importSpec]bool)
	for e := range hctx.ExpressionsOfType(expression.KindImport) {
		imp := e.(*expression.Import)
		s := importSpec{name: imp.Name(), path: imp.Path()}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// AssumedPackageName guesses the package name of an import path from its last element:
// major version suffixes and a "go-" prefix are skipped, and the name stops at the first
// character that cannot appear in an identifier.
func AssumedPackageName(importPath string) string {
	base := path.Base(importPath)
	if strings.HasPrefix(base, "v") {
		if _, err := strconv.Atoi(base[1:]); err == nil {
			if dir := path.Dir(importPath); dir != "." {
				base = path.Base(dir)
			}
		}
	}
	base = strings.TrimPrefix(base, "go-")
	if i := strings.IndexFunc(base, notIdentifier); i >= 0 {
		base = base[:i]
	}
	return base
}

func notIdentifier(r rune) bool {
	return !(r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r))
}

// LocalType rewrites a reflected type name as it is spelled inside a unit, which is
// itself package main: "main.Point" becomes "Point", "[]*main.Point" becomes "[]*Point".
func LocalType(reflected string) string {
	return mainQualRe.ReplaceAllString(reflected, "$1")
}
