package expression

import (
	"regexp"
	"strings"
)

const (
	ident      = `[A-Za-z_][A-Za-z0-9_]*`
	blankIdent = "_"
)

var (
	importRe = regexp.MustCompile(
		`^import\s+(?:(` + ident + `|\.)\s+)?(?:"([^"\s]+)"|` + "`([^`\\s]+)`" + `)$`,
	)
	typeRe = regexp.MustCompile(`(?s)^type\s+(` + ident + `)\b\s*(\S.*)$`)
	funcRe = regexp.MustCompile(
		`(?s)^func\s*(?:\(\s*(?:` + ident + `\s+)?\*?\s*(` + ident + `)(?:\[[^\]]*\])?\s*\)\s*)?(` +
			ident + `)\s*(?:\[[^\]]*\])?\s*\(.*\}$`,
	)
	typedVarRe = regexp.MustCompile(`(?s)^var\s+(` + ident + `)\s+([^=:\s][^=]*?)\s*(?:=\s*(.+))?$`)
	assignRe   = regexp.MustCompile(`(?s)^(var\s+)?(` + ident + `)\s*(:=|=)\s*(.+)$`)
)

// Pattern is one entry of the ordered classification table.
type Pattern struct {
	Kind  Kind
	Match func(text string) (Expression, bool)
}

// Patterns is the ordered classification table. Classify returns the first match, so a
// snippet that satisfies more than one pattern resolves to the earliest entry. Value is
// the fallback and always matches.
var Patterns = []Pattern{
	{Kind: KindImport, Match: matchImport},
	{Kind: KindType, Match: matchType},
	{Kind: KindMethod, Match: matchMethod},
	{Kind: KindAssignmentWithType, Match: matchAssignmentWithType},
	{Kind: KindAssignment, Match: matchAssignment},
	{Kind: KindValue, Match: matchValue},
}

// Classify turns snippet text into exactly one Expression. It has no side effects.
func Classify(text string) Expression {
	text = normalize(text)
	for _, p := range Patterns {
		if expr, ok := p.Match(text); ok {
			return expr
		}
	}
	return NewValue(text)
}

func normalize(text string) string {
	text = strings.TrimSpace(text)
	for strings.HasSuffix(text, ";") {
		text = strings.TrimSpace(strings.TrimSuffix(text, ";"))
	}
	return text
}

func matchImport(text string) (Expression, bool) {
	m := importRe.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	path := m[2]
	if path == "" {
		path = m[3]
	}
	return NewImport(text, m[1], path), true
}

func matchType(text string) (Expression, bool) {
	m := typeRe.FindStringSubmatch(text)
	if m == nil || m[1] == blankIdent {
		return nil, false
	}
	return NewType(text, m[1], strings.TrimSpace(m[2])), true
}

func matchMethod(text string) (Expression, bool) {
	m := funcRe.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	open := bodyStart(text)
	if open < 0 {
		return nil, false
	}
	signature := strings.TrimSpace(text[:open])
	return NewMethod(text, m[2], m[1], signature, text[open:]), true
}

func matchAssignmentWithType(text string) (Expression, bool) {
	m := typedVarRe.FindStringSubmatch(text)
	if m == nil || m[1] == blankIdent {
		return nil, false
	}
	return NewAssignmentWithType(text, m[1], strings.TrimSpace(m[2]), strings.TrimSpace(m[3])), true
}

func matchAssignment(text string) (Expression, bool) {
	m := assignRe.FindStringSubmatch(text)
	if m == nil || m[2] == blankIdent {
		return nil, false
	}
	isVar := m[1] != ""
	op := m[3]
	rhs := strings.TrimSpace(m[4])
	// "x == y" is a comparison and "var x := y" is not Go.
	if strings.HasPrefix(rhs, "=") || (isVar && op == ":=") {
		return nil, false
	}
	return NewAssignment(text, m[2], rhs, isVar || op == ":="), true
}

func matchValue(text string) (Expression, bool) {
	return NewValue(text), true
}

// bodyStart finds the brace that opens the function body: the one matching the final
// closing brace. Braces inside string, rune and raw string literals are skipped.
func bodyStart(text string) int {
	var stack []int
	opened := -1
	for i := 0; i < len(text); i++ {
		switch c := text[i]; c {
		case '"', '\'':
			i = skipQuoted(text, i, c)
		case '`':
			if end := strings.IndexByte(text[i+1:], '`'); end >= 0 {
				i += end + 1
			} else {
				return -1
			}
		case '{':
			stack = append(stack, i)
		case '}':
			if len(stack) == 0 {
				return -1
			}
			opened = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) != 0 {
		return -1
	}
	return opened
}

func skipQuoted(text string, start int, quote byte) int {
	for i := start + 1; i < len(text); i++ {
		switch text[i] {
		case '\\':
			i++
		case quote:
			return i
		}
	}
	return len(text)
}
