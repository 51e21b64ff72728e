package history

import (
	"encoding/json"
	"fmt"
	"go/token"
	"regexp"
	"strings"

	"github.com/robbyt/go-replkit/platform/expression"
)

// Value is the recorded outcome of a snippet that produced something.
type Value struct {
	// Type is the static Go type used when the value is declared in later units.
	Type string `json:"type"`

	// RuntimeType is the dynamic type reported by the guest (%T).
	RuntimeType string `json:"runtimeType,omitempty"`

	// Interface reports that Type is an interface type. Such a value is restored in later
	// units by decoding into RuntimeType.
	Interface bool `json:"interface,omitempty"`

	// JSON is the guest-side encoding of the value, nil when it could not be encoded.
	JSON json.RawMessage `json:"value,omitempty"`

	// Text is the guest-side %v rendering.
	Text string `json:"text"`
}

// Bindable reports whether later units can receive this value as a variable. A value of
// interface type is bindable only when its dynamic type can be named outside the package
// that created it; `error` values from errors.New are not.
func (v Value) Bindable() bool {
	if v.Type == "" || len(v.JSON) == 0 {
		return false
	}
	if v.Interface {
		return nameable(v.RuntimeType)
	}
	return true
}

var qualifiedRe = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)`)

func nameable(typ string) bool {
	if typ == "" || strings.ContainsAny(typ, "/\"`") {
		return false
	}
	for _, m := range qualifiedRe.FindAllStringSubmatch(typ, -1) {
		if !token.IsExported(m[2]) {
			return false
		}
	}
	return true
}

func (v Value) String() string {
	return fmt.Sprintf("%s(%s)", v.Type, v.Text)
}

// Result is a keyed value produced by one evaluation.
type Result struct {
	Key   string
	Value Value
}

func (r Result) String() string {
	return fmt.Sprintf("%s = %s", r.Key, r.Value)
}

// Evaluation is one committed snippet. A nil Result means the snippet produced nothing.
type Evaluation struct {
	ID         string
	Source     string
	Expression expression.Expression
	Result     *Result
}

// HasResult reports whether the evaluation produced a value.
func (e *Evaluation) HasResult() bool {
	return e != nil && e.Result != nil
}

func (e *Evaluation) String() string {
	if e.Result == nil {
		return fmt.Sprintf("Evaluation{%s %s}", e.ID, e.Expression.Kind())
	}
	return fmt.Sprintf("Evaluation{%s %s %s}", e.ID, e.Expression.Kind(), e.Result)
}
