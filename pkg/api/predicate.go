package api

import (
	"fmt"
	"strconv"
	"strings"
)

// Operator compares a data field against a literal value.
type Operator string

const (
	OpEq         Operator = "eq"
	OpNeq        Operator = "neq"
	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpLt         Operator = "lt"
	OpLte        Operator = "lte"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"
)

// Predicate is a closed, structured condition evaluated against an
// instance's data map. A leaf predicate is a field/operator/value triple;
// composite predicates combine children with All (AND) or Any (OR).
//
// Predicates are plain data and are evaluated by a safe interpreter;
// author-supplied code is never executed.
type Predicate struct {
	Field    string   `json:"field,omitempty" yaml:"field,omitempty"`
	Operator Operator `json:"operator,omitempty" yaml:"operator,omitempty"`
	Value    any      `json:"value,omitempty" yaml:"value,omitempty"`

	All []Predicate `json:"all,omitempty" yaml:"all,omitempty"`
	Any []Predicate `json:"any,omitempty" yaml:"any,omitempty"`
}

// Evaluate applies the predicate to data. Missing fields are not an error:
// they compare as absent and fail every operator except neq.
func (p Predicate) Evaluate(data map[string]any) (bool, error) {
	if len(p.All) > 0 {
		for _, child := range p.All {
			ok, err := child.Evaluate(data)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}
	if len(p.Any) > 0 {
		for _, child := range p.Any {
			ok, err := child.Evaluate(data)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}

	if p.Field == "" {
		return false, fmt.Errorf("predicate: leaf without field")
	}

	actual, present := data[p.Field]
	if !present {
		return p.Operator == OpNeq, nil
	}

	switch p.Operator {
	case OpEq:
		return equal(actual, p.Value), nil
	case OpNeq:
		return !equal(actual, p.Value), nil
	case OpGt, OpGte, OpLt, OpLte:
		return ordered(actual, p.Value, p.Operator)
	case OpContains:
		return strings.Contains(asString(actual), asString(p.Value)), nil
	case OpStartsWith:
		return strings.HasPrefix(asString(actual), asString(p.Value)), nil
	case OpEndsWith:
		return strings.HasSuffix(asString(actual), asString(p.Value)), nil
	default:
		return false, fmt.Errorf("predicate: unknown operator %q", p.Operator)
	}
}

func equal(a, b any) bool {
	if fa, oka := asFloat(a); oka {
		if fb, okb := asFloat(b); okb {
			return fa == fb
		}
	}
	return asString(a) == asString(b)
}

func ordered(a, b any, op Operator) (bool, error) {
	fa, oka := asFloat(a)
	fb, okb := asFloat(b)
	if !oka || !okb {
		// Fall back to lexical ordering for non-numeric operands.
		sa, sb := asString(a), asString(b)
		return orderedCmp(strings.Compare(sa, sb), op), nil
	}
	switch {
	case fa > fb:
		return orderedCmp(1, op), nil
	case fa < fb:
		return orderedCmp(-1, op), nil
	default:
		return orderedCmp(0, op), nil
	}
}

func orderedCmp(cmp int, op Operator) bool {
	switch op {
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
