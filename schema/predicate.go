package schema

import "strings"

// FieldView is the minimal view a predicate needs of a block's fields: is
// a field present, and (for the single-valued case) what scalar text does
// it hold. The validator supplies this from the AST; schema itself stays
// AST-agnostic.
type FieldView interface {
	Has(field string) bool
	ScalarValue(field string) (string, bool)
}

// EvalPredicate evaluates the small predicate language used by `required:
// {if: ...}` and by cross-field rules: has(field), absent(field),
// value(field)==lit, joined with "and"/"or", and negated with a leading
// "not ". Malformed predicates evaluate to false rather than panicking;
// Load does not check predicate syntax, so this best-effort evaluator is
// the only place a predicate is interpreted.
func EvalPredicate(expr string, fv FieldView) bool {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return true
	}
	if parts := splitTop(expr, " or "); len(parts) > 1 {
		for _, p := range parts {
			if EvalPredicate(p, fv) {
				return true
			}
		}
		return false
	}
	if parts := splitTop(expr, " and "); len(parts) > 1 {
		for _, p := range parts {
			if !EvalPredicate(p, fv) {
				return false
			}
		}
		return true
	}
	if strings.HasPrefix(expr, "not ") {
		return !EvalPredicate(strings.TrimPrefix(expr, "not "), fv)
	}
	return evalTerm(expr, fv)
}

func splitTop(expr, sep string) []string {
	if !strings.Contains(expr, sep) {
		return []string{expr}
	}
	return strings.Split(expr, sep)
}

func evalTerm(term string, fv FieldView) bool {
	term = strings.TrimSpace(term)
	switch {
	case strings.HasPrefix(term, "has(") && strings.HasSuffix(term, ")"):
		field := term[len("has(") : len(term)-1]
		return fv.Has(field)
	case strings.HasPrefix(term, "absent(") && strings.HasSuffix(term, ")"):
		field := term[len("absent(") : len(term)-1]
		return !fv.Has(field)
	case strings.Contains(term, "=="):
		idx := strings.Index(term, "==")
		lhs, rhs := strings.TrimSpace(term[:idx]), strings.TrimSpace(term[idx+2:])
		rhs = strings.Trim(rhs, `"'`)
		if strings.HasPrefix(lhs, "value(") && strings.HasSuffix(lhs, ")") {
			field := lhs[len("value(") : len(lhs)-1]
			got, ok := fv.ScalarValue(field)
			return ok && got == rhs
		}
		return false
	default:
		return false
	}
}
