package validate

import "github.com/jomini-lang/ck3lsp/ast"

// blockView adapts an *ast.Block to schema.FieldView so predicates can be
// evaluated without the schema package knowing about the AST.
type blockView struct {
	blk *ast.Block
}

func (v blockView) Has(field string) bool {
	for _, e := range v.blk.Entries {
		if e.Key == field {
			return true
		}
	}
	return false
}

func (v blockView) ScalarValue(field string) (string, bool) {
	for _, e := range v.blk.Entries {
		if e.Key != field {
			continue
		}
		if s, ok := e.Value.(*ast.Scalar); ok {
			return s.Text, true
		}
		return "", false
	}
	return "", false
}

// entriesNamed returns every entry in blk whose key matches name, in
// document order, for duplicate-policy and ordering checks.
func entriesNamed(blk *ast.Block, name string) []*ast.Entry {
	var out []*ast.Entry
	for _, e := range blk.Entries {
		if e.Key == name {
			out = append(out, e)
		}
	}
	return out
}
