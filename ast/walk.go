package ast

import "github.com/jomini-lang/ck3lsp/token"

// Visitor is called once per Entry during a Walk, in preorder. If before
// returns false, the Entry's children (if it is a Block) are skipped, but
// after is still invoked for symmetry with push/pop-style visitors.
type Visitor struct {
	Before func(e *Entry) bool
	After  func(e *Entry)
}

// Walk traverses the tree rooted at root's entries in preorder, depth
// first, calling v.Before and v.After around each Entry. This is the single
// tree walk that the schema validator and generic rules share by composing
// their checks into one pass, rather than walking the AST once per
// validator.
func Walk(root *Block, v Visitor) {
	for _, e := range root.Entries {
		walkEntry(e, v)
	}
}

func walkEntry(e *Entry, v Visitor) {
	descend := true
	if v.Before != nil {
		descend = v.Before(e)
	}
	if descend {
		if blk, ok := e.Value.(*Block); ok {
			for _, child := range blk.Entries {
				walkEntry(child, v)
			}
		}
	}
	if v.After != nil {
		v.After(e)
	}
}

// NodeAt returns the ancestor chain from root to the innermost entry whose
// range contains pos. Ties (e.g. the position sits exactly on a brace
// shared by parent and child) favor the node whose key range contains pos,
// which matches what a user expects when hovering over a field name.
func NodeAt(root *Block, pos token.Pos) Path {
	var path Path
	var descend func(entries []*Entry)
	descend = func(entries []*Entry) {
		for _, e := range entries {
			if !e.Range.Contains(pos) {
				continue
			}
			path = append(path, e)
			if blk, ok := e.Value.(*Block); ok {
				descend(blk.Entries)
			}
			return
		}
	}
	descend(root.Entries)
	return path
}
