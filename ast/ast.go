// Package ast defines the Jomini abstract syntax tree. The tree is
// deliberately uniform: every node is an Entry, and Entry.Value is a closed
// tagged union (Scalar, Block, or List) rather than an open node hierarchy,
// so traversal is a single exhaustive type switch rather than dynamic
// dispatch across node types.
package ast

import "github.com/jomini-lang/ck3lsp/token"

// Entry is a single "key operator value" statement, or a bare scalar
// standing in for a list element (in which case Key holds the scalar text
// and Operator is implicitly EQ).
type Entry struct {
	Key         string
	KeyRange    token.Range
	Operator    token.Token // token.EQ when absent in source
	Value       Value
	Range       token.Range
	BareElement bool // true when this Entry is a bare list element, not key=value
}

// Value is the closed set of shapes an Entry's value can take.
type Value interface {
	valueNode()
	Range() token.Range
}

// Scalar is a leaf value: an identifier, number, string, yes/no, or scope
// reference. Its textual form is preserved verbatim; interpretation (is it
// a number, a boolean, a scope chain) is left to later phases since it is
// context-dependent in Jomini script.
type Scalar struct {
	Text    string
	Tok     token.Token // token.IDENT, token.INT, token.FLOAT, or token.STRING
	ValRange token.Range
}

func (*Scalar) valueNode()             {}
func (s *Scalar) Range() token.Range   { return s.ValRange }

// Block is an ordered list of child entries enclosed in { }. Order is
// significant: it drives field-order style rules and last-write-wins
// duplicate semantics.
type Block struct {
	Entries  []*Entry
	BlkRange token.Range
}

func (*Block) valueNode()           {}
func (b *Block) Range() token.Range { return b.BlkRange }

// List is a bare sequence of scalars, used for enum-like lists such as
// `potential_precedence = { diplomacy prowess }`.
type List struct {
	Scalars  []*Scalar
	LstRange token.Range
}

func (*List) valueNode()           {}
func (l *List) Range() token.Range { return l.LstRange }

// File is the parsed result of one document: a synthetic, keyless root
// Block plus the comments encountered while scanning it.
type File struct {
	Filename string
	Root     *Block
	Comments []Comment
}

// Comment is a retained comment, indexed by byte offset so editor features
// (hover, folding) can look them up without the parser attaching them to
// specific nodes.
type Comment struct {
	Text  string
	Range token.Range
}

// Path is the ancestor chain of entries enclosing some position, returned
// by NodeAt. Path[0] is the outermost top-level entry containing the
// position; Path[len-1] is the innermost entry. The path is empty when
// the position lies in no entry.
type Path []*Entry

// Innermost returns the last (most specific) entry in the path, or nil if
// the path is empty.
func (p Path) Innermost() *Entry {
	if len(p) == 0 {
		return nil
	}
	return p[len(p)-1]
}
