// Package parser turns Jomini script source into a position-annotated
// ast.File. Parsing is total: every input produces a root block, and
// syntax errors resynchronize at brace boundaries rather than aborting, so
// downstream phases can still inspect the rest of the document.
package parser

import (
	"github.com/jomini-lang/ck3lsp/ast"
	"github.com/jomini-lang/ck3lsp/perrors"
	"github.com/jomini-lang/ck3lsp/scanner"
	"github.com/jomini-lang/ck3lsp/token"
)

// maxBlockDepth caps nesting to guard against pathological or malicious
// input; scripts never legitimately nest this deep.
const maxBlockDepth = 256

// KnownKeyword reports whether s is a recognized field/effect/trigger
// name. The parser uses it only for merged-identifier splitting (CK3345);
// passing nil disables that heuristic entirely.
type KnownKeyword func(s string) bool

// Options configures a single parse.
type Options struct {
	// IsKnownKeyword enables the merged-identifier recovery heuristic.
	// Splitting is only ever applied when both halves are independently
	// known keywords — never speculatively.
	IsKnownKeyword KnownKeyword
}

type parser struct {
	file    *token.File
	scan    scanner.Scanner
	errs    perrors.List
	opts    Options
	comments []ast.Comment

	pos token.Pos
	tok token.Token
	lit string

	// buffered holds one already-scanned lookahead token that pushback
	// displaced from pos/tok/lit; next drains it before pulling a fresh
	// token from the scanner. At most one token is ever buffered, since
	// merged-identifier splitting only ever pushes back once per
	// occurrence and the synthesized second half is never itself split.
	buffered bool
	bufPos   token.Pos
	bufTok   token.Token
	bufLit   string
}

// Parse tokenizes and parses src, returning the resulting AST and any
// syntax diagnostics gathered along the way. The returned file's Root is
// never nil, even when errs is non-empty.
func Parse(filename string, src []byte, opts Options) (*ast.File, perrors.List) {
	tf := token.NewFile(filename, src)
	p := &parser{file: tf, opts: opts}
	p.scan.Init(tf, src, p.onScanError)
	p.next()

	root := &ast.Block{}
	root.Entries = p.parseEntries(tf.Pos(0), 0, true)
	root.BlkRange = token.Range{Start: tf.Pos(0), End: p.pos}

	p.errs.Sort()
	return &ast.File{Filename: filename, Root: root, Comments: p.comments}, p.errs
}

func (p *parser) onScanError(pos token.Pos, msg string) {
	p.errs.Add(pos, "CK3000", "%s", msg)
}

// next advances to the next non-comment token, recording comments as they
// are seen.
func (p *parser) next() {
	if p.buffered {
		p.buffered = false
		p.pos, p.tok, p.lit = p.bufPos, p.bufTok, p.bufLit
		return
	}
	for {
		pos, tok, lit := p.scan.Scan()
		if tok == token.COMMENT {
			end := pos.Add(len(lit))
			p.comments = append(p.comments, ast.Comment{Text: lit, Range: token.Range{Start: pos, End: end}})
			continue
		}
		p.pos, p.tok, p.lit = pos, tok, lit
		return
	}
}

// parseEntries parses a sequence of entries until RBRACE (when nested) or
// EOF (at top level). openPos is the position of the opening brace (or the
// file start, for the root), used to report unterminated blocks.
func (p *parser) parseEntries(openPos token.Pos, depth int, top bool) []*ast.Entry {
	var entries []*ast.Entry
	for {
		switch p.tok {
		case token.EOF:
			if !top {
				p.errs.Add(openPos, "CK3002", "unclosed block: missing '}'")
			}
			return entries
		case token.RBRACE:
			if top {
				// stray '}' at top level: report and skip it, staying in
				// the enclosing (root) block.
				p.errs.Add(p.pos, "CK3001", "unexpected '}' with no matching '{'")
				p.next()
				continue
			}
			return entries
		}
		e := p.parseEntry(depth)
		if e != nil {
			entries = append(entries, e)
		}
	}
}

// parseEntry parses one "key [operator value]" statement, or a bare scalar
// acting as a list element.
func (p *parser) parseEntry(depth int) *ast.Entry {
	startPos := p.pos

	key, keyRange, tok, lit := p.consumeScalarLike()
	if key == "" {
		// Nothing recognizable here (e.g. a stray operator); skip the
		// token to guarantee forward progress and keep resynchronizing.
		p.errs.Add(startPos, "CK3003", "unexpected token %q", p.lit)
		p.next()
		return nil
	}

	if split := p.maybeSplitMergedIdentifier(key, keyRange); split != nil {
		return split
	}

	if !p.tok.IsOperator() {
		// Bare scalar: this is a list element, not a key=value pair.
		return &ast.Entry{
			Key:         key,
			KeyRange:    keyRange,
			Operator:    token.EQ,
			BareElement: true,
			Value:       &ast.Scalar{Text: lit, Tok: tok, ValRange: keyRange},
			Range:       keyRange,
		}
	}

	op := p.tok
	p.next()

	val := p.parseValue(depth)
	return &ast.Entry{
		Key:      key,
		KeyRange: keyRange,
		Operator: op,
		Value:    val,
		Range:    token.Range{Start: keyRange.Start, End: val.Range().End},
	}
}

// consumeScalarLike consumes the current token if it is an identifier,
// number, or string and returns its text and range; otherwise returns an
// empty key without advancing.
func (p *parser) consumeScalarLike() (key string, keyRange token.Range, tok token.Token, lit string) {
	switch p.tok {
	case token.IDENT, token.INT, token.FLOAT, token.STRING:
		tok, lit = p.tok, p.lit
		start := p.pos
		end := p.pos.Add(len(lit))
		keyRange = token.Range{Start: start, End: end}
		p.next()
		return lit, keyRange, tok, lit
	default:
		return "", token.Range{}, token.ILLEGAL, ""
	}
}

// parseValue parses the value following an operator: either a nested
// block or a scalar.
func (p *parser) parseValue(depth int) ast.Value {
	if p.tok == token.LBRACE {
		return p.parseBlock(depth)
	}
	start := p.pos
	tok, lit := p.tok, p.lit
	end := start.Add(len(lit))
	if tok == token.IDENT || tok == token.INT || tok == token.FLOAT || tok == token.STRING {
		p.next()
	} else {
		p.errs.Add(start, "CK3004", "expected a value, found %q", lit)
		// do not advance past RBRACE/EOF so the caller's loop terminates
		if tok != token.RBRACE && tok != token.EOF {
			p.next()
		}
	}
	return &ast.Scalar{Text: lit, Tok: tok, ValRange: token.Range{Start: start, End: end}}
}

// parseBlock parses a `{ ... }` value, choosing Block or List representation
// depending on whether any child looks like a key=value pair.
func (p *parser) parseBlock(depth int) ast.Value {
	openPos := p.pos
	p.next() // consume '{'

	if depth+1 > maxBlockDepth {
		p.errs.Add(openPos, "CK3005", "block nesting exceeds maximum depth (%d)", maxBlockDepth)
		// Skip to the matching close as best-effort resync, without
		// recursing further.
		for p.tok != token.RBRACE && p.tok != token.EOF {
			p.next()
		}
		end := p.pos
		if p.tok == token.RBRACE {
			end = p.pos.Add(1)
			p.next()
		}
		return &ast.Block{BlkRange: token.Range{Start: openPos, End: end}}
	}

	entries := p.parseEntries(openPos, depth+1, false)

	end := p.pos
	if p.tok == token.RBRACE {
		end = p.pos.Add(1)
		p.next()
	}

	blkRange := token.Range{Start: openPos, End: end}

	if allBareScalars(entries) {
		scalars := make([]*ast.Scalar, len(entries))
		for i, e := range entries {
			scalars[i] = e.Value.(*ast.Scalar)
		}
		return &ast.List{Scalars: scalars, LstRange: blkRange}
	}
	return &ast.Block{Entries: entries, BlkRange: blkRange}
}

func allBareScalars(entries []*ast.Entry) bool {
	if len(entries) == 0 {
		return false // an empty block is a Block, not an (empty) List
	}
	for _, e := range entries {
		if !e.BareElement {
			return false
		}
	}
	return true
}

// maybeSplitMergedIdentifier detects the case where two recognized
// keywords were written with no separating whitespace (a common CK3
// scripting typo) and splits them into two sibling entries. The policy is
// conservative: both halves must be independently known keywords, or the
// identifier is left intact.
func (p *parser) maybeSplitMergedIdentifier(key string, keyRange token.Range) *ast.Entry {
	if p.opts.IsKnownKeyword == nil || p.tok.IsOperator() {
		return nil
	}
	if p.opts.IsKnownKeyword(key) {
		return nil // already a known keyword, nothing to split
	}
	for i := 1; i < len(key); i++ {
		first, second := key[:i], key[i:]
		if p.opts.IsKnownKeyword(first) && p.opts.IsKnownKeyword(second) {
			p.errs.Add(keyRange.Start, "CK3345", "merged identifier %q split into %q and %q", key, first, second)
			mid := keyRange.Start.Add(i)
			firstRange := token.Range{Start: keyRange.Start, End: mid}
			secondRange := token.Range{Start: mid, End: keyRange.End}
			// Only the first half becomes this entry; the second half is
			// pushed back so the caller's loop picks it up as the next
			// entry's key, as if it had been scanned normally.
			p.pushback(second, secondRange)
			return &ast.Entry{
				Key:         first,
				KeyRange:    firstRange,
				Operator:    token.EQ,
				BareElement: true,
				Value:       &ast.Scalar{Text: first, Tok: token.IDENT, ValRange: firstRange},
				Range:       firstRange,
			}
		}
	}
	return nil
}

// pushback re-queues a synthesized identifier token as the current token.
// Whatever token was already current (the real lookahead consumeScalarLike
// scanned past the merged identifier) is buffered rather than discarded,
// so next returns it once the synthesized token has been consumed.
func (p *parser) pushback(lit string, r token.Range) {
	p.bufPos, p.bufTok, p.bufLit = p.pos, p.tok, p.lit
	p.buffered = true
	p.pos, p.tok, p.lit = r.Start, token.IDENT, lit
}
