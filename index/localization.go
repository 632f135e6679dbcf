package index

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"

	"github.com/jomini-lang/ck3lsp/ast"
	"github.com/jomini-lang/ck3lsp/diag"
	"github.com/jomini-lang/ck3lsp/token"
)

// entryAt synthesizes a minimal ast.Entry carrying only a range, for
// symbols (like localization keys) the Indexer declares directly from a
// non-script grammar rather than from a parsed AST node.
func entryAt(start, end token.Pos) *ast.Entry {
	r := token.Range{Start: start, End: end}
	return &ast.Entry{Range: r, KeyRange: r}
}

var bom = []byte{0xEF, 0xBB, 0xBF}

// locKeyLine matches "  key:N? \"value\"" (the optional numeric version
// suffix after the colon is the localization format's revision marker).
var locKeyLine = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z_0-9.]*):\d*\s*"(.*)"\s*$`)

// scanLocalization implements the dedicated line-oriented localization
// grammar from §4.6: a mandatory UTF-8 BOM, a "<language>:" header line,
// then "  key:<version>? \"value\"" entries, one per line.
func (sc *Scanner) scanLocalization(uri string) ([]diag.Diagnostic, error) {
	src, err := sc.ws.ReadFile(uri)
	if err != nil {
		return nil, err
	}

	var out []diag.Diagnostic
	file := token.NewFile(uri, src)

	if !bytes.HasPrefix(src, bom) {
		out = append(out, diag.Diagnostic{
			Range:    token.Range{Start: file.Pos(0), End: file.Pos(0)},
			Severity: diag.Error,
			Code:     "CK3602",
			Message:  "localization file is missing its required UTF-8 byte-order mark",
		})
	}
	body := bytes.TrimPrefix(src, bom)

	sc.ix.Retract(uri)

	scanner := bufio.NewScanner(bytes.NewReader(body))
	offset := len(src) - len(body)
	sawHeader := false
	for scanner.Scan() {
		line := scanner.Text()
		lineStart := offset
		offset += len(line) + 1 // +1 for the newline scanner strips

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !sawHeader {
			sawHeader = true
			continue // the "<language>:" header line carries no key
		}
		m := locKeyLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key := m[1]
		keyStart := file.Pos(lineStart + strings.Index(line, key))
		keyEnd := keyStart.Add(len(key))
		sc.ix.Declare(string(KindLocalizationKey), key, entryAt(keyStart, keyEnd), uri)
	}
	return out, nil
}
