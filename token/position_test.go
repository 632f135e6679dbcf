package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilePositionASCII(t *testing.T) {
	content := []byte("type = character_event\ntitle = mytitle\n")
	f := NewFile("events/test.txt", content)
	f.AddLine(23) // start of line 2

	p := f.Pos(24) // the 'i' in "title", second line second column
	pos := f.Position(p)

	assert.Equal(t, "events/test.txt", pos.Filename)
	assert.Equal(t, 2, pos.Line)
	assert.Equal(t, 2, pos.Column)
}

func TestFilePositionUTF16Surrogate(t *testing.T) {
	// U+1F600 (an astral character) takes 2 UTF-16 code units; the byte
	// column for the character after it must therefore jump by 2, not 1.
	content := []byte("a😀b")
	f := NewFile("x.txt", content)

	pB := f.Pos(5) // byte offset of 'b' (1 + 4-byte emoji)
	pos := f.Position(pB)

	assert.Equal(t, 1, pos.Line)
	assert.Equal(t, 4, pos.Column) // 'a'=1, emoji=2,3 (surrogate pair), 'b'=4
}

func TestPosCompareOrdersNoPosLast(t *testing.T) {
	f := NewFile("x.txt", []byte("abc"))
	a := f.Pos(0)
	b := f.Pos(2)

	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 1, a.Compare(NoPos))
	assert.Equal(t, -1, NoPos.Compare(a))
	assert.Equal(t, 0, NoPos.Compare(NoPos))
}

func TestRangeContainsIsHalfOpen(t *testing.T) {
	f := NewFile("x.txt", []byte("0123456789"))
	r := Range{Start: f.Pos(2), End: f.Pos(5)}

	assert.True(t, r.Contains(f.Pos(2)), "start is inclusive")
	assert.True(t, r.Contains(f.Pos(4)))
	assert.False(t, r.Contains(f.Pos(5)), "end is exclusive")
	assert.False(t, r.Contains(f.Pos(1)))
}

func TestRangeEncloses(t *testing.T) {
	f := NewFile("x.txt", []byte("0123456789"))
	outer := Range{Start: f.Pos(0), End: f.Pos(10)}
	inner := Range{Start: f.Pos(2), End: f.Pos(5)}

	assert.True(t, outer.Encloses(inner))
	assert.False(t, inner.Encloses(outer))
}

func TestFilePosClampsToBounds(t *testing.T) {
	f := NewFile("x.txt", []byte("abc"))
	require.Equal(t, 0, f.Offset(f.Pos(-5)))
	require.Equal(t, 3, f.Offset(f.Pos(999)))
}
