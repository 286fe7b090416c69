package preprocess

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessAddsHeader(t *testing.T) {
	p := New(1000)
	out, err := p.Process("package main\n", "main.go", "cmd/app/main.go", "go")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "File: main.go (Language: go)\nPath: cmd/app/main.go\n\n"))
	assert.Contains(t, out, "package main")
}

func TestProcessRejectsEmpty(t *testing.T) {
	p := New(1000)
	_, err := p.Process("  \n\t ", "a.go", "a.go", "go")
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestBinaryHeuristic(t *testing.T) {
	// Crafted string with >30% control characters is rejected.
	binary := strings.Repeat("\x00\x01ab", 10)
	assert.True(t, IsBinary(binary))

	_, err := New(1000).Process(binary, "blob.bin", "blob.bin", "binary")
	assert.ErrorIs(t, err, ErrBinaryContent)

	// A normal source file with <30% control characters is accepted.
	source := "func main() {\n\tfmt.Println(\"hi\")\n}\n"
	assert.False(t, IsBinary(source))

	// Tabs, CR, and LF do not count as control characters.
	assert.False(t, IsBinary("\t\t\r\n\t\t\r\n"))
}

func TestNormalizeLineEndings(t *testing.T) {
	assert.Equal(t, "a\nb\nc\n", NormalizeLineEndings("a\r\nb\rc\n"))
}

func TestTruncatePrefersLineBoundary(t *testing.T) {
	// 100-char budget: lines of 10 chars put a boundary 9 chars before the
	// limit, within the 10% loss budget.
	line := strings.Repeat("x", 9) + "\n"
	content := strings.Repeat(line, 20)
	out := New(100).truncate(content)

	assert.LessOrEqual(t, len(out), 100)
	assert.False(t, strings.HasSuffix(out, "x\nx"), "cut should land on a line boundary")
	assert.Equal(t, byte('x'), out[len(out)-1])
	assert.Zero(t, len(out)%10-9, "cut lands at end of a full line")
}

func TestTruncateHardCutWhenBoundaryTooFar(t *testing.T) {
	// Single long line: no boundary within 10%, so hard cut at the limit.
	content := strings.Repeat("y", 500)
	out := New(100).truncate(content)
	assert.Len(t, out, 100)
}

func TestTruncateNoopUnderBudget(t *testing.T) {
	content := "short\n"
	assert.Equal(t, content, New(100).truncate(content))
}
