package loom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderAt(t *testing.T, line *Line, visitCount uint32, data *FollowData) string {
	t.Helper()
	text, err := line.Render(visitCount, data)
	require.NoError(t, err)
	return text
}

func TestSequenceAlternativeSticksOnLast(t *testing.T) {
	data := NewFollowData()
	chunk := LineChunk{
		Kind:    ChunkAlt,
		AltKind: AltSequence,
		Options: [][]LineChunk{
			{{Kind: ChunkText, Text: "one"}},
			{{Kind: ChunkText, Text: "two"}},
		},
	}
	line := &Line{Chunks: []LineChunk{chunk}}
	assert.Equal(t, "one", renderAt(t, line, 1, data))
	assert.Equal(t, "two", renderAt(t, line, 2, data))
	assert.Equal(t, "two", renderAt(t, line, 5, data))
}

func TestOnceOnlyAlternativeRendersEmptyAfterExhausted(t *testing.T) {
	data := NewFollowData()
	chunk := LineChunk{
		Kind:    ChunkAlt,
		AltKind: AltOnce,
		Options: [][]LineChunk{
			{{Kind: ChunkText, Text: "one"}},
			{{Kind: ChunkText, Text: "two"}},
		},
	}
	line := &Line{Chunks: []LineChunk{chunk}}
	assert.Equal(t, "one", renderAt(t, line, 1, data))
	assert.Equal(t, "two", renderAt(t, line, 2, data))
	assert.Equal(t, "", renderAt(t, line, 3, data))
}

func TestCycleAlternativeWraps(t *testing.T) {
	data := NewFollowData()
	chunk := LineChunk{
		Kind:    ChunkAlt,
		AltKind: AltCycle,
		Options: [][]LineChunk{
			{{Kind: ChunkText, Text: "one"}},
			{{Kind: ChunkText, Text: "two"}},
		},
	}
	line := &Line{Chunks: []LineChunk{chunk}}
	assert.Equal(t, "one", renderAt(t, line, 1, data))
	assert.Equal(t, "two", renderAt(t, line, 2, data))
	assert.Equal(t, "one", renderAt(t, line, 3, data))
}

func TestConditionalChunkRendersIfOrElse(t *testing.T) {
	data := NewFollowData()
	data.Variables["torch"] = NewBool(true)
	cond, err := ParseConditionText("torch")
	require.NoError(t, err)
	chunk := LineChunk{
		Kind:       ChunkConditional,
		Cond:       cond,
		IfChunks:   []LineChunk{{Kind: ChunkText, Text: "lit"}},
		ElseChunks: []LineChunk{{Kind: ChunkText, Text: "dark"}},
	}
	line := &Line{Chunks: []LineChunk{chunk}}
	assert.Equal(t, "lit", renderAt(t, line, 1, data))

	data.Variables["torch"] = NewBool(false)
	assert.Equal(t, "dark", renderAt(t, line, 1, data))
}

func TestEmbeddedExpressionRendersVariable(t *testing.T) {
	data := NewFollowData()
	data.Variables["count"] = NewInt(3)
	expr, err := ParseExpressionText("count + 2")
	require.NoError(t, err)
	line := &Line{Chunks: []LineChunk{
		{Kind: ChunkText, Text: "You have "},
		{Kind: ChunkExpr, Expr: expr},
		{Kind: ChunkText, Text: " coins."},
	}}
	assert.Equal(t, "You have 5 coins.", renderAt(t, line, 1, data))

	data.Variables["count"] = NewFloat(1.5)
	assert.Equal(t, "You have 3.5 coins.", renderAt(t, line, 1, data))
}

func TestGlueJoinsAdjacentLines(t *testing.T) {
	var buf []Line
	appendRendered(&buf, "Hello", &Line{GlueAfter: true})
	appendRendered(&buf, " World", &Line{})
	require.Len(t, buf, 1)
	assert.Equal(t, "Hello World\n", buf[0].Text())
}

func TestNoGlueKeepsLinesSeparate(t *testing.T) {
	var buf []Line
	appendRendered(&buf, "Hello", &Line{})
	appendRendered(&buf, "World", &Line{})
	require.Len(t, buf, 2)
	assert.Equal(t, "Hello\n", buf[0].Text())
	assert.Equal(t, "World\n", buf[1].Text())
}
