package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineButtonsNPerRow(t *testing.T) {
	btns := []InlineBtn{
		{Text: "a", Unique: "x.a"},
		{Text: "b", Unique: "x.b", Data: "1"},
		{Text: "c", Unique: "x.c"},
	}
	m := InlineButtonsNPerRow(btns, 2)
	require.Len(t, m.InlineKeyboard, 2)
	assert.Len(t, m.InlineKeyboard[0], 2)
	assert.Len(t, m.InlineKeyboard[1], 1)
	assert.Equal(t, "\fx.b|1", m.InlineKeyboard[0][1].Data)
	assert.Equal(t, "\fx.c", m.InlineKeyboard[1][0].Data)
}

func TestInlineButtonsRowsSkipsEmpty(t *testing.T) {
	m := InlineButtonsRows(nil, []InlineBtn{{Text: "a", Unique: "a"}}, []InlineBtn{})
	require.Len(t, m.InlineKeyboard, 1)
	assert.Equal(t, "a", m.InlineKeyboard[0][0].Text)
}

func TestChunkOnePerRow(t *testing.T) {
	rows := Chunk([]InlineBtn{{Text: "a"}, {Text: "b"}}, 0)
	assert.Len(t, rows, 2)
	assert.Empty(t, Chunk(nil, 3))
}
