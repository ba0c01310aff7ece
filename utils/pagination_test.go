package utils

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginate(t *testing.T) {
	tests := []struct {
		total, page, size int
		want              Page
	}{
		{0, 1, 20, Page{Number: 1, TotalPages: 1, Start: 0, End: 0}},
		{45, 1, 20, Page{Number: 1, TotalPages: 3, Start: 0, End: 20}},
		{45, 3, 20, Page{Number: 3, TotalPages: 3, Start: 40, End: 45}},
		{45, 9, 20, Page{Number: 3, TotalPages: 3, Start: 40, End: 45}},
		{45, 0, 20, Page{Number: 1, TotalPages: 3, Start: 0, End: 20}},
		{40, 2, 20, Page{Number: 2, TotalPages: 2, Start: 20, End: 40}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Paginate(tt.total, tt.page, tt.size))
	}
}

func TestPaginationComponents(t *testing.T) {
	assert.Nil(t, CreatePaginationComponents(1, 1, "list"))

	row, ok := CreatePaginationComponents(1, 3, "list", "u1")[0].(discordgo.ActionsRow)
	require.True(t, ok)
	prev := row.Components[0].(discordgo.Button)
	next := row.Components[1].(discordgo.Button)
	assert.True(t, prev.Disabled)
	assert.False(t, next.Disabled)
	assert.Equal(t, "list:2:u1", next.CustomID)

	page, args, err := ParsePaginationID(next.CustomID, "list")
	require.NoError(t, err)
	assert.Equal(t, 2, page)
	assert.Equal(t, []string{"u1"}, args)

	page, args, err = ParsePaginationID("list:3", "list")
	require.NoError(t, err)
	assert.Equal(t, 3, page)
	assert.Empty(t, args)

	_, _, err = ParsePaginationID("other:1", "list")
	assert.Error(t, err)
	_, _, err = ParsePaginationID("list:x", "list")
	assert.Error(t, err)
}
