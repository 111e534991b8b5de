package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(0, 500)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 100, p.Limit())

	p = NewPagination(3, 0)
	assert.Equal(t, 20, p.PageSize)
	assert.Equal(t, 40, p.Offset())
}

func TestNewPagedResult(t *testing.T) {
	r := NewPagedResult([]int{1, 2}, 41, NewPagination(1, 20))
	assert.Equal(t, 3, r.TotalPages)
}

func TestParseSort(t *testing.T) {
	s, err := ParseSort("", DocumentSortFields, DefaultDocumentSort)
	require.NoError(t, err)
	assert.Equal(t, DefaultDocumentSort, s)

	s, err = ParseSort(" Title ", DocumentSortFields, DefaultDocumentSort)
	require.NoError(t, err)
	assert.Equal(t, Sort{Field: "title", Order: SortOrderAsc}, s)

	s, err = ParseSort("-created_at", DocumentSortFields, DefaultDocumentSort)
	require.NoError(t, err)
	assert.Equal(t, Sort{Field: "created_at", Order: SortOrderDesc}, s)

	_, err = ParseSort("content; DROP TABLE documents", DocumentSortFields, DefaultDocumentSort)
	assert.Error(t, err)
	_, err = ParseSort("-", DocumentSortFields, DefaultDocumentSort)
	assert.Error(t, err)
}

func TestSort_Clause(t *testing.T) {
	assert.Equal(t, "created_at DESC, id ASC", DefaultDocumentSort.Clause())
	assert.Equal(t, "title ASC, id ASC", Sort{Field: "title", Order: SortOrderAsc}.Clause())
	assert.Equal(t, "title DESC, id ASC", Sort{Field: "title"}.Clause())
}
