package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(2, 25, 51)
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, 25, p.PerPage)
	assert.Equal(t, int64(51), p.Total)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 25, p.Offset())
}

func TestNewPaginationDefaults(t *testing.T) {
	p := NewPagination(0, 0, 10)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 25, p.PerPage)
	assert.Equal(t, 0, p.Offset())
}

func TestNewPaginationEmpty(t *testing.T) {
	p := NewPagination(1, 25, 0)
	assert.Equal(t, 0, p.TotalPages)
}
