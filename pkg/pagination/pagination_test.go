package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name          string
		page, perPage int
		want          Params
	}{
		{"defaults", 0, 0, Params{Page: 1, PerPage: 20}},
		{"negative page floored", -3, 10, Params{Page: 1, PerPage: 10}},
		{"capped", 2, 500, Params{Page: 2, PerPage: 100}},
		{"exact", 4, 25, Params{Page: 4, PerPage: 25}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.page, tt.perPage))
		})
	}
}

func TestOffset(t *testing.T) {
	assert.Equal(t, 0, New(1, 20).Offset())
	assert.Equal(t, 40, New(3, 20).Offset())
}

func TestNewMeta(t *testing.T) {
	m := NewMeta(New(2, 10), 25)
	assert.Equal(t, 3, m.TotalPages)
	assert.True(t, m.HasNext)
	assert.True(t, m.HasPrev)

	m = NewMeta(New(1, 20), 0)
	assert.Equal(t, 0, m.TotalPages)
	assert.False(t, m.HasNext)
	assert.False(t, m.HasPrev)
}
