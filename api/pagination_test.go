package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		name        string
		page        int
		perPage     int
		wantPage    int
		wantPerPage int
	}{
		{"defaults", 0, 0, 1, defaultPerPage},
		{"custom", 3, 25, 3, 25},
		{"negative page", -2, 5, 1, 5},
		{"negative per page", 2, -1, 2, defaultPerPage},
		{"per page exceeds max", 1, 500, 1, maxPerPage},
		{"per page at max", 1, maxPerPage, 1, maxPerPage},
		{"per page one", 1, 1, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, perPage := normalizePage(tt.page, tt.perPage)
			assert.Equal(t, tt.wantPage, page, "page")
			assert.Equal(t, tt.wantPerPage, perPage, "perPage")
		})
	}
}

func TestApplicationQuery(t *testing.T) {
	q := applicationQuery("", 0, 0)
	assert.Equal(t, "page=1&per_page=10&status=pending", q.Encode())

	q = applicationQuery("approved", 2, 50)
	assert.Equal(t, "approved", q.Get("status"))
	assert.Equal(t, "2", q.Get("page"))
	assert.Equal(t, "50", q.Get("per_page"))
}

func TestApplicationPageHasMore(t *testing.T) {
	tests := []struct {
		name string
		page ApplicationPage
		want bool
	}{
		{"empty", ApplicationPage{}, false},
		{"first of two", ApplicationPage{Pages: 2, CurrentPage: 1}, true},
		{"last", ApplicationPage{Pages: 2, CurrentPage: 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.page.HasMore())
		})
	}
}
