package api

import (
	"net/url"
	"strconv"
)

const (
	defaultApplicationStatus = "pending"
	defaultPerPage           = 10
	maxPerPage               = 100
)

// ApplicationPage is one page of the voter application queue.
type ApplicationPage struct {
	Applications []VoterApplication `json:"applications"`
	Total        int                `json:"total"`
	Pages        int                `json:"pages"`
	CurrentPage  int                `json:"current_page"`
}

// HasMore reports whether a later page exists.
func (p ApplicationPage) HasMore() bool {
	return p.CurrentPage < p.Pages
}

// normalizePage applies the listing defaults. Non-positive values fall back
// to page 1 and defaultPerPage; perPage is capped at maxPerPage.
func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

// applicationQuery builds the query string for a voter application listing.
// An empty status means "pending".
func applicationQuery(status string, page, perPage int) url.Values {
	if status == "" {
		status = defaultApplicationStatus
	}
	page, perPage = normalizePage(page, perPage)
	q := url.Values{}
	q.Set("status", status)
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	return q
}
