// Package query parses listing parameters and shapes paginated results.
package query

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
	DefaultSort  = "createdAt"
)

// ErrInvalidParams wraps every parsing failure so callers can map it to a validation error.
var ErrInvalidParams = errors.New("invalid listing parameters")

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// SortFields maps API sort names to SQL column expressions. Only listed names are accepted.
type SortFields map[string]string

// VideoSorts are the sortable fields for video listings.
var VideoSorts = SortFields{
	"createdAt": "v.created_at",
	"updatedAt": "v.updated_at",
	"views":     "v.views",
	"duration":  "v.duration_seconds",
	"title":     "v.title",
}

// CommentSorts are the sortable fields for comment listings.
var CommentSorts = SortFields{
	"createdAt": "c.created_at",
	"updatedAt": "c.updated_at",
}

// SubscriptionSorts are the sortable fields for subscriber and subscribed-channel listings.
var SubscriptionSorts = SortFields{
	"createdAt": "s.created_at",
	"username":  "u.username",
}

// Params are the resolved pagination and sort inputs for a listing.
type Params struct {
	Page      int
	Limit     int
	SortBy    string
	Direction Direction

	column string
}

// Parse reads page, limit, sortBy and sortType from values. Missing values take the defaults
// (page 1, limit 10, createdAt, desc); malformed or unknown values fail with ErrInvalidParams.
func Parse(values url.Values, sorts SortFields) (Params, error) {
	p := Params{
		Page:      DefaultPage,
		Limit:     DefaultLimit,
		SortBy:    DefaultSort,
		Direction: Desc,
	}

	if raw := strings.TrimSpace(values.Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return Params{}, fmt.Errorf("%w: page must be a positive integer", ErrInvalidParams)
		}
		p.Page = page
	}

	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return Params{}, fmt.Errorf("%w: limit must be a positive integer", ErrInvalidParams)
		}
		if limit > MaxLimit {
			limit = MaxLimit
		}
		p.Limit = limit
	}

	if raw := strings.TrimSpace(values.Get("sortBy")); raw != "" {
		p.SortBy = raw
	}

	if raw := strings.ToLower(strings.TrimSpace(values.Get("sortType"))); raw != "" {
		switch Direction(raw) {
		case Asc, Desc:
			p.Direction = Direction(raw)
		default:
			return Params{}, fmt.Errorf("%w: sortType must be asc or desc", ErrInvalidParams)
		}
	}

	column, ok := sorts[p.SortBy]
	if !ok {
		return Params{}, fmt.Errorf("%w: cannot sort by %q", ErrInvalidParams, p.SortBy)
	}
	p.column = column

	return p, nil
}

// Defaults returns the default parameters resolved against sorts.
func Defaults(sorts SortFields) Params {
	p, _ := Parse(url.Values{}, sorts)
	return p
}

// Offset is the number of rows skipped before the current page.
func (p Params) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// OrderBy renders an ORDER BY expression. tiebreak is appended so the order is total,
// which keeps pages disjoint.
func (p Params) OrderBy(tiebreak string) string {
	column := p.column
	if column == "" {
		column = tiebreak
	}
	dir := "DESC"
	if p.Direction == Asc {
		dir = "ASC"
	}
	if tiebreak == "" || tiebreak == column {
		return fmt.Sprintf("%s %s", column, dir)
	}
	return fmt.Sprintf("%s %s, %s %s", column, dir, tiebreak, dir)
}

// Page is one page of a listing.
type Page[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

// NewPage assembles a page, never returning a nil item slice.
func NewPage[T any](items []T, p Params, total int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:      items,
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: TotalPages(total, p.Limit),
	}
}

// TotalPages is ceil(total/limit).
func TotalPages(total int64, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
