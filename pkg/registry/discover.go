package registry

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
)

const discoverLogPrefix = "registry:discover"

const (
	defaultDiscoverLimit = 20
	maxDiscoverLimit     = 500
)

// DiscoverInput filters and pages the registered operations. Empty filters
// match everything.
type DiscoverInput struct {
	API    string `json:"api,omitempty"`
	Method string `json:"method,omitempty"`
	// Query matches case-insensitively against name, path and description.
	Query string `json:"query,omitempty"`
	Page  int    `json:"page,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// DiscoverOutput is one page of matching operations.
type DiscoverOutput struct {
	Operations []Description `json:"operations"`
	Pagination Pagination    `json:"pagination"`
}

// Pagination describes the page returned by Discover.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Discover returns the operations matching input, sorted by name.
func (r *Registry) Discover(input *DiscoverInput) *DiscoverOutput {
	if input == nil {
		input = &DiscoverInput{}
	}
	page := input.Page
	if page < 1 {
		page = 1
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultDiscoverLimit
	}
	if limit > maxDiscoverLimit {
		limit = maxDiscoverLimit
	}
	slog.Debug(fmt.Sprintf("%s - api=%s method=%s query=%q page=%d limit=%d",
		discoverLogPrefix, input.API, input.Method, input.Query, page, limit))

	var matched []Description
	for _, d := range r.DescribeAll() {
		if matches(&d, input) {
			matched = append(matched, d)
		}
	}

	total := len(matched)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &DiscoverOutput{
		Operations: append([]Description{}, matched[start:end]...),
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: int(math.Ceil(float64(total) / float64(limit))),
		},
	}
}

func matches(d *Description, input *DiscoverInput) bool {
	if input.API != "" && d.API != input.API {
		return false
	}
	if input.Method != "" && !strings.EqualFold(d.Method, input.Method) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(input.Query)); q != "" {
		hay := strings.ToLower(d.Name + " " + d.OperationPath + " " + d.Description)
		return strings.Contains(hay, q)
	}
	return true
}
