package pagination

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

// Params holds paging and ordering parameters extracted from a request.
// Sort is a caller hint only: certain ontology object types reject sort
// fields with a schema-validation error, so ordering is accepted here but
// never forwarded upstream.
type Params struct {
	PageSize      int
	PageToken     string
	SortField     string
	SortDirection string
}

// FromContext extracts paging parameters from the echo context. pageSize is
// clamped to [1, MaxPageSize] and defaults to DefaultPageSize when absent
// or unparsable. sort accepts "field" or "field:desc".
func FromContext(c echo.Context) Params {
	size, err := strconv.Atoi(c.QueryParam("pageSize"))
	if err != nil || size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	field, direction := parseSort(c.QueryParam("sort"))

	return Params{
		PageSize:      size,
		PageToken:     c.QueryParam("pageToken"),
		SortField:     field,
		SortDirection: direction,
	}
}

func parseSort(raw string) (field, direction string) {
	if raw == "" {
		return "", ""
	}
	parts := strings.SplitN(raw, ":", 2)
	field = strings.TrimSpace(parts[0])
	direction = "asc"
	if len(parts) == 2 && strings.EqualFold(strings.TrimSpace(parts[1]), "desc") {
		direction = "desc"
	}
	if field == "" {
		return "", ""
	}
	return field, direction
}
