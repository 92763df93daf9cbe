package graph

import (
	"fmt"
	"strings"
)

// Location points into the query document.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Error is a single entry of a GraphQL response's errors array.
type Error struct {
	Message    string
	Source     string
	Locations  []Location
	Path       []any
	Extensions map[string]any
}

func (e *Error) Error() string {
	if len(e.Locations) == 0 {
		return e.Message
	}
	loc := e.Locations[0]
	return fmt.Sprintf("%s (%d:%d)", e.Message, loc.Line, loc.Column)
}

// Errors is returned by Execute when the response carries errors.
type Errors []*Error

func (errs Errors) Error() string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

// ErrorFromMap builds an Error from a decoded errors entry. source is the
// query document the error refers to.
func ErrorFromMap(m map[string]any, source string) *Error {
	e := &Error{Source: source}
	if msg, ok := m["message"].(string); ok {
		e.Message = msg
	}
	if locs, ok := m["locations"].([]any); ok {
		for _, raw := range locs {
			loc, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			e.Locations = append(e.Locations, Location{
				Line:   toInt(loc["line"]),
				Column: toInt(loc["column"]),
			})
		}
	}
	if path, ok := m["path"].([]any); ok {
		e.Path = path
	}
	if ext, ok := m["extensions"].(map[string]any); ok {
		e.Extensions = ext
	}
	return e
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	}
	return 0
}
