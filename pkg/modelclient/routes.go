package modelclient

import (
	"fmt"
	"regexp"
)

// Route is where, and in which JSON shape, objects of one kind are sent.
// Path may contain {field} placeholders, filled from the object's fields,
// its "uuid" and its "type".
type Route struct {
	Path     string
	OmitUUID bool
	OmitType bool
}

// Routes maps object kinds to routes.
type Routes map[Kind]Route

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

func (r Routes) lookup(kind Kind) (Route, error) {
	route, ok := r[kind]
	if !ok {
		return Route{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return route, nil
}

// expand fills the placeholders of path from obj.
func (route Route) expand(obj Object) (string, error) {
	values := obj.placeholders()
	var missing string
	path := placeholder.ReplaceAllStringFunc(route.Path, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := values[name]
		if !ok || v == nil {
			if missing == "" {
				missing = name
			}
			return m
		}
		return fmt.Sprint(v)
	})
	if missing != "" {
		return "", fmt.Errorf("%w: %q required by path %s", ErrMissingField, missing, route.Path)
	}
	return path, nil
}
