package graph

import (
	"net/http"

	"github.com/machinebox/graphql"
)

// Request is a GraphQL document with its variables.
type Request struct {
	Query     string
	Variables map[string]any
	Header    http.Header
}

func NewRequest(query string) *Request {
	return &Request{Query: query, Header: make(http.Header)}
}

// Var sets a variable of the request.
func (r *Request) Var(key string, value any) {
	if r.Variables == nil {
		r.Variables = make(map[string]any)
	}
	r.Variables[key] = value
}

// graphql returns the request in the form machinebox/graphql sends.
func (r *Request) graphql() *graphql.Request {
	req := graphql.NewRequest(r.Query)
	for key, value := range r.Variables {
		req.Var(key, value)
	}
	for key, values := range r.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	return req
}
