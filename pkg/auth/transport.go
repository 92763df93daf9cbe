package auth

import (
	"context"
	"net/http"
)

type withholdTokenKey struct{}

// WithoutToken marks requests sent with ctx as not needing a token: none is
// fetched and no Authorization header is attached.
func WithoutToken(ctx context.Context) context.Context {
	return context.WithValue(ctx, withholdTokenKey{}, true)
}

func tokenWithheld(ctx context.Context) bool {
	v, _ := ctx.Value(withholdTokenKey{}).(bool)
	return v
}

// Transport wraps a base RoundTripper, fetching the initial token when
// needed and attaching the current token to each request.
type Transport struct {
	client *Client
	base   http.RoundTripper
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	withhold := tokenWithheld(ctx)

	if err := t.client.ensureToken(ctx, req.URL.String(), withhold); err != nil {
		closeBody(req)
		return nil, err
	}
	if withhold {
		return t.base.RoundTrip(req)
	}

	tok, err := t.client.currentToken()
	if err != nil {
		closeBody(req)
		return nil, err
	}
	if tok == nil {
		return t.base.RoundTrip(req)
	}

	// RoundTrippers must not modify the caller's request.
	authenticated := req.Clone(ctx)
	tok.SetAuthHeader(authenticated)
	return t.base.RoundTrip(authenticated)
}

func (t *Transport) CloseIdleConnections() {
	type closeIdler interface{ CloseIdleConnections() }
	if ci, ok := t.base.(closeIdler); ok {
		ci.CloseIdleConnections()
	}
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}
