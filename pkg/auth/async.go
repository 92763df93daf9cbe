package auth

import (
	"context"

	"github.com/natserract/raclients/pkg/config"
	httpclient "github.com/natserract/raclients/pkg/http"
)

// Result is the outcome of an asynchronous request.
type Result struct {
	Response *httpclient.Response
	Err      error
}

// AsyncClient dispatches authenticated requests without blocking the
// caller. It shares token state with the Client it wraps.
type AsyncClient struct {
	client *Client
}

func NewAsyncClient(settings config.Settings, opts ...Option) (*AsyncClient, error) {
	c, err := NewClient(settings, opts...)
	if err != nil {
		return nil, err
	}
	return c.Async(), nil
}

// Async returns an asynchronous view of c.
func (c *Client) Async() *AsyncClient {
	return &AsyncClient{client: c}
}

// Client returns the blocking client behind a.
func (a *AsyncClient) Client() *Client {
	return a.client
}

func (a *AsyncClient) ShouldFetchToken(url string, withholdToken bool) bool {
	return a.client.ShouldFetchToken(url, withholdToken)
}

func (a *AsyncClient) TokenEndpoint() string {
	return a.client.TokenEndpoint()
}

// FetchToken fetches a token in the background. The channel receives the
// error, or nil, and is then closed.
func (a *AsyncClient) FetchToken(ctx context.Context) <-chan error {
	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		_, err := a.client.FetchToken(ctx)
		ch <- err
	}()
	return ch
}

// Do sends the request in the background. The channel receives exactly one
// Result and is then closed.
func (a *AsyncClient) Do(ctx context.Context, opts httpclient.RequestOptions) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		resp, err := a.client.Do(ctx, opts)
		ch <- Result{Response: resp, Err: err}
	}()
	return ch
}

func (a *AsyncClient) Request(ctx context.Context, method, url string, withholdToken bool, opts httpclient.RequestOptions) <-chan Result {
	if ctx == nil {
		ctx = context.Background()
	}
	if withholdToken {
		ctx = WithoutToken(ctx)
	}
	opts.Method = method
	opts.URL = url
	return a.Do(ctx, opts)
}

// Await blocks until r delivers or ctx is done.
func Await(ctx context.Context, r <-chan Result) (*httpclient.Response, error) {
	select {
	case res := <-r:
		return res.Response, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *AsyncClient) CloseIdleConnections() {
	a.client.CloseIdleConnections()
}
