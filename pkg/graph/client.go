// Package graph provides a GraphQL client for OS2mo that authenticates every
// request through an auth.Client.
package graph

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/machinebox/graphql"
	"go.uber.org/zap"

	"github.com/natserract/raclients/pkg/auth"
	"github.com/natserract/raclients/pkg/config"
	httpclient "github.com/natserract/raclients/pkg/http"
)

var ErrSessionClosed = errors.New("graph: session is closed")

type options struct {
	url         string
	transport   *auth.Client
	authOptions []auth.Option
	sync        bool
	logger      *zap.Logger
}

type Option func(*options)

// WithURL sets the GraphQL endpoint. Defaults to Settings.GraphQLURL.
func WithURL(url string) Option {
	return func(o *options) { o.url = url }
}

// WithTransport sends queries through an existing client. Credentials
// given with WithAuthOptions are ignored in that case.
func WithTransport(c *auth.Client) Option {
	return func(o *options) { o.transport = c }
}

func WithAuthOptions(opts ...auth.Option) Option {
	return func(o *options) { o.authOptions = append(o.authOptions, opts...) }
}

// WithSync makes Execute dispatch on the calling goroutine instead of
// through auth.AsyncClient.
func WithSync(sync bool) Option {
	return func(o *options) { o.sync = sync }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Client executes GraphQL documents against a single endpoint.
type Client struct {
	url    string
	auth   *auth.Client
	async  *auth.AsyncClient
	sync   bool
	gql    *graphql.Client
	logger *zap.Logger
}

func NewClient(settings config.Settings, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	url := strings.TrimSpace(o.url)
	if url == "" {
		url = settings.GraphQLURL
	}
	if url == "" {
		url = config.DefaultGraphQLURL
	}

	transport := o.transport
	if transport == nil {
		authOpts := append([]auth.Option{auth.WithLogger(logger)}, o.authOptions...)
		c, err := auth.NewClient(settings, authOpts...)
		if err != nil {
			return nil, err
		}
		transport = c
	}

	gql := graphql.NewClient(url, graphql.WithHTTPClient(transport.StandardClient()))
	gql.Log = func(s string) { logger.Debug(s) }

	return &Client{
		url:    url,
		auth:   transport,
		async:  transport.Async(),
		sync:   o.sync,
		gql:    gql,
		logger: logger,
	}, nil
}

func (c *Client) URL() string             { return c.url }
func (c *Client) Transport() *auth.Client { return c.auth }
func (c *Client) Sync() bool              { return c.sync }

// Connect opens a session. Close it to release the underlying connections.
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Session{client: c}, nil
}

// Session is a scoped use of a Client.
type Session struct {
	client *Client
	mu     sync.RWMutex
	closed bool
}

// ExecuteResult is delivered by ExecuteAsync.
type ExecuteResult struct {
	Data map[string]any
	Err  error
}

// Execute runs req and returns the data of the response. A response with a
// non-empty errors array yields Errors.
func (s *Session) Execute(ctx context.Context, req *Request) (map[string]any, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	opts := s.client.requestOptions(req)
	var resp *httpclient.Response
	var err error
	if s.client.sync {
		resp, err = s.client.auth.Do(ctx, opts)
	} else {
		resp, err = auth.Await(ctx, s.client.async.Do(ctx, opts))
	}
	if err != nil {
		return nil, err
	}
	return s.client.decode(req, resp)
}

// ExecuteAsync runs Execute in the background. The channel receives one
// result and is then closed.
func (s *Session) ExecuteAsync(ctx context.Context, req *Request) <-chan ExecuteResult {
	ch := make(chan ExecuteResult, 1)
	go func() {
		defer close(ch)
		data, err := s.Execute(ctx, req)
		ch <- ExecuteResult{Data: data, Err: err}
	}()
	return ch
}

// Run executes req and decodes the response data into resp.
func (s *Session) Run(ctx context.Context, req *Request, resp interface{}) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.client.gql.Run(ctx, req.graphql(), resp)
}

// Close ends the session and releases idle connections.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.client.auth.CloseIdleConnections()
	return nil
}

func (s *Session) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

type payload struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type response struct {
	Data   map[string]any   `json:"data"`
	Errors []map[string]any `json:"errors"`
}

func (c *Client) requestOptions(req *Request) httpclient.RequestOptions {
	headers := map[string]string{"Content-Type": "application/json"}
	for key, values := range req.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}
	return httpclient.RequestOptions{
		Method:  http.MethodPost,
		URL:     c.url,
		Headers: headers,
		Body: payload{
			Query:     req.Query,
			Variables: req.Variables,
		},
	}
}

func (c *Client) decode(req *Request, resp *httpclient.Response) (map[string]any, error) {
	var body response
	parseErr := resp.JSON(&body)

	if parseErr == nil && len(body.Errors) > 0 {
		errs := make(Errors, 0, len(body.Errors))
		for _, raw := range body.Errors {
			errs = append(errs, ErrorFromMap(raw, req.Query))
		}
		c.logger.Warn("GraphQL query returned errors",
			zap.String("url", c.url),
			zap.Int("error_count", len(errs)),
			zap.Error(errs))
		return nil, errs
	}
	if err := resp.RaiseForStatus(); err != nil {
		return nil, err
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return body.Data, nil
}
