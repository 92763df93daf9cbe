// Package modelclient uploads domain objects to a REST backend in bulk.
//
// Objects are grouped by kind, keeping their order, and split into chunks.
// The objects of a chunk are uploaded concurrently and chunks one after the
// other. Failed uploads are retried when the server answered with an error
// status.
package modelclient

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"slices"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/natserract/raclients/pkg/auth"
	httpclient "github.com/natserract/raclients/pkg/http"
)

const DefaultChunkSize = 10

// Config describes a backend: where it lives, the HTTP method used for
// uploads and the routes per object kind.
type Config struct {
	BaseURL      string
	Method       string
	CreateRoutes Routes
	EditRoutes   Routes
	// Query is added to every upload URL.
	Query map[string]string
}

// Client uploads objects through an authenticated client. It is safe for
// concurrent use.
type Client struct {
	auth      *auth.Client
	cfg       Config
	chunkSize int
	retry     RetryPolicy
	progress  Progress
	logger    *zap.Logger
}

type Option func(*Client)

// WithChunkSize sets how many objects are uploaded concurrently.
func WithChunkSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p.withDefaults() }
}

func WithProgress(p Progress) Option {
	return func(c *Client) {
		if p != nil {
			c.progress = p
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithQuery adds a query parameter to every upload URL.
func WithQuery(key, value string) Option {
	return func(c *Client) {
		query := make(map[string]string, len(c.cfg.Query)+1)
		for k, v := range c.cfg.Query {
			query[k] = v
		}
		query[key] = value
		c.cfg.Query = query
	}
}

// New creates a Client sending requests through authClient.
func New(authClient *auth.Client, cfg Config, opts ...Option) (*Client, error) {
	if authClient == nil {
		return nil, errors.New("auth client is required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("base url is required")
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	cfg.Method = strings.ToUpper(cfg.Method)

	c := &Client{
		auth:      authClient,
		cfg:       cfg,
		chunkSize: DefaultChunkSize,
		retry:     DefaultRetryPolicy(),
		logger:    authClient.Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.progress == nil {
		c.progress = LogProgress{Logger: c.logger}
	}
	return c, nil
}

func (c *Client) Auth() *auth.Client { return c.auth }
func (c *Client) BaseURL() string    { return c.cfg.BaseURL }
func (c *Client) Method() string     { return c.cfg.Method }
func (c *Client) ChunkSize() int     { return c.chunkSize }

// Query returns a copy of the query added to upload URLs.
func (c *Client) Query() map[string]string {
	query := make(map[string]string, len(c.cfg.Query))
	for k, v := range c.cfg.Query {
		query[k] = v
	}
	return query
}

// Close releases idle connections.
func (c *Client) Close() {
	c.auth.CloseIdleConnections()
}

// URL returns the URL obj is uploaded to.
func (c *Client) URL(obj Object, edit bool) (string, error) {
	route, err := c.route(obj.Kind, edit)
	if err != nil {
		return "", err
	}
	return c.url(route, obj)
}

func (c *Client) route(kind Kind, edit bool) (Route, error) {
	if edit {
		return c.cfg.EditRoutes.lookup(kind)
	}
	return c.cfg.CreateRoutes.lookup(kind)
}

func (c *Client) url(route Route, obj Object) (string, error) {
	path, err := route.expand(obj)
	if err != nil {
		return "", err
	}
	return httpclient.BuildURL(c.cfg.BaseURL, path, c.cfg.Query)
}

func (c *Client) body(route Route, obj Object, edit bool) (any, error) {
	data := obj.payload(route)
	if !edit {
		return data, nil
	}
	if obj.UUID == nil {
		return nil, fmt.Errorf("%w: cannot edit %s", ErrMissingUUID, obj.Kind)
	}
	return map[string]any{
		"uuid": obj.UUID.String(),
		"type": string(obj.Kind),
		"data": data,
	}, nil
}

// UploadObject uploads a single object and returns the decoded JSON
// response. With edit set the object is sent to its edit route, wrapped in
// an edit envelope.
func (c *Client) UploadObject(ctx context.Context, obj Object, edit bool) (any, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}
	route, err := c.route(obj.Kind, edit)
	if err != nil {
		return nil, err
	}
	target, err := c.url(route, obj)
	if err != nil {
		return nil, err
	}
	body, err := c.body(route, obj, edit)
	if err != nil {
		return nil, err
	}

	attempt := 0
	operation := func() (any, error) {
		attempt++
		result, err := c.send(ctx, target, body)
		if err == nil {
			return result, nil
		}
		var statusErr *httpclient.StatusError
		if !errors.As(err, &statusErr) {
			return nil, backoff.Permanent(err)
		}
		c.logger.Warn("Upload failed",
			zap.Error(err),
			zap.String("kind", string(obj.Kind)),
			zap.String("url", target),
			zap.Int("status_code", statusErr.StatusCode),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.retry.MaxAttempts))
		return nil, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.retry.backOff()),
		backoff.WithMaxTries(uint(c.retry.MaxAttempts)),
	)
}

func (c *Client) send(ctx context.Context, target string, body any) (any, error) {
	resp, err := c.auth.Do(ctx, httpclient.RequestOptions{
		Method: c.cfg.Method,
		URL:    target,
		Body:   body,
	})
	if err != nil {
		return nil, err
	}

	decoded, parseErr := resp.Decode()
	if err := resp.RaiseForStatus(); err != nil {
		var statusErr *httpclient.StatusError
		if !errors.As(err, &statusErr) {
			return nil, err
		}
		if m, ok := decoded.(map[string]any); ok {
			if description, ok := m["description"].(string); ok {
				return nil, statusErr.WithMessage(description)
			}
		}
		return nil, statusErr
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return decoded, nil
}

type uploadResult struct {
	value any
	err   error
}

// UploadLazy uploads objs and yields the responses as they arrive.
// Iteration stops at the first error, which is yielded last. Breaking out
// of the loop cancels the uploads still in flight.
func (c *Client) UploadLazy(ctx context.Context, objs []Object) iter.Seq2[any, error] {
	return c.uploadLazy(ctx, objs, false)
}

// EditLazy is UploadLazy for edits.
func (c *Client) EditLazy(ctx context.Context, objs []Object) iter.Seq2[any, error] {
	return c.uploadLazy(ctx, objs, true)
}

// Upload uploads objs and returns the responses in completion order. On
// failure the responses received so far are returned with the error.
func (c *Client) Upload(ctx context.Context, objs []Object) ([]any, error) {
	return c.collect(c.uploadLazy(ctx, objs, false))
}

func (c *Client) Edit(ctx context.Context, objs []Object) ([]any, error) {
	return c.collect(c.uploadLazy(ctx, objs, true))
}

func (c *Client) collect(seq iter.Seq2[any, error]) ([]any, error) {
	var results []any
	for v, err := range seq {
		if err != nil {
			return results, err
		}
		results = append(results, v)
	}
	return results, nil
}

func (c *Client) uploadLazy(ctx context.Context, objs []Object, edit bool) iter.Seq2[any, error] {
	objs = slices.Clone(objs)
	return func(yield func(any, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		tracker := c.progress.Start(len(objs))
		defer tracker.Finish()

		for _, group := range groupByKind(objs) {
			tracker.Describe(string(group.kind))
			for chunk := range slices.Chunk(group.objects, c.chunkSize) {
				if !c.uploadChunk(ctx, cancel, chunk, edit, tracker, yield) {
					return
				}
			}
		}
	}
}

// uploadChunk uploads chunk concurrently and yields the results in
// completion order. It reports whether iteration should go on.
func (c *Client) uploadChunk(ctx context.Context, cancel context.CancelFunc, chunk []Object, edit bool, tracker Tracker, yield func(any, error) bool) bool {
	results := make(chan uploadResult, len(chunk))
	p := pool.New().WithMaxGoroutines(len(chunk))
	for _, obj := range chunk {
		p.Go(func() {
			v, err := c.UploadObject(ctx, obj, edit)
			results <- uploadResult{value: v, err: err}
		})
	}
	go func() {
		p.Wait()
		close(results)
	}()

	for res := range results {
		tracker.Increment()
		if res.err != nil {
			cancel()
			drain(results)
			yield(nil, res.err)
			return false
		}
		if !yield(res.value, nil) {
			cancel()
			drain(results)
			return false
		}
	}
	return true
}

func drain(results <-chan uploadResult) {
	for range results {
	}
}

type kindGroup struct {
	kind    Kind
	objects []Object
}

// groupByKind splits objs into runs of the same kind, keeping their order.
func groupByKind(objs []Object) []kindGroup {
	var groups []kindGroup
	for _, obj := range objs {
		if n := len(groups); n > 0 && groups[n-1].kind == obj.Kind {
			groups[n-1].objects = append(groups[n-1].objects, obj)
			continue
		}
		groups = append(groups, kindGroup{kind: obj.Kind, objects: []Object{obj}})
	}
	return groups
}
