// Package auth provides HTTP clients that authenticate every request with an
// OAuth2 bearer token obtained through the client credentials grant.
//
// The OAuth2 protocol, including refreshing expired tokens, is handled by
// golang.org/x/oauth2. What this package adds is fetching the initial token
// lazily, right before the first request that needs one.
//
// Example, with credentials from the environment:
//
//	settings, err := config.Load()
//	client, err := auth.NewClient(settings)
//	resp, err := client.Get(ctx, "https://mo.example.org/service/o/")
//
// or with explicit credentials:
//
//	client, err := auth.NewClient(config.Defaults(),
//		auth.WithClientID("AzureDiamond"),
//		auth.WithClientSecret("hunter2"),
//		auth.WithAuthServer("http://keycloak.example.org/auth"),
//		auth.WithAuthRealm("mordor"),
//	)
package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/natserract/raclients/pkg/config"
	httpclient "github.com/natserract/raclients/pkg/http"
)

// Client is an HTTP client that automatically authenticates requests.
// It is safe for concurrent use.
type Client struct {
	creds  Credentials
	oauth  *clientcredentials.Config
	base   *http.Client
	http   *httpclient.Client
	logger *zap.Logger

	mu     sync.RWMutex
	token  *oauth2.Token
	source oauth2.TokenSource
}

// NewClient creates an authenticated client. Credentials not given as
// options are taken from settings.
func NewClient(settings config.Settings, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	creds := resolveCredentials(settings, o)
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	base := o.httpClient
	if base == nil {
		timeout := o.timeout
		if timeout <= 0 {
			timeout = httpclient.DefaultTimeout
		}
		base = &http.Client{Timeout: timeout}
	}

	c := &Client{
		creds: creds,
		oauth: &clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     creds.TokenEndpoint(),
			AuthStyle:    creds.authStyle(),
		},
		base:   base,
		logger: logger,
	}

	authenticated := &http.Client{
		Transport:     &Transport{client: c, base: baseTransport(base)},
		CheckRedirect: base.CheckRedirect,
		Jar:           base.Jar,
		Timeout:       base.Timeout,
	}
	c.http = httpclient.NewClientWithHTTPClient(authenticated, logger)

	return c, nil
}

func baseTransport(c *http.Client) http.RoundTripper {
	if c.Transport != nil {
		return c.Transport
	}
	return http.DefaultTransport
}

func (c *Client) Credentials() Credentials { return c.creds }
func (c *Client) ClientID() string         { return c.creds.ClientID }
func (c *Client) ClientSecret() string     { return c.creds.ClientSecret }
func (c *Client) AuthServer() string       { return c.creds.AuthServer }
func (c *Client) AuthRealm() string        { return c.creds.AuthRealm }
func (c *Client) TokenEndpoint() string    { return c.creds.TokenEndpoint() }

// Token returns the currently held token, or nil if none was fetched yet.
func (c *Client) Token() *oauth2.Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken installs tok as the held token. Expired tokens are refreshed by
// the OAuth2 library on next use.
func (c *Client) SetToken(tok *oauth2.Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setTokenLocked(tok)
}

func (c *Client) setTokenLocked(tok *oauth2.Token) {
	c.token = tok
	if tok == nil {
		c.source = nil
		return
	}
	c.source = oauth2.ReuseTokenSource(tok, c.oauth.TokenSource(c.oauthContext(context.Background())))
}

// ShouldFetchToken reports whether a token must be fetched before sending a
// request to url. The initial token is never fetched by the OAuth2 library,
// only refreshed, so it is fetched here the first time a request is sent.
// Requests to the token endpoint itself never trigger a fetch.
func (c *Client) ShouldFetchToken(url string, withholdToken bool) bool {
	return !withholdToken && c.Token() == nil && httpclient.StripQuery(url) != c.TokenEndpoint()
}

// FetchToken fetches a new token from the token endpoint and holds it.
func (c *Client) FetchToken(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchTokenLocked(ctx)
}

func (c *Client) fetchTokenLocked(ctx context.Context) (*oauth2.Token, error) {
	c.logger.Info("Fetching access token", zap.String("token_endpoint", c.TokenEndpoint()))

	tok, err := c.oauth.Token(c.oauthContext(ctx))
	if err != nil {
		c.logger.Error("Failed to fetch access token",
			zap.String("token_endpoint", c.TokenEndpoint()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to fetch token: %w", err)
	}
	c.setTokenLocked(tok)

	c.logger.Info("Successfully fetched access token",
		zap.String("token_type", tok.Type()),
		zap.Time("expires_at", tok.Expiry))

	return tok, nil
}

// oauthContext makes the OAuth2 library talk through the unauthenticated
// base client.
func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.base)
}

// ensureToken fetches the initial token when ShouldFetchToken says so.
// Concurrent first requests result in a single fetch.
func (c *Client) ensureToken(ctx context.Context, url string, withholdToken bool) error {
	if !c.ShouldFetchToken(url, withholdToken) {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != nil {
		return nil
	}
	_, err := c.fetchTokenLocked(ctx)
	return err
}

// currentToken returns a valid token, refreshing through the OAuth2
// library when the held one expired. Returns nil if no token is held.
func (c *Client) currentToken() (*oauth2.Token, error) {
	c.mu.RLock()
	src := c.source
	c.mu.RUnlock()
	if src == nil {
		return nil, nil
	}

	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	c.mu.Lock()
	if c.source != nil {
		c.token = tok
	}
	c.mu.Unlock()
	return tok, nil
}

// Do sends an authenticated request. Use WithoutToken on ctx to send it
// without a token.
func (c *Client) Do(ctx context.Context, opts httpclient.RequestOptions) (*httpclient.Response, error) {
	return c.http.Do(ctx, opts)
}

// Request sends a request with the given method to url. If withholdToken is
// set no token is fetched or attached.
func (c *Client) Request(ctx context.Context, method, url string, withholdToken bool, opts httpclient.RequestOptions) (*httpclient.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if withholdToken {
		ctx = WithoutToken(ctx)
	}
	opts.Method = method
	opts.URL = url
	return c.Do(ctx, opts)
}

func (c *Client) Get(ctx context.Context, url string) (*httpclient.Response, error) {
	return c.http.Get(ctx, url, nil)
}

func (c *Client) Post(ctx context.Context, url string, body interface{}) (*httpclient.Response, error) {
	return c.http.Post(ctx, url, nil, body)
}

func (c *Client) Put(ctx context.Context, url string, body interface{}) (*httpclient.Response, error) {
	return c.http.Put(ctx, url, nil, body)
}

// StandardClient returns an *http.Client sending authenticated requests,
// for use by third party clients.
func (c *Client) StandardClient() *http.Client {
	return c.http.HTTPClient()
}

func (c *Client) Logger() *zap.Logger {
	return c.logger
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}
