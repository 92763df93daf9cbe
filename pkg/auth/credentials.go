package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/natserract/raclients/pkg/config"
)

const (
	GrantTypeClientCredentials = "client_credentials"

	AuthMethodClientSecretPost  = "client_secret_post"
	AuthMethodClientSecretBasic = "client_secret_basic"
)

// Credentials identify this client towards the authorization server.
type Credentials struct {
	ClientID                string `validate:"required"`
	ClientSecret            string `validate:"required"`
	AuthServer              string `validate:"required,url"`
	AuthRealm               string `validate:"required"`
	GrantType               string `validate:"required,oneof=client_credentials"`
	TokenEndpointAuthMethod string `validate:"omitempty,oneof=client_secret_post client_secret_basic"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// TokenEndpoint returns the Keycloak style token endpoint for the server
// and realm. No OpenID discovery is performed.
func (c Credentials) TokenEndpoint() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", c.AuthServer, c.AuthRealm)
}

func (c Credentials) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid credentials: %w", err)
	}
	return nil
}

func (c Credentials) authStyle() oauth2.AuthStyle {
	switch c.TokenEndpointAuthMethod {
	case AuthMethodClientSecretPost:
		return oauth2.AuthStyleInParams
	case AuthMethodClientSecretBasic:
		return oauth2.AuthStyleInHeader
	default:
		return oauth2.AuthStyleAutoDetect
	}
}

type options struct {
	clientID     string
	clientSecret string
	authServer   string
	authRealm    string
	grantType    string
	authMethod   *string
	httpClient   *http.Client
	timeout      time.Duration
	logger       *zap.Logger
}

// Option overrides a value otherwise taken from config.Settings.
type Option func(*options)

func WithClientID(id string) Option {
	return func(o *options) { o.clientID = id }
}

func WithClientSecret(secret string) Option {
	return func(o *options) { o.clientSecret = secret }
}

func WithAuthServer(server string) Option {
	return func(o *options) { o.authServer = server }
}

func WithAuthRealm(realm string) Option {
	return func(o *options) { o.authRealm = realm }
}

func WithGrantType(grantType string) Option {
	return func(o *options) { o.grantType = grantType }
}

// WithTokenEndpointAuthMethod selects how the client secret is sent to the
// token endpoint. An empty method lets the OAuth2 library auto-detect it.
func WithTokenEndpointAuthMethod(method string) Option {
	return func(o *options) { o.authMethod = &method }
}

// WithHTTPClient sets the base client used both for fetching tokens and,
// wrapped in Transport, for authenticated requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func resolveCredentials(settings config.Settings, o options) Credentials {
	authMethod := AuthMethodClientSecretPost
	if o.authMethod != nil {
		authMethod = *o.authMethod
	}
	return Credentials{
		ClientID:                firstNonEmpty(o.clientID, settings.ClientID),
		ClientSecret:            firstNonEmpty(o.clientSecret, settings.ClientSecret),
		AuthServer:              strings.TrimRight(firstNonEmpty(o.authServer, settings.AuthServer), "/"),
		AuthRealm:               firstNonEmpty(o.authRealm, settings.AuthRealm),
		GrantType:               firstNonEmpty(o.grantType, GrantTypeClientCredentials),
		TokenEndpointAuthMethod: authMethod,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
