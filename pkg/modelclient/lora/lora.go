// Package lora uploads objects to LoRa, MO's storage backend. Objects are
// PUT to their own URL and cannot be edited in place.
package lora

import (
	"net/http"

	"github.com/natserract/raclients/pkg/auth"
	"github.com/natserract/raclients/pkg/config"
	"github.com/natserract/raclients/pkg/modelclient"
)

const (
	KindFacet        modelclient.Kind = "facet"
	KindITSystem     modelclient.Kind = "itsystem"
	KindKlasse       modelclient.Kind = "klasse"
	KindOrganisation modelclient.Kind = "organisation"
)

var Routes = modelclient.Routes{
	KindFacet:        {Path: "/klassifikation/facet/{uuid}", OmitUUID: true, OmitType: true},
	KindITSystem:     {Path: "/organisation/itsystem/{uuid}", OmitUUID: true, OmitType: true},
	KindKlasse:       {Path: "/klassifikation/klasse/{uuid}", OmitUUID: true, OmitType: true},
	KindOrganisation: {Path: "/organisation/organisation/{uuid}", OmitUUID: true, OmitType: true},
}

type options struct {
	baseURL       string
	transport     *auth.Client
	authOptions   []auth.Option
	clientOptions []modelclient.Option
}

type Option func(*options)

// WithBaseURL overrides settings.LoRaURL.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

func WithTransport(c *auth.Client) Option {
	return func(o *options) { o.transport = c }
}

func WithAuthOptions(opts ...auth.Option) Option {
	return func(o *options) { o.authOptions = append(o.authOptions, opts...) }
}

func WithClientOptions(opts ...modelclient.Option) Option {
	return func(o *options) { o.clientOptions = append(o.clientOptions, opts...) }
}

func NewModelClient(settings config.Settings, opts ...Option) (*modelclient.Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	transport := o.transport
	if transport == nil {
		var err error
		if transport, err = auth.NewClient(settings, o.authOptions...); err != nil {
			return nil, err
		}
	}

	baseURL := o.baseURL
	if baseURL == "" {
		baseURL = settings.LoRaURL
	}
	if baseURL == "" {
		baseURL = config.DefaultLoRaURL
	}

	return modelclient.New(transport, modelclient.Config{
		BaseURL:      baseURL,
		Method:       http.MethodPut,
		CreateRoutes: Routes,
	}, o.clientOptions...)
}
