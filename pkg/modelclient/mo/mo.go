// Package mo uploads objects to OS2mo's service API.
package mo

import (
	"net/http"

	"github.com/natserract/raclients/pkg/auth"
	"github.com/natserract/raclients/pkg/config"
	"github.com/natserract/raclients/pkg/modelclient"
)

const (
	KindAddress               modelclient.Kind = "address"
	KindAssociation           modelclient.Kind = "association"
	KindEmployee              modelclient.Kind = "employee"
	KindEngagement            modelclient.Kind = "engagement"
	KindEngagementAssociation modelclient.Kind = "engagement_association"
	KindFacetClass            modelclient.Kind = "class"
	KindITUser                modelclient.Kind = "it"
	KindLeave                 modelclient.Kind = "leave"
	KindManager               modelclient.Kind = "manager"
	KindOrganisationUnit      modelclient.Kind = "org_unit"
	KindRole                  modelclient.Kind = "role"
)

const (
	detailsCreatePath = "/service/details/create"
	detailsEditPath   = "/service/details/edit"
	classPath         = "/service/f/{facet_uuid}/"
)

// CreateRoutes are the routes used when creating objects.
var CreateRoutes = modelclient.Routes{
	KindAddress:               {Path: detailsCreatePath},
	KindAssociation:           {Path: detailsCreatePath},
	KindEmployee:              {Path: "/service/e/create"},
	KindEngagement:            {Path: detailsCreatePath},
	KindEngagementAssociation: {Path: detailsCreatePath},
	KindFacetClass:            {Path: classPath},
	KindITUser:                {Path: detailsCreatePath},
	KindLeave:                 {Path: detailsCreatePath},
	KindManager:               {Path: detailsCreatePath},
	KindOrganisationUnit:      {Path: "/service/ou/create"},
	KindRole:                  {Path: detailsCreatePath},
}

// EditRoutes are the routes used when editing objects. Engagement
// associations cannot be edited.
var EditRoutes = modelclient.Routes{
	KindAddress:          {Path: detailsEditPath},
	KindAssociation:      {Path: detailsEditPath},
	KindEmployee:         {Path: detailsEditPath},
	KindEngagement:       {Path: detailsEditPath},
	KindFacetClass:       {Path: classPath},
	KindITUser:           {Path: detailsEditPath},
	KindLeave:            {Path: detailsEditPath},
	KindManager:          {Path: detailsEditPath},
	KindOrganisationUnit: {Path: detailsEditPath},
	KindRole:             {Path: detailsEditPath},
}

type options struct {
	baseURL       string
	force         bool
	transport     *auth.Client
	authOptions   []auth.Option
	clientOptions []modelclient.Option
}

type Option func(*options)

// WithBaseURL overrides settings.MOURL.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithForce makes MO skip its validations.
func WithForce(force bool) Option {
	return func(o *options) { o.force = force }
}

// WithTransport uploads through an existing authenticated client.
// Credentials in settings and WithAuthOptions are then ignored.
func WithTransport(c *auth.Client) Option {
	return func(o *options) { o.transport = c }
}

func WithAuthOptions(opts ...auth.Option) Option {
	return func(o *options) { o.authOptions = append(o.authOptions, opts...) }
}

// WithClientOptions passes options such as chunk size or progress on to
// the upload client.
func WithClientOptions(opts ...modelclient.Option) Option {
	return func(o *options) { o.clientOptions = append(o.clientOptions, opts...) }
}

// NewModelClient creates an upload client for MO.
func NewModelClient(settings config.Settings, opts ...Option) (*modelclient.Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	transport := o.transport
	if transport == nil {
		var err error
		transport, err = auth.NewClient(settings, o.authOptions...)
		if err != nil {
			return nil, err
		}
	}

	baseURL := o.baseURL
	if baseURL == "" {
		baseURL = settings.MOURL
	}
	if baseURL == "" {
		baseURL = config.DefaultMOURL
	}

	force := "0"
	if o.force {
		force = "1"
	}

	return modelclient.New(transport, modelclient.Config{
		BaseURL:      baseURL,
		Method:       http.MethodPost,
		CreateRoutes: CreateRoutes,
		EditRoutes:   EditRoutes,
		Query:        map[string]string{"force": force},
	}, o.clientOptions...)
}
