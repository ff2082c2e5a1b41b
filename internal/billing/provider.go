package billing

import (
	"context"

	"github.com/flexprice/stripesync/internal/manifest"
	"github.com/flexprice/stripesync/internal/types"
	"github.com/stripe/stripe-go/v82"
)

// PageParams selects one page of a remote listing.
type PageParams struct {
	Limit         int64
	StartingAfter string
}

// Page is one page of a remote listing together with the provider's
// has-more flag.
type Page[T any] struct {
	Data    []T
	HasMore bool
}

// WebhookEndpointParams carries everything this tool sets on a webhook
// endpoint, on create and on update alike.
type WebhookEndpointParams struct {
	URL           string
	EnabledEvents []string
	Metadata      types.Metadata
}

// ProductParams carries the mutable product fields.
type ProductParams struct {
	Name        string
	Description string
	Metadata    types.Metadata
}

// PriceParams carries the full price configuration. Prices are immutable on
// the provider side, so there is no update variant. An empty Interval yields
// a one-time price.
type PriceParams struct {
	ProductID  string
	UnitAmount int64
	Currency   string
	Interval   string
	Metadata   types.Metadata
}

// PortalConfigurationParams carries the declared portal configuration plus
// ownership metadata. The adapter maps the nested configuration to the
// provider's parameter shape.
type PortalConfigurationParams struct {
	Configuration manifest.PortalConfiguration
	Metadata      types.Metadata
}

// Provider is the capability set of one remote billing account. All listing
// calls return single pages; callers paginate explicitly. Metadata updates
// follow the provider's merge semantics: keys set to the empty string are
// removed, other keys are overlaid, absent keys are left alone.
type Provider interface {
	ListWebhookEndpoints(ctx context.Context, page PageParams) (Page[*stripe.WebhookEndpoint], error)
	CreateWebhookEndpoint(ctx context.Context, params WebhookEndpointParams) (*stripe.WebhookEndpoint, error)
	UpdateWebhookEndpoint(ctx context.Context, id string, params WebhookEndpointParams) (*stripe.WebhookEndpoint, error)
	UpdateWebhookEndpointMetadata(ctx context.Context, id string, metadata types.Metadata) (*stripe.WebhookEndpoint, error)
	DeleteWebhookEndpoint(ctx context.Context, id string) error

	ListProducts(ctx context.Context, page PageParams) (Page[*stripe.Product], error)
	CreateProduct(ctx context.Context, params ProductParams) (*stripe.Product, error)
	UpdateProduct(ctx context.Context, id string, params ProductParams) (*stripe.Product, error)

	ListPrices(ctx context.Context, productID string, page PageParams) (Page[*stripe.Price], error)
	CreatePrice(ctx context.Context, params PriceParams) (*stripe.Price, error)

	ListPortalConfigurations(ctx context.Context, page PageParams) (Page[*stripe.BillingPortalConfiguration], error)
	CreatePortalConfiguration(ctx context.Context, params PortalConfigurationParams) (*stripe.BillingPortalConfiguration, error)
	UpdatePortalConfiguration(ctx context.Context, id string, params PortalConfigurationParams) (*stripe.BillingPortalConfiguration, error)
}
