package billing

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/flexprice/stripesync/internal/config"
	ierr "github.com/flexprice/stripesync/internal/errors"
	"github.com/flexprice/stripesync/internal/logger"
	"github.com/flexprice/stripesync/internal/manifest"
	"github.com/flexprice/stripesync/internal/types"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// StripeProvider implements Provider against one Stripe account. Retries live
// in the HTTP transport handed to the Stripe backend, never here.
type StripeProvider struct {
	api    *client.API
	logger *logger.Logger
}

// NewStripeProvider builds a provider for the account behind apiKey.
func NewStripeProvider(apiKey string, cfg *config.Configuration, log *logger.Logger) *StripeProvider {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.Stripe.RetryMax
	rc.Logger = nil
	if cfg.Stripe.Timeout > 0 {
		rc.HTTPClient.Timeout = cfg.Stripe.Timeout
	}

	api := &client.API{}
	api.Init(apiKey, stripe.NewBackends(rc.StandardClient()))

	return &StripeProvider{
		api:    api,
		logger: log,
	}
}

func (p *StripeProvider) ListWebhookEndpoints(ctx context.Context, page PageParams) (Page[*stripe.WebhookEndpoint], error) {
	params := &stripe.WebhookEndpointListParams{}
	applyPage(ctx, &params.ListParams, page)

	iter := p.api.WebhookEndpoints.List(params)
	var items []*stripe.WebhookEndpoint
	for iter.Next() {
		items = append(items, iter.WebhookEndpoint())
	}
	if err := iter.Err(); err != nil {
		return Page[*stripe.WebhookEndpoint]{}, wrapStripeErr(err, "list webhook endpoints")
	}
	return Page[*stripe.WebhookEndpoint]{Data: items, HasMore: iter.WebhookEndpointList().HasMore}, nil
}

func (p *StripeProvider) CreateWebhookEndpoint(ctx context.Context, wp WebhookEndpointParams) (*stripe.WebhookEndpoint, error) {
	params := &stripe.WebhookEndpointParams{
		URL:           stripe.String(wp.URL),
		EnabledEvents: stripe.StringSlice(wp.EnabledEvents),
	}
	params.Context = ctx
	params.Metadata = wp.Metadata

	endpoint, err := p.api.WebhookEndpoints.New(params)
	if err != nil {
		return nil, wrapStripeErr(err, "create webhook endpoint")
	}
	return endpoint, nil
}

func (p *StripeProvider) UpdateWebhookEndpoint(ctx context.Context, id string, wp WebhookEndpointParams) (*stripe.WebhookEndpoint, error) {
	params := &stripe.WebhookEndpointParams{
		URL:           stripe.String(wp.URL),
		EnabledEvents: stripe.StringSlice(wp.EnabledEvents),
	}
	params.Context = ctx
	params.Metadata = wp.Metadata

	endpoint, err := p.api.WebhookEndpoints.Update(id, params)
	if err != nil {
		return nil, wrapStripeErr(err, "update webhook endpoint")
	}
	return endpoint, nil
}

func (p *StripeProvider) UpdateWebhookEndpointMetadata(ctx context.Context, id string, metadata types.Metadata) (*stripe.WebhookEndpoint, error) {
	params := &stripe.WebhookEndpointParams{}
	params.Context = ctx
	params.Metadata = metadata

	endpoint, err := p.api.WebhookEndpoints.Update(id, params)
	if err != nil {
		return nil, wrapStripeErr(err, "tag webhook endpoint")
	}
	return endpoint, nil
}

func (p *StripeProvider) DeleteWebhookEndpoint(ctx context.Context, id string) error {
	params := &stripe.WebhookEndpointParams{}
	params.Context = ctx

	if _, err := p.api.WebhookEndpoints.Del(id, params); err != nil {
		return wrapStripeErr(err, "delete webhook endpoint")
	}
	return nil
}

func (p *StripeProvider) ListProducts(ctx context.Context, page PageParams) (Page[*stripe.Product], error) {
	params := &stripe.ProductListParams{}
	applyPage(ctx, &params.ListParams, page)

	iter := p.api.Products.List(params)
	var items []*stripe.Product
	for iter.Next() {
		items = append(items, iter.Product())
	}
	if err := iter.Err(); err != nil {
		return Page[*stripe.Product]{}, wrapStripeErr(err, "list products")
	}
	return Page[*stripe.Product]{Data: items, HasMore: iter.ProductList().HasMore}, nil
}

func (p *StripeProvider) CreateProduct(ctx context.Context, pp ProductParams) (*stripe.Product, error) {
	params := &stripe.ProductParams{
		Name: stripe.String(pp.Name),
	}
	if pp.Description != "" {
		params.Description = stripe.String(pp.Description)
	}
	params.Context = ctx
	params.Metadata = pp.Metadata

	product, err := p.api.Products.New(params)
	if err != nil {
		return nil, wrapStripeErr(err, "create product")
	}
	return product, nil
}

func (p *StripeProvider) UpdateProduct(ctx context.Context, id string, pp ProductParams) (*stripe.Product, error) {
	params := &stripe.ProductParams{
		Name: stripe.String(pp.Name),
	}
	if pp.Description != "" {
		params.Description = stripe.String(pp.Description)
	}
	params.Context = ctx
	params.Metadata = pp.Metadata

	product, err := p.api.Products.Update(id, params)
	if err != nil {
		return nil, wrapStripeErr(err, "update product")
	}
	return product, nil
}

func (p *StripeProvider) ListPrices(ctx context.Context, productID string, page PageParams) (Page[*stripe.Price], error) {
	params := &stripe.PriceListParams{
		Product: stripe.String(productID),
	}
	applyPage(ctx, &params.ListParams, page)

	iter := p.api.Prices.List(params)
	var items []*stripe.Price
	for iter.Next() {
		items = append(items, iter.Price())
	}
	if err := iter.Err(); err != nil {
		return Page[*stripe.Price]{}, wrapStripeErr(err, "list prices")
	}
	return Page[*stripe.Price]{Data: items, HasMore: iter.PriceList().HasMore}, nil
}

func (p *StripeProvider) CreatePrice(ctx context.Context, pp PriceParams) (*stripe.Price, error) {
	params := &stripe.PriceParams{
		Product:    stripe.String(pp.ProductID),
		UnitAmount: stripe.Int64(pp.UnitAmount),
		Currency:   stripe.String(pp.Currency),
	}
	// Recurring omitted entirely for one-time prices.
	if pp.Interval != "" {
		params.Recurring = &stripe.PriceRecurringParams{
			Interval: stripe.String(pp.Interval),
		}
	}
	params.Context = ctx
	params.Metadata = pp.Metadata

	price, err := p.api.Prices.New(params)
	if err != nil {
		return nil, wrapStripeErr(err, "create price")
	}
	return price, nil
}

func (p *StripeProvider) ListPortalConfigurations(ctx context.Context, page PageParams) (Page[*stripe.BillingPortalConfiguration], error) {
	params := &stripe.BillingPortalConfigurationListParams{}
	applyPage(ctx, &params.ListParams, page)

	iter := p.api.BillingPortalConfigurations.List(params)
	var items []*stripe.BillingPortalConfiguration
	for iter.Next() {
		items = append(items, iter.BillingPortalConfiguration())
	}
	if err := iter.Err(); err != nil {
		return Page[*stripe.BillingPortalConfiguration]{}, wrapStripeErr(err, "list portal configurations")
	}
	return Page[*stripe.BillingPortalConfiguration]{Data: items, HasMore: iter.BillingPortalConfigurationList().HasMore}, nil
}

func (p *StripeProvider) CreatePortalConfiguration(ctx context.Context, pp PortalConfigurationParams) (*stripe.BillingPortalConfiguration, error) {
	params := portalParams(pp.Configuration)
	params.Context = ctx
	params.Metadata = pp.Metadata

	configuration, err := p.api.BillingPortalConfigurations.New(params)
	if err != nil {
		return nil, wrapStripeErr(err, "create portal configuration")
	}
	return configuration, nil
}

func (p *StripeProvider) UpdatePortalConfiguration(ctx context.Context, id string, pp PortalConfigurationParams) (*stripe.BillingPortalConfiguration, error) {
	params := portalParams(pp.Configuration)
	params.Context = ctx
	params.Metadata = pp.Metadata

	configuration, err := p.api.BillingPortalConfigurations.Update(id, params)
	if err != nil {
		return nil, wrapStripeErr(err, "update portal configuration")
	}
	return configuration, nil
}

// portalParams maps the declared nested portal configuration onto the
// provider's parameter shape. Only declared feature blocks are sent.
func portalParams(c manifest.PortalConfiguration) *stripe.BillingPortalConfigurationParams {
	params := &stripe.BillingPortalConfigurationParams{}

	if c.DefaultReturnURL != "" {
		params.DefaultReturnURL = stripe.String(c.DefaultReturnURL)
	}
	if c.BusinessProfile.Headline != "" {
		params.BusinessProfile = &stripe.BillingPortalConfigurationBusinessProfileParams{
			Headline: stripe.String(c.BusinessProfile.Headline),
		}
	}

	features := &stripe.BillingPortalConfigurationFeaturesParams{}
	hasFeatures := false

	if f := c.Features.InvoiceHistory; f != nil {
		features.InvoiceHistory = &stripe.BillingPortalConfigurationFeaturesInvoiceHistoryParams{
			Enabled: stripe.Bool(f.Enabled),
		}
		hasFeatures = true
	}
	if f := c.Features.PaymentMethodUpdate; f != nil {
		features.PaymentMethodUpdate = &stripe.BillingPortalConfigurationFeaturesPaymentMethodUpdateParams{
			Enabled: stripe.Bool(f.Enabled),
		}
		hasFeatures = true
	}
	if f := c.Features.SubscriptionCancel; f != nil {
		cancel := &stripe.BillingPortalConfigurationFeaturesSubscriptionCancelParams{
			Enabled: stripe.Bool(f.Enabled),
		}
		if f.Mode != "" {
			cancel.Mode = stripe.String(f.Mode)
		}
		features.SubscriptionCancel = cancel
		hasFeatures = true
	}
	if f := c.Features.CustomerUpdate; f != nil {
		update := &stripe.BillingPortalConfigurationFeaturesCustomerUpdateParams{
			Enabled: stripe.Bool(f.Enabled),
		}
		if len(f.AllowedUpdates) > 0 {
			update.AllowedUpdates = stripe.StringSlice(f.AllowedUpdates)
		}
		features.CustomerUpdate = update
		hasFeatures = true
	}

	if hasFeatures {
		params.Features = features
	}
	return params
}

func applyPage(ctx context.Context, params *stripe.ListParams, page PageParams) {
	params.Context = ctx
	params.Single = true
	if page.Limit > 0 {
		params.Limit = stripe.Int64(page.Limit)
	}
	if page.StartingAfter != "" {
		params.StartingAfter = stripe.String(page.StartingAfter)
	}
}

// wrapStripeErr marks every provider failure as a remote call error, keeping
// the Stripe error code visible to the operator.
func wrapStripeErr(err error, op string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return ierr.WithError(err).
			WithHintf("Stripe call failed: %s", op).
			WithReportableDetails(map[string]any{
				"code": string(stripeErr.Code),
				"type": string(stripeErr.Type),
			}).
			Mark(ierr.ErrHTTPClient)
	}
	return ierr.WithError(err).
		WithHintf("Stripe call failed: %s", op).
		Mark(ierr.ErrHTTPClient)
}
