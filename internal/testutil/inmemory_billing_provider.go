package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/flexprice/stripesync/internal/billing"
	ierr "github.com/flexprice/stripesync/internal/errors"
	"github.com/flexprice/stripesync/internal/manifest"
	"github.com/flexprice/stripesync/internal/types"
	"github.com/stripe/stripe-go/v82"
)

// Operation names for failure injection on InMemoryBillingProvider.
const (
	OpListWebhookEndpoints     = "ListWebhookEndpoints"
	OpCreateWebhookEndpoint    = "CreateWebhookEndpoint"
	OpUpdateWebhookEndpoint    = "UpdateWebhookEndpoint"
	OpDeleteWebhookEndpoint    = "DeleteWebhookEndpoint"
	OpListProducts             = "ListProducts"
	OpCreateProduct            = "CreateProduct"
	OpUpdateProduct            = "UpdateProduct"
	OpListPrices               = "ListPrices"
	OpCreatePrice              = "CreatePrice"
	OpListPortalConfigurations = "ListPortalConfigurations"
	OpCreatePortalConfig       = "CreatePortalConfiguration"
	OpUpdatePortalConfig       = "UpdatePortalConfiguration"
)

// InMemoryBillingProvider implements billing.Provider against process memory,
// reproducing the provider behaviors the reconcilers depend on: single-page
// listings with has_more, metadata merge semantics on update, and the
// one-time webhook secret that is present only on the create response.
type InMemoryBillingProvider struct {
	mu       sync.RWMutex
	webhooks []*stripe.WebhookEndpoint
	products []*stripe.Product
	prices   []*stripe.Price
	portals  []*stripe.BillingPortalConfiguration
	seq      int

	// PortalConfigurations records the last configuration written per portal
	// id, for assertions.
	PortalConfigurations map[string]manifest.PortalConfiguration

	// OmitWebhookSecret makes CreateWebhookEndpoint return no secret,
	// simulating a provider contract violation.
	OmitWebhookSecret bool

	errs map[string]error
}

func NewInMemoryBillingProvider() *InMemoryBillingProvider {
	return &InMemoryBillingProvider{
		PortalConfigurations: make(map[string]manifest.PortalConfiguration),
		errs:                 make(map[string]error),
	}
}

// FailWith makes the named operation return err until cleared with nil.
func (p *InMemoryBillingProvider) FailWith(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.errs, op)
		return
	}
	p.errs[op] = err
}

func (p *InMemoryBillingProvider) injected(op string) error {
	return p.errs[op]
}

func (p *InMemoryBillingProvider) nextID(prefix string) string {
	p.seq++
	return fmt.Sprintf("%s_test_%03d", prefix, p.seq)
}

func (p *InMemoryBillingProvider) ListWebhookEndpoints(ctx context.Context, page billing.PageParams) (billing.Page[*stripe.WebhookEndpoint], error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.injected(OpListWebhookEndpoints); err != nil {
		return billing.Page[*stripe.WebhookEndpoint]{}, err
	}
	return paginate(p.webhooks, func(e *stripe.WebhookEndpoint) string { return e.ID }, page), nil
}

func (p *InMemoryBillingProvider) CreateWebhookEndpoint(ctx context.Context, params billing.WebhookEndpointParams) (*stripe.WebhookEndpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.injected(OpCreateWebhookEndpoint); err != nil {
		return nil, err
	}

	id := p.nextID("we")
	endpoint := &stripe.WebhookEndpoint{
		ID:            id,
		URL:           params.URL,
		EnabledEvents: append([]string(nil), params.EnabledEvents...),
		Metadata:      mergeMetadata(nil, params.Metadata),
		Status:        "enabled",
	}
	if !p.OmitWebhookSecret {
		endpoint.Secret = "whsec_" + id
	}
	p.webhooks = append(p.webhooks, endpoint)

	// Listings never reveal the secret; only the create response does.
	listed := *endpoint
	listed.Secret = ""
	p.webhooks[len(p.webhooks)-1] = &listed

	return endpoint, nil
}

func (p *InMemoryBillingProvider) UpdateWebhookEndpoint(ctx context.Context, id string, params billing.WebhookEndpointParams) (*stripe.WebhookEndpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.injected(OpUpdateWebhookEndpoint); err != nil {
		return nil, err
	}

	endpoint, err := findByID(p.webhooks, id, func(e *stripe.WebhookEndpoint) string { return e.ID })
	if err != nil {
		return nil, err
	}
	if params.URL != "" {
		endpoint.URL = params.URL
	}
	if params.EnabledEvents != nil {
		endpoint.EnabledEvents = append([]string(nil), params.EnabledEvents...)
	}
	endpoint.Metadata = mergeMetadata(endpoint.Metadata, params.Metadata)
	return endpoint, nil
}

func (p *InMemoryBillingProvider) UpdateWebhookEndpointMetadata(ctx context.Context, id string, metadata types.Metadata) (*stripe.WebhookEndpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.injected(OpUpdateWebhookEndpoint); err != nil {
		return nil, err
	}

	endpoint, err := findByID(p.webhooks, id, func(e *stripe.WebhookEndpoint) string { return e.ID })
	if err != nil {
		return nil, err
	}
	endpoint.Metadata = mergeMetadata(endpoint.Metadata, metadata)
	return endpoint, nil
}

func (p *InMemoryBillingProvider) DeleteWebhookEndpoint(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.injected(OpDeleteWebhookEndpoint); err != nil {
		return err
	}

	for i, endpoint := range p.webhooks {
		if endpoint.ID == id {
			p.webhooks = append(p.webhooks[:i], p.webhooks[i+1:]...)
			return nil
		}
	}
	return ierr.NewError("webhook endpoint not found").
		WithHintf("No endpoint %s", id).
		Mark(ierr.ErrNotFound)
}

func (p *InMemoryBillingProvider) ListProducts(ctx context.Context, page billing.PageParams) (billing.Page[*stripe.Product], error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.injected(OpListProducts); err != nil {
		return billing.Page[*stripe.Product]{}, err
	}
	return paginate(p.products, func(pr *stripe.Product) string { return pr.ID }, page), nil
}

func (p *InMemoryBillingProvider) CreateProduct(ctx context.Context, params billing.ProductParams) (*stripe.Product, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.injected(OpCreateProduct); err != nil {
		return nil, err
	}

	product := &stripe.Product{
		ID:          p.nextID("prod"),
		Name:        params.Name,
		Description: params.Description,
		Metadata:    mergeMetadata(nil, params.Metadata),
		Active:      true,
	}
	p.products = append(p.products, product)
	return product, nil
}

func (p *InMemoryBillingProvider) UpdateProduct(ctx context.Context, id string, params billing.ProductParams) (*stripe.Product, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.injected(OpUpdateProduct); err != nil {
		return nil, err
	}

	product, err := findByID(p.products, id, func(pr *stripe.Product) string { return pr.ID })
	if err != nil {
		return nil, err
	}
	if params.Name != "" {
		product.Name = params.Name
	}
	if params.Description != "" {
		product.Description = params.Description
	}
	product.Metadata = mergeMetadata(product.Metadata, params.Metadata)
	return product, nil
}

func (p *InMemoryBillingProvider) ListPrices(ctx context.Context, productID string, page billing.PageParams) (billing.Page[*stripe.Price], error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.injected(OpListPrices); err != nil {
		return billing.Page[*stripe.Price]{}, err
	}

	var matching []*stripe.Price
	for _, price := range p.prices {
		if price.Product != nil && price.Product.ID == productID {
			matching = append(matching, price)
		}
	}
	return paginate(matching, func(pr *stripe.Price) string { return pr.ID }, page), nil
}

func (p *InMemoryBillingProvider) CreatePrice(ctx context.Context, params billing.PriceParams) (*stripe.Price, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.injected(OpCreatePrice); err != nil {
		return nil, err
	}

	price := &stripe.Price{
		ID:         p.nextID("price"),
		UnitAmount: params.UnitAmount,
		Currency:   stripe.Currency(strings.ToLower(params.Currency)),
		Metadata:   mergeMetadata(nil, params.Metadata),
		Product:    &stripe.Product{ID: params.ProductID},
		Active:     true,
	}
	if params.Interval != "" {
		price.Recurring = &stripe.PriceRecurring{
			Interval: stripe.PriceRecurringInterval(params.Interval),
		}
	}
	p.prices = append(p.prices, price)
	return price, nil
}

func (p *InMemoryBillingProvider) ListPortalConfigurations(ctx context.Context, page billing.PageParams) (billing.Page[*stripe.BillingPortalConfiguration], error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.injected(OpListPortalConfigurations); err != nil {
		return billing.Page[*stripe.BillingPortalConfiguration]{}, err
	}
	return paginate(p.portals, func(c *stripe.BillingPortalConfiguration) string { return c.ID }, page), nil
}

func (p *InMemoryBillingProvider) CreatePortalConfiguration(ctx context.Context, params billing.PortalConfigurationParams) (*stripe.BillingPortalConfiguration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.injected(OpCreatePortalConfig); err != nil {
		return nil, err
	}

	configuration := &stripe.BillingPortalConfiguration{
		ID:       p.nextID("bpc"),
		Metadata: mergeMetadata(nil, params.Metadata),
		Active:   true,
	}
	p.portals = append(p.portals, configuration)
	p.PortalConfigurations[configuration.ID] = params.Configuration
	return configuration, nil
}

func (p *InMemoryBillingProvider) UpdatePortalConfiguration(ctx context.Context, id string, params billing.PortalConfigurationParams) (*stripe.BillingPortalConfiguration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.injected(OpUpdatePortalConfig); err != nil {
		return nil, err
	}

	configuration, err := findByID(p.portals, id, func(c *stripe.BillingPortalConfiguration) string { return c.ID })
	if err != nil {
		return nil, err
	}
	configuration.Metadata = mergeMetadata(configuration.Metadata, params.Metadata)
	p.PortalConfigurations[id] = params.Configuration
	return configuration, nil
}

// Webhooks returns the live endpoint list.
func (p *InMemoryBillingProvider) Webhooks() []*stripe.WebhookEndpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*stripe.WebhookEndpoint(nil), p.webhooks...)
}

// Products returns the live product list.
func (p *InMemoryBillingProvider) Products() []*stripe.Product {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*stripe.Product(nil), p.products...)
}

// Prices returns the live price list across all products.
func (p *InMemoryBillingProvider) Prices() []*stripe.Price {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*stripe.Price(nil), p.prices...)
}

// Portals returns the live portal configuration list.
func (p *InMemoryBillingProvider) Portals() []*stripe.BillingPortalConfiguration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*stripe.BillingPortalConfiguration(nil), p.portals...)
}

// SeedWebhook installs a pre-existing remote endpoint.
func (p *InMemoryBillingProvider) SeedWebhook(endpoint *stripe.WebhookEndpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.webhooks = append(p.webhooks, endpoint)
}

// SeedProduct installs a pre-existing remote product.
func (p *InMemoryBillingProvider) SeedProduct(product *stripe.Product) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.products = append(p.products, product)
}

// SeedPrice installs a pre-existing remote price.
func (p *InMemoryBillingProvider) SeedPrice(price *stripe.Price) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices = append(p.prices, price)
}

// SeedPortal installs a pre-existing remote portal configuration.
func (p *InMemoryBillingProvider) SeedPortal(configuration *stripe.BillingPortalConfiguration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.portals = append(p.portals, configuration)
}

// Clear drops all remote state and injected failures.
func (p *InMemoryBillingProvider) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.webhooks = nil
	p.products = nil
	p.prices = nil
	p.portals = nil
	p.seq = 0
	p.OmitWebhookSecret = false
	p.PortalConfigurations = make(map[string]manifest.PortalConfiguration)
	p.errs = make(map[string]error)
}

// paginate slices items into one page honoring the cursor and limit, the way
// the provider's listing API does.
func paginate[T any](items []T, id func(T) string, page billing.PageParams) billing.Page[T] {
	start := 0
	if page.StartingAfter != "" {
		for i, item := range items {
			if id(item) == page.StartingAfter {
				start = i + 1
				break
			}
		}
	}

	limit := int(page.Limit)
	if limit <= 0 {
		limit = 10
	}

	end := start + limit
	if end > len(items) {
		end = len(items)
	}

	return billing.Page[T]{
		Data:    append([]T(nil), items[start:end]...),
		HasMore: end < len(items),
	}
}

func findByID[T any](items []T, id string, key func(T) string) (T, error) {
	for _, item := range items {
		if key(item) == id {
			return item, nil
		}
	}
	var zero T
	return zero, ierr.NewError("resource not found").
		WithHintf("No resource %s", id).
		Mark(ierr.ErrNotFound)
}

// mergeMetadata reproduces the provider's metadata update semantics: keys set
// to the empty string are removed, others overlaid.
func mergeMetadata(current map[string]string, updates types.Metadata) map[string]string {
	merged := make(map[string]string, len(current)+len(updates))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range updates {
		if v == "" {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	return merged
}
