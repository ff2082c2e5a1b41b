package reconciler

import (
	"context"
	"strings"

	"github.com/flexprice/stripesync/internal/billing"
	"github.com/flexprice/stripesync/internal/logger"
	"github.com/flexprice/stripesync/internal/manifest"
	"github.com/flexprice/stripesync/internal/pagination"
	"github.com/flexprice/stripesync/internal/stack"
	"github.com/flexprice/stripesync/internal/types"
	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v82"
)

// ProductReconciler upserts declared products and creates missing prices.
// Prices are financial records: once created they are never mutated, and
// nothing here ever deletes a product or price.
type ProductReconciler struct {
	accountID string
	owner     Owner
	provider  billing.Provider
	env       stack.EnvSink
	logger    *logger.Logger
}

func NewProductReconciler(params AccountParams) *ProductReconciler {
	return &ProductReconciler{
		accountID: params.AccountID,
		owner:     params.Owner,
		provider:  params.Provider,
		env:       params.Env,
		logger:    params.Logger,
	}
}

// Reconcile upserts each declared product by its internalId tag and resolves
// every declared price to an existing or freshly created remote price.
func (r *ProductReconciler) Reconcile(ctx context.Context, declared []manifest.Product) ([]ProductEntry, error) {
	owned, err := r.listOwnedProducts(ctx)
	if err != nil {
		return nil, err
	}

	var entries []ProductEntry
	for _, product := range declared {
		entry, err := r.reconcileProduct(ctx, product, owned)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

func (r *ProductReconciler) reconcileProduct(ctx context.Context, product manifest.Product, owned []*stripe.Product) (ProductEntry, error) {
	tags := r.owner.Tags().Merge(types.Metadata{TagInternalID: product.Internal.ID})
	params := billing.ProductParams{
		Name:        product.Name,
		Description: product.Internal.Description,
		Metadata:    tags,
	}

	existing, found := lo.Find(owned, func(p *stripe.Product) bool {
		return p.Metadata[TagInternalID] == product.Internal.ID
	})

	var (
		remote  *stripe.Product
		action  string
		created bool
		err     error
	)
	if !found {
		remote, err = r.provider.CreateProduct(ctx, params)
		action, created = ActionCreated, true
	} else {
		remote, err = r.provider.UpdateProduct(ctx, existing.ID, params)
		action = ActionUpdated
	}
	if err != nil {
		return ProductEntry{}, err
	}

	r.logger.Infow(action+" product",
		"account_id", r.accountID,
		"product_id", remote.ID,
		"internal_id", product.Internal.ID)

	r.env.SetSharedEnv(product.Internal.ID, remote.ID)

	// A product created in this run cannot have prices yet.
	var existingPrices []*stripe.Price
	if !created {
		existingPrices, err = r.listPrices(ctx, remote.ID)
		if err != nil {
			return ProductEntry{}, err
		}
	}

	entry := ProductEntry{
		Action:     action,
		ID:         remote.ID,
		InternalID: product.Internal.ID,
		Name:       product.Name,
	}

	for _, price := range product.Prices {
		priceEntry, resolved, err := r.reconcilePrice(ctx, remote.ID, price, existingPrices)
		if err != nil {
			return ProductEntry{}, err
		}
		// Later declared prices must see prices created earlier in this
		// run, so identical tuples converge on one remote price.
		if priceEntry.Action == ActionCreated {
			existingPrices = append(existingPrices, resolved)
		}
		entry.Prices = append(entry.Prices, priceEntry)
	}

	return entry, nil
}

// reconcilePrice resolves a declared price against the product's existing
// prices by the identity tuple: ownership tags, country, amount, currency
// and interval. The declared symbolic id takes no part in matching.
func (r *ProductReconciler) reconcilePrice(ctx context.Context, productID string, price manifest.Price, existing []*stripe.Price) (PriceEntry, *stripe.Price, error) {
	match, found := lo.Find(existing, func(p *stripe.Price) bool {
		return r.priceMatches(p, price)
	})

	if found {
		r.env.SetSharedEnv(price.ID, match.ID)
		return PriceEntry{
			Action:      ActionReused,
			ID:          match.ID,
			SymbolicID:  price.ID,
			Amount:      price.Price,
			Currency:    price.Currency,
			Interval:    price.Interval,
			CountryCode: price.CountryCode,
		}, match, nil
	}

	tags := r.owner.Tags().Merge(types.Metadata{TagCountryCode: price.CountryCode})
	created, err := r.provider.CreatePrice(ctx, billing.PriceParams{
		ProductID:  productID,
		UnitAmount: price.Price,
		Currency:   price.Currency,
		Interval:   price.Interval,
		Metadata:   tags,
	})
	if err != nil {
		return PriceEntry{}, nil, err
	}

	r.logger.Infow("created price",
		"account_id", r.accountID,
		"product_id", productID,
		"price_id", created.ID,
		"amount", price.Price,
		"currency", price.Currency,
		"interval", price.Interval,
		"country", price.CountryCode)

	r.env.SetSharedEnv(price.ID, created.ID)

	return PriceEntry{
		Action:      ActionCreated,
		ID:          created.ID,
		SymbolicID:  price.ID,
		Amount:      price.Price,
		Currency:    price.Currency,
		Interval:    price.Interval,
		CountryCode: price.CountryCode,
	}, created, nil
}

func (r *ProductReconciler) priceMatches(remote *stripe.Price, declared manifest.Price) bool {
	if !r.owner.Owns(remote.Metadata) {
		return false
	}
	if remote.Metadata[TagCountryCode] != declared.CountryCode {
		return false
	}
	if remote.UnitAmount != declared.Price {
		return false
	}
	if !strings.EqualFold(string(remote.Currency), declared.Currency) {
		return false
	}

	if declared.Interval == "" {
		return remote.Recurring == nil
	}
	return remote.Recurring != nil && string(remote.Recurring.Interval) == declared.Interval
}

func (r *ProductReconciler) listOwnedProducts(ctx context.Context) ([]*stripe.Product, error) {
	all, err := pagination.All(ctx,
		func(ctx context.Context, cursor string) ([]*stripe.Product, bool, error) {
			page, err := r.provider.ListProducts(ctx, billing.PageParams{
				Limit:         pagination.DefaultPageSize,
				StartingAfter: cursor,
			})
			if err != nil {
				return nil, false, err
			}
			return page.Data, page.HasMore, nil
		},
		func(p *stripe.Product) string { return p.ID },
	)
	if err != nil {
		return nil, err
	}

	return lo.Filter(all, func(p *stripe.Product, _ int) bool {
		return r.owner.Owns(p.Metadata)
	}), nil
}

func (r *ProductReconciler) listPrices(ctx context.Context, productID string) ([]*stripe.Price, error) {
	return pagination.All(ctx,
		func(ctx context.Context, cursor string) ([]*stripe.Price, bool, error) {
			page, err := r.provider.ListPrices(ctx, productID, billing.PageParams{
				Limit:         pagination.DefaultPageSize,
				StartingAfter: cursor,
			})
			if err != nil {
				return nil, false, err
			}
			return page.Data, page.HasMore, nil
		},
		func(p *stripe.Price) string { return p.ID },
	)
}
