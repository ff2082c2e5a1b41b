package manifest

import (
	ierr "github.com/flexprice/stripesync/internal/errors"
)

// Product declares one sellable product and its price tiers. The internal id
// is the stable cross-deployment identity; the provider-assigned product id
// is resolved at reconciliation time and published under that internal id.
type Product struct {
	Name     string          `mapstructure:"name"`
	Internal ProductInternal `mapstructure:"internal"`
	Prices   []Price         `mapstructure:"prices"`
}

type ProductInternal struct {
	ID          string `mapstructure:"id"`
	Description string `mapstructure:"description"`
}

// Price declares one price tier. The id is only a symbolic handle for env
// publication; remote matching uses the identity tuple of country, amount,
// currency and interval together with the ownership tags.
type Price struct {
	ID          string `mapstructure:"id"`
	Price       int64  `mapstructure:"price"`
	Currency    string `mapstructure:"currency"`
	Interval    string `mapstructure:"interval"`
	CountryCode string `mapstructure:"countryCode"`
}

const (
	IntervalMonth = "month"
	IntervalYear  = "year"
)

func (p Product) Validate() error {
	if p.Internal.ID == "" {
		return ierr.NewError("product is missing internal.id").
			WithHintf("Product %q must declare a stable internal id", p.Name).
			Mark(ierr.ErrValidation)
	}

	if !IsValidIdentifier(p.Internal.ID) {
		return ierr.NewError("product internal.id is not a valid identifier").
			WithHintf("%s must match ^[a-zA-Z][a-zA-Z0-9_]+$", p.Internal.ID).
			WithReportableDetails(map[string]any{
				"internalId": p.Internal.ID,
			}).
			Mark(ierr.ErrValidation)
	}

	if p.Name == "" {
		return ierr.NewError("product is missing name").
			WithHintf("Product %s must declare a display name", p.Internal.ID).
			WithReportableDetails(map[string]any{
				"internalId": p.Internal.ID,
			}).
			Mark(ierr.ErrValidation)
	}

	for _, price := range p.Prices {
		if err := price.Validate(p.Internal.ID); err != nil {
			return err
		}
	}

	return nil
}

func (p Price) Validate(productID string) error {
	if p.ID == "" {
		return ierr.NewError("price is missing id").
			WithHintf("Every price of product %s needs a symbolic id for env publication", productID).
			WithReportableDetails(map[string]any{
				"internalId": productID,
			}).
			Mark(ierr.ErrValidation)
	}

	if !IsValidIdentifier(p.ID) {
		return ierr.NewError("price id is not a valid identifier").
			WithHintf("%s must match ^[a-zA-Z][a-zA-Z0-9_]+$", p.ID).
			WithReportableDetails(map[string]any{
				"internalId": productID,
				"priceId":    p.ID,
			}).
			Mark(ierr.ErrValidation)
	}

	if p.Price <= 0 {
		return ierr.NewError("price amount must be a positive minor-unit integer").
			WithHintf("Price %s of product %s declares amount %d", p.ID, productID, p.Price).
			WithReportableDetails(map[string]any{
				"priceId": p.ID,
				"amount":  p.Price,
			}).
			Mark(ierr.ErrValidation)
	}

	if p.Currency == "" {
		return ierr.NewError("price is missing currency").
			WithHintf("Price %s of product %s must declare a currency", p.ID, productID).
			WithReportableDetails(map[string]any{
				"priceId": p.ID,
			}).
			Mark(ierr.ErrValidation)
	}

	if p.CountryCode == "" {
		return ierr.NewError("price is missing countryCode").
			WithHintf("Price %s of product %s must declare a country code", p.ID, productID).
			WithReportableDetails(map[string]any{
				"priceId": p.ID,
			}).
			Mark(ierr.ErrValidation)
	}

	switch p.Interval {
	case "", IntervalMonth, IntervalYear:
	default:
		return ierr.NewError("price interval is invalid").
			WithHintf("Price %s declares interval %q; valid values are month, year or omitted", p.ID, p.Interval).
			WithReportableDetails(map[string]any{
				"priceId":  p.ID,
				"interval": p.Interval,
			}).
			Mark(ierr.ErrValidation)
	}

	return nil
}
