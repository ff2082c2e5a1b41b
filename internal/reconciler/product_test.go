package reconciler

import (
	"context"
	"fmt"
	"testing"

	ierr "github.com/flexprice/stripesync/internal/errors"
	"github.com/flexprice/stripesync/internal/manifest"
	"github.com/flexprice/stripesync/internal/stack"
	"github.com/flexprice/stripesync/internal/testutil"
	"github.com/stretchr/testify/suite"
	"github.com/stripe/stripe-go/v82"
)

type ProductReconcilerSuite struct {
	suite.Suite
	ctx      context.Context
	provider *testutil.InMemoryBillingProvider
	env      *stack.EnvMap
	r        *ProductReconciler
}

func TestProductReconciler(t *testing.T) {
	suite.Run(t, new(ProductReconcilerSuite))
}

func (s *ProductReconcilerSuite) SetupTest() {
	s.ctx = context.Background()
	s.provider = testutil.NewInMemoryBillingProvider()
	s.env = stack.NewEnvMap()
	s.r = NewProductReconciler(testAccountParams(s.provider, testutil.NewInMemorySecretStore(), s.env, false))
}

func (s *ProductReconcilerSuite) declared() []manifest.Product {
	return []manifest.Product{
		{
			Name:     "Subscription",
			Internal: manifest.ProductInternal{ID: "subscription", Description: "Recurring subscription"},
			Prices: []manifest.Price{
				{ID: "price_sweden", Price: 9900, Currency: "sek", Interval: "year", CountryCode: "SE"},
			},
		},
	}
}

func (s *ProductReconcilerSuite) TestCreatesProductAndPricePublishesEnv() {
	entries, err := s.r.Reconcile(s.ctx, s.declared())
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Require().Equal(ActionCreated, entries[0].Action)
	s.Require().Len(entries[0].Prices, 1)
	s.Require().Equal(ActionCreated, entries[0].Prices[0].Action)

	products := s.provider.Products()
	s.Require().Len(products, 1)
	s.Require().Equal("Subscription", products[0].Name)
	s.Require().Equal("subscription", products[0].Metadata[TagInternalID])
	s.Require().Equal("stripesync", products[0].Metadata[TagManagedBy])

	prices := s.provider.Prices()
	s.Require().Len(prices, 1)
	s.Require().Equal(int64(9900), prices[0].UnitAmount)
	s.Require().Equal("sek", string(prices[0].Currency))
	s.Require().NotNil(prices[0].Recurring)
	s.Require().Equal("year", string(prices[0].Recurring.Interval))
	s.Require().Equal("SE", prices[0].Metadata[TagCountryCode])

	shared := s.env.SharedEnv()
	s.Require().Equal(products[0].ID, shared["subscription"])
	s.Require().Equal(prices[0].ID, shared["price_sweden"])
}

func (s *ProductReconcilerSuite) TestRerunReusesExistingPrice() {
	_, err := s.r.Reconcile(s.ctx, s.declared())
	s.Require().NoError(err)
	firstPriceID := s.provider.Prices()[0].ID

	entries, err := s.r.Reconcile(s.ctx, s.declared())
	s.Require().NoError(err)
	s.Require().Equal(ActionUpdated, entries[0].Action)
	s.Require().Equal(ActionReused, entries[0].Prices[0].Action)
	s.Require().Equal(firstPriceID, entries[0].Prices[0].ID)

	s.Require().Len(s.provider.Prices(), 1, "matching is by identity tuple, not by symbolic id")
	s.Require().Equal(firstPriceID, s.env.SharedEnv()["price_sweden"])
}

func (s *ProductReconcilerSuite) TestIntervalChangeMintsNewPrice() {
	_, err := s.r.Reconcile(s.ctx, s.declared())
	s.Require().NoError(err)

	monthly := s.declared()
	monthly[0].Prices[0].Interval = "month"

	entries, err := s.r.Reconcile(s.ctx, monthly)
	s.Require().NoError(err)
	s.Require().Equal(ActionCreated, entries[0].Prices[0].Action)
	s.Require().Len(s.provider.Prices(), 2, "prices are immutable; a changed interval creates a new one")
}

func (s *ProductReconcilerSuite) TestCurrencyChangeMintsNewPrice() {
	_, err := s.r.Reconcile(s.ctx, s.declared())
	s.Require().NoError(err)

	eur := s.declared()
	eur[0].Prices[0].Currency = "eur"

	_, err = s.r.Reconcile(s.ctx, eur)
	s.Require().NoError(err)
	s.Require().Len(s.provider.Prices(), 2)
}

func (s *ProductReconcilerSuite) TestOneTimeAndRecurringAreDistinct() {
	declared := s.declared()
	declared[0].Prices = []manifest.Price{
		{ID: "price_yearly", Price: 9900, Currency: "sek", Interval: "year", CountryCode: "SE"},
		{ID: "price_once", Price: 9900, Currency: "sek", CountryCode: "SE"},
	}

	_, err := s.r.Reconcile(s.ctx, declared)
	s.Require().NoError(err)

	prices := s.provider.Prices()
	s.Require().Len(prices, 2)

	var oneTime *stripe.Price
	for _, p := range prices {
		if p.Recurring == nil {
			oneTime = p
		}
	}
	s.Require().NotNil(oneTime, "a price without interval must be non-recurring")
	s.Require().NotEqual(s.env.SharedEnv()["price_yearly"], s.env.SharedEnv()["price_once"])
}

func (s *ProductReconcilerSuite) TestIdenticalTuplesConvergeWithinOneRun() {
	declared := s.declared()
	declared[0].Prices = []manifest.Price{
		{ID: "price_a", Price: 9900, Currency: "sek", Interval: "year", CountryCode: "SE"},
		{ID: "price_b", Price: 9900, Currency: "sek", Interval: "year", CountryCode: "SE"},
	}

	entries, err := s.r.Reconcile(s.ctx, declared)
	s.Require().NoError(err)

	s.Require().Len(s.provider.Prices(), 1)
	s.Require().Equal(ActionCreated, entries[0].Prices[0].Action)
	s.Require().Equal(ActionReused, entries[0].Prices[1].Action)
	s.Require().Equal(s.env.SharedEnv()["price_a"], s.env.SharedEnv()["price_b"])
}

func (s *ProductReconcilerSuite) TestFreshProductSkipsPriceListing() {
	// A product created in this run has no prices to list; the reconciler
	// must not even ask.
	s.provider.FailWith(testutil.OpListPrices, ierr.NewError("listing must not happen").Mark(ierr.ErrHTTPClient))

	_, err := s.r.Reconcile(s.ctx, s.declared())
	s.Require().NoError(err)
	s.Require().Len(s.provider.Prices(), 1)
}

func (s *ProductReconcilerSuite) TestForeignPricesNeverMatch() {
	_, err := s.r.Reconcile(s.ctx, s.declared())
	s.Require().NoError(err)
	productID := s.provider.Products()[0].ID

	// Same tuple but created by another stage: must not be reused.
	s.provider.SeedPrice(&stripe.Price{
		ID:         "price_foreign",
		UnitAmount: 4900,
		Currency:   "sek",
		Recurring:  &stripe.PriceRecurring{Interval: "month"},
		Product:    &stripe.Product{ID: productID},
		Metadata: map[string]string{
			TagManagedBy:   "stripesync",
			TagService:     "checkout",
			TagStage:       "prod",
			TagCountryCode: "SE",
		},
	})

	monthly := s.declared()
	monthly[0].Prices = []manifest.Price{
		{ID: "price_monthly", Price: 4900, Currency: "sek", Interval: "month", CountryCode: "SE"},
	}

	_, err = s.r.Reconcile(s.ctx, monthly)
	s.Require().NoError(err)
	s.Require().NotEqual("price_foreign", s.env.SharedEnv()["price_monthly"])
}

func (s *ProductReconcilerSuite) TestUpdatesExistingProductInPlace() {
	_, err := s.r.Reconcile(s.ctx, s.declared())
	s.Require().NoError(err)
	productID := s.provider.Products()[0].ID

	renamed := s.declared()
	renamed[0].Name = "Premium Subscription"

	entries, err := s.r.Reconcile(s.ctx, renamed)
	s.Require().NoError(err)
	s.Require().Equal(ActionUpdated, entries[0].Action)

	products := s.provider.Products()
	s.Require().Len(products, 1)
	s.Require().Equal(productID, products[0].ID)
	s.Require().Equal("Premium Subscription", products[0].Name)
}

func (s *ProductReconcilerSuite) TestMatchesOwnedProductAcrossPages() {
	// Bury the owned product deep enough that listing needs several pages.
	for i := 0; i < 205; i++ {
		s.provider.SeedProduct(&stripe.Product{
			ID:   fmt.Sprintf("prod_other_%03d", i),
			Name: "Unrelated",
		})
	}
	s.provider.SeedProduct(&stripe.Product{
		ID:   "prod_mine",
		Name: "Subscription",
		Metadata: map[string]string{
			TagManagedBy:  "stripesync",
			TagService:    "checkout",
			TagStage:      "dev",
			TagInternalID: "subscription",
		},
	})

	declared := s.declared()
	declared[0].Prices = nil

	entries, err := s.r.Reconcile(s.ctx, declared)
	s.Require().NoError(err)
	s.Require().Equal(ActionUpdated, entries[0].Action)
	s.Require().Equal("prod_mine", entries[0].ID)
}

func (s *ProductReconcilerSuite) TestStalePricesAreLeftAlone() {
	_, err := s.r.Reconcile(s.ctx, s.declared())
	s.Require().NoError(err)

	// Drop the declared price entirely; the remote one must survive.
	declared := s.declared()
	declared[0].Prices = nil

	_, err = s.r.Reconcile(s.ctx, declared)
	s.Require().NoError(err)
	s.Require().Len(s.provider.Prices(), 1)
}
