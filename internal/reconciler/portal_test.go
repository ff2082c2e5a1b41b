package reconciler

import (
	"context"
	"testing"

	"github.com/flexprice/stripesync/internal/manifest"
	"github.com/flexprice/stripesync/internal/stack"
	"github.com/flexprice/stripesync/internal/testutil"
	"github.com/stretchr/testify/suite"
	"github.com/stripe/stripe-go/v82"
)

type PortalReconcilerSuite struct {
	suite.Suite
	ctx      context.Context
	provider *testutil.InMemoryBillingProvider
	env      *stack.EnvMap
	r        *PortalReconciler
}

func TestPortalReconciler(t *testing.T) {
	suite.Run(t, new(PortalReconcilerSuite))
}

func (s *PortalReconcilerSuite) SetupTest() {
	s.ctx = context.Background()
	s.provider = testutil.NewInMemoryBillingProvider()
	s.env = stack.NewEnvMap()
	s.r = NewPortalReconciler(testAccountParams(s.provider, testutil.NewInMemorySecretStore(), s.env, false))
}

func (s *PortalReconcilerSuite) declared() []manifest.Portal {
	return []manifest.Portal{
		{
			InternalID:      "default_portal",
			EnvVariableName: "billingPortalConfigId",
			Configuration: manifest.PortalConfiguration{
				DefaultReturnURL: "https://example.com/billing",
				BusinessProfile:  manifest.PortalBusinessProfile{Headline: "Manage your subscription"},
				Features: manifest.PortalFeatures{
					InvoiceHistory: &manifest.PortalFeatureToggle{Enabled: true},
				},
			},
		},
	}
}

func (s *PortalReconcilerSuite) TestCreatesConfigurationAndPublishesEnv() {
	entries, err := s.r.Reconcile(s.ctx, s.declared())
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Require().Equal(ActionCreated, entries[0].Action)

	portals := s.provider.Portals()
	s.Require().Len(portals, 1)
	s.Require().Equal("default_portal", portals[0].Metadata[TagInternalID])
	s.Require().Equal("stripesync", portals[0].Metadata[TagManagedBy])

	stored := s.provider.PortalConfigurations[portals[0].ID]
	s.Require().Equal("https://example.com/billing", stored.DefaultReturnURL)

	s.Require().Equal(portals[0].ID, s.env.SharedEnv()["billingPortalConfigId"])
}

func (s *PortalReconcilerSuite) TestUpdatesExistingConfigurationInPlace() {
	_, err := s.r.Reconcile(s.ctx, s.declared())
	s.Require().NoError(err)
	id := s.provider.Portals()[0].ID

	changed := s.declared()
	changed[0].Configuration.BusinessProfile.Headline = "New headline"

	entries, err := s.r.Reconcile(s.ctx, changed)
	s.Require().NoError(err)
	s.Require().Equal(ActionUpdated, entries[0].Action)
	s.Require().Equal(id, entries[0].ID)

	s.Require().Len(s.provider.Portals(), 1)
	s.Require().Equal("New headline", s.provider.PortalConfigurations[id].BusinessProfile.Headline)
}

func (s *PortalReconcilerSuite) TestForeignConfigurationsAreIgnored() {
	s.provider.SeedPortal(&stripe.BillingPortalConfiguration{
		ID: "bpc_foreign",
		Metadata: map[string]string{
			TagManagedBy:  "stripesync",
			TagService:    "checkout",
			TagStage:      "prod",
			TagInternalID: "default_portal",
		},
	})

	_, err := s.r.Reconcile(s.ctx, s.declared())
	s.Require().NoError(err)

	// A new configuration was created instead of adopting the foreign one.
	s.Require().Len(s.provider.Portals(), 2)
	s.Require().NotEqual("bpc_foreign", s.env.SharedEnv()["billingPortalConfigId"])
}
