package reconciler

import (
	"context"
	"strings"
	"testing"

	"github.com/flexprice/stripesync/internal/billing"
	ierr "github.com/flexprice/stripesync/internal/errors"
	"github.com/flexprice/stripesync/internal/manifest"
	"github.com/flexprice/stripesync/internal/stack"
	"github.com/flexprice/stripesync/internal/testutil"
	"github.com/stretchr/testify/suite"
)

type OrchestratorSuite struct {
	suite.Suite
	ctx      context.Context
	provider *testutil.InMemoryBillingProvider
	secrets  *testutil.InMemorySecretStore
	env      *stack.EnvMap
}

func TestOrchestrator(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) SetupTest() {
	s.ctx = context.Background()
	s.provider = testutil.NewInMemoryBillingProvider()
	s.secrets = testutil.NewInMemorySecretStore()
	s.env = stack.NewEnvMap()
}

func (s *OrchestratorSuite) deployManifest() *manifest.Manifest {
	m := testStackManifest()
	m.Accounts = []manifest.Account{
		{
			AccountID: "default",
			APIKeyEnv: "STRIPE_SECRET_KEY",
			Webhooks: []manifest.Webhook{
				{
					FunctionName:                 "webhookHandler",
					Events:                       []string{"invoice.payment_succeeded"},
					WebhookSecretEnvVariableName: "stripeWebhookSecret",
				},
			},
			Products: []manifest.Product{
				{
					Name:     "Subscription",
					Internal: manifest.ProductInternal{ID: "subscription", Description: "Recurring subscription"},
					Prices: []manifest.Price{
						{ID: "price_sweden", Price: 9900, Currency: "sek", Interval: "year", CountryCode: "SE"},
					},
				},
			},
			Portals: []manifest.Portal{
				{
					InternalID:      "default_portal",
					EnvVariableName: "billingPortalConfigId",
					Configuration: manifest.PortalConfiguration{
						DefaultReturnURL: "https://example.com/billing",
						Features: manifest.PortalFeatures{
							InvoiceHistory: &manifest.PortalFeatureToggle{Enabled: true},
						},
					},
				},
			},
		},
	}
	return m
}

func (s *OrchestratorSuite) orchestrator(m *manifest.Manifest, providers map[string]billing.Provider) *Orchestrator {
	if providers == nil {
		providers = map[string]billing.Provider{"default": s.provider}
	}
	o, err := NewOrchestrator(m, Dependencies{
		Providers: providers,
		Secrets:   s.secrets,
		Env:       s.env,
		Logger:    testutil.GetLogger(),
		ManagedBy: "stripesync",
	})
	s.Require().NoError(err)
	return o
}

func (s *OrchestratorSuite) TestDeployEndToEndSingleWebhook() {
	m := s.deployManifest()
	m.Accounts[0].Products = nil
	m.Accounts[0].Portals = nil

	blocks, err := s.orchestrator(m, nil).Deploy(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(blocks, 1)

	webhooks := s.provider.Webhooks()
	s.Require().Len(webhooks, 1)
	s.Require().Equal("https://api.example.com/v1/webhooks/stripe", webhooks[0].URL)
	s.Require().Equal([]string{"invoice.payment_succeeded"}, webhooks[0].EnabledEvents)
	s.Require().Equal("webhookHandler", webhooks[0].Metadata[TagLambda])

	secret := s.secrets.Value(testSecretKey)
	s.Require().NotEmpty(secret)
	s.Require().Equal(secret, s.env.FunctionEnv("webhookHandler")["stripeWebhookSecret"])

	s.Require().Contains(blocks[0], "webhooks:")
	s.Require().Contains(blocks[0], "webhookHandler")
}

func (s *OrchestratorSuite) TestDeployThenReapplyCreatesNothingNew() {
	m := s.deployManifest()

	_, err := s.orchestrator(m, nil).Deploy(s.ctx)
	s.Require().NoError(err)

	productID := s.env.SharedEnv()["subscription"]
	priceID := s.env.SharedEnv()["price_sweden"]
	s.Require().NotEmpty(productID)
	s.Require().NotEmpty(priceID)

	_, err = s.orchestrator(m, nil).Deploy(s.ctx)
	s.Require().NoError(err)

	s.Require().Len(s.provider.Webhooks(), 1)
	s.Require().Len(s.provider.Products(), 1)
	s.Require().Len(s.provider.Prices(), 1)
	s.Require().Len(s.provider.Portals(), 1)
	s.Require().Equal(productID, s.env.SharedEnv()["subscription"])
	s.Require().Equal(priceID, s.env.SharedEnv()["price_sweden"])
}

func (s *OrchestratorSuite) TestGateFailureStopsBeforeRemoteCalls() {
	m := s.deployManifest()
	m.Accounts[0].Webhooks = append(m.Accounts[0].Webhooks, m.Accounts[0].Webhooks[0])

	_, err := s.orchestrator(m, nil).Deploy(s.ctx)
	s.Require().Error(err)
	s.Require().True(ierr.IsValidation(err))

	s.Require().Empty(s.provider.Webhooks())
	s.Require().Empty(s.provider.Products())
	s.Require().Empty(s.provider.Portals())
}

func (s *OrchestratorSuite) TestPortalsRunBeforeWebhooks() {
	s.provider.FailWith(testutil.OpCreateWebhookEndpoint, ierr.NewError("boom").Mark(ierr.ErrHTTPClient))

	_, err := s.orchestrator(s.deployManifest(), nil).Deploy(s.ctx)
	s.Require().Error(err)
	s.Require().True(ierr.IsHTTPClient(err))

	// Portals completed before the webhook phase failed; products never ran.
	s.Require().Len(s.provider.Portals(), 1)
	s.Require().Empty(s.provider.Products())
}

func (s *OrchestratorSuite) TestWebhooksRunBeforeProducts() {
	s.provider.FailWith(testutil.OpCreateProduct, ierr.NewError("boom").Mark(ierr.ErrHTTPClient))

	_, err := s.orchestrator(s.deployManifest(), nil).Deploy(s.ctx)
	s.Require().Error(err)

	s.Require().Len(s.provider.Webhooks(), 1)
	s.Require().Empty(s.provider.Products())
}

func (s *OrchestratorSuite) TestMultiAccountIsolationAndPrefixedSummaries() {
	providerB := testutil.NewInMemoryBillingProvider()

	m := s.deployManifest()
	m.Accounts[0].Products = nil
	m.Accounts[0].Portals = nil
	second := m.Accounts[0]
	second.AccountID = "secondary"
	second.APIKeyEnv = "STRIPE_SECRET_KEY_SECONDARY"
	second.Webhooks = []manifest.Webhook{
		{
			FunctionName:                 "paymentHandler",
			Events:                       []string{"charge.succeeded"},
			WebhookSecretEnvVariableName: "paymentWebhookSecret",
		},
	}
	m.Accounts = append(m.Accounts, second)

	providers := map[string]billing.Provider{
		"default":   s.provider,
		"secondary": providerB,
	}

	blocks, err := s.orchestrator(m, providers).Deploy(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(blocks, 2)

	// Blocks come back in declaration order, each prefixed by its account.
	s.Require().True(strings.HasPrefix(blocks[0], "account default:"))
	s.Require().True(strings.HasPrefix(blocks[1], "account secondary:"))

	s.Require().Len(s.provider.Webhooks(), 1)
	s.Require().Len(providerB.Webhooks(), 1)
	s.Require().Contains(s.provider.Webhooks()[0].URL, "?account=default")
	s.Require().Contains(providerB.Webhooks()[0].URL, "?account=secondary")
}

func (s *OrchestratorSuite) TestUndeclaredWebhookSurvivesUntilSweep() {
	m := s.deployManifest()
	m.Accounts[0].Products = nil
	m.Accounts[0].Portals = nil

	_, err := s.orchestrator(m, nil).Deploy(s.ctx)
	s.Require().NoError(err)
	id := s.provider.Webhooks()[0].ID

	// Next deploy no longer declares the webhook: tagged, not removed.
	withoutWebhooks := s.deployManifest()
	withoutWebhooks.Accounts[0].Webhooks = nil
	withoutWebhooks.Accounts[0].Products = nil
	withoutWebhooks.Accounts[0].Portals = nil

	o := s.orchestrator(withoutWebhooks, nil)
	_, err = o.Deploy(s.ctx)
	s.Require().NoError(err)

	s.Require().Len(s.provider.Webhooks(), 1)
	s.Require().True(MarkedForDeletion(s.provider.Webhooks()[0].Metadata))

	blocks, err := o.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Require().Empty(s.provider.Webhooks())
	s.Require().Contains(blocks[0], ActionDeleted)
	s.Require().Contains(blocks[0], id)
}

func (s *OrchestratorSuite) TestTeardownRemovesWebhooksKeepsProductsAndPortals() {
	m := s.deployManifest()

	o := s.orchestrator(m, nil)
	_, err := o.Deploy(s.ctx)
	s.Require().NoError(err)

	_, err = o.Teardown(s.ctx)
	s.Require().NoError(err)

	s.Require().Empty(s.provider.Webhooks())
	s.Require().Len(s.provider.Products(), 1, "products are preserved on removal")
	s.Require().Len(s.provider.Prices(), 1, "prices are preserved on removal")
	s.Require().Len(s.provider.Portals(), 1, "portals are preserved on removal")
}

func (s *OrchestratorSuite) TestRunIDIsStamped() {
	o := s.orchestrator(s.deployManifest(), nil)
	s.Require().True(strings.HasPrefix(o.RunID(), "run_"))
}
