package reconciler

import (
	"context"

	"github.com/flexprice/stripesync/internal/billing"
	ierr "github.com/flexprice/stripesync/internal/errors"
	"github.com/flexprice/stripesync/internal/logger"
	"github.com/flexprice/stripesync/internal/manifest"
	"github.com/flexprice/stripesync/internal/preflight"
	"github.com/flexprice/stripesync/internal/secretstore"
	"github.com/flexprice/stripesync/internal/stack"
	"github.com/flexprice/stripesync/internal/types"
	"github.com/sourcegraph/conc/pool"
)

// AccountParams carries everything one account's reconcilers need. All
// collaborators are threaded explicitly; nothing is read from globals.
type AccountParams struct {
	AccountID    string
	Owner        Owner
	Provider     billing.Provider
	Secrets      secretstore.Store
	Resolver     stack.FunctionResolver
	Env          stack.EnvSink
	Domain       manifest.Domain
	MultiAccount bool
	Logger       *logger.Logger
}

// Dependencies are the externally constructed collaborators of a run.
// Providers is keyed by accountId.
type Dependencies struct {
	Providers map[string]billing.Provider
	Secrets   secretstore.Store
	Env       stack.EnvSink
	Logger    *logger.Logger
	ManagedBy string
}

type accountSet struct {
	account  manifest.Account
	webhooks *WebhookReconciler
	products *ProductReconciler
	portals  *PortalReconciler
}

// Orchestrator sequences the reconcilers over all declared accounts. Within
// one account everything is strictly sequential; distinct accounts touch
// disjoint remote state and may run concurrently.
type Orchestrator struct {
	manifest *manifest.Manifest
	accounts []*accountSet
	multi    bool
	runID    string
	logger   *logger.Logger
}

func NewOrchestrator(m *manifest.Manifest, deps Dependencies) (*Orchestrator, error) {
	owner := Owner{
		ManagedBy: deps.ManagedBy,
		Service:   m.Service,
		Stage:     m.Stage,
	}
	if len(m.Accounts) == 0 {
		return nil, ierr.NewError("manifest declares no accounts").
			WithHint("At least one provider account is required").
			Mark(ierr.ErrValidation)
	}

	multi := len(m.Accounts) > 1
	resolver := stack.NewManifestResolver(m)

	var domain manifest.Domain
	if m.Domain != nil {
		domain = *m.Domain
	}

	accounts := make([]*accountSet, 0, len(m.Accounts))
	for _, account := range m.Accounts {
		provider, ok := deps.Providers[account.AccountID]
		if !ok {
			return nil, ierr.NewError("no billing provider for account").
				WithHintf("Account %s has no constructed provider", account.AccountID).
				WithReportableDetails(map[string]any{
					"accountId": account.AccountID,
				}).
				Mark(ierr.ErrInternal)
		}

		params := AccountParams{
			AccountID:    account.AccountID,
			Owner:        owner,
			Provider:     provider,
			Secrets:      deps.Secrets,
			Resolver:     resolver,
			Env:          deps.Env,
			Domain:       domain,
			MultiAccount: multi,
			Logger:       deps.Logger,
		}

		accounts = append(accounts, &accountSet{
			account:  account,
			webhooks: NewWebhookReconciler(params),
			products: NewProductReconciler(params),
			portals:  NewPortalReconciler(params),
		})
	}

	return &Orchestrator{
		manifest: m,
		accounts: accounts,
		multi:    multi,
		runID:    types.GenerateUUIDWithPrefix(types.UUID_PREFIX_RUN),
		logger:   deps.Logger,
	}, nil
}

// RunID identifies this invocation in logs and summary headers.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Deploy runs the pre-deploy phase: validation gate, then per account
// portals, webhooks and products in that fixed order. Summary blocks come
// back in declaration order regardless of completion order.
func (o *Orchestrator) Deploy(ctx context.Context) ([]string, error) {
	if err := preflight.Validate(o.manifest); err != nil {
		return nil, err
	}

	o.logger.Infow("starting deploy reconciliation",
		"run_id", o.runID,
		"service", o.manifest.Service,
		"stage", o.manifest.Stage,
		"accounts", len(o.accounts))

	return o.run(ctx, func(ctx context.Context, set *accountSet) (*AccountSummary, error) {
		return set.deploy(ctx)
	})
}

// Sweep runs the post-deploy phase: hard-delete every webhook endpoint still
// marked for deletion.
func (o *Orchestrator) Sweep(ctx context.Context) ([]string, error) {
	o.logger.Infow("starting webhook sweep", "run_id", o.runID)

	return o.run(ctx, func(ctx context.Context, set *accountSet) (*AccountSummary, error) {
		entries, err := set.webhooks.Sweep(ctx)
		if err != nil {
			return nil, err
		}
		return &AccountSummary{AccountID: set.account.AccountID, Webhooks: entries}, nil
	})
}

// Teardown removes every owned webhook endpoint. Products, prices and portal
// configurations are deliberately preserved on stack removal.
func (o *Orchestrator) Teardown(ctx context.Context) ([]string, error) {
	o.logger.Infow("starting webhook teardown", "run_id", o.runID)

	return o.run(ctx, func(ctx context.Context, set *accountSet) (*AccountSummary, error) {
		entries, err := set.webhooks.Teardown(ctx)
		if err != nil {
			return nil, err
		}
		return &AccountSummary{AccountID: set.account.AccountID, Webhooks: entries}, nil
	})
}

func (o *Orchestrator) run(ctx context.Context, phase func(ctx context.Context, set *accountSet) (*AccountSummary, error)) ([]string, error) {
	blocks := make([]string, len(o.accounts))

	if !o.multi {
		summary, err := phase(ctx, o.accounts[0])
		if err != nil {
			return nil, err
		}
		blocks[0] = summary.Render(false)
		return blocks, nil
	}

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for i, set := range o.accounts {
		p.Go(func(ctx context.Context) error {
			summary, err := phase(ctx, set)
			if err != nil {
				return err
			}
			blocks[i] = summary.Render(true)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	return blocks, nil
}

// deploy runs one account's full pre-deploy sequence. Later steps observe
// the completed results of earlier ones, so the order is fixed.
func (s *accountSet) deploy(ctx context.Context) (*AccountSummary, error) {
	summary := &AccountSummary{AccountID: s.account.AccountID}

	portals, err := s.portals.Reconcile(ctx, s.account.Portals)
	if err != nil {
		return nil, err
	}
	summary.Portals = portals

	webhooks, err := s.webhooks.Reconcile(ctx, s.account.Webhooks)
	if err != nil {
		return nil, err
	}
	summary.Webhooks = webhooks

	products, err := s.products.Reconcile(ctx, s.account.Products)
	if err != nil {
		return nil, err
	}
	summary.Products = products

	return summary, nil
}
