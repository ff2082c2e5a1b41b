package reconciler

import (
	"context"

	"github.com/flexprice/stripesync/internal/billing"
	"github.com/flexprice/stripesync/internal/logger"
	"github.com/flexprice/stripesync/internal/manifest"
	"github.com/flexprice/stripesync/internal/pagination"
	"github.com/flexprice/stripesync/internal/stack"
	"github.com/flexprice/stripesync/internal/types"
	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v82"
)

// PortalReconciler upserts declared customer-portal configurations by their
// internalId tag. No deletion path: stale configurations stay in the account.
type PortalReconciler struct {
	accountID string
	owner     Owner
	provider  billing.Provider
	env       stack.EnvSink
	logger    *logger.Logger
}

func NewPortalReconciler(params AccountParams) *PortalReconciler {
	return &PortalReconciler{
		accountID: params.AccountID,
		owner:     params.Owner,
		provider:  params.Provider,
		env:       params.Env,
		logger:    params.Logger,
	}
}

func (r *PortalReconciler) Reconcile(ctx context.Context, declared []manifest.Portal) ([]PortalEntry, error) {
	owned, err := r.listOwned(ctx)
	if err != nil {
		return nil, err
	}

	var entries []PortalEntry
	for _, portal := range declared {
		tags := r.owner.Tags().Merge(types.Metadata{TagInternalID: portal.InternalID})
		params := billing.PortalConfigurationParams{
			Configuration: portal.Configuration,
			Metadata:      tags,
		}

		existing, found := lo.Find(owned, func(c *stripe.BillingPortalConfiguration) bool {
			return c.Metadata[TagInternalID] == portal.InternalID
		})

		var (
			remote *stripe.BillingPortalConfiguration
			action string
		)
		if !found {
			remote, err = r.provider.CreatePortalConfiguration(ctx, params)
			action = ActionCreated
		} else {
			remote, err = r.provider.UpdatePortalConfiguration(ctx, existing.ID, params)
			action = ActionUpdated
		}
		if err != nil {
			return nil, err
		}

		r.logger.Infow(action+" portal configuration",
			"account_id", r.accountID,
			"configuration_id", remote.ID,
			"internal_id", portal.InternalID)

		r.env.SetSharedEnv(portal.EnvVariableName, remote.ID)

		entries = append(entries, PortalEntry{
			Action:     action,
			ID:         remote.ID,
			InternalID: portal.InternalID,
		})
	}

	return entries, nil
}

func (r *PortalReconciler) listOwned(ctx context.Context) ([]*stripe.BillingPortalConfiguration, error) {
	all, err := pagination.All(ctx,
		func(ctx context.Context, cursor string) ([]*stripe.BillingPortalConfiguration, bool, error) {
			page, err := r.provider.ListPortalConfigurations(ctx, billing.PageParams{
				Limit:         pagination.DefaultPageSize,
				StartingAfter: cursor,
			})
			if err != nil {
				return nil, false, err
			}
			return page.Data, page.HasMore, nil
		},
		func(c *stripe.BillingPortalConfiguration) string { return c.ID },
	)
	if err != nil {
		return nil, err
	}

	return lo.Filter(all, func(c *stripe.BillingPortalConfiguration, _ int) bool {
		return r.owner.Owns(c.Metadata)
	}), nil
}
