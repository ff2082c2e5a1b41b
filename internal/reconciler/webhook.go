package reconciler

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/flexprice/stripesync/internal/billing"
	ierr "github.com/flexprice/stripesync/internal/errors"
	"github.com/flexprice/stripesync/internal/logger"
	"github.com/flexprice/stripesync/internal/manifest"
	"github.com/flexprice/stripesync/internal/pagination"
	"github.com/flexprice/stripesync/internal/secretstore"
	"github.com/flexprice/stripesync/internal/stack"
	"github.com/flexprice/stripesync/internal/types"
	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v82"
)

// WebhookReconciler converges the declared webhook set of one account onto
// the remote endpoint state. Endpoints are matched by the lambda metadata
// tag, never by URL; URLs change freely as functions are renamed.
type WebhookReconciler struct {
	accountID    string
	owner        Owner
	provider     billing.Provider
	secrets      secretstore.Store
	resolver     stack.FunctionResolver
	env          stack.EnvSink
	domain       manifest.Domain
	multiAccount bool
	logger       *logger.Logger
}

func NewWebhookReconciler(params AccountParams) *WebhookReconciler {
	return &WebhookReconciler{
		accountID:    params.AccountID,
		owner:        params.Owner,
		provider:     params.Provider,
		secrets:      params.Secrets,
		resolver:     params.Resolver,
		env:          params.Env,
		domain:       params.Domain,
		multiAccount: params.MultiAccount,
		logger:       params.Logger,
	}
}

// Reconcile creates or updates one remote endpoint per declared webhook and
// soft-marks every untouched owned endpoint for the post-deploy sweep.
func (r *WebhookReconciler) Reconcile(ctx context.Context, declared []manifest.Webhook) ([]WebhookEntry, error) {
	owned, err := r.listOwned(ctx)
	if err != nil {
		return nil, err
	}

	touched := make(map[string]bool)
	var entries []WebhookEntry

	for _, webhook := range declared {
		entry, err := r.reconcileOne(ctx, webhook, owned, touched)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	// Orphan pass: anything owned but no longer declared stays live until
	// the new routing is confirmed, so it is only tagged here.
	for _, endpoint := range owned {
		if touched[endpoint.ID] {
			continue
		}
		if _, err := r.provider.UpdateWebhookEndpointMetadata(ctx, endpoint.ID, types.Metadata{TagToBeDeleted: tagValueTrue}); err != nil {
			return nil, err
		}
		r.logger.Infow("marked webhook endpoint for deletion",
			"account_id", r.accountID,
			"endpoint_id", endpoint.ID,
			"function", endpoint.Metadata[TagLambda])
		entries = append(entries, WebhookEntry{
			Action:       ActionTagged,
			ID:           endpoint.ID,
			FunctionName: endpoint.Metadata[TagLambda],
			URL:          endpoint.URL,
		})
	}

	return entries, nil
}

func (r *WebhookReconciler) reconcileOne(ctx context.Context, webhook manifest.Webhook, owned []*stripe.WebhookEndpoint, touched map[string]bool) (WebhookEntry, error) {
	path, err := r.resolver.ResolveWebhookRoute(webhook.FunctionName)
	if err != nil {
		return WebhookEntry{}, err
	}
	endpointURL := r.webhookURL(path)

	key, err := secretstore.WebhookSecretKey(r.accountID, r.owner.Service, r.owner.Stage, webhook.FunctionName)
	if err != nil {
		return WebhookEntry{}, err
	}

	// A self-heal leaves the stale endpoint soft-tagged next to its
	// replacement until the sweep runs, so two owned endpoints can share a
	// lambda tag. The untagged one is the live one and must win the match.
	candidates := lo.Filter(owned, func(e *stripe.WebhookEndpoint, _ int) bool {
		return e.Metadata[TagLambda] == webhook.FunctionName
	})
	existing, found := lo.Find(candidates, func(e *stripe.WebhookEndpoint) bool {
		return !MarkedForDeletion(e.Metadata)
	})
	if !found && len(candidates) > 0 {
		existing, found = candidates[0], true
	}

	if !found {
		return r.createEndpoint(ctx, webhook, endpointURL, key, touched)
	}

	secret, err := r.secrets.Get(ctx, key)
	switch {
	case err != nil && ierr.IsNotFound(err):
		// Self-healing branch: without the stored secret the webhook is
		// unusable, so a fresh endpoint is created. The matched endpoint is
		// left untouched and picked up by the orphan pass.
		r.logger.Warnw("stored webhook secret not found, recreating endpoint",
			"account_id", r.accountID,
			"function", webhook.FunctionName,
			"endpoint_id", existing.ID)
		return r.createEndpoint(ctx, webhook, endpointURL, key, touched)
	case err != nil:
		return WebhookEntry{}, err
	case secret == "":
		r.logger.Warnw("stored webhook secret is empty, recreating endpoint",
			"account_id", r.accountID,
			"function", webhook.FunctionName,
			"endpoint_id", existing.ID)
		return r.createEndpoint(ctx, webhook, endpointURL, key, touched)
	}

	// Clearing toBeDeleted resurrects an endpoint a previous run orphaned.
	tags := r.owner.Tags().Merge(types.Metadata{
		TagLambda:      webhook.FunctionName,
		TagToBeDeleted: "",
	})
	updated, err := r.provider.UpdateWebhookEndpoint(ctx, existing.ID, billing.WebhookEndpointParams{
		URL:           endpointURL,
		EnabledEvents: webhook.Events,
		Metadata:      tags,
	})
	if err != nil {
		return WebhookEntry{}, err
	}
	touched[updated.ID] = true

	r.env.SetFunctionEnv(webhook.FunctionName, webhook.WebhookSecretEnvVariableName, secret)

	r.logger.Infow("updated webhook endpoint",
		"account_id", r.accountID,
		"endpoint_id", updated.ID,
		"function", webhook.FunctionName,
		"url", endpointURL)

	return WebhookEntry{
		Action:       ActionUpdated,
		ID:           updated.ID,
		FunctionName: webhook.FunctionName,
		URL:          endpointURL,
		Events:       webhook.Events,
	}, nil
}

func (r *WebhookReconciler) createEndpoint(ctx context.Context, webhook manifest.Webhook, endpointURL, key string, touched map[string]bool) (WebhookEntry, error) {
	tags := r.owner.Tags().Merge(types.Metadata{TagLambda: webhook.FunctionName})

	created, err := r.provider.CreateWebhookEndpoint(ctx, billing.WebhookEndpointParams{
		URL:           endpointURL,
		EnabledEvents: webhook.Events,
		Metadata:      tags,
	})
	if err != nil {
		return WebhookEntry{}, err
	}
	touched[created.ID] = true

	// The secret is revealed exactly once, here. Without it the endpoint
	// can never verify signatures, so its absence is fatal.
	if created.Secret == "" {
		return WebhookEntry{}, ierr.NewError("provider returned no webhook secret on creation").
			WithHintf("Endpoint %s for function %s was created without a signing secret", created.ID, webhook.FunctionName).
			WithReportableDetails(map[string]any{
				"endpointId":   created.ID,
				"functionName": webhook.FunctionName,
			}).
			Mark(ierr.ErrIntegration)
	}

	description := fmt.Sprintf("Stripe webhook signing secret for %s (%s/%s)", webhook.FunctionName, r.owner.Service, r.owner.Stage)
	if err := r.secrets.Put(ctx, key, created.Secret, description, true); err != nil {
		return WebhookEntry{}, err
	}

	r.env.SetFunctionEnv(webhook.FunctionName, webhook.WebhookSecretEnvVariableName, created.Secret)

	r.logger.Infow("created webhook endpoint",
		"account_id", r.accountID,
		"endpoint_id", created.ID,
		"function", webhook.FunctionName,
		"url", endpointURL)

	return WebhookEntry{
		Action:       ActionCreated,
		ID:           created.ID,
		FunctionName: webhook.FunctionName,
		URL:          endpointURL,
		Events:       webhook.Events,
	}, nil
}

// Sweep hard-deletes every owned endpoint a previous deploy marked for
// deletion. It runs after the surrounding deployment confirmed the new
// routing, and is idempotent.
func (r *WebhookReconciler) Sweep(ctx context.Context) ([]WebhookEntry, error) {
	owned, err := r.listOwned(ctx)
	if err != nil {
		return nil, err
	}

	var entries []WebhookEntry
	for _, endpoint := range owned {
		if !MarkedForDeletion(endpoint.Metadata) {
			entries = append(entries, WebhookEntry{
				Action:       ActionActive,
				ID:           endpoint.ID,
				FunctionName: endpoint.Metadata[TagLambda],
				URL:          endpoint.URL,
			})
			continue
		}

		if err := r.provider.DeleteWebhookEndpoint(ctx, endpoint.ID); err != nil {
			return nil, err
		}
		r.logger.Infow("deleted webhook endpoint",
			"account_id", r.accountID,
			"endpoint_id", endpoint.ID,
			"function", endpoint.Metadata[TagLambda])
		entries = append(entries, WebhookEntry{
			Action:       ActionDeleted,
			ID:           endpoint.ID,
			FunctionName: endpoint.Metadata[TagLambda],
			URL:          endpoint.URL,
		})
	}

	return entries, nil
}

// Teardown hard-deletes every owned endpoint regardless of tags. Used on
// stack removal.
func (r *WebhookReconciler) Teardown(ctx context.Context) ([]WebhookEntry, error) {
	owned, err := r.listOwned(ctx)
	if err != nil {
		return nil, err
	}

	var entries []WebhookEntry
	for _, endpoint := range owned {
		if err := r.provider.DeleteWebhookEndpoint(ctx, endpoint.ID); err != nil {
			return nil, err
		}
		r.logger.Infow("deleted webhook endpoint",
			"account_id", r.accountID,
			"endpoint_id", endpoint.ID,
			"function", endpoint.Metadata[TagLambda])
		entries = append(entries, WebhookEntry{
			Action:       ActionDeleted,
			ID:           endpoint.ID,
			FunctionName: endpoint.Metadata[TagLambda],
			URL:          endpoint.URL,
		})
	}

	return entries, nil
}

func (r *WebhookReconciler) listOwned(ctx context.Context) ([]*stripe.WebhookEndpoint, error) {
	all, err := pagination.All(ctx,
		func(ctx context.Context, cursor string) ([]*stripe.WebhookEndpoint, bool, error) {
			page, err := r.provider.ListWebhookEndpoints(ctx, billing.PageParams{
				Limit:         pagination.DefaultPageSize,
				StartingAfter: cursor,
			})
			if err != nil {
				return nil, false, err
			}
			return page.Data, page.HasMore, nil
		},
		func(e *stripe.WebhookEndpoint) string { return e.ID },
	)
	if err != nil {
		return nil, err
	}

	return lo.Filter(all, func(e *stripe.WebhookEndpoint, _ int) bool {
		return r.owner.Owns(e.Metadata)
	}), nil
}

// webhookURL builds https://{domainName}/{basePath}{path}, with an account
// discriminator appended when several accounts share the stack.
func (r *WebhookReconciler) webhookURL(path string) string {
	var b strings.Builder
	b.WriteString("https://")
	b.WriteString(r.domain.DomainName)
	if base := strings.Trim(r.domain.BasePath, "/"); base != "" {
		b.WriteString("/")
		b.WriteString(base)
	}
	if !strings.HasPrefix(path, "/") {
		b.WriteString("/")
	}
	b.WriteString(path)
	if r.multiAccount {
		b.WriteString("?account=")
		b.WriteString(url.QueryEscape(r.accountID))
	}
	return b.String()
}
