package preflight

import (
	ierr "github.com/flexprice/stripesync/internal/errors"
	"github.com/flexprice/stripesync/internal/manifest"
	"github.com/flexprice/stripesync/internal/secretstore"
)

// Validate is the static gate that runs before any remote call. Every
// violation is a configuration error naming the offending field; the first
// one found aborts the run.
func Validate(m *manifest.Manifest) error {
	if m.Service == "" {
		return ierr.NewError("manifest is missing service").
			WithHint("The stack service name is required for ownership tagging").
			Mark(ierr.ErrValidation)
	}
	if m.Stage == "" {
		return ierr.NewError("manifest is missing stage").
			WithHint("The deployment stage is required for ownership tagging").
			Mark(ierr.ErrValidation)
	}
	if m.Region == "" {
		return ierr.NewError("manifest is missing region").
			WithHint("The region is required for the secret store").
			Mark(ierr.ErrValidation)
	}

	if m.Domain == nil {
		return ierr.NewError("manifest is missing the domain configuration").
			WithHint("Webhook URLs are built from domain.domainName and domain.basePath").
			Mark(ierr.ErrValidation)
	}
	if m.Domain.DomainName == "" {
		return ierr.NewError("domain configuration is missing domainName").
			WithHint("Webhook URLs are built from domain.domainName and domain.basePath").
			Mark(ierr.ErrValidation)
	}
	if m.Domain.BasePath == "" {
		return ierr.NewError("domain configuration is missing basePath").
			WithHint("Webhook URLs are built from domain.domainName and domain.basePath").
			Mark(ierr.ErrValidation)
	}

	if len(m.Accounts) == 0 {
		return ierr.NewError("manifest declares no accounts").
			WithHint("At least one provider account is required").
			Mark(ierr.ErrValidation)
	}

	seenAccounts := make(map[string]bool, len(m.Accounts))
	seenFunctionSecrets := make(map[string]string)
	for _, account := range m.Accounts {
		if account.AccountID == "" {
			return ierr.NewError("account is missing accountId").
				WithHint("Every account must declare an accountId").
				Mark(ierr.ErrValidation)
		}
		if seenAccounts[account.AccountID] {
			return ierr.NewError("duplicate accountId").
				WithHintf("Account id %s is declared more than once", account.AccountID).
				WithReportableDetails(map[string]any{
					"accountId": account.AccountID,
				}).
				Mark(ierr.ErrValidation)
		}
		seenAccounts[account.AccountID] = true

		if account.APIKeyEnv == "" {
			return ierr.NewError("account is missing apiKeyEnv").
				WithHintf("Account %s must name the env variable holding its API key", account.AccountID).
				WithReportableDetails(map[string]any{
					"accountId": account.AccountID,
				}).
				Mark(ierr.ErrValidation)
		}

		if err := validateAccount(m, account, seenFunctionSecrets); err != nil {
			return err
		}
	}

	return nil
}

func validateAccount(m *manifest.Manifest, account manifest.Account, seenFunctionSecrets map[string]string) error {
	seenFunctions := make(map[string]bool, len(account.Webhooks))
	for _, webhook := range account.Webhooks {
		if err := webhook.Validate(); err != nil {
			return err
		}

		if seenFunctions[webhook.FunctionName] {
			return ierr.NewError("duplicate webhook functionName").
				WithHintf("Function %s is declared by more than one webhook of account %s", webhook.FunctionName, account.AccountID).
				WithReportableDetails(map[string]any{
					"accountId":    account.AccountID,
					"functionName": webhook.FunctionName,
				}).
				Mark(ierr.ErrValidation)
		}
		seenFunctions[webhook.FunctionName] = true

		// A function's env is one namespace regardless of which account the
		// webhook belongs to; two accounts writing the same secret variable
		// into the same function would silently overwrite each other.
		pair := webhook.FunctionName + "/" + webhook.WebhookSecretEnvVariableName
		if previous, ok := seenFunctionSecrets[pair]; ok && previous != account.AccountID {
			return ierr.NewError("webhook secret env collision across accounts").
				WithHintf("Accounts %s and %s both publish %s into function %s", previous, account.AccountID, webhook.WebhookSecretEnvVariableName, webhook.FunctionName).
				WithReportableDetails(map[string]any{
					"accountIds":   []string{previous, account.AccountID},
					"functionName": webhook.FunctionName,
					"envVariable":  webhook.WebhookSecretEnvVariableName,
				}).
				Mark(ierr.ErrValidation)
		}
		seenFunctionSecrets[pair] = account.AccountID

		// The key must be constructible now; failing here keeps the run
		// from discovering an unusable key after remote state changed.
		if _, err := secretstore.WebhookSecretKey(account.AccountID, m.Service, m.Stage, webhook.FunctionName); err != nil {
			return err
		}
	}

	// Product internal ids, price ids and portal env variable names share
	// one environment namespace per account.
	seenEnvKeys := make(map[string]string)
	claimEnvKey := func(key, owner string) error {
		if previous, ok := seenEnvKeys[key]; ok {
			return ierr.NewError("environment key collision").
				WithHintf("%s and %s of account %s both publish under %s", previous, owner, account.AccountID, key).
				WithReportableDetails(map[string]any{
					"accountId": account.AccountID,
					"key":       key,
				}).
				Mark(ierr.ErrValidation)
		}
		seenEnvKeys[key] = owner
		return nil
	}

	for _, product := range account.Products {
		if err := product.Validate(); err != nil {
			return err
		}
		if err := claimEnvKey(product.Internal.ID, "product "+product.Internal.ID); err != nil {
			return err
		}
		for _, price := range product.Prices {
			if err := claimEnvKey(price.ID, "price "+price.ID); err != nil {
				return err
			}
		}
	}

	seenPortals := make(map[string]bool, len(account.Portals))
	for _, portal := range account.Portals {
		if err := portal.Validate(); err != nil {
			return err
		}
		if seenPortals[portal.InternalID] {
			return ierr.NewError("duplicate portal internalId").
				WithHintf("Portal id %s is declared more than once in account %s", portal.InternalID, account.AccountID).
				WithReportableDetails(map[string]any{
					"accountId":  account.AccountID,
					"internalId": portal.InternalID,
				}).
				Mark(ierr.ErrValidation)
		}
		seenPortals[portal.InternalID] = true

		if err := claimEnvKey(portal.EnvVariableName, "portal "+portal.InternalID); err != nil {
			return err
		}
	}

	return nil
}
