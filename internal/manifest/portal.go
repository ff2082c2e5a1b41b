package manifest

import (
	ierr "github.com/flexprice/stripesync/internal/errors"
)

// Portal declares one customer-portal configuration. The internal id is the
// stable cross-deployment identity; the provider-assigned configuration id is
// resolved at reconciliation time and published under the declared env
// variable name.
type Portal struct {
	InternalID      string              `mapstructure:"internalId"`
	EnvVariableName string              `mapstructure:"envVariableName"`
	Configuration   PortalConfiguration `mapstructure:"configuration"`
}

// PortalConfiguration models the provider-defined nested portal settings this
// tool knows how to map. It is consumed opaquely by the billing adapter;
// nothing outside the adapter interprets it.
type PortalConfiguration struct {
	DefaultReturnURL string                `mapstructure:"defaultReturnURL"`
	BusinessProfile  PortalBusinessProfile `mapstructure:"businessProfile"`
	Features         PortalFeatures        `mapstructure:"features"`
}

type PortalBusinessProfile struct {
	Headline string `mapstructure:"headline"`
}

type PortalFeatures struct {
	InvoiceHistory      *PortalFeatureToggle      `mapstructure:"invoiceHistory"`
	PaymentMethodUpdate *PortalFeatureToggle      `mapstructure:"paymentMethodUpdate"`
	SubscriptionCancel  *PortalSubscriptionCancel `mapstructure:"subscriptionCancel"`
	CustomerUpdate      *PortalCustomerUpdate     `mapstructure:"customerUpdate"`
}

type PortalFeatureToggle struct {
	Enabled bool `mapstructure:"enabled"`
}

type PortalSubscriptionCancel struct {
	Enabled bool   `mapstructure:"enabled"`
	Mode    string `mapstructure:"mode"`
}

type PortalCustomerUpdate struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedUpdates []string `mapstructure:"allowedUpdates"`
}

func (p Portal) Validate() error {
	if p.InternalID == "" {
		return ierr.NewError("portal is missing internalId").
			WithHint("Every portal configuration must declare a stable internal id").
			Mark(ierr.ErrValidation)
	}

	if p.EnvVariableName == "" {
		return ierr.NewError("portal is missing envVariableName").
			WithHintf("Portal %s must name the env variable receiving the configuration id", p.InternalID).
			WithReportableDetails(map[string]any{
				"internalId": p.InternalID,
			}).
			Mark(ierr.ErrValidation)
	}

	if !IsValidIdentifier(p.EnvVariableName) {
		return ierr.NewError("portal envVariableName is not a valid identifier").
			WithHintf("%s must match ^[a-zA-Z][a-zA-Z0-9_]+$", p.EnvVariableName).
			WithReportableDetails(map[string]any{
				"internalId":      p.InternalID,
				"envVariableName": p.EnvVariableName,
			}).
			Mark(ierr.ErrValidation)
	}

	return nil
}
