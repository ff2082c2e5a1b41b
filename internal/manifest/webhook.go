package manifest

import (
	ierr "github.com/flexprice/stripesync/internal/errors"
	"github.com/samber/lo"
)

// Webhook declares one webhook endpoint bound to a deployed function. The
// function name is the stable identity used to match remote endpoints across
// runs; the endpoint URL is derived and may change freely between deploys.
type Webhook struct {
	FunctionName                 string   `mapstructure:"functionName"`
	Events                       []string `mapstructure:"events"`
	WebhookSecretEnvVariableName string   `mapstructure:"webhookSecretEnvVariableName"`
}

func (w Webhook) Validate() error {
	if w.FunctionName == "" {
		return ierr.NewError("webhook is missing functionName").
			WithHint("Every webhook must name the function that handles it").
			Mark(ierr.ErrValidation)
	}

	if len(w.Events) == 0 {
		return ierr.NewError("webhook has no events").
			WithHintf("Webhook for function %s must subscribe to at least one event type", w.FunctionName).
			WithReportableDetails(map[string]any{
				"functionName": w.FunctionName,
			}).
			Mark(ierr.ErrValidation)
	}

	for _, ev := range w.Events {
		if ev == "" {
			return ierr.NewError("webhook has an empty event type").
				WithHintf("Webhook for function %s declares an empty event entry", w.FunctionName).
				WithReportableDetails(map[string]any{
					"functionName": w.FunctionName,
				}).
				Mark(ierr.ErrValidation)
		}
	}

	if len(lo.Uniq(w.Events)) != len(w.Events) {
		return ierr.NewError("webhook declares duplicate events").
			WithHintf("Webhook for function %s lists the same event type twice", w.FunctionName).
			WithReportableDetails(map[string]any{
				"functionName": w.FunctionName,
				"events":       w.Events,
			}).
			Mark(ierr.ErrValidation)
	}

	if w.WebhookSecretEnvVariableName == "" {
		return ierr.NewError("webhook is missing webhookSecretEnvVariableName").
			WithHintf("Webhook for function %s must name the env variable receiving the signing secret", w.FunctionName).
			WithReportableDetails(map[string]any{
				"functionName": w.FunctionName,
			}).
			Mark(ierr.ErrValidation)
	}

	if !IsValidIdentifier(w.WebhookSecretEnvVariableName) {
		return ierr.NewError("webhookSecretEnvVariableName is not a valid identifier").
			WithHintf("%s must match ^[a-zA-Z][a-zA-Z0-9_]+$", w.WebhookSecretEnvVariableName).
			WithReportableDetails(map[string]any{
				"functionName":                 w.FunctionName,
				"webhookSecretEnvVariableName": w.WebhookSecretEnvVariableName,
			}).
			Mark(ierr.ErrValidation)
	}

	return nil
}
