package secretstore

import (
	"fmt"
	"regexp"

	ierr "github.com/flexprice/stripesync/internal/errors"
)

const (
	keyPrefix = "stripe-webhook-secret"

	// The store caps full parameter names at 1011 characters, of which
	// roughly 80 are consumed by the ARN prefix it prepends internally.
	storeNameCap       = 1011
	reservedPrefixLen  = 80
	maxSecretKeyLength = storeNameCap - reservedPrefixLen
)

var secretKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// WebhookSecretKey builds the deterministic store key for one webhook's
// signing secret. The same inputs always yield the same key, which is what
// lets a later run find the secret recorded by an earlier one.
func WebhookSecretKey(accountID, service, stage, functionName string) (string, error) {
	name := fmt.Sprintf("%s-%s-%s-%s-%s", keyPrefix, accountID, service, stage, functionName)

	if !secretKeyPattern.MatchString(name) {
		return "", ierr.NewError("secret store key contains invalid characters").
			WithHintf("Key %s must match [a-zA-Z0-9_.-]+; check service, stage, account and function names", name).
			WithReportableDetails(map[string]any{
				"key": name,
			}).
			Mark(ierr.ErrValidation)
	}

	if len(name) > maxSecretKeyLength {
		return "", ierr.NewError("secret store key is too long").
			WithHintf("Key %s is %d characters, limit is %d", name, len(name), maxSecretKeyLength).
			WithReportableDetails(map[string]any{
				"key":    name,
				"length": len(name),
				"limit":  maxSecretKeyLength,
			}).
			Mark(ierr.ErrValidation)
	}

	return name, nil
}
