package reconciler

import (
	"github.com/flexprice/stripesync/internal/types"
)

// Metadata keys written on every remote entity this tool creates. Ownership
// is decided purely by tag matching; there is no local registry.
const (
	TagManagedBy   = "managedBy"
	TagService     = "service"
	TagStage       = "stage"
	TagLambda      = "lambda"
	TagInternalID  = "internalId"
	TagCountryCode = "countryCode"
	TagToBeDeleted = "toBeDeleted"

	tagValueTrue = "true"
)

// Owner identifies one stack's claim on remote entities. All three fields
// must match exactly for an entity to be considered managed by this stack.
type Owner struct {
	ManagedBy string
	Service   string
	Stage     string
}

// Owns reports whether the entity carrying meta was created and is managed
// by this stack.
func (o Owner) Owns(meta types.Metadata) bool {
	return meta[TagManagedBy] == o.ManagedBy &&
		meta[TagService] == o.Service &&
		meta[TagStage] == o.Stage
}

// Tags is the write-side ownership tag set.
func (o Owner) Tags() types.Metadata {
	return types.Metadata{
		TagManagedBy: o.ManagedBy,
		TagService:   o.Service,
		TagStage:     o.Stage,
	}
}

// MarkedForDeletion reports whether the entity was soft-deleted by a previous
// reconciliation pass and awaits the post-deploy sweep.
func MarkedForDeletion(meta types.Metadata) bool {
	return meta[TagToBeDeleted] == tagValueTrue
}
