package types

// Metadata represents the string key-value tag bag carried by remote billing
// entities. Stripe stores it verbatim, which is what makes ownership tagging
// possible without a local registry.
type Metadata map[string]string

// Merge returns a new Metadata with the entries of m overlaid by overrides.
// Neither input is mutated.
func (m Metadata) Merge(overrides Metadata) Metadata {
	merged := make(Metadata, len(m)+len(overrides))
	for k, v := range m {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
