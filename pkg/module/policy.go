package module

import (
	"slices"

	"PlayCore/internal/config"
	"PlayCore/internal/env"
)

// Permitted reports whether the configured policy lets a class take part in resolution.
// Denied names always lose; a non-empty allow list restricts candidates to its names.
func Permitted(info Info, policy config.ModulePolicy) bool {
	if slices.Contains(policy.Deny, info.Name) {
		return false
	}
	if len(policy.Allow) == 0 {
		return true
	}
	return slices.Contains(policy.Allow, info.Name)
}

// MissingCapabilities returns the required capabilities absent from snapshot.
func MissingCapabilities(info Info, snapshot env.Snapshot) []env.Capability {
	var missing []env.Capability
	for _, c := range info.Requires {
		if !snapshot.Has(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// Supports evaluates policy, capability requirements and the class predicate, in that order.
func (c Class) Supports(snapshot env.Snapshot, cfg *config.Config) bool {
	if cfg != nil && !Permitted(c.Info, cfg.Policy) {
		return false
	}
	if len(MissingCapabilities(c.Info, snapshot)) > 0 {
		return false
	}
	if c.Supported == nil {
		return true
	}
	return c.Supported(snapshot, cfg)
}
