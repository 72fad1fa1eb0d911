package provider

import "github.com/smallbiznis/valora-connect/internal/domain/connect"

// Catalog is the static half of a runtime: provider metadata plus its
// capability and trigger tables. Built-in runtimes embed it and add the
// authorization-code flow on top.
type Catalog struct {
	Provider      connect.Provider
	CapabilitySet []connect.Capability
	TriggerSet    []connect.Trigger
}

// Descriptor returns the provider metadata.
func (c Catalog) Descriptor() connect.Provider { return c.Provider }

// Capabilities returns the capability table.
func (c Catalog) Capabilities() []connect.Capability { return c.CapabilitySet }

// Triggers returns the trigger table.
func (c Catalog) Triggers() []connect.Trigger { return c.TriggerSet }

// MapInternalScopes maps internal capability ids to the provider-native
// scopes they require. Trigger ids and unknown ids contribute nothing.
func (c Catalog) MapInternalScopes(ids []string) []string {
	var scopes []string
	for _, id := range ids {
		for _, cap := range c.CapabilitySet {
			if cap.ID == id {
				scopes = append(scopes, cap.RequiredScopes...)
			}
		}
	}
	return scopes
}
