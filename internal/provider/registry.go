// Package provider defines the runtime contract external providers implement
// and the immutable registry the engine resolves them through.
package provider

import (
	"context"
	"fmt"
	"net/url"

	"github.com/smallbiznis/valora-connect/internal/domain/connect"
)

// Runtime is the per-provider plugin surface. Implementations are constructed
// once at startup and registered; the engine only depends on this contract.
type Runtime interface {
	Descriptor() connect.Provider
	Capabilities() []connect.Capability
	Triggers() []connect.Trigger

	// MapInternalScopes translates internal capability/trigger ids into the
	// provider-native scopes to request. Unknown ids map to nothing.
	MapInternalScopes(ids []string) []string
}

// AuthCodeFlow is implemented by runtimes that support the authorization-code
// handshake. A runtime without it cannot be launched or called back.
type AuthCodeFlow interface {
	BuildAuthURL(ctx context.Context, scopes []string, state, redirectURI string) (string, error)
	ExchangeCallback(ctx context.Context, params url.Values, redirectURI string) (*connect.Exchange, error)
}

// Registry is a read-only catalog of provider runtimes. Registration order is
// preserved and drives audit result ordering.
type Registry struct {
	order    []string
	runtimes map[string]Runtime
}

// NewRegistry builds a registry from the given runtimes. A duplicated
// provider id panics; registries are assembled once at startup.
func NewRegistry(runtimes ...Runtime) *Registry {
	r := &Registry{runtimes: make(map[string]Runtime, len(runtimes))}
	for _, rt := range runtimes {
		id := rt.Descriptor().ID
		if _, dup := r.runtimes[id]; dup {
			panic(fmt.Sprintf("provider registered twice: %s", id))
		}
		r.runtimes[id] = rt
		r.order = append(r.order, id)
	}
	return r
}

// Provider resolves a runtime by provider id.
func (r *Registry) Provider(id string) (Runtime, error) {
	rt, ok := r.runtimes[id]
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", id, connect.ErrProviderNotFound)
	}
	return rt, nil
}

// Capability resolves a capability by provider and capability id.
func (r *Registry) Capability(providerID, capabilityID string) (connect.Capability, error) {
	rt, err := r.Provider(providerID)
	if err != nil {
		return connect.Capability{}, err
	}
	for _, cap := range rt.Capabilities() {
		if cap.ID == capabilityID {
			return cap, nil
		}
	}
	return connect.Capability{}, fmt.Errorf("capability %q/%q: %w", providerID, capabilityID, connect.ErrCapabilityNotFound)
}

// Trigger resolves a trigger by provider and trigger id.
func (r *Registry) Trigger(providerID, triggerID string) (connect.Trigger, error) {
	rt, err := r.Provider(providerID)
	if err != nil {
		return connect.Trigger{}, err
	}
	for _, trg := range rt.Triggers() {
		if trg.ID == triggerID {
			return trg, nil
		}
	}
	return connect.Trigger{}, fmt.Errorf("trigger %q/%q: %w", providerID, triggerID, connect.ErrTriggerNotFound)
}

// MapInternalScopes unions the provider-native scopes for the given internal
// ids, deduplicated. Order of ids does not affect the result set.
func (r *Registry) MapInternalScopes(providerID string, ids []string) ([]string, error) {
	rt, err := r.Provider(providerID)
	if err != nil {
		return nil, err
	}
	return dedup(rt.MapInternalScopes(ids)), nil
}

// Providers returns runtimes in registration order.
func (r *Registry) Providers() []Runtime {
	out := make([]Runtime, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.runtimes[id])
	}
	return out
}

func dedup(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
