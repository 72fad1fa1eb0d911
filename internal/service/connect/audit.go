package connect

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	domain "github.com/smallbiznis/valora-connect/internal/domain/connect"
)

// AuditStatus classifies what a provider still needs.
type AuditStatus string

const (
	StatusNeedsAuth         AuditStatus = "needs_auth"
	StatusNeedsScopeUpgrade AuditStatus = "needs_scope_upgrade"
)

// CapabilityRequest names one required capability.
type CapabilityRequest struct {
	ProviderID   string `json:"providerId"`
	CapabilityID string `json:"capabilityId"`
}

// TriggerRequest names one required trigger.
type TriggerRequest struct {
	ProviderID string `json:"providerId"`
	TriggerID  string `json:"triggerId"`
}

// AuditRequest is a batch of required capabilities and triggers.
type AuditRequest struct {
	Capabilities []CapabilityRequest `json:"capabilities"`
	Triggers     []TriggerRequest    `json:"triggers"`
}

// ProviderAuditResult reports one provider that is not yet fully satisfied,
// with the launch URL that requests exactly the missing internal ids.
type ProviderAuditResult struct {
	ProviderID    string      `json:"providerId"`
	DisplayName   string      `json:"providerDisplayName"`
	IconURL       string      `json:"providerIcon"`
	Status        AuditStatus `json:"status"`
	MissingScopes []string    `json:"missingScopes"`
	OAuthURL      string      `json:"oauthUrl"`
	Message       string      `json:"message"`
}

type providerDemand struct {
	capabilities []domain.Capability
	trigger      bool
}

// Audit snapshots the org's active scopes once, then decides per provider
// whether authorization is missing entirely or needs a scope upgrade. Fully
// satisfied providers are omitted. Unknown provider/capability/trigger ids
// are dropped with a warning; a single bad id never fails the batch. The
// internal pseudo-provider is passed through unaudited.
func (s *service) Audit(ctx context.Context, orgID, userID int64, req AuditRequest) ([]ProviderAuditResult, error) {
	snapshot, err := s.connRepo.ScopeSnapshot(ctx, orgID, userID)
	if err != nil {
		return nil, fmt.Errorf("scope snapshot: %w", err)
	}

	demands := make(map[string]*providerDemand)
	demand := func(providerID string) *providerDemand {
		d, ok := demands[providerID]
		if !ok {
			d = &providerDemand{}
			demands[providerID] = d
		}
		return d
	}

	for _, capReq := range req.Capabilities {
		if capReq.ProviderID == domain.InternalProviderID {
			continue
		}
		cap, err := s.registry.Capability(capReq.ProviderID, capReq.CapabilityID)
		if err != nil {
			s.log().Warn("audit dropped unknown capability",
				zap.String("provider", capReq.ProviderID),
				zap.String("capability", capReq.CapabilityID),
			)
			continue
		}
		demand(capReq.ProviderID).capabilities = append(demand(capReq.ProviderID).capabilities, cap)
	}

	for _, trgReq := range req.Triggers {
		if trgReq.ProviderID == domain.InternalProviderID {
			continue
		}
		if _, err := s.registry.Trigger(trgReq.ProviderID, trgReq.TriggerID); err != nil {
			s.log().Warn("audit dropped unknown trigger",
				zap.String("provider", trgReq.ProviderID),
				zap.String("trigger", trgReq.TriggerID),
			)
			continue
		}
		demand(trgReq.ProviderID).trigger = true
	}

	var results []ProviderAuditResult
	for _, rt := range s.registry.Providers() {
		desc := rt.Descriptor()
		d, ok := demands[desc.ID]
		if !ok {
			continue
		}

		hasConnection := snapshot.HasProvider(desc.ID)

		// A trigger has no scope of its own; without a connection the safest
		// bootstrap is a token broad enough for the provider's full
		// capability set.
		if d.trigger && !hasConnection {
			var all []string
			for _, cap := range rt.Capabilities() {
				all = append(all, cap.ID)
			}
			results = append(results, ProviderAuditResult{
				ProviderID:    desc.ID,
				DisplayName:   desc.DisplayName,
				IconURL:       desc.IconURL,
				Status:        StatusNeedsAuth,
				MissingScopes: all,
				OAuthURL:      s.launchURLFor(desc.ID, all),
				Message:       fmt.Sprintf("Connect %s to enable the requested triggers.", desc.DisplayName),
			})
			continue
		}

		var missing []string
		seen := make(map[string]struct{})
		for _, cap := range d.capabilities {
			if snapshot.HasScopes(cap.RequiredScopes) {
				continue
			}
			if _, dup := seen[cap.ID]; dup {
				continue
			}
			seen[cap.ID] = struct{}{}
			missing = append(missing, cap.ID)
		}
		if len(missing) == 0 {
			continue
		}
		results = append(results, ProviderAuditResult{
			ProviderID:    desc.ID,
			DisplayName:   desc.DisplayName,
			IconURL:       desc.IconURL,
			Status:        StatusNeedsScopeUpgrade,
			MissingScopes: missing,
			OAuthURL:      s.launchURLFor(desc.ID, missing),
			Message:       fmt.Sprintf("Additional %s permissions are required.", desc.DisplayName),
		})
	}
	return results, nil
}
