package connect

import "time"

// ProviderID reserved for capabilities that need no external authorization.
// Audit requests against it are passed through, never audited.
const InternalProviderID = "system"

// AuthKind describes how a provider authenticates.
type AuthKind string

const (
	AuthKindOAuth2 AuthKind = "oauth2"
	AuthKindNone   AuthKind = "none"
)

// Provider is the static catalog entry for an external provider.
type Provider struct {
	ID          string
	DisplayName string
	IconURL     string
	AuthKind    AuthKind
}

// Capability is a provider-scoped unit of functionality with the
// provider-native OAuth scopes it requires.
type Capability struct {
	ProviderID     string
	ID             string
	RequiredScopes []string
}

// Trigger is a provider-scoped event source. It requires a connection to
// exist but no specific scope.
type Trigger struct {
	ProviderID string
	ID         string
}

// TransactionStatus is the lifecycle state of an OAuth launch.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// OAuthTransaction records one in-flight launch, keyed by a single-use state
// token. Status only ever moves pending -> completed or pending -> failed.
type OAuthTransaction struct {
	ID              int64
	OrgID           int64
	UserID          int64
	State           string
	ProviderID      string
	RequestedScopes []string
	RedirectURI     string
	Status          TransactionStatus
	CreatedAt       time.Time
	FinishedAt      *time.Time
}

// ConnectionStatus is the Active/Inactive flag on a connection.
type ConnectionStatus string

const (
	ConnectionActive   ConnectionStatus = "active"
	ConnectionInactive ConnectionStatus = "inactive"
)

// Connection is the durable record that an org has authorized a provider.
// At most one active row exists per (org, provider).
type Connection struct {
	ID              int64
	OrgID           int64
	ProviderID      string
	UserID          int64
	Status          ConnectionStatus
	ExternalAccount map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OwnerKind distinguishes who a token was granted on behalf of.
type OwnerKind string

const (
	OwnerUser         OwnerKind = "user"
	OwnerOrganization OwnerKind = "organization"
)

// TokenOwner is the tagged ownership of a token: a single user, or the whole
// organization. UserID is meaningful only when Kind is OwnerUser.
type TokenOwner struct {
	Kind   OwnerKind
	UserID int64
}

// UserOwner builds an owner for a single user grant.
func UserOwner(userID int64) TokenOwner {
	return TokenOwner{Kind: OwnerUser, UserID: userID}
}

// OrganizationOwner builds an owner for an org-wide grant.
func OrganizationOwner() TokenOwner {
	return TokenOwner{Kind: OwnerOrganization}
}

// Covers reports whether a token held by this owner is usable by userID.
// Org-owned tokens cover everyone in the org.
func (o TokenOwner) Covers(userID int64) bool {
	switch o.Kind {
	case OwnerOrganization:
		return true
	case OwnerUser:
		return o.UserID == userID
	default:
		return false
	}
}

// Token holds the opaque credential blob and granted scopes attached to a
// connection. At most one row exists per (connection, owner). Payload must
// never be logged or echoed to clients.
type Token struct {
	ID           int64
	ConnectionID int64
	Payload      []byte
	Scopes       []string
	Owner        TokenOwner
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Exchange is the result of a provider callback exchange: the raw token
// material, the scopes the provider actually granted, and account metadata.
type Exchange struct {
	TokenPayload    []byte
	Scopes          []string
	ExternalAccount map[string]any
}
