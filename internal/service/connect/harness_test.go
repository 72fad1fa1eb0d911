package connect

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-connect/internal/config"
	domain "github.com/smallbiznis/valora-connect/internal/domain/connect"
	"github.com/smallbiznis/valora-connect/internal/events"
	"github.com/smallbiznis/valora-connect/internal/provider"
	"github.com/smallbiznis/valora-connect/internal/repository"
)

// ---- Test harness and fakes ----

type testHarness struct {
	service   Service
	registry  *provider.Registry
	google    *fakeRuntime
	github    *fakeRuntime
	txRepo    *memoryTransactionRepo
	connRepo  *memoryConnectionRepo
	publisher *capturePublisher
}

func newGoogleRuntime() *fakeRuntime {
	return &fakeRuntime{
		Catalog: provider.Catalog{
			Provider: domain.Provider{ID: "google", DisplayName: "Google", IconURL: "https://icons/google.png", AuthKind: domain.AuthKindOAuth2},
			CapabilitySet: []domain.Capability{
				{ProviderID: "google", ID: "gmail.messages.send", RequiredScopes: []string{"gmail.send"}},
				{ProviderID: "google", ID: "gmail.messages.read", RequiredScopes: []string{"gmail.readonly"}},
				{ProviderID: "google", ID: "drive.files.read", RequiredScopes: []string{"drive.readonly"}},
			},
			TriggerSet: []domain.Trigger{
				{ProviderID: "google", ID: "gmail.message.received"},
			},
		},
		exchange: &domain.Exchange{
			TokenPayload:    []byte(`{"access_token":"ext"}`),
			Scopes:          []string{"gmail.send"},
			ExternalAccount: map[string]any{"email": "worker@example.com"},
		},
	}
}

func newGitHubRuntime() *fakeRuntime {
	return &fakeRuntime{
		Catalog: provider.Catalog{
			Provider: domain.Provider{ID: "github", DisplayName: "GitHub", IconURL: "https://icons/github.png", AuthKind: domain.AuthKindOAuth2},
			CapabilitySet: []domain.Capability{
				{ProviderID: "github", ID: "repos.read", RequiredScopes: []string{"repo"}},
			},
			TriggerSet: []domain.Trigger{
				{ProviderID: "github", ID: "repo.push"},
			},
		},
		exchange: &domain.Exchange{
			TokenPayload: []byte(`{"access_token":"gh"}`),
			Scopes:       []string{"repo"},
		},
	}
}

func newHarness(extra ...provider.Runtime) *testHarness {
	googleRT := newGoogleRuntime()
	githubRT := newGitHubRuntime()

	runtimes := append([]provider.Runtime{googleRT, githubRT}, extra...)
	registry := provider.NewRegistry(runtimes...)

	txRepo := newMemoryTransactionRepo()
	connRepo := newMemoryConnectionRepo()
	publisher := &capturePublisher{}
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}

	cfg := config.Config{
		OAuthRedirectBase: "https://connect.example.com",
		AppReturnURL:      "https://app.example.com/connections",
		ExchangeTimeout:   time.Second,
	}

	svc := NewService(registry, txRepo, connRepo, publisher, node, cfg, zap.NewNop())
	return &testHarness{
		service:   svc,
		registry:  registry,
		google:    googleRT,
		github:    githubRT,
		txRepo:    txRepo,
		connRepo:  connRepo,
		publisher: publisher,
	}
}

type fakeRuntime struct {
	provider.Catalog
	authURLErr    error
	exchange      *domain.Exchange
	exchangeErr   error
	exchangeCalls int
}

var _ provider.Runtime = (*fakeRuntime)(nil)
var _ provider.AuthCodeFlow = (*fakeRuntime)(nil)

func (f *fakeRuntime) BuildAuthURL(_ context.Context, scopes []string, state, redirectURI string) (string, error) {
	if f.authURLErr != nil {
		return "", f.authURLErr
	}
	values := url.Values{}
	for _, s := range scopes {
		values.Add("scope", s)
	}
	values.Set("state", state)
	values.Set("redirect_uri", redirectURI)
	return "https://provider.example.com/authorize?" + values.Encode(), nil
}

func (f *fakeRuntime) ExchangeCallback(_ context.Context, params url.Values, _ string) (*domain.Exchange, error) {
	f.exchangeCalls++
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	if params.Get("code") == "" {
		return nil, fmt.Errorf("authorization code missing")
	}
	return f.exchange, nil
}

type memoryTransactionRepo struct {
	mu          sync.Mutex
	byState     map[string]*domain.OAuthTransaction
	claimed     map[string]bool
	transitions map[int64]int
}

var _ repository.TransactionRepository = (*memoryTransactionRepo)(nil)

func newMemoryTransactionRepo() *memoryTransactionRepo {
	return &memoryTransactionRepo{
		byState:     make(map[string]*domain.OAuthTransaction),
		claimed:     make(map[string]bool),
		transitions: make(map[int64]int),
	}
}

func (m *memoryTransactionRepo) Create(_ context.Context, tx domain.OAuthTransaction) (domain.OAuthTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.byState[tx.State]; dup {
		return domain.OAuthTransaction{}, fmt.Errorf("duplicate state")
	}
	tx.CreatedAt = time.Now()
	stored := tx
	m.byState[tx.State] = &stored
	return tx, nil
}

func (m *memoryTransactionRepo) ClaimPending(_ context.Context, state string) (*domain.OAuthTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.byState[state]
	if !ok || tx.Status != domain.TransactionPending || m.claimed[state] {
		return nil, nil
	}
	m.claimed[state] = true
	copied := *tx
	return &copied, nil
}

func (m *memoryTransactionRepo) MarkCompleted(_ context.Context, id int64) error {
	return m.mark(id, domain.TransactionCompleted)
}

func (m *memoryTransactionRepo) MarkFailed(_ context.Context, id int64) error {
	return m.mark(id, domain.TransactionFailed)
}

func (m *memoryTransactionRepo) mark(id int64, status domain.TransactionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.byState {
		if tx.ID != id {
			continue
		}
		if tx.Status != domain.TransactionPending {
			return nil
		}
		now := time.Now()
		tx.Status = status
		tx.FinishedAt = &now
		m.transitions[id]++
		return nil
	}
	return fmt.Errorf("transaction %d not found", id)
}

func (m *memoryTransactionRepo) byStateCopy(state string) *domain.OAuthTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.byState[state]
	if !ok {
		return nil
	}
	copied := *tx
	return &copied
}

type memoryConnectionRepo struct {
	mu          sync.Mutex
	nextID      int64
	connections []*domain.Connection
	tokens      []*domain.Token
	mergeErr    error
}

var _ repository.ConnectionRepository = (*memoryConnectionRepo)(nil)

func newMemoryConnectionRepo() *memoryConnectionRepo {
	return &memoryConnectionRepo{nextID: 1}
}

func (m *memoryConnectionRepo) Merge(_ context.Context, in repository.MergeInput) (domain.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mergeErr != nil {
		return domain.Connection{}, m.mergeErr
	}

	var conn *domain.Connection
	for _, c := range m.connections {
		if c.OrgID == in.OrgID && c.ProviderID == in.ProviderID && c.Status == domain.ConnectionActive {
			conn = c
			break
		}
	}
	if conn == nil {
		conn = &domain.Connection{
			ID:         m.nextID,
			OrgID:      in.OrgID,
			ProviderID: in.ProviderID,
			UserID:     in.UserID,
			Status:     domain.ConnectionActive,
			CreatedAt:  time.Now(),
		}
		m.nextID++
		m.connections = append(m.connections, conn)
	}
	conn.ExternalAccount = in.ExternalAccount
	conn.UpdatedAt = time.Now()

	for _, t := range m.tokens {
		if t.ConnectionID == conn.ID && t.Owner == in.Owner {
			t.Payload = in.TokenPayload
			t.Scopes = append([]string{}, in.Scopes...)
			t.UpdatedAt = time.Now()
			return *conn, nil
		}
	}
	m.tokens = append(m.tokens, &domain.Token{
		ID:           m.nextID,
		ConnectionID: conn.ID,
		Payload:      in.TokenPayload,
		Scopes:       append([]string{}, in.Scopes...),
		Owner:        in.Owner,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	})
	m.nextID++
	return *conn, nil
}

func (m *memoryConnectionRepo) Deactivate(_ context.Context, orgID int64, providerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.connections {
		if c.OrgID == orgID && c.ProviderID == providerID && c.Status == domain.ConnectionActive {
			c.Status = domain.ConnectionInactive
			c.UpdatedAt = time.Now()
			return nil
		}
	}
	return domain.ErrConnectionNotFound
}

func (m *memoryConnectionRepo) ScopeSnapshot(_ context.Context, orgID, userID int64) (*repository.ScopeSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := &repository.ScopeSnapshot{
		ActiveProviders: make(map[string]struct{}),
		Scopes:          make(map[string]struct{}),
	}
	for _, c := range m.connections {
		if c.OrgID != orgID || c.Status != domain.ConnectionActive {
			continue
		}
		snapshot.ActiveProviders[c.ProviderID] = struct{}{}
		for _, t := range m.tokens {
			if t.ConnectionID != c.ID || !t.Owner.Covers(userID) {
				continue
			}
			for _, scope := range t.Scopes {
				snapshot.Scopes[scope] = struct{}{}
			}
		}
	}
	return snapshot, nil
}

// seedConnection installs an active connection with one token, bypassing the
// callback flow.
func (m *memoryConnectionRepo) seedConnection(orgID int64, providerID string, owner domain.TokenOwner, scopes []string) *domain.Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn := &domain.Connection{
		ID:         m.nextID,
		OrgID:      orgID,
		ProviderID: providerID,
		UserID:     owner.UserID,
		Status:     domain.ConnectionActive,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	m.nextID++
	m.connections = append(m.connections, conn)
	m.tokens = append(m.tokens, &domain.Token{
		ID:           m.nextID,
		ConnectionID: conn.ID,
		Payload:      []byte(`{}`),
		Scopes:       append([]string{}, scopes...),
		Owner:        owner,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	})
	m.nextID++
	return conn
}

func (m *memoryConnectionRepo) activeCount(orgID int64, providerID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.connections {
		if c.OrgID == orgID && c.ProviderID == providerID && c.Status == domain.ConnectionActive {
			count++
		}
	}
	return count
}

func (m *memoryConnectionRepo) tokensFor(connectionID int64) []domain.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Token
	for _, t := range m.tokens {
		if t.ConnectionID == connectionID {
			out = append(out, *t)
		}
	}
	return out
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.ProviderConnectionCompleted
}

var _ events.Publisher = (*capturePublisher)(nil)

func (p *capturePublisher) Publish(_ context.Context, event events.ProviderConnectionCompleted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) all() []events.ProviderConnectionCompleted {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.ProviderConnectionCompleted{}, p.events...)
}
