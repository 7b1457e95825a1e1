// Package keymanager implements the API-key and tenant manager:
// account/user CRUD, invitation tokens, and the in-memory key index that
// every request resolves against. Persistence is three JSON blobs on the
// storage backend:
//
//	/local/_system/accounts.json
//	/local/<account_id>/_system/users.json
//	/local/_system/invitation_tokens.json
//
// The in-memory index and the persisted JSON are updated together under
// one manager-scoped lock, so readers always see a consistent view
//.
package keymanager

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/openviking/openviking/internal/identity"
	"github.com/openviking/openviking/internal/models"
	"github.com/openviking/openviking/internal/ovterrors"
	"github.com/openviking/openviking/internal/pkg/redact"
	"github.com/openviking/openviking/internal/vikingfs"
)

const (
	accountsPath         = "/local/_system/accounts.json"
	invitationTokensPath = "/local/_system/invitation_tokens.json"
	usersPathTemplate    = "/local/%s/_system/users.json"
)

// keyEntry is one in-memory index record: key -> (account, user, role).
type keyEntry struct {
	accountID string
	userID    string
	role      identity.Role
}

// accountState is the in-memory view of one account.
type accountState struct {
	info  models.Account
	users map[string]userRecord
}

// userRecord is one entry of a per-account user registry file.
type userRecord struct {
	Role string `json:"role"`
	Key  string `json:"key"`
}

// Manager owns all key material. rootKey may be empty, which disables the
// ROOT role (and with it the admin endpoints).
type Manager struct {
	rootKey string
	backend vikingfs.Backend

	mu       sync.Mutex
	accounts map[string]*accountState
	keys     map[string]keyEntry
	tokens   map[string]*models.InvitationToken

	now func() time.Time
}

// New creates a Manager over backend. Call Load before serving.
func New(rootKey string, backend vikingfs.Backend) *Manager {
	return &Manager{
		rootKey:  rootKey,
		backend:  backend,
		accounts: make(map[string]*accountState),
		keys:     make(map[string]keyEntry),
		tokens:   make(map[string]*models.InvitationToken),
		now:      time.Now,
	}
}

type accountsFile struct {
	Accounts map[string]models.Account `json:"accounts"`
}

type usersFile struct {
	Users map[string]userRecord `json:"users"`
}

type tokensFile struct {
	Tokens map[string]*models.InvitationToken `json:"tokens"`
}

// Load reads the persisted registries into memory. A missing accounts
// file means first run and seeds an empty registry; a corrupt file aborts
// bootstrap; partial index states are forbidden.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var accounts accountsFile
	ok, err := m.readJSON(ctx, accountsPath, &accounts)
	if err != nil {
		return err
	}
	if !ok {
		accounts.Accounts = map[string]models.Account{}
		if err := m.writeJSON(ctx, accountsPath, accountsFile{Accounts: accounts.Accounts}); err != nil {
			return err
		}
	}

	for accountID, info := range accounts.Accounts {
		info.AccountID = accountID
		state := &accountState{info: info, users: map[string]userRecord{}}

		var users usersFile
		ok, err := m.readJSON(ctx, fmt.Sprintf(usersPathTemplate, accountID), &users)
		if err != nil {
			return err
		}
		if ok {
			state.users = users.Users
		}
		for userID, record := range state.users {
			if record.Key == "" {
				continue
			}
			m.keys[record.Key] = keyEntry{
				accountID: accountID,
				userID:    userID,
				role:      identity.Role(record.Role),
			}
		}
		m.accounts[accountID] = state
	}

	var tokens tokensFile
	ok, err = m.readJSON(ctx, invitationTokensPath, &tokens)
	if err != nil {
		return err
	}
	if ok && tokens.Tokens != nil {
		m.tokens = tokens.Tokens
	}
	return nil
}

// readJSON returns (false, nil) when the file does not exist and
// (false, err) on any other failure; NotFound is the only tolerated
// miss; a parse failure is fatal to bootstrap.
func (m *Manager) readJSON(ctx context.Context, path string, out interface{}) (bool, error) {
	data, err := m.backend.Read(ctx, path)
	if err != nil {
		if ovterrors.Is(err, ovterrors.NotFound) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, ovterrors.Wrap(ovterrors.NotInitialized, err, "corrupt registry file %s", path)
	}
	return true, nil
}

func (m *Manager) writeJSON(ctx context.Context, path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ovterrors.Wrap(ovterrors.Internal, err, "marshaling %s", path)
	}
	return m.backend.Write(ctx, path, data)
}

func (m *Manager) saveAccounts(ctx context.Context) error {
	out := accountsFile{Accounts: make(map[string]models.Account, len(m.accounts))}
	for accountID, state := range m.accounts {
		out.Accounts[accountID] = state.info
	}
	return m.writeJSON(ctx, accountsPath, out)
}

func (m *Manager) saveUsers(ctx context.Context, accountID string) error {
	state, ok := m.accounts[accountID]
	if !ok {
		return nil
	}
	return m.writeJSON(ctx, fmt.Sprintf(usersPathTemplate, accountID), usersFile{Users: state.users})
}

func (m *Manager) saveTokens(ctx context.Context) error {
	return m.writeJSON(ctx, invitationTokensPath, tokensFile{Tokens: m.tokens})
}

func newKey() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(buf)
}

// Resolve maps an API key to a RequestContext. Resolution is strictly
// sequential: timing-safe comparison against the root key first, then the
// index, then Unauthenticated. Suspended accounts resolve to
// PermissionDenied, not Unauthenticated; the key is valid, the tenant is
// frozen.
func (m *Manager) Resolve(apiKey string) (identity.RequestContext, error) {
	if apiKey == "" {
		return identity.RequestContext{}, ovterrors.Unauthenticatedf("missing API key")
	}

	if m.rootKey != "" && subtle.ConstantTimeCompare([]byte(apiKey), []byte(m.rootKey)) == 1 {
		return identity.RequestContext{Role: identity.RoleRoot}, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.keys[apiKey]
	if !ok {
		return identity.RequestContext{}, ovterrors.Unauthenticatedf("invalid API key")
	}
	if state, ok := m.accounts[entry.accountID]; ok && state.info.IsSuspended() {
		return identity.RequestContext{}, ovterrors.PermissionDeniedf("account %q is suspended", entry.accountID)
	}
	return identity.RequestContext{
		User: identity.UserIdentifier{
			AccountID: entry.accountID,
			UserID:    entry.userID,
			AgentID:   entry.userID, // default agent identity mirrors the user
		},
		Role: entry.role,
	}, nil
}

// RootEnabled reports whether a root key is configured.
func (m *Manager) RootEnabled() bool { return m.rootKey != "" }

// CreateAccount registers a fresh account with its first ADMIN, returning
// the admin's API key.
func (m *Manager) CreateAccount(ctx context.Context, accountID, adminUserID string) (string, error) {
	if accountID == "" || adminUserID == "" {
		return "", ovterrors.InvalidArgumentf("account_id and admin_user_id are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[accountID]; exists {
		return "", ovterrors.AlreadyExistsf("account %q already exists", accountID)
	}

	key := newKey()
	m.accounts[accountID] = &accountState{
		info: models.Account{
			AccountID: accountID,
			CreatedAt: m.now().UTC(),
		},
		users: map[string]userRecord{
			adminUserID: {Role: string(identity.RoleAdmin), Key: key},
		},
	}
	m.keys[key] = keyEntry{accountID: accountID, userID: adminUserID, role: identity.RoleAdmin}

	if err := m.saveAccounts(ctx); err != nil {
		return "", err
	}
	if err := m.saveUsers(ctx, accountID); err != nil {
		return "", err
	}
	return key, nil
}

// DeleteAccount removes the account from the index and persisted files.
// Cascading storage/vector cleanup is the caller's responsibility
//.
func (m *Manager) DeleteAccount(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.accounts[accountID]
	if !ok {
		return ovterrors.NotFoundf("account %q does not exist", accountID)
	}
	for _, record := range state.users {
		delete(m.keys, record.Key)
	}
	delete(m.accounts, accountID)

	if err := m.saveAccounts(ctx); err != nil {
		return err
	}
	// The per-account registry file lives inside the account subtree and
	// disappears with the FS cascade; removing it here keeps the manager
	// correct even when the caller skips that cascade.
	if err := m.backend.Remove(ctx, fmt.Sprintf(usersPathTemplate, accountID), false); err != nil && !ovterrors.Is(err, ovterrors.NotFound) {
		return err
	}
	return nil
}

// SuspendAccount freezes an account without deleting it; ResumeAccount
// lifts the freeze.
func (m *Manager) SuspendAccount(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.accounts[accountID]
	if !ok {
		return ovterrors.NotFoundf("account %q does not exist", accountID)
	}
	now := m.now().UTC()
	state.info.SuspendedAt = &now
	return m.saveAccounts(ctx)
}

func (m *Manager) ResumeAccount(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.accounts[accountID]
	if !ok {
		return ovterrors.NotFoundf("account %q does not exist", accountID)
	}
	state.info.SuspendedAt = nil
	return m.saveAccounts(ctx)
}

// AccountSummary is one row of ListAccounts.
type AccountSummary struct {
	AccountID string     `json:"account_id"`
	CreatedAt time.Time  `json:"created_at"`
	UserCount int        `json:"user_count"`
	Suspended bool       `json:"suspended"`
	SuspendedAt *time.Time `json:"suspended_at,omitempty"`
}

// ListAccounts returns all accounts, sorted by id.
func (m *Manager) ListAccounts() []AccountSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AccountSummary, 0, len(m.accounts))
	for accountID, state := range m.accounts {
		out = append(out, AccountSummary{
			AccountID:   accountID,
			CreatedAt:   state.info.CreatedAt,
			UserCount:   len(state.users),
			Suspended:   state.info.IsSuspended(),
			SuspendedAt: state.info.SuspendedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

// HasAccount reports whether accountID exists.
func (m *Manager) HasAccount(accountID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.accounts[accountID]
	return ok
}

// RegisterUser adds a user to an account, returning the fresh key.
func (m *Manager) RegisterUser(ctx context.Context, accountID, userID string, role identity.Role) (string, error) {
	if !role.Valid() || role == identity.RoleRoot {
		return "", ovterrors.InvalidArgumentf("role %q is not assignable", role)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.accounts[accountID]
	if !ok {
		return "", ovterrors.NotFoundf("account %q does not exist", accountID)
	}
	if _, exists := state.users[userID]; exists {
		return "", ovterrors.AlreadyExistsf("user %q already exists in account %q", userID, accountID)
	}

	key := newKey()
	state.users[userID] = userRecord{Role: string(role), Key: key}
	m.keys[key] = keyEntry{accountID: accountID, userID: userID, role: role}
	return key, m.saveUsers(ctx, accountID)
}

// RemoveUser deletes a user and evicts its key.
func (m *Manager) RemoveUser(ctx context.Context, accountID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.accounts[accountID]
	if !ok {
		return ovterrors.NotFoundf("account %q does not exist", accountID)
	}
	record, exists := state.users[userID]
	if !exists {
		return ovterrors.NotFoundf("user %q does not exist in account %q", userID, accountID)
	}
	delete(state.users, userID)
	delete(m.keys, record.Key)
	return m.saveUsers(ctx, accountID)
}

// SetRole changes a user's role in both registry and index.
func (m *Manager) SetRole(ctx context.Context, accountID, userID string, role identity.Role) error {
	if !role.Valid() || role == identity.RoleRoot {
		return ovterrors.InvalidArgumentf("role %q is not assignable", role)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.accounts[accountID]
	if !ok {
		return ovterrors.NotFoundf("account %q does not exist", accountID)
	}
	record, exists := state.users[userID]
	if !exists {
		return ovterrors.NotFoundf("user %q does not exist in account %q", userID, accountID)
	}
	record.Role = string(role)
	state.users[userID] = record
	if entry, ok := m.keys[record.Key]; ok {
		entry.role = role
		m.keys[record.Key] = entry
	}
	return m.saveUsers(ctx, accountID)
}

// RegenerateKey rotates a user's key; the old key is invalid immediately.
func (m *Manager) RegenerateKey(ctx context.Context, accountID, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.accounts[accountID]
	if !ok {
		return "", ovterrors.NotFoundf("account %q does not exist", accountID)
	}
	record, exists := state.users[userID]
	if !exists {
		return "", ovterrors.NotFoundf("user %q does not exist in account %q", userID, accountID)
	}
	delete(m.keys, record.Key)

	key := newKey()
	record.Key = key
	state.users[userID] = record
	m.keys[key] = keyEntry{accountID: accountID, userID: userID, role: identity.Role(record.Role)}
	return key, m.saveUsers(ctx, accountID)
}

// UserSummary is one row of ListUsers; keys are shown redacted only.
type UserSummary struct {
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	KeyPrefix string `json:"key_prefix"`
}

// ListUsers returns the users of one account, sorted by id.
func (m *Manager) ListUsers(accountID string) ([]UserSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.accounts[accountID]
	if !ok {
		return nil, ovterrors.NotFoundf("account %q does not exist", accountID)
	}
	out := make([]UserSummary, 0, len(state.users))
	for userID, record := range state.users {
		out = append(out, UserSummary{
			UserID:    userID,
			Role:      record.Role,
			KeyPrefix: redact.KeyPrefix(record.Key),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// CreateInvitationToken mints a bounded-use registration credential.
func (m *Manager) CreateInvitationToken(ctx context.Context, createdBy string, maxUses *int, expiresAt *time.Time) (*models.InvitationToken, error) {
	if maxUses != nil && *maxUses <= 0 {
		return nil, ovterrors.InvalidArgumentf("max_uses must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	token := &models.InvitationToken{
		TokenID:   "inv_" + newKey()[:32],
		MaxUses:   maxUses,
		ExpiresAt: expiresAt,
		CreatedBy: createdBy,
		CreatedAt: m.now().UTC(),
	}
	m.tokens[token.TokenID] = token
	if err := m.saveTokens(ctx); err != nil {
		return nil, err
	}
	return token, nil
}

// ListInvitationTokens returns all outstanding tokens, sorted by id.
func (m *Manager) ListInvitationTokens() []models.InvitationToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.InvitationToken, 0, len(m.tokens))
	for _, token := range m.tokens {
		out = append(out, *token)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out
}

// RevokeInvitationToken deletes a token.
func (m *Manager) RevokeInvitationToken(ctx context.Context, tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[tokenID]; !ok {
		return ovterrors.NotFoundf("invitation token %q does not exist", tokenID)
	}
	delete(m.tokens, tokenID)
	return m.saveTokens(ctx)
}

// CreateAccountWithToken consumes one use of token to create an account:
// expiry is checked first, then the usage cap, then creation delegates to
// the same path CreateAccount uses. used_count is monotone; it is never
// decremented, even when account creation fails after the checks.
func (m *Manager) CreateAccountWithToken(ctx context.Context, tokenID, accountID, adminUserID string) (string, error) {
	m.mu.Lock()
	token, ok := m.tokens[tokenID]
	if !ok {
		m.mu.Unlock()
		return "", ovterrors.InvalidArgumentf("invalid invitation token")
	}
	if token.Expired(m.now().UTC()) {
		m.mu.Unlock()
		return "", ovterrors.InvalidArgumentf("invitation token has expired")
	}
	if token.Exhausted() {
		m.mu.Unlock()
		return "", ovterrors.InvalidArgumentf("invitation token has reached maximum uses")
	}
	m.mu.Unlock()

	key, err := m.CreateAccount(ctx, accountID, adminUserID)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	token.UsedCount++
	err = m.saveTokens(ctx)
	m.mu.Unlock()
	if err != nil {
		return "", err
	}
	return key, nil
}
