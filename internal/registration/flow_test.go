package registration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/teemow/smtpbridge/internal/account"
	"github.com/teemow/smtpbridge/internal/crypto"
	"github.com/teemow/smtpbridge/internal/google"
)

const sendScopes = "openid https://www.googleapis.com/auth/userinfo.email " + google.ScopeGmailSend

type grant struct {
	email string
	token *oauth2.Token
}

// fakeProvider redeems each code once.
type fakeProvider struct {
	mu        sync.Mutex
	grants    map[string]grant
	redeemed  map[string]bool
	revoked   []string
	revokeErr error
	exchErr   error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{grants: map[string]grant{}, redeemed: map[string]bool{}}
}

func (p *fakeProvider) addGrant(code, email, scopes, refreshToken string) {
	tok := (&oauth2.Token{
		AccessToken:  "access-" + code,
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(time.Hour),
	}).WithExtra(map[string]any{"scope": scopes})
	p.grants[code] = grant{email: email, token: tok}
}

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + url.QueryEscape(state)
}

func (p *fakeProvider) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exchErr != nil {
		return nil, p.exchErr
	}
	g, ok := p.grants[code]
	if !ok || p.redeemed[code] {
		return nil, fmt.Errorf("%w: invalid_grant", ErrCodeAlreadyRedeemed)
	}
	p.redeemed[code] = true
	return g.token, nil
}

func (p *fakeProvider) UserEmail(_ context.Context, tok *oauth2.Token) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, g := range p.grants {
		if g.token.AccessToken == tok.AccessToken {
			return g.email, nil
		}
	}
	return "", errors.New("unknown token")
}

func (p *fakeProvider) Revoke(_ context.Context, token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked = append(p.revoked, token)
	return p.revokeErr
}

func (p *fakeProvider) revokedTokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.revoked...)
}

type fixture struct {
	flow     *Flow
	provider *fakeProvider
	store    *account.Store
	hasher   *crypto.Hasher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := account.Open(account.DBConfig{DSN: filepath.Join(t.TempDir(), "registration.db")}, discard)
	require.NoError(t, err)
	t.Cleanup(func() { _ = account.Close(db) })

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	cipher, err := crypto.NewCipher(key)
	require.NoError(t, err)
	hasher, err := crypto.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	store := account.NewStore(db, cipher, hasher, account.WithLogger(discard))
	provider := newFakeProvider()
	flow := NewFlow(provider, store, WithLogger(discard))
	t.Cleanup(flow.Wait)

	return &fixture{flow: flow, provider: provider, store: store, hasher: hasher}
}

func (f *fixture) accountCount(t *testing.T) int {
	t.Helper()
	accounts, err := f.store.List(context.Background())
	require.NoError(t, err)
	return len(accounts)
}

func TestFlow_AuthorizationURL(t *testing.T) {
	f := newFixture(t)

	u, err := f.flow.AuthorizationURL(ActionRegister)
	require.NoError(t, err)
	assert.Contains(t, u, "state=register")

	u, err = f.flow.AuthorizationURL(ActionRegenerate)
	require.NoError(t, err)
	assert.Contains(t, u, "state=regenerate")

	_, err = f.flow.AuthorizationURL(Action("delete"))
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestFlow_FreshRegistration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.provider.addGrant("C1", "alice@example.com", sendScopes, "refresh-alice")

	out, err := f.flow.HandleCallback(ctx, Callback{State: "register", Code: "C1"})
	require.NoError(t, err)
	assert.Equal(t, StatusRegistered, out.Status)
	assert.Equal(t, "alice@example.com", out.Email)
	assert.True(t, strings.HasPrefix(out.APIKey, crypto.APIKeyPrefix))
	assert.Len(t, out.APIKey, 35)

	acc, err := f.store.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, f.hasher.Verify(out.APIKey, acc.APIKeyHash))
	assert.True(t, acc.HasAccessToken(), "initial access token is cached")
	rt, err := f.store.DecryptedRefreshToken(acc)
	require.NoError(t, err)
	assert.Equal(t, "refresh-alice", rt)

	// Second consent for the same mailbox does not reveal or rotate a key.
	f.provider.addGrant("C1b", "alice@example.com", sendScopes, "refresh-alice-2")
	again, err := f.flow.HandleCallback(ctx, Callback{State: "register", Code: "C1b"})
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyRegistered, again.Status)
	assert.Empty(t, again.APIKey)

	acc2, err := f.store.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, acc.APIKeyHash, acc2.APIKeyHash)
	assert.Equal(t, 1, f.accountCount(t))
}

func TestFlow_MissingScope(t *testing.T) {
	f := newFixture(t)
	f.provider.addGrant("C2", "carol@example.com", "openid https://www.googleapis.com/auth/userinfo.email", "refresh-carol")

	out, err := f.flow.HandleCallback(context.Background(), Callback{State: "register", Code: "C2"})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)
	assert.ErrorIs(t, out.Reason, ErrMissingScope)
	assert.Empty(t, out.APIKey)

	f.flow.Wait()
	assert.Equal(t, []string{"access-C2"}, f.provider.revokedTokens())
	assert.Zero(t, f.accountCount(t))
}

func TestFlow_MissingScopeRevokeFailureIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.provider.revokeErr = errors.New("revocation endpoint unavailable")
	f.provider.addGrant("C2", "carol@example.com", "openid", "refresh-carol")

	out, err := f.flow.HandleCallback(context.Background(), Callback{State: "regenerate", Code: "C2"})
	require.NoError(t, err)
	assert.ErrorIs(t, out.Reason, ErrMissingScope)
	f.flow.Wait()
	assert.Len(t, f.provider.revokedTokens(), 1)
}

func TestFlow_ReusedCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.provider.addGrant("C3", "dave@example.com", sendScopes, "refresh-dave")

	first, err := f.flow.HandleCallback(ctx, Callback{State: "register", Code: "C3"})
	require.NoError(t, err)
	assert.Equal(t, StatusRegistered, first.Status)

	second, err := f.flow.HandleCallback(ctx, Callback{State: "register", Code: "C3"})
	require.NoError(t, err, "reused code is not an internal error")
	assert.Equal(t, StatusRejected, second.Status)
	assert.ErrorIs(t, second.Reason, ErrCodeAlreadyRedeemed)
}

func TestFlow_ExchangeFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	f.provider.exchErr = errors.New("connection refused")

	out, err := f.flow.HandleCallback(context.Background(), Callback{State: "register", Code: "C4"})
	require.Error(t, err)
	assert.Nil(t, out)
	assert.NotErrorIs(t, err, ErrCodeAlreadyRedeemed)
}

func TestFlow_Regenerate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.provider.addGrant("R0", "erin@example.com", sendScopes, "refresh-erin")
	out, err := f.flow.HandleCallback(ctx, Callback{State: "regenerate", Code: "R0"})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)
	assert.ErrorIs(t, out.Reason, account.ErrAccountNotFound)
	assert.Zero(t, f.accountCount(t))

	_, err = f.store.Create(ctx, "erin@example.com", "refresh-erin", "sk_OLD")
	require.NoError(t, err)

	f.provider.addGrant("R1", "Erin@Example.com", sendScopes, "refresh-erin-2")
	out, err = f.flow.HandleCallback(ctx, Callback{State: "regenerate", Code: "R1"})
	require.NoError(t, err)
	assert.Equal(t, StatusRegenerated, out.Status)
	assert.NotEqual(t, "sk_OLD", out.APIKey)

	acc, err := f.store.GetByEmail(ctx, "erin@example.com")
	require.NoError(t, err)
	assert.False(t, f.hasher.Verify("sk_OLD", acc.APIKeyHash))
	assert.True(t, f.hasher.Verify(out.APIKey, acc.APIKeyHash))

	rt, err := f.store.DecryptedRefreshToken(acc)
	require.NoError(t, err)
	assert.Equal(t, "refresh-erin-2", rt)
}

func TestFlow_RegenerateKeepsRefreshTokenWhenNoneIssued(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.Create(ctx, "erin@example.com", "refresh-erin", "sk_OLD")
	require.NoError(t, err)

	f.provider.addGrant("R2", "erin@example.com", sendScopes, "")
	out, err := f.flow.HandleCallback(ctx, Callback{State: "regenerate", Code: "R2"})
	require.NoError(t, err)
	assert.Equal(t, StatusRegenerated, out.Status)

	acc, err := f.store.GetByEmail(ctx, "erin@example.com")
	require.NoError(t, err)
	rt, err := f.store.DecryptedRefreshToken(acc)
	require.NoError(t, err)
	assert.Equal(t, "refresh-erin", rt)
}

func TestFlow_RegisterWithoutRefreshToken(t *testing.T) {
	f := newFixture(t)
	f.provider.addGrant("N1", "frank@example.com", sendScopes, "")

	out, err := f.flow.HandleCallback(context.Background(), Callback{State: "register", Code: "N1"})
	require.NoError(t, err)
	assert.ErrorIs(t, out.Reason, ErrNoRefreshToken)
	f.flow.Wait()
	assert.Equal(t, []string{"access-N1"}, f.provider.revokedTokens())
	assert.Zero(t, f.accountCount(t))
}

func TestFlow_CallbackEdgeCases(t *testing.T) {
	tests := []struct {
		name       string
		cb         Callback
		wantStatus Status
		wantReason error
	}{
		{name: "user denied consent", cb: Callback{State: "register", Error: "access_denied"}, wantStatus: StatusCancelled},
		{name: "error wins over bad state", cb: Callback{State: "bogus", Error: "access_denied"}, wantStatus: StatusCancelled},
		{name: "unknown state", cb: Callback{State: "bogus", Code: "X"}, wantStatus: StatusRejected, wantReason: ErrInvalidAction},
		{name: "empty state", cb: Callback{Code: "X"}, wantStatus: StatusRejected, wantReason: ErrInvalidAction},
		{name: "missing code", cb: Callback{State: "register"}, wantStatus: StatusRejected, wantReason: ErrMissingCode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			out, err := f.flow.HandleCallback(context.Background(), tt.cb)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, out.Status)
			if tt.wantReason != nil {
				assert.ErrorIs(t, out.Reason, tt.wantReason)
			}
			assert.Zero(t, f.accountCount(t))
		})
	}
}

func TestGuidance_DistinctPerOutcome(t *testing.T) {
	outcomes := []*Outcome{
		{Status: StatusRegistered},
		{Status: StatusRegenerated},
		{Status: StatusAlreadyRegistered},
		{Status: StatusCancelled},
		{Status: StatusRejected, Reason: ErrMissingScope},
		{Status: StatusRejected, Reason: ErrCodeAlreadyRedeemed},
		{Status: StatusRejected, Reason: ErrNoRefreshToken},
		{Status: StatusRejected, Reason: account.ErrAccountNotFound},
		{Status: StatusRejected, Reason: ErrMissingCode},
		{Status: StatusRejected, Reason: ErrInvalidAction},
	}

	seen := map[string]Status{}
	for _, out := range outcomes {
		msg := Guidance(out)
		require.NotEmpty(t, msg)
		_, dup := seen[msg]
		assert.False(t, dup, "duplicate guidance for %s/%v", out.Status, out.Reason)
		seen[msg] = out.Status
	}
}

func TestGuidance_WrappedReason(t *testing.T) {
	out := &Outcome{Status: StatusRejected, Reason: fmt.Errorf("exchange: %w", ErrCodeAlreadyRedeemed)}
	assert.Equal(t, Guidance(&Outcome{Status: StatusRejected, Reason: ErrCodeAlreadyRedeemed}), Guidance(out))
}
