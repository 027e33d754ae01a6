package gauth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"ticketsync/internal/config"
	"ticketsync/internal/errors"
)

// Scopes required for the remote spreadsheet destination.
var Scopes = []string{
	"https://www.googleapis.com/auth/spreadsheets",
	"https://www.googleapis.com/auth/drive.readonly",
}

// googleEndpoint is the standard Google OAuth2 endpoint.
var googleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

// expirySkew refreshes tokens this long before their stated expiry.
const expirySkew = 60 * time.Second

// State is the lifecycle state of the connected identity.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticated   State = "authenticated"
	StateExpired         State = "expired"
	StateRevoked         State = "revoked"
)

// Manager owns the process-wide CredentialSet: one connected identity,
// refreshed transparently before expiry, persisted across restarts. A
// refresh never runs concurrently with another; late callers reuse the
// in-flight result (the refresh token is single-use upstream).
type Manager struct {
	conf  *oauth2.Config
	store *Store

	mu      sync.Mutex
	creds   *Credentials
	revoked bool
}

// NewManager creates a manager from the application configuration,
// loading any persisted credentials.
func NewManager(cfg *config.Config) (*Manager, error) {
	store := NewStore(cfg.OAuthDataFile)
	creds, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &Manager{
		conf: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     googleEndpoint,
			Scopes:       Scopes,
		},
		store: store,
		creds: creds,
	}, nil
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.revoked:
		return StateRevoked
	case m.creds == nil:
		return StateUnauthenticated
	case time.Now().After(m.creds.Expiry.Add(-expirySkew)):
		return StateExpired
	default:
		return StateAuthenticated
	}
}

// AuthURL returns the authorization URL to present to the user.
func (m *Manager) AuthURL(state, redirectURI string) string {
	conf := *m.conf
	conf.RedirectURL = redirectURI
	return conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for a credential set and persists
// it, moving the manager to the authenticated state.
func (m *Manager) Exchange(ctx context.Context, code, redirectURI string) error {
	conf := *m.conf
	conf.RedirectURL = redirectURI
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return errors.NewCredential("authorization code exchange failed", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = &Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Scopes:       Scopes,
	}
	m.revoked = false
	return m.store.Save(m.creds)
}

// Token returns a valid access token, refreshing it first when expired.
// Callers arriving during a refresh block on the mutex and then see the
// refreshed token instead of starting a second exchange.
func (m *Manager) Token(ctx context.Context) (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.creds == nil {
		return nil, errors.NewNotConnected()
	}
	if time.Now().Before(m.creds.Expiry.Add(-expirySkew)) {
		return m.oauthToken(), nil
	}

	// Expired: run the refresh exchange with the stored refresh token.
	src := m.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: m.creds.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		// A rejected refresh token means the identity is no longer
		// connected; erase so the caller is told to reauthorize.
		m.creds = nil
		_ = m.store.Erase()
		return nil, errors.NewCredential("token refresh rejected; reauthorize required", err)
	}

	m.creds.AccessToken = tok.AccessToken
	m.creds.Expiry = tok.Expiry
	if tok.RefreshToken != "" {
		m.creds.RefreshToken = tok.RefreshToken
	}
	if err := m.store.Save(m.creds); err != nil {
		return nil, err
	}
	return m.oauthToken(), nil
}

// Connected reports whether a refresh token is present.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds != nil
}

// Disconnect erases the persisted credentials and marks the identity
// revoked. A rejected refresh instead drops back to unauthenticated.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds = nil
	m.revoked = true
	return m.store.Erase()
}

// TokenSource adapts the manager to the oauth2.TokenSource interface for
// the Sheets service.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &managerSource{ctx: ctx, m: m}
}

func (m *Manager) oauthToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  m.creds.AccessToken,
		RefreshToken: m.creds.RefreshToken,
		Expiry:       m.creds.Expiry,
		TokenType:    "Bearer",
	}
}

type managerSource struct {
	ctx context.Context
	m   *Manager
}

func (s *managerSource) Token() (*oauth2.Token, error) {
	return s.m.Token(s.ctx)
}
