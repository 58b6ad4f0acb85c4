package gdrive

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/tonimelisma/drivescan/internal/tokenfile"
)

// MetadataReadonlyScope grants read access to file metadata only, which is
// all a scan needs.
const MetadataReadonlyScope = "https://www.googleapis.com/auth/drive.metadata.readonly"

// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
const stateTokenBytes = 16

// pendingAuthTTL bounds how long an issued authorization URL stays redeemable.
const pendingAuthTTL = 10 * time.Minute

// ErrUnknownState is returned when a callback presents a state that was never
// issued, was already redeemed, or has expired.
var ErrUnknownState = errors.New("gdrive: unknown or expired authorization state")

// AuthConfig configures an Authenticator.
type AuthConfig struct {
	ClientID     string
	ClientSecret string
	// RedirectURL is where the provider sends the user after consent for
	// out-of-band authorization (the serve command's /oauth/callback).
	RedirectURL string
	// TokenPath is the single credential slot on disk.
	TokenPath string
	// Endpoint overrides the OAuth2 endpoint. Zero value selects Google.
	Endpoint oauth2.Endpoint
	// HTTPClient is used for token exchange and refresh. Nil uses the default.
	HTTPClient *http.Client
}

// pendingAuth is an issued authorization URL awaiting its callback.
type pendingAuth struct {
	verifier string
	issuedAt time.Time
}

// Authenticator is the credential provider consumed by scan jobs. It owns a
// single process-wide credential slot backed by the token file. When no
// credential exists it issues an authorization URL instead of blocking.
type Authenticator struct {
	oauth      *oauth2.Config
	tokenPath  string
	httpClient *http.Client
	logger     *slog.Logger
	nowFunc    func() time.Time

	mu      sync.Mutex
	slot    *persistingSource
	pending map[string]pendingAuth
}

// NewAuthenticator creates an Authenticator. No I/O happens until the first
// Credential call.
func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}

	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = google.Endpoint
	}

	return &Authenticator{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{MetadataReadonlyScope},
		},
		tokenPath:  cfg.TokenPath,
		httpClient: cfg.HTTPClient,
		logger:     logger,
		nowFunc:    time.Now,
		pending:    make(map[string]pendingAuth),
	}
}

// Credential returns a usable token source. If the slot is empty and no
// token file exists, it returns *AuthRequiredError carrying a fresh
// authorization URL. A token that cannot be refreshed is a plain error.
func (a *Authenticator) Credential(_ context.Context) (TokenSource, error) {
	src, err := a.loadSlot()
	if err != nil {
		return nil, err
	}

	// Forces a refresh now if the access token has expired, so a revoked
	// grant surfaces here rather than on the first listing request. The
	// refresh is a network call and runs without holding a.mu.
	if _, err := src.Token(); err != nil {
		a.mu.Lock()
		if a.slot == src {
			a.slot = nil
		}
		a.mu.Unlock()

		return nil, fmt.Errorf("gdrive: refreshing credential: %w", err)
	}

	return src, nil
}

// loadSlot returns the slot's source, filling it from the token file when
// empty.
func (a *Authenticator) loadSlot() (*persistingSource, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.slot != nil {
		return a.slot, nil
	}

	tf, err := tokenfile.Load(a.tokenPath)
	if err != nil {
		return nil, fmt.Errorf("gdrive: loading credential: %w", err)
	}

	if tf == nil {
		a.logger.Info("no saved credential, authorization required",
			slog.String("path", a.tokenPath),
		)

		return nil, a.authorizationRequiredLocked()
	}

	a.slot = a.newSource(tf)

	return a.slot, nil
}

// authorizationRequiredLocked issues a new state and PKCE verifier and
// returns the URL the user must visit. Caller holds a.mu.
func (a *Authenticator) authorizationRequiredLocked() error {
	state, err := generateState()
	if err != nil {
		return fmt.Errorf("gdrive: generating state token: %w", err)
	}

	verifier := oauth2.GenerateVerifier()
	now := a.nowFunc()

	for s, p := range a.pending {
		if now.Sub(p.issuedAt) > pendingAuthTTL {
			delete(a.pending, s)
		}
	}

	a.pending[state] = pendingAuth{verifier: verifier, issuedAt: now}

	return &AuthRequiredError{URL: a.authURL(a.oauth, state, verifier)}
}

// authURL builds the consent URL. prompt=consent makes Google return a
// refresh token even when the user granted access before.
func (a *Authenticator) authURL(cfg *oauth2.Config, state, verifier string) string {
	return cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// CompleteAuthorization redeems the code delivered to the redirect URL for
// an issued state, persists the token, and fills the credential slot.
func (a *Authenticator) CompleteAuthorization(ctx context.Context, state, code string) error {
	a.mu.Lock()
	p, ok := a.pending[state]
	delete(a.pending, state)
	a.mu.Unlock()

	if !ok || a.nowFunc().Sub(p.issuedAt) > pendingAuthTTL {
		return ErrUnknownState
	}

	a.logger.Info("received authorization code, exchanging for token")

	tok, err := a.oauth.Exchange(a.oauthContext(ctx), code, oauth2.VerifierOption(p.verifier))
	if err != nil {
		return fmt.Errorf("gdrive: token exchange failed: %w", err)
	}

	return a.store(&tokenfile.File{Token: tok})
}

// SetAccount records the account name alongside the saved token.
func (a *Authenticator) SetAccount(account string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	tf, err := tokenfile.Load(a.tokenPath)
	if err != nil {
		return err
	}

	if tf == nil {
		return fmt.Errorf("gdrive: no credential saved at %s", a.tokenPath)
	}

	tf.Account = account

	if err := tokenfile.Save(a.tokenPath, tf); err != nil {
		return err
	}

	if a.slot != nil {
		a.slot.setAccount(account)
	}

	return nil
}

// Logout empties the credential slot and removes the token file.
func (a *Authenticator) Logout() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.slot = nil

	if err := tokenfile.Remove(a.tokenPath); err != nil {
		return err
	}

	a.logger.Info("logout: removed credential", slog.String("path", a.tokenPath))

	return nil
}

// store persists a freshly exchanged token and installs it in the slot.
func (a *Authenticator) store(tf *tokenfile.File) error {
	if err := tokenfile.Save(a.tokenPath, tf); err != nil {
		return fmt.Errorf("gdrive: saving token: %w", err)
	}

	a.mu.Lock()
	a.slot = a.newSource(tf)
	a.mu.Unlock()

	a.logger.Info("authorization complete, credential saved",
		slog.String("path", a.tokenPath),
		slog.Time("expiry", tf.Token.Expiry),
	)

	return nil
}

// newSource wraps the oauth2 refreshing source so refreshed tokens are
// written back to the token file.
func (a *Authenticator) newSource(tf *tokenfile.File) *persistingSource {
	return &persistingSource{
		src:     a.oauth.TokenSource(a.oauthContext(context.Background()), tf.Token),
		path:    a.tokenPath,
		account: tf.Account,
		last:    tf.Token.AccessToken,
		logger:  a.logger,
	}
}

// oauthContext attaches the configured HTTP client for oauth2 requests.
// Refresh uses the context captured at source creation, so it must not be
// request scoped.
func (a *Authenticator) oauthContext(ctx context.Context) context.Context {
	if a.httpClient == nil {
		return ctx
	}

	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}

// persistingSource adapts oauth2.TokenSource to gdrive.TokenSource and saves
// the token whenever the library hands back a refreshed one.
type persistingSource struct {
	src    oauth2.TokenSource
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	account string
	last    string // access token most recently persisted
}

func (s *persistingSource) Token() (string, error) {
	t, err := s.src.Token()
	if err != nil {
		s.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("gdrive: obtaining token: %w", err)
	}

	s.mu.Lock()
	changed := t.AccessToken != s.last
	s.last = t.AccessToken
	account := s.account
	s.mu.Unlock()

	if changed {
		if saveErr := tokenfile.Save(s.path, &tokenfile.File{Token: t, Account: account}); saveErr != nil {
			s.logger.Warn("failed to persist refreshed token",
				slog.String("path", s.path),
				slog.String("error", saveErr.Error()),
			)
		} else {
			s.logger.Info("persisted refreshed token",
				slog.String("path", s.path),
				slog.Time("new_expiry", t.Expiry),
			)
		}
	}

	return t.AccessToken, nil
}

func (s *persistingSource) setAccount(account string) {
	s.mu.Lock()
	s.account = account
	s.mu.Unlock()
}

// generateState produces a cryptographically random hex string for the OAuth2
// state parameter.
func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
