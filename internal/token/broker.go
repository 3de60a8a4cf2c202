// Package token resolves credentials for upstream API calls and guards the
// per-credential rate budget. Resolution order for a repository: org-scoped
// installation token, then the owner's stored OAuth token, then the OAuth-app
// secret for public repositories.
package token

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gogithub "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/gitpulse/gitpulse-indexer/internal/config"
	"github.com/gitpulse/gitpulse-indexer/models"
)

// CredentialStore is the slice of the store the broker reads.
type CredentialStore interface {
	IntegrationForOwner(ctx context.Context, orgLogin string) (*models.Integration, error)
	OAuthTokenForOwner(ctx context.Context, ownerID int64) (*models.OAuthToken, error)
}

// Credential is a resolved token together with where it came from.
type Credential struct {
	Token  string
	Source string // installation | oauth | app_secret
}

// Broker resolves credentials and checks rate limits.
type Broker struct {
	cfg   config.GitHubConfig
	store CredentialStore
	now   func() time.Time

	// baseURL overrides the API endpoint; set for tests and GHE hosts.
	baseURL *url.URL

	mu    sync.Mutex
	cache map[string]cachedInstallationToken // org login → minted token
}

type cachedInstallationToken struct {
	token     string
	expiresAt time.Time
}

// NewBroker creates a Broker backed by the given credential store.
func NewBroker(cfg config.GitHubConfig, store CredentialStore) *Broker {
	return &Broker{
		cfg:   cfg,
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		cache: make(map[string]cachedInstallationToken),
	}
}

// WithClock overrides the broker clock (tests).
func (b *Broker) WithClock(now func() time.Time) *Broker {
	b.now = now
	return b
}

// SetBaseURL points the broker at an alternative API endpoint. Used by tests
// with httptest servers; enterprise hosts are handled via cfg.Host.
func (b *Broker) SetBaseURL(raw string) error {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parsing API base URL: %w", err)
	}
	b.baseURL = u
	return nil
}

// Resolve picks the highest-priority credential able to serve op against the
// repository.
func (b *Broker) Resolve(ctx context.Context, repo *models.Repository, op Operation) (*Credential, error) {
	owner := repo.Owner()

	integ, err := b.store.IntegrationForOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("loading integration for %s: %w", owner, err)
	}
	if integ != nil {
		tok, err := b.installationToken(ctx, integ)
		if err != nil {
			slog.Warn("Installation token mint failed; falling through",
				"org", owner, "error", err)
		} else {
			return &Credential{Token: tok, Source: "installation"}, nil
		}
	}

	userTok, err := b.store.OAuthTokenForOwner(ctx, repo.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("loading oauth token for owner %d: %w", repo.OwnerID, err)
	}
	if userTok != nil && !userTok.Expired(b.now()) {
		if b.cfg.EnforceScopes && !HasScopes(userTok.Scopes, ScopesFor(op)) {
			slog.Warn("Stored token lacks required scopes",
				"owner_id", repo.OwnerID, "operation", op)
		} else {
			return &Credential{Token: userTok.AccessToken, Source: "oauth"}, nil
		}
	}

	if b.cfg.OAuthAppSecret != "" && !repo.Private {
		return &Credential{Token: b.cfg.OAuthAppSecret, Source: "app_secret"}, nil
	}

	return nil, fmt.Errorf("no credential available for %s (operation %s)", repo.FullName, op)
}

// Client builds a go-github client authenticated with the given token.
func (b *Broker) Client(ctx context.Context, token string) (*gogithub.Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	client := gogithub.NewClient(tc)

	if b.baseURL != nil {
		client.BaseURL = b.baseURL
		return client, nil
	}
	if b.cfg.Host != "" && b.cfg.Host != "github.com" {
		base := fmt.Sprintf("https://%s/api/v3/", b.cfg.Host)
		upload := fmt.Sprintf("https://%s/api/uploads/", b.cfg.Host)
		var err error
		client, err = client.WithEnterpriseURLs(base, upload)
		if err != nil {
			return nil, fmt.Errorf("configuring GitHub enterprise URLs: %w", err)
		}
	}
	return client, nil
}

// installationToken returns a cached or freshly minted installation access
// token for the org integration.
func (b *Broker) installationToken(ctx context.Context, integ *models.Integration) (string, error) {
	b.mu.Lock()
	cached, ok := b.cache[integ.OrgLogin]
	b.mu.Unlock()
	// Refresh a minute early so an in-flight run never carries a dying token.
	if ok && b.now().Add(time.Minute).Before(cached.expiresAt) {
		return cached.token, nil
	}

	appJWT, err := b.signAppAssertion(integ)
	if err != nil {
		return "", err
	}

	appClient, err := b.Client(ctx, appJWT)
	if err != nil {
		return "", err
	}

	installations, _, err := appClient.Apps.ListInstallations(ctx, &gogithub.ListOptions{PerPage: 100})
	if err != nil {
		return "", fmt.Errorf("listing app installations: %w", err)
	}

	var installationID int64
	for _, inst := range installations {
		if strings.EqualFold(inst.GetAccount().GetLogin(), integ.OrgLogin) {
			installationID = inst.GetID()
			break
		}
	}
	if installationID == 0 {
		return "", fmt.Errorf("no installation found for org %s", integ.OrgLogin)
	}

	instTok, _, err := appClient.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return "", fmt.Errorf("creating installation token for org %s: %w", integ.OrgLogin, err)
	}

	b.mu.Lock()
	b.cache[integ.OrgLogin] = cachedInstallationToken{
		token:     instTok.GetToken(),
		expiresAt: instTok.GetExpiresAt().Time,
	}
	b.mu.Unlock()

	return instTok.GetToken(), nil
}

// signAppAssertion builds the RS256-signed app JWT: iat 60s in the past to
// absorb clock skew, expiry 9 minutes out, issuer = app id.
func (b *Broker) signAppAssertion(integ *models.Integration) (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(integ.PrivateKeyPEM))
	if err != nil {
		return "", fmt.Errorf("parsing app private key for org %s: %w", integ.OrgLogin, err)
	}

	now := b.now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
		Issuer:    fmt.Sprintf("%d", integ.AppID),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("signing app assertion: %w", err)
	}
	return signed, nil
}
