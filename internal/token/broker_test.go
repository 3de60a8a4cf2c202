package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gitpulse/gitpulse-indexer/internal/config"
	"github.com/gitpulse/gitpulse-indexer/models"
)

type fakeCreds struct {
	integ *models.Integration
	tok   *models.OAuthToken
}

func (f *fakeCreds) IntegrationForOwner(ctx context.Context, orgLogin string) (*models.Integration, error) {
	return f.integ, nil
}

func (f *fakeCreds) OAuthTokenForOwner(ctx context.Context, ownerID int64) (*models.OAuthToken, error) {
	return f.tok, nil
}

func publicRepo() *models.Repository {
	return &models.Repository{ID: 1, FullName: "acme/site", OwnerID: 42}
}

func TestScopesForClosedSet(t *testing.T) {
	cases := map[Operation][]string{
		OpBasic:        {},
		OpPublicRepos:  {"public_repo"},
		OpPrivateRepos: {"repo"},
		OpUserInfo:     {"user:email"},
		OpOrgAccess:    {"read:org"},
		OpCodeScanning: {"security_events"},
		OpFullAccess:   {"repo", "user:email", "read:org"},
	}
	for op, want := range cases {
		got := ScopesFor(op)
		if len(got) != len(want) {
			t.Errorf("ScopesFor(%s) = %v, want %v", op, got, want)
			continue
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("ScopesFor(%s) = %v, want %v", op, got, want)
			}
		}
	}
}

func TestHasScopes(t *testing.T) {
	if !HasScopes("repo, user:email", []string{"repo"}) {
		t.Error("granted scope not recognized")
	}
	// The broad repo scope implies public_repo.
	if !HasScopes("repo", []string{"public_repo"}) {
		t.Error("repo must imply public_repo")
	}
	if HasScopes("public_repo", []string{"repo"}) {
		t.Error("public_repo must not imply repo")
	}
	if HasScopes("user:email", []string{"security_events"}) {
		t.Error("missing scope accepted")
	}
	if !HasScopes("anything", nil) {
		t.Error("empty requirement must always pass")
	}
}

func TestResolvePrefersStoredOAuthToken(t *testing.T) {
	creds := &fakeCreds{tok: &models.OAuthToken{
		OwnerID:     42,
		AccessToken: "user-token",
		Scopes:      "repo",
	}}
	b := NewBroker(config.GitHubConfig{OAuthAppSecret: "app-secret"}, creds)

	cred, err := b.Resolve(context.Background(), publicRepo(), OpPublicRepos)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cred.Source != "oauth" || cred.Token != "user-token" {
		t.Fatalf("expected the stored oauth token, got %+v", cred)
	}
}

func TestResolveSkipsExpiredOAuthToken(t *testing.T) {
	past := time.Now().UTC().Add(-time.Hour)
	creds := &fakeCreds{tok: &models.OAuthToken{
		OwnerID:     42,
		AccessToken: "stale",
		ExpiresAt:   &past,
	}}
	b := NewBroker(config.GitHubConfig{OAuthAppSecret: "app-secret"}, creds)

	cred, err := b.Resolve(context.Background(), publicRepo(), OpPublicRepos)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cred.Source != "app_secret" {
		t.Fatalf("expired token must fall through to the app secret, got %+v", cred)
	}
}

func TestResolveEnforcesScopesWhenConfigured(t *testing.T) {
	creds := &fakeCreds{tok: &models.OAuthToken{
		OwnerID:     42,
		AccessToken: "limited",
		Scopes:      "user:email",
	}}
	b := NewBroker(config.GitHubConfig{OAuthAppSecret: "app-secret", EnforceScopes: true}, creds)

	cred, err := b.Resolve(context.Background(), publicRepo(), OpCodeScanning)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cred.Source != "app_secret" {
		t.Fatalf("under-scoped token must be skipped when enforcing, got %+v", cred)
	}

	// Without enforcement the stored token is used as-is.
	b = NewBroker(config.GitHubConfig{OAuthAppSecret: "app-secret"}, creds)
	cred, err = b.Resolve(context.Background(), publicRepo(), OpCodeScanning)
	if err != nil {
		t.Fatalf("resolve without enforcement: %v", err)
	}
	if cred.Source != "oauth" {
		t.Fatalf("expected the oauth token without enforcement, got %+v", cred)
	}
}

func TestResolvePrivateRepoWithoutCredentialFails(t *testing.T) {
	b := NewBroker(config.GitHubConfig{OAuthAppSecret: "app-secret"}, &fakeCreds{})
	private := &models.Repository{ID: 2, FullName: "acme/secrets", OwnerID: 42, Private: true}

	if _, err := b.Resolve(context.Background(), private, OpPrivateRepos); err == nil {
		t.Fatal("app secret must not serve private repositories")
	}

	cred, err := b.Resolve(context.Background(), publicRepo(), OpPublicRepos)
	if err != nil {
		t.Fatalf("resolve public: %v", err)
	}
	if cred.Source != "app_secret" {
		t.Fatalf("expected the app secret for public repos, got %+v", cred)
	}
}

func testPrivateKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
}

func TestResolveMintsAndCachesInstallationToken(t *testing.T) {
	listCalls := 0
	mintCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/app/installations", func(w http.ResponseWriter, r *http.Request) {
		listCalls++
		fmt.Fprint(w, `[{"id": 77, "account": {"login": "Acme"}}]`)
	})
	mux.HandleFunc("/app/installations/77/access_tokens", func(w http.ResponseWriter, r *http.Request) {
		mintCalls++
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"token": "inst-token", "expires_at": %q}`,
			time.Now().UTC().Add(time.Hour).Format(time.RFC3339))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	creds := &fakeCreds{integ: &models.Integration{
		OrgLogin:      "acme",
		AppID:         1234,
		PrivateKeyPEM: testPrivateKeyPEM(t),
	}}
	b := NewBroker(config.GitHubConfig{}, creds)
	if err := b.SetBaseURL(srv.URL); err != nil {
		t.Fatalf("set base url: %v", err)
	}

	cred, err := b.Resolve(context.Background(), publicRepo(), OpFullAccess)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cred.Source != "installation" || cred.Token != "inst-token" {
		t.Fatalf("expected a minted installation token, got %+v", cred)
	}

	// A second resolve within the token lifetime hits the cache.
	if _, err := b.Resolve(context.Background(), publicRepo(), OpFullAccess); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if listCalls != 1 || mintCalls != 1 {
		t.Fatalf("expected one mint round-trip, got list=%d mint=%d", listCalls, mintCalls)
	}
}

func TestResolveInstallationFailureFallsThrough(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/app/installations", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`) // app installed nowhere
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	creds := &fakeCreds{
		integ: &models.Integration{OrgLogin: "acme", AppID: 1, PrivateKeyPEM: testPrivateKeyPEM(t)},
		tok:   &models.OAuthToken{OwnerID: 42, AccessToken: "user-token", Scopes: "repo"},
	}
	b := NewBroker(config.GitHubConfig{}, creds)
	if err := b.SetBaseURL(srv.URL); err != nil {
		t.Fatalf("set base url: %v", err)
	}

	cred, err := b.Resolve(context.Background(), publicRepo(), OpPublicRepos)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cred.Source != "oauth" {
		t.Fatalf("mint failure must fall through to the stored token, got %+v", cred)
	}
}
