package guesty

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/config"
	"github.com/hostfolio/guesty-sync-backend/internal/infrastructure/storage"
)

// ProviderName keys the credential row, sync logs and health record
const ProviderName = "guesty"

const tokenCacheKey = "access_token"

// expirySlack trims the remote TTL so a token is refreshed before it can
// lapse mid-run
const expirySlack = 5 * time.Minute

// TokenProvider obtains and caches an OAuth client-credentials token.
// Lookup order: in-memory cache, persisted credential row, remote exchange.
type TokenProvider struct {
	store        storage.CredentialStore
	cache        *gocache.Cache
	httpClient   *http.Client
	tokenURL     string
	clientID     string
	clientSecret string
	logger       *slog.Logger

	now func() time.Time
}

// NewTokenProvider creates a token provider backed by the given credential store
func NewTokenProvider(store storage.CredentialStore, cfg config.GuestyConfig, logger *slog.Logger) *TokenProvider {
	if logger == nil {
		logger = slog.Default()
	}

	return &TokenProvider{
		store:        store,
		cache:        gocache.New(gocache.NoExpiration, 10*time.Minute),
		httpClient:   &http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second},
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		logger:       logger,
		now:          time.Now,
	}
}

// Token returns a valid access token, refreshing it when needed.
// A failed exchange returns an AuthError; the caller treats it as fatal
// for the current run.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	if v, ok := p.cache.Get(tokenCacheKey); ok {
		return v.(string), nil
	}

	cutoff := p.now().Add(expirySlack)

	cached, err := p.store.GetCachedToken(ProviderName)
	if err != nil {
		p.logger.Warn("token cache lookup failed", "error", err)
	} else if cached != nil && cached.ExpiresAt.After(cutoff) {
		p.remember(cached.AccessToken, cached.ExpiresAt)
		return cached.AccessToken, nil
	}

	return p.refresh(ctx)
}

// Invalidate drops the in-memory token, forcing the next Token call back
// through the store
func (p *TokenProvider) Invalidate() {
	p.cache.Delete(tokenCacheKey)
}

// refresh performs the client-credentials exchange and persists the result
func (p *TokenProvider) refresh(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", "open-api")
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)

	// A throttled token endpoint is a rate-limit condition, not a credential
	// problem; callers surface it distinctly from AuthError.
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &RateLimitError{Endpoint: "token"}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var tok TokenResponse
	if err := json.Unmarshal(body, &tok); err != nil || tok.AccessToken == "" {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: "token response missing access_token"}
	}

	now := p.now()
	expiresAt := now.Add(time.Duration(tok.ExpiresIn) * time.Second)

	if err := p.store.PutCachedToken(&storage.CachedToken{
		Provider:    ProviderName,
		AccessToken: tok.AccessToken,
		ExpiresAt:   expiresAt,
		UpdatedAt:   now,
	}); err != nil {
		// The token is still usable for this run; persistence failure only
		// costs the next run a re-exchange.
		p.logger.Warn("failed to persist refreshed token", "error", err)
	}

	p.logger.Debug("refreshed guesty token", "expires_at", expiresAt.Format(time.RFC3339))

	p.remember(tok.AccessToken, expiresAt)
	return tok.AccessToken, nil
}

// remember stores the token in memory until shortly before expiry
func (p *TokenProvider) remember(token string, expiresAt time.Time) {
	ttl := expiresAt.Sub(p.now()) - expirySlack
	if ttl <= 0 {
		return
	}
	p.cache.Set(tokenCacheKey, token, ttl)
}
