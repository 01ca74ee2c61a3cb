package msauth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	gocache "github.com/patrickmn/go-cache"
)

const tokenCacheKey = "ms_access_token"

// Config carries the Microsoft identity platform credentials for the
// refresh-token grant.
type Config struct {
	LoginBaseURL string // e.g. "https://login.microsoftonline.com"
	TenantID     string
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// TokenSource exchanges a long-lived refresh token for short-lived access
// tokens and caches them in-process until shortly before expiry.
type TokenSource struct {
	client *resty.Client
	cfg    Config
	cache  *gocache.Cache
	logger *slog.Logger
}

// NewTokenSource creates a TokenSource.
func NewTokenSource(cfg Config, logger *slog.Logger) *TokenSource {
	return &TokenSource{
		client: resty.New().SetTimeout(15 * time.Second),
		cfg:    cfg,
		cache:  gocache.New(gocache.NoExpiration, 10*time.Minute),
		logger: logger.With("component", "ms_token_source"),
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// AccessToken returns a cached access token, refreshing when none is cached.
func (ts *TokenSource) AccessToken(ctx context.Context) (string, error) {
	if v, ok := ts.cache.Get(tokenCacheKey); ok {
		return v.(string), nil
	}
	return ts.Refresh(ctx)
}

// Refresh performs one refresh-token grant and caches the result. Callers
// that see an auth-expired signal invalidate and call this once more; the
// refresh is never retried on its own.
func (ts *TokenSource) Refresh(ctx context.Context) (string, error) {
	if ts.cfg.RefreshToken == "" {
		return "", fmt.Errorf("microsoft account is not authorized: refresh token missing")
	}

	endpoint := fmt.Sprintf("%s/%s/oauth2/v2.0/token", ts.cfg.LoginBaseURL, ts.cfg.TenantID)

	var out tokenResponse
	var errOut tokenErrorResponse
	resp, err := ts.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_id":     ts.cfg.ClientID,
			"client_secret": ts.cfg.ClientSecret,
			"refresh_token": ts.cfg.RefreshToken,
			"grant_type":    "refresh_token",
		}).
		SetResult(&out).
		SetError(&errOut).
		Post(endpoint)
	if err != nil {
		return "", fmt.Errorf("token refresh request failed: %w", err)
	}
	if !resp.IsSuccess() || out.AccessToken == "" {
		if errOut.ErrorDescription != "" {
			return "", fmt.Errorf("unable to refresh access token: %s", errOut.ErrorDescription)
		}
		return "", fmt.Errorf("unable to refresh access token: status %d", resp.StatusCode())
	}

	// The identity platform may rotate the refresh token on every grant.
	if out.RefreshToken != "" {
		ts.cfg.RefreshToken = out.RefreshToken
	}

	expiry := time.Duration(out.ExpiresIn) * time.Second
	if expiry > time.Minute {
		expiry -= time.Minute
	}
	ts.cache.Set(tokenCacheKey, out.AccessToken, expiry)

	ts.logger.Info("Access token refreshed", "expires_in_seconds", out.ExpiresIn)
	return out.AccessToken, nil
}

// Invalidate drops the cached access token, forcing the next AccessToken
// call to refresh.
func (ts *TokenSource) Invalidate() {
	ts.cache.Delete(tokenCacheKey)
}
