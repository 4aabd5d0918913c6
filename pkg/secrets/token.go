package secrets

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// TokenResolver resolves the extraction-service API token. The environment
// value wins when set; otherwise the token is fetched from the configured
// secrets provider and cached until TTL expiry.
type TokenResolver struct {
	logger     *zap.Logger
	envToken   string
	secretName string
	provider   Provider
	cache      *Cache[string]
}

// NewTokenResolver builds a resolver. provider may be nil when only the
// environment token is available.
func NewTokenResolver(logger *zap.Logger, envToken, secretName string, provider Provider, cache *Cache[string]) *TokenResolver {
	return &TokenResolver{
		logger:     logger,
		envToken:   envToken,
		secretName: secretName,
		provider:   provider,
		cache:      cache,
	}
}

// Resolve returns the API token, or an error when no source can supply one.
// A missing token is a configuration error: the caller should abort before
// any scrape work begins.
func (r *TokenResolver) Resolve(ctx context.Context) (string, error) {
	if r.envToken != "" {
		return r.envToken, nil
	}

	if token, ok := r.cache.Get(r.secretName); ok {
		return token, nil
	}

	if r.provider == nil {
		return "", fmt.Errorf("SCRAPER_API_TOKEN is not set and no secrets provider is configured")
	}

	secret, err := r.provider.GetSecret(ctx, r.secretName)
	if err != nil {
		return "", fmt.Errorf("resolve API token from secret [%s]: %w", r.secretName, err)
	}
	token, ok := secret["api_token"]
	if !ok || token == "" {
		return "", fmt.Errorf("secret [%s] has no api_token field", r.secretName)
	}

	r.cache.Put(r.secretName, token)
	r.logger.Info("secrets.token_resolved", zap.String("secret", r.secretName))
	return token, nil
}
