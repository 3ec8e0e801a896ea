package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	pkgsecrets "github.com/Checker-Finance/yield-aggregator/pkg/secrets"
	"github.com/Checker-Finance/yield-aggregator/pkg/utils"
)

// APIKeyField is the secret map field holding a source API key.
const APIKeyField = "api_key"

// ErrNoCredentials is returned when no backend has a key for a source.
var ErrNoCredentials = errors.New("no credentials configured")

// KeyResolver resolves per-source API keys. Statically configured keys win;
// otherwise the provider is consulted and the result cached.
//
// Secret naming convention: {env}/yields/{source}
type KeyResolver struct {
	logger   *zap.Logger
	env      string
	static   map[string]string
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[string]
}

// NewKeyResolver builds a resolver. provider and cache may be nil when only
// static keys are used.
func NewKeyResolver(
	logger *zap.Logger,
	env string,
	static map[string]string,
	provider pkgsecrets.Provider,
	cache *pkgsecrets.Cache[string],
) *KeyResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	keys := make(map[string]string, len(static))
	for k, v := range static {
		if v != "" {
			keys[strings.ToLower(k)] = v
		}
	}
	return &KeyResolver{
		logger:   logger,
		env:      env,
		static:   keys,
		provider: provider,
		cache:    cache,
	}
}

// SecretName returns the secret name for source.
func (r *KeyResolver) SecretName(source string) string {
	return strings.ToLower(fmt.Sprintf("%s/yields/%s", r.env, source))
}

// APIKey returns the key for source.
func (r *KeyResolver) APIKey(ctx context.Context, source string) (string, error) {
	source = strings.ToLower(source)
	if key, ok := r.static[source]; ok {
		return key, nil
	}
	if r.cache != nil {
		if key, ok := r.cache.Get(source); ok {
			return key, nil
		}
	}
	if r.provider == nil {
		return "", fmt.Errorf("%s: %w", source, ErrNoCredentials)
	}

	name := r.SecretName(source)
	secret, err := r.provider.GetSecret(ctx, name)
	if err != nil {
		r.logger.Warn("secrets.fetch_failed",
			zap.String("source", source),
			zap.String("secret", name),
			zap.Error(err))
		if errors.Is(err, pkgsecrets.ErrSecretNotFound) {
			return "", fmt.Errorf("%s: %w", source, ErrNoCredentials)
		}
		return "", fmt.Errorf("resolve api key for %q: %w", source, err)
	}

	key := secret[APIKeyField]
	if key == "" {
		return "", fmt.Errorf("secret %q has no %s: %w", name, APIKeyField, ErrNoCredentials)
	}
	if r.cache != nil {
		r.cache.Put(source, key)
	}

	r.logger.Info("secrets.api_key_resolved",
		zap.String("source", source),
		zap.String("key", utils.MaskKey(key)))
	return key, nil
}
