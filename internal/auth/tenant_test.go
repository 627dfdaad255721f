package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/Esoteriker/openTree/internal/common/config"
)

func TestResolver_NoneMode_TrustsHeader(t *testing.T) {
	resolver := NewResolver(config.AuthConfig{Mode: "none"})
	ctx, err := resolver.Resolve("acme", "key1", "")
	require.NoError(t, err)
	require.Equal(t, "acme", ctx.TenantID)
	require.Equal(t, "key1", ctx.APIKey)
}

func TestResolver_EmptyTenantHeaderIsRejected(t *testing.T) {
	resolver := NewResolver(config.AuthConfig{Mode: "none"})
	_, err := resolver.Resolve("", "", "")
	require.Error(t, err)
}

func TestResolver_APIKeyMode_AcceptsMatchingKey(t *testing.T) {
	resolver := NewResolver(config.AuthConfig{Mode: "api_key", TenantAPIKeys: map[string]string{"acme": "secret"}})
	ctx, err := resolver.Resolve("acme", "secret", "")
	require.NoError(t, err)
	require.Equal(t, "acme", ctx.TenantID)
}

func TestResolver_APIKeyMode_RejectsWrongKey(t *testing.T) {
	resolver := NewResolver(config.AuthConfig{Mode: "api_key", TenantAPIKeys: map[string]string{"acme": "secret"}})
	_, err := resolver.Resolve("acme", "wrong", "")
	require.Error(t, err)
}

func TestResolver_APIKeyMode_RejectsUnknownTenant(t *testing.T) {
	resolver := NewResolver(config.AuthConfig{Mode: "api_key", TenantAPIKeys: map[string]string{"acme": "secret"}})
	_, err := resolver.Resolve("unknown", "secret", "")
	require.Error(t, err)
}

func TestResolver_RequiredWithNoneModeUpgradesToAPIKey(t *testing.T) {
	resolver := NewResolver(config.AuthConfig{Mode: "none", Required: true, TenantAPIKeys: map[string]string{"acme": "secret"}})
	_, err := resolver.Resolve("acme", "", "")
	require.Error(t, err)
}

func signTestToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestResolver_JWTMode_ResolvesTenantAndSubject(t *testing.T) {
	resolver := NewResolver(config.AuthConfig{Mode: "jwt", JWTSecret: "unit-test-secret"})
	token := signTestToken(t, "unit-test-secret", jwt.MapClaims{"sub": "u_1", "tenant_id": "acme"})

	ctx, err := resolver.Resolve("acme", "", "Bearer "+token)
	require.NoError(t, err)
	require.Equal(t, "acme", ctx.TenantID)
	require.Equal(t, "u_1", ctx.Subject)
}

func TestResolver_JWTMode_RejectsHeaderTenantMismatch(t *testing.T) {
	resolver := NewResolver(config.AuthConfig{Mode: "jwt", JWTSecret: "unit-test-secret"})
	token := signTestToken(t, "unit-test-secret", jwt.MapClaims{"sub": "u_1", "tenant_id": "acme"})

	_, err := resolver.Resolve("other", "", "Bearer "+token)
	require.Error(t, err)
}

func TestResolver_JWTMode_RejectsMissingBearerPrefix(t *testing.T) {
	resolver := NewResolver(config.AuthConfig{Mode: "jwt", JWTSecret: "unit-test-secret"})
	_, err := resolver.Resolve("acme", "", "not-a-bearer-token")
	require.Error(t, err)
}

func TestResolver_JWTMode_RejectsBadSignature(t *testing.T) {
	resolver := NewResolver(config.AuthConfig{Mode: "jwt", JWTSecret: "unit-test-secret"})
	token := signTestToken(t, "wrong-secret", jwt.MapClaims{"sub": "u_1", "tenant_id": "acme"})

	_, err := resolver.Resolve("acme", "", "Bearer "+token)
	require.Error(t, err)
}

func TestResolver_JWTMode_RejectsWrongAlgorithm(t *testing.T) {
	resolver := NewResolver(config.AuthConfig{Mode: "jwt", JWTSecret: "unit-test-secret", JWTAlgorithm: "HS256"})

	claims := jwt.MapClaims{"sub": "u_1", "tenant_id": "acme"}
	token := jwt.NewWithClaims(jwt.SigningMethodHS384, claims)
	signed, err := token.SignedString([]byte("unit-test-secret"))
	require.NoError(t, err)

	_, err = resolver.Resolve("acme", "", "Bearer "+signed)
	require.Error(t, err)
}

func TestEnsureTenantAccess_RejectsMismatch(t *testing.T) {
	err := EnsureTenantAccess("acme", TenantContext{TenantID: "other"})
	require.Error(t, err)
}

func TestEnsureTenantAccess_AllowsMatch(t *testing.T) {
	err := EnsureTenantAccess("acme", TenantContext{TenantID: "acme"})
	require.NoError(t, err)
}
