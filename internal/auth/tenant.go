// Package auth resolves the calling tenant from request headers, under one
// of three modes: none (trust the header), api_key (a per-tenant shared
// secret), or jwt (a signed bearer token carrying the tenant claim).
package auth

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/Esoteriker/openTree/internal/common/apperrors"
	"github.com/Esoteriker/openTree/internal/common/config"
)

// TenantContext is the resolved caller identity for one request.
type TenantContext struct {
	TenantID string
	APIKey   string
	Subject  string
}

// Resolver resolves a TenantContext from the three headers the dialogue/
// parser/graph/suggestion services all accept: X-Tenant-ID, X-API-Key, and
// Authorization (bearer JWT).
type Resolver struct {
	cfg config.AuthConfig
}

// NewResolver builds a tenant resolver from the auth config section.
func NewResolver(cfg config.AuthConfig) *Resolver {
	return &Resolver{cfg: cfg}
}

// Resolve implements the none/api_key/jwt mode dispatch.
func (r *Resolver) Resolve(tenantHeader, apiKeyHeader, authorizationHeader string) (TenantContext, error) {
	requestedTenant := strings.TrimSpace(tenantHeader)
	if requestedTenant == "" {
		return TenantContext{}, apperrors.BadRequest("tenant header cannot be empty")
	}

	mode := strings.ToLower(strings.TrimSpace(r.cfg.Mode))
	if r.cfg.Required && mode == "none" {
		mode = "api_key"
	}

	switch mode {
	case "", "none":
		return TenantContext{TenantID: requestedTenant, APIKey: apiKeyHeader}, nil
	case "api_key":
		return r.resolveAPIKey(requestedTenant, apiKeyHeader)
	case "jwt":
		return r.resolveJWT(requestedTenant, authorizationHeader)
	default:
		return TenantContext{}, apperrors.InternalError(fmt.Sprintf("unsupported auth mode %q", r.cfg.Mode), nil)
	}
}

func (r *Resolver) resolveAPIKey(requestedTenant, apiKeyHeader string) (TenantContext, error) {
	expected, ok := r.cfg.TenantAPIKeys[requestedTenant]
	if !ok || expected == "" {
		return TenantContext{}, apperrors.Unauthorized("unknown tenant")
	}
	if apiKeyHeader != expected {
		return TenantContext{}, apperrors.Unauthorized("invalid API key")
	}
	return TenantContext{TenantID: requestedTenant, APIKey: apiKeyHeader}, nil
}

func (r *Resolver) resolveJWT(requestedTenant, authorizationHeader string) (TenantContext, error) {
	if !strings.HasPrefix(strings.ToLower(authorizationHeader), "bearer ") {
		return TenantContext{}, apperrors.Unauthorized("missing bearer token")
	}
	rawToken := strings.TrimSpace(authorizationHeader[len("Bearer "):])

	claims := jwt.MapClaims{}
	algorithm := r.cfg.JWTAlgorithm
	if algorithm == "" {
		algorithm = "HS256"
	}
	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{algorithm})}
	if r.cfg.JWTAudience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(r.cfg.JWTAudience))
	}
	if r.cfg.JWTIssuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(r.cfg.JWTIssuer))
	}

	_, err := jwt.ParseWithClaims(rawToken, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(r.cfg.JWTSecret), nil
	}, parserOpts...)
	if err != nil {
		return TenantContext{}, apperrors.Unauthorized(fmt.Sprintf("invalid token: %v", err))
	}

	tokenTenant := firstNonEmptyClaim(claims, "tenant_id", "tid", "tenant")
	if tokenTenant != "" && requestedTenant != "" && tokenTenant != requestedTenant {
		return TenantContext{}, apperrors.Forbidden("tenant mismatch between token and header")
	}
	resolvedTenant := tokenTenant
	if resolvedTenant == "" {
		resolvedTenant = requestedTenant
	}
	if resolvedTenant == "" {
		return TenantContext{}, apperrors.Unauthorized("token must include tenant claim")
	}

	subject, _ := claims["sub"].(string)
	return TenantContext{TenantID: resolvedTenant, Subject: subject}, nil
}

func firstNonEmptyClaim(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if value, ok := claims[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

// EnsureTenantAccess checks that a resource's owning tenant matches the
// caller's resolved tenant.
func EnsureTenantAccess(expectedTenantID string, ctx TenantContext) error {
	if expectedTenantID != ctx.TenantID {
		return apperrors.Forbidden("tenant mismatch")
	}
	return nil
}
