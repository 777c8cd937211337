package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opensource-finance/moim/internal/domain"
)

// RoleAdmin is the role claim required on admin routes.
const RoleAdmin = "admin"

// AdminClaims are the claims of an admin bearer token.
// Tenant limits the token to one tenant; "*" allows every tenant and global policies.
type AdminClaims struct {
	Role   string `json:"role"`
	Tenant string `json:"tenant,omitempty"`
	jwt.RegisteredClaims
}

var errAuthDisabled = errors.New("admin auth is not configured")

// IssueAdminToken signs an HS256 admin token.
func IssueAdminToken(cfg domain.AuthConfig, subject, tenant string, ttl time.Duration) (string, error) {
	if cfg.JWTSecret == "" {
		return "", errAuthDisabled
	}
	now := time.Now()
	claims := AdminClaims{
		Role:   RoleAdmin,
		Tenant: tenant,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
}

// AdminMiddleware requires a valid admin bearer token for the request tenant.
// It must run after TenantMiddleware.
func AdminMiddleware(cfg domain.AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.JWTSecret == "" {
				writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "관리자 인증이 설정되지 않았습니다"})
				return
			}

			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "인증 토큰이 필요합니다"})
				return
			}

			var claims AdminClaims
			_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
				return []byte(cfg.JWTSecret), nil
			},
				jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
				jwt.WithIssuer(cfg.Issuer),
				jwt.WithExpirationRequired(),
			)
			if err != nil {
				slog.Debug("admin token rejected", "error", err)
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "유효하지 않은 인증 토큰입니다"})
				return
			}

			tenantID := GetTenantID(r.Context())
			if claims.Role != RoleAdmin || (claims.Tenant != domain.WildcardTenant && claims.Tenant != tenantID) {
				writeJSON(w, http.StatusForbidden, errorResponse{Error: "접근 권한이 없습니다"})
				return
			}

			ctx := context.WithValue(r.Context(), ActorKey, claims.Subject)
			ctx = context.WithValue(ctx, AdminTenantKey, claims.Tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// isSuperAdmin reports whether the admin token covers every tenant.
func isSuperAdmin(ctx context.Context) bool {
	v, _ := ctx.Value(AdminTenantKey).(string)
	return v == domain.WildcardTenant
}
