package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"facilityfix/internal/directory"
)

type AuthConfig struct {
	JWTSecret              string
	AllowLegacyActorHeader bool
	DevLogin               bool
	Logger                 *log.Logger
}

type Principal struct {
	ActorID string
	Role    string
	Source  string
}

type principalKey struct{}

func (c AuthConfig) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func actorIDFromContext(ctx context.Context) (string, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.ActorID != "" {
		return p.ActorID, nil
	}
	return "", newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

func authenticateJWT(token string, secret string) (Principal, error) {
	if strings.TrimSpace(secret) == "" {
		return Principal{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !parsed.Valid {
		return Principal{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return Principal{}, errors.New("subject claim required")
	}
	return Principal{
		ActorID: claims.Subject,
		Role:    claims.Role,
		Source:  "jwt",
	}, nil
}

func signDevToken(secret, actorID, role string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(12 * time.Hour)),
		},
		Role: role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func authenticateAPIKey(ctx context.Context, dir directory.Service, key string) (Principal, error) {
	if strings.TrimSpace(key) == "" {
		return Principal{}, errors.New("api key required")
	}
	profile, err := dir.ResolveAPIKey(ctx, key)
	if err != nil {
		return Principal{}, err
	}
	return Principal{
		ActorID: profile.ID,
		Role:    profile.Role,
		Source:  "api_key",
	}, nil
}

func bearerToken(authz string) (string, bool) {
	const scheme = "bearer "
	if len(authz) <= len(scheme) || !strings.EqualFold(authz[:len(scheme)], scheme) {
		return "", false
	}
	token := strings.TrimSpace(authz[len(scheme):])
	return token, token != ""
}

func newAuthMiddleware(basePath string, cfg AuthConfig, dir directory.Service) func(http.Handler) http.Handler {
	exempt := map[string]bool{
		path.Join(basePath, "health"):         true,
		path.Join(basePath, "auth/dev/login"): true,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if exempt[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}
			principal, code := resolvePrincipal(req, cfg, dir)
			if code != "" {
				writeUnauthorized(w, code)
				return
			}
			next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
		})
	}
}

// resolvePrincipal checks credentials strongest first. A credential that is
// present but invalid fails the request instead of falling through to a
// weaker one. Returns a non-empty error code on failure.
func resolvePrincipal(req *http.Request, cfg AuthConfig, dir directory.Service) (Principal, string) {
	if authz := strings.TrimSpace(req.Header.Get("Authorization")); authz != "" {
		token, ok := bearerToken(authz)
		if !ok {
			return Principal{}, "invalid_credentials"
		}
		principal, err := authenticateJWT(token, cfg.JWTSecret)
		if err != nil {
			return Principal{}, "invalid_credentials"
		}
		return principal, ""
	}
	if key := strings.TrimSpace(req.Header.Get("X-Api-Key")); key != "" {
		principal, err := authenticateAPIKey(req.Context(), dir, key)
		if err != nil {
			return Principal{}, "invalid_credentials"
		}
		return principal, ""
	}
	if actor := strings.TrimSpace(req.Header.Get("X-Actor-Id")); actor != "" && cfg.AllowLegacyActorHeader {
		cfg.logger().Printf("WARNING: trusting legacy X-Actor-Id header (actor_id=%s)", actor)
		return Principal{ActorID: actor, Source: "legacy_header"}, ""
	}
	return Principal{}, "unauthorized"
}

func writeUnauthorized(w http.ResponseWriter, code string) {
	msg := "authentication required"
	if code == "invalid_credentials" {
		msg = "invalid credentials"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": apiErrorBody{Code: code, Message: msg},
	})
}
