package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/zjoart/go-monnify-wallet/internal/account"
	"github.com/zjoart/go-monnify-wallet/internal/key"
	"github.com/zjoart/go-monnify-wallet/pkg/apperror"
	"github.com/zjoart/go-monnify-wallet/pkg/logger"
	"github.com/zjoart/go-monnify-wallet/pkg/utils"
)

const apiKeyHeader = "x-api-key"

type AccountLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*account.Account, error)
}

type KeyAuthenticator interface {
	Authenticate(ctx context.Context, value string) (*key.APIKey, error)
}

func withCaller(r *http.Request, acc *account.Account, perms []string) *http.Request {
	ctx := context.WithValue(r.Context(), utils.AccountKey, *acc)
	ctx = context.WithValue(ctx, utils.PermissionsKey, perms)
	return r.WithContext(ctx)
}

func loadActive(w http.ResponseWriter, r *http.Request, accounts AccountLoader, id uuid.UUID) (*account.Account, bool) {
	acc, err := accounts.FindByID(r.Context(), id)
	if err != nil {
		if !apperror.IsKind(err, apperror.KindNotFound) {
			logger.Error("failed to load caller", logger.Merge(logger.WithError(err), logger.Fields{logger.AccountIDKey: id.String()}))
		}
		utils.BuildErrorResponse(w, http.StatusUnauthorized, "Account not found", nil)
		return nil, false
	}
	if !acc.IsActive() {
		utils.BuildErrorResponse(w, http.StatusUnauthorized, ErrAccountInactive.Message, nil)
		return nil, false
	}
	return acc, true
}

func JWTMiddleware(tokens *Tokens, accounts AccountLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				utils.BuildErrorResponse(w, http.StatusUnauthorized, "Authorization required", nil)
				return
			}

			id, err := tokens.Parse(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				utils.BuildErrorResponse(w, http.StatusUnauthorized, "Invalid token", nil)
				return
			}

			acc, ok := loadActive(w, r, accounts, id)
			if !ok {
				return
			}
			next.ServeHTTP(w, withCaller(r, acc, []string{string(key.PermissionAll)}))
		})
	}
}

func APIKeyMiddleware(keys KeyAuthenticator, accounts AccountLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			value := r.Header.Get(apiKeyHeader)
			if value == "" {
				utils.BuildErrorResponse(w, http.StatusUnauthorized, "API Key required", nil)
				return
			}

			apiKey, err := keys.Authenticate(r.Context(), value)
			if err != nil {
				utils.WriteError(w, err)
				return
			}

			acc, ok := loadActive(w, r, accounts, apiKey.AccountID)
			if !ok {
				return
			}
			next.ServeHTTP(w, withCaller(r, acc, []string(apiKey.Permissions)))
		})
	}
}

// UnifiedAuthMiddleware accepts an API key when the header is present and
// falls back to a bearer token otherwise.
func UnifiedAuthMiddleware(tokens *Tokens, keys KeyAuthenticator, accounts AccountLoader) func(http.Handler) http.Handler {
	jwtAuth := JWTMiddleware(tokens, accounts)
	keyAuth := APIKeyMiddleware(keys, accounts)
	return func(next http.Handler) http.Handler {
		viaJWT := jwtAuth(next)
		viaKey := keyAuth(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(apiKeyHeader) != "" {
				viaKey.ServeHTTP(w, r)
				return
			}
			viaJWT.ServeHTTP(w, r)
		})
	}
}

func RequirePermission(perm key.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			perms, ok := r.Context().Value(utils.PermissionsKey).([]string)
			if !ok {
				utils.BuildErrorResponse(w, http.StatusForbidden, "Permissions not found", nil)
				return
			}

			hasPerm := false
			for _, p := range perms {
				if p == string(key.PermissionAll) || p == string(perm) {
					hasPerm = true
					break
				}
			}

			if !hasPerm {
				utils.BuildErrorResponse(w, http.StatusForbidden, "Insufficient permissions", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
