package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"flock-backend/internal/auth"
	apperrors "flock-backend/internal/errors"
)

// AuthConfig selects how callers are identified.
type AuthConfig struct {
	// Validator checks bearer tokens. Nil disables bearer auth.
	Validator *auth.Validator
	// TrustGateway accepts the identity headers set by the Lambda entry
	// point from the API Gateway authorizer context.
	TrustGateway bool
}

// Authenticate resolves the caller and stores it in the request context.
// Requests without a valid identity are rejected with 401.
func Authenticate(cfg AuthConfig, errs *apperrors.ErrorHandler, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.TrustGateway && r.Header.Get(auth.HeaderGatewayAuthorized) == "true" {
				if id := r.Header.Get(auth.HeaderUserID); id != "" {
					user := auth.User{ID: id, Name: r.Header.Get(auth.HeaderUserName)}
					next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
					return
				}
				errs.Handle(w, r, apperrors.NewUnauthenticated("missing user context from API Gateway"))
				return
			}

			if cfg.Validator == nil {
				errs.Handle(w, r, apperrors.NewUnauthenticated("request not authorized by API Gateway"))
				return
			}

			claims, err := cfg.Validator.Validate(r.Header.Get("Authorization"))
			if err != nil {
				logger.Debug("Rejected token",
					zap.Error(err),
					zap.String("path", r.URL.Path),
				)
				errs.Handle(w, r, apperrors.NewUnauthenticated(err.Error()))
				return
			}

			user := auth.User{ID: claims.Subject, Name: claims.Name}
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
		})
	}
}
