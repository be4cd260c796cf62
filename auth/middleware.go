package auth

import (
	"chat-live/errors"
	"context"
	"fmt"
	"net/http"
	"strings"
)

type contextKey string

var errMissingToken = fmt.Errorf("%w: authorization token is missing", errors.ErrInvalidToken)

const UserIDKey contextKey = "user_id"

// Responder writes an error response; it lets the middleware reuse the API error format.
type Responder func(w http.ResponseWriter, r *http.Request, err error)

// Middleware rejects requests without a valid bearer token
// and injects the user identity into the request context.
func Middleware(tokens *TokenManager, fail Responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenStr, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenStr == "" {
				fail(w, r, errMissingToken)
				return
			}

			claims, err := tokens.ValidateToken(tokenStr)
			if err != nil {
				fail(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.UserID)))
		})
	}
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// UserIDFrom returns the authenticated user of the request.
func UserIDFrom(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}
