package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corolair/moodle-bridge/internal/core/domain"
	"github.com/corolair/moodle-bridge/internal/core/ports"
)

type contextKey string

const (
	// CtxUser carries the resolved *domain.Account of the acting host user.
	CtxUser contextKey = "user"
	// CtxRequestID carries the request correlation id.
	CtxRequestID contextKey = "request_id"
)

// userHeader names the acting Moodle user, set by the host shim that fronts
// the bridge. The bridge trusts it; session validation happened host-side.
const userHeader = "X-Moodle-User"

// RequestID assigns every request a correlation id, honoring one already set
// by an upstream proxy.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), CtxRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserMiddleware resolves the acting user from the X-Moodle-User header and
// stores the account in the request context.
func UserMiddleware(store ports.HostStore, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(userHeader)
			userID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || userID <= 0 {
				http.Error(w, "Unauthorized: missing or invalid user header", http.StatusUnauthorized)
				return
			}

			user, err := store.GetUser(r.Context(), userID)
			if err != nil {
				logger.Error("user lookup failed", zap.Int64("user_id", userID), zap.Error(err))
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if user == nil {
				http.Error(w, "Unauthorized: unknown user", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), CtxUser, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCapability denies the request unless the acting user holds the
// capability.
func RequireCapability(store ports.HostStore, capability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := r.Context().Value(CtxUser).(*domain.Account)
			if !ok {
				http.Error(w, "Forbidden: user not found in context", http.StatusForbidden)
				return
			}

			allowed, err := store.HasCapability(r.Context(), user.ID, capability)
			if err != nil {
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if !allowed {
				http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
