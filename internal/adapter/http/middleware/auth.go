package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/models"
	"github.com/horaciolidity/viaja-easy-sub002/internal/domain/types"
	wrap "github.com/horaciolidity/viaja-easy-sub002/pkg/logger/wrapper"
)

// Auth validates the bearer token and injects the actor into the context.
// Requests without a token pass through anonymous; protected routes reject them.
// Browsers cannot set headers on a websocket upgrade, so the token may also
// come in the access_token query parameter.
func (h *Middleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var token string
		if header := r.Header.Get("Authorization"); header != "" {
			var err error
			if token, err = extractBearerToken(header); err != nil {
				errorResponse(w, http.StatusUnauthorized, err.Error())
				return
			}
		} else {
			token = r.URL.Query().Get("access_token")
		}

		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		actor, err := h.tokens.Validate(ctx, token)
		if err != nil || actor == nil {
			h.log.Warn(wrap.ErrorCtx(ctx, err), "failed to authenticate user", "error", err)
			errorResponse(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		ctx = wrap.WithUserID(ctx, actor.ID.String())
		next.ServeHTTP(w, r.WithContext(models.WithActor(ctx, actor)))
	})
}

// RequireRoles allows only authenticated actors with one of the given roles.
// No roles means any authenticated actor.
func (h *Middleware) RequireRoles(next http.HandlerFunc, allowedRoles ...types.Role) http.Handler {
	allowed := make(map[types.Role]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[r] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := models.ActorFromContext(r.Context())
		if actor == nil {
			errorResponse(w, http.StatusUnauthorized, "authorization required")
			return
		}
		if len(allowed) > 0 {
			if _, ok := allowed[actor.Role]; !ok {
				errorResponse(w, http.StatusForbidden, "forbidden: insufficient role")
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(header string) (string, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", fmt.Errorf("invalid Authorization header format")
	}
	return parts[1], nil
}
