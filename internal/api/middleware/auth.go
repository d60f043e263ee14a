package middleware

import (
	"context"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bundlevault/bundlevault/internal/config"
	"github.com/bundlevault/bundlevault/internal/policy"
	"github.com/bundlevault/bundlevault/internal/utils"
)

type contextKey string

const PrincipalKey contextKey = "principal"

var jwtSecret = config.Envs.JWTSecret

// PrincipalFromRequest resolves the requesting principal from the session
// cookie. Public delivery routes call this directly: a missing or invalid
// token yields an anonymous principal instead of a 401, because public
// downloads must stay reachable without a session.
func PrincipalFromRequest(r *http.Request) policy.Principal {
	cookie, err := r.Cookie("token")
	if err != nil {
		return policy.Principal{}
	}

	token, err := jwt.Parse(cookie.Value, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return policy.Principal{}
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return policy.Principal{}
	}

	userStr, _ := claims["userId"].(string)
	userID, err := uuid.Parse(userStr)
	if err != nil {
		return policy.Principal{}
	}

	return policy.Principal{
		UserID:  &userID,
		Tenants: parseIDs(claims["tenantIds"]),
		Brands:  parseIDs(claims["brandIds"]),
	}
}

func parseIDs(v any) []uuid.UUID {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]uuid.UUID, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if id, err := uuid.Parse(s); err == nil {
			out = append(out, id)
		}
	}
	return out
}

// AuthMiddleware guards the management routes: the request must carry an
// authenticated principal.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		p := PrincipalFromRequest(r)
		if p.Anonymous() {
			utils.JSONResponse(w, http.StatusUnauthorized, utils.Payload{
				Success: false,
				Message: "Unauthorized",
			})
			return
		}

		ctx := context.WithValue(r.Context(), PrincipalKey, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Principal returns the authenticated principal stored by AuthMiddleware.
func Principal(ctx context.Context) policy.Principal {
	p, _ := ctx.Value(PrincipalKey).(policy.Principal)
	return p
}
