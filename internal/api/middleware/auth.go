package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/goccy/go-json"
)

type contextKey string

const (
	userContextKey         contextKey = "user"
	responseTypeContextKey contextKey = "response_type"
)

// USEF statuses of requests turned away before reaching a handler.
const (
	StatusUnauthorized  = "UNAUTHORIZED"
	StatusInvalidSender = "INVALID_SENDER"
)

// Authenticator resolves auth tokens to users.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

func UserFromContext(ctx context.Context) *domain.User {
	u, _ := ctx.Value(userContextKey).(*domain.User)
	return u
}

// ResponseType names the message type of the route's responses, so that
// errors raised before the handler runs carry it too.
func ResponseType(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithResponseType(r.Context(), name)))
		})
	}
}

func WithResponseType(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, responseTypeContextKey, name)
}

func ResponseTypeFromContext(ctx context.Context) string {
	t, _ := ctx.Value(responseTypeContextKey).(string)
	return t
}

// TokenAuth requires an auth token in the Authorization header, either bare
// or as a bearer token.
func TokenAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromHeader(r.Header.Get("Authorization"))
			if token == "" {
				writeUnauthorized(w, r)
				return
			}

			u, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				writeUnauthorized(w, r)
				return
			}

			setLoggedUser(r.Context(), u)
			ctx := context.WithValue(r.Context(), userContextKey, u)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RolesAccepted only lets through users holding one of roles. It must run
// after TokenAuth.
func RolesAccepted(roles ...domain.Role) func(http.Handler) http.Handler {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	msg := "Invalid sender: this service is only accessible to " + strings.Join(names, ", ") + "."

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := UserFromContext(r.Context())
			if u == nil || !u.HasAnyRole(roles...) {
				writeStatus(w, r, http.StatusForbidden, StatusInvalidSender, msg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tokenFromHeader(h string) string {
	h = strings.TrimSpace(h)
	if scheme, rest, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(rest)
	}
	return h
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, r, http.StatusUnauthorized, StatusUnauthorized, "You could not be properly authenticated.")
}

func writeStatus(w http.ResponseWriter, r *http.Request, code int, status, msg string) {
	body := map[string]string{
		"status":  status,
		"message": msg,
	}
	if t := ResponseTypeFromContext(r.Context()); t != "" {
		body["type"] = t
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
