package auth

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"campus-portal/internal/apperr"
	"campus-portal/internal/policy"
)

// CookieName carries the signed session token.
const CookieName = "portal_session"

const principalKey = "principal"

type principalContextKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p policy.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal stored in ctx, or anonymous.
func PrincipalFromContext(ctx context.Context) policy.Principal {
	p, _ := ctx.Value(principalContextKey{}).(policy.Principal)
	return p
}

// Principal returns the request's principal, or anonymous.
func Principal(c *gin.Context) policy.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(policy.Principal); ok {
			return p
		}
	}
	return PrincipalFromContext(c.Request.Context())
}

// Middleware resolves the session cookie, if any, into a principal. Requests
// without a valid session continue as anonymous.
func Middleware(sessions *Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(CookieName)
		if err != nil || token == "" {
			c.Next()
			return
		}
		sess, err := sessions.Resolve(c.Request.Context(), token)
		if err != nil {
			c.Next()
			return
		}
		c.Set(principalKey, sess.Principal)
		c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), sess.Principal))
		c.Next()
	}
}

// RequireRole aborts requests whose principal is not of role, pointing them
// at that role's login page.
func RequireRole(role policy.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := Principal(c)
		err := policy.Require(p, role)
		if err == nil {
			c.Next()
			return
		}
		status := http.StatusForbidden
		if p.Anonymous() {
			status = http.StatusUnauthorized
		}
		body := gin.H{"error": err.Error()}
		if e, ok := apperr.As(err); ok && e.Redirect != "" {
			body["redirect"] = e.Redirect
		}
		c.AbortWithStatusJSON(status, body)
	}
}

// SetCookie writes the session cookie.
func SetCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, token, maxAge, "/", "", false, true)
}

// ClearCookie expires the session cookie.
func ClearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, "", -1, "/", "", false, true)
}
