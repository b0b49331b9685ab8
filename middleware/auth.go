package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/we-api/services"
	"github.com/cppla/we-api/utils"
)

const (
	// ContextPrincipalKey stores the authenticated *services.Principal in the Gin context.
	ContextPrincipalKey = "principal"
	// AccessTokenCookie is the cookie login sets for clients that do not send the header.
	AccessTokenCookie = "accessToken"
	// RefreshTokenCookie carries the refresh token for POST /auth/refresh.
	RefreshTokenCookie = "refreshToken"
)

// TokenValidator authenticates access tokens.
type TokenValidator interface {
	Validate(ctx context.Context, accessToken string) (*services.Principal, error)
}

// AuthRequired ensures the request carries a valid access token, from the bearer header
// or, failing that, the accessToken cookie.
func AuthRequired(v TokenValidator, log *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenString, ok := bearerToken(ctx)
		if !ok {
			utils.AbortError(ctx, http.StatusUnauthorized, 40104, "invalid authorization header format")
			return
		}
		if tokenString == "" {
			utils.AbortError(ctx, http.StatusUnauthorized, 40100, "authorization required")
			return
		}

		principal, err := v.Validate(ctx.Request.Context(), tokenString)
		if err != nil {
			var de *services.Error
			if errors.As(err, &de) {
				utils.AbortError(ctx, de.Kind.Status(), de.Code, de.Message)
				return
			}
			log.Error("token validation failed", zap.Error(err))
			utils.AbortError(ctx, http.StatusInternalServerError, 50001, "internal server error")
			return
		}

		ctx.Set(ContextPrincipalKey, principal)
		ctx.Next()
	}
}

// bearerToken returns the token and false when the Authorization header is malformed.
func bearerToken(ctx *gin.Context) (string, bool) {
	if authHeader := ctx.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", false
		}
		return strings.TrimSpace(parts[1]), true
	}
	cookie, err := ctx.Cookie(AccessTokenCookie)
	if err != nil {
		return "", true
	}
	return cookie, true
}

// CurrentPrincipal returns the caller set by AuthRequired.
func CurrentPrincipal(ctx *gin.Context) *services.Principal {
	v, ok := ctx.Get(ContextPrincipalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*services.Principal)
	return p
}
