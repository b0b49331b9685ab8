package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cppla/we-api/middleware"
	"github.com/cppla/we-api/services"
	"github.com/cppla/we-api/testutil"
	"github.com/cppla/we-api/utils"
)

type stubValidator struct {
	tokens map[string]*services.Principal
	err    error
}

func (s stubValidator) Validate(_ context.Context, token string) (*services.Principal, error) {
	if s.err != nil {
		return nil, s.err
	}
	if p, ok := s.tokens[token]; ok {
		return p, nil
	}
	return nil, services.ErrTokenInvalid
}

func authRouter(t *testing.T, v middleware.TokenValidator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", middleware.AuthRequired(v, zaptest.NewLogger(t)), func(ctx *gin.Context) {
		p := middleware.CurrentPrincipal(ctx)
		ctx.JSON(http.StatusOK, gin.H{"userId": p.UserID})
	})
	return r
}

func TestAuthRequired(t *testing.T) {
	v := stubValidator{tokens: map[string]*services.Principal{"good": {UserID: "u1", SessionID: "s1"}}}
	r := authRouter(t, v)

	rr := testutil.MakeRequest(t, r, http.MethodGet, "/me", nil, "good")
	testutil.AssertStatus(t, rr, http.StatusOK)
	var body map[string]string
	testutil.DecodeJSON(t, rr, &body)
	assert.Equal(t, "u1", body["userId"])

	cases := []struct {
		name   string
		header string
		code   int
	}{
		{"missing", "", 40100},
		{"malformed", "Token good", 40104},
		{"invalid", "Bearer bad", services.ErrTokenInvalid.Code},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if c.header != "" {
				req.Header.Set("Authorization", c.header)
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)
			testutil.AssertStatus(t, rr, http.StatusUnauthorized)
			var e utils.ErrorResponse
			testutil.DecodeJSON(t, rr, &e)
			assert.Equal(t, c.code, e.Code)
		})
	}
}

func TestAuthRequiredCookieFallback(t *testing.T) {
	v := stubValidator{tokens: map[string]*services.Principal{"good": {UserID: "u1"}}}
	r := authRouter(t, v)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: middleware.AccessTokenCookie, Value: "good"})
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
}

func TestAuthRequiredStoreFailure(t *testing.T) {
	r := authRouter(t, stubValidator{err: errors.New("redis down")})
	rr := testutil.MakeRequest(t, r, http.MethodGet, "/me", nil, "good")
	testutil.AssertStatus(t, rr, http.StatusInternalServerError)
	var e utils.ErrorResponse
	testutil.DecodeJSON(t, rr, &e)
	require.Equal(t, 50001, e.Code)
}
