package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/we-api/middleware"
	"github.com/cppla/we-api/models"
	"github.com/cppla/we-api/services"
	"github.com/cppla/we-api/utils"
)

// AuthController handles verification, registration and session endpoints.
type AuthController struct {
	identity       *services.IdentityService
	sessions       *services.SessionService
	captcha        *utils.Captcha
	captchaEnabled bool
	secureCookies  bool
	log            *zap.Logger
}

// AuthOptions toggles the optional parts of the auth flow.
type AuthOptions struct {
	CaptchaEnabled bool
	SecureCookies  bool
}

func NewAuthController(identity *services.IdentityService, sessions *services.SessionService, captcha *utils.Captcha, opts AuthOptions, log *zap.Logger) *AuthController {
	return &AuthController{
		identity:       identity,
		sessions:       sessions,
		captcha:        captcha,
		captchaEnabled: opts.CaptchaEnabled,
		secureCookies:  opts.SecureCookies,
		log:            log,
	}
}

type requestCodeRequest struct {
	Email         string `json:"email" binding:"required"`
	CaptchaID     string `json:"captchaId"`
	CaptchaAnswer string `json:"captchaAnswer"`
}

// RequestVerificationCode mails a fresh code to a university address.
func (a *AuthController) RequestVerificationCode(ctx *gin.Context) {
	var req requestCodeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "email is required")
		return
	}
	if a.captchaEnabled && !a.captcha.Verify(strings.TrimSpace(req.CaptchaID), strings.TrimSpace(req.CaptchaAnswer)) {
		respondError(ctx, a.log, services.ErrCaptchaInvalid)
		return
	}
	if err := a.identity.RequestVerificationCode(ctx.Request.Context(), req.Email); err != nil {
		respondError(ctx, a.log, err)
		return
	}
	utils.Message(ctx, http.StatusOK, "verification code sent")
}

// Captcha returns a new captcha image as a data URI.
func (a *AuthController) Captcha(ctx *gin.Context) {
	id, b64, err := a.captcha.Generate()
	if err != nil {
		respondError(ctx, a.log, err)
		return
	}
	utils.JSON(ctx, http.StatusOK, gin.H{"captchaId": id, "image": b64})
}

type registerRequest struct {
	Code     string `json:"code" binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (a *AuthController) Register(ctx *gin.Context) {
	var req registerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "code, username and password are required")
		return
	}
	user, err := a.identity.Register(ctx.Request.Context(), services.RegisterInput{
		Code:     req.Code,
		Username: req.Username,
		Password: req.Password,
		ClientIP: ctx.ClientIP(),
	})
	if err != nil {
		respondError(ctx, a.log, err)
		return
	}
	utils.JSON(ctx, http.StatusOK, gin.H{"message": "registration successful", "user": user})
}

type loginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type sessionResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         *models.User `json:"user"`
}

func (a *AuthController) Login(ctx *gin.Context) {
	var req loginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "username and password are required")
		return
	}
	sess, err := a.sessions.Login(ctx.Request.Context(), strings.TrimSpace(req.Email), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		respondError(ctx, a.log, err)
		return
	}
	a.writeSession(ctx, sess)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh rotates the refresh token, read from the body or the refreshToken cookie.
func (a *AuthController) Refresh(ctx *gin.Context) {
	var req refreshRequest
	_ = ctx.ShouldBindJSON(&req)
	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		token, _ = ctx.Cookie(middleware.RefreshTokenCookie)
	}
	sess, err := a.sessions.Refresh(ctx.Request.Context(), token)
	if err != nil {
		respondError(ctx, a.log, err)
		return
	}
	a.writeSession(ctx, sess)
}

func (a *AuthController) Logout(ctx *gin.Context) {
	if err := a.sessions.Logout(ctx.Request.Context(), principal(ctx).SessionID); err != nil {
		respondError(ctx, a.log, err)
		return
	}
	a.setCookie(ctx, middleware.AccessTokenCookie, "", -1)
	a.setCookie(ctx, middleware.RefreshTokenCookie, "", -1)
	utils.Message(ctx, http.StatusOK, "logged out")
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

func (a *AuthController) ChangePassword(ctx *gin.Context) {
	var req changePasswordRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "oldPassword and newPassword are required")
		return
	}
	if err := a.identity.ChangePassword(ctx.Request.Context(), principal(ctx).UserID, req.OldPassword, req.NewPassword); err != nil {
		respondError(ctx, a.log, err)
		return
	}
	utils.Message(ctx, http.StatusOK, "password updated")
}

func (a *AuthController) writeSession(ctx *gin.Context, sess *services.Session) {
	now := time.Now()
	a.setCookie(ctx, middleware.AccessTokenCookie, sess.Tokens.AccessToken, int(sess.Tokens.AccessExpiresAt.Sub(now).Seconds()))
	a.setCookie(ctx, middleware.RefreshTokenCookie, sess.Tokens.RefreshToken, int(sess.Tokens.RefreshExpiresAt.Sub(now).Seconds()))
	utils.JSON(ctx, http.StatusOK, sessionResponse{
		AccessToken:  sess.Tokens.AccessToken,
		RefreshToken: sess.Tokens.RefreshToken,
		User:         sess.User,
	})
}

func (a *AuthController) setCookie(ctx *gin.Context, name, value string, maxAge int) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(name, value, maxAge, "/", "", a.secureCookies, true)
}
